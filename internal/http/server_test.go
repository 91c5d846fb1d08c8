package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"moff.io/wallet-pairing/internal/database"
	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/internal/walletconnect"
	"moff.io/wallet-pairing/pkg/errors"
)

const account = "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826"

type fakeSessions struct {
	mu        sync.Mutex
	state     session.State
	connected chan session.RequiredNamespaces
	resp      json.RawMessage
	err       error
	rpcs      []session.RPC
	kinds     []string
	resets    int
}

func newFakeSessions(status session.Status) *fakeSessions {
	f := &fakeSessions{connected: make(chan session.RequiredNamespaces, 1), resp: json.RawMessage(`"0xsig"`)}
	f.state.Status = status
	if status == session.Connected {
		f.state.Account = account
		f.state.ChainID = "eip155:1001"
		f.state.Session = &session.Session{Topic: "t1"}
	}
	return f
}

func (f *fakeSessions) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSessions) Connect(_ context.Context, required session.RequiredNamespaces) error {
	f.connected <- required
	return nil
}

func (f *fakeSessions) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = session.State{}
	return f.err
}

func (f *fakeSessions) record(kind string, p session.Payload) (json.RawMessage, error) {
	rpc, err := p.Build(account)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rpcs = append(f.rpcs, rpc)
	f.kinds = append(f.kinds, kind)
	return f.resp, f.err
}

func (f *fakeSessions) RequestSignature(_ context.Context, p session.Payload) (json.RawMessage, error) {
	return f.record("signature", p)
}

func (f *fakeSessions) RequestTransaction(_ context.Context, p session.Payload) (json.RawMessage, error) {
	return f.record("transaction", p)
}

func (f *fakeSessions) Reset(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.state = session.State{}
}

func (f *fakeSessions) lastRPC(t *testing.T) (session.RPC, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.rpcs)
	return f.rpcs[len(f.rpcs)-1], f.kinds[len(f.kinds)-1]
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, gjson.Result) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w, gjson.Parse(w.Body.String())
}

func newTestServer(t *testing.T, f *fakeSessions, opts Options) *Server {
	t.Setenv("DEBUG", "1")
	gin.SetMode(gin.TestMode)
	if opts.ChainID == "" {
		opts.ChainID = "eip155:1001"
	}
	if opts.TestAccount == "" {
		opts.TestAccount = "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"
	}
	s := NewServer(f, opts)
	t.Cleanup(s.Stop)
	return s
}

func TestState(t *testing.T) {
	s := newTestServer(t, newFakeSessions(session.Connected), Options{})
	w, body := do(t, s, http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), body.Get("code").Int())
	assert.Equal(t, "connected", body.Get("data.status").String())
	assert.Equal(t, account, body.Get("data.account").String())
	assert.NotEmpty(t, w.Header().Get("x-request-id"))
}

func TestConnectRunsDetached(t *testing.T) {
	f := newFakeSessions(session.Disconnected)
	s := newTestServer(t, f, Options{})

	w, body := do(t, s, http.MethodPost, "/connect", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "connecting", body.Get("data.status").String())

	select {
	case required := <-f.connected:
		ns := required[session.DefaultNamespace]
		assert.Equal(t, []string{"eip155:1001"}, ns.Chains)
		assert.Contains(t, ns.Methods, "personal_sign")
	case <-time.After(2 * time.Second):
		t.Fatal("connect not started")
	}
}

func TestConnectWithChains(t *testing.T) {
	f := newFakeSessions(session.Disconnected)
	s := newTestServer(t, f, Options{})

	w, _ := do(t, s, http.MethodPost, "/connect", `{"chains":["8217","eip155:1"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	select {
	case required := <-f.connected:
		assert.Equal(t, []string{"eip155:8217", "eip155:1"}, required[session.DefaultNamespace].Chains)
	case <-time.After(2 * time.Second):
		t.Fatal("connect not started")
	}
}

func TestConnectWhileConnecting(t *testing.T) {
	f := newFakeSessions(session.Connecting)
	s := newTestServer(t, f, Options{})

	w, body := do(t, s, http.MethodPost, "/connect", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int64(codeConnectInFlight), body.Get("code").Int())
	assert.Empty(t, f.connected)
}

func TestPersonalSign(t *testing.T) {
	f := newFakeSessions(session.Connected)
	s := newTestServer(t, f, Options{})

	w, body := do(t, s, http.MethodPost, "/personal_sign", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xsig", body.Get("data").String())

	rpc, kind := f.lastRPC(t)
	assert.Equal(t, "signature", kind)
	assert.Equal(t, "personal_sign", rpc.Method)
	params := rpc.Params.([]interface{})
	assert.Equal(t, "0x48656c6c6f20576f726c6421", params[0])
	assert.Equal(t, account, params[1])

	do(t, s, http.MethodPost, "/personal_sign", `{"message":"hi"}`)
	rpc, _ = f.lastRPC(t)
	assert.Equal(t, "0x6869", rpc.Params.([]interface{})[0])
}

func TestTransactions(t *testing.T) {
	f := newFakeSessions(session.Connected)
	s := newTestServer(t, f, Options{})

	w, _ := do(t, s, http.MethodPost, "/send_transaction", "")
	require.Equal(t, http.StatusOK, w.Code)
	rpc, kind := f.lastRPC(t)
	assert.Equal(t, "transaction", kind)
	assert.Equal(t, "eth_sendTransaction", rpc.Method)
	raw, err := json.Marshal(rpc.Params)
	require.NoError(t, err)
	assert.Equal(t, "0x5208", gjson.GetBytes(raw, "0.gasLimit").String())
	assert.Equal(t, "0x0", gjson.GetBytes(raw, "0.value").String())
	assert.Equal(t, account, gjson.GetBytes(raw, "0.from").String())

	w, _ = do(t, s, http.MethodPost, "/sign_transaction", `{"to":"0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC"}`)
	require.Equal(t, http.StatusOK, w.Code)
	rpc, kind = f.lastRPC(t)
	assert.Equal(t, "signature", kind)
	assert.Equal(t, "eth_signTransaction", rpc.Method)
	raw, _ = json.Marshal(rpc.Params)
	assert.Equal(t, "0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC", gjson.GetBytes(raw, "0.to").String())
	assert.False(t, gjson.GetBytes(raw, "0.gasLimit").Exists())

	w, body := do(t, s, http.MethodPost, "/send_transaction", `{"to":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int64(codeBadRequest), body.Get("code").Int())
}

func TestSignTypedData(t *testing.T) {
	f := newFakeSessions(session.Connected)
	s := newTestServer(t, f, Options{})

	w, _ := do(t, s, http.MethodPost, "/sign_typed_data", "")
	require.Equal(t, http.StatusOK, w.Code)
	rpc, _ := f.lastRPC(t)
	assert.Equal(t, "eth_signTypedData", rpc.Method)
	raw, _ := json.Marshal(rpc.Params)
	assert.Equal(t, "Mail", gjson.GetBytes(raw, "1.primaryType").String())
	assert.Equal(t, "0x3e9", gjson.GetBytes(raw, "1.domain.chainId").String())
}

func TestGenericRequest(t *testing.T) {
	f := newFakeSessions(session.Connected)
	s := newTestServer(t, f, Options{})

	w, _ := do(t, s, http.MethodPost, "/request", `{"method":"eth_chainId"}`)
	require.Equal(t, http.StatusOK, w.Code)
	rpc, _ := f.lastRPC(t)
	assert.Equal(t, "eth_chainId", rpc.Method)

	w, _ = do(t, s, http.MethodPost, "/request", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestsNeedAConnection(t *testing.T) {
	f := newFakeSessions(session.Disconnected)
	s := newTestServer(t, f, Options{})

	for _, path := range []string{"/personal_sign", "/sign_transaction", "/sign_typed_data", "/send_transaction"} {
		w, body := do(t, s, http.MethodPost, path, "")
		assert.Equal(t, http.StatusConflict, w.Code, path)
		assert.Equal(t, int64(codeNotConnected), body.Get("code").Int(), path)
	}
	assert.Empty(t, f.rpcs)
}

func TestWalletErrors(t *testing.T) {
	f := newFakeSessions(session.Connected)
	f.err = &walletconnect.RPCError{Code: 4001, Message: "User rejected"}
	s := newTestServer(t, f, Options{})

	w, body := do(t, s, http.MethodPost, "/personal_sign", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, int64(codeWalletRejected), body.Get("code").Int())
	assert.Contains(t, body.Get("msg").String(), "User rejected")

	f.err = errors.Wrap(session.ErrNoClient, "request")
	w, _ = do(t, s, http.MethodPost, "/personal_sign", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDisconnectAndReset(t *testing.T) {
	f := newFakeSessions(session.Connected)
	s := newTestServer(t, f, Options{})

	w, body := do(t, s, http.MethodPost, "/disconnect", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "disconnected", body.Get("data.status").String())

	f.err = errors.New("relay down")
	w, _ = do(t, s, http.MethodPost, "/disconnect", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w, _ = do(t, s, http.MethodPost, "/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, f.resets)
}

type fakeQR struct {
	png []byte
}

func (q fakeQR) Current() ([]byte, string) {
	if q.png == nil {
		return nil, ""
	}
	return q.png, "wc:abc@1"
}

func TestQR(t *testing.T) {
	s := newTestServer(t, newFakeSessions(session.Connecting), Options{QR: fakeQR{png: []byte("png")}})
	w, _ := do(t, s, http.MethodGet, "/qr", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "wc:abc@1", w.Header().Get("X-Pairing-URI"))
	assert.Equal(t, "png", w.Body.String())

	s = newTestServer(t, newFakeSessions(session.Disconnected), Options{QR: fakeQR{}})
	w, _ = do(t, s, http.MethodGet, "/qr", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	s = newTestServer(t, newFakeSessions(session.Disconnected), Options{})
	w, _ = do(t, s, http.MethodGet, "/qr", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type fakeAllower struct {
	allowed    int
	retryAfter time.Duration
	err        error
	keys       []string
}

func (a *fakeAllower) Allow(_ context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	a.keys = append(a.keys, key)
	if a.err != nil {
		return nil, a.err
	}
	return &redis_rate.Result{Limit: limit, Allowed: a.allowed, RetryAfter: a.retryAfter}, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &fakeAllower{allowed: 0, retryAfter: 1500 * time.Millisecond}
	s := newTestServer(t, newFakeSessions(session.Disconnected), Options{Limiter: limiter, RateLimitPerMinute: 10})
	w, body := do(t, s, http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, int64(codeTooManyRequests), body.Get("code").Int())
	require.Len(t, limiter.keys, 1)
	assert.True(t, strings.HasPrefix(limiter.keys[0], "wallet_pairing_rate:"))

	limiter.retryAfter = 0
	w, _ = do(t, s, http.MethodGet, "/state", "")
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	limiter.allowed = 1
	w, _ = do(t, s, http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusOK, w.Code)

	limiter.err = errors.New("redis down")
	w, _ = do(t, s, http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

type fakeEvents struct {
	limit int
}

func (f *fakeEvents) Recent(_ context.Context, limit int) ([]*database.WalletSessionEvent, error) {
	f.limit = limit
	return []*database.WalletSessionEvent{{ID: 1, EventType: "connected", Topic: "t1"}}, nil
}

func TestEvents(t *testing.T) {
	events := &fakeEvents{}
	s := newTestServer(t, newFakeSessions(session.Connected), Options{Events: events})
	w, body := do(t, s, http.MethodGet, "/events?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, events.limit)
	assert.Equal(t, "connected", body.Get("data.0.EventType").String())

	s = newTestServer(t, newFakeSessions(session.Connected), Options{})
	w, _ = do(t, s, http.MethodGet, "/events", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
