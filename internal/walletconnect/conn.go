package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/pkg/concurrent"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
	"moff.io/wallet-pairing/pkg/wccrypto"
)

type rpcResult struct {
	result json.RawMessage
	err    error
}

// conn is one bridge connection, it implements session.Client.
type conn struct {
	bridgeURL string
	meta      clientMeta
	ws        *websocket.Conn
	clientID  string
	limiter   concurrent.Limiter

	writeMu sync.Mutex

	mu      sync.Mutex
	key     []byte
	peerID  string
	pending map[int64]chan rpcResult

	ids       atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
	events    chan session.ClientEvent
	done      chan struct{}
}

func (c *conn) Events() <-chan session.ClientEvent {
	return c.events
}

func (c *conn) nextID() int64 {
	return c.ids.Inc()
}

// Connect publishes a session request under a new handshake topic and key.
func (c *conn) Connect(ctx context.Context, required session.RequiredNamespaces) (*session.Proposal, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	key, err := wccrypto.GenerateRandomBytes(wccrypto.KeySize)
	if err != nil {
		return nil, errors.WrapAndReport(err, "generate session key")
	}
	namespace, chainID, proposed := firstNamespace(required)

	c.mu.Lock()
	c.key = key
	c.peerID = ""
	c.mu.Unlock()

	handshakeTopic := uuid.NewString()
	req := newJSONRPCRequest(c.nextID(), methodSessionRequest, []interface{}{peer{
		PeerID:   c.clientID,
		PeerMeta: c.meta,
		ChainID:  chainID,
	}})
	ch := c.register(req.ID)
	if err := c.send(handshakeTopic, req); err != nil {
		c.unregister(req.ID)
		return nil, err
	}
	uri := wccrypto.PairingURI(handshakeTopic, c.bridgeURL, hex.EncodeToString(key))
	log.Debugf("wallet connect - generated uri:%v", uri)

	return &session.Proposal{
		URI: uri,
		Approval: func(ctx context.Context) (*session.Session, error) {
			raw, err := c.wait(ctx, req.ID, ch)
			if err != nil {
				var rpcErr *RPCError
				if errors.As(err, &rpcErr) && strings.Contains(rpcErr.Message, "Session Rejected") {
					return nil, ErrRejected
				}
				return nil, err
			}
			return c.approve(raw, namespace, proposed)
		},
	}, nil
}

func (c *conn) approve(raw json.RawMessage, namespace string, proposed session.RequiredNamespace) (*session.Session, error) {
	var params sessionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, errors.WrapAndReport(err, "unmarshal wallet info")
	}
	if !params.Approved {
		return nil, ErrRejected
	}
	if len(params.Accounts) == 0 {
		return nil, ErrNoAccounts
	}
	var chain int64
	if params.ChainID != nil {
		chain = *params.ChainID
	}
	accounts := make([]string, 0, len(params.Accounts))
	for _, a := range params.Accounts {
		accounts = append(accounts, namespace+":"+strconv.FormatInt(chain, 10)+":"+a)
	}

	c.mu.Lock()
	c.peerID = params.PeerID
	c.mu.Unlock()

	s := &session.Session{
		Topic: params.PeerID,
		Namespaces: map[string]session.Namespace{
			namespace: {
				Accounts: accounts,
				Methods:  proposed.Methods,
				Events:   proposed.Events,
			},
		},
	}
	if params.PeerMeta != nil {
		s.Peer = session.PeerMeta{
			Name:        params.PeerMeta.Name,
			Description: params.PeerMeta.Description,
			URL:         params.PeerMeta.URL,
			Icons:       params.PeerMeta.Icons,
		}
	}
	return s, nil
}

// Request forwards req to the wallet and waits for its response.
func (c *conn) Request(ctx context.Context, req session.Request) (json.RawMessage, error) {
	if err := c.limiter.Add(ctx); err != nil {
		return nil, err
	}
	defer c.limiter.Done()

	rpc := newJSONRPCRequest(c.nextID(), req.Request.Method, req.Request.Params)
	ch := c.register(rpc.ID)
	if err := c.send(req.Topic, rpc); err != nil {
		c.unregister(rpc.ID)
		return nil, err
	}
	return c.wait(ctx, rpc.ID, ch)
}

// Disconnect tells the wallet the session is closed. The wallet does not answer.
func (c *conn) Disconnect(_ context.Context, topic string, reason session.Reason) error {
	req := newJSONRPCRequest(c.nextID(), methodSessionUpdate, []interface{}{sessionParams{
		Approved: false,
		Message:  reason.Message,
	}})
	err := c.send(topic, req)

	c.mu.Lock()
	c.peerID = ""
	c.key = nil
	c.mu.Unlock()
	return err
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *conn) register(id int64) chan rpcResult {
	ch := make(chan rpcResult, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return ch
}

func (c *conn) unregister(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *conn) wait(ctx context.Context, id int64, ch chan rpcResult) (json.RawMessage, error) {
	defer c.unregister(id)
	select {
	case res := <-ch:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

// send seals req with the session key and publishes it on topic.
func (c *conn) send(topic string, req *jsonRPCRequest) error {
	c.mu.Lock()
	key := c.key
	c.mu.Unlock()
	if key == nil {
		return ErrNoSession
	}
	plain, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "marshal json-rpc request")
	}
	payload, err := wccrypto.Seal(plain, key)
	if err != nil {
		return errors.WrapAndReport(err, "seal json-rpc request")
	}
	sealed, _ := json.Marshal(payload)
	log.Debugf("wallet connect - publish %v #%v to %v", req.Method, req.ID, topic)
	return c.publish(&wcMessage{
		Topic:   topic,
		Type:    msgTypePub,
		Payload: string(sealed),
		Silent:  req.silent(),
	})
}

func (c *conn) publish(msg *wcMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, msg.Marshal()); err != nil {
		return errors.WrapAndReport(err, "write wallet connect message to bridge")
	}
	return nil
}

func (c *conn) keepAlive(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				log.Debugf("wallet connect - ping: %v", err)
			}
		}
	}
}

func (c *conn) readLoop() {
	defer c.shutdown()
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				log.Warnf("wallet connect - bridge connection lost: %v", err)
				c.emit(session.EventSessionDelete, c.currentPeer())
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := c.handle(data); err != nil {
			log.Warnf("wallet connect - drop message: %v", err)
		}
	}
}

func (c *conn) handle(data []byte) error {
	msg, err := newWCMessageFromBytes(data)
	if err != nil {
		return err
	}
	if msg.Type != msgTypePub {
		return nil
	}
	if err := c.publish(&wcMessage{Topic: msg.Topic, Type: msgTypeAck, Silent: true}); err != nil {
		return err
	}
	if msg.Payload == "" {
		return nil
	}
	c.mu.Lock()
	key := c.key
	c.mu.Unlock()
	if key == nil {
		return ErrNoSession
	}
	sealed, err := msg.sealed()
	if err != nil {
		return err
	}
	plain, err := wccrypto.Open(sealed, key)
	if err != nil {
		return errors.Wrap(err, "open bridge payload")
	}
	log.Debugf("wallet connect - receive:%s", plain)

	if method := gjson.GetBytes(plain, "method"); method.Exists() {
		c.handleWalletRequest(method.String(), plain)
		return nil
	}
	id := gjson.GetBytes(plain, "id").Int()
	res := rpcResult{result: json.RawMessage(gjson.GetBytes(plain, "result").Raw)}
	if e := gjson.GetBytes(plain, "error"); e.Exists() {
		res = rpcResult{err: &RPCError{Code: int(e.Get("code").Int()), Message: e.Get("message").String()}}
	}
	c.mu.Lock()
	ch, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		log.Debugf("wallet connect - no pending request #%v", id)
		return nil
	}
	ch <- res
	return nil
}

// handleWalletRequest reacts to requests pushed by the wallet. Only a
// session update withdrawing approval matters here.
func (c *conn) handleWalletRequest(method string, plain []byte) {
	if method != methodSessionUpdate {
		log.Debugf("wallet connect - ignore wallet request %v", method)
		return
	}
	approved := gjson.GetBytes(plain, "params.0.approved")
	if !approved.Exists() || approved.Bool() {
		return
	}
	peerID := c.currentPeer()
	log.Warnf("wallet connect - session closed by wallet %v", peerID)
	c.mu.Lock()
	c.peerID = ""
	c.mu.Unlock()
	c.emit(session.EventSessionDelete, peerID)
}

func (c *conn) currentPeer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// emit never blocks the read loop, events are dropped when nobody listens.
func (c *conn) emit(t session.ClientEventType, topic string) {
	select {
	case c.events <- session.ClientEvent{Type: t, Topic: topic}:
	default:
		log.Warnf("wallet connect - event %v dropped", t)
	}
}

func (c *conn) shutdown() {
	c.closed.Store(true)
	close(c.done)
	close(c.events)
	_ = c.ws.Close()
}

// firstNamespace picks the namespace and numeric chain id proposed to a v1
// wallet, which only understands a single eip155 chain.
func firstNamespace(required session.RequiredNamespaces) (string, interface{}, session.RequiredNamespace) {
	for ns, req := range required {
		for _, chain := range req.Chains {
			_, ref := splitChain(chain)
			if n, err := strconv.ParseInt(ref, 10, 64); err == nil {
				return ns, n, req
			}
		}
		return ns, nil, req
	}
	return session.DefaultNamespace, nil, session.RequiredNamespace{}
}

func splitChain(chain string) (namespace, reference string) {
	if i := strings.LastIndex(chain, ":"); i >= 0 {
		return chain[:i], chain[i+1:]
	}
	return "", chain
}
