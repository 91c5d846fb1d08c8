package main

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/wallet-pairing/internal/session"
)

type fakeSigner struct {
	resp json.RawMessage
	err  error
}

func (f fakeSigner) RequestSignature(context.Context, session.Payload) (json.RawMessage, error) {
	return f.resp, f.err
}

func TestPersonalSignVerifies(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := crypto.Sign(accounts.TextHash([]byte("hello")), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	resp, err := json.Marshal(hexutil.Encode(sig))
	require.NoError(t, err)
	account := crypto.PubkeyToAddress(key.PublicKey).Hex()

	var out bytes.Buffer
	require.NoError(t, personalSign(context.Background(), fakeSigner{resp: resp}, account, "hello", true, &out))
	assert.Contains(t, out.String(), "Signature valid: true")
}

func TestPersonalSignAfterWalletLeft(t *testing.T) {
	var out bytes.Buffer
	err := personalSign(context.Background(), fakeSigner{}, "0x1", "hello", true, &out)
	assert.ErrorIs(t, err, errWalletDisconnected)
	assert.Empty(t, out.String())
}

type fakeStates struct {
	mu     sync.Mutex
	status session.Status
}

func (f *fakeStates) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.State{Status: f.status}
}

func (f *fakeStates) set(s session.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

func TestWaitWhileConnected(t *testing.T) {
	src := &fakeStates{status: session.Connected}
	done := make(chan bool, 1)
	go func() { done <- waitWhileConnected(context.Background(), src, 5*time.Millisecond) }()
	src.set(session.Disconnected)
	select {
	case interrupted := <-done:
		assert.False(t, interrupted)
	case <-time.After(time.Second):
		t.Fatal("still waiting after the session closed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, waitWhileConnected(ctx, &fakeStates{status: session.Connected}, time.Hour))
}
