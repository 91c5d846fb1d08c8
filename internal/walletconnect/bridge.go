// Package walletconnect talks to wallets over a WalletConnect v1 bridge.
// Bridge implements session.SigningClient.
package walletconnect

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/pkg/concurrent"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
	"moff.io/wallet-pairing/pkg/wccrypto"
)

const defaultMaxInFlight = 8

// Bridge dials one bridge connection per Init.
type Bridge struct {
	bridgeURL   string
	meta        clientMeta
	dialer      *websocket.Dialer
	pingEvery   time.Duration
	maxInFlight int
}

type BridgeOption func(*Bridge)

// WithBridgeURL pins the bridge server, a random public shard is used otherwise.
func WithBridgeURL(url string) BridgeOption {
	return func(b *Bridge) {
		if url != "" {
			b.bridgeURL = url
		}
	}
}

// WithPeerMeta sets what the wallet displays about this application.
func WithPeerMeta(name, description, url string, icons ...string) BridgeOption {
	return func(b *Bridge) {
		b.meta = clientMeta{Name: name, Description: description, URL: url, Icons: icons}
	}
}

// WithMaxInFlight bounds outstanding wallet requests per connection.
func WithMaxInFlight(n int) BridgeOption {
	return func(b *Bridge) { b.maxInFlight = n }
}

// WithPingInterval keeps idle connections alive, zero disables pings.
func WithPingInterval(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.pingEvery = d }
}

func NewBridge(opts ...BridgeOption) *Bridge {
	b := &Bridge{
		bridgeURL: wccrypto.RandomBridgeURL(),
		meta: clientMeta{
			Name:        "wallet-pairing",
			Description: "wallet pairing sample",
			Icons:       []string{},
		},
		dialer:      &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		pingEvery:   30 * time.Second,
		maxInFlight: defaultMaxInFlight,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Init dials the bridge and subscribes to a fresh client id. projectID is
// only logged, v1 bridges are not project scoped.
func (b *Bridge) Init(ctx context.Context, projectID string) (session.Client, error) {
	wsURL := wccrypto.WebSocketURL(b.bridgeURL, "wc", "1")
	ws, _, err := b.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, errors.WrapAndReport(err, "dial to wallet connect bridge")
	}
	c := &conn{
		bridgeURL: b.bridgeURL,
		meta:      b.meta,
		ws:        ws,
		clientID:  uuid.NewString(),
		limiter:   concurrent.NewLimiter(b.maxInFlight),
		pending:   make(map[int64]chan rpcResult),
		events:    make(chan session.ClientEvent, 8),
		done:      make(chan struct{}),
	}
	c.ids.Store(time.Now().UnixNano() / 1000)
	if err := c.publish(&wcMessage{Topic: c.clientID, Type: msgTypeSub, Silent: true}); err != nil {
		ws.Close()
		return nil, err
	}
	log.Infof("wallet connect - connected to bridge %v as %v (project %q)", b.bridgeURL, c.clientID, projectID)
	go c.readLoop()
	if b.pingEvery > 0 {
		go c.keepAlive(b.pingEvery)
	}
	return c, nil
}
