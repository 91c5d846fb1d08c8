// Package session tracks the lifecycle of one wallet pairing: client, session and active account.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/atomic"
	"moff.io/wallet-pairing/pkg/common"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
)

var (
	ErrNoClient        = errors.New("signing client not available")
	ErrConnectInFlight = errors.New("another connect is in flight")
	ErrApprovalEmpty   = errors.New("approval resolved without a session")
	ErrInterrupted     = errors.New("session was reset while waiting for approval")
)

type options struct {
	projectID    string
	namespace    string
	chainID      string
	keepClient   bool
	cache        Cache
	notifier     Notifier
	closeTimeout time.Duration
}

type Option func(*options)

func WithProjectID(id string) Option {
	return func(o *options) { o.projectID = id }
}

// WithNamespace selects the namespace the active account is read from.
func WithNamespace(ns string) Option {
	return func(o *options) {
		if ns != "" {
			o.namespace = ns
		}
	}
}

// WithChainID fixes the chain id put in request envelopes. Without it the
// chain of the active account is used.
func WithChainID(id string) Option {
	return func(o *options) { o.chainID = id }
}

// WithKeepClientOnReset keeps the client handle alive across Reset.
func WithKeepClientOnReset(keep bool) Option {
	return func(o *options) { o.keepClient = keep }
}

func WithCache(c Cache) Option {
	return func(o *options) {
		if c != nil {
			o.cache = c
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// Manager owns one wallet session: the client handle, the approved session
// and the active account derived from it.
//
// Account is non-empty iff Session is non-nil. At most one Connect runs at a
// time; a second one fails with ErrConnectInFlight.
type Manager struct {
	signer    SigningClient
	presenter Presenter
	opts      options

	// initMu serializes client creation so that Initialize never builds
	// two clients.
	initMu sync.Mutex

	mu        sync.Mutex
	client    Client
	watchStop chan struct{}
	session   *Session
	account   string
	chainID   string
	// resets counts Reset calls, Connect uses it to detect a reset that
	// happened while it was waiting for approval.
	resets uint64

	connecting atomic.Bool
}

func NewManager(signer SigningClient, presenter Presenter, opts ...Option) *Manager {
	o := options{
		namespace:    DefaultNamespace,
		cache:        nopCache{},
		notifier:     nopNotifier{},
		closeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if presenter == nil {
		presenter = nopPresenter{}
	}
	return &Manager{
		signer:    signer,
		presenter: presenter,
		opts:      o,
	}
}

// State returns a snapshot of the manager.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{Status: Disconnected, Session: m.session, Account: m.account}
	switch {
	case m.session != nil:
		st.Status = Connected
		st.ChainID = m.requestChainID()
	case m.connecting.Load():
		st.Status = Connecting
	}
	return st
}

// Initialize returns the client, creating it on first use. The termination
// watcher is installed once per created client.
func (m *Manager) Initialize(ctx context.Context) (Client, error) {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	m.mu.Lock()
	client := m.client
	m.mu.Unlock()
	if client != nil {
		log.Debug("session manager - client already exists")
		return client, nil
	}
	if m.signer == nil {
		return nil, ErrNoClient
	}

	log.Info("session manager - initializing client")
	client, err := m.signer.Init(ctx, m.opts.projectID)
	if err == nil && client == nil {
		err = ErrNoClient
	}
	if err != nil {
		err = errors.WrapAndReport(err, "initialize signing client")
		log.Errorf("session manager - %v", err)
		m.notify(ctx, Notification{Type: NotifyClientInitFail, Error: err.Error()})
		return nil, err
	}

	stop := make(chan struct{})
	m.mu.Lock()
	m.client = client
	m.watchStop = stop
	m.mu.Unlock()
	go m.watch(client, stop)
	return client, nil
}

// watch resets the manager whenever the client reports the session closed.
func (m *Manager) watch(client Client, stop <-chan struct{}) {
	events := client.Events()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				// The client shut down on its own, a kept client is dead too.
				if m.detach(client) {
					log.Warn("session manager - client shut down, releasing it")
					ctx, cancel := context.WithTimeout(context.Background(), m.opts.closeTimeout)
					m.Reset(ctx)
					cancel()
					if err := client.Close(); err != nil {
						log.Warnf("session manager - close client: %v", err)
					}
				}
				return
			}
			if ev.Type != EventSessionDelete {
				log.Debugf("session manager - ignoring client event %v", ev.Type)
				continue
			}
			log.Infof("session manager - the wallet closed session %v", ev.Topic)
			ctx, cancel := context.WithTimeout(context.Background(), m.opts.closeTimeout)
			m.notify(ctx, Notification{Type: NotifyTerminated, Topic: ev.Topic})
			m.Reset(ctx)
			cancel()
		}
	}
}

// detach forgets client if it is still the current one, so the next
// Initialize creates a new client. Its watcher is the caller and exits.
func (m *Manager) detach(client Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != client {
		return false
	}
	m.client = nil
	m.watchStop = nil
	return true
}

// Connect pairs with a wallet. It blocks until the wallet approves or
// rejects, or ctx is done. On any failure the manager is reset and the
// error returned; on success the session and account are both set.
// A session that is already active is disconnected first.
func (m *Manager) Connect(ctx context.Context, required RequiredNamespaces) error {
	if !m.connecting.CAS(false, true) {
		log.Warn("session manager - connect already in flight")
		return ErrConnectInFlight
	}
	defer m.connecting.Store(false)

	if m.State().Session != nil {
		log.Info("session manager - replacing the active session")
		if err := m.Disconnect(ctx); err != nil {
			log.Warnf("session manager - disconnect previous session: %v", err)
		}
	}

	client, err := m.Initialize(ctx)
	if err != nil {
		return m.failConnect(ctx, err)
	}
	m.mu.Lock()
	epoch := m.resets
	m.mu.Unlock()

	log.Debugf("session manager - proposing namespaces %v", common.MustGetJSONString(required))
	proposal, err := client.Connect(ctx, required)
	if err != nil {
		return m.failConnect(ctx, errors.WrapAndReport(err, "propose session"))
	}
	if proposal == nil || proposal.Approval == nil {
		return m.failConnect(ctx, ErrApprovalEmpty)
	}
	if proposal.URI != "" {
		log.Info("session manager - presenting pairing uri")
		if err := m.presenter.Show(ctx, proposal.URI); err != nil {
			return m.failConnect(ctx, errors.WrapAndReport(err, "present pairing uri"))
		}
	}

	log.Info("session manager - waiting for approval")
	sess, err := proposal.Approval(ctx)
	if err != nil {
		return m.failConnect(ctx, errors.Wrap(err, "await session approval"))
	}
	if sess == nil {
		return m.failConnect(ctx, ErrApprovalEmpty)
	}
	account, chainID, err := AccountFrom(sess, m.opts.namespace)
	if err != nil {
		return m.failConnect(ctx, err)
	}

	m.mu.Lock()
	if m.resets != epoch {
		m.mu.Unlock()
		return m.failConnect(ctx, ErrInterrupted)
	}
	m.session = sess
	m.account = account
	m.chainID = chainID
	m.mu.Unlock()

	if err := m.presenter.Dismiss(ctx); err != nil {
		log.Warnf("session manager - dismiss pairing uri: %v", err)
	}
	log.Infof("session manager - connected, session: %v", common.MustGetJSONString(sess))
	m.notify(ctx, Notification{Type: NotifyConnected, Topic: sess.Topic, Account: account})
	return nil
}

func (m *Manager) failConnect(ctx context.Context, err error) error {
	log.Errorf("session manager - connect: %v", err)
	if dErr := m.presenter.Dismiss(ctx); dErr != nil {
		log.Warnf("session manager - dismiss pairing uri: %v", dErr)
	}
	m.notify(ctx, Notification{Type: NotifyConnectFailed, Error: err.Error()})
	m.Reset(ctx)
	return err
}

// Disconnect tells the wallet the session is over and resets. It does
// nothing unless connected. The manager is reset even when the wallet
// could not be reached; the error is still returned.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	client, sess, account := m.client, m.session, m.account
	m.mu.Unlock()
	if client == nil || sess == nil || account == "" {
		return nil
	}

	log.Infof("session manager - disconnecting session %v", sess.Topic)
	err := client.Disconnect(ctx, sess.Topic, DisconnectReason)
	if err != nil {
		err = errors.WrapAndReport(err, "disconnect session")
		log.Errorf("session manager - %v", err)
	}
	m.Reset(ctx)
	n := Notification{Type: NotifyDisconnected, Topic: sess.Topic, Account: account}
	if err != nil {
		n.Error = err.Error()
	}
	m.notify(ctx, n)
	return err
}

// RequestSignature forwards a signing request. Without a session it returns
// (nil, nil) and the client is not called.
func (m *Manager) RequestSignature(ctx context.Context, p Payload) (json.RawMessage, error) {
	return m.request(ctx, p)
}

// RequestTransaction forwards a transaction request, see RequestSignature.
func (m *Manager) RequestTransaction(ctx context.Context, p Payload) (json.RawMessage, error) {
	return m.request(ctx, p)
}

func (m *Manager) request(ctx context.Context, p Payload) (json.RawMessage, error) {
	m.mu.Lock()
	client, sess, account := m.client, m.session, m.account
	chainID := m.requestChainID()
	m.mu.Unlock()
	if client == nil || sess == nil || account == "" {
		log.Debug("session manager - not connected, request skipped")
		return nil, nil
	}

	rpc, err := p.Build(account)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	resp, err := client.Request(ctx, Request{
		Topic:   sess.Topic,
		ChainID: chainID,
		Request: rpc,
	})
	if err != nil {
		err = errors.WrapAndReport(err, "request "+rpc.Method)
		log.Errorf("session manager - %v", err)
		m.notify(ctx, Notification{Type: NotifyRequestFailed, Topic: sess.Topic, Account: account, Method: rpc.Method, Error: err.Error()})
		return nil, err
	}
	log.Infof("session manager - %v: %s", rpc.Method, resp)
	m.notify(ctx, Notification{Type: NotifyRequestOK, Topic: sess.Topic, Account: account, Method: rpc.Method})
	return resp, nil
}

// requestChainID must be called with mu held.
func (m *Manager) requestChainID() string {
	if m.opts.chainID != "" {
		return m.opts.chainID
	}
	return m.chainID
}

// Reset drops the session and account, releases the client unless the
// manager keeps it across resets, and invalidates the session cache.
func (m *Manager) Reset(ctx context.Context) {
	m.mu.Lock()
	m.session = nil
	m.account = ""
	m.chainID = ""
	m.resets++
	var released Client
	if !m.opts.keepClient && m.client != nil {
		released = m.client
		m.client = nil
		close(m.watchStop)
		m.watchStop = nil
	}
	m.mu.Unlock()

	log.Debug("session manager - reset")
	if released != nil {
		if err := released.Close(); err != nil {
			log.Warnf("session manager - close client: %v", err)
		}
	}
	if err := m.opts.cache.Invalidate(ctx, CacheKey); err != nil {
		log.Warnf("session manager - invalidate session cache: %v", err)
	}
	m.notify(ctx, Notification{Type: NotifyReset})
}

// Close tears the manager down: a best-effort disconnect, then the client
// is released.
func (m *Manager) Close(ctx context.Context) error {
	err := m.Disconnect(ctx)

	m.mu.Lock()
	client := m.client
	m.client = nil
	if m.watchStop != nil {
		close(m.watchStop)
		m.watchStop = nil
	}
	m.mu.Unlock()
	if client != nil {
		if cErr := client.Close(); cErr != nil && err == nil {
			err = errors.Wrap(cErr, "close client")
		}
	}
	return err
}

func (m *Manager) notify(ctx context.Context, n Notification) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	if err := m.opts.notifier.Notify(ctx, n); err != nil {
		log.Warnf("session manager - notify %v: %v", n.Type, err)
	}
}
