package session

import (
	"context"
	"encoding/json"
	"sync"
)

type fakeSigner struct {
	mu      sync.Mutex
	inits   int
	err     error
	clients []*fakeClient
	// newClient customizes every created client.
	newClient func(*fakeClient)
}

func (s *fakeSigner) Init(_ context.Context, projectID string) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits++
	if s.err != nil {
		return nil, s.err
	}
	c := newFakeClient()
	c.projectID = projectID
	if s.newClient != nil {
		s.newClient(c)
	}
	s.clients = append(s.clients, c)
	return c, nil
}

func (s *fakeSigner) initCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits
}

func (s *fakeSigner) last() *fakeClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) == 0 {
		return nil
	}
	return s.clients[len(s.clients)-1]
}

type fakeClient struct {
	mu          sync.Mutex
	projectID   string
	uri         string
	connectErr  error
	approval    func(ctx context.Context) (*Session, error)
	requestErr  error
	response    json.RawMessage
	disconnErr  error
	connects    int
	requests    []Request
	disconnects []Reason
	topics      []string
	closes      int
	events      chan ClientEvent
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		uri:      "wc:abc@1?bridge=x&key=y",
		response: json.RawMessage(`"0xsig"`),
		events:   make(chan ClientEvent, 4),
	}
}

func (c *fakeClient) Connect(context.Context, RequiredNamespaces) (*Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	return &Proposal{URI: c.uri, Approval: c.approval}, nil
}

func (c *fakeClient) Disconnect(_ context.Context, topic string, reason Reason) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	c.disconnects = append(c.disconnects, reason)
	return c.disconnErr
}

func (c *fakeClient) Request(_ context.Context, req Request) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.requestErr != nil {
		return nil, c.requestErr
	}
	return c.response, nil
}

func (c *fakeClient) Events() <-chan ClientEvent {
	return c.events
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeClient) calls() (connects, requests, disconnects int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects, len(c.requests), len(c.disconnects)
}

func (c *fakeClient) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type fakePresenter struct {
	mu        sync.Mutex
	shown     []string
	dismissed int
	showErr   error
}

func (p *fakePresenter) Show(_ context.Context, uri string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shown = append(p.shown, uri)
	return p.showErr
}

func (p *fakePresenter) Dismiss(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed++
	return nil
}

type fakeCache struct {
	mu   sync.Mutex
	keys []string
}

func (c *fakeCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	return nil
}

func (c *fakeCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recordingNotifier) count(t NotificationType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Type == t {
			n++
		}
	}
	return n
}

func approved(topic string, accounts ...string) func(context.Context) (*Session, error) {
	return func(context.Context) (*Session, error) {
		return &Session{
			Topic: topic,
			Namespaces: map[string]Namespace{
				"eip155": {Accounts: accounts},
			},
		}, nil
	}
}
