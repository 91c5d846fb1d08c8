package session

import (
	"context"
	"encoding/json"
)

// SigningClient creates client handles.
type SigningClient interface {
	Init(ctx context.Context, projectID string) (Client, error)
}

// Client is an initialized signing client.
type Client interface {
	// Connect opens a pairing negotiation for the required namespaces.
	Connect(ctx context.Context, required RequiredNamespaces) (*Proposal, error)
	Disconnect(ctx context.Context, topic string, reason Reason) error
	Request(ctx context.Context, req Request) (json.RawMessage, error)
	// Events delivers asynchronous client events such as EventSessionDelete.
	Events() <-chan ClientEvent
	Close() error
}

// Presenter shows a pairing uri to the user.
type Presenter interface {
	Show(ctx context.Context, uri string) error
	Dismiss(ctx context.Context) error
}

// Cache is the client-side session cache. The manager only ever drops it.
type Cache interface {
	Invalidate(ctx context.Context, key string) error
}

// Notifier receives lifecycle notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type nopCache struct{}

func (nopCache) Invalidate(context.Context, string) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }

type nopPresenter struct{}

func (nopPresenter) Show(context.Context, string) error { return nil }
func (nopPresenter) Dismiss(context.Context) error      { return nil }

// Notifiers fans a notification out to every notifier. All are tried and
// the first error is returned.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, n Notification) error {
	var first error
	for _, notifier := range ns {
		if err := notifier.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
