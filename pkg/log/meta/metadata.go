package meta

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// metadata is a mutable bag shared by every context derived from the one
// returned by Begin.
type metadata struct {
	carrier map[interface{}]interface{}
	mu      sync.RWMutex
}

func (c *metadata) Value(key interface{}) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.carrier[key]
}

func (c *metadata) WithValue(key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carrier[key] = value
}

type contextKey struct{}

var metaContextKey = contextKey{}

type requestIDKey struct{}

// Begin attaches a metadata bag to parent. Call it as close to the root
// context as possible; if parent already carries one, parent is returned.
func Begin(parent context.Context) context.Context {
	if parent.Value(metaContextKey) != nil {
		return parent
	}
	return context.WithValue(parent, metaContextKey, &metadata{
		carrier: make(map[interface{}]interface{}),
	})
}

func metadataFrom(parent context.Context) *metadata {
	value := parent.Value(metaContextKey)
	if value == nil {
		logrus.Debug("meta not found from context, should call meta.Begin() first?")
		return nil
	}
	return value.(*metadata)
}

// WithValue stores key/val in the metadata bag of parent.
func WithValue(parent context.Context, key, val interface{}) {
	meta := metadataFrom(parent)
	if meta == nil {
		return
	}
	meta.WithValue(key, val)
}

// Value reads key from the metadata bag of parent.
func Value(parent context.Context, key interface{}) interface{} {
	meta := metadataFrom(parent)
	if meta == nil {
		return nil
	}
	return meta.Value(key)
}

func WithRequestID(parent context.Context, id string) {
	WithValue(parent, requestIDKey{}, id)
}

func RequestID(parent context.Context) string {
	id, _ := Value(parent, requestIDKey{}).(string)
	return id
}
