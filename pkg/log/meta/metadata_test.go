package meta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBeginIsIdempotent(t *testing.T) {
	ctx := Begin(context.Background())
	assert.Equal(t, ctx, Begin(ctx))

	child, cancel := context.WithCancel(ctx)
	defer cancel()
	WithRequestID(child, "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
}

func TestValueWithoutBegin(t *testing.T) {
	ctx := context.Background()
	WithValue(ctx, "k", "v")
	assert.Nil(t, Value(ctx, "k"))
	assert.Empty(t, RequestID(ctx))
}
