package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"moff.io/wallet-pairing/internal/session"
	"moff.io/wallet-pairing/pkg/errors"
	"moff.io/wallet-pairing/pkg/log"
)

// Dir keeps each cache key as an entry under a root directory, the way a
// browser keeps an indexed db per name.
type Dir struct {
	root string
}

func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) Invalidate(_ context.Context, key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return errors.Errorf("invalid cache key %q", key)
	}
	path := filepath.Join(d.root, key)
	if err := os.RemoveAll(path); err != nil {
		return errors.WrapAndReport(err, "remove cache dir")
	}
	log.Debugf("removed cache %v", path)
	return nil
}

// Multi invalidates every cache, the first error wins but all are tried.
type Multi []session.Cache

func (m Multi) Invalidate(ctx context.Context, key string) error {
	var first error
	for _, c := range m {
		if err := c.Invalidate(ctx, key); err != nil && first == nil {
			first = err
		}
	}
	return first
}
