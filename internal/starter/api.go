package starter

import (
	"context"

	"moff.io/wallet-pairing/internal/config"
	"moff.io/wallet-pairing/pkg/log"
)

type Startable interface {
	Start(ctx context.Context)
}

type Configurable interface {
	Apply(*config.Configuration)
}

// Start applies the global configuration to configurable elements and starts them in order.
func Start(ctx context.Context, elems ...Startable) {
	for _, ele := range elems {
		if configurable, ok := ele.(Configurable); ok && config.Global != nil {
			configurable.Apply(config.Global)
		}
		ele.Start(ctx)
	}
}

type Stopable interface {
	Stop()
}

// Stop stops the elements that support it, in reverse start order.
func Stop(elems ...Startable) {
	for i := len(elems) - 1; i >= 0; i-- {
		if s, ok := elems[i].(Stopable); ok {
			s.Stop()
		}
	}
	log.Info("all components stopped")
}
