package concurrent

import "context"

type Limiter interface {
	// Add blocks until a working credential is available or ctx is done.
	Add(ctx context.Context) error
	// Done releases one working credential.
	Done()
}

type limiter struct {
	working chan struct{}
}

// NewLimiter bounds concurrency to maxConcurrency, at least one.
func NewLimiter(maxConcurrency int) Limiter {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &limiter{
		working: make(chan struct{}, maxConcurrency),
	}
}

func (in *limiter) Add(ctx context.Context) error {
	select {
	case in.working <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (in *limiter) Done() {
	<-in.working
}
