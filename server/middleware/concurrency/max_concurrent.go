// Package concurrency provides a middleware that limits the number of
// requests an endpoint processes concurrently.
//
// Requests that cannot acquire a slot before the acquire timeout expires, or
// before their context is done, fail with transport.ErrTimeout.
package concurrency

import (
	"context"
	"sync"
	"time"

	"github.com/achilleasa/katapayadi/config/flag"
	"github.com/achilleasa/katapayadi/server"
	"github.com/achilleasa/katapayadi/transport"
)

// SingletonFactory returns a middleware factory whose middleware instances
// share a single limiter. Use it to apply a common limit to a group of
// endpoints; use Factory for a per-endpoint limit.
func SingletonFactory(cfg Config) server.MiddlewareFactory {
	l := newLimiter(cfg)
	return l.wrap
}

// Factory returns a middleware factory that creates a new limiter for each
// endpoint it is applied to.
func Factory(cfg Config) server.MiddlewareFactory {
	return func(next server.Middleware) server.Middleware {
		return newLimiter(cfg).wrap(next)
	}
}

// limiter is a counting semaphore whose size is read from the configuration
// on every acquisition.
type limiter struct {
	maxConcurrent  *flag.Uint32
	acquireTimeout *flag.Duration

	mutex sync.Mutex
	inUse int

	// Closed and replaced whenever a slot is released.
	released chan struct{}
}

func newLimiter(cfg Config) *limiter {
	return &limiter{
		maxConcurrent:  cfg.GetMaxConcurrent(),
		acquireTimeout: cfg.GetAcquireTimeout(),
		released:       make(chan struct{}),
	}
}

func (l *limiter) wrap(next server.Middleware) server.Middleware {
	return server.MiddlewareFunc(func(ctx context.Context, req transport.ImmutableMessage, res transport.Message) {
		if !l.acquire(ctx) {
			res.SetPayload(nil, transport.ErrTimeout)
			return
		}

		// Release the slot even if next panics.
		defer l.release()
		next.Handle(ctx, req, res)
	})
}

// acquire blocks until a slot becomes available. It returns false if the
// acquire timeout expires or ctx is done first.
func (l *limiter) acquire(ctx context.Context) bool {
	timer := time.NewTimer(durationOrDefault(l.acquireTimeout, DefaultAcquireTimeout))
	defer timer.Stop()

	for {
		l.mutex.Lock()
		if l.inUse < intOrDefault(l.maxConcurrent, DefaultMaxConcurrent) {
			l.inUse++
			l.mutex.Unlock()
			return true
		}
		released := l.released
		l.mutex.Unlock()

		select {
		case <-released:
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (l *limiter) release() {
	l.mutex.Lock()
	l.inUse--
	close(l.released)
	l.released = make(chan struct{})
	l.mutex.Unlock()
}
