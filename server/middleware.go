package server

import (
	"context"
	"sync"

	"github.com/achilleasa/katapayadi/transport"
)

// A MiddlewareFactory generates a Middleware which wraps another middleware
// forming a middleware chain.
//
// The returned middleware is expected to invoke next before returning. It can
// also return without invoking next, which prevents the rest of the chain
// from executing.
type MiddlewareFactory func(next Middleware) Middleware

// Middleware is implemented by objects that can be injected into the handling
// flow of incoming requests before the endpoint handler is invoked.
// Middleware may modify the context and the response message.
//
// It is not valid to access the request message or modify the response
// message after Handle returns.
type Middleware interface {
	Handle(ctx context.Context, req transport.ImmutableMessage, res transport.Message)
}

// The MiddlewareFunc type is an adapter to allow the use of ordinary functions
// as middleware.
type MiddlewareFunc func(ctx context.Context, req transport.ImmutableMessage, res transport.Message)

// Handle calls f(ctx, req, res).
func (f MiddlewareFunc) Handle(ctx context.Context, req transport.ImmutableMessage, res transport.Message) {
	f(ctx, req, res)
}

var (
	globalMu      sync.RWMutex
	globalFactory []MiddlewareFactory
)

// RegisterGlobalMiddleware appends one or more factories to the global
// middleware list. Global middleware wraps the middleware of every endpoint
// bound after the call.
func RegisterGlobalMiddleware(factories ...MiddlewareFactory) {
	globalMu.Lock()
	globalFactory = append(globalFactory, factories...)
	globalMu.Unlock()
}

// ClearGlobalMiddleware clears the list of global middleware.
func ClearGlobalMiddleware() {
	globalMu.Lock()
	globalFactory = nil
	globalMu.Unlock()
}

func globalMiddleware() []MiddlewareFactory {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return append([]MiddlewareFactory(nil), globalFactory...)
}
