package client

import (
	"context"
	"sync"

	"github.com/achilleasa/katapayadi/transport"
)

// Middleware is implemented by objects that can be injected into a client's
// outgoing request flow.
//
// Pre is invoked before the request message is passed to the transport. It
// may modify the outgoing request or return a derived context; returning a
// nil context keeps the current one. If Pre returns an error the request is
// aborted and the error is returned to the caller.
//
// Post is invoked once a response is available, including responses that
// carry an error. Post is only called for middleware whose Pre succeeded.
//
// It is not valid to access the request message or modify the response
// message after Post returns.
type Middleware interface {
	Pre(ctx context.Context, req transport.Message) (context.Context, error)
	Post(ctx context.Context, req, res transport.ImmutableMessage)
}

// A MiddlewareFactory creates a middleware instance for a client of the named
// remote service.
type MiddlewareFactory func(serviceName string) Middleware

var (
	globalMu                  sync.RWMutex
	globalMiddlewareFactories []MiddlewareFactory
)

// RegisterGlobalMiddlewareFactories appends one or more factories to the
// global list. Clients created after the call instantiate the global
// middleware before their own. Nil factories are ignored.
func RegisterGlobalMiddlewareFactories(factories ...MiddlewareFactory) {
	globalMu.Lock()
	defer globalMu.Unlock()

	for _, f := range factories {
		if f != nil {
			globalMiddlewareFactories = append(globalMiddlewareFactories, f)
		}
	}
}

// ClearGlobalMiddlewareFactories clears the global middleware list.
func ClearGlobalMiddlewareFactories() {
	globalMu.Lock()
	globalMiddlewareFactories = nil
	globalMu.Unlock()
}

func globalFactories() []MiddlewareFactory {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return append([]MiddlewareFactory(nil), globalMiddlewareFactories...)
}
