// Package memory provides a transport that exchanges messages between
// servers and clients living in the same process. It is used by tests and by
// the command line tool when no network transport is requested.
package memory

import (
	"fmt"
	"sync"

	"github.com/achilleasa/katapayadi/transport"
)

var _ transport.Provider = (*Transport)(nil)

type binding struct {
	id      int
	handler transport.Handler
}

// Transport implements an in-memory transport. Each request is processed by
// its own goroutine.
//
// Bindings are keyed by "service/endpoint" and, when a version is supplied,
// by "service-version/endpoint". The first versioned binding of an endpoint
// is also reachable by requests that do not ask for a specific version.
type Transport struct {
	mutex     sync.RWMutex
	serverRef int
	clientRef int
	nextID    int
	bindings  map[string]binding
	inFlight  sync.WaitGroup
}

// New creates a new in-memory transport.
func New() *Transport {
	return &Transport{
		bindings: make(map[string]binding),
	}
}

// Factory returns a new in-memory transport as a transport.Provider.
func Factory() transport.Provider {
	return New()
}

func bindingKey(version, service, endpoint string) string {
	if version != "" {
		return fmt.Sprintf("%s-%s/%s", service, version, endpoint)
	}
	return fmt.Sprintf("%s/%s", service, endpoint)
}

// Dial increments the reference count for the requested mode.
func (t *Transport) Dial(mode transport.Mode) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if mode == transport.ModeServer {
		t.serverRef++
	} else {
		t.clientRef++
	}
	return nil
}

// Close decrements the reference count for the requested mode. When the
// server side is closed, Close waits for in-flight requests to complete.
func (t *Transport) Close(mode transport.Mode) error {
	t.mutex.Lock()

	ref := &t.clientRef
	if mode == transport.ModeServer {
		ref = &t.serverRef
	}

	if *ref == 0 {
		t.mutex.Unlock()
		return transport.ErrTransportClosed
	}
	*ref--
	drain := mode == transport.ModeServer && *ref == 0
	t.mutex.Unlock()

	if drain {
		t.inFlight.Wait()
	}
	return nil
}

// Bind registers a handler for a (version, service, endpoint) tuple.
func (t *Transport) Bind(version, service, endpoint string, handler transport.Handler) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	key := bindingKey(version, service, endpoint)
	if _, exists := t.bindings[key]; exists {
		return fmt.Errorf(
			"binding (version: %q, service: %q, endpoint: %q) already defined",
			version,
			service,
			endpoint,
		)
	}

	t.nextID++
	b := binding{id: t.nextID, handler: handler}
	t.bindings[key] = b

	if version != "" {
		alias := bindingKey("", service, endpoint)
		if _, exists := t.bindings[alias]; !exists {
			t.bindings[alias] = b
		}
	}
	return nil
}

// Unbind removes a binding together with any versionless alias pointing to it.
func (t *Transport) Unbind(version, service, endpoint string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	key := bindingKey(version, service, endpoint)
	b, exists := t.bindings[key]
	if !exists {
		return
	}
	delete(t.bindings, key)

	alias := bindingKey("", service, endpoint)
	if a, ok := t.bindings[alias]; ok && a.id == b.id {
		delete(t.bindings, alias)
	}
}

// Request dispatches msg to the bound handler in a separate goroutine.
func (t *Transport) Request(msg transport.Message) <-chan transport.ImmutableMessage {
	resChan := make(chan transport.ImmutableMessage, 1)

	t.mutex.RLock()
	defer t.mutex.RUnlock()

	res := transport.MakeResponse(msg)
	switch {
	case t.clientRef == 0:
		res.SetPayload(nil, transport.ErrTransportClosed)
	case t.serverRef == 0:
		res.SetPayload(nil, transport.ErrServiceUnavailable)
	default:
		b, exists := t.bindings[bindingKey(msg.ReceiverVersion(), msg.Receiver(), msg.ReceiverEndpoint())]
		if !exists {
			res.SetPayload(nil, transport.ErrNotFound)
			break
		}

		t.inFlight.Add(1)
		go func() {
			defer t.inFlight.Done()
			b.handler.Process(msg, res)
			resChan <- res
			close(resChan)
		}()
		return resChan
	}

	resChan <- res
	close(resChan)
	return resChan
}
