// Package transport defines the message exchange layer used by the
// katapayadi RPC server and client.
//
// A transport moves opaque payloads between a client and the handler bound to
// a (version, service, endpoint) tuple. It knows nothing about the codec used
// to produce the payloads or about the endpoint semantics.
package transport

// Mode selects the side of a transport that is dialed or closed.
type Mode uint8

// The supported transport modes.
const (
	// ModeServer relays incoming requests to the bound handlers.
	ModeServer Mode = iota

	// ModeClient allows the transport to send outgoing requests.
	ModeClient
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeServer:
		return "server"
	case ModeClient:
		return "client"
	default:
		return "unknown"
	}
}

// A Handler responds to an RPC request.
//
// Process is invoked to handle an incoming request. The handler must update
// the response message with either a payload or an error before returning.
type Handler interface {
	Process(req ImmutableMessage, res Message)
}

// The HandlerFunc type is an adapter to allow the use of ordinary functions
// as RPC handlers.
type HandlerFunc func(req ImmutableMessage, res Message)

// Process calls f(req, res).
func (f HandlerFunc) Process(req ImmutableMessage, res Message) {
	f(req, res)
}

// Provider is implemented by transports. Transports are shared between
// servers and clients and keep a separate reference count for each Mode; the
// underlying resources are released when both counters drop to zero.
type Provider interface {
	// Dial connects the requested side of the transport. Dialing an already
	// dialed side only increments its reference count.
	Dial(mode Mode) error

	// Close decrements the reference count for the requested side and shuts
	// it down when the count reaches zero. Closing a side that is not dialed
	// returns ErrTransportClosed.
	Close(mode Mode) error

	// Bind registers a handler for requests sent to the (version, service,
	// endpoint) tuple. Binding the same tuple twice returns an error.
	Bind(version, service, endpoint string, handler Handler) error

	// Unbind removes a binding. Unbinding an unknown tuple has no effect.
	Unbind(version, service, endpoint string)

	// Request sends msg and returns a channel that receives exactly one
	// response before being closed.
	Request(msg Message) <-chan ImmutableMessage
}
