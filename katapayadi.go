// Package katapayadi exposes the Katapayadi transcoder as an RPC service.
//
// The transcoding rules live in the transcoder package and have no
// dependencies. The remaining packages provide the plumbing that makes the
// transcoder reachable by remote callers: codecs (encoding), transports
// (transport), an RPC server and client (server, client), a dynamic
// configuration system (config) and the service definition itself (service).
//
// This package holds the process-wide defaults shared by servers and clients.
package katapayadi

import (
	"github.com/achilleasa/katapayadi/encoding"
	"github.com/achilleasa/katapayadi/encoding/json"
	"github.com/achilleasa/katapayadi/internal/logger"
	"github.com/achilleasa/katapayadi/transport"
	"github.com/achilleasa/katapayadi/transport/http"
	"go.uber.org/zap"
)

var (
	// DefaultTransportFactory returns the transport used by servers and
	// clients that are not configured with an explicit transport. It
	// defaults to the HTTP transport.
	DefaultTransportFactory func() transport.Provider = http.SingletonFactory

	// DefaultCodecFactory returns the codec used by servers and clients that
	// are not configured with an explicit codec. It defaults to JSON.
	DefaultCodecFactory func() encoding.Codec = json.Codec
)

// Logger returns the logger shared by the service packages. It is a no-op
// logger unless SetLogger has been called.
func Logger() *zap.Logger {
	return logger.Get()
}

// SetLogger replaces the shared logger used by servers, clients and
// transports. Passing nil restores the no-op logger.
func SetLogger(l *zap.Logger) {
	logger.Set(l)
}
