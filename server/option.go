package server

import (
	"errors"

	"github.com/achilleasa/katapayadi/encoding"
	"github.com/achilleasa/katapayadi/transport"
	"go.uber.org/zap"
)

// Option applies a configuration option to a server instance.
type Option func(s *Server) error

// WithTransport configures the server to use a specific transport instead
// of the default transport.
func WithTransport(tr transport.Provider) Option {
	return func(s *Server) error {
		if tr == nil {
			return errors.New("server transport cannot be nil")
		}
		s.transport = tr
		return nil
	}
}

// WithCodec configures the server to use a specific codec instance instead
// of the default codec.
func WithCodec(codec encoding.Codec) Option {
	return func(s *Server) error {
		if codec == nil {
			return errors.New("server codec cannot be nil")
		}
		s.codec = codec
		return nil
	}
}

// WithCodecName configures the server to use the codec registered under name.
func WithCodecName(name string) Option {
	return func(s *Server) error {
		codec, err := encoding.Lookup(name)
		if err != nil {
			return err
		}
		s.codec = codec
		return nil
	}
}

// WithPanicHandler configures the server to use a user-defined panic handler.
func WithPanicHandler(handler PanicHandler) Option {
	return func(s *Server) error {
		s.panicHandler = handler
		return nil
	}
}

// WithLogger configures the logger used by the server.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithVersion defines the version of the service provided by the server.
// The version value is passed to Bind calls to the underlying transport.
func WithVersion(version string) Option {
	return func(s *Server) error {
		s.serviceVersion = version
		return nil
	}
}
