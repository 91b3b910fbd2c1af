package client

import (
	"errors"

	"github.com/achilleasa/katapayadi/encoding"
	"github.com/achilleasa/katapayadi/transport"
	"go.uber.org/zap"
)

// Option applies a configuration option to a client instance.
type Option func(c *Client) error

// WithTransport configures the client to use a specific transport instead
// of the default transport.
func WithTransport(tr transport.Provider) Option {
	return func(c *Client) error {
		if tr == nil {
			return errors.New("client transport cannot be nil")
		}
		c.transport = tr
		return nil
	}
}

// WithCodec configures the client to use a specific codec instance instead
// of the default codec.
func WithCodec(codec encoding.Codec) Option {
	return func(c *Client) error {
		if codec == nil {
			return errors.New("client codec cannot be nil")
		}
		c.codec = codec
		return nil
	}
}

// WithCodecName configures the client to use the codec registered under name.
func WithCodecName(name string) Option {
	return func(c *Client) error {
		codec, err := encoding.Lookup(name)
		if err != nil {
			return err
		}
		c.codec = codec
		return nil
	}
}

// WithVersion sets the version of the remote service that requests are
// addressed to.
func WithVersion(version string) Option {
	return func(c *Client) error {
		c.version = version
		return nil
	}
}

// WithLogger configures the logger used by the client.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithMiddleware configures the client to use a set of client-specific
// middleware. They run after any global middleware. Nil factories are
// ignored.
func WithMiddleware(factories ...MiddlewareFactory) Option {
	return func(c *Client) error {
		for _, f := range factories {
			if f != nil {
				c.factories = append(c.factories, f)
			}
		}
		return nil
	}
}
