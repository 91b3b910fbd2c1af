// Package client implements an RPC client for services exposed by the server
// package.
package client

import (
	"context"
	"io"
	"sync"

	"github.com/achilleasa/katapayadi"
	"github.com/achilleasa/katapayadi/encoding"
	"github.com/achilleasa/katapayadi/server"
	"github.com/achilleasa/katapayadi/transport"
	"go.uber.org/zap"
)

// Client implements an RPC client.
//
// The client uses a codec to marshal request objects into the payload of the
// low-level messages exchanged by the transport and to unmarshal response
// payloads. Unless overridden by the WithCodec and WithTransport options,
// the client uses katapayadi.DefaultCodecFactory and
// katapayadi.DefaultTransportFactory.
//
// The client dials its transport in client mode when created; Close
// releases it.
type Client struct {
	transport transport.Provider
	codec     encoding.Codec
	logger    *zap.Logger

	serviceName string
	version     string

	factories  []MiddlewareFactory
	middleware []Middleware

	marshaler   encoding.Marshaler
	unmarshaler encoding.Unmarshaler

	closeOnce sync.Once
	mutex     sync.RWMutex
	closed    bool
}

// New creates a client for the named remote service, applies any supplied
// options and dials the transport.
func New(serviceName string, options ...Option) (*Client, error) {
	c := &Client{
		serviceName: serviceName,
	}

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	c.setDefaults()

	if err := c.transport.Dial(transport.ModeClient); err != nil {
		return nil, err
	}

	c.marshaler, c.unmarshaler = c.codec.Marshaler(), c.codec.Unmarshaler()

	for _, f := range append(globalFactories(), c.factories...) {
		if m := f(serviceName); m != nil {
			c.middleware = append(c.middleware, m)
		}
	}

	return c, nil
}

// setDefaults applies default settings for fields not set by a client option.
func (c *Client) setDefaults() {
	if c.transport == nil {
		c.transport = katapayadi.DefaultTransportFactory()
	}

	if c.codec == nil {
		c.codec = katapayadi.DefaultCodecFactory()
	}

	if c.logger == nil {
		c.logger = katapayadi.Logger()
	}
}

// Close releases the client's reference to the transport and closes any
// middleware that implements io.Closer. Requests issued after Close fail with
// transport.ErrTransportClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mutex.Lock()
		c.closed = true
		c.mutex.Unlock()

		for _, m := range c.middleware {
			if closer, ok := m.(io.Closer); ok {
				if cErr := closer.Close(); cErr != nil {
					c.logger.Warn("error closing client middleware", zap.String("service", c.serviceName), zap.Error(cErr))
				}
			}
		}

		err = c.transport.Close(transport.ModeClient)
	})
	return err
}

// Request marshals reqObj, sends it to the remote endpoint and unmarshals
// the response into resObj.
//
// Request blocks until a response arrives or ctx is done. In the latter case
// it fails with transport.ErrTimeout. A request that times out on the client
// side may still be executed by the remote endpoint.
//
// When ctx belongs to a request being handled by a server endpoint, the
// outgoing request is tagged with that service and endpoint as its sender.
func (c *Client) Request(ctx context.Context, endpoint string, reqObj, resObj interface{}) error {
	c.mutex.RLock()
	closed := c.closed
	c.mutex.RUnlock()
	if closed {
		return transport.ErrTransportClosed
	}

	if ctx == nil {
		ctx = context.Background()
	}

	req := transport.MakeGenericMessage()
	req.ReceiverField = c.serviceName
	req.ReceiverEndpointField = endpoint
	req.ReceiverVersionField = c.version
	req.SenderField = server.ServiceFromContext(ctx)
	req.SenderEndpointField = server.EndpointFromContext(ctx)

	payload, err := c.marshaler(reqObj)
	if err != nil {
		req.Close()
		return err
	}
	req.SetPayload(payload, nil)

	// Run the Pre hooks, tracking the contexts so that each Post hook sees
	// the context returned by its own Pre.
	ctxs := make([]context.Context, 0, len(c.middleware))
	for _, m := range c.middleware {
		mctx, err := m.Pre(ctx, req)
		if mctx != nil {
			ctx = mctx
		}
		if err != nil {
			res := transport.MakeResponse(req)
			res.SetPayload(nil, err)
			c.post(ctxs, req, res)
			res.Close()
			req.Close()
			return err
		}
		ctxs = append(ctxs, ctx)
	}

	resChan := c.transport.Request(req)

	var res transport.ImmutableMessage
	select {
	case res = <-resChan:
	case <-ctx.Done():
		timeoutRes := transport.MakeResponse(req)
		timeoutRes.SetPayload(nil, transport.ErrTimeout)
		c.post(ctxs, req, timeoutRes)
		timeoutRes.Close()

		c.logger.Debug("request timed out",
			zap.String("service", c.serviceName),
			zap.String("endpoint", endpoint),
			zap.String("request_id", req.ID()),
		)

		// The transport may still be using req; release both messages once
		// the late response arrives.
		go func() {
			if late, ok := <-resChan; ok {
				late.Close()
			}
			req.Close()
		}()
		return transport.ErrTimeout
	}

	defer func() {
		res.Close()
		req.Close()
	}()

	c.post(ctxs, req, res)

	resData, err := res.Payload()
	if err != nil {
		return err
	}

	if resObj == nil || len(resData) == 0 {
		return nil
	}
	return c.unmarshaler(resData, resObj)
}

// post invokes the Post hook of the middleware whose Pre hook has run, in
// reverse order.
func (c *Client) post(ctxs []context.Context, req, res transport.ImmutableMessage) {
	for index := len(ctxs) - 1; index >= 0; index-- {
		c.middleware[index].Post(ctxs[index], req, res)
	}
}
