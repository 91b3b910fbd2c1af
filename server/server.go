// Package server exposes a set of endpoints over a transport.
package server

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/achilleasa/katapayadi"
	"github.com/achilleasa/katapayadi/encoding"
	"github.com/achilleasa/katapayadi/transport"
	"go.uber.org/zap"
)

var errServeAlreadyCalled = errors.New("server is already listening for incoming requests")

type ctxKey int

const (
	ctxKeyService ctxKey = iota
	ctxKeyEndpoint
)

// ServiceFromContext returns the name of the service handling the request
// associated with ctx.
func ServiceFromContext(ctx context.Context) string {
	name, _ := ctx.Value(ctxKeyService).(string)
	return name
}

// EndpointFromContext returns the name of the endpoint handling the request
// associated with ctx.
func EndpointFromContext(ctx context.Context) string {
	name, _ := ctx.Value(ctxKeyEndpoint).(string)
	return name
}

// A PanicHandler is invoked by the server when a panic is recovered while
// processing an incoming request.
type PanicHandler func(error)

// Server binds a set of endpoints to a transport and invokes the endpoint
// handlers to process incoming requests.
//
// The server uses a codec to unmarshal request payloads into the objects
// accepted by the endpoint handlers and to marshal their responses. Unless
// overridden by the WithCodec and WithTransport options, the server uses
// katapayadi.DefaultCodecFactory and katapayadi.DefaultTransportFactory.
//
// Panics inside endpoint handlers or middleware are recovered and passed to
// the panic handler; the request fails with an error. The default handler
// logs the error and the stack trace.
type Server struct {
	mutex sync.Mutex

	transport    transport.Provider
	codec        encoding.Codec
	logger       *zap.Logger
	panicHandler PanicHandler

	serviceName    string
	serviceVersion string

	endpoints []*Endpoint

	// Closed by Close; nil while the server is not listening.
	doneChan chan struct{}
}

// New creates a new server instance for the given service name and applies
// any supplied server options.
func New(serviceName string, options ...Option) (*Server, error) {
	srv := &Server{
		serviceName: serviceName,
	}

	for _, opt := range options {
		if err := opt(srv); err != nil {
			return nil, err
		}
	}

	srv.setDefaults()
	return srv, nil
}

// RegisterEndpoints adds one or more endpoints to the set of endpoints exposed
// by this server instance. An error is returned if any of the endpoints fails
// validation; in that case none of them is registered.
func (s *Server) RegisterEndpoints(endpoints ...*Endpoint) error {
	for _, ep := range endpoints {
		if err := ep.validate(); err != nil {
			return err
		}
	}

	s.mutex.Lock()
	s.endpoints = append(s.endpoints, endpoints...)
	s.mutex.Unlock()
	return nil
}

// Start binds the registered endpoints to the transport and dials it in
// server mode. Unlike Listen, Start does not block.
func (s *Server) Start() error {
	_, err := s.start()
	return err
}

// Listen starts the server and blocks until Close is invoked.
func (s *Server) Listen() error {
	return s.Serve(context.Background())
}

// Serve starts the server and blocks until ctx is done or Close is invoked.
// When ctx is done, Serve closes the server before returning.
func (s *Server) Serve(ctx context.Context) error {
	done, err := s.start()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		s.Close()
	case <-done:
	}
	return nil
}

func (s *Server) start() (chan struct{}, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.doneChan != nil {
		return nil, errServeAlreadyCalled
	}

	for index, ep := range s.endpoints {
		if err := s.transport.Bind(s.serviceVersion, s.serviceName, ep.Name, s.generateHandler(ep)); err != nil {
			s.unbind(s.endpoints[:index])
			return nil, err
		}
		s.logger.Debug("registered endpoint",
			zap.String("service", s.serviceName),
			zap.String("endpoint", ep.Name),
			zap.String("version", s.serviceVersion),
		)
	}

	if err := s.transport.Dial(transport.ModeServer); err != nil {
		s.unbind(s.endpoints)
		return nil, err
	}

	s.doneChan = make(chan struct{})
	s.logger.Info("server listening",
		zap.String("service", s.serviceName),
		zap.String("version", s.serviceVersion),
		zap.Int("endpoints", len(s.endpoints)),
	)
	return s.doneChan, nil
}

// Close shuts down a listening server. Close waits for in-flight requests to
// complete and unblocks any pending Listen or Serve calls.
//
// Calling Close on a server that is not listening has no effect.
func (s *Server) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.doneChan == nil {
		return
	}

	s.unbind(s.endpoints)
	if err := s.transport.Close(transport.ModeServer); err != nil {
		s.logger.Warn("error closing server transport", zap.String("service", s.serviceName), zap.Error(err))
	}

	close(s.doneChan)
	s.doneChan = nil
	s.logger.Info("server closed", zap.String("service", s.serviceName))
}

// unbind removes the transport bindings for endpoints. It must be called
// while holding the mutex.
func (s *Server) unbind(endpoints []*Endpoint) {
	for _, ep := range endpoints {
		s.transport.Unbind(s.serviceVersion, s.serviceName, ep.Name)
	}
}

// setDefaults applies default settings for fields not set by a server option.
func (s *Server) setDefaults() {
	if s.transport == nil {
		s.transport = katapayadi.DefaultTransportFactory()
	}

	if s.codec == nil {
		s.codec = katapayadi.DefaultCodecFactory()
	}

	if s.logger == nil {
		s.logger = katapayadi.Logger()
	}

	if s.panicHandler == nil {
		s.panicHandler = s.logPanic
	}
}

// generateHandler generates a transport handler for an endpoint. The handler
// runs the global and endpoint middleware, unmarshals the request using the
// server codec, invokes the endpoint handler and marshals its response. Any
// panic is recovered and passed to the server panic handler.
//
// This method assumes that the endpoint has been properly validated.
func (s *Server) generateHandler(ep *Endpoint) transport.Handler {
	handlerType := reflect.TypeOf(ep.Handler)
	handlerFn := reflect.ValueOf(ep.Handler)

	reqType := handlerType.In(1).Elem()
	resType := handlerType.In(2).Elem()

	marshaler := s.codec.Marshaler()
	unmarshaler := s.codec.Unmarshaler()

	reqPool := sync.Pool{
		New: func() interface{} { return reflect.New(reqType) },
	}
	resPool := sync.Pool{
		New: func() interface{} { return reflect.New(resType) },
	}

	var chain Middleware = MiddlewareFunc(func(ctx context.Context, req transport.ImmutableMessage, res transport.Message) {
		reqObj := reqPool.Get().(reflect.Value)
		resObj := resPool.Get().(reflect.Value)
		defer func() {
			reqPool.Put(reqObj)
			resPool.Put(resObj)
		}()

		// Pooled objects may hold values from previous requests.
		reqObj.Elem().Set(reflect.Zero(reqType))
		resObj.Elem().Set(reflect.Zero(resType))

		if payload, _ := req.Payload(); len(payload) != 0 {
			if err := unmarshaler(payload, reqObj.Interface()); err != nil {
				res.SetPayload(nil, err)
				return
			}
		}

		ret := handlerFn.Call([]reflect.Value{reflect.ValueOf(ctx), reqObj, resObj})
		if err, _ := ret[0].Interface().(error); err != nil {
			res.SetPayload(nil, err)
			return
		}

		res.SetPayload(marshaler(resObj.Interface()))
	})

	// Wrap in reverse order so that the first factory runs first.
	for index := len(ep.Middleware) - 1; index >= 0; index-- {
		if ep.Middleware[index] != nil {
			chain = ep.Middleware[index](chain)
		}
	}

	global := globalMiddleware()
	for index := len(global) - 1; index >= 0; index-- {
		if global[index] != nil {
			chain = global[index](chain)
		}
	}

	return transport.HandlerFunc(func(req transport.ImmutableMessage, res transport.Message) {
		defer func() {
			if r := recover(); r != nil {
				err, isErr := r.(error)
				if !isErr {
					err = errors.New(fmt.Sprint(r))
				}
				s.panicHandler(err)
				res.SetPayload(nil, fmt.Errorf("remote endpoint panicked: %w", err))
			}
		}()

		ctx := context.WithValue(context.Background(), ctxKeyService, s.serviceName)
		ctx = context.WithValue(ctx, ctxKeyEndpoint, ep.Name)
		chain.Handle(ctx, req, res)
	})
}

// logPanic is the default PanicHandler.
func (s *Server) logPanic(err error) {
	s.logger.Error("recovered from panic",
		zap.String("service", s.serviceName),
		zap.Error(err),
		zap.Stack("stacktrace"),
	)
}
