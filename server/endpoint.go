package server

import (
	"context"
	"errors"
	"reflect"
)

var (
	errEndpointHasNoName           = errors.New("endpoint name cannot be empty")
	errEndpointHandlerBadSignature = errors.New("endpoint handler should be a function with signature func(context.Context, interface{}, interface{}) error")
	errEndpointHandlerBadArg0      = errors.New("endpoint handler should accept a context.Context value as its first argument")
	errEndpointHandlerBadArg1      = errors.New("endpoint handler should accept a pointer to a struct as its second argument")
	errEndpointHandlerBadArg2      = errors.New("endpoint handler should accept a pointer to a struct as its third argument")

	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// Endpoint defines a service endpoint which is exposed by the server via a transport.
type Endpoint struct {
	// The name of this endpoint.
	Name string

	// The endpoint's description.
	Description string

	// The handler responsible for serving endpoint requests. Handlers must
	// have the following signature:
	//
	//  func(ctx context.Context, req *RequestType, res *ResponseType) error
	//
	// where RequestType and ResponseType are structs describing the endpoint
	// messages. The server uses reflection to unmarshal the request payload
	// into req and to marshal res once the handler returns.
	//
	// The server recycles request and response objects. Handlers must not
	// retain them after returning.
	Handler interface{}

	// Optional middleware wrapping the handler. If the slice contains
	// factories [f1, f2, f3] then the endpoint handler is wrapped as
	// f1(f2(f3(handler))).
	Middleware []MiddlewareFactory
}

// validate ensures that the endpoint definition is valid.
func (ep *Endpoint) validate() error {
	if ep.Name == "" {
		return errEndpointHasNoName
	}

	handlerType := reflect.TypeOf(ep.Handler)
	if handlerType == nil ||
		handlerType.Kind() != reflect.Func ||
		handlerType.NumIn() != 3 ||
		handlerType.NumOut() != 1 ||
		handlerType.Out(0) != errorType {
		return errEndpointHandlerBadSignature
	}

	if !handlerType.In(0).Implements(ctxType) {
		return errEndpointHandlerBadArg0
	}

	if handlerType.In(1).Kind() != reflect.Ptr || handlerType.In(1).Elem().Kind() != reflect.Struct {
		return errEndpointHandlerBadArg1
	}

	if handlerType.In(2).Kind() != reflect.Ptr || handlerType.In(2).Elem().Kind() != reflect.Struct {
		return errEndpointHandlerBadArg2
	}

	return nil
}
