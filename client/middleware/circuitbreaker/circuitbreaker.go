// Package circuitbreaker provides client middleware that implements the
// circuit-breaker pattern as described in
// https://martinfowler.com/bliki/CircuitBreaker.html.
//
// The breaker is a state machine with three states:
//
//   - Closed. Requests are forwarded to the remote endpoint and response
//     errors that match the configured trip errors are counted. Once the
//     number of consecutive trip errors reaches the trip threshold, the
//     breaker opens.
//
//   - Open. Requests fail immediately without reaching the remote endpoint.
//     After the cool off period elapses, the breaker becomes half-open.
//
//   - HalfOpen. Requests are forwarded as probes. A single failed probe
//     opens the breaker again; reaching the reset threshold of successful
//     probes closes it.
//
// Breakers can use a static configuration or a dynamic one backed by the
// config flags.
package circuitbreaker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/achilleasa/katapayadi"
	"github.com/achilleasa/katapayadi/client"
	"github.com/achilleasa/katapayadi/config/flag"
	"github.com/achilleasa/katapayadi/transport"
	"go.uber.org/zap"
)

// State represents the circuit-breaker state.
type State int8

// The possible circuit-breaker states.
const (
	Closed State = iota
	Open
	HalfOpen
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// SingletonFactory returns a middleware factory whose clients share a single
// breaker.
func SingletonFactory(cfg Config) client.MiddlewareFactory {
	cb := newCircuitBreaker(cfg)
	return func(string) client.Middleware {
		return cb
	}
}

// Factory returns a middleware factory that creates a new breaker for each
// client.
func Factory(cfg Config) client.MiddlewareFactory {
	return func(serviceName string) client.Middleware {
		cb := newCircuitBreaker(cfg)
		cb.serviceName = serviceName
		return cb
	}
}

var _ client.Middleware = (*circuitBreaker)(nil)

type circuitBreaker struct {
	serviceName     string
	openError       error
	tripErrors      []error
	tripThreshold   *flag.Uint32
	resetThreshold  *flag.Uint32
	coolOffPeriod   *flag.Duration
	stateChangeChan chan<- State
	now             func() time.Time

	mutex            sync.Mutex
	curState         State
	trippedAt        time.Time
	trackedErrors    uint32
	trackedSuccesses uint32
}

func newCircuitBreaker(cfg Config) *circuitBreaker {
	cb := &circuitBreaker{
		openError:       cfg.GetOpenError(),
		tripErrors:      cfg.GetTripErrors(),
		tripThreshold:   cfg.GetTripThreshold(),
		resetThreshold:  cfg.GetResetThreshold(),
		coolOffPeriod:   cfg.GetCoolOffPeriod(),
		stateChangeChan: cfg.GetStateChangeChan(),
		now:             time.Now,
	}

	if cb.openError == nil {
		cb.openError = transport.ErrServiceUnavailable
	}

	if cb.tripErrors == nil {
		cb.tripErrors = DefaultTripErrors
	}

	return cb
}

// Pre rejects the request while the breaker is open.
func (cb *circuitBreaker) Pre(ctx context.Context, _ transport.Message) (context.Context, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.curState != Open {
		return ctx, nil
	}

	if cb.now().Sub(cb.trippedAt) < durationOrDefault(cb.coolOffPeriod, DefaultCoolOffPeriod) {
		return ctx, cb.openError
	}

	cb.trackedSuccesses = 0
	cb.setState(HalfOpen)
	return ctx, nil
}

// Post tracks the outcome of the request.
func (cb *circuitBreaker) Post(_ context.Context, _, res transport.ImmutableMessage) {
	_, err := res.Payload()

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.curState {
	case Closed:
		if !cb.isTripError(err) {
			cb.trackedErrors = 0
			return
		}

		cb.trackedErrors++
		if cb.trackedErrors < uint32OrDefault(cb.tripThreshold, DefaultTripThreshold) {
			return
		}

		cb.trippedAt = cb.now()
		cb.setState(Open)
	case HalfOpen:
		if err != nil {
			cb.trippedAt = cb.now()
			cb.setState(Open)
			return
		}

		cb.trackedSuccesses++
		if cb.trackedSuccesses < uint32OrDefault(cb.resetThreshold, DefaultResetThreshold) {
			return
		}

		cb.trackedErrors = 0
		cb.setState(Closed)
	}
}

// setState must be called while holding the mutex.
func (cb *circuitBreaker) setState(state State) {
	prev := cb.curState
	cb.curState = state

	katapayadi.Logger().Info("circuit-breaker state changed",
		zap.String("service", cb.serviceName),
		zap.Stringer("from", prev),
		zap.Stringer("to", state),
	)

	if cb.stateChangeChan != nil {
		select {
		case cb.stateChangeChan <- state:
		default:
		}
	}
}

// isTripError returns true if err counts towards tripping the breaker.
func (cb *circuitBreaker) isTripError(err error) bool {
	if err == nil {
		return false
	}

	for _, tripErr := range cb.tripErrors {
		if errors.Is(err, tripErr) || strings.Contains(err.Error(), tripErr.Error()) {
			return true
		}
	}
	return false
}
