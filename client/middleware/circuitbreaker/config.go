package circuitbreaker

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/achilleasa/katapayadi/config"
	"github.com/achilleasa/katapayadi/config/flag"
	"github.com/achilleasa/katapayadi/config/store"
	"github.com/achilleasa/katapayadi/transport"
)

var (
	// DefaultTripErrors is used when the configuration does not define a
	// list of trip errors. It treats unavailable services, timeouts and
	// remote endpoint panics as candidates for tripping the breaker.
	DefaultTripErrors = []error{
		transport.ErrServiceUnavailable,
		transport.ErrTimeout,
		errors.New("remote endpoint panicked"),
	}

	// DefaultTripThreshold is used when the configuration does not provide
	// a positive trip threshold.
	DefaultTripThreshold = 5

	// DefaultResetThreshold is used when the configuration does not provide
	// a positive reset threshold.
	DefaultResetThreshold = 1

	// DefaultCoolOffPeriod is used when the configuration does not provide
	// a positive cool off period.
	DefaultCoolOffPeriod = 1 * time.Second
)

// Config is implemented by objects that can be passed to the circuit-breaker
// factories.
//
// GetOpenError returns the error used to reject requests while the breaker
// is open.
//
// GetTripErrors returns the errors that count towards tripping the breaker.
//
// GetTripThreshold returns the number of consecutive trip errors that open
// the breaker.
//
// GetCoolOffPeriod returns the time the breaker stays open before letting
// probe requests through.
//
// GetResetThreshold returns the number of successful probe requests that
// close a half-open breaker.
//
// GetStateChangeChan returns a channel that receives the new state whenever
// the breaker changes state.
type Config interface {
	GetOpenError() error
	GetTripErrors() []error
	GetTripThreshold() *flag.Uint32
	GetCoolOffPeriod() *flag.Duration
	GetResetThreshold() *flag.Uint32
	GetStateChangeChan() chan<- State
}

// StaticConfig defines a fixed circuit-breaker configuration.
type StaticConfig struct {
	// The error returned for rejected requests. Defaults to
	// transport.ErrServiceUnavailable.
	OpenError error

	// Errors that count towards tripping the breaker. A response error
	// matches if errors.Is reports a match or if its message contains the
	// message of a trip error. Defaults to DefaultTripErrors.
	TripErrors []error

	// The number of consecutive trip errors that open the breaker.
	TripThreshold int

	// The time the breaker stays open before switching to half-open.
	CoolOffPeriod time.Duration

	// The number of successful probes that close a half-open breaker.
	ResetThreshold int

	// If set, the breaker publishes its new state here whenever it changes.
	// Writes are non-blocking; states are dropped if no receiver is ready.
	StateChangeChan chan<- State
}

// GetOpenError returns the error used to reject requests.
func (c *StaticConfig) GetOpenError() error { return c.OpenError }

// GetTripErrors returns the errors that count towards tripping the breaker.
func (c *StaticConfig) GetTripErrors() []error { return c.TripErrors }

// GetTripThreshold returns the number of consecutive trip errors that open
// the breaker.
func (c *StaticConfig) GetTripThreshold() *flag.Uint32 {
	return staticUint32(c.TripThreshold)
}

// GetCoolOffPeriod returns the time the breaker stays open.
func (c *StaticConfig) GetCoolOffPeriod() *flag.Duration {
	f := flag.NewDuration(nil, "")
	if c.CoolOffPeriod > 0 {
		f.Set(c.CoolOffPeriod)
	}
	return f
}

// GetResetThreshold returns the number of successful probes that close a
// half-open breaker.
func (c *StaticConfig) GetResetThreshold() *flag.Uint32 {
	return staticUint32(c.ResetThreshold)
}

// GetStateChangeChan returns the state change channel.
func (c *StaticConfig) GetStateChangeChan() chan<- State { return c.StateChangeChan }

func staticUint32(v int) *flag.Uint32 {
	f := flag.NewUint32(nil, "")
	if v > 0 {
		f.Set(uint32(v))
	}
	return f
}

// DynamicConfig defines a circuit-breaker configuration that is synced to a
// configuration store. It reads the following keys below its path:
//   - trip_threshold
//   - cool_off_period (a duration string such as "5s")
//   - reset_threshold
//
// The backing flags are created on first use and shared by every breaker
// using the configuration. Close stops their updates.
type DynamicConfig struct {
	// The error returned for rejected requests. Defaults to
	// transport.ErrServiceUnavailable.
	OpenError error

	// Errors that count towards tripping the breaker. Defaults to
	// DefaultTripErrors.
	TripErrors []error

	// If set, the breaker publishes its new state here whenever it changes.
	StateChangeChan chan<- State

	store *store.Store
	path  string

	once           sync.Once
	tripThreshold  *flag.Uint32
	coolOffPeriod  *flag.Duration
	resetThreshold *flag.Uint32
}

// NewDynamicConfig creates a configuration that reads its values below
// cfgPath in s. If s is nil, the global config store is used.
func NewDynamicConfig(s *store.Store, cfgPath string) *DynamicConfig {
	if s == nil {
		s = &config.Store
	}
	return &DynamicConfig{
		store: s,
		path:  strings.TrimSuffix(cfgPath, "/"),
	}
}

func (c *DynamicConfig) init() {
	c.once.Do(func() {
		c.tripThreshold = flag.NewUint32(c.store, c.path+"/trip_threshold")
		c.coolOffPeriod = flag.NewDuration(c.store, c.path+"/cool_off_period")
		c.resetThreshold = flag.NewUint32(c.store, c.path+"/reset_threshold")
	})
}

// GetOpenError returns the error used to reject requests.
func (c *DynamicConfig) GetOpenError() error { return c.OpenError }

// GetTripErrors returns the errors that count towards tripping the breaker.
func (c *DynamicConfig) GetTripErrors() []error { return c.TripErrors }

// GetTripThreshold returns the number of consecutive trip errors that open
// the breaker.
func (c *DynamicConfig) GetTripThreshold() *flag.Uint32 {
	c.init()
	return c.tripThreshold
}

// GetCoolOffPeriod returns the time the breaker stays open.
func (c *DynamicConfig) GetCoolOffPeriod() *flag.Duration {
	c.init()
	return c.coolOffPeriod
}

// GetResetThreshold returns the number of successful probes that close a
// half-open breaker.
func (c *DynamicConfig) GetResetThreshold() *flag.Uint32 {
	c.init()
	return c.resetThreshold
}

// GetStateChangeChan returns the state change channel.
func (c *DynamicConfig) GetStateChangeChan() chan<- State { return c.StateChangeChan }

// Close stops dynamic updates of the configuration flags.
func (c *DynamicConfig) Close() {
	c.init()
	c.tripThreshold.CancelDynamicUpdates()
	c.coolOffPeriod.CancelDynamicUpdates()
	c.resetThreshold.CancelDynamicUpdates()
}

func uint32OrDefault(f *flag.Uint32, def int) uint32 {
	if f.HasValue() && f.Get() > 0 {
		return f.Get()
	}
	return uint32(def)
}

func durationOrDefault(f *flag.Duration, def time.Duration) time.Duration {
	if f.HasValue() && f.Get() > 0 {
		return f.Get()
	}
	return def
}
