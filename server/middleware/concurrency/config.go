package concurrency

import (
	"strings"
	"sync"
	"time"

	"github.com/achilleasa/katapayadi/config"
	"github.com/achilleasa/katapayadi/config/flag"
	"github.com/achilleasa/katapayadi/config/store"
)

var (
	// DefaultMaxConcurrent is used when the configuration does not provide a
	// positive concurrency limit.
	DefaultMaxConcurrent = 64

	// DefaultAcquireTimeout is used when the configuration does not provide a
	// positive acquire timeout.
	DefaultAcquireTimeout = 1 * time.Second
)

// Config is implemented by objects that can be passed to the limiter
// factories.
//
// GetMaxConcurrent returns the maximum number of requests processed
// concurrently.
//
// GetAcquireTimeout returns the maximum time a request waits for a slot.
type Config interface {
	GetMaxConcurrent() *flag.Uint32
	GetAcquireTimeout() *flag.Duration
}

// StaticConfig defines a fixed limiter configuration.
type StaticConfig struct {
	// The maximum number of concurrent requests. DefaultMaxConcurrent is used
	// if not positive.
	MaxConcurrent int

	// The maximum time a request waits for a slot. DefaultAcquireTimeout is
	// used if not positive.
	AcquireTimeout time.Duration
}

// GetMaxConcurrent returns the maximum number of concurrent requests.
func (c *StaticConfig) GetMaxConcurrent() *flag.Uint32 {
	f := flag.NewUint32(nil, "")
	if c.MaxConcurrent > 0 {
		f.Set(uint32(c.MaxConcurrent))
	}
	return f
}

// GetAcquireTimeout returns the maximum time a request waits for a slot.
func (c *StaticConfig) GetAcquireTimeout() *flag.Duration {
	f := flag.NewDuration(nil, "")
	if c.AcquireTimeout > 0 {
		f.Set(c.AcquireTimeout)
	}
	return f
}

// DynamicConfig defines a limiter configuration which is synced to a
// configuration store. It reads the following keys below its path:
//   - maxconcurrent
//   - acquiretimeout (a duration string such as "500ms")
//
// The flags backing the configuration are created on first use and shared
// by every limiter using the configuration. Close stops their updates.
type DynamicConfig struct {
	store *store.Store
	path  string

	once           sync.Once
	maxConcurrent  *flag.Uint32
	acquireTimeout *flag.Duration
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
		c.maxConcurrent = flag.NewUint32(c.store, c.path+"/maxconcurrent")
		c.acquireTimeout = flag.NewDuration(c.store, c.path+"/acquiretimeout")
	})
}

// GetMaxConcurrent returns the maximum number of concurrent requests.
func (c *DynamicConfig) GetMaxConcurrent() *flag.Uint32 {
	c.init()
	return c.maxConcurrent
}

// GetAcquireTimeout returns the maximum time a request waits for a slot.
func (c *DynamicConfig) GetAcquireTimeout() *flag.Duration {
	c.init()
	return c.acquireTimeout
}

// Close stops dynamic updates of the configuration flags.
func (c *DynamicConfig) Close() {
	c.init()
	c.maxConcurrent.CancelDynamicUpdates()
	c.acquireTimeout.CancelDynamicUpdates()
}

func intOrDefault(f *flag.Uint32, def int) int {
	if f.HasValue() && f.Get() > 0 {
		return int(f.Get())
	}
	return def
}

func durationOrDefault(f *flag.Duration, def time.Duration) time.Duration {
	if f.HasValue() && f.Get() > 0 {
		return f.Get()
	}
	return def
}
