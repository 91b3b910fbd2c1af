package flag

import (
	"time"

	"github.com/achilleasa/katapayadi/config/store"
)

// Duration provides a thread-safe flag wrapping a time.Duration value.
// Dynamic updates are parsed with time.ParseDuration ("250ms", "1m30s").
type Duration struct {
	flagImpl
}

// NewDuration creates a duration flag. See NewString for the semantics of
// cfgPath.
func NewDuration(s *store.Store, cfgPath string) *Duration {
	f := &Duration{}
	f.init(s, f.mapCfgValue, cfgPath)
	return f
}

// Get the stored flag value. If no value has been set yet, Get blocks.
func (f *Duration) Get() time.Duration {
	return f.get().(time.Duration)
}

// Set the stored flag value.
func (f *Duration) Set(val time.Duration) {
	f.set(val)
}

func (f *Duration) mapCfgValue(cfg map[string]string) (interface{}, error) {
	v, _ := firstMapElement(cfg)
	return time.ParseDuration(v)
}
