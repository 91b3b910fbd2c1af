package flag

import (
	"errors"

	"github.com/achilleasa/katapayadi/config/store"
)

var errNoValue = errors.New("no configuration value")

// String provides a thread-safe flag wrapping a string value. Its value can be
// dynamically updated via a watched configuration key or manually set using its
// Set method.
type String struct {
	flagImpl
}

// NewString creates a string flag. If a non-empty config path is specified,
// the flag watches it on the supplied store and updates its value
// automatically. Passing a nil store together with a non-empty cfgPath panics.
func NewString(s *store.Store, cfgPath string) *String {
	f := &String{}
	f.init(s, f.mapCfgValue, cfgPath)
	return f
}

// Get the stored flag value. If no value has been set yet, Get blocks.
func (f *String) Get() string {
	return f.get().(string)
}

// Set the stored flag value.
func (f *String) Set(val string) {
	f.set(val)
}

func (f *String) mapCfgValue(cfg map[string]string) (interface{}, error) {
	v, ok := firstMapElement(cfg)
	if !ok {
		return nil, errNoValue
	}
	return v, nil
}
