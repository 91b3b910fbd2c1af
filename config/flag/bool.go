package flag

import (
	"errors"
	"strings"

	"github.com/achilleasa/katapayadi/config/store"
)

var errNotBoolean = errors.New("not a boolean value")

// Bool provides a thread-safe flag wrapping a boolean value.
//
// When processing dynamic updates, the values "true" (case-insensitive) and
// "1" are treated as true and the values "false" (case-insensitive) and "0"
// as false. Anything else is ignored.
type Bool struct {
	flagImpl
}

// NewBool creates a bool flag. See NewString for the semantics of cfgPath.
func NewBool(s *store.Store, cfgPath string) *Bool {
	f := &Bool{}
	f.init(s, f.mapCfgValue, cfgPath)
	return f
}

// Get the stored flag value. If no value has been set yet, Get blocks.
func (f *Bool) Get() bool {
	return f.get().(bool)
}

// Set the stored flag value.
func (f *Bool) Set(val bool) {
	f.set(val)
}

func (f *Bool) mapCfgValue(cfg map[string]string) (interface{}, error) {
	v, _ := firstMapElement(cfg)
	switch strings.ToLower(v) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return nil, errNotBoolean
	}
}
