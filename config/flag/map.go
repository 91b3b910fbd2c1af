package flag

import (
	"reflect"

	"github.com/achilleasa/katapayadi/config/store"
)

// Map provides a thread-safe flag wrapping a map[string]string value. When
// bound to a configuration path it holds the whole sub-tree rooted at that
// path, keyed by the relative path of each value.
type Map struct {
	flagImpl
}

// NewMap creates a map flag. See NewString for the semantics of cfgPath.
// Unlike the scalar flags, a map flag bound to a path that holds no values
// receives an empty map.
func NewMap(s *store.Store, cfgPath string) *Map {
	f := &Map{}
	f.checkEquality = func(v1, v2 interface{}) bool { return reflect.DeepEqual(v1, v2) }
	f.init(s, f.mapCfgValue, cfgPath)
	return f
}

// Get the stored flag value. If no value has been set yet, Get blocks. The
// returned map must not be modified.
func (f *Map) Get() map[string]string {
	return f.get().(map[string]string)
}

// Set the stored flag value.
func (f *Map) Set(val map[string]string) {
	f.set(val)
}

func (f *Map) mapCfgValue(cfg map[string]string) (interface{}, error) {
	return cfg, nil
}
