package flag

import (
	"strconv"

	"github.com/achilleasa/katapayadi/config/store"
)

// Int64 provides a thread-safe flag wrapping an int64 value.
type Int64 struct {
	flagImpl
}

// NewInt64 creates an int64 flag. See NewString for the semantics of cfgPath.
func NewInt64(s *store.Store, cfgPath string) *Int64 {
	f := &Int64{}
	f.init(s, f.mapCfgValue, cfgPath)
	return f
}

// Get the stored flag value. If no value has been set yet, Get blocks.
func (f *Int64) Get() int64 {
	return f.get().(int64)
}

// Set the stored flag value.
func (f *Int64) Set(val int64) {
	f.set(val)
}

func (f *Int64) mapCfgValue(cfg map[string]string) (interface{}, error) {
	v, _ := firstMapElement(cfg)
	return strconv.ParseInt(v, 10, 64)
}

// Uint32 provides a thread-safe flag wrapping a uint32 value.
type Uint32 struct {
	flagImpl
}

// NewUint32 creates a uint32 flag. See NewString for the semantics of cfgPath.
func NewUint32(s *store.Store, cfgPath string) *Uint32 {
	f := &Uint32{}
	f.init(s, f.mapCfgValue, cfgPath)
	return f
}

// Get the stored flag value. If no value has been set yet, Get blocks.
func (f *Uint32) Get() uint32 {
	return f.get().(uint32)
}

// Set the stored flag value.
func (f *Uint32) Set(val uint32) {
	f.set(val)
}

func (f *Uint32) mapCfgValue(cfg map[string]string) (interface{}, error) {
	v, _ := firstMapElement(cfg)
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return nil, err
	}
	return uint32(n), nil
}
