// Package encoding defines the codecs that servers and clients use to turn
// endpoint request and response objects into the byte payloads carried by a
// transport.
//
// Codec implementations live in sub-packages and register themselves under a
// short name when imported, which lets the codec be selected from
// configuration:
//
//  import _ "github.com/achilleasa/katapayadi/encoding/msgpack"
//
//  codec, err := encoding.Lookup("msgpack")
package encoding

import (
	"fmt"
	"sort"
	"sync"
)

// Marshaler produces the byte representation of an object.
type Marshaler func(interface{}) ([]byte, error)

// Unmarshaler populates an object from its byte representation.
type Unmarshaler func([]byte, interface{}) error

// Codec is implemented by objects that can produce marshalers and
// unmarshalers for endpoint messages.
type Codec interface {
	Marshaler() Marshaler
	Unmarshaler() Unmarshaler
}

// Factory returns a new Codec instance.
type Factory func() Codec

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a codec factory available under name. Registering the same
// name twice or a nil factory panics.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("encoding: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("encoding: Register called twice for codec " + name)
	}
	registry[name] = factory
}

// Lookup returns a new instance of the codec registered under name.
func Lookup(name string) (Codec, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("encoding: unknown codec %q (forgotten import?)", name)
	}
	return factory(), nil
}

// Names returns the sorted names of the registered codecs.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
