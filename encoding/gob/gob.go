// Package gob provides a codec for encoding and decoding of data using the gob format.
package gob

import (
	"bytes"
	"encoding/gob"

	"github.com/achilleasa/katapayadi/encoding"
)

// Name is the name the codec is registered under.
const Name = "gob"

type gobCodec struct{}

func (c *gobCodec) Marshaler() encoding.Marshaler {
	return func(value interface{}) ([]byte, error) {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(value); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

func (c *gobCodec) Unmarshaler() encoding.Unmarshaler {
	return func(data []byte, target interface{}) error {
		return gob.NewDecoder(bytes.NewReader(data)).Decode(target)
	}
}

// Codec returns a codec that implements encoding and decoding of gob data.
func Codec() encoding.Codec {
	return &gobCodec{}
}

func init() {
	encoding.Register(Name, Codec)
}
