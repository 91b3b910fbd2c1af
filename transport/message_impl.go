package transport

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
)

var msgPool = sync.Pool{
	New: func() interface{} {
		return &GenericMessage{}
	},
}

// GenericMessage implements both Message and ImmutableMessage. Transports
// use it to build the messages they hand to handlers and clients. Instances
// are pooled; obtain them with MakeGenericMessage and release them with Close.
type GenericMessage struct {
	IDField               string
	SenderField           string
	SenderEndpointField   string
	ReceiverField         string
	ReceiverEndpointField string
	ReceiverVersionField  string
	HeadersField          map[string]string
	PayloadField          []byte
	ErrField              error
}

// MakeGenericMessage returns a reset message with a fresh ID.
func MakeGenericMessage() *GenericMessage {
	m := msgPool.Get().(*GenericMessage)
	*m = GenericMessage{
		IDField:      GenerateID(),
		HeadersField: make(map[string]string),
	}
	return m
}

// GenerateID returns a random (version 4) UUID to be used as a message ID.
func GenerateID() string {
	return uuid.New().String()
}

// Close returns the message to the pool.
func (m *GenericMessage) Close() error {
	msgPool.Put(m)
	return nil
}

// ID returns the message ID.
func (m *GenericMessage) ID() string { return m.IDField }

// Sender returns the name of the sending service.
func (m *GenericMessage) Sender() string { return m.SenderField }

// SenderEndpoint returns the sending endpoint.
func (m *GenericMessage) SenderEndpoint() string { return m.SenderEndpointField }

// Receiver returns the name of the receiving service.
func (m *GenericMessage) Receiver() string { return m.ReceiverField }

// ReceiverEndpoint returns the receiving endpoint.
func (m *GenericMessage) ReceiverEndpoint() string { return m.ReceiverEndpointField }

// ReceiverVersion returns the requested receiving service version.
func (m *GenericMessage) ReceiverVersion() string { return m.ReceiverVersionField }

// SetReceiverVersion sets the requested receiving service version.
func (m *GenericMessage) SetReceiverVersion(version string) {
	m.ReceiverVersionField = version
}

// Headers returns the message headers.
func (m *GenericMessage) Headers() map[string]string { return m.HeadersField }

// SetHeader sets a header using its canonical name.
func (m *GenericMessage) SetHeader(name, value string) {
	if m.HeadersField == nil {
		m.HeadersField = make(map[string]string)
	}
	m.HeadersField[http.CanonicalHeaderKey(name)] = value
}

// SetHeaders sets a batch of headers.
func (m *GenericMessage) SetHeaders(values map[string]string) {
	for k, v := range values {
		m.SetHeader(k, v)
	}
}

// Payload returns the message payload and error.
func (m *GenericMessage) Payload() ([]byte, error) {
	return m.PayloadField, m.ErrField
}

// SetPayload sets the message payload and error.
func (m *GenericMessage) SetPayload(payload []byte, err error) {
	m.PayloadField = payload
	m.ErrField = err
}

// MakeResponse returns a message addressed back to the sender of req.
func MakeResponse(req ImmutableMessage) *GenericMessage {
	res := MakeGenericMessage()
	res.SenderField = req.Receiver()
	res.SenderEndpointField = req.ReceiverEndpoint()
	res.ReceiverField = req.Sender()
	res.ReceiverEndpointField = req.SenderEndpoint()
	return res
}
