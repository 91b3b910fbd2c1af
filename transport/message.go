package transport

import "io"

// ImmutableMessage is a read-only message.
type ImmutableMessage interface {
	// Messages must be closed once they are no longer in use.
	io.Closer

	// ID returns a UUID for this message.
	ID() string

	// Sender returns the name of the service that sent the message.
	Sender() string

	// SenderEndpoint returns the endpoint where the message originated.
	SenderEndpoint() string

	// Receiver returns the name of the service that will receive the message.
	Receiver() string

	// ReceiverEndpoint returns the endpoint where the message should be delivered.
	ReceiverEndpoint() string

	// ReceiverVersion returns the requested version of the receiving service.
	ReceiverVersion() string

	// Headers returns the message headers.
	Headers() map[string]string

	// Payload returns the message payload or the error it carries.
	Payload() ([]byte, error)
}

// Message is a message whose headers and payload can be modified. Clients
// use it to send requests and servers to populate responses.
type Message interface {
	ImmutableMessage

	// SetPayload sets either the content or the error carried by the message.
	SetPayload(payload []byte, err error)

	// SetHeader sets a header value. Header names are canonicalized the same
	// way as http.CanonicalHeaderKey does.
	SetHeader(name, value string)

	// SetHeaders calls SetHeader for each entry of headers.
	SetHeaders(headers map[string]string)

	// SetReceiverVersion sets the requested version of the receiving service.
	SetReceiverVersion(string)
}
