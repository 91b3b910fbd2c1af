package transport

import "errors"

// Transport errors.
var (
	ErrTransportClosed        = errors.New("transport is closed")
	ErrTransportAlreadyDialed = errors.New("transport is already dialed; this operation can only be performed on a closed transport")
)

// Delivery errors. Transports map these to and from their wire
// representation so that they survive a round trip.
var (
	ErrNotFound           = errors.New("unknown receiver and/or endpoint")
	ErrTimeout            = errors.New("message delivery timed out")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrNotAuthorized      = errors.New("not authorized for this operation")
)

// KnownError maps an error message back to one of the delivery errors. It
// returns nil if msg does not match a delivery error.
func KnownError(msg string) error {
	for _, err := range []error{ErrNotFound, ErrTimeout, ErrServiceUnavailable, ErrNotAuthorized} {
		if err.Error() == msg {
			return err
		}
	}
	return nil
}
