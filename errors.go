package remote

import "errors"

// Service errors. Errors delivered to callbacks and futures can be matched
// with errors.Is.
var (
	// ErrInvalidClient is returned when a result callback is supplied for a
	// client that is not registered with the service.
	ErrInvalidClient = errors.New("remote: client is not registered")

	// ErrNotConnected is reported when a message cannot be written because
	// there is no live transport, and to calls flushed by a disconnect.
	ErrNotConnected = errors.New("remote: not connected")

	// ErrAuthenticationFailed is reported when the server rejects the password.
	ErrAuthenticationFailed = errors.New("remote: authentication failed")

	// ErrTimeout is reported to calls that received no reply within the callback timeout.
	ErrTimeout = errors.New("remote: request timed out")

	// ErrCancelled is reported to calls removed by Cancel, CancelClient or
	// by unregistering their owning client.
	ErrCancelled = errors.New("remote: request cancelled")

	// ErrTransport wraps dial, TLS, protocol and write failures.
	ErrTransport = errors.New("remote: transport error")

	// ErrClosed is reported once the service has been closed.
	ErrClosed = errors.New("remote: service closed")

	// ErrNotOnControlLoop is the panic value raised when a mutating method is
	// called from a goroutine other than the service control loop.
	ErrNotOnControlLoop = errors.New("remote: called off the control loop")
)
