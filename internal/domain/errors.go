package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy of the delivery core. Concrete errors wrap one of these
// with fmt.Errorf("%w: ...") and are classified with errors.Is.
var (
	// ErrAuth is terminal for a connection attempt
	ErrAuth = errors.New("authentication failed")

	// ErrValidation is reported to the originating connection, nothing is persisted
	ErrValidation = errors.New("validation failed")

	// ErrPersistence blocks delivery: no live push without a stored record
	ErrPersistence = errors.New("persistence failed")

	// ErrCipher has persistence severity, content can be neither stored nor shown
	ErrCipher = errors.New("cipher failed")

	// ErrRouting means one destination connection is unreachable
	ErrRouting = errors.New("routing failed")
)

// Connection level errors
var (
	ErrConnectionClosed = fmt.Errorf("%w: connection closed", ErrRouting)
	ErrSendBufferFull   = fmt.Errorf("%w: send buffer full", ErrRouting)
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrUnknownEvent     = fmt.Errorf("%w: unknown event type", ErrValidation)
)

// PublicMessage maps an error to the text carried by an outbound error event.
// Validation and auth reasons are shown verbatim, anything else becomes fallback.
func PublicMessage(err error, fallback string) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAuth), errors.Is(err, ErrRateLimited):
		return err.Error()
	default:
		return fallback
	}
}
