package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamAI wraps failures of the model call or of normalizing its
	// reply. These are absorbed into a sentinel result.
	ErrUpstreamAI = errors.New("upstream ai error")
	// ErrPersistence wraps meal store failures. These are logged and never
	// surfaced.
	ErrPersistence = errors.New("persistence error")
	// ErrStorageRequired is returned when storage is mandatory and the
	// upload did not succeed.
	ErrStorageRequired = errors.New("image storage failed")
	// ErrHistoryUnavailable means no meal store is configured for reads.
	ErrHistoryUnavailable = errors.New("meal history not available")
)

// ValidationError is a client input problem. It is always surfaced.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err carries a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}
