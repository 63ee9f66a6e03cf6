package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes the API distinguishes. Call sites
// wrap them with context; handlers dispatch with errors.Is.
var (
	// ErrUnknownKind reports a measurement kind absent from the catalog.
	ErrUnknownKind = errors.New("unknown measurement kind")
	// ErrKindNotEnabled reports a kind the service was not started with.
	ErrKindNotEnabled = errors.New("measurement kind not enabled")
	// ErrInvalidRange reports a query window whose start lies after its end.
	ErrInvalidRange = errors.New("invalid time range")
	// ErrStorageUnavailable reports that the store could not be reached or
	// refused a write.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// MalformedPayloadError reports a request body or parameter that does not
// match the expected shape.
type MalformedPayloadError struct {
	Field  string
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed payload: %s", e.Reason)
	}
	return fmt.Sprintf("malformed payload: field %q %s", e.Field, e.Reason)
}

// OutOfRangeError reports a value outside the bounds registered for its
// kind. Min and Max carry the allowed interval; the message names the bound
// that was violated.
type OutOfRangeError struct {
	Kind  string
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	if e.Value < e.Min {
		return fmt.Sprintf("value %g for kind %q below minimum %g", e.Value, e.Kind, e.Min)
	}
	return fmt.Sprintf("value %g for kind %q above maximum %g", e.Value, e.Kind, e.Max)
}
