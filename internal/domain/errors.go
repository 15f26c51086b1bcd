package domain

import (
	"errors"
	"fmt"
)

// Error classes. Concrete errors wrap one of these so callers can branch with errors.Is.
var (
	// ErrValidation marks bad input to a public operation.
	ErrValidation = errors.New("validation error")

	// ErrPrecondition marks misuse such as opening a missing cache file or
	// provisioning a schema twice.
	ErrPrecondition = errors.New("precondition failed")

	// ErrStructural marks an upstream dataset whose shape does not match the
	// recognized observation schema.
	ErrStructural = errors.New("structural error")

	// ErrNotExist is returned (wrapped in ErrPrecondition) when a cache file is missing.
	ErrNotExist = errors.New("does not exist")

	// ErrAlreadyExists is returned (wrapped in ErrPrecondition) when a cache
	// file or table is already present.
	ErrAlreadyExists = errors.New("already exists")
)

// ResponseCode values reported in the Synoptic SUMMARY block.
const (
	ResponseCodeOK = 1

	// ResponseCodeNoResults is returned for an unknown station identifier and
	// for a radius query with no stations in range.
	ResponseCodeNoResults = 2
)

// UnknownStationError reports a station identifier the weather API does not know.
type UnknownStationError struct {
	StationID string
}

func (e *UnknownStationError) Error() string {
	return fmt.Sprintf("stid %s is not a valid station", e.StationID)
}

// Is makes UnknownStationError match ErrValidation.
func (e *UnknownStationError) Is(target error) bool {
	return target == ErrValidation
}

// APIError reports a failed request to the external weather API. StatusCode is
// the HTTP status; ResponseCode is the SUMMARY code when the body was decoded.
type APIError struct {
	Endpoint     string
	StatusCode   int
	ResponseCode int
	Message      string
}

func (e *APIError) Error() string {
	if e.ResponseCode != 0 {
		return fmt.Sprintf("synoptic %s: response code %d: %s", e.Endpoint, e.ResponseCode, e.Message)
	}
	return fmt.Sprintf("synoptic %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Validationf builds an error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Structuralf builds an error wrapping ErrStructural.
func Structuralf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructural, fmt.Sprintf(format, args...))
}

// Preconditionf builds an error wrapping ErrPrecondition and the given cause.
func Preconditionf(cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrPrecondition, cause, fmt.Sprintf(format, args...))
}
