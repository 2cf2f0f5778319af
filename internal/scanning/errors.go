package scanning

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned before any network call when the uploaded
// payload's media type is not one of the accepted image formats.
var ErrInvalidInput = errors.New("unsupported receipt media type")

// ErrEmptyExtraction is returned when the model's response parsed cleanly
// but contained no usable line items.
var ErrEmptyExtraction = errors.New("no usable items extracted from receipt")

// ServiceError reports a failed call to the external extraction service.
type ServiceError struct {
	Backend string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s extraction service: %v", e.Backend, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// MalformedResponseError reports model output that could not be parsed into
// the expected structure. Raw carries the original text for diagnostics.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed extraction response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
