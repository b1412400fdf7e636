package catalog

import (
	"errors"
	"fmt"
)

// Validation error codes.
const (
	CodeMalformed   = "MALFORMED_FRAME"
	CodeMissingTag  = "MISSING_TAG"
	CodeUnknownTag  = "UNKNOWN_TAG"
	CodeInvalidData = "INVALID_DATA"
)

// ValidationError reports a frame rejected by a catalog.
type ValidationError struct {
	Code      string
	Direction Direction
	Tag       string
	Err       error
}

func (e *ValidationError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("catalog %s [%s]: %v", e.Direction, e.Code, e.Err)
	}
	return fmt.Sprintf("catalog %s [%s] %s: %v", e.Direction, e.Code, e.Tag, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidationCode returns the code of a *ValidationError, or "".
func ValidationCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
