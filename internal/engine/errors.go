package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/rostersync/internal/ir"
)

// ApplyError reports an operation that could not be applied.
//
// A failed operation leaves the roster exactly as it was before the
// operation started; the apply loop continues with the next operation.
type ApplyError struct {
	// Code identifies the error category.
	Code ApplyErrorCode

	// Op is the type of the failed operation.
	Op ir.OpType

	// Hashed identifies the affected student, when there is one.
	Hashed string

	// Err is the underlying cause.
	Err error
}

// ApplyErrorCode categorizes apply errors.
type ApplyErrorCode string

const (
	// ErrCodeCipherFailed indicates a field could not be decrypted or encrypted.
	ErrCodeCipherFailed ApplyErrorCode = "CIPHER_FAILED"

	// ErrCodeMissingKey indicates an operation needed the field key and none is set.
	ErrCodeMissingKey ApplyErrorCode = "MISSING_KEY"

	// ErrCodeUnknownOperation indicates an operation the engine cannot apply.
	ErrCodeUnknownOperation ApplyErrorCode = "UNKNOWN_OPERATION"
)

// Error implements the error interface.
func (e *ApplyError) Error() string {
	if e.Hashed != "" {
		return fmt.Sprintf("%s: apply %s (student=%s): %v", e.Code, e.Op, e.Hashed, e.Err)
	}
	return fmt.Sprintf("%s: apply %s: %v", e.Code, e.Op, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// IsCipherError returns true if err is an apply failure caused by the cipher.
// Uses errors.As to handle wrapped errors.
func IsCipherError(err error) bool {
	var ae *ApplyError
	if errors.As(err, &ae) {
		return ae.Code == ErrCodeCipherFailed
	}
	return false
}

// IsMissingKey returns true if err reports a missing field key.
func IsMissingKey(err error) bool {
	var ae *ApplyError
	if errors.As(err, &ae) {
		return ae.Code == ErrCodeMissingKey
	}
	return false
}

func cipherError(op ir.Operation, hashed string, err error) *ApplyError {
	return &ApplyError{Code: ErrCodeCipherFailed, Op: opType(op), Hashed: hashed, Err: err}
}

func opType(op ir.Operation) ir.OpType {
	if op == nil {
		return ""
	}
	return op.OpType()
}
