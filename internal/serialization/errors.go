package serialization

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrChecksumMismatch  = errors.New("checksum mismatch: file may be corrupted")
	ErrTensorNotFound    = errors.New("tensor not found")
	ErrUnsupportedDType  = errors.New("unsupported dtype")
	ErrTruncatedFile     = errors.New("file truncated")
	ErrHeaderTooLarge    = errors.New("header exceeds maximum size")
	ErrInvalidTensorName = errors.New("invalid tensor name")
)

// ValidationError provides detailed information about validation failures.
type ValidationError struct {
	Type    string // Type of error (e.g., "offset_overlap", "out_of_bounds")
	Tensor  string // Primary tensor name involved
	Tensor2 string // Secondary tensor name (for overlap errors)
	Details string // Additional details
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Tensor2 != "" {
		return fmt.Sprintf("%s: tensors %q and %q: %s", e.Type, e.Tensor, e.Tensor2, e.Details)
	}
	if e.Tensor != "" {
		return fmt.Sprintf("%s: tensor %q: %s", e.Type, e.Tensor, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Details)
}

// Is lets errors.Is(err, ErrInvalidTensorName) match name validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidTensorName && (e.Type == "invalid_name" || e.Type == "name_too_long")
}
