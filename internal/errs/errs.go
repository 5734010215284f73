// Package errs defines the closed error taxonomy the vector-store client and
// the indexing core use to decide whether a failure is fatal, retryable, or
// recoverable inline.
package errs

import (
	"errors"
	"fmt"

	"github.com/GetAdriAI/idxr/internal/domain"
)

// DuplicateIDError is raised by a vector-store adapter when an upsert
// collides with ids already present in the collection. IDs holds the
// offending subset.
type DuplicateIDError struct {
	IDs []string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate ids in upsert: %d ids", len(e.IDs))
}

// RateLimitedError signals the vector store asked the caller to back off.
type RateLimitedError struct {
	Message string
}

func (e *RateLimitedError) Error() string { return "rate limited: " + e.Message }

// TransientError wraps a retryable infrastructure failure (timeouts,
// temporary unavailability).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient store error: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// AuthFailedError signals missing or invalid credentials/endpoint
// configuration. Always fatal.
type AuthFailedError struct {
	Message string
}

func (e *AuthFailedError) Error() string { return "auth/config error: " + e.Message }

// InvalidRequestError signals a malformed request rejected by the store
// itself, not by this pipeline's own validation.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string { return "invalid request: " + e.Message }

// ValidationError signals a row failed its ModelSpec's validator.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// DataFormatError signals an unreadable or malformed source file.
type DataFormatError struct {
	Message string
}

func (e *DataFormatError) Error() string { return "data format error: " + e.Message }

// OverLimitError signals a single document remains over the hard token
// limit even after truncation.
type OverLimitError struct {
	DocumentID    string
	OriginalTokens int
}

func (e *OverLimitError) Error() string {
	return fmt.Sprintf("document %s remains over token limit (%d tokens) after truncation", e.DocumentID, e.OriginalTokens)
}

// Classify maps an error to its taxonomy class per the error handling
// design. Errors not recognised by any case default to ClassTransient,
// since an unrecognised infrastructure failure is safer treated as
// retryable than silently fatal.
func Classify(err error) domain.ErrorClass {
	if err == nil {
		return ""
	}
	var dup *DuplicateIDError
	var rl *RateLimitedError
	var tr *TransientError
	var auth *AuthFailedError
	var invalid *InvalidRequestError
	var val *ValidationError
	var df *DataFormatError
	var ol *OverLimitError

	switch {
	case errors.As(err, &dup):
		return domain.ClassDuplicateID
	case errors.As(err, &rl):
		return domain.ClassTransient
	case errors.As(err, &tr):
		return domain.ClassTransient
	case errors.As(err, &auth):
		return domain.ClassAuthConfig
	case errors.As(err, &invalid):
		return domain.ClassAuthConfig
	case errors.As(err, &val):
		return domain.ClassValidation
	case errors.As(err, &df):
		return domain.ClassDataFormat
	case errors.As(err, &ol):
		return domain.ClassOverLimit
	default:
		return domain.ClassTransient
	}
}

// IsTransient reports whether err's class is eligible for the Orchestrator's
// single post-pass retry.
func IsTransient(err error) bool {
	return Classify(err) == domain.ClassTransient
}
