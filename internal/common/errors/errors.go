// internal/common/errors/errors.go
// Package errors provides the standardized error taxonomy of the discovery
// agent. Every external-call failure is mapped onto one of these codes so the
// pipeline can decide what is retryable and what is merely logged.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeNoProviderAvailable     ErrorCode = "NO_PROVIDER_AVAILABLE"
	ErrCodeAllProvidersFailed      ErrorCode = "ALL_PROVIDERS_FAILED"
	ErrCodeSchemaParseFailure      ErrorCode = "SCHEMA_PARSE_FAILURE"
	ErrCodeExternalValidationError ErrorCode = "EXTERNAL_VALIDATION_ERROR"
	ErrCodeQualityRejection        ErrorCode = "QUALITY_REJECTION"
	ErrCodeDuplicateProduct        ErrorCode = "DUPLICATE_PRODUCT"
	ErrCodePersistenceError        ErrorCode = "PERSISTENCE_ERROR"
)

// Sentinels for errors.Is checks. StandardError carries one of these in its
// chain so callers do not have to inspect codes by hand.
var (
	ErrNoProviderAvailable     = errors.New("NO_PROVIDER_AVAILABLE")
	ErrAllProvidersFailed      = errors.New("ALL_PROVIDERS_FAILED")
	ErrSchemaParseFailure      = errors.New("SCHEMA_PARSE_FAILURE")
	ErrExternalValidationError = errors.New("EXTERNAL_VALIDATION_ERROR")
	ErrQualityRejection        = errors.New("QUALITY_REJECTION")
	ErrDuplicateProduct        = errors.New("DUPLICATE_PRODUCT")
	ErrPersistenceError        = errors.New("PERSISTENCE_ERROR")
)

var sentinels = map[ErrorCode]error{
	ErrCodeNoProviderAvailable:     ErrNoProviderAvailable,
	ErrCodeAllProvidersFailed:      ErrAllProvidersFailed,
	ErrCodeSchemaParseFailure:      ErrSchemaParseFailure,
	ErrCodeExternalValidationError: ErrExternalValidationError,
	ErrCodeQualityRejection:        ErrQualityRejection,
	ErrCodeDuplicateProduct:        ErrDuplicateProduct,
	ErrCodePersistenceError:        ErrPersistenceError,
}

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes both the code sentinel and the wrapped cause to errors.Is.
func (e *StandardError) Unwrap() []error {
	out := []error{}
	if s, ok := sentinels[e.Code]; ok {
		out = append(out, s)
	}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// Cause returns the wrapped underlying error, if any.
func (e *StandardError) Cause() error {
	return e.cause
}

func newError(code ErrorCode, message string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewNoProviderAvailable is returned when a completion is requested but no
// LLM backend has credentials configured (or the forced one does not).
func NewNoProviderAvailable(provider string) *StandardError {
	e := newError(ErrCodeNoProviderAvailable, "no LLM provider is configured", false, nil)
	if provider != "" {
		e.Message = fmt.Sprintf("provider %q is not configured", provider)
		e.Metadata = map[string]interface{}{"provider": provider}
	}
	return e
}

// NewAllProvidersFailed wraps the last per-provider error after failover has
// exhausted every configured backend.
func NewAllProvidersFailed(last error) *StandardError {
	e := newError(ErrCodeAllProvidersFailed, "all configured LLM providers failed", true, last)
	if last != nil {
		e.Details = last.Error()
	}
	return e
}

// NewSchemaParseFailure is returned after the structured executor has
// exhausted its retry budget without producing schema-conformant JSON.
func NewSchemaParseFailure(attempts int, last error) *StandardError {
	e := newError(ErrCodeSchemaParseFailure,
		fmt.Sprintf("could not obtain schema-conformant JSON after %d attempts", attempts), false, last)
	if last != nil {
		e.Details = last.Error()
	}
	e.Metadata = map[string]interface{}{"attempts": attempts}
	return e
}

// NewExternalValidationError marks a wholesaler check that failed for
// network or parsing reasons. Treated as "not found", never fatal.
func NewExternalValidationError(source string, cause error) *StandardError {
	e := newError(ErrCodeExternalValidationError,
		fmt.Sprintf("external validation against %s failed", source), true, cause)
	if cause != nil {
		e.Details = cause.Error()
	}
	e.Metadata = map[string]interface{}{"source": source}
	return e
}

// NewQualityRejection records why a candidate was dropped by the verifier.
func NewQualityRejection(name string, issues []string) *StandardError {
	e := newError(ErrCodeQualityRejection,
		fmt.Sprintf("candidate %q rejected on quality", name), false, nil)
	e.Metadata = map[string]interface{}{"candidate": name, "issues": issues}
	return e
}

// NewDuplicateProduct records a dedup-index hit.
func NewDuplicateProduct(name string) *StandardError {
	e := newError(ErrCodeDuplicateProduct,
		fmt.Sprintf("candidate %q duplicates an existing catalog entry", name), false, nil)
	e.Metadata = map[string]interface{}{"candidate": name}
	return e
}

// NewPersistenceError wraps a catalog write failure. It aborts the current
// batch item only; the batch continues with the next candidate.
func NewPersistenceError(op string, cause error) *StandardError {
	e := newError(ErrCodePersistenceError, fmt.Sprintf("catalog %s failed", op), true, cause)
	if cause != nil {
		e.Details = cause.Error()
	}
	e.Metadata = map[string]interface{}{"operation": op}
	return e
}

// CodeOf extracts the ErrorCode from an error chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
