package scalar

import (
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypePipeline   ErrorType = "pipeline"
	ErrorTypeReference  ErrorType = "reference"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeExport     ErrorType = "export"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes
const (
	ErrCodeInvalidPath       = "INVALID_PATH"
	ErrCodeDegenerateScale   = "DEGENERATE_SCALE"
	ErrCodeRuleConflict      = "RULE_APPLICATION_CONFLICT"
	ErrCodeMalformedDocument = "MALFORMED_DOCUMENT"
	ErrCodeRuleInvalid       = "RULE_INVALID"
	ErrCodeRuleSetNotFound   = "RULESET_NOT_FOUND"
	ErrCodeSchemaInvalid     = "SCHEMA_INVALID"
	ErrCodeMissingReference  = "MISSING_REFERENCE"
	ErrCodeProviderFailed    = "PROVIDER_FAILED"
	ErrCodeStoreFailed       = "STORE_FAILED"
	ErrCodeExportFailed      = "EXPORT_FAILED"
	ErrCodeConnectionFailed  = "CONNECTION_FAILED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// ScalarError is the unified error type for the scaling engine and its
// adapters. The pipeline itself converts most of the taxonomy
// (invalid paths, degenerate scales, skipped rules) into warnings and
// returns errors only for conditions that prevent producing a document.
type ScalarError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Path    string         `json:"path,omitempty"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ScalarError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s:%s] path '%s': %s", e.Type, e.Code, e.Path, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *ScalarError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail entry.
func (e *ScalarError) WithDetail(key string, value any) *ScalarError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches an underlying cause.
func (e *ScalarError) WithCause(cause error) *ScalarError {
	e.Cause = cause
	return e
}

// WithField attaches field context.
func (e *ScalarError) WithField(field string) *ScalarError {
	e.Field = field
	return e
}

// NewScalarError creates a new ScalarError.
func NewScalarError(errorType ErrorType, code, message string) *ScalarError {
	return &ScalarError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewInvalidPathError reports a path that cannot be parsed or traversed.
func NewInvalidPathError(path, message string) *ScalarError {
	return &ScalarError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeInvalidPath,
		Message: message,
		Path:    path,
		Details: make(map[string]any),
	}
}

// NewMalformedDocumentError reports input that is not a JSON-compatible
// structure.
func NewMalformedDocumentError(message string, cause error) *ScalarError {
	return &ScalarError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeMalformedDocument,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewRuleValidationError reports a structurally invalid rule.
func NewRuleValidationError(kind RuleKind, message string) *ScalarError {
	return &ScalarError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeRuleInvalid,
		Message: message,
		Details: map[string]any{"rule_type": string(kind)},
	}
}

// NewRuleSetNotFoundError reports a missing stored rule set.
func NewRuleSetNotFoundError(id string) *ScalarError {
	return &ScalarError{
		Type:    ErrorTypeNotFound,
		Code:    ErrCodeRuleSetNotFound,
		Message: "rule set not found",
		Details: map[string]any{"id": id},
	}
}

// NewMissingReferenceError reports a required live reference the
// provider did not return.
func NewMissingReferenceError(kind string) *ScalarError {
	return &ScalarError{
		Type:    ErrorTypeReference,
		Code:    ErrCodeMissingReference,
		Message: fmt.Sprintf("no %s reference available", kind),
		Details: map[string]any{"kind": kind},
	}
}

// NewProviderError reports a failed reference provider call.
func NewProviderError(kind string, cause error) *ScalarError {
	return &ScalarError{
		Type:    ErrorTypeReference,
		Code:    ErrCodeProviderFailed,
		Message: fmt.Sprintf("failed to fetch %s references", kind),
		Cause:   cause,
		Details: map[string]any{"kind": kind},
	}
}

// NewStoreError reports a persistence failure.
func NewStoreError(message string, cause error) *ScalarError {
	return &ScalarError{
		Type:    ErrorTypeStorage,
		Code:    ErrCodeStoreFailed,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewExportError reports an export failure.
func NewExportError(message string, cause error) *ScalarError {
	return &ScalarError{
		Type:    ErrorTypeExport,
		Code:    ErrCodeExportFailed,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewConnectionError reports a failed database or provider connection.
func NewConnectionError(message string, cause error) *ScalarError {
	return &ScalarError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeConnectionFailed,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewInternalError reports an unexpected failure.
func NewInternalError(message string, cause error) *ScalarError {
	return &ScalarError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// IsInvalidPathError checks if an error is an invalid path error
func IsInvalidPathError(err error) bool {
	if se, ok := err.(*ScalarError); ok {
		return se.Code == ErrCodeInvalidPath
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	if se, ok := err.(*ScalarError); ok {
		return se.Type == ErrorTypeValidation
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	if se, ok := err.(*ScalarError); ok {
		return se.Type == ErrorTypeNotFound
	}
	return false
}

// IsStorageError checks if an error is a storage error
func IsStorageError(err error) bool {
	if se, ok := err.(*ScalarError); ok {
		return se.Type == ErrorTypeStorage
	}
	return false
}

// IsReferenceError checks if an error is a reference error
func IsReferenceError(err error) bool {
	if se, ok := err.(*ScalarError); ok {
		return se.Type == ErrorTypeReference
	}
	return false
}
