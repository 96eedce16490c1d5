package errors

import (
	"errors"
	"fmt"
	"io/fs"
)

// EngineError is the structured error type for blockindex.
// It carries enough context for retry decisions, logging and CLI output.
type EngineError struct {
	// Code is the unique error code (e.g., "ERR_201_MISSING_PARENT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category derived from the code.
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with EngineError sentinels.
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *EngineError) WithDetail(key, value string) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

// New creates a new EngineError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an EngineError from an existing error.
// The error's message becomes the EngineError message.
func Wrap(code string, err error) *EngineError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons. Matching is by code only.
var (
	ErrValidation         = &EngineError{Code: ErrCodeValidation}
	ErrMissingParent      = &EngineError{Code: ErrCodeMissingParent}
	ErrNotFound           = &EngineError{Code: ErrCodeNotFound}
	ErrMalformedHierarchy = &EngineError{Code: ErrCodeMalformedHierarchy}
	ErrFileAccess         = &EngineError{Code: ErrCodeFileAccess}
	ErrPersistence        = &EngineError{Code: ErrCodePersistence}
	ErrIndex              = &EngineError{Code: ErrCodeIndex}
	ErrOrchestration      = &EngineError{Code: ErrCodeOrchestration}
)

// ValidationError creates an error for a malformed identifier or value.
func ValidationError(message string, cause error) *EngineError {
	return New(ErrCodeValidation, message, cause)
}

// MissingParentError reports a block whose declared parent is absent.
func MissingParentError(blockID, parentID string) *EngineError {
	return New(ErrCodeMissingParent, fmt.Sprintf("parent %s of block %s not found", parentID, blockID), nil).
		WithDetail("block_id", blockID).
		WithDetail("parent_id", parentID)
}

// NotFoundError reports a lookup of an unknown identifier.
func NotFoundError(kind, id string) *EngineError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s %s not found", kind, id), nil).
		WithDetail("id", id)
}

// MalformedHierarchyError reports an outline that cannot form a valid tree.
func MalformedHierarchyError(message string) *EngineError {
	return New(ErrCodeMalformedHierarchy, message, nil)
}

// FileAccessError reports a file that could not be read or inspected.
// File access errors are retryable unless the cause is a permission problem.
func FileAccessError(path string, cause error) *EngineError {
	code := ErrCodeFileAccess
	if errors.Is(cause, fs.ErrPermission) {
		code = ErrCodeFilePermission
	}
	return New(code, "cannot access "+path, cause).WithDetail("path", path)
}

// PersistenceError reports a structured store or ledger failure.
func PersistenceError(message string, cause error) *EngineError {
	return New(ErrCodePersistence, message, cause)
}

// IndexError reports a failure of a single downstream index.
func IndexError(target string, cause error) *EngineError {
	return New(ErrCodeIndex, "index "+target+" failed", cause).WithDetail("target", target)
}

// OrchestrationError reports a failure that aborts a whole import or sync run.
func OrchestrationError(message string, cause error) *EngineError {
	return New(ErrCodeOrchestration, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *EngineError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *EngineError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if any EngineError in the chain is retryable.
func IsRetryable(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code of the outermost EngineError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// HasCode reports whether any EngineError in the chain carries code.
func HasCode(err error, code string) bool {
	return errors.Is(err, &EngineError{Code: code})
}

// GetCategory extracts the category from an EngineError.
func GetCategory(err error) Category {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ""
}
