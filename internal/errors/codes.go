// Package errors provides the structured error taxonomy for blockindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Validation errors
//   - 2XX: Hierarchy errors (page/block structure)
//   - 3XX: File access errors
//   - 4XX: Persistence errors
//   - 5XX: Downstream index errors
//   - 6XX: Orchestration errors
//   - 7XX: Configuration errors
//   - 9XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryValidation indicates malformed identifiers or values.
	CategoryValidation Category = "VALIDATION"
	// CategoryHierarchy indicates a violated page/block structure.
	CategoryHierarchy Category = "HIERARCHY"
	// CategoryFileAccess indicates a file that could not be read or inspected.
	CategoryFileAccess Category = "FILE_ACCESS"
	// CategoryPersistence indicates a structured store failure.
	CategoryPersistence Category = "PERSISTENCE"
	// CategoryIndex indicates a downstream index failure.
	CategoryIndex Category = "INDEX"
	// CategoryOrchestration indicates a failure that aborts a whole run.
	CategoryOrchestration Category = "ORCHESTRATION"
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Validation errors (100-199)
	ErrCodeValidation = "ERR_101_VALIDATION"

	// Hierarchy errors (200-299)
	ErrCodeMissingParent      = "ERR_201_MISSING_PARENT"
	ErrCodeNotFound           = "ERR_202_NOT_FOUND"
	ErrCodeMalformedHierarchy = "ERR_203_MALFORMED_HIERARCHY"

	// File access errors (300-399)
	ErrCodeFileAccess     = "ERR_301_FILE_ACCESS"
	ErrCodeFilePermission = "ERR_302_FILE_PERMISSION"
	ErrCodeFileLocked     = "ERR_303_FILE_LOCKED"

	// Persistence errors (400-499)
	ErrCodePersistence = "ERR_401_PERSISTENCE"

	// Index errors (500-599)
	ErrCodeIndex = "ERR_501_INDEX"

	// Orchestration errors (600-699)
	ErrCodeOrchestration = "ERR_601_ORCHESTRATION"
	ErrCodeInvalidRoot   = "ERR_602_INVALID_ROOT"

	// Config errors (700-799)
	ErrCodeConfigInvalid = "ERR_701_CONFIG_INVALID"

	// Internal errors (900-999)
	ErrCodeInternal = "ERR_901_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_MISSING_PARENT")
	switch code[4] {
	case '1':
		return CategoryValidation
	case '2':
		return CategoryHierarchy
	case '3':
		return CategoryFileAccess
	case '4':
		return CategoryPersistence
	case '5':
		return CategoryIndex
	case '6':
		return CategoryOrchestration
	case '7':
		return CategoryConfig
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryOrchestration, CategoryConfig:
		return SeverityFatal
	case CategoryIndex:
		// A failed index is degraded, the other indexes keep serving.
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeFileAccess, ErrCodeFileLocked:
		return true
	default:
		return false
	}
}
