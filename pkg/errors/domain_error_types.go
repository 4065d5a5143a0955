package errors

import (
	"fmt"
	"strings"
)

// Machine readable codes attached to AppErrors raised by the sync domain.
const (
	CodeInvalidDocument      = "INVALID_DOCUMENT"
	CodeUnencodableDocument  = "UNENCODABLE_DOCUMENT"
	CodeVersionConflict      = "VERSION_CONFLICT"
	CodeCategoryNotFound     = "CATEGORY_NOT_FOUND"
	CodeDuplicateCategory    = "DUPLICATE_CATEGORY_NAME"
	CodeProtectedCategory    = "PROTECTED_CATEGORY"
	CodeInvalidCategoryName  = "INVALID_CATEGORY_NAME"
	CodeEmptyPatch           = "EMPTY_PATCH"
	CodeDuplicateEmail       = "DUPLICATE_EMAIL"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeMigrationUnsettled   = "MIGRATION_UNSETTLED"
	CodeFieldValidation      = "FIELD_VALIDATION_ERROR"
	CodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
)

// FieldError is a single failed field check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors aggregates field level validation failures
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationErrors creates an empty collection
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{Errors: make([]FieldError, 0)}
}

// Add records a failed field
func (v *ValidationErrors) Add(field, message string) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	messages := make([]string, len(v.Errors))
	for i, err := range v.Errors {
		messages[i] = err.Message
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// ToMap groups messages by field for the response body
func (v *ValidationErrors) ToMap() map[string][]string {
	result := make(map[string][]string)
	for _, err := range v.Errors {
		field := err.Field
		if field == "" {
			field = "general"
		}
		result[field] = append(result[field], err.Message)
	}
	return result
}

// AsAppError converts the collection into a 400 AppError, or nil when empty.
func (v *ValidationErrors) AsAppError() *AppError {
	if !v.HasErrors() {
		return nil
	}
	fields := make(map[string]interface{}, len(v.Errors))
	for k, msgs := range v.ToMap() {
		fields[k] = msgs
	}
	return NewValidationError(v.Error()).
		WithCode(CodeFieldValidation).
		WithDetail("fields", fields)
}
