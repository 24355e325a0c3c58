package validation

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// FieldError represents a violated constraint at a path inside the validated data
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface
func (fe FieldError) Error() string {
	if fe.Path == "" {
		return fe.Message
	}
	return fmt.Sprintf("%s: %s", fe.Path, fe.Message)
}

// NewFieldError creates a new FieldError
func NewFieldError(path, message string) FieldError {
	return FieldError{
		Path:    path,
		Message: message,
	}
}

// ValidationErrors collects every violation found in one validation pass, in
// the order they were found
type ValidationErrors struct {
	Issues []FieldError `json:"issues"`
}

// NewValidationErrors creates a new ValidationErrors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds a validation error for a specific path
func (ve *ValidationErrors) Add(path, message string) {
	ve.Issues = append(ve.Issues, NewFieldError(path, message))
}

// HasErrors returns true if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Issues) > 0
}

// Count returns the total number of validation errors
func (ve *ValidationErrors) Count() int {
	return len(ve.Issues)
}

// Fields groups the messages by path
func (ve *ValidationErrors) Fields() map[string][]string {
	fields := make(map[string][]string, len(ve.Issues))
	for _, issue := range ve.Issues {
		fields[issue.Path] = append(fields[issue.Path], issue.Message)
	}
	return fields
}

// Text joins every issue into one line, separated by sep
func (ve *ValidationErrors) Text(sep string) string {
	messages := make([]string, 0, len(ve.Issues))
	for _, issue := range ve.Issues {
		messages = append(messages, issue.Error())
	}
	return strings.Join(messages, sep)
}

// Error implements the error interface
func (ve *ValidationErrors) Error() string {
	if !ve.HasErrors() {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", ve.Text(", "))
}

// MarshalJSON implements json.Marshaler for custom JSON serialization
func (ve *ValidationErrors) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string       `json:"error"`
		Issues []FieldError `json:"issues"`
	}{
		Error:  "validation_failed",
		Issues: ve.Issues,
	})
}
