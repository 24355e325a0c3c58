package model

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/rowmodel/rowmodel/internal/orm/validation"
)

// Error categories. Backend errors raised by a CRUD service are returned
// unchanged and belong to none of them.
var (
	// ErrConfiguration is returned when required static configuration is
	// missing, such as the CRUD service or persisted name of an entity
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidArgument is returned for malformed call shapes
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is returned when an operation needs instance state that
	// is not present, e.g. deleting an instance without an id
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation is the category of *ValidationError
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports every schema violation of one entity instance
type ValidationError struct {
	Entity string
	Issues []validation.FieldError
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	verrs := validation.ValidationErrors{Issues: e.Issues}
	return fmt.Sprintf("%s: %s", e.Entity, verrs.Error())
}

// Unwrap allows errors.Is(err, ErrValidation)
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Fields groups the violation messages by field path
func (e *ValidationError) Fields() map[string][]string {
	verrs := validation.ValidationErrors{Issues: e.Issues}
	return verrs.Fields()
}

// MarshalJSON implements json.Marshaler
func (e *ValidationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string                  `json:"error"`
		Entity string                  `json:"entity"`
		Issues []validation.FieldError `json:"issues"`
	}{
		Error:  "validation_failed",
		Entity: e.Entity,
		Issues: e.Issues,
	})
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
