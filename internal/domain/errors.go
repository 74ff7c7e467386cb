package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTenantNotFound indicates an extensible record has no discoverable
	// tenant. This is a wiring defect on the caller's side, not bad input.
	ErrTenantNotFound = errors.New("tenant not found for extensible record")

	// ErrSchemaVersionConflict indicates two publishes raced to the same
	// version number. Callers may retry once under a fresh transaction.
	ErrSchemaVersionConflict = errors.New("extension schema version conflict")

	// ErrSchemaNotFound indicates a point lookup missed.
	ErrSchemaNotFound = errors.New("extension schema not found")

	// ErrRecordNotFound indicates a record point lookup missed.
	ErrRecordNotFound = errors.New("extensible record not found")
)

// SchemaInvalidError reports that a schema body is not well-formed JSON
// Schema. Raised at publish time, before any write.
type SchemaInvalidError struct {
	Detail string
}

func (e *SchemaInvalidError) Error() string {
	return fmt.Sprintf("invalid JSON Schema: %s", e.Detail)
}

// FieldViolation describes one failed field inside an attribute bag.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ExtendedDataValidationError reports that an attribute bag failed coercion
// or schema validation. It carries field-level detail for the caller.
type ExtendedDataValidationError struct {
	Violations []FieldViolation
}

func (e *ExtendedDataValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "extended data validation failed"
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		if v.Field == "" {
			parts[i] = v.Message
			continue
		}
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return "extended data validation failed: " + strings.Join(parts, "; ")
}

// ViolationFor returns the first violation registered for the named field.
func (e *ExtendedDataValidationError) ViolationFor(field string) (FieldViolation, bool) {
	for _, v := range e.Violations {
		if v.Field == field {
			return v, true
		}
	}
	return FieldViolation{}, false
}
