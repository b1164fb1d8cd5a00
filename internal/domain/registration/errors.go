package registration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrSaveInProgress  = errors.New("a save for this patient is already in progress")
	ErrVisitNotFound   = errors.New("visit not found")
	ErrPatientNotFound = errors.New("patient not found")
)

// FieldError names one invalid field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists the required fields a save found missing or invalid.
// Nothing is written when it is returned.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// PartialSaveError reports a save whose visit write succeeded and whose
// demographic write failed. The visit is not rolled back.
type PartialSaveError struct {
	VisitID            uuid.UUID
	RegistrationNumber string
	Err                error
}

func (e *PartialSaveError) Error() string {
	return fmt.Sprintf("visit %s saved but patient demographics were not updated: %v", e.VisitID, e.Err)
}

func (e *PartialSaveError) Unwrap() error { return e.Err }
