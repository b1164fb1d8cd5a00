package visit

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("visit not found")

type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	GetByFHIRID(ctx context.Context, fhirID string) (*Visit, error)
	Update(ctx context.Context, v *Visit) error
	// FindMostRecent returns the patient's visit with the latest start, or
	// ErrNotFound.
	FindMostRecent(ctx context.Context, patientID uuid.UUID) (*Visit, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error)
}
