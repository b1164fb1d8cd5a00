package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByFHIRID(ctx context.Context, fhirID string) (*Patient, error)
	GetDemographics(ctx context.Context, id uuid.UUID) (Demographics, error)
	UpdateDemographics(ctx context.Context, id uuid.UUID, d Demographics) error
}
