package visit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetVisitByFHIRID(ctx context.Context, fhirID string) (*Visit, error) {
	return s.repo.GetByFHIRID(ctx, fhirID)
}

func (s *Service) ListVisitsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error) {
	if patientID == uuid.Nil {
		return nil, 0, fmt.Errorf("patient id is required")
	}
	visits, total, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list visits: %w", err)
	}
	return visits, total, nil
}
