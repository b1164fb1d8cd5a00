package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/registration/internal/domain/patient"
	"github.com/ehr/registration/internal/domain/visit"
	"github.com/ehr/registration/internal/platform/metrics"
)

// VisitStore persists visits. visit.Repository satisfies it.
type VisitStore interface {
	FindMostRecent(ctx context.Context, patientID uuid.UUID) (*visit.Visit, error)
	GetByID(ctx context.Context, id uuid.UUID) (*visit.Visit, error)
	Create(ctx context.Context, v *visit.Visit) error
	Update(ctx context.Context, v *visit.Visit) error
}

// PatientStore reads and writes patient demographics. patient.Repository
// satisfies it.
type PatientStore interface {
	GetDemographics(ctx context.Context, id uuid.UUID) (patient.Demographics, error)
	UpdateDemographics(ctx context.Context, id uuid.UUID, d patient.Demographics) error
}

// NumberGenerator mints externally unique registration numbers.
type NumberGenerator interface {
	Next(ctx context.Context, vt VisitType) (string, error)
}

// Draft is a registration being edited: the record plus what Load knew
// about the stored state.
type Draft struct {
	PatientID            uuid.UUID            `json:"patient_id"`
	VisitID              *uuid.UUID           `json:"visit_id,omitempty"`
	RegistrationNumber   string               `json:"registration_number,omitempty"`
	Registration         VisitRegistration    `json:"registration"`
	BaselineDemographics patient.Demographics `json:"baseline_demographics"`
}

type SaveResult struct {
	VisitID             uuid.UUID `json:"visit_id"`
	FHIRID              string    `json:"fhir_id"`
	RegistrationNumber  string    `json:"registration_number"`
	Created             bool      `json:"created"`
	DemographicsUpdated bool      `json:"demographics_updated"`
}

const (
	loadFresh = "fresh"
	loadPrior = "prior_visit"

	saveCreated    = "created"
	saveUpdated    = "updated"
	saveInvalid    = "invalid"
	saveConflict   = "conflict"
	saveStoreError = "store_error"
	savePartial    = "partial"
)

type Service struct {
	visits   VisitStore
	patients PatientStore
	numbers  NumberGenerator
	guard    SaveGuard
	metrics  *metrics.Registration
	logger   zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithSaveGuard(g SaveGuard) ServiceOption {
	return func(s *Service) { s.guard = g }
}

func WithMetrics(m *metrics.Registration) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService wires the upsert controller. Without WithSaveGuard, saves are
// serialized per patient within this process only.
func NewService(visits VisitStore, patients PatientStore, numbers NumberGenerator, opts ...ServiceOption) *Service {
	s := &Service{
		visits:   visits,
		patients: patients,
		numbers:  numbers,
		guard:    NewMemorySaveGuard(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load builds the draft for a patient's next save. The most recent visit and
// the patient's demographics are fetched concurrently; without a prior visit
// the draft is a fresh ambulatory registration.
func (s *Service) Load(ctx context.Context, patientID uuid.UUID) (*Draft, error) {
	var (
		prior *visit.Visit
		demo  patient.Demographics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.visits.FindMostRecent(gctx, patientID)
		if errors.Is(err, visit.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find most recent visit: %w", err)
		}
		prior = v
		return nil
	})
	g.Go(func() error {
		d, err := s.patients.GetDemographics(gctx, patientID)
		if errors.Is(err, patient.ErrNotFound) {
			return ErrPatientNotFound
		}
		if err != nil {
			return fmt.Errorf("get patient demographics: %w", err)
		}
		demo = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	draft := &Draft{PatientID: patientID, BaselineDemographics: demo}
	if prior == nil {
		draft.Registration = NewVisitRegistration(demo)
		s.metrics.IncrementLoad(loadFresh)
		return draft, nil
	}

	reg, issues := DecodeWithIssues(prior.Extensions)
	if len(issues) > 0 {
		s.logger.Debug().
			Str("patient_id", patientID.String()).
			Str("visit_id", prior.ID.String()).
			Interface("issues", issues).
			Msg("defaulted malformed registration nodes")
		s.metrics.AddDecodeDefaults(len(issues))
	}
	if !reg.AdmissionClassification.Valid() {
		reg.AdmissionClassification = Ambulatory
	}
	reg = reconcileDependents(reg)
	reg.Demographics = demo
	reg = reconcileDistrict(reg)

	id := prior.ID
	draft.VisitID = &id
	draft.RegistrationNumber = prior.RegistrationNumber
	draft.Registration = reg
	s.metrics.IncrementLoad(loadPrior)
	return draft, nil
}

// Save validates and persists the draft: the visit is created (with a newly
// minted registration number) or updated, then the patient demographics are
// written if they differ from the baseline. The two writes are independent.
//
// After the visit write succeeds the draft's VisitID and RegistrationNumber
// point at the stored visit, so saving the same draft again updates it. The
// registration itself is never modified.
func (s *Service) Save(ctx context.Context, d *Draft) (*SaveResult, error) {
	start := time.Now()
	if d == nil || d.PatientID == uuid.Nil {
		verr := &ValidationError{}
		verr.add("patient_id", "is required")
		s.metrics.ObserveSave(start, saveInvalid)
		return nil, verr
	}
	log := s.logger.With().Str("patient_id", d.PatientID.String()).Logger()

	release, err := s.guard.Acquire(ctx, d.PatientID.String())
	if err != nil {
		s.metrics.ObserveSave(start, saveConflict)
		return nil, err
	}
	defer release()

	reg := prepare(d.Registration)
	if err := Validate(reg); err != nil {
		s.metrics.ObserveSave(start, saveInvalid)
		return nil, err
	}

	created := d.VisitID == nil
	v := &visit.Visit{PatientID: d.PatientID, Status: "arrived"}
	if !created {
		existing, err := s.visits.GetByID(ctx, *d.VisitID)
		switch {
		case errors.Is(err, visit.ErrNotFound):
			s.metrics.ObserveSave(start, saveInvalid)
			return nil, fmt.Errorf("visit %s: %w", *d.VisitID, ErrVisitNotFound)
		case err != nil:
			s.metrics.ObserveSave(start, saveStoreError)
			return nil, fmt.Errorf("get visit: %w", err)
		case existing.PatientID != d.PatientID:
			s.metrics.ObserveSave(start, saveInvalid)
			verr := &ValidationError{}
			verr.add("visit_id", "belongs to another patient")
			return nil, verr
		}
		v = existing
	}

	vt := VisitTypeFor(reg.AdmissionClassification)
	if created {
		num, err := s.numbers.Next(ctx, vt)
		if err != nil {
			s.metrics.ObserveSave(start, saveStoreError)
			return nil, fmt.Errorf("generate registration number: %w", err)
		}
		v.RegistrationNumber = num
	}
	v.VisitType = string(vt)
	v.ClassCode = reg.AdmissionClassification.EncounterClass()
	v.Department = reg.Department
	v.PeriodStart = reg.VisitStart()
	v.Extensions = Encode(reg)

	if created {
		err = s.visits.Create(ctx, v)
	} else {
		err = s.visits.Update(ctx, v)
	}
	if err != nil {
		log.Error().Err(err).Bool("create", created).Msg("visit write failed")
		s.metrics.ObserveSave(start, saveStoreError)
		if created {
			return nil, fmt.Errorf("create visit: %w", err)
		}
		return nil, fmt.Errorf("update visit: %w", err)
	}
	id := v.ID
	d.VisitID = &id
	d.RegistrationNumber = v.RegistrationNumber

	res := &SaveResult{
		VisitID:            v.ID,
		FHIRID:             v.FHIRID,
		RegistrationNumber: v.RegistrationNumber,
		Created:            created,
	}
	log = log.With().Str("visit_id", v.ID.String()).Str("registration_number", v.RegistrationNumber).Logger()

	if reg.Demographics != d.BaselineDemographics {
		if err := s.patients.UpdateDemographics(ctx, d.PatientID, reg.Demographics); err != nil {
			log.Error().Err(err).Msg("visit saved but demographics update failed")
			s.metrics.ObserveSave(start, savePartial)
			return nil, &PartialSaveError{VisitID: v.ID, RegistrationNumber: v.RegistrationNumber, Err: err}
		}
		d.BaselineDemographics = reg.Demographics
		res.DemographicsUpdated = true
	}

	outcome := saveUpdated
	if created {
		outcome = saveCreated
	}
	s.metrics.ObserveSave(start, outcome)
	log.Info().Bool("created", created).Bool("demographics_updated", res.DemographicsUpdated).Msg("visit registration saved")
	return res, nil
}

// prepare re-applies the option constraints and group bounds before a save.
func prepare(r VisitRegistration) VisitRegistration {
	r = reconcileDependents(r)
	r = reconcileDistrict(r)
	r.Insurers = r.Insurers.clamp()
	if !r.InsuranceEnabled {
		r.Insurers = InsurerGroup{}
	}
	r.Guarantees = r.Guarantees.clamp()
	return r
}

// Validate checks the fields a visit cannot be stored without.
func Validate(r VisitRegistration) error {
	verr := &ValidationError{}
	if r.VisitDate.IsZero() {
		verr.add("visit_date", "is required")
	}
	if !r.AdmissionClassification.Valid() {
		verr.add("admission_classification", "is required")
	}
	if r.Department == "" {
		verr.add("department", "is required")
	}
	if r.VisitTime != "" {
		if _, ok := canonicalTime(r.VisitTime); !ok {
			verr.add("visit_time", "must be HH:MM")
		}
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
