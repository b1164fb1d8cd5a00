package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ehr/registration/internal/domain/patient"
	"github.com/ehr/registration/internal/domain/visit"
	"github.com/ehr/registration/internal/platform/fhir"
	"github.com/ehr/registration/internal/platform/metrics"
)

// -- Mock stores --

type mockVisits struct {
	visits  map[uuid.UUID]*visit.Visit
	creates int
	updates int
	err     error
}

func newMockVisits() *mockVisits {
	return &mockVisits{visits: make(map[uuid.UUID]*visit.Visit)}
}

func (m *mockVisits) FindMostRecent(_ context.Context, patientID uuid.UUID) (*visit.Visit, error) {
	if m.err != nil {
		return nil, m.err
	}
	var latest *visit.Visit
	for _, v := range m.visits {
		if v.PatientID != patientID {
			continue
		}
		if latest == nil || v.PeriodStart.After(latest.PeriodStart) {
			latest = v
		}
	}
	if latest == nil {
		return nil, visit.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *mockVisits) GetByID(_ context.Context, id uuid.UUID) (*visit.Visit, error) {
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.visits[id]
	if !ok {
		return nil, visit.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *mockVisits) Create(_ context.Context, v *visit.Visit) error {
	if m.err != nil {
		return m.err
	}
	m.creates++
	v.ID = uuid.New()
	v.FHIRID = v.ID.String()
	v.VersionID = 1
	cp := *v
	m.visits[v.ID] = &cp
	return nil
}

func (m *mockVisits) Update(_ context.Context, v *visit.Visit) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.visits[v.ID]; !ok {
		return visit.ErrNotFound
	}
	m.updates++
	v.VersionID++
	cp := *v
	m.visits[v.ID] = &cp
	return nil
}

type mockPatients struct {
	demographics map[uuid.UUID]patient.Demographics
	updates      int
	updateErr    error
}

func newMockPatients() *mockPatients {
	return &mockPatients{demographics: make(map[uuid.UUID]patient.Demographics)}
}

func (m *mockPatients) GetDemographics(_ context.Context, id uuid.UUID) (patient.Demographics, error) {
	d, ok := m.demographics[id]
	if !ok {
		return patient.Demographics{}, patient.ErrNotFound
	}
	return d, nil
}

func (m *mockPatients) UpdateDemographics(_ context.Context, id uuid.UUID, d patient.Demographics) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates++
	m.demographics[id] = d
	return nil
}

type mockNumbers struct {
	calls int
	err   error
}

func (m *mockNumbers) Next(_ context.Context, vt VisitType) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.calls++
	return FormatRegistrationNumber(vt, 2026, int64(m.calls)), nil
}

type failingGuard struct{}

func (failingGuard) Acquire(context.Context, string) (func(), error) {
	return nil, errors.New("lock backend down")
}

// -- Helpers --

type fixture struct {
	svc      *Service
	visits   *mockVisits
	patients *mockPatients
	numbers  *mockNumbers
	metrics  *metrics.Registration
}

func newFixture(opts ...ServiceOption) *fixture {
	f := &fixture{
		visits:   newMockVisits(),
		patients: newMockPatients(),
		numbers:  &mockNumbers{},
		metrics:  metrics.NewRegistration(prometheus.NewRegistry()),
	}
	opts = append([]ServiceOption{WithMetrics(f.metrics)}, opts...)
	f.svc = NewService(f.visits, f.patients, f.numbers, opts...)
	return f
}

func (f *fixture) seedPatient(d patient.Demographics) uuid.UUID {
	id := uuid.New()
	f.patients.demographics[id] = d
	return id
}

var tbilisi = patient.Demographics{
	Region:       "21",
	District:     "0408",
	City:         "Tbilisi",
	Education:    "higher",
	FamilyStatus: "married",
	Employment:   "employed",
}

// completeDraft fills the fields a save requires.
func completeDraft(t *testing.T, d *Draft) {
	t.Helper()
	d.Registration.VisitDate = NewDate(2026, 4, 2)
	d.Registration.VisitTime = "10:30"
	var err error
	if d.Registration, err = SetDepartment(d.Registration, "12"); err != nil {
		t.Fatalf("SetDepartment: %v", err)
	}
}

// -- Load --

func TestLoad_NoPriorVisit(t *testing.T) {
	f := newFixture()
	pid := f.seedPatient(tbilisi)

	d, err := f.svc.Load(context.Background(), pid)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.VisitID != nil || d.RegistrationNumber != "" {
		t.Errorf("fresh draft points at a visit: %v %q", d.VisitID, d.RegistrationNumber)
	}
	r := d.Registration
	if r.AdmissionClassification != Ambulatory {
		t.Errorf("classification = %q, want ambulatory", r.AdmissionClassification)
	}
	if r.ReferralType != ReferralPlannedAmbulatory {
		t.Errorf("referral type = %q, want default", r.ReferralType)
	}
	if r.Demographics != tbilisi || d.BaselineDemographics != tbilisi {
		t.Errorf("demographics not pre-filled: %+v", r.Demographics)
	}
	if got := testutil.ToFloat64(f.metrics.LoadsTotal.WithLabelValues(loadFresh)); got != 1 {
		t.Errorf("fresh loads = %v, want 1", got)
	}
}

func TestLoad_ClearsDistrictOutsideRegion(t *testing.T) {
	f := newFixture()
	stale := tbilisi
	stale.District = "0501"
	pid := f.seedPatient(stale)

	d, err := f.svc.Load(context.Background(), pid)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Registration.Demographics.District != "" {
		t.Errorf("district = %q, want cleared", d.Registration.Demographics.District)
	}
	if d.BaselineDemographics.District != "0501" {
		t.Error("baseline should hold the stored demographics")
	}
}

func TestLoad_PriorVisit(t *testing.T) {
	f := newFixture()
	pid := f.seedPatient(tbilisi)

	prior := SetClassification(VisitRegistration{}, EmergencyInpatient)
	prior.VisitDate = NewDate(2026, 1, 10)
	prior.Department = "19"
	prior = SetInsuranceEnabled(prior, true)
	prior, _ = UpdateInsurer(prior, 1, InsurerEntry{Company: "imedi-l"})
	older := &visit.Visit{PatientID: pid, RegistrationNumber: "S-2025-000001", PeriodStart: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	latest := &visit.Visit{PatientID: pid, RegistrationNumber: "S-2026-000007", PeriodStart: prior.VisitStart(), Extensions: Encode(prior)}
	_ = f.visits.Create(context.Background(), older)
	_ = f.visits.Create(context.Background(), latest)

	d, err := f.svc.Load(context.Background(), pid)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.VisitID == nil || *d.VisitID != latest.ID {
		t.Fatalf("draft visit = %v, want %s", d.VisitID, latest.ID)
	}
	if d.RegistrationNumber != "S-2026-000007" {
		t.Errorf("registration number = %q", d.RegistrationNumber)
	}
	want := Normalize(prior)
	want.Demographics = tbilisi
	if d.Registration != want {
		t.Errorf("registration = %+v\nwant %+v", d.Registration, want)
	}
}

func TestLoad_PriorVisitWithMalformedTree(t *testing.T) {
	f := newFixture()
	pid := f.seedPatient(tbilisi)
	_ = f.visits.Create(context.Background(), &visit.Visit{PatientID: pid, Extensions: []fhir.Extension{
		fhir.CodeExtension(NodeClassification, "unknown"),
		fhir.CodeExtension(NodeDepartment, "18"),
		fhir.CodeExtension(NodeHospitalType, string(ReferralAmbulance)),
	}})

	d, err := f.svc.Load(context.Background(), pid)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	r := d.Registration
	if r.AdmissionClassification != Ambulatory {
		t.Errorf("classification = %q, want ambulatory", r.AdmissionClassification)
	}
	if r.Department != "" || r.ReferralType != ReferralPlannedAmbulatory {
		t.Errorf("dependents not reconciled: %q %q", r.Department, r.ReferralType)
	}
	if got := testutil.ToFloat64(f.metrics.DecodeDefaults); got != 1 {
		t.Errorf("decode defaults = %v, want 1", got)
	}
}

func TestLoad_PatientNotFound(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Load(context.Background(), uuid.New()); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestLoad_StoreError(t *testing.T) {
	f := newFixture()
	pid := f.seedPatient(tbilisi)
	storeErr := errors.New("connection reset")
	f.visits.err = storeErr

	_, err := f.svc.Load(context.Background(), pid)
	if !errors.Is(err, storeErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

// -- Save --

func TestSave_CreateThenUpdate(t *testing.T) {
	f := newFixture()
	pid := f.seedPatient(tbilisi)
	ctx := context.Background()

	d, err := f.svc.Load(ctx, pid)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	completeDraft(t, d)

	res, err := f.svc.Save(ctx, d)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !res.Created || res.RegistrationNumber != "A-2026-000001" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.DemographicsUpdated || f.patients.updates != 0 {
		t.Error("unchanged demographics were written")
	}
	if d.VisitID == nil || *d.VisitID != res.VisitID || d.RegistrationNumber != res.RegistrationNumber {
		t.Errorf("draft not pointed at the stored visit: %v %q", d.VisitID, d.RegistrationNumber)
	}

	stored := f.visits.visits[res.VisitID]
	if stored.Status != "arrived" || stored.ClassCode != "AMB" || stored.VisitType != string(VisitAmbulatory) || stored.Department != "12" {
		t.Errorf("unexpected stored visit: %+v", stored)
	}
	if want := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC); !stored.PeriodStart.Equal(want) {
		t.Errorf("period start = %v, want %v", stored.PeriodStart, want)
	}
	if got := Decode(stored.Extensions); got.Department != "12" || got.VisitTime != "10:30" {
		t.Errorf("stored tree decodes to %+v", got)
	}

	d.Registration = SetClassification(d.Registration, PlannedInpatient)
	res2, err := f.svc.Save(ctx, d)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if res2.Created || res2.VisitID != res.VisitID || res2.RegistrationNumber != res.RegistrationNumber {
		t.Errorf("second save did not update in place: %+v", res2)
	}
	if f.numbers.calls != 1 {
		t.Errorf("numbers minted = %d, want 1", f.numbers.calls)
	}
	if f.visits.creates != 1 || f.visits.updates != 1 {
		t.Errorf("creates = %d, updates = %d", f.visits.creates, f.visits.updates)
	}
	if got := f.visits.visits[res.VisitID].ClassCode; got != "IMP" {
		t.Errorf("class code after update = %q", got)
	}
	if got := testutil.ToFloat64(f.metrics.SavesTotal.WithLabelValues(saveCreated)); got != 1 {
		t.Errorf("created saves = %v", got)
	}
	if got := testutil.ToFloat64(f.metrics.SavesTotal.WithLabelValues(saveUpdated)); got != 1 {
		t.Errorf("updated saves = %v", got)
	}
}

func TestSave_WritesChangedDemographics(t *testing.T) {
	f := newFixture()
	pid := f.seedPatient(tbilisi)
	ctx := context.Background()

	d, _ := f.svc.Load(ctx, pid)
	completeDraft(t, d)
	d.Registration = SetDistrict(SetRegion(d.Registration, "39"), "0501")

	res, err := f.svc.Save(ctx, d)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !res.DemographicsUpdated || f.patients.updates != 1 {
		t.Fatalf("demographics not written: %+v", res)
	}
	got := f.patients.demographics[pid]
	if got.Region != "39" || got.District != "0501" || got.City != "Tbilisi" {
		t.Errorf("stored demographics = %+v", got)
	}
	if d.BaselineDemographics != got {
		t.Error("baseline not advanced after the write")
	}

	if _, err := f.svc.Save(ctx, d); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if f.patients.updates != 1 {
		t.Errorf("demographics rewritten without a change: %d writes", f.patients.updates)
	}
}

func TestSave_ValidationFailsClosed(t *testing.T) {
	f := newFixture()
	pid := f.seedPatient(tbilisi)

	d, _ := f.svc.Load(context.Background(), pid)
	d.Registration.VisitTime = "late"
	d.Registration.Demographics.City = "Kutaisi"

	_, err := f.svc.Save(context.Background(), d)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Error("ValidationError should match ErrValidation")
	}
	fields := map[string]bool{}
	for _, fe := range verr.Fields {
		fields[fe.Field] = true
	}
	for _, want := range []string{"visit_date", "department", "visit_time"} {
		if !fields[want] {
			t.Errorf("missing field error for %s: %+v", want, verr.Fields)
		}
	}
	if f.numbers.calls != 0 || f.visits.creates != 0 || f.patients.updates != 0 {
		t.Error("store touched by an invalid save")
	}
	if d.VisitID != nil {
		t.Error("draft modified by an invalid save")
	}
}

func TestSave_MissingPatient(t *testing.T) {
	f := newFixture()
	var verr *ValidationError
	if _, err := f.svc.Save(context.Background(), &Draft{}); !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if _, err := f.svc.Save(context.Background(), nil); !errors.As(err, &verr) {
		t.Errorf("nil draft: expected ValidationError, got %v", err)
	}
}

func TestSave_PartialSave(t *testing.T) {
	f := newFixture()
	pid := f.seedPatient(tbilisi)
	ctx := context.Background()
	f.patients.updateErr = errors.New("patient table locked")

	d, _ := f.svc.Load(ctx, pid)
	completeDraft(t, d)
	d.Registration.Demographics.City = "Rustavi"

	_, err := f.svc.Save(ctx, d)
	var perr *PartialSaveError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PartialSaveError, got %v", err)
	}
	if _, ok := f.visits.visits[perr.VisitID]; !ok {
		t.Error("visit write was rolled back")
	}
	if perr.RegistrationNumber == "" || d.VisitID == nil || *d.VisitID != perr.VisitID {
		t.Errorf("partial save lost the visit identity: %+v", perr)
	}
	if d.BaselineDemographics.City != "Tbilisi" {
		t.Error("baseline advanced although the write failed")
	}

	f.patients.updateErr = nil
	res, err := f.svc.Save(ctx, d)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Created || !res.DemographicsUpdated {
		t.Errorf("retry should update the visit and write demographics: %+v", res)
	}
}

func TestSave_InProgress(t *testing.T) {
	guard := NewMemorySaveGuard()
	f := newFixture(WithSaveGuard(guard))
	pid := f.seedPatient(tbilisi)
	d, _ := f.svc.Load(context.Background(), pid)
	completeDraft(t, d)

	release, err := guard.Acquire(context.Background(), pid.String())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := f.svc.Save(context.Background(), d); !errors.Is(err, ErrSaveInProgress) {
		t.Fatalf("expected ErrSaveInProgress, got %v", err)
	}
	release()

	if _, err := f.svc.Save(context.Background(), d); err != nil {
		t.Fatalf("Save after release: %v", err)
	}
}

func TestSave_GuardFailure(t *testing.T) {
	f := newFixture(WithSaveGuard(failingGuard{}))
	pid := f.seedPatient(tbilisi)
	d, _ := f.svc.Load(context.Background(), pid)
	completeDraft(t, d)

	if _, err := f.svc.Save(context.Background(), d); err == nil {
		t.Fatal("expected error")
	}
	if f.visits.creates != 0 {
		t.Error("visit written without holding the guard")
	}
}

func TestSave_VisitOfAnotherPatient(t *testing.T) {
	f := newFixture()
	owner := f.seedPatient(tbilisi)
	other := f.seedPatient(tbilisi)
	v := &visit.Visit{PatientID: owner}
	_ = f.visits.Create(context.Background(), v)

	d, _ := f.svc.Load(context.Background(), other)
	completeDraft(t, d)
	d.VisitID = &v.ID

	var verr *ValidationError
	if _, err := f.svc.Save(context.Background(), d); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if f.visits.updates != 0 {
		t.Error("visit of another patient was updated")
	}
}

func TestSave_UnknownVisit(t *testing.T) {
	f := newFixture()
	pid := f.seedPatient(tbilisi)
	d, _ := f.svc.Load(context.Background(), pid)
	completeDraft(t, d)
	missing := uuid.New()
	d.VisitID = &missing

	if _, err := f.svc.Save(context.Background(), d); !errors.Is(err, ErrVisitNotFound) {
		t.Errorf("expected ErrVisitNotFound, got %v", err)
	}
}

func TestSave_NumberGeneratorFailure(t *testing.T) {
	f := newFixture()
	pid := f.seedPatient(tbilisi)
	f.numbers.err = errors.New("sequence unavailable")
	d, _ := f.svc.Load(context.Background(), pid)
	completeDraft(t, d)

	if _, err := f.svc.Save(context.Background(), d); !errors.Is(err, f.numbers.err) {
		t.Fatalf("expected wrapped generator error, got %v", err)
	}
	if f.visits.creates != 0 || d.VisitID != nil {
		t.Error("visit created without a registration number")
	}
	if got := testutil.ToFloat64(f.metrics.SavesTotal.WithLabelValues(saveStoreError)); got != 1 {
		t.Errorf("store_error saves = %v", got)
	}
}

func TestSave_StationaryNumberSeries(t *testing.T) {
	f := newFixture()
	pid := f.seedPatient(tbilisi)
	d, _ := f.svc.Load(context.Background(), pid)
	completeDraft(t, d)
	d.Registration = SetClassification(d.Registration, EmergencyInpatient)

	res, err := f.svc.Save(context.Background(), d)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.RegistrationNumber != "S-2026-000001" {
		t.Errorf("registration number = %q", res.RegistrationNumber)
	}
	if got := f.visits.visits[res.VisitID].ClassCode; got != "EMER" {
		t.Errorf("class code = %q", got)
	}
}

func TestSave_DropsInsurersWhenDisabled(t *testing.T) {
	f := newFixture()
	pid := f.seedPatient(tbilisi)
	d, _ := f.svc.Load(context.Background(), pid)
	completeDraft(t, d)
	d.Registration.Insurers = InsurerGroup{Count: 1}
	d.Registration.Insurers.Slots[0] = InsurerEntry{Company: "tbc"}

	res, err := f.svc.Save(context.Background(), d)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if hasNode(f.visits.visits[res.VisitID].Extensions, InsurerNode(1)) {
		t.Error("insurer stored while insurance is disabled")
	}
	if d.Registration.Insurers.Count != 1 {
		t.Error("Save modified the draft registration")
	}
}

func TestValidate(t *testing.T) {
	r := SetClassification(VisitRegistration{}, Ambulatory)
	r.VisitDate = NewDate(2026, 4, 2)
	r.Department = "11"
	if err := Validate(r); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	r.AdmissionClassification = ""
	if err := Validate(r); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
