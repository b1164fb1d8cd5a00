package visit

import (
	"strconv"
	"time"

	"github.com/ehr/registration/internal/platform/fhir"
	"github.com/google/uuid"
)

// RegistrationNumberSystem is the identifier system of registration numbers.
const RegistrationNumberSystem = "http://ehr.local/fhir/sid/visit-registration-number"

var classDisplays = map[string]string{
	"AMB":  "ambulatory",
	"IMP":  "inpatient encounter",
	"EMER": "emergency",
}

// Visit maps to the visit_registration table. Extensions holds the
// registration attribute tree.
type Visit struct {
	ID                 uuid.UUID        `db:"id" json:"id"`
	FHIRID             string           `db:"fhir_id" json:"fhir_id"`
	Status             string           `db:"status" json:"status"`
	PatientID          uuid.UUID        `db:"patient_id" json:"patient_id"`
	RegistrationNumber string           `db:"registration_number" json:"registration_number"`
	VisitType          string           `db:"visit_type" json:"visit_type"`
	ClassCode          string           `db:"class_code" json:"class_code"`
	Department         string           `db:"department" json:"department,omitempty"`
	PeriodStart        time.Time        `db:"period_start" json:"period_start"`
	Extensions         []fhir.Extension `db:"extensions" json:"extensions"`
	VersionID          int              `db:"version_id" json:"version_id"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

func (v *Visit) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Encounter",
		"id":           v.FHIRID,
		"status":       v.Status,
		"class": fhir.Coding{
			System:  "http://terminology.hl7.org/CodeSystem/v3-ActCode",
			Code:    v.ClassCode,
			Display: classDisplays[v.ClassCode],
		},
		"subject": fhir.Reference{
			Reference: fhir.FormatReference("Patient", v.PatientID.String()),
		},
		"meta": fhir.Meta{
			VersionID:   strconv.Itoa(v.VersionID),
			LastUpdated: v.UpdatedAt,
		},
	}
	if v.RegistrationNumber != "" {
		result["identifier"] = []fhir.Identifier{{
			Use:    "official",
			System: RegistrationNumberSystem,
			Value:  v.RegistrationNumber,
		}}
	}
	if v.VisitType != "" {
		result["type"] = []fhir.CodeableConcept{{Coding: []fhir.Coding{{Code: v.VisitType}}}}
	}
	if v.Department != "" {
		result["serviceType"] = fhir.CodeableConcept{Coding: []fhir.Coding{{Code: v.Department}}}
	}
	if !v.PeriodStart.IsZero() {
		start := v.PeriodStart
		result["period"] = fhir.Period{Start: &start}
	}
	if len(v.Extensions) > 0 {
		result["extension"] = v.Extensions
	}
	return result
}
