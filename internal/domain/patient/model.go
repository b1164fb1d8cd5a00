package patient

import (
	"time"

	"github.com/ehr/registration/internal/platform/fhir"
	"github.com/google/uuid"
)

// Extension URLs for the demographic fields FHIR Patient has no element for.
const (
	EducationExtURL    = "http://ehr.local/fhir/StructureDefinition/patient-education"
	FamilyStatusExtURL = "http://ehr.local/fhir/StructureDefinition/patient-family-status"
	EmploymentExtURL   = "http://ehr.local/fhir/StructureDefinition/patient-employment"
)

// Demographics are the patient fields captured by the visit registration form.
type Demographics struct {
	Region       string `json:"region"`
	District     string `json:"district"`
	City         string `json:"city"`
	OtherAddress string `json:"other_address"`
	Education    string `json:"education"`
	FamilyStatus string `json:"family_status"`
	Employment   string `json:"employment"`
}

// Patient maps to the patient table.
type Patient struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	FHIRID       string       `db:"fhir_id" json:"fhir_id"`
	Active       bool         `db:"active" json:"active"`
	MRN          string       `db:"mrn" json:"mrn"`
	FirstName    string       `db:"first_name" json:"first_name"`
	LastName     string       `db:"last_name" json:"last_name"`
	BirthDate    *time.Time   `db:"birth_date" json:"birth_date,omitempty"`
	Gender       *string      `db:"gender" json:"gender,omitempty"`
	Demographics Demographics `json:"demographics"`
	VersionID    int          `db:"version_id" json:"version_id"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

func (p *Patient) ToFHIR() map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Patient",
		"id":           p.FHIRID,
		"active":       p.Active,
		"meta":         fhir.Meta{LastUpdated: p.UpdatedAt},
		"name": []map[string]interface{}{
			{"use": "official", "family": p.LastName, "given": []string{p.FirstName}},
		},
		"identifier": []fhir.Identifier{{
			Use:   "usual",
			Type:  &fhir.CodeableConcept{Coding: []fhir.Coding{{System: "http://terminology.hl7.org/CodeSystem/v2-0203", Code: "MR"}}},
			Value: p.MRN,
		}},
	}
	if p.Gender != nil {
		result["gender"] = *p.Gender
	}
	if p.BirthDate != nil {
		result["birthDate"] = p.BirthDate.Format("2006-01-02")
	}

	d := p.Demographics
	if d.Region != "" || d.District != "" || d.City != "" || d.OtherAddress != "" {
		addr := fhir.Address{Use: "home", State: d.Region, District: d.District, City: d.City}
		if d.OtherAddress != "" {
			addr.Line = []string{d.OtherAddress}
		}
		result["address"] = []fhir.Address{addr}
	}

	var exts []fhir.Extension
	if d.Education != "" {
		exts = append(exts, fhir.CodeExtension(EducationExtURL, d.Education))
	}
	if d.FamilyStatus != "" {
		exts = append(exts, fhir.CodeExtension(FamilyStatusExtURL, d.FamilyStatus))
	}
	if d.Employment != "" {
		exts = append(exts, fhir.CodeExtension(EmploymentExtURL, d.Employment))
	}
	if len(exts) > 0 {
		result["extension"] = exts
	}
	return result
}
