package patient

import (
	"testing"

	"github.com/ehr/registration/internal/platform/fhir"
)

func TestPatient_ToFHIR_Demographics(t *testing.T) {
	gender := "female"
	p := &Patient{
		FHIRID:    "p-1",
		Active:    true,
		MRN:       "MRN-1",
		FirstName: "Nino",
		LastName:  "Beridze",
		Gender:    &gender,
		Demographics: Demographics{
			Region:       "21",
			District:     "0402",
			City:         "Tbilisi",
			OtherAddress: "12 Rustaveli Ave",
			Education:    "higher",
			Employment:   "employed",
		},
	}

	res := p.ToFHIR()

	if res["resourceType"] != "Patient" || res["id"] != "p-1" {
		t.Fatalf("unexpected header: %v %v", res["resourceType"], res["id"])
	}
	if res["gender"] != "female" {
		t.Errorf("expected gender female, got %v", res["gender"])
	}
	addrs, ok := res["address"].([]fhir.Address)
	if !ok || len(addrs) != 1 {
		t.Fatalf("expected one address, got %v", res["address"])
	}
	if addrs[0].State != "21" || addrs[0].District != "0402" || addrs[0].City != "Tbilisi" {
		t.Errorf("unexpected address: %+v", addrs[0])
	}
	if len(addrs[0].Line) != 1 || addrs[0].Line[0] != "12 Rustaveli Ave" {
		t.Errorf("expected address line, got %v", addrs[0].Line)
	}

	exts, ok := res["extension"].([]fhir.Extension)
	if !ok {
		t.Fatalf("expected extensions, got %v", res["extension"])
	}
	if e, found := fhir.FindExtension(exts, EducationExtURL); !found {
		t.Error("expected education extension")
	} else if v, _ := e.AsString(); v != "higher" {
		t.Errorf("expected education higher, got %q", v)
	}
	if _, found := fhir.FindExtension(exts, FamilyStatusExtURL); found {
		t.Error("expected no family status extension when unset")
	}
}

func TestPatient_ToFHIR_NoDemographics(t *testing.T) {
	res := (&Patient{FHIRID: "p-2", MRN: "MRN-2"}).ToFHIR()
	if _, ok := res["address"]; ok {
		t.Error("expected no address without demographics")
	}
	if _, ok := res["extension"]; ok {
		t.Error("expected no extensions without demographics")
	}
	if _, ok := res["birthDate"]; ok {
		t.Error("expected no birthDate when unset")
	}
}
