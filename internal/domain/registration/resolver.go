package registration

import (
	"errors"
	"fmt"
)

// ErrOptionNotAllowed is returned when a dependent field is set to a value
// outside the option set derived from its controlling field.
var ErrOptionNotAllowed = errors.New("option not allowed")

// DependentOptions are the department and referral-type choices permitted by
// an admission classification.
type DependentOptions struct {
	Departments         []Option     `json:"departments"`
	ReferralTypes       []Option     `json:"referral_types"`
	DefaultReferralType ReferralType `json:"default_referral_type"`
}

var dependentRules = map[Classification]struct {
	ambulatoryOnly bool
	referrals      []ReferralType
}{
	Ambulatory:         {true, []ReferralType{ReferralPlannedAmbulatory, ReferralDayHospital}},
	PlannedInpatient:   {false, []ReferralType{ReferralInpatient, ReferralDayHospital}},
	EmergencyInpatient: {false, []ReferralType{ReferralSelf, ReferralAmbulance, ReferralDisasterTransfer}},
}

// ResolveDependents derives the dependent option sets of c. It is total: an
// unknown classification yields empty sets and no default.
func ResolveDependents(c Classification) DependentOptions {
	rule, ok := dependentRules[c]
	if !ok {
		return DependentOptions{Departments: []Option{}, ReferralTypes: []Option{}}
	}
	deps := departments
	if rule.ambulatoryOnly {
		deps = ambulatoryDepartments
	}
	refs := make([]Option, len(rule.referrals))
	for i, r := range rule.referrals {
		refs[i] = referralOption(r)
	}
	return DependentOptions{
		Departments:         cloneOptions(deps),
		ReferralTypes:       refs,
		DefaultReferralType: rule.referrals[0],
	}
}

// AllowsDepartment reports whether code is one of the department options.
func (o DependentOptions) AllowsDepartment(code string) bool {
	return containsCode(o.Departments, code)
}

// AllowsReferral reports whether r is one of the referral-type options.
func (o DependentOptions) AllowsReferral(r ReferralType) bool {
	return containsCode(o.ReferralTypes, string(r))
}

// DistrictPlaceholder leads every district option list.
var DistrictPlaceholder = Option{Code: "", Display: "Select district"}

// DistrictOptions lists the districts selectable under a region, preceded by
// the placeholder entry.
type DistrictOptions struct {
	Region  string   `json:"region"`
	Options []Option `json:"options"`
}

// ResolveDistricts returns the ordered districts of region. An empty or
// unknown region yields only the placeholder.
func ResolveDistricts(region string) DistrictOptions {
	ds := districtsByRegion[region]
	opts := make([]Option, 0, len(ds)+1)
	opts = append(opts, DistrictPlaceholder)
	opts = append(opts, ds...)
	return DistrictOptions{Region: region, Options: opts}
}

// Allows reports whether district is a real (non-placeholder) option.
func (o DistrictOptions) Allows(district string) bool {
	return district != "" && containsCode(o.Options, district)
}

// SetClassification changes the admission classification and re-validates
// the department and referral type against the new option sets.
func SetClassification(r VisitRegistration, c Classification) VisitRegistration {
	r.AdmissionClassification = c
	return reconcileDependents(r)
}

// SetDepartment selects a department. The empty code clears the field.
func SetDepartment(r VisitRegistration, code string) (VisitRegistration, error) {
	if code != "" && !ResolveDependents(r.AdmissionClassification).AllowsDepartment(code) {
		return r, fmt.Errorf("department %q for %s: %w", code, r.AdmissionClassification, ErrOptionNotAllowed)
	}
	r.Department = code
	return r, nil
}

// SetReferralType selects a referral type from the classification's set.
func SetReferralType(r VisitRegistration, t ReferralType) (VisitRegistration, error) {
	if !ResolveDependents(r.AdmissionClassification).AllowsReferral(t) {
		return r, fmt.Errorf("referral type %q for %s: %w", t, r.AdmissionClassification, ErrOptionNotAllowed)
	}
	r.ReferralType = t
	return r, nil
}

// SetRegion changes the region and clears a district it does not own.
func SetRegion(r VisitRegistration, region string) VisitRegistration {
	r.Demographics.Region = region
	return reconcileDistrict(r)
}

// SetDistrict selects a district under the current region. A district outside
// the region's list leaves the field cleared.
func SetDistrict(r VisitRegistration, district string) VisitRegistration {
	r.Demographics.District = district
	return reconcileDistrict(r)
}

func reconcileDependents(r VisitRegistration) VisitRegistration {
	opts := ResolveDependents(r.AdmissionClassification)
	if r.Department != "" && !opts.AllowsDepartment(r.Department) {
		r.Department = ""
	}
	if !opts.AllowsReferral(r.ReferralType) {
		r.ReferralType = opts.DefaultReferralType
	}
	return r
}

func reconcileDistrict(r VisitRegistration) VisitRegistration {
	if r.Demographics.Region == "" || !ResolveDistricts(r.Demographics.Region).Allows(r.Demographics.District) {
		r.Demographics.District = ""
	}
	return r
}

func containsCode(opts []Option, code string) bool {
	for _, o := range opts {
		if o.Code == code {
			return true
		}
	}
	return false
}
