package registration

import (
	"errors"
	"fmt"
)

var ErrUnknownAction = errors.New("unknown action")

type ActionType string

const (
	ActionSetClassification   ActionType = "set-classification"
	ActionSetDepartment       ActionType = "set-department"
	ActionSetReferralType     ActionType = "set-referral-type"
	ActionSetRegion           ActionType = "set-region"
	ActionSetDistrict         ActionType = "set-district"
	ActionSetInsuranceEnabled ActionType = "set-insurance-enabled"
	ActionAddInsurer          ActionType = "add-insurer"
	ActionRemoveInsurer       ActionType = "remove-insurer"
	ActionUpdateInsurer       ActionType = "update-insurer"
	ActionAddGuarantee        ActionType = "add-guarantee"
	ActionRemoveGuarantee     ActionType = "remove-guarantee"
	ActionUpdateGuarantee     ActionType = "update-guarantee"
)

// Action is one form edit routed through the reducers. Value carries codes,
// Enabled the insurance toggle, and Index the 1-based slot of group edits.
type Action struct {
	Type      ActionType      `json:"type"`
	Value     string          `json:"value,omitempty"`
	Enabled   bool            `json:"enabled,omitempty"`
	Index     int             `json:"index,omitempty"`
	Insurer   *InsurerEntry   `json:"insurer,omitempty"`
	Guarantee *GuaranteeEntry `json:"guarantee,omitempty"`
}

// Apply runs one action. On error r is returned unchanged.
func Apply(r VisitRegistration, a Action) (VisitRegistration, error) {
	switch a.Type {
	case ActionSetClassification:
		return SetClassification(r, Classification(a.Value)), nil
	case ActionSetDepartment:
		return SetDepartment(r, a.Value)
	case ActionSetReferralType:
		return SetReferralType(r, ReferralType(a.Value))
	case ActionSetRegion:
		return SetRegion(r, a.Value), nil
	case ActionSetDistrict:
		return SetDistrict(r, a.Value), nil
	case ActionSetInsuranceEnabled:
		return SetInsuranceEnabled(r, a.Enabled), nil
	case ActionAddInsurer:
		return AddInsurer(r), nil
	case ActionRemoveInsurer:
		return RemoveInsurer(r, a.Index)
	case ActionUpdateInsurer:
		if a.Insurer == nil {
			return r, fmt.Errorf("%s: insurer is required", a.Type)
		}
		return UpdateInsurer(r, a.Index, *a.Insurer)
	case ActionAddGuarantee:
		return AddGuarantee(r), nil
	case ActionRemoveGuarantee:
		return RemoveGuarantee(r, a.Index)
	case ActionUpdateGuarantee:
		if a.Guarantee == nil {
			return r, fmt.Errorf("%s: guarantee is required", a.Type)
		}
		return UpdateGuarantee(r, a.Index, *a.Guarantee)
	}
	return r, fmt.Errorf("%q: %w", a.Type, ErrUnknownAction)
}

// ApplyAll runs actions in order and stops at the first failure, reporting
// its position. The returned record is r when any action fails.
func ApplyAll(r VisitRegistration, actions []Action) (VisitRegistration, error) {
	next := r
	for i, a := range actions {
		var err error
		if next, err = Apply(next, a); err != nil {
			return r, fmt.Errorf("action %d: %w", i, err)
		}
	}
	return next, nil
}
