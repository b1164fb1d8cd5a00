package registration

import (
	"errors"
	"fmt"
)

var (
	ErrPrimaryInsurerRequired = errors.New("the primary insurer cannot be removed; disable insurance instead")
	ErrSlotOutOfRange         = errors.New("slot index out of range")
)

// add opens the next slot, reset to its zero value. It is a no-op when the
// group is full.
func (g Group[E]) add() Group[E] {
	n := g.ActiveCount()
	if n == MaxGroupSlots {
		g.Count = n
		return g
	}
	var zero E
	g.Slots[n] = zero
	g.Count = n + 1
	return g
}

// truncateAt clears the 1-based slot index and shrinks the group to the slots
// before it. Slots above index are not compacted; they become inactive.
func (g Group[E]) truncateAt(index int) Group[E] {
	var zero E
	g.Slots[index-1] = zero
	g.Count = index - 1
	return g
}

// set overwrites an active 1-based slot.
func (g Group[E]) set(index int, e E) (Group[E], error) {
	if err := checkActive(g.ActiveCount(), index); err != nil {
		return g, err
	}
	g.Slots[index-1] = e
	return g, nil
}

// clamp drops an out-of-range Count and zeroes inactive slots.
func (g Group[E]) clamp() Group[E] {
	n := g.ActiveCount()
	var zero E
	for i := n; i < MaxGroupSlots; i++ {
		g.Slots[i] = zero
	}
	g.Count = n
	return g
}

func checkActive(count, index int) error {
	if index < 1 || index > count {
		return fmt.Errorf("slot %d of %d: %w", index, count, ErrSlotOutOfRange)
	}
	return nil
}

// SetInsuranceEnabled toggles the insurer section. Enabling opens the primary
// slot; disabling clears every insurer slot.
func SetInsuranceEnabled(r VisitRegistration, enabled bool) VisitRegistration {
	r.InsuranceEnabled = enabled
	if !enabled {
		r.Insurers = InsurerGroup{}
		return r
	}
	if r.Insurers.ActiveCount() == 0 {
		r.Insurers = r.Insurers.add()
	}
	return r
}

// AddInsurer opens the next insurer slot. It does nothing while insurance is
// disabled or all slots are in use.
func AddInsurer(r VisitRegistration) VisitRegistration {
	if !r.InsuranceEnabled {
		return r
	}
	r.Insurers = r.Insurers.add()
	return r
}

// RemoveInsurer removes insurer slot index (2 or 3) and every slot after it.
// The primary slot is removed only by disabling insurance.
func RemoveInsurer(r VisitRegistration, index int) (VisitRegistration, error) {
	if index == 1 {
		return r, ErrPrimaryInsurerRequired
	}
	if err := checkActive(r.Insurers.ActiveCount(), index); err != nil {
		return r, err
	}
	r.Insurers = r.Insurers.truncateAt(index)
	return r, nil
}

// UpdateInsurer replaces the contents of an active insurer slot.
func UpdateInsurer(r VisitRegistration, index int, e InsurerEntry) (VisitRegistration, error) {
	g, err := r.Insurers.set(index, e)
	if err != nil {
		return r, err
	}
	r.Insurers = g
	return r, nil
}

// AddGuarantee opens the next guarantee-letter slot.
func AddGuarantee(r VisitRegistration) VisitRegistration {
	r.Guarantees = r.Guarantees.add()
	return r
}

// RemoveGuarantee clears guarantee slot index and deactivates every slot
// after it without compacting them.
func RemoveGuarantee(r VisitRegistration, index int) (VisitRegistration, error) {
	if err := checkActive(r.Guarantees.ActiveCount(), index); err != nil {
		return r, err
	}
	r.Guarantees = r.Guarantees.truncateAt(index)
	return r, nil
}

// UpdateGuarantee replaces the contents of an active guarantee slot.
func UpdateGuarantee(r VisitRegistration, index int, e GuaranteeEntry) (VisitRegistration, error) {
	g, err := r.Guarantees.set(index, e)
	if err != nil {
		return r, err
	}
	r.Guarantees = g
	return r, nil
}
