package registration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ehr/registration/internal/domain/patient"
)

const dateLayout = "2006-01-02"

// Date is a calendar date. The zero value means "not set" and marshals to "".
type Date struct {
	t time.Time
}

// NewDate returns the calendar date y-m-d.
func NewDate(y int, m time.Month, d int) Date {
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD; the empty string yields the zero Date.
func ParseDate(s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) Time() time.Time { return d.t }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// InsurerEntry is one insurer of the visit. Company identifies the entry.
type InsurerEntry struct {
	Company        string  `json:"company"`
	InsuranceType  string  `json:"insurance_type"`
	PolicyNumber   string  `json:"policy_number"`
	ReferralNumber string  `json:"referral_number"`
	CopayPercent   float64 `json:"copay_percent"`
	IssueDate      Date    `json:"issue_date"`
	ExpirationDate Date    `json:"expiration_date"`
}

// GuaranteeEntry is one guarantee letter. Donor identifies the entry.
type GuaranteeEntry struct {
	Donor        string  `json:"donor"`
	Amount       float64 `json:"amount"`
	StartDate    Date    `json:"start_date"`
	EndDate      Date    `json:"end_date"`
	LetterNumber string  `json:"letter_number"`
}

// MaxGroupSlots bounds every repeating group.
const MaxGroupSlots = 3

// Group is a bounded repeating group. Slots at or beyond Count are inactive
// and may still hold stale values from an earlier removal.
type Group[E comparable] struct {
	Slots [MaxGroupSlots]E `json:"slots"`
	Count int              `json:"count"`
}

type (
	InsurerGroup   = Group[InsurerEntry]
	GuaranteeGroup = Group[GuaranteeEntry]
)

// ActiveCount is Count clamped to [0, MaxGroupSlots].
func (g Group[E]) ActiveCount() int {
	switch {
	case g.Count < 0:
		return 0
	case g.Count > MaxGroupSlots:
		return MaxGroupSlots
	}
	return g.Count
}

// Active returns a copy of the active slots.
func (g Group[E]) Active() []E {
	n := g.ActiveCount()
	out := make([]E, n)
	copy(out, g.Slots[:n])
	return out
}

// VisitRegistration is the in-memory registration record of one visit.
// It is a value: copies share no state, and reducers return a new value.
type VisitRegistration struct {
	AdmissionClassification Classification       `json:"admission_classification"`
	VisitDate               Date                 `json:"visit_date"`
	VisitTime               string               `json:"visit_time"`
	StatusCode              string               `json:"status_code"`
	Department              string               `json:"department"`
	ReferralType            ReferralType         `json:"referral_type"`
	InsuranceEnabled        bool                 `json:"insurance_enabled"`
	Insurers                InsurerGroup         `json:"insurers"`
	Guarantees              GuaranteeGroup       `json:"guarantees"`
	Demographics            patient.Demographics `json:"demographics"`
}

// NewVisitRegistration builds a fresh record for a patient without prior
// visits, pre-filled from the patient's current demographics.
func NewVisitRegistration(demo patient.Demographics) VisitRegistration {
	r := VisitRegistration{Demographics: demo}
	r = SetClassification(r, Ambulatory)
	return reconcileDistrict(r)
}

// VisitStart combines the visit date and time of day. An unset or malformed
// time yields midnight.
func (r VisitRegistration) VisitStart() time.Time {
	if r.VisitDate.IsZero() {
		return time.Time{}
	}
	start := r.VisitDate.Time()
	if tod, ok := parseTimeOfDay(r.VisitTime); ok {
		start = start.Add(tod)
	}
	return start
}

// parseTimeOfDay parses HH:MM into an offset from midnight.
func parseTimeOfDay(s string) (time.Duration, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, true
}

// canonicalTime rewrites a time of day as zero-padded HH:MM.
func canonicalTime(s string) (string, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return "", false
	}
	return t.Format("15:04"), true
}
