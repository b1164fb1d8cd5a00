package registration

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ehr/registration/internal/platform/fhir"
)

// Node names of the persisted attribute tree. They are stable identifiers:
// stored visits are decoded by these names.
const (
	NodeClassification = "admission-classification"
	NodeDepartment     = "department"
	NodeVisitDate      = "visit-date"
	NodeVisitTime      = "visit-time"
	NodeStatusCode     = "status-code"
	NodeHospitalType   = "hospital-type"
	NodeGuarantee      = "guarantee-letter"
	nodeInsurerPrefix  = "insurance-"
)

// Insurer sub-tree children.
const (
	insurerCompany        = "company"
	insurerType           = "type"
	insurerPolicyNumber   = "policy-number"
	insurerReferralNumber = "referral-number"
	insurerCopayPercent   = "copay-percent"
	insurerIssueDate      = "issue-date"
	insurerExpiration     = "expiration-date"
)

// Guarantee sub-tree children.
const (
	guaranteeDonor        = "donor"
	guaranteeAmount       = "amount"
	guaranteeLetterNumber = "letter-number"
	guaranteeStartDate    = "start-date"
	guaranteeEndDate      = "end-date"
)

// InsurerNode names the sub-tree of 1-based insurer slot i.
func InsurerNode(i int) string {
	return nodeInsurerPrefix + strconv.Itoa(i)
}

// GuaranteeNode names the sub-tree of 1-based guarantee slot i. The first slot
// keeps the unsuffixed name.
func GuaranteeNode(i int) string {
	if i == 1 {
		return NodeGuarantee
	}
	return NodeGuarantee + "-" + strconv.Itoa(i)
}

// Encode writes r as a sparse attribute tree. Demographics are not part of
// the tree; they are persisted on the patient.
func Encode(r VisitRegistration) []fhir.Extension {
	exts := []fhir.Extension{
		fhir.CodeExtension(NodeClassification, string(r.AdmissionClassification)),
		fhir.CodeExtension(NodeDepartment, r.Department),
		dateNode(NodeVisitDate, r.VisitDate),
		timeNode(NodeVisitTime, r.VisitTime),
	}
	if r.StatusCode != "" {
		exts = append(exts, fhir.CodeExtension(NodeStatusCode, r.StatusCode))
	}
	if r.ReferralType != "" {
		exts = append(exts, fhir.CodeExtension(NodeHospitalType, string(r.ReferralType)))
	}
	for i, g := range r.Guarantees.Active() {
		if g.Donor == "" {
			continue
		}
		exts = append(exts, fhir.NestedExtension(GuaranteeNode(i+1), encodeGuarantee(g)...))
	}
	if r.InsuranceEnabled {
		for i, ins := range r.Insurers.Active() {
			if ins.Company == "" {
				continue
			}
			exts = append(exts, fhir.NestedExtension(InsurerNode(i+1), encodeInsurer(ins)...))
		}
	}
	return exts
}

func encodeInsurer(e InsurerEntry) []fhir.Extension {
	var out []fhir.Extension
	out = appendString(out, insurerCompany, e.Company)
	if e.InsuranceType != "" {
		out = append(out, fhir.CodeExtension(insurerType, e.InsuranceType))
	}
	out = appendString(out, insurerPolicyNumber, e.PolicyNumber)
	out = appendString(out, insurerReferralNumber, e.ReferralNumber)
	out = appendDecimal(out, insurerCopayPercent, e.CopayPercent)
	out = appendDate(out, insurerIssueDate, e.IssueDate)
	out = appendDate(out, insurerExpiration, e.ExpirationDate)
	return out
}

func encodeGuarantee(e GuaranteeEntry) []fhir.Extension {
	var out []fhir.Extension
	out = appendString(out, guaranteeDonor, e.Donor)
	out = appendDecimal(out, guaranteeAmount, e.Amount)
	out = appendString(out, guaranteeLetterNumber, e.LetterNumber)
	out = appendDate(out, guaranteeStartDate, e.StartDate)
	out = appendDate(out, guaranteeEndDate, e.EndDate)
	return out
}

func dateNode(url string, d Date) fhir.Extension {
	if d.IsZero() {
		return fhir.Extension{URL: url}
	}
	return fhir.DateExtension(url, d.Time())
}

func timeNode(url, hhmm string) fhir.Extension {
	v, ok := canonicalTime(hhmm)
	if !ok {
		return fhir.Extension{URL: url}
	}
	return fhir.TimeExtension(url, v)
}

func appendString(out []fhir.Extension, url, v string) []fhir.Extension {
	if v == "" {
		return out
	}
	return append(out, fhir.StringExtension(url, v))
}

func appendDecimal(out []fhir.Extension, url string, v float64) []fhir.Extension {
	if v == 0 {
		return out
	}
	return append(out, fhir.DecimalExtension(url, v))
}

func appendDate(out []fhir.Extension, url string, d Date) []fhir.Extension {
	if d.IsZero() {
		return out
	}
	return append(out, fhir.DateExtension(url, d.Time()))
}

// DecodeIssue records a node whose value could not be read and was defaulted.
type DecodeIssue struct {
	Node   string
	Reason string
}

func (i DecodeIssue) String() string {
	return i.Node + ": " + i.Reason
}

// Decode rebuilds a registration from an attribute tree. It never fails:
// absent or malformed nodes leave their fields at the zero value, and unknown
// nodes are ignored.
func Decode(exts []fhir.Extension) VisitRegistration {
	r, _ := DecodeWithIssues(exts)
	return r
}

// DecodeWithIssues is Decode that also reports every defaulted node.
func DecodeWithIssues(exts []fhir.Extension) (VisitRegistration, []DecodeIssue) {
	d := &decoder{}
	for _, e := range exts {
		d.node(e)
	}
	return d.r, d.issues
}

type decoder struct {
	r      VisitRegistration
	issues []DecodeIssue
}

func (d *decoder) fail(node string, format string, args ...interface{}) {
	d.issues = append(d.issues, DecodeIssue{Node: node, Reason: fmt.Sprintf(format, args...)})
}

func (d *decoder) node(e fhir.Extension) {
	switch e.URL {
	case NodeClassification:
		if v := d.str(e); v != "" {
			if c := Classification(v); c.Valid() {
				d.r.AdmissionClassification = c
			} else {
				d.fail(e.URL, "unknown classification %q", v)
			}
		}
	case NodeDepartment:
		d.r.Department = d.str(e)
	case NodeVisitDate:
		d.r.VisitDate = d.date(e)
	case NodeVisitTime:
		if e.Kind() == fhir.KindEmpty {
			return
		}
		if v, ok := e.AsTime(); ok {
			d.r.VisitTime = v
		} else {
			d.fail(e.URL, "malformed time")
		}
	case NodeStatusCode:
		d.r.StatusCode = d.str(e)
	case NodeHospitalType:
		if v := d.str(e); v != "" {
			if knownReferral(ReferralType(v)) {
				d.r.ReferralType = ReferralType(v)
			} else {
				d.fail(e.URL, "unknown referral type %q", v)
			}
		}
	default:
		if i, ok := slotIndex(e.URL, nodeInsurerPrefix); ok {
			d.insurer(i, e)
		} else if i, ok := guaranteeIndex(e.URL); ok {
			d.guarantee(i, e)
		}
	}
}

func (d *decoder) insurer(i int, e fhir.Extension) {
	children := e.Children()
	if children == nil {
		d.fail(e.URL, "expected nested extension, got %s", e.Kind())
		return
	}
	var ins InsurerEntry
	for _, c := range children {
		switch c.URL {
		case insurerCompany:
			ins.Company = d.str(c)
		case insurerType:
			ins.InsuranceType = d.str(c)
		case insurerPolicyNumber:
			ins.PolicyNumber = d.str(c)
		case insurerReferralNumber:
			ins.ReferralNumber = d.str(c)
		case insurerCopayPercent:
			ins.CopayPercent = d.decimal(c)
		case insurerIssueDate:
			ins.IssueDate = d.date(c)
		case insurerExpiration:
			ins.ExpirationDate = d.date(c)
		}
	}
	if ins.Company == "" {
		d.fail(e.URL, "insurer without company")
		return
	}
	d.r.InsuranceEnabled = true
	d.r.Insurers.Slots[i-1] = ins
	if d.r.Insurers.Count < i {
		d.r.Insurers.Count = i
	}
}

func (d *decoder) guarantee(i int, e fhir.Extension) {
	children := e.Children()
	if children == nil {
		d.fail(e.URL, "expected nested extension, got %s", e.Kind())
		return
	}
	var g GuaranteeEntry
	for _, c := range children {
		switch c.URL {
		case guaranteeDonor:
			g.Donor = d.str(c)
		case guaranteeAmount:
			g.Amount = d.decimal(c)
		case guaranteeLetterNumber:
			g.LetterNumber = d.str(c)
		case guaranteeStartDate:
			g.StartDate = d.date(c)
		case guaranteeEndDate:
			g.EndDate = d.date(c)
		}
	}
	if g.Donor == "" {
		d.fail(e.URL, "guarantee letter without donor")
		return
	}
	d.r.Guarantees.Slots[i-1] = g
	if d.r.Guarantees.Count < i {
		d.r.Guarantees.Count = i
	}
}

func (d *decoder) str(e fhir.Extension) string {
	if e.Kind() == fhir.KindEmpty {
		return ""
	}
	v, ok := e.AsString()
	if !ok {
		d.fail(e.URL, "expected string, got %s", e.Kind())
	}
	return v
}

func (d *decoder) decimal(e fhir.Extension) float64 {
	if e.Kind() == fhir.KindEmpty {
		return 0
	}
	v, ok := e.AsDecimal()
	if !ok {
		d.fail(e.URL, "expected decimal, got %s", e.Kind())
	}
	return v
}

func (d *decoder) date(e fhir.Extension) Date {
	if e.Kind() == fhir.KindEmpty {
		return Date{}
	}
	t, ok := e.AsDate()
	if !ok {
		d.fail(e.URL, "malformed date")
		return Date{}
	}
	return DateOf(t)
}

// slotIndex parses "<prefix>N" for N in 1..MaxGroupSlots.
func slotIndex(url, prefix string) (int, bool) {
	if !strings.HasPrefix(url, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(url[len(prefix):])
	if err != nil || n < 1 || n > MaxGroupSlots {
		return 0, false
	}
	return n, true
}

func guaranteeIndex(url string) (int, bool) {
	if url == NodeGuarantee {
		return 1, true
	}
	n, ok := slotIndex(url, NodeGuarantee+"-")
	if !ok || n == 1 {
		return 0, false
	}
	return n, true
}

func knownReferral(r ReferralType) bool {
	return containsCode(referralTypes, string(r))
}

// Normalize returns r as it reads back after a store round trip: fields the
// encoder drops as empty, inactive or unreadable are cleared, and group counts
// shrink to the last slot that survives.
func Normalize(r VisitRegistration) VisitRegistration {
	out := VisitRegistration{
		VisitDate:  r.VisitDate,
		StatusCode: r.StatusCode,
		Department: r.Department,
	}
	if r.AdmissionClassification.Valid() {
		out.AdmissionClassification = r.AdmissionClassification
	}
	if v, ok := canonicalTime(r.VisitTime); ok {
		out.VisitTime = v
	}
	if knownReferral(r.ReferralType) {
		out.ReferralType = r.ReferralType
	}
	if r.InsuranceEnabled {
		for i, ins := range r.Insurers.Active() {
			if ins.Company != "" {
				out.Insurers.Slots[i] = ins
				out.Insurers.Count = i + 1
			}
		}
		out.InsuranceEnabled = out.Insurers.Count > 0
	}
	for i, g := range r.Guarantees.Active() {
		if g.Donor != "" {
			out.Guarantees.Slots[i] = g
			out.Guarantees.Count = i + 1
		}
	}
	return out
}
