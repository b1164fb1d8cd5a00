package fhir

import (
	"strings"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// ExtensionKind identifies which value[x] element of an Extension is populated.
// An extension carries exactly one value or a list of nested extensions.
type ExtensionKind int

const (
	KindEmpty ExtensionKind = iota
	KindString
	KindCode
	KindBoolean
	KindInteger
	KindDecimal
	KindDate
	KindTime
	KindNested
	// KindAmbiguous marks an extension with more than one value[x] element,
	// or a value alongside nested extensions.
	KindAmbiguous
)

func (k ExtensionKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindString:
		return "string"
	case KindCode:
		return "code"
	case KindBoolean:
		return "boolean"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindNested:
		return "nested"
	default:
		return "ambiguous"
	}
}

// Extension is a FHIR extension node: a url-named scalar or a url-named list
// of child extensions.
type Extension struct {
	URL          string      `json:"url"`
	ValueString  string      `json:"valueString,omitempty"`
	ValueCode    string      `json:"valueCode,omitempty"`
	ValueBoolean *bool       `json:"valueBoolean,omitempty"`
	ValueInteger *int        `json:"valueInteger,omitempty"`
	ValueDecimal *float64    `json:"valueDecimal,omitempty"`
	ValueDate    string      `json:"valueDate,omitempty"`
	ValueTime    string      `json:"valueTime,omitempty"`
	Extension    []Extension `json:"extension,omitempty"`
}

// Kind reports which element of the node is populated.
func (e Extension) Kind() ExtensionKind {
	kind := KindEmpty
	n := 0
	mark := func(set bool, k ExtensionKind) {
		if set {
			n++
			kind = k
		}
	}
	mark(e.ValueString != "", KindString)
	mark(e.ValueCode != "", KindCode)
	mark(e.ValueBoolean != nil, KindBoolean)
	mark(e.ValueInteger != nil, KindInteger)
	mark(e.ValueDecimal != nil, KindDecimal)
	mark(e.ValueDate != "", KindDate)
	mark(e.ValueTime != "", KindTime)
	mark(len(e.Extension) > 0, KindNested)
	if n > 1 {
		return KindAmbiguous
	}
	return kind
}

// AsString returns the string or code value of the node.
func (e Extension) AsString() (string, bool) {
	switch e.Kind() {
	case KindString:
		return e.ValueString, true
	case KindCode:
		return e.ValueCode, true
	}
	return "", false
}

// AsDecimal returns the decimal or integer value of the node.
func (e Extension) AsDecimal() (float64, bool) {
	switch e.Kind() {
	case KindDecimal:
		return *e.ValueDecimal, true
	case KindInteger:
		return float64(*e.ValueInteger), true
	}
	return 0, false
}

// AsBool returns the boolean value of the node.
func (e Extension) AsBool() (bool, bool) {
	if e.Kind() != KindBoolean {
		return false, false
	}
	return *e.ValueBoolean, true
}

// AsDate parses a FHIR date value (YYYY-MM-DD) into a UTC midnight time.
func (e Extension) AsDate() (time.Time, bool) {
	if e.Kind() != KindDate {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, e.ValueDate)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// AsTime returns a FHIR time value normalized to HH:MM.
func (e Extension) AsTime() (string, bool) {
	if e.Kind() != KindTime {
		return "", false
	}
	v := e.ValueTime
	if strings.Count(v, ":") == 1 {
		v += ":00"
	}
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return "", false
	}
	return t.Format("15:04"), true
}

// Children returns the nested extensions, or nil when the node is a scalar.
func (e Extension) Children() []Extension {
	if e.Kind() != KindNested {
		return nil
	}
	return e.Extension
}

func StringExtension(url, v string) Extension {
	return Extension{URL: url, ValueString: v}
}

func CodeExtension(url, v string) Extension {
	return Extension{URL: url, ValueCode: v}
}

func DecimalExtension(url string, v float64) Extension {
	return Extension{URL: url, ValueDecimal: &v}
}

func BooleanExtension(url string, v bool) Extension {
	return Extension{URL: url, ValueBoolean: &v}
}

// DateExtension writes the calendar date of t; the time of day is dropped.
func DateExtension(url string, t time.Time) Extension {
	return Extension{URL: url, ValueDate: t.Format(dateLayout)}
}

// TimeExtension writes an HH:MM time of day as a FHIR time.
func TimeExtension(url, hhmm string) Extension {
	return Extension{URL: url, ValueTime: hhmm + ":00"}
}

func NestedExtension(url string, children ...Extension) Extension {
	return Extension{URL: url, Extension: children}
}

// FindExtension returns the first extension with the given url.
func FindExtension(exts []Extension, url string) (Extension, bool) {
	for _, e := range exts {
		if e.URL == url {
			return e, true
		}
	}
	return Extension{}, false
}
