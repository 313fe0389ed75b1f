/*
key.go - Logical identity of a report: (type, branch, day)

PURPOSE:
  Two stored documents with equal RecordKeys are the same logical report,
  even when the store holds them as distinct documents. Everything that
  detects duplicates or groups related records goes through KeyOf.

NORMALIZATION:
  type:   trimmed, compared exactly
  branch: trimmed and lower-cased ("POS 10 " == "pos 10")
  day:    YYYY-MM-DD via NormalizeDay

DAY SOURCE PRIORITY:
  1. The configured date field (KeyOptions.DateField)
  2. payload.reportDate, then payload.date
  3. The id-derived creation time
  4. The store's createdAt
  The explicit fields come first because the id and createdAt reflect
  when the report was saved, not which day it reports on.
  A filled date field that does not parse leaves the report without a
  day; the save time is only used when no date field is filled.

SEE ALSO:
  - time.go: NormalizeDay
  - latest.go: Groups by RecordKey
*/
package generic

import (
	"fmt"
	"strings"
)

// RecordKey identifies one logical report instance.
// It is comparable and safe to use as a map key.
type RecordKey struct {
	Type   string `json:"type"`
	Branch string `json:"branch"`
	Day    string `json:"day"`
}

// KeyOptions tunes key derivation for a report type.
type KeyOptions struct {
	// BranchFallback is used when the record carries no branch at all.
	BranchFallback string
	// DateField is the payload field holding the logical day.
	DateField string
}

// DefaultDateFields are tried after the configured date field.
var DefaultDateFields = []string{"reportDate", "date"}

// NewRecordKey builds a normalized key. The day is normalized too; an
// unparseable day is kept trimmed so Valid reports false.
func NewRecordKey(typ, branch, day string) RecordKey {
	if d, ok := NormalizeDay(day); ok {
		day = d
	} else {
		day = strings.TrimSpace(day)
	}
	return RecordKey{
		Type:   strings.TrimSpace(typ),
		Branch: NormalizeBranch(branch),
		Day:    day,
	}
}

// NormalizeBranch trims surrounding whitespace and lower-cases.
func NormalizeBranch(branch string) string {
	return strings.ToLower(strings.TrimSpace(branch))
}

// Valid reports whether type and day are both known.
func (k RecordKey) Valid() bool {
	if k.Type == "" {
		return false
	}
	d, ok := NormalizeDay(k.Day)
	return ok && d == k.Day
}

// Equals compares two keys on their normalized triple.
func (k RecordKey) Equals(other RecordKey) bool {
	return NewRecordKey(k.Type, k.Branch, k.Day) == NewRecordKey(other.Type, other.Branch, other.Day)
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Type, k.Branch, k.Day)
}

// =============================================================================
// KEY DERIVATION
// =============================================================================

// DayOf returns the logical day of a report. The first filled date field
// decides: when it does not parse, the report has no day, even though its
// id and createdAt would give one.
func DayOf(r Report, dateField string) (string, bool) {
	for _, f := range dayFields(dateField) {
		if v, ok := r.Payload[f]; ok && !blank(v) {
			return NormalizeDay(v)
		}
	}
	if t, ok := IDTime(r.ID); ok {
		return t.Format(DayLayout), true
	}
	if r.CreatedAt != nil {
		return NormalizeDay(r.CreatedAt)
	}
	return "", false
}

// blank reports an unset form field: nil or an all-space string.
func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func dayFields(dateField string) []string {
	if dateField == "" {
		return DefaultDateFields
	}
	fields := []string{dateField}
	for _, f := range DefaultDateFields {
		if f != dateField {
			fields = append(fields, f)
		}
	}
	return fields
}

// KeyOf derives the RecordKey of a report. ok is false when the type or
// the day cannot be determined; such records never collide with others.
func KeyOf(r Report, opts KeyOptions) (RecordKey, bool) {
	typ := strings.TrimSpace(r.Type)
	if typ == "" {
		return RecordKey{}, false
	}
	day, ok := DayOf(r, opts.DateField)
	if !ok {
		return RecordKey{}, false
	}
	branch := r.BranchValue()
	if strings.TrimSpace(branch) == "" {
		branch = opts.BranchFallback
	}
	return RecordKey{Type: typ, Branch: NormalizeBranch(branch), Day: day}, true
}

// RequireKey is KeyOf for call sites that cannot proceed without a key.
func RequireKey(r Report, opts KeyOptions) (RecordKey, error) {
	if k, ok := KeyOf(r, opts); ok {
		return k, nil
	}
	reason := "no parseable day"
	if strings.TrimSpace(r.Type) == "" {
		reason = "missing type"
	}
	return RecordKey{}, &KeyError{Type: r.Type, ID: r.ID, Reason: reason}
}
