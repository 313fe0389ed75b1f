/*
types.go - Core data model for the report synchronization engine

PURPOSE:
  Defines the Report document exchanged with the remote store and the
  opaque payload it carries. The engine inspects only a handful of
  normalized fields (type, branch, a day-like field, entries, timestamps);
  everything else in the payload is passed through untouched.

KEY CONCEPTS:
  Report:   One stored JSON document representing a submitted checklist.
  Document: Opaque JSON object (map of string to JSON value).
  SaveMode: create-only | upsert-replace | merge-append.

DOCUMENT SHAPE:
  {
    "id": "0190d3c2-...",          // assigned by the store
    "type": "pos10_temperature",
    "branch": "POS 10",            // optional, may live in payload instead
    "payload": {
      "branch": "POS 10",
      "reportDate": "2024-05-01",
      "entries": [ ... ],
      "_clientSavedAt": 1714550400000
    },
    "createdAt": "2024-05-01T08:00:00.000Z",
    "updatedAt": "2024-05-01T08:00:00.000Z"
  }

NUMBERS:
  Documents are decoded with json.Decoder.UseNumber so epoch timestamps
  keep their exact digits. Use DecodeDocument / DecodeReport rather than
  json.Unmarshal.

SEE ALSO:
  - key.go: RecordKey derivation
  - latest.go: Timestamp extraction
  - repository.go: Save modes
*/
package generic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// REPORT
// =============================================================================

// Document is an opaque JSON object.
type Document map[string]any

// Report is one stored document.
type Report struct {
	ID             string   `json:"id,omitempty"`
	Type           string   `json:"type"`
	Branch         string   `json:"branch,omitempty"`
	Reporter       string   `json:"reporter,omitempty"`
	Payload        Document `json:"payload"`
	CreatedAt      any      `json:"createdAt,omitempty"`
	UpdatedAt      any      `json:"updatedAt,omitempty"`
	IdempotencyKey string   `json:"idempotencyKey,omitempty"`
}

// BranchValue returns the top-level branch, else payload.branch.
func (r Report) BranchValue() string {
	if strings.TrimSpace(r.Branch) != "" {
		return r.Branch
	}
	return r.Payload.String("branch")
}

// Clone returns a copy whose payload can be modified without touching r.
func (r Report) Clone() Report {
	out := r
	out.Payload = r.Payload.Clone()
	return out
}

// =============================================================================
// DOCUMENT ACCESSORS
// =============================================================================

// String returns a string field, or "" if absent or not a string.
func (d Document) String(field string) string {
	if d == nil {
		return ""
	}
	s, _ := d[field].(string)
	return s
}

// Lookup returns the first present, non-nil value among fields.
func (d Document) Lookup(fields ...string) (any, bool) {
	for _, f := range fields {
		if f == "" {
			continue
		}
		if v, ok := d[f]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Clone makes a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Document(t).Clone())
	case Document:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// DefaultEntriesFields are the line-item list names seen across checklists.
var DefaultEntriesFields = []string{"entries", "items", "rows"}

// Entries returns the line-item list and the field it was found under.
// ok is false when the document has no list under any of the fields.
func (d Document) Entries(fields ...string) (entries []any, field string, ok bool) {
	if len(fields) == 0 {
		fields = DefaultEntriesFields
	}
	for _, f := range fields {
		if list, isList := d[f].([]any); isList {
			return list, f, true
		}
	}
	return nil, "", false
}

// =============================================================================
// SAVE MODE
// =============================================================================

// SaveMode selects how Repository.Save writes a report.
type SaveMode string

const (
	// ModeCreateOnly issues a single create; a store rejection is final.
	ModeCreateOnly SaveMode = "create-only"
	// ModeUpsertReplace deletes prior records for the key, then creates.
	ModeUpsertReplace SaveMode = "upsert-replace"
	// ModeMergeAppend unions entries across all records of the type.
	ModeMergeAppend SaveMode = "merge-append"
)

// ParseSaveMode accepts the canonical names and their underscore forms.
func ParseSaveMode(s string) (SaveMode, error) {
	switch m := SaveMode(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")); m {
	case ModeCreateOnly, ModeUpsertReplace, ModeMergeAppend:
		return m, nil
	case "":
		return "", fmt.Errorf("%w: empty", ErrInvalidMode)
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// =============================================================================
// DECODING
// =============================================================================

// DecodeDocument decodes a JSON object preserving number precision.
func DecodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := decodeNumbers(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// DecodeReport decodes one report document preserving number precision.
func DecodeReport(data []byte) (Report, error) {
	var r Report
	if err := decodeNumbers(data, &r); err != nil {
		return Report{}, err
	}
	return r, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
