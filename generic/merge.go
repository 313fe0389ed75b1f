package generic

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// MERGE-APPEND - Union of line entries across every record of a type
// =============================================================================

// EntryKey returns the composite identity of one entry.
//
// With fields, the identity is the exact values of those fields (a missing
// field counts as null). Without fields, or for entries that are not JSON
// objects, the whole entry is the identity.
func EntryKey(entry any, fields []string) string {
	obj, isObj := asObject(entry)
	if !isObj || len(fields) == 0 {
		return canonical(entry)
	}
	values := make([]any, len(fields))
	for i, f := range fields {
		values[i] = obj[f]
	}
	return canonical(values)
}

// DedupeEntries removes entries whose EntryKey was already seen.
// The first occurrence is kept and order is preserved.
func DedupeEntries(entries []any, fields []string) []any {
	seen := make(map[string]struct{}, len(entries))
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		k := EntryKey(e, fields)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

// FlattenEntries concatenates the line entries of every record in order.
func FlattenEntries(records []Report, fields ...string) []any {
	var out []any
	for _, r := range records {
		if entries, _, ok := r.Payload.Entries(fields...); ok {
			out = append(out, entries...)
		}
	}
	return out
}

// MergeEntries returns the deduplicated union of existing and incoming
// entries. Existing entries keep their positions; new ones are appended.
func MergeEntries(existing, incoming []any, fields []string) []any {
	all := make([]any, 0, len(existing)+len(incoming))
	all = append(all, existing...)
	all = append(all, incoming...)
	return DedupeEntries(all, fields)
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Document:
		return t, true
	}
	return nil, false
}

// canonical renders a JSON value deterministically; encoding/json sorts map
// keys and json.Number keeps its literal digits.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(b)
}
