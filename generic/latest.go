/*
latest.go - Latest-wins resolution among records sharing a RecordKey

PURPOSE:
  The store is append-only in practice: resubmitting a day's checklist
  often leaves the older document behind. Browse and edit pages must show
  exactly one record per (type, branch, day), the most recent one.

TIMESTAMP PRIORITY:
  1. updatedAt  (top level, then payload)
  2. createdAt  (top level, then payload)
  3. id-derived creation time
  4. payload._clientSavedAt, then payload.savedAt
  5. 0 - the record loses every tie

  All timestamps are epoch milliseconds. Numeric values below 1e11 are
  read as seconds.

TIES:
  First occurrence in input order wins, so results are deterministic.

SEE ALSO:
  - key.go: KeyOf groups the records
  - calendar.go: Usually fed the resolved set
*/
package generic

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TimestampOf returns the record's ordering timestamp in epoch milliseconds.
func TimestampOf(r Report) int64 {
	candidates := []any{r.UpdatedAt, r.Payload["updatedAt"], r.CreatedAt, r.Payload["createdAt"]}
	for _, v := range candidates {
		if ms, ok := timestampValue(v); ok {
			return ms
		}
	}
	if t, ok := IDTime(r.ID); ok {
		return t.UnixMilli()
	}
	for _, v := range []any{r.Payload["_clientSavedAt"], r.Payload["savedAt"]} {
		if ms, ok := timestampValue(v); ok {
			return ms
		}
	}
	return 0
}

// timestampValue parses a number (seconds or ms) or a time string.
// Unlike day normalization, no plausibility window is applied: small
// numbers are still valid orderings.
func timestampValue(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case time.Time:
		if t.IsZero() {
			return 0, false
		}
		return t.UnixMilli(), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if numeric.MatchString(s) {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return 0, false
			}
			return epochMillis(d), true
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", DayLayout} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UnixMilli(), true
			}
		}
		return 0, false
	}
	d, ok := toDecimal(v)
	if !ok {
		return 0, false
	}
	return epochMillis(d), true
}

// =============================================================================
// RESOLUTION
// =============================================================================

// PickLatestPerKey keeps, for every distinct RecordKey, the record with the
// greatest TimestampOf. Records without a derivable key are dropped.
func PickLatestPerKey(records []Report, opts KeyOptions) map[RecordKey]Report {
	out := make(map[RecordKey]Report)
	best := make(map[RecordKey]int64)
	for _, r := range records {
		k, ok := KeyOf(r, opts)
		if !ok {
			continue
		}
		ts := TimestampOf(r)
		if cur, seen := best[k]; seen && ts <= cur {
			continue
		}
		out[k] = r
		best[k] = ts
	}
	return out
}

// LatestList is PickLatestPerKey flattened for display, sorted by day then
// branch then type.
func LatestList(records []Report, opts KeyOptions) []Report {
	latest := PickLatestPerKey(records, opts)
	keys := make([]RecordKey, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Day != keys[j].Day {
			return keys[i].Day < keys[j].Day
		}
		if keys[i].Branch != keys[j].Branch {
			return keys[i].Branch < keys[j].Branch
		}
		return keys[i].Type < keys[j].Type
	})
	out := make([]Report, len(keys))
	for i, k := range keys {
		out[i] = latest[k]
	}
	return out
}
