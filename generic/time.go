package generic

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// DAY NORMALIZATION - Every date-like value becomes YYYY-MM-DD
// =============================================================================

// DayLayout is the canonical day format. Lexical order equals date order.
const DayLayout = "2006-01-02"

// TimestampLayout is how stores render createdAt/updatedAt.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var (
	isoDay      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	isoDayStart = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[T ]\d{2}:\d{2}`)
	objectID    = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	numeric     = regexp.MustCompile(`^-?\d+(\.\d+)?([eE][+-]?\d+)?$`)

	// Epoch values below this are seconds, at or above are milliseconds.
	msThreshold = decimal.NewFromInt(100_000_000_000)
	thousand    = decimal.NewFromInt(1000)

	// Derived timestamps outside this window are treated as noise.
	minPlausible = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	maxPlausible = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Year-first only. Slashed day-first and month-first dates are ambiguous
// between locales and are rejected.
var dayLayouts = []string{
	"2006/01/02",
}

// NormalizeDay extracts a YYYY-MM-DD day from a date-like value.
//
// Accepted inputs: an ISO day (returned unchanged when it is a real calendar
// date), a timestamp string, an epoch number in seconds or milliseconds, a
// time.Time, or a store id that encodes its creation time (24-hex object id
// or UUIDv7). Timestamps carrying a zone (Z or an offset), epochs and ids
// give their UTC day. A zone-less timestamp keeps its date part as written.
func NormalizeDay(v any) (string, bool) {
	t, ok := toTime(v)
	if ok {
		return t.Format(DayLayout), true
	}
	s, isString := v.(string)
	if !isString {
		return "", false
	}
	s = strings.TrimSpace(s)
	if isoDay.MatchString(s) {
		if _, err := time.Parse(DayLayout, s); err == nil {
			return s, true
		}
		return "", false
	}
	if m := isoDayStart.FindStringSubmatch(s); m != nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC().Format(DayLayout), true
		}
		if _, err := time.Parse(DayLayout, m[1]); err == nil {
			return m[1], true
		}
		return "", false
	}
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(DayLayout), true
		}
	}
	if t, ok := IDTime(s); ok {
		return t.Format(DayLayout), true
	}
	return "", false
}

// toTime handles the non-string-layout inputs: numbers, numeric strings
// and time values.
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return toTime(*t)
	case string:
		s := strings.TrimSpace(t)
		if !numeric.MatchString(s) {
			return time.Time{}, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return time.Time{}, false
		}
		return epochTime(d)
	}
	d, ok := toDecimal(v)
	if !ok {
		return time.Time{}, false
	}
	return epochTime(d)
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case int32:
		return decimal.NewFromInt32(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	}
	return decimal.Decimal{}, false
}

// epochMillis converts an epoch number to milliseconds.
func epochMillis(d decimal.Decimal) int64 {
	if d.Abs().LessThan(msThreshold) {
		d = d.Mul(thousand)
	}
	return d.Truncate(0).IntPart()
}

func epochTime(d decimal.Decimal) (time.Time, bool) {
	t := time.UnixMilli(epochMillis(d)).UTC()
	if !plausible(t) {
		return time.Time{}, false
	}
	return t, true
}

func plausible(t time.Time) bool {
	return !t.Before(minPlausible) && t.Before(maxPlausible)
}

// =============================================================================
// ID-DERIVED TIME
// =============================================================================

// IDTime extracts the creation time encoded in a store-assigned id.
//
// Two encodings are recognised: a 24-hex object id whose first 8 hex
// characters are big-endian epoch seconds, and a UUIDv7 whose first 48 bits
// are epoch milliseconds.
func IDTime(id string) (time.Time, bool) {
	id = strings.TrimSpace(id)
	if objectID.MatchString(id) {
		b, err := hex.DecodeString(id[:8])
		if err != nil {
			return time.Time{}, false
		}
		secs := int64(b[0])<<24 | int64(b[1])<<16 | int64(b[2])<<8 | int64(b[3])
		t := time.Unix(secs, 0).UTC()
		return t, plausible(t)
	}
	u, err := uuid.Parse(id)
	if err != nil || u.Version() != 7 {
		return time.Time{}, false
	}
	var ms int64
	for _, b := range u[:6] {
		ms = ms<<8 | int64(b)
	}
	t := time.UnixMilli(ms).UTC()
	return t, plausible(t)
}

// NewID returns a UUIDv7 whose timestamp bits are taken from t, so ids
// follow the store's clock and IDTime can recover the creation time.
func NewID(t time.Time) (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	ms := uint64(t.UnixMilli())
	for i := 5; i >= 0; i-- {
		u[i] = byte(ms)
		ms >>= 8
	}
	return u.String(), nil
}
