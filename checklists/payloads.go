package checklists

import (
	"github.com/shopspring/decimal"
	"github.com/warp/report-sync/generic"
)

// =============================================================================
// PAYLOAD BUILDERS - Shapes the form pages send
// =============================================================================

// VehicleApproval builds one entry of the vehicle approvals register.
func VehicleApproval(vehicleNo, tradeLicense, issueDate, expiryDate string) map[string]any {
	return map[string]any{
		"vehicleNo":    vehicleNo,
		"tradeLicense": tradeLicense,
		"issueDate":    issueDate,
		"expiryDate":   expiryDate,
	}
}

// VehiclePayload wraps approval entries into a car_approvals payload.
func VehiclePayload(reportDate string, entries ...map[string]any) generic.Document {
	list := make([]any, len(entries))
	for i, e := range entries {
		list[i] = e
	}
	return generic.Document{"reportDate": reportDate, "entries": list}
}

// TemperatureReading is one row of a temperature log.
type TemperatureReading struct {
	Time    string          // "08:00"
	Unit    string          // chiller, freezer, display
	Celsius decimal.Decimal // as read off the probe
	Action  string          // corrective action, if out of range
}

// Limits for chilled and frozen storage.
var (
	ChillerMax = decimal.NewFromInt(5)
	FreezerMax = decimal.NewFromInt(-18)
)

// OutOfRange reports whether the reading breaches its unit's limit.
func (r TemperatureReading) OutOfRange() bool {
	switch r.Unit {
	case "freezer":
		return r.Celsius.GreaterThan(FreezerMax)
	default:
		return r.Celsius.GreaterThan(ChillerMax)
	}
}

// TemperaturePayload builds a temperature log payload. Readings keep their
// exact decimal digits (encoded as JSON strings).
func TemperaturePayload(branch, reportDate string, readings ...TemperatureReading) generic.Document {
	entries := make([]any, len(readings))
	for i, r := range readings {
		entries[i] = map[string]any{
			"time":       r.Time,
			"unit":       r.Unit,
			"celsius":    r.Celsius,
			"outOfRange": r.OutOfRange(),
			"action":     r.Action,
		}
	}
	doc := generic.Document{"reportDate": reportDate, "entries": entries}
	if branch != "" {
		doc["branch"] = branch
	}
	return doc
}
