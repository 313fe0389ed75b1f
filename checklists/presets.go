/*
presets.go - Built-in report types for the branch food-safety checklists

PURPOSE:
  Every checklist page of the inspection app maps to one report type here.
  Each preset pins down what used to be re-implemented per page: where the
  logical day lives, whether the page handles a single branch, whether one
  report per branch per day is enforced, and how line entries are merged.

AVAILABLE TYPES:
  Daily logs, one per branch per day (create-only, store-enforced):
    POS10Temperature, POS19Temperature, CleaningChecklist, PersonalHygiene
  Daily logs that are re-saved during the day (upsert-replace):
    MeatDaily, ReceivingLog
  Periodic reviews (create-only, several per day allowed):
    PestControl, SupplierEvaluation
  Running registers (merge-append):
    CarApprovals  - deduped on vehicle + trade license + issue/expiry dates

CUSTOMIZATION:
  A deployment can override any preset through a catalog file; later
  definitions win (see factory.ParseCatalog).

EXAMPLE:
  repo := generic.NewRepository(store, generic.WithCatalog(checklists.Catalog()))
  entry := checklists.VehicleApproval("A 12345", "TL-778", "2024-01-01", "2025-01-01")
  repo.Save(ctx, checklists.CarApprovals, checklists.VehiclePayload("2024-05-01", entry), "")

SEE ALSO:
  - factory/catalog.go: File-based definitions
  - generic/catalog.go: TypeConfig
*/
package checklists

import "github.com/warp/report-sync/generic"

// =============================================================================
// REPORT TYPES
// =============================================================================

const (
	POS10Temperature   = "pos10_temperature"
	POS19Temperature   = "pos19_temperature"
	CleaningChecklist  = "cleaning_checklist"
	PersonalHygiene    = "personal_hygiene"
	MeatDaily          = "meat_daily"
	ReceivingLog       = "receiving_log"
	PestControl        = "pest_control"
	SupplierEvaluation = "supplier_evaluation"
	CarApprovals       = "car_approvals"
)

// VehicleDedupeFields identify one approved vehicle.
var VehicleDedupeFields = []string{"vehicleNo", "tradeLicense", "issueDate", "expiryDate"}

// Presets returns the built-in type configurations.
func Presets() []generic.TypeConfig {
	return []generic.TypeConfig{
		{
			Type:           POS10Temperature,
			Title:          "POS 10 temperature log",
			BranchFallback: "POS 10",
			OnePerDay:      true,
			DefaultMode:    generic.ModeCreateOnly,
		},
		{
			Type:           POS19Temperature,
			Title:          "POS 19 temperature log",
			BranchFallback: "POS 19",
			OnePerDay:      true,
			DefaultMode:    generic.ModeCreateOnly,
		},
		{
			Type:        CleaningChecklist,
			Title:       "Cleaning checklist",
			OnePerDay:   true,
			DefaultMode: generic.ModeCreateOnly,
		},
		{
			Type:        PersonalHygiene,
			Title:       "Personal hygiene checklist",
			OnePerDay:   true,
			DefaultMode: generic.ModeCreateOnly,
		},
		{
			Type:        MeatDaily,
			Title:       "Meat daily report",
			DefaultMode: generic.ModeUpsertReplace,
		},
		{
			Type:         ReceivingLog,
			Title:        "Receiving log",
			EntriesField: "rows",
			DefaultMode:  generic.ModeUpsertReplace,
		},
		{
			Type:        PestControl,
			Title:       "Pest control visit",
			DateField:   "visitDate",
			DefaultMode: generic.ModeCreateOnly,
		},
		{
			Type:        SupplierEvaluation,
			Title:       "Supplier evaluation",
			DateField:   "evaluationDate",
			DefaultMode: generic.ModeCreateOnly,
		},
		{
			Type:         CarApprovals,
			Title:        "Vehicle approvals",
			EntriesField: "entries",
			DedupeFields: VehicleDedupeFields,
			DefaultMode:  generic.ModeMergeAppend,
		},
	}
}

// Catalog returns a catalog holding the presets followed by overrides.
func Catalog(overrides ...generic.TypeConfig) *generic.Catalog {
	return generic.NewCatalog(append(Presets(), overrides...)...)
}
