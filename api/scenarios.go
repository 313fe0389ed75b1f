/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	checklist data. Every report is written through the Repository, so the
	seeded data obeys the same save modes as the forms: one-per-day keys,
	upsert replacement and merge-append unions.

AVAILABLE SCENARIOS:

	temperature-week: A week of POS 10 temperature logs, today re-saved
	vehicle-register: Overlapping vehicle approval saves merged into one register
	mixed-branches:   Daily checklists across three branches

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Save payloads through the Repository, dated relative to today
 3. Remember the loaded scenario for GET /api/scenarios/current

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "temperature-week"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Store and repository handlers
  - checklists/payloads.go: Payload builders
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/report-sync/checklists"
	"github.com/warp/report-sync/generic"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "temperature-week",
		Name:        "Temperature Week",
		Description: "Seven daily POS 10 temperature logs; today's log saved twice with upsert-replace",
		Category:    "daily",
	},
	{
		ID:          "vehicle-register",
		Name:        "Vehicle Register",
		Description: "Three merge-append saves of vehicle approvals with overlapping entries",
		Category:    "register",
	},
	{
		ID:          "mixed-branches",
		Name:        "Mixed Branches",
		Description: "Cleaning, hygiene, meat and pest control reports across three branches",
		Category:    "daily",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context, today time.Time) error{
	"temperature-week": (*Handler).loadTemperatureWeekScenario,
	"vehicle-register": (*Handler).loadVehicleRegisterScenario,
	"mixed-branches":   (*Handler).loadMixedBranchesScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	if err := load(h, ctx, h.today()); err != nil {
		h.Logger.Error("scenario load failed", zap.String("scenario", req.ScenarioID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	h.Logger.Info("scenario loaded", zap.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetStore clears all reports.
func (h *Handler) ResetStore(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) today() time.Time {
	now := time.Now
	if h.Clock != nil {
		now = h.Clock
	}
	t := now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadTemperatureWeekScenario(ctx context.Context, today time.Time) error {
	reading := func(at, unit, celsius string) checklists.TemperatureReading {
		return checklists.TemperatureReading{Time: at, Unit: unit, Celsius: decimal.RequireFromString(celsius)}
	}

	for i := 6; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format(generic.DayLayout)
		payload := checklists.TemperaturePayload("", day,
			reading("08:00", "chiller", "3.5"),
			reading("08:05", "freezer", "-19.0"),
		)
		payload["reporter"] = "Amina"
		if _, err := h.Repo.Save(ctx, checklists.POS10Temperature, payload, generic.ModeCreateOnly); err != nil {
			return fmt.Errorf("day %s: %w", day, err)
		}
	}

	// Afternoon round added to today's log
	day := today.Format(generic.DayLayout)
	payload := checklists.TemperaturePayload("", day,
		reading("08:00", "chiller", "3.5"),
		reading("08:05", "freezer", "-19.0"),
		reading("15:00", "chiller", "6.2"),
	)
	payload["reporter"] = "Amina"
	_, err := h.Repo.Save(ctx, checklists.POS10Temperature, payload, generic.ModeUpsertReplace)
	return err
}

func (h *Handler) loadVehicleRegisterScenario(ctx context.Context, today time.Time) error {
	a := checklists.VehicleApproval("DXB 12345", "TL-778", "2024-01-01", "2025-01-01")
	b := checklists.VehicleApproval("DXB 55501", "TL-901", "2024-02-01", "2025-02-01")
	c := checklists.VehicleApproval("SHJ 4420", "TL-332", "2024-03-15", "2025-03-15")
	d := checklists.VehicleApproval("AUH 9001", "TL-120", "2024-04-10", "2025-04-10")

	saves := []struct {
		offset  int
		entries []map[string]any
	}{
		{-2, []map[string]any{a, b}},
		{-1, []map[string]any{b, c}},
		{0, []map[string]any{a, c, d}},
	}
	for _, s := range saves {
		day := today.AddDate(0, 0, s.offset).Format(generic.DayLayout)
		payload := checklists.VehiclePayload(day, s.entries...)
		if _, err := h.Repo.Save(ctx, checklists.CarApprovals, payload, generic.ModeMergeAppend); err != nil {
			return fmt.Errorf("vehicle approvals %s: %w", day, err)
		}
	}
	return nil
}

func (h *Handler) loadMixedBranchesScenario(ctx context.Context, today time.Time) error {
	day := today.Format(generic.DayLayout)
	yesterday := today.AddDate(0, 0, -1).Format(generic.DayLayout)

	for _, branch := range []string{"POS 10", "POS 19", "Warehouse"} {
		payload := generic.Document{
			"branch":     branch,
			"reportDate": day,
			"items": []any{
				map[string]any{"area": "Prep tables", "done": true},
				map[string]any{"area": "Cold room floor", "done": true},
				map[string]any{"area": "Hand wash stations", "done": branch != "Warehouse"},
			},
		}
		if _, err := h.Repo.Save(ctx, checklists.CleaningChecklist, payload, ""); err != nil {
			return fmt.Errorf("cleaning %s: %w", branch, err)
		}
	}

	hygiene := generic.Document{
		"branch":     "POS 10",
		"reportDate": yesterday,
		"entries": []any{
			map[string]any{"staff": "Ravi", "uniform": true, "nails": true, "illness": false},
			map[string]any{"staff": "Joy", "uniform": true, "nails": false, "illness": false},
		},
	}
	if _, err := h.Repo.Save(ctx, checklists.PersonalHygiene, hygiene, ""); err != nil {
		return fmt.Errorf("hygiene: %w", err)
	}

	for _, kg := range []string{"42.5", "44.0"} {
		meat := generic.Document{
			"branch":     "POS 19",
			"reportDate": day,
			"entries":    []any{map[string]any{"cut": "Lamb shoulder", "kg": kg}},
		}
		if _, err := h.Repo.Save(ctx, checklists.MeatDaily, meat, ""); err != nil {
			return fmt.Errorf("meat daily: %w", err)
		}
	}

	pest := generic.Document{
		"branch":     "Warehouse",
		"visitDate":  yesterday,
		"contractor": "Gulf Pest Services",
		"findings":   "No activity",
	}
	if _, err := h.Repo.Save(ctx, checklists.PestControl, pest, ""); err != nil {
		return fmt.Errorf("pest control: %w", err)
	}
	return nil
}
