/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures of the reports service. The stored document
  itself (generic.Report) is the wire format of the store contract, so most
  responses wrap it rather than mirror it.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Envelope types

TYPES:
  Store contract:
    CreateReportRequest, UpdateReportRequest, ListResponse

  Repository:
    TypeDTO, ExistsResponse, CalendarResponse, SaveResponse

  Scenarios / monitor:
    ScenarioDTO, LoadScenarioRequest, MissingReportDTO, SweepDTO

VALIDATION:
  Request types carry go-playground/validator tags; handlers call
  validateRequest after decoding.

SEE ALSO:
  - handlers.go: Uses these types
  - client.go: Decodes the same envelopes
*/
package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/warp/report-sync/generic"
)

// =============================================================================
// STORE CONTRACT
// =============================================================================

// CreateReportRequest is the body of POST /reports.
type CreateReportRequest struct {
	Type           string           `json:"type" validate:"required,max=64"`
	Payload        generic.Document `json:"payload"`
	Reporter       string           `json:"reporter,omitempty" validate:"max=200"`
	Branch         string           `json:"branch,omitempty" validate:"max=200"`
	IdempotencyKey string           `json:"idempotencyKey,omitempty" validate:"max=300"`
}

// ToReport converts the request to a report to store.
func (r CreateReportRequest) ToReport() generic.Report {
	return generic.Report{
		Type:           strings.TrimSpace(r.Type),
		Payload:        r.Payload,
		Reporter:       r.Reporter,
		Branch:         r.Branch,
		IdempotencyKey: r.IdempotencyKey,
	}
}

// UpdateReportRequest is the body of PUT /reports/{id}.
type UpdateReportRequest struct {
	Payload  generic.Document `json:"payload" validate:"required"`
	Reporter string           `json:"reporter,omitempty" validate:"max=200"`
	Branch   string           `json:"branch,omitempty" validate:"max=200"`
}

// ListResponse is the envelope of GET /reports.
type ListResponse struct {
	Data []generic.Report `json:"data"`
}

// =============================================================================
// REPOSITORY
// =============================================================================

// TypeDTO describes one configured report type.
type TypeDTO struct {
	Type           string   `json:"type"`
	Title          string   `json:"title,omitempty"`
	DateField      string   `json:"dateField,omitempty"`
	BranchFallback string   `json:"branchFallback,omitempty"`
	EntriesField   string   `json:"entriesField,omitempty"`
	DedupeFields   []string `json:"dedupeFields,omitempty"`
	DefaultMode    string   `json:"defaultMode"`
	OnePerDay      bool     `json:"onePerDay"`
	Stored         int      `json:"stored"`
}

// ExistsResponse answers GET /api/types/{type}/exists.
type ExistsResponse struct {
	Key      generic.RecordKey `json:"key"`
	Exists   bool              `json:"exists"`
	Verified bool              `json:"verified"`
}

// CalendarResponse is the browse tree of one type.
type CalendarResponse struct {
	Type  string                 `json:"type"`
	Years []generic.CalendarNode `json:"years"`
}

// SaveResponse reports what a save wrote.
type SaveResponse struct {
	generic.SaveResult
	Key *generic.RecordKey `json:"key,omitempty"`
}

// =============================================================================
// SCENARIOS / MONITOR
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// MissingReportDTO is one key without a stored report.
type MissingReportDTO struct {
	Type   string `json:"type"`
	Branch string `json:"branch"`
	Day    string `json:"day"`
	Status string `json:"status"` // missing, unverified
}

// SweepDTO is the outcome of one monitor sweep.
type SweepDTO struct {
	Day     string             `json:"day"`
	RanAt   string             `json:"ranAt,omitempty"`
	Checked int                `json:"checked"`
	Missing []MissingReportDTO `json:"missing"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// VALIDATION / CONVERSION HELPERS
// =============================================================================

var validate = validator.New()

func validateRequest(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func toTypeDTO(cfg generic.TypeConfig, stored int) TypeDTO {
	mode := cfg.DefaultMode
	if mode == "" {
		mode = generic.ModeCreateOnly
	}
	return TypeDTO{
		Type:           cfg.Type,
		Title:          cfg.Title,
		DateField:      cfg.DateField,
		BranchFallback: cfg.BranchFallback,
		EntriesField:   cfg.EntriesField,
		DedupeFields:   cfg.DedupeFields,
		DefaultMode:    string(mode),
		OnePerDay:      cfg.OnePerDay,
		Stored:         stored,
	}
}
