/*
handlers.go - HTTP API handlers for the reports service

PURPOSE:
  Exposes two surfaces over one store:
  - The store contract the synchronization engine talks to: a log of
    opaque JSON documents filtered by type (GET/POST /reports,
    PUT/DELETE /reports/{id}).
  - The Repository operations for thin clients that should not run the
    engine themselves (calendar, latest, exists, save).

ENDPOINTS:
  Store contract:
    GET    /reports?type=T[&branch=B]      List reports of a type
    POST   /reports                        Create (409 on duplicate idempotencyKey)
    GET    /reports/{id}                   One report
    PUT    /reports/{id}                   Replace payload
    DELETE /reports/{id}                   Delete (204, 404 when absent)

  Repository:
    GET    /api/types                      Catalog with stored counts
    GET    /api/types/{type}/calendar      Year > month > day tree
    GET    /api/types/{type}/latest        One report per key
    GET    /api/types/{type}/exists        ?branch=&day=
    POST   /api/types/{type}/save          ?mode= body is the payload

  Filters (calendar, latest): branch, from, to (inclusive days).

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unkeyable payload, unknown mode
  - 404: Report not found
  - 409: Conflict (idempotency key already stored)
  - 502: Backing store unreachable (Repository running over a remote client)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The service is meant to run behind the branch
  network's reverse proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data loaders
  - monitor.go: Missing-report sweeps
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/report-sync/generic"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// ReportStore is what the service needs from its backing store.
type ReportStore interface {
	generic.RemoteStore
	Get(ctx context.Context, id string) (generic.Report, error)
	Types(ctx context.Context) (map[string]int, error)
	Reset(ctx context.Context) error
}

// branchLister is implemented by stores that filter by branch natively.
type branchLister interface {
	ListByBranch(ctx context.Context, typ, branch string) ([]generic.Report, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   ReportStore
	Repo    *generic.Repository
	Logger  *zap.Logger
	Monitor *MissingReportMonitor
	Clock   func() time.Time // scenario dates; nil means time.Now

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over store. repo defaults to a Repository
// on the same store with an empty catalog.
func NewHandler(store ReportStore, repo *generic.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if repo == nil {
		repo = generic.NewRepository(store, generic.WithLogger(logger))
	}
	return &Handler{Store: store, Repo: repo, Logger: logger}
}

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// STORE CONTRACT HANDLERS
// =============================================================================

// ListReports returns every report of ?type=, optionally for one ?branch=.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	typ := strings.TrimSpace(r.URL.Query().Get("type"))
	if typ == "" {
		writeError(w, http.StatusBadRequest, "Missing type query parameter", nil)
		return
	}
	branch := r.URL.Query().Get("branch")

	var (
		reports []generic.Report
		err     error
	)
	if bl, ok := h.Store.(branchLister); ok && branch != "" {
		reports, err = bl.ListByBranch(r.Context(), typ, branch)
	} else {
		reports, err = h.Store.List(r.Context(), typ)
		if err == nil && branch != "" {
			reports = filterBranch(reports, branch)
		}
	}
	if err != nil {
		h.Logger.Error("list reports failed", zap.String("type", typ), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list reports", err)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{Data: reports})
}

// GetReport returns one report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rep, err := h.Store.Get(r.Context(), id)
	if err != nil {
		if generic.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Report not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get report", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// CreateReport stores a new report.
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req CreateReportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid report", err)
		return
	}

	created, err := h.Store.Create(r.Context(), req.ToReport())
	if err != nil {
		if generic.IsConflict(err) {
			writeError(w, http.StatusConflict, "Report already exists", err)
			return
		}
		h.Logger.Error("create report failed", zap.String("type", req.Type), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create report", err)
		return
	}

	h.Logger.Debug("report created",
		zap.String("type", created.Type),
		zap.String("id", created.ID),
		zap.String("idempotency_key", created.IdempotencyKey))
	writeJSON(w, http.StatusCreated, created)
}

// UpdateReport replaces the payload of an existing report.
func (h *Handler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateReportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid report", err)
		return
	}

	updated, err := h.Store.Update(r.Context(), id, generic.Report{
		Payload:  req.Payload,
		Reporter: req.Reporter,
		Branch:   req.Branch,
	})
	if err != nil {
		if generic.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Report not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update report", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteReport removes a report.
func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Store.Delete(r.Context(), id); err != nil {
		if generic.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Report not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete report", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REPOSITORY HANDLERS
// =============================================================================

// ListTypes returns the catalog merged with the types actually stored.
func (h *Handler) ListTypes(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Store.Types(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count reports", err)
		return
	}

	catalog := h.Repo.Catalog()
	dtos := []TypeDTO{}
	seen := make(map[string]bool)
	for _, cfg := range catalog.List() {
		dtos = append(dtos, toTypeDTO(cfg, counts[cfg.Type]))
		seen[cfg.Type] = true
	}
	var extra []string
	for typ := range counts {
		if !seen[typ] {
			extra = append(extra, typ)
		}
	}
	sort.Strings(extra)
	for _, typ := range extra {
		dtos = append(dtos, toTypeDTO(catalog.Config(typ), counts[typ]))
	}

	writeJSON(w, http.StatusOK, dtos)
}

// GetCalendar returns the browse tree of a type.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	tree, err := h.Repo.Calendar(r.Context(), typ, filterFrom(r))
	if err != nil {
		h.writeDomainError(w, "Failed to build calendar", err)
		return
	}
	writeJSON(w, http.StatusOK, CalendarResponse{Type: typ, Years: tree})
}

// GetLatest returns the authoritative report per key.
func (h *Handler) GetLatest(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	latest, err := h.Repo.Latest(r.Context(), typ, filterFrom(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list latest reports", err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Data: latest})
}

// CheckExists answers whether a report for (type, branch, day) is stored.
// An unreachable store answers 200 with verified=false.
func (h *Handler) CheckExists(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")
	q := r.URL.Query()
	branch := q.Get("branch")
	if branch == "" {
		branch = h.Repo.Catalog().Config(typ).BranchFallback
	}
	key := generic.NewRecordKey(typ, branch, q.Get("day"))

	exists, err := h.Repo.ExistsForKey(r.Context(), typ, branch, q.Get("day"))
	switch {
	case errors.Is(err, generic.ErrNotVerified):
		h.Logger.Warn("existence not verified", zap.String("key", key.String()), zap.Error(err))
		writeJSON(w, http.StatusOK, ExistsResponse{Key: key, Exists: false, Verified: false})
	case err != nil:
		h.writeDomainError(w, "Failed to check report", err)
	default:
		writeJSON(w, http.StatusOK, ExistsResponse{Key: key, Exists: exists, Verified: true})
	}
}

// SaveReport saves the request body as a payload of the type.
func (h *Handler) SaveReport(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")

	var mode generic.SaveMode
	if m := r.URL.Query().Get("mode"); m != "" {
		parsed, err := generic.ParseSaveMode(m)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid save mode", err)
			return
		}
		mode = parsed
	}

	var payload generic.Document
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Repo.Save(r.Context(), typ, payload, mode)
	if err != nil {
		h.writeDomainError(w, "Failed to save report", err)
		return
	}

	resp := SaveResponse{SaveResult: res}
	if key, ok := generic.KeyOf(res.Report, h.Repo.Catalog().Config(typ).KeyOptions()); ok {
		resp.Key = &key
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func filterFrom(r *http.Request) generic.Filter {
	q := r.URL.Query()
	return generic.Filter{
		Branch: q.Get("branch"),
		From:   q.Get("from"),
		To:     q.Get("to"),
	}
}

func filterBranch(reports []generic.Report, branch string) []generic.Report {
	want := generic.NormalizeBranch(branch)
	out := []generic.Report{}
	for _, rep := range reports {
		if generic.NormalizeBranch(rep.BranchValue()) == want {
			out = append(out, rep)
		}
	}
	return out
}

// decodeBody decodes JSON keeping numbers exact.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// writeDomainError maps engine errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case generic.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, generic.ErrFetch), errors.Is(err, generic.ErrServer):
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusBadGateway, message, err)
	default:
		h.Logger.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
