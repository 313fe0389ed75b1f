/*
monitor.go - Missing-report monitor

PURPOSE:
  Periodically checks that every one-per-day checklist has today's report
  for each watched branch and logs the gaps, so a supervisor notices a
  missed temperature log before the inspector does.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Sweeps once immediately on Start
  - Uses Repository.ExistsForKey, the same probe the forms use
  - A probe that cannot reach the store is "unverified", never "missing"
  - Keeps only the last sweep for GET /api/monitor/missing

BRANCHES:
  Watched branches come from the config file (monitor.branches). A type
  without configured branches is watched for its branch fallback only;
  a type with neither is skipped.

USAGE:
  monitor := NewMissingReportMonitor(repo, logger, time.Hour, []string{"POS 10"})
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - handlers.go: CheckExists endpoint (single probe)
  - generic/repository.go: ExistsForKey
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/warp/report-sync/generic"
	"go.uber.org/zap"
)

const sweepTimeout = 30 * time.Second

// MissingReportMonitor sweeps one-per-day types for today's missing reports.
type MissingReportMonitor struct {
	Repo          *generic.Repository
	Logger        *zap.Logger
	CheckInterval time.Duration
	Branches      []string

	now    func() time.Time
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex // guards ticker and stop

	lastMu sync.RWMutex
	last   SweepDTO
}

// NewMissingReportMonitor creates a monitor. A non-positive interval
// defaults to one hour.
func NewMissingReportMonitor(repo *generic.Repository, logger *zap.Logger, interval time.Duration, branches []string) *MissingReportMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &MissingReportMonitor{
		Repo:          repo,
		Logger:        logger,
		CheckInterval: interval,
		Branches:      branches,
		now:           time.Now,
		last:          SweepDTO{Missing: []MissingReportDTO{}},
	}
}

// WithClock replaces the clock that decides "today".
func (m *MissingReportMonitor) WithClock(now func() time.Time) *MissingReportMonitor {
	m.now = now
	return m
}

// Start begins periodic sweeps. Calling Start twice is a no-op.
func (m *MissingReportMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker != nil {
		return
	}
	m.ticker = time.NewTicker(m.CheckInterval)
	m.stop = make(chan struct{})
	m.wg.Add(1)

	go m.run(m.ticker, m.stop)

	m.Logger.Info("missing-report monitor started", zap.Duration("interval", m.CheckInterval))
}

// Stop stops the sweeps and waits for a running one to finish.
func (m *MissingReportMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker == nil {
		return
	}
	m.ticker.Stop()
	close(m.stop)
	m.wg.Wait()
	m.ticker = nil
	m.Logger.Info("missing-report monitor stopped")
}

func (m *MissingReportMonitor) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer m.wg.Done()

	m.sweepWithTimeout(stop)
	for {
		select {
		case <-ticker.C:
			m.sweepWithTimeout(stop)
		case <-stop:
			return
		}
	}
}

func (m *MissingReportMonitor) sweepWithTimeout(stop <-chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	m.RunNow(ctx)
}

// RunNow sweeps immediately and returns the result.
func (m *MissingReportMonitor) RunNow(ctx context.Context) SweepDTO {
	at := m.now().UTC()
	day := at.Format(generic.DayLayout)
	sweep := SweepDTO{Day: day, RanAt: at.Format(time.RFC3339), Missing: []MissingReportDTO{}}

	for _, cfg := range m.Repo.Catalog().List() {
		if !cfg.OnePerDay {
			continue
		}
		for _, branch := range m.branchesFor(cfg) {
			sweep.Checked++
			exists, err := m.Repo.ExistsForKey(ctx, cfg.Type, branch, day)
			switch {
			case errors.Is(err, generic.ErrNotVerified):
				sweep.Missing = append(sweep.Missing, MissingReportDTO{Type: cfg.Type, Branch: branch, Day: day, Status: "unverified"})
			case err != nil:
				m.Logger.Error("existence probe failed", zap.String("type", cfg.Type), zap.String("branch", branch), zap.Error(err))
			case !exists:
				sweep.Missing = append(sweep.Missing, MissingReportDTO{Type: cfg.Type, Branch: branch, Day: day, Status: "missing"})
			}
		}
	}

	for _, miss := range sweep.Missing {
		m.Logger.Warn("report not submitted",
			zap.String("type", miss.Type),
			zap.String("branch", miss.Branch),
			zap.String("day", miss.Day),
			zap.String("status", miss.Status))
	}
	m.Logger.Info("missing-report sweep done",
		zap.String("day", day),
		zap.Int("checked", sweep.Checked),
		zap.Int("missing", len(sweep.Missing)))

	m.lastMu.Lock()
	m.last = sweep
	m.lastMu.Unlock()
	return sweep
}

// Last returns the most recent sweep.
func (m *MissingReportMonitor) Last() SweepDTO {
	m.lastMu.RLock()
	defer m.lastMu.RUnlock()
	return m.last
}

func (m *MissingReportMonitor) branchesFor(cfg generic.TypeConfig) []string {
	if len(m.Branches) > 0 {
		return m.Branches
	}
	if cfg.BranchFallback != "" {
		return []string{cfg.BranchFallback}
	}
	return nil
}

// =============================================================================
// HANDLERS
// =============================================================================

// GetMissingReports returns the last sweep.
func (h *Handler) GetMissingReports(w http.ResponseWriter, r *http.Request) {
	if h.Monitor == nil {
		writeError(w, http.StatusNotFound, "Monitor disabled", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Monitor.Last())
}

// RunMonitor sweeps now.
func (h *Handler) RunMonitor(w http.ResponseWriter, r *http.Request) {
	if h.Monitor == nil {
		writeError(w, http.StatusNotFound, "Monitor disabled", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Monitor.RunNow(r.Context()))
}
