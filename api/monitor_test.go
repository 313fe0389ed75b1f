package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/report-sync/checklists"
	"github.com/warp/report-sync/generic"
	"github.com/warp/report-sync/generic/store"
)

var monitorDay = time.Date(2024, 5, 7, 9, 30, 0, 0, time.UTC)

func TestMonitor_ReportsMissingKeys(t *testing.T) {
	ctx := context.Background()
	repo := generic.NewRepository(store.NewMemory(), generic.WithCatalog(checklists.Catalog()))
	monitor := NewMissingReportMonitor(repo, nil, time.Hour, []string{"POS 10", "POS 19"}).
		WithClock(func() time.Time { return monitorDay })

	// GIVEN: Only POS 10's temperature log was submitted today
	_, err := repo.Save(ctx, checklists.POS10Temperature, generic.Document{"branch": "POS 10", "reportDate": "2024-05-07"}, "")
	require.NoError(t, err)

	// WHEN: Sweeping
	sweep := monitor.RunNow(ctx)

	// THEN: Every other one-per-day type and branch is missing
	var onePerDay int
	for _, cfg := range checklists.Presets() {
		if cfg.OnePerDay {
			onePerDay++
		}
	}
	assert.Equal(t, "2024-05-07", sweep.Day)
	assert.Equal(t, onePerDay*2, sweep.Checked)
	assert.Len(t, sweep.Missing, onePerDay*2-1)
	for _, miss := range sweep.Missing {
		assert.Equal(t, "missing", miss.Status)
		assert.False(t, miss.Type == checklists.POS10Temperature && miss.Branch == "POS 10")
	}
	assert.Equal(t, sweep, monitor.Last())
}

func TestMonitor_UnreachableStoreIsUnverified(t *testing.T) {
	repo := generic.NewRepository(downStore{}, generic.WithCatalog(generic.NewCatalog(
		generic.TypeConfig{Type: checklists.POS10Temperature, BranchFallback: "POS 10", OnePerDay: true},
		generic.TypeConfig{Type: checklists.CleaningChecklist, OnePerDay: true},
	)))
	monitor := NewMissingReportMonitor(repo, nil, 0, nil).WithClock(func() time.Time { return monitorDay })

	sweep := monitor.RunNow(context.Background())

	// The cleaning checklist has no fallback branch and none configured.
	assert.Equal(t, 1, sweep.Checked)
	require.Len(t, sweep.Missing, 1)
	assert.Equal(t, "unverified", sweep.Missing[0].Status)
	assert.Equal(t, time.Hour, monitor.CheckInterval)
}

func TestMonitor_StartStop(t *testing.T) {
	repo := generic.NewRepository(store.NewMemory(), generic.WithCatalog(checklists.Catalog()))
	monitor := NewMissingReportMonitor(repo, nil, time.Hour, nil).WithClock(func() time.Time { return monitorDay })

	monitor.Start()
	monitor.Start()
	require.Eventually(t, func() bool { return monitor.Last().Day == "2024-05-07" }, time.Second, 10*time.Millisecond)
	monitor.Stop()
	monitor.Stop()
}

func TestMonitor_Endpoints(t *testing.T) {
	s := newTestService(t)

	status, _ := s.do(t, http.MethodGet, "/api/monitor/missing", nil)
	assert.Equal(t, http.StatusNotFound, status, "monitor not configured")

	s.handler.Monitor = NewMissingReportMonitor(s.handler.Repo, nil, time.Hour, nil).
		WithClock(func() time.Time { return monitorDay })

	status, body := s.do(t, http.MethodPost, "/api/monitor/run", nil)
	require.Equal(t, http.StatusOK, status)
	sweep := decode[SweepDTO](t, body)
	assert.Equal(t, 2, sweep.Checked, "POS 10 and POS 19 temperature logs via their fallbacks")

	status, body = s.do(t, http.MethodGet, "/api/monitor/missing", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, sweep, decode[SweepDTO](t, body))
}

// downStore fails every call like an unreachable remote.
type downStore struct{}

func (downStore) List(context.Context, string) ([]generic.Report, error) {
	return nil, &generic.FetchError{Err: context.DeadlineExceeded}
}
func (downStore) Create(context.Context, generic.Report) (generic.Report, error) {
	return generic.Report{}, &generic.ServerError{Op: "create", Err: context.DeadlineExceeded}
}
func (downStore) Update(context.Context, string, generic.Report) (generic.Report, error) {
	return generic.Report{}, &generic.ServerError{Op: "update", Err: context.DeadlineExceeded}
}
func (downStore) Delete(context.Context, string) error {
	return &generic.ServerError{Op: "delete", Err: context.DeadlineExceeded}
}
