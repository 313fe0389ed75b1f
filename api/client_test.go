package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/report-sync/checklists"
	"github.com/warp/report-sync/generic"
)

// stubServer answers every request with status and body.
func stubServer(t *testing.T, status int, body string) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, NewClient(srv.URL, WithHTTPClient(srv.Client()))
}

func TestClient_ListResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bare array", `[{"id":"a","type":"t","payload":{}}]`, 1},
		{"data", `{"data":[{"id":"a","type":"t","payload":{}},{"id":"b","type":"t","payload":{}}]}`, 2},
		{"items", `{"items":[{"id":"a","type":"t","payload":{}}]}`, 1},
		{"rows", `{"rows":[]}`, 0},
		{"reports", `{"reports":[{"id":"a","type":"t","payload":{}}]}`, 1},
		{"null", `null`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := stubServer(t, http.StatusOK, tt.body)
			reports, err := client.List(context.Background(), "t")
			require.NoError(t, err)
			assert.NotNil(t, reports)
			assert.Len(t, reports, tt.want)
		})
	}
}

func TestClient_ListFailures(t *testing.T) {
	_, client := stubServer(t, http.StatusServiceUnavailable, `{"error":"maintenance"}`)
	_, err := client.List(context.Background(), "pos10_temperature")

	var fe *generic.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
	assert.Contains(t, err.Error(), "maintenance")
	assert.True(t, generic.IsRetryable(err))

	_, client = stubServer(t, http.StatusOK, `{"unexpected":true}`)
	_, err = client.List(context.Background(), "pos10_temperature")
	assert.ErrorIs(t, err, generic.ErrFetch)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewClient(url)
	_, err := client.List(context.Background(), "pos10_temperature")
	var fe *generic.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.StatusCode)

	// The repository reports the probe as unverified, not as absent.
	repo := generic.NewRepository(client, generic.WithCatalog(checklists.Catalog()))
	exists, err := repo.ExistsForKey(context.Background(), checklists.POS10Temperature, "POS 10", "2024-05-01")
	assert.False(t, exists)
	assert.ErrorIs(t, err, generic.ErrNotVerified)
	assert.ErrorIs(t, err, generic.ErrFetch)
}

func TestClient_WriteClassification(t *testing.T) {
	ctx := context.Background()
	rep := generic.Report{Type: "pos10_temperature", Payload: generic.Document{}, IdempotencyKey: "k"}

	_, client := stubServer(t, http.StatusConflict, `{"error":"Report already exists","details":"duplicate key"}`)
	_, err := client.Create(ctx, rep)
	var ce *generic.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "k", ce.IdempotencyKey)
	assert.Contains(t, ce.Message, "duplicate key")

	_, client = stubServer(t, http.StatusInternalServerError, `boom`)
	_, err = client.Create(ctx, rep)
	var se *generic.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "create", se.Op)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.False(t, generic.IsRetryable(err))

	_, client = stubServer(t, http.StatusNotFound, `{"error":"Report not found"}`)
	assert.ErrorIs(t, client.Delete(ctx, "gone"), generic.ErrNotFound)
	_, err = client.Update(ctx, "gone", rep)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	// A missing record counts as deleted.
	repo := generic.NewRepository(client)
	assert.NoError(t, repo.Delete(ctx, "gone"))

	_, client = stubServer(t, http.StatusBadGateway, ``)
	err = client.Delete(ctx, "x")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "delete", se.Op)
	assert.Contains(t, err.Error(), "empty response")
}

// =============================================================================
// END TO END - Repository over Client over the service
// =============================================================================

func TestClient_RepositoryOverService(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	client := NewClient(s.srv.URL, WithHTTPClient(s.srv.Client()))
	repo := generic.NewRepository(client, generic.WithCatalog(checklists.Catalog()))

	// GIVEN: A POS 10 temperature log saved through the remote store
	payload := generic.Document{"reportDate": "2024-05-01", "entries": []any{map[string]any{"t": "3.5"}}}
	res, err := repo.Save(ctx, checklists.POS10Temperature, payload, "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Report.ID)

	// WHEN: A second tab checks and tries to create the same day
	exists, err := repo.ExistsForKey(ctx, checklists.POS10Temperature, "pos 10", "2024-05-01")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = repo.Save(ctx, checklists.POS10Temperature, payload, generic.ModeCreateOnly)

	// THEN: The store refuses it
	assert.True(t, generic.IsConflict(err))

	// Upsert-replace goes through delete + create
	res, err = repo.Save(ctx, checklists.POS10Temperature, payload, generic.ModeUpsertReplace)
	require.NoError(t, err)
	assert.Len(t, res.Replaced, 1)

	all, err := client.List(ctx, checklists.POS10Temperature)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// Read endpoints
	cal, err := client.Calendar(ctx, checklists.POS10Temperature, generic.Filter{From: "2024-05-01"})
	require.NoError(t, err)
	require.Len(t, cal.Years, 1)
	assert.Equal(t, "2024", cal.Years[0].Year)

	ex, err := client.Exists(ctx, checklists.POS10Temperature, "", "2024-05-01")
	require.NoError(t, err)
	assert.True(t, ex.Exists)

	types, err := client.Types(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, types)

	_, err = client.Calendar(ctx, checklists.POS10Temperature, generic.Filter{})
	assert.NoError(t, err)
	_, err = client.Exists(ctx, checklists.POS10Temperature, "", "not-a-day")
	assert.True(t, errors.Is(err, generic.ErrFetch), "400 surfaces as a failed read")
}
