package generic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/report-sync/generic"
	"github.com/warp/report-sync/generic/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	typeTemperature = "pos10_temperature"
	typeMeat        = "meat_daily"
	typeVehicles    = "car_approvals"
)

func testCatalog() *generic.Catalog {
	return generic.NewCatalog(
		generic.TypeConfig{Type: typeTemperature, OnePerDay: true, BranchFallback: "POS 10"},
		generic.TypeConfig{Type: typeMeat, DefaultMode: generic.ModeUpsertReplace},
		generic.TypeConfig{Type: typeVehicles, DefaultMode: generic.ModeMergeAppend, DedupeFields: vehicleFields},
	)
}

// steppingClock advances one second per call so store timestamps are ordered.
func steppingClock() func() time.Time {
	t := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestRepository(t *testing.T) (*generic.Repository, *store.Memory) {
	t.Helper()
	mem := store.NewMemory().WithClock(steppingClock())
	repo := generic.NewRepository(mem,
		generic.WithCatalog(testCatalog()),
		generic.WithClock(func() time.Time { return time.UnixMilli(1_714_550_400_000) }),
	)
	return repo, mem
}

// failingStore wraps a RemoteStore and fails selected operations.
type failingStore struct {
	generic.RemoteStore
	listErr   error
	createErr error
	deleteErr error
}

func (f *failingStore) List(ctx context.Context, typ string) ([]generic.Report, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.RemoteStore.List(ctx, typ)
}

func (f *failingStore) Create(ctx context.Context, r generic.Report) (generic.Report, error) {
	if f.createErr != nil {
		return generic.Report{}, f.createErr
	}
	return f.RemoteStore.Create(ctx, r)
}

func (f *failingStore) Delete(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.RemoteStore.Delete(ctx, id)
}

func dayPayload(branch, day string) generic.Document {
	return generic.Document{"branch": branch, "reportDate": day}
}

// =============================================================================
// EXISTS FOR KEY
// =============================================================================

func TestExistsForKey_EmptyStore(t *testing.T) {
	repo, _ := newTestRepository(t)

	exists, err := repo.ExistsForKey(context.Background(), typeTemperature, "POS 10", "2024-05-01")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExistsForKey_MatchesNormalizedKey(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, typeMeat, dayPayload("Main Branch", "2024-05-01"), generic.ModeCreateOnly)
	require.NoError(t, err)

	exists, err := repo.ExistsForKey(ctx, typeMeat, "  main branch", "2024-05-01T12:00:00Z")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForKey(ctx, typeMeat, "Main Branch", "2024-05-02")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestExistsForKey_UsesBranchFallback(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	// The POS 10 page never stores a branch.
	_, err := repo.Save(ctx, typeTemperature, generic.Document{"reportDate": "2024-05-01"}, generic.ModeCreateOnly)
	require.NoError(t, err)

	exists, err := repo.ExistsForKey(ctx, typeTemperature, "pos 10", "2024-05-01")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestExistsForKey_ProbeFailureIsNotVerified(t *testing.T) {
	fs := &failingStore{RemoteStore: store.NewMemory(), listErr: errors.New("connection refused")}
	repo := generic.NewRepository(fs)

	exists, err := repo.ExistsForKey(context.Background(), typeTemperature, "POS 10", "2024-05-01")
	assert.False(t, exists)
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrNotVerified)
	assert.ErrorIs(t, err, generic.ErrFetch)
	assert.True(t, generic.IsRetryable(err))
}

func TestExistsForKey_BadDay(t *testing.T) {
	repo, _ := newTestRepository(t)
	_, err := repo.ExistsForKey(context.Background(), typeTemperature, "POS 10", "tomorrow")
	assert.ErrorIs(t, err, generic.ErrKey)
	assert.True(t, generic.IsClientError(err))
}

// =============================================================================
// CREATE-ONLY
// =============================================================================

func TestSave_CreateOnly_OnePerDayConflict(t *testing.T) {
	repo, mem := newTestRepository(t)
	ctx := context.Background()

	// GIVEN: Today's temperature log already saved
	first, err := repo.Save(ctx, typeTemperature, dayPayload("POS 10", "2024-05-01"), generic.ModeCreateOnly)
	require.NoError(t, err)
	assert.NotEmpty(t, first.Report.ID)

	// WHEN: A second tab submits the same day
	_, err = repo.Save(ctx, typeTemperature, dayPayload("pos 10 ", "2024-05-01"), generic.ModeCreateOnly)

	// THEN: The store's rejection surfaces as a conflict; nothing overwritten
	require.Error(t, err)
	assert.True(t, generic.IsConflict(err))
	var conflict *generic.ConflictError
	require.ErrorAs(t, err, &conflict)

	all, err := mem.List(ctx, typeTemperature)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSave_CreateOnly_WithoutOnePerDayAppends(t *testing.T) {
	repo, mem := newTestRepository(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := repo.Save(ctx, typeMeat, dayPayload("Main", "2024-05-01"), generic.ModeCreateOnly)
		require.NoError(t, err)
	}
	all, _ := mem.List(ctx, typeMeat)
	assert.Len(t, all, 2)
}

func TestSave_CreateOnly_OnePerDayNeedsKey(t *testing.T) {
	repo, _ := newTestRepository(t)
	_, err := repo.Save(context.Background(), typeTemperature, generic.Document{"branch": "POS 10"}, generic.ModeCreateOnly)
	assert.ErrorIs(t, err, generic.ErrKey)
}

func TestSave_StampsClientSavedAt(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	unstamped := dayPayload("Main", "2024-05-01")
	res, err := repo.Save(ctx, typeMeat, unstamped, generic.ModeCreateOnly)
	require.NoError(t, err)
	assert.EqualValues(t, 1_714_550_400_000, res.Report.Payload["_clientSavedAt"])

	_, stamped := unstamped["_clientSavedAt"]
	assert.False(t, stamped, "caller payload is not modified")

	payload := dayPayload("Main", "2024-05-02")
	payload["_clientSavedAt"] = int64(42)
	res, err = repo.Save(ctx, typeMeat, payload, generic.ModeCreateOnly)
	require.NoError(t, err)
	assert.EqualValues(t, 42, res.Report.Payload["_clientSavedAt"])
}

func TestSave_ServerErrorClassified(t *testing.T) {
	fs := &failingStore{RemoteStore: store.NewMemory(), createErr: errors.New("disk full")}
	repo := generic.NewRepository(fs)

	_, err := repo.Save(context.Background(), typeMeat, dayPayload("Main", "2024-05-01"), generic.ModeCreateOnly)
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrServer)
	assert.False(t, generic.IsConflict(err))
}

func TestSave_InvalidMode(t *testing.T) {
	repo, _ := newTestRepository(t)
	_, err := repo.Save(context.Background(), typeMeat, dayPayload("Main", "2024-05-01"), "overwrite")
	assert.ErrorIs(t, err, generic.ErrInvalidMode)
}

// =============================================================================
// UPSERT-REPLACE
// =============================================================================

func TestSave_UpsertReplace_DeletesThenCreates(t *testing.T) {
	repo, mem := newTestRepository(t)
	ctx := context.Background()

	// GIVEN: Two stored duplicates for the same day and one for another day
	a, err := repo.Save(ctx, typeMeat, dayPayload("Main", "2024-05-01"), generic.ModeCreateOnly)
	require.NoError(t, err)
	b, err := repo.Save(ctx, typeMeat, dayPayload("MAIN", "2024-05-01"), generic.ModeCreateOnly)
	require.NoError(t, err)
	other, err := repo.Save(ctx, typeMeat, dayPayload("Main", "2024-05-02"), generic.ModeCreateOnly)
	require.NoError(t, err)

	// WHEN: Saving the day again in upsert-replace mode
	payload := dayPayload("Main", "2024-05-01")
	payload["entries"] = []any{map[string]any{"item": "lamb", "kg": 12}}
	res, err := repo.Save(ctx, typeMeat, payload, generic.ModeUpsertReplace)
	require.NoError(t, err)

	// THEN: Both duplicates are gone, the other day is untouched
	assert.ElementsMatch(t, []string{a.Report.ID, b.Report.ID}, res.Replaced)
	assert.Equal(t, 1, res.EntryCount)

	all, err := mem.List(ctx, typeMeat)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, other.Report.ID, all[0].ID)
	assert.Equal(t, res.Report.ID, all[1].ID)
}

func TestSave_UpsertReplace_OnePerDayKeyReleased(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, typeTemperature, dayPayload("POS 10", "2024-05-01"), generic.ModeCreateOnly)
	require.NoError(t, err)

	// Replacing frees the idempotency key before the create.
	res, err := repo.Save(ctx, typeTemperature, dayPayload("POS 10", "2024-05-01"), generic.ModeUpsertReplace)
	require.NoError(t, err)
	assert.Len(t, res.Replaced, 1)
}

func TestSave_UpsertReplace_NoPrior(t *testing.T) {
	repo, _ := newTestRepository(t)
	res, err := repo.Save(context.Background(), typeMeat, dayPayload("Main", "2024-05-01"), generic.ModeUpsertReplace)
	require.NoError(t, err)
	assert.Empty(t, res.Replaced)
	assert.NotEmpty(t, res.Report.ID)
}

func TestSave_UpsertReplace_CreateFailureAfterDeleteLosesPrior(t *testing.T) {
	// The two-step replace is not atomic: a failed create after the delete
	// leaves the day empty. The error and the deleted ids are reported.
	mem := store.NewMemory()
	fs := &failingStore{RemoteStore: mem}
	repo := generic.NewRepository(fs, generic.WithCatalog(testCatalog()))
	ctx := context.Background()

	prior, err := repo.Save(ctx, typeMeat, dayPayload("Main", "2024-05-01"), generic.ModeCreateOnly)
	require.NoError(t, err)

	fs.createErr = errors.New("connection reset")
	res, err := repo.Save(ctx, typeMeat, dayPayload("Main", "2024-05-01"), generic.ModeUpsertReplace)
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrServer)
	assert.Equal(t, []string{prior.Report.ID}, res.Replaced)

	all, _ := mem.List(ctx, typeMeat)
	assert.Empty(t, all)
}

func TestSave_UpsertReplace_FetchFailureAborts(t *testing.T) {
	fs := &failingStore{RemoteStore: store.NewMemory(), listErr: errors.New("timeout")}
	repo := generic.NewRepository(fs)

	_, err := repo.Save(context.Background(), typeMeat, dayPayload("Main", "2024-05-01"), generic.ModeUpsertReplace)
	assert.ErrorIs(t, err, generic.ErrFetch)
}

func TestSave_UpsertReplace_RequiresKey(t *testing.T) {
	repo, _ := newTestRepository(t)
	_, err := repo.Save(context.Background(), typeMeat, generic.Document{"branch": "Main"}, generic.ModeUpsertReplace)
	assert.ErrorIs(t, err, generic.ErrKey)
}

// =============================================================================
// MERGE-APPEND
// =============================================================================

func TestSave_MergeAppend_NoDuplicateEntries(t *testing.T) {
	repo, mem := newTestRepository(t)
	ctx := context.Background()

	// GIVEN: One approved vehicle on file
	_, err := repo.Save(ctx, typeVehicles, generic.Document{
		"reportDate": "2024-05-01",
		"entries":    []any{vehicle("A1", "TL-1")},
	}, generic.ModeCreateOnly)
	require.NoError(t, err)

	// WHEN: Merging the same vehicle plus a new one
	res, err := repo.Save(ctx, typeVehicles, generic.Document{
		"reportDate": "2024-05-02",
		"entries":    []any{vehicle("A1", "TL-1"), vehicle("B2", "TL-2")},
	}, generic.ModeMergeAppend)
	require.NoError(t, err)

	// THEN: Exactly two entries are saved, not three
	assert.Equal(t, 2, res.EntryCount)
	entries, _, ok := res.Report.Payload.Entries()
	require.True(t, ok)
	assert.Len(t, entries, 2)

	all, _ := mem.List(ctx, typeVehicles)
	assert.Len(t, all, 2, "merge writes one superseding record")
}

func TestSave_MergeAppend_RoundTripIsSetUnion(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	batches := [][]any{
		{vehicle("A1", "TL-1"), vehicle("B2", "TL-2")},
		{vehicle("B2", "TL-2"), vehicle("C3", "TL-3")},
		{vehicle("A1", "TL-1"), vehicle("C3", "TL-3"), vehicle("D4", "TL-4")},
	}
	for _, batch := range batches {
		_, err := repo.Save(ctx, typeVehicles, generic.Document{"reportDate": "2024-05-01", "entries": batch}, "")
		require.NoError(t, err)
	}

	all, err := repo.FetchAll(ctx, typeVehicles, generic.Filter{})
	require.NoError(t, err)
	union := generic.DedupeEntries(generic.FlattenEntries(all), vehicleFields)
	assert.Len(t, union, 4)
}

func TestSave_MergeAppend_NoIncomingEntries(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, typeVehicles, generic.Document{"entries": []any{vehicle("A1", "TL-1")}}, generic.ModeMergeAppend)
	require.NoError(t, err)

	res, err := repo.Save(ctx, typeVehicles, generic.Document{"note": "touch"}, generic.ModeMergeAppend)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EntryCount)
	assert.Len(t, res.Report.Payload["entries"], 1)
}

func TestSave_MergeAppend_EntriesUnderOtherField(t *testing.T) {
	// GIVEN: A register that reads its rows from "entries"
	mem := store.NewMemory().WithClock(steppingClock())
	repo := generic.NewRepository(mem, generic.WithCatalog(generic.NewCatalog(
		generic.TypeConfig{Type: typeVehicles, EntriesField: "entries", DefaultMode: generic.ModeMergeAppend, DedupeFields: vehicleFields},
	)))
	ctx := context.Background()
	_, err := repo.Save(ctx, typeVehicles, generic.Document{"reportDate": "2024-05-01", "entries": []any{vehicle("A1", "TL-1")}}, "")
	require.NoError(t, err)

	// WHEN: A form sends its new rows under "items"
	_, err = repo.Save(ctx, typeVehicles, generic.Document{"reportDate": "2024-05-02", "items": []any{vehicle("B2", "TL-2")}}, "")

	// THEN: The save is rejected instead of writing back only the old rows
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrInvalidPayload)
	assert.True(t, generic.IsClientError(err))

	all, _ := mem.List(ctx, typeVehicles)
	assert.Len(t, all, 1)
}

// =============================================================================
// UNPARSEABLE DATES
// =============================================================================

func TestSave_UnparseableDateStaysOutOfCalendar(t *testing.T) {
	repo, mem := newTestRepository(t)
	ctx := context.Background()

	// GIVEN: A report saved on 2024-05-01 with a mistyped reportDate
	res, err := repo.Save(ctx, typeMeat, dayPayload("POS 10", "2024-13-45"), generic.ModeCreateOnly)
	require.NoError(t, err)
	saveDay, ok := generic.NormalizeDay(res.Report.CreatedAt)
	require.True(t, ok)
	require.Equal(t, "2024-05-01", saveDay)

	// THEN: It is stored but has no day in the calendar
	all, _ := mem.List(ctx, typeMeat)
	require.Len(t, all, 1)

	tree, err := repo.Calendar(ctx, typeMeat, generic.Filter{})
	require.NoError(t, err)
	assert.Empty(t, tree)

	// AND: It does not count as the save day's report
	exists, err := repo.ExistsForKey(ctx, typeMeat, "POS 10", saveDay)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSave_OnePerDayRejectsUnparseableDate(t *testing.T) {
	repo, mem := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, typeTemperature, dayPayload("POS 10", "2024-13-45"), generic.ModeCreateOnly)
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrKey)

	all, _ := mem.List(ctx, typeTemperature)
	assert.Empty(t, all)
}

// =============================================================================
// READS AND DELETE
// =============================================================================

func TestFetchAll_Filter(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	for _, p := range []generic.Document{
		dayPayload("Main", "2024-04-30"),
		dayPayload("Main", "2024-05-01"),
		dayPayload("Annex", "2024-05-01"),
		dayPayload("Main", "2024-05-03"),
	} {
		_, err := repo.Save(ctx, typeMeat, p, generic.ModeCreateOnly)
		require.NoError(t, err)
	}

	all, err := repo.FetchAll(ctx, typeMeat, generic.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	main, err := repo.FetchAll(ctx, typeMeat, generic.Filter{Branch: " MAIN "})
	require.NoError(t, err)
	assert.Len(t, main, 3)

	may, err := repo.FetchAll(ctx, typeMeat, generic.Filter{Branch: "main", From: "2024-05-01", To: "2024-05-02"})
	require.NoError(t, err)
	require.Len(t, may, 1)
	assert.Equal(t, "2024-05-01", may[0].Payload["reportDate"])
}

func TestFetchAll_ErrorIsFetchError(t *testing.T) {
	fs := &failingStore{RemoteStore: store.NewMemory(), listErr: errors.New("boom")}
	repo := generic.NewRepository(fs)

	_, err := repo.FetchAll(context.Background(), typeMeat, generic.Filter{})
	var fe *generic.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, typeMeat, fe.Type)
}

func TestFindLatest_AndCalendar(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, typeMeat, dayPayload("Main", "2024-05-01"), generic.ModeCreateOnly)
	require.NoError(t, err)
	second, err := repo.Save(ctx, typeMeat, dayPayload("main", "2024-05-01"), generic.ModeCreateOnly)
	require.NoError(t, err)
	_, err = repo.Save(ctx, typeMeat, dayPayload("Main", "2024-06-01"), generic.ModeCreateOnly)
	require.NoError(t, err)

	latest, err := repo.FindLatest(ctx, generic.RecordKey{Type: typeMeat, Branch: "MAIN", Day: "2024-05-01"})
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.Report.ID, latest.ID, "later updatedAt wins")

	missing, err := repo.FindLatest(ctx, generic.RecordKey{Type: typeMeat, Branch: "Main", Day: "2024-07-01"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	tree, err := repo.Calendar(ctx, typeMeat, generic.Filter{})
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, 2, tree[0].Count, "duplicates collapse to one per day")
	require.Len(t, tree[0].Months, 2)
}

func TestDelete_MissingIsSuccess(t *testing.T) {
	repo, _ := newTestRepository(t)
	assert.NoError(t, repo.Delete(context.Background(), "does-not-exist"))
}

func TestDelete_FailureIsServerError(t *testing.T) {
	fs := &failingStore{RemoteStore: store.NewMemory(), deleteErr: errors.New("forbidden")}
	repo := generic.NewRepository(fs)
	err := repo.Delete(context.Background(), "x")
	assert.ErrorIs(t, err, generic.ErrServer)
}

func TestUpdate(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	saved, err := repo.Save(ctx, typeMeat, dayPayload("Main", "2024-05-01"), generic.ModeCreateOnly)
	require.NoError(t, err)

	edited := saved.Report.Clone()
	edited.Payload["remarks"] = "checked twice"
	updated, err := repo.Update(ctx, saved.Report.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, "checked twice", updated.Payload["remarks"])
	assert.Greater(t, generic.TimestampOf(updated), generic.TimestampOf(saved.Report))

	_, err = repo.Update(ctx, "missing", edited)
	assert.True(t, generic.IsNotFound(err))
}
