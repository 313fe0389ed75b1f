/*
repository.go - The façade forms and browse pages call

PURPOSE:
  Repository is the only component that talks to the RemoteStore. It owns
  duplicate prevention, the three save modes and calendar aggregation. It
  holds no durable state: every call is a fresh read of the store, there
  is no cache and nothing is retried automatically.

SAVE MODES:
  create-only:
    One create. A rejection (409) is final and surfaces as ConflictError.
    For OnePerDay types the create carries an idempotency key derived from
    the RecordKey, so the store itself refuses a second report for a day.

  upsert-replace:
    Lists the type, deletes every record with the same RecordKey, then
    creates the new one. NOT ATOMIC: a failure between the deletes and the
    create loses the prior report. The store offers no replace-by-key
    primitive, and the deletes must be visible before the create because
    other tabs check ExistsForKey. The window is logged, never hidden.

  merge-append:
    Lists the type regardless of key, flattens every record's entries,
    appends the new entries, drops duplicates by the type's composite
    DedupeFields and writes the union back as one superseding record.

EXISTENCE CHECK:
  ExistsForKey is advisory (time-of-check/time-of-use). A store rejection
  on the subsequent write is authoritative. When the probe cannot reach
  the store it returns false together with an error wrapping
  ErrNotVerified, and the caller decides whether to proceed.

USAGE:
  repo := generic.NewRepository(client,
      generic.WithCatalog(checklists.Catalog()),
      generic.WithLogger(logger))

  exists, err := repo.ExistsForKey(ctx, "pos10_temperature", "POS 10", "2024-05-01")
  res, err := repo.Save(ctx, "pos10_temperature", payload, generic.ModeCreateOnly)

SEE ALSO:
  - key.go, latest.go, calendar.go, merge.go: The pure building blocks
  - store.go: RemoteStore contract
*/
package generic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// REPOSITORY
// =============================================================================

// Repository runs the synchronization pattern over a RemoteStore.
type Repository struct {
	store   RemoteStore
	catalog *Catalog
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithCatalog sets the per-type configuration.
func WithCatalog(c *Catalog) Option {
	return func(r *Repository) { r.catalog = c }
}

// WithLogger sets the logger. nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the clock used for client save timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository creates a repository over store.
func NewRepository(store RemoteStore, opts ...Option) *Repository {
	r := &Repository{
		store:   store,
		catalog: NewCatalog(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Catalog returns the type catalog in use.
func (r *Repository) Catalog() *Catalog { return r.catalog }

// SaveResult describes what a Save wrote.
type SaveResult struct {
	Report     Report   `json:"report"`
	Mode       SaveMode `json:"mode"`
	Replaced   []string `json:"replaced,omitempty"` // ids deleted by upsert-replace
	EntryCount int      `json:"entryCount"`
}

// =============================================================================
// READS
// =============================================================================

// Filter narrows FetchAll results. Zero fields match everything.
// From and To are inclusive days.
type Filter struct {
	Branch string
	From   string
	To     string
}

func (f Filter) matches(rep Report, cfg TypeConfig) bool {
	if f.Branch != "" {
		branch := rep.BranchValue()
		if strings.TrimSpace(branch) == "" {
			branch = cfg.BranchFallback
		}
		if NormalizeBranch(branch) != NormalizeBranch(f.Branch) {
			return false
		}
	}
	if f.From == "" && f.To == "" {
		return true
	}
	day, ok := DayOf(rep, cfg.DateField)
	if !ok {
		return false
	}
	if from, ok := NormalizeDay(f.From); ok && day < from {
		return false
	}
	if to, ok := NormalizeDay(f.To); ok && day > to {
		return false
	}
	return true
}

// FetchAll lists every report of typ that passes filter.
func (r *Repository) FetchAll(ctx context.Context, typ string, filter Filter) ([]Report, error) {
	all, err := r.list(ctx, typ)
	if err != nil {
		return nil, err
	}
	if filter == (Filter{}) {
		return all, nil
	}
	cfg := r.catalog.Config(typ)
	out := make([]Report, 0, len(all))
	for _, rep := range all {
		if filter.matches(rep, cfg) {
			out = append(out, rep)
		}
	}
	return out, nil
}

func (r *Repository) list(ctx context.Context, typ string) ([]Report, error) {
	reports, err := r.store.List(ctx, typ)
	if err != nil {
		err = asFetchError(typ, err)
		r.logger.Warn("list reports failed", zap.String("type", typ), zap.Error(err))
		return nil, err
	}
	r.logger.Debug("listed reports", zap.String("type", typ), zap.Int("count", len(reports)))
	return reports, nil
}

// ExistsForKey reports whether a report for (typ, branch, day) is stored.
// A probe that cannot reach the store returns false and an error wrapping
// both ErrNotVerified and the FetchError.
func (r *Repository) ExistsForKey(ctx context.Context, typ, branch, day string) (bool, error) {
	want := NewRecordKey(typ, branch, day)
	if !want.Valid() {
		return false, &KeyError{Type: typ, Reason: fmt.Sprintf("unparseable day %q", day)}
	}
	reports, err := r.list(ctx, typ)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrNotVerified, err)
	}
	opts := r.catalog.Config(typ).KeyOptions()
	for _, rep := range reports {
		if k, ok := KeyOf(rep, opts); ok && k == want {
			return true, nil
		}
	}
	return false, nil
}

// FindLatest returns the authoritative record for key, or nil.
func (r *Repository) FindLatest(ctx context.Context, key RecordKey) (*Report, error) {
	key = NewRecordKey(key.Type, key.Branch, key.Day)
	if !key.Valid() {
		return nil, &KeyError{Type: key.Type, Reason: fmt.Sprintf("unparseable day %q", key.Day)}
	}
	reports, err := r.list(ctx, key.Type)
	if err != nil {
		return nil, err
	}
	latest := PickLatestPerKey(reports, r.catalog.Config(key.Type).KeyOptions())
	if rep, ok := latest[key]; ok {
		return &rep, nil
	}
	return nil, nil
}

// Latest returns one record per key for typ, sorted by day.
func (r *Repository) Latest(ctx context.Context, typ string, filter Filter) ([]Report, error) {
	reports, err := r.FetchAll(ctx, typ, filter)
	if err != nil {
		return nil, err
	}
	return LatestList(reports, r.catalog.Config(typ).KeyOptions()), nil
}

// Calendar builds the browse tree of typ from the latest record per key.
func (r *Repository) Calendar(ctx context.Context, typ string, filter Filter) ([]CalendarNode, error) {
	latest, err := r.Latest(ctx, typ, filter)
	if err != nil {
		return nil, err
	}
	return GroupByCalendar(latest, r.catalog.Config(typ).CalendarOptions()), nil
}

// =============================================================================
// WRITES
// =============================================================================

// Save writes payload as a report of typ. An empty mode uses the type's
// default mode.
func (r *Repository) Save(ctx context.Context, typ string, payload Document, mode SaveMode) (SaveResult, error) {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return SaveResult{}, &KeyError{Reason: "missing type"}
	}
	cfg := r.catalog.Config(typ)
	if mode == "" {
		mode = cfg.mode()
	}

	doc := payload.Clone()
	if doc == nil {
		doc = Document{}
	}
	if _, ok := doc["_clientSavedAt"]; !ok {
		doc["_clientSavedAt"] = r.now().UnixMilli()
	}
	rep := Report{Type: typ, Payload: doc, Reporter: doc.String("reporter")}

	switch mode {
	case ModeCreateOnly:
		return r.createOnly(ctx, cfg, rep)
	case ModeUpsertReplace:
		return r.upsertReplace(ctx, cfg, rep)
	case ModeMergeAppend:
		return r.mergeAppend(ctx, cfg, rep)
	default:
		return SaveResult{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

func (r *Repository) createOnly(ctx context.Context, cfg TypeConfig, rep Report) (SaveResult, error) {
	if cfg.OnePerDay {
		key, err := RequireKey(rep, cfg.KeyOptions())
		if err != nil {
			return SaveResult{}, err
		}
		rep.IdempotencyKey = key.String()
	}
	created, err := r.create(ctx, rep)
	if err != nil {
		return SaveResult{}, err
	}
	return SaveResult{Report: created, Mode: ModeCreateOnly, EntryCount: entryLen(created, cfg)}, nil
}

func (r *Repository) upsertReplace(ctx context.Context, cfg TypeConfig, rep Report) (SaveResult, error) {
	opts := cfg.KeyOptions()
	key, err := RequireKey(rep, opts)
	if err != nil {
		return SaveResult{}, err
	}
	existing, err := r.list(ctx, cfg.Type)
	if err != nil {
		return SaveResult{}, err
	}

	var replaced []string
	for _, prior := range existing {
		if k, ok := KeyOf(prior, opts); !ok || k != key || prior.ID == "" {
			continue
		}
		if err := r.Delete(ctx, prior.ID); err != nil {
			return SaveResult{Mode: ModeUpsertReplace, Replaced: replaced}, err
		}
		replaced = append(replaced, prior.ID)
	}

	if cfg.OnePerDay {
		rep.IdempotencyKey = key.String()
	}
	created, err := r.create(ctx, rep)
	if err != nil {
		if len(replaced) > 0 {
			r.logger.Error("replace lost prior report: deleted but not recreated",
				zap.String("key", key.String()),
				zap.Strings("deleted", replaced),
				zap.Error(err))
		}
		return SaveResult{Mode: ModeUpsertReplace, Replaced: replaced}, err
	}
	return SaveResult{Report: created, Mode: ModeUpsertReplace, Replaced: replaced, EntryCount: entryLen(created, cfg)}, nil
}

func (r *Repository) mergeAppend(ctx context.Context, cfg TypeConfig, rep Report) (SaveResult, error) {
	existing, err := r.list(ctx, cfg.Type)
	if err != nil {
		return SaveResult{}, err
	}
	fields := cfg.entriesFields()
	incoming, field, ok := rep.Payload.Entries(fields...)
	if !ok {
		// Rows under a name the type does not read would drop out of the union.
		if _, other, found := rep.Payload.Entries(); found {
			return SaveResult{}, fmt.Errorf("%w: %s entries sent under %q, expected %q",
				ErrInvalidPayload, cfg.Type, other, fields[0])
		}
		field = fields[0]
	}
	merged := MergeEntries(FlattenEntries(existing, fields...), incoming, cfg.DedupeFields)
	rep.Payload[field] = merged

	created, err := r.create(ctx, rep)
	if err != nil {
		return SaveResult{}, err
	}
	r.logger.Debug("merged entries",
		zap.String("type", cfg.Type),
		zap.Int("existing_records", len(existing)),
		zap.Int("incoming", len(incoming)),
		zap.Int("merged", len(merged)))
	return SaveResult{Report: created, Mode: ModeMergeAppend, EntryCount: len(merged)}, nil
}

func (r *Repository) create(ctx context.Context, rep Report) (Report, error) {
	created, err := r.store.Create(ctx, rep)
	if err != nil {
		err = asWriteError("create", "", err)
		r.logger.Warn("create report failed", zap.String("type", rep.Type), zap.Error(err))
		return Report{}, err
	}
	r.logger.Debug("created report", zap.String("type", rep.Type), zap.String("id", created.ID))
	return created, nil
}

// Update overwrites a report in place when the store supports it.
func (r *Repository) Update(ctx context.Context, id string, rep Report) (Report, error) {
	updated, err := r.store.Update(ctx, id, rep)
	if err != nil {
		err = asWriteError("update", id, err)
		r.logger.Warn("update report failed", zap.String("id", id), zap.Error(err))
		return Report{}, err
	}
	return updated, nil
}

// Delete removes a report by id. An unknown id counts as already deleted.
func (r *Repository) Delete(ctx context.Context, id string) error {
	err := r.store.Delete(ctx, id)
	if err == nil || errors.Is(err, ErrNotFound) {
		r.logger.Debug("deleted report", zap.String("id", id), zap.Bool("was_missing", err != nil))
		return nil
	}
	err = asWriteError("delete", id, err)
	r.logger.Warn("delete report failed", zap.String("id", id), zap.Error(err))
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func entryLen(rep Report, cfg TypeConfig) int {
	return entryCount(rep, cfg.EntriesField)
}

func asFetchError(typ string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Type: typ, Err: err}
}

func asWriteError(op, id string, err error) error {
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrServer) || errors.Is(err, ErrNotFound) {
		return err
	}
	return &ServerError{Op: op, ID: id, Err: err}
}
