/*
Package sqlite provides the SQLite-backed persistence of the reports store.

PURPOSE:
  Backs the HTTP "reports" service: an append/overwrite log of opaque JSON
  documents filtered by type. Implements generic.RemoteStore so the
  Repository can also run in-process against it.

KEY TABLE:
  reports:
    seq              insertion order (list order)
    id               UUIDv7, encodes the creation time
    type             checklist kind, the only indexed filter
    branch           top-level branch as sent
    branch_key       normalized top-level or payload branch, for ?branch= filters
    payload_json     opaque document
    idempotency_key  optional, UNIQUE - the store's only uniqueness rule
    created_at, updated_at

UNIQUENESS:
  A create whose idempotency key is already stored fails with a
  generic.ConflictError. Deleting the row releases the key; that is what
  lets upsert-replace recreate a one-per-day report.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking,
  opened in WAL mode so readers don't block the writer.

USAGE:
  store, err := sqlite.New("./data/reports.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  repo := generic.NewRepository(store)

SEE ALSO:
  - generic/store.go: RemoteStore contract
  - generic/store/memory.go: In-memory implementation for testing
  - api/handlers.go: HTTP surface over this store
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/report-sync/generic"
)

// Store implements generic.RemoteStore using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// WithClock replaces the clock used for ids and timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		branch TEXT,
		branch_key TEXT,
		reporter TEXT,
		payload_json TEXT NOT NULL,
		idempotency_key TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_type
		ON reports(type, seq);

	-- The only uniqueness the store enforces
	CREATE UNIQUE INDEX IF NOT EXISTS idx_reports_idempotency
		ON reports(idempotency_key) WHERE idempotency_key IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_reports_type_branch
		ON reports(type, branch_key);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REPORT STORE (generic.RemoteStore interface)
// =============================================================================

const selectReports = `
	SELECT id, type, branch, reporter, payload_json, idempotency_key, created_at, updated_at
	FROM reports`

// List returns every report of typ in insertion order.
func (s *Store) List(ctx context.Context, typ string) ([]generic.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryReports(ctx, selectReports+` WHERE type = ? ORDER BY seq`, strings.TrimSpace(typ))
}

// ListByBranch returns reports of typ whose stored branch matches,
// compared trimmed and case-insensitively.
func (s *Store) ListByBranch(ctx context.Context, typ, branch string) ([]generic.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryReports(ctx, selectReports+` WHERE type = ? AND branch_key = ? ORDER BY seq`,
		strings.TrimSpace(typ), generic.NormalizeBranch(branch))
}

// Get returns one report by id.
func (s *Store) Get(ctx context.Context, id string) (generic.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports, err := s.queryReports(ctx, selectReports+` WHERE id = ?`, id)
	if err != nil {
		return generic.Report{}, err
	}
	if len(reports) == 0 {
		return generic.Report{}, generic.ErrNotFound
	}
	return reports[0], nil
}

// Create appends a report and assigns it a UUIDv7 id.
func (s *Store) Create(ctx context.Context, r generic.Report) (generic.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	id, err := generic.NewID(now)
	if err != nil {
		return generic.Report{}, err
	}
	payload := r.Payload
	if payload == nil {
		payload = generic.Document{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return generic.Report{}, fmt.Errorf("failed to encode payload: %w", err)
	}
	stamp := now.Format(generic.TimestampLayout)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports
		(id, type, branch, branch_key, reporter, payload_json, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		strings.TrimSpace(r.Type),
		nullString(r.Branch),
		nullString(generic.NormalizeBranch(r.BranchValue())),
		nullString(r.Reporter),
		string(payloadJSON),
		nullString(r.IdempotencyKey),
		stamp,
		stamp,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.Report{}, &generic.ConflictError{
				Type:           r.Type,
				IdempotencyKey: r.IdempotencyKey,
				Message:        "idempotency key already stored",
			}
		}
		return generic.Report{}, fmt.Errorf("failed to insert report: %w", err)
	}

	return s.getLocked(ctx, id)
}

// Update replaces payload, branch and reporter and bumps updated_at.
func (s *Store) Update(ctx context.Context, id string, r generic.Report) (generic.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloadJSON, err := json.Marshal(r.Payload)
	if err != nil {
		return generic.Report{}, fmt.Errorf("failed to encode payload: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET branch = ?, branch_key = ?, reporter = ?, payload_json = ?, updated_at = ?
		WHERE id = ?`,
		nullString(r.Branch),
		nullString(generic.NormalizeBranch(r.BranchValue())),
		nullString(r.Reporter),
		string(payloadJSON),
		s.now().UTC().Format(generic.TimestampLayout),
		id,
	)
	if err != nil {
		return generic.Report{}, fmt.Errorf("failed to update report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.Report{}, generic.ErrNotFound
	}
	return s.getLocked(ctx, id)
}

// Delete removes a report and releases its idempotency key.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.ErrNotFound
	}
	return nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Types returns the number of stored reports per type.
func (s *Store) Types(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM reports GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[typ] = n
	}
	return out, rows.Err()
}

// Reset clears all data (for testing/demo purposes).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM reports`)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) getLocked(ctx context.Context, id string) (generic.Report, error) {
	reports, err := s.queryReports(ctx, selectReports+` WHERE id = ?`, id)
	if err != nil {
		return generic.Report{}, err
	}
	if len(reports) == 0 {
		return generic.Report{}, generic.ErrNotFound
	}
	return reports[0], nil
}

func (s *Store) queryReports(ctx context.Context, query string, args ...any) ([]generic.Report, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	result := []generic.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanReport(rows *sql.Rows) (generic.Report, error) {
	var (
		r                             generic.Report
		branch, reporter, idempotency sql.NullString
		payloadJSON, created, updated string
	)
	if err := rows.Scan(&r.ID, &r.Type, &branch, &reporter, &payloadJSON, &idempotency, &created, &updated); err != nil {
		return generic.Report{}, fmt.Errorf("failed to scan report: %w", err)
	}
	payload, err := generic.DecodeDocument([]byte(payloadJSON))
	if err != nil {
		return generic.Report{}, fmt.Errorf("failed to decode payload of %s: %w", r.ID, err)
	}
	r.Payload = payload
	r.Branch = branch.String
	r.Reporter = reporter.String
	r.IdempotencyKey = idempotency.String
	r.CreatedAt = created
	r.UpdatedAt = updated
	return r, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ generic.RemoteStore = (*Store)(nil)
