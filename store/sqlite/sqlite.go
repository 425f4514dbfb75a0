/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements audit.Store (the append-only event ledger) and
  analytics.CounterStore (the conditional-insert barrier plus signed
  additive counters) in one store. In production on Cassandra, the same
  shapes apply: audit_log is the partition-ordered table, the barrier is
  a lightweight transaction, and the Add* methods are counter updates.

INTERFACES IMPLEMENTED:
  audit.Store:            Event persistence, partition range reads
  analytics.CounterStore: Idempotency barrier + roll-up counters

APPEND-ONLY ENFORCEMENT:
  No UPDATE and no DELETE ever touch audit_log. Corrections are new
  events. The analytics tables are derived views and the only mutable
  state; Reset clears them (and only them).

KEY TABLES:
  audit_log                      Immutable hash-chained event rows
  grade_ledger_by_id             Write-once idempotency barrier
  stats_by_dim_year              (dim, dim_id, year) sums/counts
  student_stats_by_country_year  Student leaderboard counters
  subject_stats_by_country_year  Subject leaderboard counters
  subject_stats_global           Global subject counters (k='ALL')
  grade_hist_by_country_year     0..10 histogram buckets

COUNTER ATOMICITY:
  Counter updates are single-statement upserts
  (sum_milli = sum_milli + excluded.sum_milli), so concurrent positive
  and negative deltas commute without application-level locking. The
  conditional insert is INSERT ... ON CONFLICT DO NOTHING with
  RowsAffected deciding "applied"; retrying an applied insert reports
  not-applied again, never a duplicate row.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block,
  one writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/edugrade.db")  // or ":memory:"
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - audit/store.go: Interface definitions
  - analytics/store.go: Interface definitions
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/edugrade/audit-engine/analytics"
	"github.com/edugrade/audit-engine/audit"
)

// tsLayout is the column format for audit_log.ts. Fixed-width fractional
// seconds keep the TEXT column lexicographically sortable; RFC3339Nano
// trims trailing zeros, so ".5Z" would sort after ".52Z" and range reads
// could return an older event as the partition tip.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements audit.Store and analytics.CounterStore over SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and
	// sidesteps SQLite's single-writer lock contention.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Audit events (append-only, hash-chained per partition)
	CREATE TABLE IF NOT EXISTS audit_log (
		entity_type   TEXT NOT NULL,
		entity_id     TEXT NOT NULL,
		ts            TEXT NOT NULL,
		action        TEXT NOT NULL,
		actor         TEXT NOT NULL,
		payload_json  TEXT NOT NULL,
		previous_hash TEXT NOT NULL DEFAULT '',
		hash          TEXT NOT NULL,
		PRIMARY KEY (entity_type, entity_id, ts, hash)
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_partition_ts
		ON audit_log(entity_type, entity_id, ts DESC);

	-- Idempotency barrier: one row per processed fact, write-once
	CREATE TABLE IF NOT EXISTS grade_ledger_by_id (
		grade_id       TEXT PRIMARY KEY,
		country        TEXT NOT NULL,
		year           INTEGER NOT NULL,
		student_id     TEXT,
		institution_id TEXT,
		subject_id     TEXT,
		grade          REAL NOT NULL,
		created_at     TEXT NOT NULL
	);

	-- Roll-up counter keyspaces (derived views, rebuildable)
	CREATE TABLE IF NOT EXISTS stats_by_dim_year (
		dim         TEXT NOT NULL,
		dim_id      TEXT NOT NULL,
		year        INTEGER NOT NULL,
		sum_milli   INTEGER NOT NULL DEFAULT 0,
		count_grade INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (dim, dim_id, year)
	);

	CREATE TABLE IF NOT EXISTS student_stats_by_country_year (
		country     TEXT NOT NULL,
		year        INTEGER NOT NULL,
		student_id  TEXT NOT NULL,
		sum_milli   INTEGER NOT NULL DEFAULT 0,
		count_grade INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (country, year, student_id)
	);

	CREATE TABLE IF NOT EXISTS subject_stats_by_country_year (
		country     TEXT NOT NULL,
		year        INTEGER NOT NULL,
		subject_id  TEXT NOT NULL,
		sum_milli   INTEGER NOT NULL DEFAULT 0,
		count_grade INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (country, year, subject_id)
	);

	CREATE TABLE IF NOT EXISTS subject_stats_global (
		k           TEXT NOT NULL,
		subject_id  TEXT NOT NULL,
		sum_milli   INTEGER NOT NULL DEFAULT 0,
		count_grade INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (k, subject_id)
	);

	CREATE TABLE IF NOT EXISTS grade_hist_by_country_year (
		country     TEXT NOT NULL,
		year        INTEGER NOT NULL,
		bucket      INTEGER NOT NULL,
		count_grade INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (country, year, bucket)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// audit.Store
// =============================================================================

// Append persists one audit event. The payload is stored in its
// canonical serialized form, so a verifier reading the row re-hashes the
// exact bytes that were hashed at append time.
func (s *Store) Append(ctx context.Context, e audit.Event) error {
	payload, err := audit.CanonicalJSON(e.Payload)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log
			(entity_type, entity_id, ts, action, actor, payload_json, previous_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EntityType, e.EntityID,
		e.Timestamp.UTC().Format(tsLayout),
		e.Action, e.Actor, string(payload), e.PreviousHash, e.Hash,
	)
	return err
}

// Load returns up to limit events of a partition in the given order.
func (s *Store) Load(ctx context.Context, p audit.Partition, order audit.Order, limit int) ([]audit.Event, error) {
	direction := "DESC"
	if order == audit.OrderAsc {
		direction = "ASC"
	}

	// rowid breaks timestamp ties by insertion order.
	query := fmt.Sprintf(`
		SELECT entity_type, entity_id, ts, action, actor, payload_json, previous_hash, hash
		FROM audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY ts %s, rowid %s
		LIMIT ?`, direction, direction)

	rows, err := s.db.QueryContext(ctx, query, p.EntityType, p.EntityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var e audit.Event
		var ts, payload string
		if err := rows.Scan(&e.EntityType, &e.EntityID, &ts, &e.Action,
			&e.Actor, &payload, &e.PreviousHash, &e.Hash); err != nil {
			return nil, err
		}
		e.Timestamp, err = time.Parse(audit.TimestampFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("corrupt timestamp %q: %w", ts, err)
		}
		e.Payload = decodePayload(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// LatestHash returns the newest event hash of a partition, "" if empty.
func (s *Store) LatestHash(ctx context.Context, p audit.Partition) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT hash FROM audit_log
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY ts DESC, rowid DESC
		LIMIT 1`, p.EntityType, p.EntityID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// decodePayload turns a stored canonical payload back into a value,
// degrading to the raw string if it no longer parses. History reads
// never fail on a payload.
func decodePayload(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	return v
}

// =============================================================================
// analytics.CounterStore
// =============================================================================

// InsertFactOnce is the write-once idempotency barrier. Returns
// applied=false when the fact id already has a row; the existing row is
// never touched.
func (s *Store) InsertFactOnce(ctx context.Context, entry analytics.LedgerEntry) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO grade_ledger_by_id
			(grade_id, country, year, student_id, institution_id, subject_id, grade, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(grade_id) DO NOTHING`,
		entry.FactID, entry.Country, entry.Year, entry.StudentID,
		entry.InstitutionID, entry.SubjectID, entry.Value,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AddDimYear accumulates into the (dim, dim_id, year) keyspace.
func (s *Store) AddDimYear(ctx context.Context, dim, dimID string, year int, sumDelta, countDelta int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stats_by_dim_year (dim, dim_id, year, sum_milli, count_grade)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(dim, dim_id, year) DO UPDATE SET
			sum_milli   = sum_milli + excluded.sum_milli,
			count_grade = count_grade + excluded.count_grade`,
		dim, dimID, year, sumDelta, countDelta)
	return err
}

// AddStudent accumulates into the student leaderboard keyspace.
func (s *Store) AddStudent(ctx context.Context, country string, year int, studentID string, sumDelta, countDelta int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO student_stats_by_country_year (country, year, student_id, sum_milli, count_grade)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(country, year, student_id) DO UPDATE SET
			sum_milli   = sum_milli + excluded.sum_milli,
			count_grade = count_grade + excluded.count_grade`,
		country, year, studentID, sumDelta, countDelta)
	return err
}

// AddSubject accumulates into the per-country subject keyspace.
func (s *Store) AddSubject(ctx context.Context, country string, year int, subjectID string, sumDelta, countDelta int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subject_stats_by_country_year (country, year, subject_id, sum_milli, count_grade)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(country, year, subject_id) DO UPDATE SET
			sum_milli   = sum_milli + excluded.sum_milli,
			count_grade = count_grade + excluded.count_grade`,
		country, year, subjectID, sumDelta, countDelta)
	return err
}

// AddSubjectGlobal accumulates into the global subject keyspace.
func (s *Store) AddSubjectGlobal(ctx context.Context, subjectID string, sumDelta, countDelta int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subject_stats_global (k, subject_id, sum_milli, count_grade)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(k, subject_id) DO UPDATE SET
			sum_milli   = sum_milli + excluded.sum_milli,
			count_grade = count_grade + excluded.count_grade`,
		analytics.GlobalKey, subjectID, sumDelta, countDelta)
	return err
}

// AddHistogram accumulates into one histogram bucket.
func (s *Store) AddHistogram(ctx context.Context, country string, year int, bucket int, countDelta int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO grade_hist_by_country_year (country, year, bucket, count_grade)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(country, year, bucket) DO UPDATE SET
			count_grade = count_grade + excluded.count_grade`,
		country, year, bucket, countDelta)
	return err
}

// DimYearStats reads one (dim, dim_id, year) counter. Missing rows read
// as zero, not as errors.
func (s *Store) DimYearStats(ctx context.Context, dim, dimID string, year int) (analytics.Stats, error) {
	var stats analytics.Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT sum_milli, count_grade FROM stats_by_dim_year
		WHERE dim = ? AND dim_id = ? AND year = ?`,
		dim, dimID, year).Scan(&stats.SumMilli, &stats.Count)
	if err == sql.ErrNoRows {
		return analytics.Stats{}, nil
	}
	return stats, err
}

// StudentStatsByCountryYear reads the student leaderboard rows.
func (s *Store) StudentStatsByCountryYear(ctx context.Context, country string, year int) ([]analytics.StudentStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, sum_milli, count_grade
		FROM student_stats_by_country_year
		WHERE country = ? AND year = ?`, country, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.StudentStats
	for rows.Next() {
		var st analytics.StudentStats
		if err := rows.Scan(&st.StudentID, &st.SumMilli, &st.Count); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SubjectStatsByCountryYear reads the per-country subject rows.
func (s *Store) SubjectStatsByCountryYear(ctx context.Context, country string, year int) ([]analytics.SubjectStats, error) {
	return s.subjectStats(ctx, `
		SELECT subject_id, sum_milli, count_grade
		FROM subject_stats_by_country_year
		WHERE country = ? AND year = ?`, country, year)
}

// SubjectStatsGlobal reads the global subject rows.
func (s *Store) SubjectStatsGlobal(ctx context.Context) ([]analytics.SubjectStats, error) {
	return s.subjectStats(ctx, `
		SELECT subject_id, sum_milli, count_grade
		FROM subject_stats_global
		WHERE k = ?`, analytics.GlobalKey)
}

func (s *Store) subjectStats(ctx context.Context, query string, args ...any) ([]analytics.SubjectStats, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []analytics.SubjectStats
	for rows.Next() {
		var st analytics.SubjectStats
		if err := rows.Scan(&st.SubjectID, &st.SumMilli, &st.Count); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Histogram reads one country/year histogram as bucket -> count.
func (s *Store) Histogram(ctx context.Context, country string, year int) (map[int]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket, count_grade FROM grade_hist_by_country_year
		WHERE country = ? AND year = ?`, country, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]int64)
	for rows.Next() {
		var bucket int
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, err
		}
		out[bucket] = count
	}
	return out, rows.Err()
}

// Reset clears the roll-up counters and the idempotency barrier. The
// audit_log table is deliberately NOT touched: it is append-only and
// not derived state.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range []string{
		"grade_ledger_by_id",
		"stats_by_dim_year",
		"student_stats_by_country_year",
		"subject_stats_by_country_year",
		"subject_stats_global",
		"grade_hist_by_country_year",
	} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
