// Package store persists analysis runs.
//
// Every saved run is a row in the flowscope_runs table holding the headline
// metrics and the full WorkflowAnalysis as JSON. Saving is idempotent: when
// the definition fingerprint and the analyzer version match the latest run
// of the same flow, nothing is written.
//
// # Usage
//
//	db, _ := dbutil.Open(ctx, dbutil.Postgres, dsn)
//	s := store.New(db, dbutil.Postgres)
//	rec, skipped, err := s.Save(ctx, analysis, store.Fingerprint(raw.Content, analysis), store.SaveOptions{})
//
// PostgreSQL and SQLite are supported; queries are written once and rebound
// per dialect.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pthm/flowscope/internal/dbutil"
	"github.com/pthm/flowscope/pkg/flow"
)

// AnalyzerVersion is incremented when analysis semantics change.
// This ensures runs are re-recorded even if the fingerprint matches.
// Bump this when:
//   - loop-context propagation rules change
//   - metric weights, penalties or thresholds change
//   - recommendation rules change
const AnalyzerVersion = "1"

// RunsTable is the table holding analysis runs.
const RunsTable = "flowscope_runs"

const runsDDL = `CREATE TABLE IF NOT EXISTS flowscope_runs (
    id TEXT PRIMARY KEY,
    flow_name TEXT NOT NULL,
    flow_version INTEGER NOT NULL DEFAULT 0,
    checksum TEXT NOT NULL,
    analyzer_version TEXT NOT NULL,
    bulkification_score INTEGER NOT NULL,
    should_bulkify BOOLEAN NOT NULL,
    cumulative_complexity INTEGER NOT NULL,
    result TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
)`

const runsIndexDDL = `CREATE INDEX IF NOT EXISTS flowscope_runs_flow_idx ON flowscope_runs (flow_name, created_at)`

// DDL returns the statements that create the runs table.
func DDL() []string {
	return []string{runsDDL, runsIndexDDL}
}

// Record is one stored analysis run.
type Record struct {
	ID                   uuid.UUID              `json:"id"`
	Flow                 string                 `json:"flow"`
	FlowVersion          int                    `json:"flow_version"`
	Checksum             string                 `json:"checksum"`
	AnalyzerVersion      string                 `json:"analyzer_version"`
	BulkificationScore   int                    `json:"bulkification_score"`
	ShouldBulkify        bool                   `json:"should_bulkify"`
	CumulativeComplexity int                    `json:"cumulative_complexity"`
	Analysis             *flow.WorkflowAnalysis `json:"analysis,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
}

// SaveOptions controls Save.
type SaveOptions struct {
	// DryRun writes the SQL that would be executed to the writer instead of
	// touching the database.
	DryRun io.Writer

	// Force records the run even if an identical one exists.
	Force bool
}

// Store reads and writes analysis runs.
type Store struct {
	db      Execer
	dialect dbutil.Dialect
	now     func() time.Time
}

// New creates a store. The Execer is typically *sql.DB but can be *sql.Tx
// for testing.
func New(db Execer, dialect dbutil.Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }}
}

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() dbutil.Dialect {
	return s.dialect
}

// EnsureSchema creates the runs table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.applyDDL(ctx, s.db)
}

func (s *Store) applyDDL(ctx context.Context, db Execer) error {
	for _, stmt := range DDL() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying runs DDL: %w", err)
		}
	}
	return nil
}

// Fingerprint returns a SHA256 over the top-level definition and the name
// and version of every sub-workflow in the analysis tree. It changes when
// any definition that contributed to the analysis changes.
func Fingerprint(content []byte, a *flow.WorkflowAnalysis) string {
	h := sha256.New()
	h.Write(content)

	var parts []string
	seen := map[string]bool{}
	if a != nil {
		for _, child := range a.ChildSubflows {
			child.Walk(func(c *flow.WorkflowAnalysis) bool {
				if seen[c.Name] {
					return false
				}
				seen[c.Name] = true
				part := c.Name
				if c.Version != nil {
					part = fmt.Sprintf("%s@%d@%s", c.Name, c.Version.Version, c.Version.LastModified.UTC().Format(time.RFC3339Nano))
				}
				parts = append(parts, part)
				return true
			})
		}
	}
	sort.Strings(parts)
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ShouldSkip reports whether last already records checksum under the
// current analyzer version.
func ShouldSkip(last *Record, checksum string) bool {
	if last == nil {
		return false
	}
	return last.Checksum == checksum && last.AnalyzerVersion == AnalyzerVersion
}

// tableExists reports whether the runs table exists.
func (s *Store) tableExists(ctx context.Context, db Execer) (bool, error) {
	var exists bool
	var err error
	switch s.dialect {
	case dbutil.SQLite:
		var n int
		err = db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, RunsTable,
		).Scan(&n)
		exists = n > 0
	default:
		err = db.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM pg_class c
				JOIN pg_namespace n ON n.oid = c.relnamespace
				WHERE c.relname = $1
				AND n.nspname = current_schema()
			)
		`, RunsTable).Scan(&exists)
	}
	if err != nil {
		return false, fmt.Errorf("checking %s table: %w", RunsTable, err)
	}
	return exists, nil
}

const selectColumns = `id, flow_name, flow_version, checksum, analyzer_version,
	bulkification_score, should_bulkify, cumulative_complexity, result, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec    Record
		id     string
		result string
	)
	if err := row.Scan(&id, &rec.Flow, &rec.FlowVersion, &rec.Checksum, &rec.AnalyzerVersion,
		&rec.BulkificationScore, &rec.ShouldBulkify, &rec.CumulativeComplexity, &result, &rec.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parsing run id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.CreatedAt = rec.CreatedAt.UTC()

	var a flow.WorkflowAnalysis
	if err := json.Unmarshal([]byte(result), &a); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", id, err)
	}
	rec.Analysis = &a
	return &rec, nil
}

// Last returns the most recent run for flowName, or nil if none exists.
func (s *Store) Last(ctx context.Context, flowName string) (*Record, error) {
	return s.last(ctx, s.db, flowName)
}

func (s *Store) last(ctx context.Context, db Execer, flowName string) (*Record, error) {
	exists, err := s.tableExists(ctx, db)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil // No runs table yet
	}

	row := db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT `+selectColumns+`
		FROM flowscope_runs
		WHERE flow_name = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`), flowName)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No previous run
	}
	if err != nil {
		return nil, fmt.Errorf("querying last run: %w", err)
	}
	return rec, nil
}

// List returns the most recent runs across all flows, newest first.
// A limit of zero or less returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	exists, err := s.tableExists(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	query := `SELECT ` + selectColumns + ` FROM flowscope_runs ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Save records an analysis run.
//
// Unless opts.Force is set or a dry run is requested, Save returns the
// latest run with skipped=true when it already records checksum under the
// current AnalyzerVersion. Writes happen in a transaction when db supports
// BeginTx.
func (s *Store) Save(ctx context.Context, a *flow.WorkflowAnalysis, checksum string, opts SaveOptions) (rec *Record, skipped bool, err error) {
	if a == nil {
		return nil, false, errors.New("store: nil analysis")
	}

	if !opts.Force && opts.DryRun == nil {
		last, err := s.Last(ctx, a.Name)
		if err != nil {
			return nil, false, fmt.Errorf("checking last run: %w", err)
		}
		if ShouldSkip(last, checksum) {
			return last, true, nil // Definition unchanged, skip
		}
	}

	result, err := json.Marshal(a)
	if err != nil {
		return nil, false, fmt.Errorf("encoding analysis: %w", err)
	}

	rec = &Record{
		ID:                   uuid.New(),
		Flow:                 a.Name,
		Checksum:             checksum,
		AnalyzerVersion:      AnalyzerVersion,
		BulkificationScore:   a.BulkificationScore,
		ShouldBulkify:        a.ShouldBulkify,
		CumulativeComplexity: a.CumulativeComplexity,
		Analysis:             a,
		CreatedAt:            s.now(),
	}
	if a.Version != nil {
		rec.FlowVersion = a.Version.Version
	}

	if opts.DryRun != nil {
		s.outputDryRun(opts.DryRun, rec, string(result))
		return rec, false, nil
	}

	if txer, ok := s.db.(interface {
		BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	}); ok {
		tx, err := txer.BeginTx(ctx, nil)
		if err != nil {
			return nil, false, fmt.Errorf("starting transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := s.applyDDL(ctx, tx); err != nil {
			return nil, false, err
		}
		if err := s.insert(ctx, tx, rec, string(result)); err != nil {
			return nil, false, err
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("committing run: %w", err)
		}
		return rec, false, nil
	}

	// Fall back to non-transactional (for *sql.Conn and *sql.Tx)
	if err := s.applyDDL(ctx, s.db); err != nil {
		return nil, false, err
	}
	if err := s.insert(ctx, s.db, rec, string(result)); err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

const insertRun = `INSERT INTO flowscope_runs (
    id, flow_name, flow_version, checksum, analyzer_version,
    bulkification_score, should_bulkify, cumulative_complexity, result, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *Store) insert(ctx context.Context, db Execer, rec *Record, result string) error {
	_, err := db.ExecContext(ctx, s.dialect.Rebind(insertRun),
		rec.ID.String(), rec.Flow, rec.FlowVersion, rec.Checksum, rec.AnalyzerVersion,
		rec.BulkificationScore, rec.ShouldBulkify, rec.CumulativeComplexity, result, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting run record: %w", err)
	}
	return nil
}

// outputDryRun writes the statements Save would execute.
func (s *Store) outputDryRun(w io.Writer, rec *Record, result string) {
	_, _ = fmt.Fprintf(w, "-- flowscope run (dry-run)\n")
	_, _ = fmt.Fprintf(w, "-- Flow: %s\n", rec.Flow)
	_, _ = fmt.Fprintf(w, "-- Checksum: %s\n", rec.Checksum)
	_, _ = fmt.Fprintf(w, "-- Analyzer version: %s\n", AnalyzerVersion)
	_, _ = fmt.Fprintf(w, "\n")

	for _, stmt := range DDL() {
		_, _ = fmt.Fprintf(w, "%s;\n\n", stmt)
	}

	_, _ = fmt.Fprintf(w, "INSERT INTO flowscope_runs (id, flow_name, flow_version, checksum, analyzer_version, bulkification_score, should_bulkify, cumulative_complexity, result, created_at)\n")
	_, _ = fmt.Fprintf(w, "VALUES ('%s', %s, %d, '%s', '%s', %d, %t, %d, %s, '%s');\n",
		rec.ID, quote(rec.Flow), rec.FlowVersion, rec.Checksum, AnalyzerVersion,
		rec.BulkificationScore, rec.ShouldBulkify, rec.CumulativeComplexity,
		quote(result), rec.CreatedAt.Format(time.RFC3339Nano))
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Status summarizes the run store.
type Status struct {
	// TableExists indicates whether the flowscope_runs table exists.
	TableExists bool `json:"table_exists"`
	// Runs is the number of recorded runs.
	Runs int `json:"runs"`
	// Flows is the number of distinct flows with at least one run.
	Flows int `json:"flows"`
	// LastRunAt is the time of the newest run, if any.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
}

// GetStatus returns the current store state.
// Useful for health checks and diagnostics.
func (s *Store) GetStatus(ctx context.Context) (*Status, error) {
	exists, err := s.tableExists(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status := &Status{TableExists: exists}
	if !exists {
		return status, nil
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT flow_name) FROM flowscope_runs`,
	).Scan(&status.Runs, &status.Flows)
	if err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}
	if status.Runs == 0 {
		return status, nil
	}

	var last time.Time
	err = s.db.QueryRowContext(ctx,
		`SELECT created_at FROM flowscope_runs ORDER BY created_at DESC LIMIT 1`,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("querying last run time: %w", err)
	}
	last = last.UTC()
	status.LastRunAt = &last
	return status, nil
}
