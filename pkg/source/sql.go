package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pthm/flowscope/internal/dbutil"
	"github.com/pthm/flowscope/pkg/flow"
)

// DefinitionsTable holds workflow definitions for the SQL source.
const DefinitionsTable = "flowscope_flow_definitions"

const definitionsDDL = `CREATE TABLE IF NOT EXISTS ` + DefinitionsTable + ` (
    name TEXT PRIMARY KEY,
    version INTEGER NOT NULL DEFAULT 1,
    status TEXT NOT NULL DEFAULT '',
    last_modified TIMESTAMP NOT NULL,
    format TEXT NOT NULL,
    body TEXT NOT NULL
)`

// SQL reads workflow definitions from a database table.
type SQL struct {
	db      *sql.DB
	dialect dbutil.Dialect
}

// NewSQL returns a SQL source over db.
func NewSQL(db *sql.DB, dialect dbutil.Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

// EnsureSchema creates the definitions table if it does not exist.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, definitionsDDL); err != nil {
		return fmt.Errorf("creating %s: %w", DefinitionsTable, err)
	}
	return nil
}

// Fetch implements Source.
func (s *SQL) Fetch(ctx context.Context, name string) (RawMetadata, error) {
	q := s.dialect.Rebind(`SELECT version, status, last_modified, format, body
        FROM ` + DefinitionsTable + ` WHERE name = ?`)

	var (
		raw     = RawMetadata{Name: name, Origin: DefinitionsTable}
		format  string
		body    string
		modTime time.Time
	)
	err := s.db.QueryRowContext(ctx, q, name).Scan(
		&raw.Version.Version, &raw.Version.Status, &modTime, &format, &body,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RawMetadata{}, fmt.Errorf("%w: %s", flow.ErrNotFound, name)
	}
	if err != nil {
		return RawMetadata{}, fmt.Errorf("querying %s for %s: %w", DefinitionsTable, name, err)
	}

	f, ok := ParseFormat(format)
	if !ok {
		return RawMetadata{}, fmt.Errorf("%w: %s has unknown format %q", flow.ErrMalformedInput, name, format)
	}
	raw.Format = f
	raw.Content = []byte(body)
	raw.Version.LastModified = modTime.UTC()
	return raw, nil
}

// Put inserts or replaces a definition. The stored version is bumped on
// every replace.
func (s *SQL) Put(ctx context.Context, raw RawMetadata) error {
	modTime := raw.Version.LastModified
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	version := raw.Version.Version
	if version < 1 {
		version = 1
	}

	q := s.dialect.Rebind(`INSERT INTO ` + DefinitionsTable + ` (name, version, status, last_modified, format, body)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (name) DO UPDATE SET
            version = ` + DefinitionsTable + `.version + 1,
            status = excluded.status,
            last_modified = excluded.last_modified,
            format = excluded.format,
            body = excluded.body`)
	_, err := s.db.ExecContext(ctx, q,
		raw.Name, version, raw.Version.Status, modTime, string(raw.Format), string(raw.Content),
	)
	if err != nil {
		return fmt.Errorf("storing definition %s: %w", raw.Name, err)
	}
	return nil
}

// List implements Lister.
func (s *SQL) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM `+DefinitionsTable+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", DefinitionsTable, err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
