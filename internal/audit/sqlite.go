package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteTrail stores records in a local SQLite database for forensic
// queries. Triggers reject UPDATE and DELETE so the table stays append-only.
type SQLiteTrail struct {
	// db is limited to one connection, which serialises writers.
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path string) (*SQLiteTrail, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("audit: create db dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	t := &SQLiteTrail{db: db}
	if err := t.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return t, nil
}

func (t *SQLiteTrail) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS audit_records (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    query_id    TEXT    NOT NULL,
    created_at  INTEGER NOT NULL,  -- Unix nanoseconds
    query       TEXT    NOT NULL,
    flagged     INTEGER NOT NULL,
    outcome     TEXT    NOT NULL CHECK(outcome IN ('accepted','rejected','failed')),
    reason      TEXT    NOT NULL DEFAULT '',
    response    TEXT    NOT NULL DEFAULT '',
    origin      TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_records_created ON audit_records (created_at);
CREATE TRIGGER IF NOT EXISTS audit_records_no_update BEFORE UPDATE ON audit_records
BEGIN SELECT RAISE(ABORT, 'audit records are append-only'); END;
CREATE TRIGGER IF NOT EXISTS audit_records_no_delete BEFORE DELETE ON audit_records
BEGIN SELECT RAISE(ABORT, 'audit records are append-only'); END;
`
	if _, err := t.db.Exec(ddl); err != nil {
		return fmt.Errorf("audit: migrate: %w", err)
	}
	return nil
}

// Record inserts rec.
func (t *SQLiteTrail) Record(ctx context.Context, rec Record) error {
	const q = `INSERT INTO audit_records
    (query_id, created_at, query, flagged, outcome, reason, response, origin)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := t.db.ExecContext(ctx, q,
		rec.QueryID, rec.Timestamp.UnixNano(), rec.Query, rec.Flagged,
		string(rec.Outcome), rec.Reason, rec.Response, rec.Origin,
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Recent returns the most recent n records, oldest first.
func (t *SQLiteTrail) Recent(ctx context.Context, n int) ([]Record, error) {
	const q = `
SELECT query_id, created_at, query, flagged, outcome, reason, response, origin FROM (
    SELECT *
    FROM   audit_records
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := t.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var ts int64
		var outcome string
		if err := rows.Scan(&rec.QueryID, &ts, &rec.Query, &rec.Flagged, &outcome,
			&rec.Reason, &rec.Response, &rec.Origin); err != nil {
			return nil, fmt.Errorf("audit: recent scan: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts).UTC()
		rec.Outcome = Outcome(outcome)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: recent rows: %w", err)
	}
	return recs, nil
}

// Count returns the number of stored records, optionally only flagged ones.
func (t *SQLiteTrail) Count(ctx context.Context, flaggedOnly bool) (int, error) {
	q := `SELECT COUNT(*) FROM audit_records`
	if flaggedOnly {
		q += ` WHERE flagged = 1`
	}
	var n int
	if err := t.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("audit: count: %w", err)
	}
	return n, nil
}

// Name implements the readiness Pinger interface.
func (t *SQLiteTrail) Name() string { return "audit-db" }

// Ping implements the readiness Pinger interface.
func (t *SQLiteTrail) Ping(ctx context.Context) error {
	if err := t.db.PingContext(ctx); err != nil {
		return fmt.Errorf("audit: ping: %w", err)
	}
	return nil
}

// Close releases the database.
func (t *SQLiteTrail) Close() error {
	if err := t.db.Close(); err != nil {
		return fmt.Errorf("audit: close: %w", err)
	}
	return nil
}
