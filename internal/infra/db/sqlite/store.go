package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"agentic-workflow/internal/infra/metrics"
)

// Open opens (or creates) the database file at path with WAL enabled and
// applies the schema. One connection serialises writers, which is what makes
// ClaimNext and Update atomic.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	return open(ctx, "file:"+path+"?"+filePragmas)
}

// modernc.org/sqlite reads pragmas from _pragma parameters and runs them on
// every new connection; mattn-style keys such as _journal_mode are ignored.
const filePragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"

// OpenMemory opens a named in-memory database. Each name is a separate store.
func OpenMemory(ctx context.Context, name string) (*sql.DB, error) {
	return open(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
}

func open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	// memory DSNs carry no pragmas
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return db, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS workflow_jobs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		workflow_type TEXT NOT NULL DEFAULT '',
		params TEXT NOT NULL DEFAULT '{}',
		original_message TEXT NOT NULL DEFAULT '',
		document_title TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		steps TEXT NOT NULL,
		progress TEXT NOT NULL,
		results TEXT NOT NULL DEFAULT '{}',
		error TEXT NOT NULL DEFAULT '',
		lease_owner TEXT NOT NULL DEFAULT '',
		lease_expires_at TEXT,
		lease_epoch INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_workflow_jobs_owner_created ON workflow_jobs(owner_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_workflow_jobs_status_created ON workflow_jobs(status, created_at);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL UNIQUE,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		provenance TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		FOREIGN KEY (job_id) REFERENCES workflow_jobs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_owner_created ON documents(owner_id, created_at);

	CREATE TABLE IF NOT EXISTS agent_executions (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		step_index INTEGER NOT NULL,
		role TEXT NOT NULL,
		history TEXT NOT NULL DEFAULT '[]',
		search_trace TEXT NOT NULL DEFAULT '[]',
		output TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		usage TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		completed_at TEXT,
		UNIQUE (job_id, step_index),
		FOREIGN KEY (job_id) REFERENCES workflow_jobs(id) ON DELETE CASCADE
	);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// ReportPoolStats publishes connection gauges every interval until ctx ends.
func ReportPoolStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		st := db.Stats()
		metrics.SetDBPoolStats("sqlite", st.OpenConnections, st.Idle, st.InUse)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func fmtTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
