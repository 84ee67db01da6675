// Package audit records one row per dispatched operation to an append-only
// SQLite ledger. Writes are fire-and-forget: a failure is logged and never
// propagated back to the request path.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mehdy/anbar/internal/classify"
	"github.com/mehdy/anbar/internal/dispatch"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Ledger is an append-only audit trail backed by SQLite.
type Ledger struct {
	db *sql.DB
}

// Open creates or attaches to the SQLite database at path and ensures its
// schema exists.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway

	const schema = `
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at INTEGER NOT NULL,
		operation TEXT NOT NULL,
		bucket TEXT,
		object_key TEXT,
		user_id TEXT,
		status TEXT NOT NULL,
		error_message TEXT,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_occurred_at ON audit_log(occurred_at DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Hooks adapts the Ledger into dispatch.Hooks.
func (l *Ledger) Hooks() dispatch.Hooks {
	return dispatch.Hooks{OnCall: l.record}
}

func (l *Ledger) record(rec dispatch.CallRecord) {
	status := "ok"
	var errMsg string
	if rec.Err != nil {
		status = "error"
		errMsg = rec.Err.Error()
	}

	_, err := l.db.Exec(
		`INSERT INTO audit_log (occurred_at, operation, bucket, object_key, user_id, status, error_message, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().Unix(), operationName(rec.Operation), rec.Bucket, rec.Key, rec.UserID, status, errMsg, rec.Duration.Milliseconds(),
	)
	if err != nil {
		logrus.WithError(err).Warn("failed to write audit log entry")
	}
}

func operationName(kind classify.Kind) string {
	switch kind {
	case classify.KindListBuckets:
		return "ListBuckets"
	case classify.KindListObjects:
		return "ListObjects"
	case classify.KindGetObject:
		return "GetObject"
	case classify.KindCreateBucket:
		return "CreateBucket"
	case classify.KindPutObject:
		return "PutObject"
	case classify.KindDeleteBucket:
		return "DeleteBucket"
	case classify.KindDeleteObject:
		return "DeleteObject"
	default:
		return "Unknown"
	}
}
