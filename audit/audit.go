// Package audit records every executed step and reconciled device result
// in a SQLite audit trail.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/herald"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	plan_id TEXT NOT NULL,
	tool_name TEXT NOT NULL,
	args TEXT NOT NULL DEFAULT '{}',
	result TEXT,
	status TEXT NOT NULL,
	error TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_audit_log_plan_id ON audit_log (plan_id);`

// Entry is one audit record.
type Entry struct {
	PlanID    string
	ToolName  string
	Args      map[string]any
	Result    map[string]any
	Status    string
	Error     string
	CreatedAt time.Time
}

// Logger writes audit entries to a SQLite database. Use ":memory:" as the
// path for an ephemeral trail in tests.
type Logger struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the audit database at path.
func Open(path string) (*Logger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open audit database", goerr.V("path", path))
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to initialize audit schema")
	}

	return &Logger{db: db}, nil
}

// Close closes the underlying database.
func (l *Logger) Close() error {
	if err := l.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close audit database")
	}
	return nil
}

// Record inserts one audit entry.
func (l *Logger) Record(ctx context.Context, entry Entry) error {
	args, err := json.Marshal(entry.Args)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal audit args")
	}

	var result any
	if entry.Result != nil {
		data, err := json.Marshal(entry.Result)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal audit result")
		}
		result = string(data)
	}

	var errMsg any
	if entry.Error != "" {
		errMsg = entry.Error
	}

	const query = `INSERT INTO audit_log (plan_id, tool_name, args, result, status, error) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := l.db.ExecContext(ctx, query, entry.PlanID, entry.ToolName, string(args), result, entry.Status, errMsg); err != nil {
		return goerr.Wrap(err, "failed to insert audit entry", goerr.V("plan_id", entry.PlanID))
	}
	return nil
}

// ByPlan returns the audit entries of a plan, oldest first.
func (l *Logger) ByPlan(ctx context.Context, planID string) ([]Entry, error) {
	const query = `SELECT plan_id, tool_name, args, result, status, error, created_at FROM audit_log WHERE plan_id = ? ORDER BY id`
	rows, err := l.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query audit entries", goerr.V("plan_id", planID))
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var args string
		var result, errMsg sql.NullString

		if err := rows.Scan(&entry.PlanID, &entry.ToolName, &args, &result, &entry.Status, &errMsg, &entry.CreatedAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan audit entry")
		}

		if err := json.Unmarshal([]byte(args), &entry.Args); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal audit args")
		}
		if result.Valid {
			if err := json.Unmarshal([]byte(result.String), &entry.Result); err != nil {
				return nil, goerr.Wrap(err, "failed to unmarshal audit result")
			}
		}
		entry.Error = errMsg.String

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate audit entries")
	}

	return entries, nil
}

// StepHook adapts the logger into a pipeline step hook. Recording errors
// are logged, not surfaced; the audit trail never blocks execution.
func (l *Logger) StepHook() herald.StepHook {
	return func(ctx context.Context, planID string, sr herald.StepResult) {
		status := "ok"
		if !sr.Success {
			status = "error"
		}
		if sr.DeviceAction != nil {
			status = "dispatched"
		}

		entry := Entry{
			PlanID:   planID,
			ToolName: sr.Step.ToolName,
			Args:     sr.Step.Args.AnyMap(),
			Result:   sr.Result,
			Status:   status,
			Error:    sr.Error,
		}
		if err := l.Record(ctx, entry); err != nil {
			herald.LoggerFromContext(ctx).Error("failed to record step audit", "error", err)
		}
	}
}

// DeviceResultHook adapts the logger into a pipeline device-result hook.
func (l *Logger) DeviceResultHook() herald.DeviceResultHook {
	return func(ctx context.Context, planID string, result herald.DeviceActionResult, outcome herald.ResolveOutcome) {
		status := "ok"
		if !result.Success {
			status = "error"
		}
		if outcome != herald.ResolveApplied {
			status = string(outcome)
		}

		entry := Entry{
			PlanID:   planID,
			ToolName: "device:" + result.ActionID,
			Result:   map[string]any{"result": result.Result.Any()},
			Status:   status,
			Error:    result.Error,
		}
		if err := l.Record(ctx, entry); err != nil {
			herald.LoggerFromContext(ctx).Error("failed to record device audit", "error", err)
		}
	}
}
