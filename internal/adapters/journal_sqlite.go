package adapters

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	_ "modernc.org/sqlite"

	"storagectl/internal/ports"
	"storagectl/internal/types"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	operation    TEXT NOT NULL,
	state        TEXT NOT NULL,
	aborted_step TEXT NOT NULL DEFAULT '',
	kind         TEXT NOT NULL DEFAULT '',
	message      TEXT NOT NULL DEFAULT '',
	started_at   INTEGER NOT NULL,
	finished_at  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS steps (
	run_id      TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	idx         INTEGER NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// SQLiteJournal records every run and its step outcomes so operators can
// audit what a past invocation did.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenSQLiteJournal opens or creates the journal. Use ":memory:" in tests.
func OpenSQLiteJournal(path string) (*SQLiteJournal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to create journal directory").
				WithCause(err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to open journal").
			WithCause(err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, stmt := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000", journalSchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to initialise journal").
				WithCause(err)
		}
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) Begin(ctx context.Context, record types.RunRecord) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, operation, state, started_at) VALUES (?, ?, ?, ?)`,
		record.RunID, string(record.Operation), string(record.State), record.StartedAt.UTC().UnixMilli())
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to record run start").
			WithCause(err)
	}
	return nil
}

// Finish stores the final state of a run together with its step records.
func (j *SQLiteJournal) Finish(ctx context.Context, record types.RunRecord) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, operation, state, aborted_step, kind, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			state = excluded.state,
			aborted_step = excluded.aborted_step,
			kind = excluded.kind,
			message = excluded.message,
			finished_at = excluded.finished_at`,
		record.RunID, string(record.Operation), string(record.State), record.AbortedStep,
		string(record.Kind), record.Message, record.StartedAt.UTC().UnixMilli(), record.FinishedAt.UTC().UnixMilli())
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to record run result").
			WithCause(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM steps WHERE run_id = ?`, record.RunID); err != nil {
		return err
	}
	for _, step := range record.Steps {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO steps (run_id, idx, name, status, message, kind, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			record.RunID, step.Index, step.Name, string(step.Status), step.Message, string(step.Kind), step.Duration.Milliseconds())
		if err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to record step " + step.Name).
				WithCause(err)
		}
	}
	return tx.Commit()
}

// Recent returns the latest runs, newest first, with their steps.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]types.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, operation, state, aborted_step, kind, message, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to query journal").
			WithCause(err)
	}
	var records []types.RunRecord
	for rows.Next() {
		var record types.RunRecord
		var operation, state, kind string
		var started, finished int64
		if err := rows.Scan(&record.RunID, &operation, &state, &record.AbortedStep, &kind, &record.Message, &started, &finished); err != nil {
			rows.Close()
			return nil, err
		}
		record.Operation = types.Operation(operation)
		record.State = types.RunState(state)
		record.Kind = types.FailureKind(kind)
		record.StartedAt = time.UnixMilli(started).UTC()
		if finished > 0 {
			record.FinishedAt = time.UnixMilli(finished).UTC()
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	for i := range records {
		steps, err := j.steps(ctx, records[i].RunID)
		if err != nil {
			return nil, err
		}
		records[i].Steps = steps
	}
	return records, nil
}

func (j *SQLiteJournal) steps(ctx context.Context, runID string) ([]types.StepRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT idx, name, status, message, kind, duration_ms FROM steps WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var steps []types.StepRecord
	for rows.Next() {
		var step types.StepRecord
		var status, kind string
		var durationMS int64
		if err := rows.Scan(&step.Index, &step.Name, &status, &step.Message, &kind, &durationMS); err != nil {
			return nil, err
		}
		step.Status = types.StepStatus(status)
		step.Kind = types.FailureKind(kind)
		step.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

var _ ports.JournalPort = (*SQLiteJournal)(nil)
