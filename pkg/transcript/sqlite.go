package transcript

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jllopis/qlcrew/pkg/core"
	"github.com/jllopis/qlcrew/pkg/errors"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists transcripts in SQLite.
type SQLiteStore struct {
	db    *sql.DB
	owned bool
}

// NewSQLiteStore creates a SQLite-backed store and ensures the schema. The
// caller keeps ownership of db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensureSchema(db); err != nil {
		return nil, errors.New(errors.CodeStoreError, "create transcript schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// SaveRun inserts or updates run metadata.
func (s *SQLiteStore) SaveRun(ctx context.Context, run core.RunInfo) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript_runs (id, task, status, error_text, created_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error_text = excluded.error_text,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`,
		run.ID,
		run.Task,
		string(run.Status),
		run.Error,
		utc(run.CreatedAt),
		utc(run.StartedAt),
		utc(run.FinishedAt),
	)
	if err != nil {
		return errors.New(errors.CodeStoreError, "save run", err).WithContext("run_id", run.ID)
	}
	return nil
}

// Append stores a step.
func (s *SQLiteStore) Append(ctx context.Context, step core.Step) error {
	invocations, err := encodeInvocations(step.Invocations)
	if err != nil {
		return errors.New(errors.CodeStoreError, "encode invocations", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcript_steps (
			run_id, step_index, actor, input_text, output_text, invocations_json, failed, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		step.RunID,
		step.Index,
		step.Actor,
		step.Input,
		step.Output,
		invocations,
		step.Failed,
		utc(step.StartedAt),
		utc(step.FinishedAt),
	)
	if err != nil {
		return errors.New(errors.CodeStoreError, "append step", err).
			WithContext("run_id", step.RunID).
			WithContext("index", step.Index)
	}
	return nil
}

// Runs returns run metadata, oldest first.
func (s *SQLiteStore) Runs(ctx context.Context) ([]core.RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task, status, error_text, created_at, started_at, finished_at
		FROM transcript_runs ORDER BY created_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "list runs", err)
	}
	defer rows.Close()

	var runs []core.RunInfo
	for rows.Next() {
		var (
			run                         core.RunInfo
			status                      string
			created, started, finished sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Task, &status, &run.Error, &created, &started, &finished); err != nil {
			return nil, errors.New(errors.CodeStoreError, "scan run", err)
		}
		run.Status = core.RunStatus(status)
		run.CreatedAt = created.Time
		run.StartedAt = started.Time
		run.FinishedAt = finished.Time
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStoreError, "list runs", err)
	}
	return runs, nil
}

// Steps returns filtered steps ordered by run and index.
func (s *SQLiteStore) Steps(ctx context.Context, filter Filter) ([]core.Step, error) {
	query := `
		SELECT run_id, step_index, actor, input_text, output_text, invocations_json, failed, started_at, finished_at
		FROM transcript_steps
	`
	var (
		clauses []string
		args    []any
	)
	if filter.RunID != "" {
		clauses = append(clauses, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Actor != "" {
		clauses = append(clauses, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.FailedOnly {
		clauses = append(clauses, "failed = 1")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "list steps", err)
	}
	defer rows.Close()

	var steps []core.Step
	for rows.Next() {
		var (
			step              core.Step
			invocations       string
			started, finished sql.NullTime
		)
		if err := rows.Scan(
			&step.RunID,
			&step.Index,
			&step.Actor,
			&step.Input,
			&step.Output,
			&invocations,
			&step.Failed,
			&started,
			&finished,
		); err != nil {
			return nil, errors.New(errors.CodeStoreError, "scan step", err)
		}
		if step.Invocations, err = decodeInvocations(invocations); err != nil {
			return nil, errors.New(errors.CodeStoreError, "decode invocations", err)
		}
		step.StartedAt = started.Time
		step.FinishedAt = finished.Time
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStoreError, "list steps", err)
	}
	return steps, nil
}

// Close closes the database when the store opened it.
func (s *SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript_runs (
			id TEXT PRIMARY KEY,
			task TEXT NOT NULL,
			status TEXT NOT NULL,
			error_text TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS transcript_steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step_index INTEGER NOT NULL,
			actor TEXT NOT NULL,
			input_text TEXT NOT NULL,
			output_text TEXT NOT NULL,
			invocations_json TEXT NOT NULL DEFAULT '[]',
			failed BOOLEAN NOT NULL DEFAULT 0,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_transcript_steps_run ON transcript_steps(run_id);
		CREATE INDEX IF NOT EXISTS idx_transcript_steps_actor ON transcript_steps(actor);
	`)
	return err
}
