package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gapscan/gapscan/internal/models"
)

// schema is shared by Postgres and SQLite. Type names were chosen from the
// intersection both dialects accept.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	project_id  TEXT NOT NULL,
	state       TEXT NOT NULL,
	progress    TEXT NOT NULL,
	degraded    BOOLEAN NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS results (
	run_id       TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	project_id   TEXT NOT NULL,
	payload      TEXT NOT NULL,
	completed_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
	id       TEXT PRIMARY KEY,
	run_id   TEXT NOT NULL,
	gap_id   TEXT NOT NULL,
	gap_type TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback_events (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL,
	gap_type    TEXT NOT NULL,
	question_id TEXT NOT NULL,
	type        TEXT NOT NULL,
	value       DOUBLE PRECISION NOT NULL,
	recorded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_tenant_type
	ON feedback_events (tenant_id, gap_type, recorded_at);
CREATE INDEX IF NOT EXISTS idx_results_tenant_project
	ON results (tenant_id, project_id, completed_at);
`

// SQLStore implements Store over sqlx with either a Postgres or SQLite
// backend.
type SQLStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgres opens a Postgres-backed store via the pgx stdlib driver and
// bootstraps the schema.
func NewPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return newSQLStore(ctx, db, "postgres")
}

// NewSQLite opens a SQLite-backed store at the given path and bootstraps the
// schema. This is the default backend in local mode.
func NewSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// Serialized access keeps the append-only feedback log consistent.
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, "sqlite")
}

func newSQLStore(ctx context.Context, db *sqlx.DB, backend string) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}
	logger := slog.Default().With("component", "storage", "backend", backend)
	logger.Debug("store ready")
	return &SQLStore{db: db, logger: logger}, nil
}

func (s *SQLStore) AppendFeedback(ctx context.Context, event models.FeedbackEvent) error {
	query := s.db.Rebind(`
		INSERT INTO feedback_events (id, tenant_id, gap_type, question_id, type, value, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.TenantID, string(event.GapType), event.QuestionID,
		string(event.Type), event.Value, event.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append feedback event: %w", err)
	}
	return nil
}

func (s *SQLStore) FeedbackHistory(ctx context.Context, tenantID string, gapType models.GapType) ([]models.FeedbackEvent, error) {
	query := s.db.Rebind(`
		SELECT id, tenant_id, gap_type, question_id, type, value, recorded_at
		FROM feedback_events
		WHERE tenant_id = ? AND gap_type = ?
		ORDER BY recorded_at ASC, id ASC`)

	rows, err := s.db.QueryxContext(ctx, query, tenantID, string(gapType))
	if err != nil {
		return nil, fmt.Errorf("failed to load feedback history: %w", err)
	}
	defer rows.Close()

	var events []models.FeedbackEvent
	for rows.Next() {
		var e models.FeedbackEvent
		var gt, ft string
		if err := rows.Scan(&e.ID, &e.TenantID, &gt, &e.QuestionID, &ft, &e.Value, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback event: %w", err)
		}
		e.GapType = models.GapType(gt)
		e.Type = models.FeedbackType(ft)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLStore) SaveResult(ctx context.Context, result *models.GapAnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insertResult := tx.Rebind(`
		INSERT INTO results (run_id, tenant_id, project_id, payload, completed_at)
		VALUES (?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insertResult,
		result.RunID, result.TenantID, result.ProjectID, string(payload), result.CompletedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	gapTypes := make(map[string]models.GapType, len(result.Gaps))
	for _, gap := range result.Gaps {
		gapTypes[gap.ID] = gap.Type
	}
	insertQuestion := tx.Rebind(`
		INSERT INTO questions (id, run_id, gap_id, gap_type)
		VALUES (?, ?, ?, ?)`)
	for _, q := range result.Questions {
		if _, err := tx.ExecContext(ctx, insertQuestion,
			q.ID, result.RunID, q.GapID, string(gapTypes[q.GapID]),
		); err != nil {
			return fmt.Errorf("failed to save question %s: %w", q.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit result: %w", err)
	}
	s.logger.Debug("result saved", "run", result.RunID, "questions", len(result.Questions))
	return nil
}

func (s *SQLStore) GetResult(ctx context.Context, runID string) (*models.GapAnalysisResult, error) {
	query := s.db.Rebind(`SELECT payload FROM results WHERE run_id = ?`)

	var payload string
	err := s.db.GetContext(ctx, &payload, query, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query result %s: %w", runID, err)
	}

	var result models.GapAnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result %s: %w", runID, err)
	}
	return &result, nil
}

func (s *SQLStore) LastRun(ctx context.Context, tenantID, projectID string) (time.Time, error) {
	query := s.db.Rebind(`
		SELECT completed_at FROM results
		WHERE tenant_id = ? AND project_id = ?
		ORDER BY completed_at DESC LIMIT 1`)

	var ts time.Time
	err := s.db.GetContext(ctx, &ts, query, tenantID, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query last run: %w", err)
	}
	return ts, nil
}

func (s *SQLStore) SaveRun(ctx context.Context, run *models.RunRecord) error {
	progress, err := json.Marshal(run.Progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	// Upsert keyed on run id; both dialects support this form.
	query := s.db.Rebind(`
		INSERT INTO runs (id, tenant_id, project_id, state, progress, degraded, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			progress = EXCLUDED.progress,
			degraded = EXCLUDED.degraded,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at`)

	var finished any
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	_, err = s.db.ExecContext(ctx, query,
		run.ID, run.TenantID, run.ProjectID, string(run.State), string(progress),
		run.Degraded, run.Error, run.StartedAt.UTC(), finished,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLStore) GetRun(ctx context.Context, runID string) (*models.RunRecord, error) {
	query := s.db.Rebind(`
		SELECT id, tenant_id, project_id, state, progress, degraded, error, started_at, finished_at
		FROM runs WHERE id = ?`)

	var run models.RunRecord
	var state, progress string
	var finished sql.NullTime
	err := s.db.QueryRowxContext(ctx, query, runID).Scan(
		&run.ID, &run.TenantID, &run.ProjectID, &state, &progress,
		&run.Degraded, &run.Error, &run.StartedAt, &finished,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}

	run.State = models.RunState(state)
	if err := json.Unmarshal([]byte(progress), &run.Progress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress for run %s: %w", runID, err)
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func (s *SQLStore) QuestionGapType(ctx context.Context, questionID string) (models.GapType, error) {
	query := s.db.Rebind(`SELECT gap_type FROM questions WHERE id = ?`)

	var gapType string
	err := s.db.GetContext(ctx, &gapType, query, questionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve question %s: %w", questionID, err)
	}
	return models.GapType(gapType), nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
