// Package storage persists runs, results, and the feedback event log behind
// one Store interface with Postgres, SQLite, and Bolt backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/gapscan/gapscan/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence contract for the pipeline. The feedback log is
// append-only; history is always returned in chronological order.
type Store interface {
	// AppendFeedback appends one feedback event to the log.
	AppendFeedback(ctx context.Context, event models.FeedbackEvent) error

	// FeedbackHistory returns every event for (tenant, gap type) ordered by
	// recorded_at ascending.
	FeedbackHistory(ctx context.Context, tenantID string, gapType models.GapType) ([]models.FeedbackEvent, error)

	// SaveResult persists a completed run's output.
	SaveResult(ctx context.Context, result *models.GapAnalysisResult) error

	// GetResult returns a persisted result by run id, or ErrNotFound.
	GetResult(ctx context.Context, runID string) (*models.GapAnalysisResult, error)

	// LastRun returns the completion time of the most recent successful run
	// for (tenant, project), or ErrNotFound.
	LastRun(ctx context.Context, tenantID, projectID string) (time.Time, error)

	// SaveRun upserts a run record for status queries.
	SaveRun(ctx context.Context, run *models.RunRecord) error

	// GetRun returns a run record by id, or ErrNotFound.
	GetRun(ctx context.Context, runID string) (*models.RunRecord, error)

	// QuestionGapType resolves the gap type behind a generated question so
	// feedback can be attributed to a category, or ErrNotFound.
	QuestionGapType(ctx context.Context, questionID string) (models.GapType, error)

	Close() error
}
