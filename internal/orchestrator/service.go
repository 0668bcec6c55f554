package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gapscan/gapscan/internal/cache"
	"github.com/gapscan/gapscan/internal/extraction"
	"github.com/gapscan/gapscan/internal/feedback"
	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/storage"
)

// ErrRunInProgress is returned when a run for the same tenant+project
// already holds the lock.
var ErrRunInProgress = errors.New("a run for this tenant and project is already in progress")

// Service is the exposed surface: asynchronous runs, feedback submission,
// and status queries.
type Service struct {
	orch     *Orchestrator
	store    storage.Store
	locker   Locker
	queue    *Queue
	status   *cache.Client // optional, server mode only
	feedback *feedback.Engine
	logger   *slog.Logger

	mu   sync.Mutex
	runs map[string]*models.RunRecord // in-process status cache
}

// NewService assembles the service facade. status may be nil in local mode.
func NewService(orch *Orchestrator, store storage.Store, locker Locker, queue *Queue, status *cache.Client, feedbackEngine *feedback.Engine) *Service {
	return &Service{
		orch:     orch,
		store:    store,
		locker:   locker,
		queue:    queue,
		status:   status,
		feedback: feedbackEngine,
		logger:   slog.Default().With("component", "service"),
		runs:     make(map[string]*models.RunRecord),
	}
}

// Run submits an asynchronous pipeline run and returns its run id. Progress
// callbacks fire from the background worker.
func (s *Service) Run(ctx context.Context, req RunRequest, progress extraction.ProgressFunc) (string, error) {
	if req.TenantID == "" {
		return "", fmt.Errorf("tenant id is required")
	}

	runID := uuid.NewString()
	req.RunID = runID
	acquired, err := s.locker.Acquire(ctx, req.TenantID, req.ProjectID, runID)
	if err != nil {
		return "", fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !acquired {
		return "", ErrRunInProgress
	}

	record := &models.RunRecord{
		ID:        runID,
		TenantID:  req.TenantID,
		ProjectID: req.ProjectID,
		State:     models.RunInit,
		StartedAt: time.Now().UTC(),
	}
	s.publish(ctx, record)

	submitted := s.queue.Submit(func(taskCtx context.Context) {
		defer func() {
			if err := s.locker.Release(taskCtx, req.TenantID, req.ProjectID, runID); err != nil {
				s.logger.Warn("failed to release run lock", "run", runID, "error", err)
			}
		}()
		s.execute(taskCtx, req, record, progress)
	})
	if !submitted {
		if err := s.locker.Release(ctx, req.TenantID, req.ProjectID, runID); err != nil {
			s.logger.Warn("failed to release run lock", "run", runID, "error", err)
		}
		return "", fmt.Errorf("task queue rejected run submission")
	}
	return runID, nil
}

func (s *Service) execute(ctx context.Context, req RunRequest, record *models.RunRecord, progress extraction.ProgressFunc) {
	onState := func(state models.RunState, p models.Progress) {
		record.State = state
		record.Progress = p
		s.publish(ctx, record)
	}
	onProgress := func(current, total int, message string) {
		record.Progress = models.Progress{Current: current, Total: total, Message: message}
		s.publish(ctx, record)
		if progress != nil {
			progress(current, total, message)
		}
	}

	result, err := s.orch.Execute(ctx, req, onState, onProgress)
	now := time.Now().UTC()
	record.FinishedAt = &now

	switch {
	case errors.Is(err, ErrNotFresh):
		record.State = models.RunDone
		record.Progress.Message = "up to date, nothing to do"
	case err != nil:
		record.State = models.RunFailed
		record.Error = err.Error()
		s.logger.Error("run failed", "run", record.ID, "error", err)
	default:
		record.State = models.RunDone
		record.Degraded = result.Degraded
	}
	s.publish(ctx, record)
}

// publish stores the run record locally, persistently, and in Redis when
// configured. Status bookkeeping failures never fail the run.
func (s *Service) publish(ctx context.Context, record *models.RunRecord) {
	s.mu.Lock()
	snapshot := *record
	s.runs[record.ID] = &snapshot
	s.mu.Unlock()

	if err := s.store.SaveRun(ctx, &snapshot); err != nil {
		s.logger.Warn("failed to persist run record", "run", record.ID, "error", err)
	}
	if s.status != nil {
		if err := s.status.PublishRunStatus(ctx, &snapshot); err != nil {
			s.logger.Warn("failed to publish run status", "run", record.ID, "error", err)
		}
	}
}

// SubmitFeedback records a user response against a question's gap type.
func (s *Service) SubmitFeedback(ctx context.Context, tenantID, questionID string, feedbackType models.FeedbackType) error {
	gapType, err := s.store.QuestionGapType(ctx, questionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("unknown question %s", questionID)
		}
		return fmt.Errorf("failed to resolve question %s: %w", questionID, err)
	}

	return s.feedback.Record(ctx, models.FeedbackEvent{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		QuestionID: questionID,
		GapType:    gapType,
		Type:       feedbackType,
		RecordedAt: time.Now().UTC(),
	})
}

// GetRunStatus returns the current state and progress of a run, preferring
// the freshest source available.
func (s *Service) GetRunStatus(ctx context.Context, runID string) (*models.RunRecord, error) {
	s.mu.Lock()
	if record, ok := s.runs[runID]; ok {
		snapshot := *record
		s.mu.Unlock()
		return &snapshot, nil
	}
	s.mu.Unlock()

	if s.status != nil {
		if record, err := s.status.RunStatus(ctx, runID); err == nil && record != nil {
			return record, nil
		}
	}

	record, err := s.store.GetRun(ctx, runID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("unknown run %s", runID)
	}
	return record, err
}

// Shutdown drains the background queue.
func (s *Service) Shutdown() {
	s.queue.Shutdown()
}
