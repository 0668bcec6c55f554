package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/gapscan/gapscan/internal/models"
)

var (
	bucketFeedback  = []byte("feedback")
	bucketResults   = []byte("results")
	bucketLastRun   = []byte("last_run")
	bucketRuns      = []byte("runs")
	bucketQuestions = []byte("questions")
)

// BoltStore implements Store on a single-file bbolt database. It needs no
// server process and is the zero-configuration fallback backend.
type BoltStore struct {
	db     *bolt.DB
	logger *slog.Logger
}

// NewBolt opens (or creates) a bbolt store at the given path.
func NewBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketFeedback, bucketResults, bucketLastRun, bucketRuns, bucketQuestions} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{
		db:     db,
		logger: slog.Default().With("component", "storage", "backend", "bolt"),
	}, nil
}

// feedbackKey orders events chronologically within a (tenant, gap type)
// prefix so a cursor scan returns them replay-ready.
func feedbackKey(tenantID string, gapType models.GapType, recordedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s\x00%s\x00%s\x00%s",
		tenantID, gapType, recordedAt.UTC().Format(time.RFC3339Nano), id))
}

func (s *BoltStore) AppendFeedback(_ context.Context, event models.FeedbackEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback event: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		key := feedbackKey(event.TenantID, event.GapType, event.RecordedAt, event.ID)
		return tx.Bucket(bucketFeedback).Put(key, data)
	})
}

func (s *BoltStore) FeedbackHistory(_ context.Context, tenantID string, gapType models.GapType) ([]models.FeedbackEvent, error) {
	prefix := []byte(fmt.Sprintf("%s\x00%s\x00", tenantID, gapType))

	var events []models.FeedbackEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketFeedback).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e models.FeedbackEvent
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("failed to unmarshal feedback event: %w", err)
			}
			events = append(events, e)
		}
		return nil
	})
	return events, err
}

func (s *BoltStore) SaveResult(_ context.Context, result *models.GapAnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	gapTypes := make(map[string]models.GapType, len(result.Gaps))
	for _, gap := range result.Gaps {
		gapTypes[gap.ID] = gap.Type
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketResults).Put([]byte(result.RunID), payload); err != nil {
			return err
		}

		lastKey := []byte(result.TenantID + "\x00" + result.ProjectID)
		completed := []byte(result.CompletedAt.UTC().Format(time.RFC3339Nano))
		if err := tx.Bucket(bucketLastRun).Put(lastKey, completed); err != nil {
			return err
		}

		questions := tx.Bucket(bucketQuestions)
		for _, q := range result.Questions {
			if err := questions.Put([]byte(q.ID), []byte(gapTypes[q.GapID])); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) GetResult(_ context.Context, runID string) (*models.GapAnalysisResult, error) {
	var result models.GapAnalysisResult
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketResults).Get([]byte(runID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *BoltStore) LastRun(_ context.Context, tenantID, projectID string) (time.Time, error) {
	var ts time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketLastRun).Get([]byte(tenantID + "\x00" + projectID))
		if v == nil {
			return ErrNotFound
		}
		parsed, err := time.Parse(time.RFC3339Nano, string(v))
		if err != nil {
			return fmt.Errorf("failed to parse last run timestamp: %w", err)
		}
		ts = parsed
		return nil
	})
	return ts, err
}

func (s *BoltStore) SaveRun(_ context.Context, run *models.RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).Put([]byte(run.ID), data)
	})
}

func (s *BoltStore) GetRun(_ context.Context, runID string) (*models.RunRecord, error) {
	var run models.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRuns).Get([]byte(runID))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *BoltStore) QuestionGapType(_ context.Context, questionID string) (models.GapType, error) {
	var gapType models.GapType
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketQuestions).Get([]byte(questionID))
		if v == nil {
			return ErrNotFound
		}
		gapType = models.GapType(v)
		return nil
	})
	return gapType, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
