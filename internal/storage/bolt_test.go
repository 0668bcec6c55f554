package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gapscan/gapscan/internal/models"
)

func newTestBolt(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBolt(filepath.Join(t.TempDir(), "test.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBolt_FeedbackHistoryOrder(t *testing.T) {
	store := newTestBolt(t)
	ctx := t.Context()
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	// Append out of chronological order; history must come back sorted.
	for i, offset := range []int{2, 0, 1} {
		err := store.AppendFeedback(ctx, models.FeedbackEvent{
			ID:         string(rune('a' + i)),
			TenantID:   "t1",
			GapType:    models.GapStaleness,
			QuestionID: "q1",
			Type:       models.FeedbackSkipped,
			RecordedAt: base.Add(time.Duration(offset) * time.Hour),
		})
		require.NoError(t, err)
	}

	history, err := store.FeedbackHistory(ctx, "t1", models.GapStaleness)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].RecordedAt.Before(history[i-1].RecordedAt),
			"history must be chronological")
	}
}

func TestBolt_FeedbackScopedByTenantAndType(t *testing.T) {
	store := newTestBolt(t)
	ctx := t.Context()
	now := time.Now().UTC()

	require.NoError(t, store.AppendFeedback(ctx, models.FeedbackEvent{
		ID: "e1", TenantID: "t1", GapType: models.GapStaleness,
		QuestionID: "q1", Type: models.FeedbackAnswered, RecordedAt: now,
	}))
	require.NoError(t, store.AppendFeedback(ctx, models.FeedbackEvent{
		ID: "e2", TenantID: "t2", GapType: models.GapStaleness,
		QuestionID: "q2", Type: models.FeedbackAnswered, RecordedAt: now,
	}))
	require.NoError(t, store.AppendFeedback(ctx, models.FeedbackEvent{
		ID: "e3", TenantID: "t1", GapType: models.GapBusFactor,
		QuestionID: "q3", Type: models.FeedbackAnswered, RecordedAt: now,
	}))

	history, err := store.FeedbackHistory(ctx, "t1", models.GapStaleness)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "e1", history[0].ID)
}

func TestBolt_ResultRoundtrip(t *testing.T) {
	store := newTestBolt(t)
	ctx := t.Context()

	result := &models.GapAnalysisResult{
		RunID:     "run-1",
		TenantID:  "t1",
		ProjectID: "p1",
		Gaps: []models.Gap{
			{ID: "g1", Type: models.GapBusFactor, Severity: 0.8},
		},
		Questions: []models.GeneratedQuestion{
			{ID: "q1", GapID: "g1", Text: "who else knows?"},
		},
		CompletedAt: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveResult(ctx, result))

	loaded, err := store.GetResult(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, result.RunID, loaded.RunID)
	require.Len(t, loaded.Questions, 1)
	assert.Equal(t, "who else knows?", loaded.Questions[0].Text)

	gapType, err := store.QuestionGapType(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, models.GapBusFactor, gapType)

	last, err := store.LastRun(ctx, "t1", "p1")
	require.NoError(t, err)
	assert.True(t, last.Equal(result.CompletedAt))
}

func TestBolt_NotFound(t *testing.T) {
	store := newTestBolt(t)
	ctx := t.Context()

	_, err := store.GetResult(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.LastRun(ctx, "t", "p")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.QuestionGapType(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBolt_RunRecordRoundtrip(t *testing.T) {
	store := newTestBolt(t)
	ctx := t.Context()

	run := &models.RunRecord{
		ID:        "run-1",
		TenantID:  "t1",
		State:     models.RunExtract,
		Progress:  models.Progress{Current: 3, Total: 10, Message: "extracting documents"},
		StartedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveRun(ctx, run))

	// Upsert the same run with a later state.
	run.State = models.RunDone
	require.NoError(t, store.SaveRun(ctx, run))

	loaded, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunDone, loaded.State)
	assert.Equal(t, 3, loaded.Progress.Current)
}
