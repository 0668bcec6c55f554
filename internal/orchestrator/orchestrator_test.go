package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gapscan/gapscan/internal/analyzers"
	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/extraction"
	"github.com/gapscan/gapscan/internal/feedback"
	"github.com/gapscan/gapscan/internal/graph"
	"github.com/gapscan/gapscan/internal/llm"
	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/priority"
	"github.com/gapscan/gapscan/internal/questions"
	"github.com/gapscan/gapscan/internal/storage"
	"github.com/gapscan/gapscan/internal/textmatch"
)

type fakeSource struct {
	docs []models.Document
}

func (s *fakeSource) List(_ context.Context, _, _ string, since time.Time) ([]models.Document, error) {
	var out []models.Document
	for _, doc := range s.docs {
		if !since.IsZero() && !doc.UpdatedAt.After(since) {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

// fakeExtractor derives a deterministic extraction from the document without
// any LLM involvement.
type fakeExtractor struct {
	failAll bool
}

func (e *fakeExtractor) Extract(_ context.Context, doc models.Document) (*models.DocumentExtraction, error) {
	if e.failAll {
		return nil, fmt.Errorf("extraction contract failure for %s", doc.ID)
	}
	return &models.DocumentExtraction{
		DocID:        doc.ID,
		Author:       doc.Author,
		DocTimestamp: doc.UpdatedAt,
		Entities: []models.ExtractedEntity{
			{Name: "Deploy Pipeline", Type: models.EntitySystem, Confidence: 0.9},
		},
		Signals: []models.Signal{
			{Kind: models.SignalOwnership, Subject: "Alice", Object: "Deploy Pipeline"},
		},
		ExtractedAt: time.Now().UTC(),
	}, nil
}

func testDocs(n int) []models.Document {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	docs := make([]models.Document, n)
	for i := range docs {
		docs[i] = models.Document{
			ID:        fmt.Sprintf("doc-%d", i+1),
			Content:   "Alice owns the Deploy Pipeline.",
			Author:    "alice",
			CreatedAt: base.AddDate(0, 0, i),
			UpdatedAt: base.AddDate(0, 0, i),
		}
	}
	return docs
}

func newTestOrchestrator(t *testing.T, src DocumentSource, extractor extraction.Extractor, workers int) (*Orchestrator, storage.Store) {
	t.Helper()
	cfg := config.Default()

	store, err := storage.NewBolt(filepath.Join(t.TempDir(), "orch.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	client, err := llm.NewClient(t.Context(), cfg)
	require.NoError(t, err)

	matcher := textmatch.NewMatcher()
	orch := New(
		src,
		extraction.NewPool(extractor, workers),
		graph.NewAssembler(matcher, cfg.Analysis.ResolutionThreshold),
		analyzers.NewEngine(cfg.Analysis, matcher),
		questions.NewGenerator(client, matcher, cfg.Analysis.QuestionDedupThreshold),
		priority.NewEngine(cfg.Priority, cfg.Feedback),
		feedback.NewEngine(store, cfg.Feedback),
		store,
		nil,
	)
	return orch, store
}

func TestExecute_HappyPath(t *testing.T) {
	src := &fakeSource{docs: testDocs(3)}
	orch, store := newTestOrchestrator(t, src, &fakeExtractor{}, 2)

	var states []models.RunState
	var progress []models.Progress
	result, err := orch.Execute(t.Context(),
		RunRequest{RunID: "run-1", TenantID: "t1", ProjectID: "p1", Force: true},
		func(state models.RunState, _ models.Progress) { states = append(states, state) },
		func(current, total int, message string) {
			progress = append(progress, models.Progress{Current: current, Total: total, Message: message})
		},
	)
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 3, result.Stats.DocumentCount)
	assert.Equal(t, 0, result.Stats.SkippedDocuments)
	assert.Greater(t, result.Stats.EntityCount, 0)
	assert.NotEmpty(t, result.Gaps)
	assert.NotEmpty(t, result.CategoriesFound)

	assert.Equal(t, []models.RunState{
		models.RunInit, models.RunExtract, models.RunGraph,
		models.RunAnalyze, models.RunGenerate, models.RunPrioritize, models.RunDone,
	}, states)

	// Progress is monotonic with a constant total of docs + stages.
	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i].Current, progress[i-1].Current)
		assert.Equal(t, progress[i-1].Total, progress[i].Total)
	}
	assert.Equal(t, 3+stageCount, progress[len(progress)-1].Total)

	// The result is persisted and retrievable.
	saved, err := store.GetResult(t.Context(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, result.Stats.GapCount, len(saved.Gaps))
}

func TestExecute_ProgressIsMonotonicWithManyWorkers(t *testing.T) {
	const docs = 64
	src := &fakeSource{docs: testDocs(docs)}
	orch, _ := newTestOrchestrator(t, src, &fakeExtractor{}, 8)

	// The callback appends to a plain slice; correctness depends on the
	// pipeline serializing progress delivery across extraction workers.
	var progress []models.Progress
	_, err := orch.Execute(t.Context(),
		RunRequest{RunID: "run-1", TenantID: "t1", ProjectID: "p1", Force: true},
		nil,
		func(current, total int, _ string) {
			progress = append(progress, models.Progress{Current: current, Total: total})
		},
	)
	require.NoError(t, err)

	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		require.GreaterOrEqual(t, progress[i].Current, progress[i-1].Current)
		require.Equal(t, docs+stageCount, progress[i].Total)
	}
	require.Equal(t, docs+stageCount, progress[len(progress)-1].Current)
}

func TestExecute_ZeroDocumentsIsFatal(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeSource{}, &fakeExtractor{}, 2)

	_, err := orch.Execute(t.Context(), RunRequest{TenantID: "t1", Force: true}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INIT")
	assert.Contains(t, err.Error(), "no documents")
}

func TestExecute_AllExtractionsFailedIsFatal(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeSource{docs: testDocs(2)}, &fakeExtractor{failAll: true}, 2)

	_, err := orch.Execute(t.Context(), RunRequest{TenantID: "t1", Force: true}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXTRACT")
}

func TestExecute_FreshnessShortCircuit(t *testing.T) {
	src := &fakeSource{docs: testDocs(2)}
	orch, _ := newTestOrchestrator(t, src, &fakeExtractor{}, 2)

	_, err := orch.Execute(t.Context(), RunRequest{RunID: "run-1", TenantID: "t1", ProjectID: "p1", Force: true}, nil, nil)
	require.NoError(t, err)

	// Nothing new since the first run: without force the run short-circuits.
	_, err = orch.Execute(t.Context(), RunRequest{RunID: "run-2", TenantID: "t1", ProjectID: "p1"}, nil, nil)
	assert.ErrorIs(t, err, ErrNotFresh)

	// A new document makes the tenant fresh again.
	src.docs = append(src.docs, models.Document{
		ID:        "doc-new",
		Content:   "Bob owns the Billing Service.",
		Author:    "bob",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	})
	_, err = orch.Execute(t.Context(), RunRequest{RunID: "run-3", TenantID: "t1", ProjectID: "p1"}, nil, nil)
	require.NoError(t, err)

	// Force always re-runs.
	_, err = orch.Execute(t.Context(), RunRequest{RunID: "run-4", TenantID: "t1", ProjectID: "p1", Force: true}, nil, nil)
	require.NoError(t, err)
}

func TestService_RunAndFeedback(t *testing.T) {
	src := &fakeSource{docs: testDocs(2)}
	orch, store := newTestOrchestrator(t, src, &fakeExtractor{}, 2)

	cfg := config.Default()
	svc := NewService(orch, store, NewMemoryLocker(), NewQueue(2), nil, feedback.NewEngine(store, cfg.Feedback))
	t.Cleanup(svc.Shutdown)

	runID, err := svc.Run(t.Context(), RunRequest{TenantID: "t1", ProjectID: "p1", Force: true}, nil)
	require.NoError(t, err)

	record := waitForTerminal(t, svc, runID)
	require.Equal(t, models.RunDone, record.State)

	result, err := store.GetResult(t.Context(), runID)
	require.NoError(t, err)
	require.NotEmpty(t, result.Questions)

	// Feedback against a generated question lands in the event log.
	questionID := result.Questions[0].ID
	require.NoError(t, svc.SubmitFeedback(t.Context(), "t1", questionID, models.FeedbackAnswered))

	gapType, err := store.QuestionGapType(t.Context(), questionID)
	require.NoError(t, err)
	history, err := store.FeedbackHistory(t.Context(), "t1", gapType)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.FeedbackAnswered, history[0].Type)
}

func TestService_FeedbackUnknownQuestion(t *testing.T) {
	src := &fakeSource{docs: testDocs(1)}
	orch, store := newTestOrchestrator(t, src, &fakeExtractor{}, 2)

	cfg := config.Default()
	svc := NewService(orch, store, NewMemoryLocker(), NewQueue(1), nil, feedback.NewEngine(store, cfg.Feedback))
	t.Cleanup(svc.Shutdown)

	err := svc.SubmitFeedback(t.Context(), "t1", "nope", models.FeedbackAnswered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown question")
}

func TestMemoryLocker(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := t.Context()

	ok, err := locker.Acquire(ctx, "t1", "p1", "run-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Same tenant+project contends; a different tenant does not.
	ok, err = locker.Acquire(ctx, "t1", "p1", "run-2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = locker.Acquire(ctx, "t2", "p1", "run-3")
	require.NoError(t, err)
	assert.True(t, ok)

	// Only the holder's release frees the lock.
	require.NoError(t, locker.Release(ctx, "t1", "p1", "run-2"))
	ok, _ = locker.Acquire(ctx, "t1", "p1", "run-4")
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "t1", "p1", "run-1"))
	ok, _ = locker.Acquire(ctx, "t1", "p1", "run-4")
	assert.True(t, ok)
}

func waitForTerminal(t *testing.T, svc *Service, runID string) *models.RunRecord {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("run did not reach a terminal state")
		case <-time.After(10 * time.Millisecond):
		}
		record, err := svc.GetRunStatus(t.Context(), runID)
		require.NoError(t, err)
		if record.State == models.RunDone || record.State == models.RunFailed {
			return record
		}
	}
}
