// Package orchestrator drives the pipeline as a state machine over strictly
// sequential stages. Only the extraction stage is concurrent; every other
// stage runs single-threaded over the in-memory graph.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gapscan/gapscan/internal/analyzers"
	"github.com/gapscan/gapscan/internal/extraction"
	"github.com/gapscan/gapscan/internal/feedback"
	"github.com/gapscan/gapscan/internal/graph"
	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/priority"
	"github.com/gapscan/gapscan/internal/questions"
	"github.com/gapscan/gapscan/internal/storage"
)

// DocumentSource lists the documents in scope for a run.
type DocumentSource interface {
	List(ctx context.Context, tenantID, projectID string, since time.Time) ([]models.Document, error)
}

// Exporter mirrors the assembled graph to an external store. Export failures
// are logged, never fatal.
type Exporter interface {
	Export(ctx context.Context, tenantID, projectID string, g *graph.Graph) error
}

// stageCount is the number of post-extraction progress steps: graph,
// analyze, generate, prioritize, persist.
const stageCount = 5

// ErrNotFresh reports a short-circuited run: no new documents since the last
// successful run and force was not set.
var ErrNotFresh = errors.New("no new documents since last successful run")

// RunRequest identifies one unit of pipeline work. RunID is assigned by the
// caller; a blank one is generated.
type RunRequest struct {
	RunID     string
	TenantID  string
	ProjectID string
	Force     bool
}

// Orchestrator executes one run at a time through the pipeline stages.
type Orchestrator struct {
	source    DocumentSource
	pool      *extraction.Pool
	assembler *graph.Assembler
	engine    *analyzers.Engine
	generator *questions.Generator
	priority  *priority.Engine
	feedback  *feedback.Engine
	store     storage.Store
	exporter  Exporter
	logger    *slog.Logger
	now       func() time.Time
}

// New wires an orchestrator from its stage implementations. exporter may be
// nil.
func New(
	source DocumentSource,
	pool *extraction.Pool,
	assembler *graph.Assembler,
	engine *analyzers.Engine,
	generator *questions.Generator,
	priorityEngine *priority.Engine,
	feedbackEngine *feedback.Engine,
	store storage.Store,
	exporter Exporter,
) *Orchestrator {
	return &Orchestrator{
		source:    source,
		pool:      pool,
		assembler: assembler,
		engine:    engine,
		generator: generator,
		priority:  priorityEngine,
		feedback:  feedbackEngine,
		store:     store,
		exporter:  exporter,
		logger:    slog.Default().With("component", "orchestrator"),
		now:       time.Now,
	}
}

// progressTracker emits monotonically increasing (current, total) tuples.
type progressTracker struct {
	fn      extraction.ProgressFunc
	total   int
	current int
}

func (p *progressTracker) step(message string) {
	p.current++
	if p.fn != nil {
		p.fn(p.current, p.total, message)
	}
}

func (p *progressTracker) docProgress(done int, message string) {
	// Extraction reports document counts; fold them into the run total.
	// Never regress: a late observation of an older count is dropped.
	current := done
	if current > p.total-stageCount {
		current = p.total - stageCount
	}
	if current < p.current {
		current = p.current
	}
	p.current = current
	if p.fn != nil {
		p.fn(p.current, p.total, message)
	}
}

// Execute runs the full pipeline synchronously, reporting state transitions
// through onState and progress through onProgress. Fatal conditions return
// an error wrapped with stage context; the caller owns the FAILED record.
func (o *Orchestrator) Execute(ctx context.Context, req RunRequest, onState func(models.RunState, models.Progress), onProgress extraction.ProgressFunc) (*models.GapAnalysisResult, error) {
	started := o.now()
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := o.logger.With("run", runID, "tenant", req.TenantID, "project", req.ProjectID)

	setState := func(state models.RunState, p models.Progress) {
		if onState != nil {
			onState(state, p)
		}
	}
	setState(models.RunInit, models.Progress{})

	// Freshness check: without force, skip the run when nothing changed
	// since the last successful run.
	if !req.Force {
		if last, err := o.store.LastRun(ctx, req.TenantID, req.ProjectID); err == nil {
			fresh, err := o.source.List(ctx, req.TenantID, req.ProjectID, last)
			if err != nil {
				return nil, fmt.Errorf("INIT: failed to check document freshness: %w", err)
			}
			if len(fresh) == 0 {
				logger.Info("short-circuit: no new documents since last run", "last_run", last)
				return nil, ErrNotFresh
			}
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("INIT: failed to query last run: %w", err)
		}
	}

	docs, err := o.source.List(ctx, req.TenantID, req.ProjectID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("INIT: failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("INIT: no documents in scope for tenant %s", req.TenantID)
	}

	tracker := &progressTracker{fn: onProgress, total: len(docs) + stageCount}

	// EXTRACT
	setState(models.RunExtract, models.Progress{Current: tracker.current, Total: tracker.total})
	extracted, err := o.pool.ExtractAll(ctx, docs, func(current, total int, message string) {
		tracker.docProgress(current, message)
	})
	if err != nil {
		return nil, fmt.Errorf("EXTRACT: %w", err)
	}
	if len(extracted.Extractions) == 0 {
		return nil, fmt.Errorf("EXTRACT: extraction failed for all %d documents", len(docs))
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("EXTRACT: %w", err)
	}

	// GRAPH
	setState(models.RunGraph, models.Progress{Current: tracker.current, Total: tracker.total})
	g, err := o.assembler.Assemble(extracted.Extractions)
	if err != nil {
		return nil, fmt.Errorf("GRAPH: %w", err)
	}
	if g.EntityCount() == 0 {
		return nil, fmt.Errorf("GRAPH: assembly produced zero entities")
	}
	tracker.step("assembling knowledge graph")

	if o.exporter != nil {
		if err := o.exporter.Export(ctx, req.TenantID, req.ProjectID, g); err != nil {
			logger.Warn("graph export failed, continuing", "error", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("GRAPH: %w", err)
	}

	// ANALYZE
	setState(models.RunAnalyze, models.Progress{Current: tracker.current, Total: tracker.total})
	gaps := o.engine.Run(g, extracted.Extractions)
	tracker.step("detecting knowledge gaps")
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ANALYZE: %w", err)
	}

	// GENERATE
	setState(models.RunGenerate, models.Progress{Current: tracker.current, Total: tracker.total})
	generated := o.generator.Generate(ctx, gaps)
	tracker.step("generating questions")
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("GENERATE: %w", err)
	}

	// PRIORITIZE
	setState(models.RunPrioritize, models.Progress{Current: tracker.current, Total: tracker.total})
	weights, err := o.feedback.WeightTable(ctx, req.TenantID)
	if err != nil {
		logger.Warn("feedback weights unavailable, using defaults", "error", err)
		weights = nil
	}
	prioritized := o.priority.Rank(generated.Questions, gaps, weights)
	tracker.step("prioritizing questions")

	result := &models.GapAnalysisResult{
		RunID:           runID,
		TenantID:        req.TenantID,
		ProjectID:       req.ProjectID,
		Gaps:            gaps,
		Questions:       generated.Questions,
		Prioritized:     prioritized,
		CategoriesFound: categories(gaps),
		Degraded:        generated.Degraded,
		CompletedAt:     o.now().UTC(),
		Stats: models.RunStats{
			DocumentCount:     len(docs),
			SkippedDocuments:  extracted.Skipped,
			EntityCount:       g.EntityCount(),
			RelationshipCount: g.RelationshipCount(),
			GapCount:          len(gaps),
			QuestionCount:     len(generated.Questions),
			Duration:          o.now().Sub(started),
		},
	}

	if err := o.store.SaveResult(ctx, result); err != nil {
		return nil, fmt.Errorf("PRIORITIZE: failed to persist result: %w", err)
	}
	tracker.step("run complete")
	setState(models.RunDone, models.Progress{Current: tracker.total, Total: tracker.total, Message: "done"})

	logger.Info("run complete",
		"documents", len(docs),
		"skipped", extracted.Skipped,
		"entities", g.EntityCount(),
		"gaps", len(gaps),
		"questions", len(generated.Questions),
		"degraded", result.Degraded,
		"duration", result.Stats.Duration,
	)
	return result, nil
}

// categories lists the distinct gap types found, in registration order.
func categories(gaps []models.Gap) []models.GapType {
	present := make(map[models.GapType]bool, len(gaps))
	for _, gap := range gaps {
		present[gap.Type] = true
	}
	var out []models.GapType
	for _, t := range models.AllGapTypes {
		if present[t] {
			out = append(out, t)
		}
	}
	return out
}
