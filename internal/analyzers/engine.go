// Package analyzers runs the gap detection engine: eight independent
// analyzers over the assembled graph and raw extractions, each a concrete
// type behind one Analyzer interface, registered in a fixed order.
package analyzers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/graph"
	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/textmatch"
)

// Analyzer detects one category of knowledge gap. Implementations are pure
// functions of the graph and extractions; they must not mutate either.
type Analyzer interface {
	Name() models.GapType
	Analyze(g *graph.Graph, extractions []models.DocumentExtraction) ([]models.Gap, error)
}

// Engine runs all analyzers with per-analyzer failure isolation and
// deduplicates results by content hash.
type Engine struct {
	analyzers []Analyzer
	matcher   *textmatch.Matcher
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates an engine with the full analyzer set in fixed order.
func NewEngine(cfg config.AnalysisConfig, matcher *textmatch.Matcher) *Engine {
	e := &Engine{
		matcher: matcher,
		logger:  slog.Default().With("component", "gap_engine"),
		now:     time.Now,
	}
	e.analyzers = []Analyzer{
		&BusFactorAnalyzer{cfg: cfg},
		&DecisionArchaeologyAnalyzer{cfg: cfg, matcher: matcher},
		&ProcessCompletenessAnalyzer{cfg: cfg, matcher: matcher},
		&TribalKnowledgeAnalyzer{cfg: cfg},
		&DependencyRiskAnalyzer{cfg: cfg},
		&StalenessAnalyzer{cfg: cfg, now: func() time.Time { return e.now() }},
		&ContradictionAnalyzer{cfg: cfg},
		&OnboardingBarrierAnalyzer{cfg: cfg, matcher: matcher},
	}
	return e
}

// Run executes every analyzer. A failing analyzer contributes zero gaps and
// the run continues; gaps are deduplicated by content hash, keeping the
// higher severity on collision.
func (e *Engine) Run(g *graph.Graph, extractions []models.DocumentExtraction) []models.Gap {
	createdAt := e.now().UTC()

	var all []models.Gap
	seen := make(map[string]int) // content hash -> index in all

	for _, analyzer := range e.analyzers {
		gaps, err := e.runOne(analyzer, g, extractions)
		if err != nil {
			e.logger.Warn("analyzer failed, contributing zero gaps",
				"analyzer", analyzer.Name(),
				"error", err,
			)
			continue
		}

		for _, gap := range gaps {
			gap.ID = uuid.NewString()
			gap.Type = analyzer.Name()
			gap.CreatedAt = createdAt
			gap.ContentHash = contentHash(e.matcher, gap.Type, gap.RelatedEntities, gap.Description)

			if idx, dup := seen[gap.ContentHash]; dup {
				if gap.Severity > all[idx].Severity {
					all[idx].Severity = gap.Severity
				}
				continue
			}
			seen[gap.ContentHash] = len(all)
			all = append(all, gap)
		}

		e.logger.Debug("analyzer complete", "analyzer", analyzer.Name(), "gaps", len(gaps))
	}

	e.logger.Info("gap analysis complete", "gaps", len(all))
	return all
}

// runOne isolates a single analyzer: panics and errors are contained.
func (e *Engine) runOne(analyzer Analyzer, g *graph.Graph, extractions []models.DocumentExtraction) (gaps []models.Gap, err error) {
	defer func() {
		if r := recover(); r != nil {
			gaps = nil
			err = fmt.Errorf("analyzer %s panicked: %v", analyzer.Name(), r)
		}
	}()
	return analyzer.Analyze(g, extractions)
}
