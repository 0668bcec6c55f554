package analyzers

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/graph"
	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/textmatch"
)

func testAnalysisConfig() config.AnalysisConfig {
	return config.Default().Analysis
}

func newTestEngine() *Engine {
	return NewEngine(testAnalysisConfig(), textmatch.NewMatcher())
}

func day(n int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func assemble(t *testing.T, exts []models.DocumentExtraction) *graph.Graph {
	t.Helper()
	g, err := graph.NewAssembler(textmatch.NewMatcher(), 0.88).Assemble(exts)
	require.NoError(t, err)
	return g
}

func gapsOfType(gaps []models.Gap, gapType models.GapType) []models.Gap {
	var out []models.Gap
	for _, gap := range gaps {
		if gap.Type == gapType {
			out = append(out, gap)
		}
	}
	return out
}

func TestEngine_BusFactorScenario(t *testing.T) {
	// Three documents assert Alice owns Deploy Pipeline; two more mention the
	// pipeline in a different case with no other owner.
	var exts []models.DocumentExtraction
	for i := 1; i <= 3; i++ {
		exts = append(exts, models.DocumentExtraction{
			DocID:        fmt.Sprintf("owns-%d", i),
			DocTimestamp: day(i),
			Signals: []models.Signal{
				{Kind: models.SignalOwnership, Subject: "Alice", Object: "Deploy Pipeline"},
			},
		})
	}
	for i := 1; i <= 2; i++ {
		exts = append(exts, models.DocumentExtraction{
			DocID:        fmt.Sprintf("mention-%d", i),
			DocTimestamp: day(3 + i),
			Entities: []models.ExtractedEntity{
				{Name: "deploy pipeline", Type: models.EntitySystem, Confidence: 0.8},
			},
		})
	}

	gaps := newTestEngine().Run(assemble(t, exts), exts)

	busFactor := gapsOfType(gaps, models.GapBusFactor)
	require.Len(t, busFactor, 1, "exactly one bus factor gap expected")
	assert.Equal(t, []string{"Alice", "Deploy Pipeline"}, busFactor[0].RelatedEntities)
	assert.Greater(t, busFactor[0].Severity, 0.0)
}

func TestEngine_DecisionArchaeologyScenario(t *testing.T) {
	// A decision mentioned across five documents, never with a rationale.
	var exts []models.DocumentExtraction
	for i := 1; i <= 5; i++ {
		exts = append(exts, models.DocumentExtraction{
			DocID:        fmt.Sprintf("doc-%d", i),
			DocTimestamp: day(i),
			Decisions: []models.ExtractedDecision{
				{Title: "Switched to GraphQL"},
			},
		})
	}

	gaps := newTestEngine().Run(assemble(t, exts), exts)

	archaeology := gapsOfType(gaps, models.GapDecisionArchaeology)
	require.Len(t, archaeology, 1)
	assert.Equal(t, []string{"Switched to GraphQL"}, archaeology[0].RelatedEntities)
}

func TestEngine_DecisionWithRationaleProducesNoGap(t *testing.T) {
	exts := []models.DocumentExtraction{
		{
			DocID:        "doc-1",
			DocTimestamp: day(1),
			Decisions: []models.ExtractedDecision{
				{Title: "Switched to GraphQL", Rationale: "REST fan-out was too chatty"},
			},
		},
	}

	gaps := newTestEngine().Run(assemble(t, exts), exts)
	assert.Empty(t, gapsOfType(gaps, models.GapDecisionArchaeology))
}

func TestEngine_ContradictionScenario(t *testing.T) {
	exts := []models.DocumentExtraction{
		{
			DocID:        "doc-1",
			DocTimestamp: day(1),
			Dependencies: []models.ExtractedDependency{
				{Source: "ServiceX", Target: "ServiceY"},
			},
		},
		{
			DocID:        "doc-2",
			DocTimestamp: day(2),
			Signals: []models.Signal{
				{Kind: models.SignalContradiction, Subject: "ServiceX", Object: "ServiceY"},
			},
		},
	}

	gaps := newTestEngine().Run(assemble(t, exts), exts)

	contradictions := gapsOfType(gaps, models.GapContradiction)
	require.Len(t, contradictions, 1, "one gap per contradicted pair")
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, contradictions[0].Evidence,
		"evidence must cover both the claim and the contradiction")
}

func TestEngine_HashStability(t *testing.T) {
	exts := []models.DocumentExtraction{
		{
			DocID:        "doc-1",
			DocTimestamp: day(1),
			Signals: []models.Signal{
				{Kind: models.SignalOwnership, Subject: "Alice", Object: "Billing"},
			},
			Entities: []models.ExtractedEntity{
				{Name: "Billing", Type: models.EntitySystem, Confidence: 0.9},
			},
		},
		{
			DocID:        "doc-2",
			DocTimestamp: day(2),
			Decisions: []models.ExtractedDecision{
				{Title: "Adopt Kubernetes"},
			},
		},
	}
	g := assemble(t, exts)

	engine := newTestEngine()
	first := hashes(engine.Run(g, exts))
	second := hashes(engine.Run(g, exts))

	require.NotEmpty(t, first)
	assert.Equal(t, first, second, "unchanged graph must yield identical content hashes")
}

func TestEngine_DedupKeepsHigherSeverity(t *testing.T) {
	e := &Engine{
		matcher: textmatch.NewMatcher(),
		logger:  newTestEngine().logger,
		now:     time.Now,
	}
	e.analyzers = []Analyzer{
		stubAnalyzer{gapType: models.GapStaleness, gaps: []models.Gap{
			{Severity: 0.3, Description: "same finding", RelatedEntities: []string{"Billing"}},
		}},
		stubAnalyzer{gapType: models.GapStaleness, gaps: []models.Gap{
			{Severity: 0.9, Description: "Same Finding", RelatedEntities: []string{"billing"}},
		}},
	}

	gaps := e.Run(graph.NewGraph(), nil)
	require.Len(t, gaps, 1)
	assert.Equal(t, 0.9, gaps[0].Severity)
}

func TestEngine_PanickingAnalyzerIsIsolated(t *testing.T) {
	e := &Engine{
		matcher: textmatch.NewMatcher(),
		logger:  newTestEngine().logger,
		now:     time.Now,
	}
	e.analyzers = []Analyzer{
		panicAnalyzer{},
		stubAnalyzer{gapType: models.GapStaleness, gaps: []models.Gap{
			{Severity: 0.5, Description: "survives", RelatedEntities: []string{"Billing"}},
		}},
	}

	gaps := e.Run(graph.NewGraph(), nil)
	require.Len(t, gaps, 1, "a panicking analyzer contributes zero gaps, the run continues")
	assert.Equal(t, "survives", gaps[0].Description)
}

func TestStalenessAnalyzer(t *testing.T) {
	exts := []models.DocumentExtraction{
		{
			DocID:        "old-doc",
			DocTimestamp: day(0),
			Entities: []models.ExtractedEntity{
				{Name: "Legacy Exporter", Type: models.EntitySystem, Confidence: 0.9},
			},
			Signals: []models.Signal{
				{Kind: models.SignalOwnership, Subject: "Alice", Object: "Legacy Exporter"},
			},
		},
	}
	g := assemble(t, exts)

	engine := newTestEngine()
	engine.now = func() time.Time { return day(0).Add(365 * 24 * time.Hour) }

	stale := gapsOfType(engine.Run(g, exts), models.GapStaleness)
	require.NotEmpty(t, stale)

	found := false
	for _, gap := range stale {
		if len(gap.RelatedEntities) == 1 && gap.RelatedEntities[0] == "Legacy Exporter" {
			found = true
		}
	}
	assert.True(t, found, "entity past the staleness window with live relationships must be flagged")

	// Within the window nothing is stale.
	engine.now = func() time.Time { return day(30) }
	assert.Empty(t, gapsOfType(engine.Run(g, exts), models.GapStaleness))
}

func TestOnboardingBarrierAnalyzer(t *testing.T) {
	var exts []models.DocumentExtraction
	for i := 1; i <= 3; i++ {
		exts = append(exts, models.DocumentExtraction{
			DocID:        fmt.Sprintf("doc-%d", i),
			DocTimestamp: day(i),
			Entities: []models.ExtractedEntity{
				{Name: "CLQS", Type: models.EntityTerm, Confidence: 0.9},
			},
		})
	}

	engine := newTestEngine()
	engine.now = func() time.Time { return day(10) }

	gaps := gapsOfType(engine.Run(assemble(t, exts), exts), models.GapOnboardingBarrier)
	require.Len(t, gaps, 1, "undefined frequent term must be flagged")
	assert.Equal(t, []string{"CLQS"}, gaps[0].RelatedEntities)

	// A definition signal anywhere silences the gap.
	exts[2].Signals = []models.Signal{
		{Kind: models.SignalDefinition, Subject: "CLQS", Detail: "code lineage quality score"},
	}
	gaps = gapsOfType(engine.Run(assemble(t, exts), exts), models.GapOnboardingBarrier)
	assert.Empty(t, gaps)
}

func TestTribalKnowledgeAnalyzer(t *testing.T) {
	var exts []models.DocumentExtraction
	for i := 1; i <= 4; i++ {
		exts = append(exts, models.DocumentExtraction{
			DocID:        fmt.Sprintf("doc-%d", i),
			Author:       "alice",
			DocTimestamp: day(i),
			Entities: []models.ExtractedEntity{
				{Name: "Payments Gateway", Type: models.EntitySystem, Confidence: 0.9},
			},
		})
	}

	engine := newTestEngine()
	engine.now = func() time.Time { return day(10) }

	tribal := gapsOfType(engine.Run(assemble(t, exts), exts), models.GapTribalKnowledge)
	require.Len(t, tribal, 1)
	assert.Contains(t, tribal[0].RelatedEntities, "Payments Gateway")
	assert.Contains(t, tribal[0].RelatedEntities, "alice")
}

func TestDependencyRiskAnalyzer(t *testing.T) {
	exts := []models.DocumentExtraction{
		{
			DocID:        "doc-1",
			DocTimestamp: day(1),
			Dependencies: []models.ExtractedDependency{
				{Source: "Checkout", Target: "Fraud Scorer"},
			},
		},
		{
			DocID:        "doc-2",
			DocTimestamp: day(2),
			Dependencies: []models.ExtractedDependency{
				{Source: "Checkout", Target: "Owned Service"},
			},
			Signals: []models.Signal{
				{Kind: models.SignalOwnership, Subject: "Bob", Object: "Owned Service"},
			},
		},
	}

	engine := newTestEngine()
	engine.now = func() time.Time { return day(10) }

	risks := gapsOfType(engine.Run(assemble(t, exts), exts), models.GapDependencyRisk)
	require.Len(t, risks, 1, "only the unowned dependency is a risk")
	assert.Equal(t, []string{"Checkout", "Fraud Scorer"}, risks[0].RelatedEntities)
}

func hashes(gaps []models.Gap) []string {
	out := make([]string, 0, len(gaps))
	for _, gap := range gaps {
		out = append(out, gap.ContentHash)
	}
	sort.Strings(out)
	return out
}

type stubAnalyzer struct {
	gapType models.GapType
	gaps    []models.Gap
}

func (s stubAnalyzer) Name() models.GapType { return s.gapType }
func (s stubAnalyzer) Analyze(*graph.Graph, []models.DocumentExtraction) ([]models.Gap, error) {
	return s.gaps, nil
}

type panicAnalyzer struct{}

func (panicAnalyzer) Name() models.GapType { return models.GapContradiction }
func (panicAnalyzer) Analyze(*graph.Graph, []models.DocumentExtraction) ([]models.Gap, error) {
	panic("boom")
}
