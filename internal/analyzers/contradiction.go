package analyzers

import (
	"fmt"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/graph"
	"github.com/gapscan/gapscan/internal/models"
)

// ContradictionAnalyzer detects entity pairs where the documents both assert
// a working relationship and assert a contradiction about it: conflicting
// statements that the reader cannot reconcile without asking someone.
type ContradictionAnalyzer struct {
	cfg config.AnalysisConfig
}

func (a *ContradictionAnalyzer) Name() models.GapType {
	return models.GapContradiction
}

func (a *ContradictionAnalyzer) Analyze(g *graph.Graph, _ []models.DocumentExtraction) ([]models.Gap, error) {
	var gaps []models.Gap
	seenPairs := make(map[string]bool)

	for _, r := range g.Relationships() {
		if r.Type != models.RelContradicts {
			continue
		}

		pair := pairKey(r.SourceEntityID, r.TargetEntityID)
		if seenPairs[pair] {
			continue
		}
		seenPairs[pair] = true

		// One gap per unordered pair, covering the contradiction edge and
		// every positive edge it conflicts with.
		var positive [][]string
		for _, other := range g.RelationshipsBetween(r.SourceEntityID, r.TargetEntityID) {
			if other.Type == models.RelContradicts {
				continue
			}
			positive = append(positive, other.Evidence)
		}
		if len(positive) == 0 {
			continue
		}

		source := g.Entity(r.SourceEntityID)
		target := g.Entity(r.TargetEntityID)
		evidence := unionEvidence(append(positive, r.Evidence)...)

		gaps = append(gaps, models.Gap{
			Severity: severity(a.cfg, 0.6+0.1*float64(len(positive)), maxInt(source.MentionCount, target.MentionCount)),
			Description: fmt.Sprintf(
				"documents make conflicting statements about %s and %s",
				source.CanonicalName, target.CanonicalName,
			),
			Evidence:        evidence,
			RelatedEntities: []string{source.CanonicalName, target.CanonicalName},
		})
	}

	return gaps, nil
}

func pairKey(a, b string) string {
	if a < b {
		return a + "\x1f" + b
	}
	return b + "\x1f" + a
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
