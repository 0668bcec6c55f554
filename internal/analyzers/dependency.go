package analyzers

import (
	"fmt"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/graph"
	"github.com/gapscan/gapscan/internal/models"
)

// DependencyRiskAnalyzer detects depends_on edges to entities with no
// internal owner: something the organization relies on that nobody is
// recorded as owning.
type DependencyRiskAnalyzer struct {
	cfg config.AnalysisConfig
}

func (a *DependencyRiskAnalyzer) Name() models.GapType {
	return models.GapDependencyRisk
}

func (a *DependencyRiskAnalyzer) Analyze(g *graph.Graph, _ []models.DocumentExtraction) ([]models.Gap, error) {
	var gaps []models.Gap

	for _, r := range g.Relationships() {
		if r.Type != models.RelDependsOn {
			continue
		}

		target := g.Entity(r.TargetEntityID)
		if len(g.RelationshipsTo(target.ID, models.RelOwns)) > 0 {
			continue
		}

		source := g.Entity(r.SourceEntityID)
		// Fan-in raises the stakes: more dependents on the unowned entity
		// means a wider blast radius.
		fanIn := len(g.RelationshipsTo(target.ID, models.RelDependsOn))
		signal := 0.5 + 0.1*float64(fanIn)

		gaps = append(gaps, models.Gap{
			Severity: severity(a.cfg, signal, target.MentionCount),
			Description: fmt.Sprintf(
				"%s depends on %s, but no owner for %s appears anywhere in the documents",
				source.CanonicalName, target.CanonicalName, target.CanonicalName,
			),
			Evidence:        unionEvidence(r.Evidence),
			RelatedEntities: []string{source.CanonicalName, target.CanonicalName},
		})
	}

	return gaps, nil
}
