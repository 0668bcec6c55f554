package analyzers

import (
	"fmt"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/graph"
	"github.com/gapscan/gapscan/internal/models"
)

// BusFactorAnalyzer detects entities whose ownership or decision history
// concentrates on a single person: an owns/decided fan-in of exactly one to
// an entity that the corpus mentions repeatedly.
type BusFactorAnalyzer struct {
	cfg config.AnalysisConfig
}

func (a *BusFactorAnalyzer) Name() models.GapType {
	return models.GapBusFactor
}

func (a *BusFactorAnalyzer) Analyze(g *graph.Graph, _ []models.DocumentExtraction) ([]models.Gap, error) {
	var gaps []models.Gap

	for _, entity := range g.Entities() {
		if entity.Type == models.EntityPerson {
			continue
		}
		if entity.MentionCount < a.cfg.BusFactorMinMentions {
			continue
		}

		incoming := g.RelationshipsTo(entity.ID, models.RelOwns, models.RelDecided)
		owners := make(map[string]bool)
		var evidence [][]string
		for _, r := range incoming {
			owners[r.SourceEntityID] = true
			evidence = append(evidence, r.Evidence)
		}
		if len(owners) != 1 {
			continue
		}

		var ownerID string
		for id := range owners {
			ownerID = id
		}
		owner := g.Entity(ownerID)

		gaps = append(gaps, models.Gap{
			Severity: severity(a.cfg, 0.8, entity.MentionCount),
			Description: fmt.Sprintf(
				"%s is the only person who owns or has decided for %s; losing them loses this knowledge",
				owner.CanonicalName, entity.CanonicalName,
			),
			Evidence:        unionEvidence(evidence...),
			RelatedEntities: []string{owner.CanonicalName, entity.CanonicalName},
		})
	}

	return gaps, nil
}
