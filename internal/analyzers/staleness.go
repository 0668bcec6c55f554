package analyzers

import (
	"fmt"
	"time"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/graph"
	"github.com/gapscan/gapscan/internal/models"
)

// StalenessAnalyzer detects entities whose supporting documents have all
// aged past the staleness window while the entity still participates in
// active relationships.
type StalenessAnalyzer struct {
	cfg config.AnalysisConfig
	now func() time.Time
}

func (a *StalenessAnalyzer) Name() models.GapType {
	return models.GapStaleness
}

func (a *StalenessAnalyzer) Analyze(g *graph.Graph, _ []models.DocumentExtraction) ([]models.Gap, error) {
	now := a.now()
	var gaps []models.Gap

	for _, entity := range g.Entities() {
		docs := g.MentionDocs(entity.ID)
		if len(docs) == 0 {
			continue
		}

		var newest time.Time
		for _, ts := range docs {
			if ts.After(newest) {
				newest = ts
			}
		}

		age := now.Sub(newest)
		if age <= a.cfg.StalenessWindow {
			continue
		}

		// Only stale entities that still matter: at least one relationship
		// in either direction.
		if len(g.RelationshipsFrom(entity.ID))+len(g.RelationshipsTo(entity.ID)) == 0 {
			continue
		}

		base := severity(a.cfg, stalenessSignal(age, a.cfg.StalenessWindow), entity.MentionCount)
		gaps = append(gaps, models.Gap{
			Severity: base,
			Description: fmt.Sprintf(
				"every document mentioning %s is older than the staleness window, yet it still has active relationships",
				entity.CanonicalName,
			),
			Evidence:        docIDs(docs),
			RelatedEntities: []string{entity.CanonicalName},
		})
	}

	return gaps, nil
}
