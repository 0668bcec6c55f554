package analyzers

import (
	"fmt"
	"sort"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/graph"
	"github.com/gapscan/gapscan/internal/models"
)

// TribalKnowledgeAnalyzer detects knowledge confined to one author: an
// entity mentioned across multiple documents where a single author wrote
// more than the configured concentration of them.
type TribalKnowledgeAnalyzer struct {
	cfg config.AnalysisConfig
}

func (a *TribalKnowledgeAnalyzer) Name() models.GapType {
	return models.GapTribalKnowledge
}

func (a *TribalKnowledgeAnalyzer) Analyze(g *graph.Graph, _ []models.DocumentExtraction) ([]models.Gap, error) {
	var gaps []models.Gap

	for _, entity := range g.Entities() {
		if entity.Type == models.EntityPerson {
			continue
		}

		docs := g.MentionDocs(entity.ID)
		if len(docs) < 2 {
			continue
		}

		counts := make(map[string]int)
		total := 0
		for docID := range docs {
			author := g.DocAuthor(docID)
			if author == "" {
				continue
			}
			counts[author]++
			total++
		}
		if total < 2 {
			continue
		}

		topAuthor, topCount := dominantAuthor(counts)
		share := float64(topCount) / float64(total)
		if share < a.cfg.ConcentrationThreshold {
			continue
		}

		gaps = append(gaps, models.Gap{
			Severity: severity(a.cfg, share, entity.MentionCount),
			Description: fmt.Sprintf(
				"nearly everything written about %s comes from %s; this knowledge lives with one person",
				entity.CanonicalName, topAuthor,
			),
			Evidence:        docIDs(docs),
			RelatedEntities: []string{entity.CanonicalName, topAuthor},
		})
	}

	return gaps, nil
}

// dominantAuthor returns the author with the most documents; ties break
// alphabetically for determinism.
func dominantAuthor(counts map[string]int) (string, int) {
	authors := make([]string, 0, len(counts))
	for author := range counts {
		authors = append(authors, author)
	}
	sort.Strings(authors)

	best, bestCount := "", 0
	for _, author := range authors {
		if counts[author] > bestCount {
			best = author
			bestCount = counts[author]
		}
	}
	return best, bestCount
}
