package analyzers

import (
	"fmt"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/graph"
	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/textmatch"
)

// OnboardingBarrierAnalyzer detects jargon without a definition: term
// entities used frequently across documents that no document ever defines.
type OnboardingBarrierAnalyzer struct {
	cfg     config.AnalysisConfig
	matcher *textmatch.Matcher
}

func (a *OnboardingBarrierAnalyzer) Name() models.GapType {
	return models.GapOnboardingBarrier
}

func (a *OnboardingBarrierAnalyzer) Analyze(g *graph.Graph, extractions []models.DocumentExtraction) ([]models.Gap, error) {
	defined := make(map[string]bool)
	for _, ext := range extractions {
		for _, s := range ext.Signals {
			if s.Kind == models.SignalDefinition && s.Subject != "" {
				defined[a.matcher.NormalizeName(s.Subject)] = true
			}
		}
	}

	var gaps []models.Gap
	for _, entity := range g.EntitiesOfType(models.EntityTerm) {
		if entity.MentionCount < a.cfg.TermFrequencyThreshold {
			continue
		}
		if a.hasDefinition(defined, entity) {
			continue
		}

		// Frequency beyond the threshold raises the signal: the more a term
		// circulates undefined, the harder onboarding gets.
		extra := entity.MentionCount - a.cfg.TermFrequencyThreshold
		signal := 0.5 + 0.05*float64(extra)

		gaps = append(gaps, models.Gap{
			Severity: severity(a.cfg, signal, entity.MentionCount),
			Description: fmt.Sprintf(
				"the term %q appears in %d documents but is never defined anywhere",
				entity.CanonicalName, len(g.MentionDocs(entity.ID)),
			),
			Evidence:        docIDs(g.MentionDocs(entity.ID)),
			RelatedEntities: []string{entity.CanonicalName},
		})
	}

	return gaps, nil
}

func (a *OnboardingBarrierAnalyzer) hasDefinition(defined map[string]bool, entity *models.Entity) bool {
	if defined[a.matcher.NormalizeName(entity.CanonicalName)] {
		return true
	}
	for _, alias := range entity.Aliases {
		if defined[alias] {
			return true
		}
	}
	return false
}
