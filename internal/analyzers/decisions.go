package analyzers

import (
	"fmt"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/graph"
	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/textmatch"
)

// DecisionArchaeologyAnalyzer detects decisions recorded without any
// rationale: no rationale signal in any document and no rationale text in
// the decision records themselves.
type DecisionArchaeologyAnalyzer struct {
	cfg     config.AnalysisConfig
	matcher *textmatch.Matcher
}

func (a *DecisionArchaeologyAnalyzer) Name() models.GapType {
	return models.GapDecisionArchaeology
}

func (a *DecisionArchaeologyAnalyzer) Analyze(g *graph.Graph, extractions []models.DocumentExtraction) ([]models.Gap, error) {
	// Collect every normalized subject that has a rationale attached.
	explained := make(map[string]bool)
	for _, ext := range extractions {
		for _, signal := range ext.Signals {
			if signal.Kind == models.SignalRationale && signal.Subject != "" {
				explained[a.matcher.NormalizeName(signal.Subject)] = true
			}
		}
		for _, decision := range ext.Decisions {
			if decision.Rationale != "" {
				explained[a.matcher.NormalizeName(decision.Title)] = true
			}
		}
	}

	var gaps []models.Gap
	for _, entity := range g.EntitiesOfType(models.EntityDecision) {
		if a.hasRationale(entity, explained) {
			continue
		}

		evidence := docIDs(g.MentionDocs(entity.ID))
		gaps = append(gaps, models.Gap{
			Severity: severity(a.cfg, 0.7, entity.MentionCount),
			Description: fmt.Sprintf(
				"the decision %q is recorded without any rationale; future readers cannot tell why it was made",
				entity.CanonicalName,
			),
			Evidence:        evidence,
			RelatedEntities: []string{entity.CanonicalName},
		})
	}

	return gaps, nil
}

func (a *DecisionArchaeologyAnalyzer) hasRationale(entity *models.Entity, explained map[string]bool) bool {
	if explained[a.matcher.NormalizeName(entity.CanonicalName)] {
		return true
	}
	for _, alias := range entity.Aliases {
		if explained[alias] {
			return true
		}
	}
	return false
}
