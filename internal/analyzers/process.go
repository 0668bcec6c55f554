package analyzers

import (
	"fmt"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/graph"
	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/textmatch"
)

// ProcessCompletenessAnalyzer detects underdocumented processes: fewer
// documented steps than the configured minimum, or steps without an owner.
type ProcessCompletenessAnalyzer struct {
	cfg     config.AnalysisConfig
	matcher *textmatch.Matcher
}

func (a *ProcessCompletenessAnalyzer) Name() models.GapType {
	return models.GapProcessCompleteness
}

type processAgg struct {
	steps        map[string]bool
	unownedSteps int
	evidence     []string
}

func (a *ProcessCompletenessAnalyzer) Analyze(g *graph.Graph, extractions []models.DocumentExtraction) ([]models.Gap, error) {
	// Group process records across documents onto their resolved entity.
	byName := make(map[string]*processAgg)
	for _, ext := range extractions {
		for _, p := range ext.Processes {
			if p.Name == "" {
				continue
			}
			key := a.matcher.NormalizeName(p.Name)
			agg := byName[key]
			if agg == nil {
				agg = &processAgg{steps: make(map[string]bool)}
				byName[key] = agg
			}
			for _, step := range p.Steps {
				agg.steps[a.matcher.NormalizeText(step.Name)] = true
				if step.Owner == "" {
					agg.unownedSteps++
				}
			}
			agg.evidence = append(agg.evidence, ext.DocID)
		}
	}

	var gaps []models.Gap
	for _, entity := range g.EntitiesOfType(models.EntityProcess) {
		agg := a.lookup(byName, entity)
		if agg == nil {
			continue
		}

		stepCount := len(agg.steps)
		switch {
		case stepCount < a.cfg.MinProcessSteps:
			missing := a.cfg.MinProcessSteps - stepCount
			gaps = append(gaps, models.Gap{
				Severity: severity(a.cfg, float64(missing)/float64(a.cfg.MinProcessSteps), entity.MentionCount),
				Description: fmt.Sprintf(
					"the %s process documents only %d steps; the documentation appears incomplete",
					entity.CanonicalName, stepCount,
				),
				Evidence:        unionEvidence(agg.evidence),
				RelatedEntities: []string{entity.CanonicalName},
			})
		case agg.unownedSteps > 0:
			gaps = append(gaps, models.Gap{
				Severity: severity(a.cfg, float64(agg.unownedSteps)/float64(stepCount), entity.MentionCount),
				Description: fmt.Sprintf(
					"the %s process has steps with no documented owner",
					entity.CanonicalName,
				),
				Evidence:        unionEvidence(agg.evidence),
				RelatedEntities: []string{entity.CanonicalName},
			})
		}
	}

	return gaps, nil
}

func (a *ProcessCompletenessAnalyzer) lookup(byName map[string]*processAgg, entity *models.Entity) *processAgg {
	if agg, ok := byName[a.matcher.NormalizeName(entity.CanonicalName)]; ok {
		return agg
	}
	for _, alias := range entity.Aliases {
		if agg, ok := byName[alias]; ok {
			return agg
		}
	}
	return nil
}
