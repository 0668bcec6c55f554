// Package questions turns detected gaps into natural-language questions.
// Templates guarantee a valid question for every gap type; the LLM pass is a
// fluency upgrade the pipeline can live without.
package questions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/gapscan/gapscan/internal/llm"
	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/textmatch"
)

// Generator produces at most one question per gap.
type Generator struct {
	client    *llm.Client
	matcher   *textmatch.Matcher
	threshold float64
	logger    *slog.Logger
}

// NewGenerator creates a generator. client may be disabled; the generator
// then runs template-only.
func NewGenerator(client *llm.Client, matcher *textmatch.Matcher, dedupThreshold float64) *Generator {
	return &Generator{
		client:    client,
		matcher:   matcher,
		threshold: dedupThreshold,
		logger:    slog.Default().With("component", "question_generator"),
	}
}

// Result carries the generated questions and whether any LLM rephrasing
// failed and fell back to templates.
type Result struct {
	Questions []models.GeneratedQuestion
	Degraded  bool
}

// Generate converts gaps into deduplicated questions. Gaps are processed in
// descending severity so that when two gaps produce near-identical questions
// the surviving question stays attached to the higher-severity gap.
func (g *Generator) Generate(ctx context.Context, gaps []models.Gap) Result {
	ordered := make([]models.Gap, len(gaps))
	copy(ordered, gaps)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Severity != ordered[j].Severity {
			return ordered[i].Severity > ordered[j].Severity
		}
		return ordered[i].ID < ordered[j].ID
	})

	var result Result
	var normalized []string

	for _, gap := range ordered {
		if len(gap.RelatedEntities) == 0 || len(gap.Evidence) == 0 {
			g.logger.Debug("gap lacks grounding, no question generated", "gap", gap.ID, "type", gap.Type)
			continue
		}

		text, degraded := g.phrase(ctx, gap)
		if degraded {
			result.Degraded = true
		}

		norm := g.matcher.NormalizeText(text)
		if g.isDuplicate(normalized, norm) {
			continue
		}
		normalized = append(normalized, norm)

		result.Questions = append(result.Questions, models.GeneratedQuestion{
			ID:             uuid.NewString(),
			GapID:          gap.ID,
			Text:           text,
			TargetEntities: append([]string(nil), gap.RelatedEntities...),
		})
	}

	g.logger.Info("question generation complete",
		"gaps", len(gaps),
		"questions", len(result.Questions),
		"degraded", result.Degraded,
	)
	return result
}

// phrase produces the question text, preferring an LLM fluency pass over the
// raw template. A failed or disabled LLM falls back to the template and
// marks the batch degraded only on actual failure.
func (g *Generator) phrase(ctx context.Context, gap models.Gap) (string, bool) {
	template := templateFor(gap)
	if !g.client.IsEnabled() {
		return template, false
	}

	system := "You rephrase internal knowledge questions so a colleague would find them natural and specific. Keep every named entity verbatim. Reply with the question only."
	user := fmt.Sprintf("Question: %s\nContext: %s", template, gap.Description)
	text, err := g.client.Complete(ctx, system, user)
	if err != nil {
		g.logger.Warn("llm rephrase failed, using template", "gap", gap.ID, "error", err)
		return template, true
	}
	text = strings.TrimSpace(text)
	if text == "" || !strings.HasSuffix(text, "?") {
		return template, false
	}
	return text, false
}

func (g *Generator) isDuplicate(normalized []string, candidate string) bool {
	for _, existing := range normalized {
		if g.matcher.Ratio(existing, candidate) >= g.threshold {
			return true
		}
	}
	return false
}

// templateFor builds the fallback question for a gap. Every gap type has a
// template; an unknown type gets a generic one rather than failing.
func templateFor(gap models.Gap) string {
	e := gap.RelatedEntities
	switch gap.Type {
	case models.GapBusFactor:
		if len(e) >= 2 {
			return fmt.Sprintf("Who besides %s knows how %s works, and is that knowledge written down anywhere?", e[0], e[1])
		}
	case models.GapDecisionArchaeology:
		return fmt.Sprintf("What was the reasoning behind the decision %q?", e[0])
	case models.GapProcessCompleteness:
		return fmt.Sprintf("Can someone document the full steps of the %s process, including who owns each step?", e[0])
	case models.GapTribalKnowledge:
		if len(e) >= 2 {
			return fmt.Sprintf("Could %s walk someone else through %s so the knowledge is not held by one person?", e[1], e[0])
		}
	case models.GapDependencyRisk:
		if len(e) >= 2 {
			return fmt.Sprintf("Who is responsible for %s, which %s depends on?", e[1], e[0])
		}
	case models.GapStaleness:
		return fmt.Sprintf("Is the documentation about %s still accurate, and who can update it?", e[0])
	case models.GapContradiction:
		if len(e) >= 2 {
			return fmt.Sprintf("The documents disagree about %s and %s; which statement is correct?", e[0], e[1])
		}
	case models.GapOnboardingBarrier:
		return fmt.Sprintf("What does %q mean? It is used frequently but never defined.", e[0])
	}
	return fmt.Sprintf("Can someone clarify what is known about %s?", strings.Join(e, " and "))
}
