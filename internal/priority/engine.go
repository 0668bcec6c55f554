// Package priority ranks generated questions by a weighted blend of risk,
// criticality, answerability, and learned interest.
package priority

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/models"
)

// criticalKeywords mark entities whose failure hits customers or revenue.
// A question touching any of them scores higher criticality.
var criticalKeywords = []string{
	"customer", "revenue", "billing", "payment", "invoice",
	"production", "deploy", "release", "outage", "incident",
	"security", "auth", "compliance", "audit",
}

// Engine scores and ranks questions. Ranking is recomputed fresh each run;
// nothing persists across runs except the interest weights.
type Engine struct {
	cfg    config.PriorityConfig
	bounds config.FeedbackConfig
	logger *slog.Logger
}

func NewEngine(cfg config.PriorityConfig, bounds config.FeedbackConfig) *Engine {
	return &Engine{
		cfg:    cfg,
		bounds: bounds,
		logger: slog.Default().With("component", "priority"),
	}
}

// Rank scores every question against its source gap and the tenant's
// interest weights and returns a stable total order. Questions whose source
// gap is missing are dropped.
func (e *Engine) Rank(questions []models.GeneratedQuestion, gaps []models.Gap, interest map[models.GapType]float64) []models.PrioritizedQuestion {
	gapsByID := make(map[string]models.Gap, len(gaps))
	for _, gap := range gaps {
		gapsByID[gap.ID] = gap
	}

	type scored struct {
		models.PrioritizedQuestion
		severity  float64
		createdAt int64
	}

	var ranked []scored
	for _, q := range questions {
		gap, ok := gapsByID[q.GapID]
		if !ok {
			e.logger.Warn("question references unknown gap, dropped", "question", q.ID, "gap", q.GapID)
			continue
		}

		breakdown := models.ScoreBreakdown{
			Risk:          gap.Severity,
			Criticality:   criticality(gap),
			Answerability: answerability(gap),
			Interest:      e.normalizeInterest(interest[gap.Type]),
		}
		score := e.cfg.RiskWeight*breakdown.Risk +
			e.cfg.CriticalityWeight*breakdown.Criticality +
			e.cfg.AnswerabilityWeight*breakdown.Answerability +
			e.cfg.InterestWeight*breakdown.Interest

		ranked = append(ranked, scored{
			PrioritizedQuestion: models.PrioritizedQuestion{
				QuestionID:     q.ID,
				Score:          score,
				ScoreBreakdown: breakdown,
			},
			severity:  gap.Severity,
			createdAt: gap.CreatedAt.UnixNano(),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.severity != b.severity {
			return a.severity > b.severity
		}
		if a.createdAt != b.createdAt {
			return a.createdAt > b.createdAt
		}
		return a.QuestionID < b.QuestionID
	})

	out := make([]models.PrioritizedQuestion, len(ranked))
	for i, r := range ranked {
		r.Rank = i + 1
		out[i] = r.PrioritizedQuestion
	}
	return out
}

// normalizeInterest maps the feedback weight range onto [0, 1].
func (e *Engine) normalizeInterest(weight float64) float64 {
	if weight == 0 {
		weight = 1.0
	}
	span := e.bounds.MaxWeight - e.bounds.MinWeight
	if span <= 0 {
		return 0.5
	}
	norm := (weight - e.bounds.MinWeight) / span
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

// criticality estimates business impact from keyword heuristics over the
// gap's entities and description.
func criticality(gap models.Gap) float64 {
	text := strings.ToLower(gap.Description + " " + strings.Join(gap.RelatedEntities, " "))

	score := 0.3
	for _, kw := range criticalKeywords {
		if strings.Contains(text, kw) {
			score += 0.2
		}
	}
	if score > 1 {
		score = 1
	}
	return score
}

// answerability estimates how feasible an answer is: more related entities
// and evidence documents mean more people to ask and more context to give
// them. Saturates at six combined sources.
func answerability(gap models.Gap) float64 {
	sources := float64(len(gap.RelatedEntities) + len(gap.Evidence))
	a := sources / 6.0
	if a > 1 {
		a = 1
	}
	return a
}
