// Package feedback turns the append-only feedback event log into per-tenant,
// per-gap-type interest weights. Weights are never stored; they are replayed
// from the event history on demand so they stay auditable.
package feedback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/storage"
)

// DefaultWeight is the interest weight for a gap type with no feedback yet.
const DefaultWeight = 1.0

// Engine computes interest weights by replaying feedback history.
type Engine struct {
	store  storage.Store
	cfg    config.FeedbackConfig
	logger *slog.Logger
}

func NewEngine(store storage.Store, cfg config.FeedbackConfig) *Engine {
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: slog.Default().With("component", "feedback"),
	}
}

// Record validates and appends one feedback event.
func (e *Engine) Record(ctx context.Context, event models.FeedbackEvent) error {
	switch event.Type {
	case models.FeedbackAnswered, models.FeedbackSkipped, models.FeedbackDismissed:
	default:
		return fmt.Errorf("unknown feedback type %q", event.Type)
	}
	if event.TenantID == "" || event.QuestionID == "" {
		return fmt.Errorf("feedback event missing tenant or question id")
	}

	if err := e.store.AppendFeedback(ctx, event); err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	e.logger.Info("feedback recorded",
		"tenant", event.TenantID,
		"question", event.QuestionID,
		"type", event.Type,
	)
	return nil
}

// Weight replays the event history for (tenant, gap type) and returns the
// resulting interest weight.
func (e *Engine) Weight(ctx context.Context, tenantID string, gapType models.GapType) (float64, error) {
	history, err := e.store.FeedbackHistory(ctx, tenantID, gapType)
	if err != nil {
		return 0, fmt.Errorf("failed to load feedback history: %w", err)
	}
	return Replay(e.cfg, history), nil
}

// WeightTable computes the weight for every gap type in one pass.
func (e *Engine) WeightTable(ctx context.Context, tenantID string) (map[models.GapType]float64, error) {
	table := make(map[models.GapType]float64, len(models.AllGapTypes))
	for _, gapType := range models.AllGapTypes {
		w, err := e.Weight(ctx, tenantID, gapType)
		if err != nil {
			return nil, err
		}
		table[gapType] = w
	}
	return table, nil
}

// Replay folds an ordered event history into a weight. The result is a
// deterministic function of the event order alone: answered multiplies by
// the answered factor, skipped and dismissed by theirs, clamped after every
// step.
func Replay(cfg config.FeedbackConfig, history []models.FeedbackEvent) float64 {
	weight := DefaultWeight
	for _, event := range history {
		switch event.Type {
		case models.FeedbackAnswered:
			weight *= cfg.AnsweredFactor
		case models.FeedbackSkipped:
			weight *= cfg.SkippedFactor
		case models.FeedbackDismissed:
			weight *= cfg.DismissedFactor
		}
		if weight > cfg.MaxWeight {
			weight = cfg.MaxWeight
		}
		if weight < cfg.MinWeight {
			weight = cfg.MinWeight
		}
	}
	return weight
}
