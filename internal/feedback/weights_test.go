package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/models"
)

func testFeedbackConfig() config.FeedbackConfig {
	return config.Default().Feedback
}

func events(types ...models.FeedbackType) []models.FeedbackEvent {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.FeedbackEvent, len(types))
	for i, t := range types {
		out[i] = models.FeedbackEvent{
			Type:       t,
			RecordedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestReplay_SkippedSkippedAnswered(t *testing.T) {
	weight := Replay(testFeedbackConfig(), events(
		models.FeedbackSkipped,
		models.FeedbackSkipped,
		models.FeedbackAnswered,
	))
	assert.InDelta(t, 0.99275, weight, 1e-9)
}

func TestReplay_EmptyHistoryIsDefault(t *testing.T) {
	assert.Equal(t, DefaultWeight, Replay(testFeedbackConfig(), nil))
}

func TestReplay_Deterministic(t *testing.T) {
	history := events(
		models.FeedbackAnswered,
		models.FeedbackDismissed,
		models.FeedbackSkipped,
		models.FeedbackAnswered,
	)

	first := Replay(testFeedbackConfig(), history)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Replay(testFeedbackConfig(), history))
	}
}

func TestReplay_ClampsAtBounds(t *testing.T) {
	cfg := testFeedbackConfig()

	var dismissed []models.FeedbackType
	for i := 0; i < 50; i++ {
		dismissed = append(dismissed, models.FeedbackDismissed)
	}
	assert.Equal(t, cfg.MinWeight, Replay(cfg, events(dismissed...)))

	var answered []models.FeedbackType
	for i := 0; i < 50; i++ {
		answered = append(answered, models.FeedbackAnswered)
	}
	assert.Equal(t, cfg.MaxWeight, Replay(cfg, events(answered...)))
}

func TestReplay_OrderMatters(t *testing.T) {
	cfg := testFeedbackConfig()

	// Clamping makes replay order-sensitive at the bounds; these two orders
	// must not be assumed interchangeable in general, only evaluated
	// deterministically.
	a := Replay(cfg, events(models.FeedbackAnswered, models.FeedbackDismissed))
	b := Replay(cfg, events(models.FeedbackDismissed, models.FeedbackAnswered))
	assert.InDelta(t, a, b, 1e-9, "away from the bounds multiplication commutes")
}

func TestRecord_RejectsUnknownType(t *testing.T) {
	engine := NewEngine(nil, testFeedbackConfig())

	err := engine.Record(t.Context(), models.FeedbackEvent{
		TenantID:   "t1",
		QuestionID: "q1",
		Type:       models.FeedbackType("shrugged"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown feedback type")
}

func TestRecord_RequiresTenantAndQuestion(t *testing.T) {
	engine := NewEngine(nil, testFeedbackConfig())

	err := engine.Record(t.Context(), models.FeedbackEvent{
		Type: models.FeedbackAnswered,
	})
	require.Error(t, err)
}
