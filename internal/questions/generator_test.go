package questions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gapscan/gapscan/internal/config"
	"github.com/gapscan/gapscan/internal/llm"
	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/textmatch"
)

// newTemplateOnlyGenerator builds a generator whose LLM client is disabled,
// exercising the fallback path.
func newTemplateOnlyGenerator(t *testing.T) *Generator {
	t.Helper()
	client, err := llm.NewClient(t.Context(), config.Default())
	require.NoError(t, err)
	require.False(t, client.IsEnabled())
	return NewGenerator(client, textmatch.NewMatcher(), 0.85)
}

func testGap(id string, gapType models.GapType, severity float64, entities ...string) models.Gap {
	return models.Gap{
		ID:              id,
		Type:            gapType,
		Severity:        severity,
		Description:     "a knowledge gap",
		Evidence:        []string{"doc-1"},
		RelatedEntities: entities,
		CreatedAt:       time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestGenerate_TemplatePerGapType(t *testing.T) {
	gen := newTemplateOnlyGenerator(t)

	gaps := []models.Gap{
		testGap("g1", models.GapBusFactor, 0.9, "Alice", "Deploy Pipeline"),
		testGap("g2", models.GapDecisionArchaeology, 0.8, "Switched to GraphQL"),
		testGap("g3", models.GapOnboardingBarrier, 0.7, "CLQS"),
		testGap("g4", models.GapStaleness, 0.6, "Legacy Exporter"),
	}

	result := gen.Generate(t.Context(), gaps)
	require.Len(t, result.Questions, 4)
	assert.False(t, result.Degraded, "a disabled client is template-only, not degraded")

	byGap := make(map[string]string)
	for _, q := range result.Questions {
		byGap[q.GapID] = q.Text
	}
	assert.Contains(t, byGap["g1"], "Alice")
	assert.Contains(t, byGap["g1"], "Deploy Pipeline")
	assert.Contains(t, byGap["g2"], "Switched to GraphQL")
	assert.Contains(t, byGap["g3"], "CLQS")
	assert.Contains(t, byGap["g4"], "Legacy Exporter")
}

func TestGenerate_SkipsUngroundedGaps(t *testing.T) {
	gen := newTemplateOnlyGenerator(t)

	noEntities := testGap("g1", models.GapStaleness, 0.9)
	noEvidence := testGap("g2", models.GapStaleness, 0.9, "Wiki")
	noEvidence.Evidence = nil

	result := gen.Generate(t.Context(), []models.Gap{noEntities, noEvidence})
	assert.Empty(t, result.Questions, "gaps without entities or evidence are insufficient grounding")
}

func TestGenerate_DedupKeepsHigherSeverityGap(t *testing.T) {
	gen := newTemplateOnlyGenerator(t)

	// Same gap type and entity in different case produces near-identical
	// question text; the surviving question must belong to the
	// higher-severity gap.
	gaps := []models.Gap{
		testGap("g-low", models.GapStaleness, 0.2, "billing service"),
		testGap("g-high", models.GapStaleness, 0.9, "Billing Service"),
	}

	result := gen.Generate(t.Context(), gaps)
	require.Len(t, result.Questions, 1)
	assert.Equal(t, "g-high", result.Questions[0].GapID)
}

func TestGenerate_OneQuestionPerGap(t *testing.T) {
	gen := newTemplateOnlyGenerator(t)

	gaps := []models.Gap{
		testGap("g1", models.GapBusFactor, 0.9, "Alice", "Deploy Pipeline"),
		testGap("g2", models.GapDependencyRisk, 0.8, "Checkout", "Fraud Scorer"),
	}

	result := gen.Generate(t.Context(), gaps)
	require.Len(t, result.Questions, 2)

	seen := make(map[string]bool)
	for _, q := range result.Questions {
		assert.False(t, seen[q.GapID], "a gap yields at most one question")
		seen[q.GapID] = true
		assert.NotEmpty(t, q.ID)
		assert.NotEmpty(t, q.TargetEntities)
	}
}
