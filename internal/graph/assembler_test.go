package graph

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/textmatch"
)

func newTestAssembler() *Assembler {
	return NewAssembler(textmatch.NewMatcher(), 0.88)
}

func day(n int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func extractionFixture() []models.DocumentExtraction {
	return []models.DocumentExtraction{
		{
			DocID:        "doc-1",
			Author:       "alice",
			DocTimestamp: day(0),
			Entities: []models.ExtractedEntity{
				{Name: "Alice", Type: models.EntityPerson, Confidence: 0.9},
				{Name: "Deploy Pipeline", Type: models.EntityProcess, Confidence: 0.9},
			},
			Signals: []models.Signal{
				{Kind: models.SignalOwnership, Subject: "Alice", Object: "Deploy Pipeline"},
			},
		},
		{
			DocID:        "doc-2",
			Author:       "bob",
			DocTimestamp: day(1),
			Entities: []models.ExtractedEntity{
				{Name: "deploy pipeline", Type: models.EntityProcess, Confidence: 0.8},
				{Name: "Billing Service", Type: models.EntitySystem, Confidence: 0.9},
			},
			Dependencies: []models.ExtractedDependency{
				{Source: "Billing Service", Target: "deploy pipeline"},
			},
		},
		{
			DocID:        "doc-3",
			Author:       "carol",
			DocTimestamp: day(2),
			Decisions: []models.ExtractedDecision{
				{Title: "Switched to GraphQL", DecidedBy: "Carol"},
			},
		},
	}
}

func TestAssemble_MergesCaseVariants(t *testing.T) {
	g, err := newTestAssembler().Assemble(extractionFixture())
	require.NoError(t, err)

	processes := g.EntitiesOfType(models.EntityProcess)
	require.Len(t, processes, 1, "case variants of the same process must merge")

	pipeline := processes[0]
	assert.Equal(t, "Deploy Pipeline", pipeline.CanonicalName)
	// doc-1 mention, doc-1 ownership signal, doc-2 mention, doc-2 dependency
	assert.Equal(t, 4, pipeline.MentionCount)
	assert.Contains(t, g.MentionDocs(pipeline.ID), "doc-1")
	assert.Contains(t, g.MentionDocs(pipeline.ID), "doc-2")
}

func TestAssemble_ReferentialIntegrity(t *testing.T) {
	g, err := newTestAssembler().Assemble(extractionFixture())
	require.NoError(t, err)

	for _, r := range g.Relationships() {
		assert.NotNil(t, g.Entity(r.SourceEntityID), "source of %s must exist", r.Type)
		assert.NotNil(t, g.Entity(r.TargetEntityID), "target of %s must exist", r.Type)
	}
	require.NoError(t, g.Validate())
}

func TestAssemble_PermutationInvariant(t *testing.T) {
	base := extractionFixture()

	reference, err := newTestAssembler().Assemble(base)
	require.NoError(t, err)
	want := graphFingerprint(reference)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]models.DocumentExtraction, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		g, err := newTestAssembler().Assemble(shuffled)
		require.NoError(t, err)
		assert.Equal(t, want, graphFingerprint(g), "permutation %d must yield an identical graph", i)
	}
}

func TestAssemble_SkipsMalformedExtraction(t *testing.T) {
	exts := append(extractionFixture(), models.DocumentExtraction{
		Entities: []models.ExtractedEntity{{Name: "Ghost", Type: models.EntitySystem}},
	})

	g, err := newTestAssembler().Assemble(exts)
	require.NoError(t, err)

	for _, e := range g.Entities() {
		assert.NotEqual(t, "Ghost", e.CanonicalName, "extraction without a doc id must be dropped")
	}
}

func TestAssemble_DependencyFallbackCreatesSystem(t *testing.T) {
	g, err := newTestAssembler().Assemble([]models.DocumentExtraction{
		{
			DocID:        "doc-1",
			DocTimestamp: day(0),
			Dependencies: []models.ExtractedDependency{
				{Source: "ServiceX", Target: "ServiceY"},
			},
		},
	})
	require.NoError(t, err)

	assert.Len(t, g.EntitiesOfType(models.EntitySystem), 2)
	require.Equal(t, 1, g.RelationshipCount())
	assert.Equal(t, models.RelDependsOn, g.Relationships()[0].Type)
}

func TestAssemble_DuplicateEdgeUnionsEvidence(t *testing.T) {
	g, err := newTestAssembler().Assemble([]models.DocumentExtraction{
		{
			DocID:        "doc-1",
			DocTimestamp: day(0),
			Signals: []models.Signal{
				{Kind: models.SignalOwnership, Subject: "Alice", Object: "Billing"},
			},
		},
		{
			DocID:        "doc-2",
			DocTimestamp: day(1),
			Signals: []models.Signal{
				{Kind: models.SignalOwnership, Subject: "Alice", Object: "Billing"},
			},
		},
	})
	require.NoError(t, err)

	require.Equal(t, 1, g.RelationshipCount(), "same (source, target, type) must collapse to one edge")
	r := g.Relationships()[0]
	assert.ElementsMatch(t, []string{"doc-1", "doc-2"}, r.Evidence)
}

// graphFingerprint reduces a graph to a comparable shape independent of
// generated ids.
func graphFingerprint(g *Graph) map[string][]string {
	fp := make(map[string][]string)

	names := make(map[string]string)
	for _, e := range g.Entities() {
		names[e.ID] = string(e.Type) + ":" + e.CanonicalName
		fp["entities"] = append(fp["entities"], names[e.ID])
	}
	for _, r := range g.Relationships() {
		fp["relationships"] = append(fp["relationships"],
			names[r.SourceEntityID]+"-"+string(r.Type)+"->"+names[r.TargetEntityID])
	}
	sort.Strings(fp["entities"])
	sort.Strings(fp["relationships"])
	return fp
}
