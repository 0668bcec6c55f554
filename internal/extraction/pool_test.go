package extraction

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gapscan/gapscan/internal/models"
)

// flakyExtractor fails for documents whose id appears in fail.
type flakyExtractor struct {
	fail map[string]bool
}

func (e *flakyExtractor) Extract(_ context.Context, doc models.Document) (*models.DocumentExtraction, error) {
	if e.fail[doc.ID] {
		return nil, fmt.Errorf("bad document %s", doc.ID)
	}
	return &models.DocumentExtraction{
		DocID:        doc.ID,
		Author:       doc.Author,
		DocTimestamp: doc.UpdatedAt,
		ExtractedAt:  time.Now().UTC(),
	}, nil
}

func poolDocs(n int) []models.Document {
	docs := make([]models.Document, n)
	for i := range docs {
		docs[i] = models.Document{
			ID:      fmt.Sprintf("doc-%d", i+1),
			Content: "content",
		}
	}
	return docs
}

func TestExtractAll_SkipsFailedDocuments(t *testing.T) {
	pool := NewPool(&flakyExtractor{fail: map[string]bool{"doc-2": true}}, 2)

	result, err := pool.ExtractAll(t.Context(), poolDocs(4), nil)
	require.NoError(t, err)
	assert.Len(t, result.Extractions, 3, "a single bad document is skipped, not fatal")
	assert.Equal(t, 1, result.Skipped)
}

func TestExtractAll_ProgressIsOrderedAcrossWorkers(t *testing.T) {
	const docs = 128
	pool := NewPool(&flakyExtractor{}, 8)

	// The callback mutates shared state without its own lock; delivery must
	// be serialized by the pool and counts must arrive strictly in order.
	var seen []int
	result, err := pool.ExtractAll(t.Context(), poolDocs(docs), func(current, total int, _ string) {
		seen = append(seen, current)
		assert.Equal(t, docs, total)
	})
	require.NoError(t, err)
	assert.Len(t, result.Extractions, docs)

	require.Len(t, seen, docs)
	for i, current := range seen {
		require.Equal(t, i+1, current, "progress must increase by one per document")
	}
}

func TestExtractAll_CancelledContextDiscardsResults(t *testing.T) {
	pool := NewPool(&flakyExtractor{}, 1)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := pool.ExtractAll(ctx, poolDocs(3), nil)
	require.Error(t, err)
}
