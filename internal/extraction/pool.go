package extraction

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gapscan/gapscan/internal/models"
)

// ProgressFunc receives monotonically increasing progress updates.
type ProgressFunc func(current, total int, message string)

// Pool runs the extraction stage with a fixed number of workers. Results
// are fully collected before the graph stage begins; no downstream stage
// consumes partial output.
type Pool struct {
	extractor Extractor
	workers   int
	logger    *slog.Logger
}

// NewPool creates an extraction pool with the given worker count.
func NewPool(extractor Extractor, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		extractor: extractor,
		workers:   workers,
		logger:    slog.Default().With("component", "extraction_pool"),
	}
}

// Result is the collected output of an extraction stage.
type Result struct {
	Extractions []models.DocumentExtraction
	Skipped     int
}

// ExtractAll extracts every document, skipping individual failures with a
// logged warning. Cancellation is observed between documents; an in-flight
// call's result is discarded by the caller when the context is done.
func (p *Pool) ExtractAll(ctx context.Context, docs []models.Document, progress ProgressFunc) (*Result, error) {
	extractions := make([]*models.DocumentExtraction, len(docs))

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, doc := range docs {
		// Cooperative cancellation between document submissions
		if err := gctx.Err(); err != nil {
			break
		}

		i, doc := i, doc
		g.Go(func() error {
			extraction, err := p.extractor.Extract(gctx, doc)
			if err != nil {
				// Skippable: a single bad document never aborts the stage
				p.logger.Warn("document extraction failed, skipping",
					"doc_id", doc.ID,
					"error", err,
				)
			} else {
				extractions[i] = extraction
			}

			// The callback fires under the same lock as the counter so
			// observers see strictly increasing counts and never race on
			// their own state.
			mu.Lock()
			done++
			if progress != nil {
				progress(done, len(docs), "extracting documents")
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// Discard results gathered before cancellation was observed
		return nil, err
	}

	result := &Result{}
	for _, e := range extractions {
		if e == nil {
			result.Skipped++
			continue
		}
		result.Extractions = append(result.Extractions, *e)
	}

	p.logger.Info("extraction stage complete",
		"documents", len(docs),
		"extracted", len(result.Extractions),
		"skipped", result.Skipped,
	)

	return result, nil
}
