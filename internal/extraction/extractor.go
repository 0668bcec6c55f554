// Package extraction owns the per-document extraction contract and the
// bounded-concurrency stage that runs it. The LLM-backed extractor is a
// collaborator boundary: it maps document content to a DocumentExtraction
// and must be idempotent for identical input.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gapscan/gapscan/internal/llm"
	"github.com/gapscan/gapscan/internal/models"
)

// Extractor is the per-document extraction contract.
type Extractor interface {
	Extract(ctx context.Context, doc models.Document) (*models.DocumentExtraction, error)
}

// LLMExtractor implements Extractor with a structured-output LLM call.
type LLMExtractor struct {
	client *llm.Client
	logger *slog.Logger
}

// NewLLMExtractor creates an LLM-backed extractor.
func NewLLMExtractor(client *llm.Client) *LLMExtractor {
	return &LLMExtractor{
		client: client,
		logger: slog.Default().With("component", "extractor"),
	}
}

const extractionSystemPrompt = `You extract organizational knowledge from a single document.

Return a JSON object with this shape:
{
  "entities": [{"name": "...", "type": "person|team|system|process|decision|term", "confidence": 0.0}],
  "decisions": [{"title": "...", "decided_by": "...", "rationale": "...", "entities": ["..."]}],
  "processes": [{"name": "...", "owner": "...", "steps": [{"name": "...", "owner": "..."}]}],
  "dependencies": [{"source": "...", "target": "..."}],
  "signals": [{"kind": "ownership|decided_by|rationale|definition|contradiction", "subject": "...", "object": "...", "detail": "..."}]
}

Rules:
- Name entities exactly as the document does; do not invent entities.
- Emit an "ownership" signal when a person or team is said to own something.
- Emit a "rationale" signal when a decision's reasoning is stated; subject is the decision title.
- Emit a "definition" signal when a term is explained; subject is the term.
- Emit a "contradiction" signal when the document disputes a claim made elsewhere.
- Omit empty arrays rather than padding them.`

// Extract maps one document to its extraction. The output is a pure
// function of document content: identical input yields identical output.
func (e *LLMExtractor) Extract(ctx context.Context, doc models.Document) (*models.DocumentExtraction, error) {
	if doc.ID == "" {
		return nil, fmt.Errorf("document has no id")
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, fmt.Errorf("document %s has no content", doc.ID)
	}

	userPrompt := fmt.Sprintf("Document author: %s\nDocument content:\n%s", doc.Author, doc.Content)

	response, err := e.client.CompleteJSON(ctx, extractionSystemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("extract document %s: %w", doc.ID, err)
	}

	var parsed struct {
		Entities     []models.ExtractedEntity     `json:"entities"`
		Decisions    []models.ExtractedDecision   `json:"decisions"`
		Processes    []models.ExtractedProcess    `json:"processes"`
		Dependencies []models.ExtractedDependency `json:"dependencies"`
		Signals      []models.Signal              `json:"signals"`
	}
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("parse extraction for document %s: %w", doc.ID, err)
	}

	extraction := &models.DocumentExtraction{
		DocID:        doc.ID,
		Author:       doc.Author,
		DocTimestamp: doc.UpdatedAt,
		Entities:     parsed.Entities,
		Decisions:    parsed.Decisions,
		Processes:    parsed.Processes,
		Dependencies: parsed.Dependencies,
		Signals:      parsed.Signals,
		ExtractedAt:  time.Now().UTC(),
	}

	e.logger.Debug("document extracted",
		"doc_id", doc.ID,
		"entities", len(parsed.Entities),
		"decisions", len(parsed.Decisions),
		"signals", len(parsed.Signals),
	)

	return extraction, nil
}
