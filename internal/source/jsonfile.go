// Package source provides document sources for the pipeline. The JSON file
// source is the reference implementation used by the CLI; server deployments
// plug their own DocumentSource into the orchestrator.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gapscan/gapscan/internal/models"
)

// JSONFile reads documents from a single JSON file holding an array of
// documents.
type JSONFile struct {
	path   string
	logger *slog.Logger
}

func NewJSONFile(path string) *JSONFile {
	return &JSONFile{
		path:   path,
		logger: slog.Default().With("component", "source", "path", path),
	}
}

// List returns documents updated after since. The zero time returns
// everything. Documents without an id are skipped with a warning.
func (s *JSONFile) List(ctx context.Context, tenantID, projectID string, since time.Time) ([]models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document file: %w", err)
	}

	var all []models.Document
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to parse document file: %w", err)
	}

	var docs []models.Document
	for _, doc := range all {
		if doc.ID == "" {
			s.logger.Warn("skipping document without id")
			continue
		}
		updated := doc.UpdatedAt
		if updated.IsZero() {
			updated = doc.CreatedAt
		}
		if !since.IsZero() && !updated.After(since) {
			continue
		}
		docs = append(docs, doc)
	}

	s.logger.Debug("documents listed", "total", len(all), "in_scope", len(docs), "since", since)
	return docs, nil
}
