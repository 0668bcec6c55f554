package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jExporter mirrors an assembled graph into Neo4j for downstream
// exploration. Export failures are non-fatal to a run; the in-memory graph
// remains the source of truth.
type Neo4jExporter struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewNeo4jExporter creates an exporter and verifies connectivity.
func NewNeo4jExporter(ctx context.Context, uri, username, password, database string) (*Neo4jExporter, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}

	return &Neo4jExporter{
		driver:   driver,
		database: database,
		logger:   slog.Default().With("component", "neo4j_exporter"),
	}, nil
}

// Export writes entities and relationships with idempotent MERGE batches.
// Entities are keyed by (tenant, project, canonical name, type) so repeated
// exports of the same graph are no-ops.
func (e *Neo4jExporter) Export(ctx context.Context, tenantID, projectID string, g *Graph) error {
	entities := g.Entities()
	entityRows := make([]map[string]any, 0, len(entities))
	for _, entity := range entities {
		entityRows = append(entityRows, map[string]any{
			"id":             entity.ID,
			"name":           entity.CanonicalName,
			"type":           string(entity.Type),
			"mention_count":  entity.MentionCount,
			"confidence":     entity.Confidence,
			"first_seen":     entity.FirstSeen.UTC(),
			"last_seen":      entity.LastSeen.UTC(),
		})
	}

	entityQuery := `
		UNWIND $rows AS row
		MERGE (e:Entity {tenant_id: $tenant, project_id: $project, name: row.name, type: row.type})
		SET e.run_entity_id = row.id,
		    e.mention_count = row.mention_count,
		    e.confidence = row.confidence,
		    e.first_seen = row.first_seen,
		    e.last_seen = row.last_seen
	`
	if _, err := neo4j.ExecuteQuery(ctx, e.driver, entityQuery,
		map[string]any{"rows": entityRows, "tenant": tenantID, "project": projectID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(e.database)); err != nil {
		return fmt.Errorf("failed to export entities: %w", err)
	}

	relRows := make([]map[string]any, 0, g.RelationshipCount())
	for _, r := range g.Relationships() {
		source := g.Entity(r.SourceEntityID)
		target := g.Entity(r.TargetEntityID)
		relRows = append(relRows, map[string]any{
			"source_name": source.CanonicalName,
			"source_type": string(source.Type),
			"target_name": target.CanonicalName,
			"target_type": string(target.Type),
			"type":        string(r.Type),
			"confidence":  r.Confidence,
			"evidence":    r.Evidence,
		})
	}

	relQuery := `
		UNWIND $rows AS row
		MATCH (s:Entity {tenant_id: $tenant, project_id: $project, name: row.source_name, type: row.source_type})
		MATCH (t:Entity {tenant_id: $tenant, project_id: $project, name: row.target_name, type: row.target_type})
		MERGE (s)-[r:RELATES {type: row.type}]->(t)
		SET r.confidence = row.confidence,
		    r.evidence = row.evidence
	`
	if _, err := neo4j.ExecuteQuery(ctx, e.driver, relQuery,
		map[string]any{"rows": relRows, "tenant": tenantID, "project": projectID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(e.database)); err != nil {
		return fmt.Errorf("failed to export relationships: %w", err)
	}

	e.logger.Info("graph exported to neo4j",
		"tenant_id", tenantID,
		"entities", len(entityRows),
		"relationships", len(relRows),
	)

	return nil
}

// Close releases the underlying driver.
func (e *Neo4jExporter) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}
