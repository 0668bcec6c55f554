// Package graph assembles per-document extractions into a typed knowledge
// graph of resolved entities and evidenced relationships.
package graph

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gapscan/gapscan/internal/models"
)

type relKey struct {
	source string
	target string
	typ    models.RelationshipType
}

// Graph is the in-memory knowledge graph for one run. It is built by a
// single goroutine; entity merges are not safe for concurrent writers.
type Graph struct {
	entities      map[string]*models.Entity
	relationships map[relKey]*models.Relationship

	nameIndex  map[models.EntityType]map[string]string // normalized name/alias -> entity id
	mentions   map[string]map[string]time.Time         // entity id -> doc id -> doc timestamp
	docAuthors map[string]string                       // doc id -> author
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		entities:      make(map[string]*models.Entity),
		relationships: make(map[relKey]*models.Relationship),
		nameIndex:     make(map[models.EntityType]map[string]string),
		mentions:      make(map[string]map[string]time.Time),
		docAuthors:    make(map[string]string),
	}
}

// Entity returns the entity with the given id, or nil.
func (g *Graph) Entity(id string) *models.Entity {
	return g.entities[id]
}

// EntityCount returns the number of resolved entities.
func (g *Graph) EntityCount() int {
	return len(g.entities)
}

// Entities returns all entities sorted by canonical name for deterministic
// iteration.
func (g *Graph) Entities() []*models.Entity {
	out := make([]*models.Entity, 0, len(g.entities))
	for _, e := range g.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CanonicalName != out[j].CanonicalName {
			return out[i].CanonicalName < out[j].CanonicalName
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// EntitiesOfType returns entities of one type, sorted by canonical name.
func (g *Graph) EntitiesOfType(t models.EntityType) []*models.Entity {
	var out []*models.Entity
	for _, e := range g.entities {
		if e.Type == t {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CanonicalName < out[j].CanonicalName })
	return out
}

// Relationships returns all relationships sorted by (source, target, type).
func (g *Graph) Relationships() []*models.Relationship {
	out := make([]*models.Relationship, 0, len(g.relationships))
	for _, r := range g.relationships {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SourceEntityID != b.SourceEntityID {
			return a.SourceEntityID < b.SourceEntityID
		}
		if a.TargetEntityID != b.TargetEntityID {
			return a.TargetEntityID < b.TargetEntityID
		}
		return a.Type < b.Type
	})
	return out
}

// RelationshipCount returns the number of distinct (source, target, type)
// relationships.
func (g *Graph) RelationshipCount() int {
	return len(g.relationships)
}

// RelationshipsTo returns relationships of the given types targeting an
// entity.
func (g *Graph) RelationshipsTo(targetID string, types ...models.RelationshipType) []*models.Relationship {
	var out []*models.Relationship
	for _, r := range g.Relationships() {
		if r.TargetEntityID != targetID {
			continue
		}
		if len(types) == 0 || containsType(types, r.Type) {
			out = append(out, r)
		}
	}
	return out
}

// RelationshipsFrom returns relationships of the given types originating
// from an entity.
func (g *Graph) RelationshipsFrom(sourceID string, types ...models.RelationshipType) []*models.Relationship {
	var out []*models.Relationship
	for _, r := range g.Relationships() {
		if r.SourceEntityID != sourceID {
			continue
		}
		if len(types) == 0 || containsType(types, r.Type) {
			out = append(out, r)
		}
	}
	return out
}

// RelationshipsBetween returns all relationships on an unordered entity
// pair.
func (g *Graph) RelationshipsBetween(a, b string) []*models.Relationship {
	var out []*models.Relationship
	for _, r := range g.Relationships() {
		if (r.SourceEntityID == a && r.TargetEntityID == b) ||
			(r.SourceEntityID == b && r.TargetEntityID == a) {
			out = append(out, r)
		}
	}
	return out
}

// MentionDocs returns the documents that mention an entity, keyed by doc id
// with the document timestamp.
func (g *Graph) MentionDocs(entityID string) map[string]time.Time {
	return g.mentions[entityID]
}

// DocAuthor returns the recorded author of a document.
func (g *Graph) DocAuthor(docID string) string {
	return g.docAuthors[docID]
}

// Validate checks referential integrity: every relationship endpoint must
// resolve to a live entity.
func (g *Graph) Validate() error {
	for key, r := range g.relationships {
		if _, ok := g.entities[key.source]; !ok {
			return fmt.Errorf("relationship %s references missing source entity %s", r.ID, key.source)
		}
		if _, ok := g.entities[key.target]; !ok {
			return fmt.Errorf("relationship %s references missing target entity %s", r.ID, key.target)
		}
	}
	return nil
}

// addEntity inserts a new entity and indexes its normalized name.
func (g *Graph) addEntity(e *models.Entity, normName string) {
	g.entities[e.ID] = e
	g.indexName(e.Type, normName, e.ID)
}

func (g *Graph) indexName(t models.EntityType, normName, entityID string) {
	if normName == "" {
		return
	}
	if g.nameIndex[t] == nil {
		g.nameIndex[t] = make(map[string]string)
	}
	if _, exists := g.nameIndex[t][normName]; !exists {
		g.nameIndex[t][normName] = entityID
	}
}

func (g *Graph) lookupName(t models.EntityType, normName string) (string, bool) {
	id, ok := g.nameIndex[t][normName]
	return id, ok
}

// recordMention tracks which document mentioned an entity and when.
func (g *Graph) recordMention(entityID, docID string, ts time.Time) {
	if docID == "" {
		return
	}
	if g.mentions[entityID] == nil {
		g.mentions[entityID] = make(map[string]time.Time)
	}
	g.mentions[entityID][docID] = ts
}

// upsertRelationship merges duplicate (source, target, type) edges by
// unioning evidence and re-averaging confidence.
func (g *Graph) upsertRelationship(sourceID, targetID string, t models.RelationshipType, detail, docID string, confidence float64) *models.Relationship {
	key := relKey{source: sourceID, target: targetID, typ: t}
	if existing, ok := g.relationships[key]; ok {
		n := float64(len(existing.Evidence))
		if docID != "" && !containsString(existing.Evidence, docID) {
			existing.Evidence = append(existing.Evidence, docID)
			sort.Strings(existing.Evidence)
		}
		existing.Confidence = (existing.Confidence*n + confidence) / (n + 1)
		if existing.Detail == "" {
			existing.Detail = detail
		}
		return existing
	}

	r := &models.Relationship{
		ID:             uuid.NewString(),
		SourceEntityID: sourceID,
		TargetEntityID: targetID,
		Type:           t,
		Detail:         detail,
		Confidence:     confidence,
	}
	if docID != "" {
		r.Evidence = []string{docID}
	}
	g.relationships[key] = r
	return r
}

func containsType(types []models.RelationshipType, t models.RelationshipType) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
