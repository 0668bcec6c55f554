package graph

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gapscan/gapscan/internal/models"
	"github.com/gapscan/gapscan/internal/textmatch"
)

// Assembler builds a knowledge graph from document extractions. Resolution
// is idempotent and merge-order independent: extractions are processed in a
// canonical order, so any input permutation yields an isomorphic graph.
type Assembler struct {
	matcher   *textmatch.Matcher
	threshold float64
	logger    *slog.Logger
}

// NewAssembler creates an assembler with the given fuzzy-match threshold.
func NewAssembler(matcher *textmatch.Matcher, threshold float64) *Assembler {
	return &Assembler{
		matcher:   matcher,
		threshold: threshold,
		logger:    slog.Default().With("component", "assembler"),
	}
}

// Assemble builds the graph. Malformed extractions are skipped with a
// warning; assembly never aborts for a single bad document.
func (a *Assembler) Assemble(extractions []models.DocumentExtraction) (*Graph, error) {
	g := NewGraph()

	// Canonical processing order makes assembly independent of input order.
	ordered := make([]models.DocumentExtraction, len(extractions))
	copy(ordered, extractions)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].DocTimestamp.Equal(ordered[j].DocTimestamp) {
			return ordered[i].DocTimestamp.Before(ordered[j].DocTimestamp)
		}
		return ordered[i].DocID < ordered[j].DocID
	})

	for _, ext := range ordered {
		if ext.DocID == "" {
			a.logger.Warn("skipping malformed extraction: missing doc id")
			continue
		}
		g.docAuthors[ext.DocID] = ext.Author
		a.assembleOne(g, ext)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("graph failed integrity check: %w", err)
	}

	a.logger.Info("graph assembled",
		"entities", g.EntityCount(),
		"relationships", g.RelationshipCount(),
	)

	return g, nil
}

func (a *Assembler) assembleOne(g *Graph, ext models.DocumentExtraction) {
	// Entity mentions first so later records resolve against them.
	for _, mention := range ext.Entities {
		if mention.Name == "" || mention.Type == "" {
			a.logger.Warn("skipping malformed entity mention", "doc_id", ext.DocID)
			continue
		}
		a.resolveOrCreate(g, mention.Name, mention.Type, mention.Confidence, ext.DocID, ext.DocTimestamp)
	}

	// Decisions: the decision itself, who decided it, and co-occurrence
	// links to the entities named in the record.
	for _, decision := range ext.Decisions {
		if decision.Title == "" {
			continue
		}
		decisionID := a.resolveOrCreate(g, decision.Title, models.EntityDecision, 0.8, ext.DocID, ext.DocTimestamp)
		if decision.DecidedBy != "" {
			personID := a.resolveOrCreate(g, decision.DecidedBy, models.EntityPerson, 0.8, ext.DocID, ext.DocTimestamp)
			g.upsertRelationship(personID, decisionID, models.RelDecided, "", ext.DocID, 0.9)
		}
		for _, name := range decision.Entities {
			if relatedID, ok := a.resolveAnyType(g, name); ok && relatedID != decisionID {
				g.upsertRelationship(decisionID, relatedID, models.RelMentions, "", ext.DocID, 0.6)
			}
		}
	}

	// Processes: the process entity plus ownership edges for the process
	// and step owners.
	for _, process := range ext.Processes {
		if process.Name == "" {
			continue
		}
		processID := a.resolveOrCreate(g, process.Name, models.EntityProcess, 0.8, ext.DocID, ext.DocTimestamp)
		if process.Owner != "" {
			ownerID := a.resolveOrCreate(g, process.Owner, models.EntityPerson, 0.8, ext.DocID, ext.DocTimestamp)
			g.upsertRelationship(ownerID, processID, models.RelOwns, "", ext.DocID, 0.9)
		}
		for _, step := range process.Steps {
			if step.Owner == "" {
				continue
			}
			ownerID := a.resolveOrCreate(g, step.Owner, models.EntityPerson, 0.7, ext.DocID, ext.DocTimestamp)
			g.upsertRelationship(ownerID, processID, models.RelMentions, step.Name, ext.DocID, 0.6)
		}
	}

	// Dependency claims. Unresolved endpoints are created as systems so
	// the edge never dangles.
	for _, dep := range ext.Dependencies {
		if dep.Source == "" || dep.Target == "" {
			continue
		}
		sourceID := a.resolveOrCreateAnyType(g, dep.Source, models.EntitySystem, ext.DocID, ext.DocTimestamp)
		targetID := a.resolveOrCreateAnyType(g, dep.Target, models.EntitySystem, ext.DocID, ext.DocTimestamp)
		if sourceID != targetID {
			g.upsertRelationship(sourceID, targetID, models.RelDependsOn, "", ext.DocID, 0.8)
		}
	}

	// Explicit signals.
	for _, signal := range ext.Signals {
		a.applySignal(g, signal, ext)
	}
}

func (a *Assembler) applySignal(g *Graph, signal models.Signal, ext models.DocumentExtraction) {
	switch signal.Kind {
	case models.SignalOwnership:
		if signal.Subject == "" || signal.Object == "" {
			return
		}
		ownerID := a.resolveOrCreate(g, signal.Subject, models.EntityPerson, 0.8, ext.DocID, ext.DocTimestamp)
		ownedID := a.resolveOrCreateAnyType(g, signal.Object, models.EntitySystem, ext.DocID, ext.DocTimestamp)
		g.upsertRelationship(ownerID, ownedID, models.RelOwns, signal.Detail, ext.DocID, 0.9)

	case models.SignalDecidedBy:
		if signal.Subject == "" || signal.Object == "" {
			return
		}
		personID := a.resolveOrCreate(g, signal.Subject, models.EntityPerson, 0.8, ext.DocID, ext.DocTimestamp)
		decisionID := a.resolveOrCreate(g, signal.Object, models.EntityDecision, 0.8, ext.DocID, ext.DocTimestamp)
		g.upsertRelationship(personID, decisionID, models.RelDecided, signal.Detail, ext.DocID, 0.9)

	case models.SignalContradiction:
		if signal.Subject == "" || signal.Object == "" {
			return
		}
		subjectID := a.resolveOrCreateAnyType(g, signal.Subject, models.EntitySystem, ext.DocID, ext.DocTimestamp)
		objectID := a.resolveOrCreateAnyType(g, signal.Object, models.EntitySystem, ext.DocID, ext.DocTimestamp)
		if subjectID != objectID {
			g.upsertRelationship(subjectID, objectID, models.RelContradicts, signal.Detail, ext.DocID, 0.7)
		}

	case models.SignalRationale, models.SignalDefinition:
		// Consumed by analyzers directly from the extractions; no edge.
	}
}

// resolveOrCreate resolves a mention against existing entities of the same
// type, merging on match and creating a new entity otherwise.
func (a *Assembler) resolveOrCreate(g *Graph, name string, t models.EntityType, confidence float64, docID string, ts time.Time) string {
	norm := a.matcher.NormalizeName(name)
	if norm == "" {
		norm = a.matcher.NormalizeText(name)
	}

	if id, ok := a.resolve(g, norm, t); ok {
		a.merge(g, id, norm, confidence, docID, ts)
		return id
	}

	e := &models.Entity{
		ID:            uuid.NewString(),
		CanonicalName: name,
		Type:          t,
		MentionCount:  1,
		FirstSeen:     ts,
		LastSeen:      ts,
		Confidence:    confidence,
	}
	g.addEntity(e, norm)
	g.recordMention(e.ID, docID, ts)
	return e.ID
}

// resolve attempts exact normalized-name match, then alias match (both via
// the name index), then fuzzy similarity against canonical names and
// aliases of the same type.
func (a *Assembler) resolve(g *Graph, norm string, t models.EntityType) (string, bool) {
	if id, ok := g.lookupName(t, norm); ok {
		return id, true
	}

	// Fuzzy pass. Candidates at or above the threshold compete on ratio;
	// ties break by mention count, then earliest first seen.
	var best *models.Entity
	bestRatio := 0.0
	for _, e := range g.EntitiesOfType(t) {
		ratio := a.matcher.Ratio(norm, a.matcher.NormalizeName(e.CanonicalName))
		for _, alias := range e.Aliases {
			if r := a.matcher.Ratio(norm, alias); r > ratio {
				ratio = r
			}
		}
		if ratio < a.threshold {
			continue
		}
		if best == nil || ratio > bestRatio ||
			(ratio == bestRatio && betterTie(e, best)) {
			best = e
			bestRatio = ratio
		}
	}
	if best != nil {
		return best.ID, true
	}
	return "", false
}

func betterTie(candidate, current *models.Entity) bool {
	if candidate.MentionCount != current.MentionCount {
		return candidate.MentionCount > current.MentionCount
	}
	return candidate.FirstSeen.Before(current.FirstSeen)
}

// resolveAnyType resolves a name against entities of every type, preferring
// exact index hits in a fixed type order.
func (a *Assembler) resolveAnyType(g *Graph, name string) (string, bool) {
	norm := a.matcher.NormalizeName(name)
	for _, t := range []models.EntityType{
		models.EntityPerson, models.EntityTeam, models.EntitySystem,
		models.EntityProcess, models.EntityDecision, models.EntityTerm,
	} {
		if id, ok := g.lookupName(t, norm); ok {
			return id, true
		}
	}
	for _, t := range []models.EntityType{
		models.EntityPerson, models.EntityTeam, models.EntitySystem,
		models.EntityProcess, models.EntityDecision, models.EntityTerm,
	} {
		if id, ok := a.resolve(g, norm, t); ok {
			return id, true
		}
	}
	return "", false
}

func (a *Assembler) resolveOrCreateAnyType(g *Graph, name string, fallback models.EntityType, docID string, ts time.Time) string {
	if id, ok := a.resolveAnyType(g, name); ok {
		norm := a.matcher.NormalizeName(name)
		a.merge(g, id, norm, 0.6, docID, ts)
		return id
	}
	return a.resolveOrCreate(g, name, fallback, 0.5, docID, ts)
}

// merge folds a new mention into an existing entity: union alias sets,
// bump mention count, extend the seen window, and average confidence
// weighted by mention count.
func (a *Assembler) merge(g *Graph, entityID, norm string, confidence float64, docID string, ts time.Time) {
	e := g.entities[entityID]

	canonicalNorm := a.matcher.NormalizeName(e.CanonicalName)
	if norm != "" && norm != canonicalNorm && !containsString(e.Aliases, norm) {
		e.Aliases = append(e.Aliases, norm)
		sort.Strings(e.Aliases)
		g.indexName(e.Type, norm, e.ID)
	}

	n := float64(e.MentionCount)
	e.Confidence = (e.Confidence*n + confidence) / (n + 1)
	e.MentionCount++
	if ts.Before(e.FirstSeen) {
		e.FirstSeen = ts
	}
	if ts.After(e.LastSeen) {
		e.LastSeen = ts
	}
	g.recordMention(e.ID, docID, ts)
}
