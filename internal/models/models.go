package models

import (
	"time"
)

// EntityType classifies a resolved entity in the knowledge graph.
type EntityType string

const (
	EntityPerson   EntityType = "person"
	EntityTeam     EntityType = "team"
	EntitySystem   EntityType = "system"
	EntityProcess  EntityType = "process"
	EntityDecision EntityType = "decision"
	EntityTerm     EntityType = "term"
)

// Entity is a resolved, deduplicated real-world object tracked in the graph.
// Entities are created during resolution, mutated by merges, and never
// deleted within a run.
type Entity struct {
	ID            string     `json:"id" db:"id"`
	CanonicalName string     `json:"canonical_name" db:"canonical_name"`
	Type          EntityType `json:"type" db:"type"`
	Aliases       []string   `json:"aliases"`
	MentionCount  int        `json:"mention_count" db:"mention_count"`
	FirstSeen     time.Time  `json:"first_seen" db:"first_seen"`
	LastSeen      time.Time  `json:"last_seen" db:"last_seen"`
	Confidence    float64    `json:"confidence" db:"confidence"`
}

// RelationshipType classifies a typed edge between two entities.
type RelationshipType string

const (
	RelOwns        RelationshipType = "owns"
	RelDependsOn   RelationshipType = "depends_on"
	RelDecided     RelationshipType = "decided"
	RelContradicts RelationshipType = "contradicts"
	RelMentions    RelationshipType = "mentions"
)

// Relationship is a typed, evidenced edge between two live entities.
type Relationship struct {
	ID             string           `json:"id" db:"id"`
	SourceEntityID string           `json:"source_entity_id" db:"source_entity_id"`
	TargetEntityID string           `json:"target_entity_id" db:"target_entity_id"`
	Type           RelationshipType `json:"type" db:"type"`
	Detail         string           `json:"detail,omitempty" db:"detail"`
	Evidence       []string         `json:"evidence"`
	Confidence     float64          `json:"confidence" db:"confidence"`
}

// Document is the raw unit handed to the extraction contract.
type Document struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExtractedEntity is a single entity mention inside a document.
type ExtractedEntity struct {
	Name       string     `json:"name"`
	Type       EntityType `json:"type"`
	Confidence float64    `json:"confidence"`
}

// ExtractedDecision records a decision found in a document.
type ExtractedDecision struct {
	Title     string   `json:"title"`
	DecidedBy string   `json:"decided_by,omitempty"`
	Rationale string   `json:"rationale,omitempty"`
	Entities  []string `json:"entities,omitempty"`
}

// ProcessStep is one step of an extracted process.
type ProcessStep struct {
	Name  string `json:"name"`
	Owner string `json:"owner,omitempty"`
}

// ExtractedProcess records a multi-step process found in a document.
type ExtractedProcess struct {
	Name  string        `json:"name"`
	Owner string        `json:"owner,omitempty"`
	Steps []ProcessStep `json:"steps"`
}

// ExtractedDependency records a directed dependency claim between two
// named entities.
type ExtractedDependency struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// SignalKind classifies a generic knowledge signal attached to a document.
type SignalKind string

const (
	SignalOwnership     SignalKind = "ownership"
	SignalDecidedBy     SignalKind = "decided_by"
	SignalRationale     SignalKind = "rationale"
	SignalDefinition    SignalKind = "definition"
	SignalContradiction SignalKind = "contradiction"
)

// Signal is a generic knowledge signal: Subject relates to Object with an
// optional free-text Detail (e.g. the rationale text itself).
type Signal struct {
	Kind    SignalKind `json:"kind"`
	Subject string     `json:"subject"`
	Object  string     `json:"object,omitempty"`
	Detail  string     `json:"detail,omitempty"`
}

// DocumentExtraction is the immutable per-document output of the extraction
// contract and the unit of input to graph assembly.
type DocumentExtraction struct {
	DocID        string                `json:"doc_id"`
	Author       string                `json:"author"`
	DocTimestamp time.Time             `json:"doc_timestamp"`
	Entities     []ExtractedEntity     `json:"entities"`
	Decisions    []ExtractedDecision   `json:"decisions"`
	Processes    []ExtractedProcess    `json:"processes"`
	Dependencies []ExtractedDependency `json:"dependencies"`
	Signals      []Signal              `json:"signals"`
	ExtractedAt  time.Time             `json:"extracted_at"`
}

// GapType identifies which analyzer produced a gap.
type GapType string

const (
	GapBusFactor           GapType = "bus_factor"
	GapDecisionArchaeology GapType = "decision_archaeology"
	GapProcessCompleteness GapType = "process_completeness"
	GapTribalKnowledge     GapType = "tribal_knowledge"
	GapDependencyRisk      GapType = "dependency_risk"
	GapStaleness           GapType = "staleness"
	GapContradiction       GapType = "contradiction"
	GapOnboardingBarrier   GapType = "onboarding_barrier"
)

// AllGapTypes lists every analyzer category in registration order.
var AllGapTypes = []GapType{
	GapBusFactor,
	GapDecisionArchaeology,
	GapProcessCompleteness,
	GapTribalKnowledge,
	GapDependencyRisk,
	GapStaleness,
	GapContradiction,
	GapOnboardingBarrier,
}

// Gap is a detected deficiency in organizational knowledge. ContentHash is
// derived from (type, related entities, normalized description) and is the
// deduplication key: an unchanged graph must yield identical hashes.
type Gap struct {
	ID              string    `json:"id" db:"id"`
	Type            GapType   `json:"type" db:"type"`
	Severity        float64   `json:"severity" db:"severity"`
	Description     string    `json:"description" db:"description"`
	Evidence        []string  `json:"evidence"`
	RelatedEntities []string  `json:"related_entities"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	ContentHash     string    `json:"content_hash" db:"content_hash"`
}

// GeneratedQuestion is a natural-language question derived from one gap.
// A gap yields at most one question.
type GeneratedQuestion struct {
	ID             string   `json:"id" db:"id"`
	GapID          string   `json:"gap_id" db:"gap_id"`
	Text           string   `json:"text" db:"text"`
	TargetEntities []string `json:"target_entities"`
}

// ScoreBreakdown records the normalized terms behind a priority score.
type ScoreBreakdown struct {
	Risk          float64 `json:"risk"`
	Criticality   float64 `json:"criticality"`
	Answerability float64 `json:"answerability"`
	Interest      float64 `json:"interest"`
}

// PrioritizedQuestion assigns a total-order rank to a generated question.
type PrioritizedQuestion struct {
	QuestionID     string         `json:"question_id"`
	Score          float64        `json:"score"`
	Rank           int            `json:"rank"`
	ScoreBreakdown ScoreBreakdown `json:"score_breakdown"`
}

// FeedbackType classifies a user response to a question.
type FeedbackType string

const (
	FeedbackAnswered  FeedbackType = "answered"
	FeedbackSkipped   FeedbackType = "skipped"
	FeedbackDismissed FeedbackType = "dismissed"
)

// FeedbackEvent is an append-only record of a user response. Replaying a
// tenant's events per gap type in chronological order yields the interest
// weight used by prioritization.
type FeedbackEvent struct {
	ID         string       `json:"id" db:"id"`
	TenantID   string       `json:"tenant_id" db:"tenant_id"`
	QuestionID string       `json:"question_id" db:"question_id"`
	GapType    GapType      `json:"gap_type" db:"gap_type"`
	Type       FeedbackType `json:"type" db:"type"`
	Value      float64      `json:"value" db:"value"`
	RecordedAt time.Time    `json:"recorded_at" db:"recorded_at"`
}

// RunState is a stage in the orchestrator state machine.
type RunState string

const (
	RunInit       RunState = "INIT"
	RunExtract    RunState = "EXTRACT"
	RunGraph      RunState = "GRAPH"
	RunAnalyze    RunState = "ANALYZE"
	RunGenerate   RunState = "GENERATE"
	RunPrioritize RunState = "PRIORITIZE"
	RunDone       RunState = "DONE"
	RunFailed     RunState = "FAILED"
)

// Progress is a monotonically increasing progress report for a run.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// RunRecord tracks one orchestrator run for status queries.
type RunRecord struct {
	ID         string     `json:"id" db:"id"`
	TenantID   string     `json:"tenant_id" db:"tenant_id"`
	ProjectID  string     `json:"project_id" db:"project_id"`
	State      RunState   `json:"state" db:"state"`
	Progress   Progress   `json:"progress"`
	Degraded   bool       `json:"degraded" db:"degraded"`
	Error      string     `json:"error,omitempty" db:"error"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// RunStats aggregates per-stage counters for a completed run.
type RunStats struct {
	DocumentCount     int           `json:"document_count"`
	SkippedDocuments  int           `json:"skipped_documents"`
	EntityCount       int           `json:"entity_count"`
	RelationshipCount int           `json:"relationship_count"`
	GapCount          int           `json:"gap_count"`
	QuestionCount     int           `json:"question_count"`
	Duration          time.Duration `json:"duration"`
}

// GapAnalysisResult is the aggregate output of one orchestrator run.
type GapAnalysisResult struct {
	RunID           string                `json:"run_id"`
	TenantID        string                `json:"tenant_id"`
	ProjectID       string                `json:"project_id"`
	Gaps            []Gap                 `json:"gaps"`
	Questions       []GeneratedQuestion   `json:"questions"`
	Prioritized     []PrioritizedQuestion `json:"questions_prioritized"`
	CategoriesFound []GapType             `json:"categories_found"`
	Stats           RunStats              `json:"stats"`
	Degraded        bool                  `json:"degraded"`
	CompletedAt     time.Time             `json:"completed_at"`
}
