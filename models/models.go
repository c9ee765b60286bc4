package models

import (
	"errors"
	"time"
)

// ErrMeetingNotFound is returned when a meeting record is not found
var ErrMeetingNotFound = errors.New("meeting not found")

// ErrJobNotFound is returned when a job is not found
var ErrJobNotFound = errors.New("job not found")

// Intent labels attached to transcript chunks. Intent is a ranking signal
// for extraction, never a hard filter.
type Intent string

const (
	IntentDecision    Intent = "decision"
	IntentActionItem  Intent = "action_item"
	IntentRisk        Intent = "risk"
	IntentQuestion    Intent = "question"
	IntentInformation Intent = "information"
	IntentDiscussion  Intent = "discussion"
)

// ExtractionMethod records how an item's provenance was established.
type ExtractionMethod string

const (
	MethodSemantic ExtractionMethod = "semantic"
	MethodKeyword  ExtractionMethod = "keyword"
)

// Provenance links an extracted item back to its supporting transcript segments.
type Provenance struct {
	SourceSegmentIDs []string         `json:"source_segment_ids"`
	SimilarityScores []float64        `json:"similarity_scores"`
	SourceSupport    float64          `json:"source_support"`
	Method           ExtractionMethod `json:"extraction_method"`
}

// Decision is a point of agreement or resolution reached in the meeting.
type Decision struct {
	ID                     string     `json:"id"`
	Description            string     `json:"description"`
	Category               string     `json:"category"`
	Rationale              string     `json:"rationale,omitempty"`
	Participants           []string   `json:"participants,omitempty"`
	MadeBy                 string     `json:"made_by,omitempty"`
	Confidence             float64    `json:"confidence"`
	Provenance             Provenance `json:"provenance"`
	IsValid                bool       `json:"is_valid"`
	PotentialHallucination bool       `json:"potential_hallucination"`
}

// ActionItem is a task with an owner extracted from the meeting.
type ActionItem struct {
	ID                     string     `json:"id"`
	Description            string     `json:"description"`
	Owner                  string     `json:"owner,omitempty"`
	DueDate                string     `json:"due_date,omitempty"`
	Priority               string     `json:"priority,omitempty"`
	Confidence             float64    `json:"confidence"`
	Provenance             Provenance `json:"provenance"`
	IsValid                bool       `json:"is_valid"`
	PotentialHallucination bool       `json:"potential_hallucination"`
}

// Risk is a concern or blocker raised in the meeting.
type Risk struct {
	ID                     string     `json:"id"`
	Description            string     `json:"description"`
	Category               string     `json:"category"`
	Severity               string     `json:"severity,omitempty"`
	MentionedBy            string     `json:"mentioned_by,omitempty"`
	Confidence             float64    `json:"confidence"`
	Provenance             Provenance `json:"provenance"`
	IsValid                bool       `json:"is_valid"`
	PotentialHallucination bool       `json:"potential_hallucination"`
}

// QuantFact captures a quantitative statement (numbers, percentages,
// money, "from X to Y" changes) for the executive summary.
type QuantFact struct {
	Text      string `json:"text"`
	Kind      string `json:"kind"` // number, percentage, money, change
	SegmentID string `json:"segment_id,omitempty"`
}

// SummaryLevel is one layer of the hierarchical summary.
type SummaryLevel struct {
	Level    int      `json:"level"`
	Text     string   `json:"text"`
	ChunkIDs []string `json:"chunk_ids,omitempty"`
}

// Summary holds the hierarchical summary produced for a meeting.
type Summary struct {
	Executive string         `json:"executive"`
	Levels    []SummaryLevel `json:"levels,omitempty"`
}

// QualityMetrics captures the quality gate's view of a record.
type QualityMetrics struct {
	RedundancyRatio float64 `json:"redundancy_ratio"`
	DecisionCount   int     `json:"decision_count"`
	ActionCount     int     `json:"action_count"`
	RiskCount       int     `json:"risk_count"`
	MeanConfidence  float64 `json:"mean_confidence"`
	SummaryTokens   int     `json:"summary_tokens"`
	UsedFallback    bool    `json:"used_fallback"`
	QualityWarning  bool    `json:"quality_warning"`
}

// PreprocessMetadata reports what the cleaner did to the transcript.
type PreprocessMetadata struct {
	OriginalSegments   int     `json:"original_segments"`
	ProcessedSegments  int     `json:"processed_segments"`
	SmallTalkRemoved   int     `json:"small_talk_removed"`
	RepetitionsRemoved int     `json:"repetitions_removed"`
	TurnsMerged        int     `json:"turns_merged"`
	SpeakersNormalized int     `json:"speakers_normalized"`
	TopicBoundaries    int     `json:"topic_boundaries"`
	Chunks             int     `json:"chunks"`
	ReductionRatio     float64 `json:"reduction_ratio"`
	EmbeddingDegraded  bool    `json:"embedding_degraded,omitempty"`
}

// ProvenanceStats summarizes validation outcomes across a record.
type ProvenanceStats struct {
	TotalItems       int     `json:"total_items"`
	ValidatedItems   int     `json:"validated_items"`
	FlaggedItems     int     `json:"flagged_items"`
	AverageSupport   float64 `json:"average_support"`
	SemanticItems    int     `json:"semantic_items"`
	KeywordItems     int     `json:"keyword_items"`
	ValidatedPercent float64 `json:"validated_percent"`
}

// MeetingRecord is the durable output of processing one transcript.
type MeetingRecord struct {
	ID              string             `json:"id"`
	JobID           string             `json:"job_id"`
	Title           string             `json:"title,omitempty"`
	Speakers        []string           `json:"speakers"`
	Summary         Summary            `json:"summary"`
	Decisions       []Decision         `json:"decisions"`
	ActionItems     []ActionItem       `json:"action_items"`
	Risks           []Risk             `json:"risks"`
	QuantFacts      []QuantFact        `json:"quant_facts,omitempty"`
	Quality         QualityMetrics     `json:"quality_metrics"`
	Preprocess      PreprocessMetadata `json:"preprocessing_metadata"`
	ProvenanceStats ProvenanceStats    `json:"provenance_stats"`
	ModelsUsed      []string           `json:"models_used,omitempty"`
	TokensUsed      int64              `json:"tokens_used"`
	CostEstimate    float64            `json:"cost_estimate"`
	ProcessingTime  time.Duration      `json:"processing_time"`
	CreatedAt       time.Time          `json:"created_at"`
}

// ItemCount returns the number of extracted items across all kinds.
func (r *MeetingRecord) ItemCount() int {
	return len(r.Decisions) + len(r.ActionItems) + len(r.Risks)
}
