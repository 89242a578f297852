package models

import "time"

// ExperimentAssignment pins a user to one variant of an experiment.
// Immutable once created - repeated assignment never re-buckets.
type ExperimentAssignment struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	ExperimentKey string    `json:"experiment_key"`
	Variant       string    `json:"variant"`
	AssignedAt    time.Time `json:"assigned_at"`
}

// Telemetry event types written by the core services.
const (
	EventSurface       = "surface"
	EventQuizStarted   = "quiz_started"
	EventQuizSubmitted = "quiz_submitted"
	EventQuizReviewed  = "quiz_reviewed"
)

// Event types the HTTP boundary logs on behalf of the client.
var BoundaryEventTypes = []string{
	"quiz_question_flagged",
	"quiz_question_skipped",
	"quiz_time_expired",
	"quiz_feedback_viewed",
}

// RecommendationEvent is one row of the append-only telemetry stream.
// Rows are never updated or deleted.
type RecommendationEvent struct {
	ID            int64          `json:"id"`
	PublicID      string         `json:"public_id"`
	UserID        int64          `json:"user_id"`
	ItemID        *int64         `json:"item_id,omitempty"`
	ExperimentKey string         `json:"experiment_key"`
	Variant       string         `json:"variant"`
	EventType     string         `json:"event_type"`
	ScoreBefore   *float64       `json:"score_before,omitempty"`
	ScoreAfter    *float64       `json:"score_after,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Recommendation is the API shape of one surfaced practice item.
type Recommendation struct {
	ID               int64          `json:"id"`
	ObjectiveCode    string         `json:"objective_code"`
	Stem             string         `json:"stem"`
	Type             string         `json:"type"`
	Rubric           *Rubric        `json:"rubric,omitempty"`
	Meta             map[string]any `json:"meta,omitempty"`
	Priority         float64        `json:"priority"`
	RecommendedLevel string         `json:"recommended_level"`
	Reason           string         `json:"reason"`
}
