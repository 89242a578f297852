package models

import "time"

// Quiz session lifecycle: draft -> active -> submitted. Submitted is terminal.
const (
	SessionStatusDraft     = "draft"
	SessionStatusActive    = "active"
	SessionStatusSubmitted = "submitted"
)

// Session item statuses.
const (
	ItemStatusPending       = "pending"
	ItemStatusAnswered      = "answered"
	ItemStatusPendingReview = "pending_review"
	ItemStatusCorrect       = "correct"
	ItemStatusIncorrect     = "incorrect"
)

// QuizSettings captures the options a session was started with. Extra is a
// forward-compatibility bag for settings the API does not model yet.
type QuizSettings struct {
	RequestedSize   int            `json:"requested_size"`
	Objectives      []string       `json:"objectives"`
	TimerMinutes    *int           `json:"timer_minutes,omitempty"`
	FeedbackVariant string         `json:"feedback_variant,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

type QuizSession struct {
	ID                 int64        `json:"id"`
	PublicID           string       `json:"public_id"`
	UserID             int64        `json:"user_id"`
	ExperimentVariant  string       `json:"experiment_variant"`
	Status             string       `json:"status"`
	Settings           QuizSettings `json:"settings"`
	StartedAt          time.Time    `json:"started_at"`
	SubmittedAt        *time.Time   `json:"submitted_at,omitempty"`
	AverageScore       *float64     `json:"average_score,omitempty"`
	CorrectCount       int          `json:"correct_count"`
	IncorrectCount     int          `json:"incorrect_count"`
	PendingReviewCount int          `json:"pending_review_count"`
}

// QuizSessionItem embeds one item in a session at a fixed 1-based position.
// Response is always stored wrapped as {"value": ...}.
type QuizSessionItem struct {
	ID            int64          `json:"id"`
	QuizSessionID int64          `json:"quiz_session_id"`
	ItemID        int64          `json:"item_id"`
	Position      int            `json:"position"`
	Response      map[string]any `json:"response,omitempty"`
	Score         *float64       `json:"score,omitempty"`
	Status        string         `json:"status"`
	Feedback      map[string]any `json:"feedback,omitempty"`
	Flagged       bool           `json:"flagged"`
}

// QuizSessionItemDetail pairs a session item with its question content.
type QuizSessionItemDetail struct {
	QuizSessionItem
	Item           Item   `json:"item"`
	ObjectiveTitle string `json:"objective_title,omitempty"`
}

// QuizSessionDetail is the full session payload returned to clients.
type QuizSessionDetail struct {
	Session QuizSession             `json:"session"`
	Items   []QuizSessionItemDetail `json:"items"`
}

// QuizReview is the teacher review record, one per session.
type QuizReview struct {
	ID            int64      `json:"id"`
	QuizSessionID int64      `json:"quiz_session_id"`
	TeacherID     int64      `json:"teacher_id"`
	Status        string     `json:"status"` // pending, reviewed, approved
	Notes         string     `json:"notes,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
}

// StartQuizRequest starts a new quiz session.
type StartQuizRequest struct {
	Size         int      `json:"size"`
	Objectives   []string `json:"objectives,omitempty"`
	TimerMinutes *int     `json:"timer_minutes,omitempty"`
}

// SaveResponseRequest records an answer to one session item.
type SaveResponseRequest struct {
	Response any   `json:"response"`
	Flagged  *bool `json:"flagged,omitempty"`
}

// ReviewRequest is a teacher's review of a submitted session.
type ReviewRequest struct {
	Status      string       `json:"status"` // pending, reviewed, approved
	Notes       string       `json:"notes,omitempty"`
	ItemReviews []ItemReview `json:"item_reviews,omitempty"`
}

type ItemReview struct {
	SessionItemID int64    `json:"session_item_id"`
	Score         *float64 `json:"score,omitempty"`
	FeedbackNotes string   `json:"feedback_notes,omitempty"`
}

// TelemetryRequest logs a client-side quiz interaction event.
type TelemetryRequest struct {
	EventType string         `json:"event_type"`
	Meta      map[string]any `json:"meta,omitempty"`
}
