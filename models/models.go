package models

import "time"

// User represents a platform account. Authentication lives upstream; the
// API only needs identity and role.
type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"` // student, teacher, admin
	CreatedAt time.Time `json:"created_at"`
}

// LearningObjective is a discrete skill or topic, identified by a unique code.
type LearningObjective struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Standards   []string  `json:"standards,omitempty"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Rubric describes how free-response answers to an item are graded.
type Rubric struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Criteria []string `json:"criteria,omitempty"`
	Levels   []string `json:"levels,omitempty"`
}

// Item is a question. Type is MCQ (auto-scored) or SAQ (human-graded).
// ObjectiveCode is denormalized from the linked learning objective.
type Item struct {
	ID                  int64          `json:"id"`
	LearningObjectiveID *int64         `json:"learning_objective_id,omitempty"`
	ObjectiveCode       string         `json:"objective_code"`
	RubricID            *int64         `json:"rubric_id,omitempty"`
	Stem                string         `json:"stem"`
	Type                string         `json:"type"` // MCQ or SAQ
	Options             []string       `json:"options,omitempty"`
	Answer              string         `json:"answer"`
	Rationale           string         `json:"rationale,omitempty"`
	Meta                map[string]any `json:"meta,omitempty"`
	IsQuizEligible      bool           `json:"is_quiz_eligible"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Difficulty reads the optional difficulty tag out of the item meta.
func (i *Item) Difficulty() string {
	if i.Meta == nil {
		return ""
	}
	if d, ok := i.Meta["difficulty"].(string); ok {
		return d
	}
	return ""
}

// Mastery is a user's rolling proficiency on one objective. Score stays in
// [0,100]; Level is derived from the score.
type Mastery struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	ObjectiveCode string     `json:"objective_code"`
	Level         string     `json:"level"`
	Score         float64    `json:"score"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Attempt is a free-response submission against an item. Score is null
// until graded.
type Attempt struct {
	ID            int64          `json:"id"`
	UserID        int64          `json:"user_id"`
	ItemID        int64          `json:"item_id"`
	ObjectiveCode string         `json:"objective_code,omitempty"`
	Response      string         `json:"response"`
	Score         *float64       `json:"score,omitempty"`
	Meta          map[string]any `json:"meta,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Feedback is the moderation record attached to an attempt; reflections
// hang off it and feed back into mastery scoring.
type Feedback struct {
	ID        int64     `json:"id"`
	AttemptID int64     `json:"attempt_id"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type FeedbackReflection struct {
	ID         int64     `json:"id"`
	FeedbackID int64     `json:"feedback_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// AttemptRequest records a new free-response attempt.
type AttemptRequest struct {
	ItemID   int64          `json:"item_id"`
	Response string         `json:"response"`
	Score    *float64       `json:"score,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// ReflectionRequest adds a reflection to an attempt's feedback trail.
type ReflectionRequest struct {
	Content string `json:"content"`
}

// Import types
type ImportRequest struct {
	Objectives []ObjectiveImport `json:"objectives"`
	Items      []ItemImport      `json:"items"`
}

type ObjectiveImport struct {
	Code        string   `json:"code"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Standards   []string `json:"standards,omitempty"`
	Version     int      `json:"version,omitempty"`
}

type ItemImport struct {
	ObjectiveCode  string         `json:"objective_code"`
	Stem           string         `json:"stem"`
	Type           string         `json:"type"`
	Options        []string       `json:"options,omitempty"`
	Answer         string         `json:"answer"`
	Rationale      string         `json:"rationale,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
	IsQuizEligible bool           `json:"is_quiz_eligible"`
}

type ImportResult struct {
	TotalObjectives    int      `json:"total_objectives"`
	ImportedObjectives int      `json:"imported_objectives"`
	TotalItems         int      `json:"total_items"`
	ImportedItems      int      `json:"imported_items"`
	Errors             []string `json:"errors"`
	TimeTaken          string   `json:"time_taken"`
}
