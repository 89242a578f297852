package quiz

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/edustack/practice-api/adaptive"
	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/utils"
)

// reviewThreshold reclassifies a manually scored item as correct.
const reviewThreshold = 70.0

// Review applies a teacher's review: upserts the review record, scores
// pending-review items, recalculates the session summary and logs the
// review event. Item reviews only apply to items awaiting review.
func (s *SessionService) Review(teacherID, sessionID int64, req models.ReviewRequest) (*models.QuizReview, error) {
	switch req.Status {
	case "pending", "reviewed", "approved":
	default:
		return nil, newValidationError("status", fmt.Sprintf("invalid review status '%s'", req.Status))
	}

	session, err := s.db.GetQuizSessionByID(sessionID)
	if err != nil {
		return nil, err
	}

	utils.LogQuiz("Reviewing session %d: teacher %d, status %s, %d item reviews",
		sessionID, teacherID, req.Status, len(req.ItemReviews))

	err = s.db.WithTx(func(tx *sql.Tx) error {
		// reviewed_at is only stamped once the review actually happened
		var reviewedAt *time.Time
		if req.Status == "reviewed" || req.Status == "approved" {
			at := s.now()
			reviewedAt = &at
		}
		if err := s.db.UpsertQuizReview(tx, sessionID, teacherID, req.Status, req.Notes, reviewedAt); err != nil {
			return err
		}

		for _, itemReview := range req.ItemReviews {
			sessionItem, err := s.db.GetSessionItem(tx, sessionID, itemReview.SessionItemID)
			if err == sql.ErrNoRows {
				utils.LogQuiz("Item review for unknown session item %d, skipping", itemReview.SessionItemID)
				continue
			}
			if err != nil {
				return err
			}
			if sessionItem.Status != models.ItemStatusPendingReview {
				continue
			}

			feedback := sessionItem.Feedback
			if feedback == nil {
				feedback = map[string]any{}
			}
			if itemReview.FeedbackNotes != "" {
				feedback["teacher_notes"] = itemReview.FeedbackNotes
			}

			score := sessionItem.Score
			status := sessionItem.Status
			if itemReview.Score != nil {
				clamped := utils.ClampFloat(*itemReview.Score, 0, 100)
				score = &clamped
				if clamped >= reviewThreshold {
					status = models.ItemStatusCorrect
				} else {
					status = models.ItemStatusIncorrect
				}
			}

			if err := s.db.GradeSessionItem(tx, sessionItem.ID, score, status, feedback); err != nil {
				return err
			}
		}

		average, correct, incorrect, pendingReview, err := s.db.ComputeSessionSummary(tx, sessionID)
		if err != nil {
			return err
		}
		return s.db.UpdateSessionSummary(tx, sessionID, average, correct, incorrect, pendingReview)
	})
	if err != nil {
		return nil, fmt.Errorf("review quiz session: %w", err)
	}

	if err := s.logReviewedEvent(session, teacherID); err != nil {
		utils.LogError("Failed to log review event for session %d: %v", sessionID, err)
	}

	return s.db.GetQuizReview(sessionID)
}

func (s *SessionService) logReviewedEvent(session *models.QuizSession, teacherID int64) error {
	current, err := s.db.GetQuizSessionByID(session.ID)
	if err != nil {
		return err
	}

	return s.db.InsertEvent(s.db, &models.RecommendationEvent{
		UserID:        session.UserID,
		ExperimentKey: adaptive.ExperimentKey,
		Variant:       session.ExperimentVariant,
		EventType:     models.EventQuizReviewed,
		OccurredAt:    s.now(),
		Meta: map[string]any{
			"quiz_session_id": session.ID,
			"teacher_id":      teacherID,
			"average_score":   current.AverageScore,
		},
	})
}
