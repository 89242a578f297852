package quiz

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/edustack/practice-api/adaptive"
	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/utils"
)

// MasteryDispatcher hands committed outbox entries to whatever applies
// them: a job queue when one is configured, otherwise the inline fallback.
type MasteryDispatcher interface {
	DispatchMasteryRecompute(entry db.OutboxEntry) error
}

// SessionService orchestrates the quiz lifecycle: start, answer, submit,
// review. Sessions move draft -> active -> submitted; submitted is terminal.
type SessionService struct {
	db         *db.DB
	engine     *adaptive.PracticeEngine
	scoring    *adaptive.MasteryScoringService
	dispatcher MasteryDispatcher
	now        func() time.Time
}

func NewSessionService(database *db.DB, engine *adaptive.PracticeEngine, scoring *adaptive.MasteryScoringService) *SessionService {
	return &SessionService{
		db:      database,
		engine:  engine,
		scoring: scoring,
		now:     time.Now,
	}
}

// SetDispatcher routes post-commit mastery recomputes through a job queue.
// Without one, recomputes run inline after the submission commits.
func (s *SessionService) SetDispatcher(d MasteryDispatcher) {
	s.dispatcher = d
}

func (s *SessionService) Start(userID int64, req models.StartQuizRequest) (*models.QuizSessionDetail, error) {
	size := utils.ClampInt(req.Size, 1, 20)
	objectiveCodes := utils.UniqueStrings(req.Objectives)

	bundle, err := s.engine.Bundle(userID, size, objectiveCodes, true)
	if err != nil {
		return nil, err
	}
	if len(bundle.Items) == 0 {
		return nil, newValidationError("objectives", "No quiz questions available for the selected options.")
	}

	settings := models.QuizSettings{
		RequestedSize:   size,
		Objectives:      objectiveCodes,
		TimerMinutes:    req.TimerMinutes,
		FeedbackVariant: assignFeedbackVariant(userID),
	}
	if settings.Objectives == nil {
		settings.Objectives = []string{}
	}

	utils.LogQuiz("Starting session for user %d: %d items, variant %s, feedback %s",
		userID, len(bundle.Items), bundle.Assignment.Variant, settings.FeedbackVariant)

	var sessionID int64
	err = s.db.WithTx(func(tx *sql.Tx) error {
		session, err := s.db.CreateQuizSession(tx, userID, bundle.Assignment.Variant, settings, s.now())
		if err != nil {
			return err
		}
		sessionID = session.ID

		for index, entry := range bundle.Items {
			if err := s.db.CreateQuizSessionItem(tx, session.ID, entry.Item.ID, index+1); err != nil {
				return err
			}
		}

		return s.db.InsertEvent(tx, &models.RecommendationEvent{
			UserID:        userID,
			ExperimentKey: bundle.Assignment.ExperimentKey,
			Variant:       bundle.Assignment.Variant,
			EventType:     models.EventQuizStarted,
			OccurredAt:    s.now(),
			Meta: map[string]any{
				"quiz_session_id": session.ID,
				"objective_codes": settings.Objectives,
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("start quiz session: %w", err)
	}

	return s.db.GetSessionDetail(sessionID)
}

// assignFeedbackVariant buckets feedback timing 50/50 by user-ID parity.
// This deliberately does not go through ExperimentManager: the two
// mechanisms have diverged in production and unifying them would rewrite
// assignment history for live sessions.
func assignFeedbackVariant(userID int64) string {
	if userID%2 == 0 {
		return "immediate"
	}
	return "delayed"
}

func (s *SessionService) SaveResponse(sessionID, sessionItemID int64, response any, flagged *bool) (*models.QuizSessionItem, error) {
	session, err := s.db.GetQuizSessionByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusSubmitted {
		return nil, ErrSessionSubmitted
	}

	if _, err := s.db.GetSessionItem(s.db, sessionID, sessionItemID); err != nil {
		return nil, err
	}

	payload := normalizeResponse(response)

	status := models.ItemStatusPending
	if payload != nil {
		status = models.ItemStatusAnswered
	}

	if err := s.db.UpdateSessionItemResponse(sessionItemID, payload, status, flagged); err != nil {
		return nil, err
	}

	return s.db.GetSessionItem(s.db, sessionID, sessionItemID)
}

// normalizeResponse wraps a scalar response as {"value": ...} for uniform
// storage. Objects already carrying a value key pass through unchanged.
func normalizeResponse(response any) map[string]any {
	if response == nil {
		return nil
	}
	if m, ok := response.(map[string]any); ok {
		if _, hasValue := m["value"]; hasValue {
			return m
		}
		return map[string]any{"value": m}
	}
	return map[string]any{"value": response}
}

// extractResponseValue is the read-side counterpart of normalizeResponse.
func extractResponseValue(response map[string]any) any {
	if response == nil {
		return nil
	}
	if value, ok := response["value"]; ok {
		return value
	}
	return response
}

type objectiveBucket struct {
	sum   float64
	count int
}

// Submit grades the session. Idempotent: a second call returns the current
// state without re-grading. Mastery recomputes run after the scoring
// transaction commits, so a recompute failure never rolls back the
// submitted quiz.
func (s *SessionService) Submit(sessionID int64) (*models.QuizSessionDetail, error) {
	detail, err := s.db.GetSessionDetail(sessionID)
	if err != nil {
		return nil, err
	}
	if detail.Session.Status == models.SessionStatusSubmitted {
		utils.LogQuiz("Session %d already submitted, returning current state", sessionID)
		return detail, nil
	}

	session := detail.Session
	buckets := make(map[string]*objectiveBucket)
	var outboxIDs []int64

	err = s.db.WithTx(func(tx *sql.Tx) error {
		var correct, incorrect, pendingReview, scoredCount int
		var scoredSum float64

		for _, item := range detail.Items {
			content := item.Item
			responseValue := extractResponseValue(item.Response)

			feedback := map[string]any{
				"correct_answer": content.Answer,
				"explanation":    content.Rationale,
			}

			if content.Type == "MCQ" {
				isCorrect := responseValue != nil &&
					strings.EqualFold(fmt.Sprintf("%v", responseValue), content.Answer)

				score := 0.0
				status := models.ItemStatusIncorrect
				if isCorrect {
					score = 100.0
					status = models.ItemStatusCorrect
					correct++
				} else {
					incorrect++
				}

				if err := s.db.GradeSessionItem(tx, item.ID, &score, status, feedback); err != nil {
					return err
				}

				scoredSum += score
				scoredCount++

				bucket := buckets[content.ObjectiveCode]
				if bucket == nil {
					bucket = &objectiveBucket{}
					buckets[content.ObjectiveCode] = bucket
				}
				bucket.sum += score
				bucket.count++
			} else {
				status := models.ItemStatusPending
				if responseValue != nil {
					status = models.ItemStatusPendingReview
					pendingReview++
				}
				if err := s.db.GradeSessionItem(tx, item.ID, nil, status, feedback); err != nil {
					return err
				}
			}
		}

		var average *float64
		if scoredCount > 0 {
			avg := utils.Round2(scoredSum / float64(scoredCount))
			average = &avg
		}

		submittedAt := s.now()
		if err := s.db.MarkSessionSubmitted(tx, sessionID, submittedAt, average, correct, incorrect, pendingReview); err != nil {
			return err
		}

		for code, bucket := range buckets {
			if bucket.count == 0 {
				continue
			}
			bucketAverage := utils.Round2(bucket.sum / float64(bucket.count))
			outboxID, err := s.db.InsertOutboxEntry(tx, sessionID, session.UserID, code, bucketAverage)
			if err != nil {
				return err
			}
			outboxIDs = append(outboxIDs, outboxID)
		}

		return s.db.InsertEvent(tx, &models.RecommendationEvent{
			UserID:        session.UserID,
			ExperimentKey: adaptive.ExperimentKey,
			Variant:       session.ExperimentVariant,
			EventType:     models.EventQuizSubmitted,
			OccurredAt:    submittedAt,
			Meta: map[string]any{
				"quiz_session_id": sessionID,
				"average_score":   average,
				"correct":         correct,
				"incorrect":       incorrect,
				"pending_review":  pendingReview,
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("submit quiz session: %w", err)
	}

	s.applyMasteryOutbox(outboxIDs)

	return s.db.GetSessionDetail(sessionID)
}

// applyMasteryOutbox runs after the submission commit. Failures are logged
// for the reconciliation sweep, never surfaced: the submitted quiz stands
// even when mastery lags behind.
func (s *SessionService) applyMasteryOutbox(outboxIDs []int64) {
	for _, id := range outboxIDs {
		entry, err := s.db.GetOutboxEntry(id)
		if err != nil {
			utils.LogError("Failed to load mastery outbox entry %d: %v", id, err)
			continue
		}

		if s.dispatcher != nil {
			if err := s.dispatcher.DispatchMasteryRecompute(*entry); err != nil {
				utils.LogError("Failed to dispatch mastery recompute for outbox %d (objective %s): %v",
					id, entry.ObjectiveCode, err)
			}
			continue
		}

		if err := s.ApplyOutboxEntry(*entry); err != nil {
			utils.LogError("Inline mastery recompute failed for outbox %d (objective %s): %v",
				id, entry.ObjectiveCode, err)
		}
	}
}

// ApplyOutboxEntry performs one mastery recompute and marks the entry
// applied. Shared by the inline fallback and the job handler.
func (s *SessionService) ApplyOutboxEntry(entry db.OutboxEntry) error {
	if err := s.db.IncrementOutboxAttempts(entry.ID); err != nil {
		return err
	}
	if err := s.scoring.UpdateFromQuiz(entry.UserID, entry.ObjectiveCode, entry.Average); err != nil {
		return err
	}
	return s.db.MarkOutboxApplied(entry.ID, s.now())
}

// RecalculateSummary re-derives the session aggregates from its item rows,
// used after a teacher re-scores items during review.
func (s *SessionService) RecalculateSummary(sessionID int64) error {
	average, correct, incorrect, pendingReview, err := s.db.ComputeSessionSummary(s.db, sessionID)
	if err != nil {
		return err
	}
	return s.db.UpdateSessionSummary(s.db, sessionID, average, correct, incorrect, pendingReview)
}

// LogTelemetryEvent appends a boundary-originated event, merging the
// session's feedback variant into the event meta.
func (s *SessionService) LogTelemetryEvent(sessionID int64, eventType string, meta map[string]any) error {
	session, err := s.db.GetQuizSessionByID(sessionID)
	if err != nil {
		return err
	}

	merged := map[string]any{
		"quiz_session_id":  sessionID,
		"feedback_variant": session.Settings.FeedbackVariant,
	}
	for k, v := range meta {
		merged[k] = v
	}

	var itemID *int64
	if raw, ok := merged["item_id"]; ok {
		switch v := raw.(type) {
		case float64:
			id := int64(v)
			itemID = &id
		case int64:
			itemID = &v
		case int:
			id := int64(v)
			itemID = &id
		}
	}

	return s.db.InsertEvent(s.db, &models.RecommendationEvent{
		UserID:        session.UserID,
		ItemID:        itemID,
		ExperimentKey: adaptive.ExperimentKey,
		Variant:       session.ExperimentVariant,
		EventType:     eventType,
		OccurredAt:    s.now(),
		Meta:          merged,
	})
}
