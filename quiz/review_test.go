package quiz

import (
	"errors"
	"testing"

	"github.com/edustack/practice-api/models"
)

func submitSessionForReview(t *testing.T, env *testEnv, userID int64) *models.QuizSessionDetail {
	t.Helper()

	env.seedObjective(t, "hist.1")
	env.seedItem(t, "hist.1", "MCQ", "1789")
	env.seedItem(t, "hist.1", "SAQ", "causes of the revolution")
	env.seedItem(t, "hist.1", "SAQ", "consequences of the revolution")

	detail, err := env.sessions.Start(userID, models.StartQuizRequest{Size: 5})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for _, item := range detail.Items {
		response := "a considered short answer"
		if item.Item.Type == "MCQ" {
			response = "1789"
		}
		if _, err := env.sessions.SaveResponse(detail.Session.ID, item.QuizSessionItem.ID, response, nil); err != nil {
			t.Fatalf("SaveResponse failed: %v", err)
		}
	}

	submitted, err := env.sessions.Submit(detail.Session.ID)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return submitted
}

func TestReviewScoresPendingItems(t *testing.T) {
	env := newTestEnv(t)
	studentID := env.createUser(t, "student")
	teacherID := env.createUser(t, "teacher")

	submitted := submitSessionForReview(t, env, studentID)
	sessionID := submitted.Session.ID

	var itemReviews []models.ItemReview
	scores := []float64{72, 65}
	i := 0
	for _, item := range submitted.Items {
		if item.Status != models.ItemStatusPendingReview {
			continue
		}
		score := scores[i]
		itemReviews = append(itemReviews, models.ItemReview{
			SessionItemID: item.QuizSessionItem.ID,
			Score:         &score,
			FeedbackNotes: "solid reasoning",
		})
		i++
	}
	if len(itemReviews) != 2 {
		t.Fatalf("expected 2 pending items, got %d", len(itemReviews))
	}

	review, err := env.sessions.Review(teacherID, sessionID, models.ReviewRequest{
		Status:      "reviewed",
		Notes:       "good effort overall",
		ItemReviews: itemReviews,
	})
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}

	if review.Status != "reviewed" {
		t.Errorf("review status = %q, want reviewed", review.Status)
	}
	if review.ReviewedAt == nil {
		t.Error("expected reviewed_at to be stamped")
	}
	if review.TeacherID != teacherID {
		t.Errorf("review teacher = %d, want %d", review.TeacherID, teacherID)
	}

	detail, err := env.db.GetSessionDetail(sessionID)
	if err != nil {
		t.Fatalf("GetSessionDetail failed: %v", err)
	}

	// A 72 clears the correctness threshold, a 65 does not.
	statuses := map[float64]string{72: models.ItemStatusCorrect, 65: models.ItemStatusIncorrect}
	for _, item := range detail.Items {
		if item.Item.Type != "SAQ" {
			continue
		}
		if item.Score == nil {
			t.Fatalf("session item %d still unscored after review", item.QuizSessionItem.ID)
		}
		if want := statuses[*item.Score]; item.Status != want {
			t.Errorf("item scored %v has status %q, want %q", *item.Score, item.Status, want)
		}
		if item.Feedback["teacher_notes"] != "solid reasoning" {
			t.Errorf("teacher notes not merged into feedback: %v", item.Feedback)
		}
	}

	// Summary now covers all three scored items: (100 + 72 + 65) / 3 = 79.
	session := detail.Session
	if session.AverageScore == nil || *session.AverageScore != 79 {
		t.Errorf("average = %v, want 79", session.AverageScore)
	}
	if session.CorrectCount != 2 || session.IncorrectCount != 1 || session.PendingReviewCount != 0 {
		t.Errorf("counts = %d/%d/%d, want 2/1/0",
			session.CorrectCount, session.IncorrectCount, session.PendingReviewCount)
	}
}

func TestReviewRejectsUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	studentID := env.createUser(t, "student")
	teacherID := env.createUser(t, "teacher")

	submitted := submitSessionForReview(t, env, studentID)

	_, err := env.sessions.Review(teacherID, submitted.Session.ID, models.ReviewRequest{Status: "done"})

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if validationErr.Field != "status" {
		t.Errorf("validation field = %q, want status", validationErr.Field)
	}
}

func TestReviewSkipsAlreadyGradedItems(t *testing.T) {
	env := newTestEnv(t)
	studentID := env.createUser(t, "student")
	teacherID := env.createUser(t, "teacher")

	submitted := submitSessionForReview(t, env, studentID)
	sessionID := submitted.Session.ID

	// Target the auto-graded MCQ: the review must leave it untouched.
	var mcqItemID int64
	for _, item := range submitted.Items {
		if item.Item.Type == "MCQ" {
			mcqItemID = item.QuizSessionItem.ID
		}
	}

	lowScore := 10.0
	_, err := env.sessions.Review(teacherID, sessionID, models.ReviewRequest{
		Status: "reviewed",
		ItemReviews: []models.ItemReview{
			{SessionItemID: mcqItemID, Score: &lowScore},
		},
	})
	if err != nil {
		t.Fatalf("Review failed: %v", err)
	}

	detail, err := env.db.GetSessionDetail(sessionID)
	if err != nil {
		t.Fatalf("GetSessionDetail failed: %v", err)
	}
	for _, item := range detail.Items {
		if item.QuizSessionItem.ID != mcqItemID {
			continue
		}
		if item.Status != models.ItemStatusCorrect || item.Score == nil || *item.Score != 100 {
			t.Errorf("auto-graded item was overwritten: status %q score %v", item.Status, item.Score)
		}
	}
}
