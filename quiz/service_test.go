package quiz

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/edustack/practice-api/adaptive"
	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/models"
)

type testEnv struct {
	db       *db.DB
	scoring  *adaptive.MasteryScoringService
	sessions *SessionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	database, err := db.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	experiments := adaptive.NewExperimentManager(database)
	scoring := adaptive.NewMasteryScoringService(database)
	engine := adaptive.NewPracticeEngine(database, experiments)

	return &testEnv{
		db:       database,
		scoring:  scoring,
		sessions: NewSessionService(database, engine, scoring),
	}
}

func (env *testEnv) createUser(t *testing.T, role string) int64 {
	t.Helper()

	user, err := env.db.CreateUser("Test", "User", fmt.Sprintf("%s-%d@example.com", role, time.Now().UnixNano()), role)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user.ID
}

func (env *testEnv) seedObjective(t *testing.T, code string) {
	t.Helper()

	if _, err := env.db.UpsertObjective(models.ObjectiveImport{Code: code, Title: "Objective " + code}); err != nil {
		t.Fatalf("UpsertObjective(%s) failed: %v", code, err)
	}
}

func (env *testEnv) seedItem(t *testing.T, objectiveCode, itemType, answer string) int64 {
	t.Helper()

	item, err := env.db.CreateItem(models.ItemImport{
		ObjectiveCode:  objectiveCode,
		Stem:           "Stem for " + objectiveCode,
		Type:           itemType,
		Answer:         answer,
		IsQuizEligible: true,
	})
	if err != nil {
		t.Fatalf("CreateItem failed: %v", err)
	}
	return item.ID
}

func TestAssignFeedbackVariantParity(t *testing.T) {
	if got := assignFeedbackVariant(2); got != "immediate" {
		t.Errorf("even user: got %q, want immediate", got)
	}
	if got := assignFeedbackVariant(7); got != "delayed" {
		t.Errorf("odd user: got %q, want delayed", got)
	}
}

func TestNormalizeResponse(t *testing.T) {
	if got := normalizeResponse(nil); got != nil {
		t.Errorf("nil response should stay nil, got %v", got)
	}

	wrapped := normalizeResponse("B")
	if wrapped["value"] != "B" {
		t.Errorf("scalar not wrapped: %v", wrapped)
	}

	passthrough := normalizeResponse(map[string]any{"value": "B", "elapsed_ms": 1200})
	if passthrough["value"] != "B" || passthrough["elapsed_ms"] != 1200 {
		t.Errorf("value-keyed object should pass through, got %v", passthrough)
	}

	if got := extractResponseValue(wrapped); got != "B" {
		t.Errorf("extractResponseValue = %v, want B", got)
	}
}

func TestStartAssignsPositions(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "student")
	env.seedObjective(t, "alg.1")
	for i := 0; i < 3; i++ {
		env.seedItem(t, "alg.1", "MCQ", "Paris")
	}

	detail, err := env.sessions.Start(userID, models.StartQuizRequest{Size: 10, Objectives: []string{"alg.1"}})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if detail.Session.Status != models.SessionStatusActive {
		t.Errorf("session status = %q, want active", detail.Session.Status)
	}
	if detail.Session.PublicID == "" {
		t.Error("expected a public id on the session")
	}
	if len(detail.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(detail.Items))
	}
	for i, item := range detail.Items {
		if item.Position != i+1 {
			t.Errorf("item %d has position %d, want %d", i, item.Position, i+1)
		}
		if item.Status != models.ItemStatusPending {
			t.Errorf("item %d status = %q, want pending", i, item.Status)
		}
	}

	want := assignFeedbackVariant(userID)
	if detail.Session.Settings.FeedbackVariant != want {
		t.Errorf("feedback variant = %q, want %q", detail.Session.Settings.FeedbackVariant, want)
	}
}

func TestStartWithNoMatchingItems(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "student")

	_, err := env.sessions.Start(userID, models.StartQuizRequest{Size: 5, Objectives: []string{"no.such"}})

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if validationErr.Field != "objectives" {
		t.Errorf("validation field = %q, want objectives", validationErr.Field)
	}
}

func TestSaveResponseWrapsScalar(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "student")
	env.seedObjective(t, "alg.1")
	env.seedItem(t, "alg.1", "MCQ", "Paris")

	detail, err := env.sessions.Start(userID, models.StartQuizRequest{Size: 5})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sessionID := detail.Session.ID
	sessionItemID := detail.Items[0].QuizSessionItem.ID

	saved, err := env.sessions.SaveResponse(sessionID, sessionItemID, "paris", nil)
	if err != nil {
		t.Fatalf("SaveResponse failed: %v", err)
	}

	if saved.Status != models.ItemStatusAnswered {
		t.Errorf("item status = %q, want answered", saved.Status)
	}
	if saved.Response["value"] != "paris" {
		t.Errorf("stored response = %v, want wrapped scalar", saved.Response)
	}
}

func TestSubmitGradesAndAggregates(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "student")
	env.seedObjective(t, "alg.1")
	env.seedItem(t, "alg.1", "MCQ", "Paris")
	env.seedItem(t, "alg.1", "MCQ", "Lyon")
	env.seedItem(t, "alg.1", "SAQ", "free response")

	detail, err := env.sessions.Start(userID, models.StartQuizRequest{Size: 5})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sessionID := detail.Session.ID

	// Answer by matching each item's content: one correct MCQ (wrong case,
	// still counts), one incorrect MCQ, one SAQ awaiting review.
	for _, item := range detail.Items {
		var response string
		switch {
		case item.Item.Type == "SAQ":
			response = "my short answer"
		case item.Item.Answer == "Paris":
			response = "PARIS"
		default:
			response = "Marseille"
		}
		if _, err := env.sessions.SaveResponse(sessionID, item.QuizSessionItem.ID, response, nil); err != nil {
			t.Fatalf("SaveResponse failed: %v", err)
		}
	}

	submitted, err := env.sessions.Submit(sessionID)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	session := submitted.Session
	if session.Status != models.SessionStatusSubmitted {
		t.Errorf("status = %q, want submitted", session.Status)
	}
	if session.SubmittedAt == nil {
		t.Error("expected submitted_at to be set")
	}
	if session.CorrectCount != 1 || session.IncorrectCount != 1 || session.PendingReviewCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1",
			session.CorrectCount, session.IncorrectCount, session.PendingReviewCount)
	}
	// The average covers auto-scored items only: (100 + 0) / 2.
	if session.AverageScore == nil || *session.AverageScore != 50 {
		t.Errorf("average = %v, want 50", session.AverageScore)
	}

	for _, item := range submitted.Items {
		switch {
		case item.Item.Type == "SAQ":
			if item.Status != models.ItemStatusPendingReview || item.Score != nil {
				t.Errorf("SAQ item: status %q score %v, want pending_review with nil score", item.Status, item.Score)
			}
		case item.Item.Answer == "Paris":
			if item.Status != models.ItemStatusCorrect || item.Score == nil || *item.Score != 100 {
				t.Errorf("correct MCQ: status %q score %v", item.Status, item.Score)
			}
			if item.Feedback["correct_answer"] != "Paris" {
				t.Errorf("feedback missing correct answer: %v", item.Feedback)
			}
		default:
			if item.Status != models.ItemStatusIncorrect || item.Score == nil || *item.Score != 0 {
				t.Errorf("incorrect MCQ: status %q score %v", item.Status, item.Score)
			}
		}
	}

	// With no dispatcher wired the mastery recompute runs inline: the
	// objective's MCQ average is 50, blended 50/50 with no prior score.
	mastery, err := env.db.GetMastery(userID, "alg.1")
	if err != nil {
		t.Fatalf("GetMastery failed: %v", err)
	}
	if mastery.Score != 25 {
		t.Errorf("mastery score = %v, want 25", mastery.Score)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "student")
	env.seedObjective(t, "alg.1")
	env.seedItem(t, "alg.1", "MCQ", "Paris")

	detail, err := env.sessions.Start(userID, models.StartQuizRequest{Size: 5})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sessionID := detail.Session.ID

	if _, err := env.sessions.SaveResponse(sessionID, detail.Items[0].QuizSessionItem.ID, "Paris", nil); err != nil {
		t.Fatalf("SaveResponse failed: %v", err)
	}

	first, err := env.sessions.Submit(sessionID)
	if err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	second, err := env.sessions.Submit(sessionID)
	if err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}

	if first.Session.SubmittedAt == nil || second.Session.SubmittedAt == nil {
		t.Fatal("expected submitted_at on both results")
	}
	if !first.Session.SubmittedAt.Equal(*second.Session.SubmittedAt) {
		t.Errorf("resubmission changed submitted_at: %v then %v",
			first.Session.SubmittedAt, second.Session.SubmittedAt)
	}

	// A mastery outbox entry must not be applied twice.
	mastery, err := env.db.GetMastery(userID, "alg.1")
	if err != nil {
		t.Fatalf("GetMastery failed: %v", err)
	}
	if mastery.Score != 50 {
		t.Errorf("mastery score = %v, want 50 (single application of a 100 average)", mastery.Score)
	}
}

func TestSaveResponseAfterSubmit(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "student")
	env.seedObjective(t, "alg.1")
	env.seedItem(t, "alg.1", "MCQ", "Paris")

	detail, err := env.sessions.Start(userID, models.StartQuizRequest{Size: 5})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sessionID := detail.Session.ID

	if _, err := env.sessions.Submit(sessionID); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	_, err = env.sessions.SaveResponse(sessionID, detail.Items[0].QuizSessionItem.ID, "Paris", nil)
	if !errors.Is(err, ErrSessionSubmitted) {
		t.Fatalf("expected ErrSessionSubmitted, got %v", err)
	}
}
