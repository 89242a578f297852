package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/edustack/practice-api/adaptive"
	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/quiz"
)

func newTestRouter(t *testing.T) (http.Handler, *db.DB) {
	t.Helper()

	database, err := db.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	experiments := adaptive.NewExperimentManager(database)
	scoring := adaptive.NewMasteryScoringService(database)
	engine := adaptive.NewPracticeEngine(database, experiments)
	sessions := quiz.NewSessionService(database, engine, scoring)

	return NewRouter(database, engine, scoring, sessions), database
}

func createTestUser(t *testing.T, database *db.DB, role string) int64 {
	t.Helper()

	user, err := database.CreateUser("Test", "User", fmt.Sprintf("%s-%d@example.com", role, time.Now().UnixNano()), role)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user.ID
}

func doRequest(t *testing.T, router http.Handler, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if userID != 0 {
		req.Header.Set(userIDHeader, strconv.FormatInt(userID, 10))
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doRequest(t, router, http.MethodGet, "/health", 0, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("health returned %d", resp.Code)
	}
}

func TestMissingIdentityHeader(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := doRequest(t, router, http.MethodGet, "/masteries", 0, nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity header, got %d", resp.Code)
	}
}

func TestTeacherRoutesRejectStudents(t *testing.T) {
	router, database := newTestRouter(t)
	studentID := createTestUser(t, database, "student")

	resp := doRequest(t, router, http.MethodGet, "/teacher/quiz-sessions", studentID, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for student on teacher route, got %d", resp.Code)
	}
}

func TestStartQuizValidationError(t *testing.T) {
	router, database := newTestRouter(t)
	studentID := createTestUser(t, database, "student")

	resp := doRequest(t, router, http.MethodPost, "/quiz-sessions", studentID,
		models.StartQuizRequest{Size: 5, Objectives: []string{"no.such"}})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty quiz, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Errors["objectives"] == "" {
		t.Errorf("expected an objectives validation message, got %v", payload.Errors)
	}
}

func TestQuizLifecycleOverHTTP(t *testing.T) {
	router, database := newTestRouter(t)
	studentID := createTestUser(t, database, "student")
	teacherID := createTestUser(t, database, "teacher")

	importResp := doRequest(t, router, http.MethodPost, "/import", teacherID, models.ImportRequest{
		Objectives: []models.ObjectiveImport{{Code: "alg.1", Title: "Linear equations"}},
		Items: []models.ItemImport{
			{ObjectiveCode: "alg.1", Stem: "2x = 4, x = ?", Type: "MCQ", Options: []string{"1", "2"}, Answer: "2", IsQuizEligible: true},
		},
	})
	if importResp.Code != http.StatusOK {
		t.Fatalf("import returned %d: %s", importResp.Code, importResp.Body.String())
	}

	startResp := doRequest(t, router, http.MethodPost, "/quiz-sessions", studentID,
		models.StartQuizRequest{Size: 5})
	if startResp.Code != http.StatusCreated {
		t.Fatalf("start returned %d: %s", startResp.Code, startResp.Body.String())
	}

	var detail models.QuizSessionDetail
	if err := json.Unmarshal(startResp.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode session detail: %v", err)
	}
	if len(detail.Items) != 1 {
		t.Fatalf("expected 1 session item, got %d", len(detail.Items))
	}

	sessionPath := fmt.Sprintf("/quiz-sessions/%d", detail.Session.ID)
	itemPath := fmt.Sprintf("%s/items/%d/response", sessionPath, detail.Items[0].QuizSessionItem.ID)

	saveResp := doRequest(t, router, http.MethodPut, itemPath, studentID,
		models.SaveResponseRequest{Response: "2"})
	if saveResp.Code != http.StatusOK {
		t.Fatalf("save response returned %d: %s", saveResp.Code, saveResp.Body.String())
	}

	// A different student cannot touch the session.
	otherID := createTestUser(t, database, "student")
	forbidden := doRequest(t, router, http.MethodGet, sessionPath, otherID, nil)
	if forbidden.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign session, got %d", forbidden.Code)
	}

	submitResp := doRequest(t, router, http.MethodPost, sessionPath+"/submit", studentID, nil)
	if submitResp.Code != http.StatusOK {
		t.Fatalf("submit returned %d: %s", submitResp.Code, submitResp.Body.String())
	}

	var submitted models.QuizSessionDetail
	if err := json.Unmarshal(submitResp.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode submitted detail: %v", err)
	}
	if submitted.Session.Status != models.SessionStatusSubmitted {
		t.Errorf("status = %q, want submitted", submitted.Session.Status)
	}
	if submitted.Session.AverageScore == nil || *submitted.Session.AverageScore != 100 {
		t.Errorf("average = %v, want 100", submitted.Session.AverageScore)
	}

	// Saving after submission is a state error, not a server error.
	lateSave := doRequest(t, router, http.MethodPut, itemPath, studentID,
		models.SaveResponseRequest{Response: "1"})
	if lateSave.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 after submission, got %d", lateSave.Code)
	}
}

func TestTelemetryRejectsUnknownEventType(t *testing.T) {
	router, database := newTestRouter(t)
	studentID := createTestUser(t, database, "student")
	teacherID := createTestUser(t, database, "teacher")

	importResp := doRequest(t, router, http.MethodPost, "/import", teacherID, models.ImportRequest{
		Objectives: []models.ObjectiveImport{{Code: "alg.1", Title: "Linear equations"}},
		Items: []models.ItemImport{
			{ObjectiveCode: "alg.1", Stem: "2x = 4, x = ?", Type: "MCQ", Answer: "2", IsQuizEligible: true},
		},
	})
	if importResp.Code != http.StatusOK {
		t.Fatalf("import returned %d", importResp.Code)
	}

	startResp := doRequest(t, router, http.MethodPost, "/quiz-sessions", studentID,
		models.StartQuizRequest{Size: 5})
	if startResp.Code != http.StatusCreated {
		t.Fatalf("start returned %d", startResp.Code)
	}
	var detail models.QuizSessionDetail
	if err := json.Unmarshal(startResp.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode session detail: %v", err)
	}

	path := fmt.Sprintf("/quiz-sessions/%d/telemetry", detail.Session.ID)

	bad := doRequest(t, router, http.MethodPost, path, studentID,
		models.TelemetryRequest{EventType: "made_up"})
	if bad.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown event type, got %d", bad.Code)
	}

	good := doRequest(t, router, http.MethodPost, path, studentID,
		models.TelemetryRequest{EventType: "quiz_question_flagged", Meta: map[string]any{"item_id": detail.Items[0].Item.ID}})
	if good.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for boundary event, got %d: %s", good.Code, good.Body.String())
	}
}
