package handlers

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"

	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/quiz"
	"github.com/edustack/practice-api/utils"
)

// QuizHandlers serves the student-facing quiz session endpoints.
type QuizHandlers struct {
	db       *db.DB
	sessions *quiz.SessionService
}

func NewQuizHandlers(database *db.DB, sessions *quiz.SessionService) *QuizHandlers {
	return &QuizHandlers{db: database, sessions: sessions}
}

// HandleSessions handles POST /quiz-sessions and GET /quiz-sessions
func (h *QuizHandlers) HandleSessions(w http.ResponseWriter, r *http.Request) {
	utils.LogHTTP("%s /quiz-sessions", r.Method)

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.startSession(w, r, userID)
	case http.MethodGet:
		h.listSessions(w, r, userID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *QuizHandlers) startSession(w http.ResponseWriter, r *http.Request, userID int64) {
	var req models.StartQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	detail, err := h.sessions.Start(userID, req)
	if err != nil {
		writeServiceError(w, err, "Failed to start quiz session")
		return
	}

	writeJSON(w, http.StatusCreated, detail)
}

func (h *QuizHandlers) listSessions(w http.ResponseWriter, r *http.Request, userID int64) {
	status := r.URL.Query().Get("status")
	sessions, err := h.db.ListQuizSessions(status, userID, 50)
	if err != nil {
		utils.LogError("Failed to list quiz sessions for user %d: %v", userID, err)
		http.Error(w, "Failed to list quiz sessions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"quiz_sessions": sessions})
}

// HandleSessionSubpath routes the nested quiz session paths:
//
//	GET  /quiz-sessions/{id}
//	PUT  /quiz-sessions/{id}/items/{itemID}/response
//	POST /quiz-sessions/{id}/submit
//	POST /quiz-sessions/{id}/telemetry
func (h *QuizHandlers) HandleSessionSubpath(w http.ResponseWriter, r *http.Request) {
	utils.LogHTTP("%s %s", r.Method, r.URL.Path)

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	segments := splitPath(r.URL.Path, "/quiz-sessions/")
	if len(segments) == 0 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	sessionID, err := strconv.ParseInt(segments[0], 10, 64)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	session, err := h.db.GetQuizSessionByID(sessionID)
	if err != nil {
		http.Error(w, "Quiz session not found", http.StatusNotFound)
		return
	}
	if session.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	switch {
	case len(segments) == 1 && r.Method == http.MethodGet:
		h.getSession(w, sessionID)
	case len(segments) == 4 && segments[1] == "items" && segments[3] == "response" && r.Method == http.MethodPut:
		h.saveResponse(w, r, sessionID, segments[2])
	case len(segments) == 2 && segments[1] == "submit" && r.Method == http.MethodPost:
		h.submitSession(w, sessionID)
	case len(segments) == 2 && segments[1] == "telemetry" && r.Method == http.MethodPost:
		h.logTelemetry(w, r, sessionID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *QuizHandlers) getSession(w http.ResponseWriter, sessionID int64) {
	detail, err := h.db.GetSessionDetail(sessionID)
	if err != nil {
		utils.LogError("Failed to load quiz session %d: %v", sessionID, err)
		http.Error(w, "Failed to load quiz session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *QuizHandlers) saveResponse(w http.ResponseWriter, r *http.Request, sessionID int64, rawItemID string) {
	sessionItemID, err := strconv.ParseInt(rawItemID, 10, 64)
	if err != nil {
		http.Error(w, "Invalid session item ID", http.StatusBadRequest)
		return
	}

	var req models.SaveResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	item, err := h.sessions.SaveResponse(sessionID, sessionItemID, req.Response, req.Flagged)
	if err != nil {
		writeServiceError(w, err, "Failed to save response")
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (h *QuizHandlers) submitSession(w http.ResponseWriter, sessionID int64) {
	detail, err := h.sessions.Submit(sessionID)
	if err != nil {
		writeServiceError(w, err, "Failed to submit quiz session")
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

func (h *QuizHandlers) logTelemetry(w http.ResponseWriter, r *http.Request, sessionID int64) {
	var req models.TelemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if !slices.Contains(models.BoundaryEventTypes, req.EventType) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": map[string]string{"event_type": "Unknown telemetry event type."},
		})
		return
	}

	if err := h.sessions.LogTelemetryEvent(sessionID, req.EventType, req.Meta); err != nil {
		utils.LogError("Failed to log telemetry for session %d: %v", sessionID, err)
		http.Error(w, "Failed to log telemetry", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "logged"})
}
