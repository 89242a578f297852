package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/quiz"
	"github.com/edustack/practice-api/utils"
)

// TeacherHandlers serves the teacher review endpoints. All routes require
// the teacher or admin role.
type TeacherHandlers struct {
	db       *db.DB
	sessions *quiz.SessionService
}

func NewTeacherHandlers(database *db.DB, sessions *quiz.SessionService) *TeacherHandlers {
	return &TeacherHandlers{db: database, sessions: sessions}
}

// ListSessions handles GET /teacher/quiz-sessions?status=&student_id=
func (h *TeacherHandlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	utils.LogHTTP("%s /teacher/quiz-sessions", r.Method)

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, ok := requireRole(w, r, h.db, "teacher", "admin"); !ok {
		return
	}

	status := r.URL.Query().Get("status")
	var studentID int64
	if raw := r.URL.Query().Get("student_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "Invalid student ID", http.StatusBadRequest)
			return
		}
		studentID = parsed
	}

	sessions, err := h.db.ListQuizSessions(status, studentID, 100)
	if err != nil {
		utils.LogError("Failed to list quiz sessions for review: %v", err)
		http.Error(w, "Failed to list quiz sessions", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"quiz_sessions": sessions})
}

// HandleSessionSubpath routes the nested teacher paths:
//
//	GET  /teacher/quiz-sessions/{id}
//	POST /teacher/quiz-sessions/{id}/review
func (h *TeacherHandlers) HandleSessionSubpath(w http.ResponseWriter, r *http.Request) {
	utils.LogHTTP("%s %s", r.Method, r.URL.Path)

	teacherID, ok := requireRole(w, r, h.db, "teacher", "admin")
	if !ok {
		return
	}

	segments := splitPath(r.URL.Path, "/teacher/quiz-sessions/")
	if len(segments) == 0 {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	sessionID, err := strconv.ParseInt(segments[0], 10, 64)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	switch {
	case len(segments) == 1 && r.Method == http.MethodGet:
		h.getSession(w, sessionID)
	case len(segments) == 2 && segments[1] == "review" && r.Method == http.MethodPost:
		h.reviewSession(w, r, teacherID, sessionID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *TeacherHandlers) getSession(w http.ResponseWriter, sessionID int64) {
	detail, err := h.db.GetSessionDetail(sessionID)
	if err != nil {
		http.Error(w, "Quiz session not found", http.StatusNotFound)
		return
	}

	review, err := h.db.GetQuizReview(sessionID)
	if err != nil && err != sql.ErrNoRows {
		utils.LogError("Failed to load review for session %d: %v", sessionID, err)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session": detail,
		"review":  review,
	})
}

func (h *TeacherHandlers) reviewSession(w http.ResponseWriter, r *http.Request, teacherID, sessionID int64) {
	var req models.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	review, err := h.sessions.Review(teacherID, sessionID, req)
	if err != nil {
		writeServiceError(w, err, "Failed to review quiz session")
		return
	}

	writeJSON(w, http.StatusOK, review)
}
