package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/edustack/practice-api/adaptive"
	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/utils"
)

// PracticeHandlers serves the student-facing practice endpoints:
// recommendations, masteries, attempts, and reflections.
type PracticeHandlers struct {
	db      *db.DB
	engine  *adaptive.PracticeEngine
	scoring *adaptive.MasteryScoringService
}

func NewPracticeHandlers(database *db.DB, engine *adaptive.PracticeEngine, scoring *adaptive.MasteryScoringService) *PracticeHandlers {
	return &PracticeHandlers{db: database, engine: engine, scoring: scoring}
}

// GetRecommendations handles GET /practice/recommendations?limit=N
func (h *PracticeHandlers) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	utils.LogHTTP("%s /practice/recommendations", r.Method)

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	limit = utils.ClampInt(limit, 1, 20)

	recommendations, err := h.engine.RecommendationsFor(userID, limit)
	if err != nil {
		utils.LogError("Failed to build recommendations for user %d: %v", userID, err)
		http.Error(w, "Failed to build recommendations", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"recommendations": recommendations})
}

// GetMasteries handles GET /masteries
func (h *PracticeHandlers) GetMasteries(w http.ResponseWriter, r *http.Request) {
	utils.LogHTTP("%s /masteries", r.Method)

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	masteries, err := h.db.ListUserMasteries(userID)
	if err != nil {
		utils.LogError("Failed to list masteries for user %d: %v", userID, err)
		http.Error(w, "Failed to list masteries", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"masteries": masteries})
}

// GetEvents handles GET /events?event_type=&limit=
func (h *PracticeHandlers) GetEvents(w http.ResponseWriter, r *http.Request) {
	utils.LogHTTP("%s /events", r.Method)

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	limit = utils.ClampInt(limit, 1, 200)

	events, err := h.db.ListEventsForUser(userID, r.URL.Query().Get("event_type"), limit)
	if err != nil {
		utils.LogError("Failed to list events for user %d: %v", userID, err)
		http.Error(w, "Failed to list events", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// HandleAttempts handles POST /attempts
func (h *PracticeHandlers) HandleAttempts(w http.ResponseWriter, r *http.Request) {
	utils.LogHTTP("%s /attempts", r.Method)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.AttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.ItemID == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": map[string]string{"item_id": "Item is required."},
		})
		return
	}
	if strings.TrimSpace(req.Response) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": map[string]string{"response": "Response is required."},
		})
		return
	}
	if req.Score != nil {
		clamped := utils.ClampFloat(*req.Score, 0, 100)
		req.Score = &clamped
	}

	attempt, err := h.db.CreateAttempt(userID, req)
	if err != nil {
		utils.LogError("Failed to create attempt for user %d: %v", userID, err)
		http.Error(w, "Failed to create attempt", http.StatusInternalServerError)
		return
	}

	if attempt.Score != nil {
		if err := h.scoring.UpdateForAttempt(attempt.ID); err != nil {
			utils.LogError("Mastery update failed for attempt %d: %v", attempt.ID, err)
		}
	}

	writeJSON(w, http.StatusCreated, attempt)
}

// HandleAttemptSubpath handles POST /attempts/{id}/reflections
func (h *PracticeHandlers) HandleAttemptSubpath(w http.ResponseWriter, r *http.Request) {
	utils.LogHTTP("%s %s", r.Method, r.URL.Path)

	segments := splitPath(r.URL.Path, "/attempts/")
	if len(segments) != 2 || segments[1] != "reflections" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	attemptID, err := strconv.ParseInt(segments[0], 10, 64)
	if err != nil {
		http.Error(w, "Invalid attempt ID", http.StatusBadRequest)
		return
	}

	attempt, err := h.db.GetAttemptByID(attemptID)
	if err != nil {
		http.Error(w, "Attempt not found", http.StatusNotFound)
		return
	}
	if attempt.UserID != userID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var req models.ReflectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": map[string]string{"content": "Reflection content is required."},
		})
		return
	}

	feedback, err := h.db.GetOrCreateFeedback(attemptID)
	if err != nil {
		utils.LogError("Failed to load feedback for attempt %d: %v", attemptID, err)
		http.Error(w, "Failed to record reflection", http.StatusInternalServerError)
		return
	}

	reflection, err := h.db.CreateReflection(feedback.ID, req.Content)
	if err != nil {
		utils.LogError("Failed to create reflection for attempt %d: %v", attemptID, err)
		http.Error(w, "Failed to record reflection", http.StatusInternalServerError)
		return
	}

	if err := h.scoring.UpdateForReflection(reflection.ID); err != nil {
		utils.LogError("Mastery update failed for reflection %d: %v", reflection.ID, err)
	}

	writeJSON(w, http.StatusCreated, reflection)
}
