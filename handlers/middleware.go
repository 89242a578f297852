package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/quiz"
	"github.com/edustack/practice-api/utils"
)

// Identity arrives pre-authenticated from the upstream gateway as an
// X-User-ID header. This service does no authentication of its own.
const userIDHeader = "X-User-ID"

// requireUser extracts the caller's user ID, writing a 401 when missing
// or malformed.
func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.Header.Get(userIDHeader)
	if raw == "" {
		http.Error(w, "Missing "+userIDHeader+" header", http.StatusUnauthorized)
		return 0, false
	}

	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		utils.LogHTTP("Invalid user ID header: %s", raw)
		http.Error(w, "Invalid "+userIDHeader+" header", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

// requireRole additionally checks the caller's role against an allow list.
func requireRole(w http.ResponseWriter, r *http.Request, database *db.DB, roles ...string) (int64, bool) {
	userID, ok := requireUser(w, r)
	if !ok {
		return 0, false
	}

	user, err := database.GetUserByID(userID)
	if err != nil {
		http.Error(w, "Unknown user", http.StatusUnauthorized)
		return 0, false
	}

	for _, role := range roles {
		if user.Role == role {
			return userID, true
		}
	}

	utils.LogHTTP("User %d (role %s) denied, requires one of %v", userID, user.Role, roles)
	http.Error(w, "Insufficient permissions", http.StatusForbidden)
	return 0, false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		utils.LogError("Failed to encode response: %v", err)
	}
}

// writeServiceError translates core errors into protocol responses:
// validation and state errors become 422s with a field-keyed body,
// anything else is a 500.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var validationErr *quiz.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": map[string]string{validationErr.Field: validationErr.Message},
		})
		return
	}

	if errors.Is(err, quiz.ErrSessionSubmitted) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": map[string]string{"session": "Quiz has already been submitted."},
		})
		return
	}

	utils.LogError("%s: %v", fallback, err)
	http.Error(w, fallback, http.StatusInternalServerError)
}
