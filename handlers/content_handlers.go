package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/utils"
)

// ContentHandlers serves the bulk content import endpoint.
type ContentHandlers struct {
	db *db.DB
}

func NewContentHandlers(database *db.DB) *ContentHandlers {
	return &ContentHandlers{db: database}
}

// ImportContent handles POST /import. Objectives are upserted first so
// items can resolve their objective codes, then items are inserted.
// Individual failures are collected, not fatal.
func (h *ContentHandlers) ImportContent(w http.ResponseWriter, r *http.Request) {
	utils.LogHTTP("%s /import", r.Method)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, ok := requireRole(w, r, h.db, "teacher", "admin"); !ok {
		return
	}

	var req models.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if len(req.Objectives) == 0 && len(req.Items) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": map[string]string{"import": "Nothing to import."},
		})
		return
	}

	start := time.Now()
	result := models.ImportResult{
		TotalObjectives: len(req.Objectives),
		TotalItems:      len(req.Items),
		Errors:          []string{},
	}

	utils.LogImport("Starting import: %d objectives, %d items", len(req.Objectives), len(req.Items))

	for _, obj := range req.Objectives {
		if _, err := h.db.UpsertObjective(obj); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("objective %s: %v", obj.Code, err))
			continue
		}
		result.ImportedObjectives++
	}

	for i, item := range req.Items {
		if _, err := h.db.CreateItem(item); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("item %d (%s): %v", i, item.ObjectiveCode, err))
			continue
		}
		result.ImportedItems++
	}

	result.TimeTaken = time.Since(start).String()
	utils.LogImport("Import complete: %d/%d objectives, %d/%d items in %s",
		result.ImportedObjectives, result.TotalObjectives,
		result.ImportedItems, result.TotalItems, result.TimeTaken)

	writeJSON(w, http.StatusOK, result)
}
