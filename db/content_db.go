package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/utils"
)

func (db *DB) UpsertObjective(imp models.ObjectiveImport) (*models.LearningObjective, error) {
	utils.LogDB("Upserting objective: %s", imp.Code)

	version := imp.Version
	if version == 0 {
		version = 1
	}

	_, err := db.Exec(`
		INSERT INTO learning_objectives (code, title, description, standards, version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			standards = excluded.standards,
			version = excluded.version,
			updated_at = CURRENT_TIMESTAMP
	`, imp.Code, imp.Title, imp.Description, encodeJSON(imp.Standards), version)
	if err != nil {
		utils.LogError("UpsertObjective(%s) failed: %v", imp.Code, err)
		return nil, err
	}

	return db.GetObjectiveByCode(imp.Code)
}

func (db *DB) GetObjectiveByCode(code string) (*models.LearningObjective, error) {
	utils.LogDB("Executing query: GetObjectiveByCode(%s)", code)

	var o models.LearningObjective
	var description, standardsJSON sql.NullString

	err := db.QueryRow(`
		SELECT id, code, title, description, standards, version, created_at, updated_at
		FROM learning_objectives WHERE code = ?
	`, code).Scan(&o.ID, &o.Code, &o.Title, &description, &standardsJSON, &o.Version, &o.CreatedAt, &o.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			utils.LogDB("Objective %s not found", code)
		} else {
			utils.LogError("GetObjectiveByCode(%s) failed: %v", code, err)
		}
		return nil, err
	}

	o.Description = description.String
	decodeJSON(standardsJSON, &o.Standards)
	return &o, nil
}

func (db *DB) CreateItem(imp models.ItemImport) (*models.Item, error) {
	utils.LogDB("Creating item for objective %s", imp.ObjectiveCode)

	itemType := strings.ToUpper(strings.TrimSpace(imp.Type))
	if itemType == "" {
		itemType = "MCQ"
	}
	if itemType != "MCQ" && itemType != "SAQ" {
		return nil, fmt.Errorf("invalid item type '%s', must be MCQ or SAQ", imp.Type)
	}

	objective, err := db.GetObjectiveByCode(imp.ObjectiveCode)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	var objectiveID *int64
	if objective != nil {
		objectiveID = &objective.ID
	}

	result, err := db.Exec(`
		INSERT INTO items (learning_objective_id, objective_code, stem, type, options, answer, rationale, meta, is_quiz_eligible)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, objectiveID, imp.ObjectiveCode, imp.Stem, itemType, encodeJSON(imp.Options), imp.Answer,
		imp.Rationale, encodeJSON(imp.Meta), imp.IsQuizEligible)
	if err != nil {
		utils.LogError("CreateItem failed: %v", err)
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetItemByID(id)
}

func (db *DB) GetItemByID(id int64) (*models.Item, error) {
	utils.LogDB("Executing query: GetItemByID(%d)", id)

	var i models.Item
	var optionsJSON, rationale, metaJSON sql.NullString

	err := db.QueryRow(`
		SELECT id, learning_objective_id, objective_code, rubric_id, stem, type, options, answer, rationale, meta, is_quiz_eligible, created_at, updated_at
		FROM items WHERE id = ?
	`, id).Scan(&i.ID, &i.LearningObjectiveID, &i.ObjectiveCode, &i.RubricID, &i.Stem, &i.Type,
		&optionsJSON, &i.Answer, &rationale, &metaJSON, &i.IsQuizEligible, &i.CreatedAt, &i.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			utils.LogDB("Item ID %d not found", id)
		} else {
			utils.LogError("GetItemByID(%d) failed: %v", id, err)
		}
		return nil, err
	}

	i.Rationale = rationale.String
	decodeJSON(optionsJSON, &i.Options)
	decodeJSON(metaJSON, &i.Meta)
	return &i, nil
}

// CandidateItem is an item joined with its objective, as the practice
// engine consumes it.
type CandidateItem struct {
	Item           models.Item
	ObjectiveTitle string
}

// GetCandidateItems returns items linked to an objective, optionally
// restricted to quiz-eligible items and/or a set of objective codes.
func (db *DB) GetCandidateItems(objectiveCodes []string, onlyQuizEligible bool) ([]CandidateItem, error) {
	utils.LogDB("Getting candidate items (codes=%v, quizEligible=%t)", objectiveCodes, onlyQuizEligible)
	start := time.Now()

	query := `
		SELECT i.id, i.learning_objective_id, i.objective_code, i.rubric_id, i.stem, i.type,
		       i.options, i.answer, i.rationale, i.meta, i.is_quiz_eligible, i.created_at, i.updated_at,
		       o.title
		FROM items i
		JOIN learning_objectives o ON i.learning_objective_id = o.id
	`
	var conditions []string
	var args []any

	if onlyQuizEligible {
		conditions = append(conditions, "i.is_quiz_eligible = 1")
	}
	if len(objectiveCodes) > 0 {
		placeholders := strings.Repeat("?,", len(objectiveCodes))
		conditions = append(conditions, "o.code IN ("+placeholders[:len(placeholders)-1]+")")
		for _, code := range objectiveCodes {
			args = append(args, code)
		}
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY i.id"

	rows, err := db.Query(query, args...)
	if err != nil {
		utils.LogError("GetCandidateItems query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	var candidates []CandidateItem
	for rows.Next() {
		var c CandidateItem
		var optionsJSON, rationale, metaJSON sql.NullString

		err := rows.Scan(&c.Item.ID, &c.Item.LearningObjectiveID, &c.Item.ObjectiveCode, &c.Item.RubricID,
			&c.Item.Stem, &c.Item.Type, &optionsJSON, &c.Item.Answer, &rationale, &metaJSON,
			&c.Item.IsQuizEligible, &c.Item.CreatedAt, &c.Item.UpdatedAt, &c.ObjectiveTitle)
		if err != nil {
			utils.LogError("Failed to scan candidate item row: %v", err)
			return nil, err
		}

		c.Item.Rationale = rationale.String
		decodeJSON(optionsJSON, &c.Item.Options)
		decodeJSON(metaJSON, &c.Item.Meta)
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	utils.LogDB("GetCandidateItems completed: %d items in %v", len(candidates), time.Since(start))
	return candidates, nil
}

// GetRubricByID loads a rubric for recommendation payloads.
func (db *DB) GetRubricByID(id int64) (*models.Rubric, error) {
	var r models.Rubric
	var criteriaJSON, levelsJSON sql.NullString

	err := db.QueryRow(`
		SELECT id, name, criteria, levels FROM rubrics WHERE id = ?
	`, id).Scan(&r.ID, &r.Name, &criteriaJSON, &levelsJSON)
	if err != nil {
		if err != sql.ErrNoRows {
			utils.LogError("GetRubricByID(%d) failed: %v", id, err)
		}
		return nil, err
	}

	decodeJSON(criteriaJSON, &r.Criteria)
	decodeJSON(levelsJSON, &r.Levels)
	return &r, nil
}
