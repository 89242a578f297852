package db

import (
	"database/sql"

	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/utils"
)

func (db *DB) CreateAttempt(userID int64, req models.AttemptRequest) (*models.Attempt, error) {
	utils.LogDB("Recording attempt: user %d, item %d", userID, req.ItemID)

	result, err := db.Exec(`
		INSERT INTO attempts (user_id, item_id, response, score, meta)
		VALUES (?, ?, ?, ?, ?)
	`, userID, req.ItemID, req.Response, req.Score, encodeJSON(req.Meta))
	if err != nil {
		utils.LogError("CreateAttempt failed: %v", err)
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetAttemptByID(id)
}

// GetAttemptByID loads an attempt along with its item's objective code.
// ObjectiveCode is empty when the item has no linked objective.
func (db *DB) GetAttemptByID(id int64) (*models.Attempt, error) {
	utils.LogDB("Executing query: GetAttemptByID(%d)", id)

	var a models.Attempt
	var metaJSON sql.NullString
	var objectiveCode sql.NullString

	err := db.QueryRow(`
		SELECT a.id, a.user_id, a.item_id, a.response, a.score, a.meta, a.created_at, o.code
		FROM attempts a
		JOIN items i ON a.item_id = i.id
		LEFT JOIN learning_objectives o ON i.learning_objective_id = o.id
		WHERE a.id = ?
	`, id).Scan(&a.ID, &a.UserID, &a.ItemID, &a.Response, &a.Score, &metaJSON, &a.CreatedAt, &objectiveCode)

	if err != nil {
		if err == sql.ErrNoRows {
			utils.LogDB("Attempt ID %d not found", id)
		} else {
			utils.LogError("GetAttemptByID(%d) failed: %v", id, err)
		}
		return nil, err
	}

	a.ObjectiveCode = objectiveCode.String
	decodeJSON(metaJSON, &a.Meta)
	return &a, nil
}

// GetOrCreateFeedback returns the feedback row for an attempt, creating an
// empty one when missing.
func (db *DB) GetOrCreateFeedback(attemptID int64) (*models.Feedback, error) {
	utils.LogDB("Resolving feedback for attempt %d", attemptID)

	_, err := db.Exec(`
		INSERT INTO feedback (attempt_id) VALUES (?)
		ON CONFLICT(attempt_id) DO NOTHING
	`, attemptID)
	if err != nil {
		utils.LogError("GetOrCreateFeedback insert failed: %v", err)
		return nil, err
	}

	var f models.Feedback
	var body sql.NullString
	err = db.QueryRow(`
		SELECT id, attempt_id, body, created_at FROM feedback WHERE attempt_id = ?
	`, attemptID).Scan(&f.ID, &f.AttemptID, &body, &f.CreatedAt)
	if err != nil {
		utils.LogError("GetOrCreateFeedback select failed: %v", err)
		return nil, err
	}

	f.Body = body.String
	return &f, nil
}

func (db *DB) CreateReflection(feedbackID int64, content string) (*models.FeedbackReflection, error) {
	utils.LogDB("Recording reflection on feedback %d", feedbackID)

	result, err := db.Exec(`
		INSERT INTO feedback_reflections (feedback_id, content) VALUES (?, ?)
	`, feedbackID, content)
	if err != nil {
		utils.LogError("CreateReflection failed: %v", err)
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	var r models.FeedbackReflection
	err = db.QueryRow(`
		SELECT id, feedback_id, content, created_at FROM feedback_reflections WHERE id = ?
	`, id).Scan(&r.ID, &r.FeedbackID, &r.Content, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountReflections counts reflections across an attempt's feedback trail.
func (db *DB) CountReflections(attemptID int64) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*)
		FROM feedback_reflections r
		JOIN feedback f ON r.feedback_id = f.id
		WHERE f.attempt_id = ?
	`, attemptID).Scan(&count)
	if err != nil {
		utils.LogError("CountReflections(%d) failed: %v", attemptID, err)
		return 0, err
	}
	return count, nil
}

// GetReflectionAttemptID walks reflection -> feedback -> attempt.
func (db *DB) GetReflectionAttemptID(reflectionID int64) (int64, error) {
	var attemptID int64
	err := db.QueryRow(`
		SELECT f.attempt_id
		FROM feedback_reflections r
		JOIN feedback f ON r.feedback_id = f.id
		WHERE r.id = ?
	`, reflectionID).Scan(&attemptID)
	if err != nil {
		if err != sql.ErrNoRows {
			utils.LogError("GetReflectionAttemptID(%d) failed: %v", reflectionID, err)
		}
		return 0, err
	}
	return attemptID, nil
}
