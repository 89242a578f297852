package db

import (
	"database/sql"
	"time"

	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/utils"
)

func (db *DB) GetAssignment(userID int64, experimentKey string) (*models.ExperimentAssignment, error) {
	utils.LogDB("Executing query: GetAssignment(%d, %s)", userID, experimentKey)

	var a models.ExperimentAssignment
	err := db.QueryRow(`
		SELECT id, user_id, experiment_key, variant, assigned_at
		FROM adaptive_experiment_assignments
		WHERE user_id = ? AND experiment_key = ?
	`, userID, experimentKey).Scan(&a.ID, &a.UserID, &a.ExperimentKey, &a.Variant, &a.AssignedAt)

	if err != nil {
		if err != sql.ErrNoRows {
			utils.LogError("GetAssignment(%d, %s) failed: %v", userID, experimentKey, err)
		}
		return nil, err
	}
	return &a, nil
}

// InsertAssignment persists a new assignment. A conflicting concurrent
// insert is not an error: the unique constraint on (user_id, experiment_key)
// is the authoritative guard, and the surviving row is re-read and returned.
func (db *DB) InsertAssignment(userID int64, experimentKey, variant string, assignedAt time.Time) (*models.ExperimentAssignment, error) {
	utils.LogDB("Inserting assignment: user %d, experiment %s, variant %s", userID, experimentKey, variant)

	_, err := db.Exec(`
		INSERT INTO adaptive_experiment_assignments (user_id, experiment_key, variant, assigned_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, experiment_key) DO NOTHING
	`, userID, experimentKey, variant, assignedAt)
	if err != nil {
		utils.LogError("InsertAssignment failed: %v", err)
		return nil, err
	}

	return db.GetAssignment(userID, experimentKey)
}
