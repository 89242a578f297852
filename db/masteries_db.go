package db

import (
	"database/sql"
	"time"

	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/utils"
)

func (db *DB) GetMastery(userID int64, objectiveCode string) (*models.Mastery, error) {
	utils.LogDB("Executing query: GetMastery(%d, %s)", userID, objectiveCode)

	var m models.Mastery
	err := db.QueryRow(`
		SELECT id, user_id, objective_code, level, score, last_seen_at, created_at, updated_at
		FROM masteries WHERE user_id = ? AND objective_code = ?
	`, userID, objectiveCode).Scan(&m.ID, &m.UserID, &m.ObjectiveCode, &m.Level, &m.Score,
		&m.LastSeenAt, &m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		utils.LogError("GetMastery(%d, %s) failed: %v", userID, objectiveCode, err)
		return nil, err
	}
	return &m, nil
}

// UpsertMastery writes the mastery row for (user, objective). The unique
// constraint makes concurrent first-touch writes converge on one row.
func (db *DB) UpsertMastery(userID int64, objectiveCode, level string, score float64, lastSeenAt time.Time) error {
	utils.LogDB("Upserting mastery: user %d, objective %s, score %.2f (%s)", userID, objectiveCode, score, level)

	_, err := db.Exec(`
		INSERT INTO masteries (user_id, objective_code, level, score, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, objective_code) DO UPDATE SET
			level = excluded.level,
			score = excluded.score,
			last_seen_at = excluded.last_seen_at,
			updated_at = CURRENT_TIMESTAMP
	`, userID, objectiveCode, level, score, lastSeenAt)
	if err != nil {
		utils.LogError("UpsertMastery failed: %v", err)
		return err
	}
	return nil
}

func (db *DB) GetUserMasteries(userID int64) (map[string]*models.Mastery, error) {
	utils.LogDB("Loading masteries for user %d", userID)
	start := time.Now()

	rows, err := db.Query(`
		SELECT id, user_id, objective_code, level, score, last_seen_at, created_at, updated_at
		FROM masteries WHERE user_id = ?
	`, userID)
	if err != nil {
		utils.LogError("GetUserMasteries query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	masteries := make(map[string]*models.Mastery)
	for rows.Next() {
		var m models.Mastery
		err := rows.Scan(&m.ID, &m.UserID, &m.ObjectiveCode, &m.Level, &m.Score,
			&m.LastSeenAt, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			utils.LogError("Failed to scan mastery row: %v", err)
			return nil, err
		}
		masteries[m.ObjectiveCode] = &m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	utils.LogDB("Loaded %d masteries for user %d in %v", len(masteries), userID, time.Since(start))
	return masteries, nil
}

func (db *DB) ListUserMasteries(userID int64) ([]models.Mastery, error) {
	rows, err := db.Query(`
		SELECT id, user_id, objective_code, level, score, last_seen_at, created_at, updated_at
		FROM masteries WHERE user_id = ? ORDER BY objective_code
	`, userID)
	if err != nil {
		utils.LogError("ListUserMasteries query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	var list []models.Mastery
	for rows.Next() {
		var m models.Mastery
		err := rows.Scan(&m.ID, &m.UserID, &m.ObjectiveCode, &m.Level, &m.Score,
			&m.LastSeenAt, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			utils.LogError("Failed to scan mastery row: %v", err)
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
