package db

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/utils"
)

// InsertEvent appends one row to the telemetry stream. It accepts a Queryer
// so callers can write events inside the transaction that produced them.
func (db *DB) InsertEvent(q Queryer, ev *models.RecommendationEvent) error {
	if ev.PublicID == "" {
		ev.PublicID = uuid.NewString()
	}

	utils.LogDB("Appending event: %s (%s/%s) for user %d", ev.EventType, ev.ExperimentKey, ev.Variant, ev.UserID)

	result, err := q.Exec(`
		INSERT INTO adaptive_recommendation_events
			(public_id, user_id, item_id, experiment_key, variant, event_type, score_before, score_after, meta, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.PublicID, ev.UserID, ev.ItemID, ev.ExperimentKey, ev.Variant, ev.EventType,
		ev.ScoreBefore, ev.ScoreAfter, encodeJSON(ev.Meta), ev.OccurredAt)
	if err != nil {
		utils.LogError("InsertEvent(%s) failed: %v", ev.EventType, err)
		return err
	}

	if id, err := result.LastInsertId(); err == nil {
		ev.ID = id
	}
	return nil
}

// ListEventsForUser returns a user's telemetry, newest first, optionally
// filtered by event type.
func (db *DB) ListEventsForUser(userID int64, eventType string, limit int) ([]models.RecommendationEvent, error) {
	utils.LogDB("Listing events for user %d (type=%q, limit=%d)", userID, eventType, limit)

	query := `
		SELECT id, public_id, user_id, item_id, experiment_key, variant, event_type, score_before, score_after, meta, occurred_at
		FROM adaptive_recommendation_events
		WHERE user_id = ?
	`
	args := []any{userID}
	if eventType != "" {
		query += " AND event_type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY occurred_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		utils.LogError("ListEventsForUser query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	var events []models.RecommendationEvent
	for rows.Next() {
		var ev models.RecommendationEvent
		var metaJSON sql.NullString

		err := rows.Scan(&ev.ID, &ev.PublicID, &ev.UserID, &ev.ItemID, &ev.ExperimentKey, &ev.Variant,
			&ev.EventType, &ev.ScoreBefore, &ev.ScoreAfter, &metaJSON, &ev.OccurredAt)
		if err != nil {
			utils.LogError("Failed to scan event row: %v", err)
			return nil, err
		}

		decodeJSON(metaJSON, &ev.Meta)
		events = append(events, ev)
	}
	return events, rows.Err()
}
