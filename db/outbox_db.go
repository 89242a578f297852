package db

import (
	"time"

	"github.com/edustack/practice-api/utils"
)

// OutboxEntry is one pending mastery recompute produced by a quiz
// submission. Entries are written inside the scoring transaction and
// applied after it commits.
type OutboxEntry struct {
	ID            int64
	QuizSessionID int64
	UserID        int64
	ObjectiveCode string
	Average       float64
	Status        string
	Attempts      int
	CreatedAt     time.Time
	AppliedAt     *time.Time
}

func (db *DB) InsertOutboxEntry(q Queryer, sessionID, userID int64, objectiveCode string, average float64) (int64, error) {
	result, err := q.Exec(`
		INSERT INTO mastery_outbox (quiz_session_id, user_id, objective_code, average)
		VALUES (?, ?, ?, ?)
	`, sessionID, userID, objectiveCode, average)
	if err != nil {
		utils.LogError("InsertOutboxEntry failed (session %d, objective %s): %v", sessionID, objectiveCode, err)
		return 0, err
	}
	return result.LastInsertId()
}

func (db *DB) MarkOutboxApplied(id int64, appliedAt time.Time) error {
	_, err := db.Exec(`
		UPDATE mastery_outbox SET status = 'applied', applied_at = ? WHERE id = ?
	`, appliedAt, id)
	if err != nil {
		utils.LogError("MarkOutboxApplied(%d) failed: %v", id, err)
	}
	return err
}

func (db *DB) IncrementOutboxAttempts(id int64) error {
	_, err := db.Exec(`
		UPDATE mastery_outbox SET attempts = attempts + 1 WHERE id = ?
	`, id)
	if err != nil {
		utils.LogError("IncrementOutboxAttempts(%d) failed: %v", id, err)
	}
	return err
}

func (db *DB) GetOutboxEntry(id int64) (*OutboxEntry, error) {
	var e OutboxEntry
	err := db.QueryRow(`
		SELECT id, quiz_session_id, user_id, objective_code, average, status, attempts, created_at, applied_at
		FROM mastery_outbox WHERE id = ?
	`, id).Scan(&e.ID, &e.QuizSessionID, &e.UserID, &e.ObjectiveCode, &e.Average, &e.Status,
		&e.Attempts, &e.CreatedAt, &e.AppliedAt)
	if err != nil {
		utils.LogError("GetOutboxEntry(%d) failed: %v", id, err)
		return nil, err
	}
	return &e, nil
}

// ListStaleOutboxEntries finds pending entries older than the cutoff, for
// the reconciliation sweep.
func (db *DB) ListStaleOutboxEntries(olderThan time.Time, limit int) ([]OutboxEntry, error) {
	utils.LogDB("Scanning for stale outbox entries older than %v", olderThan)

	rows, err := db.Query(`
		SELECT id, quiz_session_id, user_id, objective_code, average, status, attempts, created_at, applied_at
		FROM mastery_outbox
		WHERE status = 'pending' AND created_at < ?
		ORDER BY created_at
		LIMIT ?
	`, olderThan, limit)
	if err != nil {
		utils.LogError("ListStaleOutboxEntries query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		err := rows.Scan(&e.ID, &e.QuizSessionID, &e.UserID, &e.ObjectiveCode, &e.Average, &e.Status,
			&e.Attempts, &e.CreatedAt, &e.AppliedAt)
		if err != nil {
			utils.LogError("Failed to scan outbox row: %v", err)
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
