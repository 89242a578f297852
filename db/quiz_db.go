package db

import (
	"database/sql"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/utils"
)

func (db *DB) CreateQuizSession(q Queryer, userID int64, experimentVariant string, settings models.QuizSettings, startedAt time.Time) (*models.QuizSession, error) {
	publicID := uuid.NewString()
	utils.LogDB("Creating quiz session %s for user %d (variant %s)", publicID, userID, experimentVariant)

	result, err := q.Exec(`
		INSERT INTO quiz_sessions (public_id, user_id, experiment_variant, status, settings, started_at)
		VALUES (?, ?, ?, 'active', ?, ?)
	`, publicID, userID, experimentVariant, encodeJSON(settings), startedAt)
	if err != nil {
		utils.LogError("CreateQuizSession failed: %v", err)
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &models.QuizSession{
		ID:                id,
		PublicID:          publicID,
		UserID:            userID,
		ExperimentVariant: experimentVariant,
		Status:            models.SessionStatusActive,
		Settings:          settings,
		StartedAt:         startedAt,
	}, nil
}

func (db *DB) CreateQuizSessionItem(q Queryer, sessionID, itemID int64, position int) error {
	_, err := q.Exec(`
		INSERT INTO quiz_session_items (quiz_session_id, item_id, position, status)
		VALUES (?, ?, ?, 'pending')
	`, sessionID, itemID, position)
	if err != nil {
		utils.LogError("CreateQuizSessionItem failed (session %d, position %d): %v", sessionID, position, err)
		return err
	}
	return nil
}

func scanQuizSession(row *sql.Row) (*models.QuizSession, error) {
	var s models.QuizSession
	var settingsJSON sql.NullString

	err := row.Scan(&s.ID, &s.PublicID, &s.UserID, &s.ExperimentVariant, &s.Status, &settingsJSON,
		&s.StartedAt, &s.SubmittedAt, &s.AverageScore, &s.CorrectCount, &s.IncorrectCount, &s.PendingReviewCount)
	if err != nil {
		return nil, err
	}

	decodeJSON(settingsJSON, &s.Settings)
	return &s, nil
}

const quizSessionColumns = `id, public_id, user_id, experiment_variant, status, settings,
	started_at, submitted_at, average_score, correct_count, incorrect_count, pending_review_count`

func (db *DB) GetQuizSessionByID(id int64) (*models.QuizSession, error) {
	utils.LogDB("Executing query: GetQuizSessionByID(%d)", id)

	s, err := scanQuizSession(db.QueryRow(
		"SELECT "+quizSessionColumns+" FROM quiz_sessions WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			utils.LogDB("Quiz session ID %d not found", id)
		} else {
			utils.LogError("GetQuizSessionByID(%d) failed: %v", id, err)
		}
		return nil, err
	}
	return s, nil
}

func scanSessionItem(rows *sql.Rows) (*models.QuizSessionItem, error) {
	var it models.QuizSessionItem
	var responseJSON, feedbackJSON sql.NullString

	err := rows.Scan(&it.ID, &it.QuizSessionID, &it.ItemID, &it.Position,
		&responseJSON, &it.Score, &it.Status, &feedbackJSON, &it.Flagged)
	if err != nil {
		return nil, err
	}

	decodeJSON(responseJSON, &it.Response)
	decodeJSON(feedbackJSON, &it.Feedback)
	return &it, nil
}

func (db *DB) GetSessionItems(q Queryer, sessionID int64) ([]models.QuizSessionItem, error) {
	rows, err := q.Query(`
		SELECT id, quiz_session_id, item_id, position, response, score, status, feedback, flagged
		FROM quiz_session_items
		WHERE quiz_session_id = ?
		ORDER BY position
	`, sessionID)
	if err != nil {
		utils.LogError("GetSessionItems(%d) query failed: %v", sessionID, err)
		return nil, err
	}
	defer rows.Close()

	var items []models.QuizSessionItem
	for rows.Next() {
		it, err := scanSessionItem(rows)
		if err != nil {
			utils.LogError("Failed to scan session item row: %v", err)
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

// GetSessionItem loads one session item, enforcing that it belongs to the
// given session.
func (db *DB) GetSessionItem(q Queryer, sessionID, sessionItemID int64) (*models.QuizSessionItem, error) {
	rows, err := q.Query(`
		SELECT id, quiz_session_id, item_id, position, response, score, status, feedback, flagged
		FROM quiz_session_items
		WHERE id = ? AND quiz_session_id = ?
	`, sessionItemID, sessionID)
	if err != nil {
		utils.LogError("GetSessionItem(%d, %d) query failed: %v", sessionID, sessionItemID, err)
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	return scanSessionItem(rows)
}

func (db *DB) UpdateSessionItemResponse(sessionItemID int64, response map[string]any, status string, flagged *bool) error {
	utils.LogDB("Saving response for session item %d (status %s)", sessionItemID, status)

	if flagged != nil {
		_, err := db.Exec(`
			UPDATE quiz_session_items SET response = ?, status = ?, flagged = ? WHERE id = ?
		`, encodeJSON(response), status, *flagged, sessionItemID)
		return err
	}

	_, err := db.Exec(`
		UPDATE quiz_session_items SET response = ?, status = ? WHERE id = ?
	`, encodeJSON(response), status, sessionItemID)
	return err
}

// GradeSessionItem writes score, status and feedback, typically inside the
// submission or review transaction.
func (db *DB) GradeSessionItem(q Queryer, sessionItemID int64, score *float64, status string, feedback map[string]any) error {
	_, err := q.Exec(`
		UPDATE quiz_session_items SET score = ?, status = ?, feedback = ? WHERE id = ?
	`, score, status, encodeJSON(feedback), sessionItemID)
	if err != nil {
		utils.LogError("GradeSessionItem(%d) failed: %v", sessionItemID, err)
	}
	return err
}

func (db *DB) MarkSessionSubmitted(q Queryer, sessionID int64, submittedAt time.Time, average *float64, correct, incorrect, pendingReview int) error {
	utils.LogDB("Marking session %d submitted (correct=%d, incorrect=%d, pending=%d)",
		sessionID, correct, incorrect, pendingReview)

	_, err := q.Exec(`
		UPDATE quiz_sessions
		SET status = 'submitted', submitted_at = ?, average_score = ?,
			correct_count = ?, incorrect_count = ?, pending_review_count = ?
		WHERE id = ?
	`, submittedAt, average, correct, incorrect, pendingReview, sessionID)
	if err != nil {
		utils.LogError("MarkSessionSubmitted(%d) failed: %v", sessionID, err)
	}
	return err
}

func (db *DB) UpdateSessionSummary(q Queryer, sessionID int64, average *float64, correct, incorrect, pendingReview int) error {
	_, err := q.Exec(`
		UPDATE quiz_sessions
		SET average_score = ?, correct_count = ?, incorrect_count = ?, pending_review_count = ?
		WHERE id = ?
	`, average, correct, incorrect, pendingReview, sessionID)
	if err != nil {
		utils.LogError("UpdateSessionSummary(%d) failed: %v", sessionID, err)
	}
	return err
}

// ComputeSessionSummary derives the aggregate counts and average directly
// from the current item rows. The average covers scored items only.
func (db *DB) ComputeSessionSummary(q Queryer, sessionID int64) (average *float64, correct, incorrect, pendingReview int, err error) {
	var avg sql.NullFloat64
	err = q.QueryRow(`
		SELECT AVG(score),
		       COALESCE(SUM(CASE WHEN status = 'correct' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'incorrect' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'pending_review' THEN 1 ELSE 0 END), 0)
		FROM quiz_session_items
		WHERE quiz_session_id = ?
	`, sessionID).Scan(&avg, &correct, &incorrect, &pendingReview)
	if err != nil {
		utils.LogError("ComputeSessionSummary(%d) failed: %v", sessionID, err)
		return nil, 0, 0, 0, err
	}

	if avg.Valid {
		rounded := math.Round(avg.Float64*100) / 100
		average = &rounded
	}
	return average, correct, incorrect, pendingReview, nil
}

// GetSessionDetail loads a session with its items joined to question content.
func (db *DB) GetSessionDetail(sessionID int64) (*models.QuizSessionDetail, error) {
	session, err := db.GetQuizSessionByID(sessionID)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT si.id, si.quiz_session_id, si.item_id, si.position, si.response, si.score, si.status, si.feedback, si.flagged,
		       i.id, i.learning_objective_id, i.objective_code, i.rubric_id, i.stem, i.type,
		       i.options, i.answer, i.rationale, i.meta, i.is_quiz_eligible, i.created_at, i.updated_at,
		       COALESCE(o.title, '')
		FROM quiz_session_items si
		JOIN items i ON si.item_id = i.id
		LEFT JOIN learning_objectives o ON i.learning_objective_id = o.id
		WHERE si.quiz_session_id = ?
		ORDER BY si.position
	`, sessionID)
	if err != nil {
		utils.LogError("GetSessionDetail(%d) query failed: %v", sessionID, err)
		return nil, err
	}
	defer rows.Close()

	detail := &models.QuizSessionDetail{Session: *session}
	for rows.Next() {
		var d models.QuizSessionItemDetail
		var responseJSON, feedbackJSON, optionsJSON, rationale, metaJSON sql.NullString

		err := rows.Scan(&d.ID, &d.QuizSessionID, &d.ItemID, &d.Position,
			&responseJSON, &d.Score, &d.Status, &feedbackJSON, &d.Flagged,
			&d.Item.ID, &d.Item.LearningObjectiveID, &d.Item.ObjectiveCode, &d.Item.RubricID,
			&d.Item.Stem, &d.Item.Type, &optionsJSON, &d.Item.Answer, &rationale, &metaJSON,
			&d.Item.IsQuizEligible, &d.Item.CreatedAt, &d.Item.UpdatedAt, &d.ObjectiveTitle)
		if err != nil {
			utils.LogError("Failed to scan session detail row: %v", err)
			return nil, err
		}

		decodeJSON(responseJSON, &d.Response)
		decodeJSON(feedbackJSON, &d.Feedback)
		decodeJSON(optionsJSON, &d.Item.Options)
		decodeJSON(metaJSON, &d.Item.Meta)
		d.Item.Rationale = rationale.String
		detail.Items = append(detail.Items, d)
	}
	return detail, rows.Err()
}

// ListQuizSessions returns sessions for the teacher dashboard, newest
// submissions first. Zero-value filters are skipped.
func (db *DB) ListQuizSessions(status string, studentID int64, limit int) ([]models.QuizSession, error) {
	utils.LogDB("Listing quiz sessions (status=%q, student=%d, limit=%d)", status, studentID, limit)

	query := "SELECT " + quizSessionColumns + " FROM quiz_sessions WHERE 1=1"
	var args []any

	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if studentID != 0 {
		query += " AND user_id = ?"
		args = append(args, studentID)
	}
	query += " ORDER BY submitted_at IS NULL, submitted_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		utils.LogError("ListQuizSessions query failed: %v", err)
		return nil, err
	}
	defer rows.Close()

	var sessions []models.QuizSession
	for rows.Next() {
		var s models.QuizSession
		var settingsJSON sql.NullString

		err := rows.Scan(&s.ID, &s.PublicID, &s.UserID, &s.ExperimentVariant, &s.Status, &settingsJSON,
			&s.StartedAt, &s.SubmittedAt, &s.AverageScore, &s.CorrectCount, &s.IncorrectCount, &s.PendingReviewCount)
		if err != nil {
			utils.LogError("Failed to scan quiz session row: %v", err)
			return nil, err
		}

		decodeJSON(settingsJSON, &s.Settings)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// UpsertQuizReview writes the review record, one per session.
func (db *DB) UpsertQuizReview(q Queryer, sessionID, teacherID int64, status, notes string, reviewedAt *time.Time) error {
	utils.LogDB("Upserting review for session %d by teacher %d (status %s)", sessionID, teacherID, status)

	_, err := q.Exec(`
		INSERT INTO quiz_reviews (quiz_session_id, teacher_id, status, notes, reviewed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(quiz_session_id) DO UPDATE SET
			teacher_id = excluded.teacher_id,
			status = excluded.status,
			notes = excluded.notes,
			reviewed_at = excluded.reviewed_at
	`, sessionID, teacherID, status, notes, reviewedAt)
	if err != nil {
		utils.LogError("UpsertQuizReview(%d) failed: %v", sessionID, err)
	}
	return err
}

func (db *DB) GetQuizReview(sessionID int64) (*models.QuizReview, error) {
	var r models.QuizReview
	var notes sql.NullString

	err := db.QueryRow(`
		SELECT id, quiz_session_id, teacher_id, status, notes, reviewed_at
		FROM quiz_reviews WHERE quiz_session_id = ?
	`, sessionID).Scan(&r.ID, &r.QuizSessionID, &r.TeacherID, &r.Status, &notes, &r.ReviewedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			utils.LogError("GetQuizReview(%d) failed: %v", sessionID, err)
		}
		return nil, err
	}

	r.Notes = notes.String
	return &r, nil
}
