package db

import (
	"database/sql"
	"fmt"

	"github.com/edustack/practice-api/utils"
	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	*sql.DB
}

// Queryer is satisfied by both *sql.DB and *sql.Tx so row-level helpers can
// run inside or outside a transaction.
type Queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func InitDB(dbPath string) (*DB, error) {
	utils.LogStartup("Initializing database at: %s", dbPath)

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		utils.LogError("Failed to open database: %v", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		utils.LogError("Failed to ping database: %v", err)
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		utils.LogError("Failed to enable foreign keys: %v", err)
		return nil, err
	}

	utils.LogStartup("Database connection established")

	if err := createTables(db); err != nil {
		utils.LogError("Failed to create tables: %v", err)
		return nil, err
	}

	utils.LogStartup("Database tables initialized successfully")
	return &DB{db}, nil
}

// WithTx runs fn inside a transaction, rolling back on error.
func (db *DB) WithTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			utils.LogError("Rollback failed: %v (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		// Users table. Accounts are provisioned upstream; this table only
		// carries identity and role.
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT UNIQUE NOT NULL,
			role TEXT NOT NULL DEFAULT 'student' CHECK (role IN ('student', 'teacher', 'admin')),
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Learning objectives
		`CREATE TABLE IF NOT EXISTS learning_objectives (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT UNIQUE NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			standards TEXT, -- JSON array
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Rubrics
		`CREATE TABLE IF NOT EXISTS rubrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			criteria TEXT, -- JSON array
			levels TEXT, -- JSON array
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Items (questions)
		`CREATE TABLE IF NOT EXISTS items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			learning_objective_id INTEGER,
			objective_code TEXT NOT NULL DEFAULT '',
			rubric_id INTEGER,
			stem TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'MCQ' CHECK (type IN ('MCQ', 'SAQ')),
			options TEXT, -- JSON array
			answer TEXT NOT NULL,
			rationale TEXT,
			meta TEXT, -- JSON object
			is_quiz_eligible BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (learning_objective_id) REFERENCES learning_objectives(id),
			FOREIGN KEY (rubric_id) REFERENCES rubrics(id)
		)`,

		// Masteries: one row per (user, objective)
		`CREATE TABLE IF NOT EXISTS masteries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			objective_code TEXT NOT NULL,
			level TEXT NOT NULL DEFAULT 'emerging',
			score REAL NOT NULL DEFAULT 0,
			last_seen_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, objective_code),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Attempts
		`CREATE TABLE IF NOT EXISTS attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			item_id INTEGER NOT NULL,
			response TEXT NOT NULL,
			score REAL,
			meta TEXT, -- JSON object
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY (item_id) REFERENCES items(id)
		)`,

		// Feedback trail on attempts
		`CREATE TABLE IF NOT EXISTS feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			attempt_id INTEGER UNIQUE NOT NULL,
			body TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (attempt_id) REFERENCES attempts(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS feedback_reflections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			feedback_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (feedback_id) REFERENCES feedback(id) ON DELETE CASCADE
		)`,

		// Experiment assignments: immutable once created
		`CREATE TABLE IF NOT EXISTS adaptive_experiment_assignments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			experiment_key TEXT NOT NULL,
			variant TEXT NOT NULL,
			assigned_at DATETIME NOT NULL,
			UNIQUE (user_id, experiment_key),
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Append-only telemetry stream
		`CREATE TABLE IF NOT EXISTS adaptive_recommendation_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			public_id TEXT UNIQUE NOT NULL,
			user_id INTEGER NOT NULL,
			item_id INTEGER,
			experiment_key TEXT NOT NULL,
			variant TEXT NOT NULL,
			event_type TEXT NOT NULL,
			score_before REAL,
			score_after REAL,
			meta TEXT, -- JSON object
			occurred_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		// Quiz sessions
		`CREATE TABLE IF NOT EXISTS quiz_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			public_id TEXT UNIQUE NOT NULL,
			user_id INTEGER NOT NULL,
			experiment_variant TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'active', 'submitted')),
			settings TEXT, -- JSON object
			started_at DATETIME,
			submitted_at DATETIME,
			average_score REAL,
			correct_count INTEGER NOT NULL DEFAULT 0,
			incorrect_count INTEGER NOT NULL DEFAULT 0,
			pending_review_count INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS quiz_session_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			quiz_session_id INTEGER NOT NULL,
			item_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			response TEXT, -- JSON object, always {"value": ...}
			score REAL,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'answered', 'pending_review', 'correct', 'incorrect')),
			feedback TEXT, -- JSON object
			flagged BOOLEAN NOT NULL DEFAULT 0,
			UNIQUE (quiz_session_id, position),
			FOREIGN KEY (quiz_session_id) REFERENCES quiz_sessions(id) ON DELETE CASCADE,
			FOREIGN KEY (item_id) REFERENCES items(id)
		)`,

		// One review per session
		`CREATE TABLE IF NOT EXISTS quiz_reviews (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			quiz_session_id INTEGER UNIQUE NOT NULL,
			teacher_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'reviewed', 'approved')),
			notes TEXT,
			reviewed_at DATETIME,
			FOREIGN KEY (quiz_session_id) REFERENCES quiz_sessions(id) ON DELETE CASCADE,
			FOREIGN KEY (teacher_id) REFERENCES users(id)
		)`,

		// Post-commit mastery recompute outbox
		`CREATE TABLE IF NOT EXISTS mastery_outbox (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			quiz_session_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			objective_code TEXT NOT NULL,
			average REAL NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'applied')),
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			applied_at DATETIME,
			FOREIGN KEY (quiz_session_id) REFERENCES quiz_sessions(id) ON DELETE CASCADE
		)`,
	}

	for i, query := range queries {
		utils.LogDB("Creating table %d/%d", i+1, len(queries))
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	// Create indexes for performance
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_items_objective_code ON items(objective_code)",
		"CREATE INDEX IF NOT EXISTS idx_items_quiz_eligible ON items(is_quiz_eligible)",
		"CREATE INDEX IF NOT EXISTS idx_masteries_user_id ON masteries(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_attempts_user_id ON attempts(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_events_user_id ON adaptive_recommendation_events(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_events_event_type ON adaptive_recommendation_events(event_type)",
		"CREATE INDEX IF NOT EXISTS idx_quiz_sessions_user_id ON quiz_sessions(user_id)",
		"CREATE INDEX IF NOT EXISTS idx_quiz_sessions_status ON quiz_sessions(status)",
		"CREATE INDEX IF NOT EXISTS idx_quiz_session_items_session ON quiz_session_items(quiz_session_id)",
		"CREATE INDEX IF NOT EXISTS idx_mastery_outbox_status ON mastery_outbox(status)",
	}

	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil {
			utils.LogDB("Failed to create index (non-fatal): %v", err)
		}
	}

	return nil
}
