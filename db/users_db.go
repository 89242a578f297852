package db

import (
	"database/sql"

	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/utils"
)

func (db *DB) CreateUser(firstName, lastName, email, role string) (*models.User, error) {
	utils.LogDB("Creating user: %s (%s)", email, role)

	if role == "" {
		role = "student"
	}

	result, err := db.Exec(`
		INSERT INTO users (first_name, last_name, email, role)
		VALUES (?, ?, ?, ?)
	`, firstName, lastName, email, role)
	if err != nil {
		utils.LogError("CreateUser failed: %v", err)
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.GetUserByID(id)
}

func (db *DB) GetUserByID(id int64) (*models.User, error) {
	utils.LogDB("Executing query: GetUserByID(%d)", id)

	var u models.User
	err := db.QueryRow(`
		SELECT id, first_name, last_name, email, role, created_at
		FROM users WHERE id = ?
	`, id).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Role, &u.CreatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			utils.LogDB("User ID %d not found", id)
		} else {
			utils.LogError("GetUserByID(%d) failed: %v", id, err)
		}
		return nil, err
	}
	return &u, nil
}
