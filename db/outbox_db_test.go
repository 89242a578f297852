package db

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/edustack/practice-api/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func createTestUser(t *testing.T, database *DB) int64 {
	t.Helper()

	user, err := database.CreateUser("Test", "User", fmt.Sprintf("user-%d@example.com", time.Now().UnixNano()), "student")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user.ID
}

func createTestSession(t *testing.T, database *DB, userID int64) *models.QuizSession {
	t.Helper()

	session, err := database.CreateQuizSession(database, userID, "balanced", models.QuizSettings{RequestedSize: 5}, time.Now())
	if err != nil {
		t.Fatalf("CreateQuizSession failed: %v", err)
	}
	return session
}

func TestOutboxLifecycle(t *testing.T) {
	database := newTestDB(t)
	userID := createTestUser(t, database)
	session := createTestSession(t, database, userID)

	id, err := database.InsertOutboxEntry(database, session.ID, userID, "alg.1", 75)
	if err != nil {
		t.Fatalf("InsertOutboxEntry failed: %v", err)
	}

	entry, err := database.GetOutboxEntry(id)
	if err != nil {
		t.Fatalf("GetOutboxEntry failed: %v", err)
	}
	if entry.Status != "pending" || entry.Attempts != 0 || entry.AppliedAt != nil {
		t.Errorf("fresh entry: status %q attempts %d applied %v", entry.Status, entry.Attempts, entry.AppliedAt)
	}
	if entry.ObjectiveCode != "alg.1" || entry.Average != 75 {
		t.Errorf("entry payload = %q/%v, want alg.1/75", entry.ObjectiveCode, entry.Average)
	}

	if err := database.IncrementOutboxAttempts(id); err != nil {
		t.Fatalf("IncrementOutboxAttempts failed: %v", err)
	}
	if err := database.MarkOutboxApplied(id, time.Now()); err != nil {
		t.Fatalf("MarkOutboxApplied failed: %v", err)
	}

	entry, err = database.GetOutboxEntry(id)
	if err != nil {
		t.Fatalf("GetOutboxEntry failed: %v", err)
	}
	if entry.Status != "applied" || entry.Attempts != 1 || entry.AppliedAt == nil {
		t.Errorf("applied entry: status %q attempts %d applied %v", entry.Status, entry.Attempts, entry.AppliedAt)
	}
}

func TestListStaleOutboxEntries(t *testing.T) {
	database := newTestDB(t)
	userID := createTestUser(t, database)
	session := createTestSession(t, database, userID)

	pendingID, err := database.InsertOutboxEntry(database, session.ID, userID, "alg.1", 60)
	if err != nil {
		t.Fatalf("InsertOutboxEntry failed: %v", err)
	}
	appliedID, err := database.InsertOutboxEntry(database, session.ID, userID, "alg.2", 80)
	if err != nil {
		t.Fatalf("InsertOutboxEntry failed: %v", err)
	}
	if err := database.MarkOutboxApplied(appliedID, time.Now()); err != nil {
		t.Fatalf("MarkOutboxApplied failed: %v", err)
	}

	// Nothing is stale against a cutoff in the past.
	stale, err := database.ListStaleOutboxEntries(time.Now().Add(-24*time.Hour), 10)
	if err != nil {
		t.Fatalf("ListStaleOutboxEntries failed: %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("expected no stale entries against past cutoff, got %d", len(stale))
	}

	// Against a future cutoff only the pending entry qualifies.
	stale, err = database.ListStaleOutboxEntries(time.Now().Add(24*time.Hour), 10)
	if err != nil {
		t.Fatalf("ListStaleOutboxEntries failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != pendingID {
		t.Fatalf("expected only the pending entry, got %+v", stale)
	}
}

func TestListQuizSessionsFilters(t *testing.T) {
	database := newTestDB(t)
	alice := createTestUser(t, database)
	bob := createTestUser(t, database)

	aliceSession := createTestSession(t, database, alice)
	bobSession := createTestSession(t, database, bob)

	if err := database.MarkSessionSubmitted(database, bobSession.ID, time.Now(), nil, 0, 0, 0); err != nil {
		t.Fatalf("MarkSessionSubmitted failed: %v", err)
	}

	all, err := database.ListQuizSessions("", 0, 50)
	if err != nil {
		t.Fatalf("ListQuizSessions failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all))
	}
	// Submitted sessions sort ahead of active ones.
	if all[0].ID != bobSession.ID {
		t.Errorf("expected submitted session first, got session %d", all[0].ID)
	}

	submitted, err := database.ListQuizSessions(models.SessionStatusSubmitted, 0, 50)
	if err != nil {
		t.Fatalf("ListQuizSessions(submitted) failed: %v", err)
	}
	if len(submitted) != 1 || submitted[0].ID != bobSession.ID {
		t.Fatalf("submitted filter returned %+v", submitted)
	}

	mine, err := database.ListQuizSessions("", alice, 50)
	if err != nil {
		t.Fatalf("ListQuizSessions(student) failed: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != aliceSession.ID {
		t.Fatalf("student filter returned %+v", mine)
	}
}
