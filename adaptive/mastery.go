package adaptive

import (
	"database/sql"
	"math"
	"time"

	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/utils"
)

// Mastery levels, highest first.
const (
	LevelMastery    = "mastery"
	LevelStrong     = "strong"
	LevelProficient = "proficient"
	LevelCompetent  = "competent"
	LevelDeveloping = "developing"
	LevelEmerging   = "emerging"
)

// Weights of the attempt-path blend. The previous score's contribution
// decays with the age of the attempt (half-life about one week).
const (
	attemptWeight      = 0.6
	previousWeight     = 0.3
	decayHalfLifeHours = 168.0
	reflectionPerBonus = 2.5
	reflectionCap      = 3
)

// MasteryScoringService maintains the per-user-per-objective mastery rows.
// Updates are best-effort enrichment: an attempt whose item has no learning
// objective is silently skipped, never an error.
type MasteryScoringService struct {
	db  *db.DB
	now func() time.Time
}

func NewMasteryScoringService(database *db.DB) *MasteryScoringService {
	return &MasteryScoringService{db: database, now: time.Now}
}

func (s *MasteryScoringService) UpdateForAttempt(attemptID int64) error {
	attempt, err := s.db.GetAttemptByID(attemptID)
	if err != nil {
		return err
	}

	if attempt.ObjectiveCode == "" {
		utils.LogAdaptive("Attempt %d has no learning objective, skipping mastery update", attemptID)
		return nil
	}

	previous := 0.0
	if mastery, err := s.db.GetMastery(attempt.UserID, attempt.ObjectiveCode); err == nil {
		previous = mastery.Score
	} else if err != sql.ErrNoRows {
		return err
	}

	attemptScore := 0.0
	if attempt.Score != nil {
		attemptScore = utils.ClampFloat(*attempt.Score, 0, 100)
	}

	reflections, err := s.db.CountReflections(attemptID)
	if err != nil {
		return err
	}

	recency := DecayFactor(attempt.CreatedAt, s.now())
	newScore := utils.Round2(
		attemptScore*attemptWeight +
			previous*previousWeight*recency +
			ReflectionBonus(reflections))

	utils.LogAdaptive("Mastery update (attempt %d): user %d, objective %s, %.2f -> %.2f (decay %.4f, reflections %d)",
		attemptID, attempt.UserID, attempt.ObjectiveCode, previous, newScore, recency, reflections)

	return s.db.UpsertMastery(attempt.UserID, attempt.ObjectiveCode,
		LevelForScore(newScore), newScore, attempt.CreatedAt)
}

func (s *MasteryScoringService) UpdateForReflection(reflectionID int64) error {
	attemptID, err := s.db.GetReflectionAttemptID(reflectionID)
	if err == sql.ErrNoRows {
		utils.LogAdaptive("Reflection %d has no attempt, skipping mastery update", reflectionID)
		return nil
	}
	if err != nil {
		return err
	}
	return s.UpdateForAttempt(attemptID)
}

// UpdateFromQuiz blends the previous score 50/50 with a quiz objective
// average. Quizzes are a coarser signal than graded attempts, so there is
// no decay and no reflection bonus.
func (s *MasteryScoringService) UpdateFromQuiz(userID int64, objectiveCode string, score float64) error {
	if _, err := s.db.GetObjectiveByCode(objectiveCode); err != nil {
		if err == sql.ErrNoRows {
			utils.LogAdaptive("Objective %s not found, skipping quiz mastery update", objectiveCode)
			return nil
		}
		return err
	}

	previous := 0.0
	if mastery, err := s.db.GetMastery(userID, objectiveCode); err == nil {
		previous = mastery.Score
	} else if err != sql.ErrNoRows {
		return err
	}

	newScore := utils.Round2(previous*0.5 + utils.ClampFloat(score, 0, 100)*0.5)

	utils.LogAdaptive("Quiz mastery update: user %d, objective %s, %.2f -> %.2f",
		userID, objectiveCode, previous, newScore)

	return s.db.UpsertMastery(userID, objectiveCode, LevelForScore(newScore), newScore, s.now())
}

// DecayFactor discounts the previous score's contribution by the age of
// the attempt: exp(-hours/168).
func DecayFactor(at, now time.Time) float64 {
	hours := now.Sub(at).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Exp(-hours / decayHalfLifeHours)
}

// ReflectionBonus rewards up to three reflections at 2.5 points each.
func ReflectionBonus(count int) float64 {
	if count <= 0 {
		return 0
	}
	if count > reflectionCap {
		count = reflectionCap
	}
	return float64(count) * reflectionPerBonus
}

// LevelForScore maps a numeric score to its categorical level.
func LevelForScore(score float64) string {
	switch {
	case score >= 95:
		return LevelMastery
	case score >= 85:
		return LevelStrong
	case score >= 75:
		return LevelProficient
	case score >= 60:
		return LevelCompetent
	case score >= 40:
		return LevelDeveloping
	default:
		return LevelEmerging
	}
}
