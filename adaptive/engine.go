package adaptive

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/utils"
)

// ExperimentKey is the ranking experiment every bundle is bucketed under.
const ExperimentKey = "practice_engine_v1"

// Ranking variants.
const (
	VariantBalanced = "balanced"
	VariantExplore  = "explore"
)

const (
	exploreTopCount    = 5
	exploreUnseenCount = 5
	unseenRecencyFlat  = 0.4
)

// ScoredItem is one candidate with its computed priority.
type ScoredItem struct {
	Item           models.Item
	ObjectiveTitle string
	Mastery        *models.Mastery
	Priority       float64
}

// Bundle is a ranked, size-limited set of candidate items plus the
// experiment assignment that ranked it.
type Bundle struct {
	Assignment *models.ExperimentAssignment
	Items      []ScoredItem
}

// PracticeEngine scores and ranks candidate items per user from mastery,
// recency and experiment variant.
type PracticeEngine struct {
	db          *db.DB
	experiments *ExperimentManager
	now         func() time.Time
	shuffle     func(n int, swap func(i, j int))
}

func NewPracticeEngine(database *db.DB, experiments *ExperimentManager) *PracticeEngine {
	return &PracticeEngine{
		db:          database,
		experiments: experiments,
		now:         time.Now,
		shuffle:     rand.Shuffle,
	}
}

// Bundle builds the ranked candidate set. It performs no event emission;
// telemetry belongs to RecommendationsFor.
func (e *PracticeEngine) Bundle(userID int64, limit int, objectiveCodes []string, onlyQuizEligible bool) (*Bundle, error) {
	assignment, err := e.experiments.Assign(userID, ExperimentKey, []string{VariantBalanced, VariantExplore})
	if err != nil {
		return nil, err
	}

	scored, err := e.scoredItems(userID, objectiveCodes, onlyQuizEligible)
	if err != nil {
		return nil, err
	}

	ranked := e.rankItems(scored, assignment.Variant)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	utils.LogAdaptive("Bundled %d items for user %d (variant %s, limit %d)",
		len(ranked), userID, assignment.Variant, limit)

	return &Bundle{Assignment: assignment, Items: ranked}, nil
}

// RecommendationsFor produces the flat API-shaped list and emits one
// "surface" telemetry event per surfaced item.
func (e *PracticeEngine) RecommendationsFor(userID int64, limit int) ([]models.Recommendation, error) {
	bundle, err := e.Bundle(userID, limit, nil, false)
	if err != nil {
		return nil, err
	}

	recommendations := make([]models.Recommendation, 0, len(bundle.Items))
	for _, entry := range bundle.Items {
		recommendations = append(recommendations,
			e.transformRecommendation(userID, bundle.Assignment, entry))
	}
	return recommendations, nil
}

func (e *PracticeEngine) scoredItems(userID int64, objectiveCodes []string, onlyQuizEligible bool) ([]ScoredItem, error) {
	masteries, err := e.db.GetUserMasteries(userID)
	if err != nil {
		return nil, err
	}

	candidates, err := e.db.GetCandidateItems(objectiveCodes, onlyQuizEligible)
	if err != nil {
		return nil, err
	}

	now := e.now()
	scored := make([]ScoredItem, 0, len(candidates))
	for _, c := range candidates {
		mastery := masteries[c.Item.ObjectiveCode]
		scored = append(scored, ScoredItem{
			Item:           c.Item,
			ObjectiveTitle: c.ObjectiveTitle,
			Mastery:        mastery,
			Priority:       PriorityForItem(mastery, &c.Item, now),
		})
	}
	return scored, nil
}

func (e *PracticeEngine) rankItems(scored []ScoredItem, variant string) []ScoredItem {
	switch variant {
	case VariantExplore:
		return e.rankExplore(scored)
	default:
		return rankBalanced(scored)
	}
}

// rankBalanced sorts by priority descending, breaking ties by lowest
// mastery score first.
func rankBalanced(scored []ScoredItem) []ScoredItem {
	ranked := make([]ScoredItem, len(scored))
	copy(ranked, scored)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Priority != ranked[j].Priority {
			return ranked[i].Priority > ranked[j].Priority
		}
		return masteryScore(ranked[i].Mastery) < masteryScore(ranked[j].Mastery)
	})
	return ranked
}

// rankExplore takes the top five by priority, then appends up to five
// shuffled items from objectives the user has never attempted,
// deduplicated by item id.
func (e *PracticeEngine) rankExplore(scored []ScoredItem) []ScoredItem {
	sorted := make([]ScoredItem, len(scored))
	copy(sorted, scored)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	top := sorted
	if len(top) > exploreTopCount {
		top = top[:exploreTopCount]
	}

	var unseen []ScoredItem
	for _, entry := range scored {
		if entry.Mastery == nil {
			unseen = append(unseen, entry)
		}
	}
	e.shuffle(len(unseen), func(i, j int) {
		unseen[i], unseen[j] = unseen[j], unseen[i]
	})
	if len(unseen) > exploreUnseenCount {
		unseen = unseen[:exploreUnseenCount]
	}

	combined := make([]ScoredItem, 0, len(top)+len(unseen))
	combined = append(combined, top...)
	combined = append(combined, unseen...)

	seen := make(map[int64]bool, len(combined))
	var result []ScoredItem
	for _, entry := range combined {
		if seen[entry.Item.ID] {
			continue
		}
		seen[entry.Item.ID] = true
		result = append(result, entry)
	}
	return result
}

// PriorityForItem computes an item's practice priority: low mastery raises
// it, recent exposure lowers it, difficulty nudges it.
func PriorityForItem(mastery *models.Mastery, item *models.Item, now time.Time) float64 {
	var base float64
	switch {
	case mastery == nil:
		base = 1.0
	case mastery.Score < 40:
		base = 0.9
	case mastery.Score < 60:
		base = 0.7
	case mastery.Score < 80:
		base = 0.5
	case mastery.Score < 90:
		base = 0.3
	default:
		base = 0.1
	}

	recencyPenalty := unseenRecencyFlat
	if mastery != nil && mastery.LastSeenAt != nil {
		days := now.Sub(*mastery.LastSeenAt).Hours() / 24
		recencyPenalty = utils.ClampFloat(days/14, 0, 0.5)
	}

	var difficultyAdjustment float64
	switch item.Difficulty() {
	case "hard":
		difficultyAdjustment = 0.05
	case "easy":
		difficultyAdjustment = -0.05
	}

	return utils.Round4(base + recencyPenalty + difficultyAdjustment)
}

func masteryScore(m *models.Mastery) float64 {
	if m == nil {
		return 0
	}
	return m.Score
}

func (e *PracticeEngine) transformRecommendation(userID int64, assignment *models.ExperimentAssignment, entry ScoredItem) models.Recommendation {
	var scoreBefore *float64
	level := "unseen"
	if entry.Mastery != nil {
		score := entry.Mastery.Score
		scoreBefore = &score
		level = entry.Mastery.Level
	}

	itemID := entry.Item.ID
	event := &models.RecommendationEvent{
		UserID:        userID,
		ItemID:        &itemID,
		ExperimentKey: assignment.ExperimentKey,
		Variant:       assignment.Variant,
		EventType:     models.EventSurface,
		ScoreBefore:   scoreBefore,
		Meta:          map[string]any{"objective_code": entry.Item.ObjectiveCode},
		OccurredAt:    e.now(),
	}
	if err := e.db.InsertEvent(e.db, event); err != nil {
		utils.LogError("Failed to log surface event for item %d: %v", entry.Item.ID, err)
	}

	var rubric *models.Rubric
	if entry.Item.RubricID != nil {
		if r, err := e.db.GetRubricByID(*entry.Item.RubricID); err == nil {
			rubric = r
		}
	}

	return models.Recommendation{
		ID:               entry.Item.ID,
		ObjectiveCode:    entry.Item.ObjectiveCode,
		Stem:             entry.Item.Stem,
		Type:             entry.Item.Type,
		Rubric:           rubric,
		Meta:             entry.Item.Meta,
		Priority:         entry.Priority,
		RecommendedLevel: level,
		Reason:           reasonFor(assignment.Variant, entry),
	}
}

func reasonFor(variant string, entry ScoredItem) string {
	title := entry.ObjectiveTitle
	if title == "" {
		title = "this objective"
	}

	if variant == VariantExplore {
		return fmt.Sprintf("Explore a new angle on %s.", title)
	}
	if entry.Mastery == nil {
		return fmt.Sprintf("Build initial understanding of %s.", title)
	}
	return fmt.Sprintf("Boost mastery for %s (current score: %.0f).", title, entry.Mastery.Score)
}
