package adaptive

import (
	"errors"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/models"
	"github.com/edustack/practice-api/utils"
)

// ErrNoVariants is a configuration error: an experiment cannot bucket users
// into an empty variant list.
var ErrNoVariants = errors.New("experiment requires at least one variant")

// ExperimentManager hands out deterministic, permanent variant assignments.
// A (user, experiment) pair is bucketed exactly once; repeat calls return
// the stored row unchanged.
type ExperimentManager struct {
	db  *db.DB
	now func() time.Time
}

func NewExperimentManager(database *db.DB) *ExperimentManager {
	return &ExperimentManager{db: database, now: time.Now}
}

func (em *ExperimentManager) Assign(userID int64, experimentKey string, variants []string) (*models.ExperimentAssignment, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("assign %q: %w", experimentKey, ErrNoVariants)
	}

	existing, err := em.db.GetAssignment(userID, experimentKey)
	if err == nil {
		return existing, nil
	}

	variant := DeterministicVariant(userID, experimentKey, variants)
	utils.LogAdaptive("Bucketing user %d into %s/%s", userID, experimentKey, variant)

	// The unique constraint resolves a concurrent first-assign race: the
	// losing insert is a no-op and the surviving row is returned.
	return em.db.InsertAssignment(userID, experimentKey, variant, em.now())
}

// DeterministicVariant picks a variant from a stable 32-bit checksum of
// "{userID}|{experimentKey}". No randomness and no clock dependency, so the
// same inputs bucket identically across process restarts.
func DeterministicVariant(userID int64, experimentKey string, variants []string) string {
	hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%d|%s", userID, experimentKey)))

	size := len(variants)
	if size == 0 {
		size = 1
	}
	index := int(hash % uint32(size))
	if index >= len(variants) {
		index = 0
	}
	return variants[index]
}
