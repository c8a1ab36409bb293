package metrics

import (
	"math"
	"math/rand"
	"time"

	"github.com/konsulin-care/focus/internal/models"
)

// Target ratios of the two halves of a session.
const (
	FirstHalfTargetRatio  = 0.225
	SecondHalfTargetRatio = 0.775
)

// RandSource is the random source used for shuffling. *rand.Rand satisfies it.
type RandSource interface {
	Intn(n int) int
}

// NewRandSource returns a non-deterministic source for production sessions.
func NewRandSource() RandSource {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// HalfTargetCounts returns the number of targets in each half of a session of totalTrials.
func HalfTargetCounts(totalTrials int) (first, second int) {
	half := float64(totalTrials / 2)
	return int(math.Round(half * FirstHalfTargetRatio)), int(math.Round(half * SecondHalfTargetRatio))
}

// GenerateSequence builds the stimulus order of a whole session: a
// target-infrequent first half followed by a target-frequent second half,
// each shuffled independently.
func GenerateSequence(totalTrials int, rng RandSource) ([]models.StimulusType, error) {
	if totalTrials < 2 {
		return nil, &models.ConfigError{Field: "totalTrials", Reason: "must be at least 2"}
	}
	if totalTrials%2 != 0 {
		return nil, &models.ConfigError{Field: "totalTrials", Reason: "must be even"}
	}
	if rng == nil {
		rng = NewRandSource()
	}

	half := totalTrials / 2
	firstTargets, secondTargets := HalfTargetCounts(totalTrials)

	first := buildHalf(half, firstTargets)
	second := buildHalf(half, secondTargets)
	shuffle(first, rng)
	shuffle(second, rng)

	return append(first, second...), nil
}

func buildHalf(size, targets int) []models.StimulusType {
	half := make([]models.StimulusType, size)
	for i := range half {
		if i < targets {
			half[i] = models.Target
		} else {
			half[i] = models.NonTarget
		}
	}
	return half
}

// shuffle is a Fisher-Yates shuffle walking from the last index down to 1.
func shuffle(items []models.StimulusType, rng RandSource) {
	for i := len(items) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}
