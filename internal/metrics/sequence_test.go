package metrics

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/konsulin-care/focus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countTargets(seq []models.StimulusType) int {
	n := 0
	for _, s := range seq {
		if s == models.Target {
			n++
		}
	}
	return n
}

func TestGenerateSequence_HalfRatios(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 2; n <= 700; n += 2 {
		seq, err := GenerateSequence(n, rng)
		require.NoError(t, err)
		require.Len(t, seq, n)

		half := n / 2
		wantFirst := int(math.Round(float64(half) * 0.225))
		wantSecond := int(math.Round(float64(half) * 0.775))
		assert.Equal(t, wantFirst, countTargets(seq[:half]), "first half targets for n=%d", n)
		assert.Equal(t, wantSecond, countTargets(seq[half:]), "second half targets for n=%d", n)
	}
}

func TestGenerateSequence_StandardSession(t *testing.T) {
	seq, err := GenerateSequence(648, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	first, second := HalfTargetCounts(648)
	assert.Equal(t, 73, first)
	assert.Equal(t, 251, second)
	assert.Equal(t, first, countTargets(seq[:324]))
	assert.Equal(t, second, countTargets(seq[324:]))
	for _, s := range seq {
		assert.Contains(t, []models.StimulusType{models.Target, models.NonTarget}, s)
	}
}

func TestGenerateSequence_ReproducibleWithSeed(t *testing.T) {
	a, err := GenerateSequence(100, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	b, err := GenerateSequence(100, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerateSequence_InvalidLength(t *testing.T) {
	for _, n := range []int{-2, 0, 1, 3, 647} {
		_, err := GenerateSequence(n, rand.New(rand.NewSource(1)))
		require.Error(t, err, "n=%d", n)
		assert.True(t, errors.Is(err, models.ErrConfig), "n=%d", n)
	}
}

// fixedRand always draws index 0.
type fixedRand struct{ draws []int }

func (f *fixedRand) Intn(n int) int {
	f.draws = append(f.draws, n)
	return 0
}

func TestShuffle_VisitsIndicesFromLastToSecond(t *testing.T) {
	items := []models.StimulusType{models.Target, models.NonTarget, models.NonTarget, models.NonTarget}
	rng := &fixedRand{}
	shuffle(items, rng)

	assert.Equal(t, []int{4, 3, 2}, rng.draws)
	assert.Equal(t, []models.StimulusType{models.NonTarget, models.NonTarget, models.NonTarget, models.Target}, items)
}
