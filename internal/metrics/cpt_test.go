package metrics

import (
	"math"
	"testing"

	"github.com/konsulin-care/focus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticNorms struct {
	stats models.NormativeStats
	ok    bool
}

func (s staticNorms) Lookup(int, string) (models.NormativeStats, bool) { return s.stats, s.ok }

var adultNorms = models.NormativeStats{
	AgeRange:     "20-29",
	Gender:       "female",
	ResponseTime: models.MeanSD{Mean: 380, SD: 60},
	DPrime:       models.MeanSD{Mean: 5.2, SD: 1.1},
	Variability:  models.MeanSD{Mean: 80, SD: 25},
}

// scenarioResults has 8 trials per half; the second half holds 5/5 hits and
// 0/3 commissions.
func scenarioResults() []models.TrialResult {
	return []models.TrialResult{
		rejection(0), hit(1, 410), rejection(2), rejection(3),
		rejection(4), hit(5, 390), rejection(6), rejection(7),
		hit(8, 360), hit(9, 372), rejection(10), hit(11, 401),
		rejection(12), hit(13, 385), rejection(14), hit(15, 366),
	}
}

func TestScore_Scenario(t *testing.T) {
	cfg := DefaultScoringConfig()
	m := Score(scenarioResults(), models.Subject{Age: 24, Gender: "female"}, staticNorms{adultNorms, true}, cfg)

	assert.Equal(t, 16, m.TotalTrials)
	assert.Equal(t, 7, m.Hits)
	assert.Equal(t, 0, m.Commissions)
	assert.Equal(t, 9, m.CorrectRejections)
	assert.Equal(t, 1.0, m.HitRate)
	assert.Equal(t, 0.0, m.FalseAlarmRate)
	assert.InDelta(t, 8.52, m.DPrime, 0.01)

	assert.InDelta(t, 400.0, m.ResponseTimeMs, 1e-9)
	assert.InDelta(t, StdDev([]float64{410, 390, 360, 372, 401, 385, 366}), m.VariabilityMs, 1e-9)

	require.NotNil(t, m.ResponseTimeZ)
	require.NotNil(t, m.DPrimeZ)
	require.NotNil(t, m.VariabilityZ)
	assert.InDelta(t, (400.0-380)/60, *m.ResponseTimeZ, 1e-9)

	require.NotNil(t, m.CompositeScore)
	assert.False(t, math.IsNaN(*m.CompositeScore) || math.IsInf(*m.CompositeScore, 0))
	want := *m.ResponseTimeZ + *m.DPrimeZ + *m.VariabilityZ + 1.80
	assert.InDelta(t, want, *m.CompositeScore, 1e-9)
	assert.Equal(t, Interpret(m.CompositeScore, cfg), m.ACSInterpretation)
	assert.NotEqual(t, models.InterpretationUnavailable, m.ACSInterpretation)
	assert.True(t, m.Valid)
	assert.Equal(t, "20-29/female", m.NormativeSource)
}

func TestScore_MissingNormsIsUnavailable(t *testing.T) {
	for name, norms := range map[string]NormativeLookup{
		"nil table": nil,
		"no row":    staticNorms{ok: false},
	} {
		t.Run(name, func(t *testing.T) {
			m := Score(scenarioResults(), models.Subject{Age: 90, Gender: "male"}, norms, DefaultScoringConfig())
			assert.Nil(t, m.ResponseTimeZ)
			assert.Nil(t, m.DPrimeZ)
			assert.Nil(t, m.VariabilityZ)
			assert.Nil(t, m.CompositeScore)
			assert.Equal(t, models.InterpretationUnavailable, m.ACSInterpretation)
		})
	}
}

func TestScore_ZeroSDNullsOnlyThatZScore(t *testing.T) {
	norms := adultNorms
	norms.ResponseTime.SD = 0
	norms.Variability.SD = math.NaN()

	m := Score(scenarioResults(), models.Subject{}, staticNorms{norms, true}, DefaultScoringConfig())
	assert.Nil(t, m.ResponseTimeZ)
	assert.Nil(t, m.VariabilityZ)
	require.NotNil(t, m.DPrimeZ)
	require.NotNil(t, m.CompositeScore)
	assert.InDelta(t, *m.DPrimeZ+1.80, *m.CompositeScore, 1e-9)
}

func TestScore_AnticipatoryExcludedFromTiming(t *testing.T) {
	anticipatory := hit(1, 120)
	anticipatory.IsAnticipatory = true
	results := []models.TrialResult{
		hit(0, 400), anticipatory, hit(2, 151), rejection(3),
	}
	m := Score(results, models.Subject{}, nil, DefaultScoringConfig())
	assert.InDelta(t, 400.0, m.ResponseTimeMs, 1e-9)
	assert.InDelta(t, StdDev([]float64{400, 151}), m.VariabilityMs, 1e-9)
	assert.Equal(t, 3, m.Hits)
	assert.Equal(t, 1, m.Anticipatory)
	assert.Equal(t, 2, m.ValidResponses)
}

func TestScore_EmptyDenominatorsDefaultToHalf(t *testing.T) {
	results := []models.TrialResult{rejection(0), rejection(1), rejection(2), rejection(3)}
	m := Score(results, models.Subject{}, nil, DefaultScoringConfig())
	assert.Equal(t, 0.5, m.HitRate)
	assert.Equal(t, 0.0, m.FalseAlarmRate)
	assert.Equal(t, 0.0, m.ResponseTimeMs)
	assert.Equal(t, 0.0, m.VariabilityMs)
	assert.Equal(t, 0.0, m.OmissionPercent)
}

func TestScore_Percentages(t *testing.T) {
	results := []models.TrialResult{
		hit(0, 400), omission(1), omission(2), omission(3),
		commission(4, 300), rejection(5),
	}
	m := Score(results, models.Subject{}, nil, DefaultScoringConfig())
	assert.Equal(t, 4, m.TotalTargets)
	assert.Equal(t, 2, m.TotalNonTargets)
	assert.InDelta(t, 75.0, m.OmissionPercent, 1e-9)
	assert.InDelta(t, 50.0, m.CommissionPercent, 1e-9)
}

func TestScore_Validity(t *testing.T) {
	cfg := DefaultScoringConfig()

	m := Score(scenarioResults(), models.Subject{}, nil, cfg)
	assert.True(t, m.Valid)
	assert.Empty(t, m.InvalidReasons)

	results := scenarioResults()
	for _, i := range []int{1, 5} {
		results[i].IsAnticipatory = true
	}
	m = Score(results, models.Subject{}, nil, cfg)
	assert.False(t, m.Valid)
	assert.Len(t, m.InvalidReasons, 1)

	cfg.MinValidResponses = 20
	m = Score(scenarioResults(), models.Subject{}, nil, cfg)
	assert.False(t, m.Valid)
	assert.Contains(t, m.InvalidReasons[0], "valid responses")
}

func TestScore_PostCommissionResponseTime(t *testing.T) {
	after := hit(1, 520)
	after.FollowsCommission = true
	results := []models.TrialResult{commission(0, 300), after, hit(2, 400), rejection(3)}

	m := Score(results, models.Subject{}, nil, DefaultScoringConfig())
	require.NotNil(t, m.PostCommissionResponseMs)
	assert.InDelta(t, 520.0, *m.PostCommissionResponseMs, 1e-9)

	m = Score([]models.TrialResult{hit(0, 400), rejection(1)}, models.Subject{}, nil, DefaultScoringConfig())
	assert.Nil(t, m.PostCommissionResponseMs)
}

func TestInterpret(t *testing.T) {
	cfg := DefaultScoringConfig()
	score := func(v float64) *float64 { return &v }

	assert.Equal(t, models.InterpretationUnavailable, Interpret(nil, cfg))
	assert.Equal(t, models.InterpretationNormal, Interpret(score(0), cfg))
	assert.Equal(t, models.InterpretationNormal, Interpret(score(3.2), cfg))
	assert.Equal(t, models.InterpretationBorderline, Interpret(score(-1.0), cfg))
	assert.Equal(t, models.InterpretationBorderline, Interpret(score(-1.80), cfg))
	assert.Equal(t, models.InterpretationNotWithinNormals, Interpret(score(-1.81), cfg))
}

func TestCompositeScore(t *testing.T) {
	one, two := 1.0, 2.0
	assert.Nil(t, CompositeScore(1.80, nil, nil, nil))

	s := CompositeScore(1.80, &one, nil, &two)
	require.NotNil(t, s)
	assert.InDelta(t, 4.80, *s, 1e-9)
}

func TestScore_ReconstructedPartialSession(t *testing.T) {
	seq := append(repeat(models.NonTarget, 3), repeat(models.Target, 3)...)
	events := buildLog(seq, map[int][]float64{3: {380}, 4: {410}, 5: {395}})
	// Stopped right after trial 5's onset.
	events = events[:len(events)-2]

	results, err := Reconstruct(events)
	require.Error(t, err)
	require.Len(t, results, 5)

	m := Score(results, models.Subject{Age: 24, Gender: "female"}, staticNorms{adultNorms, true}, DefaultScoringConfig())
	assert.Equal(t, 5, m.TotalTrials)
	assert.Equal(t, 2, m.Hits)
	require.NotNil(t, m.CompositeScore)
}

func TestScore_TooFewTrialsIsUnavailable(t *testing.T) {
	for _, results := range [][]models.TrialResult{nil, {hit(0, 400)}} {
		m := Score(results, models.Subject{Age: 24, Gender: "female"}, staticNorms{adultNorms, true}, DefaultScoringConfig())
		assert.Nil(t, m.CompositeScore)
		assert.Equal(t, models.InterpretationUnavailable, m.ACSInterpretation)
		assert.False(t, m.Valid)
	}
}
