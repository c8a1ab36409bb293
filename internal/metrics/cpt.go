package metrics

import (
	"fmt"

	"github.com/konsulin-care/focus/internal/models"
)

// MinScorableTrials is the smallest session that can be compared against norms.
const MinScorableTrials = 2

// ScoringConfig holds the thresholds of the attention score.
type ScoringConfig struct {
	CompositeConstant      float64
	NormalThreshold        float64
	BorderlineThreshold    float64
	AnticipatoryMaxPercent float64
	MinValidResponses      int
}

func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		CompositeConstant:      1.80,
		NormalThreshold:        0,
		BorderlineThreshold:    -1.80,
		AnticipatoryMaxPercent: 10,
		MinValidResponses:      5,
	}
}

// Score computes the attention metrics of a session from its reconstructed
// trials. norms may be nil, in which case no z-score is available. Sessions
// shorter than MinScorableTrials are never compared against norms.
func Score(results []models.TrialResult, subject models.Subject, norms NormativeLookup, cfg ScoringConfig) models.AttentionMetrics {
	mid := len(results) / 2
	firstHalf, secondHalf := results[:mid], results[mid:]

	m := models.AttentionMetrics{TotalTrials: len(results)}
	countOutcomes(results, &m)
	m.OmissionPercent = percent(m.Omissions, m.TotalTargets)
	m.CommissionPercent = percent(m.Commissions, m.TotalNonTargets)

	m.ResponseTimeMs = CalculateAverageReactionTime(firstHalf).Value
	m.VariabilityMs = CalculateReactionTimeSD(results).Value
	if post := CalculatePostCommissionReactionTime(results); post.Calculated {
		v := post.Value
		m.PostCommissionResponseMs = &v
	}

	m.HitRate, m.FalseAlarmRate = CalculateDetectionRates(secondHalf)
	m.DPrime = DPrime(m.HitRate, m.FalseAlarmRate)

	if norms != nil && len(results) >= MinScorableTrials {
		if ref, ok := norms.Lookup(subject.Age, subject.Gender); ok {
			m.ResponseTimeZ = ZScore(m.ResponseTimeMs, ref.ResponseTime)
			m.DPrimeZ = ZScore(m.DPrime, ref.DPrime)
			m.VariabilityZ = ZScore(m.VariabilityMs, ref.Variability)
			m.NormativeSource = fmt.Sprintf("%s/%s", ref.AgeRange, ref.Gender)
		}
	}

	m.CompositeScore = CompositeScore(cfg.CompositeConstant, m.ResponseTimeZ, m.DPrimeZ, m.VariabilityZ)
	m.ACSInterpretation = Interpret(m.CompositeScore, cfg)
	m.InvalidReasons = validityReasons(m, cfg)
	m.Valid = len(m.InvalidReasons) == 0
	return m
}

func countOutcomes(results []models.TrialResult, m *models.AttentionMetrics) {
	for _, r := range results {
		if r.StimulusType == models.Target {
			m.TotalTargets++
		} else {
			m.TotalNonTargets++
		}
		switch r.Outcome {
		case models.Hit:
			m.Hits++
		case models.Omission:
			m.Omissions++
		case models.Commission:
			m.Commissions++
		case models.CorrectRejection:
			m.CorrectRejections++
		}
		if r.IsAnticipatory {
			m.Anticipatory++
		}
		if r.IsMultipleResponse {
			m.MultipleResponses++
		}
		if r.ValidHit() {
			m.ValidResponses++
		}
	}
}

func validHitTimes(results []models.TrialResult) []float64 {
	var times []float64
	for _, r := range results {
		if r.ValidHit() {
			times = append(times, *r.ResponseTimeMs)
		}
	}
	return times
}

// CalculateAverageReactionTime is the mean response time of non-anticipatory hits.
func CalculateAverageReactionTime(results []models.TrialResult) MetricResult {
	return newMetricResult(validHitTimes(results), Mean)
}

// CalculateReactionTimeSD is the response time variability of non-anticipatory hits.
func CalculateReactionTimeSD(results []models.TrialResult) MetricResult {
	times := validHitTimes(results)
	r := newMetricResult(times, StdDev)
	r.Calculated = len(times) > 1
	return r
}

// CalculatePostCommissionReactionTime is the mean response time of
// non-anticipatory hits that directly follow a commission error.
func CalculatePostCommissionReactionTime(results []models.TrialResult) MetricResult {
	var times []float64
	for _, r := range results {
		if r.FollowsCommission && r.ValidHit() {
			times = append(times, *r.ResponseTimeMs)
		}
	}
	return newMetricResult(times, Mean)
}

// CalculateDetectionRates returns the hit rate and false alarm rate of a set
// of trials. A rate with an empty denominator is 0.5.
func CalculateDetectionRates(results []models.TrialResult) (hitRate, falseAlarmRate float64) {
	var hits, omissions, commissions, rejections int
	for _, r := range results {
		switch r.Outcome {
		case models.Hit:
			hits++
		case models.Omission:
			omissions++
		case models.Commission:
			commissions++
		case models.CorrectRejection:
			rejections++
		}
	}
	hitRate, falseAlarmRate = 0.5, 0.5
	if hits+omissions > 0 {
		hitRate = float64(hits) / float64(hits+omissions)
	}
	if commissions+rejections > 0 {
		falseAlarmRate = float64(commissions) / float64(commissions+rejections)
	}
	return hitRate, falseAlarmRate
}

// CompositeScore sums the available z-scores and adds constant. It is nil
// when no z-score is available.
func CompositeScore(constant float64, zs ...*float64) *float64 {
	var sum float64
	available := false
	for _, z := range zs {
		if z != nil {
			sum += *z
			available = true
		}
	}
	if !available {
		return nil
	}
	score := sum + constant
	return &score
}

// Interpret maps a composite score onto its qualitative category.
func Interpret(score *float64, cfg ScoringConfig) models.Interpretation {
	switch {
	case score == nil:
		return models.InterpretationUnavailable
	case *score >= cfg.NormalThreshold:
		return models.InterpretationNormal
	case *score >= cfg.BorderlineThreshold:
		return models.InterpretationBorderline
	default:
		return models.InterpretationNotWithinNormals
	}
}

func validityReasons(m models.AttentionMetrics, cfg ScoringConfig) []string {
	var reasons []string
	if m.TotalTargets > 0 && percent(m.Anticipatory, m.TotalTargets) > cfg.AnticipatoryMaxPercent {
		reasons = append(reasons, fmt.Sprintf("anticipatory responses %.1f%% of targets exceed %.1f%%",
			percent(m.Anticipatory, m.TotalTargets), cfg.AnticipatoryMaxPercent))
	}
	if m.ValidResponses < cfg.MinValidResponses {
		reasons = append(reasons, fmt.Sprintf("%d valid responses, at least %d required",
			m.ValidResponses, cfg.MinValidResponses))
	}
	return reasons
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
