package metrics

import (
	"github.com/konsulin-care/focus/internal/models"
)

const (
	testStartNs    = int64(1_000_000_000)
	testPeriodNs   = int64(2_000_000_000)
	testDurationNs = int64(100_000_000)
)

func onsetNs(i int) int64 { return testStartNs + int64(i)*testPeriodNs }

// buildLog produces a well-formed event log for seq. responses maps a trial
// index to response offsets in milliseconds after that trial's onset.
func buildLog(seq []models.StimulusType, responses map[int][]float64) []models.TrialEvent {
	events := []models.TrialEvent{{TrialIndex: 0, StimulusType: seq[0], EventType: models.BufferStart, TimestampNs: 0}}
	for i, stim := range seq {
		events = append(events, models.TrialEvent{TrialIndex: i, StimulusType: stim, EventType: models.StimulusOnset, TimestampNs: onsetNs(i)})
		var afterOffset []models.TrialEvent
		for _, ms := range responses[i] {
			ts := onsetNs(i) + int64(ms*1e6)
			correct := stim == models.Target
			evt := models.TrialEvent{TrialIndex: i, StimulusType: stim, EventType: models.Response, TimestampNs: ts, ResponseCorrect: &correct}
			if ts < onsetNs(i)+testDurationNs {
				events = append(events, evt)
			} else {
				afterOffset = append(afterOffset, evt)
			}
		}
		events = append(events, models.TrialEvent{TrialIndex: i, StimulusType: stim, EventType: models.StimulusOffset, TimestampNs: onsetNs(i) + testDurationNs})
		events = append(events, afterOffset...)
	}
	return events
}

func repeat(stim models.StimulusType, n int) []models.StimulusType {
	out := make([]models.StimulusType, n)
	for i := range out {
		out[i] = stim
	}
	return out
}

func hit(i int, rt float64) models.TrialResult {
	return models.TrialResult{TrialIndex: i, StimulusType: models.Target, Outcome: models.Hit, ResponseTimeMs: &rt}
}

func omission(i int) models.TrialResult {
	return models.TrialResult{TrialIndex: i, StimulusType: models.Target, Outcome: models.Omission}
}

func commission(i int, rt float64) models.TrialResult {
	return models.TrialResult{TrialIndex: i, StimulusType: models.NonTarget, Outcome: models.Commission, ResponseTimeMs: &rt}
}

func rejection(i int) models.TrialResult {
	return models.TrialResult{TrialIndex: i, StimulusType: models.NonTarget, Outcome: models.CorrectRejection}
}
