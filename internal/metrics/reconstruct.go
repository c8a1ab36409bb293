package metrics

import (
	"sort"

	"github.com/konsulin-care/focus/internal/models"
)

// Reconstruct replays a session event log and rebuilds the per-trial
// outcomes used for scoring. Events are ordered by timestamp, so responses
// that arrived out of order land in the window they belong to.
//
// The result list is always best effort. A non-nil error is a
// *models.DataError describing the entries that could not be used.
func Reconstruct(events []models.TrialEvent) ([]models.TrialResult, error) {
	dataErr := &models.DataError{}

	ordered := make([]models.TrialEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return eventLess(ordered[i], ordered[j])
	})

	c := NewClassifier()
	results := make([]models.TrialResult, 0, len(ordered)/2)
	onsets := make(map[int]bool)
	offsets := make(map[int]bool)
	lastOnset := -1

	for _, evt := range ordered {
		switch evt.EventType {
		case models.BufferStart:
		case models.StimulusOnset:
			if onsets[evt.TrialIndex] {
				dataErr.Addf("duplicate onset for trial %d", evt.TrialIndex)
				continue
			}
			if evt.TrialIndex <= lastOnset {
				dataErr.Addf("onset for trial %d after trial %d", evt.TrialIndex, lastOnset)
				continue
			}
			if evt.StimulusType != models.Target && evt.StimulusType != models.NonTarget {
				dataErr.Addf("trial %d has unknown stimulus type %q", evt.TrialIndex, evt.StimulusType)
				continue
			}
			if lastOnset >= 0 && !offsets[lastOnset] {
				dataErr.Addf("trial %d has no offset", lastOnset)
			}
			onsets[evt.TrialIndex] = true
			if closed, ok := c.Open(evt.TrialIndex, evt.StimulusType, evt.TimestampNs); ok {
				results = append(results, closed)
			}
			lastOnset = evt.TrialIndex
		case models.StimulusOffset:
			if !onsets[evt.TrialIndex] {
				dataErr.Addf("offset for trial %d without onset", evt.TrialIndex)
				continue
			}
			if offsets[evt.TrialIndex] {
				dataErr.Addf("duplicate offset for trial %d", evt.TrialIndex)
				continue
			}
			offsets[evt.TrialIndex] = true
		case models.Response:
			if _, ok := c.Record(evt.TimestampNs); !ok {
				dataErr.Addf("response at %dns outside any response window", evt.TimestampNs)
			}
		default:
			dataErr.Addf("unknown event type %q", evt.EventType)
		}
	}

	// The last window closes at the end of the log. A trial cut off before
	// its offset without any response carries no information and is dropped.
	if p, ok := c.Pending(); ok {
		if !offsets[p.TrialIndex] && p.ResponseCount == 0 {
			dataErr.Addf("trial %d truncated before offset, dropped", p.TrialIndex)
		} else if closed, ok := c.Close(); ok {
			results = append(results, closed)
		}
	}

	return results, dataErr.OrNil()
}

// eventLess orders by timestamp. At equal timestamps, presentation events
// come before responses and are ordered by trial, then onset before offset.
func eventLess(a, b models.TrialEvent) bool {
	if a.TimestampNs != b.TimestampNs {
		return a.TimestampNs < b.TimestampNs
	}
	aResp, bResp := a.EventType == models.Response, b.EventType == models.Response
	if aResp != bResp {
		return bResp
	}
	if aResp {
		return false
	}
	if a.TrialIndex != b.TrialIndex {
		return a.TrialIndex < b.TrialIndex
	}
	return eventRank(a.EventType) < eventRank(b.EventType)
}

func eventRank(t models.EventType) int {
	switch t {
	case models.BufferStart:
		return 0
	case models.StimulusOnset:
		return 1
	case models.StimulusOffset:
		return 2
	default:
		return 3
	}
}
