package metrics

import (
	"github.com/konsulin-care/focus/internal/models"
)

// AnticipatoryThresholdMs is the response time below which a response is
// presumed not to be a reaction to the stimulus.
const AnticipatoryThresholdMs = 150.0

// Classification is the result of recording one response.
type Classification struct {
	TrialIndex         int                 `json:"trialIndex"`
	StimulusType       models.StimulusType `json:"stimulusType"`
	Outcome            models.TrialOutcome `json:"outcome"`
	ResponseTimeMs     float64             `json:"responseTimeMs"`
	IsAnticipatory     bool                `json:"isAnticipatory"`
	IsMultipleResponse bool                `json:"isMultipleResponse"`
	Correct            bool                `json:"correct"`
	// Late is set when the response revised a trial whose window had
	// already closed.
	Late bool `json:"late,omitempty"`
}

// LiveCounts are running tallies for interactive feedback.
type LiveCounts struct {
	Hits              int `json:"hits"`
	Omissions         int `json:"omissions"`
	Commissions       int `json:"commissions"`
	CorrectRejections int `json:"correctRejections"`
	Anticipatory      int `json:"anticipatory"`
	MultipleResponses int `json:"multipleResponses"`
}

type window struct {
	pos     int
	pending models.PendingResponse
	result  models.TrialResult
	firstNs int64
}

// Classifier turns response timestamps into trial outcomes. The window of
// trial i opens at its onset and closes at the onset of trial i+1 or at the
// end of the session. At most one window is open, but closed windows are
// kept so a response stamped inside one of them and delivered after the
// boundary still lands in its own trial.
//
// Classifier is not safe for concurrent use; the scheduler serializes access.
type Classifier struct {
	windows []*window
	open    *window
	counts  LiveCounts
}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Open closes the current window, if any, and opens the window of trialIndex.
// The closed trial's result is returned.
func (c *Classifier) Open(trialIndex int, stimulus models.StimulusType, onsetNs int64) (models.TrialResult, bool) {
	closed, ok := c.Close()
	follows := false
	if n := len(c.windows); n > 0 {
		follows = c.windows[n-1].result.Outcome == models.Commission
	}
	w := &window{
		pos: len(c.windows),
		pending: models.PendingResponse{
			TrialIndex:       trialIndex,
			StimulusType:     stimulus,
			OnsetTimestampNs: onsetNs,
			ExpectedResponse: stimulus == models.Target,
		},
		result: models.TrialResult{
			TrialIndex:        trialIndex,
			StimulusType:      stimulus,
			FollowsCommission: follows,
		},
	}
	c.windows = append(c.windows, w)
	c.open = w
	return closed, ok
}

// Record classifies a response against the window that contains its
// timestamp. It returns false if no window is open or the timestamp precedes
// every window of the run.
func (c *Classifier) Record(timestampNs int64) (Classification, bool) {
	if c.open == nil {
		return Classification{}, false
	}
	w := c.windowAt(timestampNs)
	if w == nil {
		return Classification{}, false
	}

	p := &w.pending
	p.ResponseCount++
	if p.ResponseCount == 1 {
		if w != c.open {
			c.uncountEmpty(w)
		}
		c.setFirstResponse(w, timestampNs)
		if p.ExpectedResponse {
			w.result.Outcome = models.Hit
			c.counts.Hits++
		} else {
			w.result.Outcome = models.Commission
			c.counts.Commissions++
			if next := w.pos + 1; next < len(c.windows) {
				c.windows[next].result.FollowsCommission = true
			}
		}
	} else {
		if !w.result.IsMultipleResponse {
			c.counts.MultipleResponses++
		}
		w.result.IsMultipleResponse = true
		// Delivered out of order: the earliest response decides the timing.
		if timestampNs < w.firstNs {
			c.setFirstResponse(w, timestampNs)
		}
	}

	return Classification{
		TrialIndex:         p.TrialIndex,
		StimulusType:       p.StimulusType,
		Outcome:            w.result.Outcome,
		ResponseTimeMs:     float64(timestampNs-p.OnsetTimestampNs) / 1e6,
		IsAnticipatory:     timestampNs == w.firstNs && w.result.IsAnticipatory,
		IsMultipleResponse: w.result.IsMultipleResponse,
		Correct:            p.ExpectedResponse,
		Late:               w != c.open,
	}, true
}

// Close finalizes the open window. A window without responses becomes an
// Omission for a target and a CorrectRejection otherwise.
func (c *Classifier) Close() (models.TrialResult, bool) {
	w := c.open
	if w == nil {
		return models.TrialResult{}, false
	}
	if w.pending.ResponseCount == 0 {
		if w.pending.ExpectedResponse {
			w.result.Outcome = models.Omission
			c.counts.Omissions++
		} else {
			w.result.Outcome = models.CorrectRejection
			c.counts.CorrectRejections++
		}
	}
	c.open = nil
	return w.result, true
}

// Pending returns a copy of the open window.
func (c *Classifier) Pending() (models.PendingResponse, bool) {
	if c.open == nil {
		return models.PendingResponse{}, false
	}
	return c.open.pending, true
}

func (c *Classifier) Counts() LiveCounts {
	return c.counts
}

// Clear drops every window and all tallies.
func (c *Classifier) Clear() {
	*c = Classifier{}
}

// windowAt returns the last window whose onset is at or before ts.
func (c *Classifier) windowAt(ts int64) *window {
	for i := len(c.windows) - 1; i >= 0; i-- {
		if c.windows[i].pending.OnsetTimestampNs <= ts {
			return c.windows[i]
		}
	}
	return nil
}

func (c *Classifier) setFirstResponse(w *window, ts int64) {
	if w.result.IsAnticipatory {
		c.counts.Anticipatory--
	}
	rt := float64(ts-w.pending.OnsetTimestampNs) / 1e6
	w.firstNs = ts
	w.result.ResponseTimeMs = &rt
	w.result.IsAnticipatory = rt < AnticipatoryThresholdMs
	if w.result.IsAnticipatory {
		c.counts.Anticipatory++
	}
}

// uncountEmpty withdraws the outcome a closed window got for having no
// response.
func (c *Classifier) uncountEmpty(w *window) {
	switch w.result.Outcome {
	case models.Omission:
		c.counts.Omissions--
	case models.CorrectRejection:
		c.counts.CorrectRejections--
	}
}
