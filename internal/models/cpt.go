package models

// StimulusType is the category of a single stimulus presentation.
type StimulusType string

const (
	Target    StimulusType = "target"
	NonTarget StimulusType = "non_target"
)

// EventType identifies what happened at a point on the session timeline.
type EventType string

const (
	BufferStart    EventType = "buffer_start"
	StimulusOnset  EventType = "stimulus_onset"
	StimulusOffset EventType = "stimulus_offset"
	Response       EventType = "response"
)

// TrialEvent is one immutable entry of the session event log.
// ResponseCorrect is only set on Response events.
type TrialEvent struct {
	TrialIndex      int          `json:"trialIndex"`
	StimulusType    StimulusType `json:"stimulusType"`
	EventType       EventType    `json:"eventType"`
	TimestampNs     int64        `json:"timestampNs"`
	ResponseCorrect *bool        `json:"responseCorrect,omitempty"`
}

// TestComplete is the terminal message of a run. Aborted is set when the
// log was closed by Stop rather than by the last deadline.
type TestComplete struct {
	Events        []TrialEvent `json:"events"`
	ElapsedTimeNs int64        `json:"elapsedTimeNs"`
	Aborted       bool         `json:"aborted"`
}

// PendingResponse is the open response window of the current trial.
type PendingResponse struct {
	TrialIndex       int
	StimulusType     StimulusType
	OnsetTimestampNs int64
	ExpectedResponse bool
	ResponseCount    int
}

type TrialOutcome string

const (
	Hit              TrialOutcome = "hit"
	Omission         TrialOutcome = "omission"
	Commission       TrialOutcome = "commission"
	CorrectRejection TrialOutcome = "correct_rejection"
)

// TrialResult is the authoritative per-trial outcome rebuilt from the event log.
type TrialResult struct {
	TrialIndex         int          `json:"trialIndex"`
	StimulusType       StimulusType `json:"stimulusType"`
	Outcome            TrialOutcome `json:"outcome"`
	ResponseTimeMs     *float64     `json:"responseTimeMs,omitempty"`
	IsAnticipatory     bool         `json:"isAnticipatory"`
	IsMultipleResponse bool         `json:"isMultipleResponse"`
	FollowsCommission  bool         `json:"followsCommission"`
}

// ValidHit reports whether the trial is a hit usable for response time statistics.
func (r TrialResult) ValidHit() bool {
	return r.Outcome == Hit && !r.IsAnticipatory && r.ResponseTimeMs != nil
}

// Subject holds the demographics used for the normative lookup.
type Subject struct {
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

type Interpretation string

const (
	InterpretationUnavailable      Interpretation = "unavailable"
	InterpretationNormal           Interpretation = "normal"
	InterpretationBorderline       Interpretation = "borderline"
	InterpretationNotWithinNormals Interpretation = "not-within-normal-limits"
)

// AttentionMetrics is the scored summary of one session. Pointer fields are
// nil when the value could not be computed.
type AttentionMetrics struct {
	TotalTrials       int `json:"totalTrials"`
	TotalTargets      int `json:"totalTargets"`
	TotalNonTargets   int `json:"totalNonTargets"`
	Hits              int `json:"hits"`
	Omissions         int `json:"omissions"`
	Commissions       int `json:"commissions"`
	CorrectRejections int `json:"correctRejections"`
	Anticipatory      int `json:"anticipatory"`
	MultipleResponses int `json:"multipleResponses"`
	ValidResponses    int `json:"validResponses"`

	OmissionPercent   float64 `json:"omissionPercent"`
	CommissionPercent float64 `json:"commissionPercent"`

	ResponseTimeMs           float64  `json:"responseTimeMs"`
	VariabilityMs            float64  `json:"variabilityMs"`
	PostCommissionResponseMs *float64 `json:"postCommissionResponseMs,omitempty"`
	HitRate                  float64  `json:"hitRate"`
	FalseAlarmRate           float64  `json:"falseAlarmRate"`
	DPrime                   float64  `json:"dPrime"`

	ResponseTimeZ *float64 `json:"responseTimeZ"`
	DPrimeZ       *float64 `json:"dPrimeZ"`
	VariabilityZ  *float64 `json:"variabilityZ"`

	CompositeScore    *float64       `json:"acsScore"`
	ACSInterpretation Interpretation `json:"acsInterpretation"`

	Valid           bool     `json:"valid"`
	InvalidReasons  []string `json:"invalidReasons,omitempty"`
	NormativeSource string   `json:"normativeSource,omitempty"`
}

// ScoredSession is everything produced by one administered test.
type ScoredSession struct {
	ID                      string           `json:"id"`
	Subject                 Subject          `json:"subject"`
	Sequence                []StimulusType   `json:"sequence"`
	StimulusDurationMs      float64          `json:"stimulusDurationMs"`
	InterstimulusIntervalMs float64          `json:"interstimulusIntervalMs"`
	BufferMs                float64          `json:"bufferMs"`
	Complete                TestComplete     `json:"complete"`
	Results                 []TrialResult    `json:"results"`
	Metrics                 AttentionMetrics `json:"metrics"`
	DataProblems            []string         `json:"dataProblems,omitempty"`
}
