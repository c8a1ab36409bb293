package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// CPTSession is the stored header of one administered test.
type CPTSession struct {
	ID                      string `gorm:"primaryKey;type:uuid"`
	SubjectAge              int
	SubjectGender           string
	Sequence                pq.StringArray `gorm:"type:text[]"`
	StimulusDurationMs      float64
	InterstimulusIntervalMs float64
	BufferMs                float64
	Aborted                 bool
	ElapsedTimeNs           int64
	CreatedAt               time.Time
}

// CPTEvent is one row of the durable event log.
type CPTEvent struct {
	ID              int    `gorm:"primaryKey"`
	SessionID       string `gorm:"type:uuid;index:idx_cpt_events_session,priority:1"`
	Seq             int    `gorm:"index:idx_cpt_events_session,priority:2"`
	TrialIndex      int
	StimulusType    string
	EventType       string
	TimestampNs     int64
	ResponseCorrect *bool // Pointer to allow null
}

// CPTResult holds the scored metrics of a session.
type CPTResult struct {
	ID                int    `gorm:"primaryKey"`
	SessionID         string `gorm:"type:uuid;uniqueIndex"`
	Hits              int
	Omissions         int
	Commissions       int
	CorrectRejections int
	Anticipatory      int
	OmissionPercent   float64
	CommissionPercent float64
	ResponseTimeMs    float64
	VariabilityMs     float64
	DPrime            float64
	ResponseTimeZ     *float64
	DPrimeZ           *float64
	VariabilityZ      *float64
	CompositeScore    *float64
	Interpretation    string
	Valid             bool
	RawData           json.RawMessage `gorm:"type:jsonb"`
	CreatedAt         time.Time
}

// NewCPTEvents converts an event log into rows for sessionID.
func NewCPTEvents(sessionID string, events []TrialEvent) []CPTEvent {
	rows := make([]CPTEvent, 0, len(events))
	for i, evt := range events {
		rows = append(rows, CPTEvent{
			SessionID:       sessionID,
			Seq:             i,
			TrialIndex:      evt.TrialIndex,
			StimulusType:    string(evt.StimulusType),
			EventType:       string(evt.EventType),
			TimestampNs:     evt.TimestampNs,
			ResponseCorrect: evt.ResponseCorrect,
		})
	}
	return rows
}

// NewCPTResult flattens scored metrics into a row. The full metrics are kept as raw JSON.
func NewCPTResult(sessionID string, m AttentionMetrics) CPTResult {
	raw, err := json.Marshal(m)
	if err != nil {
		raw = json.RawMessage("{}")
	}
	return CPTResult{
		SessionID:         sessionID,
		Hits:              m.Hits,
		Omissions:         m.Omissions,
		Commissions:       m.Commissions,
		CorrectRejections: m.CorrectRejections,
		Anticipatory:      m.Anticipatory,
		OmissionPercent:   m.OmissionPercent,
		CommissionPercent: m.CommissionPercent,
		ResponseTimeMs:    m.ResponseTimeMs,
		VariabilityMs:     m.VariabilityMs,
		DPrime:            m.DPrime,
		ResponseTimeZ:     m.ResponseTimeZ,
		DPrimeZ:           m.DPrimeZ,
		VariabilityZ:      m.VariabilityZ,
		CompositeScore:    m.CompositeScore,
		Interpretation:    string(m.ACSInterpretation),
		Valid:             m.Valid,
		RawData:           raw,
		CreatedAt:         time.Now(),
	}
}
