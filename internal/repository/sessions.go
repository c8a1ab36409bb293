package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/konsulin-care/focus/internal/metrics"
	"github.com/konsulin-care/focus/internal/models"
	"gorm.io/gorm"
)

// GormStore keeps scored sessions in postgres. A session is written as its
// header row, one row per event and one result row, in a single transaction.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) SaveSession(ctx context.Context, scored *models.ScoredSession) error {
	session := sessionRecord(scored)
	events := models.NewCPTEvents(scored.ID, scored.Complete.Events)
	result := models.NewCPTResult(scored.ID, scored.Metrics)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		if len(events) > 0 {
			if err := tx.CreateInBatches(events, 500).Error; err != nil {
				return fmt.Errorf("failed to save session events: %w", err)
			}
		}
		if err := tx.Create(&result).Error; err != nil {
			return fmt.Errorf("failed to save session result: %w", err)
		}
		return nil
	})
}

func (s *GormStore) GetSession(ctx context.Context, id string) (*models.ScoredSession, error) {
	db := s.db.WithContext(ctx)

	var session models.CPTSession
	if err := db.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var events []models.CPTEvent
	if err := db.Where("session_id = ?", id).Order("seq").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load session events: %w", err)
	}

	var result models.CPTResult
	if err := db.First(&result, "session_id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to load session result: %w", err)
	}

	return scoredFromRecords(session, events, result)
}

func sessionRecord(scored *models.ScoredSession) models.CPTSession {
	sequence := make([]string, len(scored.Sequence))
	for i, stim := range scored.Sequence {
		sequence[i] = string(stim)
	}
	return models.CPTSession{
		ID:                      scored.ID,
		SubjectAge:              scored.Subject.Age,
		SubjectGender:           scored.Subject.Gender,
		Sequence:                sequence,
		StimulusDurationMs:      scored.StimulusDurationMs,
		InterstimulusIntervalMs: scored.InterstimulusIntervalMs,
		BufferMs:                scored.BufferMs,
		Aborted:                 scored.Complete.Aborted,
		ElapsedTimeNs:           scored.Complete.ElapsedTimeNs,
	}
}

// scoredFromRecords rebuilds a scored session. Trial results are replayed
// from the stored events; the metrics come from the stored result.
func scoredFromRecords(session models.CPTSession, rows []models.CPTEvent, result models.CPTResult) (*models.ScoredSession, error) {
	scored := &models.ScoredSession{
		ID:                      session.ID,
		Subject:                 models.Subject{Age: session.SubjectAge, Gender: session.SubjectGender},
		Sequence:                make([]models.StimulusType, len(session.Sequence)),
		StimulusDurationMs:      session.StimulusDurationMs,
		InterstimulusIntervalMs: session.InterstimulusIntervalMs,
		BufferMs:                session.BufferMs,
		Complete: models.TestComplete{
			Events:        make([]models.TrialEvent, len(rows)),
			ElapsedTimeNs: session.ElapsedTimeNs,
			Aborted:       session.Aborted,
		},
	}
	for i, stim := range session.Sequence {
		scored.Sequence[i] = models.StimulusType(stim)
	}
	for i, row := range rows {
		scored.Complete.Events[i] = models.TrialEvent{
			TrialIndex:      row.TrialIndex,
			StimulusType:    models.StimulusType(row.StimulusType),
			EventType:       models.EventType(row.EventType),
			TimestampNs:     row.TimestampNs,
			ResponseCorrect: row.ResponseCorrect,
		}
	}

	if err := json.Unmarshal(result.RawData, &scored.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode stored metrics: %w", err)
	}

	results, err := metrics.Reconstruct(scored.Complete.Events)
	scored.Results = results
	var dataErr *models.DataError
	if errors.As(err, &dataErr) {
		scored.DataProblems = dataErr.Problems
	}
	return scored, nil
}
