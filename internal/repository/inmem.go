package repository

import (
	"context"
	"sync"

	"github.com/konsulin-care/focus/internal/models"
)

// InMemoryStore keeps scored sessions in memory. Used when no database is
// configured; everything is lost on restart.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]*models.ScoredSession
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]*models.ScoredSession)}
}

func (s *InMemoryStore) SaveSession(_ context.Context, scored *models.ScoredSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[scored.ID] = scored
	return nil
}

func (s *InMemoryStore) GetSession(_ context.Context, id string) (*models.ScoredSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored, ok := s.data[id]
	if !ok {
		return nil, models.ErrSessionNotFound
	}
	return scored, nil
}
