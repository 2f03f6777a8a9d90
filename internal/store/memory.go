package store

import (
	"context"
	"sync"

	"github.com/papertrade/game-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	trades    []model.TradeRecord
	snapshots map[string]*model.SessionSnapshot
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]*model.SessionSnapshot),
	}
}

func (s *MemoryStore) InsertTrade(_ context.Context, trade *model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, *trade)
	return nil
}

func (s *MemoryStore) ListTrades(_ context.Context, sessionID string) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeRecord
	for _, t := range s.trades {
		if t.SessionID == sessionID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *model.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	cp := *snap
	s.snapshots[snap.SessionID] = &cp
	return nil
}

func (s *MemoryStore) LoadSnapshot(_ context.Context, sessionID string) (*model.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[sessionID]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	cp := *snap
	return &cp, nil
}
