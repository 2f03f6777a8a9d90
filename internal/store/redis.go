package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/papertrade/game-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh or invalidate the
// cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) InsertTrade(ctx context.Context, trade *model.TradeRecord) error {
	if err := s.primary.InsertTrade(ctx, trade); err != nil {
		return err
	}
	// Invalidate the trade list; next read re-populates.
	s.rdb.Del(ctx, tradesKey(trade.SessionID))
	return nil
}

func (s *CachedStore) ListTrades(ctx context.Context, sessionID string) ([]model.TradeRecord, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, tradesKey(sessionID)).Bytes()
	if err == nil {
		var trades []model.TradeRecord
		if json.Unmarshal(data, &trades) == nil {
			return trades, nil
		}
	}

	// Cache miss: read from primary.
	trades, err := s.primary.ListTrades(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(trades); err == nil {
		s.rdb.Set(ctx, tradesKey(sessionID), data, s.ttl)
	}
	return trades, nil
}

func (s *CachedStore) SaveSnapshot(ctx context.Context, snap *model.SessionSnapshot) error {
	if err := s.primary.SaveSnapshot(ctx, snap); err != nil {
		return err
	}
	s.cacheSnapshot(ctx, snap)
	return nil
}

func (s *CachedStore) LoadSnapshot(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err == nil {
		var snap model.SessionSnapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	// Cache miss.
	snap, err := s.primary.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.cacheSnapshot(ctx, snap)
	return snap, nil
}

func (s *CachedStore) cacheSnapshot(ctx context.Context, snap *model.SessionSnapshot) {
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, snapshotKey(snap.SessionID), data, s.ttl)
	}
}

func snapshotKey(id string) string { return fmt.Sprintf("snapshot:%s", id) }
func tradesKey(id string) string   { return fmt.Sprintf("trades:%s", id) }
