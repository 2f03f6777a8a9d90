// Package store defines the persistence interface for game sessions.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// Durable state per session: the immutable trade log and the latest
// session snapshot (holdings, lots, cash figures, turn, instrument state).
package store

import (
	"context"
	"errors"

	"github.com/papertrade/game-engine/internal/model"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a session.
var ErrSnapshotNotFound = errors.New("store: snapshot not found")

// Store is the persistence interface.
type Store interface {
	// InsertTrade appends an immutable trade record.
	InsertTrade(ctx context.Context, trade *model.TradeRecord) error

	// ListTrades returns all trades for a session in execution order.
	ListTrades(ctx context.Context, sessionID string) ([]model.TradeRecord, error)

	// SaveSnapshot upserts the latest snapshot for a session.
	SaveSnapshot(ctx context.Context, snap *model.SessionSnapshot) error

	// LoadSnapshot retrieves the latest snapshot for a session, or
	// ErrSnapshotNotFound.
	LoadSnapshot(ctx context.Context, sessionID string) (*model.SessionSnapshot, error)
}
