package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/papertrade/game-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Monetary values are stored as NUMERIC for exact decimal precision;
// holdings and lot lists are stored as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertTrade(ctx context.Context, t *model.TradeRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, session_id, symbol, side, quantity, price, fee, cash_delta, realized_profit, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10)`,
		t.ID, t.SessionID, t.Symbol, string(t.Side), t.Quantity,
		t.Price.String(), t.Fee.String(), t.CashDelta.String(), t.RealizedProfit.String(),
		t.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListTrades(ctx context.Context, sessionID string) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, symbol, side, quantity,
		        price::TEXT, fee::TEXT, cash_delta::TEXT, realized_profit::TEXT, timestamp
		 FROM trades WHERE session_id = $1 ORDER BY timestamp`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.TradeRecord
	for rows.Next() {
		var t model.TradeRecord
		var side, priceS, feeS, deltaS, realizedS string

		if err := rows.Scan(&t.ID, &t.SessionID, &t.Symbol, &side, &t.Quantity,
			&priceS, &feeS, &deltaS, &realizedS, &t.Timestamp); err != nil {
			return nil, err
		}

		t.Side = model.Side(side)
		t.Price, _ = decimal.NewFromString(priceS)
		t.Fee, _ = decimal.NewFromString(feeS)
		t.CashDelta, _ = decimal.NewFromString(deltaS)
		t.RealizedProfit, _ = decimal.NewFromString(realizedS)

		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.SessionSnapshot) error {
	holdings, err := json.Marshal(snap.Holdings)
	if err != nil {
		return fmt.Errorf("marshal holdings: %w", err)
	}
	lots, err := json.Marshal(snap.Lots)
	if err != nil {
		return fmt.Errorf("marshal lots: %w", err)
	}
	instruments, err := json.Marshal(snap.Instruments)
	if err != nil {
		return fmt.Errorf("marshal instruments: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_snapshots
		     (session_id, turn, cash, initial_cash, realized_profit, ever_invested,
		      max_diversified_sectors, holdings, lots, instruments, saved_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (session_id) DO UPDATE SET
		     turn = EXCLUDED.turn,
		     cash = EXCLUDED.cash,
		     initial_cash = EXCLUDED.initial_cash,
		     realized_profit = EXCLUDED.realized_profit,
		     ever_invested = EXCLUDED.ever_invested,
		     max_diversified_sectors = EXCLUDED.max_diversified_sectors,
		     holdings = EXCLUDED.holdings,
		     lots = EXCLUDED.lots,
		     instruments = EXCLUDED.instruments,
		     saved_at = EXCLUDED.saved_at`,
		snap.SessionID, snap.Turn,
		snap.Cash.String(), snap.InitialCash.String(), snap.RealizedProfit.String(),
		snap.EverInvested, snap.MaxDiversifiedSectors,
		holdings, lots, instruments, snap.SavedAt,
	)
	return err
}

func (s *PostgresStore) LoadSnapshot(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	var snap model.SessionSnapshot
	var cashS, initialS, realizedS string
	var holdings, lots, instruments []byte

	err := s.pool.QueryRow(ctx,
		`SELECT session_id, turn, cash::TEXT, initial_cash::TEXT, realized_profit::TEXT,
		        ever_invested, max_diversified_sectors, holdings, lots, instruments, saved_at
		 FROM session_snapshots WHERE session_id = $1`, sessionID).
		Scan(&snap.SessionID, &snap.Turn, &cashS, &initialS, &realizedS,
			&snap.EverInvested, &snap.MaxDiversifiedSectors,
			&holdings, &lots, &instruments, &snap.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", sessionID, err)
	}

	snap.Cash, _ = decimal.NewFromString(cashS)
	snap.InitialCash, _ = decimal.NewFromString(initialS)
	snap.RealizedProfit, _ = decimal.NewFromString(realizedS)

	if err := json.Unmarshal(holdings, &snap.Holdings); err != nil {
		return nil, fmt.Errorf("unmarshal holdings: %w", err)
	}
	if err := json.Unmarshal(lots, &snap.Lots); err != nil {
		return nil, fmt.Errorf("unmarshal lots: %w", err)
	}
	if err := json.Unmarshal(instruments, &snap.Instruments); err != nil {
		return nil, fmt.Errorf("unmarshal instruments: %w", err)
	}

	return &snap, nil
}
