// Package model defines the core domain types shared across the game engine.
// All monetary values use shopspring/decimal — never float64 for money.
// Game currency is integer-valued: every stored price, fee, and balance is a
// whole number of currency units.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Sector classifies an instrument for volatility bands and the
// diversification bonus.
type Sector string

// Supported sectors.
const (
	SectorTech   Sector = "TECH"
	SectorSemi   Sector = "SEM"
	SectorEV     Sector = "EV"
	SectorCrypto Sector = "CRYPTO"
	SectorCorp   Sector = "CORP"
)

var validSectors = map[Sector]bool{
	SectorTech:   true,
	SectorSemi:   true,
	SectorEV:     true,
	SectorCrypto: true,
	SectorCorp:   true,
}

// ErrInvalidSector is returned when a sector string is not one of the
// supported sectors.
var ErrInvalidSector = errors.New("model: unsupported sector")

// ParseSector validates a sector string.
func ParseSector(s string) (Sector, error) {
	sec := Sector(s)
	if !validSectors[sec] {
		return "", fmt.Errorf("%w: %s", ErrInvalidSector, s)
	}
	return sec, nil
}

// Sectors returns all supported sectors in a fixed order.
func Sectors() []Sector {
	return []Sector{SectorTech, SectorSemi, SectorEV, SectorCrypto, SectorCorp}
}

// RankChange describes how an instrument's rank moved after the last
// recomputation. Lower rank number = better.
type RankChange string

const (
	RankUp   RankChange = "UP"
	RankDown RankChange = "DOWN"
	RankSame RankChange = "SAME"
)

// Instrument is one tradable stock with its live price and rank state.
// Created once at catalog initialization and mutated in place each turn.
type Instrument struct {
	Symbol        string          `json:"symbol" db:"symbol"`
	Sector        Sector          `json:"sector" db:"sector"`
	CurrentPrice  decimal.Decimal `json:"current_price" db:"current_price"`
	PreviousPrice decimal.Decimal `json:"previous_price" db:"previous_price"`
	ChangeRatePct decimal.Decimal `json:"change_rate_pct" db:"change_rate_pct"`
	Rank          int             `json:"rank" db:"rank"`
	PreviousRank  int             `json:"previous_rank" db:"previous_rank"`
}

// RankChange compares the previous and current rank.
func (i *Instrument) RankChange() RankChange {
	switch {
	case i.PreviousRank == 0 || i.PreviousRank == i.Rank:
		return RankSame
	case i.Rank < i.PreviousRank:
		return RankUp
	default:
		return RankDown
	}
}

// PurchaseLot is one purchase batch, retained until fully consumed by sales.
// Lots are consumed oldest-first (FIFO cost basis).
type PurchaseLot struct {
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TradeRecord is an immutable record of an applied trade.
// Once created, these are never modified or deleted.
type TradeRecord struct {
	ID             string          `json:"id" db:"id"`
	SessionID      string          `json:"session_id" db:"session_id"`
	Symbol         string          `json:"symbol" db:"symbol"`
	Side           Side            `json:"side" db:"side"`
	Quantity       int64           `json:"quantity" db:"quantity"`
	Price          decimal.Decimal `json:"price" db:"price"` // unit price at execution
	Fee            decimal.Decimal `json:"fee" db:"fee"`
	CashDelta      decimal.Decimal `json:"cash_delta" db:"cash_delta"`           // signed: -totalCost on buy, +net on sell
	RealizedProfit decimal.Decimal `json:"realized_profit" db:"realized_profit"` // zero for buys
	Timestamp      time.Time       `json:"timestamp" db:"timestamp"`
}

// Position is one held symbol with its cost basis and mark-to-market value.
type Position struct {
	Symbol        string          `json:"symbol"`
	Sector        Sector          `json:"sector"`
	Quantity      int64           `json:"quantity"`
	AverageCost   decimal.Decimal `json:"average_cost"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	ReturnPct     decimal.Decimal `json:"return_pct"`
}

// Performer identifies the best or worst position by return percentage.
type Performer struct {
	Symbol    string          `json:"symbol"`
	ReturnPct decimal.Decimal `json:"return_pct"`
}

// PortfolioSummary aggregates the portfolio with derived figures.
type PortfolioSummary struct {
	Cash                    decimal.Decimal `json:"cash"`
	InitialCash             decimal.Decimal `json:"initial_cash"`
	RealizedProfit          decimal.Decimal `json:"realized_profit"`
	TotalAssetValue         decimal.Decimal `json:"total_asset_value"`
	ReturnRatePct           decimal.Decimal `json:"return_rate_pct"`
	DiversificationBonusPct decimal.Decimal `json:"diversification_bonus_pct"`
	DistinctSectors         int             `json:"distinct_sectors"`
	MaxDiversifiedSectors   int             `json:"max_diversified_sectors"`
	EverInvested            bool            `json:"ever_invested"`
	Positions               []Position      `json:"positions"`
	BestPerformer           *Performer      `json:"best_performer,omitempty"`
	WorstPerformer          *Performer      `json:"worst_performer,omitempty"`
}

// SessionSnapshot is the minimal durable state of one game session:
// per-symbol lot lists, holdings, cash figures, turn number, and
// per-instrument price/rank state.
type SessionSnapshot struct {
	SessionID             string                   `json:"session_id" db:"session_id"`
	Turn                  int                      `json:"turn" db:"turn"`
	Cash                  decimal.Decimal          `json:"cash" db:"cash"`
	InitialCash           decimal.Decimal          `json:"initial_cash" db:"initial_cash"`
	RealizedProfit        decimal.Decimal          `json:"realized_profit" db:"realized_profit"`
	EverInvested          bool                     `json:"ever_invested" db:"ever_invested"`
	MaxDiversifiedSectors int                      `json:"max_diversified_sectors" db:"max_diversified_sectors"`
	Holdings              map[string]int64         `json:"holdings"`
	Lots                  map[string][]PurchaseLot `json:"lots"`
	Instruments           []Instrument             `json:"instruments"`
	SavedAt               time.Time                `json:"saved_at" db:"saved_at"`
}
