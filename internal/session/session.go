// Package session wires one game's components together: catalog, simulator,
// holdings ledger, lot tracker, and accountant, constructed once and passed
// by reference. It also implements the trade executor: validation, fee
// calculation, and atomic application of buys and sells.
//
// Mutating operations run to completion before any other operation observes
// state; a rejected trade leaves cash, holdings, and lots unchanged.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/papertrade/game-engine/internal/holdings"
	"github.com/papertrade/game-engine/internal/market"
	"github.com/papertrade/game-engine/internal/model"
	"github.com/papertrade/game-engine/internal/portfolio"
)

var (
	// ErrInvalidQuantity is returned for non-positive trade quantities.
	ErrInvalidQuantity = errors.New("session: quantity must be positive")

	// ErrUnknownSymbol is returned when the symbol is not in the catalog.
	ErrUnknownSymbol = errors.New("session: unknown symbol")

	// ErrInsufficientFunds is returned when a buy's total cost exceeds cash.
	ErrInsufficientFunds = errors.New("session: insufficient funds")

	// ErrInsufficientHoldings is returned when a sell exceeds the held
	// quantity.
	ErrInsufficientHoldings = errors.New("session: insufficient holdings")

	// ErrNotInitialized is returned when the session has no catalog.
	ErrNotInitialized = errors.New("session: not initialized")
)

// DefaultFeeRatePct is the trading fee applied to both buys and sells when
// none is configured.
var DefaultFeeRatePct = decimal.NewFromInt(1)

var oneHundred = decimal.NewFromInt(100)

// Config holds session parameters.
type Config struct {
	InitialCash decimal.Decimal
	FeeRatePct  decimal.Decimal // zero value → DefaultFeeRatePct
	Seed        int64
}

// Session owns one game's state. Not safe for concurrent use; callers
// serialize access (the HTTP service holds a mutex around mutations).
type Session struct {
	id         string
	catalog    *market.Catalog
	sim        *market.Simulator
	ledger     *holdings.Ledger
	lots       *holdings.LotTracker
	acct       *portfolio.Accountant
	feeRatePct decimal.Decimal
	observers  []func()
	now        func() time.Time
}

// New builds a session over the given instrument definitions.
func New(defs []market.Definition, cfg Config) (*Session, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no instrument definitions", ErrNotInitialized)
	}
	catalog, err := market.NewCatalog(defs)
	if err != nil {
		return nil, err
	}

	feeRate := cfg.FeeRatePct
	if feeRate.IsZero() {
		feeRate = DefaultFeeRatePct
	}

	ledger := holdings.NewLedger()
	lots := holdings.NewLotTracker()

	return &Session{
		id:         uuid.New().String(),
		catalog:    catalog,
		sim:        market.NewSimulator(catalog, cfg.Seed),
		ledger:     ledger,
		lots:       lots,
		acct:       portfolio.NewAccountant(cfg.InitialCash, ledger, lots, catalog),
		feeRatePct: feeRate,
		now:        time.Now,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Subscribe registers a callback invoked after every mutating operation.
// This replaces per-widget event subscriptions: the UI gets one
// state-changed signal and pulls current values on demand.
func (s *Session) Subscribe(fn func()) {
	s.observers = append(s.observers, fn)
}

func (s *Session) notify() {
	for _, fn := range s.observers {
		fn()
	}
}

// TradingFee returns round(amount * feeRatePct / 100) in whole currency
// units. Buy, Sell, and MaxAffordableQuantity all use this one formula; an
// off-by-one between them would make an "affordable" quantity fail to buy.
func (s *Session) TradingFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.feeRatePct).Div(decimal.NewFromInt(100)).Round(0)
}

// FeeRatePct returns the configured trading fee percentage.
func (s *Session) FeeRatePct() decimal.Decimal {
	return s.feeRatePct
}

// Buy validates and applies a purchase: debit cash by cost+fee, increment
// the ledger, and append a purchase lot. All validation happens before the
// first mutation so a rejection leaves state untouched.
func (s *Session) Buy(symbol string, quantity int64) (*model.TradeRecord, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	price, ok := s.catalog.Price(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	cost := price.Mul(decimal.NewFromInt(quantity))
	fee := s.TradingFee(cost)
	totalCost := cost.Add(fee)
	if totalCost.GreaterThan(s.acct.Cash()) {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, totalCost, s.acct.Cash())
	}

	at := s.now()
	if !s.acct.Debit(totalCost) {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, totalCost, s.acct.Cash())
	}
	if err := s.ledger.Add(symbol, quantity); err != nil {
		return nil, err
	}
	if err := s.lots.RecordPurchase(symbol, quantity, price, at); err != nil {
		return nil, err
	}
	s.acct.MarkInvested()

	record := &model.TradeRecord{
		ID:             uuid.New().String(),
		SessionID:      s.id,
		Symbol:         symbol,
		Side:           model.SideBuy,
		Quantity:       quantity,
		Price:          price,
		Fee:            fee,
		CashDelta:      totalCost.Neg(),
		RealizedProfit: decimal.Zero,
		Timestamp:      at,
	}
	s.notify()
	return record, nil
}

// Sell validates and applies a sale. FIFO consumption and realized profit
// come from the lot tracker in a single pass over the pre-sale lot state,
// before the ledger quantity is decremented. Cash is credited with
// proceeds minus fee.
func (s *Session) Sell(symbol string, quantity int64) (*model.TradeRecord, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	price, ok := s.catalog.Price(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if held := s.ledger.Quantity(symbol); quantity > held {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrInsufficientHoldings, held, quantity)
	}

	realized, err := s.lots.RecordSale(symbol, quantity, price)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Remove(symbol, quantity); err != nil {
		return nil, err
	}

	proceeds := price.Mul(decimal.NewFromInt(quantity))
	fee := s.TradingFee(proceeds)
	net := proceeds.Sub(fee)
	s.acct.Credit(net)
	s.acct.AddRealizedProfit(realized)

	record := &model.TradeRecord{
		ID:             uuid.New().String(),
		SessionID:      s.id,
		Symbol:         symbol,
		Side:           model.SideSell,
		Quantity:       quantity,
		Price:          price,
		Fee:            fee,
		CashDelta:      net,
		RealizedProfit: realized,
		Timestamp:      s.now(),
	}
	s.notify()
	return record, nil
}

// MaxAffordableQuantity returns the largest quantity q such that
// price*q + TradingFee(price*q) fits in the current cash balance. Uses the
// exact Buy fee formula, so the returned quantity is always purchasable.
func (s *Session) MaxAffordableQuantity(symbol string) (int64, error) {
	price, ok := s.catalog.Price(symbol)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if !price.IsPositive() {
		return 0, nil
	}

	cash := s.acct.Cash()
	totalCost := func(q int64) decimal.Decimal {
		cost := price.Mul(decimal.NewFromInt(q))
		return cost.Add(s.TradingFee(cost))
	}

	// Analytic estimate ignoring fee rounding, then settle the off-by-one
	// against the exact formula.
	denominator := price.Mul(oneHundred.Add(s.feeRatePct))
	q := cash.Mul(oneHundred).Div(denominator).Floor().IntPart()
	if q < 0 {
		q = 0
	}
	for q > 0 && totalCost(q).GreaterThan(cash) {
		q--
	}
	for totalCost(q + 1).LessThanOrEqual(cash) {
		q++
	}
	return q, nil
}

// AdvanceTurn runs one market turn.
func (s *Session) AdvanceTurn() {
	s.sim.AdvanceTurn()
	s.notify()
}

// Turn returns the number of completed turns.
func (s *Session) Turn() int {
	return s.sim.Turn()
}

// ApplyGlobalChange applies a deterministic rate to all instruments.
func (s *Session) ApplyGlobalChange(ratePct decimal.Decimal) {
	s.sim.ApplyGlobalChange(ratePct)
	s.notify()
}

// ApplySectorChange applies a deterministic rate to one sector.
func (s *Session) ApplySectorChange(sector model.Sector, ratePct decimal.Decimal) {
	s.sim.ApplySectorChange(sector, ratePct)
	s.notify()
}

// ResetPortfolio clears holdings, lots, realized profit, and the
// diversification watermark, and restores cash to the starting capital.
// Instrument prices are untouched — the market keeps its history.
func (s *Session) ResetPortfolio() {
	s.ledger.Reset()
	s.lots.Reset()
	s.acct.Reset()
	s.notify()
}

// --- Read-only queries (the UI pulls these on demand) ---

// HoldingAmount returns the held quantity for a symbol.
func (s *Session) HoldingAmount(symbol string) int64 {
	return s.ledger.Quantity(symbol)
}

// AllHoldings returns a copy of the holdings map.
func (s *Session) AllHoldings() map[string]int64 {
	return s.ledger.All()
}

// AveragePurchasePrice returns the weighted average cost for a symbol,
// zero when no lots exist.
func (s *Session) AveragePurchasePrice(symbol string) decimal.Decimal {
	return s.lots.WeightedAverageCost(symbol)
}

// Cash returns the current cash balance.
func (s *Session) Cash() decimal.Decimal {
	return s.acct.Cash()
}

// TotalAssetValue returns cash plus the market value of held positions.
func (s *Session) TotalAssetValue() decimal.Decimal {
	return s.acct.TotalAssetValue()
}

// ReturnRatePct returns the total-asset return vs. initial capital.
func (s *Session) ReturnRatePct() decimal.Decimal {
	return s.acct.ReturnRatePct()
}

// DiversificationBonusPct returns the sector-diversification modifier.
func (s *Session) DiversificationBonusPct() decimal.Decimal {
	return s.acct.DiversificationBonusPct()
}

// RealizedProfit returns the accumulated realized profit.
func (s *Session) RealizedProfit() decimal.Decimal {
	return s.acct.RealizedProfit()
}

// BestPerformer returns the held symbol with the highest return.
func (s *Session) BestPerformer() (model.Performer, bool) {
	return s.acct.BestPerformer()
}

// WorstPerformer returns the held symbol with the lowest return.
func (s *Session) WorstPerformer() (model.Performer, bool) {
	return s.acct.WorstPerformer()
}

// Summary returns the full portfolio view.
func (s *Session) Summary() model.PortfolioSummary {
	return s.acct.Summary()
}

// Instruments returns all instruments ordered by rank.
func (s *Session) Instruments() []model.Instrument {
	return s.catalog.Instruments()
}

// Instrument returns one instrument.
func (s *Session) Instrument(symbol string) (model.Instrument, error) {
	inst, err := s.catalog.Instrument(symbol)
	if err != nil {
		return model.Instrument{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return inst, nil
}

// Snapshot captures the durable session state.
func (s *Session) Snapshot() *model.SessionSnapshot {
	return &model.SessionSnapshot{
		SessionID:             s.id,
		Turn:                  s.sim.Turn(),
		Cash:                  s.acct.Cash(),
		InitialCash:           s.acct.InitialCash(),
		RealizedProfit:        s.acct.RealizedProfit(),
		EverInvested:          s.acct.EverInvested(),
		MaxDiversifiedSectors: s.acct.MaxDiversifiedSectors(),
		Holdings:              s.ledger.All(),
		Lots:                  s.lots.Snapshot(),
		Instruments:           s.catalog.Instruments(),
		SavedAt:               s.now(),
	}
}

// RestoreSnapshot overwrites the session state from a snapshot. The catalog
// must already contain every snapshot symbol.
func (s *Session) RestoreSnapshot(snap *model.SessionSnapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrNotInitialized)
	}
	if err := s.catalog.Restore(snap.Instruments); err != nil {
		return err
	}
	s.id = snap.SessionID
	s.sim.SetTurn(snap.Turn)
	s.ledger.Restore(snap.Holdings)
	s.lots.Restore(snap.Lots)
	s.acct.Restore(snap.Cash, snap.InitialCash, snap.RealizedProfit, snap.EverInvested, snap.MaxDiversifiedSectors)
	s.notify()
	return nil
}
