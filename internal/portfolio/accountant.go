// Package portfolio computes the derived portfolio figures: total asset
// value, return rate, diversification bonus, and best/worst performers.
//
// Return rate is always total-asset-relative: (cash + stock value) measured
// against initial capital. It must never be derived from the average cost of
// currently held positions — that collapses to zero after a full
// liquidation even when the realized cash gain is nonzero.
package portfolio

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/papertrade/game-engine/internal/holdings"
	"github.com/papertrade/game-engine/internal/model"
)

// PriceSource is the read-only view of the catalog the accountant needs.
type PriceSource interface {
	Price(symbol string) (decimal.Decimal, bool)
	Sector(symbol string) (model.Sector, bool)
}

// diversificationBonus maps distinct-sector count to the return-rate
// modifier percentage. Counts 0 and 1 share the penalty but are
// distinguished by the ever-invested flag.
var diversificationBonus = map[int]decimal.Decimal{
	0: decimal.NewFromInt(-10),
	1: decimal.NewFromInt(-10),
	2: decimal.NewFromInt(5),
	3: decimal.NewFromInt(10),
	4: decimal.NewFromInt(15),
	5: decimal.NewFromInt(20),
}

// maxSectors caps the distinct-sector count for the bonus table.
const maxSectors = 5

var oneHundred = decimal.NewFromInt(100)

// Accountant owns cash, realized profit, and the diversification
// high-watermark, and derives aggregate figures from the ledger, lot
// tracker, and price source it is given. It never owns instrument prices.
type Accountant struct {
	cash           decimal.Decimal
	initialCash    decimal.Decimal
	realizedProfit decimal.Decimal

	everInvested          bool
	maxDiversifiedSectors int

	ledger *holdings.Ledger
	lots   *holdings.LotTracker
	prices PriceSource
}

// NewAccountant creates an accountant starting with initialCash.
func NewAccountant(initialCash decimal.Decimal, ledger *holdings.Ledger, lots *holdings.LotTracker, prices PriceSource) *Accountant {
	return &Accountant{
		cash:        initialCash.Round(0),
		initialCash: initialCash.Round(0),
		ledger:      ledger,
		lots:        lots,
		prices:      prices,
	}
}

// Cash returns the current cash balance.
func (a *Accountant) Cash() decimal.Decimal {
	return a.cash
}

// InitialCash returns the starting capital, set once at game start.
func (a *Accountant) InitialCash() decimal.Decimal {
	return a.initialCash
}

// RealizedProfit returns the accumulated realized profit.
func (a *Accountant) RealizedProfit() decimal.Decimal {
	return a.realizedProfit
}

// Debit reduces cash. The caller validates sufficiency first; Debit refuses
// to take the balance negative so a validation slip cannot corrupt state.
func (a *Accountant) Debit(amount decimal.Decimal) bool {
	next := a.cash.Sub(amount)
	if next.IsNegative() {
		return false
	}
	a.cash = next
	return true
}

// Credit increases cash.
func (a *Accountant) Credit(amount decimal.Decimal) {
	a.cash = a.cash.Add(amount)
}

// AddRealizedProfit accumulates a (signed) realized profit from a sale.
func (a *Accountant) AddRealizedProfit(profit decimal.Decimal) {
	a.realizedProfit = a.realizedProfit.Add(profit)
}

// MarkInvested records that at least one buy has been applied and advances
// the diversification high-watermark.
func (a *Accountant) MarkInvested() {
	a.everInvested = true
	if s := a.DistinctSectors(); s > a.maxDiversifiedSectors {
		a.maxDiversifiedSectors = s
	}
}

// EverInvested reports whether any position has ever been opened. Zero
// distinct sectors with everInvested=false means "no data yet" rather than
// "concentrated portfolio".
func (a *Accountant) EverInvested() bool {
	return a.everInvested
}

// MaxDiversifiedSectors returns the diversification high-watermark.
func (a *Accountant) MaxDiversifiedSectors() int {
	return a.maxDiversifiedSectors
}

// TotalAssetValue returns cash plus the market value of all held positions.
// Recomputed from scratch on every call so it is always correct after
// price-changing turns.
func (a *Accountant) TotalAssetValue() decimal.Decimal {
	total := a.cash
	for symbol, qty := range a.ledger.All() {
		price, ok := a.prices.Price(symbol)
		if !ok {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(qty)))
	}
	return total
}

// ReturnRatePct returns (totalAssetValue - initialCash) / initialCash * 100,
// rounded to two decimal places. Returns zero when initial cash is zero.
func (a *Accountant) ReturnRatePct() decimal.Decimal {
	if a.initialCash.IsZero() {
		return decimal.Zero
	}
	return a.TotalAssetValue().Sub(a.initialCash).
		Div(a.initialCash).
		Mul(oneHundred).
		Round(2)
}

// DistinctSectors counts sectors with nonzero holdings, capped at five.
func (a *Accountant) DistinctSectors() int {
	seen := make(map[model.Sector]bool)
	for symbol := range a.ledger.All() {
		if sector, ok := a.prices.Sector(symbol); ok {
			seen[sector] = true
		}
	}
	n := len(seen)
	if n > maxSectors {
		n = maxSectors
	}
	return n
}

// DiversificationBonusPct returns the return-rate modifier for the current
// distinct-sector count.
func (a *Accountant) DiversificationBonusPct() decimal.Decimal {
	return diversificationBonus[a.DistinctSectors()]
}

// Positions returns the current positions sorted by symbol, with average
// cost, mark-to-market value, and per-position return.
func (a *Accountant) Positions() []model.Position {
	held := a.ledger.All()
	symbols := make([]string, 0, len(held))
	for sym := range held {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	positions := make([]model.Position, 0, len(symbols))
	for _, sym := range symbols {
		qty := held[sym]
		price, _ := a.prices.Price(sym)
		sector, _ := a.prices.Sector(sym)
		avgCost := a.lots.WeightedAverageCost(sym)

		qtyDec := decimal.NewFromInt(qty)
		value := price.Mul(qtyDec)
		invested := avgCost.Mul(qtyDec)

		pos := model.Position{
			Symbol:        sym,
			Sector:        sector,
			Quantity:      qty,
			AverageCost:   avgCost,
			CurrentPrice:  price,
			CurrentValue:  value,
			UnrealizedPnL: value.Sub(invested),
		}
		if avgCost.IsPositive() {
			pos.ReturnPct = price.Sub(avgCost).Div(avgCost).Mul(oneHundred).Round(2)
		}
		positions = append(positions, pos)
	}
	return positions
}

// BestPerformer returns the held symbol with the highest return over its
// average cost. Absent when no held symbol has a known average cost.
func (a *Accountant) BestPerformer() (model.Performer, bool) {
	return a.pickPerformer(func(candidate, current decimal.Decimal) bool {
		return candidate.GreaterThan(current)
	})
}

// WorstPerformer returns the held symbol with the lowest return over its
// average cost.
func (a *Accountant) WorstPerformer() (model.Performer, bool) {
	return a.pickPerformer(func(candidate, current decimal.Decimal) bool {
		return candidate.LessThan(current)
	})
}

func (a *Accountant) pickPerformer(better func(candidate, current decimal.Decimal) bool) (model.Performer, bool) {
	var best model.Performer
	found := false
	for _, pos := range a.Positions() {
		if !pos.AverageCost.IsPositive() {
			continue
		}
		if !found || better(pos.ReturnPct, best.ReturnPct) {
			best = model.Performer{Symbol: pos.Symbol, ReturnPct: pos.ReturnPct}
			found = true
		}
	}
	return best, found
}

// Summary builds the full portfolio view in one pass.
func (a *Accountant) Summary() model.PortfolioSummary {
	summary := model.PortfolioSummary{
		Cash:                    a.cash,
		InitialCash:             a.initialCash,
		RealizedProfit:          a.realizedProfit,
		TotalAssetValue:         a.TotalAssetValue(),
		ReturnRatePct:           a.ReturnRatePct(),
		DiversificationBonusPct: a.DiversificationBonusPct(),
		DistinctSectors:         a.DistinctSectors(),
		MaxDiversifiedSectors:   a.maxDiversifiedSectors,
		EverInvested:            a.everInvested,
		Positions:               a.Positions(),
	}
	if best, ok := a.BestPerformer(); ok {
		summary.BestPerformer = &best
	}
	if worst, ok := a.WorstPerformer(); ok {
		summary.WorstPerformer = &worst
	}
	return summary
}

// Reset clears holdings-derived figures and restores cash to the starting
// capital. The caller resets the ledger and lot tracker alongside.
func (a *Accountant) Reset() {
	a.cash = a.initialCash
	a.realizedProfit = decimal.Zero
	a.everInvested = false
	a.maxDiversifiedSectors = 0
}

// Restore overwrites the accountant's owned state from a snapshot.
func (a *Accountant) Restore(cash, initialCash, realizedProfit decimal.Decimal, everInvested bool, maxDiversifiedSectors int) {
	a.cash = cash
	a.initialCash = initialCash
	a.realizedProfit = realizedProfit
	a.everInvested = everInvested
	a.maxDiversifiedSectors = maxDiversifiedSectors
}
