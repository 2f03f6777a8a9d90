package holdings

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/game-engine/internal/model"
)

// LotTracker owns the per-symbol ordered purchase-lot lists. Lots are
// appended on every buy and consumed oldest-first on every sell (FIFO cost
// basis). Removing the last lot removes the symbol entirely.
type LotTracker struct {
	lots map[string][]model.PurchaseLot
}

// NewLotTracker creates an empty tracker.
func NewLotTracker() *LotTracker {
	return &LotTracker{lots: make(map[string][]model.PurchaseLot)}
}

// RecordPurchase appends a new lot to the symbol's list.
func (t *LotTracker) RecordPurchase(symbol string, quantity int64, unitPrice decimal.Decimal, at time.Time) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	t.lots[symbol] = append(t.lots[symbol], model.PurchaseLot{
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Timestamp: at,
	})
	return nil
}

// RecordSale consumes lots oldest-first and returns the realized profit for
// the consumed quantities at salePrice:
//
//	Σ (salePrice - lot.unitPrice) * consumedFromLot
//
// Consumption and realized-profit computation happen in the same traversal
// over the same quantities, so the two can never disagree about which lots
// a sale drew from.
func (t *LotTracker) RecordSale(symbol string, quantity int64, salePrice decimal.Decimal) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	held := t.TotalHeld(symbol)
	if quantity > held {
		return decimal.Zero, fmt.Errorf("%w: have %d, want %d", ErrInsufficientHoldings, held, quantity)
	}

	realized := decimal.Zero
	remaining := quantity
	lots := t.lots[symbol]
	consumed := 0

	for i := range lots {
		if remaining == 0 {
			break
		}
		take := lots[i].Quantity
		if take > remaining {
			take = remaining
		}
		profit := salePrice.Sub(lots[i].UnitPrice).Mul(decimal.NewFromInt(take))
		realized = realized.Add(profit)

		lots[i].Quantity -= take
		remaining -= take
		if lots[i].Quantity == 0 {
			consumed++
		}
	}

	rest := lots[consumed:]
	if len(rest) == 0 {
		delete(t.lots, symbol)
	} else {
		t.lots[symbol] = rest
	}
	return realized, nil
}

// WeightedAverageCost returns Σ(qty*unitPrice) / Σ(qty) over the current
// lots, truncated to a whole currency unit. Returns zero when no lots
// exist. Always recomputed from lot state — never cached — so it cannot go
// stale after a purchase or sale.
func (t *LotTracker) WeightedAverageCost(symbol string) decimal.Decimal {
	lots := t.lots[symbol]
	if len(lots) == 0 {
		return decimal.Zero
	}

	totalCost := decimal.Zero
	var totalQty int64
	for _, lot := range lots {
		totalCost = totalCost.Add(lot.UnitPrice.Mul(decimal.NewFromInt(lot.Quantity)))
		totalQty += lot.Quantity
	}
	if totalQty == 0 {
		return decimal.Zero
	}
	return totalCost.Div(decimal.NewFromInt(totalQty)).Floor()
}

// TotalHeld returns the total lot quantity for a symbol.
func (t *LotTracker) TotalHeld(symbol string) int64 {
	var total int64
	for _, lot := range t.lots[symbol] {
		total += lot.Quantity
	}
	return total
}

// Lots returns a copy of the lot list for a symbol, oldest first.
func (t *LotTracker) Lots(symbol string) []model.PurchaseLot {
	lots := t.lots[symbol]
	if len(lots) == 0 {
		return nil
	}
	out := make([]model.PurchaseLot, len(lots))
	copy(out, lots)
	return out
}

// Symbols returns the symbols that currently have lots.
func (t *LotTracker) Symbols() []string {
	out := make([]string, 0, len(t.lots))
	for sym := range t.lots {
		out = append(out, sym)
	}
	return out
}

// Snapshot returns a deep copy of all lot lists.
func (t *LotTracker) Snapshot() map[string][]model.PurchaseLot {
	out := make(map[string][]model.PurchaseLot, len(t.lots))
	for sym, lots := range t.lots {
		cp := make([]model.PurchaseLot, len(lots))
		copy(cp, lots)
		out[sym] = cp
	}
	return out
}

// Reset clears all lots.
func (t *LotTracker) Reset() {
	t.lots = make(map[string][]model.PurchaseLot)
}

// Restore overwrites the tracker from a snapshot, dropping empty lots.
func (t *LotTracker) Restore(lots map[string][]model.PurchaseLot) {
	t.lots = make(map[string][]model.PurchaseLot, len(lots))
	for sym, list := range lots {
		var cp []model.PurchaseLot
		for _, lot := range list {
			if lot.Quantity > 0 {
				cp = append(cp, lot)
			}
		}
		if len(cp) > 0 {
			t.lots[sym] = cp
		}
	}
}
