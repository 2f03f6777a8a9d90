// Package holdings tracks what the player owns: the quantity ledger and the
// FIFO purchase-lot tracker. The two structures are kept consistent by the
// session layer: for any symbol present in either, the lot quantities sum
// to the ledger quantity.
package holdings

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("holdings: quantity must be positive")

	// ErrInsufficientHoldings is returned when a removal or sale exceeds
	// the held quantity.
	ErrInsufficientHoldings = errors.New("holdings: quantity exceeds held amount")
)

// Ledger is the authoritative symbol → quantity map. Entries reaching zero
// quantity are removed, never retained.
type Ledger struct {
	quantities map[string]int64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{quantities: make(map[string]int64)}
}

// Add increases the held quantity for a symbol.
func (l *Ledger) Add(symbol string, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	l.quantities[symbol] += quantity
	return nil
}

// Remove decreases the held quantity for a symbol, deleting the entry when
// it reaches zero.
func (l *Ledger) Remove(symbol string, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	held := l.quantities[symbol]
	if quantity > held {
		return fmt.Errorf("%w: have %d, want %d", ErrInsufficientHoldings, held, quantity)
	}
	if quantity == held {
		delete(l.quantities, symbol)
		return nil
	}
	l.quantities[symbol] -= quantity
	return nil
}

// Quantity returns the held quantity for a symbol, zero if absent.
func (l *Ledger) Quantity(symbol string) int64 {
	return l.quantities[symbol]
}

// All returns a copy of the full holdings map.
func (l *Ledger) All() map[string]int64 {
	out := make(map[string]int64, len(l.quantities))
	for sym, qty := range l.quantities {
		out[sym] = qty
	}
	return out
}

// TotalQuantity returns the sum of all held quantities.
func (l *Ledger) TotalQuantity() int64 {
	var total int64
	for _, qty := range l.quantities {
		total += qty
	}
	return total
}

// Reset clears all holdings.
func (l *Ledger) Reset() {
	l.quantities = make(map[string]int64)
}

// Restore overwrites the ledger from a snapshot map.
func (l *Ledger) Restore(quantities map[string]int64) {
	l.quantities = make(map[string]int64, len(quantities))
	for sym, qty := range quantities {
		if qty > 0 {
			l.quantities[sym] = qty
		}
	}
}
