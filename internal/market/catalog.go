// Package market implements the stock catalog and the turn-based market
// simulator: instrument registry, dense price rankings, per-sector
// volatility bands, and deterministic market events.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Prices are whole currency units and never go negative.
package market

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/papertrade/game-engine/internal/model"
)

var (
	// ErrInvalidSymbol is returned when a symbol does not match the
	// allowed ticker format.
	ErrInvalidSymbol = errors.New("market: invalid symbol format")

	// ErrDuplicateSymbol is returned when two definitions share a symbol.
	ErrDuplicateSymbol = errors.New("market: duplicate symbol")

	// ErrNegativePrice is returned when a definition carries a negative
	// starting price.
	ErrNegativePrice = errors.New("market: starting price must be non-negative")

	// ErrUnknownSymbol is returned when a symbol is not in the catalog.
	ErrUnknownSymbol = errors.New("market: unknown symbol")
)

// symbolRegex matches game tickers: 1-10 uppercase alphanumerics,
// starting with a letter. Example: NVX, QBIT2.
var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,9}$`)

// Definition describes one instrument at catalog initialization.
type Definition struct {
	Symbol       string          `json:"symbol"`
	Sector       model.Sector    `json:"sector"`
	InitialPrice decimal.Decimal `json:"initial_price"`
}

// Catalog is the registry of tradable instruments. Instruments are created
// once and mutated in place by the simulator; the slice preserves input
// order, which is the stable tie-break for rankings.
type Catalog struct {
	instruments []*model.Instrument
	bySymbol    map[string]*model.Instrument
}

// NewCatalog validates the definitions, populates the instruments with their
// starting prices, and computes the initial rankings.
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		bySymbol: make(map[string]*model.Instrument, len(defs)),
	}
	for _, def := range defs {
		if !symbolRegex.MatchString(def.Symbol) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, def.Symbol)
		}
		if _, err := model.ParseSector(string(def.Sector)); err != nil {
			return nil, err
		}
		if _, exists := c.bySymbol[def.Symbol]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, def.Symbol)
		}
		if def.InitialPrice.IsNegative() {
			return nil, fmt.Errorf("%w: %s", ErrNegativePrice, def.Symbol)
		}

		inst := &model.Instrument{
			Symbol:        def.Symbol,
			Sector:        def.Sector,
			CurrentPrice:  def.InitialPrice.Round(0),
			PreviousPrice: def.InitialPrice.Round(0),
			ChangeRatePct: decimal.Zero,
		}
		c.instruments = append(c.instruments, inst)
		c.bySymbol[def.Symbol] = inst
	}

	c.recomputeRankings()
	return c, nil
}

// Len returns the number of instruments in the catalog.
func (c *Catalog) Len() int {
	return len(c.instruments)
}

// Price returns the current price for a symbol.
func (c *Catalog) Price(symbol string) (decimal.Decimal, bool) {
	inst, ok := c.bySymbol[symbol]
	if !ok {
		return decimal.Zero, false
	}
	return inst.CurrentPrice, true
}

// Sector returns the sector for a symbol.
func (c *Catalog) Sector(symbol string) (model.Sector, bool) {
	inst, ok := c.bySymbol[symbol]
	if !ok {
		return "", false
	}
	return inst.Sector, true
}

// Instrument returns a copy of one instrument.
func (c *Catalog) Instrument(symbol string) (model.Instrument, error) {
	inst, ok := c.bySymbol[symbol]
	if !ok {
		return model.Instrument{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return *inst, nil
}

// Instruments returns copies of all instruments ordered by rank.
func (c *Catalog) Instruments() []model.Instrument {
	out := make([]model.Instrument, len(c.instruments))
	for _, inst := range c.instruments {
		out[inst.Rank-1] = *inst
	}
	return out
}

// recomputeRankings assigns rank = position+1 after a stable sort by
// current price descending. The stable sort preserves input order for
// equal prices. Previous ranks are captured before being overwritten.
func (c *Catalog) recomputeRankings() {
	ranked := make([]*model.Instrument, len(c.instruments))
	copy(ranked, c.instruments)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CurrentPrice.GreaterThan(ranked[j].CurrentPrice)
	})
	for pos, inst := range ranked {
		inst.PreviousRank = inst.Rank
		inst.Rank = pos + 1
		if inst.PreviousRank == 0 {
			inst.PreviousRank = inst.Rank
		}
	}
}

// Restore overwrites the live price/rank state from a snapshot. The snapshot
// instruments must match the catalog's symbols; extras are rejected so a
// stale snapshot cannot smuggle unknown instruments into a session.
func (c *Catalog) Restore(instruments []model.Instrument) error {
	for _, snap := range instruments {
		inst, ok := c.bySymbol[snap.Symbol]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSymbol, snap.Symbol)
		}
		inst.CurrentPrice = snap.CurrentPrice
		inst.PreviousPrice = snap.PreviousPrice
		inst.ChangeRatePct = snap.ChangeRatePct
		inst.Rank = snap.Rank
		inst.PreviousRank = snap.PreviousRank
	}
	return nil
}
