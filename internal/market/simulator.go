package market

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/papertrade/game-engine/internal/model"
)

// volatilityBands holds the per-sector maximum absolute change percentage
// applied on a turn advance.
var volatilityBands = map[model.Sector]float64{
	model.SectorTech:   4,
	model.SectorSemi:   6,
	model.SectorEV:     7,
	model.SectorCrypto: 10,
	model.SectorCorp:   3,
}

// Volatility returns the maximum absolute per-turn change percentage for a
// sector.
func Volatility(sector model.Sector) decimal.Decimal {
	return decimal.NewFromFloat(volatilityBands[sector])
}

// Simulator advances instrument prices turn by turn. Each turn draws a
// change percentage uniformly from [-volatility, +volatility] per sector,
// applies it, and recomputes rankings. It has no effect on holdings or cash.
//
// The rand source is injected so tests can run deterministically.
type Simulator struct {
	catalog *Catalog
	rng     *rand.Rand
	turn    int
}

// NewSimulator creates a simulator over the catalog, seeded for
// reproducible price sequences.
func NewSimulator(catalog *Catalog, seed int64) *Simulator {
	return &Simulator{
		catalog: catalog,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Turn returns the number of completed turns.
func (s *Simulator) Turn() int {
	return s.turn
}

// SetTurn overwrites the turn counter when restoring a snapshot.
func (s *Simulator) SetTurn(turn int) {
	s.turn = turn
}

// AdvanceTurn applies one random price change per instrument and recomputes
// rankings. Change rates are drawn to two decimal places.
func (s *Simulator) AdvanceTurn() {
	for _, inst := range s.catalog.instruments {
		vol := volatilityBands[inst.Sector]
		rate := decimal.NewFromFloat(-vol + s.rng.Float64()*2*vol).Round(2)
		applyChange(inst, rate)
	}
	s.turn++
	s.catalog.recomputeRankings()
}

// ApplyGlobalChange applies a fixed rate to every instrument. Used for
// deterministic game events (market-wide boom or crash).
func (s *Simulator) ApplyGlobalChange(ratePct decimal.Decimal) {
	for _, inst := range s.catalog.instruments {
		applyChange(inst, ratePct)
	}
	s.catalog.recomputeRankings()
}

// ApplySectorChange applies a fixed rate to instruments in one sector.
func (s *Simulator) ApplySectorChange(sector model.Sector, ratePct decimal.Decimal) {
	for _, inst := range s.catalog.instruments {
		if inst.Sector == sector {
			applyChange(inst, ratePct)
		}
	}
	s.catalog.recomputeRankings()
}

// applyChange moves an instrument's price by ratePct, rounding to a whole
// currency unit and flooring at zero.
func applyChange(inst *model.Instrument, ratePct decimal.Decimal) {
	inst.PreviousPrice = inst.CurrentPrice
	inst.ChangeRatePct = ratePct

	multiplier := decimal.NewFromInt(1).Add(ratePct.Div(decimal.NewFromInt(100)))
	newPrice := inst.CurrentPrice.Mul(multiplier).Round(0)
	if newPrice.IsNegative() {
		newPrice = decimal.Zero
	}
	inst.CurrentPrice = newPrice
}
