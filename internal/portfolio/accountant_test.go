package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/game-engine/internal/holdings"
	"github.com/papertrade/game-engine/internal/model"
)

// d is a test helper for creating decimals from int64.
func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakePrices is a static PriceSource for accountant tests.
type fakePrices struct {
	prices  map[string]decimal.Decimal
	sectors map[string]model.Sector
}

func (f *fakePrices) Price(symbol string) (decimal.Decimal, bool) {
	p, ok := f.prices[symbol]
	return p, ok
}

func (f *fakePrices) Sector(symbol string) (model.Sector, bool) {
	s, ok := f.sectors[symbol]
	return s, ok
}

type env struct {
	ledger *holdings.Ledger
	lots   *holdings.LotTracker
	prices *fakePrices
	acct   *Accountant
}

func newEnv(t *testing.T, initialCash int64) *env {
	t.Helper()
	e := &env{
		ledger: holdings.NewLedger(),
		lots:   holdings.NewLotTracker(),
		prices: &fakePrices{
			prices:  make(map[string]decimal.Decimal),
			sectors: make(map[string]model.Sector),
		},
	}
	e.acct = NewAccountant(d(initialCash), e.ledger, e.lots, e.prices)
	return e
}

func (e *env) listInstrument(symbol string, sector model.Sector, price int64) {
	e.prices.prices[symbol] = d(price)
	e.prices.sectors[symbol] = sector
}

// buy mirrors the executor's buy sequencing without fees.
func (e *env) buy(t *testing.T, symbol string, qty int64) {
	t.Helper()
	price := e.prices.prices[symbol]
	cost := price.Mul(d(qty))
	if !e.acct.Debit(cost) {
		t.Fatalf("buy %s x%d: insufficient cash", symbol, qty)
	}
	e.ledger.Add(symbol, qty)
	e.lots.RecordPurchase(symbol, qty, price, t0)
	e.acct.MarkInvested()
}

// sell mirrors the executor's sell sequencing without fees.
func (e *env) sell(t *testing.T, symbol string, qty int64) {
	t.Helper()
	price := e.prices.prices[symbol]
	realized, err := e.lots.RecordSale(symbol, qty, price)
	if err != nil {
		t.Fatalf("sell %s x%d: %v", symbol, qty, err)
	}
	if err := e.ledger.Remove(symbol, qty); err != nil {
		t.Fatalf("sell %s x%d: %v", symbol, qty, err)
	}
	e.acct.Credit(price.Mul(d(qty)))
	e.acct.AddRealizedProfit(realized)
}

// --- Return rate ---

func TestReturnRate_FullLiquidation(t *testing.T) {
	// The defining regression: ending cash 1,100,000 on initial 1,000,000
	// with zero holdings must report +10.00%, not 0%.
	e := newEnv(t, 1_000_000)
	e.listInstrument("NVX", model.SectorTech, 50000)

	e.buy(t, "NVX", 10)
	e.prices.prices["NVX"] = d(60000)
	e.sell(t, "NVX", 10)

	if !e.acct.Cash().Equal(d(1_100_000)) {
		t.Fatalf("expected cash 1100000, got %s", e.acct.Cash())
	}
	if e.ledger.TotalQuantity() != 0 {
		t.Fatalf("expected empty holdings, got %d", e.ledger.TotalQuantity())
	}
	if got := e.acct.ReturnRatePct(); !got.Equal(d(10)) {
		t.Errorf("expected return rate 10, got %s", got)
	}
	if got := e.acct.RealizedProfit(); !got.Equal(d(100_000)) {
		t.Errorf("expected realized profit 100000, got %s", got)
	}
}

func TestReturnRate_ReflectsUnrealizedValue(t *testing.T) {
	e := newEnv(t, 1_000_000)
	e.listInstrument("NVX", model.SectorTech, 100_000)

	e.buy(t, "NVX", 5) // cash 500k, stock 500k
	e.prices.prices["NVX"] = d(120_000)

	// 500k cash + 600k stock = 1.1M → +10%.
	if got := e.acct.TotalAssetValue(); !got.Equal(d(1_100_000)) {
		t.Errorf("expected total asset value 1100000, got %s", got)
	}
	if got := e.acct.ReturnRatePct(); !got.Equal(d(10)) {
		t.Errorf("expected return rate 10, got %s", got)
	}
}

func TestReturnRate_ZeroInitialCash(t *testing.T) {
	e := newEnv(t, 0)
	if got := e.acct.ReturnRatePct(); !got.IsZero() {
		t.Errorf("expected 0 return rate with zero initial cash, got %s", got)
	}
}

// --- Diversification ---

func TestDiversificationBonus_Table(t *testing.T) {
	sectors := []model.Sector{
		model.SectorTech, model.SectorSemi, model.SectorEV,
		model.SectorCrypto, model.SectorCorp,
	}

	tests := []struct {
		sectorCount int
		wantBonus   int64
	}{
		{0, -10},
		{1, -10},
		{2, 5},
		{3, 10},
		{4, 15},
		{5, 20},
	}

	for _, tt := range tests {
		e := newEnv(t, 10_000_000)
		for i := 0; i < tt.sectorCount; i++ {
			symbol := string(rune('A'+i)) + "AA"
			e.listInstrument(symbol, sectors[i], 100)
			e.buy(t, symbol, 1)
		}

		if got := e.acct.DistinctSectors(); got != tt.sectorCount {
			t.Errorf("sectors=%d: got distinct count %d", tt.sectorCount, got)
		}
		if got := e.acct.DiversificationBonusPct(); !got.Equal(d(tt.wantBonus)) {
			t.Errorf("sectors=%d: expected bonus %d, got %s", tt.sectorCount, tt.wantBonus, got)
		}
	}
}

func TestDiversification_EverInvestedDistinguishesZeroFromOne(t *testing.T) {
	// Both counts carry the same penalty, but "never invested" and
	// "concentrated in one sector" must remain distinguishable.
	e := newEnv(t, 1_000_000)
	e.listInstrument("NVX", model.SectorTech, 100)

	if e.acct.EverInvested() {
		t.Error("expected ever-invested false before any buy")
	}
	before := e.acct.DiversificationBonusPct()

	e.buy(t, "NVX", 1)
	e.sell(t, "NVX", 1) // back to zero sectors, but invested once

	after := e.acct.DiversificationBonusPct()
	if !before.Equal(after) {
		t.Errorf("expected same penalty, got %s then %s", before, after)
	}
	if !e.acct.EverInvested() {
		t.Error("expected ever-invested true after a buy")
	}
}

func TestDiversification_HighWatermark(t *testing.T) {
	e := newEnv(t, 10_000_000)
	e.listInstrument("NVX", model.SectorTech, 100)
	e.listInstrument("SILIC", model.SectorSemi, 100)

	e.buy(t, "NVX", 1)
	e.buy(t, "SILIC", 1)
	e.sell(t, "SILIC", 1)

	if got := e.acct.MaxDiversifiedSectors(); got != 2 {
		t.Errorf("expected watermark 2 after selling back down, got %d", got)
	}
}

// --- Performers ---

func TestBestAndWorstPerformer(t *testing.T) {
	e := newEnv(t, 10_000_000)
	e.listInstrument("UPUP", model.SectorTech, 100)
	e.listInstrument("DOWN", model.SectorCrypto, 100)

	e.buy(t, "UPUP", 10)
	e.buy(t, "DOWN", 10)

	e.prices.prices["UPUP"] = d(120) // +20%
	e.prices.prices["DOWN"] = d(90)  // -10%

	best, ok := e.acct.BestPerformer()
	if !ok || best.Symbol != "UPUP" {
		t.Fatalf("expected best UPUP, got %+v (ok=%v)", best, ok)
	}
	if !best.ReturnPct.Equal(d(20)) {
		t.Errorf("expected best return 20, got %s", best.ReturnPct)
	}

	worst, ok := e.acct.WorstPerformer()
	if !ok || worst.Symbol != "DOWN" {
		t.Fatalf("expected worst DOWN, got %+v (ok=%v)", worst, ok)
	}
	if !worst.ReturnPct.Equal(d(-10)) {
		t.Errorf("expected worst return -10, got %s", worst.ReturnPct)
	}
}

func TestPerformers_AbsentWithoutPositions(t *testing.T) {
	e := newEnv(t, 1_000_000)
	if _, ok := e.acct.BestPerformer(); ok {
		t.Error("expected no best performer with empty portfolio")
	}
	if _, ok := e.acct.WorstPerformer(); ok {
		t.Error("expected no worst performer with empty portfolio")
	}
}

// --- Summary and reset ---

func TestSummary_Consistent(t *testing.T) {
	e := newEnv(t, 1_000_000)
	e.listInstrument("NVX", model.SectorTech, 50000)
	e.buy(t, "NVX", 4)

	sum := e.acct.Summary()
	if !sum.Cash.Equal(d(800_000)) {
		t.Errorf("expected cash 800000, got %s", sum.Cash)
	}
	if !sum.TotalAssetValue.Equal(d(1_000_000)) {
		t.Errorf("expected total asset value 1000000, got %s", sum.TotalAssetValue)
	}
	if len(sum.Positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(sum.Positions))
	}
	pos := sum.Positions[0]
	if pos.Symbol != "NVX" || pos.Quantity != 4 || !pos.AverageCost.Equal(d(50000)) {
		t.Errorf("unexpected position: %+v", pos)
	}
	if sum.BestPerformer == nil || sum.BestPerformer.Symbol != "NVX" {
		t.Error("expected NVX as best performer in summary")
	}
}

func TestReset(t *testing.T) {
	e := newEnv(t, 1_000_000)
	e.listInstrument("NVX", model.SectorTech, 50000)
	e.buy(t, "NVX", 4)
	e.prices.prices["NVX"] = d(60000)
	e.sell(t, "NVX", 2)

	e.ledger.Reset()
	e.lots.Reset()
	e.acct.Reset()

	if !e.acct.Cash().Equal(d(1_000_000)) {
		t.Errorf("expected cash restored to 1000000, got %s", e.acct.Cash())
	}
	if !e.acct.RealizedProfit().IsZero() {
		t.Errorf("expected realized profit cleared, got %s", e.acct.RealizedProfit())
	}
	if e.acct.EverInvested() {
		t.Error("expected ever-invested cleared")
	}
	if e.acct.MaxDiversifiedSectors() != 0 {
		t.Errorf("expected watermark cleared, got %d", e.acct.MaxDiversifiedSectors())
	}
	if !e.acct.ReturnRatePct().IsZero() {
		t.Errorf("expected 0 return rate after reset, got %s", e.acct.ReturnRatePct())
	}
}
