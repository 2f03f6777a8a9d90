package session_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/papertrade/game-engine/internal/market"
	"github.com/papertrade/game-engine/internal/model"
	"github.com/papertrade/game-engine/internal/session"
)

// d is a test helper for creating decimals from int64.
func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func testDefs() []market.Definition {
	return []market.Definition{
		{Symbol: "NVX", Sector: model.SectorTech, InitialPrice: d(50000)},
		{Symbol: "SILIC", Sector: model.SectorSemi, InitialPrice: d(20000)},
		{Symbol: "BITX", Sector: model.SectorCrypto, InitialPrice: d(95000)},
	}
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := session.New(testDefs(), session.Config{
		InitialCash: d(1_000_000),
		Seed:        1,
	})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return sess
}

// --- Buy ---

func TestBuy_DebitsCashWithFee(t *testing.T) {
	sess := newTestSession(t)

	record, err := sess.Buy("NVX", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// cost 100000, fee 1% = 1000, total 101000.
	if !record.Fee.Equal(d(1000)) {
		t.Errorf("expected fee 1000, got %s", record.Fee)
	}
	if !record.CashDelta.Equal(d(-101000)) {
		t.Errorf("expected cash delta -101000, got %s", record.CashDelta)
	}
	if !sess.Cash().Equal(d(899_000)) {
		t.Errorf("expected cash 899000, got %s", sess.Cash())
	}
	if got := sess.HoldingAmount("NVX"); got != 2 {
		t.Errorf("expected holding 2, got %d", got)
	}
	if avg := sess.AveragePurchasePrice("NVX"); !avg.Equal(d(50000)) {
		t.Errorf("expected average cost 50000, got %s", avg)
	}
}

func TestBuy_InvalidQuantity(t *testing.T) {
	sess := newTestSession(t)
	for _, qty := range []int64{0, -5} {
		if _, err := sess.Buy("NVX", qty); !errors.Is(err, session.ErrInvalidQuantity) {
			t.Errorf("expected ErrInvalidQuantity for qty %d, got %v", qty, err)
		}
	}
}

func TestBuy_UnknownSymbol(t *testing.T) {
	sess := newTestSession(t)
	if _, err := sess.Buy("GHOST", 1); !errors.Is(err, session.ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestBuy_InsufficientFundsLeavesStateUnchanged(t *testing.T) {
	sess := newTestSession(t)
	cashBefore := sess.Cash()

	// 100 * 50000 = 5,000,000 > 1,000,000.
	_, err := sess.Buy("NVX", 100)
	if !errors.Is(err, session.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if !sess.Cash().Equal(cashBefore) {
		t.Errorf("cash changed on rejected buy: %s", sess.Cash())
	}
	if got := sess.HoldingAmount("NVX"); got != 0 {
		t.Errorf("holdings changed on rejected buy: %d", got)
	}
	if avg := sess.AveragePurchasePrice("NVX"); !avg.IsZero() {
		t.Errorf("lots changed on rejected buy: avg %s", avg)
	}
}

// --- Sell ---

func TestSell_CreditsNetAndAccumulatesRealizedProfit(t *testing.T) {
	sess := newTestSession(t)
	if _, err := sess.Buy("NVX", 10); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	sess.ApplyGlobalChange(d(10)) // NVX 50000 → 55000

	record, err := sess.Sell("NVX", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// proceeds 220000, fee 2200, net 217800; realized (55000-50000)*4.
	if !record.Fee.Equal(d(2200)) {
		t.Errorf("expected fee 2200, got %s", record.Fee)
	}
	if !record.CashDelta.Equal(d(217_800)) {
		t.Errorf("expected cash delta 217800, got %s", record.CashDelta)
	}
	if !record.RealizedProfit.Equal(d(20000)) {
		t.Errorf("expected realized profit 20000, got %s", record.RealizedProfit)
	}
	if !sess.RealizedProfit().Equal(d(20000)) {
		t.Errorf("expected accumulated realized profit 20000, got %s", sess.RealizedProfit())
	}
	if got := sess.HoldingAmount("NVX"); got != 6 {
		t.Errorf("expected holding 6, got %d", got)
	}
}

func TestSell_InsufficientHoldingsLeavesStateUnchanged(t *testing.T) {
	sess := newTestSession(t)
	if _, err := sess.Buy("NVX", 2); err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	cashBefore := sess.Cash()

	_, err := sess.Sell("NVX", 3)
	if !errors.Is(err, session.ErrInsufficientHoldings) {
		t.Fatalf("expected ErrInsufficientHoldings, got %v", err)
	}

	if !sess.Cash().Equal(cashBefore) {
		t.Errorf("cash changed on rejected sell: %s", sess.Cash())
	}
	if got := sess.HoldingAmount("NVX"); got != 2 {
		t.Errorf("holdings changed on rejected sell: %d", got)
	}
	if !sess.RealizedProfit().IsZero() {
		t.Errorf("realized profit changed on rejected sell: %s", sess.RealizedProfit())
	}
}

func TestSell_NeverHeldSymbol(t *testing.T) {
	sess := newTestSession(t)
	if _, err := sess.Sell("NVX", 1); !errors.Is(err, session.ErrInsufficientHoldings) {
		t.Errorf("expected ErrInsufficientHoldings, got %v", err)
	}
}

// --- Cross-structure consistency ---

func TestLedgerAndLotsStayConsistent(t *testing.T) {
	sess := newTestSession(t)
	sess.Buy("NVX", 3)
	sess.Buy("NVX", 5)
	sess.Sell("NVX", 4)
	sess.Buy("SILIC", 2)
	sess.Sell("NVX", 4)

	summary := sess.Summary()
	for _, pos := range summary.Positions {
		if pos.Quantity != sess.HoldingAmount(pos.Symbol) {
			t.Errorf("%s: summary quantity %d != ledger %d",
				pos.Symbol, pos.Quantity, sess.HoldingAmount(pos.Symbol))
		}
	}
	if got := sess.HoldingAmount("NVX"); got != 0 {
		t.Errorf("expected NVX fully liquidated, got %d", got)
	}
	if avg := sess.AveragePurchasePrice("NVX"); !avg.IsZero() {
		t.Errorf("expected zero average cost after liquidation, got %s", avg)
	}
}

// --- Return rate after full liquidation ---

func TestReturnRate_NonzeroAfterFullLiquidation(t *testing.T) {
	sess := newTestSession(t)
	sess.Buy("NVX", 10)
	sess.ApplyGlobalChange(d(20))
	sess.Sell("NVX", 10)

	if len(sess.AllHoldings()) != 0 {
		t.Fatalf("expected empty holdings, got %v", sess.AllHoldings())
	}

	// Fees make the exact figure awkward; the property under test is that
	// the rate tracks (cash - initial)/initial rather than collapsing to 0.
	want := sess.Cash().Sub(d(1_000_000)).Div(d(1_000_000)).Mul(d(100)).Round(2)
	if got := sess.ReturnRatePct(); !got.Equal(want) {
		t.Errorf("expected return rate %s, got %s", want, got)
	}
	if sess.ReturnRatePct().IsZero() {
		t.Error("return rate must not collapse to 0 after full liquidation")
	}
}

// --- Max affordable quantity ---

func TestMaxAffordableQuantity_MatchesBuyFeeFormula(t *testing.T) {
	sess := newTestSession(t)

	qty, err := sess.MaxAffordableQuantity("SILIC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if qty <= 0 {
		t.Fatalf("expected positive affordable quantity, got %d", qty)
	}

	// The returned quantity must be purchasable...
	if _, err := sess.Buy("SILIC", qty); err != nil {
		t.Fatalf("buy at affordable quantity rejected: %v", err)
	}
	// ...and one more must not have been.
	cost := d(20000).Mul(d(qty + 1))
	total := cost.Add(sess.TradingFee(cost))
	if total.LessThanOrEqual(d(1_000_000)) {
		t.Errorf("affordable quantity %d not maximal: %d also fits", qty, qty+1)
	}
}

func TestMaxAffordableQuantity_UnknownSymbol(t *testing.T) {
	sess := newTestSession(t)
	if _, err := sess.MaxAffordableQuantity("GHOST"); !errors.Is(err, session.ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}
}

// --- Fees ---

func TestTradingFee_RoundsToWholeUnit(t *testing.T) {
	sess := newTestSession(t)

	// 1% of 151 = 1.51 → rounds to 2.
	if got := sess.TradingFee(d(151)); !got.Equal(d(2)) {
		t.Errorf("expected fee 2, got %s", got)
	}
	// 1% of 149 = 1.49 → rounds to 1.
	if got := sess.TradingFee(d(149)); !got.Equal(d(1)) {
		t.Errorf("expected fee 1, got %s", got)
	}
}

func TestConfiguredFeeRate(t *testing.T) {
	sess, err := session.New(testDefs(), session.Config{
		InitialCash: d(1_000_000),
		FeeRatePct:  decimal.NewFromFloat(2.5),
		Seed:        1,
	})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	// 2.5% of 100000 = 2500.
	if got := sess.TradingFee(d(100_000)); !got.Equal(d(2500)) {
		t.Errorf("expected fee 2500, got %s", got)
	}
}

// --- Reset ---

func TestResetPortfolio(t *testing.T) {
	sess := newTestSession(t)
	sess.Buy("NVX", 5)
	sess.ApplyGlobalChange(d(10))
	sess.Sell("NVX", 5)
	sess.AdvanceTurn()

	sess.ResetPortfolio()

	if !sess.Cash().Equal(d(1_000_000)) {
		t.Errorf("expected cash restored, got %s", sess.Cash())
	}
	if len(sess.AllHoldings()) != 0 {
		t.Errorf("expected no holdings, got %v", sess.AllHoldings())
	}
	if !sess.RealizedProfit().IsZero() {
		t.Errorf("expected realized profit cleared, got %s", sess.RealizedProfit())
	}
	// The market keeps its history across a portfolio reset.
	if sess.Turn() != 1 {
		t.Errorf("expected turn preserved at 1, got %d", sess.Turn())
	}
}

// --- Observers ---

func TestSubscribe_NotifiedOnMutations(t *testing.T) {
	sess := newTestSession(t)
	var notified int
	sess.Subscribe(func() { notified++ })

	sess.Buy("NVX", 1)
	sess.Sell("NVX", 1)
	sess.AdvanceTurn()
	sess.ResetPortfolio()

	if notified != 4 {
		t.Errorf("expected 4 notifications, got %d", notified)
	}
}

// --- Snapshot / restore ---

func TestSnapshotRestore_Roundtrip(t *testing.T) {
	sess := newTestSession(t)
	sess.Buy("NVX", 3)
	sess.Buy("BITX", 1)
	sess.AdvanceTurn()
	sess.Sell("NVX", 1)

	snap := sess.Snapshot()

	restored, err := session.New(testDefs(), session.Config{InitialCash: d(1), Seed: 99})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := restored.RestoreSnapshot(snap); err != nil {
		t.Fatalf("restore failed: %v", err)
	}

	if restored.ID() != sess.ID() {
		t.Errorf("session id not restored: %s vs %s", restored.ID(), sess.ID())
	}
	if restored.Turn() != sess.Turn() {
		t.Errorf("turn not restored: %d vs %d", restored.Turn(), sess.Turn())
	}
	if !restored.Cash().Equal(sess.Cash()) {
		t.Errorf("cash not restored: %s vs %s", restored.Cash(), sess.Cash())
	}
	if !restored.RealizedProfit().Equal(sess.RealizedProfit()) {
		t.Errorf("realized profit not restored")
	}
	if restored.HoldingAmount("NVX") != sess.HoldingAmount("NVX") {
		t.Errorf("holdings not restored")
	}
	if !restored.AveragePurchasePrice("NVX").Equal(sess.AveragePurchasePrice("NVX")) {
		t.Errorf("lots not restored")
	}
	if !restored.TotalAssetValue().Equal(sess.TotalAssetValue()) {
		t.Errorf("total asset value differs after restore: %s vs %s",
			restored.TotalAssetValue(), sess.TotalAssetValue())
	}
}

func TestNew_RequiresDefinitions(t *testing.T) {
	if _, err := session.New(nil, session.Config{InitialCash: d(1)}); err == nil {
		t.Error("expected error for empty definitions")
	}
}
