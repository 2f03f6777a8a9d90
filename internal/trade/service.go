// Package trade provides the HTTP handlers for the trading game: executing
// buys and sells, advancing market turns, and querying the catalog and
// portfolio.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/papertrade/game-engine/internal/metrics"
	"github.com/papertrade/game-engine/internal/model"
	"github.com/papertrade/game-engine/internal/session"
	"github.com/papertrade/game-engine/internal/store"
)

// Service handles game operations over one session. A mutex serializes
// mutating operations; the session itself assumes serialized access.
type Service struct {
	session *session.Session
	store   store.Store
	mu      sync.Mutex
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new game service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(sess *session.Session, st store.Store, hub *WSHub) *Service {
	return &Service{
		session: sess,
		store:   st,
		wsHub:   hub,
	}
}

// --- Request/Response types ---

// TradeRequest is the JSON body for POST /trades.
type TradeRequest struct {
	Side     model.Side `json:"side"` // "BUY" or "SELL"
	Symbol   string     `json:"symbol"`
	Quantity int64      `json:"quantity"`
}

// TradeResponse is the JSON body returned from POST /trades.
type TradeResponse struct {
	TradeID         string          `json:"trade_id"`
	Symbol          string          `json:"symbol"`
	Side            model.Side      `json:"side"`
	Quantity        int64           `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Fee             decimal.Decimal `json:"fee"`
	CashDelta       decimal.Decimal `json:"cash_delta"`
	RealizedProfit  decimal.Decimal `json:"realized_profit"`
	Cash            decimal.Decimal `json:"cash"`
	TotalAssetValue decimal.Decimal `json:"total_asset_value"`
	ReturnRatePct   decimal.Decimal `json:"return_rate_pct"`
}

// EventRequest is the JSON body for POST /events: a deterministic market
// event applied to all instruments or one sector.
type EventRequest struct {
	Scope   string          `json:"scope"` // "GLOBAL" or "SECTOR"
	Sector  string          `json:"sector,omitempty"`
	RatePct decimal.Decimal `json:"rate_pct"`
}

// TurnResponse is returned after advancing a turn.
type TurnResponse struct {
	Turn        int                `json:"turn"`
	Instruments []model.Instrument `json:"instruments"`
}

// AffordableResponse is the max-affordable-quantity answer for one symbol.
type AffordableResponse struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// HoldingResponse describes one held symbol.
type HoldingResponse struct {
	Symbol      string          `json:"symbol"`
	Quantity    int64           `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

// --- HTTP Handlers ---

// ListInstruments handles GET /api/v1/instruments
// Returns the catalog ordered by rank.
func (s *Service) ListInstruments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Instruments())
}

// GetInstrument handles GET /api/v1/instruments/{symbol}
func (s *Service) GetInstrument(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	inst, err := s.session.Instrument(symbol)
	if err != nil {
		writeError(w, "instrument not found: "+symbol, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// ExecuteTrade handles POST /api/v1/trades
// Validates and applies a buy or sell against the session.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}

	// Serialize trade execution.
	s.mu.Lock()
	defer s.mu.Unlock()

	var record *model.TradeRecord
	var err error
	if req.Side == model.SideBuy {
		record, err = s.session.Buy(req.Symbol, req.Quantity)
	} else {
		record, err = s.session.Sell(req.Symbol, req.Quantity)
	}
	if err != nil {
		metrics.TradeRejections.WithLabelValues(rejectionReason(err)).Inc()
		writeError(w, err.Error(), statusForError(err))
		return
	}

	metrics.TradesTotal.WithLabelValues(string(record.Side)).Inc()
	s.persist(r, record)

	totalAssets := s.session.TotalAssetValue()
	metrics.TotalAssetValue.Set(totalAssets.InexactFloat64())

	slog.Info("trade applied",
		"trade_id", record.ID,
		"symbol", record.Symbol,
		"side", record.Side,
		"qty", record.Quantity,
		"price", record.Price.String(),
		"fee", record.Fee.String(),
		"realized", record.RealizedProfit.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:          "trade_applied",
			Symbol:        record.Symbol,
			Side:          string(record.Side),
			Quantity:      record.Quantity,
			Price:         record.Price.String(),
			ReturnRatePct: s.session.ReturnRatePct().String(),
		})
	}

	writeJSON(w, http.StatusOK, TradeResponse{
		TradeID:         record.ID,
		Symbol:          record.Symbol,
		Side:            record.Side,
		Quantity:        record.Quantity,
		Price:           record.Price,
		Fee:             record.Fee,
		CashDelta:       record.CashDelta,
		RealizedProfit:  record.RealizedProfit,
		Cash:            s.session.Cash(),
		TotalAssetValue: totalAssets,
		ReturnRatePct:   s.session.ReturnRatePct(),
	})
}

// ListTrades handles GET /api/v1/trades
// Returns the session's trade history from the store.
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.store.ListTrades(r.Context(), s.session.ID())
	if err != nil {
		writeError(w, "failed to list trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// MaxAffordable handles GET /api/v1/trades/affordable/{symbol}
// Returns the largest quantity a buy of this symbol can afford, fee
// included. Used by purchase-quantity selectors.
func (s *Service) MaxAffordable(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	s.mu.Lock()
	qty, err := s.session.MaxAffordableQuantity(symbol)
	s.mu.Unlock()
	if err != nil {
		writeError(w, "instrument not found: "+symbol, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, AffordableResponse{Symbol: symbol, Quantity: qty})
}

// GetPortfolio handles GET /api/v1/portfolio
// Returns the full portfolio summary with derived figures.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	summary := s.session.Summary()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, summary)
}

// GetHolding handles GET /api/v1/portfolio/holdings/{symbol}
func (s *Service) GetHolding(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	s.mu.Lock()
	resp := HoldingResponse{
		Symbol:      symbol,
		Quantity:    s.session.HoldingAmount(symbol),
		AverageCost: s.session.AveragePurchasePrice(symbol),
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

// AdvanceTurn handles POST /api/v1/turns
// Runs one market turn and returns the updated catalog.
func (s *Service) AdvanceTurn(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.AdvanceTurn()
	metrics.TurnsTotal.Inc()
	s.persist(r, nil)
	metrics.TotalAssetValue.Set(s.session.TotalAssetValue().InexactFloat64())

	turn := s.session.Turn()
	slog.Info("turn advanced", "turn", turn, "return_rate_pct", s.session.ReturnRatePct().String())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:          "turn_advanced",
			Turn:          turn,
			ReturnRatePct: s.session.ReturnRatePct().String(),
		})
	}

	writeJSON(w, http.StatusOK, TurnResponse{
		Turn:        turn,
		Instruments: s.session.Instruments(),
	})
}

// ApplyEvent handles POST /api/v1/events
// Applies a deterministic market-wide or sector-wide price change.
func (s *Service) ApplyEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Scope {
	case "GLOBAL":
		s.session.ApplyGlobalChange(req.RatePct)
	case "SECTOR":
		sector, err := model.ParseSector(req.Sector)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.session.ApplySectorChange(sector, req.RatePct)
	default:
		writeError(w, "scope must be GLOBAL or SECTOR", http.StatusBadRequest)
		return
	}

	s.persist(r, nil)
	slog.Info("market event applied", "scope", req.Scope, "sector", req.Sector, "rate_pct", req.RatePct.String())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:          "market_event",
			ReturnRatePct: s.session.ReturnRatePct().String(),
		})
	}

	writeJSON(w, http.StatusOK, TurnResponse{
		Turn:        s.session.Turn(),
		Instruments: s.session.Instruments(),
	})
}

// ResetPortfolio handles POST /api/v1/portfolio/reset
func (s *Service) ResetPortfolio(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.ResetPortfolio()
	s.persist(r, nil)
	metrics.TotalAssetValue.Set(s.session.TotalAssetValue().InexactFloat64())
	slog.Info("portfolio reset", "session", s.session.ID())

	writeJSON(w, http.StatusOK, s.session.Summary())
}

// persist writes the trade record (if any) and the latest snapshot. The
// in-memory session is authoritative; store failures are logged, not
// surfaced, so a flaky database cannot reject an already-applied trade.
func (s *Service) persist(r *http.Request, record *model.TradeRecord) {
	ctx := r.Context()
	if record != nil {
		if err := s.store.InsertTrade(ctx, record); err != nil {
			slog.Error("failed to persist trade", "trade_id", record.ID, "err", err)
		}
	}
	if err := s.store.SaveSnapshot(ctx, s.session.Snapshot()); err != nil {
		slog.Error("failed to persist snapshot", "session", s.session.ID(), "err", err)
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, session.ErrInvalidQuantity):
		return "invalid_input"
	case errors.Is(err, session.ErrUnknownSymbol):
		return "unknown_symbol"
	case errors.Is(err, session.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, session.ErrInsufficientHoldings):
		return "insufficient_holdings"
	default:
		return "internal"
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnknownSymbol):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInsufficientFunds),
		errors.Is(err, session.ErrInsufficientHoldings):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
