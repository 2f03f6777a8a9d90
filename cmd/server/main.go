package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/papertrade/game-engine/internal/market"
	"github.com/papertrade/game-engine/internal/metrics"
	"github.com/papertrade/game-engine/internal/session"
	"github.com/papertrade/game-engine/internal/store"
	"github.com/papertrade/game-engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Game session ---
	cfg := session.Config{
		InitialCash: envDecimal("INITIAL_CASH", decimal.NewFromInt(1_000_000)),
		FeeRatePct:  envDecimal("FEE_RATE_PCT", session.DefaultFeeRatePct),
		Seed:        envInt64("SEED", time.Now().UnixNano()),
	}

	sess, err := session.New(market.DefaultUniverse(), cfg)
	if err != nil {
		slog.Error("failed to create session", "err", err)
		os.Exit(1)
	}

	// Resume a previous game when SESSION_ID is set and a snapshot exists.
	if sessionID := os.Getenv("SESSION_ID"); sessionID != "" {
		snap, err := st.LoadSnapshot(context.Background(), sessionID)
		switch {
		case err == nil:
			if err := sess.RestoreSnapshot(snap); err != nil {
				slog.Error("failed to restore snapshot", "session", sessionID, "err", err)
				os.Exit(1)
			}
			slog.Info("session resumed", "session", sessionID, "turn", snap.Turn)
		case errors.Is(err, store.ErrSnapshotNotFound):
			slog.Info("no snapshot found, starting fresh", "session", sessionID)
		default:
			slog.Error("failed to load snapshot", "session", sessionID, "err", err)
			os.Exit(1)
		}
	}

	slog.Info("session ready",
		"session", sess.ID(),
		"initial_cash", cfg.InitialCash.String(),
		"fee_rate_pct", sess.FeeRatePct().String(),
		"instruments", len(sess.Instruments()),
	)

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Game service ---
	gameSvc := trade.NewService(sess, st, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"game-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time state updates.
		r.Get("/ws", wsHub.HandleWS)

		// Catalog.
		r.Get("/instruments", gameSvc.ListInstruments)
		r.Get("/instruments/{symbol}", gameSvc.GetInstrument)

		// Trading.
		r.Post("/trades", gameSvc.ExecuteTrade)
		r.Get("/trades", gameSvc.ListTrades)
		r.Get("/trades/affordable/{symbol}", gameSvc.MaxAffordable)

		// Portfolio.
		r.Get("/portfolio", gameSvc.GetPortfolio)
		r.Get("/portfolio/holdings/{symbol}", gameSvc.GetHolding)
		r.Post("/portfolio/reset", gameSvc.ResetPortfolio)

		// Market progression.
		r.Post("/turns", gameSvc.AdvanceTurn)
		r.Post("/events", gameSvc.ApplyEvent)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("game-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down game-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("game-engine stopped")
}

// envDecimal reads a decimal environment variable with a fallback.
func envDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		slog.Warn("invalid decimal env var, using default", "key", key, "value", raw)
		return fallback
	}
	return v
}

// envInt64 reads an integer environment variable with a fallback.
func envInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("invalid integer env var, using default", "key", key, "value", raw)
		return fallback
	}
	return v
}
