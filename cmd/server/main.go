package main

import (
	"context"
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

	"github.com/papertrade/engine/internal/eval"
	"github.com/papertrade/engine/internal/metrics"
	"github.com/papertrade/engine/internal/pricing"
	"github.com/papertrade/engine/internal/store"
	"github.com/papertrade/engine/internal/trade"
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

		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
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

	// --- Price resolution ---
	var oracle pricing.Oracle
	if quoteURL := os.Getenv("QUOTE_URL"); quoteURL != "" {
		oracle = pricing.NewHTTPOracle(quoteURL, 2*time.Second)
		slog.Info("live quote source enabled", "url", quoteURL)
	} else {
		slog.Warn("QUOTE_URL not set, prices served from cache and defaults only")
	}
	resolver := pricing.NewResolver(oracle, st, 2*time.Second)

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Trade service ---
	tradeSvc := trade.NewService(st, resolver, wsHub)

	// --- Performance evaluator ---
	var sink eval.FeedbackSink = eval.LogSink{}
	if feedbackURL := os.Getenv("FEEDBACK_URL"); feedbackURL != "" {
		sink = eval.NewHTTPSink(feedbackURL, 5*time.Second)
		slog.Info("feedback pipeline enabled", "url", feedbackURL)
	}
	evaluator := eval.NewEvaluator(st, resolver, sink)

	evalCtx, evalCancel := context.WithCancel(context.Background())
	defer evalCancel()
	go evaluator.Run(evalCtx, evalInterval(), evalDays())

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"paper-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time fill/close events.
		r.Get("/ws", wsHub.HandleWS)

		// Trade execution and position management.
		r.Post("/trades", tradeSvc.HandleExecute)
		r.Post("/positions/{positionID}/close", tradeSvc.HandleClose)

		// Portfolio and leaderboard reads.
		r.Get("/portfolio/{userID}", tradeSvc.HandlePortfolio)
		r.Get("/leaderboard", tradeSvc.HandleLeaderboard)

		// Ledger history.
		r.Get("/users/{userID}/orders", tradeSvc.HandleOrders)
		r.Get("/users/{userID}/transactions", tradeSvc.HandleTransactions)

		// Manual evaluator trigger.
		r.Post("/evaluate", evaluator.HandleEvaluate)
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
		slog.Info("paper-engine listening", "port", port)
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

	slog.Info("shutting down paper-engine...")
	evalCancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("paper-engine stopped")
}

// evalInterval reads EVAL_INTERVAL (e.g. "1h"); defaults to hourly.
func evalInterval() time.Duration {
	if v := os.Getenv("EVAL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		slog.Warn("invalid EVAL_INTERVAL, using default", "value", v)
	}
	return time.Hour
}

// evalDays reads EVAL_DAYS (maturity window in days); defaults to 7.
func evalDays() int {
	if v := os.Getenv("EVAL_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		slog.Warn("invalid EVAL_DAYS, using default", "value", v)
	}
	return 7
}
