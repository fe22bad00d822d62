package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/finsim/ledger-engine/internal/academy"
	"github.com/finsim/ledger-engine/internal/api"
	"github.com/finsim/ledger-engine/internal/cache"
	"github.com/finsim/ledger-engine/internal/catalog"
	"github.com/finsim/ledger-engine/internal/config"
	"github.com/finsim/ledger-engine/internal/identity"
	"github.com/finsim/ledger-engine/internal/insight"
	"github.com/finsim/ledger-engine/internal/ledger"
	"github.com/finsim/ledger-engine/internal/progress"
	"github.com/finsim/ledger-engine/internal/quote"
	"github.com/finsim/ledger-engine/internal/sip"
	"github.com/finsim/ledger-engine/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store and cache ---
	var st store.Store
	var cleanup []func()
	var kv cache.Cache = cache.NewMemory(cache.DefaultMaxEntries)

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			kv = cache.NewRedis(rdb, "finsim:")
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

	// --- Quotes ---
	var quotes interface {
		quote.Provider
		quote.Marker
	}
	var sim *quote.Simulator
	if cfg.QuoteTickEvery > 0 {
		sim = quote.NewSimulator(cfg.QuoteVolatility, cfg.QuoteSeed)
		quotes = sim
	} else {
		quotes = quote.NewStatic(nil)
	}

	// --- Domain services ---
	cat := catalog.Default()
	ledgerSvc := ledger.NewService(st, quotes, quotes, ledger.Options{StartingBalance: cfg.StartingBalance, Logger: logger})
	engine := progress.NewEngine(st, cat, progress.Options{StartingBalance: cfg.StartingBalance, Logger: logger})
	ledgerSvc.OnTrade(engine.AfterTrade)
	academySvc := academy.NewService(st, cat, engine, logger)
	sipSvc := sip.NewService(st, logger)

	var advisor insight.Advisor = insight.Rules{}
	if cfg.GeminiAPIKey != "" {
		g, err := insight.NewGeminiAdvisor(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		if err != nil {
			slog.Warn("gemini advisor disabled", "err", err)
		} else {
			advisor = g
			slog.Info("gemini advisor enabled", "model", cfg.GeminiModel)
		}
	}

	var resolver identity.Resolver = identity.HeaderResolver{}
	var sessions *identity.SessionResolver
	if cfg.SessionSecret != "" {
		sessions = identity.NewSessionResolver([]byte(cfg.SessionSecret))
		resolver = identity.Chain{sessions, identity.HeaderResolver{}}
	}

	// --- WebSocket hub ---
	wsHub := api.NewWSHub(logger)
	go wsHub.Run(ctx)

	server := api.NewServer(api.Deps{
		Store:    st,
		Ledger:   ledgerSvc,
		Progress: engine,
		Academy:  academySvc,
		SIP:      sipSvc,
		Catalog:  cat,
		Quotes:   quotes,
		Advisor:  advisor,
		Cache:    kv,
		CacheTTL: cfg.CacheTTL,
		Identity: resolver,
		Sessions: sessions,
		Hub:      wsHub,
		Logger:   logger,
	})
	engine.OnComplete(server.PublishCompletion)

	if sim != nil {
		go sim.Run(ctx, cfg.QuoteTickEvery, server.PublishQuotes)
	}

	if cfg.DevSeedUser && cfg.DatabaseURL == "" {
		u, err := ledgerSvc.CreateUser(ctx, "Demo Investor", "demo@finsim.local")
		if err != nil {
			slog.Error("seed user failed", "err", err)
		} else {
			slog.Info("seeded demo user", "user", u.ID)
		}
	}

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("ledger-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down ledger-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("ledger-engine stopped")
}
