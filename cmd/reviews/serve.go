package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"company_reviews/internal/adapters/company"
	"company_reviews/internal/adapters/events"
	server "company_reviews/internal/adapters/http_server"
	"company_reviews/internal/adapters/observability"
	redisad "company_reviews/internal/adapters/redis"
	"company_reviews/internal/app"
	"company_reviews/internal/domain"
	"company_reviews/internal/shared"
	mysqlrepo "company_reviews/internal/storage/mysql"
	"company_reviews/internal/storage/sqlite"
)

const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reviews HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func openStore(ctx context.Context, cfg shared.Config) (domain.ReviewStore, func() error, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("sqlite store ready")
		return s, s.Close, nil
	default:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping mysql: %w", err)
		}
		log.Info().Msg("database connection ok")
		return mysqlrepo.New(db), db.Close, nil
	}
}

func newAggregator(ctx context.Context, cfg shared.Config, store domain.ReviewStore) (domain.RatingAggregator, func() error) {
	base := app.NewStoreAggregator(store)
	if cfg.RedisAddr == "" {
		return base, func() error { return nil }
	}
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; averages fall back to the store until it recovers")
	}
	return app.NewCachedAggregator(base, cache, cfg.CacheTTL, log.Logger), cache.Close
}

func serve(ctx context.Context, cfg shared.Config) error {
	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	agg, closeCache := newAggregator(ctx, cfg, store)
	defer closeCache()

	registry, err := company.New(cfg.CompanyBase, cfg.CompanyKey, cfg.CompanyRPS, cfg.CompanyCacheTTL)
	if err != nil {
		return fmt.Errorf("company client: %w", err)
	}

	pub, err := events.New(ctx, cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("event publisher: %w", err)
	}
	defer pub.Close()

	svc := app.NewReviewService(store, registry, pub, agg,
		app.WithValidateTimeout(cfg.ValidateTimeout),
		app.WithPublishTimeout(cfg.PublishTimeout),
		app.WithLogger(log.Logger),
	)

	srv := server.New(cfg.JWTSecret, log.Logger)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{S: svc})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Str("event_bus", cfg.EventBus).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	return g.Wait()
}
