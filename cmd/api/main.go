package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storefront/internal/broadcast"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/httpserver"
	"storefront/internal/logging"
	"storefront/internal/migrate"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/repository/kv"
	productrepo "storefront/internal/repository/product"
	"storefront/internal/seed"
	"storefront/internal/service/analytics"
	"storefront/internal/service/cart"
	"storefront/internal/service/checkout"
	productsvc "storefront/internal/service/product"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New("api", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		pool     *pgxpool.Pool
		rdb      *redis.Client
		backend  kv.Backend
		products productrepo.Repository
		ready    []httpserver.ReadinessCheck
		err      error
	)

	if cfg.StoreBackend == "postgres" {
		pool, err = db.Connect(ctx, cfg.DBConnString, logger)
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		defer pool.Close()
		if err := migrate.Apply(ctx, pool, logger.Named("migrate")); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		ready = append(ready, httpserver.ReadinessCheck{Name: "postgres", Check: pool.Ping})
	}
	if cfg.StoreBackend == "redis" || cfg.BroadcastMode == "redis" {
		rdb, err = db.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		ready = append(ready, httpserver.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	switch cfg.StoreBackend {
	case "postgres":
		backend = kv.NewPostgres(pool, logger)
		products = productrepo.NewPostgres(pool, logger)
	case "redis":
		backend = kv.NewRedis(rdb, logger)
		products = productrepo.NewMemory()
	default:
		backend = kv.NewMemory()
		products = productrepo.NewMemory()
	}
	if pool == nil {
		if err := seed.Apply(ctx, products); err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
	}
	store := kv.New(backend, cfg.MaxValueBytes, logger)

	g, gctx := errgroup.WithContext(ctx)

	var bus broadcast.Bus = broadcast.NewHub()
	if cfg.BroadcastMode == "redis" {
		rbus := broadcast.NewRedis(rdb, broadcast.DefaultChannel, logger)
		g.Go(func() error { return rbus.Run(gctx) })
		bus = rbus
	}

	policy := pricing.DefaultPolicy()
	policy.TaxRateBps = cfg.Pricing.TaxRateBps
	policy.FreeShippingThreshold = cfg.Pricing.FreeShippingThreshold
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("pricing policy: %w", err)
	}

	carts := cart.NewSessions(store, bus, cart.Options{
		MaxItems:           cfg.Cart.MaxItems,
		MaxQuantityPerItem: cfg.Cart.MaxQuantityPerItem,
		IdleTimeout:        cfg.Cart.SessionTimeout,
	}, logger)
	defer carts.Close()
	g.Go(func() error { return carts.Run(gctx) })

	gateway := payment.NewGuarded(payment.NewSimulated(cfg.Payment.Delay, cfg.Payment.FailureRate), cfg.Payment.Timeout, logger)
	ready = append(ready, httpserver.ReadinessCheck{Name: "payment", Check: func(context.Context) error {
		if gateway.State() == gobreaker.StateOpen {
			return payment.ErrUnavailable
		}
		return nil
	}})

	tracker := analytics.NewTracker(store, cfg.AnalyticsLimit, logger)
	if len(cfg.KafkaBrokers) > 0 {
		writer := analytics.NewKafkaWriter(cfg.KafkaBrokers, cfg.AnalyticsTopic)
		defer writer.Close()
		flusher := analytics.NewFlusher(store, writer, cfg.AnalyticsFlush, cfg.AnalyticsLimit, logger)
		g.Go(func() error { return flusher.Run(gctx) })
	}

	srv, err := httpserver.New(cfg.HTTPAddr, logger, httpserver.Deps{
		Products:    productsvc.New(products),
		Carts:       carts,
		Checkout:    checkout.New(carts, store, gateway, policy, tracker, logger),
		Tracker:     tracker,
		Ready:       ready,
		CORSOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
