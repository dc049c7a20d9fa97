package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/pflag"

	"github.com/iliyamo/ticket-reservation/internal/app"
	"github.com/iliyamo/ticket-reservation/internal/config"
	"github.com/iliyamo/ticket-reservation/internal/handler"
	"github.com/iliyamo/ticket-reservation/internal/lock"
	"github.com/iliyamo/ticket-reservation/internal/metrics"
	"github.com/iliyamo/ticket-reservation/internal/middleware"
	"github.com/iliyamo/ticket-reservation/internal/queue"
	"github.com/iliyamo/ticket-reservation/internal/router"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile    string
		policyFile string
		seedFile   string
		migrate    bool
	)
	pflag.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	pflag.StringVar(&policyFile, "policy", "", "YAML reservation policy file")
	pflag.StringVar(&seedFile, "seed", "", "YAML catalog of events and ticket types to upsert at startup")
	pflag.BoolVar(&migrate, "migrate", false, "apply embedded schema migrations before serving")
	pflag.Parse()

	if err := config.LoadDotEnv(envFile); err != nil {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	cfg := config.Load()
	policy, err := config.LoadPolicy(policyFile)
	if err != nil {
		return err
	}
	cfg.Policy = policy

	logger := app.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := app.OpenBackend(ctx, cfg, migrate, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	if seedFile != "" {
		n, err := app.SeedCatalog(ctx, backend.Store, seedFile)
		if err != nil {
			return err
		}
		logger.Info("catalog seeded", "ticket_types", n, "file", seedFile)
	}

	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		// Redis only backs rate limiting, caching and the sweep lock.
		logger.Warn("redis unavailable, continuing without it", "err", err)
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	m := metrics.New()
	opts := []service.Option{service.WithLogger(logger), service.WithMetrics(m)}
	if cfg.AMQPURL != "" {
		publisher := queue.NewPublisher(cfg.AMQPURL, logger)
		defer publisher.Close()
		opts = append(opts, service.WithPublisher(publisher))
	}

	store := backend.Store
	ledger := service.NewLedger(store, opts...)
	reservations := service.NewReservationManager(store, ledger, cfg.Policy, opts...)
	converter := service.NewConverter(store, opts...)
	settlement := service.NewSettlement(store, opts...)
	var locker service.Locker
	if rdb != nil {
		locker = lock.NewRedisLock(rdb, "ticketing:sweeper")
	}
	sweeper := service.NewSweeper(store, cfg.Policy, locker, opts...)

	if cfg.AMQPURL != "" {
		consumer := queue.NewConsumer(cfg.AMQPURL, settlement, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("payment consumer stopped", "err", err)
			}
		}()
	}
	if cfg.SweepInterval > 0 {
		go sweeper.Run(ctx, cfg.SweepInterval)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(logger))

	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	sessionTTL := time.Duration(cfg.SessionTTLHours) * time.Hour

	router.RegisterRoutes(e, handler.Health(backend.Pinger()), m.Handler())
	router.RegisterPublic(e, handler.NewSessionHandler(cfg.JWTSecret, sessionTTL, logger), handler.NewInventoryHandler(ledger, logger), limit, cache)
	router.RegisterSession(e, handler.NewReservationHandler(reservations, converter, logger), handler.NewOrderHandler(converter, logger), cfg.JWTSecret, limit)
	if cfg.OperatorKeyHash != "" {
		router.RegisterOperator(e, handler.NewOperatorHandler(settlement, sweeper, logger), cfg.OperatorKeyHash)
	} else {
		logger.Warn("OPERATOR_KEY_HASH not set; internal routes disabled")
	}

	addr := ":" + cfg.Port // Address string with port
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.Store)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
