// Command sweeper runs the expiration sweep outside the server, either
// once (for cron) or on an interval.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/iliyamo/ticket-reservation/internal/app"
	"github.com/iliyamo/ticket-reservation/internal/config"
	"github.com/iliyamo/ticket-reservation/internal/lock"
	"github.com/iliyamo/ticket-reservation/internal/queue"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "sweeper:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile    string
		policyFile string
		interval   time.Duration
	)
	pflag.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	pflag.StringVar(&policyFile, "policy", "", "YAML reservation policy file")
	pflag.DurationVar(&interval, "interval", 0, "sweep repeatedly at this interval; 0 sweeps once and exits")
	pflag.Parse()

	if err := config.LoadDotEnv(envFile); err != nil {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	cfg := config.LoadWorker()
	policy, err := config.LoadPolicy(policyFile)
	if err != nil {
		return err
	}
	logger := app.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := app.OpenBackend(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	opts := []service.Option{service.WithLogger(logger)}
	if cfg.AMQPURL != "" {
		publisher := queue.NewPublisher(cfg.AMQPURL, logger)
		defer publisher.Close()
		opts = append(opts, service.WithPublisher(publisher))
	}

	var locker service.Locker
	if interval > 0 {
		rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
		if err != nil {
			logger.Warn("redis unavailable, sweeping without a lock", "err", err)
		} else if rdb != nil {
			defer rdb.Close()
			locker = lock.NewRedisLock(rdb, "ticketing:sweeper")
		}
	}
	sweeper := service.NewSweeper(backend.Store, policy, locker, opts...)

	if interval > 0 {
		logger.Info("sweeping on interval", "interval", interval)
		sweeper.Run(ctx, interval)
		return nil
	}

	rep, err := sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(rep)
}
