// Package app assembles the pieces both binaries need: logger, store and
// catalog seeding.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/iliyamo/ticket-reservation/internal/clock"
	"github.com/iliyamo/ticket-reservation/internal/config"
	"github.com/iliyamo/ticket-reservation/internal/database"
	"github.com/iliyamo/ticket-reservation/internal/model"
	"github.com/iliyamo/ticket-reservation/internal/repository"
	"github.com/iliyamo/ticket-reservation/internal/service"
)

// CatalogStore is a Store that can also be seeded with events and ticket
// types.
type CatalogStore interface {
	service.Store
	UpsertCatalog(ctx context.Context, events []model.Event, types []model.TicketType) error
}

// Backend is the storage selected by configuration.  DB is nil for the
// in-memory store.
type Backend struct {
	Store CatalogStore
	DB    *sql.DB
}

// NewLogger builds the process logger: JSON in production, text
// elsewhere.
func NewLogger(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if env == "prod" || env == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// OpenBackend connects the configured store.  With migrate set the
// embedded schema is applied first.
func OpenBackend(ctx context.Context, cfg config.Config, migrate bool, logger *slog.Logger) (*Backend, error) {
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store; state is lost on exit")
		return &Backend{Store: repository.NewMemoryStore(clock.System())}, nil
	case "mysql":
		db, err := database.Open(ctx, database.Options{
			User:            cfg.DBUser,
			Pass:            cfg.DBPass,
			Host:            cfg.DBHost,
			Port:            cfg.DBPort,
			Name:            cfg.DBName,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := database.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("schema migrations applied")
		}
		return &Backend{Store: repository.NewMySQLStore(db), DB: db}, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// Pinger returns the database for health checks, or nil for the memory
// store.
func (b *Backend) Pinger() interface {
	PingContext(ctx context.Context) error
} {
	if b.DB == nil {
		return nil
	}
	return b.DB
}

func (b *Backend) Close() error {
	if b.DB == nil {
		return nil
	}
	return b.DB.Close()
}

// SeedCatalog loads the YAML catalog at path into the store.  Sold counts
// of existing ticket types are preserved.
func SeedCatalog(ctx context.Context, store CatalogStore, path string) (int, error) {
	c, err := config.LoadCatalog(path)
	if err != nil {
		return 0, err
	}
	events, types, err := c.Entities()
	if err != nil {
		return 0, err
	}
	if err := store.UpsertCatalog(ctx, events, types); err != nil {
		return 0, fmt.Errorf("seed catalog: %w", err)
	}
	return len(types), nil
}
