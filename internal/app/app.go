// Package app assembles the planner and its backing services from
// configuration. It is shared by the server and the admin CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/p-n-ai/pai-planner/internal/curriculum"
	"github.com/p-n-ai/pai-planner/internal/events"
	"github.com/p-n-ai/pai-planner/internal/lifecycle"
	"github.com/p-n-ai/pai-planner/internal/planner"
	"github.com/p-n-ai/pai-planner/internal/platform/cache"
	"github.com/p-n-ai/pai-planner/internal/platform/config"
	"github.com/p-n-ai/pai-planner/internal/platform/database"
	"github.com/p-n-ai/pai-planner/internal/platform/metrics"
	"github.com/p-n-ai/pai-planner/internal/scheduler"
	"github.com/p-n-ai/pai-planner/internal/tags"
	"github.com/p-n-ai/pai-planner/internal/task"
)

// App holds the assembled planner and the connections it owns.
type App struct {
	Engine  *planner.Engine
	Catalog *curriculum.Catalog
	Metrics *metrics.Metrics
	DB      *database.DB
	Cache   *cache.Cache // nil when disabled
	NATS    *nats.Conn   // nil when disabled
}

// New connects to PostgreSQL, and to the cache and NATS when enabled, then
// builds the planner on top of them. The cache and NATS are optional: a
// connection failure is logged and the planner runs without them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	catalog, err := curriculum.Load(cfg.Curriculum.Path)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("loading scheduler timezone: %w", err)
	}

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return nil, err
	}
	a := &App{Catalog: catalog, Metrics: metrics.New(), DB: db}

	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			slog.Warn("cache unavailable, continuing without it", "error", err)
		} else {
			a.Cache = c
		}
	}
	if cfg.NATS.Enabled {
		conn, err := events.ConnectNATS(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, continuing without it", "error", err)
		} else {
			a.NATS = conn
		}
	}

	store, err := task.NewPostgresStore(db.Pool)
	if err != nil {
		a.Close()
		return nil, err
	}
	pgBank, err := tags.NewPostgresBank(db.Pool)
	if err != nil {
		a.Close()
		return nil, err
	}

	var bank tags.Bank = pgBank
	var locker scheduler.Locker
	if a.Cache != nil {
		bank = tags.NewCachedBank(pgBank, a.Cache, cfg.Tags.CacheTTL)
		locker = a.Cache
	}

	loggers := events.Multi{events.NewPostgres(db.Pool)}
	if a.NATS != nil {
		loggers = append(loggers, events.NewNATS(a.NATS, cfg.NATS.SubjectPrefix))
	}

	sched, err := scheduler.New(scheduler.Config{
		Catalog:  catalog,
		Store:    store,
		Tags:     tags.NewSampler(bank, nil),
		Events:   loggers,
		Metrics:  a.Metrics,
		Locker:   locker,
		LockTTL:  cfg.Scheduler.LockTTL,
		Location: loc,
		MaxTags:  cfg.Tags.MaxCount,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	lc, err := lifecycle.New(lifecycle.Config{
		Catalog: catalog,
		Store:   store,
		Events:  loggers,
		Metrics: a.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine, err = planner.NewEngine(planner.EngineConfig{
		Catalog:   catalog,
		Store:     store,
		Scheduler: sched,
		Lifecycle: lc,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	slog.Info("planner ready",
		"curriculum", catalog.Name(),
		"units", len(catalog.Units()),
		"facets", len(catalog.Facets()),
		"cache", a.Cache != nil,
		"nats", a.NATS != nil,
		"timezone", loc.String(),
	)
	return a, nil
}

// Close releases every connection the app owns.
func (a *App) Close() {
	if a.NATS != nil {
		if err := a.NATS.Drain(); err != nil {
			slog.Warn("nats drain failed", "error", err)
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			slog.Warn("cache close failed", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// NewLogger builds the process logger from the log settings.
func NewLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
