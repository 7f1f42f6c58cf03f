package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"github.com/ffl/batch-ingester/internal/batch"
	"github.com/ffl/batch-ingester/internal/config"
	"github.com/ffl/batch-ingester/internal/notify"
	"github.com/ffl/batch-ingester/internal/pricing"
	"github.com/ffl/batch-ingester/internal/store"
	"github.com/ffl/batch-ingester/internal/trade"
)

// deps holds the opened collaborators of a command and how to close them.
type deps struct {
	ledger    store.Ledger
	notifiers []batch.Notifier
	cleanup   []func()
}

func (d *deps) Close() {
	for i := len(d.cleanup) - 1; i >= 0; i-- {
		d.cleanup[i]()
	}
}

// openLedger selects the store: PostgreSQL when DATABASE_URL is set, with a
// Redis NAV cache in front when REDIS_URL is also set; otherwise the
// in-memory store seeded from FIXTURES_FILE.
func openLedger(ctx context.Context, cfg config.Config) (*deps, error) {
	d := &deps{}

	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		ms := store.NewMemoryStore()
		if cfg.FixturesFile != "" {
			f, err := os.Open(cfg.FixturesFile)
			if err != nil {
				return nil, fmt.Errorf("open fixtures: %w", err)
			}
			defer f.Close()
			if err := ms.LoadFixtures(f); err != nil {
				return nil, err
			}
			slog.Info("loaded fixtures", "file", cfg.FixturesFile)
		}
		d.ledger = ms
		return d, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	d.cleanup = append(d.cleanup, pool.Close)
	var ledger store.Ledger = store.NewPostgresStore(pool)
	slog.Info("connected to PostgreSQL")

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		d.cleanup = append(d.cleanup, func() { rdb.Close() })
		ledger = store.NewCachedStore(ledger, rdb, cfg.NavCacheTTL)
		slog.Info("Redis NAV cache enabled", "ttl", cfg.NavCacheTTL)
	}

	d.ledger = ledger
	return d, nil
}

// openPool connects to PostgreSQL for commands that need the raw pool.
func openPool(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return pool, nil
}

// openNotifiers connects the outcome publisher when NATS_URL is set.
func (d *deps) openNotifiers(ctx context.Context, cfg config.Config) error {
	if cfg.NATSURL == "" {
		return nil
	}
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("batch-ingester"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	d.cleanup = append(d.cleanup, func() { nc.Drain() })

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}
	if err := notify.EnsureStream(ctx, js); err != nil {
		return err
	}
	d.notifiers = append(d.notifiers, notify.NewPublisher(js))
	return nil
}

func newApplier(cfg config.Config) (*trade.Applier, error) {
	return trade.NewApplier(pricing.NewService(), cfg.DivisionScale, cfg.Rounding)
}
