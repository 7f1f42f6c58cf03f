package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ffl/batch-ingester/internal/model"
)

// CachedStore wraps a primary Ledger (PostgreSQL) with a Redis read-through
// cache for NAV lookups. NAV rows are published upstream and immutable once
// a batch runs, so they are safe to share across scopes. Balances are never
// cached: they must reflect the scope's own pending writes.
type CachedStore struct {
	primary Ledger
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary ledger.
func NewCachedStore(primary Ledger, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.primary.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &cachedTx{Tx: tx, store: s}, nil
}

// cachedTx delegates everything to the primary scope except NavValues.
type cachedTx struct {
	Tx
	store *CachedStore
}

// NavValues checks Redis first, then falls back to the primary. Only
// non-empty results are cached so a NAV published later is picked up.
func (t *cachedTx) NavValues(ctx context.Context, isin string, navDate time.Time) ([]decimal.Decimal, error) {
	key := navKeyString(isin, navDate)

	data, err := t.store.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var values []decimal.Decimal
		if json.Unmarshal(data, &values) == nil && len(values) > 0 {
			return values, nil
		}
	} else if err != redis.Nil {
		slog.Warn("nav cache read failed", "key", key, "err", err)
	}

	// Cache miss: read from primary.
	values, err := t.Tx.NavValues(ctx, isin, navDate)
	if err != nil {
		return nil, err
	}

	if len(values) > 0 {
		if data, err := json.Marshal(values); err == nil {
			if err := t.store.rdb.Set(ctx, key, data, t.store.ttl).Err(); err != nil {
				slog.Warn("nav cache write failed", "key", key, "err", err)
			}
		}
	}
	return values, nil
}

func navKeyString(isin string, d time.Time) string {
	return fmt.Sprintf("nav:%s:%s", isin, d.Format(model.DateLayout))
}
