package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ffl/batch-ingester/internal/model"
)

// PostgresStore implements Ledger using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision and
// read back as text.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Begin opens a REPEATABLE READ transaction. Postgres gives the scope a
// stable snapshot plus its own writes; a conflicting concurrent batch fails
// at commit with a serialization error.
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fail("begin", err)
	}
	return &postgresTx{tx: tx}, nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) CustomerExists(ctx context.Context, customerID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM customer WHERE customer_id = $1)`, customerID).
		Scan(&exists)
	if err != nil {
		return false, fail("customer exists", wrapTxDone(err))
	}
	return exists, nil
}

func (t *postgresTx) NavValues(ctx context.Context, isin string, navDate time.Time) ([]decimal.Decimal, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT nav_value::TEXT FROM nav WHERE isin = $1 AND nav_date = $2`,
		isin, navDate.Format(model.DateLayout))
	if err != nil {
		return nil, fail("nav lookup", wrapTxDone(err))
	}
	defer rows.Close()

	var values []decimal.Decimal
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fail("nav lookup", err)
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fail("nav lookup", fmt.Errorf("parse nav_value %q: %w", s, err))
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("nav lookup", err)
	}
	return values, nil
}

func (t *postgresTx) CashBalance(ctx context.Context, customerID string) (decimal.Decimal, error) {
	return t.sum(ctx, "cash balance",
		`SELECT COALESCE(SUM(amount), 0)::TEXT FROM cash_transaction WHERE customer_id = $1`,
		customerID)
}

func (t *postgresTx) UnitHolding(ctx context.Context, customerID, isin string) (decimal.Decimal, error) {
	return t.sum(ctx, "unit holding",
		`SELECT COALESCE(SUM(units), 0)::TEXT FROM unit_transaction WHERE customer_id = $1 AND isin = $2`,
		customerID, isin)
}

func (t *postgresTx) sum(ctx context.Context, op, query string, args ...any) (decimal.Decimal, error) {
	var s string
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&s); err != nil {
		return decimal.Zero, fail(op, wrapTxDone(err))
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fail(op, fmt.Errorf("parse sum %q: %w", s, err))
	}
	return v, nil
}

func (t *postgresTx) AppendCash(ctx context.Context, e model.CashTransaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO cash_transaction (customer_id, value_date, amount, batch_id, line)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5)`,
		e.CustomerID, e.ValueDate.Format(model.DateLayout), e.Amount.String(),
		nullableBatch(e.BatchID), nullableLine(e.Line),
	)
	return fail("append cash", wrapTxDone(err))
}

func (t *postgresTx) AppendUnits(ctx context.Context, e model.UnitTransaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO unit_transaction (customer_id, isin, value_date, units, batch_id, line)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6)`,
		e.CustomerID, e.ISIN, e.ValueDate.Format(model.DateLayout), e.Units.String(),
		nullableBatch(e.BatchID), nullableLine(e.Line),
	)
	return fail("append units", wrapTxDone(err))
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return fail("commit", wrapTxDone(t.tx.Commit(ctx)))
}

// Rollback is a no-op on a finished transaction so it can be deferred.
func (t *postgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return fail("rollback", err)
}

func wrapTxDone(err error) error {
	if errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("%w: %v", ErrTxDone, err)
	}
	return err
}

func nullableBatch(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id.String()
}

func nullableLine(line int) any {
	if line <= 0 {
		return nil
	}
	return line
}
