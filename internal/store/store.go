// Package store defines the ledger gateway: the read/write contract over the
// persistent store, with no business logic.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// NAV cache), and in-memory (for testing and development).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ffl/batch-ingester/internal/model"
)

var (
	// ErrStoreFailure matches every *FailureError via errors.Is.
	ErrStoreFailure = errors.New("store: failure")

	// ErrTxDone is returned when a transaction is used after Commit or Rollback.
	ErrTxDone = errors.New("store: transaction already committed or rolled back")

	// ErrConflict is returned by Commit when a concurrent scope committed
	// writes first.
	ErrConflict = errors.New("store: concurrent batch committed first")
)

// FailureError wraps an underlying storage error. Driver-specific error
// shapes never escape the store package unwrapped.
type FailureError struct {
	Op  string
	Err error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("StoreFailure: %s: %v", e.Op, e.Err)
}

// Kind returns the taxonomy name of the error.
func (e *FailureError) Kind() string { return "StoreFailure" }

func (e *FailureError) Is(target error) bool { return target == ErrStoreFailure }

func (e *FailureError) Unwrap() error { return e.Err }

func fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return &FailureError{Op: op, Err: err}
}

// Ledger opens transaction scopes over the store.
type Ledger interface {
	// Begin opens a transaction scope. Reads inside it observe a consistent
	// snapshot of committed state plus the scope's own pending writes.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one transaction scope. After Commit or Rollback every method returns
// an error wrapping ErrTxDone.
type Tx interface {
	// --- Reference data ---

	// CustomerExists reports whether a customer row exists.
	CustomerExists(ctx context.Context, customerID string) (bool, error)

	// NavValues returns every nav_value published for (isin, navDate), in
	// no particular order. Uniqueness is checked by the caller.
	NavValues(ctx context.Context, isin string, navDate time.Time) ([]decimal.Decimal, error)

	// --- Derived balances ---

	// CashBalance sums the customer's cash transactions; 0 if none.
	CashBalance(ctx context.Context, customerID string) (decimal.Decimal, error)

	// UnitHolding sums the customer's unit transactions in a fund; 0 if none.
	UnitHolding(ctx context.Context, customerID, isin string) (decimal.Decimal, error)

	// --- Append-only ledger ---

	// AppendCash inserts a cash transaction row.
	AppendCash(ctx context.Context, entry model.CashTransaction) error

	// AppendUnits inserts a unit transaction row.
	AppendUnits(ctx context.Context, entry model.UnitTransaction) error

	// --- Scope control ---

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// View runs fn inside a scope that is always rolled back.
func View(ctx context.Context, l Ledger, fn func(Tx) error) error {
	tx, err := l.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	return fn(tx)
}
