// Package batch runs one instruction file as a single all-or-nothing unit:
// every instruction posts inside one ledger scope, which is committed only
// if all of them succeed.
package batch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ffl/batch-ingester/internal/instruction"
	"github.com/ffl/batch-ingester/internal/metrics"
	"github.com/ffl/batch-ingester/internal/store"
	"github.com/ffl/batch-ingester/internal/trade"
)

// Notifier is told about every finished batch. Notification happens after
// commit or rollback and cannot change the outcome.
type Notifier interface {
	Notify(ctx context.Context, o Outcome) error
}

// Coordinator drives the reader and the applier over one transaction scope
// per batch. It is safe to call Run from several goroutines; each call uses
// its own scope and the store arbitrates conflicting commits.
type Coordinator struct {
	ledger    store.Ledger
	applier   *trade.Applier
	notifiers []Notifier
}

// NewCoordinator creates a coordinator over ledger.
func NewCoordinator(ledger store.Ledger, applier *trade.Applier, notifiers ...Notifier) *Coordinator {
	return &Coordinator{
		ledger:    ledger,
		applier:   applier,
		notifiers: notifiers,
	}
}

// Run applies every instruction in src. It returns a committed outcome only
// if all instructions applied and the scope committed; otherwise nothing
// from src is visible in the ledger.
func (c *Coordinator) Run(ctx context.Context, src io.Reader) Outcome {
	start := time.Now()
	out := Outcome{BatchID: uuid.New()}
	slog.Info("batch started", "batch_id", out.BatchID)

	out = c.run(ctx, src, out)

	if out.Err == nil {
		out.Status = StatusCommitted
		slog.Info("batch committed",
			"batch_id", out.BatchID,
			"count", out.Count,
			"duration", time.Since(start),
		)
	} else {
		out.Status = StatusFailed
		slog.Error("batch rolled back",
			"batch_id", out.BatchID,
			"line", out.Line,
			"kind", out.Kind(),
			"applied", out.Count,
			"err", out.Err,
		)
	}
	metrics.BatchesTotal.WithLabelValues(string(out.Status)).Inc()
	metrics.BatchDuration.WithLabelValues(string(out.Status)).Observe(time.Since(start).Seconds())

	for _, n := range c.notifiers {
		if err := n.Notify(ctx, out); err != nil {
			slog.Warn("batch notification failed", "batch_id", out.BatchID, "err", err)
		}
	}
	return out
}

func (c *Coordinator) run(ctx context.Context, src io.Reader, out Outcome) Outcome {
	tx, err := c.ledger.Begin(ctx)
	if err != nil {
		out.Err = err
		return out
	}

	for ins, err := range instruction.Read(src) {
		if err != nil {
			out.Line = lineOf(err)
			out.Err = err
			c.rollback(ctx, tx, out.BatchID)
			return out
		}
		if err := c.applier.Apply(ctx, tx, out.BatchID, ins); err != nil {
			out.Line = ins.Line
			out.Err = err
			c.rollback(ctx, tx, out.BatchID)
			return out
		}
		out.Count++
	}

	if err := tx.Commit(ctx); err != nil {
		// Release the scope in case the store kept it open.
		c.rollback(ctx, tx, out.BatchID)
		out.Err = &CommitError{Err: err}
	}
	return out
}

func (c *Coordinator) rollback(ctx context.Context, tx store.Tx, batchID uuid.UUID) {
	if err := tx.Rollback(ctx); err != nil {
		slog.Error("rollback failed", "batch_id", batchID, "err", err)
	}
}

func lineOf(err error) int {
	var mre *instruction.MalformedRecordError
	if errors.As(err, &mre) {
		return mre.Line
	}
	return 0
}
