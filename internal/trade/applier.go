// Package trade applies one customer instruction to the ledger: it
// validates the instruction against ledger state, prices it against the NAV
// table and posts the resulting cash and unit rows.
//
// All monetary values use shopspring/decimal, never float64.
package trade

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ffl/batch-ingester/internal/metrics"
	"github.com/ffl/batch-ingester/internal/model"
	"github.com/ffl/batch-ingester/internal/pricing"
	"github.com/ffl/batch-ingester/internal/store"
)

// Stage is how far an instruction got: Received -> Validated -> Priced ->
// Posted. A failure is terminal and is reported with the last stage reached.
type Stage string

const (
	StageReceived  Stage = "received"
	StageValidated Stage = "validated"
	StagePriced    Stage = "priced"
	StagePosted    Stage = "posted"
)

// Applier posts instructions inside a caller-owned transaction scope. It
// holds no ledger state of its own.
type Applier struct {
	pricing  *pricing.Service
	scale    int32
	rounding RoundingMode
}

// NewApplier creates an applier that divides with scale fractional digits
// using the given rounding mode. scale must be at least MinScale.
func NewApplier(p *pricing.Service, scale int32, rounding RoundingMode) (*Applier, error) {
	if scale < MinScale {
		return nil, fmt.Errorf("trade: division scale %d below minimum %d", scale, MinScale)
	}
	return &Applier{
		pricing:  p,
		scale:    scale,
		rounding: rounding,
	}, nil
}

// Scale returns the configured division scale.
func (a *Applier) Scale() int32 { return a.scale }

// Rounding returns the configured rounding mode.
func (a *Applier) Rounding() RoundingMode { return a.rounding }

// Apply validates, prices and posts one instruction. Every check runs
// before the first write, so a failed instruction leaves no rows in the
// scope. The caller must roll the scope back on error.
func (a *Applier) Apply(ctx context.Context, tx store.Tx, batchID uuid.UUID, ins model.Instruction) error {
	stage := StageReceived
	var err error
	switch ins.Operation {
	case model.OpBuy:
		stage, err = a.buy(ctx, tx, batchID, ins)
	case model.OpSell:
		stage, err = a.sell(ctx, tx, batchID, ins)
	default:
		err = fmt.Errorf("trade: unsupported operation %q", ins.Operation)
	}

	if err != nil {
		kind := model.KindOf(err)
		metrics.InstructionFailures.WithLabelValues(kind, string(stage)).Inc()
		slog.Warn("instruction failed",
			"batch_id", batchID,
			"line", ins.Line,
			"customer", ins.CustomerID,
			"operation", ins.Operation,
			"stage", stage,
			"kind", kind,
			"err", err,
		)
		return err
	}

	metrics.InstructionsPosted.WithLabelValues(string(ins.Operation)).Inc()
	return nil
}

// buy debits amount from cash and credits amount/price units.
func (a *Applier) buy(ctx context.Context, tx store.Tx, batchID uuid.UUID, ins model.Instruction) (Stage, error) {
	if err := a.requireCustomer(ctx, tx, ins.CustomerID); err != nil {
		return StageReceived, err
	}

	price, err := a.price(ctx, tx, ins, false)
	if err != nil {
		return StageValidated, err
	}

	cash, err := tx.CashBalance(ctx, ins.CustomerID)
	if err != nil {
		return StagePriced, err
	}
	if cash.LessThan(ins.Amount) {
		return StagePriced, &InsufficientCashError{
			CustomerID: ins.CustomerID,
			Requested:  ins.Amount,
			Available:  cash,
		}
	}

	units := Divide(ins.Amount, price, a.scale, a.rounding)

	if err := tx.AppendCash(ctx, model.CashTransaction{
		CustomerID: ins.CustomerID,
		ValueDate:  ins.ValueDate,
		Amount:     ins.Amount.Neg(),
		BatchID:    batchID,
		Line:       ins.Line,
	}); err != nil {
		return StagePriced, err
	}
	if err := tx.AppendUnits(ctx, model.UnitTransaction{
		CustomerID: ins.CustomerID,
		ISIN:       ins.ISIN,
		ValueDate:  ins.ValueDate,
		Units:      units,
		BatchID:    batchID,
		Line:       ins.Line,
	}); err != nil {
		return StagePriced, err
	}

	metrics.CashVolume.WithLabelValues(string(model.OpBuy)).Add(ins.Amount.InexactFloat64())
	slog.Debug("instruction posted",
		"batch_id", batchID,
		"line", ins.Line,
		"customer", ins.CustomerID,
		"operation", ins.Operation,
		"isin", ins.ISIN,
		"cash", ins.Amount.Neg().String(),
		"units", units.String(),
		"price", price.String(),
	)
	return StagePosted, nil
}

// sell disposes of amount units and credits amount*price to cash.
func (a *Applier) sell(ctx context.Context, tx store.Tx, batchID uuid.UUID, ins model.Instruction) (Stage, error) {
	if err := a.requireCustomer(ctx, tx, ins.CustomerID); err != nil {
		return StageReceived, err
	}

	price, err := a.price(ctx, tx, ins, true)
	if err != nil {
		return StageValidated, err
	}

	holding, err := tx.UnitHolding(ctx, ins.CustomerID, ins.ISIN)
	if err != nil {
		return StagePriced, err
	}
	if holding.LessThan(ins.Amount) {
		return StagePriced, &InsufficientUnitsError{
			CustomerID: ins.CustomerID,
			ISIN:       ins.ISIN,
			Requested:  ins.Amount,
			Available:  holding,
		}
	}

	proceeds := Round(ins.Amount.Mul(price), a.scale, a.rounding)

	if err := tx.AppendUnits(ctx, model.UnitTransaction{
		CustomerID: ins.CustomerID,
		ISIN:       ins.ISIN,
		ValueDate:  ins.ValueDate,
		Units:      ins.Amount.Neg(),
		BatchID:    batchID,
		Line:       ins.Line,
	}); err != nil {
		return StagePriced, err
	}
	if err := tx.AppendCash(ctx, model.CashTransaction{
		CustomerID: ins.CustomerID,
		ValueDate:  ins.ValueDate,
		Amount:     proceeds,
		BatchID:    batchID,
		Line:       ins.Line,
	}); err != nil {
		return StagePriced, err
	}

	metrics.CashVolume.WithLabelValues(string(model.OpSell)).Add(proceeds.InexactFloat64())
	slog.Debug("instruction posted",
		"batch_id", batchID,
		"line", ins.Line,
		"customer", ins.CustomerID,
		"operation", ins.Operation,
		"isin", ins.ISIN,
		"cash", proceeds.String(),
		"units", ins.Amount.Neg().String(),
		"price", price.String(),
	)
	return StagePosted, nil
}

func (a *Applier) requireCustomer(ctx context.Context, tx store.Tx, customerID string) error {
	ok, err := tx.CustomerExists(ctx, customerID)
	if err != nil {
		return err
	}
	if !ok {
		return &UnknownCustomerError{CustomerID: customerID}
	}
	return nil
}

// price looks up the NAV. A BUY divides by it, so zero is rejected there;
// a SELL only rejects negative prices.
func (a *Applier) price(ctx context.Context, tx store.Tx, ins model.Instruction, allowZero bool) (decimal.Decimal, error) {
	price, err := a.pricing.Nav(ctx, tx, ins.ISIN, ins.ValueDate)
	if err != nil {
		return decimal.Zero, err
	}
	if price.IsNegative() || (price.IsZero() && !allowZero) {
		return decimal.Zero, &InvalidPriceError{
			ISIN:      ins.ISIN,
			ValueDate: ins.ValueDate,
			Price:     price,
		}
	}
	return price, nil
}
