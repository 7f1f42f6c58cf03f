package trade_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffl/batch-ingester/internal/model"
	"github.com/ffl/batch-ingester/internal/pricing"
	"github.com/ffl/batch-ingester/internal/store"
	"github.com/ffl/batch-ingester/internal/trade"
)

func date(s string) time.Time {
	t, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func newApplier(t *testing.T) *trade.Applier {
	t.Helper()
	a, err := trade.NewApplier(pricing.NewService(), trade.MinScale, trade.HalfEven)
	require.NoError(t, err)
	return a
}

// ledger seeds C1 with cash and units in ISIN-A, priced at 50 on
// 2024-01-02 and 60 on 2024-01-03.
func ledger(t *testing.T, cash, units string) *store.MemoryStore {
	t.Helper()
	ms := store.NewMemoryStore()
	ms.AddCustomer("C1")
	ms.AddNav(model.NavRow{ISIN: "ISIN-A", NavDate: date("2024-01-02"), NavValue: d("50.00")})
	ms.AddNav(model.NavRow{ISIN: "ISIN-A", NavDate: date("2024-01-03"), NavValue: d("60.00")})
	ms.AddNav(model.NavRow{ISIN: "ISIN-Z", NavDate: date("2024-01-02"), NavValue: d("0")})
	if cash != "" {
		ms.AddCash(model.CashTransaction{CustomerID: "C1", ValueDate: date("2024-01-01"), Amount: d(cash)})
	}
	if units != "" {
		ms.AddUnits(model.UnitTransaction{CustomerID: "C1", ISIN: "ISIN-A", ValueDate: date("2024-01-01"), Units: d(units)})
	}
	return ms
}

func instr(op model.Operation, amount, isin, valueDate string) model.Instruction {
	return model.Instruction{
		Line:       2,
		CustomerID: "C1",
		Operation:  op,
		Amount:     d(amount),
		ISIN:       isin,
		ValueDate:  date(valueDate),
	}
}

// applyOne runs a single instruction and commits on success.
func applyOne(t *testing.T, ms *store.MemoryStore, ins model.Instruction) (uuid.UUID, error) {
	t.Helper()
	ctx := context.Background()
	tx, err := ms.Begin(ctx)
	require.NoError(t, err)

	batchID := uuid.New()
	if err := newApplier(t).Apply(ctx, tx, batchID, ins); err != nil {
		require.NoError(t, tx.Rollback(ctx))
		return batchID, err
	}
	require.NoError(t, tx.Commit(ctx))
	return batchID, nil
}

func TestNewApplier_RejectsNarrowScale(t *testing.T) {
	_, err := trade.NewApplier(pricing.NewService(), 7, trade.HalfEven)
	require.Error(t, err)
}

func TestApply_Buy(t *testing.T) {
	ms := ledger(t, "1000.00", "")
	batchID, err := applyOne(t, ms, instr(model.OpBuy, "200.00", "ISIN-A", "2024-01-02"))
	require.NoError(t, err)

	cash := ms.CashTransactions()
	require.Len(t, cash, 2)
	assert.True(t, cash[1].Amount.Equal(d("-200.00")), "cash delta %s", cash[1].Amount)
	assert.Equal(t, batchID, cash[1].BatchID)
	assert.Equal(t, 2, cash[1].Line)
	assert.Equal(t, date("2024-01-02"), cash[1].ValueDate)

	units := ms.UnitTransactions()
	require.Len(t, units, 1)
	assert.True(t, units[0].Units.Equal(d("4")), "unit delta %s", units[0].Units)
	assert.Equal(t, "ISIN-A", units[0].ISIN)
	assert.Equal(t, cash[1].ValueDate, units[0].ValueDate)
}

func TestApply_BuyRoundsUnitsHalfEven(t *testing.T) {
	ms := ledger(t, "1000", "")
	ms.AddNav(model.NavRow{ISIN: "ISIN-B", NavDate: date("2024-01-02"), NavValue: d("3")})

	_, err := applyOne(t, ms, instr(model.OpBuy, "2", "ISIN-B", "2024-01-02"))
	require.NoError(t, err)

	units := ms.UnitTransactions()
	require.Len(t, units, 1)
	assert.Equal(t, "0.66666667", units[0].Units.StringFixed(8))
}

func TestApply_BuyExactBalance(t *testing.T) {
	ms := ledger(t, "200.00", "")
	_, err := applyOne(t, ms, instr(model.OpBuy, "200.00", "ISIN-A", "2024-01-02"))
	require.NoError(t, err)
}

func TestApply_BuyZeroAmount(t *testing.T) {
	ms := ledger(t, "", "")
	_, err := applyOne(t, ms, instr(model.OpBuy, "0", "ISIN-A", "2024-01-02"))
	require.NoError(t, err)
	assert.Len(t, ms.CashTransactions(), 1)
	assert.Len(t, ms.UnitTransactions(), 1)
}

func TestApply_Sell(t *testing.T) {
	ms := ledger(t, "", "4.00000000")
	_, err := applyOne(t, ms, instr(model.OpSell, "1.00000000", "ISIN-A", "2024-01-03"))
	require.NoError(t, err)

	units := ms.UnitTransactions()
	require.Len(t, units, 2)
	assert.True(t, units[1].Units.Equal(d("-1")), "unit delta %s", units[1].Units)

	cash := ms.CashTransactions()
	require.Len(t, cash, 1)
	assert.True(t, cash[0].Amount.Equal(d("60")), "cash delta %s", cash[0].Amount)
}

func TestApply_Errors(t *testing.T) {
	tests := []struct {
		name     string
		cash     string
		units    string
		ins      model.Instruction
		sentinel error
		kind     string
	}{
		{
			name:     "unknown customer",
			cash:     "1000",
			ins:      func() model.Instruction { i := instr(model.OpBuy, "1", "ISIN-A", "2024-01-02"); i.CustomerID = "C9"; return i }(),
			sentinel: trade.ErrUnknownCustomer,
			kind:     "UnknownCustomer",
		},
		{
			name:     "nav missing",
			cash:     "1000",
			ins:      instr(model.OpBuy, "1", "ISIN-X", "2024-01-02"),
			sentinel: pricing.ErrNavMissing,
			kind:     "NavMissing",
		},
		{
			name:     "zero price",
			cash:     "1000",
			ins:      instr(model.OpBuy, "1", "ISIN-Z", "2024-01-02"),
			sentinel: trade.ErrInvalidPrice,
			kind:     "InvalidPrice",
		},
		{
			name:     "insufficient cash",
			cash:     "100.00",
			ins:      instr(model.OpBuy, "200.00", "ISIN-A", "2024-01-02"),
			sentinel: trade.ErrInsufficientCash,
			kind:     "InsufficientCash",
		},
		{
			name:     "insufficient units",
			units:    "0.5",
			ins:      instr(model.OpSell, "1", "ISIN-A", "2024-01-03"),
			sentinel: trade.ErrInsufficientUnits,
			kind:     "InsufficientUnits",
		},
		{
			name:     "sell with no holding",
			ins:      instr(model.OpSell, "1", "ISIN-A", "2024-01-03"),
			sentinel: trade.ErrInsufficientUnits,
			kind:     "InsufficientUnits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := ledger(t, tt.cash, tt.units)
			cashBefore := len(ms.CashTransactions())
			unitsBefore := len(ms.UnitTransactions())

			_, err := applyOne(t, ms, tt.ins)
			require.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.kind, model.KindOf(err))
			assert.Len(t, ms.CashTransactions(), cashBefore)
			assert.Len(t, ms.UnitTransactions(), unitsBefore)
		})
	}
}

func TestApply_SellAtZeroPrice(t *testing.T) {
	ms := ledger(t, "", "")
	ms.AddUnits(model.UnitTransaction{CustomerID: "C1", ISIN: "ISIN-Z", ValueDate: date("2024-01-01"), Units: d("2")})

	_, err := applyOne(t, ms, instr(model.OpSell, "1", "ISIN-Z", "2024-01-02"))
	require.NoError(t, err)

	cash := ms.CashTransactions()
	require.Len(t, cash, 1)
	assert.True(t, cash[0].Amount.IsZero())
}

func TestApply_InsufficientCashFields(t *testing.T) {
	ms := ledger(t, "100.00", "")
	_, err := applyOne(t, ms, instr(model.OpBuy, "200.00", "ISIN-A", "2024-01-02"))

	var ice *trade.InsufficientCashError
	require.True(t, errors.As(err, &ice))
	assert.Equal(t, "C1", ice.CustomerID)
	assert.Equal(t, "InsufficientCash: customer_id=C1 requested=200.00 available=100.00", err.Error())
}

func TestApply_FailureStagesNoWrites(t *testing.T) {
	ms := ledger(t, "100", "")
	ctx := context.Background()
	tx, err := ms.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	err = newApplier(t).Apply(ctx, tx, uuid.New(), instr(model.OpBuy, "150", "ISIN-A", "2024-01-02"))
	require.ErrorIs(t, err, trade.ErrInsufficientCash)

	bal, err := tx.CashBalance(ctx, "C1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("100")), "balance inside scope %s", bal)
}

func TestApply_ReadYourWrites(t *testing.T) {
	ms := ledger(t, "150.00", "")
	ctx := context.Background()
	tx, err := ms.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	a := newApplier(t)
	id := uuid.New()
	require.NoError(t, a.Apply(ctx, tx, id, instr(model.OpBuy, "50.00", "ISIN-A", "2024-01-02")))
	require.NoError(t, a.Apply(ctx, tx, id, instr(model.OpBuy, "50.00", "ISIN-A", "2024-01-02")))

	err = a.Apply(ctx, tx, id, instr(model.OpBuy, "60.00", "ISIN-A", "2024-01-02"))
	var ice *trade.InsufficientCashError
	require.True(t, errors.As(err, &ice))
	assert.True(t, ice.Available.Equal(d("50")), "available %s", ice.Available)
}

// failingTx fails every balance read with a store failure.
type failingTx struct {
	store.Tx
}

func (failingTx) CashBalance(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, &store.FailureError{Op: "cash balance", Err: errors.New("connection reset")}
}

func TestApply_StoreFailurePropagates(t *testing.T) {
	ms := ledger(t, "1000", "")
	ctx := context.Background()
	tx, err := ms.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	err = newApplier(t).Apply(ctx, failingTx{tx}, uuid.New(), instr(model.OpBuy, "1", "ISIN-A", "2024-01-02"))
	require.ErrorIs(t, err, store.ErrStoreFailure)
	assert.Equal(t, "StoreFailure", model.KindOf(err))
}
