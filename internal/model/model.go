// Package model defines the core domain types shared across the ingester.
// All monetary values and unit quantities use shopspring/decimal, never
// float64 for money.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateLayout is the ISO-8601 calendar date layout used for value dates and
// NAV dates on the wire and in the store.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Operation is the instruction verb.
type Operation string

const (
	OpBuy  Operation = "BUY"
	OpSell Operation = "SELL"
)

// Valid reports whether op is one of the supported operations. The check is
// case-sensitive.
func (op Operation) Valid() bool {
	return op == OpBuy || op == OpSell
}

// Customer is identified by an opaque string. Existence is a precondition
// for any instruction referencing it.
type Customer struct {
	ID string `json:"customer_id" db:"customer_id"`
}

// NavRow is the published per-unit price of a fund on one business date.
type NavRow struct {
	ISIN     string          `json:"isin" db:"isin"`
	NavDate  time.Time       `json:"nav_date" db:"nav_date"`
	NavValue decimal.Decimal `json:"nav_value" db:"nav_value"`
}

// CashTransaction is an append-only cash movement.
// Amount is signed: positive = credit, negative = debit.
type CashTransaction struct {
	CustomerID string          `json:"customer_id" db:"customer_id"`
	ValueDate  time.Time       `json:"value_date" db:"value_date"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	BatchID    uuid.UUID       `json:"batch_id" db:"batch_id"`
	Line       int             `json:"line" db:"line"`
}

// UnitTransaction is an append-only movement of fund units.
// Units is signed: positive = acquired, negative = disposed.
type UnitTransaction struct {
	CustomerID string          `json:"customer_id" db:"customer_id"`
	ISIN       string          `json:"isin" db:"isin"`
	ValueDate  time.Time       `json:"value_date" db:"value_date"`
	Units      decimal.Decimal `json:"units" db:"units"`
	BatchID    uuid.UUID       `json:"batch_id" db:"batch_id"`
	Line       int             `json:"line" db:"line"`
}

// Instruction is one customer-initiated trade read from a batch file.
// For BUY, Amount is cash; for SELL, Amount is a unit quantity.
// Line is the 1-based line number in the source (header = line 1).
type Instruction struct {
	Line       int             `json:"line"`
	CustomerID string          `json:"customer_id"`
	Operation  Operation       `json:"operation"`
	Amount     decimal.Decimal `json:"amount"`
	ISIN       string          `json:"isin"`
	ValueDate  time.Time       `json:"value_date"`
}

// FormatDecimal renders d keeping its own scale, so "200.00" stays
// "200.00" in messages.
func FormatDecimal(d decimal.Decimal) string {
	places := -d.Exponent()
	if places < 0 {
		places = 0
	}
	return d.StringFixed(places)
}
