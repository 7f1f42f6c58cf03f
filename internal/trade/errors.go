package trade

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ffl/batch-ingester/internal/model"
)

var (
	ErrUnknownCustomer   = errors.New("trade: unknown customer")
	ErrInvalidPrice      = errors.New("trade: NAV is not a positive price")
	ErrInsufficientCash  = errors.New("trade: insufficient cash")
	ErrInsufficientUnits = errors.New("trade: insufficient units")
)

// UnknownCustomerError is returned when an instruction names a customer
// that does not exist.
type UnknownCustomerError struct {
	CustomerID string
}

func (e *UnknownCustomerError) Error() string {
	return fmt.Sprintf("UnknownCustomer: customer_id=%s", e.CustomerID)
}

func (e *UnknownCustomerError) Kind() string         { return "UnknownCustomer" }
func (e *UnknownCustomerError) Is(target error) bool { return target == ErrUnknownCustomer }

// InvalidPriceError is returned when the published NAV is zero or negative.
type InvalidPriceError struct {
	ISIN      string
	ValueDate time.Time
	Price     decimal.Decimal
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("InvalidPrice: isin=%s value_date=%s price=%s",
		e.ISIN, e.ValueDate.Format(model.DateLayout), model.FormatDecimal(e.Price))
}

func (e *InvalidPriceError) Kind() string         { return "InvalidPrice" }
func (e *InvalidPriceError) Is(target error) bool { return target == ErrInvalidPrice }

// InsufficientCashError is returned when a BUY exceeds the cash balance.
type InsufficientCashError struct {
	CustomerID string
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

func (e *InsufficientCashError) Error() string {
	return fmt.Sprintf("InsufficientCash: customer_id=%s requested=%s available=%s",
		e.CustomerID, model.FormatDecimal(e.Requested), model.FormatDecimal(e.Available))
}

func (e *InsufficientCashError) Kind() string         { return "InsufficientCash" }
func (e *InsufficientCashError) Is(target error) bool { return target == ErrInsufficientCash }

// InsufficientUnitsError is returned when a SELL exceeds the unit holding.
type InsufficientUnitsError struct {
	CustomerID string
	ISIN       string
	Requested  decimal.Decimal
	Available  decimal.Decimal
}

func (e *InsufficientUnitsError) Error() string {
	return fmt.Sprintf("InsufficientUnits: customer_id=%s isin=%s requested=%s available=%s",
		e.CustomerID, e.ISIN, model.FormatDecimal(e.Requested), model.FormatDecimal(e.Available))
}

func (e *InsufficientUnitsError) Kind() string         { return "InsufficientUnits" }
func (e *InsufficientUnitsError) Is(target error) bool { return target == ErrInsufficientUnits }
