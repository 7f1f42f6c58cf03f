// Package pricing resolves the unit price of a fund on a value date from the
// published NAV table. The lookup never guesses: a missing or duplicated NAV
// row is an error.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ffl/batch-ingester/internal/metrics"
	"github.com/ffl/batch-ingester/internal/model"
)

var (
	// ErrNavMissing matches every *NavMissingError via errors.Is.
	ErrNavMissing = errors.New("pricing: no NAV published")

	// ErrNavAmbiguous matches every *NavAmbiguousError via errors.Is.
	ErrNavAmbiguous = errors.New("pricing: more than one NAV published")
)

// NavMissingError reports that no NAV row exists for (ISIN, ValueDate).
type NavMissingError struct {
	ISIN      string
	ValueDate time.Time
}

func (e *NavMissingError) Error() string {
	return fmt.Sprintf("NavMissing: isin=%s value_date=%s", e.ISIN, e.ValueDate.Format(model.DateLayout))
}

// Kind returns the taxonomy name of the error.
func (e *NavMissingError) Kind() string { return "NavMissing" }

func (e *NavMissingError) Is(target error) bool { return target == ErrNavMissing }

// NavAmbiguousError reports upstream corruption: Count > 1 NAV rows for
// the same (ISIN, ValueDate).
type NavAmbiguousError struct {
	ISIN      string
	ValueDate time.Time
	Count     int
}

func (e *NavAmbiguousError) Error() string {
	return fmt.Sprintf("NavAmbiguous: isin=%s value_date=%s rows=%d",
		e.ISIN, e.ValueDate.Format(model.DateLayout), e.Count)
}

// Kind returns the taxonomy name of the error.
func (e *NavAmbiguousError) Kind() string { return "NavAmbiguous" }

func (e *NavAmbiguousError) Is(target error) bool { return target == ErrNavAmbiguous }

// NavSource returns every NAV value published for a fund on a date.
// store.Tx satisfies it.
type NavSource interface {
	NavValues(ctx context.Context, isin string, navDate time.Time) ([]decimal.Decimal, error)
}

// Service is the pricing service. It is stateless; the source is passed per
// call so lookups run inside the caller's transaction scope.
type Service struct{}

// NewService creates a pricing service.
func NewService() *Service {
	return &Service{}
}

// Nav returns the unique NAV for (isin, valueDate).
func (s *Service) Nav(ctx context.Context, src NavSource, isin string, valueDate time.Time) (decimal.Decimal, error) {
	values, err := src.NavValues(ctx, isin, valueDate)
	if err != nil {
		metrics.NavLookups.WithLabelValues("error").Inc()
		return decimal.Zero, err
	}
	switch len(values) {
	case 0:
		metrics.NavLookups.WithLabelValues("missing").Inc()
		return decimal.Zero, &NavMissingError{ISIN: isin, ValueDate: valueDate}
	case 1:
		metrics.NavLookups.WithLabelValues("found").Inc()
		return values[0], nil
	default:
		metrics.NavLookups.WithLabelValues("ambiguous").Inc()
		return decimal.Zero, &NavAmbiguousError{ISIN: isin, ValueDate: valueDate, Count: len(values)}
	}
}
