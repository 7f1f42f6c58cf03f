package pricing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffl/batch-ingester/internal/pricing"
)

type navTable map[string][]decimal.Decimal

func (n navTable) NavValues(_ context.Context, isin string, d time.Time) ([]decimal.Decimal, error) {
	return n[isin+"@"+d.Format("2006-01-02")], nil
}

type brokenSource struct{ err error }

func (b brokenSource) NavValues(context.Context, string, time.Time) ([]decimal.Decimal, error) {
	return nil, b.err
}

var day = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func TestNav_Unique(t *testing.T) {
	src := navTable{"ISIN-A@2024-01-02": {decimal.RequireFromString("50.00")}}

	price, err := pricing.NewService().Nav(context.Background(), src, "ISIN-A", day)
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(50)), "got %s", price)
}

func TestNav_Missing(t *testing.T) {
	_, err := pricing.NewService().Nav(context.Background(), navTable{}, "ISIN-X", day)
	require.ErrorIs(t, err, pricing.ErrNavMissing)

	var nme *pricing.NavMissingError
	require.True(t, errors.As(err, &nme))
	assert.Equal(t, "ISIN-X", nme.ISIN)
	assert.Equal(t, day, nme.ValueDate)
	assert.Equal(t, "NavMissing", nme.Kind())
	assert.Equal(t, "NavMissing: isin=ISIN-X value_date=2024-01-02", err.Error())
}

func TestNav_AmbiguousNeverPicksOne(t *testing.T) {
	src := navTable{"ISIN-A@2024-01-02": {
		decimal.RequireFromString("50.00"),
		decimal.RequireFromString("50.00"),
	}}

	price, err := pricing.NewService().Nav(context.Background(), src, "ISIN-A", day)
	require.ErrorIs(t, err, pricing.ErrNavAmbiguous)
	assert.True(t, price.IsZero())

	var nae *pricing.NavAmbiguousError
	require.True(t, errors.As(err, &nae))
	assert.Equal(t, 2, nae.Count)
}

func TestNav_OtherDateDoesNotMatch(t *testing.T) {
	src := navTable{"ISIN-A@2024-01-03": {decimal.NewFromInt(60)}}
	_, err := pricing.NewService().Nav(context.Background(), src, "ISIN-A", day)
	assert.ErrorIs(t, err, pricing.ErrNavMissing)
}

func TestNav_PropagatesSourceError(t *testing.T) {
	boom := errors.New("boom")
	_, err := pricing.NewService().Nav(context.Background(), brokenSource{boom}, "ISIN-A", day)
	assert.ErrorIs(t, err, boom)
}
