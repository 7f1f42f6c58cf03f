package trade

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinScale is the smallest division scale the applier accepts.
const MinScale int32 = 8

// RoundingMode selects how results are rounded to the configured scale.
type RoundingMode int

const (
	// HalfEven rounds to nearest, ties to the even digit (banker's rounding).
	HalfEven RoundingMode = iota
	// HalfUp rounds to nearest, ties away from zero.
	HalfUp
	// Down truncates toward zero.
	Down
)

func (m RoundingMode) String() string {
	switch m {
	case HalfEven:
		return "half-even"
	case HalfUp:
		return "half-up"
	case Down:
		return "down"
	default:
		return fmt.Sprintf("RoundingMode(%d)", int(m))
	}
}

// ParseRoundingMode parses "half-even", "half-up" or "down".
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch s {
	case "half-even", "":
		return HalfEven, nil
	case "half-up":
		return HalfUp, nil
	case "down":
		return Down, nil
	default:
		return 0, fmt.Errorf("trade: unknown rounding mode %q (expected half-even, half-up or down)", s)
	}
}

var two = decimal.NewFromInt(2)

// Divide returns a/b with scale fractional digits. The result is exact
// before rounding: the quotient is truncated at scale and the remainder
// decides the last digit, so no intermediate precision is lost.
// b must be non-zero.
func Divide(a, b decimal.Decimal, scale int32, mode RoundingMode) decimal.Decimal {
	q, r := a.QuoRem(b, scale)
	if r.IsZero() || mode == Down {
		return q
	}

	// |r| < |b|·10^-scale; compare 2|r| against that bound to locate the tie.
	half := r.Abs().Mul(two).Cmp(b.Abs().Shift(-scale))
	if !roundAway(q, scale, half, mode) {
		return q
	}

	ulp := decimal.New(1, -scale)
	if a.Sign()*b.Sign() < 0 {
		return q.Sub(ulp)
	}
	return q.Add(ulp)
}

// roundAway reports whether a truncated quotient must move one unit away
// from zero. half is the sign of (discarded fraction - one half ulp).
func roundAway(q decimal.Decimal, scale int32, half int, mode RoundingMode) bool {
	switch mode {
	case HalfUp:
		return half >= 0
	case HalfEven:
		if half != 0 {
			return half > 0
		}
		return !q.Shift(scale).Mod(two).IsZero()
	default:
		return false
	}
}

// Round rounds d to scale fractional digits.
func Round(d decimal.Decimal, scale int32, mode RoundingMode) decimal.Decimal {
	switch mode {
	case HalfUp:
		return d.Round(scale)
	case Down:
		return d.Truncate(scale)
	default:
		return d.RoundBank(scale)
	}
}
