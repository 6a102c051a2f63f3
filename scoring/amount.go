package scoring

import (
	"math"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/pkg/errors"
)

// decimalCtx is wide enough for any token amount times any multiplier we
// accept; rounding never happens before the explicit Floor.
var decimalCtx = apd.BaseContext.WithPrecision(60)

// ParseAmount parses a non-negative, finite decimal string such as a usd
// value or a staked balance.
func ParseAmount(raw string) (*apd.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apd.New(0, 0), nil
	}
	d, _, err := apd.NewFromString(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid amount %q", raw)
	}
	if d.Form != apd.Finite {
		return nil, errors.Errorf("amount %q is not finite", raw)
	}
	if d.Negative && !d.IsZero() {
		return nil, errors.Errorf("amount %q is negative", raw)
	}
	return d, nil
}

// MaxStakedAmount bounds a single position. sqrt(1e30) = 1e15, which leaves
// room for any realistic base and pool multiplier before int64 runs out.
var MaxStakedAmount = apd.New(1, 30)

// ParseStake parses a staked amount and rejects values above MaxStakedAmount.
func ParseStake(raw string) (*apd.Decimal, error) {
	d, err := ParseAmount(raw)
	if err != nil {
		return nil, err
	}
	if d.Cmp(MaxStakedAmount) > 0 {
		return nil, errors.Errorf("amount %q exceeds the maximum stake", raw)
	}
	return d, nil
}

// AmountFloat converts a parsed amount for the float-based staking curve.
func AmountFloat(d *apd.Decimal) float64 {
	if d == nil {
		return 0
	}
	f, err := d.Float64()
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return f
}

func decimalFromFloat(f float64) (*apd.Decimal, error) {
	d := new(apd.Decimal)
	if _, err := d.SetFloat64(f); err != nil {
		return nil, errors.Wrapf(err, "invalid multiplier %v", f)
	}
	return d, nil
}

// floorProduct returns floor(a * b) as an int64 using exact decimal math.
func floorProduct(a, b *apd.Decimal) (int64, error) {
	prod := new(apd.Decimal)
	if _, err := decimalCtx.Mul(prod, a, b); err != nil {
		return 0, errors.Wrap(err, "multiply")
	}
	floored := new(apd.Decimal)
	if _, err := decimalCtx.Floor(floored, prod); err != nil {
		return 0, errors.Wrap(err, "floor")
	}
	n, err := floored.Int64()
	if err != nil {
		return 0, errors.Wrap(err, "points overflow")
	}
	return n, nil
}

// AddAmount sets dst = dst + d.
func AddAmount(dst, d *apd.Decimal) error {
	_, err := decimalCtx.Add(dst, dst, d)
	return errors.Wrap(err, "add amount")
}

// ClipAmount returns min(d, limit - used) and whether anything remains.
// A result of false means the allowance is exhausted.
func ClipAmount(d, used, limit *apd.Decimal) (*apd.Decimal, bool, error) {
	remaining := new(apd.Decimal)
	if _, err := decimalCtx.Sub(remaining, limit, used); err != nil {
		return nil, false, errors.Wrap(err, "remaining allowance")
	}
	if remaining.Sign() <= 0 {
		return apd.New(0, 0), false, nil
	}
	if d.Cmp(remaining) > 0 {
		return remaining, true, nil
	}
	return d, true, nil
}

// AmountFromFloat converts a configured float limit into a decimal.
func AmountFromFloat(f float64) (*apd.Decimal, error) {
	return decimalFromFloat(f)
}

// FormatAmount renders d as a plain decimal string without exponent.
func FormatAmount(d *apd.Decimal) string {
	if d == nil {
		return "0"
	}
	return d.Text('f')
}
