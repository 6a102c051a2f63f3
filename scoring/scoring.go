// Package scoring holds the pure point formulas. Nothing here touches
// storage, clocks or configuration sources; every parameter arrives in the
// ScoringConfig snapshot the caller already holds.
package scoring

import (
	"math"
	"math/big"

	"github.com/cockroachdb/apd/v3"
	"github.com/pkg/errors"

	"unibridge-points/models"
)

// DefaultPoolMultiplier applies to pool ids missing from the config.
const DefaultPoolMultiplier = 1.0

// UnibridgePoints = base_points + floor(usdValue * volume_multiplier).
// Callers only invoke it for transactions the oracle reported as successful.
func UnibridgePoints(usdValue *apd.Decimal, cfg models.UnibridgeConfig) (int64, error) {
	if usdValue == nil {
		usdValue = apd.New(0, 0)
	}
	if usdValue.Negative && !usdValue.IsZero() {
		return 0, errors.New("usd value must not be negative")
	}
	mult, err := decimalFromFloat(cfg.VolumeMultiplier)
	if err != nil {
		return 0, err
	}
	volume, err := floorProduct(usdValue, mult)
	if err != nil {
		return 0, err
	}
	return cfg.BasePoints + volume, nil
}

// PoolMultiplier looks up the lock-term multiplier for poolID.
func PoolMultiplier(cfg models.StakingConfig, poolID string) float64 {
	if m, ok := cfg.PoolMultiplier[poolID]; ok {
		return m
	}
	return DefaultPoolMultiplier
}

// StakingRawPoints = floor(sqrt(max(staked, 0)) * base_multiplier * pool_multiplier).
// The square root keeps large holders from dominating: quadrupling a stake
// only doubles its points.
func StakingRawPoints(stakedAmount float64, cfg models.StakingConfig, poolID string) int64 {
	if math.IsNaN(stakedAmount) || stakedAmount < 0 {
		stakedAmount = 0
	}
	pts := math.Floor(math.Sqrt(stakedAmount) * cfg.BaseMultiplier * PoolMultiplier(cfg, poolID))
	if math.IsInf(pts, 0) || pts >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(pts)
}

// ApplyDailyCap scales a wallet's per-position raw points so that their sum
// does not exceed dailyCap. Each position receives floor(raw * cap / total),
// which keeps the relative share between pools and loses at most one point
// per position to rounding. The total is summed in big.Int so clamped raw
// values cannot wrap it.
func ApplyDailyCap(raw []int64, dailyCap int64) []int64 {
	out := make([]int64, len(raw))
	total := new(big.Int)
	for _, r := range raw {
		if r > 0 {
			total.Add(total, big.NewInt(r))
		}
	}
	capBig := big.NewInt(max(dailyCap, 0))
	if total.Cmp(capBig) <= 0 {
		for i, r := range raw {
			out[i] = max(r, 0)
		}
		return out
	}

	for i, r := range raw {
		if r <= 0 {
			continue
		}
		scaled := new(big.Int).Mul(big.NewInt(r), capBig)
		scaled.Quo(scaled, total)
		out[i] = scaled.Int64()
	}
	return out
}

// WeightedScore = floor(unibridgeTotal * w.unibridge + stakingTotal * w.staking).
// The sum is taken in decimal, so totals beyond 2^53 stay exact; a result
// outside int64 saturates.
func WeightedScore(unibridgeTotal, stakingTotal int64, w models.Weights) int64 {
	score, err := weightedDecimal(unibridgeTotal, stakingTotal, w)
	if err != nil {
		// only non-finite weights get here, and config validation rejects them
		return int64(math.Floor(float64(unibridgeTotal)*w.Unibridge + float64(stakingTotal)*w.Staking))
	}
	return score
}

func weightedDecimal(unibridgeTotal, stakingTotal int64, w models.Weights) (int64, error) {
	wu, err := decimalFromFloat(w.Unibridge)
	if err != nil {
		return 0, err
	}
	ws, err := decimalFromFloat(w.Staking)
	if err != nil {
		return 0, err
	}
	u, st, sum := new(apd.Decimal), new(apd.Decimal), new(apd.Decimal)
	if _, err := decimalCtx.Mul(u, apd.New(unibridgeTotal, 0), wu); err != nil {
		return 0, errors.Wrap(err, "unibridge bucket")
	}
	if _, err := decimalCtx.Mul(st, apd.New(stakingTotal, 0), ws); err != nil {
		return 0, errors.Wrap(err, "staking bucket")
	}
	if _, err := decimalCtx.Add(sum, u, st); err != nil {
		return 0, errors.Wrap(err, "weighted sum")
	}
	floored := new(apd.Decimal)
	if _, err := decimalCtx.Floor(floored, sum); err != nil {
		return 0, errors.Wrap(err, "floor")
	}
	n, err := floored.Int64()
	if err != nil {
		if floored.Negative {
			return math.MinInt64, nil
		}
		return math.MaxInt64, nil
	}
	return n, nil
}

// Commission = floor(points * percent / 100). Non-positive bases earn nothing.
func Commission(points int64, percent float64) (int64, error) {
	if points <= 0 || percent <= 0 {
		return 0, nil
	}
	pct, err := decimalFromFloat(percent)
	if err != nil {
		return 0, err
	}
	ratio := new(apd.Decimal)
	if _, err := decimalCtx.Quo(ratio, pct, apd.New(100, 0)); err != nil {
		return 0, errors.Wrap(err, "commission ratio")
	}
	return floorProduct(apd.New(points, 0), ratio)
}
