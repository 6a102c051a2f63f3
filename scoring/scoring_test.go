package scoring

import (
	"math"
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unibridge-points/models"
)

func mustAmount(t *testing.T, s string) float64 {
	t.Helper()
	d, err := ParseAmount(s)
	require.NoError(t, err)
	return AmountFloat(d)
}

func TestUnibridgePoints_BridgeScenario(t *testing.T) {
	usd, err := ParseAmount("500")
	require.NoError(t, err)

	pts, err := UnibridgePoints(usd, models.UnibridgeConfig{BasePoints: 30, VolumeMultiplier: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1030), pts)
}

func TestUnibridgePoints_FloorsExactDecimal(t *testing.T) {
	cases := []struct {
		usd  string
		mult float64
		want int64
	}{
		{"0.29", 100, 30 + 29},
		{"1.1", 100, 30 + 110},
		{"10.99", 2, 30 + 21},
		{"0", 2, 30},
		{"", 2, 30},
	}
	for _, tc := range cases {
		usd, err := ParseAmount(tc.usd)
		require.NoError(t, err)
		got, err := UnibridgePoints(usd, models.UnibridgeConfig{BasePoints: 30, VolumeMultiplier: tc.mult})
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "usd=%s mult=%v", tc.usd, tc.mult)
	}
}

func TestParseAmount_RejectsBadInput(t *testing.T) {
	for _, raw := range []string{"abc", "-1", "NaN", "Infinity"} {
		_, err := ParseAmount(raw)
		assert.Error(t, err, raw)
	}
}

func TestStakingRawPoints_NinetyDayScenario(t *testing.T) {
	cfg := models.StakingConfig{BaseMultiplier: 6, PoolMultiplier: map[string]float64{"90": 1.3}}
	assert.Equal(t, int64(780), StakingRawPoints(mustAmount(t, "10000"), cfg, "90"))
}

func TestStakingRawPoints_UnknownPoolAndNegative(t *testing.T) {
	cfg := models.StakingConfig{BaseMultiplier: 6, PoolMultiplier: map[string]float64{"90": 1.3}}
	assert.Equal(t, int64(600), StakingRawPoints(10000, cfg, "45"))
	assert.Equal(t, int64(0), StakingRawPoints(-50, cfg, "90"))
}

func TestStakingRawPoints_AntiWhale(t *testing.T) {
	cfg := models.DefaultScoringConfig().Staking
	for _, x := range []float64{1, 7, 100, 12345.678, 1e9} {
		for pool := range cfg.PoolMultiplier {
			single := StakingRawPoints(x, cfg, pool)
			quadruple := StakingRawPoints(4*x, cfg, pool)
			assert.Less(t, quadruple, 2*single+2, "x=%v pool=%s", x, pool)
			assert.Less(t, StakingRawPoints(2*x, cfg, pool), 2*single+1, "doubling x=%v pool=%s", x, pool)
		}
	}
}

func TestApplyDailyCap(t *testing.T) {
	t.Run("under cap untouched", func(t *testing.T) {
		assert.Equal(t, []int64{780, 100}, ApplyDailyCap([]int64{780, 100}, 20000))
	})

	t.Run("scaled proportionally", func(t *testing.T) {
		got := ApplyDailyCap([]int64{30000, 10000}, 20000)
		assert.Equal(t, []int64{15000, 5000}, got)
	})

	t.Run("sum within rounding tolerance", func(t *testing.T) {
		raw := []int64{12345, 6789, 10111, 3}
		const dailyCap = 20000
		got := ApplyDailyCap(raw, dailyCap)
		var sum int64
		for _, g := range got {
			sum += g
		}
		assert.LessOrEqual(t, sum, int64(dailyCap))
		assert.GreaterOrEqual(t, sum, int64(dailyCap-(len(raw)-1)))
	})

	t.Run("zero cap", func(t *testing.T) {
		assert.Equal(t, []int64{0, 0}, ApplyDailyCap([]int64{5, 6}, 0))
	})

	t.Run("huge raw values still capped", func(t *testing.T) {
		assert.Equal(t, []int64{10000, 10000}, ApplyDailyCap([]int64{5e18, 5e18}, 20000))
		got := ApplyDailyCap([]int64{math.MaxInt64, math.MaxInt64, 1}, 20000)
		var sum int64
		for _, g := range got {
			sum += g
		}
		assert.LessOrEqual(t, sum, int64(20000))
		assert.GreaterOrEqual(t, sum, int64(20000-2))
	})
}

func TestParseStake(t *testing.T) {
	d, err := ParseStake("1e30")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000000000000", FormatAmount(d))

	_, err = ParseStake("1e40")
	assert.Error(t, err)
	_, err = ParseStake("-1")
	assert.Error(t, err)

	// the largest accepted stake stays well inside int64 for the default pools
	cfg := models.DefaultScoringConfig().Staking
	for pool := range cfg.PoolMultiplier {
		assert.Less(t, StakingRawPoints(AmountFloat(MaxStakedAmount), cfg, pool), int64(math.MaxInt64/100))
	}
}

func TestWeightedScore_Deterministic(t *testing.T) {
	w := models.Weights{Unibridge: 0.6, Staking: 0.4}
	first := WeightedScore(1030, 780, w)
	assert.Equal(t, first, WeightedScore(1030, 780, w))
	assert.Equal(t, int64(930), first) // floor(618 + 312)
}

func TestWeightedScore_ExactBeyondFloatPrecision(t *testing.T) {
	w := models.Weights{Unibridge: 1, Staking: 0}
	// 2^53 + 1 is the first integer float64 cannot hold
	assert.Equal(t, int64(1<<53+1), WeightedScore(1<<53+1, 0, w))

	half := models.Weights{Unibridge: 0.5, Staking: 0.5}
	assert.Equal(t, int64(1<<60+1), WeightedScore(1<<60+1, 1<<60+1, half))
	assert.Equal(t, int64(-3), WeightedScore(-5, 0, half)) // floor(-2.5)
	assert.Equal(t, int64(math.MaxInt64), WeightedScore(math.MaxInt64, math.MaxInt64, models.Weights{Unibridge: 1, Staking: 1}))
}

func TestCommission(t *testing.T) {
	c, err := Commission(200, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(20), c)

	c, err = Commission(9, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c)

	c, err = Commission(-100, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c)

	c, err = Commission(333, 12.5)
	require.NoError(t, err)
	assert.Equal(t, int64(41), c)
}

func TestFold_BucketMapping(t *testing.T) {
	w := models.Weights{Unibridge: 0.6, Staking: 0.4}
	totals := Fold(map[models.PointCategory]int64{
		models.CategoryUnibridgeTx:        1000,
		models.CategoryConnectBonus:       50,
		models.CategoryReferralReferred:   200,
		models.CategoryReferralCommission: 20,
		models.CategoryManualAdjustment:   -70,
		models.CategoryStakingDaily:       500,
	}, w)

	assert.Equal(t, int64(1200), totals.UnibridgeTotal)
	assert.Equal(t, int64(500), totals.StakingTotal)
	assert.Equal(t, int64(1700), totals.TotalPoints)
	assert.Equal(t, int64(920), totals.WeightedScore)
	assert.Len(t, totals.ByCategory, len(models.AllCategories))

	for _, c := range models.AllCategories {
		b := BucketOf(c)
		if c == models.CategoryStakingDaily {
			assert.Equal(t, BucketStaking, b)
		} else {
			assert.Equal(t, BucketUnibridge, b, string(c))
		}
	}
}

func TestClipAmount(t *testing.T) {
	d := func(s string) *apd.Decimal {
		v, err := ParseAmount(s)
		require.NoError(t, err)
		return v
	}

	got, ok, err := ClipAmount(d("300"), d("800"), d("1000"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "200", FormatAmount(got))

	got, ok, err = ClipAmount(d("50.5"), d("0"), d("1000"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "50.5", FormatAmount(got))

	_, ok, err = ClipAmount(d("10"), d("1000"), d("1000"))
	require.NoError(t, err)
	assert.False(t, ok)
}
