package scoring

import "unibridge-points/models"

// Bucket is the weighting group a ledger category contributes to.
type Bucket string

const (
	BucketUnibridge Bucket = "unibridge"
	BucketStaking   Bucket = "staking"
)

// categoryBuckets is the fixed category -> bucket table. Bonuses,
// commissions and manual corrections are weighted with bridge activity;
// only daily staking credits land in the staking bucket.
var categoryBuckets = map[models.PointCategory]Bucket{
	models.CategoryUnibridgeTx:        BucketUnibridge,
	models.CategoryConnectBonus:       BucketUnibridge,
	models.CategoryReferralReferred:   BucketUnibridge,
	models.CategoryReferralCommission: BucketUnibridge,
	models.CategoryManualAdjustment:   BucketUnibridge,
	models.CategoryStakingDaily:       BucketStaking,
}

// BucketOf returns the weighting bucket of category c.
func BucketOf(c models.PointCategory) Bucket {
	if b, ok := categoryBuckets[c]; ok {
		return b
	}
	return BucketUnibridge
}

// Totals is a wallet's ledger folded into the numbers the read side shows.
type Totals struct {
	ByCategory     map[models.PointCategory]int64 `json:"by_category"`
	UnibridgeTotal int64                          `json:"unibridge_total"`
	StakingTotal   int64                          `json:"staking_total"`
	TotalPoints    int64                          `json:"total_points"`
	WeightedScore  int64                          `json:"weighted_score"`
}

// Fold turns per-category sums into bucket totals and a weighted score.
func Fold(byCategory map[models.PointCategory]int64, w models.Weights) Totals {
	t := Totals{ByCategory: make(map[models.PointCategory]int64, len(models.AllCategories))}
	for _, c := range models.AllCategories {
		t.ByCategory[c] = 0
	}
	for c, pts := range byCategory {
		t.ByCategory[c] += pts
		t.TotalPoints += pts
		switch BucketOf(c) {
		case BucketStaking:
			t.StakingTotal += pts
		default:
			t.UnibridgeTotal += pts
		}
	}
	t.WeightedScore = WeightedScore(t.UnibridgeTotal, t.StakingTotal, w)
	return t
}
