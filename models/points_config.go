package models

import "time"

// ScoringConfig is the full set of scoring parameters. It is always read
// and written as a whole document.
type ScoringConfig struct {
	Version      uint64          `json:"version" yaml:"-"`
	Weights      Weights         `json:"weights" yaml:"weights"`
	Unibridge    UnibridgeConfig `json:"unibridge" yaml:"unibridge"`
	Staking      StakingConfig   `json:"staking" yaml:"staking"`
	ConnectBonus int64           `json:"connect_bonus" yaml:"connect_bonus" validate:"gte=0"`
	Referral     ReferralConfig  `json:"referral" yaml:"referral"`
}

// Weights combine the two buckets into the ranking score. They sum to 1.0
// by convention only.
type Weights struct {
	Unibridge float64 `json:"unibridge" yaml:"unibridge" validate:"gte=0"`
	Staking   float64 `json:"staking" yaml:"staking" validate:"gte=0"`
}

type UnibridgeConfig struct {
	BasePoints         int64   `json:"base_points" yaml:"base_points" validate:"gte=0"`
	VolumeMultiplier   float64 `json:"volume_multiplier" yaml:"volume_multiplier" validate:"gte=0"`
	MaxTxPerDay        int64   `json:"max_tx_per_day" yaml:"max_tx_per_day" validate:"gte=0"`                 // 0 = unlimited
	MaxUSDVolumePerDay float64 `json:"max_usd_volume_per_day" yaml:"max_usd_volume_per_day" validate:"gte=0"` // 0 = unlimited
}

type StakingConfig struct {
	BaseMultiplier float64            `json:"base_multiplier" yaml:"base_multiplier" validate:"gte=0"`
	DailyCap       int64              `json:"daily_cap" yaml:"daily_cap" validate:"gte=0"`
	PoolMultiplier map[string]float64 `json:"pool_multiplier" yaml:"pool_multiplier" validate:"dive,gte=0"`
}

type ReferralConfig struct {
	SignupBonus       int64   `json:"signup_bonus" yaml:"signup_bonus" validate:"gte=0"`
	CommissionPercent float64 `json:"commission_percent" yaml:"commission_percent" validate:"gte=0,lte=100"`
}

// DefaultScoringConfig is served while no version has been persisted.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Version: 0,
		Weights: Weights{Unibridge: 0.60, Staking: 0.40},
		Unibridge: UnibridgeConfig{
			BasePoints:       30,
			VolumeMultiplier: 2,
		},
		Staking: StakingConfig{
			BaseMultiplier: 6,
			DailyCap:       20000,
			PoolMultiplier: map[string]float64{
				"30":  1.0,
				"60":  1.15,
				"90":  1.3,
				"180": 1.6,
				"360": 2.0,
			},
		},
		ConnectBonus: 50,
		Referral: ReferralConfig{
			SignupBonus:       200,
			CommissionPercent: 10,
		},
	}
}

// Clone returns a deep copy so callers can never mutate a shared snapshot.
func (c ScoringConfig) Clone() ScoringConfig {
	out := c
	if c.Staking.PoolMultiplier != nil {
		out.Staking.PoolMultiplier = make(map[string]float64, len(c.Staking.PoolMultiplier))
		for k, v := range c.Staking.PoolMultiplier {
			out.Staking.PoolMultiplier[k] = v
		}
	}
	return out
}

// PointsConfigVersion stores one committed ScoringConfig document. The
// autoincrement id doubles as the version number.
type PointsConfigVersion struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"version"`
	Document  string    `gorm:"type:text;not null" json:"document"`
	UpdatedBy string    `gorm:"type:varchar(64);not null" json:"updated_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
