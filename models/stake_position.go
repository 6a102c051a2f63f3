package models

import "time"

// StakePosition mirrors one wallet's balance in one lock-term pool as
// reported by the balance indexer. The points engine never edits it.
type StakePosition struct {
	Wallet       string    `gorm:"primaryKey;type:varchar(42)" json:"wallet"`
	PoolID       string    `gorm:"primaryKey;type:varchar(16)" json:"pool_id"`
	StakedAmount string    `gorm:"type:varchar(78);not null" json:"staked_amount"` // decimal string
	AsOf         time.Time `gorm:"not null" json:"as_of"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// StakingSnapshot is the audit row written for every position credited by a
// daily distribution run.
type StakingSnapshot struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SnapshotDate  string    `gorm:"type:char(10);not null;uniqueIndex:idx_snapshot_day_wallet_pool,priority:1" json:"snapshot_date"`
	Wallet        string    `gorm:"type:varchar(42);not null;uniqueIndex:idx_snapshot_day_wallet_pool,priority:2" json:"wallet"`
	PoolID        string    `gorm:"type:varchar(16);not null;uniqueIndex:idx_snapshot_day_wallet_pool,priority:3" json:"pool_id"`
	StakedAmount  string    `gorm:"type:varchar(78);not null" json:"staked_amount"`
	RawPoints     int64     `gorm:"not null" json:"raw_points"`
	PointsAwarded int64     `gorm:"not null" json:"points_awarded"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (StakingSnapshot) TableName() string { return "staking_daily_snapshots" }
