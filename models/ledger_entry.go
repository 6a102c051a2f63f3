package models

import "time"

// PointCategory classifies why a wallet was credited.
type PointCategory string

const (
	CategoryUnibridgeTx        PointCategory = "UNIBRIDGE_TX"
	CategoryStakingDaily       PointCategory = "STAKING_DAILY"
	CategoryConnectBonus       PointCategory = "CONNECT_BONUS"
	CategoryReferralReferred   PointCategory = "REFERRAL_BONUS_REFERRED"
	CategoryReferralCommission PointCategory = "REFERRAL_COMMISSION"
	CategoryManualAdjustment   PointCategory = "MANUAL_ADJUSTMENT"
)

// AllCategories lists every category in a fixed display order.
var AllCategories = []PointCategory{
	CategoryUnibridgeTx,
	CategoryStakingDaily,
	CategoryConnectBonus,
	CategoryReferralReferred,
	CategoryReferralCommission,
	CategoryManualAdjustment,
}

// Valid reports whether c is one of the known categories.
func (c PointCategory) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// AllowsNegative is true only for administrative corrections.
func (c PointCategory) AllowsNegative() bool {
	return c == CategoryManualAdjustment
}

// LedgerEntry is one immutable credit. Rows are only ever inserted; the
// (wallet, idempotency_key) unique index is what makes retries safe.
type LedgerEntry struct {
	ID             uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Wallet         string            `gorm:"type:varchar(42);not null;uniqueIndex:idx_ledger_wallet_key,priority:1;index:idx_ledger_wallet_created,priority:1" json:"wallet"`
	Category       PointCategory     `gorm:"type:varchar(32);not null;index" json:"category"`
	Points         int64             `gorm:"not null" json:"points"`
	IdempotencyKey string            `gorm:"type:varchar(255);not null;uniqueIndex:idx_ledger_wallet_key,priority:2" json:"idempotency_key"`
	USDValue       *string           `gorm:"type:varchar(64)" json:"usd_value,omitempty"` // decimal string, UNIBRIDGE_TX only
	Metadata       map[string]string `gorm:"serializer:json;type:text" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"autoCreateTime;not null;index:idx_ledger_wallet_created,priority:2" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "points_ledger" }
