package models

import "time"

// Referral is the directed edge referrer -> referred. A wallet can be
// referred at most once, enforced by the unique index on ReferredWallet.
type Referral struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ReferrerWallet string    `gorm:"type:varchar(42);index;not null" json:"referrer_wallet"`
	ReferredWallet string    `gorm:"type:varchar(42);uniqueIndex;not null" json:"referred_wallet"`
	CodeUsed       string    `gorm:"type:varchar(64)" json:"code_used,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}
