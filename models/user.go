package models

import "time"

// UserProfile is the local record of a wallet that has interacted with the
// points program. ReferredBy is written once, when the row is created.
type UserProfile struct {
	Wallet       string     `gorm:"primaryKey;type:varchar(42)" json:"wallet"`
	ReferredBy   *string    `gorm:"type:varchar(42);index" json:"referred_by,omitempty"`
	ReferralCode string     `gorm:"type:varchar(16);index;not null" json:"referral_code"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// ReferralCodeFor derives the shareable code of a normalized wallet: the
// first eight hex characters after the 0x prefix.
func ReferralCodeFor(wallet string) string {
	if len(wallet) < 10 {
		return wallet
	}
	return wallet[2:10]
}
