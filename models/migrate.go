package models

import "gorm.io/gorm"

// AutoMigrate creates or updates every table owned by the points service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&LedgerEntry{},
		&UserProfile{},
		&Referral{},
		&StakePosition{},
		&StakingSnapshot{},
		&UnibridgeAction{},
		&PointsConfigVersion{},
	)
}
