package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"unibridge-points/models"
	"unibridge-points/utils"
)

// ProfileStore owns user_profiles. referred_by is only ever written by the
// insert that creates a row.
type ProfileStore struct {
	DB *gorm.DB
}

func NewProfileStore(db *gorm.DB) *ProfileStore {
	return &ProfileStore{DB: db}
}

// Ensure creates the profile of wallet if it does not exist yet and returns
// the stored row. referredBy only takes effect on creation.
func (s *ProfileStore) Ensure(ctx context.Context, wallet string, referredBy *string) (models.UserProfile, bool, error) {
	profile := models.UserProfile{
		Wallet:       wallet,
		ReferredBy:   referredBy,
		ReferralCode: models.ReferralCodeFor(wallet),
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "wallet"}}, DoNothing: true}).
		Create(&profile)
	if res.Error != nil {
		return models.UserProfile{}, false, unavailable(res.Error, "create profile")
	}
	if res.RowsAffected == 1 {
		return profile, true, nil
	}
	existing, err := s.Get(ctx, wallet)
	return existing, false, err
}

// Get loads one profile.
func (s *ProfileStore) Get(ctx context.Context, wallet string) (models.UserProfile, error) {
	var profile models.UserProfile
	err := s.DB.WithContext(ctx).Where("wallet = ?", wallet).First(&profile).Error
	if err == gorm.ErrRecordNotFound {
		return profile, notFoundf("profile %s", wallet)
	}
	if err != nil {
		return profile, unavailable(err, "load profile")
	}
	return profile, nil
}

// ReferrerOf returns the stored referrer of wallet, or "" when there is no
// profile or no referrer.
func (s *ProfileStore) ReferrerOf(ctx context.Context, wallet string) (string, error) {
	var refs []*string
	err := s.DB.WithContext(ctx).
		Model(&models.UserProfile{}).
		Where("wallet = ?", wallet).
		Limit(1).
		Pluck("referred_by", &refs).Error
	if err != nil {
		return "", unavailable(err, "load referrer")
	}
	if len(refs) == 0 || refs[0] == nil {
		return "", nil
	}
	return *refs[0], nil
}

func (s *ProfileStore) TouchLogin(ctx context.Context, wallet string, at time.Time) error {
	err := s.DB.WithContext(ctx).
		Model(&models.UserProfile{}).
		Where("wallet = ?", wallet).
		Update("last_login_at", at).Error
	return unavailable(err, "update last login")
}

// List returns the most recently created profiles.
func (s *ProfileStore) List(ctx context.Context, limit int) ([]models.UserProfile, error) {
	q := s.DB.WithContext(ctx).Order("created_at DESC").Order("wallet ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var profiles []models.UserProfile
	if err := q.Find(&profiles).Error; err != nil {
		return nil, unavailable(err, "list profiles")
	}
	return profiles, nil
}

// ResolveReferrerCode accepts either a wallet address or a known referral
// code and returns the referrer's normalized wallet. Codes are address
// prefixes and can collide; the oldest profile wins.
func (s *ProfileStore) ResolveReferrerCode(ctx context.Context, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", validationf("referral code is empty")
	}
	if wallet, ok := utils.NormalizeWallet(code); ok {
		return wallet, nil
	}
	var profile models.UserProfile
	err := s.DB.WithContext(ctx).
		Where("referral_code = ?", strings.ToLower(code)).
		Order("created_at ASC").
		First(&profile).Error
	if err == gorm.ErrRecordNotFound {
		return "", validationf("unknown referral code %q", code)
	}
	if err != nil {
		return "", unavailable(err, "resolve referral code")
	}
	return profile.Wallet, nil
}
