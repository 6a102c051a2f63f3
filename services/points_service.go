package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"unibridge-points/logging"
	"unibridge-points/models"
	"unibridge-points/utils"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

// ConnectBonusKey is the key of a wallet's one-time connect bonus.
func ConnectBonusKey(wallet string) string {
	return "connect_bonus:" + wallet
}

// PointsService handles wallet-facing events: connect, profile creation and
// administrative adjustments.
type PointsService struct {
	Ledger    *LedgerStore
	Profiles  *ProfileStore
	Referrals *ReferralService
	Config    *ConfigProvider
}

func NewPointsService(ledger *LedgerStore, profiles *ProfileStore, referrals *ReferralService, cfg *ConfigProvider) *PointsService {
	return &PointsService{Ledger: ledger, Profiles: profiles, Referrals: referrals, Config: cfg}
}

// ProfileOutcome is what TouchProfile did for a wallet.
type ProfileOutcome struct {
	Profile        models.UserProfile `json:"profile"`
	Created        bool               `json:"created"`
	ReferralIgnore string             `json:"referral_ignored,omitempty"`
	Signup         *SignupOutcome     `json:"signup,omitempty"`
}

// TouchProfile creates wallet's profile on first sight, attaching the
// referrer named by referrerCode when the code is valid and not the wallet
// itself. When the stored profile has a referrer the signup cascade runs,
// which is a no-op once every step has been recorded.
func (s *PointsService) TouchProfile(ctx context.Context, wallet, referrerCode string, cfg models.ScoringConfig) (ProfileOutcome, error) {
	var out ProfileOutcome

	var referrer *string
	if code := strings.TrimSpace(referrerCode); code != "" {
		resolved, err := s.Profiles.ResolveReferrerCode(ctx, code)
		switch {
		case err == nil && resolved == wallet:
			out.ReferralIgnore = "self_referral"
		case err == nil:
			referrer = &resolved
		case isValidation(err):
			out.ReferralIgnore = "invalid_code"
		default:
			return out, err
		}
	}

	profile, created, err := s.Profiles.Ensure(ctx, wallet, referrer)
	if err != nil {
		return out, err
	}
	out.Profile = profile
	out.Created = created
	if referrer != nil && created {
		if _, _, err := s.Profiles.Ensure(ctx, *referrer, nil); err != nil {
			return out, err
		}
	}
	if referrer != nil && !created && (profile.ReferredBy == nil || *profile.ReferredBy != *referrer) {
		out.ReferralIgnore = "already_registered"
	}
	if out.ReferralIgnore != "" {
		logging.Logger.Info("[REFERRAL] referral code ignored",
			zap.String("wallet", wallet),
			zap.String("code", referrerCode),
			zap.String("reason", out.ReferralIgnore))
	}

	if profile.ReferredBy != nil && *profile.ReferredBy != wallet {
		signup, err := s.Referrals.RunSignupCascade(ctx, *profile.ReferredBy, wallet, strings.TrimSpace(referrerCode), cfg)
		if err != nil {
			return out, err
		}
		out.Signup = &signup
	}
	return out, nil
}

// ConnectResult is returned by Connect.
type ConnectResult struct {
	ProfileOutcome
	ConnectBonus *AppendResult `json:"connect_bonus,omitempty"`
	ConfigVer    uint64        `json:"config_version"`
}

// Connect handles a wallet connecting: profile, referral and the one-time
// connect bonus, all under one config snapshot.
func (s *PointsService) Connect(ctx context.Context, walletRaw, referrerCode string) (ConnectResult, error) {
	wallet, ok := utils.NormalizeWallet(walletRaw)
	if !ok {
		return ConnectResult{}, validationf("invalid wallet %q", walletRaw)
	}
	cfg, err := s.Config.Current(ctx)
	if err != nil {
		return ConnectResult{}, err
	}

	touched, err := s.TouchProfile(ctx, wallet, referrerCode, cfg)
	if err != nil {
		return ConnectResult{}, err
	}
	result := ConnectResult{ProfileOutcome: touched, ConfigVer: cfg.Version}

	if err := s.Profiles.TouchLogin(ctx, wallet, time.Now().UTC()); err != nil {
		return result, err
	}

	if cfg.ConnectBonus > 0 {
		bonus, err := s.Ledger.Append(ctx, models.LedgerEntry{
			Wallet:         wallet,
			Category:       models.CategoryConnectBonus,
			Points:         cfg.ConnectBonus,
			IdempotencyKey: ConnectBonusKey(wallet),
		})
		if err != nil {
			return result, err
		}
		result.ConnectBonus = &bonus
	}
	return result, nil
}

// ManualAdjustment credits (or debits) target by amount. Each call gets a
// fresh nonce, so adjustments are never deduplicated.
func (s *PointsService) ManualAdjustment(ctx context.Context, targetRaw string, amount int64, reason, actor string) (AppendResult, error) {
	target, ok := utils.NormalizeWallet(targetRaw)
	if !ok {
		return AppendResult{}, validationf("invalid wallet %q", targetRaw)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return AppendResult{}, validationf("reason is required")
	}
	if amount == 0 {
		return AppendResult{}, validationf("amount must not be zero")
	}
	if actor == "" {
		return AppendResult{}, validationf("actor is required")
	}
	if _, _, err := s.Profiles.Ensure(ctx, target, nil); err != nil {
		return AppendResult{}, err
	}

	tag := slug.Make(reason)
	if len(tag) > 64 {
		tag = tag[:64]
	}
	res, err := s.Ledger.Append(ctx, models.LedgerEntry{
		Wallet:         target,
		Category:       models.CategoryManualAdjustment,
		Points:         amount,
		IdempotencyKey: "manual:" + tag + ":" + uuid.NewString(),
		Metadata: map[string]string{
			"adjusted_by": actor,
			"reason":      reason,
		},
	})
	if err != nil {
		return res, err
	}
	logging.Logger.Info("[ADMIN] manual adjustment",
		zap.String("wallet", target),
		zap.Int64("points", amount),
		zap.String("actor", actor))
	return res, nil
}

// History returns wallet's newest ledger entries.
func (s *PointsService) History(ctx context.Context, walletRaw string, limit int) ([]models.LedgerEntry, error) {
	wallet, ok := utils.NormalizeWallet(walletRaw)
	if !ok {
		return nil, validationf("invalid wallet %q", walletRaw)
	}
	return s.Ledger.ListRecent(ctx, wallet, ClampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit))
}

// ClampLimit applies a default to non-positive limits and caps the rest.
func ClampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
