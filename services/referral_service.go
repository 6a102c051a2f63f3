package services

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"unibridge-points/logging"
	"unibridge-points/models"
	"unibridge-points/scoring"
	"unibridge-points/utils"
)

// commissionable lists the categories whose credits pay the referrer.
// Commissions themselves never cascade, so there are no chains.
var commissionable = map[models.PointCategory]bool{
	models.CategoryStakingDaily:     true,
	models.CategoryReferralReferred: true,
	models.CategoryUnibridgeTx:      true,
}

// IsCommissionable reports whether credits of category c pay a commission.
func IsCommissionable(c models.PointCategory) bool {
	return commissionable[c]
}

// CommissionKey derives the idempotency key of the commission paid for one
// source credit.
func CommissionKey(sourceKey, sourceWallet string) string {
	return "referral_commission:" + sourceKey + ":" + sourceWallet
}

// SignupBonusKey is the key of the one-time bonus of a referred wallet.
func SignupBonusKey(referred string) string {
	return "referral_bonus:" + referred
}

// ReferralService runs the commission cascade and the signup cascade.
type ReferralService struct {
	DB       *gorm.DB
	Ledger   *LedgerStore
	Profiles *ProfileStore
}

func NewReferralService(db *gorm.DB, ledger *LedgerStore, profiles *ProfileStore) *ReferralService {
	return &ReferralService{DB: db, Ledger: ledger, Profiles: profiles}
}

// OnCredit pays the referrer of source.Wallet its commission on source. It
// returns nil when nothing is owed: a non-commissionable category, no
// referrer, a self-reference or a zero commission.
func (s *ReferralService) OnCredit(ctx context.Context, source models.LedgerEntry, cfg models.ScoringConfig) (*AppendResult, error) {
	if !IsCommissionable(source.Category) || source.Points <= 0 {
		return nil, nil
	}
	referrer, err := s.Profiles.ReferrerOf(ctx, source.Wallet)
	if err != nil {
		return nil, err
	}
	if referrer == "" {
		return nil, nil
	}
	if referrer == source.Wallet {
		logging.Logger.Warn("[REFERRAL] self referral ignored", zap.String("wallet", source.Wallet))
		return nil, nil
	}

	commission, err := scoring.Commission(source.Points, cfg.Referral.CommissionPercent)
	if err != nil {
		return nil, validationf("commission: %v", err)
	}
	if commission <= 0 {
		return nil, nil
	}

	res, err := s.Ledger.Append(ctx, models.LedgerEntry{
		Wallet:         referrer,
		Category:       models.CategoryReferralCommission,
		Points:         commission,
		IdempotencyKey: CommissionKey(source.IdempotencyKey, source.Wallet),
		Metadata: map[string]string{
			"source_wallet":      source.Wallet,
			"source_category":    string(source.Category),
			"source_key":         source.IdempotencyKey,
			"source_points":      strconv.FormatInt(source.Points, 10),
			"commission_percent": strconv.FormatFloat(cfg.Referral.CommissionPercent, 'f', -1, 64),
		},
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// SignupOutcome reports each step of the signup cascade.
type SignupOutcome struct {
	Referrer    string        `json:"referrer"`
	Referred    string        `json:"referred"`
	EdgeCreated bool          `json:"edge_created"`
	Bonus       *AppendResult `json:"bonus,omitempty"`
	Commission  *AppendResult `json:"commission,omitempty"`
}

// RunSignupCascade records the referral edge, the referred wallet's bonus and
// the referrer's commission on it. Every step has its own key, so calling it
// again completes whatever an earlier call left undone. The caller must
// already have checked that referred's profile names referrer.
func (s *ReferralService) RunSignupCascade(ctx context.Context, referrer, referred, codeUsed string, cfg models.ScoringConfig) (SignupOutcome, error) {
	out := SignupOutcome{Referrer: referrer, Referred: referred}
	if referrer == referred {
		return out, validationf("a wallet cannot refer itself")
	}

	edge := models.Referral{
		ID:             uuid.NewString(),
		ReferrerWallet: referrer,
		ReferredWallet: referred,
		CodeUsed:       codeUsed,
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "referred_wallet"}}, DoNothing: true}).
		Create(&edge)
	if res.Error != nil {
		return out, unavailable(res.Error, "create referral")
	}
	out.EdgeCreated = res.RowsAffected == 1
	if out.EdgeCreated {
		logging.Logger.Info("[REFERRAL] referral recorded",
			zap.String("referrer", referrer),
			zap.String("referred", referred))
	}

	if cfg.Referral.SignupBonus <= 0 {
		return out, nil
	}
	bonus, err := s.Ledger.Append(ctx, models.LedgerEntry{
		Wallet:         referred,
		Category:       models.CategoryReferralReferred,
		Points:         cfg.Referral.SignupBonus,
		IdempotencyKey: SignupBonusKey(referred),
		Metadata:       map[string]string{"referrer": referrer},
	})
	if err != nil {
		return out, err
	}
	out.Bonus = &bonus

	commission, err := s.OnCredit(ctx, bonus.Entry, cfg)
	if err != nil {
		return out, err
	}
	out.Commission = commission
	return out, nil
}

// Register is the standalone referral operation. It creates referred's
// profile pointing at referrer, or accepts an existing profile that already
// does, and then runs the signup cascade.
func (s *ReferralService) Register(ctx context.Context, referrerRaw, referredRaw string, cfg models.ScoringConfig) (SignupOutcome, error) {
	referrer, ok := utils.NormalizeWallet(referrerRaw)
	if !ok {
		return SignupOutcome{}, validationf("invalid referrer wallet %q", referrerRaw)
	}
	referred, ok := utils.NormalizeWallet(referredRaw)
	if !ok {
		return SignupOutcome{}, validationf("invalid referred wallet %q", referredRaw)
	}
	if referrer == referred {
		return SignupOutcome{}, validationf("a wallet cannot refer itself")
	}

	if _, _, err := s.Profiles.Ensure(ctx, referrer, nil); err != nil {
		return SignupOutcome{}, err
	}
	profile, _, err := s.Profiles.Ensure(ctx, referred, &referrer)
	if err != nil {
		return SignupOutcome{}, err
	}
	if profile.ReferredBy == nil || *profile.ReferredBy != referrer {
		return SignupOutcome{}, conflictf("wallet %s is already registered without this referrer", referred)
	}
	return s.RunSignupCascade(ctx, referrer, referred, referrer, cfg)
}

// ReferredWallet is one edge as seen from the referrer.
type ReferredWallet struct {
	Wallet    string    `json:"wallet"`
	CreatedAt time.Time `json:"created_at"`
}

// ReferralStats summarizes a referrer's network.
type ReferralStats struct {
	Wallet          string           `json:"wallet"`
	ReferralCode    string           `json:"referral_code"`
	ReferredBy      *string          `json:"referred_by,omitempty"`
	ReferredCount   int              `json:"referred_count"`
	ReferredWallets []ReferredWallet `json:"referred_wallets"`
	CommissionTotal int64            `json:"commission_total"`
}

// Stats lists the wallets referred by wallet and its commission earnings.
func (s *ReferralService) Stats(ctx context.Context, walletRaw string) (ReferralStats, error) {
	wallet, ok := utils.NormalizeWallet(walletRaw)
	if !ok {
		return ReferralStats{}, validationf("invalid wallet %q", walletRaw)
	}
	stats := ReferralStats{Wallet: wallet, ReferralCode: models.ReferralCodeFor(wallet)}

	referredBy, err := s.Profiles.ReferrerOf(ctx, wallet)
	if err != nil {
		return stats, err
	}
	if referredBy != "" {
		stats.ReferredBy = &referredBy
	}

	referred, err := s.ReferredWallets(ctx, wallet)
	if err != nil {
		return stats, err
	}
	stats.ReferredWallets = referred
	stats.ReferredCount = len(referred)

	sums, err := s.Ledger.SumByCategory(ctx, wallet)
	if err != nil {
		return stats, err
	}
	stats.CommissionTotal = sums[models.CategoryReferralCommission]
	return stats, nil
}

// ReferredWallets lists the edges leaving referrer, oldest first.
func (s *ReferralService) ReferredWallets(ctx context.Context, referrer string) ([]ReferredWallet, error) {
	var edges []models.Referral
	err := s.DB.WithContext(ctx).
		Where("referrer_wallet = ?", referrer).
		Order("created_at ASC").
		Find(&edges).Error
	if err != nil {
		return nil, unavailable(err, "list referrals")
	}
	out := make([]ReferredWallet, 0, len(edges))
	for _, e := range edges {
		out = append(out, ReferredWallet{Wallet: e.ReferredWallet, CreatedAt: e.CreatedAt})
	}
	return out, nil
}
