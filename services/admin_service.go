package services

import (
	"context"

	"unibridge-points/models"
	"unibridge-points/utils"
)

const DefaultUserListLimit = 100

// AdminService backs the read-only admin views.
type AdminService struct {
	Ledger      *LedgerStore
	Profiles    *ProfileStore
	Referrals   *ReferralService
	Leaderboard *LeaderboardService
}

func NewAdminService(ledger *LedgerStore, profiles *ProfileStore, referrals *ReferralService, leaderboard *LeaderboardService) *AdminService {
	return &AdminService{Ledger: ledger, Profiles: profiles, Referrals: referrals, Leaderboard: leaderboard}
}

// UserRow is a profile with its all-category total.
type UserRow struct {
	models.UserProfile
	TotalPoints int64 `json:"total_points"`
}

// ListUsers returns the newest profiles.
func (s *AdminService) ListUsers(ctx context.Context, limit int) ([]UserRow, error) {
	profiles, err := s.Profiles.List(ctx, ClampLimit(limit, DefaultUserListLimit, MaxLeaderboardLimit))
	if err != nil {
		return nil, err
	}
	rows := make([]UserRow, 0, len(profiles))
	for _, p := range profiles {
		sums, err := s.Ledger.SumByCategory(ctx, p.Wallet)
		if err != nil {
			return nil, err
		}
		var total int64
		for _, pts := range sums {
			total += pts
		}
		rows = append(rows, UserRow{UserProfile: p, TotalPoints: total})
	}
	return rows, nil
}

// WalletDetail is everything an operator needs about one wallet.
type WalletDetail struct {
	Profile         models.UserProfile   `json:"profile"`
	Summary         WalletSummary        `json:"summary"`
	ReferredWallets []ReferredWallet     `json:"referred_wallets"`
	Ledger          []models.LedgerEntry `json:"ledger"`
}

func (s *AdminService) WalletDetail(ctx context.Context, walletRaw string) (WalletDetail, error) {
	wallet, ok := utils.NormalizeWallet(walletRaw)
	if !ok {
		return WalletDetail{}, validationf("invalid wallet %q", walletRaw)
	}
	profile, err := s.Profiles.Get(ctx, wallet)
	if err != nil {
		return WalletDetail{}, err
	}
	summary, err := s.Leaderboard.Summary(ctx, wallet)
	if err != nil {
		return WalletDetail{}, err
	}
	referred, err := s.Referrals.ReferredWallets(ctx, wallet)
	if err != nil {
		return WalletDetail{}, err
	}
	entries, err := s.Ledger.ListRecent(ctx, wallet, 0)
	if err != nil {
		return WalletDetail{}, err
	}
	return WalletDetail{Profile: profile, Summary: summary, ReferredWallets: referred, Ledger: entries}, nil
}
