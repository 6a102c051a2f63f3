package services

import (
	"context"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru"

	"unibridge-points/metrics"
	"unibridge-points/models"
	"unibridge-points/scoring"
	"unibridge-points/utils"
)

const (
	DefaultLeaderboardLimit = 50
	MaxLeaderboardLimit     = 500
	rankingCacheSize        = 8
)

// Standing is one leaderboard row.
type Standing struct {
	Rank           int    `json:"rank"`
	Wallet         string `json:"wallet"`
	UnibridgeTotal int64  `json:"unibridge_total"`
	StakingTotal   int64  `json:"staking_total"`
	TotalPoints    int64  `json:"total_points"`
	WeightedScore  int64  `json:"weighted_score"`
}

type ranking struct {
	configVersion uint64
	weights       models.Weights
	standings     []Standing
}

// LeaderboardService folds the ledger into ranked totals. Rankings are
// memoized per (config version, ledger size, newest entry), so any append
// or config change produces a fresh fold.
type LeaderboardService struct {
	Ledger *LedgerStore
	Config *ConfigProvider
	cache  *lru.Cache
}

func NewLeaderboardService(ledger *LedgerStore, cfg *ConfigProvider) *LeaderboardService {
	cache, err := lru.New(rankingCacheSize)
	if err != nil {
		panic(err)
	}
	return &LeaderboardService{Ledger: ledger, Config: cfg, cache: cache}
}

func (s *LeaderboardService) ranking(ctx context.Context) (*ranking, error) {
	cfg, err := s.Config.Current(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.Ledger.Stats(ctx)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d:%d:%d", cfg.Version, stats.Count, stats.MaxID)
	if cached, ok := s.cache.Get(key); ok {
		metrics.LeaderboardCache.WithLabelValues("hit").Inc()
		return cached.(*ranking), nil
	}
	metrics.LeaderboardCache.WithLabelValues("miss").Inc()

	sums, err := s.Ledger.SumAllByCategory(ctx)
	if err != nil {
		return nil, err
	}
	r := &ranking{configVersion: cfg.Version, weights: cfg.Weights, standings: RankStandings(sums, cfg.Weights)}
	s.cache.Add(key, r)
	return r, nil
}

// RankStandings folds per-wallet category sums and orders them by weighted
// score descending, then wallet ascending. Rank is one plus the number of
// wallets with a strictly greater score, so ties share a rank.
func RankStandings(sums map[string]map[models.PointCategory]int64, w models.Weights) []Standing {
	standings := make([]Standing, 0, len(sums))
	for wallet, byCat := range sums {
		t := scoring.Fold(byCat, w)
		standings = append(standings, Standing{
			Wallet:         wallet,
			UnibridgeTotal: t.UnibridgeTotal,
			StakingTotal:   t.StakingTotal,
			TotalPoints:    t.TotalPoints,
			WeightedScore:  t.WeightedScore,
		})
	}
	sort.Slice(standings, func(i, j int) bool {
		if standings[i].WeightedScore != standings[j].WeightedScore {
			return standings[i].WeightedScore > standings[j].WeightedScore
		}
		return standings[i].Wallet < standings[j].Wallet
	})
	for i := range standings {
		if i > 0 && standings[i].WeightedScore == standings[i-1].WeightedScore {
			standings[i].Rank = standings[i-1].Rank
		} else {
			standings[i].Rank = i + 1
		}
	}
	return standings
}

// rankForScore counts the standings strictly above score.
func rankForScore(standings []Standing, score int64) int {
	above := sort.Search(len(standings), func(i int) bool {
		return standings[i].WeightedScore <= score
	})
	return above + 1
}

// LeaderboardPage is one slice of the ranking.
type LeaderboardPage struct {
	Total         int        `json:"total"`
	Limit         int        `json:"limit"`
	Offset        int        `json:"offset"`
	ConfigVersion uint64     `json:"config_version"`
	Entries       []Standing `json:"entries"`
}

// Rank returns limit standings starting at offset.
func (s *LeaderboardService) Rank(ctx context.Context, limit, offset int) (LeaderboardPage, error) {
	limit = ClampLimit(limit, DefaultLeaderboardLimit, MaxLeaderboardLimit)
	if offset < 0 {
		return LeaderboardPage{}, validationf("offset must not be negative")
	}
	r, err := s.ranking(ctx)
	if err != nil {
		return LeaderboardPage{}, err
	}
	page := LeaderboardPage{
		Total:         len(r.standings),
		Limit:         limit,
		Offset:        offset,
		ConfigVersion: r.configVersion,
		Entries:       []Standing{},
	}
	if offset >= len(r.standings) {
		return page, nil
	}
	end := min(offset+limit, len(r.standings))
	page.Entries = append(page.Entries, r.standings[offset:end]...)
	return page, nil
}

// RankOf returns wallet's rank. A wallet without credits has score zero and
// ranks behind every positive score.
func (s *LeaderboardService) RankOf(ctx context.Context, walletRaw string) (int, error) {
	summary, err := s.Summary(ctx, walletRaw)
	if err != nil {
		return 0, err
	}
	return summary.Rank, nil
}

// WalletSummary is the read model of one wallet.
type WalletSummary struct {
	Wallet        string `json:"wallet"`
	Rank          int    `json:"rank"`
	ConfigVersion uint64 `json:"config_version"`
	scoring.Totals
}

// Summary folds wallet's ledger and places it in the current ranking.
func (s *LeaderboardService) Summary(ctx context.Context, walletRaw string) (WalletSummary, error) {
	wallet, ok := utils.NormalizeWallet(walletRaw)
	if !ok {
		return WalletSummary{}, validationf("invalid wallet %q", walletRaw)
	}
	r, err := s.ranking(ctx)
	if err != nil {
		return WalletSummary{}, err
	}
	sums, err := s.Ledger.SumByCategory(ctx, wallet)
	if err != nil {
		return WalletSummary{}, err
	}
	totals := scoring.Fold(sums, r.weights)
	return WalletSummary{
		Wallet:        wallet,
		Rank:          rankForScore(r.standings, totals.WeightedScore),
		ConfigVersion: r.configVersion,
		Totals:        totals,
	}, nil
}
