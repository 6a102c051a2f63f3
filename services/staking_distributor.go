package services

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"unibridge-points/logging"
	"unibridge-points/metrics"
	"unibridge-points/models"
	"unibridge-points/scoring"
	"unibridge-points/utils"
)

const SnapshotDateLayout = "2006-01-02"

// StakingKey is the per-wallet key of one day's credit for one pool.
func StakingKey(snapshotDate, poolID string) string {
	return snapshotDate + ":" + poolID
}

// StakingDistributor credits the daily staking reward. A run for a day that
// was already (partly) credited only fills in what is missing.
type StakingDistributor struct {
	DB          *gorm.DB
	Ledger      *LedgerStore
	Referrals   *ReferralService
	Config      *ConfigProvider
	Concurrency int
}

func NewStakingDistributor(db *gorm.DB, ledger *LedgerStore, referrals *ReferralService, cfg *ConfigProvider, concurrency int) *StakingDistributor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &StakingDistributor{DB: db, Ledger: ledger, Referrals: referrals, Config: cfg, Concurrency: concurrency}
}

// DistributionReport summarizes one run.
type DistributionReport struct {
	SnapshotDate     string   `json:"snapshot_date"`
	ConfigVersion    uint64   `json:"config_version"`
	WalletsProcessed int      `json:"wallets_processed"`
	WalletsFailed    int      `json:"wallets_failed"`
	FailedWallets    []string `json:"failed_wallets,omitempty"`
	Credited         int      `json:"credited"`
	Duplicates       int      `json:"duplicates"`
	Commissions      int      `json:"commissions"`
	PointsAwarded    int64    `json:"points_awarded"`
	Interrupted      bool     `json:"interrupted"`
}

type walletOutcome struct {
	credited    int
	duplicates  int
	commissions int
	points      int64
}

// Run distributes the staking reward for the UTC day of day. One wallet's
// failure is logged and left for the next run; it never stops the others.
// Cancelling ctx stops new wallets from starting.
func (d *StakingDistributor) Run(ctx context.Context, day time.Time) (DistributionReport, error) {
	started := time.Now()
	report := DistributionReport{SnapshotDate: day.UTC().Format(SnapshotDateLayout)}

	cfg, err := d.Config.Current(ctx)
	if err != nil {
		metrics.DistributionRuns.WithLabelValues("failed").Inc()
		return report, err
	}
	report.ConfigVersion = cfg.Version

	var positions []models.StakePosition
	if err := d.DB.WithContext(ctx).Order("wallet ASC").Order("pool_id ASC").Find(&positions).Error; err != nil {
		metrics.DistributionRuns.WithLabelValues("failed").Inc()
		return report, unavailable(err, "load stake positions")
	}
	wallets, byWallet := groupPositions(positions)

	logging.Logger.Info("[STAKING] distribution started",
		zap.String("date", report.SnapshotDate),
		zap.Int("wallets", len(wallets)),
		zap.Int("positions", len(positions)),
		zap.Uint64("config_version", cfg.Version))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(d.Concurrency)
	for _, wallet := range wallets {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := d.distributeWallet(ctx, report.SnapshotDate, wallet, byWallet[wallet], cfg)
			mu.Lock()
			defer mu.Unlock()
			report.Credited += out.credited
			report.Duplicates += out.duplicates
			report.Commissions += out.commissions
			report.PointsAwarded += out.points
			if err != nil {
				report.WalletsFailed++
				report.FailedWallets = append(report.FailedWallets, wallet)
				metrics.DistributionFailedWallets.Inc()
				logging.Logger.Error("[STAKING] wallet skipped, retried next run",
					zap.String("wallet", wallet),
					zap.String("date", report.SnapshotDate),
					zap.Error(err))
				return nil
			}
			report.WalletsProcessed++
			return nil
		})
	}
	_ = g.Wait()

	metrics.DistributionDuration.Observe(time.Since(started).Seconds())
	if err := ctx.Err(); err != nil {
		report.Interrupted = true
		metrics.DistributionRuns.WithLabelValues("interrupted").Inc()
		logging.Logger.Warn("[STAKING] distribution interrupted", zap.String("date", report.SnapshotDate), zap.Error(err))
		return report, err
	}

	result := "ok"
	if report.WalletsFailed > 0 {
		result = "partial"
	}
	metrics.DistributionRuns.WithLabelValues(result).Inc()
	logging.Logger.Info("[STAKING] distribution finished",
		zap.String("date", report.SnapshotDate),
		zap.Int("processed", report.WalletsProcessed),
		zap.Int("failed", report.WalletsFailed),
		zap.Int("credited", report.Credited),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("commissions", report.Commissions),
		zap.Int64("points", report.PointsAwarded),
		zap.Duration("took", time.Since(started)))
	return report, nil
}

// distributeWallet caps and credits one wallet's positions. Commission is
// settled for duplicates too, so a run cut off between a credit and its
// commission is completed by the next one.
func (d *StakingDistributor) distributeWallet(ctx context.Context, date, wallet string, positions []models.StakePosition, cfg models.ScoringConfig) (walletOutcome, error) {
	var out walletOutcome

	raw := make([]int64, len(positions))
	for i, p := range positions {
		amount, err := scoring.ParseStake(p.StakedAmount)
		if err != nil {
			logging.Logger.Warn("[STAKING] unreadable or oversized staked amount, scored as zero",
				zap.String("wallet", wallet),
				zap.String("pool_id", p.PoolID),
				zap.String("amount", p.StakedAmount))
			continue
		}
		raw[i] = scoring.StakingRawPoints(scoring.AmountFloat(amount), cfg.Staking, p.PoolID)
	}
	awarded := scoring.ApplyDailyCap(raw, cfg.Staking.DailyCap)

	for i, p := range positions {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if awarded[i] <= 0 {
			continue
		}

		res, err := d.Ledger.Append(ctx, models.LedgerEntry{
			Wallet:         wallet,
			Category:       models.CategoryStakingDaily,
			Points:         awarded[i],
			IdempotencyKey: StakingKey(date, p.PoolID),
			Metadata: map[string]string{
				"pool_id":        p.PoolID,
				"snapshot_date":  date,
				"staked_amount":  p.StakedAmount,
				"raw_points":     strconv.FormatInt(raw[i], 10),
				"config_version": strconv.FormatUint(cfg.Version, 10),
			},
		})
		if err != nil {
			return out, err
		}
		if res.Accepted {
			out.credited++
			out.points += res.Entry.Points
		} else {
			out.duplicates++
		}

		if err := d.recordSnapshot(ctx, date, p, raw[i], res.Entry.Points); err != nil {
			return out, err
		}

		commission, err := d.Referrals.OnCredit(ctx, res.Entry, cfg)
		if err != nil {
			return out, err
		}
		if commission != nil && commission.Accepted {
			out.commissions++
		}
	}
	return out, nil
}

func (d *StakingDistributor) recordSnapshot(ctx context.Context, date string, p models.StakePosition, raw, awarded int64) error {
	row := models.StakingSnapshot{
		SnapshotDate:  date,
		Wallet:        p.Wallet,
		PoolID:        p.PoolID,
		StakedAmount:  p.StakedAmount,
		RawPoints:     raw,
		PointsAwarded: awarded,
	}
	err := d.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "snapshot_date"}, {Name: "wallet"}, {Name: "pool_id"}},
			DoNothing: true,
		}).
		Create(&row).Error
	return unavailable(err, "record staking snapshot")
}

func groupPositions(positions []models.StakePosition) ([]string, map[string][]models.StakePosition) {
	byWallet := make(map[string][]models.StakePosition)
	var wallets []string
	for _, p := range positions {
		if _, seen := byWallet[p.Wallet]; !seen {
			wallets = append(wallets, p.Wallet)
		}
		byWallet[p.Wallet] = append(byWallet[p.Wallet], p)
	}
	return wallets, byWallet
}

// PositionUpdate is one balance reported by the indexer.
type PositionUpdate struct {
	Wallet       string    `json:"wallet" validate:"required"`
	PoolID       string    `json:"pool_id" validate:"required,max=16"`
	StakedAmount string    `json:"staked_amount" validate:"required"`
	AsOf         time.Time `json:"as_of"`
}

// UpsertPositions replaces the stored balance of every (wallet, pool) in
// updates. The whole batch is rejected if any row is malformed.
func (d *StakingDistributor) UpsertPositions(ctx context.Context, updates []PositionUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	rows := make([]models.StakePosition, 0, len(updates))
	index := make(map[string]int, len(updates))
	for i, u := range updates {
		wallet, ok := utils.NormalizeWallet(u.Wallet)
		if !ok {
			return 0, validationf("position %d: invalid wallet %q", i, u.Wallet)
		}
		pool := strings.TrimSpace(u.PoolID)
		if pool == "" {
			return 0, validationf("position %d: pool_id is required", i)
		}
		amount, err := scoring.ParseStake(u.StakedAmount)
		if err != nil {
			return 0, validationf("position %d: %v", i, err)
		}
		asOf := u.AsOf.UTC()
		if u.AsOf.IsZero() {
			asOf = now
		}
		row := models.StakePosition{
			Wallet:       wallet,
			PoolID:       pool,
			StakedAmount: scoring.FormatAmount(amount),
			AsOf:         asOf,
		}
		// a batch may repeat a position; the last report wins
		if j, seen := index[wallet+"|"+pool]; seen {
			rows[j] = row
			continue
		}
		index[wallet+"|"+pool] = len(rows)
		rows = append(rows, row)
	}

	err := d.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wallet"}, {Name: "pool_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"staked_amount", "as_of", "updated_at"}),
		}).
		Create(&rows).Error
	if err != nil {
		return 0, unavailable(err, "upsert stake positions")
	}
	metrics.IndexerPositionsSynced.Add(float64(len(rows)))
	return len(rows), nil
}

// Positions lists the stored balances of wallet.
func (d *StakingDistributor) Positions(ctx context.Context, walletRaw string) ([]models.StakePosition, error) {
	wallet, ok := utils.NormalizeWallet(walletRaw)
	if !ok {
		return nil, validationf("invalid wallet %q", walletRaw)
	}
	var positions []models.StakePosition
	if err := d.DB.WithContext(ctx).Where("wallet = ?", wallet).Order("pool_id ASC").Find(&positions).Error; err != nil {
		return nil, unavailable(err, "list stake positions")
	}
	return positions, nil
}
