package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"unibridge-points/models"
)

const (
	walletA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	walletB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	walletC = "0xcccccccccccccccccccccccccccccccccccccccc"
	walletD = "0xdddddddddddddddddddddddddddddddddddddddd"
)

type testEnv struct {
	DB          *gorm.DB
	Ledger      *LedgerStore
	Profiles    *ProfileStore
	Config      *ConfigProvider
	Referrals   *ReferralService
	Points      *PointsService
	Unibridge   *UnibridgeService
	Distributor *StakingDistributor
	Leaderboard *LeaderboardService
	Admin       *AdminService
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	ledger := NewLedgerStore(db)
	profiles := NewProfileStore(db)
	cfg := NewConfigProvider(db)
	referrals := NewReferralService(db, ledger, profiles)
	points := NewPointsService(ledger, profiles, referrals, cfg)
	leaderboard := NewLeaderboardService(ledger, cfg)
	return &testEnv{
		DB:          db,
		Ledger:      ledger,
		Profiles:    profiles,
		Config:      cfg,
		Referrals:   referrals,
		Points:      points,
		Unibridge:   NewUnibridgeService(db, ledger, points, cfg),
		Distributor: NewStakingDistributor(db, ledger, referrals, cfg, 4),
		Leaderboard: leaderboard,
		Admin:       NewAdminService(ledger, profiles, referrals, leaderboard),
	}
}

// setConfig stores a modified copy of the default config.
func (e *testEnv) setConfig(t *testing.T, mutate func(*models.ScoringConfig)) models.ScoringConfig {
	t.Helper()
	cfg := models.DefaultScoringConfig()
	mutate(&cfg)
	saved, err := e.Config.Update(context.Background(), cfg, "test")
	require.NoError(t, err)
	return saved
}

func (e *testEnv) entries(t *testing.T, wallet string) []models.LedgerEntry {
	t.Helper()
	var out []models.LedgerEntry
	require.NoError(t, e.DB.Where("wallet = ?", wallet).Order("id ASC").Find(&out).Error)
	return out
}

func (e *testEnv) entriesOf(t *testing.T, wallet string, category models.PointCategory) []models.LedgerEntry {
	t.Helper()
	var out []models.LedgerEntry
	require.NoError(t, e.DB.Where("wallet = ? AND category = ?", wallet, category).Order("id ASC").Find(&out).Error)
	return out
}

func (e *testEnv) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.DB.Model(model).Count(&n).Error)
	return n
}
