package workers

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"unibridge-points/models"
	"unibridge-points/services"
)

const (
	walletA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	walletB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type testServices struct {
	DB          *gorm.DB
	Unibridge   *services.UnibridgeService
	Distributor *services.StakingDistributor
}

func setupServices(t *testing.T) testServices {
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

	ledger := services.NewLedgerStore(db)
	profiles := services.NewProfileStore(db)
	cfg := services.NewConfigProvider(db)
	referrals := services.NewReferralService(db, ledger, profiles)
	points := services.NewPointsService(ledger, profiles, referrals, cfg)
	return testServices{
		DB:          db,
		Unibridge:   services.NewUnibridgeService(db, ledger, points, cfg),
		Distributor: services.NewStakingDistributor(db, ledger, referrals, cfg, 2),
	}
}
