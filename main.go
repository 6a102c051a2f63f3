package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"unibridge-points/config"
	"unibridge-points/handlers"
	"unibridge-points/logging"
	"unibridge-points/middleware"
	"unibridge-points/models"
	"unibridge-points/services"
	"unibridge-points/utils"
	"unibridge-points/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ configuration: %v", err)
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogDevelopment); err != nil {
		log.Fatalf("❌ logger: %v", err)
	}
	defer logging.Sync()
	logger := logging.Logger

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := models.AutoMigrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ledger := services.NewLedgerStore(db)
	profiles := services.NewProfileStore(db)
	configProvider := services.NewConfigProvider(db)
	referrals := services.NewReferralService(db, ledger, profiles)
	pointsService := services.NewPointsService(ledger, profiles, referrals, configProvider)
	unibridgeService := services.NewUnibridgeService(db, ledger, pointsService, configProvider)
	distributor := services.NewStakingDistributor(db, ledger, referrals, configProvider, cfg.DistributionConcurrency)
	leaderboard := services.NewLeaderboardService(ledger, configProvider)
	adminService := services.NewAdminService(ledger, profiles, referrals, leaderboard)

	if cfg.ScoringConfigFile != "" {
		seed, err := config.LoadScoringSeed(cfg.ScoringConfigFile)
		if err != nil {
			logger.Fatal("failed to read scoring config seed", zap.Error(err))
		}
		seeded, err := configProvider.SeedIfEmpty(ctx, seed, "seed:"+cfg.ScoringConfigFile)
		if err != nil {
			logger.Fatal("failed to seed scoring config", zap.Error(err))
		}
		if seeded {
			logger.Info("✅ scoring config seeded", zap.String("file", cfg.ScoringConfigFile))
		}
	}

	var archiver services.Archiver
	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Archiver(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket, cfg.R2.CDNBaseURL)
		if err != nil {
			logger.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		archiver = r2
	}
	exportService := services.NewExportService(ledger, profiles, archiver)

	var verifyJob services.Job
	var verify func(ctx context.Context) (any, error)
	if cfg.OracleURL != "" {
		oracle := workers.NewOracleClient(cfg.OracleURL, cfg.OracleToken, cfg.OracleRatePerSec)
		verifier := workers.NewTxVerificationWorker(unibridgeService, oracle, cfg.VerifyBatchSize)
		verifyJob = verifier.Job()
		verify = func(ctx context.Context) (any, error) { return verifier.RunOnce(ctx) }
	} else {
		logger.Warn("⚠️  ORACLE_URL not set, pending actions resolve only through the status webhook")
	}

	var indexJob services.Job
	if cfg.IndexerURL != "" {
		syncWorker := workers.NewStakeSyncWorker(workers.NewIndexerClient(cfg.IndexerURL, cfg.IndexerToken), distributor)
		indexJob = syncWorker.Job()
	} else {
		logger.Warn("⚠️  INDEXER_URL not set, stake positions arrive only through the push endpoint")
	}

	hour, minute, _ := cfg.DailyStakingTime()
	sched, err := services.StartScheduler(ctx, services.ScheduleConfig{
		DailyHour:      hour,
		DailyMinute:    minute,
		VerifyInterval: cfg.VerifyInterval,
		IndexInterval:  cfg.IndexerPollInterval,
	}, distributor, verifyJob, indexJob)
	if err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	app := fiber.New()
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// 🔐 Only Gateway requests allowed, except health and metrics scrapes
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken, "/healthz", "/metrics"))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.SetupPointsRoutes(app, pointsService, leaderboard)
	handlers.SetupUnibridgeRoutes(app, unibridgeService)
	handlers.SetupStakingRoutes(app, distributor)
	handlers.SetupReferralRoutes(app, referrals, configProvider)
	handlers.SetupAdminRoutes(app, handlers.AdminDeps{
		AdminWallets: cfg.AdminWallets,
		Points:       pointsService,
		Config:       configProvider,
		Export:       exportService,
		Admin:        adminService,
		Distributor:  distributor,
		Verify:       verify,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()

	logger.Info("✅ points service running", zap.String("port", cfg.Port))
	logger.Info("✅ CORS configured", zap.Strings("origins", cfg.AllowedOrigins))

	<-ctx.Done()
	logger.Info("shutting down...")
	if err := sched.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
