package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"unibridge-points/middleware"
	"unibridge-points/models"
	"unibridge-points/services"
)

const (
	token   = "gateway-secret"
	walletA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	walletB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func setupTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
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
	unibridge := services.NewUnibridgeService(db, ledger, points, cfg)
	distributor := services.NewStakingDistributor(db, ledger, referrals, cfg, 2)
	leaderboard := services.NewLeaderboardService(ledger, cfg)

	app := fiber.New()
	app.Use(middleware.GatewayAuthMiddleware(token))
	SetupPointsRoutes(app, points, leaderboard)
	SetupUnibridgeRoutes(app, unibridge)
	SetupStakingRoutes(app, distributor)
	SetupReferralRoutes(app, referrals, cfg)
	SetupAdminRoutes(app, AdminDeps{
		AdminWallets: []string{walletB},
		Points:       points,
		Config:       cfg,
		Export:       services.NewExportService(ledger, profiles, nil),
		Admin:        services.NewAdminService(ledger, profiles, referrals, leaderboard),
		Distributor:  distributor,
	})
	return app, db
}

type call struct {
	method  string
	path    string
	body    string
	headers map[string]string
}

func do(t *testing.T, app *fiber.App, c call) (int, []byte) {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Authorization", "Bearer "+token)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func asAdmin() map[string]string {
	return map[string]string{"X-User-ID": "ops-1", "X-User-Roles": "admin"}
}

func TestConnectAndSummary(t *testing.T) {
	app, _ := setupTestApp(t)

	status, _ := do(t, app, call{method: "POST", path: "/connect", body: `{"wallet":"` + walletA + `","referrer_code":"` + walletB + `"}`})
	require.Equal(t, http.StatusOK, status)

	status, body := do(t, app, call{method: "GET", path: "/points/" + walletA})
	require.Equal(t, http.StatusOK, status)
	var summary services.WalletSummary
	require.NoError(t, json.Unmarshal(body, &summary))
	assert.Equal(t, int64(250), summary.TotalPoints)
	assert.Equal(t, 1, summary.Rank)

	status, body = do(t, app, call{method: "GET", path: "/referrals/" + walletB})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"commission_total":20`)

	status, _ = do(t, app, call{method: "POST", path: "/connect", body: `{"wallet":"nope"}`})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, call{method: "POST", path: "/connect", body: `{}`})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUnibridgeWebhookTwice(t *testing.T) {
	app, db := setupTestApp(t)

	status, _ := do(t, app, call{method: "POST", path: "/unibridge/actions", body: `{"tx_id":"0xtx","wallet":"` + walletA + `","usd_value":"500"}`})
	require.Equal(t, http.StatusCreated, status)

	for i := 0; i < 2; i++ {
		status, _ = do(t, app, call{method: "POST", path: "/unibridge/actions/0xtx/status", body: `{"status":"success"}`})
		require.Equal(t, http.StatusOK, status)
	}
	var entries []models.LedgerEntry
	require.NoError(t, db.Where("category = ?", models.CategoryUnibridgeTx).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1030), entries[0].Points)

	status, _ = do(t, app, call{method: "POST", path: "/unibridge/actions/0xtx/status", body: `{"status":"failed"}`})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = do(t, app, call{method: "POST", path: "/unibridge/actions/0xmissing/status", body: `{"status":"success"}`})
	assert.Equal(t, http.StatusNotFound, status)

	status, body := do(t, app, call{method: "GET", path: "/unibridge/wallets/" + walletA + "/actions"})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"success"`)
}

func TestStakingPushAndAdminDistribute(t *testing.T) {
	app, db := setupTestApp(t)

	status, _ := do(t, app, call{method: "POST", path: "/staking/positions", body: `{"positions":[{"wallet":"` + walletA + `","pool_id":"90","staked_amount":"10000"}]}`})
	require.Equal(t, http.StatusOK, status)

	status, body := do(t, app, call{method: "POST", path: "/s/admin/staking/distribute?date=2025-03-14", headers: asAdmin()})
	require.Equal(t, http.StatusOK, status)
	var report services.DistributionReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, "2025-03-14", report.SnapshotDate)
	assert.Equal(t, int64(780), report.PointsAwarded)

	status, _ = do(t, app, call{method: "POST", path: "/s/admin/staking/distribute?date=14-03-2025", headers: asAdmin()})
	assert.Equal(t, http.StatusBadRequest, status)

	var n int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestAdminRejectedBeforeWrite(t *testing.T) {
	app, db := setupTestApp(t)
	body := `{"wallet":"` + walletA + `","amount":500,"reason":"promo"}`

	status, _ := do(t, app, call{method: "POST", path: "/s/admin/adjustments", body: body})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = do(t, app, call{method: "POST", path: "/s/admin/adjustments", body: body, headers: map[string]string{"X-User-ID": walletA}})
	assert.Equal(t, http.StatusForbidden, status)

	var n int64
	require.NoError(t, db.Model(&models.LedgerEntry{}).Count(&n).Error)
	assert.Zero(t, n)

	// listed admin wallet, no role header
	status, _ = do(t, app, call{method: "POST", path: "/s/admin/adjustments", body: body, headers: map[string]string{"X-User-ID": walletB}})
	assert.Equal(t, http.StatusCreated, status)

	var entry models.LedgerEntry
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, int64(500), entry.Points)
	assert.Equal(t, walletB, entry.Metadata["adjusted_by"])
}

func TestAdminConfigAndExport(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := do(t, app, call{method: "GET", path: "/s/admin/config", headers: asAdmin()})
	require.Equal(t, http.StatusOK, status)
	var cfg models.ScoringConfig
	require.NoError(t, json.Unmarshal(body, &cfg))
	assert.Equal(t, int64(50), cfg.ConnectBonus)

	cfg.ConnectBonus = 70
	doc, err := json.Marshal(cfg)
	require.NoError(t, err)
	status, body = do(t, app, call{method: "PUT", path: "/s/admin/config", body: string(doc), headers: asAdmin()})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"version":1`)

	cfg.Referral.CommissionPercent = 101
	doc, err = json.Marshal(cfg)
	require.NoError(t, err)
	status, _ = do(t, app, call{method: "PUT", path: "/s/admin/config", body: string(doc), headers: asAdmin()})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, call{method: "POST", path: "/connect", body: `{"wallet":"` + walletA + `"}`})
	require.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest("GET", "/s/admin/export", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range asAdmin() {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	csvBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvBody)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Wallet Address,Total Points,Signup Date,Referred By", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], walletA+",70,"))
	assert.True(t, strings.HasSuffix(lines[1], ",Direct"))

	status, _ = do(t, app, call{method: "POST", path: "/s/admin/unibridge/verify", headers: asAdmin()})
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestLeaderboardRoute(t *testing.T) {
	app, db := setupTestApp(t)
	ledger := services.NewLedgerStore(db)
	for i, w := range []string{walletA, walletB} {
		_, err := ledger.Append(context.Background(), models.LedgerEntry{
			Wallet: w, Category: models.CategoryStakingDaily, Points: int64(100 * (i + 1)), IdempotencyKey: "2025-03-14:90",
		})
		require.NoError(t, err)
	}

	status, body := do(t, app, call{method: "GET", path: "/leaderboard?limit=1"})
	require.Equal(t, http.StatusOK, status)
	var page services.LeaderboardPage
	require.NoError(t, json.Unmarshal(body, &page))
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, walletB, page.Entries[0].Wallet)

	status, body = do(t, app, call{method: "GET", path: "/leaderboard/rank/" + walletA})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"rank":2`)
}

type rowCounts struct {
	ledger, actions, positions, profiles int64
}

func countRows(t *testing.T, db *gorm.DB) rowCounts {
	t.Helper()
	var rc rowCounts
	require.NoError(t, db.Model(&models.LedgerEntry{}).Count(&rc.ledger).Error)
	require.NoError(t, db.Model(&models.UnibridgeAction{}).Count(&rc.actions).Error)
	require.NoError(t, db.Model(&models.StakePosition{}).Count(&rc.positions).Error)
	require.NoError(t, db.Model(&models.UserProfile{}).Count(&rc.profiles).Error)
	return rc
}

func TestInvalidBodiesWriteNothing(t *testing.T) {
	app, db := setupTestApp(t)
	status, _ := do(t, app, call{method: "POST", path: "/unibridge/actions", body: `{"tx_id":"0xpending","wallet":"` + walletA + `","usd_value":"500"}`})
	require.Equal(t, http.StatusCreated, status)
	before := countRows(t, db)

	cases := []struct {
		name string
		call call
	}{
		{"adjustment reason too long", call{method: "POST", path: "/s/admin/adjustments", headers: asAdmin(),
			body: `{"wallet":"` + walletA + `","amount":500,"reason":"` + strings.Repeat("r", 300) + `"}`}},
		{"adjustment amount missing", call{method: "POST", path: "/s/admin/adjustments", headers: asAdmin(),
			body: `{"wallet":"` + walletA + `","reason":"promo"}`}},
		{"status not lowercase", call{method: "POST", path: "/unibridge/actions/0xpending/status", body: `{"status":"SUCCESS"}`}},
		{"status missing", call{method: "POST", path: "/unibridge/actions/0xpending/status", body: `{}`}},
		{"tx id too long", call{method: "POST", path: "/unibridge/actions",
			body: `{"tx_id":"` + strings.Repeat("f", 129) + `","wallet":"` + walletB + `","usd_value":"1"}`}},
		{"pool id too long", call{method: "POST", path: "/staking/positions",
			body: `{"positions":[{"wallet":"` + walletB + `","pool_id":"` + strings.Repeat("9", 17) + `","staked_amount":"1"}]}`}},
		{"stake too large", call{method: "POST", path: "/staking/positions",
			body: `{"positions":[{"wallet":"` + walletB + `","pool_id":"90","staked_amount":"1e40"}]}`}},
		{"empty positions", call{method: "POST", path: "/staking/positions", body: `{"positions":[]}`}},
		{"malformed connect", call{method: "POST", path: "/connect", body: `{"wallet":`}},
		{"malformed referral", call{method: "POST", path: "/referrals", body: `{"referrer":"` + walletB + `",`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := do(t, app, tc.call)
			assert.Equal(t, http.StatusBadRequest, status, string(body))
			assert.Equal(t, before, countRows(t, db))
		})
	}

	var action models.UnibridgeAction
	require.NoError(t, db.First(&action, "tx_id = ?", "0xpending").Error)
	assert.Equal(t, models.ActionStatusPending, action.Status)
}
