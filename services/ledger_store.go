package services

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"unibridge-points/logging"
	"unibridge-points/metrics"
	"unibridge-points/models"
	"unibridge-points/scoring"
	"unibridge-points/utils"
)

// AppendResult reports how an append resolved. Exactly one of Accepted and
// Duplicate is true; Entry is always the stored row.
type AppendResult struct {
	Accepted  bool               `json:"accepted"`
	Duplicate bool               `json:"duplicate"`
	Entry     models.LedgerEntry `json:"entry"`
}

// LedgerStore is the append-only points log.
type LedgerStore struct {
	DB *gorm.DB
}

func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{DB: db}
}

// Append inserts entry unless (wallet, idempotency_key) already exists, in
// which case the stored row is returned with Duplicate set. Racing appends
// on the same key are settled by the unique index.
func (s *LedgerStore) Append(ctx context.Context, entry models.LedgerEntry) (AppendResult, error) {
	wallet, ok := utils.NormalizeWallet(entry.Wallet)
	if !ok {
		return AppendResult{}, validationf("invalid wallet %q", entry.Wallet)
	}
	entry.Wallet = wallet
	entry.IdempotencyKey = strings.TrimSpace(entry.IdempotencyKey)
	if entry.IdempotencyKey == "" {
		return AppendResult{}, validationf("idempotency key is required")
	}
	if !entry.Category.Valid() {
		return AppendResult{}, validationf("unknown category %q", entry.Category)
	}
	if entry.Points < 0 && !entry.Category.AllowsNegative() {
		return AppendResult{}, validationf("%s credits cannot be negative", entry.Category)
	}
	entry.ID = 0
	entry.CreatedAt = time.Time{}

	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wallet"}, {Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(&entry)
	if res.Error != nil {
		metrics.LedgerAppends.WithLabelValues(string(entry.Category), "error").Inc()
		logging.Logger.Error("[LEDGER] append failed",
			zap.String("wallet", wallet),
			zap.String("key", entry.IdempotencyKey),
			zap.Error(res.Error))
		return AppendResult{}, unavailable(res.Error, "append ledger entry")
	}

	if res.RowsAffected == 0 {
		existing, err := s.FindByKey(ctx, wallet, entry.IdempotencyKey)
		if err != nil {
			return AppendResult{}, err
		}
		metrics.LedgerAppends.WithLabelValues(string(entry.Category), "duplicate").Inc()
		logging.Logger.Debug("[LEDGER] duplicate credit skipped",
			zap.String("wallet", wallet),
			zap.String("key", entry.IdempotencyKey))
		return AppendResult{Duplicate: true, Entry: existing}, nil
	}

	metrics.LedgerAppends.WithLabelValues(string(entry.Category), "accepted").Inc()
	metrics.PointsCredited.WithLabelValues(string(entry.Category)).Add(float64(entry.Points))
	logging.Logger.Info("[LEDGER] credited",
		zap.String("wallet", wallet),
		zap.String("category", string(entry.Category)),
		zap.Int64("points", entry.Points),
		zap.String("key", entry.IdempotencyKey))
	return AppendResult{Accepted: true, Entry: entry}, nil
}

// FindByKey loads the entry stored under (wallet, key).
func (s *LedgerStore) FindByKey(ctx context.Context, wallet, key string) (models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := s.DB.WithContext(ctx).
		Where("wallet = ? AND idempotency_key = ?", wallet, key).
		First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return entry, notFoundf("ledger entry %s for %s", key, wallet)
	}
	if err != nil {
		return entry, unavailable(err, "load ledger entry")
	}
	return entry, nil
}

type categorySum struct {
	Wallet   string
	Category models.PointCategory
	Total    int64
}

// SumByCategory folds every entry of wallet into per-category totals.
func (s *LedgerStore) SumByCategory(ctx context.Context, wallet string) (map[models.PointCategory]int64, error) {
	var rows []categorySum
	err := s.DB.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("category, SUM(points) AS total").
		Where("wallet = ?", wallet).
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable(err, "sum ledger by category")
	}
	out := make(map[models.PointCategory]int64, len(rows))
	for _, r := range rows {
		out[r.Category] = r.Total
	}
	return out, nil
}

// SumAllByCategory is SumByCategory for every wallet in one query.
func (s *LedgerStore) SumAllByCategory(ctx context.Context) (map[string]map[models.PointCategory]int64, error) {
	var rows []categorySum
	err := s.DB.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("wallet, category, SUM(points) AS total").
		Group("wallet, category").
		Scan(&rows).Error
	if err != nil {
		return nil, unavailable(err, "sum ledger by wallet")
	}
	out := make(map[string]map[models.PointCategory]int64)
	for _, r := range rows {
		byCat, ok := out[r.Wallet]
		if !ok {
			byCat = make(map[models.PointCategory]int64)
			out[r.Wallet] = byCat
		}
		byCat[r.Category] = r.Total
	}
	return out, nil
}

// ListRecent returns the newest entries of wallet first.
func (s *LedgerStore) ListRecent(ctx context.Context, wallet string, limit int) ([]models.LedgerEntry, error) {
	q := s.DB.WithContext(ctx).
		Where("wallet = ?", wallet).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []models.LedgerEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, unavailable(err, "list ledger entries")
	}
	return entries, nil
}

// CountSince counts wallet's entries of category created at or after since.
func (s *LedgerStore) CountSince(ctx context.Context, wallet string, category models.PointCategory, since time.Time) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("wallet = ? AND category = ? AND created_at >= ?", wallet, category, since).
		Count(&n).Error
	if err != nil {
		return 0, unavailable(err, "count ledger entries")
	}
	return n, nil
}

// USDVolumeSince sums the usd_value of wallet's UNIBRIDGE_TX entries created
// at or after since. Values are decimal strings, so the sum is taken here
// rather than in SQL.
func (s *LedgerStore) USDVolumeSince(ctx context.Context, wallet string, since time.Time) (*apd.Decimal, error) {
	var values []*string
	err := s.DB.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("wallet = ? AND category = ? AND created_at >= ?", wallet, models.CategoryUnibridgeTx, since).
		Pluck("usd_value", &values).Error
	if err != nil {
		return nil, unavailable(err, "sum usd volume")
	}
	total := apd.New(0, 0)
	for _, v := range values {
		if v == nil {
			continue
		}
		d, err := scoring.ParseAmount(*v)
		if err != nil {
			continue
		}
		if err := scoring.AddAmount(total, d); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// LedgerStats identifies the ledger's current contents for cache keys.
type LedgerStats struct {
	Count int64
	MaxID uint64
}

func (s *LedgerStore) Stats(ctx context.Context) (LedgerStats, error) {
	var st LedgerStats
	err := s.DB.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("COUNT(*) AS count, COALESCE(MAX(id), 0) AS max_id").
		Scan(&st).Error
	if err != nil {
		return st, unavailable(err, "ledger stats")
	}
	return st, nil
}
