package services

import (
	"context"
	"encoding/json"
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"unibridge-points/logging"
	"unibridge-points/models"
)

var configValidate = validator.New()

// ConfigProvider hands out immutable ScoringConfig snapshots. Every write
// is a whole new version; nothing is merged.
type ConfigProvider struct {
	DB *gorm.DB
}

func NewConfigProvider(db *gorm.DB) *ConfigProvider {
	return &ConfigProvider{DB: db}
}

// Current returns the latest committed config, or the built-in default when
// none has been stored yet.
func (p *ConfigProvider) Current(ctx context.Context) (models.ScoringConfig, error) {
	var row models.PointsConfigVersion
	err := p.DB.WithContext(ctx).Order("id DESC").Limit(1).Find(&row).Error
	if err != nil {
		return models.ScoringConfig{}, unavailable(err, "load scoring config")
	}
	if row.ID == 0 {
		return models.DefaultScoringConfig(), nil
	}
	return decodeConfig(row)
}

// Update validates cfg and stores it as the next version.
func (p *ConfigProvider) Update(ctx context.Context, cfg models.ScoringConfig, actor string) (models.ScoringConfig, error) {
	if actor == "" {
		return models.ScoringConfig{}, validationf("actor is required")
	}
	if err := ValidateScoringConfig(cfg); err != nil {
		return models.ScoringConfig{}, err
	}
	cfg = cfg.Clone()
	cfg.Version = 0
	if cfg.Staking.PoolMultiplier == nil {
		cfg.Staking.PoolMultiplier = map[string]float64{}
	}

	doc, err := json.Marshal(cfg)
	if err != nil {
		return models.ScoringConfig{}, validationf("encode config: %v", err)
	}
	row := models.PointsConfigVersion{Document: string(doc), UpdatedBy: actor}
	if err := p.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return models.ScoringConfig{}, unavailable(err, "store scoring config")
	}

	cfg.Version = row.ID
	logging.Logger.Info("[CONFIG] scoring config updated",
		zap.Uint64("version", row.ID),
		zap.String("actor", actor))
	return cfg, nil
}

// History lists stored versions, newest first.
func (p *ConfigProvider) History(ctx context.Context, limit int) ([]models.PointsConfigVersion, error) {
	q := p.DB.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.PointsConfigVersion
	if err := q.Find(&rows).Error; err != nil {
		return nil, unavailable(err, "list scoring config versions")
	}
	return rows, nil
}

// SeedIfEmpty stores cfg as version 1 when no version exists yet. It
// reports whether a row was written.
func (p *ConfigProvider) SeedIfEmpty(ctx context.Context, cfg models.ScoringConfig, actor string) (bool, error) {
	var n int64
	if err := p.DB.WithContext(ctx).Model(&models.PointsConfigVersion{}).Count(&n).Error; err != nil {
		return false, unavailable(err, "count scoring config versions")
	}
	if n > 0 {
		return false, nil
	}
	if _, err := p.Update(ctx, cfg, actor); err != nil {
		return false, err
	}
	return true, nil
}

// ValidateScoringConfig checks the numeric bounds of every parameter.
func ValidateScoringConfig(cfg models.ScoringConfig) error {
	if err := configValidate.Struct(cfg); err != nil {
		return validationf("scoring config: %v", err)
	}
	floats := map[string]float64{
		"weights.unibridge":                cfg.Weights.Unibridge,
		"weights.staking":                  cfg.Weights.Staking,
		"unibridge.volume_multiplier":      cfg.Unibridge.VolumeMultiplier,
		"unibridge.max_usd_volume_per_day": cfg.Unibridge.MaxUSDVolumePerDay,
		"staking.base_multiplier":          cfg.Staking.BaseMultiplier,
		"referral.commission_percent":      cfg.Referral.CommissionPercent,
	}
	for pool, m := range cfg.Staking.PoolMultiplier {
		if pool == "" {
			return validationf("scoring config: empty pool id")
		}
		floats["staking.pool_multiplier."+pool] = m
	}
	for name, f := range floats {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return validationf("scoring config: %s must be finite", name)
		}
	}
	return nil
}

func decodeConfig(row models.PointsConfigVersion) (models.ScoringConfig, error) {
	var cfg models.ScoringConfig
	if err := json.Unmarshal([]byte(row.Document), &cfg); err != nil {
		return models.ScoringConfig{}, unavailable(err, "decode scoring config")
	}
	cfg.Version = row.ID
	return cfg, nil
}
