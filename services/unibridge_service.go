package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"unibridge-points/logging"
	"unibridge-points/models"
	"unibridge-points/scoring"
	"unibridge-points/utils"
)

const DefaultActionListLimit = 10

// UnibridgeService registers bridge/swap actions and credits them once the
// status oracle reports the outcome.
type UnibridgeService struct {
	DB     *gorm.DB
	Ledger *LedgerStore
	Points *PointsService
	Config *ConfigProvider
}

func NewUnibridgeService(db *gorm.DB, ledger *LedgerStore, points *PointsService, cfg *ConfigProvider) *UnibridgeService {
	return &UnibridgeService{DB: db, Ledger: ledger, Points: points, Config: cfg}
}

// CreateActionRequest is a widget-reported bridge or swap.
type CreateActionRequest struct {
	TxID         string            `json:"tx_id" validate:"required,max=128"`
	Wallet       string            `json:"wallet" validate:"required"`
	ActionType   string            `json:"action_type" validate:"omitempty,max=32"`
	USDValue     string            `json:"usd_value"`
	ReferrerCode string            `json:"referrer_code"`
	Metadata     map[string]string `json:"metadata"`
}

// CreateAction stores a pending action. Re-registering the same tx id for
// the same wallet returns the stored row; for another wallet it conflicts.
func (s *UnibridgeService) CreateAction(ctx context.Context, req CreateActionRequest) (models.UnibridgeAction, bool, error) {
	txID := strings.TrimSpace(req.TxID)
	if txID == "" {
		return models.UnibridgeAction{}, false, validationf("tx_id is required")
	}
	wallet, ok := utils.NormalizeWallet(req.Wallet)
	if !ok {
		return models.UnibridgeAction{}, false, validationf("invalid wallet %q", req.Wallet)
	}
	usd, err := scoring.ParseAmount(req.USDValue)
	if err != nil {
		return models.UnibridgeAction{}, false, validationf("usd_value: %v", err)
	}
	actionType := strings.TrimSpace(req.ActionType)
	if actionType == "" {
		actionType = "unibridge"
	}

	cfg, err := s.Config.Current(ctx)
	if err != nil {
		return models.UnibridgeAction{}, false, err
	}
	if _, err := s.Points.TouchProfile(ctx, wallet, req.ReferrerCode, cfg); err != nil {
		return models.UnibridgeAction{}, false, err
	}

	action := models.UnibridgeAction{
		TxID:       txID,
		Wallet:     wallet,
		ActionType: actionType,
		USDValue:   scoring.FormatAmount(usd),
		Status:     models.ActionStatusPending,
		Metadata:   req.Metadata,
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tx_id"}}, DoNothing: true}).
		Create(&action)
	if res.Error != nil {
		return models.UnibridgeAction{}, false, unavailable(res.Error, "create unibridge action")
	}
	if res.RowsAffected == 1 {
		logging.Logger.Info("[UNIBRIDGE] action registered",
			zap.String("tx_id", txID),
			zap.String("wallet", wallet),
			zap.String("usd_value", action.USDValue))
		return action, true, nil
	}

	existing, err := s.GetAction(ctx, txID)
	if err != nil {
		return existing, false, err
	}
	if existing.Wallet != wallet {
		return existing, false, conflictf("tx %s is registered to another wallet", txID)
	}
	return existing, false, nil
}

// GetAction loads one action by tx id.
func (s *UnibridgeService) GetAction(ctx context.Context, txID string) (models.UnibridgeAction, error) {
	var action models.UnibridgeAction
	err := s.DB.WithContext(ctx).Where("tx_id = ?", txID).First(&action).Error
	if err == gorm.ErrRecordNotFound {
		return action, notFoundf("unibridge action %s", txID)
	}
	if err != nil {
		return action, unavailable(err, "load unibridge action")
	}
	return action, nil
}

// ResolveRequest is a status report from the oracle. USDValue, when set,
// replaces the value recorded at creation.
type ResolveRequest struct {
	TxID     string  `json:"tx_id"`
	Status   string  `json:"status" validate:"required,oneof=success failed"`
	USDValue *string `json:"usd_value"`
}

// ResolveResult describes what a resolution did.
type ResolveResult struct {
	Action     models.UnibridgeAction `json:"action"`
	Credit     *AppendResult          `json:"credit,omitempty"`
	Commission *AppendResult          `json:"commission,omitempty"`
	Replayed   bool                   `json:"replayed"`
}

// ResolveStatus finalizes a pending action. A repeat report with the same
// outcome is a successful no-op; a contradicting one is a conflict.
func (s *UnibridgeService) ResolveStatus(ctx context.Context, req ResolveRequest) (ResolveResult, error) {
	var target models.ActionStatus
	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "success":
		target = models.ActionStatusSuccess
	case "failed":
		target = models.ActionStatusFailed
	default:
		return ResolveResult{}, validationf("status must be success or failed, got %q", req.Status)
	}

	action, err := s.GetAction(ctx, strings.TrimSpace(req.TxID))
	if err != nil {
		return ResolveResult{}, err
	}

	usdRaw := action.USDValue
	if req.USDValue != nil {
		usdRaw = *req.USDValue
	}
	usd, err := scoring.ParseAmount(usdRaw)
	if err != nil {
		return ResolveResult{}, validationf("usd_value: %v", err)
	}

	if action.Status.Final() {
		return s.replay(ctx, action, target)
	}

	if target == models.ActionStatusFailed {
		return s.finalize(ctx, action, models.ActionStatusFailed, "")
	}

	cfg, err := s.Config.Current(ctx)
	if err != nil {
		return ResolveResult{}, err
	}

	// a credit without a final status means an earlier resolution stopped
	// between the append and finalize; finish that one instead of re-limiting
	existing, err := s.Ledger.FindByKey(ctx, action.Wallet, action.TxID)
	switch {
	case err == nil:
		return s.resume(ctx, action, existing, cfg, usd)
	case !errors.Is(err, ErrNotFound):
		return ResolveResult{}, err
	}

	counted, capped, err := s.applyDailyLimits(ctx, action.Wallet, usd, cfg.Unibridge)
	if err != nil {
		return ResolveResult{}, err
	}
	if capped {
		logging.Logger.Info("[UNIBRIDGE] daily limit reached, no credit",
			zap.String("tx_id", action.TxID),
			zap.String("wallet", action.Wallet))
		return s.finalize(ctx, action, models.ActionStatusCapped, scoring.FormatAmount(usd))
	}

	points, err := scoring.UnibridgePoints(counted, cfg.Unibridge)
	if err != nil {
		return ResolveResult{}, validationf("unibridge points: %v", err)
	}
	countedStr := scoring.FormatAmount(counted)
	credit, err := s.Ledger.Append(ctx, models.LedgerEntry{
		Wallet:         action.Wallet,
		Category:       models.CategoryUnibridgeTx,
		Points:         points,
		IdempotencyKey: action.TxID,
		USDValue:       &countedStr,
		Metadata: map[string]string{
			"action_type":       action.ActionType,
			"reported_usd":      scoring.FormatAmount(usd),
			"config_version":    strconv.FormatUint(cfg.Version, 10),
			"volume_multiplier": strconv.FormatFloat(cfg.Unibridge.VolumeMultiplier, 'f', -1, 64),
		},
	})
	if err != nil {
		return ResolveResult{}, err
	}
	commission, err := s.Points.Referrals.OnCredit(ctx, credit.Entry, cfg)
	if err != nil {
		return ResolveResult{}, err
	}

	result, err := s.finalize(ctx, action, models.ActionStatusSuccess, scoring.FormatAmount(usd))
	if err != nil {
		return result, err
	}
	result.Credit = &credit
	result.Commission = commission
	return result, nil
}

// resume settles the commission for a credit written by an interrupted
// resolution and marks the action successful.
func (s *UnibridgeService) resume(ctx context.Context, action models.UnibridgeAction, credit models.LedgerEntry, cfg models.ScoringConfig, usd *apd.Decimal) (ResolveResult, error) {
	logging.Logger.Info("[UNIBRIDGE] resuming resolution from existing credit",
		zap.String("tx_id", action.TxID),
		zap.Uint64("entry_id", credit.ID))
	commission, err := s.Points.Referrals.OnCredit(ctx, credit, cfg)
	if err != nil {
		return ResolveResult{}, err
	}
	result, err := s.finalize(ctx, action, models.ActionStatusSuccess, scoring.FormatAmount(usd))
	if err != nil {
		return result, err
	}
	result.Credit = &AppendResult{Duplicate: true, Entry: credit}
	result.Commission = commission
	return result, nil
}

// applyDailyLimits returns the usd amount that may still count today for
// wallet, and true when the action must end capped.
func (s *UnibridgeService) applyDailyLimits(ctx context.Context, wallet string, usd *apd.Decimal, cfg models.UnibridgeConfig) (*apd.Decimal, bool, error) {
	dayStart := time.Now().UTC().Truncate(24 * time.Hour)

	if cfg.MaxTxPerDay > 0 {
		n, err := s.Ledger.CountSince(ctx, wallet, models.CategoryUnibridgeTx, dayStart)
		if err != nil {
			return nil, false, err
		}
		if n >= cfg.MaxTxPerDay {
			return nil, true, nil
		}
	}

	if cfg.MaxUSDVolumePerDay > 0 {
		used, err := s.Ledger.USDVolumeSince(ctx, wallet, dayStart)
		if err != nil {
			return nil, false, err
		}
		limit, err := scoring.AmountFromFloat(cfg.MaxUSDVolumePerDay)
		if err != nil {
			return nil, false, validationf("max_usd_volume_per_day: %v", err)
		}
		clipped, ok, err := scoring.ClipAmount(usd, used, limit)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, true, nil
		}
		return clipped, false, nil
	}
	return usd, false, nil
}

// finalize moves a pending action to status. If another resolver won the
// race the stored row is returned through replay.
func (s *UnibridgeService) finalize(ctx context.Context, action models.UnibridgeAction, status models.ActionStatus, usd string) (ResolveResult, error) {
	now := time.Now().UTC()
	updates := map[string]any{"status": status, "resolved_at": now}
	if usd != "" {
		updates["usd_value"] = usd
	}
	res := s.DB.WithContext(ctx).
		Model(&models.UnibridgeAction{}).
		Where("tx_id = ? AND status = ?", action.TxID, models.ActionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return ResolveResult{}, unavailable(res.Error, "resolve unibridge action")
	}
	if res.RowsAffected == 0 {
		stored, err := s.GetAction(ctx, action.TxID)
		if err != nil {
			return ResolveResult{}, err
		}
		return s.replay(ctx, stored, status)
	}

	action.Status = status
	action.ResolvedAt = &now
	if usd != "" {
		action.USDValue = usd
	}
	logging.Logger.Info("[UNIBRIDGE] action resolved",
		zap.String("tx_id", action.TxID),
		zap.String("status", string(status)))
	return ResolveResult{Action: action}, nil
}

// replay handles a report for an action that is already final. For
// succeeded actions it also settles a commission an interrupted earlier
// call may have left unpaid.
func (s *UnibridgeService) replay(ctx context.Context, action models.UnibridgeAction, target models.ActionStatus) (ResolveResult, error) {
	result := ResolveResult{Action: action, Replayed: true}
	succeeded := action.Status == models.ActionStatusSuccess || action.Status == models.ActionStatusCapped
	wantSuccess := target == models.ActionStatusSuccess || target == models.ActionStatusCapped
	if succeeded != wantSuccess {
		return result, conflictf("tx %s already resolved as %s", action.TxID, action.Status)
	}
	if action.Status != models.ActionStatusSuccess {
		return result, nil
	}

	entry, err := s.Ledger.FindByKey(ctx, action.Wallet, action.TxID)
	if err != nil {
		return result, err
	}
	result.Credit = &AppendResult{Duplicate: true, Entry: entry}
	cfg, err := s.Config.Current(ctx)
	if err != nil {
		return result, err
	}
	commission, err := s.Points.Referrals.OnCredit(ctx, entry, cfg)
	if err != nil {
		return result, err
	}
	result.Commission = commission
	return result, nil
}

// ListActions returns wallet's newest actions.
func (s *UnibridgeService) ListActions(ctx context.Context, walletRaw string, limit int) ([]models.UnibridgeAction, error) {
	wallet, ok := utils.NormalizeWallet(walletRaw)
	if !ok {
		return nil, validationf("invalid wallet %q", walletRaw)
	}
	var actions []models.UnibridgeAction
	err := s.DB.WithContext(ctx).
		Where("wallet = ?", wallet).
		Order("created_at DESC").
		Limit(ClampLimit(limit, DefaultActionListLimit, MaxHistoryLimit)).
		Find(&actions).Error
	if err != nil {
		return nil, unavailable(err, "list unibridge actions")
	}
	return actions, nil
}

// PendingActions returns up to limit unresolved actions, oldest first.
func (s *UnibridgeService) PendingActions(ctx context.Context, limit int) ([]models.UnibridgeAction, error) {
	var actions []models.UnibridgeAction
	err := s.DB.WithContext(ctx).
		Where("status = ?", models.ActionStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&actions).Error
	if err != nil {
		return nil, unavailable(err, "list pending actions")
	}
	return actions, nil
}
