package workers

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"unibridge-points/logging"
	"unibridge-points/models"
	"unibridge-points/services"
)

// TxVerificationWorker resolves pending unibridge actions by asking the
// status oracle. No database work is held open across an oracle call.
type TxVerificationWorker struct {
	Actions   *services.UnibridgeService
	Oracle    StatusOracle
	BatchSize int
}

func NewTxVerificationWorker(actions *services.UnibridgeService, oracle StatusOracle, batchSize int) *TxVerificationWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &TxVerificationWorker{Actions: actions, Oracle: oracle, BatchSize: batchSize}
}

// VerifyReport summarizes one batch.
type VerifyReport struct {
	Checked      int `json:"checked"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	StillPending int `json:"still_pending"`
	Errors       int `json:"errors"`
}

// RunOnce pulls one batch of pending actions and resolves what the oracle
// has settled. A cancelled ctx stops the batch between actions.
func (w *TxVerificationWorker) RunOnce(ctx context.Context) (VerifyReport, error) {
	var report VerifyReport
	pending, err := w.Actions.PendingActions(ctx, w.BatchSize)
	if err != nil {
		return report, err
	}

	for _, action := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		status, err := w.Oracle.FetchStatus(ctx, action.TxID)
		if err != nil {
			report.Errors++
			if !errors.Is(err, ErrUnknownTx) {
				logging.Logger.Warn("[VERIFY] oracle lookup failed",
					zap.String("tx_id", action.TxID), zap.Error(err))
			}
			continue
		}

		switch status.Status {
		case "success", "failed":
		default:
			report.StillPending++
			continue
		}

		res, err := w.Actions.ResolveStatus(ctx, services.ResolveRequest{
			TxID:     action.TxID,
			Status:   status.Status,
			USDValue: status.USDValue,
		})
		if err != nil {
			report.Errors++
			logging.Logger.Error("[VERIFY] resolve failed",
				zap.String("tx_id", action.TxID), zap.Error(err))
			continue
		}
		if res.Action.Status == models.ActionStatusFailed {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}

	logging.Logger.Info("[VERIFY] batch done",
		zap.Int("checked", report.Checked),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("pending", report.StillPending),
		zap.Int("errors", report.Errors))
	return report, nil
}

// Job adapts RunOnce to the scheduler.
func (w *TxVerificationWorker) Job() services.Job {
	return func(ctx context.Context) {
		if _, err := w.RunOnce(ctx); err != nil {
			logging.Logger.Error("[VERIFY] batch aborted", zap.Error(err))
		}
	}
}
