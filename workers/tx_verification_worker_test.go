package workers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unibridge-points/models"
	"unibridge-points/services"
)

type stubOracle map[string]TxStatus

func (s stubOracle) FetchStatus(_ context.Context, txID string) (TxStatus, error) {
	status, ok := s[txID]
	if !ok {
		return TxStatus{}, ErrUnknownTx
	}
	if status.Status == "boom" {
		return TxStatus{}, errors.New("oracle down")
	}
	return status, nil
}

func TestTxVerificationWorker_RunOnce(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	for _, tx := range []string{"0xok", "0xfail", "0xwait", "0xunknown", "0xboom"} {
		_, _, err := env.Unibridge.CreateAction(ctx, services.CreateActionRequest{TxID: tx, Wallet: walletA, USDValue: "500"})
		require.NoError(t, err)
	}
	oracle := stubOracle{
		"0xok":   {Status: "success"},
		"0xfail": {Status: "failed"},
		"0xwait": {Status: "pending"},
		"0xboom": {Status: "boom"},
	}
	worker := NewTxVerificationWorker(env.Unibridge, oracle, 0)

	report, err := worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, VerifyReport{Checked: 5, Succeeded: 1, Failed: 1, StillPending: 1, Errors: 2}, report)

	ok, err := env.Unibridge.GetAction(ctx, "0xok")
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusSuccess, ok.Status)
	wait, err := env.Unibridge.GetAction(ctx, "0xwait")
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusPending, wait.Status)

	var credits []models.LedgerEntry
	require.NoError(t, env.DB.Where("category = ?", models.CategoryUnibridgeTx).Find(&credits).Error)
	require.Len(t, credits, 1)
	assert.Equal(t, int64(1030), credits[0].Points)

	// resolved actions drop out of the pending batch
	report, err = worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Zero(t, report.Succeeded)
}

func TestTxVerificationWorker_StopsOnCancel(t *testing.T) {
	env := setupServices(t)
	_, _, err := env.Unibridge.CreateAction(context.Background(), services.CreateActionRequest{TxID: "0xok", Wallet: walletA, USDValue: "1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	worker := NewTxVerificationWorker(env.Unibridge, stubOracle{"0xok": {Status: "success"}}, 10)
	_, err = worker.RunOnce(ctx)
	require.Error(t, err)

	action, err := env.Unibridge.GetAction(context.Background(), "0xok")
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatusPending, action.Status)
}
