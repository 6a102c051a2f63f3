package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexerClient_GetChangedPositions(t *testing.T) {
	var (
		mu     sync.Mutex
		sinces []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/balances", r.URL.Path)
		assert.Equal(t, "svc-token", r.Header.Get("X-Service-Token"))
		mu.Lock()
		sinces = append(sinces, r.URL.Query().Get("since"))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"positions":[{"wallet":"` + walletA + `","pool_id":"90","staked_amount":"10000"}]}`))
	}))
	defer srv.Close()

	client := NewIndexerClient(srv.URL, "svc-token")
	positions, err := client.GetChangedPositions(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "10000", positions[0].StakedAmount)

	since := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	_, err = client.GetChangedPositions(context.Background(), since)
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", "2025-03-14T00:00:00Z"}, sinces)
}

func TestIndexerClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewIndexerClient(srv.URL, "")
	client.MaxElapsed = 2 * time.Second
	_, err := client.GetChangedPositions(context.Background(), time.Time{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStakeSyncWorker_SyncOnce(t *testing.T) {
	env := setupServices(t)
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"positions":[
			{"wallet":"` + walletA + `","pool_id":"90","staked_amount":"10000"},
			{"wallet":"` + walletB + `","pool_id":"30","staked_amount":"5"}]}`))
	}))
	defer srv.Close()

	worker := NewStakeSyncWorker(NewIndexerClient(srv.URL, ""), env.Distributor)
	assert.True(t, worker.LastSync().IsZero())

	n, err := worker.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	synced := worker.LastSync()
	assert.False(t, synced.IsZero())

	positions, err := env.Distributor.Positions(context.Background(), walletA)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "90", positions[0].PoolID)

	fail.Store(true)
	_, err = worker.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, synced, worker.LastSync(), "failed sync keeps the window")
}
