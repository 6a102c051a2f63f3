package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOracle(url string) *OracleClient {
	c := NewOracleClient(url, "oracle-token", 1000)
	c.MaxElapsed = 2 * time.Second
	return c
}

func TestOracleClient_FetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer oracle-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/tx/0xabc", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"SUCCESS","usd_value":"500"}`))
	}))
	defer srv.Close()

	status, err := newTestOracle(srv.URL+"/").FetchStatus(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "success", status.Status)
	require.NotNil(t, status.USDValue)
	assert.Equal(t, "500", *status.USDValue)
}

func TestOracleClient_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"failed"}`))
	}))
	defer srv.Close()

	status, err := newTestOracle(srv.URL).FetchStatus(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "failed", status.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOracleClient_PermanentFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/v1/tx/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	client := newTestOracle(srv.URL)

	_, err := client.FetchStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownTx)
	assert.Equal(t, int32(1), calls.Load())

	_, err = client.FetchStatus(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(2), calls.Load())
}
