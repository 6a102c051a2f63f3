package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"unibridge-points/logging"
	"unibridge-points/services"
)

// BalanceIndexer reports stake balances that changed since a point in time.
type BalanceIndexer interface {
	GetChangedPositions(ctx context.Context, since time.Time) ([]services.PositionUpdate, error)
}

// IndexerClient reads the balance indexer over HTTP.
type IndexerClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	MaxElapsed time.Duration
}

func NewIndexerClient(baseURL, token string) *IndexerClient {
	return &IndexerClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		MaxElapsed: time.Minute,
	}
}

func (c *IndexerClient) GetChangedPositions(ctx context.Context, since time.Time) ([]services.PositionUpdate, error) {
	u, err := url.Parse(c.BaseURL + "/v1/balances")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	if !since.IsZero() {
		q := u.Query()
		q.Set("since", since.UTC().Format(time.RFC3339))
		u.RawQuery = q.Encode()
	}

	var response struct {
		Positions []services.PositionUpdate `json:"positions"`
	}
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if c.Token != "" {
			req.Header.Set("X-Service-Token", c.Token)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to call balance indexer: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			err := fmt.Errorf("balance indexer returned status %d: %s", resp.StatusCode, string(body))
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode balance indexer response: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.MaxElapsed
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return response.Positions, nil
}

// StakeSyncWorker mirrors indexer balances into stake_positions. The first
// sync asks for everything; later ones only for changes since the last
// successful sync.
type StakeSyncWorker struct {
	Indexer     BalanceIndexer
	Distributor *services.StakingDistributor

	mu       sync.Mutex
	lastSync time.Time
}

func NewStakeSyncWorker(indexer BalanceIndexer, distributor *services.StakingDistributor) *StakeSyncWorker {
	return &StakeSyncWorker{Indexer: indexer, Distributor: distributor}
}

// SyncOnce fetches and stores one batch of changes. On failure the window is
// kept, so the next call asks for the same changes again.
func (w *StakeSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	logTime := time.Now().UTC()
	updates, err := w.Indexer.GetChangedPositions(ctx, w.lastSync)
	if err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		w.lastSync = logTime
		return 0, nil
	}

	n, err := w.Distributor.UpsertPositions(ctx, updates)
	if err != nil {
		return 0, err
	}
	w.lastSync = logTime
	logging.Logger.Info("[SYNC] stake positions upserted", zap.Int("count", n))
	return n, nil
}

// LastSync is the start time of the last successful sync.
func (w *StakeSyncWorker) LastSync() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSync
}

// Job adapts SyncOnce to the scheduler.
func (w *StakeSyncWorker) Job() services.Job {
	return func(ctx context.Context) {
		if _, err := w.SyncOnce(ctx); err != nil {
			logging.Logger.Error("[SYNC] stake balance sync failed", zap.Error(err))
		}
	}
}
