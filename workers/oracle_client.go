package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"unibridge-points/metrics"
)

// ErrUnknownTx is returned when the oracle has never seen a transaction.
var ErrUnknownTx = errors.New("transaction unknown to status oracle")

// TxStatus is the oracle's view of one transaction. Status is one of
// pending, success or failed.
type TxStatus struct {
	Status   string  `json:"status"`
	USDValue *string `json:"usd_value,omitempty"`
}

// StatusOracle reports whether a bridge/swap transaction succeeded.
type StatusOracle interface {
	FetchStatus(ctx context.Context, txID string) (TxStatus, error)
}

// OracleClient calls the transaction status oracle over HTTP. Calls are
// rate limited and transient failures are retried with exponential backoff.
type OracleClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	MaxElapsed time.Duration
}

func NewOracleClient(baseURL, token string, ratePerSec float64) *OracleClient {
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &OracleClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		MaxElapsed: 30 * time.Second,
	}
}

func (c *OracleClient) FetchStatus(ctx context.Context, txID string) (TxStatus, error) {
	var out TxStatus
	endpoint := fmt.Sprintf("%s/v1/tx/%s", c.BaseURL, url.PathEscape(txID))

	op := func() error {
		if err := c.Limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to call status oracle: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode oracle response: %w", err))
			}
			out.Status = strings.ToLower(strings.TrimSpace(out.Status))
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(ErrUnknownTx)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("status oracle returned %d: %s", resp.StatusCode, string(body))
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return backoff.Permanent(fmt.Errorf("status oracle returned %d: %s", resp.StatusCode, string(body)))
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = c.MaxElapsed
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		metrics.OracleCalls.WithLabelValues("error").Inc()
		return TxStatus{}, err
	}
	metrics.OracleCalls.WithLabelValues(out.Status).Inc()
	return out, nil
}
