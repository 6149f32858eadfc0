// Package client is the outbound OCPI HTTP client used during the
// credentials handshake to probe a counterparty's versions endpoints. Calls
// run through a circuit breaker so a flapping counterparty does not burn
// goroutines on every re-registration attempt.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/emobix/ocpi-node/internal/domain"
	"github.com/emobix/ocpi-node/internal/ocpi"
	"github.com/emobix/ocpi-node/internal/ports"
)

type HTTPClient struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *zap.Logger
}

func NewHTTPClient(timeout time.Duration, log *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ocpi-outbound",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Outbound circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		breaker:    cb,
		log:        log,
	}
}

var _ ports.VersionsClient = (*HTTPClient)(nil)

func (c *HTTPClient) GetVersions(ctx context.Context, versionsURL, accessToken string) ([]domain.VersionInformation, error) {
	var out []domain.VersionInformation
	if err := c.getJSON(ctx, versionsURL, accessToken, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetVersionDetails(ctx context.Context, detailsURL, accessToken string) (*domain.VersionDetails, error) {
	var out domain.VersionDetails
	if err := c.getJSON(ctx, detailsURL, accessToken, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// getJSON performs an authenticated GET and unwraps the OCPI envelope into
// target.
func (c *HTTPClient) getJSON(ctx context.Context, url, accessToken string, target any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
		}
		req.Header.Set("Authorization", "Token "+base64.StdEncoding.EncodeToString([]byte(accessToken)))
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request to %s failed: %w", url, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
		if err != nil {
			return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s returned HTTP %d", url, resp.StatusCode)
		}

		var envelope struct {
			Data          json.RawMessage `json:"data"`
			StatusCode    int             `json:"status_code"`
			StatusMessage string          `json:"status_message"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("failed to decode response from %s: %w", url, err)
		}
		if envelope.StatusCode != ocpi.StatusSuccess {
			return nil, fmt.Errorf("%s returned OCPI status %d: %s", url, envelope.StatusCode, envelope.StatusMessage)
		}
		if err := json.Unmarshal(envelope.Data, target); err != nil {
			return nil, fmt.Errorf("failed to decode payload from %s: %w", url, err)
		}
		return nil, nil
	})
	return err
}
