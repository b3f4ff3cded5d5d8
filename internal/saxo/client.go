// Package saxo implements a REST client for the Saxo Bank OpenAPI, covering
// the chart and reference data endpoints the ingestion pipeline pulls from.
package saxo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Polymerase3/elpis-v2/internal/config"
	"github.com/Polymerase3/elpis-v2/internal/logger"
	"github.com/Polymerase3/elpis-v2/internal/metrics"
)

// Venue endpoint paths, relative to the configured API base URL
const (
	chartEndpoint       = "chart/v1/charts"
	instrumentsEndpoint = "ref/v1/instruments"
)

// Client is a rate-limited, retrying Saxo OpenAPI client. Access tokens are
// swappable at runtime since they expire every 24 hours.
type Client struct {
	httpClient *retryablehttp.Client
	limiter    *rate.Limiter
	baseURL    string
	accountKey string
	pageSize   int
	logger     *logger.VenueLogger

	mu    sync.RWMutex
	token string
}

// NewClient creates a new Saxo OpenAPI client
func NewClient(cfg *config.SaxoConfig, baseLogger *logrus.Logger) *Client {
	if baseLogger == nil {
		baseLogger = logrus.New()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Timeout = cfg.RequestTimeout()
	retryClient.RetryMax = cfg.RetryAttempts
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.CheckRetry = retryPolicy()
	retryClient.Logger = nil

	return &Client{
		httpClient: retryClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst),
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		accountKey: cfg.AccountKey,
		pageSize:   cfg.PageSize,
		token:      cfg.Token,
		logger:     logger.NewVenueLogger(baseLogger),
	}
}

// SetToken replaces the access token used for subsequent requests
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current access token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// PageSize returns the configured rows-per-request limit
func (c *Client) PageSize() int {
	return c.pageSize
}

// get performs an authenticated GET against the venue API and decodes the
// JSON response into out
func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	if wait := time.Since(waitStart); wait > 50*time.Millisecond {
		c.logger.LogRateLimitWait(endpoint, float64(wait.Milliseconds()))
	}

	reqURL := c.baseURL + "/" + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token())
	req.Header.Set("Accept", "application/json")

	rreq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return fmt.Errorf("failed to wrap request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(rreq)
	duration := time.Since(start)
	if err != nil {
		metrics.RecordVenueRequest(endpoint, "error", duration.Seconds())
		c.logger.LogRequestError(endpoint, err.Error())
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.RecordVenueRequest(endpoint, strconv.Itoa(resp.StatusCode), duration.Seconds())

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := mapStatusError(resp.StatusCode, endpoint, strings.TrimSpace(string(body)))
		c.logger.LogRequestError(endpoint, statusErr.Error())
		return statusErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Close releases idle connections held by the client
func (c *Client) Close() error {
	c.httpClient.HTTPClient.CloseIdleConnections()
	return nil
}

// retryPolicy defines which HTTP responses should trigger a retry
func retryPolicy() retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			// Retry on network errors
			return true, err
		}

		// Retry on rate limit (429) and server errors
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			return true, nil
		}

		// Don't retry on client errors (4xx) except 429
		return false, nil
	}
}
