package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"sync"
	"time"
)

const userAgent = "Voice-transcript/1.0"

// ClientConfig contains pooled HTTP client configuration
type ClientConfig struct {
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// callSettings override the client's timeout and retry count for one call
type callSettings struct {
	Timeout    time.Duration // per attempt; zero keeps the client default
	MaxRetries int
}

type callSettingsKey struct{}

// withCallSettings attaches per-call transport settings to ctx
func withCallSettings(ctx context.Context, s callSettings) context.Context {
	return context.WithValue(ctx, callSettingsKey{}, s)
}

// JSONClient posts JSON requests to provider endpoints with a concurrency
// limit and optional retries
type JSONClient struct {
	config     ClientConfig
	httpClient *http.Client
	semaphore  chan struct{}

	// backoff returns the wait before retry attempt n (n >= 1)
	backoff func(attempt int) time.Duration
	onRetry func()

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// NewJSONClient creates a pooled JSON client
func NewJSONClient(config ClientConfig) *JSONClient {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 8
	}

	return &JSONClient{
		config: config,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		semaphore: make(chan struct{}, config.MaxConcurrent),
		backoff:   exponentialBackoff,
	}
}

// HTTPClient returns the underlying pooled client for SDKs that accept one
func (c *JSONClient) HTTPClient() *http.Client {
	return c.httpClient
}

// PostJSON sends body as JSON with bearer auth and decodes the response into out
func (c *JSONClient) PostJSON(ctx context.Context, url, apiKey string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	settings := c.settings(ctx)

	var lastErr error
	for attempt := 0; attempt <= settings.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()
			if c.onRetry != nil {
				c.onRetry()
			}

			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				c.incrementFailedRequests()
				return ctx.Err()
			}
		}

		err := c.doRequest(ctx, settings.Timeout, url, apiKey, payload, out)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return nil
		}

		lastErr = err
		if ctx.Err() != nil || !isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	if settings.MaxRetries > 0 {
		return fmt.Errorf("request failed after %d attempts: %w", settings.MaxRetries+1, lastErr)
	}
	return lastErr
}

// settings returns the per-call settings from ctx, falling back to the
// client config
func (c *JSONClient) settings(ctx context.Context) callSettings {
	s, ok := ctx.Value(callSettingsKey{}).(callSettings)
	if !ok {
		return callSettings{Timeout: c.config.Timeout, MaxRetries: c.config.MaxRetries}
	}
	if s.Timeout <= 0 {
		s.Timeout = c.config.Timeout
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	return s
}

// doRequest performs a single HTTP request bounded by timeout
func (c *JSONClient) doRequest(ctx context.Context, timeout time.Duration, url, apiKey string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return nil
}

// isRetryableError reports 429, 5xx and transport timeouts as retryable
func isRetryableError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Dial and connection failures
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func exponentialBackoff(attempt int) time.Duration {
	wait := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
	if wait > 30*time.Second {
		wait = 30 * time.Second
	}
	return wait
}

// Statistics methods
func (c *JSONClient) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *JSONClient) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *JSONClient) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *JSONClient) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *JSONClient) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *JSONClient) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for in-flight requests and releases idle connections
func (c *JSONClient) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	c.httpClient.CloseIdleConnections()
	return nil
}
