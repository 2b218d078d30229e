package meta

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

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"leadflow/config"
)

// RetryPolicy controls the backoff loop for transient failures
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultRetryPolicy matches the platform's recommended pacing
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     5 * time.Second,
	}
}

// Delay returns the backoff before retry attempt n (0-based)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.InitialDelay)
	for i := 0; i < attempt; i++ {
		d *= p.Multiplier
	}
	if time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Client calls the ads platform's HTTP API with rate limiting and
// synchronous retry on transient failures.
type Client struct {
	BaseURL     string
	AccessToken string
	Retry       RetryPolicy

	httpClient *http.Client
	limiter    *rate.Limiter

	// sleep is swappable so tests can record the backoff schedule
	sleep func(time.Duration)
}

// NewClient builds a client from the loaded app configuration
func NewClient(cfg config.MetaConfig) *Client {
	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 10
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		AccessToken: cfg.AccessToken,
		Retry:       DefaultRetryPolicy(),
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), rps),
		sleep:       time.Sleep,
	}
}

// SetTransport injects a transport (tests use httptest servers through this)
func (c *Client) SetTransport(t http.RoundTripper) {
	c.httpClient.Transport = t
}

// SetSleep overrides the backoff sleeper
func (c *Client) SetSleep(fn func(time.Duration)) {
	c.sleep = fn
}

// Get performs a GET against path, decoding the JSON response into out.
// Transient failures (connection errors, throttling, the platform's
// temporary error codes) are retried with exponential backoff; everything
// else surfaces immediately with the platform's code and message attached.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := c.Retry.Delay(attempt - 1)
			logrus.WithFields(logrus.Fields{
				"path":    path,
				"attempt": attempt,
				"delay":   delay.String(),
				"error":   lastErr.Error(),
			}).Warn("Retrying platform call")
			c.sleep(delay)
		}

		err := c.doOnce(ctx, path, query, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt >= c.Retry.MaxRetries {
			return fmt.Errorf("giving up after %d retries: %w", c.Retry.MaxRetries, lastErr)
		}
	}
}

func (c *Client) doOnce(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("access_token", c.AccessToken)

	fullURL := c.BaseURL + "/" + strings.TrimPrefix(path, "/") + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// connection resets, timeouts, DNS failures
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func parseAPIError(status int, body []byte) error {
	var envelope struct {
		Error APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Message == "" {
		return &APIError{
			Message:    strings.TrimSpace(string(body)),
			Type:       "HTTPError",
			HTTPStatus: status,
		}
	}
	envelope.Error.HTTPStatus = status
	return &envelope.Error
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Retryable()
	}
	// Anything that never produced a platform response is a network-level
	// failure; retry those.
	return true
}
