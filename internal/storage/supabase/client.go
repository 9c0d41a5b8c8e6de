// Package supabase talks to a Supabase project over its REST surfaces:
// PostgREST for habit rows and GoTrue for sign-in.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/julianstephens/habitual/internal/constants"
	"github.com/julianstephens/habitual/internal/logger"
)

type Config struct {
	URL        string
	APIKey     string
	Schema     string
	HTTPClient *http.Client
	// Timeout bounds each request attempt. Zero means DefaultRemoteTimeout.
	Timeout time.Duration
	// RateLimit is requests per second; zero disables limiting.
	RateLimit  float64
	RateBurst  int
	MaxRetries int
}

// Client is a small Supabase REST client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	schema     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retryConfig

	mu          sync.RWMutex
	accessToken string
}

type retryConfig struct {
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
}

// APIError is a non-2xx answer from Supabase.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("supabase error: status %d", e.StatusCode)
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("APIKey is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultRemoteTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		schema:     cfg.Schema,
		httpClient: httpClient,
		retry: retryConfig{
			maxRetries:        cfg.MaxRetries,
			initialBackoff:    100 * time.Millisecond,
			maxBackoff:        5 * time.Second,
			backoffMultiplier: 2.0,
			jitter:            0.1,
		},
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c, nil
}

// BaseURL returns the project URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) APIKey() string { return c.apiKey }

// SetAccessToken makes subsequent requests run as the signed-in user so
// row level security applies. An empty token reverts to the anon key.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.accessToken != "" {
		return c.accessToken
	}
	return c.apiKey
}

type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	headers map[string]string
	token   string
}

type response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

func (r *response) decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// do sends r, retrying throttled and transient failures with exponential
// backoff. Non-2xx statuses come back as *APIError.
func (c *Client) do(ctx context.Context, r request) (*response, error) {
	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	reqURL := c.baseURL + r.path
	if len(r.query) > 0 {
		reqURL += "?" + r.query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			logger.Debug("Retrying Supabase request", "path", r.path, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		resp, err := c.send(ctx, r, reqURL, payload)
		if err != nil {
			lastErr = err
			if isRetryableError(err) {
				continue
			}
			return nil, err
		}

		if resp.StatusCode >= 400 {
			lastErr = parseError(resp)
			if isRetryableStatus(resp.StatusCode) {
				continue
			}
			return nil, lastErr
		}
		return resp, nil
	}
	return nil, lastErr
}

func (c *Client) send(ctx context.Context, r request, reqURL string, payload []byte) (*response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	token := r.token
	if token == "" {
		token = c.bearer()
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.schema != "" && c.schema != "public" && strings.HasPrefix(r.path, "/rest/") {
		req.Header.Set("Accept-Profile", c.schema)
		req.Header.Set("Content-Profile", c.schema)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &response{StatusCode: resp.StatusCode, Body: data, Headers: resp.Header}, nil
}

func (c *Client) backoff(attempt int) time.Duration {
	backoff := float64(c.retry.initialBackoff) * math.Pow(c.retry.backoffMultiplier, float64(attempt-1))
	if backoff > float64(c.retry.maxBackoff) {
		backoff = float64(c.retry.maxBackoff)
	}
	if c.retry.jitter > 0 {
		backoff += backoff * c.retry.jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(backoff)
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func parseError(resp *response) error {
	var body struct {
		Message          string `json:"message"`
		Msg              string `json:"msg"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		for _, m := range []string{body.Message, body.Msg, body.ErrorDescription, body.Error} {
			if m != "" {
				apiErr.Message = m
				break
			}
		}
	}
	return apiErr
}
