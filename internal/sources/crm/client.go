package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mkoziy/contratos/crmsync/internal/ratelimit"
)

// ErrUnauthorized is returned when the CRM rejects the API token.
var ErrUnauthorized = errors.New("crm: unauthorized")

// StatusError is a non-success answer from the CRM.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("crm: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Config points the client at a CRM installation.
type Config struct {
	BaseURL string        `mapstructure:"base_url" validate:"omitempty,url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Client calls the CRM sales API.
type Client struct {
	httpClient *http.Client
	limiter    ratelimit.Limiter
	baseURL    string
	token      string
	maxRetries int
}

// NewClient creates a CRM client paced by limiter that retries a failed
// call at most maxRetries times.
func NewClient(cfg Config, limiter ratelimit.Limiter, maxRetries int) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		maxRetries: maxRetries,
	}
}

// ListSales fetches one page of sales dated within [from, to]. Page numbers
// start at 1.
func (c *Client) ListSales(ctx context.Context, from, to string, page int) (*SalesPage, error) {
	params := url.Values{}
	params.Set("fecha_desde", from)
	params.Set("fecha_hasta", to)
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}

	body, err := c.get(ctx, "/ventas?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return decodeSalesPage(body)
}

// get performs a GET with retries on 429, 5xx and transport errors.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, retryAfter, err := c.do(ctx, path)
		if err == nil {
			return body, nil
		}
		if !retryable(err) || !ratelimit.ShouldRetry(attempt+1, c.maxRetries) || ctx.Err() != nil {
			return nil, err
		}

		wait := c.limiter.RetryAfter(attempt + 1)
		if retryAfter > wait {
			wait = retryAfter
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) do(ctx context.Context, path string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, 0, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, 0, ErrUnauthorized
	default:
		retryAfter := ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return nil, retryAfter, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}
}

func retryable(err error) bool {
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	return true
}

func decodeSalesPage(body []byte) (*SalesPage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &SalesPage{Data: items}, nil
	}

	var page SalesPage
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &page, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
