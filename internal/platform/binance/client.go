// Package binance implements the authenticated REST adapter for the
// exchange's spot, margin, loan, and dual-investment endpoints. It is the
// only package that knows wire formats and error codes; everything above it
// programs against domain.Exchange.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/alanyoungcy/dualhedge/internal/crypto"
	"github.com/alanyoungcy/dualhedge/internal/domain"
)

// rateLimitKey is the sliding-window bucket shared by all signed calls from
// this process.
const rateLimitKey = "binance:signed"

// Client is the REST client for the exchange API.
type Client struct {
	baseURL    string
	stableCoin string
	auth       *crypto.HMACAuth
	httpClient *http.Client
	limiter    domain.RateLimiter
	log        *slog.Logger

	// mock suppresses every mutating call; reads still hit the live API.
	mock bool

	// rateLimit is the per-minute budget for signed calls. Zero disables
	// limiting.
	rateLimit int

	// filterMu guards the exchange-info filter cache.
	filterMu   sync.Mutex
	filters    map[string]domain.SymbolFilter
	filtersAt  time.Time
	filtersTTL time.Duration
}

// Option configures optional Client behavior.
type Option func(*Client)

// WithRateLimiter installs a limiter applied before every signed request.
func WithRateLimiter(rl domain.RateLimiter, perMinute int) Option {
	return func(c *Client) {
		c.limiter = rl
		c.rateLimit = perMinute
	}
}

// WithMock puts the client in dry-run mode: Subscribe, OpenMarginPosition,
// and BorrowCoins log and return synthetic success without hitting the API.
func WithMock(mock bool) Option {
	return func(c *Client) { c.mock = mock }
}

// WithHTTPClient overrides the underlying HTTP client, used by tests to
// point at an httptest server.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an exchange REST client.
//
// baseURL is the API root, e.g. "https://api.binance.com". stableCoin is the
// quote/invest coin used when querying product listings, e.g. "USDT".
func NewClient(baseURL, stableCoin string, auth *crypto.HMACAuth, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		stableCoin: stableCoin,
		auth:       auth,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log:        logger.With("component", "binance"),
		filters:    make(map[string]domain.SymbolFilter),
		filtersTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ domain.Exchange = (*Client)(nil)

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doPublic issues an unsigned GET against a public endpoint.
func (c *Client) doPublic(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.send(req)
}

// doSigned issues a signed request against a private endpoint. Signed
// requests pass through the rate limiter first so a burst of cycles cannot
// trip the exchange-side ban.
func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if err := c.waitForBudget(ctx); err != nil {
		return nil, err
	}

	query := c.auth.SignQuery(params)

	fullURL := c.baseURL + path + "?" + query
	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.auth.Header() {
		req.Header.Set(k, v)
	}

	return c.send(req)
}

// waitForBudget blocks until the sliding window admits another signed call.
func (c *Client) waitForBudget(ctx context.Context) error {
	if c.limiter == nil || c.rateLimit <= 0 {
		return nil
	}
	for {
		ok, err := c.limiter.Allow(ctx, rateLimitKey, c.rateLimit, time.Minute)
		if err != nil {
			// A broken limiter must not stall trading; log and proceed.
			c.log.Warn("rate limiter unavailable, proceeding", "error", err)
			return nil
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkStatus maps non-2xx responses to domain errors where a sentinel
// exists, preserving the exchange code and message for diagnostics.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("binance: %w: code=%d msg=%q", domain.ErrUnauthorized, apiErr.Code, apiErr.Message)
	case http.StatusTooManyRequests, http.StatusTeapot:
		// 418 is the exchange's auto-ban escalation of 429.
		return fmt.Errorf("binance: %w: code=%d msg=%q", domain.ErrRateLimited, apiErr.Code, apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("binance: %w: code=%d msg=%q", domain.ErrNotFound, apiErr.Code, apiErr.Message)
	default:
		return &APIError{Status: statusCode, Code: apiErr.Code, Message: apiErr.Message}
	}
}

// APIError is a non-2xx exchange response that does not map to a domain
// sentinel. Callers match specific business rejections by Code.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: HTTP %d: code=%d msg=%q", e.Status, e.Code, e.Message)
}

// IsCode reports whether err is an exchange APIError with the given business
// code.
func IsCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
