package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/vire/internal/common"
	"github.com/bobmcallan/vire/internal/optionscan"
)

const (
	DefaultAttemptTimeout = 60 * time.Second
	DefaultTotalDeadline  = 5 * time.Minute
)

// Authenticator mints or refreshes a bearer token for requests whose
// credential has expired. Implementations must be safe for concurrent use.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// staticAuthenticator returns a fixed API key and never refreshes,
// grounded on eodhd.Client's apiKey query-param scheme.
type staticAuthenticator struct {
	key string
}

func (a *staticAuthenticator) Token(context.Context) (string, error)   { return a.key, nil }
func (a *staticAuthenticator) Refresh(context.Context) (string, error) { return a.key, nil }

// Client is the shared HTTP transport for every provider adapter: rate
// limited, retrying, bearer-aware, configured through functional options.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	auth       Authenticator
	policy     Policy
}

// ClientOption configures Client.
type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond) }
}

func WithAttemptTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

func WithAuthenticator(auth Authenticator) ClientOption {
	return func(c *Client) { c.auth = auth }
}

func WithRetryPolicy(p Policy) ClientOption {
	return func(c *Client) { c.policy = p }
}

// NewClient constructs a Client around a static API key, matching
// OptionScanRateLimitConfig's defaults when no options override them.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultAttemptTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 10),
		logger:  common.NewSilentLogger(),
		auth:    &staticAuthenticator{key: apiKey},
		policy: Policy{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			UseExponential: true,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-transient upstream failure.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("optionscan/providers: API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// isTransient classifies *RateLimitError and 5xx *APIError as retryable.
func isTransient(err error) bool {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return false
}

// Get performs one rate-limited, retrying GET and decodes into result. A
// single stale-token retry is attempted on a 401, re-authenticating
// transparently at most once per call.
func (c *Client) Get(ctx context.Context, path string, params url.Values, result interface{}) error {
	reauthed := false
	return Do(ctx, c.policy, isTransient, func() error {
		err := c.doOnce(ctx, path, params, result)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized && !reauthed {
			reauthed = true
			if _, refreshErr := c.auth.Refresh(ctx); refreshErr == nil {
				return c.doOnce(ctx, path, params, result)
			}
		}
		return err
	})
}

func (c *Client) doOnce(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("optionscan/providers: rate limit wait: %w", err)
	}

	token, err := c.auth.Token(ctx)
	if err != nil {
		return fmt.Errorf("optionscan/providers: auth token: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", token)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("optionscan/providers: build request: %w", err)
	}

	c.logger.Debug().Str("path", path).Msg("provider request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("optionscan/providers: execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{Endpoint: path, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: string(body), Endpoint: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: %s: %v", optionscan.ErrDataValidation, path, err)
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		return time.Until(when)
	}
	return 0
}
