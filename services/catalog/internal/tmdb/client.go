package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/title-ratings/services/catalog/internal/store"
)

const defaultBaseURL = "https://api.themoviedb.org/3"

// ClientConfig holds configurable settings for the TMDB client.
type ClientConfig struct {
	APIKey         string
	Language       string
	Timeout        time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	// MaxRetryWait caps how long a Retry-After answer may delay the next
	// attempt. Longer advertised waits fail fast with ErrRateLimited.
	MaxRetryWait time.Duration
}

// Observer receives one call per finished request attempt.
type Observer interface {
	ObserveExternalRequest(kind store.Kind, outcome string)
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Config     ClientConfig
	CB         *gobreaker.CircuitBreaker
	Limiter    *rate.Limiter
	Log        *zap.Logger
	Observer   Observer
}

// Option configures the Client.
type Option func(*Client)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.CB = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.Log = log
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithRateLimit caps outbound requests per second. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.Limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.Observer = o }
}

// NewBreaker builds the breaker the client uses in production. Upstream
// NotFound and Malformed answers do not count as failures.
func NewBreaker(name string, maxRequests uint32, interval, timeout time.Duration, failureThreshold uint32) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !Retryable(err)
		},
	})
}

func New(baseURL string, cfg ClientConfig, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 300 * time.Millisecond
	}
	if cfg.MaxRetryWait <= 0 {
		cfg.MaxRetryWait = 2 * time.Second
	}
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{},
		Config:     cfg,
		Log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Search runs a title search when FreeText is set, otherwise a genre
// discover. A query with neither returns no items without calling upstream.
func (c *Client) Search(ctx context.Context, q Query) ([]Item, error) {
	params := url.Values{}
	var path string
	switch {
	case strings.TrimSpace(q.FreeText) != "":
		path = "/search/" + endpointKind(q.Kind)
		params.Set("query", strings.TrimSpace(q.FreeText))
	case q.Genre > 0:
		path = "/discover/" + endpointKind(q.Kind)
		params.Set("with_genres", strconv.Itoa(q.Genre))
		params.Set("sort_by", "popularity.desc")
	default:
		return []Item{}, nil
	}
	if q.Page > 1 {
		params.Set("page", strconv.Itoa(q.Page))
	}

	body, err := doWithBreaker(ctx, c, q.Kind, path, params)
	if err != nil {
		return nil, err
	}
	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode list: %v", ErrMalformed, err)
	}

	items := make([]Item, 0, len(resp.Results))
	for _, raw := range resp.Results {
		it, err := decodeItem(q.Kind, raw)
		if err != nil {
			c.Log.Debug("dropping malformed item", zap.String("kind", string(q.Kind)), zap.Error(err))
			continue
		}
		// Search endpoints do not filter by genre upstream.
		if q.Genre > 0 && strings.TrimSpace(q.FreeText) != "" && !slices.Contains(it.GenreTags, q.Genre) {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// Get fetches one item by its namespaced external id.
func (c *Client) Get(ctx context.Context, kind store.Kind, externalID string) (Item, error) {
	id, err := ProviderID(kind, externalID)
	if err != nil {
		return Item{}, err
	}
	path := "/" + endpointKind(kind) + "/" + strconv.FormatInt(id, 10)
	body, err := doWithBreaker(ctx, c, kind, path, url.Values{})
	if err != nil {
		return Item{}, err
	}
	return decodeItem(kind, body)
}

// endpointKind maps a content kind to the upstream path segment. Kids
// content is served by the movie endpoints.
func endpointKind(k store.Kind) string {
	if k == store.KindTVShow {
		return "tv"
	}
	return "movie"
}

func doWithBreaker(ctx context.Context, c *Client, kind store.Kind, path string, params url.Values) ([]byte, error) {
	if c.CB == nil {
		return doWithRetry(ctx, c, kind, path, params)
	}
	result, err := c.CB.Execute(func() (interface{}, error) {
		return doWithRetry(ctx, c, kind, path, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.observe(kind, "breaker_open")
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

func doWithRetry(ctx context.Context, c *Client, kind store.Kind, path string, params url.Values) ([]byte, error) {
	var lastErr error
	var wait time.Duration
	for attempt := 0; attempt <= c.Config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.Config.RetryBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			delay = max(delay, wait)
			c.Log.Debug("retrying request", zap.String("path", path), zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(delay):
			}
		}
		body, err := doOnce(ctx, c, kind, path, params)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !Retryable(err) {
			return nil, err
		}
		wait = 0
		var se *StatusError
		if errors.As(err, &se) {
			if se.RetryAfter > c.Config.MaxRetryWait {
				c.Log.Warn("upstream asked for a longer wait than allowed",
					zap.String("path", path), zap.Duration("retry_after", se.RetryAfter))
				return nil, err
			}
			wait = se.RetryAfter
		}
		c.Log.Warn("request failed", zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, lastErr
}

// StatusError is an upstream non-200 answer.
type StatusError struct {
	Status     int
	RetryAfter time.Duration
	Body       string
	kind       error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb: status %d body=%q", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error { return e.kind }

func statusError(resp *http.Response, body []byte) *StatusError {
	se := &StatusError{Status: resp.StatusCode, Body: string(body[:min(len(body), 200)])}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		se.kind = ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		se.kind = ErrRateLimited
		if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
			se.RetryAfter = time.Duration(secs) * time.Second
		}
	case resp.StatusCode >= 500:
		se.kind = ErrUnavailable
	default:
		se.kind = ErrMalformed
	}
	return se
}

func doOnce(ctx context.Context, c *Client, kind store.Kind, path string, params url.Values) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			c.observe(kind, "unavailable")
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.Config.Timeout)
	defer cancel()

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("language", c.Config.Language)
	if c.Config.APIKey != "" {
		q.Set("api_key", c.Config.APIKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.observe(kind, "unavailable")
		// The api key travels in the query string; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		c.observe(kind, "unavailable")
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		se := statusError(resp, b)
		c.observe(kind, outcome(se.kind))
		return nil, se
	}
	c.observe(kind, "ok")
	return b, nil
}

func (c *Client) observe(kind store.Kind, outcome string) {
	if c.Observer != nil {
		c.Observer.ObserveExternalRequest(kind, outcome)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "unavailable"
	}
}
