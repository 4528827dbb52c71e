package pollution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"PollutionSync/internal/config"
	"PollutionSync/internal/domain"
	"PollutionSync/internal/logging"
	"PollutionSync/internal/metrics"
	"PollutionSync/internal/ports"
)

// Client implements ports.PollutionSource against the authenticated pollution API.
// Pages are cached per (country, page, limit); download failures other than
// authorization are soft-failed to an empty page.
type Client struct {
	baseURL    string
	username   string
	password   string
	cacheTTL   time.Duration
	httpClient *http.Client
	cache      ports.ResponseCache
	session    *Session
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	// authMu serializes login and refresh so one runs at a time.
	authMu sync.Mutex
}

var _ ports.PollutionSource = (*Client)(nil)

// NewClient builds a client from configuration. A nil session starts unauthenticated.
func NewClient(cfg config.PollutionAPIConfig, cache ports.ResponseCache, session *Session, log *slog.Logger, m *metrics.Metrics) *Client {
	if session == nil {
		session = NewSession()
	}
	log = logging.OrDiscard(log)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	log.Info("pollution client initialized", "base_url", cfg.BaseURL, "cache_ttl", cfg.CacheTTL)

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		cacheTTL:   cfg.CacheTTL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		session:    session,
		metrics:    m,
		logger:     log,
		now:        time.Now,
	}
}

// FetchPage returns one page of pollution results for country.
//
// Returned errors are limited to authentication failures (domain.ErrAuthentication),
// an exhausted refresh-and-retry cycle (domain.ErrRetryExhausted) and context
// cancellation. Every other failure yields an empty page and a nil error.
func (c *Client) FetchPage(ctx context.Context, country string, page, limit int) (domain.PollutionPage, error) {
	key := cacheKey(country, page, limit)
	c.logger.Info("requesting pollution data", "country", country, "page", page, "limit", limit)

	if cached, ok := c.cached(ctx, key); ok {
		return cached, nil
	}

	token, err := c.ensureToken(ctx)
	if err != nil {
		c.metrics.SourceRequest(metrics.OutcomeAuthFailed)
		return domain.PollutionPage{}, err
	}

	result, err := c.requestPage(ctx, token, country, page, limit)
	if err == nil {
		c.remember(ctx, key, result)
		c.metrics.SourceRequest(metrics.OutcomeSuccess)
		c.logger.Info("pollution data retrieved", "country", country, "page", page, "records", len(result.Results))
		return result, nil
	}

	if isUnauthorized(err) {
		return c.retryAfterRefresh(ctx, key, country, page, limit)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.PollutionPage{}, ctxErr
	}

	c.metrics.SourceRequest(metrics.OutcomeSoftFailed)
	c.logger.Error("pollution page fetch failed, returning empty results",
		"country", country,
		"page", page,
		"error", fmt.Errorf("%w: %w", domain.ErrTransientFetch, err),
	)
	return domain.PollutionPage{Results: []domain.RawCity{}}, nil
}

func (c *Client) retryAfterRefresh(ctx context.Context, key, country string, page, limit int) (domain.PollutionPage, error) {
	c.logger.Warn("unauthorized response, refreshing token and retrying", "country", country, "page", page)

	token, err := c.forceRefresh(ctx)
	if err != nil {
		c.metrics.SourceRequest(metrics.OutcomeRetryExhausted)
		c.logger.Error("retry aborted, token refresh failed", "country", country, "page", page, "error", err)
		return domain.PollutionPage{}, fmt.Errorf("%w: %s page %d: %w", domain.ErrRetryExhausted, country, page, err)
	}

	result, err := c.requestPage(ctx, token, country, page, limit)
	if err != nil {
		c.metrics.SourceRequest(metrics.OutcomeRetryExhausted)
		c.logger.Error("retry failed", "country", country, "page", page, "error", err)
		return domain.PollutionPage{}, fmt.Errorf("%w: %s page %d: %w", domain.ErrRetryExhausted, country, page, err)
	}

	c.remember(ctx, key, result)
	c.metrics.SourceRequest(metrics.OutcomeRetried)
	c.logger.Info("pollution data retrieved on retry", "country", country, "page", page, "records", len(result.Results))
	return result, nil
}

// cached returns a fresh cache entry; stale entries are evicted on the way.
func (c *Client) cached(ctx context.Context, key string) (domain.PollutionPage, bool) {
	if c.cache == nil {
		return domain.PollutionPage{}, false
	}

	entry, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache lookup failed", "key", key, "error", err)
		c.metrics.CacheLookup(metrics.CacheMiss)
		return domain.PollutionPage{}, false
	}
	if !ok {
		c.metrics.CacheLookup(metrics.CacheMiss)
		return domain.PollutionPage{}, false
	}

	age := c.now().Sub(entry.CapturedAt)
	if age < c.cacheTTL {
		c.metrics.CacheLookup(metrics.CacheHit)
		c.logger.Info("returning cached data", "key", key, "age", age, "ttl", c.cacheTTL)
		return entry.Page, true
	}

	c.metrics.CacheLookup(metrics.CacheExpired)
	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.Warn("evict expired cache entry", "key", key, "error", err)
	} else {
		c.logger.Debug("removed expired cache entry", "key", key)
	}
	return domain.PollutionPage{}, false
}

func (c *Client) remember(ctx context.Context, key string, page domain.PollutionPage) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, ports.CachedPage{Page: page, CapturedAt: c.now()}); err != nil {
		c.logger.Warn("cache store failed", "key", key, "error", err)
		return
	}
	c.logger.Debug("cached pollution data", "key", key)
}

// ensureToken returns a usable access token, refreshing or logging in when needed.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	token, refreshToken, expiresAt := c.session.snapshot()
	if !tokenExpired(token, expiresAt, c.now()) {
		return token, nil
	}

	c.logger.Info("token expired, attempting to refresh or login")
	if refreshToken != "" {
		if err := c.refresh(ctx, refreshToken); err != nil {
			return "", err
		}
	} else if err := c.login(ctx); err != nil {
		return "", err
	}

	token, _, _ = c.session.snapshot()
	return token, nil
}

func (c *Client) forceRefresh(ctx context.Context) (string, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	_, refreshToken, _ := c.session.snapshot()
	if refreshToken == "" {
		c.logger.Warn("no refresh token available for token refresh")
		return "", fmt.Errorf("%w: no refresh token available", domain.ErrAuthentication)
	}
	if err := c.refresh(ctx, refreshToken); err != nil {
		return "", err
	}

	token, _, _ := c.session.snapshot()
	return token, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	Token        string  `json:"token"`
	RefreshToken string  `json:"refreshToken"`
	ExpiresIn    float64 `json:"expiresIn"`
}

func (c *Client) login(ctx context.Context) error {
	c.logger.Info("attempting login", "username", c.username)

	var resp tokenResponse
	err := c.postJSON(ctx, "/auth/login", loginRequest{Username: c.username, Password: c.password}, &resp)
	if err == nil && resp.Token == "" {
		err = errors.New("login response carries no token")
	}
	if err != nil {
		c.logger.Error("login failed", "username", c.username, "error", err)
		return fmt.Errorf("%w: login: %w", domain.ErrAuthentication, err)
	}

	c.session.store(resp.Token, resp.RefreshToken, c.expiry(resp.ExpiresIn))
	c.logger.Info("login successful", "username", c.username, "expires_in", resp.ExpiresIn)
	return nil
}

// refresh renews the access token; on failure the whole session is cleared
// so the next call starts over with a full login.
func (c *Client) refresh(ctx context.Context, refreshToken string) error {
	c.logger.Info("attempting to refresh authentication token")

	var resp tokenResponse
	err := c.postJSON(ctx, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, &resp)
	if err == nil && resp.Token == "" {
		err = errors.New("refresh response carries no token")
	}
	if err != nil {
		c.session.clear()
		c.logger.Error("token refresh failed, cleared session", "error", err)
		return fmt.Errorf("%w: refresh: %w", domain.ErrAuthentication, err)
	}

	c.session.store(resp.Token, resp.RefreshToken, c.expiry(resp.ExpiresIn))
	c.logger.Info("token refreshed", "expires_in", resp.ExpiresIn)
	return nil
}

func (c *Client) expiry(expiresIn float64) time.Time {
	return c.now().Add(time.Duration(expiresIn * float64(time.Second)))
}

func (c *Client) requestPage(ctx context.Context, token, country string, page, limit int) (domain.PollutionPage, error) {
	query := url.Values{}
	query.Set("country", country)
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pollution?"+query.Encode(), nil)
	if err != nil {
		return domain.PollutionPage{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	var result domain.PollutionPage
	if err := c.do(req, &result); err != nil {
		return domain.PollutionPage{}, err
	}
	if result.Results == nil {
		result.Results = []domain.RawCity{}
	}
	return result, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.do(req, v)
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{code: resp.StatusCode, status: resp.Status, body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError reports a non-2xx response.
type statusError struct {
	code   int
	status string
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %s", e.status)
	}
	return fmt.Sprintf("unexpected status %s: %s", e.status, e.body)
}

func isUnauthorized(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == http.StatusUnauthorized
}

func cacheKey(country string, page, limit int) string {
	return fmt.Sprintf("pollution_%s_%d_%d", country, page, limit)
}
