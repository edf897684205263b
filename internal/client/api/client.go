package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/opentrace-console/internal/client/models"
	"github.com/dmitrijs2005/opentrace-console/internal/common"
	"github.com/dmitrijs2005/opentrace-console/internal/logging"
)

// TokenSource supplies the bearer token for outbound requests. An empty
// token means the request is sent unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) string

func (f TokenFunc) Token(ctx context.Context) string { return f(ctx) }

// HTTPClient is the REST client of the OpenTrace backend.
//
// Every response with status 401 is turned into ErrUnauthorized and, at most
// once per session epoch, reported to the handler set with OnUnauthorized.
// Requests that were issued under an earlier epoch (before the last Rearm)
// never fire the handler. HTTPClient is safe for concurrent use.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  logging.Logger

	mu             sync.Mutex
	onUnauthorized func()

	epoch atomic.Uint64
	armed atomic.Bool
}

// NewHTTPClient builds a client for baseURL (e.g. "http://host:8000/api").
// A zero timeout leaves the http.Client without one.
func NewHTTPClient(baseURL string, timeout time.Duration, tokens TokenSource, logger logging.Logger) *HTTPClient {
	if tokens == nil {
		tokens = TokenFunc(func(context.Context) string { return "" })
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		logger:  logger.With("component", "api"),
	}
	c.armed.Store(true)
	return c
}

// OnUnauthorized registers the global reaction to HTTP 401.
func (c *HTTPClient) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// Rearm starts a new session epoch. It is called after a successful login
// so that the next 401 is reported again.
func (c *HTTPClient) Rearm() {
	c.epoch.Add(1)
	c.armed.Store(true)
}

func (c *HTTPClient) unauthorized(epoch uint64) {
	if c.epoch.Load() != epoch || !c.armed.CompareAndSwap(true, false) {
		return
	}
	c.mu.Lock()
	fn := c.onUnauthorized
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type requestOpts struct {
	query url.Values
	body  any
	// public requests skip the bearer token and the global 401 reaction.
	public bool
}

func (c *HTTPClient) do(ctx context.Context, method, path string, opts requestOpts, out any) error {
	epoch := c.epoch.Load()

	u := c.baseURL + path
	if len(opts.query) > 0 {
		u += "?" + opts.query.Encode()
	}

	var body io.Reader
	if opts.body != nil {
		b, err := json.Marshal(opts.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if !opts.public {
		if token := c.tokens.Token(ctx); token != "" {
			req.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
		}
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn(ctx, "request failed", "method", method, "path", path, "err", err)
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug(ctx, "request done", "method", method, "path", path,
		"status", resp.StatusCode, "took", time.Since(started))

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if !opts.public {
			c.unauthorized(epoch)
		}
		return &unauthorizedError{detail: parseDetail(payload)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Detail: parseDetail(payload)}
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// unauthorizedError matches ErrUnauthorized and keeps the backend detail,
// e.g. "Invalid credentials" on login.
type unauthorizedError struct {
	detail string
}

func (e *unauthorizedError) Error() string {
	if e.detail == "" {
		return ErrUnauthorized.Error()
	}
	return ErrUnauthorized.Error() + ": " + e.detail
}

func (e *unauthorizedError) Unwrap() error { return ErrUnauthorized }

func idPath(prefix string, id int64) string {
	return prefix + "/" + strconv.FormatInt(id, 10)
}

// Health calls GET /health.
func (c *HTTPClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", requestOpts{public: true}, nil)
}

// Login exchanges credentials for a session payload. A 401 here means bad
// credentials and does not trigger the global unauthorized reaction.
func (c *HTTPClient) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.do(ctx, http.MethodPost, "/login", requestOpts{
		body:   models.LoginRequest{Email: email, Password: password},
		public: true,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) ChangePassword(ctx context.Context, req models.ChangePasswordRequest) error {
	return c.do(ctx, http.MethodPost, "/change-password", requestOpts{body: req}, nil)
}

func (c *HTTPClient) ListResources(ctx context.Context) ([]models.Resource, error) {
	var out []models.Resource
	if err := c.do(ctx, http.MethodGet, "/resources", requestOpts{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) CreateResource(ctx context.Context, draft models.ResourceDraft) (*models.Resource, error) {
	var out models.Resource
	if err := c.do(ctx, http.MethodPost, "/resources", requestOpts{body: draft}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) UpdateResource(ctx context.Context, id int64, patch models.ResourcePatch) (*models.Resource, error) {
	var out models.Resource
	if err := c.do(ctx, http.MethodPut, idPath("/resources", id), requestOpts{body: patch}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteResource(ctx context.Context, id int64, password string) error {
	return c.do(ctx, http.MethodDelete, idPath("/resources", id),
		requestOpts{body: models.DeleteRequest{Password: password}}, nil)
}

func (c *HTTPClient) ListCampaigns(ctx context.Context) ([]models.Campaign, error) {
	var out []models.Campaign
	if err := c.do(ctx, http.MethodGet, "/campaigns", requestOpts{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) DeleteCampaign(ctx context.Context, id int64, password string) error {
	return c.do(ctx, http.MethodDelete, idPath("/campaigns", id),
		requestOpts{body: models.DeleteRequest{Password: password}}, nil)
}

func (c *HTTPClient) ListEvents(ctx context.Context) ([]models.Event, error) {
	var out []models.Event
	if err := c.do(ctx, http.MethodGet, "/events", requestOpts{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) DeleteEvent(ctx context.Context, id int64, password string) error {
	return c.do(ctx, http.MethodDelete, idPath("/events", id),
		requestOpts{body: models.DeleteRequest{Password: password}}, nil)
}

func (c *HTTPClient) ListTags(ctx context.Context) ([]models.Tag, error) {
	var out []models.Tag
	if err := c.do(ctx, http.MethodGet, "/tags", requestOpts{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) DeleteTag(ctx context.Context, id int64, password string) error {
	return c.do(ctx, http.MethodDelete, idPath("/tags", id),
		requestOpts{body: models.DeleteRequest{Password: password}}, nil)
}

// DashboardStats is keyed by resource uid.
func (c *HTTPClient) DashboardStats(ctx context.Context, uid string) (*models.DashboardStats, error) {
	var out models.DashboardStats
	q := url.Values{"resource_id": {uid}}
	if err := c.do(ctx, http.MethodGet, "/dashboard/stats", requestOpts{query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LiveFeed is keyed by numeric resource id.
func (c *HTTPClient) LiveFeed(ctx context.Context, id int64) (*models.LiveFeed, error) {
	var out models.LiveFeed
	q := url.Values{"resource_id": {strconv.FormatInt(id, 10)}}
	if err := c.do(ctx, http.MethodGet, "/analytics/live", requestOpts{query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Explore is keyed by resource uid; start and end are YYYY-MM-DD.
func (c *HTTPClient) Explore(ctx context.Context, uid, start, end string) (*models.Exploration, error) {
	var out models.Exploration
	q := url.Values{"resource_id": {uid}, "start": {start}, "end": {end}}
	if err := c.do(ctx, http.MethodGet, "/analytics/explore", requestOpts{query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SystemMonitor reports the backend host's load. It is not resource-bound.
func (c *HTTPClient) SystemMonitor(ctx context.Context) (*models.SystemMonitor, error) {
	var out models.SystemMonitor
	if err := c.do(ctx, http.MethodGet, "/system/monitor", requestOpts{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListFunnels is keyed by numeric resource id.
func (c *HTTPClient) ListFunnels(ctx context.Context, id int64) ([]models.Funnel, error) {
	var out []models.Funnel
	q := url.Values{"resource_id": {strconv.FormatInt(id, 10)}}
	if err := c.do(ctx, http.MethodGet, "/funnels", requestOpts{query: q}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) DeleteFunnel(ctx context.Context, id int64, password string) error {
	return c.do(ctx, http.MethodDelete, idPath("/funnels", id),
		requestOpts{body: models.DeleteRequest{Password: password}}, nil)
}

// Retention is keyed by numeric resource id; from and to bound the cohort
// dates (YYYY-MM-DD).
func (c *HTTPClient) Retention(ctx context.Context, id int64, from, to string) (*models.RetentionReport, error) {
	var out models.RetentionReport
	q := url.Values{"resource_id": {strconv.FormatInt(id, 10)}, "date_from": {from}, "date_to": {to}}
	if err := c.do(ctx, http.MethodGet, "/analytics/retention", requestOpts{query: q}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
