// Package meta provides a client for the Meta Marketing (Graph) API insights
// endpoint and helpers for its webhooks.
package meta

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ads-insights/internal/model"
	"github.com/sells-group/ads-insights/internal/resilience"
)

// Client defines the Meta Marketing API operations.
type Client interface {
	// FetchInsights returns one row per campaign per day in r. Ratios are
	// not set; callers derive them.
	FetchInsights(ctx context.Context, accountID string, r model.DateRange) ([]model.InsightRow, error)
}

// Outcome labels passed to the request hook.
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// Option configures the Meta client.
type Option func(*httpClient)

// WithBaseURL sets a custom Graph API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithAPIVersion sets the Graph API version path segment.
func WithAPIVersion(v string) Option {
	return func(c *httpClient) {
		if v != "" {
			c.version = v
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the client-side request rate.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = newAdaptiveLimiter(rps, burst)
		}
	}
}

// WithRetry overrides the rate-limit retry schedule. Only rate-limit errors
// are retried regardless of cfg.ShouldRetry.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithRequestHook registers a callback invoked once per HTTP attempt with
// one of the Outcome labels.
func WithRequestHook(fn func(outcome string)) Option {
	return func(c *httpClient) {
		c.hook = fn
	}
}

type httpClient struct {
	accessToken string
	baseURL     string
	version     string
	pageLimit   int
	http        *http.Client
	limiter     *adaptiveLimiter
	retry       resilience.RetryConfig
	hook        func(string)
}

// NewClient creates a new Meta Marketing API client.
func NewClient(accessToken string, opts ...Option) Client {
	c := &httpClient{
		accessToken: accessToken,
		baseURL:     "https://graph.facebook.com",
		version:     "v19.0",
		pageLimit:   100,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: newAdaptiveLimiter(5, 5),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.ShouldRetry = IsRateLimited
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("meta", "insights")
	}
	return c
}

// accountPath returns the ad account node id, adding the act_ prefix the
// Graph API expects when it is missing.
func accountPath(accountID string) string {
	if strings.HasPrefix(accountID, "act_") {
		return accountID
	}
	return "act_" + accountID
}

func (c *httpClient) insightsURL(accountID string, r model.DateRange) string {
	q := url.Values{}
	q.Set("fields", strings.Join(insightFields, ","))
	q.Set("level", "campaign")
	q.Set("time_increment", "1")
	q.Set("limit", strconv.Itoa(c.pageLimit))
	if !r.IsZero() {
		tr, _ := json.Marshal(map[string]string{"since": r.Since(), "until": r.Until()})
		q.Set("time_range", string(tr))
	}
	q.Set("access_token", c.accessToken)
	return c.baseURL + "/" + c.version + "/" + url.PathEscape(accountPath(accountID)) + "/insights?" + q.Encode()
}

func (c *httpClient) FetchInsights(ctx context.Context, accountID string, r model.DateRange) ([]model.InsightRow, error) {
	if accountID == "" {
		return nil, eris.New("meta: account id is required")
	}

	log := zap.L().With(zap.String("component", "meta.client"), zap.String("account_id", accountID))

	var rows []model.InsightRow
	next := c.insightsURL(accountID, r)
	for pages := 0; next != ""; pages++ {
		page, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*insightsPage, error) {
			return c.getPage(ctx, next)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "meta: fetch insights page %d", pages+1)
		}
		for _, raw := range page.Data {
			row, err := raw.toRow()
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		log.Debug("meta: fetched insights page",
			zap.Int("page", pages+1),
			zap.Int("rows", len(page.Data)),
		)
		next = page.Paging.Next
	}

	log.Info("meta: fetched insights", zap.Int("rows", len(rows)))
	return rows, nil
}

func (c *httpClient) getPage(ctx context.Context, pageURL string) (*insightsPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "meta: rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "meta: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(OutcomeError)
		return nil, eris.Wrap(err, "meta: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(OutcomeError)
		return nil, eris.Wrap(err, "meta: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := parseAPIError(resp.StatusCode, body)
		if apiErr.RateLimited() {
			c.limiter.onRateLimit()
			c.observe(OutcomeRateLimited)
		} else {
			c.observe(OutcomeError)
		}
		return nil, apiErr
	}

	var page insightsPage
	if err := json.Unmarshal(body, &page); err != nil {
		c.observe(OutcomeError)
		return nil, eris.Wrap(err, "meta: decode insights page")
	}
	c.limiter.onSuccess()
	c.observe(OutcomeOK)
	return &page, nil
}

func (c *httpClient) observe(outcome string) {
	if c.hook != nil {
		c.hook(outcome)
	}
}

func parseAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &APIError{StatusCode: status, Message: msg}
	}
	envelope.Error.StatusCode = status
	return envelope.Error
}
