package wpt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	prerrors "github.com/mrz1836/go-wpt-check/internal/errors"
	"github.com/mrz1836/go-wpt-check/internal/progress"
)

// DefaultHost is the public WebPageTest instance
const DefaultHost = "www.webpagetest.org"

// Status codes used by the WebPageTest JSON API
const (
	statusComplete = 200
	statusError    = 400
)

// HTTPClient interface for dependency injection
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a WebPageTest instance
type Client struct {
	baseURL          string
	apiKey           string
	userAgent        string
	http             HTTPClient
	logger           *zap.Logger
	progressOut      io.Writer
	progressInterval time.Duration
	quiet            bool
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(c HTTPClient) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the debug logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// WithProgress sets where and how often pending-test updates are written.
// A nil writer disables them.
func WithProgress(out io.Writer, interval time.Duration) Option {
	return func(cl *Client) {
		cl.progressOut = out
		cl.progressInterval = interval
		cl.quiet = out == nil
	}
}

// WithVersion sets the version reported in the User-Agent header
func WithVersion(version string) Option {
	return func(cl *Client) {
		cl.userAgent = fmt.Sprintf("go-wpt-check/%s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
	}
}

// NewClient creates a client for host, which may be a bare hostname or a full base URL
func NewClient(host, apiKey string, opts ...Option) *Client {
	if host == "" {
		host = DefaultHost
	}
	base := host
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	c := &Client{
		baseURL: strings.TrimRight(base, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: zap.NewNop(),
	}
	WithVersion("dev")(c)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the instance base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResultURL returns the human-readable results page for a test
func (c *Client) ResultURL(testID string) string {
	return c.baseURL + "/result/" + testID
}

// apiResponse is the common envelope of runtest.php and testStatus.php
type apiResponse struct {
	StatusCode int    `json:"statusCode"`
	StatusText string `json:"statusText"`
	Data       struct {
		TestID   string `json:"testId"`
		JSONURL  string `json:"jsonUrl"`
		UserURL  string `json:"userUrl"`
		Summary  string `json:"summary"`
		Location string `json:"location"`
	} `json:"data"`
}

// Submit runs a test for testURL and waits for it to complete. With budget specs in
// opts the result is evaluated and a budget outcome returned, otherwise a plain outcome.
func (c *Client) Submit(ctx context.Context, testURL string, opts TestOptions) (Outcome, error) {
	var resp apiResponse
	if err := c.getJSON(ctx, "/runtest.php", opts.Query(testURL), &resp); err != nil {
		return Outcome{}, err
	}
	if resp.StatusCode != statusComplete || resp.Data.TestID == "" {
		return Outcome{}, fmt.Errorf("%w: runtest returned %d %s", prerrors.ErrServiceResponse, resp.StatusCode, resp.StatusText)
	}

	testID := resp.Data.TestID
	c.logger.Debug("test submitted",
		zap.String("url", testURL),
		zap.String("test_id", testID),
		zap.String("mode", modeFor(opts).String()))

	if err := c.waitForCompletion(ctx, testURL, testID, opts); err != nil {
		return Outcome{}, err
	}

	result, err := c.Fetch(ctx, testID)
	if err != nil {
		return Outcome{}, err
	}

	if opts.HasBudget() {
		data, _ := result.Raw["data"].(map[string]any)
		report := EvaluateSpecs(opts.Specs, data)
		c.logger.Debug("budget evaluated",
			zap.String("test_id", testID),
			zap.Int("assertions", len(report.Assertions)),
			zap.Int("failures", report.Failures()))
		return BudgetOutcome(testID, report), nil
	}

	if result.Data == nil || result.Data.ID == "" {
		return Outcome{}, fmt.Errorf("%w: test %s returned no result data", prerrors.ErrServiceResponse, testID)
	}
	return PlainOutcome(result.Data.ID, result.Data.Summary), nil
}

// Fetch retrieves the full results of a completed test
func (c *Client) Fetch(ctx context.Context, testID string) (*Result, error) {
	q := url.Values{}
	q.Set("test", testID)

	body, err := c.get(ctx, "/jsonResult.php", q)
	if err != nil {
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding result for %s: %w", testID, err)
	}
	if err := json.Unmarshal(body, &result.Raw); err != nil {
		return nil, fmt.Errorf("decoding result for %s: %w", testID, err)
	}
	if result.Data == nil {
		return nil, fmt.Errorf("%w: no data for test %s (%d %s)", prerrors.ErrServiceResponse, testID, result.StatusCode, result.StatusText)
	}

	c.logger.Debug("result fetched", zap.String("test_id", testID), zap.String("url", result.Data.URL))
	return &result, nil
}

// waitForCompletion polls testStatus.php until the test completes, fails or times out
func (c *Client) waitForCompletion(ctx context.Context, testURL, testID string, opts TestOptions) error {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	tracker, trackCtx := progress.WithContext(ctx, progress.Options{
		Operation:      "Waiting for results",
		Context:        testURL,
		Timeout:        opts.Timeout,
		Interval:       c.progressInterval,
		ProgressFunc:   progress.PollProgressFunc(testID),
		SuppressOutput: c.quiet,
		Out:            c.progressOut,
	})
	defer tracker.Stop()

	q := url.Values{}
	q.Set("test", testID)
	q.Set("f", "json")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var status apiResponse
		if err := c.getJSON(trackCtx, "/testStatus.php", q, &status); err != nil {
			if ctx.Err() != nil {
				return c.timeoutError(testID, opts, tracker, ctx.Err())
			}
			return err
		}

		switch {
		case status.StatusCode == statusComplete:
			return nil
		case status.StatusCode >= statusError:
			return fmt.Errorf("%w: test %s failed with %d %s", prerrors.ErrServiceResponse, testID, status.StatusCode, status.StatusText)
		}

		c.logger.Debug("test pending",
			zap.String("test_id", testID),
			zap.Int("status", status.StatusCode),
			zap.String("status_text", status.StatusText))

		select {
		case <-ctx.Done():
			return c.timeoutError(testID, opts, tracker, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) timeoutError(testID string, opts TestOptions, tracker *progress.Tracker, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) && opts.Timeout > 0 {
		return prerrors.NewTimeoutError("WebPageTest run", testID, opts.Timeout, tracker.GetElapsed())
	}
	return cause
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	body, err := c.get(ctx, path, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	// The key travels only in the header so request URLs in errors never carry it
	endpoint := c.baseURL + path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-WPT-API-KEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s status %d: %s", prerrors.ErrServiceResponse, path, resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}

func modeFor(opts TestOptions) Mode {
	if opts.HasBudget() {
		return ModeBudget
	}
	return ModePlain
}
