package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	prerrors "github.com/mrz1836/go-wpt-check/internal/errors"
)

// DefaultAPIURL is the public GitHub REST endpoint
const DefaultAPIURL = "https://api.github.com"

// HTTPClient interface for dependency injection
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client posts comments through the GitHub REST API
type Client struct {
	apiURL    string
	token     string
	userAgent string
	http      HTTPClient
}

// NewClient creates a client. An empty apiURL uses DefaultAPIURL and a nil httpClient
// uses a client with a 15 second timeout.
func NewClient(apiURL, token, version string, httpClient HTTPClient) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 15 * time.Second,
		}
	}
	return &Client{
		apiURL:    strings.TrimRight(apiURL, "/"),
		token:     token,
		userAgent: fmt.Sprintf("go-wpt-check/%s (%s/%s)", version, runtime.GOOS, runtime.GOARCH),
		http:      httpClient,
	}
}

// Comment is the subset of the issue comment resource returned on creation
type Comment struct {
	ID      int64  `json:"id"`
	HTMLURL string `json:"html_url"`
}

// PostComment creates a comment on an issue or pull request
func (c *Client) PostComment(ctx context.Context, owner, repo string, number int, body string) error {
	_, err := c.CreateComment(ctx, owner, repo, number, body)
	return err
}

// CreateComment creates a comment and returns the created resource
func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, body string) (*Comment, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/issues/%d/comments", c.apiURL, owner, repo, number)

	payload, err := json.Marshal(map[string]string{"body": body})
	if err != nil {
		return nil, fmt.Errorf("encoding comment: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting comment: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %s", prerrors.ErrGitHubAPIFailed, formatGitHubError(resp.StatusCode, string(respBody)))
	}

	var comment Comment
	if err := json.NewDecoder(resp.Body).Decode(&comment); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &comment, nil
}

// formatGitHubError formats GitHub API errors with helpful suggestions
func formatGitHubError(statusCode int, body string) string {
	var msg strings.Builder
	fmt.Fprintf(&msg, "status %d: %s", statusCode, strings.TrimSpace(body))

	switch statusCode {
	case http.StatusUnauthorized:
		msg.WriteString("\n\nThe GITHUB_TOKEN input is missing or invalid.")
	case http.StatusForbidden, http.StatusNotFound:
		msg.WriteString("\n\nThe token needs write access to pull requests and issues")
		msg.WriteString(" (permissions: pull-requests: write, issues: write).")
	}
	return msg.String()
}
