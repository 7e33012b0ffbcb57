package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrz1836/go-wpt-check/internal/config"
	"github.com/mrz1836/go-wpt-check/internal/output"
	"github.com/mrz1836/go-wpt-check/internal/publish"
	"github.com/mrz1836/go-wpt-check/internal/runner"
	"github.com/mrz1836/go-wpt-check/internal/wpt"
)

// envVars are cleared before each command test. t.Setenv restores them afterwards.
var envVars = []string{ //nolint:gochecknoglobals // test fixture
	"INPUT_URLS", "INPUT_APIKEY", "INPUT_BUDGET", "INPUT_WPTOPTIONS", "INPUT_LABEL",
	"INPUT_GITHUB_TOKEN", "INPUT_TEMPLATE", "INPUT_HOST",
	"GITHUB_WORKSPACE", "GITHUB_EVENT_NAME", "GITHUB_EVENT_PATH", "GITHUB_REPOSITORY", "GITHUB_API_URL",
	"WPT_CHECK_LOG_LEVEL", "WPT_CHECK_PARALLEL", "WPT_CHECK_COLOR_OUTPUT", "GITHUB_ACTIONS",
}

// cleanEnv isolates a test from the runner's environment and returns a workspace
func cleanEnv(t *testing.T) string {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	t.Setenv("NO_COLOR", "1")

	workspace := t.TempDir()
	t.Setenv("GITHUB_WORKSPACE", workspace)
	return workspace
}

// writeEvent writes a pull_request payload and points the environment at it
func writeEvent(t *testing.T, workspace, eventName, payload string) {
	t.Helper()
	path := filepath.Join(workspace, "event.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))
	t.Setenv("GITHUB_EVENT_NAME", eventName)
	t.Setenv("GITHUB_EVENT_PATH", path)
	t.Setenv("GITHUB_REPOSITORY", "acme/site")
}

// fakeTesting is a TestingService returning canned outcomes per URL
type fakeTesting struct {
	mu       sync.Mutex
	outcomes map[string]wpt.Outcome
	results  map[string]*wpt.Result
	submits  []string
	fetches  []string
	options  []wpt.TestOptions
}

func (f *fakeTesting) Submit(_ context.Context, url string, opts wpt.TestOptions) (wpt.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, url)
	f.options = append(f.options, opts)
	return f.outcomes[url], nil
}

func (f *fakeTesting) Fetch(_ context.Context, id string) (*wpt.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, id)
	return f.results[id], nil
}

func (f *fakeTesting) ResultURL(testID string) string {
	return "https://wpt.example.com/result/" + testID
}

// fakePoster records posted comments
type fakePoster struct {
	mu       sync.Mutex
	comments []string
	targets  []string
}

func (p *fakePoster) PostComment(_ context.Context, owner, repo string, _ int, body string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets = append(p.targets, owner+"/"+repo)
	p.comments = append(p.comments, body)
	return nil
}

// plainSite registers a plain-mode URL with a TTFB metric
func (f *fakeTesting) plainSite(url, id string, ttfb float64) {
	if f.outcomes == nil {
		f.outcomes = map[string]wpt.Outcome{}
		f.results = map[string]*wpt.Result{}
	}
	f.outcomes[url] = wpt.PlainOutcome(id, "https://wpt.example.com/results.php?test="+id)
	f.results[id] = &wpt.Result{
		StatusCode: 200,
		Data: &wpt.ResultData{
			ID:      id,
			URL:     url,
			Summary: "https://wpt.example.com/results.php?test=" + id,
			Median:  &wpt.Median{FirstView: wpt.View{"TTFB": ttfb}},
		},
	}
}

// newTestApp wires fakes into a CLI app
func newTestApp(service *fakeTesting, poster *fakePoster) *CLIApp {
	return NewCLIApp("test", "abc1234", "today").WithServices(Services{
		Testing: func(_ *config.Config, _ *zap.Logger, _ *output.Formatter, _ string) runner.TestingService {
			return service
		},
		Poster: func(_ *config.Config, _ string) publish.CommentPoster {
			return poster
		},
	})
}

// execute runs the command tree and returns stdout, stderr and the error
func execute(app *CLIApp, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	root := NewCommandBuilder(app).BuildCommandTree()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// configFromEnv loads the configuration from the current environment only
func configFromEnv(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}
