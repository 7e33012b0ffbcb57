// Package config provides configuration loading for the WebPageTest check
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mrz1836/go-wpt-check/internal/wpt"
)

// Config holds the configuration for a check run. It is built once at startup and
// passed explicitly to the runner and publisher.
type Config struct {
	// Action inputs
	URLs        string `env:"INPUT_URLS"`         // newline separated
	APIKey      string `env:"INPUT_APIKEY"`       // WebPageTest API key
	Budget      string `env:"INPUT_BUDGET"`       // budget specs file, relative to the workspace
	WPTOptions  string `env:"INPUT_WPTOPTIONS"`   // WebPageTest settings file, relative to the workspace
	Label       string `env:"INPUT_LABEL"`        // label applied to every test
	GitHubToken string `env:"INPUT_GITHUB_TOKEN"` // token used to post the comment
	Template    string `env:"INPUT_TEMPLATE"`     // comment template path or inline template
	Host        string `env:"INPUT_HOST" envDefault:"www.webpagetest.org"`

	// GitHub runner context
	GitHub GitHubEnv

	// Tool settings
	LogLevel    string `env:"WPT_CHECK_LOG_LEVEL" envDefault:"info"`
	Parallel    int    `env:"WPT_CHECK_PARALLEL" envDefault:"0"` // 0 = one pipeline per URL
	ColorOutput bool   `env:"WPT_CHECK_COLOR_OUTPUT" envDefault:"true"`
}

// GitHubEnv holds the variables set by the GitHub Actions runner
type GitHubEnv struct {
	Workspace  string `env:"GITHUB_WORKSPACE"`
	EventName  string `env:"GITHUB_EVENT_NAME"`
	EventPath  string `env:"GITHUB_EVENT_PATH"`
	Repository string `env:"GITHUB_REPOSITORY"`
	APIURL     string `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`
}

// Load reads the given .env files, skipping any that do not exist, and decodes the
// environment into a Config. Variables already set in the environment win.
func Load(envFiles ...string) (*Config, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", strings.Join(existing, ", "), err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// URLList returns the configured URLs, one per non-blank line
func (c *Config) URLList() []string {
	return SplitURLs(c.URLs)
}

// SplitURLs splits newline separated URLs, dropping blank lines
func SplitURLs(s string) []string {
	var urls []string
	for _, line := range strings.Split(s, "\n") {
		if u := strings.TrimSpace(line); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// WorkspacePath resolves a path relative to the workspace
func (c *Config) WorkspacePath(path string) string {
	if path == "" || filepath.IsAbs(path) || c.GitHub.Workspace == "" {
		return path
	}
	return filepath.Join(c.GitHub.Workspace, path)
}

// TestOptions builds the run's test options from defaults, the settings file, the
// budget file and the label. A settings or budget file that is not an object is a
// configuration error.
func (c *Config) TestOptions() (wpt.TestOptions, error) {
	opts := wpt.DefaultTestOptions()

	if c.WPTOptions != "" {
		settings, err := readObject(c.WorkspacePath(c.WPTOptions), "WebPageTest settings")
		if err != nil {
			return opts, err
		}
		if err := mergeSettings(&opts, settings); err != nil {
			return opts, err
		}
	}

	if c.Budget != "" {
		specs, err := readObject(c.WorkspacePath(c.Budget), "budget")
		if err != nil {
			return opts, err
		}
		opts.Specs = specs
	}

	if c.Label != "" {
		opts.Label = c.Label
	}

	return opts, nil
}

// Validate validates the configuration and provides helpful error messages
func (c *Config) Validate() error {
	var errors []string

	if strings.TrimSpace(c.Host) == "" {
		errors = append(errors, "INPUT_HOST must not be empty")
	}

	if c.Parallel < 0 {
		errors = append(errors, "WPT_CHECK_PARALLEL must be 0 (one per url) or positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errors = append(errors, "WPT_CHECK_LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if c.GitHub.Repository != "" && strings.Count(c.GitHub.Repository, "/") != 1 {
		errors = append(errors, fmt.Sprintf("GITHUB_REPOSITORY must be owner/name, got %q", c.GitHub.Repository))
	}

	if len(errors) > 0 {
		return &ValidationError{
			Errors: errors,
		}
	}

	return nil
}

// ValidationError represents configuration validation errors
type ValidationError struct {
	Errors []string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// GetConfigHelp returns helpful information about configuration options
func GetConfigHelp() string {
	return `WebPageTest Check Configuration Help

Action Inputs:
  INPUT_URLS                  URLs to test, one per line
  INPUT_APIKEY                WebPageTest API key
  INPUT_BUDGET                Budget specs file (JSON or YAML), relative to GITHUB_WORKSPACE
  INPUT_WPTOPTIONS            WebPageTest settings file (JSON or YAML), relative to GITHUB_WORKSPACE
  INPUT_LABEL                 Label applied to every test
  INPUT_GITHUB_TOKEN          Token used to post the pull request comment
  INPUT_TEMPLATE              Comment template file, or inline template text
  INPUT_HOST=www.webpagetest.org  WebPageTest host or base URL

Runner Context:
  GITHUB_WORKSPACE            Base directory for relative paths
  GITHUB_EVENT_NAME           pull_request and issue_comment receive a report
  GITHUB_EVENT_PATH           Event payload used to find the pull request number
  GITHUB_REPOSITORY           owner/name of the repository to comment on
  GITHUB_API_URL=https://api.github.com

Tool Settings:
  WPT_CHECK_LOG_LEVEL=info    Log level (debug, info, warn, error)
  WPT_CHECK_PARALLEL=0        Concurrent pipelines (0 = one per url)
  WPT_CHECK_COLOR_OUTPUT=true Enable colored output

Settings file keys:
  runs, location, connectivity, firstViewOnly, emulateMobile,
  pollResults (seconds), timeout (seconds), label
  Any other key is passed to runtest.php unchanged.

Example .env:
  INPUT_URLS="https://example.com"
  INPUT_APIKEY=xxxx
  INPUT_WPTOPTIONS=.github/wpt.yml
  WPT_CHECK_LOG_LEVEL=debug
`
}
