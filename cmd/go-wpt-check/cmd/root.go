// Package cmd provides the cobra commands for go-wpt-check
package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrz1836/go-wpt-check/internal/config"
	"github.com/mrz1836/go-wpt-check/internal/github"
	"github.com/mrz1836/go-wpt-check/internal/output"
	"github.com/mrz1836/go-wpt-check/internal/publish"
	"github.com/mrz1836/go-wpt-check/internal/runner"
	"github.com/mrz1836/go-wpt-check/internal/wpt"
)

// CLIApp holds the application state and configuration
type CLIApp struct {
	version   string
	commit    string
	buildDate string
	config    *AppConfig
	services  Services
}

// AppConfig holds global application configuration
type AppConfig struct {
	Verbose   bool
	NoColor   bool
	ColorMode string // "auto", "always", "never"
}

// Services builds the external collaborators. Tests replace them with fakes.
type Services struct {
	Testing func(cfg *config.Config, logger *zap.Logger, f *output.Formatter, version string) runner.TestingService
	Poster  func(cfg *config.Config, version string) publish.CommentPoster
}

// DefaultServices talks to WebPageTest and the GitHub API
func DefaultServices() Services {
	return Services{
		Testing: func(cfg *config.Config, logger *zap.Logger, f *output.Formatter, version string) runner.TestingService {
			return wpt.NewClient(cfg.Host, cfg.APIKey,
				wpt.WithLogger(logger),
				wpt.WithVersion(version),
				wpt.WithProgress(f.Writer(), 0),
			)
		},
		Poster: func(cfg *config.Config, version string) publish.CommentPoster {
			return github.NewClient(cfg.GitHub.APIURL, cfg.GitHubToken, version, nil)
		},
	}
}

// NewCLIApp creates a new CLI application instance
func NewCLIApp(version, commit, buildDate string) *CLIApp {
	return &CLIApp{
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		config:    &AppConfig{},
		services:  DefaultServices(),
	}
}

// WithServices replaces the external collaborators
func (a *CLIApp) WithServices(s Services) *CLIApp {
	a.services = s
	return a
}

// CommandBuilder creates cobra commands with dependency injection
type CommandBuilder struct {
	app *CLIApp
}

// NewCommandBuilder creates a new command builder
func NewCommandBuilder(app *CLIApp) *CommandBuilder {
	return &CommandBuilder{app: app}
}

// BuildRootCmd creates the root command
func (cb *CommandBuilder) BuildRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "go-wpt-check",
		Short: "WebPageTest performance checks for pull requests",
		Long: `go-wpt-check runs WebPageTest against a list of URLs, fails the run when
performance budgets are not met and posts a metrics report on the pull request.

Key features:
  - Concurrent tests, one pipeline per URL
  - Budget assertions from a JSON or YAML specs file
  - Markdown report rendered from a customizable template
  - Configuration from GitHub Actions inputs or a .env file`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cb.app.config.Verbose, _ = cmd.Flags().GetBool("verbose")
			cb.app.config.NoColor, _ = cmd.Flags().GetBool("no-color")
			cb.app.config.ColorMode, _ = cmd.Flags().GetString("color")
			cb.initConfig()
		},
	}

	// Set version information
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", cb.app.version, cb.app.commit, cb.app.buildDate)
	cmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	// Add persistent flags
	cmd.PersistentFlags().Bool("verbose", false, "Enable verbose output")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output (same as --color=never)")
	cmd.PersistentFlags().String("color", "auto", "Control color output: auto, always, never")

	return cmd
}

// BuildCommandTree creates the root command with all subcommands attached
func (cb *CommandBuilder) BuildCommandTree() *cobra.Command {
	rootCmd := cb.BuildRootCmd()
	rootCmd.AddCommand(cb.BuildRunCmd())
	rootCmd.AddCommand(cb.BuildConfigCmd())
	return rootCmd
}

// Execute runs the root command with the process arguments
func (cb *CommandBuilder) Execute() error {
	return cb.BuildCommandTree().Execute()
}

// ExecuteArgs runs the root command with the given arguments
func (cb *CommandBuilder) ExecuteArgs(args []string) error {
	rootCmd := cb.BuildCommandTree()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// colorMode resolves the --no-color and --color flags
func (cb *CommandBuilder) colorMode() output.ColorMode {
	if cb.app.config.NoColor {
		return output.ColorNever
	}
	return output.ParseColorMode(cb.app.config.ColorMode)
}

// initConfig applies the color flags to the color package
func (cb *CommandBuilder) initConfig() {
	color.NoColor = !output.ShouldUseColor(cb.colorMode())
}
