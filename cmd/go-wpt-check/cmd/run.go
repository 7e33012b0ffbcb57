package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/go-wpt-check/internal/config"
	prerrors "github.com/mrz1836/go-wpt-check/internal/errors"
	"github.com/mrz1836/go-wpt-check/internal/github"
	"github.com/mrz1836/go-wpt-check/internal/logging"
	"github.com/mrz1836/go-wpt-check/internal/output"
	"github.com/mrz1836/go-wpt-check/internal/publish"
	"github.com/mrz1836/go-wpt-check/internal/runner"
	"github.com/mrz1836/go-wpt-check/internal/wpt"
)

// runFlags holds the run command's flag values. Flags override the environment.
type runFlags struct {
	urls     []string
	budget   string
	options  string
	label    string
	template string
	envFiles []string
	parallel int
	dryRun   bool
}

// BuildRunCmd creates the run command
func (cb *CommandBuilder) BuildRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "Run WebPageTest checks",
		Long: `Run WebPageTest against every configured URL.

Each URL is submitted, polled until complete and, for pull_request and
issue_comment events, summarized in a comment on the pull request.
When a budget file is configured the run fails if any budget is not met.

URLs and settings come from the GitHub Actions inputs (INPUT_*) or a .env
file. Flags take precedence over both.`,
		Example: `  # Test the URLs from INPUT_URLS
  go-wpt-check run

  # Test specific URLs against a budget
  go-wpt-check run --url https://example.com --budget .github/budget.json

  # Print the comment instead of posting it
  go-wpt-check run --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cb.runCheck(cmd, flags)
		},
	}

	cmd.Flags().StringArrayVarP(&flags.urls, "url", "u", nil, "URL to test (repeatable, overrides INPUT_URLS)")
	cmd.Flags().StringVar(&flags.budget, "budget", "", "Budget specs file (overrides INPUT_BUDGET)")
	cmd.Flags().StringVar(&flags.options, "options", "", "WebPageTest settings file (overrides INPUT_WPTOPTIONS)")
	cmd.Flags().StringVar(&flags.label, "label", "", "Label applied to every test (overrides INPUT_LABEL)")
	cmd.Flags().StringVar(&flags.template, "template", "", "Comment template file or inline template (overrides INPUT_TEMPLATE)")
	cmd.Flags().StringSliceVar(&flags.envFiles, "env-file", []string{".env"}, "Environment files to load when present")
	cmd.Flags().IntVarP(&flags.parallel, "parallel", "p", 0, "Concurrent tests (0 = one per URL)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the comment instead of posting it")

	return cmd
}

func (cb *CommandBuilder) runCheck(cmd *cobra.Command, flags *runFlags) error {
	formatter := output.New(output.Options{
		ColorEnabled: output.ShouldUseColor(cb.colorMode()),
		Actions:      output.IsActions(),
		Verbose:      cb.app.config.Verbose,
		Out:          cmd.OutOrStdout(),
		Err:          cmd.ErrOrStderr(),
	})

	cfg, err := config.Load(flags.envFiles...)
	if err != nil {
		formatter.Failure("Failed to load configuration: %v", err)
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlags(cmd, cfg, flags)

	if !cfg.ColorOutput {
		formatter = output.New(output.Options{
			Actions: output.IsActions(),
			Verbose: cb.app.config.Verbose,
			Out:     cmd.OutOrStdout(),
			Err:     cmd.ErrOrStderr(),
		})
	}

	level := cfg.LogLevel
	if cb.app.config.Verbose {
		level = "debug"
	}
	logger := logging.New(logging.Config{
		Level:       level,
		Development: !output.IsActions(),
		Output:      cmd.ErrOrStderr(),
	})
	defer func() { _ = logger.Sync() }()

	urls := cfg.URLList()
	if len(urls) == 0 {
		formatter.Failure("No URLs to test")
		formatter.SuggestAction("Set INPUT_URLS or pass --url")
		return prerrors.ErrNoURLs
	}

	testOptions, err := cfg.TestOptions()
	if err != nil {
		reportError(formatter, err)
		return err
	}

	trigger, err := github.LoadTrigger(cfg.GitHub.EventName, cfg.GitHub.EventPath, cfg.GitHub.Repository)
	if err != nil {
		formatter.Failure("Failed to read the workflow event: %v", err)
		return err
	}

	formatter.Group("WebPageTest Configuration")
	printConfiguration(formatter, cfg, urls, testOptions, trigger)
	formatter.EndGroup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service := cb.app.services.Testing(cfg, logger, formatter, cb.app.version)
	r := runner.New(service, formatter, logger)

	formatter.Group("Testing urls in WebPageTest..")
	results, err := r.Run(ctx, runner.Options{
		URLs:        urls,
		TestOptions: testOptions,
		Reportable:  trigger.Reportable(),
		Parallel:    cfg.Parallel,
		ProgressCallback: func(url, status string) {
			if status == runner.StatusRetrieving {
				formatter.Progress("Retrieving results for %s ...", url)
				return
			}
			formatter.Debug("%s: %s", url, status)
		},
	})
	formatter.EndGroup()
	if err != nil {
		formatter.Failure("Run failed: %v", err)
		return err
	}

	publishErr := cb.publish(ctx, cmd, cfg, flags, trigger, results)

	printSummary(formatter, results, publishErr)

	if !results.Success() || publishErr != nil {
		return prerrors.ErrRunFailed
	}
	return nil
}

// publish posts the report when the trigger can receive one
func (cb *CommandBuilder) publish(ctx context.Context, cmd *cobra.Command, cfg *config.Config, flags *runFlags,
	trigger github.Trigger, results *runner.Results,
) error {
	if !trigger.Reportable() {
		return nil
	}

	var poster publish.CommentPoster
	if flags.dryRun {
		poster = publish.WriterPoster{Out: cmd.OutOrStdout()}
	} else {
		poster = cb.app.services.Poster(cfg, cb.app.version)
	}

	renderer := publish.TemplateRenderer{BaseDir: cfg.GitHub.Workspace}
	return publish.New(renderer, poster, cfg.Template).Publish(ctx, trigger, results.Report)
}

// applyFlags overrides configuration with flags set on the command line
func applyFlags(cmd *cobra.Command, cfg *config.Config, flags *runFlags) {
	if len(flags.urls) > 0 {
		cfg.URLs = strings.Join(flags.urls, "\n")
	}
	if flags.budget != "" {
		cfg.Budget = flags.budget
	}
	if flags.options != "" {
		cfg.WPTOptions = flags.options
	}
	if flags.label != "" {
		cfg.Label = flags.label
	}
	if flags.template != "" {
		cfg.Template = flags.template
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Parallel = flags.parallel
	}
}

// configDump is the configuration echoed at the start of a run
type configDump struct {
	Host          string         `yaml:"host"`
	URLs          []string       `yaml:"urls"`
	Runs          int            `yaml:"runs"`
	Location      string         `yaml:"location"`
	Connectivity  string         `yaml:"connectivity"`
	FirstViewOnly bool           `yaml:"firstViewOnly"`
	EmulateMobile bool           `yaml:"emulateMobile"`
	PollResults   string         `yaml:"pollResults"`
	Timeout       string         `yaml:"timeout"`
	Label         string         `yaml:"label,omitempty"`
	Budget        string         `yaml:"budget,omitempty"`
	Extra         map[string]any `yaml:"extra,omitempty"`
	Event         string         `yaml:"event,omitempty"`
	Repository    string         `yaml:"repository,omitempty"`
}

func printConfiguration(f *output.Formatter, cfg *config.Config, urls []string, opts wpt.TestOptions, trigger github.Trigger) {
	dump := configDump{
		Host:          cfg.Host,
		URLs:          urls,
		Runs:          opts.Runs,
		Location:      opts.Location,
		Connectivity:  opts.Connectivity,
		FirstViewOnly: opts.FirstViewOnly,
		EmulateMobile: opts.EmulateMobile,
		PollResults:   opts.PollInterval.String(),
		Timeout:       opts.Timeout.String(),
		Label:         opts.Label,
		Budget:        cfg.Budget,
		Extra:         opts.Extra,
		Event:         trigger.Name,
		Repository:    cfg.GitHub.Repository,
	}

	data, err := yaml.Marshal(dump)
	if err != nil {
		f.Warning("Could not print configuration: %v", err)
		return
	}
	f.CodeBlock(strings.TrimRight(string(data), "\n"))
}

func printSummary(f *output.Formatter, results *runner.Results, publishErr error) {
	urls := make([]string, 0, len(results.URLResults))
	for _, u := range results.URLResults {
		urls = append(urls, u.URL)
	}

	f.Subheader("Summary")
	f.Detail("Tested %s", f.FormatURLList(urls, 5))
	f.Detail("%s", f.FormatExecutionStats(results.Passed, results.Failed, results.BudgetFailures, results.TotalDuration))
	f.Detail("%d of %d url(s) in the report", results.Report.Len(), len(results.URLResults))

	for _, err := range results.Errors() {
		if errors.Is(err, prerrors.ErrExtraction) {
			f.Warning("%v", err)
			continue
		}
		reportError(f, err)
	}

	if publishErr != nil {
		reportError(f, publishErr)
	}

	if results.Success() && publishErr == nil {
		f.Success("All WebPageTest checks passed in %s", f.Duration(results.TotalDuration.Round(time.Millisecond)))
	}
}

// reportError emits an error annotation and the error's suggestion, if any
func reportError(f *output.Formatter, err error) {
	f.Failure("Action failed with error: %v", err)

	var runErr *prerrors.RunError
	if errors.As(err, &runErr) && runErr.Suggestion != "" {
		f.SuggestAction(runErr.Suggestion)
	}
}
