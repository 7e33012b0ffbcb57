// Package runner provides the run aggregator: one submit, retrieve and extract pipeline per URL
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	prerrors "github.com/mrz1836/go-wpt-check/internal/errors"
	"github.com/mrz1836/go-wpt-check/internal/report"
	"github.com/mrz1836/go-wpt-check/internal/wpt"
)

// TestingService is the WebPageTest collaborator used by each pipeline
type TestingService interface {
	Submit(ctx context.Context, url string, opts wpt.TestOptions) (wpt.Outcome, error)
	Fetch(ctx context.Context, id string) (*wpt.Result, error)
	ResultURL(testID string) string
}

// Notifier receives user-facing progress lines. output.Formatter satisfies it.
type Notifier interface {
	Info(format string, args ...interface{})
	Success(format string, args ...interface{})
	Warning(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Status values passed to ProgressCallback
const (
	StatusSubmitting = "submitting"
	StatusCompleted  = "completed"
	StatusRetrieving = "retrieving"
	StatusReported   = "reported"
	StatusFailed     = "failed"
)

// ProgressCallback is called as each URL's pipeline moves forward
type ProgressCallback func(url, status string)

// Runner runs one pipeline per URL and joins them
type Runner struct {
	service  TestingService
	notifier Notifier
	logger   *zap.Logger
}

// Options configures a run
type Options struct {
	URLs []string

	// TestOptions is the shared template. Each pipeline works on its own Clone.
	TestOptions wpt.TestOptions

	// Reportable enables retrieval and extraction. When false the report stays empty.
	Reportable bool

	// Parallel caps concurrent pipelines, 0 means one per URL
	Parallel int

	// RunID identifies the report, generated when empty
	RunID string

	ProgressCallback ProgressCallback
}

// Results contains the outcome of a run
type Results struct {
	Report         *report.RunReport
	URLResults     []URLResult
	Passed         int
	Failed         int
	BudgetFailures int
	TotalDuration  time.Duration
}

// URLResult is the settled outcome of one URL's pipeline
type URLResult struct {
	URL      string
	Outcome  wpt.Outcome
	Budget   error // budget violation, nil when within budget
	Err      error // submission, retrieval or extraction failure
	Reported bool
	Duration time.Duration
}

// Success reports whether the URL completed within budget without a pipeline error
func (r URLResult) Success() bool {
	return r.Err == nil && r.Budget == nil
}

// Fatal reports whether the URL's outcome fails the run. Extraction problems only
// drop the URL from the report.
func (r URLResult) Fatal() bool {
	if r.Budget != nil {
		return true
	}
	return r.Err != nil && !errors.Is(r.Err, prerrors.ErrExtraction)
}

// Errors returns every per-URL error in URL order
func (r *Results) Errors() []error {
	var errs []error
	for _, u := range r.URLResults {
		if u.Budget != nil {
			errs = append(errs, u.Budget)
		}
		if u.Err != nil {
			errs = append(errs, u.Err)
		}
	}
	return errs
}

// Success reports whether no URL failed the run
func (r *Results) Success() bool {
	return r.Failed == 0 && r.BudgetFailures == 0
}

// New creates a Runner. A nil notifier or logger disables that output.
func New(service TestingService, notifier Notifier, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		service:  service,
		notifier: notifier,
		logger:   logger,
	}
}

// Run executes every URL's pipeline concurrently and waits for all of them to settle.
// Per-URL failures are contained in URLResults and never stop sibling pipelines.
func (r *Runner) Run(ctx context.Context, opts Options) (*Results, error) {
	if len(opts.URLs) == 0 {
		return nil, prerrors.ErrNoURLs
	}

	start := time.Now()

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	results := &Results{
		Report:     report.NewRunReport(runID, opts.TestOptions.Label),
		URLResults: make([]URLResult, len(opts.URLs)),
	}

	var g errgroup.Group
	if opts.Parallel > 0 {
		g.SetLimit(opts.Parallel)
	}

	for i, u := range opts.URLs {
		i, u := i, u
		g.Go(func() error {
			results.URLResults[i] = r.runURL(ctx, u, opts, results.Report)
			return nil
		})
	}
	_ = g.Wait()

	for _, u := range results.URLResults {
		if u.Budget != nil {
			results.BudgetFailures++
		}
		if u.Err != nil && !errors.Is(u.Err, prerrors.ErrExtraction) {
			results.Failed++
		}
		if !u.Fatal() {
			results.Passed++
		}
	}

	results.TotalDuration = time.Since(start)

	r.logger.Info("run settled",
		zap.String("run_id", runID),
		zap.Int("urls", len(opts.URLs)),
		zap.Int("reported", results.Report.Len()),
		zap.Int("failed", results.Failed),
		zap.Int("budget_failures", results.BudgetFailures),
		zap.Duration("duration", results.TotalDuration))

	return results, nil
}

// runURL is the pipeline for one URL. Every failure is recorded on the
// URLResult instead of being returned.
func (r *Runner) runURL(ctx context.Context, url string, opts Options, rep *report.RunReport) (res URLResult) {
	start := time.Now()
	res.URL = url
	defer func() { res.Duration = time.Since(start) }()

	progress := func(status string) {
		if opts.ProgressCallback != nil {
			opts.ProgressCallback(url, status)
		}
	}

	progress(StatusSubmitting)
	r.info("Submitting test for %s ...", url)

	outcome, err := r.service.Submit(ctx, url, opts.TestOptions.Clone())
	if err != nil {
		res.Err = prerrors.NewSubmissionError(url, err)
		r.fail(url, res.Err)
		progress(StatusFailed)
		return res
	}
	res.Outcome = outcome

	r.success("Tests successfully completed for %s. Full results at %s", url, r.resultLink(outcome))
	progress(StatusCompleted)

	if outcome.Mode == wpt.ModeBudget {
		if outcome.Budget != nil {
			for _, a := range outcome.Budget.Failed() {
				r.warn("%s: budget not met for %s", url, a)
			}
		}
		res.Budget = report.EvaluateBudget(url, outcome.Failures())
		if res.Budget != nil {
			r.fail(url, res.Budget)
		}
	}

	if !opts.Reportable {
		return res
	}

	progress(StatusRetrieving)
	result, err := r.service.Fetch(ctx, outcome.LocatorID())
	if err != nil {
		res.Err = prerrors.NewRetrievalError(url, err)
		r.fail(url, res.Err)
		progress(StatusFailed)
		return res
	}

	urlReport, err := report.Extract(url, result)
	if err != nil {
		res.Err = err
		r.warn("Skipping %s in the report: %v", url, err)
		progress(StatusFailed)
		return res
	}

	rep.Add(urlReport)
	res.Reported = true
	progress(StatusReported)

	r.logger.Debug("url reported",
		zap.String("url", url),
		zap.String("locator", outcome.LocatorID()),
		zap.Int("metrics", len(urlReport.Metrics)))

	return res
}

// resultLink is the results page for the completion notice
func (r *Runner) resultLink(outcome wpt.Outcome) string {
	if outcome.Mode == wpt.ModeBudget {
		return r.service.ResultURL(outcome.TestID)
	}
	return outcome.SummaryURL
}

func (r *Runner) fail(url string, err error) {
	r.logger.Debug("url failed", zap.String("url", url), zap.Error(err))
	if r.notifier != nil {
		r.notifier.Error("%s", err.Error())
	}
}

func (r *Runner) info(format string, args ...interface{}) {
	if r.notifier != nil {
		r.notifier.Info(format, args...)
	}
}

func (r *Runner) success(format string, args ...interface{}) {
	if r.notifier != nil {
		r.notifier.Success(format, args...)
	}
}

func (r *Runner) warn(format string, args ...interface{}) {
	if r.notifier != nil {
		r.notifier.Warning(format, args...)
	}
}
