package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	prerrors "github.com/mrz1836/go-wpt-check/internal/errors"
	"github.com/mrz1836/go-wpt-check/internal/wpt"
)

// Test error variables to satisfy err113 linter
var (
	errServiceDown = errors.New("service unavailable")
	errNotFound    = errors.New("result not found")
)

// fakeService is an in-memory TestingService
type fakeService struct {
	mu sync.Mutex

	outcomes   map[string]wpt.Outcome
	submitErrs map[string]error
	results    map[string]*wpt.Result
	fetchErrs  map[string]error
	delay      time.Duration

	submits  map[string]int
	fetches  []string
	received []wpt.TestOptions

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeService() *fakeService {
	return &fakeService{
		outcomes:   map[string]wpt.Outcome{},
		submitErrs: map[string]error{},
		results:    map[string]*wpt.Result{},
		fetchErrs:  map[string]error{},
		submits:    map[string]int{},
	}
}

func (f *fakeService) Submit(_ context.Context, url string, opts wpt.TestOptions) (wpt.Outcome, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		current := f.maxInFlight.Load()
		if n <= current || f.maxInFlight.CompareAndSwap(current, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	// Mutate the copy the way a client adding defaults would
	opts.Runs = 99
	if opts.Extra != nil {
		opts.Extra["mutated"] = url
	}
	if specs, ok := opts.Specs["median"].(map[string]any); ok {
		specs["mutated"] = url
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits[url]++
	f.received = append(f.received, opts)

	if err := f.submitErrs[url]; err != nil {
		return wpt.Outcome{}, err
	}
	return f.outcomes[url], nil
}

func (f *fakeService) Fetch(_ context.Context, id string) (*wpt.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, id)

	if err := f.fetchErrs[id]; err != nil {
		return nil, err
	}
	if r, ok := f.results[id]; ok {
		return r, nil
	}
	return nil, errNotFound
}

func (f *fakeService) ResultURL(testID string) string {
	return "https://wpt.example.com/result/" + testID
}

// recordingNotifier captures notifier lines
type recordingNotifier struct {
	mu    sync.Mutex
	lines []string
}

func (n *recordingNotifier) add(prefix, format string, args ...interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lines = append(n.lines, prefix+fmt.Sprintf(format, args...))
}

func (n *recordingNotifier) Info(format string, args ...interface{}) { n.add("info: ", format, args...) }

func (n *recordingNotifier) Success(format string, args ...interface{}) {
	n.add("success: ", format, args...)
}

func (n *recordingNotifier) Warning(format string, args ...interface{}) {
	n.add("warning: ", format, args...)
}

func (n *recordingNotifier) Error(format string, args ...interface{}) { n.add("error: ", format, args...) }

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.lines...)
}

func resultFor(id, url string, firstView map[string]any) *wpt.Result {
	return &wpt.Result{
		StatusCode: 200,
		Data: &wpt.ResultData{
			ID:      id,
			URL:     url,
			Summary: "https://wpt.example.com/results.php?test=" + id,
			Median:  &wpt.Median{FirstView: firstView},
		},
	}
}

// RunnerTestSuite exercises the aggregator against the fake service
type RunnerTestSuite struct {
	suite.Suite

	service  *fakeService
	notifier *recordingNotifier
	runner   *Runner
}

func TestRunnerTestSuite(t *testing.T) {
	suite.Run(t, new(RunnerTestSuite))
}

func (s *RunnerTestSuite) SetupTest() {
	s.service = newFakeService()
	s.notifier = &recordingNotifier{}
	s.runner = New(s.service, s.notifier, nil)
}

func (s *RunnerTestSuite) TestRun_NoURLs() {
	_, err := s.runner.Run(context.Background(), Options{})
	s.Require().ErrorIs(err, prerrors.ErrNoURLs)
}

func (s *RunnerTestSuite) TestRun_TwoPlainURLsReportable() {
	s.service.outcomes["https://a.example"] = wpt.PlainOutcome("A1", "https://wpt.example.com/results.php?test=A1")
	s.service.outcomes["https://b.example"] = wpt.PlainOutcome("B1", "https://wpt.example.com/results.php?test=B1")
	s.service.results["A1"] = resultFor("A1", "https://a.example", map[string]any{"TTFB": 120.0})
	s.service.results["B1"] = resultFor("B1", "https://b.example", map[string]any{"TTFB": 340.0})

	results, err := s.runner.Run(context.Background(), Options{
		URLs:        []string{"https://a.example", "https://b.example"},
		TestOptions: wpt.DefaultTestOptions(),
		Reportable:  true,
	})
	s.Require().NoError(err)

	s.True(results.Success())
	s.Equal(2, results.Passed)
	s.Require().Len(results.Report.Tests, 2)

	byURL := map[string]float64{}
	for _, t := range results.Report.Tests {
		s.Require().Len(t.Metrics, 1)
		byURL[t.URL] = t.Metrics[0].Value
	}
	s.Equal(map[string]float64{"https://a.example": 120, "https://b.example": 340}, byURL)
	s.ElementsMatch([]string{"A1", "B1"}, s.service.fetches)

	lines := s.notifier.all()
	s.Contains(lines, "info: Submitting test for https://a.example ...")
	s.Contains(lines, "success: Tests successfully completed for https://a.example. Full results at https://wpt.example.com/results.php?test=A1")
}

func (s *RunnerTestSuite) TestRun_BudgetFailuresStillReport() {
	specs := map[string]any{"median": map[string]any{"firstView": map[string]any{"TTFB": 100}}}
	s.service.outcomes["https://a.example"] = wpt.BudgetOutcome("T1", wpt.SpecReport{
		Assertions: []wpt.Assertion{{Path: "a"}, {Path: "b", Missing: true}},
	})
	s.service.results["T1"] = resultFor("T1", "https://a.example", map[string]any{"TTFB": 450.0})

	opts := wpt.DefaultTestOptions()
	opts.Specs = specs

	results, err := s.runner.Run(context.Background(), Options{
		URLs:        []string{"https://a.example"},
		TestOptions: opts,
		Reportable:  true,
	})
	s.Require().NoError(err)

	s.False(results.Success())
	s.Equal(1, results.BudgetFailures)
	s.Equal(0, results.Failed)

	u := results.URLResults[0]
	s.Require().ErrorIs(u.Budget, prerrors.ErrBudgetViolation)
	s.Contains(u.Budget.Error(), "2 performance budgets not met")
	s.True(u.Reported)
	s.Equal([]string{"T1"}, s.service.fetches, "budget mode retrieves by test id")
	s.Len(results.Report.Tests, 1)

	s.Contains(s.notifier.all(), "success: Tests successfully completed for https://a.example. Full results at https://wpt.example.com/result/T1")
	s.Contains(s.notifier.all(), "warning: https://a.example: budget not met for b: no value in result")
}

func (s *RunnerTestSuite) TestRun_SingleBudgetFailure() {
	s.service.outcomes["https://a.example"] = wpt.BudgetOutcome("T1", wpt.SpecReport{
		Assertions: []wpt.Assertion{{Path: "a"}},
	})

	results, err := s.runner.Run(context.Background(), Options{URLs: []string{"https://a.example"}})
	s.Require().NoError(err)

	s.Require().Error(results.URLResults[0].Budget)
	s.Contains(results.URLResults[0].Budget.Error(), "One performance budget not met.")
}

func (s *RunnerTestSuite) TestRun_BudgetPassed() {
	s.service.outcomes["https://a.example"] = wpt.BudgetOutcome("T1", wpt.SpecReport{
		Assertions: []wpt.Assertion{{Path: "a", Passed: true}},
	})

	results, err := s.runner.Run(context.Background(), Options{URLs: []string{"https://a.example"}})
	s.Require().NoError(err)

	s.True(results.Success())
	s.NoError(results.URLResults[0].Budget)
}

func (s *RunnerTestSuite) TestRun_NotReportableSkipsRetrieval() {
	s.service.outcomes["https://a.example"] = wpt.PlainOutcome("A1", "summary")
	s.service.submitErrs["https://b.example"] = errServiceDown

	results, err := s.runner.Run(context.Background(), Options{
		URLs:       []string{"https://a.example", "https://b.example"},
		Reportable: false,
	})
	s.Require().NoError(err)

	s.Empty(results.Report.Tests)
	s.Empty(s.service.fetches)
	s.Equal(1, results.Failed)
}

func (s *RunnerTestSuite) TestRun_FailuresAreContained() {
	urls := []string{"https://ok.example", "https://submit.example", "https://fetch.example", "https://extract.example"}
	s.service.outcomes["https://ok.example"] = wpt.PlainOutcome("OK", "s")
	s.service.submitErrs["https://submit.example"] = errServiceDown
	s.service.outcomes["https://fetch.example"] = wpt.PlainOutcome("F", "s")
	s.service.fetchErrs["F"] = errNotFound
	s.service.outcomes["https://extract.example"] = wpt.PlainOutcome("X", "s")
	s.service.results["OK"] = resultFor("OK", "https://ok.example", map[string]any{"TTFB": 1.0})
	s.service.results["X"] = &wpt.Result{Data: &wpt.ResultData{ID: "X"}}

	results, err := s.runner.Run(context.Background(), Options{URLs: urls, Reportable: true})
	s.Require().NoError(err)

	s.Require().Len(results.URLResults, 4)
	for i, u := range results.URLResults {
		s.Equal(urls[i], u.URL)
	}

	s.NoError(results.URLResults[0].Err)
	s.Require().ErrorIs(results.URLResults[1].Err, prerrors.ErrSubmission)
	s.Require().ErrorIs(results.URLResults[1].Err, errServiceDown)
	s.Require().ErrorIs(results.URLResults[2].Err, prerrors.ErrRetrieval)
	s.Require().ErrorIs(results.URLResults[3].Err, prerrors.ErrExtraction)
	s.False(results.URLResults[3].Fatal())

	s.Equal(2, results.Failed, "extraction problems do not fail the run")
	s.Equal(2, results.Passed)
	s.Len(results.Errors(), 3)
	s.Len(results.Report.Tests, 1)
}

func (s *RunnerTestSuite) TestRun_EachURLExactlyOnce() {
	urls := make([]string, 25)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://site%d.example", i)
		s.service.outcomes[urls[i]] = wpt.PlainOutcome(fmt.Sprintf("R%d", i), "s")
	}

	var mu sync.Mutex
	statuses := map[string][]string{}

	results, err := s.runner.Run(context.Background(), Options{
		URLs: urls,
		ProgressCallback: func(url, status string) {
			mu.Lock()
			defer mu.Unlock()
			statuses[url] = append(statuses[url], status)
		},
	})
	s.Require().NoError(err)

	s.Len(results.URLResults, len(urls))
	for _, u := range urls {
		s.Equal(1, s.service.submits[u], u)
		s.Equal([]string{StatusSubmitting, StatusCompleted}, statuses[u], u)
	}
}

func (s *RunnerTestSuite) TestRun_CloneIsolation() {
	template := wpt.DefaultTestOptions()
	template.Extra = map[string]any{"video": true}
	template.Specs = map[string]any{"median": map[string]any{"TTFB": 100}}
	s.service.outcomes["https://a.example"] = wpt.BudgetOutcome("A", wpt.SpecReport{})
	s.service.outcomes["https://b.example"] = wpt.BudgetOutcome("B", wpt.SpecReport{})

	_, err := s.runner.Run(context.Background(), Options{
		URLs:        []string{"https://a.example", "https://b.example"},
		TestOptions: template,
		Parallel:    1,
	})
	s.Require().NoError(err)

	s.Equal(3, template.Runs)
	s.Equal(map[string]any{"video": true}, template.Extra)
	s.Equal(map[string]any{"median": map[string]any{"TTFB": 100}}, template.Specs)

	s.Require().Len(s.service.received, 2)
	second := s.service.received[1]
	s.Equal(map[string]any{"TTFB": 100, "mutated": second.Extra["mutated"]}, second.Specs["median"],
		"a later task never sees an earlier task's mutation")
}

func (s *RunnerTestSuite) TestRun_ParallelLimit() {
	s.service.delay = 20 * time.Millisecond
	urls := []string{"https://1.example", "https://2.example", "https://3.example", "https://4.example"}
	for _, u := range urls {
		s.service.outcomes[u] = wpt.PlainOutcome(u, "s")
	}

	_, err := s.runner.Run(context.Background(), Options{URLs: urls, Parallel: 2})
	s.Require().NoError(err)

	s.LessOrEqual(s.service.maxInFlight.Load(), int32(2))
}

func (s *RunnerTestSuite) TestRun_LabelAndRunID() {
	s.service.outcomes["https://a.example"] = wpt.PlainOutcome("A", "s")
	opts := wpt.DefaultTestOptions()
	opts.Label = "nightly"

	results, err := s.runner.Run(context.Background(), Options{
		URLs:        []string{"https://a.example"},
		TestOptions: opts,
		RunID:       "run-1",
	})
	s.Require().NoError(err)
	s.Equal("run-1", results.Report.RunID)
	s.Equal("nightly", results.Report.Label)

	generated, err := s.runner.Run(context.Background(), Options{URLs: []string{"https://a.example"}})
	s.Require().NoError(err)
	s.Len(generated.Report.RunID, 36)
}

func TestURLResult_Fatal(t *testing.T) {
	assert.False(t, URLResult{}.Fatal())
	assert.True(t, URLResult{}.Success())
	assert.True(t, URLResult{Budget: prerrors.NewBudgetViolation("u", 1)}.Fatal())
	assert.True(t, URLResult{Err: prerrors.NewSubmissionError("u", errServiceDown)}.Fatal())
	assert.False(t, URLResult{Err: prerrors.NewExtractionError("u", "data")}.Fatal())
}

func TestNew_NilCollaborators(t *testing.T) {
	service := newFakeService()
	service.outcomes["https://a.example"] = wpt.PlainOutcome("A", "s")

	r := New(service, nil, nil)
	results, err := r.Run(context.Background(), Options{URLs: []string{"https://a.example"}})
	require.NoError(t, err)
	assert.True(t, results.Success())
}

func TestRun_FailureLoggedOnceAtInfo(t *testing.T) {
	service := newFakeService()
	service.submitErrs["https://a.example"] = errServiceDown
	notifier := &recordingNotifier{}

	core, logs := observer.New(zapcore.InfoLevel)
	r := New(service, notifier, zap.New(core))

	results, err := r.Run(context.Background(), Options{URLs: []string{"https://a.example"}})
	require.NoError(t, err)
	require.Equal(t, 1, results.Failed)

	assert.Empty(t, logs.FilterMessage("url failed").All())
	errorLines := 0
	for _, line := range notifier.all() {
		if strings.HasPrefix(line, "error: ") {
			errorLines++
		}
	}
	assert.Equal(t, 1, errorLines)
}
