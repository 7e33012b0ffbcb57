// Package report provides the per-URL and aggregate report model, metric extraction and budget evaluation
package report

import (
	"sync"

	prerrors "github.com/mrz1836/go-wpt-check/internal/errors"
	"github.com/mrz1836/go-wpt-check/internal/metrics"
	"github.com/mrz1836/go-wpt-check/internal/wpt"
)

// Metric is one labeled metric value
type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// URLReport is the normalized result for one tested URL
type URLReport struct {
	URL       string   `json:"url"`
	TestLink  string   `json:"testLink"`
	Waterfall string   `json:"waterfall"`
	Metrics   []Metric `json:"metrics"`
}

// RunReport aggregates URL reports for a run. Tests is append-only and its order
// follows completion order, not submission order.
type RunReport struct {
	RunID string      `json:"runId"`
	Label string      `json:"label,omitempty"`
	Tests []URLReport `json:"tests"`

	mu sync.Mutex
}

// NewRunReport creates an empty report
func NewRunReport(runID, label string) *RunReport {
	return &RunReport{
		RunID: runID,
		Label: label,
		Tests: []URLReport{},
	}
}

// Add appends a URL report. Safe for concurrent use.
func (r *RunReport) Add(u URLReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tests = append(r.Tests, u)
}

// Len returns the number of URL reports. Safe for concurrent use.
func (r *RunReport) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Tests)
}

// Extract converts a result payload into a URL report. Catalog metrics missing from
// the median first view, or not numeric, are skipped rather than reported as zero.
// A present zero is kept: a Cumulative Layout Shift of 0 is the best score.
func Extract(requestedURL string, result *wpt.Result) (URLReport, error) {
	if result == nil || result.Data == nil {
		return URLReport{}, prerrors.NewExtractionError(requestedURL, "data")
	}
	data := result.Data
	if data.Median == nil || data.Median.FirstView == nil {
		return URLReport{}, prerrors.NewExtractionError(requestedURL, "data.median.firstView")
	}
	view := data.Median.FirstView

	u := URLReport{
		URL:       data.URL,
		TestLink:  data.Summary,
		Waterfall: view.Waterfall(),
		Metrics:   []Metric{},
	}
	if u.URL == "" {
		u.URL = requestedURL
	}

	for _, m := range metrics.Catalog() {
		value, ok := view.Number(m.Key)
		if !ok {
			continue
		}
		u.Metrics = append(u.Metrics, Metric{Name: m.Label, Value: value})
	}

	return u, nil
}

// EvaluateBudget applies the budget failure policy: zero failures is a pass, anything
// above zero is a budget violation with singular or plural wording.
func EvaluateBudget(url string, failures int) error {
	if failures <= 0 {
		return nil
	}
	return prerrors.NewBudgetViolation(url, failures)
}
