// Package wpt provides a WebPageTest API client and the submission outcome model
package wpt

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TestOptions configures a single WebPageTest run. A run's options are built once and
// treated as read-only; callers Clone before handing a copy to code that may mutate it.
type TestOptions struct {
	Runs          int
	Location      string
	Connectivity  string
	FirstViewOnly bool
	EmulateMobile bool
	PollInterval  time.Duration
	Timeout       time.Duration
	Label         string

	// Specs is the budget specification tree. A non-nil Specs switches submissions to budget mode.
	Specs map[string]any

	// Extra holds additional runtest.php parameters passed through verbatim
	Extra map[string]any
}

// DefaultTestOptions returns the options used when no settings file is supplied
func DefaultTestOptions() TestOptions {
	return TestOptions{
		Runs:          3,
		Location:      "Dulles:Chrome",
		Connectivity:  "4G",
		FirstViewOnly: true,
		EmulateMobile: true,
		PollInterval:  5 * time.Second,
		Timeout:       240 * time.Second,
	}
}

// HasBudget reports whether submissions with these options evaluate budget specs
func (o TestOptions) HasBudget() bool {
	return o.Specs != nil
}

// Clone returns a deep copy. Mutating the copy's maps never affects o.
func (o TestOptions) Clone() TestOptions {
	c := o
	if o.Specs != nil {
		c.Specs = cloneMap(o.Specs)
	}
	if o.Extra != nil {
		c.Extra = cloneMap(o.Extra)
	}
	return c
}

// Query builds the runtest.php parameters for testURL
func (o TestOptions) Query(testURL string) url.Values {
	q := url.Values{}
	q.Set("url", testURL)
	q.Set("f", "json")

	if o.Runs > 0 {
		q.Set("runs", strconv.Itoa(o.Runs))
	}
	if location := o.location(); location != "" {
		q.Set("location", location)
	}
	if o.FirstViewOnly {
		q.Set("fvonly", "1")
	}
	if o.EmulateMobile {
		q.Set("mobile", "1")
	}
	if o.Label != "" {
		q.Set("label", o.Label)
	}

	keys := make([]string, 0, len(o.Extra))
	for k := range o.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if q.Has(k) {
			continue
		}
		q.Set(k, formatParam(o.Extra[k]))
	}

	return q
}

// location joins the location and connectivity profile the way runtest.php expects
func (o TestOptions) location() string {
	if o.Connectivity == "" || strings.Contains(o.Location, ".") {
		return o.Location
	}
	if o.Location == "" {
		return ""
	}
	return o.Location + "." + o.Connectivity
}

func formatParam(v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return t
	}
}

// Mode tags which shape a submission produced
type Mode int

const (
	// ModePlain is produced when no budget specs were supplied
	ModePlain Mode = iota
	// ModeBudget is produced when the run was evaluated against budget specs
	ModeBudget
)

// String returns the mode name
func (m Mode) String() string {
	switch m {
	case ModeBudget:
		return "budget"
	case ModePlain:
		return "plain"
	default:
		return "unknown"
	}
}

// Outcome is the normalized result of a submission. Fields are valid per Mode:
// TestID, FailureCount and Budget for ModeBudget; ResultID and SummaryURL for ModePlain.
type Outcome struct {
	Mode Mode

	TestID       string
	FailureCount int
	Budget       *SpecReport

	ResultID   string
	SummaryURL string
}

// BudgetOutcome creates a budget-mode outcome
func BudgetOutcome(testID string, report SpecReport) Outcome {
	return Outcome{
		Mode:         ModeBudget,
		TestID:       testID,
		FailureCount: report.Failures(),
		Budget:       &report,
	}
}

// PlainOutcome creates a plain-mode outcome
func PlainOutcome(resultID, summaryURL string) Outcome {
	return Outcome{
		Mode:       ModePlain,
		ResultID:   resultID,
		SummaryURL: summaryURL,
	}
}

// LocatorID returns the identifier used to fetch full results
func (o Outcome) LocatorID() string {
	if o.Mode == ModeBudget {
		return o.TestID
	}
	return o.ResultID
}

// Failures returns the budget failure count, zero in plain mode
func (o Outcome) Failures() int {
	if o.Mode != ModeBudget {
		return 0
	}
	return o.FailureCount
}

// Result is a jsonResult.php payload
type Result struct {
	StatusCode int         `json:"statusCode"`
	StatusText string      `json:"statusText"`
	Data       *ResultData `json:"data"`

	// Raw is the undecoded payload, used for budget spec evaluation
	Raw map[string]any `json:"-"`
}

// ResultData is the data section of a result payload
type ResultData struct {
	ID      string  `json:"id"`
	URL     string  `json:"url"`
	Summary string  `json:"summary"`
	Median  *Median `json:"median"`
}

// Median holds the median run for each view
type Median struct {
	FirstView View `json:"firstView"`
}

// View is a run's metric fields keyed by WebPageTest's field names
type View map[string]any

// Number returns the numeric value of a field
func (v View) Number(key string) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return toFloat(v[key])
}

// Waterfall returns the waterfall image URL, empty when absent
func (v View) Waterfall() string {
	images, ok := v["images"].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := images["waterfall"].(string)
	return s
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	default:
		return 0, false
	}
}
