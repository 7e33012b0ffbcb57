package wpt

import (
	"fmt"
	"sort"
	"strings"
)

// specsDefaultsKey holds presentation defaults in a specs file and is not an assertion
const specsDefaultsKey = "defaults"

// Assertion is a single budget check against a result field
type Assertion struct {
	Path    string
	Actual  float64
	Min     *float64
	Max     *float64
	Missing bool
	Passed  bool
}

// String describes the assertion for log output
func (a Assertion) String() string {
	if a.Missing {
		return fmt.Sprintf("%s: no value in result", a.Path)
	}

	var bounds []string
	if a.Min != nil {
		bounds = append(bounds, fmt.Sprintf(">= %s", formatParam(*a.Min)))
	}
	if a.Max != nil {
		bounds = append(bounds, fmt.Sprintf("<= %s", formatParam(*a.Max)))
	}
	return fmt.Sprintf("%s: %s (expected %s)", a.Path, formatParam(a.Actual), strings.Join(bounds, " and "))
}

// SpecReport is the result of evaluating a specs tree against a result
type SpecReport struct {
	Assertions []Assertion
}

// Failures returns the number of assertions that did not pass
func (r SpecReport) Failures() int {
	n := 0
	for _, a := range r.Assertions {
		if !a.Passed {
			n++
		}
	}
	return n
}

// Failed returns the assertions that did not pass
func (r SpecReport) Failed() []Assertion {
	var out []Assertion
	for _, a := range r.Assertions {
		if !a.Passed {
			out = append(out, a)
		}
	}
	return out
}

// EvaluateSpecs walks specs alongside data. A numeric leaf is a maximum; a map with only
// min and/or max keys is a range. Any other map descends into the matching data field.
// A field missing from data fails its assertion.
func EvaluateSpecs(specs, data map[string]any) SpecReport {
	var report SpecReport
	walkSpecs(specs, data, "", &report)
	return report
}

func walkSpecs(spec, data map[string]any, prefix string, report *SpecReport) {
	keys := make([]string, 0, len(spec))
	for k := range spec {
		if prefix == "" && k == specsDefaultsKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		var actual any
		if data != nil {
			actual = data[key]
		}

		switch rule := spec[key].(type) {
		case map[string]any:
			if lo, hi, ok := rangeRule(rule); ok {
				report.Assertions = append(report.Assertions, checkBound(path, actual, lo, hi))
				continue
			}
			child, _ := actual.(map[string]any)
			walkSpecs(rule, child, path, report)
		default:
			if limit, ok := toFloat(rule); ok {
				report.Assertions = append(report.Assertions, checkBound(path, actual, nil, &limit))
			}
		}
	}
}

// rangeRule recognizes {"min": n, "max": n} leaves
func rangeRule(rule map[string]any) (lo, hi *float64, ok bool) {
	if len(rule) == 0 {
		return nil, nil, false
	}
	for k, v := range rule {
		f, isNum := toFloat(v)
		if !isNum {
			return nil, nil, false
		}
		switch k {
		case "min":
			lo = &f
		case "max":
			hi = &f
		default:
			return nil, nil, false
		}
	}
	return lo, hi, true
}

func checkBound(path string, actual any, lo, hi *float64) Assertion {
	a := Assertion{Path: path, Min: lo, Max: hi}
	v, ok := toFloat(actual)
	if !ok {
		a.Missing = true
		return a
	}
	a.Actual = v
	a.Passed = (lo == nil || v >= *lo) && (hi == nil || v <= *hi)
	return a
}
