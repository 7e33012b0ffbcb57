// Package errors defines common errors for the WebPageTest check
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. Every RunError wraps exactly one of these.
var (
	// ErrSubmission is returned when a test could not be submitted or produced no usable result
	ErrSubmission = errors.New("test submission failed")

	// ErrRetrieval is returned when a completed test's results could not be fetched
	ErrRetrieval = errors.New("result retrieval failed")

	// ErrExtraction is returned when a result payload is missing required fields
	ErrExtraction = errors.New("metric extraction failed")

	// ErrBudgetViolation is returned when one or more performance budgets are not met
	ErrBudgetViolation = errors.New("performance budget not met")

	// ErrPublish is returned when the report could not be rendered or posted
	ErrPublish = errors.New("report publication failed")

	// ErrConfiguration is returned for invalid inputs or unsupported trigger events
	ErrConfiguration = errors.New("invalid configuration")
)

// Common errors
var (
	// ErrRunFailed is returned by the CLI when the run ended in a failed state
	ErrRunFailed = errors.New("performance check failed")

	// ErrNoURLs is returned when no URLs are configured
	ErrNoURLs = errors.New("no urls to test")

	// ErrTimeout is returned when waiting on the testing service exceeds its deadline
	ErrTimeout = errors.New("operation timed out")

	// ErrServiceResponse is returned when the testing service answers with a non-success status
	ErrServiceResponse = errors.New("unexpected testing service response")

	// ErrGitHubAPIFailed is returned when the GitHub API returns a non-2xx status
	ErrGitHubAPIFailed = errors.New("GitHub API request failed")
)

// RunError is an error scoped to one URL's pipeline or to a run-level step
type RunError struct {
	// Kind is one of the error kind sentinels above
	Kind error

	// URL the pipeline was processing, empty for run-level errors
	URL string

	// Human-readable message explaining what went wrong
	Message string

	// Underlying cause
	Cause error

	// Actionable suggestion for how to fix the issue
	Suggestion string
}

// Error implements the error interface
func (e *RunError) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if msg == "" {
		msg = "unknown error"
	}
	if e.URL != "" {
		msg = fmt.Sprintf("%s: %s", e.URL, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As
func (e *RunError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// NewSubmissionError creates an error for a failed test submission
func NewSubmissionError(url string, cause error) *RunError {
	return &RunError{
		Kind:       ErrSubmission,
		URL:        url,
		Message:    "test submission failed",
		Cause:      cause,
		Suggestion: "Check the API key, the test location and that the URL is publicly reachable.",
	}
}

// NewRetrievalError creates an error for a failed result fetch
func NewRetrievalError(url string, cause error) *RunError {
	return &RunError{
		Kind:    ErrRetrieval,
		URL:     url,
		Message: "could not retrieve test results",
		Cause:   cause,
	}
}

// NewExtractionError creates an error for a malformed result payload
func NewExtractionError(url, field string) *RunError {
	return &RunError{
		Kind:    ErrExtraction,
		URL:     url,
		Message: fmt.Sprintf("result payload is missing %q", field),
	}
}

// NewBudgetViolation creates the run-level budget failure for failures > 0
func NewBudgetViolation(url string, failures int) *RunError {
	msg := "One performance budget not met."
	if failures > 1 {
		msg = fmt.Sprintf("%d performance budgets not met.", failures)
	}
	return &RunError{
		Kind:    ErrBudgetViolation,
		URL:     url,
		Message: msg,
	}
}

// NewPublishError creates an error for a failed render or comment post
func NewPublishError(message string, cause error) *RunError {
	return &RunError{
		Kind:    ErrPublish,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigurationError creates an error for invalid configuration
func NewConfigurationError(message, suggestion string) *RunError {
	return &RunError{
		Kind:       ErrConfiguration,
		Message:    message,
		Suggestion: suggestion,
	}
}

// TimeoutError is returned when an operation exceeds its deadline
type TimeoutError struct {
	Err       error
	Operation string
	Context   string
	Timeout   time.Duration
	Elapsed   time.Duration
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	op := e.Operation
	if e.Context != "" {
		op = fmt.Sprintf("%s (%s)", op, e.Context)
	}
	return fmt.Sprintf("%s timed out after %s", op, e.Timeout)
}

// Unwrap implements the error unwrapping interface
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// NewTimeoutError creates a timeout error for the given operation
func NewTimeoutError(operation, context string, timeout, elapsed time.Duration) *TimeoutError {
	return &TimeoutError{
		Err:       ErrTimeout,
		Operation: operation,
		Context:   context,
		Timeout:   timeout,
		Elapsed:   elapsed,
	}
}
