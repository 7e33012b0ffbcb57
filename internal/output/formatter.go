// Package output provides utilities for formatting user-facing output and GitHub Actions workflow commands
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Formatter handles all output formatting for the check. It is safe for concurrent
// use so per-URL pipelines can report progress directly.
type Formatter struct {
	colorEnabled bool
	actions      bool
	verbose      bool
	out          io.Writer
	err          io.Writer
	mu           sync.Mutex
}

// Options for configuring the formatter
type Options struct {
	ColorEnabled bool
	// Actions enables ::group::, ::debug:: and ::error:: workflow commands
	Actions bool
	// Verbose prints debug lines outside of GitHub Actions
	Verbose bool
	Out     io.Writer
	Err     io.Writer
}

// New creates a new formatter with the given options
func New(opts Options) *Formatter {
	f := &Formatter{
		colorEnabled: opts.ColorEnabled,
		actions:      opts.Actions,
		verbose:      opts.Verbose,
		out:          opts.Out,
		err:          opts.Err,
	}

	if f.out == nil {
		f.out = os.Stdout
	}
	if f.err == nil {
		f.err = os.Stderr
	}

	return f
}

// ColorMode represents the color output mode
type ColorMode int

const (
	// ColorAuto automatically detects the best color setting
	ColorAuto ColorMode = iota
	// ColorAlways always enables color output
	ColorAlways
	// ColorNever never enables color output
	ColorNever
)

// ParseColorMode maps a --color flag value to a ColorMode
func ParseColorMode(s string) ColorMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "always":
		return ColorAlways
	case "never":
		return ColorNever
	default:
		return ColorAuto
	}
}

// ShouldUseColor determines if color output should be enabled based on the mode
func ShouldUseColor(mode ColorMode) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	case ColorAuto:
		if os.Getenv("NO_COLOR") != "" {
			return false
		}
		if os.Getenv("WPT_CHECK_COLOR_OUTPUT") == "false" {
			return false
		}
		if os.Getenv("TERM") == "dumb" {
			return false
		}
		if isCI() {
			return false
		}
		return isTTY()
	default:
		return false
	}
}

// IsActions reports whether the process runs inside a GitHub Actions job
func IsActions() bool {
	return os.Getenv("GITHUB_ACTIONS") == "true"
}

// isCI detects if we're running in a CI environment
func isCI() bool {
	ciEnvVars := []string{
		"CI",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"CIRCLECI",
		"BUILDKITE",
		"DRONE",
		"TF_BUILD", // Azure DevOps
	}

	for _, envVar := range ciEnvVars {
		if value := os.Getenv(envVar); value == "true" || value == "1" || (envVar != "CI" && value != "") {
			return true
		}
	}

	return false
}

// isTTY checks if stdout is connected to a terminal
func isTTY() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

// print writes one line, colored when enabled
func (f *Formatter) print(w io.Writer, attr color.Attribute, prefix, format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.colorEnabled {
		c := color.New(attr)
		c.SetWriter(w)
		_, _ = c.Fprintf(w, prefix+format+"\n", args...)
		return
	}
	_, _ = fmt.Fprintf(w, prefix+format+"\n", args...)
}

// Writer returns a writer to standard output that shares the formatter's lock
func (f *Formatter) Writer() io.Writer {
	return lockedWriter{f: f}
}

type lockedWriter struct {
	f *Formatter
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.f.mu.Lock()
	defer w.f.mu.Unlock()
	return w.f.out.Write(p)
}

// Success prints a success message with green checkmark
func (f *Formatter) Success(format string, args ...interface{}) {
	f.print(f.out, color.FgGreen, "✓ ", format, args...)
}

// Error prints an error message with red X
func (f *Formatter) Error(format string, args ...interface{}) {
	f.print(f.err, color.FgRed, "✗ ", format, args...)
}

// Warning prints a warning message with yellow warning symbol
func (f *Formatter) Warning(format string, args ...interface{}) {
	f.print(f.err, color.FgYellow, "⚠ ", format, args...)
}

// Info prints an info message with blue info symbol
func (f *Formatter) Info(format string, args ...interface{}) {
	f.print(f.out, color.FgBlue, "ℹ ", format, args...)
}

// Progress prints a progress message with spinning indicator
func (f *Formatter) Progress(format string, args ...interface{}) {
	f.print(f.out, color.FgCyan, "⏳ ", format, args...)
}

// Header prints a section header
func (f *Formatter) Header(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.colorEnabled {
		c1 := color.New(color.FgCyan, color.Bold)
		c1.SetWriter(f.out)
		_, _ = c1.Fprintf(f.out, "\n%s\n", text)
		c2 := color.New(color.FgCyan)
		c2.SetWriter(f.out)
		_, _ = c2.Fprintf(f.out, "%s\n", strings.Repeat("─", len(text)))
	} else {
		_, _ = fmt.Fprintf(f.out, "\n%s\n%s\n", text, strings.Repeat("─", len(text)))
	}
}

// Subheader prints a subsection header
func (f *Formatter) Subheader(text string) {
	f.print(f.out, color.Bold, "\n", "%s:", text)
}

// Detail prints detailed information with indentation
func (f *Formatter) Detail(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = fmt.Fprintf(f.out, "  "+format+"\n", args...)
}

// Group opens a collapsible log group in Actions, or prints a header elsewhere
func (f *Formatter) Group(title string) {
	if !f.actions {
		f.Header(title)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = fmt.Fprintf(f.out, "::group::%s\n", escapeData(title))
}

// EndGroup closes a log group opened with Group
func (f *Formatter) EndGroup() {
	if !f.actions {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, _ = fmt.Fprintln(f.out, "::endgroup::")
}

// Debug prints a debug line. In Actions it is only shown with step debug logging enabled.
func (f *Formatter) Debug(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if f.actions {
		f.mu.Lock()
		defer f.mu.Unlock()
		_, _ = fmt.Fprintf(f.out, "::debug::%s\n", escapeData(msg))
		return
	}
	if f.verbose {
		f.print(f.out, color.Faint, "  ", "%s", msg)
	}
}

// Failure reports a run failure: an error annotation in Actions and an error line elsewhere
func (f *Formatter) Failure(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if f.actions {
		f.mu.Lock()
		defer f.mu.Unlock()
		_, _ = fmt.Fprintf(f.out, "::error::%s\n", escapeData(msg))
		return
	}
	f.Error("%s", msg)
}

// escapeData escapes a workflow command message
func escapeData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}

// Duration formats a duration
func (f *Formatter) Duration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dμs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// FormatURLList formats a list of URLs for display
func (f *Formatter) FormatURLList(urls []string, maxURLs int) string {
	if len(urls) == 0 {
		return "no urls"
	}

	if len(urls) == 1 {
		return urls[0]
	}

	if len(urls) <= maxURLs {
		return strings.Join(urls, ", ")
	}

	shown := strings.Join(urls[:maxURLs], ", ")
	return fmt.Sprintf("%s ... and %d more", shown, len(urls)-maxURLs)
}

// FormatExecutionStats formats per-URL run statistics
func (f *Formatter) FormatExecutionStats(passed, failed, budgetFailures int, duration time.Duration) string {
	stats := []string{}

	colored := func(attr color.Attribute, format string, n int) string {
		if f.colorEnabled {
			return color.New(attr).Sprintf(format, n)
		}
		return fmt.Sprintf(format, n)
	}

	if passed > 0 {
		stats = append(stats, colored(color.FgGreen, "%d passed", passed))
	}
	if failed > 0 {
		stats = append(stats, colored(color.FgRed, "%d failed", failed))
	}
	if budgetFailures > 0 {
		stats = append(stats, colored(color.FgYellow, "%d budget(s) not met", budgetFailures))
	}
	if len(stats) == 0 {
		stats = append(stats, "no urls tested")
	}

	return fmt.Sprintf("%s in %s", strings.Join(stats, ", "), f.Duration(duration))
}

// CodeBlock formats text as a code block
func (f *Formatter) CodeBlock(text string) {
	for _, line := range strings.Split(text, "\n") {
		f.print(f.out, color.Faint, "    ", "%s", line)
	}
}

// SuggestAction prints an actionable suggestion
func (f *Formatter) SuggestAction(action string) {
	f.print(f.out, color.FgMagenta, "💡 ", "%s", action)
}
