// Package progress provides timeout-aware progress indicators for long-running test runs
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Tracker prints periodic status lines while a test is pending on the testing service
type Tracker struct {
	operation      string
	context        string
	timeout        time.Duration
	interval       time.Duration
	startTime      time.Time
	done           chan struct{}
	mu             sync.Mutex
	canceled       bool
	updates        int
	progressFunc   func(elapsed, remaining time.Duration) string
	suppressOutput bool
	out            io.Writer
}

// Options configures a progress tracker
type Options struct {
	Operation      string                                        // e.g., "Waiting for results"
	Context        string                                        // e.g., the URL under test
	Timeout        time.Duration                                 // Total timeout, zero for none
	Interval       time.Duration                                 // Update interval (default: 30s)
	ProgressFunc   func(elapsed, remaining time.Duration) string // Custom progress message function
	SuppressOutput bool                                          // Don't output progress messages (for testing)
	Out            io.Writer                                     // Defaults to os.Stdout
}

// New creates a new progress tracker
func New(opts Options) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.ProgressFunc == nil {
		opts.ProgressFunc = defaultProgressMessage
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	return &Tracker{
		operation:      opts.Operation,
		context:        opts.Context,
		timeout:        opts.Timeout,
		interval:       opts.Interval,
		done:           make(chan struct{}),
		progressFunc:   opts.ProgressFunc,
		suppressOutput: opts.SuppressOutput,
		out:            opts.Out,
	}
}

// Start begins tracking progress in a separate goroutine
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	t.startTime = time.Now()
	t.mu.Unlock()

	go t.trackProgress(ctx)
}

// Stop stops the progress tracker. It is safe to call more than once.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.canceled {
		t.canceled = true
		close(t.done)
	}
}

// Updates returns how many progress lines have been produced
func (t *Tracker) Updates() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updates
}

func (t *Tracker) trackProgress(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-ticker.C:
			t.updateProgress()
		}
	}
}

func (t *Tracker) updateProgress() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.canceled {
		return
	}

	elapsed := time.Since(t.startTime)
	remaining := time.Duration(0)
	if t.timeout > 0 {
		remaining = t.timeout - elapsed
		if remaining <= 0 {
			return // the deadline is enforced by the caller's context
		}
	}

	message := t.progressFunc(elapsed, remaining)
	t.updates++

	if t.suppressOutput {
		return
	}

	contextStr := ""
	if t.context != "" {
		contextStr = fmt.Sprintf(" (%s)", t.context)
	}

	_, _ = fmt.Fprintf(t.out, "%s %s%s - %s\n",
		color.CyanString("⏳"),
		t.operation,
		contextStr,
		message)
}

// GetElapsed returns the time elapsed since start
func (t *Tracker) GetElapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.startTime)
}

func defaultProgressMessage(elapsed, remaining time.Duration) string {
	elapsedSeconds := int(elapsed.Seconds())
	remainingSeconds := int(remaining.Seconds())

	if remaining <= 0 {
		return fmt.Sprintf("running for %ds", elapsedSeconds)
	}

	if remainingSeconds > 60 {
		return fmt.Sprintf("running for %ds, %dm %ds remaining",
			elapsedSeconds,
			remainingSeconds/60,
			remainingSeconds%60)
	}

	return fmt.Sprintf("running for %ds, %ds remaining",
		elapsedSeconds,
		remainingSeconds)
}

// WithContext starts a progress tracker that automatically stops when the context is done
func WithContext(ctx context.Context, opts Options) (*Tracker, context.Context) {
	tracker := New(opts)

	childCtx, cancel := context.WithCancel(ctx)
	tracker.Start(childCtx)

	go func() {
		<-childCtx.Done()
		tracker.Stop()
		cancel()
	}()

	return tracker, childCtx
}

// PollProgressFunc creates a progress message function for a pending WebPageTest run
func PollProgressFunc(testID string) func(elapsed, remaining time.Duration) string {
	return func(elapsed, remaining time.Duration) string {
		elapsedSeconds := int(elapsed.Seconds())

		if remaining <= 0 {
			return fmt.Sprintf("test %s pending for %ds", testID, elapsedSeconds)
		}

		return fmt.Sprintf("test %s pending for %ds, %ds until timeout",
			testID, elapsedSeconds, int(remaining.Seconds()))
	}
}
