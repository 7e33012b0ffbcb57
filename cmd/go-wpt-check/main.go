// Package main provides the entry point for the WebPageTest performance check
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mrz1836/go-wpt-check/cmd/go-wpt-check/cmd"
	prerrors "github.com/mrz1836/go-wpt-check/internal/errors"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the main application logic and returns the exit code.
// This function is separated from main() to enable testing.
func run(args []string) int {
	buildInfo := NewBuildInfo()

	version := buildInfo.Version()
	if buildInfo.IsModified() && !strings.HasSuffix(version, "-dirty") {
		version += "-dirty"
	}

	// Create CLI application with dependency injection
	app := cmd.NewCLIApp(version, buildInfo.Commit(), buildInfo.BuildDate())
	builder := cmd.NewCommandBuilder(app)

	if err := builder.ExecuteArgs(args); err != nil {
		// The run command has already reported each failure
		if !errors.Is(err, prerrors.ErrRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}
