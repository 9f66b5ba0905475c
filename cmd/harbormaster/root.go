// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/invowk/harbormaster/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

type (
	runEFunc func(cmd *cobra.Command, args []string) error

	// displayError renders an error the way the user should read it while keeping
	// the chain intact for errors.Is/As.
	displayError struct {
		err     error
		verbose bool
	}
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "harbormaster",
		Short: "Idempotent provisioning of self-hosted services as containers",
		Long: TitleStyle.Render("harbormaster") + SubtitleStyle.Render(" - idempotent container provisioning") + `

harbormaster brings self-hosted services up as containers from declarative
service files (CUE, YAML or TOML). Every run checks the host, pulls or builds
the image, replaces any container with the same name and verifies that the
new one is running. Running it twice yields the same single container.

` + SubtitleStyle.Render("Examples:") + `
  harbormaster up --preset ollama --gpu nvidia    Serve an LLM on port 11434
  harbormaster up stack.cue                       Provision every service in a file
  harbormaster status ollama                      Show the container state
  harbormaster explain PortInUse                  How to fix a failure

` + SubtitleStyle.Render("Exit codes:") + `
  0 running, 1 usage or config error, 2 FailedValidation, 3 FailedImageResolution,
  4 FailedLaunch, 5 FailedVerification, 6 service locked by another run`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable debug logging and full error chains")
	flags.StringVar(&app.flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/harbormaster/config.cue)")
	flags.StringVar(&app.flags.engine, "engine", "", "container engine: auto, docker, podman or docker-api")
	flags.StringVar(&app.flags.logFormat, "log-format", "", "log format: text, json or logfmt")

	rootCmd.AddCommand(
		newUpCommand(app),
		newValidateCommand(app),
		newStatusCommand(app),
		newDownCommand(app),
		newPresetCommand(app),
		newConfigCommand(app),
		newExplainCommand(app),
	)

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the code of the outcome.
// This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	// fang overrides rootCmd.Version, so the version goes through WithVersion.
	err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
	os.Exit(exitCode(err))
}

// exitCode maps the error returned by the command tree to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCodeError
}

// runE adapts a handler so that actionable errors print with their suggestions.
func (a *App) runE(fn runEFunc) runEFunc {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err == nil {
			return nil
		}
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Err == nil {
				return exitErr
			}
			return &ExitError{Code: exitErr.Code, Err: displayError{err: exitErr.Err, verbose: a.flags.verbose}}
		}
		return displayError{err: err, verbose: a.flags.verbose}
	}
}

func (d displayError) Error() string { return formatErrorForDisplay(d.err, d.verbose) }

func (d displayError) Unwrap() error { return d.err }

// formatErrorForDisplay formats an error for user display. ActionableErrors
// print their suggestions; verbose mode adds the full error chain.
func formatErrorForDisplay(err error, verbose bool) string {
	if err == nil {
		return ""
	}
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}
