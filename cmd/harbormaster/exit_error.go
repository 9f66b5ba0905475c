// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/invowk/harbormaster/internal/provision"
)

// Exit codes not tied to a provisioning status. Status codes come from
// provision.Status.ExitCode.
const (
	// ExitCodeError covers usage, configuration and internal errors.
	ExitCodeError = 1
	// ExitCodeLocked means another run holds a requested service's lock.
	ExitCodeLocked = 6
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitWith(code int, err error) *ExitError {
	return &ExitError{Code: code, Err: err}
}

// validationExit reports a problem found before anything touched the host, such as
// an unreadable service file. It shares the FailedValidation exit code.
func validationExit(err error) *ExitError {
	return exitWith(provision.StatusFailedValidation.ExitCode(), err)
}
