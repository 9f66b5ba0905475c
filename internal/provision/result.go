// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"fmt"

	"github.com/invowk/harbormaster/internal/container"
)

const (
	// StatusRunning means the container was launched and observed running.
	StatusRunning Status = "Running"
	// StatusFailedValidation means a host precondition was not met.
	StatusFailedValidation Status = "FailedValidation"
	// StatusFailedImageResolution means the image could not be pulled or built.
	StatusFailedImageResolution Status = "FailedImageResolution"
	// StatusFailedLaunch means the runtime rejected the container start.
	StatusFailedLaunch Status = "FailedLaunch"
	// StatusFailedVerification means the container was not observed running.
	StatusFailedVerification Status = "FailedVerification"
)

const (
	StepValidate Step = "validate"
	StepResolve  Step = "resolve-image"
	StepReplace  Step = "replace-container"
	StepVerify   Step = "verify"
)

const (
	OutcomeOK      Outcome = "ok"
	OutcomeWarning Outcome = "warning"
	OutcomeFailed  Outcome = "failed"
)

type (
	// Status is the final state of one provisioning run.
	Status string

	// Step names a stage of the provisioning pipeline.
	Step string

	// Outcome classifies a Diagnostic.
	Outcome string

	// Diagnostic is one human-readable step outcome. Detail carries the container
	// tool's own output verbatim when there is any.
	Diagnostic struct {
		Step    Step
		Outcome Outcome
		Detail  string
	}

	// Result is produced once per Provision call and never persisted.
	Result struct {
		Service container.ContainerName
		Status  Status
		// ContainerID is set only when Status is StatusRunning.
		ContainerID container.ContainerID
		// Image is the resolved image tag, set once resolution succeeded.
		Image       container.ImageTag
		Diagnostics []Diagnostic
		// Err is the typed error of the failing step, nil when running.
		Err error
	}
)

// String returns the string representation of the Status.
func (s Status) String() string { return string(s) }

// ExitCode maps the status to the process exit code. Every failure has its own code
// so that scripts can branch on the outcome.
func (s Status) ExitCode() int {
	switch s {
	case StatusRunning:
		return 0
	case StatusFailedValidation:
		return 2
	case StatusFailedImageResolution:
		return 3
	case StatusFailedLaunch:
		return 4
	case StatusFailedVerification:
		return 5
	default:
		return 1
	}
}

// String formats the diagnostic as "[step] outcome: detail".
func (d Diagnostic) String() string {
	if d.Detail == "" {
		return fmt.Sprintf("[%s] %s", d.Step, d.Outcome)
	}
	return fmt.Sprintf("[%s] %s: %s", d.Step, d.Outcome, d.Detail)
}

// Running reports whether the run ended with the container running.
func (r Result) Running() bool { return r.Status == StatusRunning }

// ExitCode returns the exit code of the first failed result, or 0 when every result
// is running. An empty slice yields 0.
func ExitCode(results []Result) int {
	for _, r := range results {
		if !r.Running() {
			return r.Status.ExitCode()
		}
	}
	return 0
}
