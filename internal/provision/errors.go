// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"errors"
	"fmt"
	"strings"

	"github.com/invowk/harbormaster/internal/container"
)

const (
	// PrivilegeError: the caller may not manage the container runtime.
	PrivilegeError ValidationKind = "PrivilegeError"
	// PortInUse: a host port is already bound.
	PortInUse ValidationKind = "PortInUse"
	// PortCheckFailed: the host could not be asked whether a port is bound.
	PortCheckFailed ValidationKind = "PortCheckFailed"
	// DirectoryCreateFailed: a volume host path is not a directory and could not be created.
	DirectoryCreateFailed ValidationKind = "DirectoryCreateFailed"
	// InvalidDescriptor: the descriptor itself is malformed.
	InvalidDescriptor ValidationKind = "InvalidDescriptor"

	// PullFailed: the registry is unreachable or the reference does not exist.
	PullFailed ResolutionKind = "PullFailed"
	// BuildFailed: the build exited non-zero or its context could not be prepared.
	BuildFailed ResolutionKind = "BuildFailed"
)

var (
	// ErrValidation is the sentinel wrapped by ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrPrivilege is wrapped by a ValidationError of kind PrivilegeError.
	ErrPrivilege = errors.New("insufficient privilege to manage the container runtime")
	// ErrPortInUse is wrapped by a ValidationError of kind PortInUse.
	ErrPortInUse = errors.New("host port is already in use")
	// ErrDirectoryCreate is wrapped by a ValidationError of kind DirectoryCreateFailed.
	ErrDirectoryCreate = errors.New("cannot create host directory")

	// ErrResolution is the sentinel wrapped by ResolutionError.
	ErrResolution = errors.New("image resolution failed")
	// ErrPullFailed is wrapped by a ResolutionError of kind PullFailed.
	ErrPullFailed = errors.New("image pull failed")
	// ErrBuildFailed is wrapped by a ResolutionError of kind BuildFailed.
	ErrBuildFailed = errors.New("image build failed")

	// ErrLaunch is the sentinel wrapped by LaunchError.
	ErrLaunch = errors.New("container launch failed")

	// ErrNotRunning is the sentinel wrapped by VerificationError.
	ErrNotRunning = errors.New("container is not running")
)

type (
	// ValidationKind names the failed precondition.
	ValidationKind string

	// ResolutionKind names the failed image acquisition path.
	ResolutionKind string

	// ValidationError reports the first host precondition that failed.
	ValidationError struct {
		Kind ValidationKind
		// Port is set for PortInUse and PortCheckFailed.
		Port container.PortMapping
		// Path is set for DirectoryCreateFailed.
		Path container.HostFilesystemPath
		Err  error
	}

	// ResolutionError reports a failed pull or build.
	ResolutionError struct {
		Kind  ResolutionKind
		Image container.ImageTag
		// Output is the tool's diagnostic text (for builds, the build transcript).
		Output string
		Err    error
	}

	// LaunchError reports that the runtime rejected the container start.
	LaunchError struct {
		Name   container.ContainerName
		Reason string
		Err    error
	}

	// VerificationError reports that the container was not observed running.
	VerificationError struct {
		Name container.ContainerName
		// State is the last observed state; StateUnknown when no container was listed.
		State container.ContainerState
		Err   error
	}
)

// Tag renders the kind with its subject, e.g. "PortInUse(8080)".
func (e *ValidationError) Tag() string {
	switch e.Kind {
	case PortInUse, PortCheckFailed:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Port.HostPort)
	case DirectoryCreateFailed:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Path)
	default:
		return string(e.Kind)
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Tag())
	}
	return fmt.Sprintf("%s: %s: %v", ErrValidation, e.Tag(), e.Err)
}

// Unwrap returns ErrValidation, the kind sentinel and the cause.
func (e *ValidationError) Unwrap() []error {
	errs := []error{ErrValidation}
	switch e.Kind {
	case PrivilegeError:
		errs = append(errs, ErrPrivilege)
	case PortInUse:
		errs = append(errs, ErrPortInUse)
	case DirectoryCreateFailed:
		errs = append(errs, ErrDirectoryCreate)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Tag renders the kind, e.g. "BuildFailed".
func (e *ResolutionError) Tag() string { return string(e.Kind) }

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("%s: %s %s", ErrResolution, e.Kind, e.Image)
	if out := lastLine(e.Output); out != "" {
		return msg + ": " + out
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns ErrResolution, the kind sentinel and the cause.
func (e *ResolutionError) Unwrap() []error {
	errs := []error{ErrResolution}
	switch e.Kind {
	case PullFailed:
		errs = append(errs, ErrPullFailed)
	case BuildFailed:
		errs = append(errs, ErrBuildFailed)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrLaunch, e.Name, e.Reason)
}

// Unwrap returns ErrLaunch and the cause.
func (e *LaunchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrLaunch}
	}
	return []error{ErrLaunch, e.Err}
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	msg := fmt.Sprintf("NotRunning: %s (state %s)", e.Name, e.State)
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns ErrNotRunning and the cause.
func (e *VerificationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrNotRunning}
	}
	return []error{ErrNotRunning, e.Err}
}

// toolOutput returns the container tool's captured output, if err carries any.
func toolOutput(err error) string {
	var cmdErr *container.CommandError
	if errors.As(err, &cmdErr) {
		return strings.TrimSpace(cmdErr.Output)
	}
	return ""
}

// lastLine returns the last non-empty line of s. Build transcripts end with the error.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
