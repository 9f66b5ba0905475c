// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// selinuxEnforcePath is a variable so tests can point it elsewhere.
var selinuxEnforcePath = "/sys/fs/selinux/enforce"

// PodmanEngine drives the podman CLI. Volume mounts get an SELinux label when the
// host enforces SELinux, so rootless containers can read their host directories.
type PodmanEngine struct {
	*BaseCLIEngine
}

// NewPodmanEngine returns an engine for the podman binary on PATH.
func NewPodmanEngine(opts ...BaseCLIEngineOption) *PodmanEngine {
	path, _ := exec.LookPath("podman")

	// Prepended so callers can still override the formatter.
	allOpts := append([]BaseCLIEngineOption{WithVolumeFormatter(addSELinuxLabel)}, opts...)

	return &PodmanEngine{
		BaseCLIEngine: NewBaseCLIEngine(string(EngineTypePodman), HostFilesystemPath(path), allOpts...),
	}
}

// Name returns the engine name.
func (e *PodmanEngine) Name() string {
	return string(EngineTypePodman)
}

// Available checks if Podman is available.
func (e *PodmanEngine) Available(ctx context.Context) bool {
	if e.BinaryPath() == "" {
		return false
	}
	cmd := e.CreateCommand(ctx, "version", "--format", "{{.Version}}")
	return cmd.Run() == nil
}

// Version returns the Podman version.
func (e *PodmanEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", "{{.Version}}")
	if err != nil {
		return "", fmt.Errorf("failed to get podman version: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ImageExists reports whether image is in the local store. podman exits 1 for a
// missing image and 125 when it could not tell.
func (e *PodmanEngine) ImageExists(ctx context.Context, image ImageTag) (bool, error) {
	_, err := e.RunCommandWithOutput(ctx, "image", "exists", string(image))
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &exitErr) && exitErr.ExitCode() == 1:
		return false, nil
	default:
		return false, fmt.Errorf("check image %s: %w", image, err)
	}
}

// isSELinuxEnabled checks if SELinux is enforcing on the system.
func isSELinuxEnabled() bool {
	data, err := os.ReadFile(selinuxEnforcePath)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

// addSELinuxLabel formats the mount and appends the shared :z label when SELinux
// is enforcing.
func addSELinuxLabel(volume VolumeMount) string {
	formatted := FormatVolumeMount(volume)
	if !isSELinuxEnabled() {
		return formatted
	}
	if volume.ReadOnly {
		return formatted + ",z"
	}
	return formatted + ":z"
}
