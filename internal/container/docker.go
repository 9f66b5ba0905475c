// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DockerEngine drives the docker CLI. Everything but the daemon checks comes from
// the embedded BaseCLIEngine.
type DockerEngine struct {
	*BaseCLIEngine
}

// NewDockerEngine creates a new Docker engine.
func NewDockerEngine(opts ...BaseCLIEngineOption) *DockerEngine {
	path, _ := exec.LookPath("docker")
	return &DockerEngine{
		BaseCLIEngine: NewBaseCLIEngine(string(EngineTypeDocker), HostFilesystemPath(path), opts...),
	}
}

// Name returns the engine name.
func (e *DockerEngine) Name() string {
	return string(EngineTypeDocker)
}

// Available reports whether the daemon answers; a docker binary whose daemon is
// down counts as unavailable.
func (e *DockerEngine) Available(ctx context.Context) bool {
	if e.BinaryPath() == "" {
		return false
	}
	cmd := e.CreateCommand(ctx, "version", "--format", "{{.Server.Version}}")
	return cmd.Run() == nil
}

// Version returns the Docker server version.
func (e *DockerEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version", "--format", "{{.Server.Version}}")
	if err != nil {
		return "", fmt.Errorf("failed to get docker version: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// ImageExists reports whether image is in the local store. "No such image" is a
// plain false; any other failure, such as an unreachable daemon, is an error.
func (e *DockerEngine) ImageExists(ctx context.Context, image ImageTag) (bool, error) {
	_, err := e.RunCommandWithOutput(ctx, "image", "inspect", "--format", "{{.Id}}", string(image))
	var cmdErr *CommandError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &cmdErr) && strings.Contains(strings.ToLower(cmdErr.Output), "no such image"):
		return false, nil
	default:
		return false, fmt.Errorf("inspect image %s: %w", image, err)
	}
}
