// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	// EngineTypePodman drives the podman CLI.
	EngineTypePodman EngineType = "podman"
	// EngineTypeDocker drives the docker CLI.
	EngineTypeDocker EngineType = "docker"
	// EngineTypeDockerAPI talks to the Docker Engine API over its socket.
	EngineTypeDockerAPI EngineType = "docker-api"
	// EngineTypeAuto picks the first available engine.
	EngineTypeAuto EngineType = "auto"
)

var (
	// ErrContainerNotFound is returned by Stop and Remove when no container matches.
	// Callers performing best-effort cleanup treat it as success.
	ErrContainerNotFound = errors.New("no such container")

	// ErrInvalidEngineType is the sentinel error wrapped by InvalidEngineTypeError.
	ErrInvalidEngineType = errors.New("invalid container engine type")
)

type (
	// Engine is the container runtime collaborator: image acquisition plus the
	// container lifecycle operations needed for idempotent replacement.
	Engine interface {
		// Name returns the engine name (docker, podman or docker-api).
		Name() string
		// Available checks if the engine is reachable.
		Available(ctx context.Context) bool
		// Version returns the server version.
		Version(ctx context.Context) (string, error)

		// Pull fetches an image from its registry.
		Pull(ctx context.Context, opts PullOptions) error
		// Build builds an image from a build context directory.
		Build(ctx context.Context, opts BuildOptions) error
		// ImageExists reports whether the image is present locally.
		ImageExists(ctx context.Context, image ImageTag) (bool, error)

		// List returns every container, running or stopped, whose name is exactly name.
		List(ctx context.Context, name ContainerName) ([]Summary, error)
		// Stop stops a container. It returns ErrContainerNotFound if nothing matches.
		Stop(ctx context.Context, ref string) error
		// Remove removes a container. It returns ErrContainerNotFound if nothing matches.
		Remove(ctx context.Context, ref string, force bool) error
		// RunDetached creates and starts a container in the background.
		RunDetached(ctx context.Context, opts RunOptions) (ContainerID, error)
	}

	// PullOptions contains options for pulling an image.
	PullOptions struct {
		Image ImageTag
		// Output receives the engine's progress output. May be nil.
		Output io.Writer
	}

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir HostFilesystemPath
		// Dockerfile is the path to the Dockerfile, relative to ContextDir.
		Dockerfile string
		// Tag is the image tag.
		Tag ImageTag
		// BuildArgs are build-time variables.
		BuildArgs map[string]string
		// NoCache disables the build cache.
		NoCache bool
		// Output receives build progress. May be nil.
		Output io.Writer
	}

	// RunOptions describes a detached container launch.
	RunOptions struct {
		Name    ContainerName
		Image   ImageTag
		Command []string
		Env     map[string]string
		Volumes []VolumeMount
		Ports   []PortMapping
		// Flags are extra engine flags passed through verbatim (e.g. "--gpus=all").
		Flags []string
	}

	// EngineType identifies the container engine type.
	EngineType string

	// InvalidEngineTypeError is returned when an EngineType is not recognized.
	InvalidEngineTypeError struct {
		Value EngineType
	}

	// ErrEngineNotAvailable is returned when a container engine is not available.
	//
	//nolint:errname // kept for symmetry with the other engine errors
	ErrEngineNotAvailable struct {
		Engine string
		Reason string
	}

	// CommandError carries the output of a failed engine invocation so that callers
	// can surface the tool's own diagnostic text.
	CommandError struct {
		Args   []string
		Output string
		Err    error
	}
)

// String returns the string representation of the EngineType.
func (t EngineType) String() string { return string(t) }

// Validate returns an error if the EngineType is not recognized.
func (t EngineType) Validate() error {
	switch t {
	case EngineTypeDocker, EngineTypePodman, EngineTypeDockerAPI, EngineTypeAuto:
		return nil
	default:
		return &InvalidEngineTypeError{Value: t}
	}
}

// Error implements the error interface.
func (e *InvalidEngineTypeError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: auto, docker, podman, docker-api)", e.Value)
}

// Unwrap returns ErrInvalidEngineType for errors.Is() compatibility.
func (e *InvalidEngineTypeError) Unwrap() error { return ErrInvalidEngineType }

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%v: %v", e.Args, e.Err)
	}
	return fmt.Sprintf("%v: %v: %s", e.Args, e.Err, e.Output)
}

// Unwrap returns the underlying exec error.
func (e *CommandError) Unwrap() error { return e.Err }

// Validate checks the options before the engine is invoked.
func (o PullOptions) Validate() error {
	return o.Image.Validate()
}

// Validate checks the options before the engine is invoked.
func (o BuildOptions) Validate() error {
	var errs []error
	if err := o.ContextDir.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := o.Tag.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks the options before the engine is invoked.
func (o RunOptions) Validate() error {
	var errs []error
	if err := o.Name.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := o.Image.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, v := range o.Volumes {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range o.Ports {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewEngine creates a container engine of the preferred type. The CLI engines fall
// back to each other when the preferred binary is missing; docker-api never falls back
// because choosing it is an explicit request for the API transport.
func NewEngine(ctx context.Context, preferredType EngineType) (Engine, error) {
	switch preferredType {
	case EngineTypeAuto, "":
		return AutoDetectEngine(ctx)

	case EngineTypeDockerAPI:
		engine, err := NewAPIEngine()
		if err != nil {
			return nil, &ErrEngineNotAvailable{Engine: string(EngineTypeDockerAPI), Reason: err.Error()}
		}
		if !engine.Available(ctx) {
			return nil, &ErrEngineNotAvailable{
				Engine: string(EngineTypeDockerAPI),
				Reason: "the docker daemon did not answer a ping (check DOCKER_HOST and socket permissions)",
			}
		}
		return engine, nil

	case EngineTypePodman:
		if engine := NewPodmanEngine(); engine.Available(ctx) {
			return engine, nil
		}
		if engine := NewDockerEngine(); engine.Available(ctx) {
			return engine, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "podman",
			Reason: "podman is not installed or not accessible, and docker fallback is also not available",
		}

	case EngineTypeDocker:
		if engine := NewDockerEngine(); engine.Available(ctx) {
			return engine, nil
		}
		if engine := NewPodmanEngine(); engine.Available(ctx) {
			return engine, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "docker",
			Reason: "docker is not installed or not accessible, and podman fallback is also not available",
		}

	default:
		return nil, &InvalidEngineTypeError{Value: preferredType}
	}
}

// AutoDetectEngine returns the first available engine. Docker is tried first because
// the services this tool provisions are published as Docker Hub images.
func AutoDetectEngine(ctx context.Context) (Engine, error) {
	if docker := NewDockerEngine(); docker.Available(ctx) {
		return docker, nil
	}

	if podman := NewPodmanEngine(); podman.Available(ctx) {
		return podman, nil
	}

	return nil, &ErrEngineNotAvailable{
		Engine: "any",
		Reason: "no container engine (docker or podman) is available on this system",
	}
}
