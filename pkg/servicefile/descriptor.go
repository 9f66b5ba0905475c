// SPDX-License-Identifier: MPL-2.0

package servicefile

import (
	"errors"
	"fmt"
	"time"

	"github.com/invowk/harbormaster/internal/container"
)

const (
	// GPUNone runs without GPU passthrough.
	GPUNone GPUMode = "none"
	// GPUNvidia passes every NVIDIA GPU through the container toolkit.
	GPUNvidia GPUMode = "nvidia"
	// GPUAMD passes the ROCm devices through.
	GPUAMD GPUMode = "amd"

	// DefaultVerifyTimeout bounds the post-launch running check.
	DefaultVerifyTimeout = 5 * time.Second
	// DefaultVerifyAttempts is a single immediate check.
	DefaultVerifyAttempts = 1
)

var (
	// ErrInvalidGPUMode is the sentinel error wrapped by InvalidGPUModeError.
	ErrInvalidGPUMode = errors.New("invalid gpu mode")

	// ErrInvalidDescriptor is returned when a Descriptor fails validation.
	ErrInvalidDescriptor = errors.New("invalid service descriptor")
)

type (
	// GPUMode selects GPU passthrough. It is resolved once, when the descriptor is
	// built, into run flags and (for builds) the Dockerfile base image.
	GPUMode string

	// InvalidGPUModeError is returned when a GPUMode is not recognized.
	InvalidGPUModeError struct {
		Value GPUMode
	}

	// ImageSource is where the service image comes from. The concrete type is the
	// dispatch key: PullSource or BuildSource.
	ImageSource interface {
		// Image is the tag the container is launched from.
		Image() container.ImageTag
		Validate() error
		sealed()
	}

	// PullSource fetches the image from a registry.
	PullSource struct {
		Reference container.ImageTag
	}

	// BuildSource builds the image from a Dockerfile materialized into a fresh
	// temporary build context.
	BuildSource struct {
		// ContextDir, when set, is copied into the temporary build context before the
		// Dockerfile is written.
		ContextDir container.HostFilesystemPath
		// Dockerfile is the rendered Dockerfile content.
		Dockerfile string
		Tag        container.ImageTag
		Args       map[string]string
		NoCache    bool
	}

	// VerifyPolicy bounds the post-launch running check.
	VerifyPolicy struct {
		Timeout  time.Duration
		Attempts int
	}

	// Descriptor describes one service to provision. It is immutable for a run.
	Descriptor struct {
		Name      container.ContainerName
		Source    ImageSource
		Ports     []container.PortMapping
		Volumes   []container.VolumeMount
		Env       map[string]string
		Flags     []string
		Command   []string
		GPU       GPUMode
		DependsOn []container.ContainerName
		Verify    VerifyPolicy
	}
)

// String returns the string representation of the GPUMode.
func (m GPUMode) String() string { return string(m) }

// Validate returns an error if the GPUMode is not recognized. The zero value means none.
func (m GPUMode) Validate() error {
	switch m {
	case GPUNone, GPUNvidia, GPUAMD, "":
		return nil
	default:
		return &InvalidGPUModeError{Value: m}
	}
}

// OrDefault returns GPUNone for the zero value.
func (m GPUMode) OrDefault() GPUMode {
	if m == "" {
		return GPUNone
	}
	return m
}

// RunFlags returns the engine flags that expose the GPU to the container.
func (m GPUMode) RunFlags() []string {
	switch m {
	case GPUNvidia:
		return []string{"--gpus=all"}
	case GPUAMD:
		return []string{"--device=/dev/kfd", "--device=/dev/dri", "--group-add=video"}
	default:
		return nil
	}
}

// Error implements the error interface.
func (e *InvalidGPUModeError) Error() string {
	return fmt.Sprintf("invalid gpu mode %q (valid: none, nvidia, amd)", e.Value)
}

// Unwrap returns ErrInvalidGPUMode for errors.Is() compatibility.
func (e *InvalidGPUModeError) Unwrap() error { return ErrInvalidGPUMode }

// Image returns the reference that is pulled.
func (s PullSource) Image() container.ImageTag { return s.Reference }

// Validate checks the reference.
func (s PullSource) Validate() error { return s.Reference.Validate() }

func (PullSource) sealed() {}

// Image returns the tag the build produces.
func (s BuildSource) Image() container.ImageTag { return s.Tag }

// Validate checks the tag, the Dockerfile content and the optional context directory.
func (s BuildSource) Validate() error {
	var errs []error
	if err := s.Tag.Validate(); err != nil {
		errs = append(errs, err)
	}
	if s.Dockerfile == "" {
		errs = append(errs, errors.New("dockerfile content is empty"))
	}
	if s.ContextDir != "" {
		if err := s.ContextDir.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (BuildSource) sealed() {}

// OrDefault fills zero fields with the defaults.
func (p VerifyPolicy) OrDefault() VerifyPolicy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultVerifyTimeout
	}
	if p.Attempts <= 0 {
		p.Attempts = DefaultVerifyAttempts
	}
	return p
}

// Validate checks every field of the descriptor.
func (d Descriptor) Validate() error {
	var errs []error
	if err := d.Name.Validate(); err != nil {
		errs = append(errs, err)
	}
	if d.Source == nil {
		errs = append(errs, errors.New("no image source"))
	} else if err := d.Source.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range d.Ports {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, v := range d.Volumes {
		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.GPU.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, dep := range d.DependsOn {
		if dep == d.Name {
			errs = append(errs, fmt.Errorf("service %s depends on itself", d.Name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %s: %w", ErrInvalidDescriptor, d.Name, errors.Join(errs...))
	}
	return nil
}
