// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/internal/host"
	"github.com/invowk/harbormaster/pkg/servicefile"
)

type (
	// Provisioner drives one service at a time through validate, resolve image,
	// replace container and verify. It holds no per-run state; concurrent runs for
	// the same service name must be serialized by the caller.
	Provisioner struct {
		engine container.Engine
		host   host.Environment
		config *Config
		logger *log.Logger
	}

	// run accumulates the Result of one Provision call.
	run struct {
		result *Result
		logger *log.Logger
	}
)

// New creates a Provisioner.
func New(engine container.Engine, env host.Environment, opts ...Option) *Provisioner {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Provisioner{
		engine: engine,
		host:   env,
		config: cfg,
		logger: logger,
	}
}

// Config returns the provisioner's configuration.
func (p *Provisioner) Config() *Config {
	return p.config
}

// Provision runs the pipeline for d, stopping at the first failing step. Every
// failure is reported through the Result; there is no error return.
func (p *Provisioner) Provision(ctx context.Context, d servicefile.Descriptor) Result {
	r := &run{
		result: &Result{Service: d.Name},
		logger: p.logger.With("service", d.Name),
	}

	if err := d.Validate(); err != nil {
		return r.fail(StepValidate, StatusFailedValidation, &ValidationError{Kind: InvalidDescriptor, Err: err})
	}

	if err := p.validate(ctx, d, r); err != nil {
		return r.fail(StepValidate, StatusFailedValidation, err)
	}
	r.note(StepValidate, OutcomeOK, fmt.Sprintf("%d port(s) free, %d volume dir(s) ready", len(d.Ports), len(d.Volumes)))

	image, err := p.resolveImage(ctx, d.Source, r)
	if err != nil {
		return r.fail(StepResolve, StatusFailedImageResolution, err)
	}
	r.result.Image = image

	id, err := p.replaceContainer(ctx, d.Name, image, d, r)
	if err != nil {
		return r.fail(StepReplace, StatusFailedLaunch, err)
	}
	r.note(StepReplace, OutcomeOK, "started container "+id.Short())

	if err := p.verify(ctx, id, d.Name, p.config.verifyPolicy(d.Verify)); err != nil {
		return r.fail(StepVerify, StatusFailedVerification, err)
	}
	r.note(StepVerify, OutcomeOK, "container is running")

	r.result.Status = StatusRunning
	r.result.ContainerID = id
	return *r.result
}

// validate checks, in order: privilege, every host port, every volume directory.
// A busy port published by a same-named container is not a conflict, because that
// container is about to be replaced. It fails fast; directories created before a
// failure are left in place.
func (p *Provisioner) validate(ctx context.Context, d servicefile.Descriptor, r *run) error {
	if !p.host.HasAdminPrivilege() {
		return &ValidationError{Kind: PrivilegeError}
	}

	var previous []container.Summary
	listed := false
	for _, port := range d.Ports {
		free, err := p.host.IsPortFree(ctx, port)
		if err != nil {
			return &ValidationError{Kind: PortCheckFailed, Port: port, Err: err}
		}
		if free {
			continue
		}
		if !listed {
			previous = p.previousContainers(ctx, d.Name, r)
			listed = true
		}
		if slices.ContainsFunc(previous, func(c container.Summary) bool { return c.Publishes(port) }) {
			r.logger.Debug("port held by the container being replaced", "step", StepValidate, "port", port.HostPort)
			continue
		}
		return &ValidationError{Kind: PortInUse, Port: port}
	}

	for _, v := range d.Volumes {
		if err := p.host.EnsureDirectory(v.HostPath); err != nil {
			return &ValidationError{Kind: DirectoryCreateFailed, Path: v.HostPath, Err: err}
		}
		r.logger.Debug("volume directory ready", "path", v.HostPath)
	}
	return nil
}

// previousContainers lists the containers replaceContainer will evict. Their
// published ports are released before the launch, so validate does not count them
// as taken. A failed listing counts every busy port as taken.
func (p *Provisioner) previousContainers(ctx context.Context, name container.ContainerName, r *run) []container.Summary {
	existing, err := p.engine.List(ctx, name)
	if err != nil {
		r.warn(StepValidate, "listing existing containers failed", err)
		return nil
	}
	return existing
}

// resolveImage obtains the image. The source variant decides the path: a pull source
// never builds and a build source never pulls.
func (p *Provisioner) resolveImage(ctx context.Context, source servicefile.ImageSource, r *run) (container.ImageTag, error) {
	switch src := source.(type) {
	case servicefile.PullSource:
		r.logger.Info("pulling image", "step", StepResolve, "image", src.Reference)
		if err := p.engine.Pull(ctx, container.PullOptions{Image: src.Reference, Output: p.config.Output}); err != nil {
			return "", &ResolutionError{Kind: PullFailed, Image: src.Reference, Output: toolOutput(err), Err: err}
		}
		r.note(StepResolve, OutcomeOK, "pulled "+src.Reference.String())
		return src.Reference, nil

	case servicefile.BuildSource:
		r.logger.Info("building image", "step", StepResolve, "image", src.Tag)
		if err := p.build(ctx, src); err != nil {
			return "", err
		}
		r.note(StepResolve, OutcomeOK, "built "+src.Tag.String())
		return src.Tag, nil

	default:
		return "", fmt.Errorf("unsupported image source %T", source)
	}
}

// replaceContainer evicts any container named name, then launches a new one. The
// eviction is best-effort: failures are logged and the launch decides the outcome,
// since the runtime rejects a duplicate name on its own.
func (p *Provisioner) replaceContainer(
	ctx context.Context,
	name container.ContainerName,
	image container.ImageTag,
	d servicefile.Descriptor,
	r *run,
) (container.ContainerID, error) {
	refs := []string{string(name)}
	existing, err := p.engine.List(ctx, name)
	switch {
	case err != nil:
		r.warn(StepReplace, "listing existing containers failed, removing by name", err)
	case len(existing) == 0:
		r.logger.Debug("no existing container", "step", StepReplace)
		refs = nil
	default:
		refs = refs[:0]
		for _, c := range existing {
			refs = append(refs, string(c.ID))
		}
	}

	for _, ref := range refs {
		p.evict(ctx, ref, r)
	}

	r.logger.Info("launching container", "step", StepReplace, "image", image)
	id, err := p.engine.RunDetached(ctx, container.RunOptions{
		Name:    name,
		Image:   image,
		Command: d.Command,
		Env:     d.Env,
		Volumes: d.Volumes,
		Ports:   d.Ports,
		Flags:   d.Flags,
	})
	if err != nil {
		reason := toolOutput(err)
		if reason == "" {
			reason = err.Error()
		}
		return "", &LaunchError{Name: name, Reason: reason, Err: err}
	}
	return id, nil
}

// evict stops and removes ref, tolerating ErrContainerNotFound.
func (p *Provisioner) evict(ctx context.Context, ref string, r *run) {
	short := container.ContainerID(ref).Short()
	if err := p.engine.Stop(ctx, ref); err != nil && !errors.Is(err, container.ErrContainerNotFound) {
		r.warn(StepReplace, "stop "+short+" failed", err)
	}
	if err := p.engine.Remove(ctx, ref, true); err != nil {
		if errors.Is(err, container.ErrContainerNotFound) {
			return
		}
		r.warn(StepReplace, "remove "+short+" failed", err)
		return
	}
	r.note(StepReplace, OutcomeOK, "removed previous container "+short)
}

// Inspect lists the containers named name, running or stopped.
func (p *Provisioner) Inspect(ctx context.Context, name container.ContainerName) ([]container.Summary, error) {
	if err := name.Validate(); err != nil {
		return nil, err
	}
	return p.engine.List(ctx, name)
}

// note records a diagnostic and logs it.
func (r *run) note(step Step, outcome Outcome, detail string) {
	r.result.Diagnostics = append(r.result.Diagnostics, Diagnostic{Step: step, Outcome: outcome, Detail: detail})
	r.logger.Debug(detail, "step", step, "outcome", outcome)
}

func (r *run) warn(step Step, what string, err error) {
	detail := what + ": " + err.Error()
	r.result.Diagnostics = append(r.result.Diagnostics, Diagnostic{Step: step, Outcome: OutcomeWarning, Detail: detail})
	r.logger.Warn(what, "step", step, "err", err)
}

// fail records the failing step and returns the final Result. The tool's output, when
// there is any, goes into the diagnostic untouched.
func (r *run) fail(step Step, status Status, err error) Result {
	detail := err.Error()
	if out := toolOutput(err); out != "" && !strings.Contains(detail, out) {
		detail += "\n" + out
	}
	if cause := container.TransientCauseOf(err); cause != container.TransientNone {
		detail += "\n(looks like a " + string(cause) + " hiccup; re-running may succeed)"
	}
	r.result.Diagnostics = append(r.result.Diagnostics, Diagnostic{Step: step, Outcome: OutcomeFailed, Detail: detail})
	r.logger.Error("provisioning failed", "step", step, "status", status, "err", err)

	r.result.Status = status
	r.result.Err = err
	return *r.result
}
