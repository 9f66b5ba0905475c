// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/invowk/harbormaster/internal/config"
	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/internal/dag"
	"github.com/invowk/harbormaster/internal/issue"
	"github.com/invowk/harbormaster/internal/provision"
	"github.com/invowk/harbormaster/internal/servicelock"
	"github.com/invowk/harbormaster/pkg/servicefile"
)

func newUpCommand(app *App) *cobra.Command {
	var (
		sf   sourceFlags
		only []string
	)

	upCmd := &cobra.Command{
		Use:   "up [FILE...]",
		Short: "Provision services so that each ends up as one running container",
		Long: `Provision every service from the given service files and presets.

Services are provisioned one at a time in depends_on order. Each one is validated
against the host, its image is pulled or built, any container with the same name
is replaced and the new container is verified to be running. The run stops at the
first service that does not end up running.`,
		Example: `  harbormaster up --preset ollama --gpu amd
  harbormaster up stack.cue --only pihole
  harbormaster up --preset nginx-proxy --preset cloudflared`,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			return app.up(cmd.Context(), args, sf, only)
		}),
	}

	sf.register(upCmd)
	upCmd.Flags().StringSliceVar(&only, "only", nil, "provision only these services (repeatable or comma-separated)")

	return upCmd
}

func (a *App) up(ctx context.Context, files []string, sf sourceFlags, only []string) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	logger := a.logger(cfg)

	descriptors, err := a.loadServices(files, sf)
	if err != nil {
		return err
	}
	if descriptors, err = selectServices(descriptors, only); err != nil {
		return err
	}
	// Ordering errors are reported before the engine is contacted.
	if _, err := provision.Order(descriptors); err != nil {
		return validationExit(orderError(err))
	}

	engine, err := a.engine(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Debug("engine selected", "engine", engine.Name())

	locks, err := a.lockServices(cfg, serviceNames(descriptors))
	if err != nil {
		return err
	}
	defer locks.Release()

	p := a.provisioner(engine, cfg, logger)
	results, err := p.ProvisionStack(ctx, descriptors)
	if err != nil {
		return validationExit(orderError(err))
	}

	renderResults(a.stdout, results, descriptors, cfg.UI.Verbose)

	if code := provision.ExitCode(results); code != 0 {
		failed := results[len(results)-1]
		return exitWith(code, fmt.Errorf("%s ended %s; run 'harbormaster explain %s' for remediation",
			failed.Service, failed.Status, explainTopic(failed)))
	}
	return nil
}

// provisioner builds a Provisioner for the effective configuration.
func (a *App) provisioner(engine container.Engine, cfg *config.Config, logger *log.Logger) *provision.Provisioner {
	var output io.Writer
	if cfg.UI.Verbose {
		output = a.stderr
	}
	return provision.New(engine, a.NewHost(cfg.RequireRoot),
		provision.WithBuildDir(string(cfg.BuildDir)),
		provision.WithVerifyDefaults(servicefile.VerifyPolicy{
			Timeout:  cfg.Verify.Timeout,
			Attempts: cfg.Verify.Attempts,
		}),
		provision.WithOutput(output),
		provision.WithLogger(logger),
	)
}

// lockServices takes the per-service run locks. A lock held by another run
// yields exit code 6 without waiting.
func (a *App) lockServices(cfg *config.Config, names []container.ContainerName) (servicelock.Set, error) {
	dir := servicelock.Dir(string(cfg.LockDir), a.Getenv)
	locks, err := servicelock.AcquireAll(dir, names)
	if err == nil {
		return locks, nil
	}

	if errors.Is(err, servicelock.ErrLocked) {
		return nil, exitWith(ExitCodeLocked, issue.NewErrorContext().
			WithOperation("lock services").
			WithResource(dir).
			WithSuggestion("Wait for the other harbormaster run to finish").
			WithTopic(issue.ServiceLockedId).
			Wrap(err).
			BuildError())
	}
	return nil, exitWith(ExitCodeError, fmt.Errorf("lock services: %w", err))
}

func orderError(err error) error {
	ec := issue.NewErrorContext().WithOperation("order services")
	switch {
	case errors.Is(err, dag.ErrCycle):
		ec = ec.WithTopic(issue.DependencyCycleId)
	case errors.Is(err, dag.ErrUnknownDependency):
		ec = ec.
			WithSuggestion("Include the service file or preset that defines the dependency").
			WithSuggestion("Use --only to provision a service whose dependencies are already up")
	}
	return ec.Wrap(err).BuildError()
}
