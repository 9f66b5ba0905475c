// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/internal/dag"
	"github.com/invowk/harbormaster/pkg/servicefile"
)

// Order sorts descriptors so that every service follows its depends_on entries.
// Services without a constraint between them keep their input order.
func Order(descriptors []servicefile.Descriptor) ([]servicefile.Descriptor, error) {
	return dag.Resolve(descriptors,
		func(d servicefile.Descriptor) container.ContainerName { return d.Name },
		func(d servicefile.Descriptor) []container.ContainerName { return d.DependsOn },
	)
}

// ProvisionStack provisions descriptors in dependency order, one at a time, and stops
// at the first service that does not end up running. Ordering errors (a cycle or an
// unknown dependency) are returned before anything touches the host.
func (p *Provisioner) ProvisionStack(ctx context.Context, descriptors []servicefile.Descriptor) ([]Result, error) {
	ordered, err := Order(descriptors)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(ordered))
	for _, d := range ordered {
		res := p.Provision(ctx, d)
		results = append(results, res)
		if !res.Running() {
			if rest := len(ordered) - len(results); rest > 0 {
				p.logger.Warn("stopping stack", "failed", d.Name, "skipped", rest)
			}
			break
		}
	}
	return results, nil
}

// Teardown stops and removes every container named name. Containers that vanish in
// between are ignored. It returns how many containers were removed.
func (p *Provisioner) Teardown(ctx context.Context, name container.ContainerName) (int, error) {
	existing, err := p.Inspect(ctx, name)
	if err != nil {
		return 0, err
	}

	var (
		removed int
		errs    []error
	)
	for _, c := range existing {
		ref := string(c.ID)
		if err := p.engine.Stop(ctx, ref); err != nil && !errors.Is(err, container.ErrContainerNotFound) {
			p.logger.Warn("stop failed", "service", name, "container", c.ID.Short(), "err", err)
		}
		if err := p.engine.Remove(ctx, ref, true); err != nil {
			if !errors.Is(err, container.ErrContainerNotFound) {
				errs = append(errs, fmt.Errorf("remove %s: %w", c.ID.Short(), err))
			}
			continue
		}
		p.logger.Info("removed container", "service", name, "container", c.ID.Short())
		removed++
	}
	return removed, errors.Join(errs...)
}
