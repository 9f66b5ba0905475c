// SPDX-License-Identifier: MPL-2.0

// Package provision is the idempotent provisioning engine.
//
// Provision takes one servicefile.Descriptor through four steps, in order, and stops
// at the first failure:
//
//   - validate: runtime privilege, free host ports, volume directories
//   - resolve image: pull, or build from a Dockerfile in a temporary context
//   - replace container: stop and remove any container with the same name, then launch
//   - verify: the new container is listed as running
//
// The outcome is a Result whose Status maps to a distinct exit code. Failures carry a
// typed error (ValidationError, ResolutionError, LaunchError, VerificationError) and
// the container tool's output verbatim in the diagnostics.
//
//	p := provision.New(engine, host.New(), provision.WithLogger(logger))
//	res := p.Provision(ctx, descriptor)
//	os.Exit(res.Status.ExitCode())
package provision
