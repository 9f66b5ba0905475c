// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/internal/dag"
	"github.com/invowk/harbormaster/pkg/servicefile"
)

func tunnelStack() []servicefile.Descriptor {
	return []servicefile.Descriptor{
		{
			Name:      "cloudflared",
			Source:    servicefile.PullSource{Reference: "cloudflare/cloudflared:latest"},
			Command:   []string{"tunnel", "run"},
			DependsOn: []container.ContainerName{"nginx-proxy"},
		},
		{
			Name:   "nginx-proxy",
			Source: servicefile.PullSource{Reference: "nginx:latest"},
			Ports:  []container.PortMapping{{HostPort: 80, ContainerPort: 80}},
		},
	}
}

func TestProvisionStack_DependencyOrder(t *testing.T) {
	t.Parallel()
	e, h := newFakeEngine(), newFakeHost()

	results, err := newTestProvisioner(t, e, h).ProvisionStack(context.Background(), tunnelStack())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var names []container.ContainerName
	for _, r := range results {
		names = append(names, r.Service)
		if !r.Running() {
			t.Errorf("%s: %s (%v)", r.Service, r.Status, r.Err)
		}
	}
	if want := []container.ContainerName{"nginx-proxy", "cloudflared"}; !slices.Equal(names, want) {
		t.Errorf("order = %v, want %v", names, want)
	}
	if ExitCode(results) != 0 {
		t.Errorf("ExitCode = %d, want 0", ExitCode(results))
	}
}

func TestProvisionStack_StopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	e, h := newFakeEngine(), newFakeHost()
	h.busy[80] = true

	results, err := newTestProvisioner(t, e, h).ProvisionStack(context.Background(), tunnelStack())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Service != "nginx-proxy" {
		t.Fatalf("results = %+v, want only nginx-proxy", results)
	}
	if e.called("pull cloudflare") != 0 {
		t.Errorf("dependent service provisioned after failure: %v", e.calls)
	}
	if ExitCode(results) != 2 {
		t.Errorf("ExitCode = %d, want 2", ExitCode(results))
	}
}

func TestProvisionStack_OrderingErrors(t *testing.T) {
	t.Parallel()

	cycle := tunnelStack()
	cycle[1].DependsOn = []container.ContainerName{"cloudflared"}

	unknown := tunnelStack()[:1]

	for name, tc := range map[string]struct {
		in   []servicefile.Descriptor
		want error
	}{
		"cycle":   {cycle, dag.ErrCycle},
		"unknown": {unknown, dag.ErrUnknownDependency},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			e, h := newFakeEngine(), newFakeHost()
			results, err := newTestProvisioner(t, e, h).ProvisionStack(context.Background(), tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if results != nil || len(e.calls) != 0 || len(h.portChecks) != 0 {
				t.Errorf("side effects before ordering error: results=%v calls=%v", results, e.calls)
			}
		})
	}
}

func TestTeardown(t *testing.T) {
	t.Parallel()
	e, h := newFakeEngine(), newFakeHost()
	e.seed("pihole", "pihole/pihole:latest", container.StateRunning)
	e.seed("other", "nginx:latest", container.StateRunning)
	p := newTestProvisioner(t, e, h)

	removed, err := p.Teardown(context.Background(), "pihole")
	if err != nil || removed != 1 {
		t.Fatalf("Teardown = %d, %v; want 1, nil", removed, err)
	}
	if len(e.named("pihole")) != 0 || len(e.named("other")) != 1 {
		t.Errorf("containers after teardown: %v", e.containers)
	}

	removed, err = p.Teardown(context.Background(), "pihole")
	if err != nil || removed != 0 {
		t.Errorf("second Teardown = %d, %v; want 0, nil", removed, err)
	}

	if _, err := p.Teardown(context.Background(), ""); !errors.Is(err, container.ErrInvalidContainerName) {
		t.Errorf("empty name err = %v", err)
	}
}

func TestTeardown_RemoveFailure(t *testing.T) {
	t.Parallel()
	e, h := newFakeEngine(), newFakeHost()
	e.seed("pihole", "pihole/pihole:latest", container.StateRunning)
	e.removeErr = errors.New("device or resource busy")

	removed, err := newTestProvisioner(t, e, h).Teardown(context.Background(), "pihole")
	if removed != 0 || err == nil {
		t.Errorf("Teardown = %d, %v; want 0 and an error", removed, err)
	}
}

func TestInspect(t *testing.T) {
	t.Parallel()
	e, h := newFakeEngine(), newFakeHost()
	id := e.seed("ollama", "ollama/ollama:latest", container.StateExited)

	got, err := newTestProvisioner(t, e, h).Inspect(context.Background(), "ollama")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != id || got[0].State != container.StateExited {
		t.Errorf("Inspect = %v", got)
	}
}
