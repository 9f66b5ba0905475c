// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/internal/host"
)

var (
	_ container.Engine = (*fakeEngine)(nil)
	_ host.Environment = (*fakeHost)(nil)
)

type (
	// fakeEngine is an in-memory container runtime that enforces unique names the way
	// docker does.
	fakeEngine struct {
		mu         sync.Mutex
		containers []container.Summary
		calls      []string
		nextID     int
		launched   bool

		pullErr   error
		buildErr  error
		runErr    error
		listErr   error
		stopErr   error
		removeErr error

		// runState is the state of launched containers. Defaults to running.
		runState container.ContainerState
		// verifyStates, when set, replaces the launched container's state on each
		// List call after a launch, one entry per call.
		verifyStates []container.ContainerState

		// buildNotLoaded makes built images missing from the local store.
		buildNotLoaded bool

		builtDockerfile string
		builtFiles      []string
		builtContextDir string
	}

	fakeHost struct {
		mu     sync.Mutex
		denied bool
		busy   map[container.NetworkPort]bool
		// engine, when set, makes the host ports of its running containers busy,
		// the way docker-proxy holds them.
		engine     *fakeEngine
		portErr    error
		dirErr     map[container.HostFilesystemPath]error
		portChecks []container.NetworkPort
		created    []container.HostFilesystemPath
	}
)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{runState: container.StateRunning}
}

func (e *fakeEngine) record(format string, args ...any) {
	e.calls = append(e.calls, fmt.Sprintf(format, args...))
}

func (e *fakeEngine) called(prefix string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (e *fakeEngine) seed(name container.ContainerName, image container.ImageTag, state container.ContainerState) container.ContainerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.newID()
	e.containers = append(e.containers, container.Summary{ID: id, Name: name, Image: image, State: state})
	return id
}

func (e *fakeEngine) named(name container.ContainerName) []container.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []container.Summary
	for _, c := range e.containers {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// publish seeds a running container that holds the given host ports.
func (e *fakeEngine) publish(name container.ContainerName, image container.ImageTag, ports ...container.PortMapping) container.ContainerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.newID()
	e.containers = append(e.containers, container.Summary{
		ID: id, Name: name, Image: image, State: container.StateRunning, Ports: ports,
	})
	return id
}

func (e *fakeEngine) publishes(m container.PortMapping) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.ContainsFunc(e.containers, func(c container.Summary) bool {
		return c.State == container.StateRunning && c.Publishes(m)
	})
}

func (e *fakeEngine) newID() container.ContainerID {
	e.nextID++
	return container.ContainerID(fmt.Sprintf("%012x%052d", e.nextID, 0))
}

func (e *fakeEngine) find(ref string) int {
	return slices.IndexFunc(e.containers, func(c container.Summary) bool {
		return string(c.ID) == ref || string(c.Name) == ref
	})
}

func (e *fakeEngine) Name() string                            { return "fake" }
func (e *fakeEngine) Available(context.Context) bool          { return true }
func (e *fakeEngine) Version(context.Context) (string, error) { return "1.0", nil }

func (e *fakeEngine) Pull(_ context.Context, opts container.PullOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("pull %s", opts.Image)
	return e.pullErr
}

func (e *fakeEngine) Build(_ context.Context, opts container.BuildOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("build %s", opts.Tag)

	e.builtContextDir = string(opts.ContextDir)
	data, err := os.ReadFile(filepath.Join(string(opts.ContextDir), opts.Dockerfile))
	if err != nil {
		return err
	}
	e.builtDockerfile = string(data)
	entries, err := os.ReadDir(string(opts.ContextDir))
	if err != nil {
		return err
	}
	for _, entry := range entries {
		e.builtFiles = append(e.builtFiles, entry.Name())
	}
	return e.buildErr
}

func (e *fakeEngine) ImageExists(context.Context, container.ImageTag) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.buildNotLoaded, nil
}

func (e *fakeEngine) List(_ context.Context, name container.ContainerName) ([]container.Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("list %s", name)
	if e.listErr != nil {
		return nil, e.listErr
	}

	var out []container.Summary
	for i, c := range e.containers {
		if c.Name != name {
			continue
		}
		if e.launched && len(e.verifyStates) > 0 {
			e.containers[i].State = e.verifyStates[0]
			e.verifyStates = e.verifyStates[1:]
		}
		out = append(out, e.containers[i])
	}
	return out, nil
}

func (e *fakeEngine) Stop(_ context.Context, ref string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("stop %s", ref)
	if e.stopErr != nil {
		return e.stopErr
	}
	i := e.find(ref)
	if i < 0 {
		return container.ErrContainerNotFound
	}
	e.containers[i].State = container.StateExited
	e.containers[i].Ports = nil
	return nil
}

func (e *fakeEngine) Remove(_ context.Context, ref string, _ bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("rm %s", ref)
	if e.removeErr != nil {
		return e.removeErr
	}
	i := e.find(ref)
	if i < 0 {
		return container.ErrContainerNotFound
	}
	e.containers = slices.Delete(e.containers, i, i+1)
	return nil
}

func (e *fakeEngine) RunDetached(_ context.Context, opts container.RunOptions) (container.ContainerID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("run %s %s", opts.Name, opts.Image)
	if e.runErr != nil {
		return "", e.runErr
	}
	if e.find(string(opts.Name)) >= 0 {
		return "", &container.CommandError{
			Args:   []string{"run", "-d", "--name", string(opts.Name)},
			Output: fmt.Sprintf("Conflict. The container name %q is already in use", "/"+opts.Name),
			Err:    errors.New("exit status 125"),
		}
	}
	id := e.newID()
	launched := container.Summary{ID: id, Name: opts.Name, Image: opts.Image, State: e.runState}
	if e.runState == container.StateRunning {
		launched.Ports = slices.Clone(opts.Ports)
	}
	e.containers = append(e.containers, launched)
	e.launched = true
	return id, nil
}

func newFakeHost() *fakeHost {
	return &fakeHost{busy: map[container.NetworkPort]bool{}, dirErr: map[container.HostFilesystemPath]error{}}
}

func (h *fakeHost) HasAdminPrivilege() bool { return !h.denied }

func (h *fakeHost) IsPortFree(_ context.Context, m container.PortMapping) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.portChecks = append(h.portChecks, m.HostPort)
	if h.portErr != nil {
		return false, h.portErr
	}
	if h.busy[m.HostPort] {
		return false, nil
	}
	if h.engine != nil {
		return !h.engine.publishes(m), nil
	}
	return true, nil
}

func (h *fakeHost) EnsureDirectory(path container.HostFilesystemPath) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.dirErr[path]; err != nil {
		return err
	}
	h.created = append(h.created, path)
	return nil
}
