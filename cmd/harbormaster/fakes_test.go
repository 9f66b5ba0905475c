// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/invowk/harbormaster/internal/config"
	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/internal/host"
)

type (
	fakeEngine struct {
		mu sync.Mutex

		containers []container.Summary
		nextID     int

		pullErr error
		runErr  error
		// launchState is the state newly launched containers report; running when empty.
		launchState container.ContainerState

		pulls []container.ImageTag
		runs  []container.RunOptions
	}

	// fakeHost treats the host ports of the engine's running containers as taken.
	fakeHost struct {
		mu      sync.Mutex
		denied  bool
		busy    map[container.NetworkPort]bool
		engine  *fakeEngine
		created []container.HostFilesystemPath
	}

	testEnv struct {
		app    *App
		cfg    *config.Config
		engine *fakeEngine
		host   *fakeHost
		stdout *bytes.Buffer
		stderr *bytes.Buffer
		env    map[string]string

		// engineTypes records every engine type the CLI asked for.
		engineTypes []container.EngineType
		engineErr   error
	}
)

var (
	_ container.Engine = (*fakeEngine)(nil)
	_ host.Environment = (*fakeHost)(nil)
)

// failingConfig is a provider whose every load fails with err.
func failingConfig(err error) config.Provider {
	return config.ProviderFunc(func(context.Context, config.LoadOptions) (*config.Config, error) {
		return nil, err
	})
}

func (e *fakeEngine) Name() string                                        { return "fake" }
func (e *fakeEngine) Available(context.Context) bool                      { return true }
func (e *fakeEngine) Version(context.Context) (string, error)             { return "1.0", nil }
func (e *fakeEngine) Build(context.Context, container.BuildOptions) error { return nil }

func (e *fakeEngine) ImageExists(context.Context, container.ImageTag) (bool, error) {
	return true, nil
}

func (e *fakeEngine) Pull(_ context.Context, opts container.PullOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pulls = append(e.pulls, opts.Image)
	return e.pullErr
}

func (e *fakeEngine) List(_ context.Context, name container.ContainerName) ([]container.Summary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []container.Summary
	for _, c := range e.containers {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out, nil
}

func (e *fakeEngine) Stop(_ context.Context, ref string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
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
	e.runs = append(e.runs, opts)
	if e.runErr != nil {
		return "", e.runErr
	}
	if e.find(string(opts.Name)) >= 0 {
		return "", &container.CommandError{
			Args:   []string{"run", "--name", string(opts.Name)},
			Output: fmt.Sprintf("Conflict. The container name %q is already in use", "/"+opts.Name),
			Err:    errors.New("exit status 125"),
		}
	}

	e.nextID++
	id := container.ContainerID(fmt.Sprintf("%064x", e.nextID))
	state := e.launchState
	if state == "" {
		state = container.StateRunning
	}
	launched := container.Summary{ID: id, Name: opts.Name, Image: opts.Image, State: state}
	if state == container.StateRunning {
		launched.Ports = slices.Clone(opts.Ports)
	}
	e.containers = append(e.containers, launched)
	return id, nil
}

// seed adds an existing container publishing ports.
func (e *fakeEngine) seed(name container.ContainerName, state container.ContainerState, ports ...container.PortMapping) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.containers = append(e.containers, container.Summary{
		ID:    container.ContainerID(fmt.Sprintf("%064x", e.nextID)),
		Name:  name,
		Image: "seeded:latest",
		State: state,
		Ports: ports,
	})
}

func (e *fakeEngine) publishes(m container.PortMapping) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.ContainsFunc(e.containers, func(c container.Summary) bool {
		return c.State == container.StateRunning && c.Publishes(m)
	})
}

func (e *fakeEngine) find(ref string) int {
	return slices.IndexFunc(e.containers, func(c container.Summary) bool {
		return string(c.ID) == ref || string(c.Name) == ref
	})
}

func (e *fakeEngine) count(name container.ContainerName) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.containers {
		if c.Name == name {
			n++
		}
	}
	return n
}

func (h *fakeHost) HasAdminPrivilege() bool { return !h.denied }

func (h *fakeHost) IsPortFree(_ context.Context, m container.PortMapping) (bool, error) {
	if h.busy[m.HostPort] {
		return false, nil
	}
	return !h.engine.publishes(m), nil
}

func (h *fakeHost) EnsureDirectory(path container.HostFilesystemPath) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, path)
	return nil
}

// newTestEnv returns an App wired to fakes. The config has root checks off and
// private lock and build directories.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.RequireRoot = false
	cfg.LockDir = config.DirPath(t.TempDir())
	cfg.BuildDir = config.DirPath(t.TempDir())

	engine := &fakeEngine{}
	te := &testEnv{
		cfg:    cfg,
		engine: engine,
		host:   &fakeHost{busy: map[container.NetworkPort]bool{}, engine: engine},
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		env:    map[string]string{},
	}
	te.app = NewApp(Dependencies{
		Config: config.Static(cfg),
		NewEngine: func(_ context.Context, engineType container.EngineType) (container.Engine, error) {
			te.engineTypes = append(te.engineTypes, engineType)
			if te.engineErr != nil {
				return nil, te.engineErr
			}
			return te.engine, nil
		},
		NewHost:    func(bool) host.Environment { return te.host },
		Getenv:     func(key string) string { return te.env[key] },
		IssueStyle: "notty",
		Stdout:     te.stdout,
		Stderr:     te.stderr,
	})
	return te
}

// run executes the command tree with args.
func (te *testEnv) run(args ...string) error {
	root := NewRootCommand(te.app)
	root.SetArgs(args)
	root.SetOut(te.stdout)
	root.SetErr(te.stderr)
	return root.ExecuteContext(context.Background())
}

// writeServiceFile writes a CUE service file into a temp dir and returns its path.
func writeServiceFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stack.cue")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write service file: %v", err)
	}
	return path
}

// requireExitCode asserts that err carries the given exit code.
func requireExitCode(t *testing.T, err error, want int) {
	t.Helper()
	if got := exitCode(err); got != want {
		t.Fatalf("exit code = %d, want %d (err: %v)", got, want, err)
	}
}
