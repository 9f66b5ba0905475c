// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/internal/servicelock"
)

const twoServiceStack = `
services: [{
	name:  "web"
	image: "nginx:1.27"
	ports: [{host: 8080, container: 80}]
	depends_on: ["db"]
}, {
	name:  "db"
	image: "postgres:16"
	env: POSTGRES_PASSWORD: "${DB_PASSWORD:-secret}"
}]
`

func TestUp_PresetRunning(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)

	if err := te.run("up", "--preset", "ollama"); err != nil {
		t.Fatalf("up failed: %v\nstdout: %s", err, te.stdout)
	}

	if got := te.engine.count("ollama"); got != 1 {
		t.Errorf("expected one ollama container, got %d", got)
	}
	if len(te.engine.runs) != 1 || te.engine.runs[0].Image != "ollama/ollama:latest" {
		t.Errorf("unexpected runs: %+v", te.engine.runs)
	}
	out := te.stdout.String()
	if !strings.Contains(out, "ollama") || !strings.Contains(out, "Running") {
		t.Errorf("expected a Running line for ollama, got:\n%s", out)
	}
	if !slices.Equal(te.engineTypes, []container.EngineType{"auto"}) {
		t.Errorf("engine types = %v, want [auto]", te.engineTypes)
	}
}

func TestUp_IsIdempotent(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)

	for range 3 {
		if err := te.run("up", "--preset", "ollama"); err != nil {
			t.Fatalf("up failed: %v", err)
		}
	}
	if got := te.engine.count("ollama"); got != 1 {
		t.Errorf("expected exactly one ollama container after three runs, got %d", got)
	}
}

func TestUp_RerunKeepsItsOwnPorts(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	if err := te.run("up", "--preset", "ollama"); err != nil {
		t.Fatalf("first up failed: %v", err)
	}
	if !te.engine.publishes(container.PortMapping{HostPort: 11434}) {
		t.Fatal("the running ollama container should hold host port 11434")
	}
	if err := te.run("up", "--preset", "ollama"); err != nil {
		t.Fatalf("second up must replace the container holding its own port: %v", err)
	}

	other := newTestEnv(t)
	other.engine.seed("llm-proxy", container.StateRunning, container.PortMapping{HostPort: 11434, ContainerPort: 8080})
	err := other.run("up", "--preset", "ollama")
	requireExitCode(t, err, 2)
	if !strings.Contains(err.Error(), "PortInUse") {
		t.Errorf("a port held by another container is still in use, got %v", err)
	}
}

func TestUp_GPUOverrideSelectsImageAndFlags(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)

	if err := te.run("up", "--preset", "ollama", "--gpu", "amd"); err != nil {
		t.Fatalf("up failed: %v", err)
	}
	run := te.engine.runs[0]
	if run.Image != "ollama/ollama:rocm" {
		t.Errorf("image = %s, want ollama/ollama:rocm", run.Image)
	}
	if !slices.Contains(run.Flags, "--device=/dev/kfd") {
		t.Errorf("expected AMD device flags, got %v", run.Flags)
	}
}

func TestUp_ExitCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		setup    func(te *testEnv)
		wantCode int
		wantMsg  string
	}{
		{
			name:     "port in use",
			setup:    func(te *testEnv) { te.host.busy[11434] = true },
			wantCode: 2,
			wantMsg:  "explain PortInUse",
		},
		{
			name:     "no privilege",
			setup:    func(te *testEnv) { te.host.denied = true },
			wantCode: 2,
			wantMsg:  "explain PrivilegeError",
		},
		{
			name: "pull failure",
			setup: func(te *testEnv) {
				te.engine.pullErr = &container.CommandError{Output: "manifest unknown", Err: errors.New("exit status 1")}
			},
			wantCode: 3,
			wantMsg:  "explain PullFailed",
		},
		{
			name: "launch failure",
			setup: func(te *testEnv) {
				te.engine.runErr = &container.CommandError{Output: "invalid reference format", Err: errors.New("exit status 125")}
			},
			wantCode: 4,
			wantMsg:  "explain FailedLaunch",
		},
		{
			name:     "container exits",
			setup:    func(te *testEnv) { te.engine.launchState = container.StateExited },
			wantCode: 5,
			wantMsg:  "explain FailedVerification",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			te := newTestEnv(t)
			tt.setup(te)

			err := te.run("up", "--preset", "ollama")
			requireExitCode(t, err, tt.wantCode)
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestUp_LaunchFailureShowsToolOutput(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	te.engine.runErr = &container.CommandError{Output: "invalid reference format", Err: errors.New("exit status 125")}

	err := te.run("up", "--preset", "ollama")
	requireExitCode(t, err, 4)
	if !strings.Contains(te.stdout.String(), "invalid reference format") {
		t.Errorf("expected the runtime's message in the output, got:\n%s", te.stdout)
	}
}

func TestUp_StackOrderAndStop(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	path := writeServiceFile(t, twoServiceStack)

	if err := te.run("up", path); err != nil {
		t.Fatalf("up failed: %v", err)
	}
	if len(te.engine.runs) != 2 || te.engine.runs[0].Name != "db" || te.engine.runs[1].Name != "web" {
		t.Fatalf("expected db before web, got %+v", te.engine.runs)
	}
	if te.engine.runs[0].Env["POSTGRES_PASSWORD"] != "secret" {
		t.Errorf("expected the env default to apply, got %q", te.engine.runs[0].Env["POSTGRES_PASSWORD"])
	}

	// A failing dependency stops the stack and the dependent is reported as skipped.
	te2 := newTestEnv(t)
	te2.engine.launchState = container.StateDead
	err := te2.run("up", path)
	requireExitCode(t, err, 5)
	if len(te2.engine.runs) != 1 {
		t.Errorf("expected the stack to stop after db, got %d runs", len(te2.engine.runs))
	}
	if out := te2.stdout.String(); !strings.Contains(out, "web") || !strings.Contains(out, "skipped") {
		t.Errorf("expected web to be reported as skipped, got:\n%s", out)
	}
}

func TestUp_EnvFromHost(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	te.env["DB_PASSWORD"] = "from-host"

	if err := te.run("up", writeServiceFile(t, twoServiceStack), "--only", "db"); err != nil {
		t.Fatalf("up failed: %v", err)
	}
	if len(te.engine.runs) != 1 || te.engine.runs[0].Env["POSTGRES_PASSWORD"] != "from-host" {
		t.Errorf("unexpected runs: %+v", te.engine.runs)
	}
}

func TestUp_OnlyDropsUnselectedDependencies(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)

	if err := te.run("up", writeServiceFile(t, twoServiceStack), "--only", "web"); err != nil {
		t.Fatalf("up failed: %v", err)
	}
	if len(te.engine.runs) != 1 || te.engine.runs[0].Name != "web" {
		t.Errorf("expected only web to run, got %+v", te.engine.runs)
	}
}

func TestUp_UsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args func(t *testing.T) []string
		want int
	}{
		{"nothing to do", func(*testing.T) []string { return []string{"up"} }, 1},
		{"unknown preset", func(*testing.T) []string { return []string{"up", "--preset", "nope"} }, 1},
		{"bad gpu", func(*testing.T) []string { return []string{"up", "--preset", "ollama", "--gpu", "intel"} }, 1},
		{"unknown only", func(t *testing.T) []string {
			return []string{"up", writeServiceFile(t, twoServiceStack), "--only", "cache"}
		}, 1},
		{"bad engine flag", func(*testing.T) []string { return []string{"up", "--preset", "ollama", "--engine", "lxc"} }, 1},
		{"missing file", func(t *testing.T) []string { return []string{"up", t.TempDir() + "/missing.cue"} }, 2},
		{"missing required env", func(*testing.T) []string { return []string{"up", "--preset", "pihole"} }, 2},
		{"unknown dependency", func(t *testing.T) []string {
			return []string{"up", writeServiceFile(t, `services: [{name: "web", image: "nginx", depends_on: ["db"]}]`)}
		}, 2},
		{"duplicate service", func(*testing.T) []string { return []string{"up", "--preset", "ollama", "--preset", "ollama"} }, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			te := newTestEnv(t)
			err := te.run(tt.args(t)...)
			requireExitCode(t, err, tt.want)
			if len(te.engine.runs) != 0 {
				t.Errorf("nothing should have been launched, got %+v", te.engine.runs)
			}
		})
	}
}

func TestUp_CycleNeverContactsEngine(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	path := writeServiceFile(t, `
services: [
	{name: "a", image: "busybox", depends_on: ["b"]},
	{name: "b", image: "busybox", depends_on: ["a"]},
]
`)

	err := te.run("up", path)
	requireExitCode(t, err, 2)
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("expected a cycle error, got %v", err)
	}
	if len(te.engineTypes) != 0 {
		t.Errorf("the engine should not be contacted, got %v", te.engineTypes)
	}
}

func TestUp_EngineUnavailable(t *testing.T) {
	t.Parallel()

	te := newTestEnv(t)
	te.engineErr = &container.ErrEngineNotAvailable{Engine: "any", Reason: "no engine"}

	err := te.run("up", "--preset", "ollama", "--engine", "podman")
	requireExitCode(t, err, 1)
	if !strings.Contains(err.Error(), "container engine") {
		t.Errorf("expected an engine error, got %v", err)
	}
	if !slices.Equal(te.engineTypes, []container.EngineType{"podman"}) {
		t.Errorf("--engine should reach the factory, got %v", te.engineTypes)
	}
}

func TestUp_LockedService(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("service locks are advisory flocks on unix only")
	}

	te := newTestEnv(t)
	held, err := servicelock.Acquire(string(te.cfg.LockDir), "ollama")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	t.Cleanup(held.Release)

	err = te.run("up", "--preset", "ollama")
	requireExitCode(t, err, ExitCodeLocked)
	if !errors.Is(err, servicelock.ErrLocked) {
		t.Errorf("expected ErrLocked in the chain, got %v", err)
	}
	if len(te.engine.runs) != 0 {
		t.Error("a locked service must not be provisioned")
	}

	held.Release()
	if err := te.run("up", "--preset", "ollama"); err != nil {
		t.Fatalf("up after release failed: %v", err)
	}
}
