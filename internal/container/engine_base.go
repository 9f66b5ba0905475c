// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/invowk/harbormaster/internal/issue"
)

// listFormat is understood by both docker and podman ps.
const listFormat = "{{.ID}}\t{{.Names}}\t{{.Image}}\t{{.State}}\t{{.Ports}}"

type (
	// ExecCommandFunc creates the process for one engine invocation; tests swap it.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// VolumeFormatFunc formats a volume mount for the -v flag.
	// Podman uses this to add SELinux labels.
	VolumeFormatFunc func(volume VolumeMount) string

	// BaseCLIEngineOption customizes a BaseCLIEngine at construction.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides the implementation shared by CLI-based container engines.
	// Docker and Podman engines embed this struct; engine-specific methods
	// (Available, Version, ImageExists) remain on the concrete types.
	BaseCLIEngine struct {
		name            string
		binaryPath      HostFilesystemPath
		execCommand     ExecCommandFunc
		volumeFormatter VolumeFormatFunc
	}
)

// WithExecCommand replaces exec.CommandContext.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithVolumeFormatter changes how -v values are rendered.
func WithVolumeFormatter(fn VolumeFormatFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.volumeFormatter = fn
	}
}

// WithBinaryPath overrides the binary resolved from PATH.
func WithBinaryPath(path HostFilesystemPath) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.binaryPath = path
	}
}

// NewBaseCLIEngine returns the shared engine core for the binary at binaryPath.
func NewBaseCLIEngine(name string, binaryPath HostFilesystemPath, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		name:            name,
		binaryPath:      binaryPath,
		execCommand:     exec.CommandContext,
		volumeFormatter: FormatVolumeMount,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath is the engine executable this core invokes.
func (e *BaseCLIEngine) BinaryPath() string {
	return string(e.binaryPath)
}

// PullArgs constructs arguments for an image pull.
func (e *BaseCLIEngine) PullArgs(image ImageTag) []string {
	return []string{"pull", string(image)}
}

// BuildArgs renders "build [-f file] [-t tag] [--no-cache] [--build-arg k=v]... context".
// A relative Dockerfile is resolved against the context directory.
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Dockerfile != "" {
		dockerfilePath := opts.Dockerfile
		if !filepath.IsAbs(dockerfilePath) && opts.ContextDir != "" {
			dockerfilePath = filepath.Join(string(opts.ContextDir), dockerfilePath)
		}
		args = append(args, "-f", dockerfilePath)
	}

	if opts.Tag != "" {
		args = append(args, "-t", string(opts.Tag))
	}

	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	// Sorted so the argv is stable across runs.
	keys := make([]string, 0, len(opts.BuildArgs))
	for k := range opts.BuildArgs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, "--build-arg", k+"="+opts.BuildArgs[k])
	}

	args = append(args, string(opts.ContextDir))

	return args
}

// ListArgs constructs arguments for listing containers, running or stopped, by exact name.
func (e *BaseCLIEngine) ListArgs(name ContainerName) []string {
	return []string{
		"ps", "-a", "--no-trunc",
		"--filter", "name=^" + string(name) + "$",
		"--format", listFormat,
	}
}

// StopArgs constructs arguments for stopping a container.
func (e *BaseCLIEngine) StopArgs(ref string) []string {
	return []string{"stop", ref}
}

// RemoveArgs renders "rm [-f] id...".
func (e *BaseCLIEngine) RemoveArgs(ref string, force bool) []string {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	return append(args, ref)
}

// RunArgs constructs arguments for a detached container launch.
//
// Generated command: <binary> run -d --name <name> [options] [flags...] <image> [command...]
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run", "-d", "--name", string(opts.Name)}

	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+opts.Env[k])
	}

	for _, v := range opts.Volumes {
		args = append(args, "-v", e.volumeFormatter(v))
	}

	for _, p := range opts.Ports {
		args = append(args, "-p", FormatPortMapping(p))
	}

	args = append(args, opts.Flags...)
	args = append(args, string(opts.Image))
	args = append(args, opts.Command...)

	return args
}

// CreateCommand prepares, without starting, one invocation of the engine binary.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, string(e.binaryPath), args...)
}

// RunCommandCombined executes a command and returns combined stdout/stderr.
// On failure the output is attached to a *CommandError.
func (e *BaseCLIEngine) RunCommandCombined(ctx context.Context, args ...string) ([]byte, error) {
	cmd := e.CreateCommand(ctx, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, &CommandError{Args: args, Output: strings.TrimSpace(string(out)), Err: err}
	}
	return out, nil
}

// RunCommandWithOutput executes a command and returns stdout. Stderr is kept for the
// *CommandError returned on failure.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &CommandError{Args: args, Output: strings.TrimSpace(stderr.String()), Err: err}
	}

	return stdout.String(), nil
}

// runStreaming executes a command with combined output copied to w (when set) and
// kept in memory for the error.
func (e *BaseCLIEngine) runStreaming(ctx context.Context, w io.Writer, args ...string) error {
	cmd := e.CreateCommand(ctx, args...)
	var buf bytes.Buffer
	var out io.Writer = &buf
	if w != nil {
		out = io.MultiWriter(&buf, w)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		return &CommandError{Args: args, Output: strings.TrimSpace(buf.String()), Err: err}
	}
	return nil
}

// Pull fetches an image from its registry.
func (e *BaseCLIEngine) Pull(ctx context.Context, opts PullOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := e.runStreaming(ctx, opts.Output, e.PullArgs(opts.Image)...); err != nil {
		return pullImageError(e.name, opts.Image, err)
	}
	return nil
}

// Build runs an image build, streaming its output to opts.Output when set.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := e.runStreaming(ctx, opts.Output, e.BuildArgs(opts)...); err != nil {
		return buildContainerError(e.name, opts, err)
	}
	return nil
}

// List returns the containers whose name is exactly name.
func (e *BaseCLIEngine) List(ctx context.Context, name ContainerName) ([]Summary, error) {
	out, err := e.RunCommandWithOutput(ctx, e.ListArgs(name)...)
	if err != nil {
		return nil, fmt.Errorf("list containers named %s: %w", name, err)
	}
	return parseListOutput(out, name), nil
}

// Stop stops a container by name or ID.
func (e *BaseCLIEngine) Stop(ctx context.Context, ref string) error {
	if _, err := e.RunCommandCombined(ctx, e.StopArgs(ref)...); err != nil {
		return classifyNotFound(err)
	}
	return nil
}

// Remove removes a container by name or ID.
func (e *BaseCLIEngine) Remove(ctx context.Context, ref string, force bool) error {
	if _, err := e.RunCommandCombined(ctx, e.RemoveArgs(ref, force)...); err != nil {
		return classifyNotFound(err)
	}
	return nil
}

// RunDetached launches a container in the background and returns its ID.
func (e *BaseCLIEngine) RunDetached(ctx context.Context, opts RunOptions) (ContainerID, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}

	out, err := e.RunCommandWithOutput(ctx, e.RunArgs(opts)...)
	if err != nil {
		return "", runContainerError(e.name, opts, err)
	}

	// Only the last stdout line is the ID; an implicit pull may print above it.
	lines := strings.Split(strings.TrimSpace(out), "\n")
	id := ContainerID(strings.TrimSpace(lines[len(lines)-1]))
	if err := id.Validate(); err != nil {
		return "", runContainerError(e.name, opts, fmt.Errorf("engine returned no container ID: %w", err))
	}
	return id, nil
}

// parseListOutput parses listFormat rows. The engine filter is a regex over names, so
// rows are matched exactly again here.
func parseListOutput(out string, name ContainerName) []Summary {
	var result []Summary
	for line := range strings.SplitSeq(strings.TrimSpace(out), "\n") {
		fields := strings.Split(strings.TrimSpace(line), "\t")
		if len(fields) < 4 {
			continue
		}
		names := strings.Split(fields[1], ",")
		matched := false
		for _, n := range names {
			if strings.TrimPrefix(strings.TrimSpace(n), "/") == string(name) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		summary := Summary{
			ID:    ContainerID(fields[0]),
			Name:  name,
			Image: ImageTag(fields[2]),
			State: ParseContainerState(fields[3]),
		}
		if len(fields) > 4 {
			summary.Ports = parsePublishedPorts(fields[4])
		}
		result = append(result, summary)
	}
	return result
}

// parsePublishedPorts reads the ps Ports column, e.g.
// "0.0.0.0:8080->80/tcp, [::]:8080->80/tcp, 9000/tcp". Exposed-only ports have no
// host side and are skipped; ranges are expanded. Unparseable entries are dropped.
func parsePublishedPorts(column string) []PortMapping {
	var ports []PortMapping
	for entry := range strings.SplitSeq(column, ",") {
		hostSide, containerSide, ok := strings.Cut(strings.TrimSpace(entry), "->")
		if !ok {
			continue
		}
		containerPorts, proto, _ := strings.Cut(containerSide, "/")

		hostIP, hostPorts := "", hostSide
		if i := strings.LastIndex(hostSide, ":"); i >= 0 {
			hostIP, hostPorts = strings.Trim(hostSide[:i], "[]"), hostSide[i+1:]
		}

		hostLo, hostHi, err := parsePortRange(hostPorts)
		if err != nil {
			continue
		}
		ctrLo, ctrHi, err := parsePortRange(containerPorts)
		if err != nil || ctrHi-ctrLo != hostHi-hostLo {
			continue
		}
		for off := 0; off <= hostHi-hostLo; off++ {
			ports = append(ports, PortMapping{
				HostIP:        hostIP,
				HostPort:      NetworkPort(hostLo + off),
				ContainerPort: NetworkPort(ctrLo + off),
				Protocol:      PortProtocol(proto),
			})
		}
	}
	return ports
}

func parsePortRange(s string) (lo, hi int, err error) {
	first, last, isRange := strings.Cut(s, "-")
	lo, err = strconv.Atoi(first)
	if err != nil {
		return 0, 0, err
	}
	hi = lo
	if isRange {
		if hi, err = strconv.Atoi(last); err != nil {
			return 0, 0, err
		}
	}
	if lo < 1 || hi < lo || hi > 65535 {
		return 0, 0, fmt.Errorf("port range %q out of bounds", s)
	}
	return lo, hi, nil
}

// classifyNotFound maps the engines' "no such container" output to ErrContainerNotFound.
func classifyNotFound(err error) error {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && isNotFoundOutput(cmdErr.Output) {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, cmdErr.Output)
	}
	return err
}

func isNotFoundOutput(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "no such container") ||
		(strings.Contains(lower, "no container with name or id") && strings.Contains(lower, "found"))
}

// pullImageError wraps a failed pull with registry-oriented hints.
func pullImageError(engine string, image ImageTag, cause error) error {
	return issue.NewErrorContext().
		WithOperation("pull container image").
		WithResource(string(image)).
		WithSuggestion("Check the image reference for typos (registry/name:tag)").
		WithSuggestion("Verify the registry is reachable from this host").
		WithSuggestion("Log in first if the registry is private (try: " + engine + " login)").
		WithTopic(issue.ImagePullFailedId).
		Wrap(cause).
		BuildError()
}

// buildContainerError names the tag, or the context when untagged.
func buildContainerError(engine string, opts BuildOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("build container image")

	switch {
	case opts.Tag != "":
		ctx.WithResource(string(opts.Tag))
	case opts.ContextDir != "":
		ctx.WithResource(string(opts.ContextDir))
	}

	ctx.WithSuggestion("Check Dockerfile syntax for errors")
	ctx.WithSuggestion("Ensure base images are available (try: " + engine + " pull <base-image>)")
	ctx.WithSuggestion("Run with --verbose to see full build output")
	ctx.WithTopic(issue.ImageBuildFailedId)

	return ctx.Wrap(cause).BuildError()
}

// runContainerError wraps a failed launch of opts.Name.
func runContainerError(engine string, opts RunOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("run container").
		WithResource(string(opts.Name))

	ctx.WithSuggestion("Verify the image exists (try: " + engine + " images)")
	ctx.WithSuggestion("Ensure port mappings don't conflict with running services")
	ctx.WithSuggestion("Check the extra runtime flags are supported by " + engine)
	ctx.WithTopic(issue.LaunchFailedId)

	return ctx.Wrap(cause).BuildError()
}
