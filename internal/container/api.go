// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
	"github.com/moby/go-archive"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

type (
	// dockerAPI is the subset of the Docker Engine API client the APIEngine needs.
	// *client.Client satisfies it; tests substitute a fake.
	dockerAPI interface {
		Ping(ctx context.Context) (types.Ping, error)
		ServerVersion(ctx context.Context) (types.Version, error)
		ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
		ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
		ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
		ContainerList(ctx context.Context, options dockercontainer.ListOptions) ([]dockercontainer.Summary, error)
		ContainerStop(ctx context.Context, containerID string, options dockercontainer.StopOptions) error
		ContainerRemove(ctx context.Context, containerID string, options dockercontainer.RemoveOptions) error
		ContainerCreate(
			ctx context.Context,
			config *dockercontainer.Config,
			hostConfig *dockercontainer.HostConfig,
			networkingConfig *network.NetworkingConfig,
			platform *ocispec.Platform,
			containerName string,
		) (dockercontainer.CreateResponse, error)
		ContainerStart(ctx context.Context, containerID string, options dockercontainer.StartOptions) error
	}

	// APIEngine implements Engine against the Docker Engine API instead of a CLI binary.
	// The daemon is located through the usual DOCKER_HOST / DOCKER_TLS_VERIFY environment.
	APIEngine struct {
		api dockerAPI
	}
)

// NewAPIEngine creates an engine backed by a Docker API client configured from the
// environment, negotiating the API version with the daemon.
func NewAPIEngine() (*APIEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker api client: %w", err)
	}
	return &APIEngine{api: cli}, nil
}

// Name returns the engine name.
func (e *APIEngine) Name() string {
	return string(EngineTypeDockerAPI)
}

// Available pings the daemon.
func (e *APIEngine) Available(ctx context.Context) bool {
	_, err := e.api.Ping(ctx)
	return err == nil
}

// Version returns the daemon version.
func (e *APIEngine) Version(ctx context.Context) (string, error) {
	v, err := e.api.ServerVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get docker version: %w", err)
	}
	return v.Version, nil
}

// Pull fetches an image and renders the daemon's progress stream to opts.Output.
func (e *APIEngine) Pull(ctx context.Context, opts PullOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	body, err := e.api.ImagePull(ctx, string(opts.Image), image.PullOptions{})
	if err != nil {
		return pullImageError(e.Name(), opts.Image, &CommandError{Args: []string{"pull", string(opts.Image)}, Err: err})
	}
	defer body.Close()

	if err := displayStream(body, opts.Output); err != nil {
		return pullImageError(e.Name(), opts.Image, &CommandError{
			Args:   []string{"pull", string(opts.Image)},
			Output: err.Error(),
			Err:    err,
		})
	}
	return nil
}

// Build tars the context directory and sends it to the daemon.
func (e *APIEngine) Build(ctx context.Context, opts BuildOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	dockerfile, err := relativeDockerfile(opts)
	if err != nil {
		return buildContainerError(e.Name(), opts, err)
	}

	tarball, err := archive.TarWithOptions(string(opts.ContextDir), &archive.TarOptions{})
	if err != nil {
		return buildContainerError(e.Name(), opts, fmt.Errorf("archive build context: %w", err))
	}
	defer tarball.Close()

	buildArgs := make(map[string]*string, len(opts.BuildArgs))
	for k, v := range opts.BuildArgs {
		buildArgs[k] = &v
	}

	resp, err := e.api.ImageBuild(ctx, tarball, build.ImageBuildOptions{
		Tags:        []string{string(opts.Tag)},
		Dockerfile:  dockerfile,
		BuildArgs:   buildArgs,
		NoCache:     opts.NoCache,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return buildContainerError(e.Name(), opts, &CommandError{Args: []string{"build", string(opts.Tag)}, Err: err})
	}
	defer resp.Body.Close()

	var transcript bytes.Buffer
	out := io.Writer(&transcript)
	if opts.Output != nil {
		out = io.MultiWriter(&transcript, opts.Output)
	}
	if err := displayStream(resp.Body, out); err != nil {
		output := strings.TrimSpace(transcript.String())
		if output == "" {
			output = err.Error()
		} else {
			output += "\n" + err.Error()
		}
		return buildContainerError(e.Name(), opts, &CommandError{
			Args:   []string{"build", string(opts.Tag)},
			Output: output,
			Err:    err,
		})
	}
	return nil
}

// ImageExists checks if an image exists locally.
func (e *APIEngine) ImageExists(ctx context.Context, img ImageTag) (bool, error) {
	_, err := e.api.ImageInspect(ctx, string(img))
	switch {
	case err == nil:
		return true, nil
	case client.IsErrNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("inspect image %s: %w", img, err)
	}
}

// List returns the containers whose name is exactly name.
func (e *APIEngine) List(ctx context.Context, name ContainerName) ([]Summary, error) {
	containers, err := e.api.ContainerList(ctx, dockercontainer.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/?"+string(name)+"$")),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers named %s: %w", name, err)
	}

	var result []Summary
	for _, c := range containers {
		if !slices.ContainsFunc(c.Names, func(n string) bool { return strings.TrimPrefix(n, "/") == string(name) }) {
			continue
		}
		summary := Summary{
			ID:    ContainerID(c.ID),
			Name:  name,
			Image: ImageTag(c.Image),
			State: ParseContainerState(string(c.State)),
		}
		for _, p := range c.Ports {
			if p.PublicPort == 0 {
				continue
			}
			summary.Ports = append(summary.Ports, PortMapping{
				HostIP:        p.IP,
				HostPort:      NetworkPort(p.PublicPort),
				ContainerPort: NetworkPort(p.PrivatePort),
				Protocol:      PortProtocol(p.Type),
			})
		}
		result = append(result, summary)
	}
	return result, nil
}

// Stop stops a container by name or ID.
func (e *APIEngine) Stop(ctx context.Context, ref string) error {
	if err := e.api.ContainerStop(ctx, ref, dockercontainer.StopOptions{}); err != nil {
		return classifyAPINotFound(err)
	}
	return nil
}

// Remove removes a container by name or ID.
func (e *APIEngine) Remove(ctx context.Context, ref string, force bool) error {
	if err := e.api.ContainerRemove(ctx, ref, dockercontainer.RemoveOptions{Force: force}); err != nil {
		return classifyAPINotFound(err)
	}
	return nil
}

// RunDetached creates and starts a container. Extra flags are translated into the
// host configuration; a flag with no API equivalent fails the launch.
func (e *APIEngine) RunDetached(ctx context.Context, opts RunOptions) (ContainerID, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}

	cfg, hostCfg, err := e.containerConfig(opts)
	if err != nil {
		return "", runContainerError(e.Name(), opts, &CommandError{Args: opts.Flags, Output: err.Error(), Err: err})
	}

	created, err := e.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, string(opts.Name))
	if err != nil {
		return "", runContainerError(e.Name(), opts, &CommandError{
			Args:   []string{"create", string(opts.Name)},
			Output: err.Error(),
			Err:    err,
		})
	}

	if err := e.api.ContainerStart(ctx, created.ID, dockercontainer.StartOptions{}); err != nil {
		// Best effort so the name is free for the next attempt.
		_ = e.api.ContainerRemove(context.WithoutCancel(ctx), created.ID, dockercontainer.RemoveOptions{Force: true})
		return "", runContainerError(e.Name(), opts, &CommandError{
			Args:   []string{"start", string(opts.Name)},
			Output: err.Error(),
			Err:    err,
		})
	}

	return ContainerID(created.ID), nil
}

func (e *APIEngine) containerConfig(opts RunOptions) (*dockercontainer.Config, *dockercontainer.HostConfig, error) {
	specs := make([]string, 0, len(opts.Ports))
	for _, p := range opts.Ports {
		specs = append(specs, p.String())
	}
	exposed, bindings, err := nat.ParsePortSpecs(specs)
	if err != nil {
		return nil, nil, fmt.Errorf("port mappings: %w", err)
	}

	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	slices.Sort(env)

	binds := make([]string, 0, len(opts.Volumes))
	for _, v := range opts.Volumes {
		binds = append(binds, FormatVolumeMount(v))
	}

	cfg := &dockercontainer.Config{
		Image:        string(opts.Image),
		Env:          env,
		ExposedPorts: exposed,
	}
	if len(opts.Command) > 0 {
		cfg.Cmd = opts.Command
	}

	hostCfg := &dockercontainer.HostConfig{
		Binds:        binds,
		PortBindings: bindings,
	}
	if err := applyRunFlags(opts.Flags, hostCfg); err != nil {
		return nil, nil, err
	}

	return cfg, hostCfg, nil
}

// relativeDockerfile returns the Dockerfile path relative to the build context,
// which is how the API addresses it inside the uploaded tarball.
func relativeDockerfile(opts BuildOptions) (string, error) {
	if opts.Dockerfile == "" {
		return "Dockerfile", nil
	}
	if !filepath.IsAbs(opts.Dockerfile) {
		return filepath.ToSlash(opts.Dockerfile), nil
	}
	rel, err := filepath.Rel(string(opts.ContextDir), opts.Dockerfile)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("dockerfile %s is outside the build context %s", opts.Dockerfile, opts.ContextDir)
	}
	return filepath.ToSlash(rel), nil
}

// displayStream renders a JSON message stream. It returns the first error message
// the daemon embedded in the stream.
func displayStream(body io.Reader, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	return jsonmessage.DisplayJSONMessagesStream(body, out, 0, false, nil)
}

func classifyAPINotFound(err error) error {
	if client.IsErrNotFound(err) {
		return fmt.Errorf("%w: %v", ErrContainerNotFound, err)
	}
	return err
}

var _ Engine = (*APIEngine)(nil)
