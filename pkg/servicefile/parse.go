// SPDX-License-Identifier: MPL-2.0

package servicefile

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/shell"

	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/pkg/cueutil"
)

const schemaRoot = "#File"

var (
	//go:embed schema.cue
	schemaBytes []byte

	// ErrUnsupportedFormat is returned for file extensions other than .cue, .yaml, .yml and .toml.
	ErrUnsupportedFormat = errors.New("unsupported service file format")

	// ErrInvalidService is the sentinel error wrapped by ServiceError.
	ErrInvalidService = errors.New("invalid service")
)

type (
	// Format is a service file encoding.
	Format string

	// Option configures loading.
	Option func(*loadOptions)

	loadOptions struct {
		gpu       GPUMode
		baseDir   string
		homeDir   string
		lookupEnv func(string) string
	}

	// ServiceError reports a semantic problem with one service entry.
	ServiceError struct {
		Index int
		Name  string
		Err   error
	}

	// Raw model decoded from the unified CUE value.
	fileModel struct {
		Services []serviceModel `json:"services"`
	}

	serviceModel struct {
		Name        string            `json:"name"`
		Image       string            `json:"image,omitempty"`
		Build       *buildModel       `json:"build,omitempty"`
		GPUImages   map[string]string `json:"gpu_images,omitempty"`
		Ports       []portModel       `json:"ports,omitempty"`
		Volumes     []volumeModel     `json:"volumes,omitempty"`
		Publish     []string          `json:"publish,omitempty"`
		Binds       []string          `json:"binds,omitempty"`
		Env         map[string]string `json:"env,omitempty"`
		Flags       []string          `json:"flags,omitempty"`
		Command     []string          `json:"command,omitempty"`
		CommandLine string            `json:"command_line,omitempty"`
		GPU         string            `json:"gpu,omitempty"`
		DependsOn   []string          `json:"depends_on,omitempty"`
		Verify      *verifyModel      `json:"verify,omitempty"`
	}

	buildModel struct {
		Tag        string            `json:"tag"`
		ContextDir string            `json:"context_dir,omitempty"`
		Dockerfile string            `json:"dockerfile"`
		BaseImages map[string]string `json:"base_images,omitempty"`
		Args       map[string]string `json:"args,omitempty"`
		NoCache    bool              `json:"no_cache"`
	}

	portModel struct {
		Host      int    `json:"host"`
		Container int    `json:"container"`
		Protocol  string `json:"protocol"`
		HostIP    string `json:"host_ip,omitempty"`
	}

	volumeModel struct {
		Host      string `json:"host"`
		Container string `json:"container"`
		ReadOnly  bool   `json:"read_only"`
	}

	verifyModel struct {
		Timeout  string `json:"timeout,omitempty"`
		Attempts int    `json:"attempts,omitempty"`
	}

	dockerfileData struct {
		BaseImage string
		GPU       GPUMode
	}
)

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// WithGPU overrides the gpu field of every service.
func WithGPU(mode GPUMode) Option {
	return func(o *loadOptions) { o.gpu = mode }
}

// WithBaseDir sets the directory relative host paths resolve against.
// Load defaults it to the service file's directory.
func WithBaseDir(dir string) Option {
	return func(o *loadOptions) { o.baseDir = dir }
}

// WithHomeDir sets the directory "~" expands to. Defaults to the user's home.
func WithHomeDir(dir string) Option {
	return func(o *loadOptions) { o.homeDir = dir }
}

// WithLookupEnv sets the host environment that env values are expanded from.
// Defaults to os.Getenv.
func WithLookupEnv(lookup func(string) string) Option {
	return func(o *loadOptions) { o.lookupEnv = lookup }
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("services[%d] (%s): %v", e.Index, e.Name, e.Err)
}

// Unwrap returns the cause and ErrInvalidService.
func (e *ServiceError) Unwrap() []error { return []error{ErrInvalidService, e.Err} }

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s (use .cue, .yaml or .toml)", ErrUnsupportedFormat, path)
	}
}

// Load reads and parses a service file.
func Load(path string, opts ...Option) ([]Descriptor, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service file: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithBaseDir(filepath.Dir(abs))}, opts...)

	return Parse(data, format, path, opts...)
}

// Parse decodes service file content, validates it against the schema and resolves
// each entry into a Descriptor.
func Parse(data []byte, format Format, filename string, opts ...Option) ([]Descriptor, error) {
	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.gpu.Validate(); err != nil {
		return nil, err
	}
	if o.homeDir == "" {
		o.homeDir, _ = os.UserHomeDir()
	}
	if o.lookupEnv == nil {
		o.lookupEnv = os.Getenv
	}

	model, err := decode(data, format, filename)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(model.Services))
	descriptors := make([]Descriptor, 0, len(model.Services))
	for i, svc := range model.Services {
		if seen[svc.Name] {
			return nil, &ServiceError{Index: i, Name: svc.Name, Err: errors.New("duplicate service name")}
		}
		seen[svc.Name] = true

		d, err := o.resolve(svc)
		if err != nil {
			return nil, &ServiceError{Index: i, Name: svc.Name, Err: err}
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

func decode(data []byte, format Format, filename string) (*fileModel, error) {
	var (
		res *cueutil.ParseResult[fileModel]
		err error
	)

	switch format {
	case FormatCUE:
		res, err = cueutil.ParseAndDecode[fileModel](schemaBytes, data, schemaRoot, cueutil.WithFilename(filename))
	case FormatYAML:
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		res, err = cueutil.EncodeAndDecode[fileModel](schemaBytes, raw, schemaRoot, cueutil.WithFilename(filename))
	case FormatTOML:
		var raw map[string]any
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		res, err = cueutil.EncodeAndDecode[fileModel](schemaBytes, raw, schemaRoot, cueutil.WithFilename(filename))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

func (o loadOptions) resolve(svc serviceModel) (Descriptor, error) {
	d := Descriptor{Name: container.ContainerName(svc.Name)}

	env, err := o.expandEnv(svc.Env)
	if err != nil {
		return d, err
	}
	d.Env = env

	d.GPU = GPUMode(svc.GPU)
	if o.gpu != "" {
		d.GPU = o.gpu
	}
	d.GPU = d.GPU.OrDefault()

	source, err := o.resolveSource(svc, d.GPU)
	if err != nil {
		return d, err
	}
	d.Source = source

	for _, p := range svc.Ports {
		d.Ports = append(d.Ports, container.PortMapping{
			HostIP:        p.HostIP,
			HostPort:      container.NetworkPort(p.Host),
			ContainerPort: container.NetworkPort(p.Container),
			Protocol:      container.PortProtocol(p.Protocol),
		})
	}

	for _, v := range svc.Volumes {
		d.Volumes = append(d.Volumes, container.VolumeMount{
			HostPath:      container.HostFilesystemPath(o.hostPath(v.Host)),
			ContainerPath: container.MountTargetPath(v.Container),
			ReadOnly:      v.ReadOnly,
		})
	}

	for i, raw := range svc.Publish {
		mapping, err := container.ParsePortMapping(raw)
		if err != nil {
			return d, fmt.Errorf("publish[%d]: %w", i, err)
		}
		d.Ports = append(d.Ports, mapping)
	}

	for i, raw := range svc.Binds {
		mount, err := container.ParseVolumeMount(raw)
		if err != nil {
			return d, fmt.Errorf("binds[%d]: %w", i, err)
		}
		mount.HostPath = container.HostFilesystemPath(o.hostPath(string(mount.HostPath)))
		d.Volumes = append(d.Volumes, mount)
	}

	d.Flags = append(slices.Clone(svc.Flags), d.GPU.RunFlags()...)

	switch {
	case len(svc.Command) > 0 && svc.CommandLine != "":
		return d, errors.New("set either command or command_line, not both")
	case svc.CommandLine != "":
		fields, err := shell.Fields(svc.CommandLine, func(name string) string { return d.Env[name] })
		if err != nil {
			return d, fmt.Errorf("command_line: %w", err)
		}
		d.Command = fields
	default:
		d.Command = svc.Command
	}

	for _, dep := range svc.DependsOn {
		d.DependsOn = append(d.DependsOn, container.ContainerName(dep))
	}

	if svc.Verify != nil {
		if svc.Verify.Timeout != "" {
			timeout, err := time.ParseDuration(svc.Verify.Timeout)
			if err != nil {
				return d, fmt.Errorf("verify.timeout: %w", err)
			}
			d.Verify.Timeout = timeout
		}
		d.Verify.Attempts = svc.Verify.Attempts
	}

	return d, d.Validate()
}

// expandEnv expands $VAR and ${VAR:-default} in env values against the host
// environment. ${VAR:?message} fails the load when VAR is unset or empty.
func (o loadOptions) expandEnv(env map[string]string) (map[string]string, error) {
	if len(env) == 0 {
		return env, nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		expanded, err := shell.Expand(v, o.lookupEnv)
		if err != nil {
			return nil, fmt.Errorf("env.%s: %w", k, err)
		}
		out[k] = expanded
	}
	return out, nil
}

func (o loadOptions) resolveSource(svc serviceModel, gpu GPUMode) (ImageSource, error) {
	switch {
	case svc.Image != "" && svc.Build != nil:
		return nil, errors.New("set either image or build, not both")
	case svc.Image == "" && svc.Build == nil:
		return nil, errors.New("one of image or build is required")
	case svc.Image != "":
		ref := svc.Image
		if override, ok := svc.GPUImages[string(gpu)]; ok {
			ref = override
		}
		return PullSource{Reference: container.ImageTag(ref)}, nil
	}

	if len(svc.GPUImages) > 0 {
		return nil, errors.New("gpu_images applies to pulled images only; use build.base_images")
	}

	b := svc.Build
	dockerfile, err := renderDockerfile(b, gpu)
	if err != nil {
		return nil, err
	}

	src := BuildSource{
		Dockerfile: dockerfile,
		Tag:        container.ImageTag(b.Tag),
		Args:       b.Args,
		NoCache:    b.NoCache,
	}
	if b.ContextDir != "" {
		src.ContextDir = container.HostFilesystemPath(o.hostPath(b.ContextDir))
	}
	return src, nil
}

// renderDockerfile substitutes the base image selected by gpu into the Dockerfile.
func renderDockerfile(b *buildModel, gpu GPUMode) (string, error) {
	if !strings.Contains(b.Dockerfile, "{{") {
		return b.Dockerfile, nil
	}

	tmpl, err := template.New("Dockerfile").Option("missingkey=error").Parse(b.Dockerfile)
	if err != nil {
		return "", fmt.Errorf("build.dockerfile: %w", err)
	}

	data := dockerfileData{GPU: gpu}
	if len(b.BaseImages) > 0 {
		base, ok := b.BaseImages[string(gpu)]
		if !ok {
			return "", fmt.Errorf("build.base_images has no entry for gpu mode %q", gpu)
		}
		data.BaseImage = base
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("build.dockerfile: %w", err)
	}
	if strings.Contains(b.Dockerfile, ".BaseImage") && data.BaseImage == "" {
		return "", errors.New("build.dockerfile uses {{.BaseImage}} but build.base_images is not set")
	}
	return out.String(), nil
}

// hostPath expands "~" and resolves relative paths against the base directory, or
// the working directory when none is set. A relative host path would otherwise be
// taken by the engine as a named volume.
func (o loadOptions) hostPath(p string) string {
	switch {
	case p == "~":
		p = o.homeDir
	case strings.HasPrefix(p, "~/"):
		p = filepath.Join(o.homeDir, p[2:])
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	if o.baseDir != "" {
		return filepath.Join(o.baseDir, p)
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
