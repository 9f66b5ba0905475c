// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/go-archive"

	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/pkg/servicefile"
)

const dockerfileName = "Dockerfile"

// build materializes src into a fresh build context and builds it. The context is
// removed on every exit path.
func (p *Provisioner) build(ctx context.Context, src servicefile.BuildSource) error {
	buildCtx, cleanup, err := p.prepareBuildContext(src)
	if err != nil {
		return &ResolutionError{Kind: BuildFailed, Image: src.Tag, Err: err}
	}
	defer cleanup()

	err = p.engine.Build(ctx, container.BuildOptions{
		ContextDir: container.HostFilesystemPath(buildCtx),
		Dockerfile: dockerfileName,
		Tag:        src.Tag,
		BuildArgs:  src.Args,
		NoCache:    src.NoCache,
		Output:     p.config.Output,
	})
	if err != nil {
		return &ResolutionError{Kind: BuildFailed, Image: src.Tag, Output: toolOutput(err), Err: err}
	}

	// A buildx builder without --load exits 0 and leaves nothing in the local store.
	exists, err := p.engine.ImageExists(ctx, src.Tag)
	switch {
	case err != nil:
		p.logger.Warn("could not confirm the built image", "image", src.Tag, "err", err)
	case !exists:
		return &ResolutionError{Kind: BuildFailed, Image: src.Tag, Err: fmt.Errorf("build finished but %s is not in the local image store", src.Tag)}
	}
	return nil
}

// prepareBuildContext creates a temporary directory under BuildDir, copies the
// optional context directory into it and writes the Dockerfile last, so that the
// generated Dockerfile wins over one shipped in the context.
func (p *Provisioner) prepareBuildContext(src servicefile.BuildSource) (dir string, cleanup func(), err error) {
	parent := p.config.BuildDir
	if parent == "" {
		parent = DefaultBuildDir()
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", nil, fmt.Errorf("create build directory: %w", err)
	}

	dir, err = os.MkdirTemp(parent, "ctx-*")
	if err != nil {
		return "", nil, fmt.Errorf("create build context: %w", err)
	}
	cleanup = func() {
		_ = os.RemoveAll(dir) // Temp context; removal error non-critical
	}

	if src.ContextDir != "" {
		if err := archive.NewDefaultArchiver().CopyWithTar(string(src.ContextDir), dir); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("copy build context %s: %w", src.ContextDir, err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, dockerfileName), []byte(src.Dockerfile), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write Dockerfile: %w", err)
	}

	return dir, cleanup, nil
}
