// SPDX-License-Identifier: MPL-2.0

// Package container abstracts the container runtime used to provision services.
//
// The Engine interface covers image acquisition (Pull, Build, ImageExists) and the
// lifecycle calls needed to replace a named container (List, Stop, Remove,
// RunDetached). DockerEngine and PodmanEngine drive the CLIs and embed BaseCLIEngine
// for argument construction and command execution; APIEngine talks to the Docker
// Engine API directly and translates extra run flags into a host configuration.
//
// NewEngine(ctx, EngineType) selects an engine, letting docker and podman fall back
// to each other. AutoDetectEngine tries docker first.
package container
