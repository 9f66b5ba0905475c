// SPDX-License-Identifier: MPL-2.0

// Package servicefile defines the service descriptor and loads it from CUE, YAML or
// TOML files.
//
// Every format is validated against the same embedded CUE schema (schema.cue), so a
// bad port in a YAML file reports the same path ("services[0].ports[0].host") as it
// would in CUE. YAML and TOML are decoded into plain maps and encoded into CUE before
// unification.
//
// GPU selection happens here, once: the chosen GPUMode contributes run flags to the
// descriptor and, for built images, picks the Dockerfile base image from
// build.base_images. Nothing downstream branches on the GPU mode again.
package servicefile
