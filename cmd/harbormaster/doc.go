// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the harbormaster CLI.
//
// The App type is the composition root: it owns the config provider, the engine
// and host factories and the output streams, and every Cobra handler reaches
// them through it. Commands map provisioning outcomes to process exit codes
// through ExitError.
package cmd
