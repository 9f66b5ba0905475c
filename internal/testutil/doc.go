// SPDX-License-Identifier: MPL-2.0

// Package testutil holds helpers for tests that run against a real container
// engine: the skip gate, a process-wide concurrency limit, collision-free
// container names and cleanup.
package testutil
