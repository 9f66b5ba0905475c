// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalog of Markdown explanations
// for the failure classes a provisioning run can end in.
package issue
