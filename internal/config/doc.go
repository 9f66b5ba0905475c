// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is loaded from ~/.config/harbormaster/config.cue (or the XDG equivalent on
// Linux, ~/Library/Application Support/harbormaster/config.cue on macOS,
// %APPDATA%\harbormaster\config.cue on Windows), falling back to ./config.cue. The file is
// validated against an embedded CUE schema (config_schema.cue) before being merged over the
// built-in defaults. HARBORMASTER_* environment variables override both.
package config
