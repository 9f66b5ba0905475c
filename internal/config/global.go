// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride replaces the platform config directory when non-empty.
// os.UserConfigDir ignores HOME on Windows, so tests point it here instead.
var configDirOverride string

// Reset clears the config directory override.
func Reset() {
	configDirOverride = ""
}

// SetConfigDirOverride makes ConfigDir return dir until Reset is called.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}
