// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/charmbracelet/lipgloss"

// Color palette shared by all CLI output, tuned for dark terminal backgrounds.
const (
	// ColorPrimary is purple: titles and headers.
	ColorPrimary = lipgloss.Color("#7C3AED")
	// ColorMuted is gray: subtitles and de-emphasized text.
	ColorMuted = lipgloss.Color("#6B7280")
	// ColorSuccess is green: running services.
	ColorSuccess = lipgloss.Color("#10B981")
	// ColorError is red: failed services.
	ColorError = lipgloss.Color("#EF4444")
	// ColorWarning is amber: warnings and skipped services.
	ColorWarning = lipgloss.Color("#F59E0B")
	// ColorHighlight is blue: service names and commands.
	ColorHighlight = lipgloss.Color("#3B82F6")
	// ColorVerbose is light gray: diagnostics and tool output.
	ColorVerbose = lipgloss.Color("#9CA3AF")
)

var (
	// TitleStyle is for primary headers and section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// SubtitleStyle is for secondary headers and descriptions.
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// SuccessStyle is for running services and positive indicators.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// ErrorStyle is for failure statuses.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)

	// WarningStyle is for warnings and skipped services.
	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// CmdStyle is for service names, keys and commands.
	CmdStyle = lipgloss.NewStyle().
			Foreground(ColorHighlight)

	// VerboseStyle is for diagnostics.
	VerboseStyle = lipgloss.NewStyle().
			Foreground(ColorVerbose)

	// toolOutputStyle indents container tool output under its diagnostic.
	toolOutputStyle = lipgloss.NewStyle().
			Foreground(ColorVerbose).
			PaddingLeft(6)
)
