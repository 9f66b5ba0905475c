// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/harbormaster/internal/config"
	"github.com/invowk/harbormaster/internal/issue"
	"github.com/invowk/harbormaster/internal/provision"
)

// explainTopics maps statuses and failure kinds, as printed by 'up', to catalog entries.
var explainTopics = map[string]issue.Id{
	string(provision.StatusFailedValidation):      issue.ValidationFailedId,
	string(provision.PrivilegeError):              issue.PrivilegeRequiredId,
	string(provision.PortInUse):                   issue.PortInUseId,
	string(provision.PortCheckFailed):             issue.PortInUseId,
	string(provision.DirectoryCreateFailed):       issue.DirectoryCreateFailedId,
	string(provision.InvalidDescriptor):           issue.ServiceFileInvalidId,
	string(provision.StatusFailedImageResolution): issue.ImagePullFailedId,
	string(provision.PullFailed):                  issue.ImagePullFailedId,
	string(provision.BuildFailed):                 issue.ImageBuildFailedId,
	string(provision.StatusFailedLaunch):          issue.LaunchFailedId,
	string(provision.StatusFailedVerification):    issue.VerificationFailedId,
	"NotRunning":                                  issue.VerificationFailedId,
}

func newExplainCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "explain [STATUS|TOPIC]",
		Short: "Explain a failure and how to fix it",
		Long: `Print the remediation guide for a failure status (FailedValidation,
FailedImageResolution, FailedLaunch, FailedVerification), a failure kind shown by
'up' (PortInUse, PullFailed, ...) or a topic slug. Without an argument, list topics.`,
		Example: `  harbormaster explain PortInUse
  harbormaster explain FailedVerification
  harbormaster explain service-locked`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeExplainTopics,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, topic := range explainTopicNames() {
					fmt.Fprintln(app.stdout, topic)
				}
				return nil
			}

			found, ok := lookupIssue(args[0])
			if !ok {
				return exitWith(ExitCodeError, fmt.Errorf("no explanation for %q; run 'harbormaster explain' to list topics", args[0]))
			}

			rendered, err := found.Render(app.issueStyle(cmd))
			if err != nil {
				return exitWith(ExitCodeError, fmt.Errorf("render explanation: %w", err))
			}
			fmt.Fprint(app.stdout, rendered)
			return nil
		}),
	}
}

// lookupIssue resolves a status, failure kind or slug. Case is ignored and a
// subject suffix such as "(8080)" is dropped, so tags can be pasted from 'up'.
func lookupIssue(topic string) (*issue.Issue, bool) {
	topic, _, _ = strings.Cut(strings.TrimSpace(topic), "(")
	for name, id := range explainTopics {
		if strings.EqualFold(name, topic) {
			return issue.Get(id), true
		}
	}
	return issue.Lookup(issue.Slug(strings.ToLower(topic)))
}

func explainTopicNames() []string {
	names := make([]string, 0, len(explainTopics))
	for name := range explainTopics {
		names = append(names, name)
	}
	for _, i := range issue.Values() {
		names = append(names, string(i.Slug()))
	}
	slices.Sort(names)
	return names
}

func completeExplainTopics(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return explainTopicNames(), cobra.ShellCompDirectiveNoFileComp
}

// issueStyle picks the glamour style: the App override, else ui.color_scheme.
// A config that fails to load falls back to "auto"; explain must work when the
// configuration is the thing that is broken.
func (a *App) issueStyle(cmd *cobra.Command) string {
	if a.IssueStyle != "" {
		return a.IssueStyle
	}
	cfg, err := a.loadConfig(cmd.Context())
	if err != nil {
		return string(config.ColorSchemeAuto)
	}
	return string(cfg.UI.ColorScheme)
}
