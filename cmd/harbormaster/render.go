// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/invowk/harbormaster/internal/container"
	"github.com/invowk/harbormaster/internal/provision"
	"github.com/invowk/harbormaster/pkg/servicefile"
)

// renderResults prints one block per result, followed by the services that were
// skipped because an earlier one failed. Diagnostics of running services are only
// shown in verbose mode, warnings excepted.
func renderResults(w io.Writer, results []provision.Result, descriptors []servicefile.Descriptor, verbose bool) {
	done := make([]container.ContainerName, 0, len(results))
	for _, r := range results {
		done = append(done, r.Service)
		renderResult(w, r, verbose)
	}

	for _, d := range descriptors {
		if !slices.Contains(done, d.Name) {
			fmt.Fprintf(w, "%s %s %s\n", WarningStyle.Render("-"), CmdStyle.Render(string(d.Name)), SubtitleStyle.Render("skipped"))
		}
	}
}

func renderResult(w io.Writer, r provision.Result, verbose bool) {
	if r.Running() {
		fmt.Fprintf(w, "%s %s %s %s\n",
			SuccessStyle.Render("✓"),
			CmdStyle.Render(string(r.Service)),
			SuccessStyle.Render(string(r.Status)),
			SubtitleStyle.Render(fmt.Sprintf("container %s image %s", r.ContainerID.Short(), r.Image)),
		)
	} else {
		status := string(r.Status)
		if tag := failureTag(r); tag != "" {
			status += " " + tag
		}
		fmt.Fprintf(w, "%s %s %s\n", ErrorStyle.Render("✗"), CmdStyle.Render(string(r.Service)), ErrorStyle.Render(status))
	}

	for _, d := range r.Diagnostics {
		if r.Running() && !verbose && d.Outcome != provision.OutcomeWarning {
			continue
		}
		renderDiagnostic(w, d)
	}
}

// renderDiagnostic prints the first line of the detail next to the step and any
// further lines (tool output) indented below it, unmodified.
func renderDiagnostic(w io.Writer, d provision.Diagnostic) {
	style := VerboseStyle
	switch d.Outcome {
	case provision.OutcomeWarning:
		style = WarningStyle
	case provision.OutcomeFailed:
		style = ErrorStyle
	}

	first, rest, _ := strings.Cut(d.Detail, "\n")
	header := fmt.Sprintf("[%s] %s", d.Step, d.Outcome)
	if first != "" {
		header += ": " + first
	}
	fmt.Fprintf(w, "    %s\n", style.Render(header))

	if rest != "" {
		fmt.Fprintln(w, toolOutputStyle.Render(strings.TrimRight(rest, "\n")))
	}
}

// failureTag names the failure more precisely than the status, e.g. "PortInUse(8080)".
func failureTag(r provision.Result) string {
	var (
		ve *provision.ValidationError
		re *provision.ResolutionError
		fe *provision.VerificationError
	)
	switch {
	case errors.As(r.Err, &ve):
		return ve.Tag()
	case errors.As(r.Err, &re):
		return re.Tag()
	case errors.As(r.Err, &fe):
		return "NotRunning(" + string(fe.State) + ")"
	default:
		return ""
	}
}

// explainTopic returns the argument for 'harbormaster explain' that best describes
// the failure: the validation or resolution kind when known, else the status.
func explainTopic(r provision.Result) string {
	var (
		ve *provision.ValidationError
		re *provision.ResolutionError
	)
	switch {
	case errors.As(r.Err, &ve):
		return string(ve.Kind)
	case errors.As(r.Err, &re):
		return string(re.Kind)
	default:
		return string(r.Status)
	}
}

// renderDescriptor prints the resolved form of a descriptor. Env values are hidden
// because they commonly carry secrets.
func renderDescriptor(w io.Writer, d servicefile.Descriptor) {
	fmt.Fprintln(w, TitleStyle.Render(string(d.Name)))

	field := func(key, value string) {
		fmt.Fprintf(w, "  %s: %s\n", CmdStyle.Render(key), value)
	}

	switch src := d.Source.(type) {
	case servicefile.PullSource:
		field("image", string(src.Reference)+SubtitleStyle.Render(" (pull)"))
	case servicefile.BuildSource:
		field("image", string(src.Tag)+SubtitleStyle.Render(" (build)"))
		if src.ContextDir != "" {
			field("context", string(src.ContextDir))
		}
	}
	field("gpu", string(d.GPU.OrDefault()))

	for _, p := range d.Ports {
		field("port", p.String())
	}
	for _, v := range d.Volumes {
		field("volume", v.String())
	}
	if len(d.Env) > 0 {
		keys := make([]string, 0, len(d.Env))
		for k := range d.Env {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		field("env", strings.Join(keys, ", "))
	}
	if len(d.Flags) > 0 {
		field("flags", strings.Join(d.Flags, " "))
	}
	if len(d.Command) > 0 {
		field("command", strings.Join(d.Command, " "))
	}
	if len(d.DependsOn) > 0 {
		deps := make([]string, len(d.DependsOn))
		for i, dep := range d.DependsOn {
			deps[i] = string(dep)
		}
		field("depends_on", strings.Join(deps, ", "))
	}
	verify := d.Verify.OrDefault()
	field("verify", fmt.Sprintf("%s x%d", verify.Timeout, verify.Attempts))
}
