// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError is a user-facing failure: what was being done, to what, how
	// to fix it and which catalog entry explains it in depth.
	//
	//	err := issue.NewErrorContext().
	//		WithOperation("lock services").
	//		WithResource(dir).
	//		WithSuggestion("Wait for the other run to finish").
	//		WithTopic(issue.ServiceLockedId).
	//		Wrap(cause).
	//		BuildError()
	ActionableError struct {
		// Operation is a verb phrase, e.g. "pull container image".
		Operation string
		// Resource is the image, service, container or path involved, if any.
		Resource string
		// Suggestions are short fixes, most likely first.
		Suggestions []string
		// Topic is the catalog entry with the long-form remediation, if any.
		Topic Id
		Cause error
	}

	// ErrorContext builds an ActionableError.
	ErrorContext struct {
		ae ActionableError
	}
)

// NewErrorContext returns an empty builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// WithOperation sets the operation.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.ae.Operation = op
	return c
}

// WithResource sets the resource.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.ae.Resource = res
	return c
}

// WithSuggestion appends a suggestion.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	c.ae.Suggestions = append(c.ae.Suggestions, sug)
	return c
}

// WithTopic links the catalog entry that explains this failure.
func (c *ErrorContext) WithTopic(id Id) *ErrorContext {
	c.ae.Topic = id
	return c
}

// Wrap sets the cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.ae.Cause = err
	return c
}

// Build returns the error, or nil when no operation was set.
func (c *ErrorContext) Build() *ActionableError {
	if c.ae.Operation == "" {
		return nil
	}
	ae := c.ae
	ae.Suggestions = append([]string(nil), c.ae.Suggestions...)
	return &ae
}

// BuildError is Build as an error; a nil *ActionableError becomes a nil error.
func (c *ErrorContext) BuildError() error {
	if ae := c.Build(); ae != nil {
		return ae
	}
	return nil
}

// Error returns "failed to OPERATION[: RESOURCE][: CAUSE]".
func (e *ActionableError) Error() string {
	parts := []string{"failed to " + e.Operation}
	if e.Resource != "" {
		parts = append(parts, e.Resource)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap returns the cause.
func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// HasSuggestions reports whether Format prints a suggestion list.
func (e *ActionableError) HasSuggestions() bool {
	return len(e.Suggestions) > 0 || e.topicSlug() != ""
}

// Format renders the message with one bullet per suggestion, the explain hint
// last. verbose appends the unwrapped cause chain, one numbered line per level.
func (e *ActionableError) Format(verbose bool) string {
	var msg strings.Builder
	msg.WriteString(e.Error())

	bullets := e.Suggestions
	if slug := e.topicSlug(); slug != "" {
		bullets = append(bullets[:len(bullets):len(bullets)], fmt.Sprintf("Run 'harbormaster explain %s' for the full guide", slug))
	}
	if len(bullets) > 0 {
		msg.WriteString("\n")
		for _, b := range bullets {
			msg.WriteString("\n  • " + b)
		}
	}

	if verbose && e.Cause != nil {
		msg.WriteString("\n\nError chain:")
		for depth, err := 1, e.Cause; err != nil; depth, err = depth+1, errors.Unwrap(err) {
			fmt.Fprintf(&msg, "\n  %d. %s", depth, err.Error())
		}
	}
	return msg.String()
}

func (e *ActionableError) topicSlug() Slug {
	if e.Topic == 0 {
		return ""
	}
	if i := Get(e.Topic); i != nil {
		return i.Slug()
	}
	return ""
}
