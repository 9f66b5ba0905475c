// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"strings"
)

// TransientCause classifies an engine failure that may go away on a re-run.
type TransientCause string

const (
	// TransientNone means the failure needs a fix, not a re-run.
	TransientNone TransientCause = ""
	// TransientNetwork is a DNS, connect or TLS failure while talking to a registry.
	TransientNetwork TransientCause = "network"
	// TransientRateLimit is registry throttling.
	TransientRateLimit TransientCause = "registry rate limit"
	// TransientStorage is an overlay or layer mount race in the engine's storage driver.
	TransientStorage TransientCause = "storage"
	// TransientRuntime is an OCI runtime hiccup, common with rootless podman.
	TransientRuntime TransientCause = "oci runtime"
)

var transientMarkers = []struct {
	marker string
	cause  TransientCause
}{
	{"Temporary failure resolving", TransientNetwork},
	{"Could not resolve host", TransientNetwork},
	{"no such host", TransientNetwork},
	{"connection timed out", TransientNetwork},
	{"connection reset by peer", TransientNetwork},
	{"TLS handshake timeout", TransientNetwork},
	{"i/o timeout", TransientNetwork},
	{"toomanyrequests", TransientRateLimit},
	{"429 Too Many Requests", TransientRateLimit},
	{"error creating overlay mount", TransientStorage},
	{"error mounting layer", TransientStorage},
	{"ping_group_range", TransientRuntime},
	{"OCI runtime error", TransientRuntime},
}

// TransientCauseOf classifies err by the engine's own message. Context
// cancellation and deadlines are never transient: the caller gave up.
func TransientCauseOf(err error) TransientCause {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return TransientNone
	}

	msg := err.Error()
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && !strings.Contains(msg, cmdErr.Output) {
		msg += "\n" + cmdErr.Output
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m.marker) {
			return m.cause
		}
	}
	return TransientNone
}
