// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestTransientCauseOf(t *testing.T) {
	t.Parallel()

	exit1 := errors.New("exit status 1")

	tests := []struct {
		name string
		err  error
		want TransientCause
	}{
		{"nil", nil, TransientNone},
		{"canceled", fmt.Errorf("pull: %w", context.Canceled), TransientNone},
		{"deadline", context.DeadlineExceeded, TransientNone},
		{"unknown manifest", &CommandError{Args: []string{"pull", "nginx:nope"}, Output: "manifest unknown", Err: exit1}, TransientNone},
		{"name conflict", errors.New(`Conflict. The container name "/web" is already in use`), TransientNone},
		{"exit 125 alone", errors.New("exit status 125"), TransientNone},
		{
			"dns in tool output",
			&CommandError{Args: []string{"pull", "ollama/ollama"}, Output: "dial tcp: lookup registry-1.docker.io: no such host", Err: exit1},
			TransientNetwork,
		},
		{"build step dns", errors.New("Temporary failure resolving 'deb.debian.org'"), TransientNetwork},
		{"tls", fmt.Errorf("pull: %w", errors.New("net/http: TLS handshake timeout")), TransientNetwork},
		{
			"docker hub throttling",
			&CommandError{Output: "toomanyrequests: You have reached your pull rate limit.", Err: exit1},
			TransientRateLimit,
		},
		{"http 429", errors.New("unexpected status: 429 Too Many Requests"), TransientRateLimit},
		{"overlay", errors.New("error creating overlay mount to /var/lib/containers/storage"), TransientStorage},
		{"rootless podman", errors.New("error reading /proc/sys/net/ipv4/ping_group_range"), TransientRuntime},
		{"oci", errors.New("OCI runtime error: container_linux.go:380"), TransientRuntime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TransientCauseOf(tt.err); got != tt.want {
				t.Errorf("TransientCauseOf(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
