// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/invowk/harbormaster/internal/container"
)

// UniqueName returns a container name for t that no concurrent or earlier run
// reuses: "harbormaster-it-", the test name and a timestamp, reduced to the
// characters container names allow.
func UniqueName(t testing.TB, prefix string) container.ContainerName {
	t.Helper()

	var b strings.Builder
	b.WriteString("harbormaster-it-")
	for _, r := range strings.ToLower(prefix + "-" + t.Name()) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	b.WriteByte('-')
	b.WriteString(strconv.FormatInt(time.Now().UnixNano(), 36))

	name := container.ContainerName(b.String())
	if err := name.Validate(); err != nil {
		t.Fatalf("UniqueName: %v", err)
	}
	return name
}

// RemoveOnCleanup force-removes every container named name when t ends, whatever
// state the test left it in.
func RemoveOnCleanup(t testing.TB, engine container.Engine, name container.ContainerName) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		list, err := engine.List(ctx, name)
		if err != nil {
			t.Logf("cleanup: list %s: %v", name, err)
			return
		}
		for _, c := range list {
			if err := engine.Remove(ctx, string(c.ID), true); err != nil {
				t.Logf("cleanup: remove %s: %v", c.ID.Short(), err)
			}
		}
	})
}
