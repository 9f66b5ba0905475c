// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"strings"
	"testing"
)

func TestUniqueName(t *testing.T) {
	t.Parallel()

	a := UniqueName(t, "Pull Twice")
	if !strings.HasPrefix(string(a), "harbormaster-it-pull-twice-testuniquename-") {
		t.Errorf("UniqueName = %q", a)
	}
	if err := a.Validate(); err != nil {
		t.Errorf("UniqueName produced an invalid name: %v", err)
	}

	t.Run("sub/test", func(t *testing.T) {
		if got := UniqueName(t, "x"); strings.Contains(string(got), "/") {
			t.Errorf("subtest separator kept in %q", got)
		}
	})
}

func TestContainerParallelism(t *testing.T) {
	t.Setenv("HARBORMASTER_TEST_CONTAINER_PARALLEL", "5")
	if got := containerParallelism(); got != 5 {
		t.Errorf("containerParallelism() = %d, want 5", got)
	}

	t.Setenv("HARBORMASTER_TEST_CONTAINER_PARALLEL", "zero")
	if got := containerParallelism(); got < 1 || got > 2 {
		t.Errorf("containerParallelism() = %d, want 1..2", got)
	}
}
