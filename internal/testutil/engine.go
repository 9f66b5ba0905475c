// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"

	"github.com/invowk/harbormaster/internal/container"
)

// RequireContainerEngine returns a working container engine or skips the test. It
// also skips in -short mode.
//
// Our own detection runs first because the testcontainers provider lookup can panic
// on hosts without a daemon socket.
func RequireContainerEngine(t *testing.T) container.Engine {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	engine, err := container.AutoDetectEngine(context.Background())
	if err != nil {
		t.Skipf("skipping: no container engine available: %v", err)
	}
	if !providerAvailable() {
		t.Skip("skipping: testcontainers provider not available")
	}
	return engine
}

func providerAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}
