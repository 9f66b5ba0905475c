// SPDX-License-Identifier: MPL-2.0

package servicefile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/invowk/harbormaster/internal/container"
)

func TestGPUMode(t *testing.T) {
	t.Parallel()

	assert.NoError(t, GPUMode("").Validate())
	assert.Equal(t, GPUNone, GPUMode("").OrDefault())
	assert.ErrorIs(t, GPUMode("intel").Validate(), ErrInvalidGPUMode)
	assert.Nil(t, GPUNone.RunFlags())
	assert.Equal(t, []string{"--gpus=all"}, GPUNvidia.RunFlags())
	assert.Len(t, GPUAMD.RunFlags(), 3)
}

func TestVerifyPolicy_OrDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, VerifyPolicy{Timeout: 5 * time.Second, Attempts: 1}, VerifyPolicy{}.OrDefault())
	custom := VerifyPolicy{Timeout: time.Second, Attempts: 4}
	assert.Equal(t, custom, custom.OrDefault())
}

func TestDescriptor_Validate(t *testing.T) {
	t.Parallel()

	valid := Descriptor{Name: "svc", Source: PullSource{Reference: "nginx"}}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		d    Descriptor
	}{
		{"missing source", Descriptor{Name: "svc"}},
		{"bad name", Descriptor{Name: "", Source: PullSource{Reference: "nginx"}}},
		{"empty build", Descriptor{Name: "svc", Source: BuildSource{Tag: "t"}}},
		{"bad port", Descriptor{Name: "svc", Source: PullSource{Reference: "nginx"}, Ports: []container.PortMapping{{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.d.Validate(), ErrInvalidDescriptor)
		})
	}
}

func TestImageSource_Image(t *testing.T) {
	t.Parallel()

	var src ImageSource = PullSource{Reference: "redis:7"}
	assert.Equal(t, "redis:7", src.Image().String())
	src = BuildSource{Tag: "custom:1", Dockerfile: "FROM scratch"}
	assert.Equal(t, "custom:1", src.Image().String())
	assert.NoError(t, src.Validate())
}
