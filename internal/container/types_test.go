// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"testing"
)

func TestContainerName_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    ContainerName
		wantErr bool
	}{
		{"ollama", false},
		{"nginx-proxy", false},
		{"svc_1.v2", false},
		{"", true},
		{"-leading-dash", true},
		{"has space", true},
		{"slash/name", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			t.Parallel()
			err := tt.name.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidContainerName) {
				t.Errorf("expected ErrInvalidContainerName, got %v", err)
			}
		})
	}
}

func TestImageTag_Validate(t *testing.T) {
	t.Parallel()

	if err := ImageTag("ghcr.io/org/app:1.2").Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, bad := range []ImageTag{"", "   ", "with space:latest"} {
		if err := bad.Validate(); !errors.Is(err, ErrInvalidImageTag) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidImageTag", bad, err)
		}
	}
}

func TestContainerID_Short(t *testing.T) {
	t.Parallel()

	if got := ContainerID("0123456789abcdef0123").Short(); got != "0123456789ab" {
		t.Errorf("Short() = %q", got)
	}
	if got := ContainerID("abc").Short(); got != "abc" {
		t.Errorf("Short() = %q", got)
	}
}

func TestParseContainerState(t *testing.T) {
	t.Parallel()

	tests := map[string]ContainerState{
		"running":                StateRunning,
		"Up 3 minutes":           StateRunning,
		"Up":                     StateRunning,
		"exited":                 StateExited,
		"Exited (137) 1 min ago": StateExited,
		"created":                StateCreated,
		"configured":             StateCreated,
		"restarting":             StateRestarting,
		"paused":                 StatePaused,
		"dead":                   StateDead,
		"stopped":                StateExited,
		"":                       StateUnknown,
		"removing":               StateUnknown,
	}
	for raw, want := range tests {
		if got := ParseContainerState(raw); got != want {
			t.Errorf("ParseContainerState(%q) = %q, want %q", raw, got, want)
		}
	}

	if !StateExited.IsTerminal() || !StateDead.IsTerminal() {
		t.Error("exited and dead must be terminal")
	}
	if StateRestarting.IsTerminal() || StateCreated.IsTerminal() {
		t.Error("restarting and created are not terminal")
	}
}

func TestParseVolumeMount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    VolumeMount
		wantErr error
	}{
		{input: "/data:/data", want: VolumeMount{HostPath: "/data", ContainerPath: "/data"}},
		{input: "/etc/pihole:/etc/pihole:ro", want: VolumeMount{HostPath: "/etc/pihole", ContainerPath: "/etc/pihole", ReadOnly: true}},
		{input: "/a:/b:rw", want: VolumeMount{HostPath: "/a", ContainerPath: "/b"}},
		{input: "/only-one", wantErr: errors.New("format")},
		{input: "/a:/b:zz", wantErr: errors.New("option")},
		{input: "/a:relative", wantErr: ErrInvalidMountTargetPath},
		{input: ":/b", wantErr: ErrInvalidHostFilesystemPath},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseVolumeMount(tt.input)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("expected error for %q", tt.input)
				}
				if errors.Is(tt.wantErr, ErrInvalidMountTargetPath) || errors.Is(tt.wantErr, ErrInvalidHostFilesystemPath) {
					if !errors.Is(err, tt.wantErr) || !errors.Is(err, ErrInvalidVolumeMount) {
						t.Errorf("error %v does not wrap %v and ErrInvalidVolumeMount", err, tt.wantErr)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseVolumeMount() = %+v, want %+v", got, tt.want)
			}
			if got.String() != FormatVolumeMount(got) {
				t.Errorf("String() and FormatVolumeMount disagree: %q vs %q", got.String(), FormatVolumeMount(got))
			}
		})
	}
}

func TestParsePortMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    PortMapping
		format  string
		wantErr bool
	}{
		{input: "8080:80", want: PortMapping{HostPort: 8080, ContainerPort: 80}, format: "8080:80"},
		{input: "53:53/udp", want: PortMapping{HostPort: 53, ContainerPort: 53, Protocol: PortProtocolUDP}, format: "53:53/udp"},
		{input: "53:53/tcp", want: PortMapping{HostPort: 53, ContainerPort: 53, Protocol: PortProtocolTCP}, format: "53:53"},
		{
			input:  "127.0.0.1:11434:11434",
			want:   PortMapping{HostIP: "127.0.0.1", HostPort: 11434, ContainerPort: 11434},
			format: "127.0.0.1:11434:11434",
		},
		{input: "80", wantErr: true},
		{input: "0:80", wantErr: true},
		{input: "70000:80", wantErr: true},
		{input: "80:80/sctp", wantErr: true},
		{input: "abc:80", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePortMapping(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %+v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParsePortMapping() = %+v, want %+v", got, tt.want)
			}
			if f := FormatPortMapping(got); f != tt.format {
				t.Errorf("FormatPortMapping() = %q, want %q", f, tt.format)
			}
		})
	}
}

func TestPortMapping_ValidateWrapsFieldErrors(t *testing.T) {
	t.Parallel()

	err := PortMapping{HostPort: 0, ContainerPort: 80, Protocol: "icmp"}.Validate()
	if !errors.Is(err, ErrInvalidPortMapping) {
		t.Fatalf("expected ErrInvalidPortMapping, got %v", err)
	}
	if !errors.Is(err, ErrInvalidNetworkPort) || !errors.Is(err, ErrInvalidPortProtocol) {
		t.Errorf("expected both field sentinels in %v", err)
	}
}

func TestEngineType_Validate(t *testing.T) {
	t.Parallel()

	for _, ok := range []EngineType{EngineTypeAuto, EngineTypeDocker, EngineTypePodman, EngineTypeDockerAPI} {
		if err := ok.Validate(); err != nil {
			t.Errorf("Validate(%q) = %v", ok, err)
		}
	}
	if err := EngineType("containerd").Validate(); !errors.Is(err, ErrInvalidEngineType) {
		t.Errorf("expected ErrInvalidEngineType, got %v", err)
	}
}
