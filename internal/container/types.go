// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
)

const (
	// PortProtocolTCP is the TCP transport protocol for port mappings.
	PortProtocolTCP PortProtocol = "tcp"
	// PortProtocolUDP is the UDP transport protocol for port mappings.
	PortProtocolUDP PortProtocol = "udp"

	// StateCreated is a container that exists but was never started.
	StateCreated ContainerState = "created"
	// StateRunning is a container whose main process is alive.
	StateRunning ContainerState = "running"
	// StateRestarting is a container being restarted by its restart policy.
	StateRestarting ContainerState = "restarting"
	// StatePaused is a container whose processes are frozen.
	StatePaused ContainerState = "paused"
	// StateExited is a container whose main process has terminated.
	StateExited ContainerState = "exited"
	// StateDead is a container the engine failed to remove.
	StateDead ContainerState = "dead"
	// StateUnknown is reported when the engine returns a state string we do not recognize.
	StateUnknown ContainerState = "unknown"
)

var (
	// ErrInvalidPortProtocol is the sentinel error wrapped by InvalidPortProtocolError.
	ErrInvalidPortProtocol = errors.New("invalid port protocol")

	// ErrInvalidNetworkPort is the sentinel error wrapped by InvalidNetworkPortError.
	ErrInvalidNetworkPort = errors.New("invalid network port")

	// ErrInvalidHostFilesystemPath is the sentinel error wrapped by InvalidHostFilesystemPathError.
	ErrInvalidHostFilesystemPath = errors.New("invalid host filesystem path")

	// ErrInvalidMountTargetPath is the sentinel error wrapped by InvalidMountTargetPathError.
	ErrInvalidMountTargetPath = errors.New("invalid container filesystem path")

	// ErrInvalidVolumeMount is the sentinel error wrapped by InvalidVolumeMountError.
	ErrInvalidVolumeMount = errors.New("invalid volume mount")

	// ErrInvalidPortMapping is the sentinel error wrapped by InvalidPortMappingError.
	ErrInvalidPortMapping = errors.New("invalid port mapping")

	// ErrInvalidContainerName is the sentinel error wrapped by InvalidContainerNameError.
	ErrInvalidContainerName = errors.New("invalid container name")

	// ErrInvalidImageTag is the sentinel error wrapped by InvalidImageTagError.
	ErrInvalidImageTag = errors.New("invalid image tag")

	// ErrInvalidContainerID is the sentinel error wrapped by InvalidContainerIDError.
	ErrInvalidContainerID = errors.New("invalid container ID")

	// containerNamePattern mirrors the name rule enforced by Docker and Podman.
	containerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)
)

type (
	// ContainerName is the user-facing container name. The engine owns its uniqueness:
	// two containers can never share a name on one host.
	ContainerName string

	// InvalidContainerNameError is returned when a ContainerName does not match the engine naming rule.
	InvalidContainerNameError struct {
		Value ContainerName
	}

	// ImageTag is an image reference such as "nginx:latest" or "registry:5000/app:v1".
	ImageTag string

	// InvalidImageTagError is returned when an ImageTag is empty or contains whitespace.
	InvalidImageTagError struct {
		Value ImageTag
	}

	// ContainerID is the engine-assigned container identifier.
	ContainerID string

	// InvalidContainerIDError is returned when a ContainerID is empty or whitespace-only.
	InvalidContainerIDError struct {
		Value ContainerID
	}

	// ContainerState is the lifecycle state reported by the engine's container listing.
	ContainerState string

	// PortProtocol represents a network transport protocol for port mappings.
	// The zero value ("") is valid and means "default to tcp".
	PortProtocol string

	// InvalidPortProtocolError is returned when a PortProtocol is not a recognized protocol.
	InvalidPortProtocolError struct {
		Value PortProtocol
	}

	// NetworkPort represents a TCP/UDP port number for container port mappings.
	// A valid port must be greater than zero.
	NetworkPort uint16

	// InvalidNetworkPortError is returned when a NetworkPort value is zero.
	InvalidNetworkPortError struct {
		Value NetworkPort
	}

	// HostFilesystemPath represents a filesystem path on the host for volume mounts.
	// A valid path must be non-empty and not whitespace-only.
	HostFilesystemPath string

	// InvalidHostFilesystemPathError is returned when a HostFilesystemPath is empty or whitespace-only.
	InvalidHostFilesystemPathError struct {
		Value HostFilesystemPath
	}

	// MountTargetPath represents a filesystem path inside a container for volume mounts.
	// A valid path must be absolute.
	MountTargetPath string

	// InvalidMountTargetPathError is returned when a MountTargetPath is empty or relative.
	InvalidMountTargetPathError struct {
		Value MountTargetPath
	}

	// VolumeMount represents a bind mount of a host directory into the container.
	VolumeMount struct {
		HostPath      HostFilesystemPath
		ContainerPath MountTargetPath
		ReadOnly      bool
	}

	// PortMapping publishes a container port on the host.
	// HostIP is optional; empty means all interfaces.
	PortMapping struct {
		HostIP        string
		HostPort      NetworkPort
		ContainerPort NetworkPort
		Protocol      PortProtocol
	}

	// InvalidVolumeMountError is returned when a VolumeMount has one or more invalid fields.
	// It wraps the individual field validation errors for inspection.
	InvalidVolumeMountError struct {
		Value     VolumeMount
		FieldErrs []error
	}

	// InvalidPortMappingError is returned when a PortMapping has one or more invalid fields.
	// It wraps the individual field validation errors for inspection.
	InvalidPortMappingError struct {
		Value     PortMapping
		FieldErrs []error
	}

	// Summary is one row of the engine's container listing.
	Summary struct {
		ID    ContainerID
		Name  ContainerName
		Image ImageTag
		State ContainerState
		// Ports lists the host ports the container currently publishes. Engines
		// only report these while the container is running.
		Ports []PortMapping
	}
)

// Publishes reports whether s holds the host side of p: same host port and protocol,
// on any address.
func (s Summary) Publishes(p PortMapping) bool {
	for _, held := range s.Ports {
		if held.HostPort == p.HostPort && held.Protocol.OrDefault() == p.Protocol.OrDefault() {
			return true
		}
	}
	return false
}

// String returns the string representation of the ContainerName.
func (n ContainerName) String() string { return string(n) }

// Validate returns an error if the name would be rejected by the container engine.
func (n ContainerName) Validate() error {
	if !containerNamePattern.MatchString(string(n)) {
		return &InvalidContainerNameError{Value: n}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidContainerNameError) Error() string {
	return fmt.Sprintf("invalid container name %q: must match %s", e.Value, containerNamePattern)
}

// Unwrap returns ErrInvalidContainerName for errors.Is() compatibility.
func (e *InvalidContainerNameError) Unwrap() error { return ErrInvalidContainerName }

// String returns the string representation of the ImageTag.
func (t ImageTag) String() string { return string(t) }

// Validate returns an error if the ImageTag is empty or contains whitespace.
func (t ImageTag) Validate() error {
	if strings.TrimSpace(string(t)) == "" || strings.ContainsAny(string(t), " \t\n") {
		return &InvalidImageTagError{Value: t}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidImageTagError) Error() string {
	return fmt.Sprintf("invalid image tag %q: must be non-empty and contain no whitespace", e.Value)
}

// Unwrap returns ErrInvalidImageTag for errors.Is() compatibility.
func (e *InvalidImageTagError) Unwrap() error { return ErrInvalidImageTag }

// String returns the string representation of the ContainerID.
func (c ContainerID) String() string { return string(c) }

// Short returns the 12-character form engines print in listings.
func (c ContainerID) Short() string {
	if len(c) > 12 {
		return string(c[:12])
	}
	return string(c)
}

// Validate returns an error if the ContainerID is empty or whitespace-only.
func (c ContainerID) Validate() error {
	if strings.TrimSpace(string(c)) == "" {
		return &InvalidContainerIDError{Value: c}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidContainerIDError) Error() string {
	return fmt.Sprintf("invalid container ID %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidContainerID for errors.Is() compatibility.
func (e *InvalidContainerIDError) Unwrap() error { return ErrInvalidContainerID }

// String returns the string representation of the ContainerState.
func (s ContainerState) String() string { return string(s) }

// ParseContainerState normalizes the state column of a container listing.
// Docker prints "running"; older Podman releases print "Up" or "Exited (0) 3s ago".
func ParseContainerState(raw string) ContainerState {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "up" || strings.HasPrefix(s, "up "):
		return StateRunning
	case strings.HasPrefix(s, "exited"):
		return StateExited
	}
	switch ContainerState(s) {
	case StateCreated, StateRunning, StateRestarting, StatePaused, StateExited, StateDead:
		return ContainerState(s)
	case "configured", "initialized":
		return StateCreated
	case "stopped", "stopping":
		return StateExited
	default:
		return StateUnknown
	}
}

// IsTerminal reports whether a container in this state will not reach running on its own.
func (s ContainerState) IsTerminal() bool {
	return s == StateExited || s == StateDead
}

// Error implements the error interface.
func (e *InvalidPortProtocolError) Error() string {
	return fmt.Sprintf("invalid port protocol %q (valid: tcp, udp)", e.Value)
}

// Unwrap returns ErrInvalidPortProtocol so callers can use errors.Is for programmatic detection.
func (e *InvalidPortProtocolError) Unwrap() error { return ErrInvalidPortProtocol }

// Validate returns an error if the PortProtocol is not one of the defined protocols.
func (p PortProtocol) Validate() error {
	switch p {
	case PortProtocolTCP, PortProtocolUDP, "":
		return nil
	default:
		return &InvalidPortProtocolError{Value: p}
	}
}

// String returns the string representation of the PortProtocol.
func (p PortProtocol) String() string { return string(p) }

// OrDefault returns tcp for the zero value.
func (p PortProtocol) OrDefault() PortProtocol {
	if p == "" {
		return PortProtocolTCP
	}
	return p
}

// String returns the string representation of the NetworkPort.
func (p NetworkPort) String() string { return strconv.Itoa(int(p)) }

// Validate returns an error if the NetworkPort is zero.
func (p NetworkPort) Validate() error {
	if p == 0 {
		return &InvalidNetworkPortError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidNetworkPortError.
func (e *InvalidNetworkPortError) Error() string {
	return fmt.Sprintf("invalid network port %d: must be greater than zero", e.Value)
}

// Unwrap returns ErrInvalidNetworkPort for errors.Is() compatibility.
func (e *InvalidNetworkPortError) Unwrap() error { return ErrInvalidNetworkPort }

// String returns the string representation of the HostFilesystemPath.
func (p HostFilesystemPath) String() string { return string(p) }

// Validate returns an error if the HostFilesystemPath is empty or whitespace-only.
func (p HostFilesystemPath) Validate() error {
	if strings.TrimSpace(string(p)) == "" {
		return &InvalidHostFilesystemPathError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidHostFilesystemPathError.
func (e *InvalidHostFilesystemPathError) Error() string {
	return fmt.Sprintf("invalid host filesystem path %q: must be non-empty", e.Value)
}

// Unwrap returns ErrInvalidHostFilesystemPath for errors.Is() compatibility.
func (e *InvalidHostFilesystemPathError) Unwrap() error { return ErrInvalidHostFilesystemPath }

// String returns the string representation of the MountTargetPath.
func (p MountTargetPath) String() string { return string(p) }

// Validate returns an error unless the MountTargetPath is an absolute container path.
func (p MountTargetPath) Validate() error {
	if !strings.HasPrefix(string(p), "/") {
		return &InvalidMountTargetPathError{Value: p}
	}
	return nil
}

// Error implements the error interface for InvalidMountTargetPathError.
func (e *InvalidMountTargetPathError) Error() string {
	return fmt.Sprintf("invalid container filesystem path %q: must be absolute", e.Value)
}

// Unwrap returns ErrInvalidMountTargetPath for errors.Is() compatibility.
func (e *InvalidMountTargetPathError) Unwrap() error { return ErrInvalidMountTargetPath }

// Error implements the error interface for InvalidVolumeMountError.
func (e *InvalidVolumeMountError) Error() string {
	return fmt.Sprintf("invalid volume mount %s:%s: %v",
		e.Value.HostPath, e.Value.ContainerPath, errors.Join(e.FieldErrs...))
}

// Unwrap returns the field errors and ErrInvalidVolumeMount for errors.Is() compatibility.
func (e *InvalidVolumeMountError) Unwrap() []error {
	return append([]error{ErrInvalidVolumeMount}, e.FieldErrs...)
}

// Validate returns an error if any field of the VolumeMount is invalid.
func (v VolumeMount) Validate() error {
	var errs []error
	if err := v.HostPath.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := v.ContainerPath.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidVolumeMountError{Value: v, FieldErrs: errs}
	}
	return nil
}

// String returns the volume mount in "host:container[:ro]" format.
func (v VolumeMount) String() string {
	s := string(v.HostPath) + ":" + string(v.ContainerPath)
	if v.ReadOnly {
		s += ":ro"
	}
	return s
}

// Error implements the error interface for InvalidPortMappingError.
func (e *InvalidPortMappingError) Error() string {
	return fmt.Sprintf("invalid port mapping %d:%d/%s: %v",
		e.Value.HostPort, e.Value.ContainerPort, e.Value.Protocol, errors.Join(e.FieldErrs...))
}

// Unwrap returns the field errors and ErrInvalidPortMapping for errors.Is() compatibility.
func (e *InvalidPortMappingError) Unwrap() []error {
	return append([]error{ErrInvalidPortMapping}, e.FieldErrs...)
}

// Validate returns an error if any field of the PortMapping is invalid.
func (p PortMapping) Validate() error {
	var errs []error
	if err := p.HostPort.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := p.ContainerPort.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := p.Protocol.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &InvalidPortMappingError{Value: p, FieldErrs: errs}
	}
	return nil
}

// String returns the port mapping in "[ip:]host:container/protocol" format.
func (p PortMapping) String() string {
	s := fmt.Sprintf("%d:%d/%s", p.HostPort, p.ContainerPort, p.Protocol.OrDefault())
	if p.HostIP != "" {
		s = p.HostIP + ":" + s
	}
	return s
}

// FormatVolumeMount formats a volume mount for the -v flag.
func FormatVolumeMount(mount VolumeMount) string {
	return mount.String()
}

// ParseVolumeMount parses "host:container[:ro|rw]" into a VolumeMount and validates it.
func ParseVolumeMount(volume string) (VolumeMount, error) {
	mount := VolumeMount{}

	parts := strings.Split(volume, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return mount, fmt.Errorf("invalid volume mount format %q: want host:container[:ro]", volume)
	}
	mount.HostPath = HostFilesystemPath(parts[0])
	mount.ContainerPath = MountTargetPath(parts[1])
	if len(parts) == 3 {
		switch parts[2] {
		case "ro":
			mount.ReadOnly = true
		case "rw":
		default:
			return mount, fmt.Errorf("invalid volume mount option %q in %q", parts[2], volume)
		}
	}

	if err := mount.Validate(); err != nil {
		return mount, err
	}
	return mount, nil
}

// FormatPortMapping formats a port mapping for the -p flag. The protocol suffix
// is omitted for tcp because that is the engine default.
func FormatPortMapping(mapping PortMapping) string {
	result := fmt.Sprintf("%d:%d", mapping.HostPort, mapping.ContainerPort)
	if mapping.HostIP != "" {
		result = mapping.HostIP + ":" + result
	}
	if mapping.Protocol.OrDefault() != PortProtocolTCP {
		result += "/" + string(mapping.Protocol)
	}
	return result
}

// ParsePortMapping parses the -p syntax "[hostIP:]hostPort:containerPort[/protocol]"
// into a single PortMapping. Ranges and container-only specs are rejected.
func ParsePortMapping(portStr string) (PortMapping, error) {
	mappings, err := nat.ParsePortSpec(portStr)
	if err != nil {
		return PortMapping{}, fmt.Errorf("invalid port mapping %q: %w", portStr, err)
	}
	if len(mappings) != 1 {
		return PortMapping{}, fmt.Errorf("invalid port mapping %q: ranges are not supported", portStr)
	}
	m := mappings[0]
	if m.Binding.HostPort == "" {
		return PortMapping{}, fmt.Errorf("invalid port mapping %q: want hostPort:containerPort", portStr)
	}

	hostPort, err := strconv.ParseUint(m.Binding.HostPort, 10, 16)
	if err != nil {
		return PortMapping{}, fmt.Errorf("invalid host port in %q: %w", portStr, err)
	}
	mapping := PortMapping{
		HostIP:        m.Binding.HostIP,
		HostPort:      NetworkPort(hostPort),
		ContainerPort: NetworkPort(m.Port.Int()),
	}
	// nat always fills in a protocol; keep only one the user wrote.
	if _, proto, ok := strings.Cut(portStr, "/"); ok {
		mapping.Protocol = PortProtocol(proto)
	}

	if err := mapping.Validate(); err != nil {
		return mapping, err
	}
	return mapping, nil
}
