// SPDX-License-Identifier: MPL-2.0

package container

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/go-units"
)

// ErrUnsupportedRunFlag is the sentinel error wrapped by UnsupportedRunFlagError.
var ErrUnsupportedRunFlag = errors.New("unsupported run flag")

// UnsupportedRunFlagError is returned when an extra run flag has no Docker API equivalent.
type UnsupportedRunFlagError struct {
	Flag   string
	Reason string
}

// Error implements the error interface.
func (e *UnsupportedRunFlagError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("run flag %q is not supported by the docker-api engine", e.Flag)
	}
	return fmt.Sprintf("run flag %q: %s", e.Flag, e.Reason)
}

// Unwrap returns ErrUnsupportedRunFlag for errors.Is() compatibility.
func (e *UnsupportedRunFlagError) Unwrap() error { return ErrUnsupportedRunFlag }

// booleanFlags may appear without a value.
var booleanFlags = map[string]bool{
	"privileged": true,
	"init":       true,
	"read-only":  true,
}

// applyRunFlags translates CLI-style run flags ("--gpus=all" or "--gpus", "all")
// into the host configuration.
func applyRunFlags(flags []string, hc *dockercontainer.HostConfig) error {
	for i := 0; i < len(flags); i++ {
		raw := flags[i]
		if !strings.HasPrefix(raw, "--") {
			return &UnsupportedRunFlagError{Flag: raw, Reason: "only long-form flags are accepted"}
		}

		name, value, hasValue := strings.Cut(raw[2:], "=")
		if !hasValue {
			if booleanFlags[name] {
				value = "true"
			} else {
				if i+1 >= len(flags) {
					return &UnsupportedRunFlagError{Flag: raw, Reason: "missing value"}
				}
				i++
				value = flags[i]
			}
		}

		if err := applyRunFlag(name, value, hc); err != nil {
			return err
		}
	}
	return nil
}

//nolint:cyclop // one case per flag
func applyRunFlag(name, value string, hc *dockercontainer.HostConfig) error {
	flag := "--" + name
	switch name {
	case "gpus":
		req, err := parseGPURequest(value)
		if err != nil {
			return &UnsupportedRunFlagError{Flag: flag, Reason: err.Error()}
		}
		hc.DeviceRequests = append(hc.DeviceRequests, req)
	case "device":
		hc.Devices = append(hc.Devices, parseDeviceMapping(value))
	case "network", "net":
		hc.NetworkMode = dockercontainer.NetworkMode(value)
	case "restart":
		policy, retries, _ := strings.Cut(value, ":")
		hc.RestartPolicy = dockercontainer.RestartPolicy{Name: dockercontainer.RestartPolicyMode(policy)}
		if retries != "" {
			n, err := strconv.Atoi(retries)
			if err != nil {
				return &UnsupportedRunFlagError{Flag: flag, Reason: "invalid maximum retry count " + strconv.Quote(retries)}
			}
			hc.RestartPolicy.MaximumRetryCount = n
		}
	case "cap-add":
		hc.CapAdd = append(hc.CapAdd, value)
	case "cap-drop":
		hc.CapDrop = append(hc.CapDrop, value)
	case "group-add":
		hc.GroupAdd = append(hc.GroupAdd, value)
	case "add-host":
		hc.ExtraHosts = append(hc.ExtraHosts, value)
	case "dns":
		hc.DNS = append(hc.DNS, value)
	case "security-opt":
		hc.SecurityOpt = append(hc.SecurityOpt, value)
	case "ipc":
		hc.IpcMode = dockercontainer.IpcMode(value)
	case "pid":
		hc.PidMode = dockercontainer.PidMode(value)
	case "runtime":
		hc.Runtime = value
	case "shm-size":
		n, err := units.RAMInBytes(value)
		if err != nil {
			return &UnsupportedRunFlagError{Flag: flag, Reason: err.Error()}
		}
		hc.ShmSize = n
	case "memory":
		n, err := units.RAMInBytes(value)
		if err != nil {
			return &UnsupportedRunFlagError{Flag: flag, Reason: err.Error()}
		}
		hc.Memory = n
	case "privileged", "init", "read-only":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return &UnsupportedRunFlagError{Flag: flag, Reason: "expected a boolean"}
		}
		switch name {
		case "privileged":
			hc.Privileged = b
		case "init":
			hc.Init = &b
		default:
			hc.ReadonlyRootfs = b
		}
	default:
		return &UnsupportedRunFlagError{Flag: flag}
	}
	return nil
}

// parseGPURequest accepts "all", a count, or "device=0,1".
func parseGPURequest(value string) (dockercontainer.DeviceRequest, error) {
	req := dockercontainer.DeviceRequest{Capabilities: [][]string{{"gpu"}}}
	value = strings.Trim(value, `"'`)

	switch {
	case value == "all":
		req.Count = -1
	case strings.HasPrefix(value, "device="):
		req.DeviceIDs = strings.Split(strings.TrimPrefix(value, "device="), ",")
	default:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return req, fmt.Errorf("expected all, a positive count or device=IDS, got %q", value)
		}
		req.Count = n
	}
	return req, nil
}

// parseDeviceMapping accepts "host[:container[:permissions]]".
func parseDeviceMapping(value string) dockercontainer.DeviceMapping {
	parts := strings.SplitN(value, ":", 3)
	m := dockercontainer.DeviceMapping{
		PathOnHost:        parts[0],
		PathInContainer:   parts[0],
		CgroupPermissions: "rwm",
	}
	if len(parts) > 1 && parts[1] != "" {
		m.PathInContainer = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		m.CgroupPermissions = parts[2]
	}
	return m
}
