// SPDX-License-Identifier: MPL-2.0

// Package host answers the provisioning preconditions that depend on the local
// machine: whether a host port is free, whether a volume directory exists or can be
// created, and whether the caller may manage the container runtime.
package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"slices"
	"syscall"

	gnet "github.com/shirou/gopsutil/v4/net"

	"github.com/invowk/harbormaster/internal/container"
)

// DefaultAdminGroup is the group whose members can drive the docker daemon without root.
const DefaultAdminGroup = "docker"

// ErrNotDirectory is returned by EnsureDirectory when the path exists but is not a directory.
var ErrNotDirectory = errors.New("path exists and is not a directory")

type (
	// Environment is the host collaborator used by the provisioner.
	Environment interface {
		IsPortFree(ctx context.Context, mapping container.PortMapping) (bool, error)
		EnsureDirectory(path container.HostFilesystemPath) error
		HasAdminPrivilege() bool
	}

	// Option configures a System.
	Option func(*System)

	// System is the Environment backed by the running machine.
	System struct {
		requireRoot bool
		adminGroups []string

		geteuid     func() int
		userGroups  func() ([]string, error)
		connections func(ctx context.Context, kind string) ([]gnet.ConnectionStat, error)
		listenTCP   func(addr string) (net.Listener, error)
		listenUDP   func(addr string) (net.PacketConn, error)
	}
)

// WithRequireRoot makes HasAdminPrivilege accept only an effective uid of 0.
func WithRequireRoot(require bool) Option {
	return func(s *System) { s.requireRoot = require }
}

// WithAdminGroups replaces the groups whose membership grants runtime access.
func WithAdminGroups(groups ...string) Option {
	return func(s *System) { s.adminGroups = groups }
}

// New creates a System with the given options.
func New(opts ...Option) *System {
	s := &System{
		adminGroups: []string{DefaultAdminGroup},
		geteuid:     os.Geteuid,
		userGroups:  currentUserGroups,
		connections: gnet.ConnectionsWithContext,
		listenTCP: func(addr string) (net.Listener, error) {
			return net.Listen("tcp", addr)
		},
		listenUDP: func(addr string) (net.PacketConn, error) {
			return net.ListenPacket("udp", addr)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasAdminPrivilege reports whether the caller is root or, unless root is required,
// belongs to one of the admin groups.
func (s *System) HasAdminPrivilege() bool {
	if s.geteuid() == 0 {
		return true
	}
	if s.requireRoot {
		return false
	}
	groups, err := s.userGroups()
	if err != nil {
		return false
	}
	return slices.ContainsFunc(groups, func(g string) bool {
		return slices.Contains(s.adminGroups, g)
	})
}

// IsPortFree reports whether nothing is bound to the mapping's host port. The socket
// table is consulted first; a bind attempt then catches listeners the table cannot
// show (other network namespaces sharing the port, restricted /proc).
func (s *System) IsPortFree(ctx context.Context, mapping container.PortMapping) (bool, error) {
	if err := mapping.Validate(); err != nil {
		return false, err
	}
	proto := mapping.Protocol.OrDefault()

	conns, err := s.connections(ctx, string(proto))
	if err == nil {
		for _, c := range conns {
			if occupies(c, mapping, proto) {
				return false, nil
			}
		}
	} else if ctx.Err() != nil {
		return false, ctx.Err()
	}

	return s.bindCheck(mapping, proto)
}

func (s *System) bindCheck(mapping container.PortMapping, proto container.PortProtocol) (bool, error) {
	addr := net.JoinHostPort(mapping.HostIP, mapping.HostPort.String())

	var closeFn func() error
	switch proto {
	case container.PortProtocolUDP:
		pc, err := s.listenUDP(addr)
		if err != nil {
			return classifyBindError(err, mapping)
		}
		closeFn = pc.Close
	default:
		l, err := s.listenTCP(addr)
		if err != nil {
			return classifyBindError(err, mapping)
		}
		closeFn = l.Close
	}
	_ = closeFn()
	return true, nil
}

// classifyBindError treats EADDRINUSE as occupied. EACCES on a privileged port only
// means this process may not bind it, which the socket table already answered.
func classifyBindError(err error, mapping container.PortMapping) (bool, error) {
	switch {
	case errors.Is(err, syscall.EADDRINUSE):
		return false, nil
	case errors.Is(err, syscall.EACCES):
		return true, nil
	default:
		return false, fmt.Errorf("bind host port %s: %w", mapping.HostPort, err)
	}
}

func occupies(c gnet.ConnectionStat, mapping container.PortMapping, proto container.PortProtocol) bool {
	if c.Laddr.Port != uint32(mapping.HostPort) {
		return false
	}
	if proto == container.PortProtocolTCP && c.Status != "LISTEN" {
		return false
	}
	if mapping.HostIP == "" {
		return true
	}
	switch c.Laddr.IP {
	case "", "0.0.0.0", "::", mapping.HostIP:
		return true
	default:
		return false
	}
}

// EnsureDirectory creates path (and parents) if it does not exist.
func (s *System) EnsureDirectory(path container.HostFilesystemPath) error {
	if err := path.Validate(); err != nil {
		return err
	}

	info, err := os.Stat(string(path))
	switch {
	case err == nil && info.IsDir():
		return nil
	case err == nil:
		return fmt.Errorf("%s: %w", path, ErrNotDirectory)
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if err := os.MkdirAll(string(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return nil
}

func currentUserGroups() ([]string, error) {
	u, err := user.Current()
	if err != nil {
		return nil, err
	}
	ids, err := u.GroupIds()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		g, err := user.LookupGroupId(id)
		if err != nil {
			// Unresolvable gids still count by number.
			names = append(names, id)
			continue
		}
		names = append(names, g.Name)
	}
	return names, nil
}

var _ Environment = (*System)(nil)
