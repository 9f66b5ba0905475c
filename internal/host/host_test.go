// SPDX-License-Identifier: MPL-2.0

package host

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invowk/harbormaster/internal/container"
)

func noConnections(context.Context, string) ([]gnet.ConnectionStat, error) {
	return nil, errors.New("socket table unavailable")
}

func TestSystem_HasAdminPrivilege(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		euid        int
		groups      []string
		groupsErr   error
		requireRoot bool
		want        bool
	}{
		{name: "root", euid: 0, want: true},
		{name: "root with require_root", euid: 0, requireRoot: true, want: true},
		{name: "docker group member", euid: 1000, groups: []string{"users", "docker"}, want: true},
		{name: "docker group but root required", euid: 1000, groups: []string{"docker"}, requireRoot: true, want: false},
		{name: "plain user", euid: 1000, groups: []string{"users"}, want: false},
		{name: "group lookup fails", euid: 1000, groupsErr: errors.New("no passwd entry"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New(WithRequireRoot(tt.requireRoot))
			s.geteuid = func() int { return tt.euid }
			s.userGroups = func() ([]string, error) { return tt.groups, tt.groupsErr }

			assert.Equal(t, tt.want, s.HasAdminPrivilege())
		})
	}
}

func TestSystem_HasAdminPrivilege_CustomGroups(t *testing.T) {
	t.Parallel()
	s := New(WithAdminGroups("podman"))
	s.geteuid = func() int { return 1000 }
	s.userGroups = func() ([]string, error) { return []string{"docker"}, nil }

	assert.False(t, s.HasAdminPrivilege())
}

func TestSystem_IsPortFree_SocketTable(t *testing.T) {
	t.Parallel()

	table := []gnet.ConnectionStat{
		{Laddr: gnet.Addr{IP: "0.0.0.0", Port: 8080}, Status: "LISTEN"},
		{Laddr: gnet.Addr{IP: "10.0.0.5", Port: 9000}, Status: "ESTABLISHED"},
		{Laddr: gnet.Addr{IP: "127.0.0.1", Port: 5353}, Status: "LISTEN"},
	}

	s := New()
	s.connections = func(context.Context, string) ([]gnet.ConnectionStat, error) { return table, nil }
	bound := 0
	s.listenTCP = func(string) (net.Listener, error) {
		bound++
		return net.Listen("tcp", "127.0.0.1:0")
	}

	free, err := s.IsPortFree(context.Background(), container.PortMapping{HostPort: 8080, ContainerPort: 80})
	require.NoError(t, err)
	assert.False(t, free, "wildcard listener occupies every address")
	assert.Zero(t, bound, "socket table answer must short-circuit the bind check")

	free, err = s.IsPortFree(context.Background(), container.PortMapping{HostIP: "192.168.1.2", HostPort: 5353, ContainerPort: 53})
	require.NoError(t, err)
	assert.True(t, free, "a listener on another address does not occupy this one")
	assert.Equal(t, 1, bound)
}

func TestSystem_IsPortFree_ConnectedSocketIsNotAListener(t *testing.T) {
	t.Parallel()

	s := New()
	s.connections = func(context.Context, string) ([]gnet.ConnectionStat, error) {
		return []gnet.ConnectionStat{{Laddr: gnet.Addr{IP: "10.0.0.5", Port: 9000}, Status: "ESTABLISHED"}}, nil
	}
	s.listenTCP = func(string) (net.Listener, error) { return net.Listen("tcp", "127.0.0.1:0") }

	free, err := s.IsPortFree(context.Background(), container.PortMapping{HostPort: 9000, ContainerPort: 9000})
	require.NoError(t, err)
	assert.True(t, free)
}

func TestSystem_IsPortFree_BindFallback(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	port := l.Addr().(*net.TCPAddr).Port

	s := New()
	s.connections = noConnections

	free, err := s.IsPortFree(context.Background(), container.PortMapping{
		HostIP: "127.0.0.1", HostPort: container.NetworkPort(port), ContainerPort: 80,
	})
	require.NoError(t, err)
	assert.False(t, free, "port held by a live listener must be reported in use")
}

func TestSystem_IsPortFree_UDP(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	port := pc.LocalAddr().(*net.UDPAddr).Port

	s := New()
	s.connections = noConnections

	free, err := s.IsPortFree(context.Background(), container.PortMapping{
		HostIP: "127.0.0.1", HostPort: container.NetworkPort(port), ContainerPort: 53, Protocol: container.PortProtocolUDP,
	})
	require.NoError(t, err)
	assert.False(t, free)
}

func TestSystem_IsPortFree_PermissionDeniedIsNotInUse(t *testing.T) {
	t.Parallel()

	s := New()
	s.connections = func(context.Context, string) ([]gnet.ConnectionStat, error) { return nil, nil }
	s.listenTCP = func(string) (net.Listener, error) {
		return nil, &net.OpError{Op: "listen", Err: os.NewSyscallError("bind", syscall.EACCES)}
	}

	free, err := s.IsPortFree(context.Background(), container.PortMapping{HostPort: 80, ContainerPort: 80})
	require.NoError(t, err)
	assert.True(t, free)
}

func TestSystem_IsPortFree_InvalidMapping(t *testing.T) {
	t.Parallel()

	_, err := New().IsPortFree(context.Background(), container.PortMapping{})
	assert.ErrorIs(t, err, container.ErrInvalidPortMapping)
}

func TestSystem_EnsureDirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	s := New()

	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, s.EnsureDirectory(container.HostFilesystemPath(nested)))
	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Idempotent.
	require.NoError(t, s.EnsureDirectory(container.HostFilesystemPath(nested)))

	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.ErrorIs(t, s.EnsureDirectory(container.HostFilesystemPath(file)), ErrNotDirectory)

	under := filepath.Join(file, "child")
	assert.Error(t, s.EnsureDirectory(container.HostFilesystemPath(under)))

	assert.ErrorIs(t, s.EnsureDirectory(""), container.ErrInvalidHostFilesystemPath)
}
