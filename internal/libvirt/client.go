package libvirt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

const (
	// DefaultSocket is the qemu:///system UNIX socket.
	DefaultSocket = "/var/run/libvirt/libvirt-sock"

	// DefaultDialTimeout bounds the socket dial.
	DefaultDialTimeout = 5 * time.Second
)

var errNotConnected = errors.New("libvirt client is not connected")

// Client is an RPC connection to the libvirt daemon. Domains and networks
// are driven through virsh; the RPC connection only answers whether the
// daemon is reachable and what it runs.
type Client struct {
	conn *libvirt.Libvirt
}

// HostInfo describes the daemon a Client is connected to.
type HostInfo struct {
	Version  string
	Hostname string
	URI      string
}

// Dial connects to the daemon listening on socketPath. An empty socketPath
// selects DefaultSocket and a zero timeout DefaultDialTimeout. Dial returns
// early with ctx's error when ctx ends first; a connection that completes
// afterwards is closed.
func Dial(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	conn := libvirt.NewWithDialer(dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	))

	done := make(chan error, 1)
	go func() { done <- conn.Connect() }()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)
		}
		return &Client{conn: conn}, nil
	case <-ctx.Done():
		go func() {
			if <-done == nil {
				_ = conn.Disconnect()
			}
		}()
		return nil, fmt.Errorf("connection to %s cancelled: %w", socketPath, ctx.Err())
	}
}

// Close disconnects. Closing twice is a no-op.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	conn := c.conn
	c.conn = nil
	if err := conn.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}
	return nil
}

// Ping makes a cheap RPC to check the connection is alive.
func (c *Client) Ping() error {
	if c.conn == nil {
		return errNotConnected
	}
	if _, err := c.conn.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}
	return nil
}

// Info queries the libvirt version, hypervisor hostname and connection URI.
func (c *Client) Info() (HostInfo, error) {
	if c.conn == nil {
		return HostInfo{}, errNotConnected
	}

	version, err := c.conn.ConnectGetLibVersion()
	if err != nil {
		return HostInfo{}, fmt.Errorf("failed to get libvirt version: %w", err)
	}
	hostname, err := c.conn.ConnectGetHostname()
	if err != nil {
		return HostInfo{}, fmt.Errorf("failed to get hostname: %w", err)
	}
	uri, err := c.conn.ConnectGetUri()
	if err != nil {
		return HostInfo{}, fmt.Errorf("failed to get connection URI: %w", err)
	}

	return HostInfo{Version: FormatVersion(version), Hostname: hostname, URI: uri}, nil
}

// FormatVersion renders libvirt's packed version number (major*1e6 +
// minor*1e3 + patch) as "major.minor.patch".
//
// Example: 8006000 → 8.6.0
func FormatVersion(v uint64) string {
	return fmt.Sprintf("%d.%d.%d", v/1000000, (v%1000000)/1000, v%1000)
}
