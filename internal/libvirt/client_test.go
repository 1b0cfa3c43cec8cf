package libvirt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dialLocal connects to the system daemon or skips the test.
func dialLocal(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := Dial(ctx, "", 0)
	if err != nil {
		t.Skipf("libvirt not available: %v", err)
	}
	t.Cleanup(func() { assert.NoError(t, c.Close()) })
	return c
}

func TestDial_Live(t *testing.T) {
	c := dialLocal(t)

	require.NoError(t, c.Ping())

	info, err := c.Info()
	require.NoError(t, err)
	assert.NotEqual(t, "0.0.0", info.Version)
	assert.NotEmpty(t, info.URI)
}

func TestDial_MissingSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "libvirt-sock")

	_, err := Dial(context.Background(), socket, 100*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), socket)
}

func TestDial_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Dial(ctx, filepath.Join(t.TempDir(), "libvirt-sock"), time.Second)
	assert.Error(t, err)
}

func TestClient_NotConnected(t *testing.T) {
	c := &Client{}

	assert.ErrorIs(t, c.Ping(), errNotConnected)
	_, err := c.Info()
	assert.ErrorIs(t, err, errNotConnected)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestFormatVersion(t *testing.T) {
	tests := map[uint64]string{
		8006000:  "8.6.0",
		10000001: "10.0.1",
		9010002:  "9.10.2",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatVersion(in), "FormatVersion(%d)", in)
	}
}
