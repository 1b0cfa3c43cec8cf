package zfs

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/hearth/internal/runner/runnertest"
)

func TestVolumeFromDiskPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/dev/zvol/pool/child", "pool/child"},
		{"/dev/zvol/tank/vms/stand-01-0", "tank/vms/stand-01-0"},
		{"/var/lib/libvirt/images/disk.qcow2", "disk.qcow2"},
		{"disk.raw", "disk.raw"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, VolumeFromDiskPath(tt.path))
		})
	}
}

func TestManager_Snapshots(t *testing.T) {
	fake := runnertest.New()
	m := NewManager(fake)
	ctx := context.Background()

	require.NoError(t, m.CreateSnapshot(ctx, "pool/vm", "backup"))
	require.NoError(t, m.DestroySnapshot(ctx, "pool/vm", "backup"))

	assert.True(t, fake.Called("zfs snapshot pool/vm@backup"))
	assert.True(t, fake.Called("zfs destroy pool/vm@backup"))
}

func TestManager_CreateSnapshotFailure(t *testing.T) {
	fake := runnertest.New().Fail("zfs snapshot pool/vm@backup", "dataset does not exist")
	m := NewManager(fake)

	err := m.CreateSnapshot(context.Background(), "pool/vm", "backup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool/vm@backup")
}

func TestManager_UsedBytes(t *testing.T) {
	fake := runnertest.New().
		On("zfs list -Hp -o used pool/vm", "1073741824\n", nil).
		On("zfs list -Hp -o used pool/bad", "garbage\n", nil)
	m := NewManager(fake)
	ctx := context.Background()

	used, err := m.UsedBytes(ctx, "pool/vm")
	require.NoError(t, err)
	assert.Equal(t, uint64(1073741824), used)

	_, err = m.UsedBytes(ctx, "pool/bad")
	assert.Error(t, err)
}

func TestManager_Send(t *testing.T) {
	fake := runnertest.New().On("zfs send pool/vm@backup", "STREAM", nil)
	m := NewManager(fake)

	var buf bytes.Buffer
	require.NoError(t, m.Send(context.Background(), &buf, "pool/vm", "backup"))
	assert.Equal(t, "STREAM", buf.String())
}
