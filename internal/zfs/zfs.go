// Package zfs wraps the zfs command-line tool for the snapshot, size and
// send operations used by backups.
package zfs

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jbweber/hearth/internal/runner"
)

const (
	// ZvolPrefix is where ZFS exposes zvols as block devices.
	ZvolPrefix = "/dev/zvol/"

	// DefaultSnapshotName is the snapshot name used during backups.
	DefaultSnapshotName = "backup"
)

// VolumeFromDiskPath returns the ZFS volume name backing a disk path.
//
// Zvols under /dev/zvol/<pool>/<zvol> map to <pool>/<zvol>. Any other path
// falls back to its basename, which relies on the caller naming datasets
// after their disk files.
//
// Example: /dev/zvol/tank/vm-1 → tank/vm-1
func VolumeFromDiskPath(diskPath string) string {
	if strings.HasPrefix(diskPath, ZvolPrefix) {
		return strings.TrimPrefix(diskPath, ZvolPrefix)
	}
	return filepath.Base(diskPath)
}

// SnapshotRef returns the "<volume>@<snapshot>" reference.
func SnapshotRef(volume, snapshot string) string {
	return volume + "@" + snapshot
}

// Manager runs zfs commands through a Runner.
type Manager struct {
	run runner.Runner
}

// NewManager creates a Manager.
func NewManager(r runner.Runner) *Manager {
	return &Manager{run: r}
}

// CreateSnapshot creates volume@snapshot.
func (m *Manager) CreateSnapshot(ctx context.Context, volume, snapshot string) error {
	if _, err := m.run.Run(ctx, "zfs", "snapshot", SnapshotRef(volume, snapshot)); err != nil {
		return fmt.Errorf("failed to create snapshot %s: %w", SnapshotRef(volume, snapshot), err)
	}
	return nil
}

// DestroySnapshot destroys volume@snapshot.
func (m *Manager) DestroySnapshot(ctx context.Context, volume, snapshot string) error {
	if _, err := m.run.Run(ctx, "zfs", "destroy", SnapshotRef(volume, snapshot)); err != nil {
		return fmt.Errorf("failed to destroy snapshot %s: %w", SnapshotRef(volume, snapshot), err)
	}
	return nil
}

// UsedBytes returns the space used by a volume in bytes.
func (m *Manager) UsedBytes(ctx context.Context, volume string) (uint64, error) {
	out, err := m.run.Run(ctx, "zfs", "list", "-Hp", "-o", "used", volume)
	if err != nil {
		return 0, fmt.Errorf("failed to query used space of %s: %w", volume, err)
	}

	used, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected zfs list output for %s: %q", volume, strings.TrimSpace(string(out)))
	}

	return used, nil
}

// Send writes a full replication stream of volume@snapshot to w.
func (m *Manager) Send(ctx context.Context, w io.Writer, volume, snapshot string) error {
	if err := m.run.Stream(ctx, w, "zfs", "send", SnapshotRef(volume, snapshot)); err != nil {
		return fmt.Errorf("failed to send %s: %w", SnapshotRef(volume, snapshot), err)
	}
	return nil
}
