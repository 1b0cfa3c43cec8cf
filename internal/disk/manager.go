package disk

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jbweber/hearth/internal/runner"
)

// DefaultPoolPath is the default libvirt images directory.
const DefaultPoolPath = "/var/lib/libvirt/images"

// Manager creates and removes files in a pool directory.
type Manager struct {
	run      runner.Runner
	poolPath string
	logger   zerolog.Logger
}

// NewManager creates a Manager for poolPath. An empty poolPath selects
// DefaultPoolPath.
func NewManager(r runner.Runner, poolPath string, logger zerolog.Logger) *Manager {
	if poolPath == "" {
		poolPath = DefaultPoolPath
	}
	return &Manager{
		run:      r,
		poolPath: poolPath,
		logger:   logger.With().Str("component", "disk").Logger(),
	}
}

// PoolPath returns the pool directory.
func (m *Manager) PoolPath() string {
	return m.poolPath
}

// Path returns the absolute path of name inside the pool.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.poolPath, name)
}

// CreateQCOW2 creates an empty qcow2 image of sizeGB gigabytes in the pool
// and returns its path.
func (m *Manager) CreateQCOW2(ctx context.Context, name string, sizeGB uint) (string, error) {
	if sizeGB == 0 {
		return "", fmt.Errorf("disk size must be greater than 0")
	}

	path := m.Path(name)
	if _, err := m.run.Run(ctx, "qemu-img", "create", "-f", "qcow2", path, fmt.Sprintf("%dG", sizeGB)); err != nil {
		return "", fmt.Errorf("failed to create disk %s: %w", path, err)
	}

	m.logger.Debug().Str("path", path).Uint("size_gb", sizeGB).Msg("disk created")
	return path, nil
}

// CopyIntoPool copies src into the pool under its base name, replacing any
// existing file, and returns the new path.
func (m *Manager) CopyIntoPool(ctx context.Context, src string) (string, error) {
	return m.CopyIntoPoolAs(ctx, src, filepath.Base(src))
}

// CopyIntoPoolAs copies src into the pool as name.
func (m *Manager) CopyIntoPoolAs(ctx context.Context, src, name string) (string, error) {
	dst := m.Path(name)

	if _, err := m.run.Run(ctx, "rm", "-f", dst); err != nil {
		return "", fmt.Errorf("failed to remove %s: %w", dst, err)
	}
	if _, err := m.run.Run(ctx, "cp", src, dst); err != nil {
		return "", fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}

	m.logger.Debug().Str("src", src).Str("dst", dst).Msg("copied into pool")
	return dst, nil
}

// WriteIntoPool stores data in the pool as name. The data is staged in a
// temporary file and copied with the runner so root-owned pools work.
func (m *Manager) WriteIntoPool(ctx context.Context, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("refusing to write empty file %s", name)
	}

	tmp, err := os.CreateTemp("", "hearth-*-"+name)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	return m.CopyIntoPoolAs(ctx, tmp.Name(), name)
}

// Remove deletes paths, ignoring ones that do not exist. It stops at the
// first failure.
func (m *Manager) Remove(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		if _, err := m.run.Run(ctx, "rm", "-f", path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}
