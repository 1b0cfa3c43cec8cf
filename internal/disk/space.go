package disk

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
)

// ErrInsufficientSpace is returned by CheckFreeSpace.
var ErrInsufficientSpace = errors.New("insufficient disk space")

// FreeBytes returns the space available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("failed to get filesystem stats for %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// CheckFreeSpace fails with ErrInsufficientSpace when the filesystem
// holding path has less than minBytes available.
func CheckFreeSpace(path string, minBytes uint64) error {
	free, err := FreeBytes(path)
	if err != nil {
		return err
	}
	if free < minBytes {
		return fmt.Errorf("%w on %s: need %s, have %s", ErrInsufficientSpace, path,
			humanize.IBytes(minBytes), humanize.IBytes(free))
	}
	return nil
}
