package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// RunDirLayout names a run directory after its start time.
const RunDirLayout = "2006-01-02-15-04-05"

var runNamePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}`)

// RunDirName returns the directory name for a run started at t.
func RunDirName(t time.Time) string {
	return t.Format(RunDirLayout)
}

// CreateRunDir creates <root>/<timestamp> and returns its path.
func CreateRunDir(root string, t time.Time) (string, error) {
	dir := filepath.Join(root, RunDirName(t))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create backup directory %s: %w", dir, err)
	}
	return dir, nil
}

type rotationEntry struct {
	name  string
	ctime time.Time
}

// Rotate keeps the newest maxCount run directories or archives in root and
// removes the rest, oldest first by change time. Entries whose name does
// not start with a run timestamp are never touched. A maxCount of zero
// disables rotation. The removed paths are returned.
func Rotate(root string, maxCount int, logger zerolog.Logger) ([]string, error) {
	if maxCount <= 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	var runs []rotationEntry
	for _, entry := range entries {
		if !runNamePattern.MatchString(entry.Name()) {
			continue
		}
		var st unix.Stat_t
		if err := unix.Lstat(filepath.Join(root, entry.Name()), &st); err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		runs = append(runs, rotationEntry{
			name:  entry.Name(),
			ctime: time.Unix(st.Ctim.Unix()),
		})
	}

	if len(runs) <= maxCount {
		return nil, nil
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].ctime.Equal(runs[j].ctime) {
			return runs[i].name < runs[j].name
		}
		return runs[i].ctime.Before(runs[j].ctime)
	})

	var removed []string
	for _, run := range runs[:len(runs)-maxCount] {
		path := filepath.Join(root, run.name)
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		logger.Info().Str("path", path).Msg("rotated out old backup")
		removed = append(removed, path)
	}
	return removed, nil
}
