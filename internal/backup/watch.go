package backup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/jbweber/hearth/internal/disk"
)

// ErrLowSpace is the cancellation cause set by WatchFreeSpace.
var ErrLowSpace = errors.New("backup destination ran low on free space")

// DefaultWatchInterval is how often WatchFreeSpace polls.
const DefaultWatchInterval = 10 * time.Second

var freeBytes = disk.FreeBytes

// WatchFreeSpace returns a context that is cancelled with ErrLowSpace as
// soon as the filesystem holding dir has less than minBytes available.
// Calling stop ends the watch and waits for the poller to exit. Errors
// reading free space are logged and the watch keeps going.
func WatchFreeSpace(ctx context.Context, dir string, minBytes uint64, interval time.Duration, logger zerolog.Logger) (watched context.Context, stop func()) {
	watched, cancel := context.WithCancelCause(ctx)
	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-watched.Done():
				return
			case <-ticker.C:
				free, err := freeBytes(dir)
				if err != nil {
					logger.Warn().Err(err).Str("dir", dir).Msg("could not read free space")
					continue
				}
				if free < minBytes {
					logger.Error().
						Str("dir", dir).
						Str("free", humanize.IBytes(free)).
						Str("min", humanize.IBytes(minBytes)).
						Msg("free space below minimum, cancelling backup")
					cancel(ErrLowSpace)
					return
				}
			}
		}
	}()

	var once sync.Once
	return watched, func() {
		once.Do(func() {
			close(done)
			cancel(nil)
			<-finished
		})
	}
}
