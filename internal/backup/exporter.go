package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/jbweber/hearth/internal/zfs"
)

const (
	// SpecFileName holds the dumped domain descriptor.
	SpecFileName = "domain.xml"
	// StreamSuffix is appended to the volume basename for send streams.
	StreamSuffix = ".zfs"
)

// Exporter persists the artifacts of one domain backup.
type Exporter interface {
	// ExportSpec stores the domain descriptor under dest.
	ExportSpec(ctx context.Context, spec, dest string, enc *Encryption) error

	// ExportDisks stores a stream of every volume's backup snapshot under dest.
	ExportDisks(ctx context.Context, volumes []string, dest string, enc *Encryption) error
}

// VolumeSender streams a snapshot. Satisfied by *zfs.Manager.
type VolumeSender interface {
	Send(ctx context.Context, w io.Writer, volume, snapshot string) error
}

// StreamName returns the artifact base name for a volume.
//
// Example: tank/vms/stand-01-0 → stand-01-0.zfs
func StreamName(volume string) string {
	return filepath.Base(volume) + StreamSuffix
}

// LocalExporter writes artifacts to a local directory tree.
type LocalExporter struct {
	sender   VolumeSender
	snapshot string
	logger   zerolog.Logger
}

// NewLocalExporter creates a LocalExporter sending the given snapshot name.
func NewLocalExporter(sender VolumeSender, snapshot string, logger zerolog.Logger) *LocalExporter {
	if snapshot == "" {
		snapshot = zfs.DefaultSnapshotName
	}
	return &LocalExporter{
		sender:   sender,
		snapshot: snapshot,
		logger:   logger.With().Str("component", "local-exporter").Logger(),
	}
}

// ExportSpec implements Exporter.
func (e *LocalExporter) ExportSpec(_ context.Context, spec, dest string, enc *Encryption) error {
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	path := filepath.Join(dest, enc.Name(SpecFileName))
	return writeArtifact(path, enc, func(w io.Writer) error {
		_, err := io.WriteString(w, spec)
		return err
	})
}

// ExportDisks implements Exporter.
func (e *LocalExporter) ExportDisks(ctx context.Context, volumes []string, dest string, enc *Encryption) error {
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	for _, volume := range volumes {
		path := filepath.Join(dest, enc.Name(StreamName(volume)))
		e.logger.Info().Str("volume", volume).Str("path", path).Msg("exporting volume")

		err := writeArtifact(path, enc, func(w io.Writer) error {
			return e.sender.Send(ctx, w, volume, e.snapshot)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// writeArtifact creates path and fills it through fill, encrypting when
// enc is set. A partially written file is removed.
func writeArtifact(path string, enc *Encryption, fill func(io.Writer) error) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	return fillEncrypted(f, enc, fill)
}

func fillEncrypted(w io.Writer, enc *Encryption, fill func(io.Writer) error) error {
	wc, err := enc.Wrap(w)
	if err != nil {
		return err
	}
	if err := fill(wc); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finish encryption: %w", err)
	}
	return nil
}
