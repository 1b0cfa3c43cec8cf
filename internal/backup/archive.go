package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ArchiveSuffix is appended to a run directory when it is compressed.
const ArchiveSuffix = ".tar.gz"

// Compress packs dir into <dir>.tar.gz next to it and removes dir. Entries
// are stored under dir's base name. On failure the partial archive is
// removed and dir is left in place.
func Compress(dir string) (archive string, err error) {
	dir = filepath.Clean(dir)
	archive = dir + ArchiveSuffix

	out, err := os.OpenFile(archive, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(archive)
		}
	}()

	gzipWriter := gzip.NewWriter(out)
	tarWriter := tar.NewWriter(gzipWriter)

	walkErr := addTree(tarWriter, dir)

	if err := tarWriter.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := gzipWriter.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := out.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if walkErr != nil {
		return "", fmt.Errorf("failed to compress %s: %w", dir, walkErr)
	}

	if err := os.RemoveAll(dir); err != nil {
		return archive, fmt.Errorf("failed to remove %s after compressing: %w", dir, err)
	}
	return archive, nil
}

func addTree(tw *tar.Writer, dir string) error {
	parent := filepath.Dir(dir)

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tw, f)
		return err
	})
}
