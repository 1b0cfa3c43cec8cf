package disk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// Format is a disk image format understood by qemu.
type Format string

const (
	FormatQCOW2 Format = "qcow2"
	FormatRaw   Format = "raw"
)

var (
	// qcow2Magic is "QFI" followed by 0xfb at offset 0.
	// Reference: https://www.qemu.org/docs/master/interop/qcow2.html
	qcow2Magic = []byte{0x51, 0x46, 0x49, 0xfb}

	// mbrSignature is the boot sector signature at offset 510. GPT disks
	// carry it too in their protective MBR.
	mbrSignature = []byte{0x55, 0xaa}
)

// DetectImageFormat reads the magic bytes of an image.
//
//   - QCOW2: "QFI\xfb" at offset 0
//   - RAW: MBR signature 0x55 0xaa at offset 510
//
// Anything else is rejected so that arbitrary files are not booted.
func DetectImageFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return "", fmt.Errorf("file too small to be valid image (< 4 bytes): %w", err)
	}
	if bytes.Equal(magic, qcow2Magic) {
		return FormatQCOW2, nil
	}

	if _, err := f.Seek(510, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to seek to boot sector signature: %w", err)
	}
	sig := make([]byte, 2)
	if _, err := io.ReadFull(f, sig); err != nil {
		return "", fmt.Errorf("file too small for boot sector (< 512 bytes): %w", err)
	}
	if bytes.Equal(sig, mbrSignature) {
		return FormatRaw, nil
	}

	return "", fmt.Errorf("unsupported or invalid image %s: not qcow2 and missing boot sector signature", path)
}

// FormatFromName guesses the format from the file extension. Images that
// are not named *.qcow2 are treated as raw.
func FormatFromName(path string) Format {
	if strings.HasSuffix(path, ".qcow2") {
		return FormatQCOW2
	}
	return FormatRaw
}

// ImageFormat detects the format of an image, falling back to its name when
// the file cannot be opened by the current user (root-owned pool images).
func ImageFormat(path string) (Format, error) {
	format, err := DetectImageFormat(path)
	if err == nil {
		return format, nil
	}
	if errors.Is(err, fs.ErrPermission) {
		return FormatFromName(path), nil
	}
	return "", err
}
