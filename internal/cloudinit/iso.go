package cloudinit

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/kdomanski/iso9660"
)

// VolumeLabel is the label NoCloud looks for.
const VolumeLabel = "CIDATA"

// document is one file in the root of the config drive.
type document struct {
	name   string
	render func(Config) (string, error)
}

var documents = []document{
	{"user-data", GenerateUserData},
	{"meta-data", GenerateMetaData},
}

// GenerateISO renders cfg into an in-memory NoCloud ISO image holding
// user-data and meta-data.
func GenerateISO(cfg Config) ([]byte, error) {
	w, err := iso9660.NewWriter()
	if err != nil {
		return nil, fmt.Errorf("failed to create ISO writer: %w", err)
	}
	// Cleanup only drops the writer's staging directory
	defer func() { _ = w.Cleanup() }()

	for _, doc := range documents {
		content, err := doc.render(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", doc.name, err)
		}
		if err := w.AddFile(strings.NewReader(content), doc.name); err != nil {
			return nil, fmt.Errorf("failed to add %s to config drive: %w", doc.name, err)
		}
	}

	var image bytes.Buffer
	if err := w.WriteTo(&image, VolumeLabel); err != nil {
		return nil, fmt.Errorf("failed to write config drive: %w", err)
	}
	return image.Bytes(), nil
}
