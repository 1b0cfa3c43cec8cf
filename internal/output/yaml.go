package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/hearth/internal/backup"
	"github.com/jbweber/hearth/internal/stand"
)

// YAMLFormatter formats results as a YAML sequence.
type YAMLFormatter struct{}

// FormatReport formats backup records as YAML.
func (f *YAMLFormatter) FormatReport(report *backup.Report) (string, error) {
	return marshalYAML(recordDocs(report))
}

// FormatInstallations formats installations as YAML.
func (f *YAMLFormatter) FormatInstallations(installations []stand.Installation) (string, error) {
	if installations == nil {
		installations = []stand.Installation{}
	}
	return marshalYAML(installations)
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return string(data), nil
}
