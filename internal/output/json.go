package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/hearth/internal/backup"
	"github.com/jbweber/hearth/internal/stand"
)

// JSONFormatter formats results as JSON arrays.
type JSONFormatter struct{}

// FormatReport formats backup records as a JSON array.
func (f *JSONFormatter) FormatReport(report *backup.Report) (string, error) {
	return marshalJSON(recordDocs(report))
}

// FormatInstallations formats installations as a JSON array.
func (f *JSONFormatter) FormatInstallations(installations []stand.Installation) (string, error) {
	if installations == nil {
		installations = []stand.Installation{}
	}
	return marshalJSON(installations)
}

func marshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data) + "\n", nil
}
