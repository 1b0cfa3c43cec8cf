// Package output renders backup reports and installation listings as
// tables, YAML or JSON.
package output

import (
	"fmt"
	"math"

	"github.com/jbweber/hearth/internal/backup"
	"github.com/jbweber/hearth/internal/stand"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

// Formatter formats hearth results for output.
type Formatter interface {
	// FormatReport formats the records of a backup run.
	FormatReport(report *backup.Report) (string, error)

	// FormatInstallations formats a list of installations.
	FormatInstallations(installations []stand.Installation) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable, "":
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}

// recordDoc is the serialized shape of a backup record.
type recordDoc struct {
	Domain          string  `json:"domain" yaml:"domain"`
	TimeStart       string  `json:"time_start" yaml:"time_start"`
	TimeEnd         string  `json:"time_end" yaml:"time_end"`
	DurationSeconds float64 `json:"duration_seconds" yaml:"duration_seconds"`
	SizeBytes       uint64  `json:"size_bytes" yaml:"size_bytes"`
	Size            string  `json:"size" yaml:"size"`
	Status          string  `json:"status" yaml:"status"`
}

func recordDocs(report *backup.Report) []recordDoc {
	docs := make([]recordDoc, 0, len(report.Records))
	for _, r := range report.Records {
		docs = append(docs, recordDoc{
			Domain:          r.Domain,
			TimeStart:       r.Start.Format(backup.TimeFormat),
			TimeEnd:         r.End.Format(backup.TimeFormat),
			DurationSeconds: math.Round(r.Duration.Seconds()*100) / 100,
			SizeBytes:       r.SizeBytes,
			Size:            r.Size,
			Status:          string(r.Status),
		})
	}
	return docs
}
