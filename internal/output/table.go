package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/jbweber/hearth/internal/backup"
	"github.com/jbweber/hearth/internal/stand"
)

// TableFormatter formats results as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatReport formats backup records as a table with one row per domain.
func (f *TableFormatter) FormatReport(report *backup.Report) (string, error) {
	if len(report.Records) == 0 {
		return "No domains backed up\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, strings.ToUpper(strings.Join(backup.Columns, "\t")))
	}
	for _, r := range report.Records {
		_, _ = fmt.Fprintln(w, strings.Join(r.Row(), "\t"))
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatInstallations formats installations as a name/IP table.
func (f *TableFormatter) FormatInstallations(installations []stand.Installation) (string, error) {
	if len(installations) == 0 {
		return "No installations found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tDOMAIN\tIP")
	}
	for _, inst := range installations {
		ip := inst.IP
		if ip == "" {
			ip = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", inst.Name, inst.Domain, ip)
	}

	_ = w.Flush()
	return buf.String(), nil
}
