package backup

import (
	"fmt"
	"time"
)

// TimeFormat is the timestamp layout used in reports.
const TimeFormat = "2006-01-02 15:04:05"

// Status is the outcome of one domain backup.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Columns are the report headers, in row order.
var Columns = []string{"domain", "time start", "time end", "duration (s)", "size", "status"}

// Record describes one domain backup.
type Record struct {
	Domain    string
	Start     time.Time
	End       time.Time
	Duration  time.Duration
	SizeBytes uint64
	// Size is the human-readable form of SizeBytes, or "0" for a domain
	// without disks.
	Size   string
	Status Status
}

// Seconds returns the duration rounded the way reports show it.
func (r Record) Seconds() string {
	return fmt.Sprintf("%.2f", r.Duration.Seconds())
}

// Row returns the record's report cells in Columns order.
func (r Record) Row() []string {
	return []string{
		r.Domain,
		r.Start.Format(TimeFormat),
		r.End.Format(TimeFormat),
		r.Seconds(),
		r.Size,
		string(r.Status),
	}
}

// Report is the outcome of a run. Domains whose attempt errored before any
// volume was touched have no record.
type Report struct {
	Records []Record
}

// Failed returns how many records have StatusFailed.
func (r *Report) Failed() int {
	n := 0
	for _, rec := range r.Records {
		if rec.Status == StatusFailed {
			n++
		}
	}
	return n
}
