package backup

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/jbweber/hearth/internal/zfs"
)

// ErrNoDisks is logged for domains without any disk to snapshot.
var ErrNoDisks = errors.New("domain has no disks")

// DomainSource reads domain descriptors. Satisfied by *virsh.Client.
type DomainSource interface {
	DumpXML(ctx context.Context, name string) (string, error)
	DomainDisks(ctx context.Context, name string) ([]string, error)
}

// VolumeManager snapshots and sizes volumes. Satisfied by *zfs.Manager.
type VolumeManager interface {
	CreateSnapshot(ctx context.Context, volume, snapshot string) error
	DestroySnapshot(ctx context.Context, volume, snapshot string) error
	UsedBytes(ctx context.Context, volume string) (uint64, error)
}

// Orchestrator backs up domains one after another.
type Orchestrator struct {
	domains  DomainSource
	volumes  VolumeManager
	exporter Exporter
	snapshot string
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithSnapshotName overrides the snapshot name (default "backup").
func WithSnapshotName(name string) Option {
	return func(o *Orchestrator) {
		if name != "" {
			o.snapshot = name
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an Orchestrator.
func New(domains DomainSource, volumes VolumeManager, exporter Exporter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		domains:  domains,
		volumes:  volumes,
		exporter: exporter,
		snapshot: zfs.DefaultSnapshotName,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With().Str("component", "backup").Logger()
	return o
}

// Run backs up each domain into <root>/<domain>.
//
// A domain whose descriptor cannot be read or exported is logged and left
// out of the report. Every other domain gets a record. Run stops early only
// when ctx is done.
func (o *Orchestrator) Run(ctx context.Context, domains []string, root string, enc *Encryption) *Report {
	report := &Report{}

	for _, domain := range domains {
		if err := ctx.Err(); err != nil {
			o.logger.Warn().Err(err).Str("domain", domain).Msg("backup interrupted, skipping remaining domains")
			break
		}

		record, err := o.BackupDomain(ctx, domain, root, enc)
		if err != nil {
			o.logger.Error().Err(err).Str("domain", domain).Msg("domain backup aborted")
			continue
		}
		report.Records = append(report.Records, record)
	}

	return report
}

// BackupDomain backs up a single domain into <root>/<domain>.
//
// An error is returned only when the descriptor or disk list could not be
// obtained or exported; failures past that point are reported through the
// record status. Snapshots taken here are always destroyed before return.
func (o *Orchestrator) BackupDomain(ctx context.Context, domain, root string, enc *Encryption) (Record, error) {
	logger := o.logger.With().Str("domain", domain).Logger()
	dest := filepath.Join(root, domain)

	record := Record{Domain: domain, Start: o.now(), Status: StatusFailed}
	logger.Info().Str("dest", dest).Msg("starting backup")

	spec, err := o.domains.DumpXML(ctx, domain)
	if err != nil {
		return Record{}, err
	}
	if err := o.exporter.ExportSpec(ctx, spec, dest, enc); err != nil {
		return Record{}, fmt.Errorf("failed to export descriptor of %s: %w", domain, err)
	}

	disks, err := o.domains.DomainDisks(ctx, domain)
	if err != nil {
		return Record{}, err
	}
	volumes := make([]string, 0, len(disks))
	for _, disk := range disks {
		volumes = append(volumes, zfs.VolumeFromDiskPath(disk))
	}

	if len(volumes) == 0 {
		logger.Error().Err(ErrNoDisks).Msg("nothing to back up")
		record.Size = "0"
		o.finish(&record)
		return record, nil
	}

	exportErr := o.snapshotAndExport(ctx, logger, volumes, dest, enc)
	if exportErr != nil {
		logger.Error().Err(exportErr).Msg("volume export failed")
	} else {
		record.Status = StatusSuccess
	}

	record.SizeBytes = o.usedBytes(ctx, logger, volumes)
	record.Size = humanize.IBytes(record.SizeBytes)
	o.finish(&record)

	logger.Info().
		Str("status", string(record.Status)).
		Str("size", record.Size).
		Str("duration", record.Seconds()).
		Msg("backup finished")
	return record, nil
}

// snapshotAndExport snapshots volumes in order, stopping at the first
// failure, exports them, and destroys every snapshot that was created.
func (o *Orchestrator) snapshotAndExport(ctx context.Context, logger zerolog.Logger, volumes []string, dest string, enc *Encryption) error {
	var snapshotted []string
	defer func() {
		o.teardown(context.WithoutCancel(ctx), logger, snapshotted)
	}()

	for _, volume := range volumes {
		if err := o.volumes.CreateSnapshot(ctx, volume, o.snapshot); err != nil {
			return err
		}
		snapshotted = append(snapshotted, volume)
		logger.Debug().Str("volume", volume).Str("snapshot", o.snapshot).Msg("snapshot created")
	}

	return o.exporter.ExportDisks(ctx, volumes, dest, enc)
}

func (o *Orchestrator) teardown(ctx context.Context, logger zerolog.Logger, volumes []string) {
	for _, volume := range volumes {
		if err := o.volumes.DestroySnapshot(ctx, volume, o.snapshot); err != nil {
			logger.Error().Err(err).Str("volume", volume).Msg("failed to destroy snapshot")
			continue
		}
		logger.Debug().Str("volume", volume).Msg("snapshot destroyed")
	}
}

func (o *Orchestrator) usedBytes(ctx context.Context, logger zerolog.Logger, volumes []string) uint64 {
	var total uint64
	for _, volume := range volumes {
		used, err := o.volumes.UsedBytes(ctx, volume)
		if err != nil {
			logger.Warn().Err(err).Str("volume", volume).Msg("could not size volume")
			continue
		}
		total += used
	}
	return total
}

func (o *Orchestrator) finish(record *Record) {
	record.End = o.now()
	record.Duration = record.End.Sub(record.Start)
}
