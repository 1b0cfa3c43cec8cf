package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jbweber/hearth/internal/backup"
	"github.com/jbweber/hearth/internal/disk"
	"github.com/jbweber/hearth/internal/virsh"
	"github.com/jbweber/hearth/internal/zfs"
)

// passphraseEnv supplies the encryption passphrase to unattended runs.
const passphraseEnv = "HEARTH_BACKUP_PASSPHRASE"

var (
	backupDomains    []string
	backupExclude    []string
	backupDir        string
	backupSnapshot   string
	backupRotate     int
	backupMinFreeGB  uint64
	backupCompress   bool
	backupEncrypt    bool
	backupRecipients []string
	backupS3         bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up domains through ZFS snapshots",
	Long: `Back up libvirt domains whose disks are ZFS volumes.

For every selected domain the descriptor is saved, each volume is
snapshotted and streamed with zfs send, and the snapshots are removed
again. Results are written to a timestamped directory under --dir, or
uploaded to S3 when an S3 bucket is configured.

Without --domain every domain on the host is backed up. --exclude takes
glob patterns.

Examples:
  hearth backup --dir /backups --rotate 7 --compress
  hearth backup -d vm1 -d vm2 --encrypt
  hearth backup --exclude 'stand-*' --recipient age1...`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		flags := cmd.Flags()

		if !flags.Changed("dir") {
			backupDir = settings.Backup.Dir
		}
		if !flags.Changed("snapshot") {
			backupSnapshot = settings.Backup.Snapshot
		}
		if !flags.Changed("rotate") {
			backupRotate = settings.Backup.Rotate
		}
		if !flags.Changed("min-free-gb") {
			backupMinFreeGB = settings.Backup.MinFreeGB
		}
		useS3 := backupS3 || settings.Backup.S3.Bucket != ""
		if useS3 && backupCompress {
			return fmt.Errorf("--compress cannot be used with S3 uploads")
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}

		enc, err := backupEncryption()
		if err != nil {
			return err
		}

		r := newRunner()
		domains := newVirsh(r)
		volumes := zfs.NewManager(r)

		all, err := domains.ListDomains(ctx, virsh.ListOptions{})
		if err != nil {
			return err
		}
		selected, err := backup.SelectDomains(all, backupDomains, backupExclude, true)
		if err != nil {
			return err
		}
		if len(selected) == 0 {
			logger.Warn().Msg("no domains to back up")
			return nil
		}

		start := time.Now()
		var (
			exporter backup.Exporter
			root     string
		)
		stopWatch := func() {}
		if useS3 {
			cfg := backup.S3Config(settings.Backup.S3)
			exporter, err = backup.NewS3Exporter(backup.NewS3Client(cfg), cfg, volumes, backupSnapshot, "", logger)
			if err != nil {
				return err
			}
			root = backup.RunDirName(start)
		} else {
			if err := os.MkdirAll(backupDir, 0o750); err != nil {
				return fmt.Errorf("failed to create backup directory: %w", err)
			}
			minFree := backupMinFreeGB * humanize.GiByte
			if err := disk.CheckFreeSpace(backupDir, minFree); err != nil {
				return err
			}
			if root, err = backup.CreateRunDir(backupDir, start); err != nil {
				return err
			}
			exporter = backup.NewLocalExporter(volumes, backupSnapshot, logger)
			ctx, stopWatch = backup.WatchFreeSpace(ctx, backupDir, minFree, backup.DefaultWatchInterval, logger)
		}

		orchestrator := backup.New(domains, volumes, exporter,
			backup.WithLogger(logger),
			backup.WithSnapshotName(backupSnapshot),
		)
		report := orchestrator.Run(ctx, selected, root, enc)
		stopWatch()

		if cause := context.Cause(ctx); errors.Is(cause, backup.ErrLowSpace) {
			if !useS3 {
				if err := os.RemoveAll(root); err != nil {
					logger.Error().Err(err).Str("dir", root).Msg("failed to remove incomplete backup")
				}
			}
			return cause
		}

		result, err := formatter.FormatReport(report)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Printf("Summary: %s\n", root)
		fmt.Print(result)

		if !useS3 {
			if err := finishLocalRun(root); err != nil {
				return err
			}
		}

		if failed := report.Failed(); failed > 0 || len(report.Records) < len(selected) {
			return fmt.Errorf("%d of %d domain backups failed", len(selected)-len(report.Records)+failed, len(selected))
		}
		return nil
	},
}

func init() {
	backupCmd.Flags().StringSliceVarP(&backupDomains, "domain", "d", nil, "Domain to back up (repeatable, default: all)")
	backupCmd.Flags().StringSliceVar(&backupExclude, "exclude", nil, "Glob of domains to skip (repeatable)")
	backupCmd.Flags().StringVar(&backupDir, "dir", "", "Backup root directory (default from config)")
	backupCmd.Flags().StringVar(&backupSnapshot, "snapshot", zfs.DefaultSnapshotName, "Snapshot name")
	backupCmd.Flags().IntVar(&backupRotate, "rotate", 0, "Keep only this many backups in --dir (0 keeps all)")
	backupCmd.Flags().Uint64Var(&backupMinFreeGB, "min-free-gb", 50, "Minimum free space in GiB on the backup filesystem")
	backupCmd.Flags().BoolVar(&backupCompress, "compress", false, "Pack the run directory into a tar.gz")
	backupCmd.Flags().BoolVar(&backupEncrypt, "encrypt", false, "Encrypt artifacts with a passphrase ($"+passphraseEnv+" or prompt)")
	backupCmd.Flags().StringSliceVar(&backupRecipients, "recipient", nil, "Encrypt artifacts to an age recipient (repeatable)")
	backupCmd.Flags().BoolVar(&backupS3, "s3", false, "Upload to the configured S3 bucket")
	addOutputFlags(backupCmd)
}

// backupEncryption builds the encryption requested by flags, or nil.
func backupEncryption() (*backup.Encryption, error) {
	switch {
	case backupEncrypt && len(backupRecipients) > 0:
		return nil, fmt.Errorf("--encrypt and --recipient are mutually exclusive")
	case len(backupRecipients) > 0:
		return backup.NewRecipientEncryption(backupRecipients)
	case backupEncrypt:
		passphrase := os.Getenv(passphraseEnv)
		if passphrase == "" {
			var err error
			if passphrase, err = promptNewSecret("Passphrase: "); err != nil {
				return nil, err
			}
		}
		return backup.NewPassphraseEncryption(passphrase)
	default:
		return nil, nil
	}
}

// finishLocalRun compresses and rotates a finished local run.
func finishLocalRun(root string) error {
	if backupCompress {
		fmt.Printf("Compressing %s\n", root)
		archive, err := backup.Compress(root)
		if err != nil {
			return fmt.Errorf("compression of %s failed: %w", root, err)
		}
		fmt.Printf("Compressed to %s\n", archive)
	}

	removed, err := backup.Rotate(backupDir, backupRotate, logger)
	if err != nil {
		return err
	}
	for _, path := range removed {
		fmt.Printf("The backup %s was rotated\n", path)
	}
	return nil
}
