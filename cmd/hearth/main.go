package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jbweber/hearth/internal/config"
	"github.com/jbweber/hearth/internal/disk"
	"github.com/jbweber/hearth/internal/libvirt"
	"github.com/jbweber/hearth/internal/logging"
	"github.com/jbweber/hearth/internal/output"
	"github.com/jbweber/hearth/internal/runner"
	"github.com/jbweber/hearth/internal/virsh"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
)

// Global flags
var (
	configFile   string
	outputFormat string
	noHeaders    bool
)

// Resolved in PersistentPreRunE
var (
	settings *config.Settings
	logger   = zerolog.Nop()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hearth",
	Short: "Provision and back up libvirt development stands",
	Long: `hearth manages development stands on a libvirt hypervisor backed by
ZFS volumes.

It launches bootstrap installations and multi-node stands, backs up
domains through ZFS snapshots, and authenticates against an IAM
endpoint. All hypervisor work is delegated to virsh, zfs and qemu-img.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		if err := v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
			return err
		}
		if err := v.BindPFlag("log.format", cmd.Root().PersistentFlags().Lookup("log-format")); err != nil {
			return err
		}

		s, err := config.Load(v, configFile)
		if err != nil {
			return err
		}
		settings = s

		logger = logging.New(logging.Options{
			Level: s.Log.Level,
			JSON:  s.Log.Format == "json",
		})

		if f := cmd.Flags().Lookup("output"); f != nil {
			return output.ValidateFormat(f.Value.String())
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: hearth.yaml in ., ~/.config/hearth, /etc/hearth)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(testConnCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(standCmd)
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(sshCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(authCmd)
}

// addOutputFlags registers -o/--output and --no-headers on commands that
// print reports or listings.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, yaml, json)")
	cmd.Flags().BoolVar(&noHeaders, "no-headers", false, "Omit table headers")
}

func newFormatter() (output.Formatter, error) {
	return output.NewFormatter(output.Options{
		Format:    output.Format(outputFormat),
		NoHeaders: noHeaders,
	})
}

func newRunner() *runner.Exec {
	return runner.New(runner.WithSudo(settings.Libvirt.Sudo), runner.WithLogger(logger))
}

func newVirsh(r runner.Runner) *virsh.Client {
	return virsh.New(r, logger, virsh.WithPoolPath(settings.Libvirt.PoolPath))
}

func newDisks(r runner.Runner) *disk.Manager {
	return disk.NewManager(r, settings.Libvirt.PoolPath, logger)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hearth %s (commit: %s)\n", version, commit)
	},
}

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test connection to libvirt daemon",
	Long:  `Test the connection to the libvirt daemon and display version information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Testing connection to libvirt...")

		client, err := libvirt.Dial(cmd.Context(), settings.Libvirt.Socket, libvirt.DefaultDialTimeout)
		if err != nil {
			return fmt.Errorf("failed to connect to libvirt: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close libvirt connection")
			}
		}()

		fmt.Println("✓ Connected to libvirt daemon")

		if err := client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		info, err := client.Info()
		if err != nil {
			return err
		}

		fmt.Printf("✓ Libvirt version: %s\n", info.Version)
		fmt.Printf("✓ Hypervisor hostname: %s\n", info.Hostname)
		fmt.Printf("✓ Connection URI: %s\n", info.URI)

		fmt.Println("\nConnection test successful!")
		return nil
	},
}
