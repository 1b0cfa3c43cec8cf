package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/hearth/internal/cloudinit"
	"github.com/jbweber/hearth/internal/config"
	"github.com/jbweber/hearth/internal/naming"
	"github.com/jbweber/hearth/internal/stand"
)

// Launch modes of "hearth bootstrap".
const (
	launchElement = "element"
	launchCore    = "core"
	launchCustom  = "custom"
)

// coreCIDR is the network used in core launch mode.
const coreCIDR = "10.20.0.0/22"

var (
	bootstrapImage       string
	bootstrapInplace     bool
	bootstrapCores       uint
	bootstrapMemory      uint
	bootstrapName        string
	bootstrapMode        string
	bootstrapCIDR        string
	bootstrapBridge      string
	bootstrapDHCP        bool
	bootstrapForce       bool
	bootstrapNoWait      bool
	bootstrapWaitTimeout time.Duration
	devKeysPath          string
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Launch a bootstrap installation",
	Long: `Launch a single bootstrap domain from an image.

Launch modes adjust the network:
  element  NAT network with DHCP (default)
  core     NAT network 10.20.0.0/22 without DHCP
  custom   use --cidr, --bridge and --dhcp as given

Unless --bridge is given, a NAT network named <name>-net is created for
the installation. Developer SSH keys from --dev-keys or $HEARTH_DEV_KEYS
are written to a config drive.

Example:
  hearth bootstrap -i ./core.raw --name lab --cores 4 --memory 8192`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if bootstrapImage == "" {
			return fmt.Errorf("no image path specified")
		}
		if _, err := os.Stat(bootstrapImage); err != nil {
			return fmt.Errorf("image not found: %w", err)
		}

		network, err := bootstrapNetwork(bootstrapName, bootstrapMode, bootstrapCIDR, bootstrapBridge, bootstrapDHCP)
		if err != nil {
			return err
		}
		logger.Info().Str("mode", bootstrapMode).Msg("starting bootstrap")

		keys, err := cloudinit.LoadDeveloperKeys(devKeysPath)
		if err != nil {
			return err
		}

		s := config.SingleBootstrapStand(bootstrapName, bootstrapImage, bootstrapInplace, network, bootstrapCores, bootstrapMemory)

		r := newRunner()
		p := stand.New(newVirsh(r), newDisks(r),
			stand.WithLogger(logger),
			stand.WithSSHKeys(keys),
		)

		ctx := cmd.Context()
		if err := p.Up(ctx, s, bootstrapForce); err != nil {
			if errors.Is(err, stand.ErrStandExists) {
				logger.Warn().Msg("installation is already running, use --force to rerun it")
				return nil
			}
			return err
		}
		logger.Info().Str("name", bootstrapName).Msg("launched installation")

		if bootstrapNoWait {
			return nil
		}
		if !network.DHCP || !network.IsManaged() {
			logger.Warn().Msg("unable to detect IP address without DHCP on a hearth network")
			return nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, bootstrapWaitTimeout)
		defer cancel()

		fmt.Printf("Waiting for installation %s...\n", bootstrapName)
		ip, err := p.WaitForIP(waitCtx, naming.StandBootstrapName(bootstrapName))
		if err != nil {
			return err
		}

		fmt.Printf("The installation %s is ready at:\nssh ubuntu@%s\n", bootstrapName, ip)
		return nil
	},
}

func init() {
	bootstrapCmd.Flags().StringVarP(&bootstrapImage, "image-path", "i", "", "Path to the bootstrap image (required)")
	bootstrapCmd.Flags().BoolVar(&bootstrapInplace, "inplace", false, "Boot the image where it is instead of copying it into the pool")
	bootstrapCmd.Flags().UintVar(&bootstrapCores, "cores", 2, "Number of cores for the bootstrap domain")
	bootstrapCmd.Flags().UintVar(&bootstrapMemory, "memory", 4096, "Memory in MiB for the bootstrap domain")
	bootstrapCmd.Flags().StringVar(&bootstrapName, "name", config.DefaultStandName, "Name of the installation")
	bootstrapCmd.Flags().StringVarP(&bootstrapMode, "launch-mode", "m", launchElement, "Launch mode (element, core, custom)")
	bootstrapCmd.Flags().StringVar(&bootstrapCIDR, "cidr", "192.168.4.0/22", "Network CIDR")
	bootstrapCmd.Flags().StringVar(&bootstrapBridge, "bridge", "", "Existing linux bridge to attach to; a NAT network is created if not set")
	bootstrapCmd.Flags().BoolVar(&bootstrapDHCP, "dhcp", false, "Enable DHCP on the created network")
	bootstrapCmd.Flags().BoolVarP(&bootstrapForce, "force", "f", false, "Destroy a running installation of the same name first")
	bootstrapCmd.Flags().BoolVar(&bootstrapNoWait, "no-wait", false, "Do not wait for the installation to get an address")
	bootstrapCmd.Flags().DurationVar(&bootstrapWaitTimeout, "wait-timeout", 10*time.Minute, "How long to wait for an address")
	bootstrapCmd.Flags().StringVar(&devKeysPath, "dev-keys", "", "File with developer SSH public keys")
}

// bootstrapNetwork resolves the network of a bootstrap installation from
// the launch mode. Element and core modes ignore the bridge.
func bootstrapNetwork(name, mode, cidr, bridge string, dhcp bool) (config.Network, error) {
	switch mode {
	case launchElement:
		bridge, dhcp = "", true
	case launchCore:
		bridge, dhcp, cidr = "", false, coreCIDR
	case launchCustom:
	default:
		return config.Network{}, fmt.Errorf("unsupported launch mode: %s (supported: %s, %s, %s)",
			mode, launchElement, launchCore, launchCustom)
	}

	network := config.Network{
		Name: naming.StandNetName(name),
		CIDR: cidr,
		DHCP: dhcp,
	}
	if bridge != "" {
		managed := false
		network.Name = bridge
		network.Managed = &managed
	}
	return network, nil
}
