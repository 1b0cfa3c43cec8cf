package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/jbweber/hearth/internal/cloudinit"
	"github.com/jbweber/hearth/internal/config"
	"github.com/jbweber/hearth/internal/naming"
	"github.com/jbweber/hearth/internal/stand"
)

var (
	standImage string
	standForce bool
	sshIP      string
	sshUser    string
)

func newProvisioner(keys []string) *stand.Provisioner {
	r := newRunner()
	return stand.New(newVirsh(r), newDisks(r),
		stand.WithLogger(logger),
		stand.WithSSHKeys(keys),
	)
}

// Stand management commands
var standCmd = &cobra.Command{
	Use:   "stand",
	Short: "Manage multi-node stands",
	Long: `Manage stands described in YAML: a network with bootstrap and
baremetal domains.

Example stand.yaml:
  name: lab
  network:
    name: lab-net
    cidr: 10.20.0.0/22
    dhcp: true
  bootstraps:
    - image: /images/core.raw
      cores: 4
      memory: 8192
  baremetals:
    - disks: [20]`,
}

func init() {
	standCmd.AddCommand(standUpCmd)
	standCmd.AddCommand(standDownCmd)

	standUpCmd.Flags().StringVarP(&standImage, "image-path", "i", "", "Image for every bootstrap, overriding the file")
	standUpCmd.Flags().BoolVarP(&standForce, "force", "f", false, "Destroy an existing stand of the same name first")
	standUpCmd.Flags().StringVar(&devKeysPath, "dev-keys", "", "File with developer SSH public keys")

	addOutputFlags(psCmd)

	sshCmd.Flags().StringVarP(&sshIP, "ip-address", "i", "", "Address to connect to instead of the running installation")
	sshCmd.Flags().StringVarP(&sshUser, "username", "u", "ubuntu", "Login user")
}

var standUpCmd = &cobra.Command{
	Use:   "up <stand-file>",
	Short: "Create a stand from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read stand file: %w", err)
		}
		s, err := config.DecodeStand(data)
		if err != nil {
			return err
		}
		if standImage != "" {
			s.SetBootstrapImage(standImage)
		}

		keys, err := cloudinit.LoadDeveloperKeys(devKeysPath)
		if err != nil {
			return err
		}

		if err := newProvisioner(keys).Up(cmd.Context(), s, standForce); err != nil {
			if errors.Is(err, stand.ErrStandExists) {
				return fmt.Errorf("%w, use --force to recreate it", err)
			}
			return err
		}

		fmt.Printf("Stand %s created\n", s.Name)
		return nil
	},
}

var standDownCmd = &cobra.Command{
	Use:   "down <name|stand-file>",
	Short: "Destroy a stand",
	Long: `Destroy every domain of a stand and its network.

The argument is either a stand name, whose network is then assumed to be
<name>-net, or the YAML file the stand was created from.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, network, err := standTarget(args[0])
		if err != nil {
			return err
		}

		found, err := newProvisioner(nil).Down(cmd.Context(), name, network)
		if err != nil {
			return fmt.Errorf("failed to destroy stand %s: %w", name, err)
		}
		if !found {
			logger.Warn().Str("stand", name).Msg("stand not found")
			return nil
		}

		fmt.Printf("Stand %s destroyed\n", name)
		return nil
	},
}

// standTarget resolves a stand name and the network to destroy with it
// from either a stand name or a stand file.
func standTarget(arg string) (name, network string, err error) {
	ext := filepath.Ext(arg)
	if ext != ".yaml" && ext != ".yml" {
		return arg, naming.StandNetName(arg), nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return "", "", fmt.Errorf("failed to read stand file: %w", err)
	}
	s, err := config.DecodeStand(data)
	if err != nil {
		return "", "", err
	}
	if s.Network.IsManaged() {
		network = s.Network.Name
	}
	return s.Name, network, nil
}

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List running installations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		formatter, err := newFormatter()
		if err != nil {
			return err
		}

		installations, err := newProvisioner(nil).List(cmd.Context())
		if err != nil {
			return err
		}

		result, err := formatter.FormatInstallations(installations)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete an installation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		found, err := newProvisioner(nil).Down(cmd.Context(), name, naming.StandNetName(name))
		if err != nil {
			return fmt.Errorf("failed to delete installation %s: %w", name, err)
		}
		if !found {
			logger.Warn().Str("name", name).Msg("installation not found")
			return nil
		}

		fmt.Printf("Installation %s deleted\n", name)
		return nil
	},
}

var sshCmd = &cobra.Command{
	Use:   "ssh",
	Short: "Connect to the running installation over SSH",
	Long: `Open an SSH session to the running installation.

Without --ip-address the address of the only running installation is
used. With several installations running, pick one with --ip-address.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ip := sshIP
		if ip == "" {
			installations, err := newProvisioner(nil).List(cmd.Context())
			if err != nil {
				return err
			}

			installation, err := pickInstallation(installations)
			if err != nil {
				return err
			}
			if installation == nil {
				fmt.Println("No installation found")
				return nil
			}
			if installation.IP == "" {
				return fmt.Errorf("installation %s has no address yet", installation.Name)
			}
			ip = installation.IP
		}

		return execSSH(sshUser, ip)
	},
}

// pickInstallation returns the only installation, nil when there is none
// and an error when the choice is ambiguous.
func pickInstallation(installations []stand.Installation) (*stand.Installation, error) {
	switch len(installations) {
	case 0:
		return nil, nil
	case 1:
		return &installations[0], nil
	default:
		names := make([]string, 0, len(installations))
		for _, i := range installations {
			names = append(names, i.Name)
		}
		return nil, fmt.Errorf("multiple installations found (%s), specify one with --ip-address",
			strings.Join(names, ", "))
	}
}

// execSSH replaces the hearth process with ssh so the session owns the
// terminal.
func execSSH(user, ip string) error {
	path, err := exec.LookPath("ssh")
	if err != nil {
		return fmt.Errorf("ssh not found: %w", err)
	}

	logger.Debug().Str("user", user).Str("ip", ip).Msg("starting ssh")
	if err := unix.Exec(path, []string{"ssh", user + "@" + ip}, os.Environ()); err != nil {
		return fmt.Errorf("failed to exec ssh: %w", err)
	}
	return nil
}
