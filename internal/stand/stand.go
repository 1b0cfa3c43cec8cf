// Package stand provisions and tears down stands: a network plus the
// bootstrap and baremetal domains attached to it.
package stand

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jbweber/hearth/internal/cloudinit"
	"github.com/jbweber/hearth/internal/config"
	"github.com/jbweber/hearth/internal/disk"
	"github.com/jbweber/hearth/internal/libvirt"
	"github.com/jbweber/hearth/internal/naming"
	"github.com/jbweber/hearth/internal/virsh"
)

// DefaultPollInterval is how often WaitForIP asks for a lease.
const DefaultPollInterval = 2 * time.Second

// bootstrapMarker identifies installation domains by name.
const bootstrapMarker = "bootstrap"

// ErrStandExists is returned by Up when a stand with the same name or
// network is already present and force is not set.
var ErrStandExists = errors.New("stand already exists")

// Installation is a running bootstrap domain.
type Installation struct {
	Name   string `json:"name" yaml:"name"`
	Domain string `json:"domain" yaml:"domain"`
	IP     string `json:"ip" yaml:"ip"`
}

// Provisioner creates and destroys stands.
type Provisioner struct {
	hv           Hypervisor
	disks        Disks
	sshKeys      []string
	pollInterval time.Duration
	logger       zerolog.Logger
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provisioner) {
		p.logger = logger
	}
}

// WithSSHKeys attaches a config drive authorizing keys to every bootstrap
// domain. Without keys no config drive is created.
func WithSSHKeys(keys []string) Option {
	return func(p *Provisioner) {
		p.sshKeys = keys
	}
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provisioner) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// New creates a Provisioner.
func New(hv Hypervisor, disks Disks, opts ...Option) *Provisioner {
	p := &Provisioner{
		hv:           hv,
		disks:        disks,
		pollInterval: DefaultPollInterval,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("component", "stand").Logger()
	return p
}

// Up creates the stand's network (when managed) and all of its domains.
//
// An existing stand, found by its tag or its managed network, is an
// ErrStandExists unless force is set, in which case it is torn down first.
// If any step fails, the domains and network created so far are destroyed.
func (p *Provisioner) Up(ctx context.Context, s *config.Stand, force bool) (err error) {
	if err := s.Validate(); err != nil {
		return err
	}
	logger := p.logger.With().Str("stand", s.Name).Logger()

	existing, err := p.hv.ListDomains(ctx, virsh.ListOptions{MetaTag: naming.StandTag(s.Name)})
	if err != nil {
		return fmt.Errorf("failed to list domains: %w", err)
	}
	hasNet := false
	if s.Network.IsManaged() {
		if hasNet, err = p.hv.HasNetwork(ctx, s.Network.Name); err != nil {
			return fmt.Errorf("failed to check network %s: %w", s.Network.Name, err)
		}
	}

	if len(existing) > 0 || hasNet {
		if !force {
			return fmt.Errorf("%w: %s", ErrStandExists, s.Name)
		}
		logger.Info().Strs("domains", existing).Msg("destroying existing stand")
		if _, err := p.down(ctx, existing, managedNetwork(s, hasNet)); err != nil {
			return fmt.Errorf("failed to destroy existing stand: %w", err)
		}
	}

	var (
		createdNet     bool
		createdDomains []string
	)
	defer func() {
		if err == nil {
			return
		}
		logger.Warn().Err(err).Msg("cleaning up after failed stand creation")
		net := ""
		if createdNet {
			net = s.Network.Name
		}
		if _, cerr := p.down(context.WithoutCancel(ctx), createdDomains, net); cerr != nil {
			logger.Error().Err(cerr).Msg("cleanup incomplete")
		}
	}()

	if s.Network.IsManaged() {
		spec, err := networkSpec(s.Network)
		if err != nil {
			return err
		}
		if err := p.hv.CreateNetwork(ctx, spec); err != nil {
			return err
		}
		createdNet = true
		logger.Info().Str("network", spec.Name).Str("kind", string(spec.Kind)).Msg("network created")
	}

	for _, node := range s.Bootstraps {
		name, err := p.createNode(ctx, s, node, libvirt.BootHD, true)
		if err != nil {
			return err
		}
		createdDomains = append(createdDomains, name)
	}
	for _, node := range s.Baremetals {
		name, err := p.createNode(ctx, s, node, libvirt.BootNetwork, false)
		if err != nil {
			return err
		}
		createdDomains = append(createdDomains, name)
	}

	logger.Info().Strs("domains", createdDomains).Msg("stand is up")
	return nil
}

func managedNetwork(s *config.Stand, present bool) string {
	if present && s.Network.IsManaged() {
		return s.Network.Name
	}
	return ""
}

func networkSpec(n config.Network) (libvirt.NetworkSpec, error) {
	prefix, err := n.Prefix()
	if err != nil {
		return libvirt.NetworkSpec{}, err
	}
	kind := libvirt.NetworkNATNoDHCP
	if n.DHCP {
		kind = libvirt.NetworkNAT
	}
	return libvirt.NetworkSpec{Name: n.Name, Kind: kind, CIDR: prefix}, nil
}

// createNode creates the disks of one node and starts its domain. Disks
// created here are removed again when the domain cannot be started.
func (p *Provisioner) createNode(ctx context.Context, s *config.Stand, node config.Node, boot libvirt.BootMode, bootstrap bool) (name string, err error) {
	name = naming.StandDomainName(s.Name, node.Name)
	domainUUID := uuid.NewString()
	logger := p.logger.With().Str("domain", name).Logger()

	var created []string
	defer func() {
		if err != nil && len(created) > 0 {
			if rerr := p.disks.Remove(context.WithoutCancel(ctx), created...); rerr != nil {
				logger.Error().Err(rerr).Msg("failed to remove disks")
			}
		}
	}()

	spec := libvirt.DomainSpec{
		Name:      name,
		UUID:      domainUUID,
		MemoryMiB: node.MemoryMiB,
		Cores:     node.Cores,
		Boot:      boot,
		UEFI:      true,
		MetaTags: []string{
			naming.StandTag(s.Name),
			naming.Tag("node", node.Name),
		},
		Interfaces: []libvirt.InterfaceSpec{{
			Network: s.Network.Name,
			Managed: s.Network.IsManaged(),
		}},
	}

	first := 0
	if node.Image != "" {
		image, err := filepath.Abs(node.Image)
		if err != nil {
			return name, fmt.Errorf("failed to resolve image %s: %w", node.Image, err)
		}
		format, err := disk.ImageFormat(image)
		if err != nil {
			return name, err
		}
		if !node.UseImageInplace {
			if image, err = p.disks.CopyIntoPool(ctx, image); err != nil {
				return name, err
			}
			created = append(created, image)
		}
		spec.Disks = append(spec.Disks, libvirt.DiskSpec{Path: image, Format: string(format)})
		first = 1
	}

	for i := first; i < len(node.Disks); i++ {
		path, err := p.disks.CreateQCOW2(ctx, naming.DiskFileName(domainUUID, i), node.Disks[i])
		if err != nil {
			return name, err
		}
		created = append(created, path)
		spec.Disks = append(spec.Disks, libvirt.DiskSpec{Path: path, Format: string(disk.FormatQCOW2)})
	}

	if bootstrap && len(p.sshKeys) > 0 {
		iso, err := cloudinit.GenerateISO(cloudinit.Config{
			Hostname:   name,
			InstanceID: domainUUID,
			SSHKeys:    p.sshKeys,
		})
		if err != nil {
			return name, fmt.Errorf("failed to generate config drive: %w", err)
		}
		path, err := p.disks.WriteIntoPool(ctx, naming.ConfigDriveFileName(domainUUID), iso)
		if err != nil {
			return name, err
		}
		created = append(created, path)
		spec.ConfigDrive = path
	}

	if err := p.hv.CreateDomain(ctx, spec); err != nil {
		return name, err
	}

	logger.Info().Int("disks", len(spec.Disks)).Str("boot", string(boot)).Msg("domain started")
	return name, nil
}

// Down destroys every domain tagged with the stand's name and, when
// network is not empty, that network. It reports whether anything was
// found.
func (p *Provisioner) Down(ctx context.Context, stand, network string) (bool, error) {
	domains, err := p.hv.ListDomains(ctx, virsh.ListOptions{MetaTag: naming.StandTag(stand)})
	if err != nil {
		return false, fmt.Errorf("failed to list domains: %w", err)
	}

	if network != "" {
		present, err := p.hv.HasNetwork(ctx, network)
		if err != nil {
			return false, fmt.Errorf("failed to check network %s: %w", network, err)
		}
		if !present {
			network = ""
		}
	}

	return p.down(ctx, domains, network)
}

func (p *Provisioner) down(ctx context.Context, domains []string, network string) (bool, error) {
	var errs []error
	for _, domain := range domains {
		p.logger.Info().Str("domain", domain).Msg("destroying domain")
		if err := p.hv.DestroyDomain(ctx, domain); err != nil {
			errs = append(errs, err)
		}
	}

	if network != "" {
		p.logger.Info().Str("network", network).Msg("destroying network")
		if err := p.hv.DestroyNetwork(ctx, network); err != nil {
			errs = append(errs, err)
		}
	}

	return len(domains) > 0 || network != "", errors.Join(errs...)
}

// List returns every installation: domains whose name contains
// "bootstrap", with their current address.
func (p *Provisioner) List(ctx context.Context) ([]Installation, error) {
	domains, err := p.hv.ListDomains(ctx, virsh.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	installations := []Installation{}
	for _, domain := range domains {
		if !strings.Contains(domain, bootstrapMarker) {
			continue
		}

		name, ok := naming.StandFromBootstrapName(domain)
		if !ok {
			name = domain
		}

		ip, err := p.hv.DomainIP(ctx, domain)
		if err != nil {
			p.logger.Warn().Err(err).Str("domain", domain).Msg("could not look up address")
		}

		installations = append(installations, Installation{Name: name, Domain: domain, IP: ip})
	}
	return installations, nil
}

// WaitForIP polls until domain has a DHCP lease or ctx is done.
func (p *Provisioner) WaitForIP(ctx context.Context, domain string) (string, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		ip, err := p.hv.DomainIP(ctx, domain)
		if err != nil {
			p.logger.Debug().Err(err).Str("domain", domain).Msg("address lookup failed, retrying")
		}
		if ip != "" {
			return ip, nil
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("timed out waiting for %s to get an address: %w", domain, ctx.Err())
		case <-ticker.C:
		}
	}
}
