// Package virsh drives libvirt through the virsh command-line tool.
//
// Every call is an argument-vector subprocess through runner.Runner, so
// domain and network names are never interpreted by a shell.
package virsh

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jbweber/hearth/internal/libvirt"
	"github.com/jbweber/hearth/internal/runner"
)

// State filters domains by run state.
type State string

const (
	StateAll      State = "all"
	StateActive   State = "active"
	StateInactive State = "inactive"
	StatePaused   State = "state-paused"
)

// ListOptions filters ListDomains.
type ListOptions struct {
	// MetaTag keeps only domains whose descriptor contains this substring.
	MetaTag string
	// State defaults to StateAll.
	State State
}

var ipv4Pattern = regexp.MustCompile(`\d+\.\d+\.\d+\.\d+`)

// Client runs virsh commands.
type Client struct {
	run      runner.Runner
	poolPath string
	logger   zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithPoolPath limits the files DestroyDomain removes to those inside
// path. Images booted in place from elsewhere are then left alone.
func WithPoolPath(path string) Option {
	return func(c *Client) {
		c.poolPath = filepath.Clean(path)
	}
}

// New creates a Client.
func New(r runner.Runner, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		run:    r,
		logger: logger.With().Str("component", "virsh").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) virsh(ctx context.Context, args ...string) (string, error) {
	out, err := c.run.Run(ctx, "virsh", args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ListDomains returns domain names.
//
// With a meta tag, each candidate's descriptor is dumped and searched for
// the tag, one dumpxml per domain.
func (c *Client) ListDomains(ctx context.Context, opts ListOptions) ([]string, error) {
	state := opts.State
	if state == "" {
		state = StateAll
	}

	out, err := c.virsh(ctx, "list", "--"+string(state), "--name")
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	names := splitLines(out)

	if opts.MetaTag == "" {
		return names, nil
	}

	var tagged []string
	for _, name := range names {
		xml, err := c.DumpXML(ctx, name)
		if err != nil {
			return nil, err
		}
		if strings.Contains(xml, opts.MetaTag) {
			tagged = append(tagged, name)
		}
	}

	return tagged, nil
}

// DumpXML returns a domain's full descriptor.
func (c *Client) DumpXML(ctx context.Context, name string) (string, error) {
	out, err := c.virsh(ctx, "dumpxml", name)
	if err != nil {
		return "", fmt.Errorf("failed to dump domain %s: %w", name, err)
	}
	return out, nil
}

// DomainDisks returns the backing paths of a domain's disks.
func (c *Client) DomainDisks(ctx context.Context, name string) ([]string, error) {
	xml, err := c.DumpXML(ctx, name)
	if err != nil {
		return nil, err
	}
	return libvirt.DomainDisks(xml)
}

// DomainInterfaces returns a domain's NICs.
func (c *Client) DomainInterfaces(ctx context.Context, name string) ([]libvirt.Interface, error) {
	xml, err := c.DumpXML(ctx, name)
	if err != nil {
		return nil, err
	}
	return libvirt.DomainInterfaces(xml)
}

// DomainIP looks up a domain's IPv4 address in the DHCP leases of the
// networks it is attached to. It returns "" when the domain has no managed
// interfaces or no lease has been handed out yet.
func (c *Client) DomainIP(ctx context.Context, name string) (string, error) {
	ifaces, err := c.DomainInterfaces(ctx, name)
	if err != nil {
		return "", err
	}

	for _, iface := range ifaces {
		if iface.Network == "" {
			continue
		}

		leases, err := c.virsh(ctx, "net-dhcp-leases", iface.Network)
		if err != nil {
			return "", fmt.Errorf("failed to list leases of %s: %w", iface.Network, err)
		}

		for _, line := range splitLines(leases) {
			if !strings.Contains(strings.ToLower(line), strings.ToLower(iface.MAC)) {
				continue
			}
			if ip := ipv4Pattern.FindString(line); ip != "" {
				return ip, nil
			}
		}
	}

	return "", nil
}

// IsActive reports whether a domain is running.
func (c *Client) IsActive(ctx context.Context, name string) (bool, error) {
	inactive, err := c.ListDomains(ctx, ListOptions{State: StateInactive})
	if err != nil {
		return false, err
	}
	return !slices.Contains(inactive, name), nil
}

// HasDomain reports whether a domain is defined.
func (c *Client) HasDomain(ctx context.Context, name string) (bool, error) {
	names, err := c.ListDomains(ctx, ListOptions{})
	if err != nil {
		return false, err
	}
	return slices.Contains(names, name), nil
}

// CreateDomain renders spec, defines the domain and starts it.
func (c *Client) CreateDomain(ctx context.Context, spec libvirt.DomainSpec) error {
	xml, err := libvirt.GenerateDomainXML(spec)
	if err != nil {
		return err
	}

	return c.withDescriptor(spec.Name, xml, func(path string) error {
		if _, err := c.virsh(ctx, "define", path); err != nil {
			return fmt.Errorf("failed to define domain %s: %w", spec.Name, err)
		}
		if _, err := c.virsh(ctx, "start", spec.Name); err != nil {
			return fmt.Errorf("failed to start domain %s: %w", spec.Name, err)
		}
		c.logger.Info().Str("domain", spec.Name).Msg("domain started")
		return nil
	})
}

// DestroyDomain stops and undefines a domain, then removes its file-backed
// disks, restricted to the pool when WithPoolPath is set. A domain that is
// already stopped, undefined or absent is not an error.
func (c *Client) DestroyDomain(ctx context.Context, name string) error {
	exists, err := c.HasDomain(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		c.logger.Debug().Str("domain", name).Msg("domain already absent")
		return nil
	}

	xml, err := c.DumpXML(ctx, name)
	if err != nil {
		return err
	}
	files, err := libvirt.DomainFiles(xml)
	if err != nil {
		return err
	}

	active, err := c.IsActive(ctx, name)
	if err != nil {
		return err
	}
	if active {
		if _, err := c.virsh(ctx, "destroy", name); err != nil {
			if !runner.IsExitError(err) {
				return fmt.Errorf("failed to stop domain %s: %w", name, err)
			}
			c.logger.Debug().Err(err).Str("domain", name).Msg("domain already stopped")
		}
	}

	if _, err := c.virsh(ctx, "undefine", "--nvram", name); err != nil {
		if !runner.IsExitError(err) {
			return fmt.Errorf("failed to undefine domain %s: %w", name, err)
		}
		c.logger.Debug().Err(err).Str("domain", name).Msg("domain already undefined")
	}

	for _, file := range files {
		if !c.owns(file) {
			c.logger.Debug().Str("file", file).Msg("keeping file outside the pool")
			continue
		}
		if _, err := c.run.Run(ctx, "rm", "-f", file); err != nil {
			return fmt.Errorf("failed to remove %s: %w", file, err)
		}
	}

	c.logger.Info().Str("domain", name).Int("files", len(files)).Msg("domain destroyed")
	return nil
}

// ListNetworks returns the names of all defined networks.
func (c *Client) ListNetworks(ctx context.Context) ([]string, error) {
	out, err := c.virsh(ctx, "net-list", "--all", "--name")
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}
	return splitLines(out), nil
}

// HasNetwork reports whether a network is defined.
func (c *Client) HasNetwork(ctx context.Context, name string) (bool, error) {
	names, err := c.ListNetworks(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(names, name), nil
}

// CreateNetwork renders spec, then defines, starts and autostarts it.
func (c *Client) CreateNetwork(ctx context.Context, spec libvirt.NetworkSpec) error {
	xml, err := libvirt.GenerateNetworkXML(spec)
	if err != nil {
		return err
	}
	return c.DefineNetwork(ctx, spec.Name, xml)
}

// DefineNetwork defines, starts and autostarts a network from a descriptor.
func (c *Client) DefineNetwork(ctx context.Context, name, xml string) error {
	return c.withDescriptor(name, xml, func(path string) error {
		steps := [][]string{
			{"net-define", path},
			{"net-start", name},
			{"net-autostart", name},
		}
		for _, args := range steps {
			if _, err := c.virsh(ctx, args...); err != nil {
				return fmt.Errorf("failed to %s network %s: %w", strings.TrimPrefix(args[0], "net-"), name, err)
			}
		}
		c.logger.Info().Str("network", name).Msg("network started")
		return nil
	})
}

// DestroyNetwork stops and undefines a network. A network that is already
// stopped or undefined is not an error.
func (c *Client) DestroyNetwork(ctx context.Context, name string) error {
	for _, verb := range []string{"net-destroy", "net-undefine"} {
		if _, err := c.virsh(ctx, verb, name); err != nil {
			if !runner.IsExitError(err) {
				return fmt.Errorf("failed to %s network %s: %w", strings.TrimPrefix(verb, "net-"), name, err)
			}
			c.logger.Debug().Err(err).Str("network", name).Str("step", verb).Msg("network already in target state")
		}
	}
	return nil
}

// withDescriptor writes xml to a temporary file, passes its path to fn and
// removes it afterwards.
func (c *Client) withDescriptor(name, xml string, fn func(path string) error) error {
	dir, err := os.MkdirTemp("", "hearth-")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			c.logger.Warn().Err(err).Str("dir", dir).Msg("failed to remove temp dir")
		}
	}()

	path := filepath.Join(dir, name+".xml")
	if err := os.WriteFile(path, []byte(xml), 0o644); err != nil {
		return fmt.Errorf("failed to write descriptor: %w", err)
	}

	return fn(path)
}

func (c *Client) owns(file string) bool {
	if c.poolPath == "" {
		return true
	}
	return filepath.Dir(filepath.Clean(file)) == c.poolPath
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
