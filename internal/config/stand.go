// Package config loads hearth settings and stand definitions.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Stand defaults.
const (
	DefaultStandName     = "dev-stand"
	DefaultBootstrapName = "bootstrap"
	DefaultNodeMemoryMiB = 1024
	DefaultNodeCores     = 1
	DefaultNodeDiskGB    = 10
)

var validate = validator.New()

var resourceNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

func init() {
	_ = validate.RegisterValidation("resourcename", func(fl validator.FieldLevel) bool {
		return resourceNameRegex.MatchString(fl.Field().String())
	})
}

// Network is the network a stand's domains attach to.
type Network struct {
	Name string `yaml:"name" validate:"required,resourcename"`
	CIDR string `yaml:"cidr" validate:"required,cidrv4"`
	DHCP bool   `yaml:"dhcp"`

	// Managed networks are created and destroyed with the stand. Unmanaged
	// ones name an existing host bridge. Defaults to true.
	Managed *bool `yaml:"managed_network,omitempty"`
}

// IsManaged reports whether hearth owns the network.
func (n Network) IsManaged() bool {
	return n.Managed == nil || *n.Managed
}

// Prefix parses the network CIDR.
func (n Network) Prefix() (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(n.CIDR)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid network cidr %q: %w", n.CIDR, err)
	}
	return prefix.Masked(), nil
}

// Node is a domain of a stand.
type Node struct {
	Name      string `yaml:"name" validate:"required,resourcename"`
	MemoryMiB uint   `yaml:"memory" validate:"gt=0"`
	Cores     uint   `yaml:"cores" validate:"gt=0"`
	// Disks are sizes in GB. With an image, the first entry is the image
	// itself and its size is ignored.
	Disks           []uint `yaml:"disks" validate:"min=1,dive,gt=0"`
	Image           string `yaml:"image,omitempty"`
	UseImageInplace bool   `yaml:"use_image_inplace,omitempty"`
}

// Stand is a named set of bootstrap and baremetal domains on one network.
type Stand struct {
	Name       string  `yaml:"name" validate:"required,resourcename"`
	Network    Network `yaml:"network"`
	Bootstraps []Node  `yaml:"bootstraps" validate:"min=1,dive"`
	Baremetals []Node  `yaml:"baremetals" validate:"dive"`
}

// SingleBootstrapStand builds a stand with one bootstrap node and no
// baremetals, as used by "hearth bootstrap".
func SingleBootstrapStand(name, image string, inplace bool, network Network, cores, memoryMiB uint) *Stand {
	s := &Stand{
		Name:    name,
		Network: network,
		Bootstraps: []Node{{
			Name:            DefaultBootstrapName,
			Image:           image,
			UseImageInplace: inplace,
			Cores:           cores,
			MemoryMiB:       memoryMiB,
		}},
	}
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills unset fields.
func (s *Stand) ApplyDefaults() {
	if s.Name == "" {
		s.Name = DefaultStandName
	}
	for i := range s.Bootstraps {
		name := DefaultBootstrapName
		if i > 0 {
			name = fmt.Sprintf("%s-%d", DefaultBootstrapName, i)
		}
		// Bootstraps get a root disk and a data disk
		s.Bootstraps[i].applyDefaults(name, []uint{DefaultNodeDiskGB, DefaultNodeDiskGB})
	}
	for i := range s.Baremetals {
		s.Baremetals[i].applyDefaults(fmt.Sprintf("bm-%d", i), []uint{DefaultNodeDiskGB})
	}
}

func (n *Node) applyDefaults(name string, disks []uint) {
	if n.Name == "" {
		n.Name = name
	}
	if n.MemoryMiB == 0 {
		n.MemoryMiB = DefaultNodeMemoryMiB
	}
	if n.Cores == 0 {
		n.Cores = DefaultNodeCores
	}
	if len(n.Disks) == 0 {
		n.Disks = disks
	}
}

// Validate checks struct tags and cross-field rules.
func (s *Stand) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	if !s.HasBootstrapImage() {
		return errors.New("at least one bootstrap must have an image")
	}

	seen := make(map[string]bool)
	for _, n := range s.Nodes() {
		if seen[n.Name] {
			return fmt.Errorf("duplicate node name %q", n.Name)
		}
		seen[n.Name] = true
	}

	return nil
}

// Nodes returns bootstraps followed by baremetals.
func (s *Stand) Nodes() []Node {
	nodes := make([]Node, 0, len(s.Bootstraps)+len(s.Baremetals))
	nodes = append(nodes, s.Bootstraps...)
	return append(nodes, s.Baremetals...)
}

// HasBootstrapImage reports whether any bootstrap has an image set.
func (s *Stand) HasBootstrapImage() bool {
	for _, b := range s.Bootstraps {
		if b.Image != "" {
			return true
		}
	}
	return false
}

// SetBootstrapImage sets image on every bootstrap.
func (s *Stand) SetBootstrapImage(image string) {
	for i := range s.Bootstraps {
		s.Bootstraps[i].Image = image
	}
}

// DecodeStand decodes a stand definition and applies defaults without
// validating it, so callers can fill in fields such as the image first.
func DecodeStand(data []byte) (*Stand, error) {
	var s Stand
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse stand YAML: %w", err)
	}

	s.ApplyDefaults()
	return &s, nil
}

// ParseStand decodes, defaults and validates a stand definition.
func ParseStand(data []byte) (*Stand, error) {
	s, err := DecodeStand(data)
	if err != nil {
		return nil, err
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stand %q: %w", s.Name, err)
	}

	return s, nil
}

// LoadStand reads a stand definition from a YAML file.
func LoadStand(path string) (*Stand, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stand file: %w", err)
	}
	return ParseStand(data)
}
