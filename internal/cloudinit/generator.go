// Package cloudinit builds the config drive attached to stand domains.
//
// The drive follows the cloud-init NoCloud datasource: a CIDATA-labelled
// ISO holding user-data and meta-data. Stand domains take their address
// from DHCP, so no network-config is written.
//
// See https://cloudinit.readthedocs.io/en/latest/reference/datasources/nocloud.html
package cloudinit

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is what goes onto a config drive.
type Config struct {
	// Hostname is a short name or an FQDN.
	Hostname string
	// InstanceID changes when the domain is recreated so cloud-init runs
	// again. Defaults to the hostname.
	InstanceID string
	// SSHKeys are authorized for the default user.
	SSHKeys []string
}

// UserData is the cloud-config user-data document.
//
// See https://cloudinit.readthedocs.io/en/latest/explanation/format.html#cloud-config-data
type UserData struct {
	Hostname          string   `yaml:"hostname"`
	FQDN              string   `yaml:"fqdn"`
	SSHAuthorizedKeys []string `yaml:"ssh_authorized_keys,omitempty"`
	SSHPasswordAuth   bool     `yaml:"ssh_pwauth"`
	Output            *Output  `yaml:"output,omitempty"`
}

// Output configures cloud-init output logging.
type Output struct {
	All string `yaml:"all"`
}

// MetaData is the NoCloud meta-data document.
type MetaData struct {
	InstanceID    string `yaml:"instance-id"`
	LocalHostname string `yaml:"local-hostname"`
}

func (c Config) validate() error {
	if c.Hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	return nil
}

// GenerateUserData returns the user-data file including the "#cloud-config"
// header.
func GenerateUserData(cfg Config) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}

	// Short hostname is everything before the first dot
	fqdn := cfg.Hostname
	hostname := strings.SplitN(fqdn, ".", 2)[0]

	userData := UserData{
		Hostname:          hostname,
		FQDN:              fqdn,
		SSHAuthorizedKeys: cfg.SSHKeys,
		Output: &Output{
			All: "| tee -a /var/log/cloud-init-output.log",
		},
	}

	yamlBytes, err := yaml.Marshal(&userData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal user-data to YAML: %w", err)
	}

	return "#cloud-config\n" + string(yamlBytes), nil
}

// GenerateMetaData returns the meta-data file.
func GenerateMetaData(cfg Config) (string, error) {
	if err := cfg.validate(); err != nil {
		return "", err
	}

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = cfg.Hostname
	}

	yamlBytes, err := yaml.Marshal(&MetaData{
		InstanceID:    instanceID,
		LocalHostname: strings.SplitN(cfg.Hostname, ".", 2)[0],
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal meta-data to YAML: %w", err)
	}

	return string(yamlBytes), nil
}
