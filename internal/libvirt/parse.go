package libvirt

import (
	"fmt"

	"libvirt.org/go/libvirtxml"
)

// Interface is a NIC found in a domain descriptor.
type Interface struct {
	MAC     string
	Network string // empty for bridge interfaces
	Bridge  string
}

// ParseDomain decodes a descriptor as dumped by "virsh dumpxml".
func ParseDomain(xml string) (*libvirtxml.Domain, error) {
	domain := &libvirtxml.Domain{}
	if err := domain.Unmarshal(xml); err != nil {
		return nil, fmt.Errorf("failed to parse domain XML: %w", err)
	}
	return domain, nil
}

// DomainDisks returns the backing paths of every "disk" device, file or
// block, in descriptor order. CD-ROMs such as config drives are skipped.
func DomainDisks(xml string) ([]string, error) {
	domain, err := ParseDomain(xml)
	if err != nil {
		return nil, err
	}
	if domain.Devices == nil {
		return nil, nil
	}

	var disks []string
	for _, disk := range domain.Devices.Disks {
		if disk.Device != "" && disk.Device != "disk" {
			continue
		}
		if disk.Source == nil {
			continue
		}
		switch {
		case disk.Source.File != nil && disk.Source.File.File != "":
			disks = append(disks, disk.Source.File.File)
		case disk.Source.Block != nil && disk.Source.Block.Dev != "":
			disks = append(disks, disk.Source.Block.Dev)
		}
	}

	return disks, nil
}

// DomainInterfaces returns the NICs of a domain with their MAC addresses.
// Interfaces without a MAC (not yet assigned by libvirt) are skipped.
func DomainInterfaces(xml string) ([]Interface, error) {
	domain, err := ParseDomain(xml)
	if err != nil {
		return nil, err
	}
	if domain.Devices == nil {
		return nil, nil
	}

	var ifaces []Interface
	for _, iface := range domain.Devices.Interfaces {
		if iface.MAC == nil || iface.MAC.Address == "" {
			continue
		}
		found := Interface{MAC: iface.MAC.Address}
		if iface.Source != nil {
			if iface.Source.Network != nil {
				found.Network = iface.Source.Network.Network
			}
			if iface.Source.Bridge != nil {
				found.Bridge = iface.Source.Bridge.Bridge
			}
		}
		ifaces = append(ifaces, found)
	}

	return ifaces, nil
}

// DomainFiles returns every file-backed source of a domain, disks and
// CD-ROMs alike. Block devices are left out since they are not removed
// along with the domain.
func DomainFiles(xml string) ([]string, error) {
	domain, err := ParseDomain(xml)
	if err != nil {
		return nil, err
	}
	if domain.Devices == nil {
		return nil, nil
	}

	var files []string
	for _, disk := range domain.Devices.Disks {
		if disk.Source != nil && disk.Source.File != nil && disk.Source.File.File != "" {
			files = append(files, disk.Source.File.File)
		}
	}
	return files, nil
}
