package libvirt

import (
	"fmt"

	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/hearth/internal/naming"
)

const (
	// DefaultEmulator is the QEMU binary referenced by generated domains.
	DefaultEmulator = "/usr/bin/qemu-system-x86_64"

	ovmfCode = "/usr/share/OVMF/OVMF_CODE_4M.fd"
	ovmfVars = "/usr/share/OVMF/OVMF_VARS_4M.fd"

	guestAgentChannel = "org.qemu.guest_agent.0"

	// hotplugRootPorts is how many pcie-root-port controllers are added so
	// disks and NICs can be attached to a running domain.
	hotplugRootPorts = 9
)

// BootMode selects the boot device order.
type BootMode string

const (
	// BootHD boots from the first disk.
	BootHD BootMode = "hd"
	// BootNetwork tries PXE first and falls back to the first disk.
	BootNetwork BootMode = "network"
)

// DiskSpec describes a file-backed disk.
type DiskSpec struct {
	Path   string
	Format string // qcow2 or raw
}

// InterfaceSpec describes a NIC. Managed interfaces attach to a libvirt
// network, the rest to an existing host bridge.
type InterfaceSpec struct {
	Network string
	Managed bool
}

// DomainSpec is everything needed to render a domain descriptor.
type DomainSpec struct {
	Name        string
	UUID        string // generated when empty
	MemoryMiB   uint
	Cores       uint
	Disks       []DiskSpec
	Interfaces  []InterfaceSpec
	Boot        BootMode
	MetaTags    []string
	ConfigDrive string // optional ISO attached as a sata cdrom
	UEFI        bool
}

// GenerateDomainXML renders a KVM domain descriptor.
//
// Memory is converted from MiB to KiB (shift by 10). Disks get sequential
// virtio targets starting at vda. Meta tags are embedded verbatim in the
// hearth metadata element so domains can later be found by substring.
func GenerateDomainXML(spec DomainSpec) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("domain name is required")
	}
	if len(spec.Disks) == 0 {
		return "", fmt.Errorf("at least one disk must be provided")
	}

	domainUUID := spec.UUID
	if domainUUID == "" {
		domainUUID = uuid.NewString()
	}

	memoryKiB := spec.MemoryMiB << 10

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: spec.Name,
		UUID: domainUUID,
		Metadata: &libvirtxml.DomainMetadata{
			XML: naming.MetadataElement(spec.MetaTags),
		},
		Memory: &libvirtxml.DomainMemory{
			Value: memoryKiB,
			Unit:  "KiB",
		},
		CurrentMemory: &libvirtxml.DomainCurrentMemory{
			Value: memoryKiB,
			Unit:  "KiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Value: spec.Cores,
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch:    "x86_64",
				Machine: "q35",
				Type:    "hvm",
			},
			BootDevices: bootDevices(spec.Boot),
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI:   &libvirtxml.DomainFeature{},
			APIC:   &libvirtxml.DomainFeatureAPIC{},
			VMPort: &libvirtxml.DomainFeatureState{State: "off"},
		},
		CPU: &libvirtxml.DomainCPU{
			Mode: "host-passthrough",
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
			Timer: []libvirtxml.DomainTimer{
				{Name: "rtc", TickPolicy: "catchup"},
				{Name: "pit", TickPolicy: "delay"},
				{Name: "hpet", Present: "no"},
			},
		},
		Devices: &libvirtxml.DomainDeviceList{
			Emulator: DefaultEmulator,
			Inputs: []libvirtxml.DomainInput{
				{Type: "tablet", Bus: "usb"},
			},
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
			RNGs: []libvirtxml.DomainRNG{
				{
					Model: "virtio",
					Backend: &libvirtxml.DomainRNGBackend{
						Random: &libvirtxml.DomainRNGBackendRandom{
							Device: "/dev/urandom",
						},
					},
				},
			},
			Consoles: []libvirtxml.DomainConsole{
				{
					Source: &libvirtxml.DomainChardevSource{
						Pty: &libvirtxml.DomainChardevSourcePty{},
					},
				},
			},
			Channels: []libvirtxml.DomainChannel{
				{
					Source: &libvirtxml.DomainChardevSource{
						UNIX: &libvirtxml.DomainChardevSourceUNIX{Mode: "bind"},
					},
					Target: &libvirtxml.DomainChannelTarget{
						VirtIO: &libvirtxml.DomainChannelTargetVirtIO{Name: guestAgentChannel},
					},
				},
			},
		},
	}

	if spec.UEFI {
		domain.OS.Loader = &libvirtxml.DomainLoader{
			Path:     ovmfCode,
			Readonly: "yes",
			Type:     "pflash",
		}
		domain.OS.NVRam = &libvirtxml.DomainNVRam{
			Template: ovmfVars,
		}
	}

	// Controllers: usb, pcie root, and spare root ports for hotplug
	domain.Devices.Controllers = append(domain.Devices.Controllers,
		libvirtxml.DomainController{Type: "usb", Model: "qemu-xhci"},
		libvirtxml.DomainController{Type: "pci", Model: "pcie-root"},
	)
	for i := 0; i < hotplugRootPorts; i++ {
		domain.Devices.Controllers = append(domain.Devices.Controllers,
			libvirtxml.DomainController{Type: "pci", Model: "pcie-root-port"})
	}

	for i, d := range spec.Disks {
		format := d.Format
		if format == "" {
			format = "qcow2"
		}
		domain.Devices.Disks = append(domain.Devices.Disks, libvirtxml.DomainDisk{
			Device: "disk",
			Driver: &libvirtxml.DomainDiskDriver{
				Name: "qemu",
				Type: format,
			},
			Source: &libvirtxml.DomainDiskSource{
				File: &libvirtxml.DomainDiskSourceFile{
					File: d.Path,
				},
			},
			Target: &libvirtxml.DomainDiskTarget{
				Dev: naming.DiskDevice(i),
				Bus: "virtio",
			},
		})
	}

	if spec.ConfigDrive != "" {
		domain.Devices.Disks = append(domain.Devices.Disks, libvirtxml.DomainDisk{
			Device: "cdrom",
			Driver: &libvirtxml.DomainDiskDriver{
				Name: "qemu",
				Type: "raw",
			},
			Source: &libvirtxml.DomainDiskSource{
				File: &libvirtxml.DomainDiskSourceFile{
					File: spec.ConfigDrive,
				},
			},
			Target: &libvirtxml.DomainDiskTarget{
				Dev: "sda",
				Bus: "sata",
			},
			ReadOnly: &libvirtxml.DomainDiskReadOnly{},
		})
	}

	for _, iface := range spec.Interfaces {
		netIface := libvirtxml.DomainInterface{
			Model: &libvirtxml.DomainInterfaceModel{
				Type: "virtio",
			},
		}
		if iface.Managed {
			netIface.Source = &libvirtxml.DomainInterfaceSource{
				Network: &libvirtxml.DomainInterfaceSourceNetwork{
					Network: iface.Network,
				},
			}
		} else {
			netIface.Source = &libvirtxml.DomainInterfaceSource{
				Bridge: &libvirtxml.DomainInterfaceSourceBridge{
					Bridge: iface.Network,
				},
			}
		}
		domain.Devices.Interfaces = append(domain.Devices.Interfaces, netIface)
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	return xml, nil
}

func bootDevices(mode BootMode) []libvirtxml.DomainBootDevice {
	if mode == BootNetwork {
		return []libvirtxml.DomainBootDevice{{Dev: "network"}, {Dev: "hd"}}
	}
	return []libvirtxml.DomainBootDevice{{Dev: "hd"}}
}
