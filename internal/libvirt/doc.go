// Package libvirt renders and parses libvirt descriptors and checks the
// libvirt daemon connection.
//
// Descriptors are built with libvirt.org/go/libvirtxml rather than string
// templates, then handed to virsh as serialized XML:
//
//	xml, err := libvirt.GenerateDomainXML(libvirt.DomainSpec{
//	    Name:      "dev-stand-bootstrap",
//	    MemoryMiB: 4096,
//	    Cores:     2,
//	    Disks:     []libvirt.DiskSpec{{Path: "/var/lib/libvirt/images/core.raw", Format: "raw"}},
//	    Interfaces: []libvirt.InterfaceSpec{{Network: "dev-stand-net", Managed: true}},
//	    Boot:      libvirt.BootHD,
//	})
//
// Network descriptors come in three variants (NAT with DHCP, NAT without
// DHCP, isolated); see GenerateNetworkXML.
//
// Dumped descriptors are decoded with ParseDomain, DomainDisks and
// DomainInterfaces instead of matching attribute text, so quoting style and
// attribute order in virsh output do not matter.
//
// The Client type wraps github.com/digitalocean/go-libvirt and is only used
// for connectivity checks:
//
//	client, err := libvirt.Dial(ctx, "", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	info, err := client.Info()
package libvirt
