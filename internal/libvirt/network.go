package libvirt

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"

	"libvirt.org/go/libvirtxml"
)

// Fixed offsets into the network block for NAT networks.
const (
	gatewayOffset    = 1
	dhcpRangeStart   = 10
	dhcpRangeEnd     = 100
	isolatedNetLabel = "network"
)

// NetworkKind selects which network descriptor variant to render.
type NetworkKind string

const (
	// NetworkNAT is a NAT network with a DHCP range.
	NetworkNAT NetworkKind = "nat"
	// NetworkNATNoDHCP is a NAT network without DHCP.
	NetworkNATNoDHCP NetworkKind = "nat-no-dhcp"
	// NetworkIsolated is an isolated network without DHCP or addressing.
	NetworkIsolated NetworkKind = "isolated"
)

// NetworkSpec is everything needed to render a network descriptor.
type NetworkSpec struct {
	Name string
	Kind NetworkKind
	CIDR netip.Prefix // ignored for isolated networks
}

// GenerateNetworkXML renders a libvirt network descriptor.
//
// For NAT networks the gateway is host 1 of the block and the DHCP range
// covers hosts 10 through 100.
func GenerateNetworkXML(spec NetworkSpec) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("network name is required")
	}

	network := &libvirtxml.Network{
		Name: spec.Name,
	}

	switch spec.Kind {
	case NetworkIsolated:
		network.Domain = &libvirtxml.NetworkDomain{Name: spec.Name}

	case NetworkNAT, NetworkNATNoDHCP:
		if !spec.CIDR.IsValid() || !spec.CIDR.Addr().Is4() {
			return "", fmt.Errorf("network %s: an IPv4 CIDR is required", spec.Name)
		}

		gateway, err := HostAddr(spec.CIDR, gatewayOffset)
		if err != nil {
			return "", err
		}

		ip := libvirtxml.NetworkIP{
			Address: gateway.String(),
			Netmask: Netmask(spec.CIDR),
		}

		network.Forward = &libvirtxml.NetworkForward{Mode: "nat"}
		if spec.Kind == NetworkNAT {
			network.Domain = &libvirtxml.NetworkDomain{Name: spec.Name}

			start, err := HostAddr(spec.CIDR, dhcpRangeStart)
			if err != nil {
				return "", err
			}
			end, err := HostAddr(spec.CIDR, dhcpRangeEnd)
			if err != nil {
				return "", err
			}
			ip.DHCP = &libvirtxml.NetworkDHCP{
				Ranges: []libvirtxml.NetworkDHCPRange{
					{Start: start.String(), End: end.String()},
				},
			}
		} else {
			network.Domain = &libvirtxml.NetworkDomain{Name: isolatedNetLabel}
		}
		network.IPs = []libvirtxml.NetworkIP{ip}

	default:
		return "", fmt.Errorf("unknown network kind %q", spec.Kind)
	}

	xml, err := network.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal network XML: %w", err)
	}

	return xml, nil
}

// HostAddr returns the n-th address of an IPv4 block (0 is the network
// address). It fails when n falls outside the block.
//
// Example: HostAddr(192.168.4.0/22, 10) → 192.168.4.10
func HostAddr(prefix netip.Prefix, n uint32) (netip.Addr, error) {
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return netip.Addr{}, fmt.Errorf("not an IPv4 network: %s", prefix)
	}

	hostBits := 32 - prefix.Bits()
	if hostBits < 32 && uint64(n) >= uint64(1)<<hostBits {
		return netip.Addr{}, fmt.Errorf("address offset %d outside %s", n, prefix)
	}

	base := prefix.Addr().As4()
	v := binary.BigEndian.Uint32(base[:]) + n

	var out [4]byte
	binary.BigEndian.PutUint32(out[:], v)
	return netip.AddrFrom4(out), nil
}

// Netmask returns the dotted-quad netmask of an IPv4 prefix.
func Netmask(prefix netip.Prefix) string {
	return net.IP(net.CIDRMask(prefix.Bits(), 32)).String()
}
