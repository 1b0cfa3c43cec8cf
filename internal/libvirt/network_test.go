package libvirt

import (
	"net/netip"
	"testing"

	"libvirt.org/go/libvirtxml"
)

func TestGenerateNetworkXML_NAT(t *testing.T) {
	xml, err := GenerateNetworkXML(NetworkSpec{
		Name: "dev-stand-net",
		Kind: NetworkNAT,
		CIDR: netip.MustParsePrefix("10.20.0.0/22"),
	})
	if err != nil {
		t.Fatalf("GenerateNetworkXML() error = %v", err)
	}

	network := &libvirtxml.Network{}
	if err := network.Unmarshal(xml); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if network.Forward == nil || network.Forward.Mode != "nat" {
		t.Errorf("expected nat forward, got %+v", network.Forward)
	}
	if network.Domain == nil || network.Domain.Name != "dev-stand-net" {
		t.Errorf("expected domain name dev-stand-net, got %+v", network.Domain)
	}
	if len(network.IPs) != 1 {
		t.Fatalf("expected 1 IP block, got %d", len(network.IPs))
	}

	ip := network.IPs[0]
	if ip.Address != "10.20.0.1" {
		t.Errorf("gateway = %s, want 10.20.0.1", ip.Address)
	}
	if ip.Netmask != "255.255.252.0" {
		t.Errorf("netmask = %s, want 255.255.252.0", ip.Netmask)
	}
	if ip.DHCP == nil || len(ip.DHCP.Ranges) != 1 {
		t.Fatalf("expected one DHCP range, got %+v", ip.DHCP)
	}
	if r := ip.DHCP.Ranges[0]; r.Start != "10.20.0.10" || r.End != "10.20.0.100" {
		t.Errorf("DHCP range = %s-%s, want 10.20.0.10-10.20.0.100", r.Start, r.End)
	}
}

func TestGenerateNetworkXML_NATNoDHCP(t *testing.T) {
	xml, err := GenerateNetworkXML(NetworkSpec{
		Name: "lab",
		Kind: NetworkNATNoDHCP,
		CIDR: netip.MustParsePrefix("192.168.50.0/24"),
	})
	if err != nil {
		t.Fatalf("GenerateNetworkXML() error = %v", err)
	}

	network := &libvirtxml.Network{}
	if err := network.Unmarshal(xml); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if network.Domain == nil || network.Domain.Name != "network" {
		t.Errorf("expected domain name network, got %+v", network.Domain)
	}
	if len(network.IPs) != 1 || network.IPs[0].DHCP != nil {
		t.Errorf("expected one IP block without DHCP, got %+v", network.IPs)
	}
	if network.IPs[0].Address != "192.168.50.1" {
		t.Errorf("gateway = %s, want 192.168.50.1", network.IPs[0].Address)
	}
}

func TestGenerateNetworkXML_Isolated(t *testing.T) {
	xml, err := GenerateNetworkXML(NetworkSpec{Name: "iso", Kind: NetworkIsolated})
	if err != nil {
		t.Fatalf("GenerateNetworkXML() error = %v", err)
	}

	network := &libvirtxml.Network{}
	if err := network.Unmarshal(xml); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if network.Forward != nil {
		t.Errorf("isolated network must not forward, got %+v", network.Forward)
	}
	if len(network.IPs) != 0 {
		t.Errorf("isolated network must not have addresses, got %+v", network.IPs)
	}
	if network.Domain == nil || network.Domain.Name != "iso" {
		t.Errorf("expected domain name iso, got %+v", network.Domain)
	}
}

func TestGenerateNetworkXML_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec NetworkSpec
	}{
		{"missing name", NetworkSpec{Kind: NetworkIsolated}},
		{"missing cidr", NetworkSpec{Name: "n", Kind: NetworkNAT}},
		{"ipv6 cidr", NetworkSpec{Name: "n", Kind: NetworkNAT, CIDR: netip.MustParsePrefix("fd00::/64")}},
		{"block too small for dhcp", NetworkSpec{Name: "n", Kind: NetworkNAT, CIDR: netip.MustParsePrefix("10.0.0.0/28")}},
		{"unknown kind", NetworkSpec{Name: "n", Kind: "bridge"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := GenerateNetworkXML(tt.spec); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHostAddr(t *testing.T) {
	tests := []struct {
		prefix  string
		n       uint32
		want    string
		wantErr bool
	}{
		{"192.168.4.0/22", 10, "192.168.4.10", false},
		{"192.168.4.7/22", 1, "192.168.4.1", false},
		{"10.0.0.0/8", 256, "10.0.1.0", false},
		{"10.0.0.0/30", 3, "10.0.0.3", false},
		{"10.0.0.0/30", 4, "", true},
		{"fd00::/64", 1, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			got, err := HostAddr(netip.MustParsePrefix(tt.prefix), tt.n)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HostAddr() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.String() != tt.want {
				t.Errorf("HostAddr() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNetmask(t *testing.T) {
	if got := Netmask(netip.MustParsePrefix("10.0.0.0/24")); got != "255.255.255.0" {
		t.Errorf("Netmask() = %v, want 255.255.255.0", got)
	}
	if got := Netmask(netip.MustParsePrefix("10.0.0.0/16")); got != "255.255.0.0" {
		t.Errorf("Netmask() = %v, want 255.255.0.0", got)
	}
}
