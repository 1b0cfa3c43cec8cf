package stand

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/hearth/internal/config"
	"github.com/jbweber/hearth/internal/libvirt"
	"github.com/jbweber/hearth/internal/naming"
)

// writeImage creates a small qcow2-looking image file.
func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "core.qcow2")
	data := append([]byte{0x51, 0x46, 0x49, 0xfb}, make([]byte, 508)...)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func testStand(t *testing.T, image string) *config.Stand {
	t.Helper()
	s := &config.Stand{
		Name:       "dev-stand",
		Network:    config.Network{Name: "dev-stand-net", CIDR: "192.168.4.0/22", DHCP: true},
		Bootstraps: []config.Node{{Image: image, Cores: 2, MemoryMiB: 4096}},
		Baremetals: []config.Node{{}},
	}
	s.ApplyDefaults()
	return s
}

func TestUp(t *testing.T) {
	hv := newMockHypervisor()
	disks := newMockDisks()
	image := writeImage(t)

	p := New(hv, disks)
	require.NoError(t, p.Up(context.Background(), testStand(t, image), false))

	net, ok := hv.networks["dev-stand-net"]
	require.True(t, ok)
	assert.Equal(t, libvirt.NetworkNAT, net.Kind)
	assert.Equal(t, "192.168.4.0/22", net.CIDR.String())

	assert.Equal(t, []string{"dev-stand-bootstrap", "dev-stand-bm-0"}, hv.createdDomains)

	bootstrap := hv.domains["dev-stand-bootstrap"]
	assert.Equal(t, uint(4096), bootstrap.MemoryMiB)
	assert.Equal(t, uint(2), bootstrap.Cores)
	assert.Equal(t, libvirt.BootHD, bootstrap.Boot)
	require.Len(t, bootstrap.Disks, 2)
	assert.Equal(t, libvirt.DiskSpec{Path: "/pool/core.qcow2", Format: "qcow2"}, bootstrap.Disks[0])
	assert.Equal(t, "/pool/"+naming.DiskFileName(bootstrap.UUID, 1), bootstrap.Disks[1].Path)
	assert.Contains(t, bootstrap.MetaTags, naming.StandTag("dev-stand"))
	assert.Equal(t, []libvirt.InterfaceSpec{{Network: "dev-stand-net", Managed: true}}, bootstrap.Interfaces)
	assert.Empty(t, bootstrap.ConfigDrive, "no keys means no config drive")

	bm := hv.domains["dev-stand-bm-0"]
	assert.Equal(t, libvirt.BootNetwork, bm.Boot)
	require.Len(t, bm.Disks, 1)
	assert.Equal(t, "/pool/"+naming.DiskFileName(bm.UUID, 0), bm.Disks[0].Path)
	assert.Equal(t, uint(1024), bm.MemoryMiB)

	assert.Equal(t, []string{image}, disks.copied)
	assert.Len(t, disks.created, 2)

	for _, name := range []string{"dev-stand-bootstrap", "dev-stand-bm-0"} {
		spec := hv.domains[name]
		assert.True(t, spec.UEFI, name)
		xml, err := libvirt.GenerateDomainXML(spec)
		require.NoError(t, err)
		assert.Contains(t, xml, "<loader", name)
		assert.Contains(t, xml, "<nvram", name)
	}
}

func TestUp_InplaceImageAndConfigDrive(t *testing.T) {
	hv := newMockHypervisor()
	disks := newMockDisks()
	image := writeImage(t)

	s := testStand(t, image)
	s.Bootstraps[0].UseImageInplace = true
	s.Baremetals = nil

	p := New(hv, disks, WithSSHKeys([]string{"ssh-ed25519 AAAA dev@host"}))
	require.NoError(t, p.Up(context.Background(), s, false))

	bootstrap := hv.domains["dev-stand-bootstrap"]
	assert.Equal(t, image, bootstrap.Disks[0].Path)
	assert.Empty(t, disks.copied)

	drive := "/pool/" + naming.ConfigDriveFileName(bootstrap.UUID)
	assert.Equal(t, drive, bootstrap.ConfigDrive)
	assert.NotEmpty(t, disks.written[drive])
}

func TestUp_UnmanagedNetwork(t *testing.T) {
	hv := newMockHypervisor()
	managed := false

	s := testStand(t, writeImage(t))
	s.Network = config.Network{Name: "br0", CIDR: "10.0.0.0/24", Managed: &managed}

	require.NoError(t, New(hv, newMockDisks()).Up(context.Background(), s, false))

	assert.Empty(t, hv.networks)
	assert.Equal(t, []libvirt.InterfaceSpec{{Network: "br0", Managed: false}}, hv.domains["dev-stand-bootstrap"].Interfaces)
}

func TestUp_NoDHCP(t *testing.T) {
	hv := newMockHypervisor()
	s := testStand(t, writeImage(t))
	s.Network.DHCP = false

	require.NoError(t, New(hv, newMockDisks()).Up(context.Background(), s, false))
	assert.Equal(t, libvirt.NetworkNATNoDHCP, hv.networks["dev-stand-net"].Kind)
}

func TestUp_Existing(t *testing.T) {
	image := writeImage(t)
	hv := newMockHypervisor()
	p := New(hv, newMockDisks())
	ctx := context.Background()

	require.NoError(t, p.Up(ctx, testStand(t, image), false))

	err := p.Up(ctx, testStand(t, image), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStandExists))

	require.NoError(t, p.Up(ctx, testStand(t, image), true))
	assert.ElementsMatch(t, []string{"dev-stand-bootstrap", "dev-stand-bm-0"}, hv.destroyedDomains)
	assert.Equal(t, []string{"dev-stand-net"}, hv.destroyedNetworks)
	assert.Len(t, hv.domains, 2)
}

func TestUp_CleansUpOnFailure(t *testing.T) {
	hv := newMockHypervisor()
	hv.createDomainErr["dev-stand-bm-0"] = errors.New("virsh define failed")
	disks := newMockDisks()

	err := New(hv, disks).Up(context.Background(), testStand(t, writeImage(t)), false)
	require.Error(t, err)

	assert.Empty(t, hv.domains)
	assert.Equal(t, []string{"dev-stand-bootstrap"}, hv.destroyedDomains)
	assert.Equal(t, []string{"dev-stand-net"}, hv.destroyedNetworks)

	// Only the failed baremetal's own disk is removed by createNode
	require.Len(t, disks.removed, 1)
	assert.Contains(t, disks.created[len(disks.created)-1], disks.removed[0])
}

func TestUp_RemovesCopiedImageOnFailure(t *testing.T) {
	hv := newMockHypervisor()
	hv.createDomainErr["dev-stand-bootstrap"] = errors.New("virsh define failed")
	disks := newMockDisks()

	err := New(hv, disks).Up(context.Background(), testStand(t, writeImage(t)), false)
	require.Error(t, err)

	assert.Contains(t, disks.removed, "/pool/core.qcow2")
	assert.Len(t, disks.removed, 2)
}

func TestUp_KeepsInplaceImageOnFailure(t *testing.T) {
	hv := newMockHypervisor()
	hv.createDomainErr["dev-stand-bootstrap"] = errors.New("virsh define failed")
	disks := newMockDisks()
	image := writeImage(t)

	s := testStand(t, image)
	s.Bootstraps[0].UseImageInplace = true

	err := New(hv, disks).Up(context.Background(), s, false)
	require.Error(t, err)

	assert.NotContains(t, disks.removed, image)
	assert.Len(t, disks.removed, 1)
}

func TestUp_DiskFailure(t *testing.T) {
	hv := newMockHypervisor()
	disks := newMockDisks()
	disks.createErr = errors.New("qemu-img failed")

	err := New(hv, disks).Up(context.Background(), testStand(t, writeImage(t)), false)
	require.Error(t, err)
	assert.Empty(t, hv.createdDomains)
	assert.Empty(t, hv.networks)
}

func TestUp_Invalid(t *testing.T) {
	s := testStand(t, "")
	err := New(newMockHypervisor(), newMockDisks()).Up(context.Background(), s, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image")
}

func TestDown(t *testing.T) {
	hv := newMockHypervisor()
	p := New(hv, newMockDisks())
	ctx := context.Background()

	require.NoError(t, p.Up(ctx, testStand(t, writeImage(t)), false))

	found, err := p.Down(ctx, "dev-stand", "dev-stand-net")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, hv.domains)
	assert.Empty(t, hv.networks)

	found, err = p.Down(ctx, "dev-stand", "dev-stand-net")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDown_ContinuesPastFailures(t *testing.T) {
	hv := newMockHypervisor()
	p := New(hv, newMockDisks())
	ctx := context.Background()
	require.NoError(t, p.Up(ctx, testStand(t, writeImage(t)), false))

	hv.destroyErr["dev-stand-bootstrap"] = errors.New("domain is locked")
	found, err := p.Down(ctx, "dev-stand", "dev-stand-net")
	require.Error(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"dev-stand-bm-0"}, hv.destroyedDomains)
	assert.Equal(t, []string{"dev-stand-net"}, hv.destroyedNetworks)
}

func TestList(t *testing.T) {
	hv := newMockHypervisor()
	hv.domains["dev-stand-bootstrap"] = libvirt.DomainSpec{Name: "dev-stand-bootstrap"}
	hv.domains["other-bootstrap"] = libvirt.DomainSpec{Name: "other-bootstrap"}
	hv.domains["bootstrap-legacy"] = libvirt.DomainSpec{Name: "bootstrap-legacy"}
	hv.domains["dev-stand-bm-0"] = libvirt.DomainSpec{Name: "dev-stand-bm-0"}
	hv.ips["dev-stand-bootstrap"] = []string{"192.168.4.10"}
	hv.ips["other-bootstrap"] = []string{"error"}

	installations, err := New(hv, newMockDisks()).List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []Installation{
		{Name: "bootstrap-legacy", Domain: "bootstrap-legacy"},
		{Name: "dev-stand", Domain: "dev-stand-bootstrap", IP: "192.168.4.10"},
		{Name: "other", Domain: "other-bootstrap"},
	}, installations)
}

func TestList_Empty(t *testing.T) {
	installations, err := New(newMockHypervisor(), newMockDisks()).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, installations)
	assert.Empty(t, installations)
}

func TestWaitForIP(t *testing.T) {
	hv := newMockHypervisor()
	hv.ips["vm"] = []string{"", "error", "10.0.0.5"}

	p := New(hv, newMockDisks(), WithPollInterval(time.Millisecond))
	ip, err := p.WaitForIP(context.Background(), "vm")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", ip)
	assert.Equal(t, 3, hv.ipCalls)
}

func TestWaitForIP_Timeout(t *testing.T) {
	p := New(newMockHypervisor(), newMockDisks(), WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.WaitForIP(ctx, "vm")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
