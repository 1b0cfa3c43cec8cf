package stand

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jbweber/hearth/internal/libvirt"
	"github.com/jbweber/hearth/internal/virsh"
)

// mockHypervisor is a mock implementation of the Hypervisor interface for testing.
type mockHypervisor struct {
	mu sync.Mutex

	// State
	domains  map[string]libvirt.DomainSpec
	networks map[string]libvirt.NetworkSpec
	ips      map[string][]string // successive DomainIP answers

	// Configurable failures
	createDomainErr  map[string]error
	createNetworkErr error
	destroyErr       map[string]error

	// Call tracking
	createdDomains    []string
	destroyedDomains  []string
	destroyedNetworks []string
	ipCalls           int
}

func newMockHypervisor() *mockHypervisor {
	return &mockHypervisor{
		domains:         map[string]libvirt.DomainSpec{},
		networks:        map[string]libvirt.NetworkSpec{},
		ips:             map[string][]string{},
		createDomainErr: map[string]error{},
		destroyErr:      map[string]error{},
	}
}

func (m *mockHypervisor) ListDomains(_ context.Context, opts virsh.ListOptions) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	for name, spec := range m.domains {
		if opts.MetaTag == "" || strings.Contains(strings.Join(spec.MetaTags, ""), opts.MetaTag) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (m *mockHypervisor) DomainIP(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ipCalls++
	answers := m.ips[name]
	if len(answers) == 0 {
		return "", nil
	}
	ip := answers[0]
	if len(answers) > 1 {
		m.ips[name] = answers[1:]
	}
	if ip == "error" {
		return "", fmt.Errorf("net-dhcp-leases failed")
	}
	return ip, nil
}

func (m *mockHypervisor) CreateDomain(_ context.Context, spec libvirt.DomainSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.createDomainErr[spec.Name]; err != nil {
		return err
	}
	m.domains[spec.Name] = spec
	m.createdDomains = append(m.createdDomains, spec.Name)
	return nil
}

func (m *mockHypervisor) DestroyDomain(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.destroyErr[name]; err != nil {
		return err
	}
	delete(m.domains, name)
	m.destroyedDomains = append(m.destroyedDomains, name)
	return nil
}

func (m *mockHypervisor) HasNetwork(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.networks[name]
	return ok, nil
}

func (m *mockHypervisor) CreateNetwork(_ context.Context, spec libvirt.NetworkSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createNetworkErr != nil {
		return m.createNetworkErr
	}
	m.networks[spec.Name] = spec
	return nil
}

func (m *mockHypervisor) DestroyNetwork(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.networks, name)
	m.destroyedNetworks = append(m.destroyedNetworks, name)
	return nil
}

// mockDisks is a mock implementation of the Disks interface for testing.
type mockDisks struct {
	pool string

	createErr error

	created []string
	copied  []string
	written map[string][]byte
	removed []string
}

func newMockDisks() *mockDisks {
	return &mockDisks{pool: "/pool", written: map[string][]byte{}}
}

func (m *mockDisks) CreateQCOW2(_ context.Context, name string, sizeGB uint) (string, error) {
	if m.createErr != nil {
		return "", m.createErr
	}
	path := m.pool + "/" + name
	m.created = append(m.created, fmt.Sprintf("%s:%dG", path, sizeGB))
	return path, nil
}

func (m *mockDisks) CopyIntoPool(_ context.Context, src string) (string, error) {
	m.copied = append(m.copied, src)
	parts := strings.Split(src, "/")
	return m.pool + "/" + parts[len(parts)-1], nil
}

func (m *mockDisks) WriteIntoPool(_ context.Context, name string, data []byte) (string, error) {
	path := m.pool + "/" + name
	m.written[path] = data
	return path, nil
}

func (m *mockDisks) Remove(_ context.Context, paths ...string) error {
	m.removed = append(m.removed, paths...)
	return nil
}
