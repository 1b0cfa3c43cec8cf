package stand

import (
	"context"

	"github.com/jbweber/hearth/internal/libvirt"
	"github.com/jbweber/hearth/internal/virsh"
)

// Hypervisor defines the domain and network operations needed to manage
// stands.
//
// In production, this is satisfied by *virsh.Client.
// In tests, this is satisfied by mock implementations.
type Hypervisor interface {
	// ListDomains lists domain names, optionally filtered by a metadata tag
	ListDomains(ctx context.Context, opts virsh.ListOptions) ([]string, error)

	// DomainIP returns the leased IPv4 address of a domain, or "" if none
	DomainIP(ctx context.Context, name string) (string, error)

	// CreateDomain defines and starts a domain
	CreateDomain(ctx context.Context, spec libvirt.DomainSpec) error

	// DestroyDomain stops and undefines a domain and removes its disk files
	DestroyDomain(ctx context.Context, name string) error

	// HasNetwork checks if a libvirt network exists
	HasNetwork(ctx context.Context, name string) (bool, error)

	// CreateNetwork defines, starts and autostarts a network
	CreateNetwork(ctx context.Context, spec libvirt.NetworkSpec) error

	// DestroyNetwork stops and undefines a network
	DestroyNetwork(ctx context.Context, name string) error
}

// Disks defines the storage pool operations needed to create domain disks.
//
// In production, this is satisfied by *disk.Manager.
type Disks interface {
	// CreateQCOW2 creates an empty qcow2 disk in the pool
	CreateQCOW2(ctx context.Context, name string, sizeGB uint) (string, error)

	// CopyIntoPool copies an image into the pool under its base name
	CopyIntoPool(ctx context.Context, src string) (string, error)

	// WriteIntoPool writes data into a new pool file
	WriteIntoPool(ctx context.Context, name string, data []byte) (string, error)

	// Remove deletes pool files
	Remove(ctx context.Context, paths ...string) error
}
