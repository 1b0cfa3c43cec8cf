package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// fakeDomains serves descriptors and disk lists from maps.
type fakeDomains struct {
	specs   map[string]string
	disks   map[string][]string
	dumpErr map[string]error
}

func (f *fakeDomains) DumpXML(_ context.Context, name string) (string, error) {
	if err := f.dumpErr[name]; err != nil {
		return "", err
	}
	spec, ok := f.specs[name]
	if !ok {
		return "", fmt.Errorf("domain %s not found", name)
	}
	return spec, nil
}

func (f *fakeDomains) DomainDisks(_ context.Context, name string) ([]string, error) {
	return f.disks[name], nil
}

// fakeVolumes records snapshot calls.
type fakeVolumes struct {
	mu sync.Mutex

	used       map[string]uint64
	createErr  map[string]error
	destroyErr map[string]error

	created   []string
	destroyed []string
	attempts  int
}

func newFakeVolumes() *fakeVolumes {
	return &fakeVolumes{
		used:       map[string]uint64{},
		createErr:  map[string]error{},
		destroyErr: map[string]error{},
	}
}

func (f *fakeVolumes) CreateSnapshot(_ context.Context, volume, snapshot string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.createErr[volume]; err != nil {
		return err
	}
	f.created = append(f.created, volume+"@"+snapshot)
	return nil
}

func (f *fakeVolumes) DestroySnapshot(_ context.Context, volume, snapshot string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if err := f.destroyErr[volume]; err != nil {
		return err
	}
	f.destroyed = append(f.destroyed, volume+"@"+snapshot)
	return nil
}

func (f *fakeVolumes) UsedBytes(_ context.Context, volume string) (uint64, error) {
	used, ok := f.used[volume]
	if !ok {
		return 0, errors.New("dataset does not exist")
	}
	return used, nil
}

// fakeExporter records exports.
type fakeExporter struct {
	specs    map[string]string
	exported map[string][]string
	specErr  error
	diskErr  error
}

func newFakeExporter() *fakeExporter {
	return &fakeExporter{specs: map[string]string{}, exported: map[string][]string{}}
}

func (f *fakeExporter) ExportSpec(_ context.Context, spec, dest string, _ *Encryption) error {
	if f.specErr != nil {
		return f.specErr
	}
	f.specs[dest] = spec
	return nil
}

func (f *fakeExporter) ExportDisks(_ context.Context, volumes []string, dest string, _ *Encryption) error {
	if f.diskErr != nil {
		return f.diskErr
	}
	f.exported[dest] = volumes
	return nil
}

// fakeSender writes a fixed payload per volume.
type fakeSender struct {
	payload map[string]string
	err     error
}

func (f *fakeSender) Send(_ context.Context, w io.Writer, volume, snapshot string) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, f.payload[volume+"@"+snapshot])
	return err
}
