package disk

import (
	"context"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/hearth/internal/runner/runnertest"
)

func TestCreateQCOW2(t *testing.T) {
	fake := runnertest.New()
	m := NewManager(fake, "/pool", zerolog.Nop())

	path, err := m.CreateQCOW2(context.Background(), "abc-1.qcow2", 10)
	require.NoError(t, err)
	assert.Equal(t, "/pool/abc-1.qcow2", path)
	assert.True(t, fake.Called("qemu-img create -f qcow2 /pool/abc-1.qcow2 10G"))
}

func TestCreateQCOW2_Errors(t *testing.T) {
	fake := runnertest.New().Fail("qemu-img create -f qcow2 /pool/a.qcow2 5G", "No space left on device")
	m := NewManager(fake, "/pool", zerolog.Nop())

	_, err := m.CreateQCOW2(context.Background(), "a.qcow2", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No space left on device")

	_, err = m.CreateQCOW2(context.Background(), "b.qcow2", 0)
	assert.Error(t, err)
}

func TestNewManager_DefaultPool(t *testing.T) {
	m := NewManager(runnertest.New(), "", zerolog.Nop())
	assert.Equal(t, DefaultPoolPath, m.PoolPath())
}

func TestCopyIntoPool(t *testing.T) {
	fake := runnertest.New()
	m := NewManager(fake, "/pool", zerolog.Nop())

	dst, err := m.CopyIntoPool(context.Background(), "/home/dev/output/core.raw")
	require.NoError(t, err)
	assert.Equal(t, "/pool/core.raw", dst)

	require.Len(t, fake.Calls, 2)
	assert.Equal(t, []string{"rm", "-f", "/pool/core.raw"}, fake.Calls[0])
	assert.Equal(t, []string{"cp", "/home/dev/output/core.raw", "/pool/core.raw"}, fake.Calls[1])
}

func TestWriteIntoPool(t *testing.T) {
	var staged []byte
	fake := runnertest.New()
	fake.Handler = func(argv []string) (string, error) {
		if argv[0] == "cp" {
			data, err := os.ReadFile(argv[1])
			if err != nil {
				return "", err
			}
			staged = data
		}
		return "", nil
	}
	m := NewManager(fake, "/pool", zerolog.Nop())

	dst, err := m.WriteIntoPool(context.Background(), "abc-config-drive.iso", []byte("ISO"))
	require.NoError(t, err)
	assert.Equal(t, "/pool/abc-config-drive.iso", dst)
	assert.Equal(t, []byte("ISO"), staged)

	_, err = m.WriteIntoPool(context.Background(), "empty.iso", nil)
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	fake := runnertest.New()
	m := NewManager(fake, "/pool", zerolog.Nop())

	require.NoError(t, m.Remove(context.Background(), "/pool/a.qcow2", "/pool/b.qcow2"))
	assert.Equal(t, 2, fake.Count("rm -f /pool/"))
}
