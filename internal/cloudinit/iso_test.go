package cloudinit

import (
	"bytes"
	"io"
	"testing"

	"github.com/kdomanski/iso9660"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateISO(t *testing.T) {
	cfg := Config{
		Hostname:   "dev-stand-bootstrap",
		InstanceID: "2f1b4b7c-0d7e-4a4b-9c53-0b3f6c2d8e11",
		SSHKeys:    []string{testSSHKeyEd25519},
	}

	data, err := GenerateISO(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	img, err := iso9660.OpenImage(bytes.NewReader(data))
	require.NoError(t, err)

	label, err := img.Label()
	require.NoError(t, err)
	assert.Equal(t, VolumeLabel, label)

	root, err := img.RootDir()
	require.NoError(t, err)
	children, err := root.GetChildren()
	require.NoError(t, err)

	got := make(map[string]string, len(children))
	for _, child := range children {
		content, err := io.ReadAll(child.Reader())
		require.NoError(t, err)
		got[child.Name()] = string(content)
	}

	userData, err := GenerateUserData(cfg)
	require.NoError(t, err)
	metaData, err := GenerateMetaData(cfg)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"user-data": userData,
		"meta-data": metaData,
	}, got)
}

func TestGenerateISO_InvalidConfig(t *testing.T) {
	_, err := GenerateISO(Config{})
	assert.ErrorContains(t, err, "hostname is required")
}
