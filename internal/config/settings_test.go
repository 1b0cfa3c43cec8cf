package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	s, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, 30*time.Second, s.IAM.Timeout)
	assert.Equal(t, DefaultIAMTTL, s.IAM.TTL)
	assert.Equal(t, "backup", s.Backup.Snapshot)
	assert.Equal(t, uint64(50), s.Backup.MinFreeGB)
	assert.True(t, s.Libvirt.Sudo)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hearth.yaml")
	content := `
log:
  level: debug
iam:
  endpoint: https://iam.example.com/v1/iam
  project_id: p-1
  timeout: 5s
backup:
  rotate: 7
  s3:
    bucket: backups
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("HEARTH_LOG_LEVEL", "warn")
	t.Setenv("HEARTH_BACKUP_MIN_FREE_GB", "10")

	s, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "warn", s.Log.Level, "environment overrides the file")
	assert.Equal(t, "https://iam.example.com/v1/iam", s.IAM.Endpoint)
	assert.Equal(t, "p-1", s.IAM.ProjectID)
	assert.Equal(t, 5*time.Second, s.IAM.Timeout)
	assert.Equal(t, 7, s.Backup.Rotate)
	assert.Equal(t, uint64(10), s.Backup.MinFreeGB)
	assert.Equal(t, "backups", s.Backup.S3.Bucket)
	assert.Equal(t, "us-east-1", s.Backup.S3.Region)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
