package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HEARTH_LOG_LEVEL.
const EnvPrefix = "HEARTH"

// Settings is the resolved hearth configuration.
type Settings struct {
	Log     LogSettings     `mapstructure:"log"`
	IAM     IAMSettings     `mapstructure:"iam"`
	Backup  BackupSettings  `mapstructure:"backup"`
	Libvirt LibvirtSettings `mapstructure:"libvirt"`
}

// LogSettings configures logging.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// IAMSettings configures the identity client.
type IAMSettings struct {
	Endpoint     string        `mapstructure:"endpoint"`
	ProjectID    string        `mapstructure:"project_id"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Scope        string        `mapstructure:"scope"`
	TTL          int           `mapstructure:"ttl"`
	RefreshTTL   int           `mapstructure:"refresh_ttl"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// BackupSettings configures backups.
type BackupSettings struct {
	Dir       string     `mapstructure:"dir"`
	Snapshot  string     `mapstructure:"snapshot"`
	Rotate    int        `mapstructure:"rotate"`
	MinFreeGB uint64     `mapstructure:"min_free_gb"`
	S3        S3Settings `mapstructure:"s3"`
}

// S3Settings selects the S3 exporter when Bucket is set.
type S3Settings struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// LibvirtSettings configures hypervisor access.
type LibvirtSettings struct {
	Socket   string `mapstructure:"socket"`
	PoolPath string `mapstructure:"pool_path"`
	Sudo     bool   `mapstructure:"sudo"`
}

// Load resolves settings from defaults, an optional config file and
// HEARTH_* environment variables, in increasing priority. Flags bound to v
// by the caller take precedence over all of them.
//
// With an empty configFile, hearth.yaml is looked up in the current
// directory, $HOME/.config/hearth and /etc/hearth; a missing file is fine.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("hearth")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "hearth"))
		}
		v.AddConfigPath("/etc/hearth")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("iam.endpoint", "")
	v.SetDefault("iam.project_id", "")
	v.SetDefault("iam.client_id", "")
	v.SetDefault("iam.client_secret", "")
	v.SetDefault("iam.scope", DefaultIAMScope)
	v.SetDefault("iam.ttl", DefaultIAMTTL)
	v.SetDefault("iam.refresh_ttl", DefaultIAMRefreshTTL)
	v.SetDefault("iam.timeout", 30*time.Second)

	v.SetDefault("backup.dir", "/var/backups/hearth")
	v.SetDefault("backup.snapshot", "backup")
	v.SetDefault("backup.rotate", 0)
	v.SetDefault("backup.min_free_gb", 50)
	v.SetDefault("backup.s3.endpoint", "")
	v.SetDefault("backup.s3.region", "us-east-1")
	v.SetDefault("backup.s3.bucket", "")
	v.SetDefault("backup.s3.prefix", "")
	v.SetDefault("backup.s3.access_key", "")
	v.SetDefault("backup.s3.secret_key", "")

	v.SetDefault("libvirt.socket", "/var/run/libvirt/libvirt-sock")
	v.SetDefault("libvirt.pool_path", "/var/lib/libvirt/images")
	v.SetDefault("libvirt.sudo", true)
}

// Identity defaults.
const (
	DefaultIAMScope      = ""
	DefaultIAMTTL        = 86400
	DefaultIAMRefreshTTL = 2592000
)
