package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	SchemaVersion       = 1
	DefaultPath         = "/etc/climatelink/config.yaml"
	DefaultGRPCAddr     = "0.0.0.0:9000"
	DefaultHTTPAddr     = "0.0.0.0:8080"
	DefaultDashboardDir = "/var/lib/climatelink/dashboards"
	DefaultProfilesDir  = "/var/lib/climatelink/profiles"
	DefaultLogLevel     = "info"
	DefaultBlobPrefix   = "climatelink/profiles"
	DefaultTopicPrefix  = "climatelink"
	EnvPrefix           = "CLIMATELINK"
)

// KnownPlugins lists the plugin ids this build can enable.
var KnownPlugins = []string{"provisioning", "ircodes"}

// Config is the server configuration file.
type Config struct {
	SchemaVersion int                 `mapstructure:"schema_version"`
	Core          CoreConfig          `mapstructure:"core"`
	Profiles      ProfilesConfig      `mapstructure:"profiles"`
	Provisioning  *ProvisioningConfig `mapstructure:"provisioning"`
	Blob          *BlobConfig         `mapstructure:"blob"`
	MQTT          *MQTTConfig         `mapstructure:"mqtt"`
	Ledger        *LedgerConfig       `mapstructure:"ledger"`
}

type CoreConfig struct {
	GRPCAddr     string   `mapstructure:"grpc_addr"`
	HTTPAddr     string   `mapstructure:"http_addr"`
	DashboardDir string   `mapstructure:"dashboard_dir"`
	LogLevel     string   `mapstructure:"log_level"`
	Plugins      []string `mapstructure:"plugins"`
}

type ProfilesConfig struct {
	Dir string `mapstructure:"dir"`
}

// ProvisioningConfig tunes the provisioning plugin.
type ProvisioningConfig struct {
	// RenderDir, when set, receives a copy of every rendered header set
	// under <render_dir>/<profile>/.
	RenderDir string `mapstructure:"render_dir"`
}

// BlobConfig mirrors profile documents to S3-compatible storage.
type BlobConfig struct {
	Endpoint      string `mapstructure:"endpoint"`
	Bucket        string `mapstructure:"bucket"`
	Prefix        string `mapstructure:"prefix"`
	Region        string `mapstructure:"region"`
	AccessKeyFile string `mapstructure:"access_key_file"`
	SecretKeyFile string `mapstructure:"secret_key_file"`
}

// MQTTConfig publishes profile status to a broker.
type MQTTConfig struct {
	Broker       string `mapstructure:"broker"`
	TopicPrefix  string `mapstructure:"topic_prefix"`
	Username     string `mapstructure:"username"`
	PasswordFile string `mapstructure:"password_file"`
	ClientID     string `mapstructure:"client_id"`
}

// LedgerConfig records every render in a local sqlite database.
type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

// envKeys are the settings that can be overridden from the environment,
// e.g. CLIMATELINK_CORE_GRPC_ADDR.
var envKeys = []string{
	"core.grpc_addr",
	"core.http_addr",
	"core.dashboard_dir",
	"core.log_level",
	"profiles.dir",
}

// Load reads the YAML config file, applies environment overrides and
// defaults, and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Core.GRPCAddr == "" {
		cfg.Core.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Core.HTTPAddr == "" {
		cfg.Core.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Core.DashboardDir == "" {
		cfg.Core.DashboardDir = DefaultDashboardDir
	}
	if cfg.Core.LogLevel == "" {
		cfg.Core.LogLevel = DefaultLogLevel
	}
	if len(cfg.Core.Plugins) == 0 {
		cfg.Core.Plugins = append([]string(nil), KnownPlugins...)
	}

	if cfg.Profiles.Dir == "" {
		cfg.Profiles.Dir = DefaultProfilesDir
	}

	if cfg.Blob != nil && cfg.Blob.Prefix == "" {
		cfg.Blob.Prefix = DefaultBlobPrefix
	}
	if cfg.MQTT != nil && cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
}

// Validate enforces required invariants beyond typing.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if cfg.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version must be %d", SchemaVersion)
	}

	if cfg.Core.GRPCAddr == "" {
		return fmt.Errorf("core.grpc_addr is required")
	}
	if cfg.Core.HTTPAddr == "" {
		return fmt.Errorf("core.http_addr is required")
	}
	for _, id := range cfg.Core.Plugins {
		if !isKnownPlugin(id) {
			return fmt.Errorf("core.plugins: unknown plugin %q", id)
		}
	}
	if cfg.Profiles.Dir == "" {
		return fmt.Errorf("profiles.dir is required")
	}

	if cfg.Blob != nil {
		if cfg.Blob.Endpoint == "" {
			return fmt.Errorf("blob.endpoint is required")
		}
		if cfg.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required")
		}
		if cfg.Blob.AccessKeyFile == "" {
			return fmt.Errorf("blob.access_key_file is required")
		}
		if cfg.Blob.SecretKeyFile == "" {
			return fmt.Errorf("blob.secret_key_file is required")
		}
	}

	if cfg.MQTT != nil && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if cfg.Ledger != nil && cfg.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required")
	}

	return nil
}

// EnabledPlugins maps enabled plugin IDs from core.plugins.
func EnabledPlugins(cfg *Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	for _, id := range cfg.Core.Plugins {
		enabled[id] = true
	}
	return enabled
}

func isKnownPlugin(id string) bool {
	for _, known := range KnownPlugins {
		if known == id {
			return true
		}
	}
	return false
}
