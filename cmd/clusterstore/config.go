package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/clusterstore/pkg/errors"
	"github.com/mesh-intelligence/clusterstore/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	envPrefix = "CLUSTERSTORE"
)

// defaultConfigYAML is written by init when no config.yaml exists.
const defaultConfigYAML = `# clusterstore configuration
# Every key can be overridden with a CLUSTERSTORE_<KEY> environment variable.

dialect: sqlite

# Server dialects (postgres, mysql) need a uri.
# uri: localhost:5432/clusterstore
# user:
# password:

# SQLite database directory (overridable by --data-dir)
# data_dir:

auto_commit: false
read_only: false

max_pool_size: 50
min_idle: 10
idle_timeout: 30s
max_lifetime: 60s
acquire_timeout: 30s

name_length: 64
string_length: 800
`

// loadConfig reads config.yaml from configDir. A missing file is not an
// error: defaults and the environment apply.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, types.DefaultConfig())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, errors.Wrap(errors.New(errors.Configuration, err.Error()), "reading config")
	}
	return v, nil
}

// setDefaults registers every key so that environment overrides are seen by
// Unmarshal.
func setDefaults(v *viper.Viper, d types.Config) {
	v.SetDefault("dialect", d.Dialect)
	v.SetDefault("uri", d.URI)
	v.SetDefault("user", d.User)
	v.SetDefault("password", d.Password)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("auto_commit", d.AutoCommit)
	v.SetDefault("read_only", d.ReadOnly)
	v.SetDefault("max_pool_size", d.MaxPoolSize)
	v.SetDefault("min_idle", d.MinIdle)
	v.SetDefault("idle_timeout", d.IdleTimeout)
	v.SetDefault("max_lifetime", d.MaxLifetime)
	v.SetDefault("acquire_timeout", d.AcquireTimeout)
	v.SetDefault("name_length", d.NameLength)
	v.SetDefault("string_length", d.StringLength)
}

func decodeConfig(v *viper.Viper) (types.Config, error) {
	var cfg types.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(errors.New(errors.Configuration, err.Error()), "decoding config")
	}
	return cfg, nil
}

// ensureDefaultConfigFile writes config.yaml unless it exists. Reports
// whether a file was written.
func ensureDefaultConfigFile(configDir string) (bool, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return false, errors.Wrap(err, "creating config directory")
	}
	path := filepath.Join(configDir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, errors.Wrap(err, "stat config file")
	}
	return true, os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
