// Package config resolves the server's data directory and optional config
// file, grounded on original_source/memsql_loader/util/paths.py (the
// MEMSQL_LOADER_DATA_DIRECTORY environment variable and its default) and
// tysonthomas9-beads' viper-backed config loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DataDirEnvVar is the environment variable overriding the default data
// directory, mirroring paths.py's MEMSQL_LOADER_DATA_DIRECTORY.
const DataDirEnvVar = "MEMSQL_LOADER_DATA_DIRECTORY"

// DefaultDataDir returns ~/.memsql-loader, the fallback when
// MEMSQL_LOADER_DATA_DIRECTORY is unset.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".memsql-loader"), nil
}

// DataDir resolves the effective data directory: the env var if set,
// otherwise DefaultDataDir.
func DataDir() (string, error) {
	if dir := os.Getenv(DataDirEnvVar); dir != "" {
		return dir, nil
	}
	return DefaultDataDir()
}

// Config is the server's tunable configuration, loadable from a config
// file, environment variables (MEMSQL_LOADER_* prefix), or flags bound by
// the CLI layer.
type Config struct {
	DataDir        string `mapstructure:"data_dir"`
	WorkerPoolSize int    `mapstructure:"worker_pool_size"`
	WorkerSleep    float64 `mapstructure:"worker_sleep"`
	LogMaxSizeMB   int    `mapstructure:"log_max_size_mb"`
}

// Load builds a viper instance reading, in order of increasing priority,
// defaults, an optional config file at dataDir/config.yaml, and
// MEMSQL_LOADER_-prefixed environment variables.
func Load(dataDir string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("memsql_loader")
	v.AutomaticEnv()

	v.SetDefault("data_dir", dataDir)
	v.SetDefault("worker_pool_size", 0) // 0 means workerpool.DefaultSize()
	v.SetDefault("worker_sleep", 0.5)
	v.SetDefault("log_max_size_mb", 50)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dataDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
