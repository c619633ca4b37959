// Package config provides a reusable viper-based loader for node
// configuration files and environment variables, shared by every role's
// cmd/<role> binary and the upgrade tool.
//
// Version: v0.1.0
package config

import (
	"fmt"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aurachain/node/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// NodeSpec describes one configured instance of a role within a test
// network: its dial address.
type NodeSpec struct {
	Address string `mapstructure:"address" json:"address"`
}

// DbModeSpec mirrors the specification's DbMode::{Live, Test(n), InMemory}
// tagged enum in a viper-unmarshalable shape: Kind selects which of the
// remaining fields is meaningful ("live" | "test" | "in_memory").
type DbModeSpec struct {
	Kind  string `mapstructure:"kind" json:"kind"`
	Index int    `mapstructure:"test_index" json:"test_index"`
}

// Config is the unified configuration file shape every role's binary loads
// via --config: role peer lists, per-role DB mode selection, and the
// tunables spec.md §5/§8 names (PARTITION_SIZE, timeouts, snapshot cadence).
type Config struct {
	ComputeNodes []NodeSpec `mapstructure:"compute_nodes" json:"compute_nodes"`
	StorageNodes []NodeSpec `mapstructure:"storage_nodes" json:"storage_nodes"`
	UserNodes    []NodeSpec `mapstructure:"user_nodes" json:"user_nodes"`
	MinerNodes   []NodeSpec `mapstructure:"miner_nodes" json:"miner_nodes"`

	ComputeDbMode DbModeSpec `mapstructure:"compute_db_mode" json:"compute_db_mode"`
	StorageDbMode DbModeSpec `mapstructure:"storage_db_mode" json:"storage_db_mode"`
	UserDbMode    DbModeSpec `mapstructure:"user_db_mode" json:"user_db_mode"`
	MinerDbMode   DbModeSpec `mapstructure:"miner_db_mode" json:"miner_db_mode"`

	PartitionSize      int `mapstructure:"partition_size" json:"partition_size"`
	MinTx              int `mapstructure:"min_tx" json:"min_tx"`
	AccumulateMs       int `mapstructure:"accumulate_ms" json:"accumulate_ms"`
	StorageSendTimeout int `mapstructure:"storage_send_timeout_s" json:"storage_send_timeout_s"`
	SnapshotInterval   int `mapstructure:"snapshot_interval" json:"snapshot_interval"`
	RaftTickMs         int `mapstructure:"raft_tick_ms" json:"raft_tick_ms"`

	APIPort    int    `mapstructure:"api_port" json:"api_port"`
	Passphrase string `mapstructure:"passphrase" json:"passphrase"`
	DBPath     string `mapstructure:"db_path" json:"db_path"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads the config file at path (without extension) and merges an
// optional env overlay (e.g. "local", "ci") on top. The resulting
// configuration is stored in AppConfig and returned.
func Load(path, env string) (*Config, error) {
	_ = godotenv.Load(".env") // best-effort; AURACHAIN_* overrides may live here instead

	if path == "" {
		path = "config/default"
	}
	viper.SetConfigFile(path + ".yaml")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigFile(filepath.Join(filepath.Dir(path), env+".yaml"))
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("AURACHAIN")
	viper.AutomaticEnv() // picks up AURACHAIN_* overrides

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the AURACHAIN_CONFIG/AURACHAIN_ENV
// environment variables to select the base file and optional overlay.
func LoadFromEnv() (*Config, error) {
	path := utils.EnvOrDefault("AURACHAIN_CONFIG", "config/default")
	overlay := utils.EnvOrDefault("AURACHAIN_ENV", "")
	return Load(path, overlay)
}
