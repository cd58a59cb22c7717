// Package config loads the static YAML configuration shared by every
// orvdm binary: control-plane endpoint, broker connection, warehouse
// defaults, and credential file locations.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level on-disk shape.
type Config struct {
	ControlPlane  ControlPlaneConfig  `yaml:"controlPlane"`
	Broker        BrokerConfig        `yaml:"broker"`
	Warehouse     WarehouseConfig     `yaml:"warehouse"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	SizeCacher    SizeCacherConfig    `yaml:"sizeCacher"`
	Coordinator   CoordinatorConfig   `yaml:"coordinator"`
	LogLevel      string              `yaml:"logLevel"`
	LogJSON       bool                `yaml:"logJSON"`
}

// ControlPlaneConfig points the HTTP client at the control-plane API.
type ControlPlaneConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// BrokerConfig configures the job broker connection.
type BrokerConfig struct {
	ConnectionString string   `yaml:"connectionString"`
	Queues           []string `yaml:"queues"`
}

// WarehouseConfig mirrors the subset of control-plane warehouse
// settings a worker needs locally (SMB/SSH credential files, plugin
// directory) that are not themselves part of the control-plane API.
type WarehouseConfig struct {
	SMBCredentialsFile string `yaml:"smbCredentialsFile"`
	SSHKeyFile         string `yaml:"sshKeyFile"`
	PluginDir          string `yaml:"pluginDir"`
	PluginSuffix       string `yaml:"pluginSuffix"`
}

// SchedulerConfig configures the scheduler binary.
type SchedulerConfig struct {
	IntervalMinutes int      `yaml:"intervalMinutes"`
	RaftPeers       []string `yaml:"raftPeers"`
	RaftDataDir     string   `yaml:"raftDataDir"`
	RaftBindAddr    string   `yaml:"raftBindAddr"`
	RaftNodeID      string   `yaml:"raftNodeID"`
}

// SizeCacherConfig configures the size cacher binary.
type SizeCacherConfig struct {
	IntervalSeconds int    `yaml:"intervalSeconds"`
	CacheDir        string `yaml:"cacheDir"`
}

// CoordinatorConfig configures a worker's loopback admin RPC listener.
type CoordinatorConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// defaults applied after decode; any zero-value field in the file keeps
// its default.
func (c *Config) applyDefaults() {
	if c.ControlPlane.Timeout == 0 {
		c.ControlPlane.Timeout = 5 * time.Second
	}
	if c.Warehouse.PluginSuffix == "" {
		c.Warehouse.PluginSuffix = "_plugin.py"
	}
	if c.Scheduler.IntervalMinutes == 0 {
		c.Scheduler.IntervalMinutes = 2
	}
	if c.Scheduler.RaftNodeID == "" {
		c.Scheduler.RaftNodeID = "scheduler-1"
	}
	if c.SizeCacher.IntervalSeconds == 0 {
		c.SizeCacher.IntervalSeconds = 30
	}
	if c.Coordinator.ListenAddr == "" {
		c.Coordinator.ListenAddr = "127.0.0.1:9091"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Load reads and decodes the YAML config file at path, applying
// defaults for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}
