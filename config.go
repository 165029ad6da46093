package samp

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML configuration read by the sampc command.
//
//	metadata:
//	  samp.name: My Session
//	scratch_dir: /tmp/samptables
//	heartbeat_interval: 10s
//	hub:
//	  start: true
//	  addr: 127.0.0.1:0
//	  lockfile: /tmp/samp-lock
type FileConfig struct {
	Metadata          map[string]string `yaml:"metadata"`
	ScratchDir        string            `yaml:"scratch_dir"`
	HeartbeatInterval time.Duration     `yaml:"heartbeat_interval"`
	CallTimeout       time.Duration     `yaml:"call_timeout"`
	Hub               HubFileConfig     `yaml:"hub"`
}

// HubFileConfig configures the hub section of a FileConfig.
type HubFileConfig struct {
	Start        bool   `yaml:"start"`
	Addr         string `yaml:"addr"`
	Lockfile     string `yaml:"lockfile"`
	Label        string `yaml:"label"`
	ServeMetrics bool   `yaml:"serve_metrics"`
}

// LoadConfig reads a FileConfig from path. An empty path yields the zero config.
func LoadConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func (c FileConfig) validate() error {
	if c.HeartbeatInterval < 0 {
		return errors.New("heartbeat_interval must not be negative")
	}
	if c.CallTimeout < 0 {
		return errors.New("call_timeout must not be negative")
	}
	for k := range c.Metadata {
		if strings.TrimSpace(k) == "" {
			return errors.New("metadata has an empty key")
		}
	}
	return nil
}

// HubConfig returns the hub settings as a HubConfig.
func (c FileConfig) HubConfig() HubConfig {
	return HubConfig{
		Addr:         c.Hub.Addr,
		LockfilePath: c.Hub.Lockfile,
		Label:        c.Hub.Label,
		ServeMetrics: c.Hub.ServeMetrics,
	}
}

// ProxyConfig returns a ProxyConfig built from the file settings.
func (c FileConfig) ProxyConfig() ProxyConfig {
	return ProxyConfig{
		StartHub:   c.Hub.Start,
		Hub:        c.HubConfig(),
		Metadata:   Metadata(c.Metadata).Clone(),
		ScratchDir: c.ScratchDir,
		Connection: ConnectionConfig{
			HeartbeatInterval: c.HeartbeatInterval,
			CallTimeout:       c.CallTimeout,
		},
	}
}
