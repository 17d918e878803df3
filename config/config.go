// Package config provides file-based configuration for systems-toolbox
// applications: per-component channel options plus firehose relay and
// metrics settings. JSON and YAML formats are supported.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clyfe/systems-toolbox/channel"
	"github.com/clyfe/systems-toolbox/component"
	"github.com/clyfe/systems-toolbox/errors"
)

// ComponentConfig holds the per-component options a deployment can
// override. Unset fields fall back to the runtime defaults.
type ComponentConfig struct {
	InChan         *channel.BufferSpec `json:"in_chan,omitempty"          yaml:"in_chan,omitempty"`
	SlidingInChan  *channel.BufferSpec `json:"sliding_in_chan,omitempty"  yaml:"sliding_in_chan,omitempty"`
	OutChan        *channel.BufferSpec `json:"out_chan,omitempty"         yaml:"out_chan,omitempty"`
	SlidingOutChan *channel.BufferSpec `json:"sliding_out_chan,omitempty" yaml:"sliding_out_chan,omitempty"`
	FirehoseChan   *channel.BufferSpec `json:"firehose_chan,omitempty"    yaml:"firehose_chan,omitempty"`

	ThrottleMS int `json:"throttle_ms,omitempty" yaml:"throttle_ms,omitempty"`

	MsgsOnFirehose      *bool `json:"msgs_on_firehose,omitempty"      yaml:"msgs_on_firehose,omitempty"`
	SnapshotsOnFirehose *bool `json:"snapshots_on_firehose,omitempty" yaml:"snapshots_on_firehose,omitempty"`
	ReloadCmp           *bool `json:"reload_cmp,omitempty"            yaml:"reload_cmp,omitempty"`
}

// Options converts the config entry to runtime options, merging over the
// documented defaults.
func (cc ComponentConfig) Options() *component.Options {
	opts := component.DefaultOptions()

	if cc.InChan != nil {
		opts.InChan = *cc.InChan
	}
	if cc.SlidingInChan != nil {
		opts.SlidingInChan = *cc.SlidingInChan
	}
	if cc.OutChan != nil {
		opts.OutChan = *cc.OutChan
	}
	if cc.SlidingOutChan != nil {
		opts.SlidingOutChan = *cc.SlidingOutChan
	}
	if cc.FirehoseChan != nil {
		opts.FirehoseChan = *cc.FirehoseChan
	}
	if cc.ThrottleMS > 0 {
		opts.Throttle = time.Duration(cc.ThrottleMS) * time.Millisecond
	}
	if cc.MsgsOnFirehose != nil {
		opts.MsgsOnFirehose = *cc.MsgsOnFirehose
	}
	if cc.SnapshotsOnFirehose != nil {
		opts.SnapshotsOnFirehose = *cc.SnapshotsOnFirehose
	}
	if cc.ReloadCmp != nil {
		opts.ReloadCmp = *cc.ReloadCmp
	}

	return opts
}

// NATSRelayConfig configures the firehose NATS relay.
type NATSRelayConfig struct {
	URL     string `json:"url"     yaml:"url"`
	Subject string `json:"subject" yaml:"subject"`
}

// WebSocketConfig configures the firehose WebSocket streamer.
type WebSocketConfig struct {
	Addr string `json:"addr"           yaml:"addr"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// FirehoseConfig groups the firehose adapter settings. Nil adapters are
// disabled.
type FirehoseConfig struct {
	NATS      *NATSRelayConfig `json:"nats,omitempty"      yaml:"nats,omitempty"`
	WebSocket *WebSocketConfig `json:"websocket,omitempty" yaml:"websocket,omitempty"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"        yaml:"enabled"`
	Port    int    `json:"port,omitempty" yaml:"port,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `json:"level,omitempty"  yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // json, text
}

// Config is the complete application configuration.
type Config struct {
	Logging    LoggingConfig              `json:"logging,omitempty"    yaml:"logging,omitempty"`
	Metrics    MetricsConfig              `json:"metrics,omitempty"    yaml:"metrics,omitempty"`
	Firehose   FirehoseConfig             `json:"firehose,omitempty"   yaml:"firehose,omitempty"`
	Components map[string]ComponentConfig `json:"components,omitempty" yaml:"components,omitempty"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: false, Port: 9090, Path: "/metrics"},
	}
}

// Load reads and validates a configuration file. The format is chosen by
// extension: .json for JSON, .yaml/.yml for YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Config", "Load", "file read")
	}

	cfg := Default()
	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "JSON parsing")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "YAML parsing")
		}
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("unsupported config format %q", ext),
			"Config", "Load", "format detection")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on configuration errors: unknown buffer specs,
// malformed relay settings, bad log levels.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("log level %q", c.Logging.Level))
	}

	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("log format %q", c.Logging.Format))
	}

	for name, cc := range c.Components {
		for _, spec := range []*channel.BufferSpec{
			cc.InChan, cc.SlidingInChan, cc.OutChan, cc.SlidingOutChan, cc.FirehoseChan,
		} {
			if spec == nil {
				continue
			}
			if err := spec.Validate(); err != nil {
				return errors.Wrap(err, "Config", "Validate",
					fmt.Sprintf("component %q buffer spec", name))
			}
		}
		if cc.ThrottleMS < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("component %q negative throttle", name))
		}
	}

	if c.Firehose.NATS != nil {
		if c.Firehose.NATS.URL == "" || c.Firehose.NATS.Subject == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"firehose NATS relay requires url and subject")
		}
	}
	if c.Firehose.WebSocket != nil && c.Firehose.WebSocket.Addr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
			"firehose WebSocket streamer requires addr")
	}

	return nil
}
