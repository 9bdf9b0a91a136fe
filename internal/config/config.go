// Package config loads settings from defaults, an optional YAML file and
// DDOS_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/nshruti113/ddos-detector/internal/detection"
	"github.com/nshruti113/ddos-detector/internal/logging"
)

const (
	// ConfigPathEnvVar names the config file when --config is not given
	ConfigPathEnvVar = "DDOS_CONFIG_PATH"
	envPrefix        = "DDOS_"
)

type Config struct {
	Detection   DetectionConfig   `koanf:"detection"`
	Enforcement EnforcementConfig `koanf:"enforcement"`
	Reporting   ReportingConfig   `koanf:"reporting"`
	Redis       RedisConfig       `koanf:"redis"`
	Server      ServerConfig      `koanf:"server"`
	Capture     CaptureConfig     `koanf:"capture"`
	Logging     LoggingConfig     `koanf:"logging"`
}

type DetectionConfig struct {
	Threshold             int           `koanf:"threshold"`
	WindowSeconds         int           `koanf:"window_seconds"`
	DedupWindowMultiplier int           `koanf:"dedup_window_multiplier"`
	ProcessPrivateSources bool          `koanf:"process_private_sources"`
	HistorySize           int           `koanf:"history_size"`
	QueueSize             int           `koanf:"queue_size"`
	PollTimeout           time.Duration `koanf:"poll_timeout"`
	MaintenanceInterval   time.Duration `koanf:"maintenance_interval"`
	MaxSources            int           `koanf:"max_sources"`
	TopN                  int           `koanf:"top_n"`
}

// Enforcer backends
const (
	BackendIptables = "iptables"
	BackendRedis    = "redis"
	BackendLog      = "log"
)

type EnforcementConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Backend         string        `koanf:"backend"`
	Timeout         time.Duration `koanf:"timeout"`
	TeardownTimeout time.Duration `koanf:"teardown_timeout"`
	IptablesChain   string        `koanf:"iptables_chain"`
	IptablesBinary  string        `koanf:"iptables_binary"`
}

type ReportingConfig struct {
	// Endpoint is the collector base URL; empty disables reporting
	Endpoint      string        `koanf:"endpoint"`
	TargetService string        `koanf:"target_service"`
	Timeout       time.Duration `koanf:"timeout"`
}

type RedisConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Addr         string `koanf:"addr"`
	Password     string `koanf:"password"`
	DB           int    `koanf:"db"`
	AlertChannel string `koanf:"alert_channel"`
	BlocklistKey string `koanf:"blocklist_key"`
	HistoryLimit int    `koanf:"history_limit"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// CaptureConfig selects a packet source. Interface and PcapFile are
// mutually exclusive; with neither set only the HTTP ingest API feeds
// the engine.
type CaptureConfig struct {
	Interface   string `koanf:"interface"`
	PcapFile    string `koanf:"pcap_file"`
	BPFFilter   string `koanf:"bpf_filter"`
	Snaplen     int    `koanf:"snaplen"`
	Promiscuous bool   `koanf:"promiscuous"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	d := detection.DefaultConfig()
	return &Config{
		Detection: DetectionConfig{
			Threshold:             d.Threshold,
			WindowSeconds:         int(d.Window / time.Second),
			DedupWindowMultiplier: d.DedupMultiplier,
			HistorySize:           d.HistorySize,
			QueueSize:             d.QueueSize,
			PollTimeout:           d.PollTimeout,
			MaintenanceInterval:   d.MaintenanceInterval,
			TopN:                  d.TopN,
		},
		Enforcement: EnforcementConfig{
			Backend:         BackendIptables,
			Timeout:         5 * time.Second,
			TeardownTimeout: d.TeardownTimeout,
			IptablesChain:   "INPUT",
			IptablesBinary:  "iptables",
		},
		Reporting: ReportingConfig{
			TargetService: "network-firewall",
			Timeout:       5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			AlertChannel: "alerts",
			BlocklistKey: "blocked:sources",
			HistoryLimit: 1000,
		},
		Server: ServerConfig{
			Addr: ":8888",
		},
		Capture: CaptureConfig{
			Snaplen:     1600,
			Promiscuous: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration. path may be empty, in which case
// DDOS_CONFIG_PATH is consulted.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		logging.Debug().Str("path", path).Msg("loaded config file")
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// sections lists the top-level keys; the first underscore after one of
// these prefixes separates section from field.
var sections = []string{"detection", "enforcement", "reporting", "redis", "server", "capture", "logging"}

// envTransformFunc maps DDOS_DETECTION_WINDOW_SECONDS to
// detection.window_seconds. Unknown sections are returned unchanged and
// therefore ignored by Unmarshal.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	for _, s := range sections {
		if strings.HasPrefix(key, s+"_") {
			return s + "." + strings.TrimPrefix(key, s+"_")
		}
	}
	return key
}

// Validate checks for values the engine cannot run with
func (c *Config) Validate() error {
	var errs []error

	d := c.Detection
	if d.Threshold < 1 {
		errs = append(errs, fmt.Errorf("detection.threshold must be >= 1, got %d", d.Threshold))
	}
	if d.WindowSeconds < 1 {
		errs = append(errs, fmt.Errorf("detection.window_seconds must be >= 1, got %d", d.WindowSeconds))
	}
	if d.DedupWindowMultiplier < 1 {
		errs = append(errs, fmt.Errorf("detection.dedup_window_multiplier must be >= 1, got %d", d.DedupWindowMultiplier))
	}
	if d.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("detection.queue_size must be >= 1, got %d", d.QueueSize))
	}
	if d.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("detection.history_size must be >= 1, got %d", d.HistorySize))
	}
	if d.MaxSources < 0 {
		errs = append(errs, fmt.Errorf("detection.max_sources must be >= 0, got %d", d.MaxSources))
	}
	if d.PollTimeout <= 0 || d.MaintenanceInterval <= 0 {
		errs = append(errs, errors.New("detection.poll_timeout and detection.maintenance_interval must be positive"))
	}

	if c.Enforcement.Timeout <= 0 || c.Enforcement.TeardownTimeout <= 0 {
		errs = append(errs, errors.New("enforcement.timeout and enforcement.teardown_timeout must be positive"))
	}

	switch c.Enforcement.Backend {
	case BackendIptables, BackendLog:
	case BackendRedis:
		if c.Enforcement.Enabled && !c.Redis.Enabled {
			errs = append(errs, errors.New("enforcement.backend redis requires redis.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown enforcement.backend %q", c.Enforcement.Backend))
	}

	if ep := c.Reporting.Endpoint; ep != "" {
		u, err := url.Parse(ep)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("reporting.endpoint %q is not an http(s) URL", ep))
		}
	}

	if c.Capture.Interface != "" && c.Capture.PcapFile != "" {
		errs = append(errs, errors.New("capture.interface and capture.pcap_file are mutually exclusive"))
	}

	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("unknown logging.level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// Engine converts the detection and enforcement sections into engine settings
func (c *Config) Engine() detection.Config {
	return detection.Config{
		Threshold:             c.Detection.Threshold,
		Window:                time.Duration(c.Detection.WindowSeconds) * time.Second,
		DedupMultiplier:       c.Detection.DedupWindowMultiplier,
		ProcessPrivateSources: c.Detection.ProcessPrivateSources,
		QueueSize:             c.Detection.QueueSize,
		PollTimeout:           c.Detection.PollTimeout,
		MaintenanceInterval:   c.Detection.MaintenanceInterval,
		HistorySize:           c.Detection.HistorySize,
		MaxSources:            c.Detection.MaxSources,
		TopN:                  c.Detection.TopN,
		Enforce:               c.Enforcement.Enabled,
		EnforceTimeout:        c.Enforcement.Timeout,
		ReportTimeout:         c.Reporting.Timeout,
		TeardownTimeout:       c.Enforcement.TeardownTimeout,
	}
}
