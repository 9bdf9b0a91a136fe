package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Detection.Threshold)
	assert.Equal(t, 10, cfg.Detection.WindowSeconds)
	assert.Equal(t, 2, cfg.Detection.DedupWindowMultiplier)
	assert.False(t, cfg.Detection.ProcessPrivateSources)
	assert.False(t, cfg.Enforcement.Enabled)
	assert.Empty(t, cfg.Reporting.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.Detection.MaintenanceInterval)
	assert.Equal(t, ":8888", cfg.Server.Addr)

	eng := cfg.Engine()
	assert.Equal(t, 10*time.Second, eng.Window)
	assert.Equal(t, 100, eng.HistorySize)
	assert.Equal(t, 8*time.Second, eng.TeardownTimeout)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddos.yaml")
	yaml := `
detection:
  threshold: 500
  window_seconds: 5
  process_private_sources: true
  maintenance_interval: 2s
enforcement:
  enabled: true
  backend: log
reporting:
  endpoint: http://collector.local:3001
  target_service: web-server-1
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("DDOS_DETECTION_THRESHOLD", "750")
	t.Setenv("DDOS_REPORTING_TIMEOUT", "3s")
	t.Setenv("DDOS_LOGGING_FORMAT", "console")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 750, cfg.Detection.Threshold, "env wins over file")
	assert.Equal(t, 5, cfg.Detection.WindowSeconds)
	assert.True(t, cfg.Detection.ProcessPrivateSources)
	assert.Equal(t, 2*time.Second, cfg.Detection.MaintenanceInterval)
	assert.True(t, cfg.Enforcement.Enabled)
	assert.Equal(t, BackendLog, cfg.Enforcement.Backend)
	assert.Equal(t, "http://collector.local:3001", cfg.Reporting.Endpoint)
	assert.Equal(t, "web-server-1", cfg.Reporting.TargetService)
	assert.Equal(t, 3*time.Second, cfg.Reporting.Timeout)
	assert.Equal(t, "console", cfg.Logging.Format)

	eng := cfg.Engine()
	assert.True(t, eng.Enforce)
	assert.True(t, eng.ProcessPrivateSources)
	assert.Equal(t, 3*time.Second, eng.ReportTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvTransformFunc(t *testing.T) {
	assert.Equal(t, "detection.window_seconds", envTransformFunc("DDOS_DETECTION_WINDOW_SECONDS"))
	assert.Equal(t, "enforcement.iptables_chain", envTransformFunc("DDOS_ENFORCEMENT_IPTABLES_CHAIN"))
	assert.Equal(t, "redis.addr", envTransformFunc("DDOS_REDIS_ADDR"))
	assert.Equal(t, "config_path", envTransformFunc("DDOS_CONFIG_PATH"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"zero threshold", func(c *Config) { c.Detection.Threshold = 0 }, false},
		{"zero window", func(c *Config) { c.Detection.WindowSeconds = 0 }, false},
		{"zero dedup multiplier", func(c *Config) { c.Detection.DedupWindowMultiplier = 0 }, false},
		{"negative max sources", func(c *Config) { c.Detection.MaxSources = -1 }, false},
		{"zero teardown timeout", func(c *Config) { c.Enforcement.TeardownTimeout = 0 }, false},
		{"unknown backend", func(c *Config) { c.Enforcement.Backend = "netsh" }, false},
		{"redis backend without redis", func(c *Config) {
			c.Enforcement.Enabled = true
			c.Enforcement.Backend = BackendRedis
		}, false},
		{"redis backend with redis", func(c *Config) {
			c.Enforcement.Enabled = true
			c.Enforcement.Backend = BackendRedis
			c.Redis.Enabled = true
		}, true},
		{"bad endpoint", func(c *Config) { c.Reporting.Endpoint = "collector:3001" }, false},
		{"https endpoint", func(c *Config) { c.Reporting.Endpoint = "https://collector.example.com" }, true},
		{"interface and pcap", func(c *Config) {
			c.Capture.Interface = "eth0"
			c.Capture.PcapFile = "dump.pcap"
		}, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
