package app

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all runtime configuration.
//
// Resolution order: defaults, then the optional config file under the config
// directory, then CURELINK_* environment variables.
type Config struct {
	BaseURL  string
	LogLevel string

	PageLimit        int
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	SendTimeout      time.Duration
	HistoryTimeout   time.Duration

	// MetricsAddr enables a local /metrics debug listener when non-empty.
	MetricsAddr string

	// ConfigDir holds config.yaml and the stored credentials.
	ConfigDir string
}

// DefaultConfigDir returns the per-user configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".curelink"
	}
	return filepath.Join(home, ".curelink")
}

// LoadConfig loads Config with defaults, config-file overlay and env overrides.
func LoadConfig() Config {
	cfg := Config{
		BaseURL:  "http://localhost:8000",
		LogLevel: "info",

		PageLimit:        20,
		ReconnectDelay:   3 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		SendTimeout:      5 * time.Second,
		HistoryTimeout:   15 * time.Second,

		ConfigDir: EnvString("CURELINK_CONFIG_DIR", DefaultConfigDir()),
	}

	cfg.applyFile(filepath.Join(cfg.ConfigDir, "config.yaml"))
	cfg.applyEnv()
	return cfg
}

// fileConfig is the yaml shape of config.yaml. All fields are optional.
type fileConfig struct {
	BaseURL        string `yaml:"base_url"`
	LogLevel       string `yaml:"log_level"`
	PageLimit      int    `yaml:"page_limit"`
	ReconnectDelay string `yaml:"reconnect_delay"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

func (c *Config) applyFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Missing config file is the normal case.
		return
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return
	}

	if fc.BaseURL != "" {
		c.BaseURL = fc.BaseURL
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if fc.PageLimit > 0 {
		c.PageLimit = fc.PageLimit
	}
	if fc.ReconnectDelay != "" {
		if d, err := time.ParseDuration(fc.ReconnectDelay); err == nil && d > 0 {
			c.ReconnectDelay = d
		}
	}
	if fc.MetricsAddr != "" {
		c.MetricsAddr = fc.MetricsAddr
	}
}

func (c *Config) applyEnv() {
	c.BaseURL = EnvString("CURELINK_BASE_URL", c.BaseURL)
	c.LogLevel = EnvString("CURELINK_LOG_LEVEL", c.LogLevel)

	c.PageLimit = EnvInt("CURELINK_PAGE_LIMIT", c.PageLimit)
	c.ReconnectDelay = EnvDuration("CURELINK_RECONNECT_DELAY", c.ReconnectDelay)
	c.HandshakeTimeout = EnvDuration("CURELINK_HANDSHAKE_TIMEOUT", c.HandshakeTimeout)
	c.SendTimeout = EnvDuration("CURELINK_SEND_TIMEOUT", c.SendTimeout)
	c.HistoryTimeout = EnvDuration("CURELINK_HISTORY_TIMEOUT", c.HistoryTimeout)

	c.MetricsAddr = EnvString("CURELINK_METRICS_ADDR", c.MetricsAddr)
}
