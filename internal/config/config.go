package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by wfsum
const EnvPrefix = "WFSUM"

// Config holds application configuration
type Config struct {
	// Global settings
	Format  string `mapstructure:"format" json:"format"`
	Quiet   bool   `mapstructure:"quiet" json:"quiet"`
	Verbose bool   `mapstructure:"verbose" json:"verbose"`

	Summarizer SummarizerConfig `mapstructure:"summarizer" json:"summarizer"`
	Normalize  NormalizeConfig  `mapstructure:"normalize" json:"normalize"`
	Output     OutputConfig     `mapstructure:"output" json:"output"`
}

// SummarizerConfig holds reconstruction settings
type SummarizerConfig struct {
	IdleTime         int `mapstructure:"idle_time" json:"idle_time"`                   // seconds
	SessionBreakTime int `mapstructure:"session_break_time" json:"session_break_time"` // minutes
	Workers          int `mapstructure:"workers" json:"workers"`
}

// NormalizeConfig holds input handling settings
type NormalizeConfig struct {
	Strict bool   `mapstructure:"strict" json:"strict"`
	Schema string `mapstructure:"schema" json:"schema"`
}

// OutputConfig holds output destinations
type OutputConfig struct {
	SplitDir    string `mapstructure:"split_dir" json:"split_dir"`
	MetricsFile string `mapstructure:"metrics_file" json:"metrics_file"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Format: "auto",
		Summarizer: SummarizerConfig{
			IdleTime:         600,
			SessionBreakTime: 30,
			Workers:          4,
		},
	}
}

// IdleDuration returns the idle time as a duration
func (c *Config) IdleDuration() time.Duration {
	return time.Duration(c.Summarizer.IdleTime) * time.Second
}

// SessionBreakDuration returns the session break time as a duration
func (c *Config) SessionBreakDuration() time.Duration {
	return time.Duration(c.Summarizer.SessionBreakTime) * time.Minute
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs []error
	switch c.Format {
	case "ndjson", "text", "auto":
	default:
		errs = append(errs, fmt.Errorf("format must be ndjson, text or auto, got %q", c.Format))
	}
	if c.Summarizer.IdleTime <= 0 {
		errs = append(errs, fmt.Errorf("summarizer.idle_time must be positive, got %d", c.Summarizer.IdleTime))
	}
	if c.Summarizer.SessionBreakTime <= 0 {
		errs = append(errs, fmt.Errorf("summarizer.session_break_time must be positive, got %d", c.Summarizer.SessionBreakTime))
	}
	if c.Summarizer.Workers < 1 {
		errs = append(errs, fmt.Errorf("summarizer.workers must be at least 1, got %d", c.Summarizer.Workers))
	}
	return errors.Join(errs...)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Short aliases for the most common overrides
	v.BindEnv("summarizer.workers", "WFSUM_WORKERS")
	v.BindEnv("summarizer.idle_time", "WFSUM_IDLE_TIME")
	v.BindEnv("summarizer.session_break_time", "WFSUM_SESSION_BREAK")

	cfg := Default()
	v.SetDefault("format", cfg.Format)
	v.SetDefault("quiet", cfg.Quiet)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("summarizer.idle_time", cfg.Summarizer.IdleTime)
	v.SetDefault("summarizer.session_break_time", cfg.Summarizer.SessionBreakTime)
	v.SetDefault("summarizer.workers", cfg.Summarizer.Workers)
	v.SetDefault("normalize.strict", cfg.Normalize.Strict)
	v.SetDefault("normalize.schema", cfg.Normalize.Schema)
	v.SetDefault("output.split_dir", cfg.Output.SplitDir)
	v.SetDefault("output.metrics_file", cfg.Output.MetricsFile)
	return v
}

// Load loads configuration from the first config file found, the
// environment and defaults
func Load() (*Config, error) {
	v := newViper()

	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigFile returns the path of the config file Load would use
func ConfigFile() string {
	return findConfigFile()
}

// configCandidates lists config file locations, highest precedence first
func configCandidates() []string {
	var paths []string
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths,
			filepath.Join(wd, ".wfsum.yaml"),
			filepath.Join(wd, ".wfsum.yml"),
			filepath.Join(wd, "wfsum.yaml"),
		)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".wfsum.yaml"),
			filepath.Join(home, ".wfsum.yml"),
		)
	}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "wfsum", "wfsum.yaml"))
	}
	return append(paths, "/etc/wfsum/wfsum.yaml")
}

func findConfigFile() string {
	for _, p := range configCandidates() {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// applyEnvOverrides applies the global environment switches on top of an
// explicitly loaded file
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv(EnvPrefix + "_QUIET"); v == "true" || v == "1" {
		cfg.Quiet = true
	}
	if v := os.Getenv(EnvPrefix + "_VERBOSE"); v == "true" || v == "1" {
		cfg.Verbose = true
	}
}

// Template is a commented config file with every key at its default
const Template = `# wfsum configuration
# Output format: ndjson, text or auto (text on a terminal)
format: auto
quiet: false
verbose: false

summarizer:
  # seconds between events beyond which time is not counted as spent
  idle_time: 600
  # minutes of silence that force a new session
  session_break_time: 30
  # identities reconstructed in parallel
  workers: 4

normalize:
  # fail on the first malformed line instead of discarding it
  strict: false
  # replacement event JSON schema
  schema: ""

output:
  # write one NDJSON file per identity into this directory
  split_dir: ""
  # write prometheus metrics in text format to this file
  metrics_file: ""
`
