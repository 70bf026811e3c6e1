// Package config loads the poetsim scenario file: the control-state
// table, the tradeoff goal and the synthetic workload description.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is one poetsim scenario.
type Config struct {
	Goal       float64 `yaml:"goal"`
	Constraint string  `yaml:"constraint"` // "performance" or "power"

	Period      uint   `yaml:"period"`
	BufferDepth uint   `yaml:"buffer_depth"`
	LogPath     string `yaml:"log_path"`

	Iterations int     `yaml:"iterations"`
	RatePerSec float64 `yaml:"rate_per_sec"`

	MetricsAddr string `yaml:"metrics_addr"`

	Tracing  Tracing       `yaml:"tracing"`
	Workload Workload      `yaml:"workload"`
	States   []StateConfig `yaml:"states"`
}

// Tracing configures span export for a run. An empty endpoint keeps
// the no-op provider.
type Tracing struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// StateConfig is one control-state row. IdlePartner defaults to the
// state's own id, marking it non-idle.
type StateConfig struct {
	ID          uint    `yaml:"id"`
	Speedup     float64 `yaml:"speedup"`
	Cost        float64 `yaml:"cost"`
	IdlePartner *uint   `yaml:"idle_partner"`
}

// Workload describes the synthetic host application: baseline achieved
// performance and power at the normalization state, plus a relative
// jitter applied per iteration.
type Workload struct {
	BasePerf  float64 `yaml:"base_perf"`
	BasePower float64 `yaml:"base_power"`
	Jitter    float64 `yaml:"jitter"`
}

// Load reads and validates a scenario file. METRICS_ADDR and
// POETSIM_RATE override the file for deployment-side tuning.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	cfg.applyDefaults()
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.RatePerSec = getEnvFloat("POETSIM_RATE", cfg.RatePerSec)
	cfg.Tracing.Endpoint = getEnv("TRACING_ENDPOINT", cfg.Tracing.Endpoint)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Constraint == "" {
		c.Constraint = "performance"
	}
	if c.Period == 0 {
		c.Period = 5
	}
	if c.Iterations == 0 {
		c.Iterations = 200
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9801"
	}
	if c.Workload.BasePerf == 0 {
		c.Workload.BasePerf = 1
	}
	if c.Workload.BasePower == 0 {
		c.Workload.BasePower = 1
	}
}

func (c *Config) validate() error {
	if c.Goal <= 0 {
		return fmt.Errorf("goal must be > 0")
	}
	if c.Constraint != "performance" && c.Constraint != "power" {
		return fmt.Errorf("constraint must be %q or %q, got %q", "performance", "power", c.Constraint)
	}
	if len(c.States) == 0 {
		return fmt.Errorf("at least one state is required")
	}
	if c.LogPath != "" && c.BufferDepth == 0 {
		return fmt.Errorf("buffer_depth must be > 0 when log_path is set")
	}
	if c.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0")
	}
	if c.RatePerSec < 0 {
		return fmt.Errorf("rate_per_sec must be >= 0")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	for _, s := range c.States {
		if s.Speedup <= 0 || s.Cost <= 0 {
			return fmt.Errorf("state %d: speedup and cost must be > 0", s.ID)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
