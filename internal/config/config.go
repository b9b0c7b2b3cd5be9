// Package config loads forge.yaml into a YAML-backed Config struct,
// applies environment overrides, and provides a DefaultConfig
// constructor for when no file is present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable budget and threshold the orchestrator
// uses, plus environment overrides for worker count, line threshold,
// retry budgets, and interactive/non-interactive merge behavior.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Oracle OracleConfig `yaml:"oracle"`

	Scheduler SchedulerConfig `yaml:"scheduler"`

	Complexity ComplexityConfig `yaml:"complexity"`

	Budgets BudgetConfig `yaml:"budgets"`

	Merge MergeConfig `yaml:"merge"`

	Logging LoggingConfig `yaml:"logging"`
}

type OracleConfig struct {
	Provider string `yaml:"provider"` // "genai" or "fixture"
	Model    string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	Timeout  string `yaml:"timeout"`
}

func (o OracleConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(o.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

type SchedulerConfig struct {
	WorkerCount       int    `yaml:"worker_count"`
	CancelGracePeriod string `yaml:"cancel_grace_period"`
}

func (s SchedulerConfig) GracePeriod() time.Duration {
	d, err := time.ParseDuration(s.CancelGracePeriod)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

type ComplexityConfig struct {
	MaxLineThreshold int `yaml:"max_line_threshold"`
}

type BudgetConfig struct {
	OracleRoundTrips     int `yaml:"oracle_round_trips"`
	AutoRepairPasses     int `yaml:"auto_repair_passes"`
	MergeAutoRepairPasses int `yaml:"merge_auto_repair_passes"`
}

type MergeConfig struct {
	// Interactive controls whether DuplicateMember conflicts with
	// differing signatures resolve to ManualInterventionRequired (true)
	// or FailFast (false, the default). No prompt is shown: merge stops
	// with ConflictUnresolvable under either resolution.
	Interactive bool `yaml:"interactive"`
}

type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default complexity line threshold and
// retry/repair budgets plus sensible operational defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "forge",
		Version: "0.1.0",
		Oracle: OracleConfig{
			Provider:  "fixture",
			Model:     "gemini-2.5-flash",
			APIKeyEnv: "FORGE_ORACLE_API_KEY",
			Timeout:   "60s",
		},
		Scheduler: SchedulerConfig{
			WorkerCount:       4,
			CancelGracePeriod: "30s",
		},
		Complexity: ComplexityConfig{
			MaxLineThreshold: 150,
		},
		Budgets: BudgetConfig{
			OracleRoundTrips:      3,
			AutoRepairPasses:      3,
			MergeAutoRepairPasses: 3,
		},
		Merge: MergeConfig{
			Interactive: false,
		},
		Logging: LoggingConfig{
			DebugMode:  false,
			Level:      "info",
			JSONFormat: true,
		},
	}
}

// Load reads forge.yaml from path (if it exists — absence is not an
// error, DefaultConfig() is used instead) and applies FORGE_-prefixed
// environment overrides, which always win.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: create dir for %s: %w", path, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FORGE_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Scheduler.WorkerCount = n
		}
	}
	if v := os.Getenv("FORGE_LINE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Complexity.MaxLineThreshold = n
		}
	}
	if v := os.Getenv("FORGE_ORACLE_ROUND_TRIPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Budgets.OracleRoundTrips = n
		}
	}
	if v := os.Getenv("FORGE_MERGE_INTERACTIVE"); v != "" {
		cfg.Merge.Interactive = v == "1" || v == "true"
	}
	if v := os.Getenv("FORGE_ORACLE_PROVIDER"); v != "" {
		cfg.Oracle.Provider = v
	}
	if v := os.Getenv("FORGE_DEBUG"); v != "" {
		cfg.Logging.DebugMode = v == "1" || v == "true"
	}
}
