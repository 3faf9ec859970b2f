// Package config loads and validates the swarm configuration file.
// The config is read once at launch and is immutable afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/zjrosen/oompa/internal/harness"
	"github.com/zjrosen/oompa/internal/tracing"
)

// Worker configures one swarm worker.
type Worker struct {
	Harness     string   `mapstructure:"harness" yaml:"harness"`
	Model       string   `mapstructure:"model" yaml:"model"`
	Reasoning   string   `mapstructure:"reasoning" yaml:"reasoning"`
	MaxCycles   int      `mapstructure:"max_cycles" yaml:"max_cycles"`
	PromptFiles []string `mapstructure:"prompt_files" yaml:"prompt_files"`

	// CanPlan defaults to true when omitted.
	CanPlan *bool `mapstructure:"can_plan" yaml:"can_plan"`

	WaitBetweenSeconds int `mapstructure:"wait_between_seconds" yaml:"wait_between_seconds"`
	MaxWorkingResumes  int `mapstructure:"max_working_resumes" yaml:"max_working_resumes"`
}

// Plans resolves the CanPlan default.
func (w Worker) Plans() bool {
	return w.CanPlan == nil || *w.CanPlan
}

// WaitBetween returns the inter-cycle sleep as a duration.
func (w Worker) WaitBetween() time.Duration {
	return time.Duration(w.WaitBetweenSeconds) * time.Second
}

// Reviewer configures the optional review loop.
type Reviewer struct {
	Harness   string `mapstructure:"harness" yaml:"harness"`
	Model     string `mapstructure:"model" yaml:"model"`
	Reasoning string `mapstructure:"reasoning" yaml:"reasoning"`
	MaxRounds int    `mapstructure:"max_rounds" yaml:"max_rounds"`
}

// Config is the full swarm configuration.
type Config struct {
	ProjectRoot string `mapstructure:"project_root" yaml:"project_root"`
	MainBranch  string `mapstructure:"main_branch" yaml:"main_branch"`
	TasksRoot   string `mapstructure:"tasks_root" yaml:"tasks_root"`
	RunsRoot    string `mapstructure:"runs_root" yaml:"runs_root"`

	Workers  []Worker  `mapstructure:"workers" yaml:"workers"`
	Reviewer *Reviewer `mapstructure:"reviewer" yaml:"reviewer,omitempty"`

	// TimeoutSeconds bounds a single agent invocation.
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`

	LogFile string         `mapstructure:"log_file" yaml:"log_file"`
	Tracing tracing.Config `mapstructure:"tracing" yaml:"tracing"`
}

// Timeout returns the agent invocation timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	return Config{
		ProjectRoot:    ".",
		TasksRoot:      "tasks",
		RunsRoot:       "runs",
		TimeoutSeconds: 300,
		Tracing:        tracing.DefaultConfig(),
	}
}

// Load reads and validates the config file at path.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	defaults := Defaults()
	v.SetDefault("project_root", defaults.ProjectRoot)
	v.SetDefault("tasks_root", defaults.TasksRoot)
	v.SetDefault("runs_root", defaults.RunsRoot)
	v.SetDefault("timeout_seconds", defaults.TimeoutSeconds)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
	v.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate fails fast on anything the swarm cannot launch with.
func (c Config) Validate() error {
	if len(c.Workers) == 0 {
		return fmt.Errorf("at least one worker is required")
	}
	for i, w := range c.Workers {
		if w.Harness == "" {
			return fmt.Errorf("worker %d: harness is required", i)
		}
		if !harness.IsRegistered(harness.Kind(w.Harness)) {
			return fmt.Errorf("worker %d: unknown harness kind %q", i, w.Harness)
		}
		if w.MaxCycles <= 0 {
			return fmt.Errorf("worker %d: max_cycles must be positive", i)
		}
		if w.WaitBetweenSeconds < 0 {
			return fmt.Errorf("worker %d: wait_between_seconds must not be negative", i)
		}
		for _, pf := range w.PromptFiles {
			if _, err := os.Stat(pf); err != nil {
				return fmt.Errorf("worker %d: prompt file %s: %w", i, pf, err)
			}
		}
	}
	if r := c.Reviewer; r != nil {
		if r.Harness == "" {
			return fmt.Errorf("reviewer: harness is required")
		}
		if !harness.IsRegistered(harness.Kind(r.Harness)) {
			return fmt.Errorf("reviewer: unknown harness kind %q", r.Harness)
		}
		if r.MaxRounds < 0 {
			return fmt.Errorf("reviewer: max_rounds must not be negative")
		}
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	return nil
}

// WorkerID returns the positional identifier for worker index i.
func WorkerID(i int) string {
	return fmt.Sprintf("w%d", i)
}
