// Package config handles configuration loading for taskforge.
// It supports XDG config paths, project-level overrides, and environment
// variables, plus a YAML agent manifest for the swarm roster.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for taskforge.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Swarm     SwarmConfig     `mapstructure:"swarm"`
	Bus       BusConfig       `mapstructure:"bus"`
	Data      DataConfig      `mapstructure:"data"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseBedrock routes API calls through AWS Bedrock instead of the
	// Anthropic API directly.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// QueueConfig holds scheduler limits.
type QueueConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
	MaxPending    int `mapstructure:"max_pending"`
}

// ExecutorConfig holds step execution settings.
type ExecutorConfig struct {
	StepTimeout    time.Duration `mapstructure:"step_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	MaxRetryDelay  time.Duration `mapstructure:"max_retry_delay"`
}

// SwarmConfig holds multi-agent execution settings.
type SwarmConfig struct {
	// AgentsFile points at the YAML agent manifest. Empty means the
	// built-in roster.
	AgentsFile string `mapstructure:"agents_file"`
	// ConsensusThreshold is the agreement fraction merge and vote
	// aggregation require (0..1].
	ConsensusThreshold float64 `mapstructure:"consensus_threshold"`
}

// BusConfig holds embedded NATS settings.
type BusConfig struct {
	// Enabled starts the embedded message bus and mirrors events onto it.
	Enabled bool `mapstructure:"enabled"`
	// Port is the NATS listen port. 0 picks a free port.
	Port int `mapstructure:"port"`
}

// DataConfig holds filesystem locations.
type DataConfig struct {
	// Dir is the data directory for the history database, debug log,
	// bus store, and control directory. Empty means the XDG default.
	Dir string `mapstructure:"dir"`
}

// DataDir resolves the data directory, falling back to the XDG default.
func (c *Config) DataDir() string {
	if c.Data.Dir != "" {
		return c.Data.Dir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskforge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".taskforge")
	}
	return filepath.Join(home, ".local", "share", "taskforge")
}

// Load loads configuration with the following precedence (highest first):
// 1. Environment variables (ANTHROPIC_API_KEY, TASKFORGE_*)
// 2. Project config (.taskforge.yaml in current directory or a parent)
// 3. User config (~/.config/taskforge/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("TASKFORGE")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.model", "TASKFORGE_MODEL")
	v.BindEnv("data.dir", "TASKFORGE_DATA_DIR")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	dir := userConfigDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("queue.max_concurrent", cfg.Queue.MaxConcurrent)
	v.Set("queue.max_pending", cfg.Queue.MaxPending)
	v.Set("executor.step_timeout", cfg.Executor.StepTimeout.String())
	v.Set("executor.max_retries", cfg.Executor.MaxRetries)
	v.Set("executor.retry_base_delay", cfg.Executor.RetryBaseDelay.String())
	v.Set("executor.max_retry_delay", cfg.Executor.MaxRetryDelay.String())
	v.Set("swarm.agents_file", cfg.Swarm.AgentsFile)
	v.Set("swarm.consensus_threshold", cfg.Swarm.ConsensusThreshold)
	v.Set("bus.enabled", cfg.Bus.Enabled)
	v.Set("bus.port", cfg.Bus.Port)
	v.Set("data.dir", cfg.Data.Dir)

	return v.WriteConfig()
}

// UserConfigPath returns the path to the user config file.
func UserConfigPath() string {
	return filepath.Join(userConfigDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("queue.max_concurrent", 3)
	v.SetDefault("queue.max_pending", 100)

	v.SetDefault("executor.step_timeout", "60s")
	v.SetDefault("executor.max_retries", 3)
	v.SetDefault("executor.retry_base_delay", "500ms")
	v.SetDefault("executor.max_retry_delay", "30s")

	v.SetDefault("swarm.agents_file", "")
	v.SetDefault("swarm.consensus_threshold", 0.5)

	v.SetDefault("bus.enabled", false)
	v.SetDefault("bus.port", 0)

	v.SetDefault("data.dir", "")
}

// userConfigDir returns the XDG config directory for taskforge.
func userConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "taskforge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "taskforge")
	}
	return filepath.Join(home, ".config", "taskforge")
}

// findProjectConfig searches for .taskforge.yaml in the current directory
// and its parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".taskforge.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// Default returns a Config with built-in defaults.
func Default() *Config {
	return &Config{
		Queue: QueueConfig{
			MaxConcurrent: 3,
			MaxPending:    100,
		},
		Executor: ExecutorConfig{
			StepTimeout:    60 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: 500 * time.Millisecond,
			MaxRetryDelay:  30 * time.Second,
		},
		Swarm: SwarmConfig{
			ConsensusThreshold: 0.5,
		},
	}
}
