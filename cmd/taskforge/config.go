package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jfeld/taskforge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify taskforge configuration.

Without arguments, displays the current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the value and saves it.

Configuration is stored at ~/.config/taskforge/config.yaml
Project-specific overrides can be placed in .taskforge.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
			return nil
		case 1:
			return displayConfigKey(cfg, args[0])
		default:
			return setConfigKey(cfg, args[0], args[1])
		}
	},
}

func configValues(cfg *config.Config) []struct {
	key, value string
} {
	apiKey := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKey = "****"
	}
	return []struct{ key, value string }{
		{"anthropic.api_key", apiKey},
		{"anthropic.model", cfg.Anthropic.Model},
		{"anthropic.use_bedrock", strconv.FormatBool(cfg.Anthropic.UseBedrock)},
		{"queue.max_concurrent", strconv.Itoa(cfg.Queue.MaxConcurrent)},
		{"queue.max_pending", strconv.Itoa(cfg.Queue.MaxPending)},
		{"executor.step_timeout", cfg.Executor.StepTimeout.String()},
		{"executor.max_retries", strconv.Itoa(cfg.Executor.MaxRetries)},
		{"executor.retry_base_delay", cfg.Executor.RetryBaseDelay.String()},
		{"executor.max_retry_delay", cfg.Executor.MaxRetryDelay.String()},
		{"swarm.agents_file", cfg.Swarm.AgentsFile},
		{"swarm.consensus_threshold", strconv.FormatFloat(cfg.Swarm.ConsensusThreshold, 'g', -1, 64)},
		{"bus.enabled", strconv.FormatBool(cfg.Bus.Enabled)},
		{"bus.port", strconv.Itoa(cfg.Bus.Port)},
		{"data.dir", cfg.DataDir()},
	}
}

func displayAllConfig(cfg *config.Config) {
	for _, kv := range configValues(cfg) {
		fmt.Printf("%s: %s\n", kv.key, kv.value)
	}
	fmt.Printf("\nconfig file: %s\n", config.UserConfigPath())
}

func displayConfigKey(cfg *config.Config, key string) error {
	for _, kv := range configValues(cfg) {
		if kv.key == key {
			fmt.Println(kv.value)
			return nil
		}
	}
	return fmt.Errorf("unknown config key %q", key)
}

func setConfigKey(cfg *config.Config, key, value string) error {
	var err error
	switch key {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_bedrock":
		cfg.Anthropic.UseBedrock, err = strconv.ParseBool(value)
	case "queue.max_concurrent":
		cfg.Queue.MaxConcurrent, err = strconv.Atoi(value)
	case "queue.max_pending":
		cfg.Queue.MaxPending, err = strconv.Atoi(value)
	case "executor.step_timeout":
		cfg.Executor.StepTimeout, err = time.ParseDuration(value)
	case "executor.max_retries":
		cfg.Executor.MaxRetries, err = strconv.Atoi(value)
	case "executor.retry_base_delay":
		cfg.Executor.RetryBaseDelay, err = time.ParseDuration(value)
	case "executor.max_retry_delay":
		cfg.Executor.MaxRetryDelay, err = time.ParseDuration(value)
	case "swarm.agents_file":
		cfg.Swarm.AgentsFile = value
	case "swarm.consensus_threshold":
		cfg.Swarm.ConsensusThreshold, err = strconv.ParseFloat(value, 64)
	case "bus.enabled":
		cfg.Bus.Enabled, err = strconv.ParseBool(value)
	case "bus.port":
		cfg.Bus.Port, err = strconv.Atoi(value)
	case "data.dir":
		cfg.Data.Dir = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error saving config: %v\n", err)
		return err
	}
	fmt.Printf("set %s\n", key)
	return nil
}
