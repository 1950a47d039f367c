package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jfeld/taskforge/internal/config"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the configured agent roster",
	Long: `List the agents that would serve a run, with their capability tags
and concurrency limits.

The roster comes from the manifest configured under swarm.agents_file,
or the built-in default roster when none is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		specs := config.DefaultAgents()
		source := "built-in roster"
		if cfg.Swarm.AgentsFile != "" {
			specs, err = config.LoadAgents(cfg.Swarm.AgentsFile)
			if err != nil {
				return err
			}
			source = cfg.Swarm.AgentsFile
		}

		bold := color.New(color.Bold)
		faint := color.New(color.Faint)

		bold.Printf("%d agents (%s)\n\n", len(specs), source)
		for _, spec := range specs {
			caps := strings.Join(spec.Capabilities, ", ")
			if caps == "" {
				caps = "(none)"
			}
			fmt.Printf("  %-12s %-6s concurrency=%d\n", spec.Name, spec.Type, spec.MaxConcurrent)
			faint.Printf("               capabilities: %s\n", caps)
		}
		return nil
	},
}
