package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootDebug bool

var rootCmd = &cobra.Command{
	Use:   "taskforge",
	Short: "Task orchestration and multi-agent execution engine",
	Long: `Taskforge schedules prioritized tasks, executes their steps, and fans
complex work out to a pool of capability-tagged agents.

Tasks are made of typed steps (tool, llm, wait, condition, parallel, loop,
delay) executed in order with per-step timeouts and retry policies. Tasks
flagged as complex are decomposed into subtasks, routed to capable agents,
and their results aggregated back into a single answer.

Run a one-off task:
  taskforge run "summarize the files in this directory"
  taskforge run --file task.json

Inspect the system:
  taskforge agents
  taskforge history`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Write a debug log to the data directory")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
