package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jfeld/taskforge/internal/config"
	"github.com/jfeld/taskforge/internal/store"
	"github.com/jfeld/taskforge/pkg/models"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently finished tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		db, err := store.Open(filepath.Join(cfg.DataDir(), "history.db"))
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListRecent(historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no recorded tasks")
			return nil
		}

		green := color.New(color.FgGreen)
		red := color.New(color.FgRed)
		yellow := color.New(color.FgYellow)

		for _, e := range entries {
			var symbol string
			switch models.TaskStatus(e.Status) {
			case models.TaskStatusCompleted:
				symbol = green.Sprint("✓")
			case models.TaskStatusCancelled:
				symbol = yellow.Sprint("-")
			default:
				symbol = red.Sprint("✗")
			}

			when := ""
			if e.CompletedAt != nil {
				when = e.CompletedAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("%s %-40s %-9s %8s  %s\n",
				symbol, truncate(e.Name, 40), e.Status,
				e.Duration.Round(time.Millisecond), when)
			if e.Error != "" {
				color.New(color.Faint).Printf("    %s\n", truncate(e.Error, 100))
			}
		}

		stats, err := db.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("\n%d total: %d completed, %d failed, %d cancelled",
			stats.Total, stats.Completed, stats.Failed, stats.Cancelled)
		if stats.AvgDuration > 0 {
			fmt.Printf(", avg %s", stats.AvgDuration.Round(time.Millisecond))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of tasks to show")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
