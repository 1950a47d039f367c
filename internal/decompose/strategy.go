package decompose

import (
	"time"

	"github.com/jfeld/taskforge/pkg/models"
)

// chooseStrategy selects a dispatch mode from the dependency shape:
// a single subtask runs sequentially, fully independent subtasks run in
// parallel, and a mix of dependent and independent subtasks runs as
// dependency waves.
func chooseStrategy(subtasks []*models.Subtask) models.ExecutionStrategy {
	if len(subtasks) <= 1 {
		return models.ExecutionStrategy{Mode: models.ModeSequential}
	}

	hasDeps := false
	for _, sub := range subtasks {
		if len(sub.DependsOn) > 0 {
			hasDeps = true
			break
		}
	}

	if hasDeps {
		return models.ExecutionStrategy{
			Mode:           models.ModeHybrid,
			ParallelFactor: min(len(subtasks), 3),
		}
	}
	return models.ExecutionStrategy{
		Mode:           models.ModeParallel,
		ParallelFactor: min(len(subtasks), 5),
	}
}

// estimateDuration sums each subtask's complexity-based estimate. The
// figure is advisory and ignores parallelism on purpose: it is an upper
// bound, not a forecast.
func estimateDuration(subtasks []*models.Subtask) time.Duration {
	var total time.Duration
	for _, sub := range subtasks {
		total += sub.Complexity.EstimatedDuration()
	}
	return total
}

// capabilityUnion collects the distinct capability tags across subtasks,
// preserving first-seen order.
func capabilityUnion(subtasks []*models.Subtask) []string {
	seen := make(map[string]bool)
	var union []string
	for _, sub := range subtasks {
		for _, cap := range sub.Capabilities {
			if !seen[cap] {
				seen[cap] = true
				union = append(union, cap)
			}
		}
	}
	return union
}
