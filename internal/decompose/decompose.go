// Package decompose splits tasks into capability-tagged subtasks using a
// language model, with a deterministic fallback when the model's answer
// cannot be used.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jfeld/taskforge/internal/executor"
	"github.com/jfeld/taskforge/internal/logging"
	"github.com/jfeld/taskforge/pkg/models"
)

// decomposedSubtask is the JSON structure returned by the model for one
// subtask. Dependencies are zero-based indexes into the same array.
type decomposedSubtask struct {
	Description  string   `json:"description"`
	Type         string   `json:"type"`
	Capabilities []string `json:"capabilities"`
	Complexity   string   `json:"complexity"`
	DependsOn    []int    `json:"depends_on"`
}

// Decomposer breaks tasks into subtasks with an execution strategy.
type Decomposer struct {
	llm    executor.Completer
	logger *logging.DebugLogger
}

// New creates a Decomposer. llm may be nil, in which case every task gets
// the trivial single-subtask decomposition.
func New(llm executor.Completer, logger *logging.DebugLogger) *Decomposer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Decomposer{llm: llm, logger: logger}
}

// Decompose returns a decomposition for the task. Low-complexity tasks are
// never sent to the model. A model answer that cannot be parsed or
// validated degrades to the trivial decomposition rather than failing the
// task: decomposition is an optimization, not a correctness requirement.
func (d *Decomposer) Decompose(ctx context.Context, task *models.Task) (*models.Decomposition, error) {
	if task.Complexity == models.ComplexityLow || d.llm == nil {
		return Trivial(task), nil
	}

	prompt := fmt.Sprintf(decompositionPrompt, taskSummary(task))
	response, err := d.llm.Complete(ctx, prompt, decompositionSystemPrompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		d.logger.Log("[decompose] task %s: completion failed (%v), using trivial decomposition", task.ID, err)
		return Trivial(task), nil
	}

	subtasks, err := ParseResponse(response, task)
	if err != nil {
		d.logger.Log("[decompose] task %s: unusable response (%v), using trivial decomposition", task.ID, err)
		return Trivial(task), nil
	}

	dec := &models.Decomposition{
		TaskID:            task.ID,
		Subtasks:          subtasks,
		Strategy:          chooseStrategy(subtasks),
		EstimatedDuration: estimateDuration(subtasks),
		Capabilities:      capabilityUnion(subtasks),
	}
	d.logger.Log("[decompose] task %s: %d subtasks, mode=%s", task.ID, len(subtasks), dec.Strategy.Mode)
	return dec, nil
}

// Trivial wraps the task in a single-subtask decomposition.
func Trivial(task *models.Task) *models.Decomposition {
	sub := &models.Subtask{
		ID:          uuid.New().String(),
		ParentID:    task.ID,
		Description: taskSummary(task),
		Type:        "general",
		Complexity:  task.Complexity,
		Priority:    task.Priority,
		Context:     task.InitialContext,
	}
	return &models.Decomposition{
		TaskID:            task.ID,
		Subtasks:          []*models.Subtask{sub},
		Strategy:          models.ExecutionStrategy{Mode: models.ModeSequential},
		EstimatedDuration: task.Complexity.EstimatedDuration(),
	}
}

// ParseResponse extracts the JSON array from the model's response and
// converts it into subtasks. Index-based dependencies are resolved to
// subtask IDs; out-of-range indexes, self-references, and cycles are errors.
func ParseResponse(response string, task *models.Task) ([]*models.Subtask, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		preview := response
		if len(preview) > 500 {
			preview = preview[:500] + "... (truncated)"
		}
		return nil, fmt.Errorf("no JSON array found in response (got %d chars): %q", len(response), preview)
	}

	var decomposed []decomposedSubtask
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &decomposed); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	if len(decomposed) == 0 {
		return nil, fmt.Errorf("empty subtask list returned")
	}

	subtasks := make([]*models.Subtask, len(decomposed))
	for i, ds := range decomposed {
		if strings.TrimSpace(ds.Description) == "" {
			return nil, fmt.Errorf("subtask %d has no description", i)
		}
		complexity := models.Complexity(strings.ToLower(ds.Complexity))
		if !complexity.Valid() {
			complexity = models.ComplexityMedium
		}
		subtasks[i] = &models.Subtask{
			ID:           uuid.New().String(),
			ParentID:     task.ID,
			Description:  ds.Description,
			Type:         ds.Type,
			Capabilities: ds.Capabilities,
			Complexity:   complexity,
			Priority:     task.Priority,
			Context:      task.InitialContext,
		}
	}

	for i, ds := range decomposed {
		for _, dep := range ds.DependsOn {
			if dep < 0 || dep >= len(subtasks) {
				return nil, fmt.Errorf("subtask %d depends on out-of-range index %d", i, dep)
			}
			if dep == i {
				return nil, fmt.Errorf("subtask %d depends on itself", i)
			}
			subtasks[i].DependsOn = append(subtasks[i].DependsOn, subtasks[dep].ID)
		}
	}

	if err := ValidateNoCycles(subtasks); err != nil {
		return nil, err
	}
	return subtasks, nil
}

// ValidateNoCycles checks that subtask dependencies form a DAG.
func ValidateNoCycles(subtasks []*models.Subtask) error {
	byID := make(map[string]*models.Subtask, len(subtasks))
	for _, sub := range subtasks {
		byID[sub.ID] = sub
	}

	state := make(map[string]int) // 0=unvisited, 1=visiting, 2=visited

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		if state[id] == 2 {
			return nil
		}
		if state[id] == 1 {
			cycleStart := 0
			for i, p := range path {
				if p == id {
					cycleStart = i
					break
				}
			}
			cycle := append(path[cycleStart:], id)
			return fmt.Errorf("circular dependency detected: %s", strings.Join(cycle, " -> "))
		}

		state[id] = 1
		if sub := byID[id]; sub != nil {
			for _, depID := range sub.DependsOn {
				if err := visit(depID, append(path, id)); err != nil {
					return err
				}
			}
		}
		state[id] = 2
		return nil
	}

	for _, sub := range subtasks {
		if state[sub.ID] == 0 {
			if err := visit(sub.ID, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func taskSummary(task *models.Task) string {
	if task.Description != "" {
		return task.Description
	}
	return task.Name
}
