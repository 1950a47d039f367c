package executor

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jfeld/taskforge/pkg/models"
)

// runParallel runs a named subset of sibling steps concurrently. In "all"
// mode the group succeeds only if every required member succeeds; in
// "race" mode the first member to finish decides the group's outcome.
// Member steps are marked terminal, so the main loop will not re-run them.
func (e *Executor) runParallel(ctx context.Context, task *models.Task, step *models.Step) (any, error) {
	cfg := step.Parallel
	if cfg == nil {
		return nil, errors.New("parallel step has no parallel config")
	}
	if len(cfg.Steps) == 0 {
		return nil, errors.New("parallel step names no member steps")
	}

	members := make([]*models.Step, 0, len(cfg.Steps))
	for _, id := range cfg.Steps {
		if id == step.ID {
			return nil, fmt.Errorf("parallel step %s cannot include itself", step.ID)
		}
		member := task.Step(id)
		if member == nil {
			return nil, fmt.Errorf("parallel step references unknown step %q", id)
		}
		members = append(members, member)
	}

	if cfg.WaitMode == models.WaitRace {
		return e.runRace(ctx, task, members)
	}
	return e.runAll(ctx, task, cfg, members)
}

// runAll waits for every member. A failure in a required member fails the
// group; failures in optional members are tolerated.
func (e *Executor) runAll(ctx context.Context, task *models.Task, cfg *models.ParallelConfig, members []*models.Step) (any, error) {
	required := make(map[string]bool, len(members))
	if len(cfg.Required) > 0 {
		for _, id := range cfg.Required {
			required[id] = true
		}
	} else {
		for _, m := range members {
			required[m.ID] = true
		}
	}

	g := new(errgroup.Group)
	for _, member := range members {
		member := member
		g.Go(func() error {
			_, err := e.runStep(ctx, task, member, 1)
			if err != nil && required[member.ID] {
				return &StepError{StepID: member.ID, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data := make(map[string]any, len(members))
	e.mu.Lock()
	for _, m := range members {
		if res, ok := task.StepResults[m.ID]; ok && res.Success() {
			data[m.ID] = res.Data
		}
	}
	e.mu.Unlock()
	return data, nil
}

// raceOutcome pairs a finishing member with its result.
type raceOutcome struct {
	stepID string
	data   any
	err    error
}

// runRace lets the first member to finish decide the group's outcome,
// cancelling the rest. It does not return until every loser has settled
// to a terminal status; otherwise the main loop would run them again and
// their step writes would overlap with the caller's.
func (e *Executor) runRace(ctx context.Context, task *models.Task, members []*models.Step) (any, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan raceOutcome, len(members))
	for _, member := range members {
		member := member
		go func() {
			res, err := e.runStep(raceCtx, task, member, 1)
			out := raceOutcome{stepID: member.ID, err: err}
			if err == nil {
				out.data = res.Data
			}
			ch <- out
		}()
	}

	var first *raceOutcome
	for i := 0; i < len(members); i++ {
		out := <-ch
		if first == nil {
			first = &out
			cancel()
		}
	}

	if first.err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &StepError{StepID: first.stepID, Err: first.err}
	}
	return map[string]any{
		"winner": first.stepID,
		"data":   first.data,
	}, nil
}
