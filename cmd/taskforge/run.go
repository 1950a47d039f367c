package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jfeld/taskforge/internal/bus"
	"github.com/jfeld/taskforge/internal/config"
	"github.com/jfeld/taskforge/internal/events"
	"github.com/jfeld/taskforge/internal/queue"
	"github.com/jfeld/taskforge/pkg/models"
)

var (
	runFile       string
	runPriority   string
	runComplexity string
	runAgentsFile string
	runWithBus    bool
)

var runCmd = &cobra.Command{
	Use:   "run [description]",
	Short: "Run a task to completion",
	Long: `Run a task and stream its progress until it finishes.

With a description argument, a single language-model step is created that
answers the description. With --file, the task (name, steps, context) is
loaded from a JSON file instead.

Complexity controls fan-out: low-complexity tasks run their steps
directly; medium and above are decomposed into subtasks and routed to
the agent pool, with the results aggregated into one answer.

Examples:
  taskforge run "list three uses for a priority queue"
  taskforge run --complexity high "compare three caching strategies"
  taskforge run --file task.json --priority urgent`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runFile, "file", "", "Load the task from a JSON file")
	runCmd.Flags().StringVar(&runPriority, "priority", "normal", "Task priority: urgent, high, normal, or low")
	runCmd.Flags().StringVar(&runComplexity, "complexity", "low", "Task complexity: low, medium, high, or critical")
	runCmd.Flags().StringVar(&runAgentsFile, "agents", "", "Agent roster YAML manifest")
	runCmd.Flags().BoolVar(&runWithBus, "bus", false, "Start the embedded message bus and mirror events onto it")
}

// taskFile is the JSON shape accepted by --file.
type taskFile struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	Complexity  string         `json:"complexity,omitempty"`
	MaxRetries  int            `json:"max_retries,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Steps       []*models.Step `json:"steps"`
}

func runTask(cmd *cobra.Command, args []string) error {
	if runFile == "" && len(args) == 0 {
		return fmt.Errorf("provide a task description or --file")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if runAgentsFile != "" {
		cfg.Swarm.AgentsFile = runAgentsFile
	}

	opts, err := buildCreateOptions(args)
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg, engineOptions{
		needLLM: needsLLM(opts),
		withBus: runWithBus,
	})
	if err != nil {
		return err
	}
	defer eng.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer ossignal.Stop(sigCh)

	eventCh := eng.emitter.Events()
	if eng.busConn != nil {
		mirrorCh := make(chan events.Event, 256)
		directCh := make(chan events.Event, 256)
		go fanOutEvents(eventCh, mirrorCh, directCh)
		go bus.MirrorEvents(ctx, eng.busConn, mirrorCh, eng.logger)
		eventCh = directCh
		fmt.Printf("message bus listening on %s\n", eng.bus.ClientURL())
	}

	task, err := eng.queue.Create(opts)
	if err != nil {
		return err
	}

	if wait := eng.queue.EstimateWait(); wait > 0 {
		fmt.Printf("estimated wait: %s\n", wait.Round(time.Second))
	}

	final := streamEvents(eng, task.ID, eventCh, sigCh)

	printOutcome(eng, final)
	if final == nil || final.Status != models.TaskStatusCompleted {
		return fmt.Errorf("task did not complete")
	}
	return nil
}

// buildCreateOptions turns CLI input into queue create options.
func buildCreateOptions(args []string) (queue.CreateOptions, error) {
	priority := models.Priority(runPriority)
	complexity := models.Complexity(runComplexity)

	if runFile != "" {
		data, err := os.ReadFile(runFile)
		if err != nil {
			return queue.CreateOptions{}, fmt.Errorf("read task file: %w", err)
		}
		var tf taskFile
		if err := json.Unmarshal(data, &tf); err != nil {
			return queue.CreateOptions{}, fmt.Errorf("parse task file %s: %w", runFile, err)
		}
		if tf.Priority != "" {
			priority = models.Priority(tf.Priority)
		}
		if tf.Complexity != "" {
			complexity = models.Complexity(tf.Complexity)
		}
		return queue.CreateOptions{
			Name:           tf.Name,
			Description:    tf.Description,
			Priority:       priority,
			Complexity:     complexity,
			Steps:          tf.Steps,
			InitialContext: tf.Context,
			MaxRetries:     tf.MaxRetries,
			Source:         "file",
		}, nil
	}

	description := args[0]
	name := description
	if len(name) > 60 {
		name = name[:57] + "..."
	}
	return queue.CreateOptions{
		Name:        name,
		Description: description,
		Priority:    priority,
		Complexity:  complexity,
		Steps: []*models.Step{
			{
				ID:   "answer",
				Name: "answer",
				Type: models.StepLLM,
				LLM: &models.LLMConfig{
					Prompt:    description,
					OutputVar: "answer",
				},
			},
		},
		Source: "cli",
	}, nil
}

// needsLLM reports whether any step in the task calls the language model.
// Fan-out tasks always might, through their agents.
func needsLLM(opts queue.CreateOptions) bool {
	if opts.Complexity != "" && opts.Complexity != models.ComplexityLow {
		return false // agents degrade to echo handlers offline
	}
	for _, step := range opts.Steps {
		if step.Type == models.StepLLM {
			return true
		}
	}
	return false
}

// fanOutEvents duplicates one event stream onto two consumers.
func fanOutEvents(in <-chan events.Event, outs ...chan events.Event) {
	defer func() {
		for _, out := range outs {
			close(out)
		}
	}()
	for ev := range in {
		for _, out := range outs {
			select {
			case out <- ev:
			default:
			}
		}
	}
}

// streamEvents renders engine events for one task until it reaches a
// terminal status. The first interrupt cancels the task and keeps
// draining; a second one abandons the wait. It returns the final task
// snapshot.
func streamEvents(eng *engine, taskID string, eventCh <-chan events.Event, sigCh <-chan os.Signal) *models.Task {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	faint := color.New(color.Faint)

	interrupted := false
	for {
		select {
		case <-sigCh:
			if interrupted {
				red.Println("\nforcing exit")
				task, _ := eng.queue.Get(taskID)
				return task
			}
			interrupted = true
			yellow.Println("\ninterrupt: cancelling task")
			eng.queue.Cancel(taskID)

		case ev, ok := <-eventCh:
			if !ok {
				task, _ := eng.queue.Get(taskID)
				return task
			}
			if ev.TaskID != taskID {
				continue
			}
			switch ev.Type {
			case events.TaskQueued:
				faint.Printf("queued %s\n", taskID)
			case events.TaskStarted:
				fmt.Println("running...")
			case events.TaskStepStarted:
				faint.Printf("  step %s started\n", ev.StepID)
			case events.TaskStepCompleted:
				symbol := green.Sprint("✓")
				if ev.Status == string(models.StepStatusFailed) {
					symbol = red.Sprint("✗")
				} else if ev.Status == string(models.StepStatusSkipped) {
					symbol = yellow.Sprint("-")
				}
				fmt.Printf("  %s step %s %s\n", symbol, ev.StepID, ev.Status)
			case events.TaskProgress:
				faint.Printf("  progress %d%%\n", ev.Progress)
			case events.TaskPaused:
				yellow.Println("paused")
			case events.TaskResumed:
				fmt.Println("resumed")
			case events.TaskCompleted, events.TaskCancelled:
				task, _ := eng.queue.Get(taskID)
				return task
			}
		}
	}
}

// printOutcome reports the final task state and any usable output.
func printOutcome(eng *engine, task *models.Task) {
	if task == nil {
		return
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	switch task.Status {
	case models.TaskStatusCompleted:
		dur := task.Duration().Round(time.Millisecond)
		green.Printf("\n✓ %s completed in %s\n", task.Name, dur)
		if output := renderResult(task.Result); output != "" {
			fmt.Printf("\n%s\n", output)
		}
	case models.TaskStatusCancelled:
		red.Printf("\n✗ %s cancelled\n", task.Name)
	default:
		red.Printf("\n✗ %s %s", task.Name, task.Status)
		if task.Error != "" {
			red.Printf(": %s", task.Error)
		}
		fmt.Println()
	}

	if eng.client != nil {
		input, output := eng.client.Tracker().Total()
		if input+output > 0 {
			color.New(color.Faint).Printf("tokens: %d in / %d out ($%.4f)\n",
				input, output, eng.client.Tracker().Cost())
		}
	}
}

// renderResult flattens the task result into printable text.
func renderResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	case models.AggregationResult:
		return v.Output
	case map[string]any:
		if s, ok := v["answer"].(string); ok {
			return s
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
