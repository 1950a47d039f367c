package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/jfeld/taskforge/internal/aggregate"
	"github.com/jfeld/taskforge/internal/api"
	"github.com/jfeld/taskforge/internal/bus"
	"github.com/jfeld/taskforge/internal/config"
	"github.com/jfeld/taskforge/internal/decompose"
	"github.com/jfeld/taskforge/internal/events"
	"github.com/jfeld/taskforge/internal/executor"
	"github.com/jfeld/taskforge/internal/logging"
	"github.com/jfeld/taskforge/internal/queue"
	"github.com/jfeld/taskforge/internal/signal"
	"github.com/jfeld/taskforge/internal/store"
	"github.com/jfeld/taskforge/internal/swarm"
	"github.com/jfeld/taskforge/internal/tools"
	"github.com/jfeld/taskforge/pkg/models"
)

// engine bundles the wired components for one CLI invocation.
type engine struct {
	cfg     *config.Config
	logger  *logging.DebugLogger
	emitter *events.Emitter
	queue   *queue.Queue
	swarm   *swarm.Controller
	client  *api.Client
	db      *store.DB
	watcher *signal.Watcher
	bus     *bus.Bus
	busConn *bus.Client
}

// engineOptions tune which optional pieces get wired in.
type engineOptions struct {
	// needLLM makes a missing API key a hard error instead of degrading
	// to echo agents.
	needLLM bool
	// withBus starts the embedded message bus regardless of config.
	withBus bool
}

// newEngine builds the full component graph from configuration. Every
// dependency is passed explicitly; nothing here is a package-level
// singleton.
func newEngine(cfg *config.Config, opts engineOptions) (*engine, error) {
	dataDir := cfg.DataDir()

	logger := logging.Nop()
	if rootDebug {
		logger = logging.NewForDataDir(dataDir)
	}

	e := &engine{
		cfg:     cfg,
		logger:  logger,
		emitter: events.NewEmitter(256),
	}

	var llm executor.Completer
	client, err := api.NewClient(api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err == nil {
		e.client = client
		llm = client
	} else if opts.needLLM {
		e.close()
		return nil, fmt.Errorf("language model unavailable: %w", err)
	} else {
		logger.Log("engine: no language model, llm steps will fail: %v", err)
	}

	db, err := store.Open(filepath.Join(dataDir, "history.db"))
	if err != nil {
		logger.Log("engine: history store unavailable: %v", err)
	} else {
		e.db = db
	}

	ctrl, err := buildSwarm(cfg, llm, e.emitter, logger)
	if err != nil {
		e.close()
		return nil, err
	}
	e.swarm = ctrl

	exec := executor.New(executor.Config{
		Tools:   tools.NewRegistry(logger),
		LLM:     llm,
		Input:   &stdinInput{},
		Emitter: e.emitter,
		Logger:  logger,
		Options: executor.Options{
			DefaultStepTimeout: cfg.Executor.StepTimeout,
			DefaultMaxRetries:  cfg.Executor.MaxRetries,
			RetryBaseDelay:     cfg.Executor.RetryBaseDelay,
			MaxRetryDelay:      cfg.Executor.MaxRetryDelay,
		},
	})

	runner := &engineRunner{
		exec:       exec,
		decomposer: decompose.New(llm, logger),
		swarm:      ctrl,
		aggregator: aggregate.New(cfg.Swarm.ConsensusThreshold, logger),
		logger:     logger,
	}

	q, err := queue.New(queue.Config{
		Runner:   runner,
		Emitter:  e.emitter,
		Logger:   logger,
		Recorder: e.recorder(),
		Options: queue.Options{
			MaxConcurrent: cfg.Queue.MaxConcurrent,
			MaxPending:    cfg.Queue.MaxPending,
		},
	})
	if err != nil {
		e.close()
		return nil, err
	}
	e.queue = q

	watcher, err := signal.New(filepath.Join(dataDir, "control"), q, logger)
	if err != nil {
		logger.Log("engine: control watcher unavailable: %v", err)
	} else {
		e.watcher = watcher
	}

	if cfg.Bus.Enabled || opts.withBus {
		if err := e.startBus(); err != nil {
			logger.Log("engine: bus unavailable: %v", err)
		}
	}

	return e, nil
}

// recorder returns the task recorder, or nil when the store is absent.
func (e *engine) recorder() queue.Recorder {
	if e.db == nil {
		return nil
	}
	return e.db
}

func (e *engine) startBus() error {
	b, err := bus.New(bus.Config{
		Port:    e.cfg.Bus.Port,
		DataDir: filepath.Join(e.cfg.DataDir(), "bus"),
	})
	if err != nil {
		return err
	}
	conn, err := bus.NewClient(b)
	if err != nil {
		b.Close()
		return err
	}
	e.bus = b
	e.busConn = conn
	return nil
}

// close tears the engine down in reverse wiring order.
func (e *engine) close() {
	if e.watcher != nil {
		e.watcher.Close()
	}
	if e.queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		e.queue.Shutdown(ctx)
		cancel()
	}
	if e.swarm != nil {
		e.swarm.Close()
	}
	if e.busConn != nil {
		e.busConn.Close()
	}
	if e.bus != nil {
		e.bus.Close()
	}
	if e.db != nil {
		e.db.Close()
	}
	if e.emitter != nil {
		e.emitter.Close()
	}
	if e.logger != nil {
		e.logger.Close()
	}
}

// buildSwarm registers the configured agent roster. Without a language
// model every agent falls back to the echo handler so offline runs still
// exercise routing.
func buildSwarm(cfg *config.Config, llm executor.Completer, emitter *events.Emitter, logger *logging.DebugLogger) (*swarm.Controller, error) {
	specs := config.DefaultAgents()
	if cfg.Swarm.AgentsFile != "" {
		loaded, err := config.LoadAgents(cfg.Swarm.AgentsFile)
		if err != nil {
			return nil, err
		}
		specs = loaded
	}

	ctrl := swarm.NewController(logger)
	for _, spec := range specs {
		handler := swarm.EchoHandler()
		if spec.Type == "llm" && llm != nil {
			handler = swarm.LLMHandler(llm)
		}
		agent, err := swarm.NewAgent(swarm.AgentConfig{
			Name:          spec.Name,
			Type:          spec.Type,
			Capabilities:  spec.Capabilities,
			MaxConcurrent: spec.MaxConcurrent,
			Handler:       handler,
			Emitter:       emitter,
			Logger:        logger,
		})
		if err != nil {
			ctrl.Close()
			return nil, fmt.Errorf("agent %s: %w", spec.Name, err)
		}
		if err := ctrl.Register(agent); err != nil {
			agent.Close()
			ctrl.Close()
			return nil, err
		}
	}
	return ctrl, nil
}

// engineRunner routes tasks between the step executor and the swarm.
// Low-complexity tasks run their steps directly; complex tasks are
// decomposed, fanned out to agents, and aggregated.
type engineRunner struct {
	exec       *executor.Executor
	decomposer *decompose.Decomposer
	swarm      *swarm.Controller
	aggregator *aggregate.Aggregator
	logger     *logging.DebugLogger
}

func (r *engineRunner) ExecuteTask(ctx context.Context, task *models.Task, ctrl executor.Controls) (any, error) {
	if !r.fanOut(task) {
		return r.exec.ExecuteTask(ctx, task, ctrl)
	}

	dec, err := r.decomposer.Decompose(ctx, task)
	if err != nil {
		return nil, err
	}
	if dec.Trivial() {
		r.logger.Log("engine: task %s decomposed trivially, running steps directly", task.ID)
		return r.exec.ExecuteTask(ctx, task, ctrl)
	}

	r.logger.Log("engine: task %s fanned out as %d subtasks (%s)",
		task.ID, len(dec.Subtasks), dec.Strategy.Mode)

	results, err := r.swarm.RunDecomposition(ctx, dec)
	if err != nil {
		return nil, err
	}

	agg := r.aggregator.Aggregate(results, aggregate.StrategyFor(dec.Strategy.Mode))
	if !agg.Success {
		return agg, fmt.Errorf("aggregation failed: %s", firstError(agg.Errors))
	}
	return agg, nil
}

// fanOut decides whether a task goes through decomposition.
func (r *engineRunner) fanOut(task *models.Task) bool {
	switch task.Complexity {
	case models.ComplexityMedium, models.ComplexityHigh, models.ComplexityCritical:
		return r.swarm != nil
	default:
		return false
	}
}

func firstError(errs []string) string {
	if len(errs) == 0 {
		return "no successful results"
	}
	return errs[0]
}
