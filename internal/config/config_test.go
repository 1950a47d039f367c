package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Queue.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", cfg.Queue.MaxConcurrent)
	}
	if cfg.Queue.MaxPending != 100 {
		t.Errorf("MaxPending = %d, want 100", cfg.Queue.MaxPending)
	}
	if cfg.Executor.StepTimeout != 60*time.Second {
		t.Errorf("StepTimeout = %v, want 60s", cfg.Executor.StepTimeout)
	}
	if cfg.Swarm.ConsensusThreshold != 0.5 {
		t.Errorf("ConsensusThreshold = %v, want 0.5", cfg.Swarm.ConsensusThreshold)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
anthropic:
  api_key: test-key
  model: claude-test
queue:
  max_concurrent: 5
executor:
  step_timeout: 90s
  max_retries: 2
bus:
  enabled: true
  port: 4333
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("APIKey = %q, want test-key", cfg.Anthropic.APIKey)
	}
	if cfg.Anthropic.Model != "claude-test" {
		t.Errorf("Model = %q, want claude-test", cfg.Anthropic.Model)
	}
	if cfg.Queue.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want 5", cfg.Queue.MaxConcurrent)
	}
	if cfg.Executor.StepTimeout != 90*time.Second {
		t.Errorf("StepTimeout = %v, want 90s", cfg.Executor.StepTimeout)
	}
	if cfg.Executor.MaxRetries != 2 {
		t.Errorf("MaxRetries = %d, want 2", cfg.Executor.MaxRetries)
	}
	if !cfg.Bus.Enabled || cfg.Bus.Port != 4333 {
		t.Errorf("Bus = %+v, want enabled on port 4333", cfg.Bus)
	}

	// Unset keys keep defaults.
	if cfg.Queue.MaxPending != 100 {
		t.Errorf("MaxPending = %d, want default 100", cfg.Queue.MaxPending)
	}
}

func TestLoadFromPathExpandsEnv(t *testing.T) {
	t.Setenv("TEST_TASKFORGE_KEY", "secret-from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "anthropic:\n  api_key: ${TEST_TASKFORGE_KEY}\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath() error = %v", err)
	}
	if cfg.Anthropic.APIKey != "secret-from-env" {
		t.Errorf("APIKey = %q, want secret-from-env", cfg.Anthropic.APIKey)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFromPath() on missing file should fail")
	}
}

func TestDataDir(t *testing.T) {
	cfg := &Config{Data: DataConfig{Dir: "/tmp/custom"}}
	if got := cfg.DataDir(); got != "/tmp/custom" {
		t.Errorf("DataDir() = %q, want /tmp/custom", got)
	}

	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
	cfg = &Config{}
	want := filepath.Join("/tmp/xdg", "taskforge")
	if got := cfg.DataDir(); got != want {
		t.Errorf("DataDir() = %q, want %q", got, want)
	}
}

func TestLoadAgents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	writeFile(t, path, `
agents:
  - name: researcher
    type: llm
    capabilities: [research, search]
    max_concurrent: 2
  - name: helper
`)

	agents, err := LoadAgents(path)
	if err != nil {
		t.Fatalf("LoadAgents() error = %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("got %d agents, want 2", len(agents))
	}
	if agents[0].Name != "researcher" || len(agents[0].Capabilities) != 2 {
		t.Errorf("agent 0 = %+v, want researcher with 2 capabilities", agents[0])
	}
	// Unset fields get defaults.
	if agents[1].Type != "llm" {
		t.Errorf("agent 1 type = %q, want default llm", agents[1].Type)
	}
	if agents[1].MaxConcurrent != 1 {
		t.Errorf("agent 1 max_concurrent = %d, want default 1", agents[1].MaxConcurrent)
	}
}

func TestLoadAgentsValidation(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.yaml")
	writeFile(t, empty, "agents: []\n")
	if _, err := LoadAgents(empty); err == nil {
		t.Error("LoadAgents() with no agents should fail")
	}

	unnamed := filepath.Join(dir, "unnamed.yaml")
	writeFile(t, unnamed, "agents:\n  - type: llm\n")
	if _, err := LoadAgents(unnamed); err == nil {
		t.Error("LoadAgents() with unnamed agent should fail")
	}

	dup := filepath.Join(dir, "dup.yaml")
	writeFile(t, dup, "agents:\n  - name: a\n  - name: a\n")
	if _, err := LoadAgents(dup); err == nil {
		t.Error("LoadAgents() with duplicate names should fail")
	}
}

func TestDefaultAgentsIncludeWildcard(t *testing.T) {
	agents := DefaultAgents()
	if len(agents) == 0 {
		t.Fatal("DefaultAgents() returned no agents")
	}

	hasWildcard := false
	for _, a := range agents {
		for _, cap := range a.Capabilities {
			if cap == "*" {
				hasWildcard = true
			}
		}
	}
	if !hasWildcard {
		t.Error("default roster has no wildcard agent; unmatched subtasks would have nowhere to go")
	}
}
