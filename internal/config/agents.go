package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentSpec describes one agent in the swarm roster.
type AgentSpec struct {
	// Name is the unique agent name.
	Name string `yaml:"name"`
	// Type is the kind of agent (llm, echo).
	Type string `yaml:"type"`
	// Capabilities lists the work tags this agent can handle.
	Capabilities []string `yaml:"capabilities"`
	// MaxConcurrent is how many subtasks the agent runs at once.
	MaxConcurrent int `yaml:"max_concurrent"`
}

// AgentManifest is the YAML document describing the swarm roster.
type AgentManifest struct {
	Agents []AgentSpec `yaml:"agents"`
}

// LoadAgents reads an agent manifest from a YAML file.
func LoadAgents(path string) ([]AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent manifest: %w", err)
	}

	var manifest AgentManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse agent manifest %s: %w", path, err)
	}

	if len(manifest.Agents) == 0 {
		return nil, fmt.Errorf("agent manifest %s lists no agents", path)
	}

	seen := make(map[string]bool, len(manifest.Agents))
	for i := range manifest.Agents {
		spec := &manifest.Agents[i]
		if spec.Name == "" {
			return nil, fmt.Errorf("agent manifest %s: agent %d has no name", path, i)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("agent manifest %s: duplicate agent name %q", path, spec.Name)
		}
		seen[spec.Name] = true
		if spec.Type == "" {
			spec.Type = "llm"
		}
		if spec.MaxConcurrent <= 0 {
			spec.MaxConcurrent = 1
		}
	}
	return manifest.Agents, nil
}

// DefaultAgents returns the built-in roster used when no manifest is
// configured: a small set of specialists plus a wildcard generalist so
// every subtask finds at least one capable agent.
func DefaultAgents() []AgentSpec {
	return []AgentSpec{
		{Name: "researcher", Type: "llm", Capabilities: []string{"research", "search", "analysis"}, MaxConcurrent: 2},
		{Name: "coder", Type: "llm", Capabilities: []string{"code", "refactor", "test"}, MaxConcurrent: 2},
		{Name: "reviewer", Type: "llm", Capabilities: []string{"review", "analysis"}, MaxConcurrent: 1},
		{Name: "writer", Type: "llm", Capabilities: []string{"write", "summarize"}, MaxConcurrent: 2},
		{Name: "generalist", Type: "llm", Capabilities: []string{"*"}, MaxConcurrent: 3},
	}
}
