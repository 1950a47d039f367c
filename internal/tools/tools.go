// Package tools provides the built-in tool registry backing tool steps.
// Tools are named functions taking loosely-typed arguments; callers can
// register their own alongside the built-ins.
package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/jfeld/taskforge/internal/executor"
	"github.com/jfeld/taskforge/internal/logging"
)

// Tool executes one named operation.
type Tool func(ctx context.Context, args map[string]any) (executor.ToolResult, error)

// Registry maps tool names to implementations and satisfies
// executor.ToolRunner.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *logging.DebugLogger
}

// NewRegistry creates a registry pre-loaded with the built-in tools:
// shell, read_file, write_file, and http_get.
func NewRegistry(logger *logging.DebugLogger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	r := &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
	r.Register("shell", shellTool)
	r.Register("read_file", readFileTool)
	r.Register("write_file", writeFileTool)
	r.Register("http_get", httpGetTool)
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(name string, tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Run dispatches to the named tool. An unknown tool is an error.
func (r *Registry) Run(ctx context.Context, name string, args map[string]any) (executor.ToolResult, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return executor.ToolResult{}, fmt.Errorf("unknown tool %q", name)
	}

	r.logger.Log("tool: running %s", name)
	return tool(ctx, args)
}

// stringArg fetches a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

// shellTool runs a command through "sh -c" and captures combined output.
func shellTool(ctx context.Context, args map[string]any) (executor.ToolResult, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return executor.ToolResult{}, err
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if dir, ok := args["dir"].(string); ok && dir != "" {
		cmd.Dir = dir
	}

	output, runErr := cmd.CombinedOutput()
	result := executor.ToolResult{
		Success: runErr == nil,
		Data: map[string]any{
			"output": string(output),
		},
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	return result, nil
}

func readFileTool(ctx context.Context, args map[string]any) (executor.ToolResult, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return executor.ToolResult{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return executor.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return executor.ToolResult{
		Success: true,
		Data:    map[string]any{"content": string(data)},
	}, nil
}

func writeFileTool(ctx context.Context, args map[string]any) (executor.ToolResult, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return executor.ToolResult{}, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return executor.ToolResult{}, err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return executor.ToolResult{Success: false, Error: err.Error()}, nil
	}
	return executor.ToolResult{
		Success: true,
		Data:    map[string]any{"bytes": len(content)},
	}, nil
}

const httpGetTimeout = 30 * time.Second

func httpGetTool(ctx context.Context, args map[string]any) (executor.ToolResult, error) {
	url, err := stringArg(args, "url")
	if err != nil {
		return executor.ToolResult{}, err
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return executor.ToolResult{}, fmt.Errorf("url must be http or https: %s", url)
	}

	reqCtx, cancel := context.WithTimeout(ctx, httpGetTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return executor.ToolResult{}, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return executor.ToolResult{Success: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return executor.ToolResult{Success: false, Error: err.Error()}, nil
	}

	return executor.ToolResult{
		Success: resp.StatusCode < 400,
		Data: map[string]any{
			"status": resp.StatusCode,
			"body":   string(body),
		},
		Error: statusError(resp.StatusCode),
	}, nil
}

func statusError(code int) string {
	if code < 400 {
		return ""
	}
	return fmt.Sprintf("http status %d", code)
}
