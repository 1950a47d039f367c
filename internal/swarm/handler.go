package swarm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jfeld/taskforge/internal/executor"
	"github.com/jfeld/taskforge/pkg/models"
)

// agentSystemPrompt frames a pooled agent as a focused worker.
const agentSystemPrompt = `You are a worker agent in a task execution pool. Complete the subtask you are given and reply with the result only. Do not ask questions; make reasonable assumptions and state them.`

// LLMHandler returns a Handler that completes subtasks through a language
// model. The subtask's inherited context is rendered into the prompt so
// the model sees the same variables the parent task carries.
func LLMHandler(llm executor.Completer) Handler {
	return func(ctx context.Context, sub *models.Subtask) (any, error) {
		var b strings.Builder
		b.WriteString("Subtask: ")
		b.WriteString(sub.Description)
		if sub.Type != "" {
			fmt.Fprintf(&b, "\nKind of work: %s", sub.Type)
		}
		if len(sub.Context) > 0 {
			keys := make([]string, 0, len(sub.Context))
			for k := range sub.Context {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			b.WriteString("\n\nContext:")
			for _, k := range keys {
				fmt.Fprintf(&b, "\n- %s: %v", k, sub.Context[k])
			}
		}
		return llm.Complete(ctx, b.String(), agentSystemPrompt)
	}
}

// EchoHandler returns a Handler that reports the subtask description back
// as its output. It backs dry runs and tests.
func EchoHandler() Handler {
	return func(ctx context.Context, sub *models.Subtask) (any, error) {
		return "echo: " + sub.Description, nil
	}
}
