package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// stdinInput satisfies executor.InputProvider by prompting on the
// terminal. Reading happens on a separate goroutine so context
// cancellation still unblocks the step.
type stdinInput struct{}

func (s *stdinInput) Ask(ctx context.Context, prompt, inputType string, choices []string) (string, error) {
	bold := color.New(color.Bold)
	bold.Printf("\n? %s", prompt)
	if len(choices) > 0 {
		fmt.Printf(" [%s]", strings.Join(choices, "/"))
	}
	fmt.Print(": ")

	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		ch <- answer{strings.TrimSpace(line), err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return "", a.err
		}
		if inputType == "choice" && len(choices) > 0 && !contains(choices, a.text) {
			return "", fmt.Errorf("answer %q is not one of %v", a.text, choices)
		}
		return a.text, nil
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
