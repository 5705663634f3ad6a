// Package tooltest provides test helpers and mocks for the tool package.
package tooltest

import (
	"context"
	"sync"

	"github.com/kurisu/squadagent/internal/tool"
)

// MockTool is a configurable mock implementation of tool.Tool.
type MockTool struct {
	ToolSpec   tool.Spec
	InvokeFunc func(ctx context.Context, args tool.Args) (tool.Result, error)

	mu    sync.Mutex
	calls []tool.Args
}

// Spec implements tool.Tool.
func (m *MockTool) Spec() tool.Spec { return m.ToolSpec }

// Invoke implements tool.Tool and records the arguments.
func (m *MockTool) Invoke(ctx context.Context, args tool.Args) (tool.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, args)
	m.mu.Unlock()

	if m.InvokeFunc != nil {
		return m.InvokeFunc(ctx, args)
	}
	return tool.TextResult("ok"), nil
}

// Calls returns a copy of the recorded arguments, in call order.
func (m *MockTool) Calls() []tool.Args {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]tool.Args, len(m.calls))
	copy(out, m.calls)
	return out
}

// TextTool creates a text tool with a single string input named "query"
// whose output is produced by fn.
func TextTool(name string, fn func(query string) string) *MockTool {
	return &MockTool{
		ToolSpec: tool.Spec{
			Name:        name,
			Description: "test tool " + name,
			Inputs: []tool.Input{
				{Name: "query", Type: tool.InputString, Description: "the query"},
			},
			OutputType: tool.OutputText,
		},
		InvokeFunc: func(_ context.Context, args tool.Args) (tool.Result, error) {
			q, _ := args["query"].(string)
			return tool.TextResult(fn(q)), nil
		},
	}
}

// Interface guard.
var _ tool.Tool = (*MockTool)(nil)
