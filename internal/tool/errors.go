package tool

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound is returned when a tool is not found in the registry.
	ErrToolNotFound = errors.New("tool not found")

	// ErrEmptyToolName is returned when a tool name is empty.
	ErrEmptyToolName = errors.New("tool name must not be empty")

	// ErrInvalidToolName is returned when a tool name is not a valid identifier
	// or collides with a name reserved by the script sandbox.
	ErrInvalidToolName = errors.New("invalid tool name")

	// ErrDuplicateTool is returned when registering a tool with a name that
	// already exists in the registry.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrInvalidSpec is returned when a tool spec is malformed.
	ErrInvalidSpec = errors.New("invalid tool spec")

	// ErrInvalidArgument is returned when call arguments do not match the
	// tool's declared inputs.
	ErrInvalidArgument = errors.New("invalid tool argument")

	// ErrToolExecution marks every failure raised while a tool runs.
	ErrToolExecution = errors.New("tool execution failed")
)

// ExecutionError wraps an error raised by a tool. It matches both
// ErrToolExecution and the underlying cause under errors.Is.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *ExecutionError) Unwrap() []error {
	return []error{ErrToolExecution, e.Err}
}
