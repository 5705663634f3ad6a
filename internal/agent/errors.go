package agent

import (
	"errors"

	"github.com/kurisu/squadagent/internal/codeblock"
	"github.com/kurisu/squadagent/internal/sandbox"
	"github.com/kurisu/squadagent/internal/tool"
)

// Errors recovered inside the loop. They are recorded on steps and fed back
// to the model; they only end a run once a retry budget is spent.
var (
	ErrNoCodeBlockFound    = codeblock.ErrNoCodeBlockFound
	ErrMalformedTerminator = codeblock.ErrMalformedTerminator
	ErrImportNotAllowed    = sandbox.ErrImportNotAllowed
	ErrRuntimeScript       = sandbox.ErrRuntimeScript
	ErrInvalidArgument     = tool.ErrInvalidArgument
	ErrToolExecution       = tool.ErrToolExecution
)

// Sentinel errors for agent loop termination.
var (
	ErrModelClient             = errors.New("agent: model client error")
	ErrIterationBudgetExceeded = errors.New("agent: iteration budget exceeded")
	ErrTokenBudgetExceeded     = errors.New("agent: token budget exceeded")
	ErrUnrecoverable           = errors.New("agent: retry budget exhausted")
	ErrLoopDetected            = errors.New("agent: loop detected")
)
