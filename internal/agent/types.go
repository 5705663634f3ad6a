// Package agent implements the code-writing agent loop: the model writes a
// Thought and a code block, the sandbox runs the code with tools bound as
// functions, and the observation is fed back until the code calls
// final_answer or a limit is reached.
package agent

import (
	"github.com/google/uuid"

	"github.com/kurisu/squadagent/internal/provider"
	"github.com/kurisu/squadagent/internal/sandbox"
	"github.com/kurisu/squadagent/internal/steplog"
	"github.com/kurisu/squadagent/internal/tool"
)

// State is a position in the loop's state machine.
type State string

// State values. A turn cycles AwaitingModel → Parsing → Executing →
// Recording and then either continues or ends Terminated or Failed.
// Parse failures skip Executing.
const (
	StateAwaitingModel State = "awaiting_model"
	StateParsing       State = "parsing"
	StateExecuting     State = "executing"
	StateRecording     State = "recording"
	StateContinue      State = "continue"
	StateTerminated    State = "terminated"
	StateFailed        State = "failed"
)

// StopReason describes why the agent loop terminated.
type StopReason string

// StopReason constants for agent loop termination.
const (
	StopReasonComplete      StopReason = "complete"
	StopReasonMaxIterations StopReason = "max_iterations"
	StopReasonTokenBudget   StopReason = "token_budget"
	StopReasonLoopDetected  StopReason = "loop_detected"
	StopReasonParseRetries  StopReason = "parse_retries"
	StopReasonErrorRetries  StopReason = "error_retries"
	StopReasonModelError    StopReason = "model_error"
	StopReasonTimeout       StopReason = "timeout"
	StopReasonCancelled     StopReason = "cancelled"
)

// EventType identifies the kind of event a run emits.
type EventType string

// EventType constants.
const (
	EventState      EventType = "state"
	EventModelDelta EventType = "model_delta"
	EventStep       EventType = "step"
	EventFinal      EventType = "final"
	EventDone       EventType = "done"
)

// Event is one item of a run's stream. Exactly one EventDone ends every
// stream that is consumed to completion.
type Event struct {
	Type EventType `json:"type"`
	// State is set on EventState.
	State State `json:"state,omitempty"`
	// Delta is a chunk of model output, set on EventModelDelta.
	Delta string `json:"delta,omitempty"`
	// Step is set on EventStep, after it has been committed to the log.
	Step *steplog.Step `json:"step,omitempty"`
	// Answer is set on EventFinal.
	Answer *tool.FinalAnswer `json:"answer,omitempty"`
	// Result is set on EventDone.
	Result *Result `json:"result,omitempty"`
}

// Result is the outcome of one turn.
type Result struct {
	Answer *tool.FinalAnswer `json:"answer,omitempty"`
	// Incomplete marks a turn that ran out of budget. PartialAnswer then
	// holds the last observation, or a could-not-complete message.
	Incomplete    bool                `json:"incomplete,omitempty"`
	PartialAnswer string              `json:"partial_answer,omitempty"`
	State         State               `json:"state"`
	StopReason    StopReason          `json:"stop_reason"`
	Iterations    int                 `json:"iterations"`
	Usage         provider.TokenUsage `json:"usage"`
	Err           error               `json:"-"`
}

// Error returns the message of Err, for serialization.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Run is one turn of a session: the task plus the state it runs against.
// Env and Log are owned by the run while it is being streamed.
type Run struct {
	ID   string
	Task string
	Env  *sandbox.Environment
	Log  *steplog.Log
}

// NewRun starts a fresh run with an empty environment and log.
func NewRun(task string) *Run {
	return ResumeRun(task, nil, nil)
}

// ResumeRun continues a session from a previous log and environment.
// Nil arguments are replaced by empty ones, so resuming from nothing is
// the same as NewRun.
func ResumeRun(task string, log *steplog.Log, env *sandbox.Environment) *Run {
	if log == nil {
		log = &steplog.Log{}
	}
	if env == nil {
		env = sandbox.NewEnvironment()
	}
	return &Run{ID: uuid.NewString(), Task: task, Env: env, Log: log}
}
