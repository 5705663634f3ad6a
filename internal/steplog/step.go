// Package steplog records what happens in each agent iteration: the model's
// rationale, the code it ran, a kind-tagged observation and any error.
// The Log of a session is what gets persisted and replayed to the model.
package steplog

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/kurisu/squadagent/internal/codeblock"
	"github.com/kurisu/squadagent/internal/sandbox"
	"github.com/kurisu/squadagent/internal/tool"
)

// CodeInterpreter is the tool name recorded for executed code blocks.
const CodeInterpreter = "code_interpreter"

// ErrorKind classifies a step error for the UI and for retry accounting.
type ErrorKind string

// ErrorKind values.
const (
	KindNoCodeBlock         ErrorKind = "no_code_block"
	KindMalformedTerminator ErrorKind = "malformed_terminator"
	KindImportNotAllowed    ErrorKind = "import_not_allowed"
	KindShadowedName        ErrorKind = "shadowed_name"
	KindInvalidArgument     ErrorKind = "invalid_argument"
	KindToolExecution       ErrorKind = "tool_execution"
	KindRuntimeScript       ErrorKind = "runtime_script"
	KindModelClient         ErrorKind = "model_client"
	KindIterationBudget     ErrorKind = "iteration_budget_exceeded"
	KindLoopDetected        ErrorKind = "loop_detected"
	KindSessionStorage      ErrorKind = "session_storage"
)

// Parse reports whether the kind comes from parsing model output.
func (k ErrorKind) Parse() bool {
	return k == KindNoCodeBlock || k == KindMalformedTerminator
}

// KindOf maps parser, sandbox and tool errors to their kind. Anything else
// is reported as a runtime script error.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, codeblock.ErrNoCodeBlockFound):
		return KindNoCodeBlock
	case errors.Is(err, codeblock.ErrMalformedTerminator):
		return KindMalformedTerminator
	case errors.Is(err, sandbox.ErrImportNotAllowed):
		return KindImportNotAllowed
	case errors.Is(err, sandbox.ErrShadowedName):
		return KindShadowedName
	case errors.Is(err, tool.ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, tool.ErrToolExecution), errors.Is(err, tool.ErrToolNotFound):
		return KindToolExecution
	}
	return KindRuntimeScript
}

// StepError is the error recorded on a step.
type StepError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// NewStepError builds a StepError from err, classified with KindOf.
func NewStepError(err error) *StepError {
	return &StepError{Kind: KindOf(err), Message: err.Error()}
}

// ToolCall is the action a step took.
type ToolCall struct {
	ToolName  string `json:"tool_name"`
	Arguments string `json:"arguments"`
}

// EntryKind tags one piece of an observation.
type EntryKind string

// EntryKind values.
const (
	EntryToolCall    EntryKind = "tool_call"
	EntryStdout      EntryKind = "stdout"
	EntryReturnValue EntryKind = "return_value"
	EntryError       EntryKind = "error"
	EntryNotice      EntryKind = "notice"
	EntryFinalAnswer EntryKind = "final_answer"
)

// Entry is one kind-tagged piece of an observation.
type Entry struct {
	Kind EntryKind `json:"kind"`
	Text string    `json:"text"`
}

// Step is one loop iteration.
type Step struct {
	Iteration   int                  `json:"iteration"`
	RawOutput   string               `json:"raw_output,omitempty"`
	Rationale   string               `json:"rationale,omitempty"`
	ToolCall    *ToolCall            `json:"tool_call,omitempty"`
	Invocations []sandbox.Invocation `json:"invocations,omitempty"`
	Observation []Entry              `json:"observation,omitempty"`
	Error       *StepError           `json:"error,omitempty"`
	FinalAnswer *tool.FinalAnswer    `json:"final_answer,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	Duration    time.Duration        `json:"duration"`
}

// Build assembles the step for one iteration from the raw model output and
// either a parse error or the execution result.
func Build(iteration int, raw string, block codeblock.Block, parseErr error, res *sandbox.Result) Step {
	s := Step{Iteration: iteration, RawOutput: raw}

	if parseErr != nil {
		s.Error = NewStepError(parseErr)
		s.Observation = []Entry{{Kind: EntryError, Text: s.Error.Message}}
		return s
	}

	s.Rationale = block.Rationale
	s.ToolCall = &ToolCall{ToolName: CodeInterpreter, Arguments: block.Code}
	if res == nil {
		return s
	}

	s.Invocations = res.Invocations
	for _, inv := range res.Invocations {
		s.Observation = append(s.Observation, Entry{Kind: EntryToolCall, Text: CallSignature(inv.Tool, inv.Args)})
	}
	if res.Stdout != "" {
		s.Observation = append(s.Observation, Entry{Kind: EntryStdout, Text: strings.TrimRight(res.Stdout, "\n")})
	}
	if res.HasReturn {
		s.Observation = append(s.Observation, Entry{Kind: EntryReturnValue, Text: res.ReturnText})
	}
	if res.Err != nil {
		s.Error = NewStepError(res.Err)
		s.Observation = append(s.Observation, Entry{Kind: EntryError, Text: s.Error.Message})
	}
	if res.Final != nil {
		s.FinalAnswer = res.Final
		s.Observation = append(s.Observation, Entry{Kind: EntryFinalAnswer, Text: res.Final.Text()})
	}
	return s
}

// CallSignature renders a tool call with its arguments in canonical form:
// keys sorted, values JSON-encoded. Identical calls render identically.
func CallSignature(name string, args tool.Args) string {
	parts := make([]string, 0, len(args))
	for _, k := range slices.Sorted(maps.Keys(args)) {
		v, err := json.Marshal(args[k])
		if err != nil {
			v = []byte(fmt.Sprint(args[k]))
		}
		parts = append(parts, k+"="+string(v))
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

// Annotate adds a notice to the observation.
func (s *Step) Annotate(text string) {
	s.Observation = append(s.Observation, Entry{Kind: EntryNotice, Text: text})
}

// Entries returns the observation entries of the given kind.
func (s Step) Entries(kind EntryKind) []Entry {
	var out []Entry
	for _, e := range s.Observation {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// ObservationText renders the observation as fed back to the model.
func (s Step) ObservationText() string {
	var b strings.Builder
	for _, e := range s.Observation {
		switch e.Kind {
		case EntryToolCall:
			fmt.Fprintf(&b, "Tool call: %s\n", e.Text)
		case EntryStdout:
			fmt.Fprintf(&b, "Print outputs:\n%s\n", e.Text)
		case EntryReturnValue:
			fmt.Fprintf(&b, "Last output from code snippet:\n%s\n", e.Text)
		case EntryError:
			fmt.Fprintf(&b, "Error: %s\n", e.Text)
		case EntryNotice:
			fmt.Fprintf(&b, "Note: %s\n", e.Text)
		case EntryFinalAnswer:
			fmt.Fprintf(&b, "Final answer: %s\n", e.Text)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
