package steplog

import (
	"fmt"

	"github.com/kurisu/squadagent/internal/codeblock"
	"github.com/kurisu/squadagent/internal/provider"
	"github.com/kurisu/squadagent/internal/tool"
)

// Turn is one user prompt and the steps taken to answer it.
type Turn struct {
	Task       string            `json:"task"`
	Steps      []Step            `json:"steps"`
	Answer     *tool.FinalAnswer `json:"answer,omitempty"`
	Incomplete bool              `json:"incomplete,omitempty"`
}

// Log is the ordered, append-only record of a session's turns.
// The zero value is an empty log.
type Log struct {
	Turns []Turn `json:"turns"`
}

// Clone returns a deep enough copy that appending to either log does not
// affect the other.
func (l *Log) Clone() *Log {
	if l == nil {
		return &Log{}
	}
	out := &Log{Turns: make([]Turn, len(l.Turns))}
	for i, t := range l.Turns {
		t.Steps = append([]Step(nil), t.Steps...)
		out.Turns[i] = t
	}
	return out
}

// StartTurn opens a new turn for task.
func (l *Log) StartTurn(task string) {
	l.Turns = append(l.Turns, Turn{Task: task})
}

// Append adds s to the current turn. It panics if no turn was started.
func (l *Log) Append(s Step) {
	if len(l.Turns) == 0 {
		panic("steplog: Append before StartTurn")
	}
	t := &l.Turns[len(l.Turns)-1]
	t.Steps = append(t.Steps, s)
}

// Finish closes the current turn with its answer.
func (l *Log) Finish(answer *tool.FinalAnswer, incomplete bool) {
	if len(l.Turns) == 0 {
		return
	}
	t := &l.Turns[len(l.Turns)-1]
	t.Answer = answer
	t.Incomplete = incomplete
}

// Len returns the total number of steps across turns.
func (l *Log) Len() int {
	n := 0
	for _, t := range l.Turns {
		n += len(t.Steps)
	}
	return n
}

// Empty reports whether the log holds no turns.
func (l *Log) Empty() bool { return l == nil || len(l.Turns) == 0 }

// Current returns the turn in progress, or nil.
func (l *Log) Current() *Turn {
	if len(l.Turns) == 0 {
		return nil
	}
	return &l.Turns[len(l.Turns)-1]
}

// LastObservation returns the most recent non-empty observation text.
func (l *Log) LastObservation() string {
	for i := len(l.Turns) - 1; i >= 0; i-- {
		steps := l.Turns[i].Steps
		for j := len(steps) - 1; j >= 0; j-- {
			if text := steps[j].ObservationText(); text != "" {
				return text
			}
		}
	}
	return ""
}

// Transcript renders the log as the message history sent to the model:
// each turn's task as a user message, then per step the model's output as
// an assistant message and the observation as a tool_response message.
func (l *Log) Transcript() []provider.LLMMessage {
	var msgs []provider.LLMMessage
	step := 0
	for _, t := range l.Turns {
		msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleUser, Content: TaskMessage(t.Task)})
		for _, s := range t.Steps {
			step++
			if s.RawOutput != "" {
				msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleAssistant, Content: codeblock.EnsureSentinel(s.RawOutput)})
			}
			msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleToolResponse, Content: feedback(step, s)})
		}
	}
	return msgs
}

// TaskMessage formats a user prompt for the model.
func TaskMessage(task string) string {
	return "Task: " + task
}

func feedback(n int, s Step) string {
	obs := s.ObservationText()
	if s.Error == nil {
		return fmt.Sprintf("[OUTPUT OF STEP %d] -> Observation:\n%s", n, obs)
	}
	return fmt.Sprintf("[OUTPUT OF STEP %d] -> Observation:\n%s\nNow let's retry: take care not to repeat previous errors! "+
		"If you have retried several times, try a completely different approach.", n, obs)
}
