package steplog

import "github.com/kurisu/squadagent/internal/tool"

// MessageKind tells a UI how to render a step message.
type MessageKind string

// MessageKind values.
const (
	MessageThinking    MessageKind = "thinking"
	MessageToolUse     MessageKind = "tool_use"
	MessageObservation MessageKind = "observation"
	MessageError       MessageKind = "error"
	MessageFinalAnswer MessageKind = "final_answer"
)

// Message is a titled, kind-tagged piece of a step ready for display.
type Message struct {
	Kind    MessageKind `json:"kind"`
	Title   string      `json:"title"`
	Content string      `json:"content"`
	// Language is set for code content.
	Language string `json:"language,omitempty"`
}

// Messages splits the step into display messages in the order
// thinking, tool use, observation, error, final answer.
func (s Step) Messages() []Message {
	var out []Message
	if s.Rationale != "" {
		out = append(out, Message{Kind: MessageThinking, Title: "Thinking", Content: s.Rationale})
	}
	if s.ToolCall != nil {
		out = append(out, Message{
			Kind:     MessageToolUse,
			Title:    "Using tool " + s.ToolCall.ToolName,
			Content:  s.ToolCall.Arguments,
			Language: "python",
		})
	}

	var obs Step
	for _, e := range s.Observation {
		if e.Kind != EntryError && e.Kind != EntryFinalAnswer {
			obs.Observation = append(obs.Observation, e)
		}
	}
	if text := obs.ObservationText(); text != "" {
		out = append(out, Message{Kind: MessageObservation, Title: "Observing", Content: text})
	}

	if s.Error != nil {
		out = append(out, Message{Kind: MessageError, Title: "Coping with an error", Content: s.Error.Message})
	}
	if s.FinalAnswer != nil {
		out = append(out, AnswerMessage(*s.FinalAnswer))
	}
	return out
}

// AnswerMessage renders a final answer for display.
func AnswerMessage(a tool.FinalAnswer) Message {
	return Message{Kind: MessageFinalAnswer, Title: "Final answer", Content: a.Text()}
}
