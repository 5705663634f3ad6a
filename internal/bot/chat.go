package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/kurisu/squadagent/internal/provider"
	"github.com/kurisu/squadagent/internal/squad"
)

const chatContextPrompt = "You are a chatbot, able to have normal interactions, as well as talk" +
	" about the questions and answers you know about." +
	"Here are the relevant documents for the context:\n" +
	"%s" +
	"\nInstruction: Use the previous chat history, or the context above, to interact and help the user."

// ChatBot holds a conversation per session key. Each message retrieves
// fresh context documents; history is kept in a token-limited memory.
type ChatBot struct {
	retriever squad.Retriever
	provider  provider.Provider
	memory    *Memory
}

// NewChatBot creates a ChatBot. A nil memory gets the defaults.
func NewChatBot(r squad.Retriever, p provider.Provider, memory *Memory) *ChatBot {
	if memory == nil {
		memory = NewMemory(0, 0)
	}
	return &ChatBot{retriever: r, provider: p, memory: memory}
}

// Name implements Bot.
func (*ChatBot) Name() string { return "chat" }

// Capabilities implements Bot.
func (*ChatBot) Capabilities() Capability { return CapChat | CapStreamQuery }

// Query implements Bot.
func (b *ChatBot) Query(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: %s cannot answer one-off queries", ErrUnsupported, b.Name())
}

// Chat implements Bot.
func (b *ChatBot) Chat(ctx context.Context, sessionKey, text string) (string, error) {
	req, err := b.request(ctx, sessionKey, text)
	if err != nil {
		return "", err
	}
	resp, err := b.provider.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("bot: chat completion: %w", err)
	}
	b.remember(sessionKey, text, resp.Content)
	return resp.Content, nil
}

// Stream implements Bot. The exchange is remembered once the stream ends
// without error.
func (b *ChatBot) Stream(ctx context.Context, sessionKey, text string) (<-chan provider.StreamChunk, error) {
	req, err := b.request(ctx, sessionKey, text)
	if err != nil {
		return nil, err
	}
	in, err := b.provider.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bot: chat stream: %w", err)
	}

	out := make(chan provider.StreamChunk)
	go func() {
		defer close(out)
		var (
			answer strings.Builder
			failed bool
		)
		for chunk := range in {
			if chunk.Err != nil {
				failed = true
			}
			answer.WriteString(chunk.Content)
			select {
			case out <- chunk:
			case <-ctx.Done():
				for range in {
				}
				return
			}
		}
		if !failed {
			b.remember(sessionKey, text, answer.String())
		}
	}()
	return out, nil
}

func (b *ChatBot) request(ctx context.Context, sessionKey, text string) (provider.CompletionRequest, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return provider.CompletionRequest{}, squad.ErrEmptyQuery
	}
	docs, err := b.retriever.Retrieve(ctx, text)
	if err != nil {
		return provider.CompletionRequest{}, fmt.Errorf("bot: retrieving context: %w", err)
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	msgs := []provider.LLMMessage{{
		Role:    provider.MessageRoleSystem,
		Content: fmt.Sprintf(chatContextPrompt, strings.Join(texts, "\n\n")),
	}}
	msgs = append(msgs, b.memory.History(sessionKey)...)
	msgs = append(msgs, provider.LLMMessage{Role: provider.MessageRoleUser, Content: text})
	return provider.CompletionRequest{Messages: provider.Prepare(b.provider, msgs)}, nil
}

func (b *ChatBot) remember(sessionKey, question, answer string) {
	b.memory.Append(sessionKey,
		provider.LLMMessage{Role: provider.MessageRoleUser, Content: question},
		provider.LLMMessage{Role: provider.MessageRoleAssistant, Content: answer},
	)
}

var _ Bot = (*ChatBot)(nil)
