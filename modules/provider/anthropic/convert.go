package anthropic

import (
	"log/slog"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/kurisu/squadagent/internal/provider"
)

// convertRequest transforms a CompletionRequest into Messages API
// parameters. Leading system messages go to the System field; the rest
// are merged into strictly alternating user/assistant turns.
func convertRequest(req provider.CompletionRequest, cfg *Config, logger *slog.Logger) sdkanthropic.MessageNewParams {
	system, messages := splitSystemMessages(req.Messages)

	params := sdkanthropic.MessageNewParams{
		Model:    sdkanthropic.Model(cfg.Model),
		Messages: convertMessages(messages, logger),
		System:   system,
	}

	params.MaxTokens = int64(cfg.MaxTokens)
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdkanthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = sdkanthropic.Float(*req.TopP)
	}
	if stop := stopSequences(req.Stop); len(stop) > 0 {
		params.StopSequences = stop
	}
	return params
}

// stopSequences drops whitespace-only sequences, which the API rejects.
func stopSequences(in []string) []string {
	var out []string
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitSystemMessages extracts leading system messages into the System
// parameter and returns the remaining messages.
func splitSystemMessages(msgs []provider.LLMMessage) ([]sdkanthropic.TextBlockParam, []provider.LLMMessage) {
	var system []sdkanthropic.TextBlockParam
	var idx int
	for idx = 0; idx < len(msgs); idx++ {
		if msgs[idx].Role != provider.MessageRoleSystem {
			break
		}
		system = append(system, sdkanthropic.TextBlockParam{Text: msgs[idx].Content})
	}
	return system, msgs[idx:]
}

// convertMessages maps the remaining messages onto user and assistant
// turns. Mid-conversation system messages and observations become user
// text, consecutive same-role messages are merged, and empty messages are
// skipped since the API rejects empty text blocks.
func convertMessages(msgs []provider.LLMMessage, logger *slog.Logger) []sdkanthropic.MessageParam {
	mapped := make([]provider.LLMMessage, 0, len(msgs))
	for i, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case provider.MessageRoleAssistant, provider.MessageRoleUser:
		case provider.MessageRoleSystem, provider.MessageRoleToolResponse:
			m.Role = provider.MessageRoleUser
		default:
			if logger != nil {
				logger.Warn("dropping message with unknown role", "role", m.Role, "index", i)
			}
			continue
		}
		mapped = append(mapped, m)
	}
	mapped = provider.MergeConsecutive(mapped)

	result := make([]sdkanthropic.MessageParam, 0, len(mapped))
	for _, m := range mapped {
		block := sdkanthropic.NewTextBlock(m.Content)
		if m.Role == provider.MessageRoleAssistant {
			result = append(result, sdkanthropic.NewAssistantMessage(block))
		} else {
			result = append(result, sdkanthropic.NewUserMessage(block))
		}
	}
	return result
}

// convertResponse transforms a Message into a CompletionResponse.
func convertResponse(msg *sdkanthropic.Message) provider.CompletionResponse {
	var content strings.Builder
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(sdkanthropic.TextBlock); ok {
			if content.Len() > 0 {
				content.WriteByte('\n')
			}
			content.WriteString(v.Text)
		}
	}

	return provider.CompletionResponse{
		Content:      content.String(),
		FinishReason: convertStopReason(msg.StopReason),
		Usage: provider.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

// convertStopReason maps a Messages API stop reason to a FinishReason.
func convertStopReason(reason sdkanthropic.StopReason) provider.FinishReason {
	switch reason {
	case sdkanthropic.StopReasonMaxTokens:
		return provider.FinishReasonLength
	case sdkanthropic.StopReasonRefusal:
		return provider.FinishReasonFiltering
	default:
		return provider.FinishReasonStop
	}
}
