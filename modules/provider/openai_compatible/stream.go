package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kurisu/squadagent/internal/provider"
)

// oaiStreamChunk is a single SSE chunk from the streaming API.
type oaiStreamChunk struct {
	Choices []oaiStreamChoice `json:"choices"`
	Usage   *oaiUsage         `json:"usage,omitempty"`
}

type oaiStreamChoice struct {
	Delta struct {
		Content string `json:"content,omitempty"`
	} `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// parseSSEStream reads an SSE response body and sends StreamChunks to out
// until [DONE], an error or cancellation. It does not close out.
func parseSSEStream(ctx context.Context, scanner *bufio.Scanner, out chan<- provider.StreamChunk) {
	send := func(c provider.StreamChunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			send(provider.StreamChunk{Err: err})
			return
		}

		// Some compatible servers omit the space after "data:".
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimPrefix(data, " ")

		if data == "[DONE]" {
			return
		}

		var chunk oaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			send(provider.StreamChunk{Err: fmt.Errorf("parse SSE chunk: %w", err)})
			return
		}

		var sc provider.StreamChunk
		if chunk.Usage != nil {
			u := chunk.Usage.tokenUsage()
			sc.Usage = &u
		}
		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]
			sc.Content = choice.Delta.Content
			if choice.FinishReason != nil {
				sc.FinishReason = mapFinishReason(*choice.FinishReason)
			}
		}

		if sc.Content != "" || sc.FinishReason != "" || sc.Usage != nil {
			if !send(sc) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			send(provider.StreamChunk{Err: ctx.Err()})
			return
		}
		send(provider.StreamChunk{Err: fmt.Errorf("%w: stream read error: %w", provider.ErrProviderDown, err)})
	}
}
