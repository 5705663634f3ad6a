package anthropic

import (
	"context"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/kurisu/squadagent/internal/provider"
)

const streamBufferSize = 16

// Stream sends a streaming completion request. Connection errors (auth,
// network, 4xx) are returned directly; mid-stream errors arrive via
// StreamChunk.Err.
func (a *Anthropic) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	stream := a.client.Messages.NewStreaming(ctx, convertRequest(req, &a.config, a.logger))

	// The first event is read synchronously so connection failures reach
	// the caller, where the retry wrapper can see them.
	if !stream.Next() {
		err := stream.Err()
		_ = stream.Close() //nolint:errcheck // best-effort close
		if err != nil {
			return nil, mapError(err)
		}
		ch := make(chan provider.StreamChunk)
		close(ch)
		return ch, nil
	}
	first := stream.Current()

	ch := make(chan provider.StreamChunk, streamBufferSize)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }() //nolint:errcheck // best-effort close
		consume(ctx, stream, first, ch)
	}()
	return ch, nil
}

func consume(
	ctx context.Context,
	stream *ssestream.Stream[sdkanthropic.MessageStreamEventUnion],
	first sdkanthropic.MessageStreamEventUnion,
	ch chan<- provider.StreamChunk,
) {
	var inputTokens int64
	handle := func(event sdkanthropic.MessageStreamEventUnion) bool {
		switch ev := event.AsAny().(type) {
		case sdkanthropic.MessageStartEvent:
			inputTokens = ev.Message.Usage.InputTokens
		case sdkanthropic.ContentBlockDeltaEvent:
			if d, ok := ev.Delta.AsAny().(sdkanthropic.TextDelta); ok && d.Text != "" {
				return emit(ctx, ch, provider.StreamChunk{Content: d.Text})
			}
		case sdkanthropic.MessageDeltaEvent:
			out := ev.Usage.OutputTokens
			return emit(ctx, ch, provider.StreamChunk{
				FinishReason: convertStopReason(ev.Delta.StopReason),
				Usage: &provider.TokenUsage{
					PromptTokens:     int(inputTokens),
					CompletionTokens: int(out),
					TotalTokens:      int(inputTokens + out),
				},
			})
		}
		return true
	}

	if !handle(first) {
		return
	}
	for stream.Next() {
		if ctx.Err() != nil || !handle(stream.Current()) {
			return
		}
	}
	if err := stream.Err(); err != nil {
		emit(ctx, ch, provider.StreamChunk{Err: mapError(err)})
	}
}

// emit sends chunk unless ctx is done. It reports whether the chunk was sent.
func emit(ctx context.Context, ch chan<- provider.StreamChunk, chunk provider.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
