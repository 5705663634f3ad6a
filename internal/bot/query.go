package bot

import (
	"context"
	"fmt"

	"github.com/kurisu/squadagent/internal/provider"
	"github.com/kurisu/squadagent/internal/squad"
)

// QueryBot answers single questions with a query engine.
type QueryBot struct {
	engine *squad.QueryEngine
}

// NewQueryBot creates a QueryBot.
func NewQueryBot(e *squad.QueryEngine) *QueryBot {
	return &QueryBot{engine: e}
}

// Name implements Bot.
func (*QueryBot) Name() string { return "query" }

// Capabilities implements Bot.
func (*QueryBot) Capabilities() Capability { return CapQuery | CapStreamQuery }

// Query implements Bot.
func (b *QueryBot) Query(ctx context.Context, text string) (string, error) {
	return b.engine.Query(ctx, text)
}

// Chat implements Bot. QueryBot keeps no conversation.
func (b *QueryBot) Chat(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("%w: %s cannot chat", ErrUnsupported, b.Name())
}

// Stream implements Bot. The session key is ignored.
func (b *QueryBot) Stream(ctx context.Context, _, text string) (<-chan provider.StreamChunk, error) {
	return b.engine.Stream(ctx, text)
}

var _ Bot = (*QueryBot)(nil)
