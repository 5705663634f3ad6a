//go:build integration

package anthropic

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kurisu/squadagent/internal/codeblock"
	"github.com/kurisu/squadagent/internal/core"
	"github.com/kurisu/squadagent/internal/provider"
)

// Run with ANTHROPIC_API_KEY set:
//
//	go test -tags=integration ./modules/provider/anthropic/...

var codeStepRequest = provider.CompletionRequest{
	Messages: []provider.LLMMessage{
		{Role: provider.MessageRoleSystem, Content: "Answer with a Thought: line, then a ```py fenced block that calls final_answer, then " + codeblock.Sentinel + "."},
		{Role: provider.MessageRoleUser, Content: "New task:\nWhat is 6 times 7?"},
	},
	MaxTokens: 256,
	Stop:      []string{codeblock.Sentinel},
}

func TestLive_CodeStepStopsAtSentinel(t *testing.T) {
	a := liveProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := a.Complete(ctx, codeStepRequest)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if strings.Contains(resp.Content, codeblock.Sentinel) {
		t.Errorf("completion ran past the stop sequence: %q", resp.Content)
	}
	block, err := codeblock.Extract(codeblock.EnsureSentinel(resp.Content))
	if err != nil {
		t.Fatalf("Extract(%q): %v", resp.Content, err)
	}
	if !strings.Contains(block.Code, "final_answer") {
		t.Errorf("code = %q", block.Code)
	}
	if resp.Usage.PromptTokens == 0 || resp.Usage.CompletionTokens == 0 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestLive_StreamedCodeStep(t *testing.T) {
	a := liveProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ch, err := a.Stream(ctx, codeStepRequest)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	var text strings.Builder
	var usage *provider.TokenUsage
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("stream: %v", chunk.Err)
		}
		text.WriteString(chunk.Content)
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
	}
	if _, err := codeblock.Extract(codeblock.EnsureSentinel(text.String())); err != nil {
		t.Errorf("Extract(%q): %v", text.String(), err)
	}
	if usage == nil {
		t.Error("no usage reported")
	}
}

func TestLive_HealthCheck(t *testing.T) {
	a := liveProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func liveProvider(t *testing.T) *Anthropic {
	t.Helper()
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		t.Skip("ANTHROPIC_API_KEY not set")
	}

	a := &Anthropic{config: Config{APIKey: key}}
	a.config.defaults()
	if err := a.Provision(core.NewAppContext(nil, t.TempDir())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	return a
}
