// Package bot exposes the SQuAD index through simple question answering
// bots that run without the agent loop. Each bot declares what it can do
// and callers dispatch on those capabilities.
package bot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/kurisu/squadagent/internal/provider"
)

// Capability is a bit set of operations a bot supports.
type Capability uint8

// Capability bits.
const (
	CapQuery Capability = 1 << iota
	CapStreamQuery
	CapChat
)

// Has reports whether c includes every bit of other.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	var parts []string
	if c.Has(CapQuery) {
		parts = append(parts, "query")
	}
	if c.Has(CapStreamQuery) {
		parts = append(parts, "stream")
	}
	if c.Has(CapChat) {
		parts = append(parts, "chat")
	}
	return strings.Join(parts, "|")
}

// ServiceName is the service registry key of the bot Set.
const ServiceName = "bot.set"

// Sentinel errors.
var (
	ErrUnsupported = errors.New("bot: operation not supported")
	ErrUnknownBot  = errors.New("bot: unknown bot")
)

// Bot answers user messages. Methods outside the declared capabilities
// return ErrUnsupported.
type Bot interface {
	Name() string
	Capabilities() Capability
	Query(ctx context.Context, text string) (string, error)
	Chat(ctx context.Context, sessionKey, text string) (string, error)
	Stream(ctx context.Context, sessionKey, text string) (<-chan provider.StreamChunk, error)
}

// Ask answers text with the richest operation b supports: chat, then query.
func Ask(ctx context.Context, b Bot, sessionKey, text string) (string, error) {
	caps := b.Capabilities()
	switch {
	case caps.Has(CapChat):
		return b.Chat(ctx, sessionKey, text)
	case caps.Has(CapQuery):
		return b.Query(ctx, text)
	}
	return "", fmt.Errorf("%w: %s cannot answer", ErrUnsupported, b.Name())
}

// AskStream answers text as a stream of chunks.
func AskStream(ctx context.Context, b Bot, sessionKey, text string) (<-chan provider.StreamChunk, error) {
	if !b.Capabilities().Has(CapStreamQuery) {
		return nil, fmt.Errorf("%w: %s cannot stream", ErrUnsupported, b.Name())
	}
	return b.Stream(ctx, sessionKey, text)
}

// Set holds bots by name.
type Set struct {
	bots map[string]Bot
}

// NewSet creates a Set from bots. Later bots replace earlier ones with the
// same name.
func NewSet(bots ...Bot) *Set {
	s := &Set{bots: make(map[string]Bot, len(bots))}
	for _, b := range bots {
		s.bots[b.Name()] = b
	}
	return s
}

// Get returns the bot called name.
func (s *Set) Get(name string) (Bot, error) {
	b, ok := s.bots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBot, name)
	}
	return b, nil
}

// Names returns the bot names, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.bots))
	for n := range s.bots {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
