package bot

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kurisu/squadagent/internal/provider"
)

// Memory defaults.
const (
	DefaultTokenLimit  = 1500
	DefaultMaxSessions = 1024
	charsPerToken      = 4
)

// Memory is a per-session chat history trimmed to a token limit, oldest
// messages first. Tokens are estimated from character counts. Sessions
// beyond the cache size are forgotten, least recently used first.
type Memory struct {
	mu        sync.Mutex
	limit     int
	histories *lru.Cache[string, []provider.LLMMessage]
}

// NewMemory creates a Memory. Zero arguments select the defaults.
func NewMemory(tokenLimit, maxSessions int) *Memory {
	if tokenLimit <= 0 {
		tokenLimit = DefaultTokenLimit
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, []provider.LLMMessage](maxSessions)
	return &Memory{limit: tokenLimit, histories: cache}
}

// EstimateTokens approximates the token count of s.
func EstimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// History returns a copy of the messages remembered for key.
func (m *Memory) History(key string) []provider.LLMMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, _ := m.histories.Get(key)
	return append([]provider.LLMMessage(nil), h...)
}

// Append adds msgs to the history of key and drops the oldest messages
// until the history fits the token limit.
func (m *Memory) Append(key string, msgs ...provider.LLMMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, _ := m.histories.Get(key)
	h = append(append([]provider.LLMMessage(nil), h...), msgs...)

	total := 0
	for _, msg := range h {
		total += EstimateTokens(msg.Content)
	}
	for len(h) > 0 && total > m.limit {
		total -= EstimateTokens(h[0].Content)
		h = h[1:]
	}
	m.histories.Add(key, h)
}

// Clear forgets the history of key.
func (m *Memory) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories.Remove(key)
}
