package squad

import (
	"context"
	"fmt"
	"strings"

	"github.com/kurisu/squadagent/internal/provider"
)

const contextTemplate = `Context information is below.
---------------------
%s
---------------------
Given the context information and not prior knowledge, answer the query.
Query: %s
Answer: `

// QueryEngine answers questions by retrieving documents and asking the
// model to answer from them.
type QueryEngine struct {
	retriever Retriever
	provider  provider.Provider
	maxTokens int
}

// NewQueryEngine creates a QueryEngine.
func NewQueryEngine(r Retriever, p provider.Provider) *QueryEngine {
	return &QueryEngine{retriever: r, provider: p, maxTokens: 512}
}

// Query returns the model's answer, or "" when no documents matched.
func (e *QueryEngine) Query(ctx context.Context, query string) (string, error) {
	req, ok, err := e.request(ctx, query)
	if err != nil || !ok {
		return "", err
	}
	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("squad: answering query: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// Stream is Query with the answer delivered as chunks. A query without
// matching documents yields a closed, empty channel.
func (e *QueryEngine) Stream(ctx context.Context, query string) (<-chan provider.StreamChunk, error) {
	req, ok, err := e.request(ctx, query)
	if err != nil {
		return nil, err
	}
	if !ok {
		ch := make(chan provider.StreamChunk)
		close(ch)
		return ch, nil
	}
	return e.provider.Stream(ctx, req)
}

func (e *QueryEngine) request(ctx context.Context, query string) (provider.CompletionRequest, bool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return provider.CompletionRequest{}, false, ErrEmptyQuery
	}
	docs, err := e.retriever.Retrieve(ctx, query)
	if err != nil {
		return provider.CompletionRequest{}, false, fmt.Errorf("squad: retrieving: %w", err)
	}
	if len(docs) == 0 {
		return provider.CompletionRequest{}, false, nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	msgs := []provider.LLMMessage{{
		Role:    provider.MessageRoleUser,
		Content: fmt.Sprintf(contextTemplate, strings.Join(texts, "\n\n"), query),
	}}
	return provider.CompletionRequest{Messages: msgs, MaxTokens: e.maxTokens}, true, nil
}
