// Package squadtest provides test doubles for the squad package.
package squadtest

import (
	"context"
	"strings"
	"sync"

	"github.com/kurisu/squadagent/internal/squad"
)

// StaticRetriever returns documents whose text contains any query word,
// scored by the number of matching words.
type StaticRetriever struct {
	Docs []squad.Document
	Err  error

	mu      sync.Mutex
	queries []string
}

// Retrieve implements squad.Retriever.
func (r *StaticRetriever) Retrieve(_ context.Context, query string) ([]squad.Document, error) {
	r.mu.Lock()
	r.queries = append(r.queries, query)
	r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	words := strings.Fields(strings.ToLower(query))
	var out []squad.Document
	for _, d := range r.Docs {
		text := strings.ToLower(d.Text)
		score := 0
		for _, w := range words {
			if strings.Contains(text, w) {
				score++
			}
		}
		if score > 0 {
			d.Score = float64(score)
			out = append(out, d)
		}
	}
	return out, nil
}

// Queries returns the queries received so far.
func (r *StaticRetriever) Queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

var _ squad.Retriever = (*StaticRetriever)(nil)
