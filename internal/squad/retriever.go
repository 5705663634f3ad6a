package squad

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultTopK is how many documents a retrieval returns.
const DefaultTopK = 2

// ErrEmptyQuery indicates a blank query.
var ErrEmptyQuery = errors.New("squad: empty query")

// Document is a retrieved record with its relevance score.
// Higher scores are better.
type Document struct {
	Text   string  `json:"text"`
	Title  string  `json:"title,omitempty"`
	Score  float64 `json:"score"`
	Record Record  `json:"-"`
}

// Retriever returns the documents most relevant to query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Document, error)
}

// FormatDocuments renders documents for the model.
func FormatDocuments(docs []Document) string {
	if len(docs) == 0 {
		return "No documents found for this query."
	}
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = fmt.Sprintf("%s\nScore: %g", d.Text, d.Score)
	}
	return "===Document===\n" + strings.Join(parts, "\n===Document===\n")
}
