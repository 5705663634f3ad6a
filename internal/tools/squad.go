// Package tools holds the concrete tools agents call from their code:
// SQuAD retrieval and question answering, text-to-image generation and
// web search.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/kurisu/squadagent/internal/squad"
	"github.com/kurisu/squadagent/internal/tool"
)

// Tool names.
const (
	NameSquadRetriever = "squad_retriever"
	NameSquadQuery     = "squad_query"
	NameImageGenerator = "image_generator"
	NameWebSearch      = "web_search"
)

// Querier answers a question from the SQuAD index.
type Querier interface {
	Query(ctx context.Context, query string) (string, error)
}

// SquadRetriever returns raw SQuAD documents matching a query.
type SquadRetriever struct {
	retriever squad.Retriever
}

// NewSquadRetriever creates the squad_retriever tool.
func NewSquadRetriever(r squad.Retriever) *SquadRetriever {
	return &SquadRetriever{retriever: r}
}

// Spec implements tool.Tool.
func (t *SquadRetriever) Spec() tool.Spec {
	return tool.Spec{
		Name: NameSquadRetriever,
		Description: "Retrieves documents from the Stanford Question Answering Dataset (SQuAD). " +
			"Because this tool does not remember context from previous queries, be sure to include any " +
			"relevant context in your query. Also, this tool only looks for affirmative matches, and does " +
			"not support negative queries, so only query for what you want, not what you don't want.",
		Inputs: []tool.Input{{
			Name: "query",
			Type: tool.InputString,
			Description: "The query. This could be the literal question being asked by the user, " +
				"modified to be informed by your goals and chat history. Be sure to pass this as a " +
				"keyword argument and not a dictionary.",
		}},
		OutputType: tool.OutputText,
	}
}

// Invoke implements tool.Tool.
func (t *SquadRetriever) Invoke(ctx context.Context, args tool.Args) (tool.Result, error) {
	query, err := queryArg(args)
	if err != nil {
		return tool.Result{}, err
	}
	docs, err := t.retriever.Retrieve(ctx, query)
	if err != nil {
		return tool.Result{}, err
	}
	return tool.TextResult(squad.FormatDocuments(docs)), nil
}

// SquadQuery answers a question with the query engine.
type SquadQuery struct {
	engine Querier
}

// NewSquadQuery creates the squad_query tool.
func NewSquadQuery(q Querier) *SquadQuery {
	return &SquadQuery{engine: q}
}

// Spec implements tool.Tool.
func (t *SquadQuery) Spec() tool.Spec {
	return tool.Spec{
		Name: NameSquadQuery,
		Description: "Attempts to answer a question using the Stanford Question Answering Dataset (SQuAD). " +
			"Because this tool does not remember context from previous queries, be sure to include " +
			"any relevant context in your query.",
		Inputs: []tool.Input{{
			Name: "query",
			Type: tool.InputString,
			Description: "The question. This should be the literal question being asked, only modified " +
				"to be informed by your goals and chat history. Be sure to pass this as a keyword " +
				"argument and not a dictionary.",
		}},
		OutputType: tool.OutputText,
	}
}

// Invoke implements tool.Tool.
func (t *SquadQuery) Invoke(ctx context.Context, args tool.Args) (tool.Result, error) {
	query, err := queryArg(args)
	if err != nil {
		return tool.Result{}, err
	}
	answer, err := t.engine.Query(ctx, query)
	if err != nil {
		return tool.Result{}, err
	}
	if strings.TrimSpace(answer) == "" {
		return tool.TextResult("No answer found for this query."), nil
	}
	return tool.TextResult("Query Response:\n\n" + answer), nil
}

func queryArg(args tool.Args) (string, error) {
	q, ok := args["query"].(string)
	if !ok {
		return "", fmt.Errorf("%w: query must be a string", tool.ErrInvalidArgument)
	}
	if strings.TrimSpace(q) == "" {
		return "", squad.ErrEmptyQuery
	}
	return q, nil
}
