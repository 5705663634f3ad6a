package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/kurisu/squadagent/internal/squad"
)

// Index is a full-text index of SQuAD records ranked with BM25.
// It is safe for concurrent use.
type Index struct {
	db   *sql.DB
	topK int
}

// Build replaces the indexed records with records.
func (x *Index) Build(ctx context.Context, records []squad.Record) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin index build: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM squad_docs"); err != nil {
		return fmt.Errorf("sqlite: clear index: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO squad_docs (question, answer, title, context) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Question, r.Answer, r.Title, r.Context); err != nil {
			return fmt.Errorf("sqlite: insert record: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO squad_fts(squad_fts) VALUES ('rebuild')"); err != nil {
		return fmt.Errorf("sqlite: rebuild fts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit index build: %w", err)
	}
	return nil
}

// Count returns the number of indexed records.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, "SELECT count(*) FROM squad_docs").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count records: %w", err)
	}
	return n, nil
}

// Retrieve implements squad.Retriever. Scores are negated BM25 ranks, so
// higher is better.
func (x *Index) Retrieve(ctx context.Context, query string) ([]squad.Document, error) {
	if strings.TrimSpace(query) == "" {
		return nil, squad.ErrEmptyQuery
	}
	match := MatchQuery(query)
	if match == "" {
		return nil, nil
	}
	topK := x.topK
	if topK <= 0 {
		topK = squad.DefaultTopK
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT d.question, d.answer, d.title, d.context, bm25(squad_fts)
		FROM squad_fts
		JOIN squad_docs d ON d.id = squad_fts.rowid
		WHERE squad_fts MATCH ?
		ORDER BY bm25(squad_fts)
		LIMIT ?`,
		match, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search index: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []squad.Document
	for rows.Next() {
		var (
			r    squad.Record
			rank float64
		)
		if err := rows.Scan(&r.Question, &r.Answer, &r.Title, &r.Context, &rank); err != nil {
			return nil, fmt.Errorf("sqlite: scan document: %w", err)
		}
		out = append(out, squad.Document{Text: r.Document(), Title: r.Title, Score: -rank, Record: r})
	}
	return out, rows.Err()
}

var ftsKeywords = map[string]bool{"AND": true, "OR": true, "NOT": true, "NEAR": true}

// MatchQuery turns free text into an FTS5 MATCH expression: every word is
// quoted, operators and punctuation are dropped, and the terms are ORed so
// BM25 ranks partial matches.
func MatchQuery(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if ftsKeywords[w] {
			continue
		}
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

var _ squad.Retriever = (*Index)(nil)
