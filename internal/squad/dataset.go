// Package squad loads the Stanford Question Answering Dataset and answers
// questions from it: a Retriever ranks question/answer documents and a
// QueryEngine asks the model to answer from the top-ranked ones.
package squad

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidDataset indicates input that is not SQuAD v1.1 JSON.
var ErrInvalidDataset = errors.New("squad: invalid dataset")

// Record is one answer to one question, with the paragraph it came from.
type Record struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Title    string `json:"title"`
	Context  string `json:"context"`
}

// Document renders the text that is indexed and shown to the model.
func (r Record) Document() string {
	return "Question: " + r.Question + " \nAnswer: " + r.Answer
}

type rawDataset struct {
	Version string `json:"version"`
	Data    []struct {
		Title      string `json:"title"`
		Paragraphs []struct {
			Context string `json:"context"`
			QAs     []struct {
				ID       string `json:"id"`
				Question string `json:"question"`
				Answers  []struct {
					Text string `json:"text"`
				} `json:"answers"`
			} `json:"qas"`
		} `json:"paragraphs"`
	} `json:"data"`
}

// LoadDataset parses SQuAD v1.1 JSON into one Record per answer, in
// document order. Questions with several answers yield several records.
func LoadDataset(r io.Reader) ([]Record, error) {
	var raw rawDataset
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}
	if raw.Data == nil {
		return nil, fmt.Errorf("%w: missing \"data\" array", ErrInvalidDataset)
	}

	var out []Record
	for _, article := range raw.Data {
		for _, par := range article.Paragraphs {
			for _, qa := range par.QAs {
				q := strings.TrimSpace(qa.Question)
				for _, ans := range qa.Answers {
					out = append(out, Record{
						Question: q,
						Answer:   ans.Text,
						Title:    article.Title,
						Context:  par.Context,
					})
				}
			}
		}
	}
	return out, nil
}
