package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/kurisu/squadagent/internal/security"
	"github.com/kurisu/squadagent/internal/squad"
	"github.com/kurisu/squadagent/internal/squad/squadtest"
	"github.com/kurisu/squadagent/internal/tool"
	"github.com/kurisu/squadagent/internal/tools"
)

type querierFunc func(ctx context.Context, q string) (string, error)

func (f querierFunc) Query(ctx context.Context, q string) (string, error) { return f(ctx, q) }

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func allowLocal() *security.URLFilter {
	return security.NewURLFilter(security.URLFilterConfig{AllowPrivate: true})
}

func TestSquadRetriever(t *testing.T) {
	t.Parallel()

	r := &squadtest.StaticRetriever{Docs: []squad.Document{
		{Text: "Question: Who wrote Hamlet? \nAnswer: Shakespeare"},
	}}
	rt := tools.NewSquadRetriever(r)

	res, err := rt.Invoke(context.Background(), tool.Args{"query": "hamlet"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.HasPrefix(res.Text, "===Document===\nQuestion: Who wrote Hamlet?") {
		t.Errorf("text = %q", res.Text)
	}

	res, err = rt.Invoke(context.Background(), tool.Args{"query": "zebra"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Text != "No documents found for this query." {
		t.Errorf("empty text = %q", res.Text)
	}

	if _, err := rt.Invoke(context.Background(), tool.Args{"query": "  "}); !errors.Is(err, squad.ErrEmptyQuery) {
		t.Errorf("blank query err = %v, want ErrEmptyQuery", err)
	}
}

func TestSquadQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{"answer", "Shakespeare", "Query Response:\n\nShakespeare"},
		{"empty", "", "No answer found for this query."},
		{"whitespace", " \n", "No answer found for this query."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := tools.NewSquadQuery(querierFunc(func(context.Context, string) (string, error) {
				return tt.answer, nil
			}))
			res, err := q.Invoke(context.Background(), tool.Args{"query": "who?"})
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if res.Text != tt.want {
				t.Errorf("text = %q, want %q", res.Text, tt.want)
			}
		})
	}
}

func TestSquadQuery_Error(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	q := tools.NewSquadQuery(querierFunc(func(context.Context, string) (string, error) { return "", boom }))
	if _, err := q.Invoke(context.Background(), tool.Args{"query": "x"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestImageGenerator(t *testing.T) {
	t.Parallel()

	var gotAuth, gotPath, gotInputs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotInputs = body["inputs"]
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()

	dir := t.TempDir()
	g := tools.NewImageGenerator(tools.ImageGeneratorConfig{
		Endpoint: srv.URL + "/models",
		Model:    "acme/diffusion",
		APIKey:   "hf_secret",
	}, dir, allowLocal())

	res, err := g.Invoke(context.Background(), tool.Args{"prompt": "a cat in a hat"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Type != tool.OutputImage || res.MIMEType != "image/png" {
		t.Errorf("result = %+v", res)
	}
	if filepath.Dir(res.Path) != filepath.Join(dir, "images") || filepath.Ext(res.Path) != ".png" {
		t.Errorf("path = %q", res.Path)
	}
	data, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("reading image: %v", err)
	}
	if string(data) != string(pngHeader) {
		t.Error("image bytes differ")
	}
	if gotAuth != "Bearer hf_secret" || gotPath != "/models/acme/diffusion" || gotInputs != "a cat in a hat" {
		t.Errorf("request auth=%q path=%q inputs=%q", gotAuth, gotPath, gotInputs)
	}
}

func TestImageGenerator_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{"backend error", http.StatusServiceUnavailable, `{"error":"Model is loading"}`, tools.ErrBackend, "Model is loading"},
		{"not an image", http.StatusOK, `{"ok":true}`, tools.ErrNotImage, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := tools.NewImageGenerator(tools.ImageGeneratorConfig{Endpoint: srv.URL}, t.TempDir(), allowLocal())
			_, err := g.Invoke(context.Background(), tool.Args{"prompt": "x"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %v, want message %q", err, tt.wantMsg)
			}
		})
	}
}

func TestImageGenerator_URLBlocked(t *testing.T) {
	t.Parallel()

	g := tools.NewImageGenerator(tools.ImageGeneratorConfig{Endpoint: "http://127.0.0.1:1/models"},
		t.TempDir(), security.NewURLFilter(security.URLFilterConfig{}))
	if _, err := g.Invoke(context.Background(), tool.Args{"prompt": "x"}); !errors.Is(err, security.ErrURLBlocked) {
		t.Errorf("err = %v, want ErrURLBlocked", err)
	}
}

const searxResponse = `{
  "query": "go",
  "results": [
    {"title": "The Go Programming Language", "url": "https://go.dev", "content": "Build simple, secure, scalable systems."},
    {"title": "Go (game)", "url": "https://en.wikipedia.org/wiki/Go_(game)", "content": ""},
    {"title": "Third", "url": "https://example.com", "content": "third"}
  ]
}`

func TestWebSearch(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	var gotQuery, gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		gotQuery = r.URL.Query().Get("q")
		gotFormat = r.URL.Query().Get("format")
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(searxResponse))
	}))
	defer srv.Close()

	ws := tools.NewWebSearch(tools.WebSearchConfig{Endpoint: srv.URL, MaxResults: 2}, allowLocal(), nil)

	res, err := ws.Invoke(context.Background(), tool.Args{"query": "go"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	want := "Search results for: go\n\n" +
		"1. The Go Programming Language\n   https://go.dev\n   Build simple, secure, scalable systems.\n\n" +
		"2. Go (game)\n   https://en.wikipedia.org/wiki/Go_(game)"
	if res.Text != want {
		t.Errorf("text =\n%s\nwant\n%s", res.Text, want)
	}
	if gotQuery != "go" || gotFormat != "json" {
		t.Errorf("q=%q format=%q", gotQuery, gotFormat)
	}

	// Same query is served from cache.
	if _, err := ws.Invoke(context.Background(), tool.Args{"query": "go"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("backend hits = %d, want 1", n)
	}

	res, err = ws.Invoke(context.Background(), tool.Args{"query": "go", "max_results": int64(3)})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(res.Text, "3. Third") {
		t.Errorf("max_results ignored: %q", res.Text)
	}
}

func TestWebSearch_NoResultsAndErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("q") {
		case "nothing":
			_, _ = w.Write([]byte(`{"results":[]}`))
		case "garbage":
			_, _ = w.Write([]byte(`<html>`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	ws := tools.NewWebSearch(tools.WebSearchConfig{Endpoint: srv.URL}, allowLocal(), nil)

	res, err := ws.Invoke(context.Background(), tool.Args{"query": "nothing"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Text != "No results found for: nothing" {
		t.Errorf("text = %q", res.Text)
	}
	for _, q := range []string{"garbage", "limited"} {
		if _, err := ws.Invoke(context.Background(), tool.Args{"query": q}); !errors.Is(err, tools.ErrBackend) {
			t.Errorf("%s: err = %v, want ErrBackend", q, err)
		}
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	retriever := &squadtest.StaticRetriever{}
	querier := querierFunc(func(context.Context, string) (string, error) { return "", nil })

	tests := []struct {
		name    string
		cfg     tools.Config
		deps    tools.Deps
		want    []string
		wantErr error
	}{
		{
			name: "default",
			deps: tools.Deps{Retriever: retriever},
			want: []string{"squad_retriever"},
		},
		{
			name: "all",
			cfg: tools.Config{
				Enabled:   tools.Names,
				WebSearch: tools.WebSearchConfig{Endpoint: "https://search.example.com"},
			},
			deps: tools.Deps{Retriever: retriever, Querier: querier, DataDir: t.TempDir()},
			want: tools.Names,
		},
		{
			name:    "unknown",
			cfg:     tools.Config{Enabled: []string{"python_interpreter"}},
			wantErr: tools.ErrUnknownTool,
		},
		{
			name:    "query without engine",
			cfg:     tools.Config{Enabled: []string{"squad_query"}},
			wantErr: tools.ErrMissingDependency,
		},
		{
			name:    "search without endpoint",
			cfg:     tools.Config{Enabled: []string{"web_search"}},
			wantErr: tools.ErrMissingDependency,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg := tool.NewRegistry()
			err := tools.Register(reg, tt.cfg, tt.deps)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Register: %v", err)
			}
			got := reg.Names()
			if strings.Join(got, ",") != strings.Join(slices.Sorted(slices.Values(tt.want)), ",") {
				t.Errorf("names = %v, want %v", got, tt.want)
			}
		})
	}
}
