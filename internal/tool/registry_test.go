package tool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kurisu/squadagent/internal/security"
)

type registryTestTool struct {
	spec   Spec
	invoke func(ctx context.Context, args Args) (Result, error)
}

func (t registryTestTool) Spec() Spec { return t.spec }

func (t registryTestTool) Invoke(ctx context.Context, args Args) (Result, error) {
	if t.invoke != nil {
		return t.invoke(ctx, args)
	}
	return TextResult("ok"), nil
}

func querySpec(name string) Spec {
	return Spec{
		Name:        name,
		Description: "registry test tool",
		Inputs:      []Input{{Name: "query", Type: InputString, Description: "q"}},
		OutputType:  OutputText,
	}
}

func TestRegistryRegister_RejectsBadNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want error
	}{
		{"", ErrEmptyToolName},
		{"   ", ErrEmptyToolName},
		{"web-search", ErrInvalidToolName},
		{"1tool", ErrInvalidToolName},
		{"final_answer", ErrInvalidToolName},
		{"print", ErrInvalidToolName},
	}

	for _, tt := range tests {
		r := NewRegistry()
		err := r.Register(registryTestTool{spec: querySpec(tt.name)})
		if !errors.Is(err, tt.want) {
			t.Errorf("Register(%q) = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestRegistryRegister_Duplicate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(registryTestTool{spec: querySpec("squad_retriever")}); err != nil {
		t.Fatalf("unexpected first register error: %v", err)
	}

	err := r.Register(registryTestTool{spec: querySpec("squad_retriever")})
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}
}

func TestRegistryRegister_MalformedSchema(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	bad := querySpec("lookup")
	bad.Inputs = []Input{{Name: "query", Type: "text"}}
	if err := r.Register(registryTestTool{spec: bad}); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("unknown input type: got %v, want ErrInvalidSpec", err)
	}

	bad = querySpec("lookup")
	bad.OutputType = "video"
	if err := r.Register(registryTestTool{spec: bad}); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("unknown output type: got %v, want ErrInvalidSpec", err)
	}

	bad = querySpec("lookup")
	bad.Inputs = append(bad.Inputs, bad.Inputs[0])
	if err := r.Register(registryTestTool{spec: bad}); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("duplicate input: got %v, want ErrInvalidSpec", err)
	}
}

func TestRegistryNamesAndSpecsSorted(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, name := range []string{"web_search", "image_generator", "squad_query"} {
		if err := r.Register(registryTestTool{spec: querySpec(name)}); err != nil {
			t.Fatal(err)
		}
	}

	names := r.Names()
	want := []string{"image_generator", "squad_query", "web_search"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", names, want)
		}
	}
	specs := r.Specs()
	if len(specs) != 3 || specs[0].Name != "image_generator" {
		t.Fatalf("Specs() not sorted: %+v", specs)
	}
}

func TestRegistryInvoke_NotFound(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry().Invoke(context.Background(), "missing", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistryInvoke_ValidatesBeforeCalling(t *testing.T) {
	t.Parallel()

	called := false
	r := NewRegistry()
	_ = r.Register(registryTestTool{
		spec: querySpec("squad_retriever"),
		invoke: func(context.Context, Args) (Result, error) {
			called = true
			return TextResult("ok"), nil
		},
	})

	cases := []Args{
		{},
		{"query": 42},
		{"query": "x", "extra": true},
	}
	for _, args := range cases {
		_, err := r.Invoke(context.Background(), "squad_retriever", args)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Invoke(%v) = %v, want ErrInvalidArgument", args, err)
		}
	}
	if called {
		t.Error("tool must not run when arguments are invalid")
	}
}

func TestRegistryInvoke_Success(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_ = r.Register(registryTestTool{
		spec: querySpec("echo"),
		invoke: func(_ context.Context, args Args) (Result, error) {
			return TextResult("echo: " + args["query"].(string)), nil
		},
	})

	res, err := r.Invoke(context.Background(), "echo", Args{"query": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "echo: hi" || res.Type != OutputText {
		t.Errorf("result = %+v", res)
	}
}

func TestRegistryInvoke_WrapsToolError(t *testing.T) {
	t.Parallel()

	cause := errors.New("index offline")
	r := NewRegistry()
	_ = r.Register(registryTestTool{
		spec: querySpec("squad_query"),
		invoke: func(context.Context, Args) (Result, error) {
			return Result{}, cause
		},
	})

	_, err := r.Invoke(context.Background(), "squad_query", Args{"query": "q"})
	if !errors.Is(err, ErrToolExecution) {
		t.Fatalf("expected ErrToolExecution, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) || execErr.Tool != "squad_query" {
		t.Fatalf("expected *ExecutionError for squad_query, got %#v", err)
	}
}

func TestRegistryInvoke_RecoversPanic(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_ = r.Register(registryTestTool{
		spec: querySpec("boom"),
		invoke: func(context.Context, Args) (Result, error) {
			panic("kaboom")
		},
	})

	_, err := r.Invoke(context.Background(), "boom", Args{"query": "q"})
	if !errors.Is(err, ErrToolExecution) || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("expected recovered panic as ErrToolExecution, got %v", err)
	}
}

func TestRegistryInvoke_Timeout(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.SetCallTimeout(20 * time.Millisecond)
	_ = r.Register(registryTestTool{
		spec: querySpec("slow"),
		invoke: func(ctx context.Context, _ Args) (Result, error) {
			<-ctx.Done()
			return Result{}, ctx.Err()
		},
	})

	_, err := r.Invoke(context.Background(), "slow", Args{"query": "q"})
	if !errors.Is(err, ErrToolExecution) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded tool error, got %v", err)
	}
}

func TestRegistryInvoke_OutputTypeMismatch(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_ = r.Register(registryTestTool{
		spec: querySpec("liar"),
		invoke: func(context.Context, Args) (Result, error) {
			return Result{Type: OutputImage, Path: "/tmp/x.png"}, nil
		},
	})

	_, err := r.Invoke(context.Background(), "liar", Args{"query": "q"})
	if !errors.Is(err, ErrToolExecution) {
		t.Fatalf("expected ErrToolExecution on type mismatch, got %v", err)
	}
}

func TestRegistryInvoke_AuditEvents(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		events []security.AuditEvent
	)
	r := NewRegistry()
	r.SetAuditLogger(security.NewAuditLogger(security.AuditLoggerConfig{
		OnEvent: func(e security.AuditEvent) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		},
	}))
	_ = r.Register(registryTestTool{spec: querySpec("echo")})

	if _, err := r.Invoke(context.Background(), "echo", Args{"query": "q"}); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("got %d audit events, want 2", len(events))
	}
	if events[0].Type != security.EventToolCall || events[1].Type != security.EventToolResult {
		t.Errorf("event types = %s, %s", events[0].Type, events[1].Type)
	}
}

type recordingObserver struct {
	mu    sync.Mutex
	names []string
	errs  []error
}

func (o *recordingObserver) ObserveTool(ctx context.Context, name string) (context.Context, func(error)) {
	return ctx, func(err error) {
		o.mu.Lock()
		o.names = append(o.names, name)
		o.errs = append(o.errs, err)
		o.mu.Unlock()
	}
}

func TestRegistryInvoke_Observer(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	r := NewRegistry()
	r.SetObserver(obs)
	_ = r.Register(registryTestTool{spec: querySpec("echo")})

	_, _ = r.Invoke(context.Background(), "echo", Args{"query": "q"})

	if len(obs.names) != 1 || obs.names[0] != "echo" || obs.errs[0] != nil {
		t.Fatalf("observer saw %v / %v", obs.names, obs.errs)
	}
}

func TestTruncateForAudit(t *testing.T) {
	t.Parallel()

	short := "hello"
	if got := truncateForAudit(short); got != short {
		t.Errorf("short string changed: %q", got)
	}

	long := strings.Repeat("é", maxAuditDetailLen)
	got := truncateForAudit(long)
	if !strings.HasSuffix(got, "...(truncated)") {
		t.Errorf("long string not truncated")
	}
	if !strings.HasPrefix(got, "é") || strings.ContainsRune(strings.TrimSuffix(got, "...(truncated)"), '�') {
		t.Errorf("truncation split a rune")
	}
}
