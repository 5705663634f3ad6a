package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kurisu/squadagent/internal/tool"
	"github.com/kurisu/squadagent/internal/tool/tooltest"
)

func newExecutor(t *testing.T, tools ...tool.Tool) *Executor {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		if err := reg.Register(tl); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	return New(reg, Config{})
}

func TestExecute_FinalAnswerArithmetic(t *testing.T) {
	t.Parallel()

	x := newExecutor(t)
	res := x.Execute(context.Background(), "result = 5 + 3 + 1294.678\nfinal_answer(result)", NewEnvironment(), nil)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Final == nil {
		t.Fatal("expected a final answer")
	}
	got, ok := res.Final.Value.(float64)
	if !ok || math.Abs(got-1302.678) > 1e-9 {
		t.Fatalf("final answer = %#v, want 1302.678", res.Final.Value)
	}
	if res.Final.Type != tool.OutputText {
		t.Errorf("final type = %s, want text", res.Final.Type)
	}
}

func TestExecute_FinalAnswerStopsExecution(t *testing.T) {
	t.Parallel()

	res := newExecutor(t).Execute(context.Background(), "final_answer('done')\nprint('unreachable')", NewEnvironment(), nil)
	if res.Err != nil || res.Final == nil || res.Final.Value != "done" {
		t.Fatalf("result = %+v", res)
	}
	if res.Stdout != "" {
		t.Errorf("code after final_answer ran: %q", res.Stdout)
	}
}

func TestExecute_StdoutAndStatePersistence(t *testing.T) {
	t.Parallel()

	x := newExecutor(t)
	env := NewEnvironment()

	res := x.Execute(context.Background(), "x = 2\nprint('x is', x)", env, nil)
	if res.Err != nil {
		t.Fatalf("step 1: %v", res.Err)
	}
	if res.Stdout != "x is 2\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if res.HasReturn {
		t.Errorf("print call should not produce a return value, got %v", res.ReturnValue)
	}

	res = x.Execute(context.Background(), "x = x + 1\nx", env, nil)
	if res.Err != nil {
		t.Fatalf("step 2: %v", res.Err)
	}
	if !res.HasReturn || res.ReturnValue != int64(3) || res.ReturnText != "3" {
		t.Errorf("return = %#v (%q)", res.ReturnValue, res.ReturnText)
	}
	if v, _ := env.Lookup("x"); v != int64(3) {
		t.Errorf("env x = %#v", v)
	}
}

func TestExecute_AllowedImports(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
		want any
	}{
		{"import", "import math\nmath.sqrt(16.0)", 4.0},
		{"import as", "import math as m\nm.sqrt(9.0)", 3.0},
		{"from import alias", "from math import sqrt as s, pi\ns(pi * pi) > 3.14", true},
		{"json", "import json\njson.encode({'a': 1})", `{"a":1}`},
		{"random", "import random\nr = random.randint(1, 1)\nr", int64(1)},
		{"module named like member", "import time\ntype(time.now())", "time.time"},
	}

	x := newExecutor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := x.Execute(context.Background(), tt.code, NewEnvironment(), DefaultAuthorizedImports)
			if res.Err != nil {
				t.Fatalf("unexpected error: %v", res.Err)
			}
			if res.ReturnValue != tt.want {
				t.Errorf("return = %#v, want %#v", res.ReturnValue, tt.want)
			}
		})
	}
}

func TestExecute_ImportTextInsideStrings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
		want any
	}{
		{"triple double quotes", "s = \"\"\"\nimport os\nfrom subprocess import run\n\"\"\"\ns.strip()", "import os\nfrom subprocess import run"},
		{"triple single quotes", "s = '''notes:\n  import os\n'''\nlen(s.splitlines())", int64(2)},
		{"quote inside literal", "s = \"'''\"\nimport math\nmath.floor(1.5)", int64(1)},
	}

	x := newExecutor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := x.Execute(context.Background(), tt.code, NewEnvironment(), DefaultAuthorizedImports)
			if res.Err != nil {
				t.Fatalf("unexpected error: %v", res.Err)
			}
			if res.ReturnValue != tt.want {
				t.Errorf("return = %#v, want %#v", res.ReturnValue, tt.want)
			}
		})
	}
}

func TestExecute_RandintFullRange(t *testing.T) {
	t.Parallel()

	x := newExecutor(t)
	for _, code := range []string{
		"import random\nrandom.randint(-9223372036854775808, 9223372036854775807)",
		"import random\nrandom.randint(-9223372036854775808, 0)",
		"import random\nrandom.randint(-1, 9223372036854775807)",
	} {
		res := x.Execute(context.Background(), code, NewEnvironment(), DefaultAuthorizedImports)
		if res.Err != nil {
			t.Errorf("%q: unexpected error: %v", code, res.Err)
			continue
		}
		if _, ok := res.ReturnValue.(int64); !ok {
			t.Errorf("%q: return = %#v", code, res.ReturnValue)
		}
	}
}

func TestExecute_ImportsPersistAcrossSteps(t *testing.T) {
	t.Parallel()

	x := newExecutor(t)
	env := NewEnvironment()
	if res := x.Execute(context.Background(), "import math", env, DefaultAuthorizedImports); res.Err != nil {
		t.Fatal(res.Err)
	}
	res := x.Execute(context.Background(), "math.floor(2.5)", env, DefaultAuthorizedImports)
	if res.Err != nil {
		t.Fatalf("module not visible in next step: %v", res.Err)
	}
}

func TestExecute_ImportNotAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		code    string
		allowed []string
	}{
		{"unknown module", "import os\nos.listdir('/')", DefaultAuthorizedImports},
		{"known but not authorized", "import random", []string{"math"}},
		{"from import", "from subprocess import run", DefaultAuthorizedImports},
		{"raw load", "load('os', 'path')", DefaultAuthorizedImports},
		{"inside function", "def f():\n    import os\n", DefaultAuthorizedImports},
	}

	x := newExecutor(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := x.Execute(context.Background(), tt.code, NewEnvironment(), tt.allowed)
			if !errors.Is(res.Err, ErrImportNotAllowed) {
				t.Fatalf("err = %v, want ErrImportNotAllowed", res.Err)
			}
		})
	}
}

func TestExecute_DisallowedImportRunsNothing(t *testing.T) {
	t.Parallel()

	env := NewEnvironment()
	res := newExecutor(t).Execute(context.Background(), "y = 1\nimport os", env, DefaultAuthorizedImports)
	if !errors.Is(res.Err, ErrImportNotAllowed) {
		t.Fatalf("err = %v", res.Err)
	}
	if env.Len() != 0 {
		t.Errorf("environment changed: %v", env.Names())
	}
}

func TestExecute_ToolCalls(t *testing.T) {
	t.Parallel()

	retriever := tooltest.TextTool("squad_retriever", func(q string) string {
		return "===Document===\nQuestion: What sits on top of the Main Building?\nAnswer: a golden statue of the Virgin Mary\nScore: 1.2 (" + q + ")"
	})
	x := newExecutor(t, retriever)
	env := NewEnvironment()

	res := x.Execute(context.Background(), "docs = squad_retriever('Notre Dame')\nprint(docs)", env, nil)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if !strings.Contains(res.Stdout, "golden statue") {
		t.Errorf("stdout missing tool output: %q", res.Stdout)
	}
	if len(res.Invocations) != 1 || res.Invocations[0].Tool != "squad_retriever" || res.Invocations[0].Args["query"] != "Notre Dame" {
		t.Errorf("invocations = %+v", res.Invocations)
	}
	if got := retriever.Calls(); len(got) != 1 {
		t.Errorf("tool called %d times", len(got))
	}
	if _, ok := env.Lookup("squad_retriever"); ok {
		t.Error("tool binding leaked into the environment")
	}
	if _, ok := env.Lookup("docs"); !ok {
		t.Error("docs not kept in the environment")
	}
}

func TestExecute_ToolErrors(t *testing.T) {
	t.Parallel()

	failing := &tooltest.MockTool{
		ToolSpec: tool.Spec{
			Name:       "squad_query",
			Inputs:     []tool.Input{{Name: "query", Type: tool.InputString}},
			OutputType: tool.OutputText,
		},
		InvokeFunc: func(context.Context, tool.Args) (tool.Result, error) {
			return tool.Result{}, errors.New("index unavailable")
		},
	}
	x := newExecutor(t, failing)

	tests := []struct {
		name string
		code string
		want error
	}{
		{"tool raised", "squad_query('q')", tool.ErrToolExecution},
		{"wrong type", "squad_query(42)", tool.ErrInvalidArgument},
		{"too many args", "squad_query('a', 'b')", tool.ErrInvalidArgument},
		{"unknown kwarg", "squad_query(query='a', k=3)", tool.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := x.Execute(context.Background(), tt.code, NewEnvironment(), nil)
			if !errors.Is(res.Err, tt.want) {
				t.Fatalf("err = %v, want %v", res.Err, tt.want)
			}
			if len(res.Invocations) != 1 || res.Invocations[0].Error == "" {
				t.Errorf("failed call not recorded: %+v", res.Invocations)
			}
		})
	}
}

func TestExecute_ShadowingRejected(t *testing.T) {
	t.Parallel()

	x := newExecutor(t, tooltest.TextTool("squad_retriever", func(string) string { return "" }))

	for _, code := range []string{
		"squad_retriever = 1",
		"a, final_answer = 1, 2",
		"def final_answer(x):\n    return x",
		"for squad_retriever in [1]:\n    pass",
		"n = 0\nwhile n < 3:\n    n += 1\n    final_answer = n",
		"while True:\n    if [squad_retriever for squad_retriever in [1]]:\n        break",
	} {
		env := NewEnvironment()
		res := x.Execute(context.Background(), code, env, nil)
		if !errors.Is(res.Err, ErrShadowedName) {
			t.Errorf("%q: err = %v, want ErrShadowedName", code, res.Err)
		}
		if env.Len() != 0 {
			t.Errorf("%q: environment changed", code)
		}
	}
}

func TestExecute_RuntimeErrorKeepsEarlierAssignments(t *testing.T) {
	t.Parallel()

	env := NewEnvironment()
	res := newExecutor(t).Execute(context.Background(), "a = 1\nb = 1 // 0\nc = 2", env, nil)
	if !errors.Is(res.Err, ErrRuntimeScript) {
		t.Fatalf("err = %v, want ErrRuntimeScript", res.Err)
	}
	if _, ok := env.Lookup("a"); !ok {
		t.Error("assignment before the failure was lost")
	}
	if _, ok := env.Lookup("c"); ok {
		t.Error("assignment after the failure was kept")
	}
}

func TestExecute_SyntaxError(t *testing.T) {
	t.Parallel()

	res := newExecutor(t).Execute(context.Background(), "def (:", NewEnvironment(), nil)
	if !errors.Is(res.Err, ErrRuntimeScript) {
		t.Fatalf("err = %v, want ErrRuntimeScript", res.Err)
	}
}

func TestExecute_WhileLoop(t *testing.T) {
	t.Parallel()

	env := NewEnvironment()
	code := "total = 0\ni = 0\nwhile i < 5:\n    i += 1\n    if i == 2:\n        continue\n    total += i\ntotal"
	res := newExecutor(t).Execute(context.Background(), code, env, nil)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if !res.HasReturn || res.ReturnValue != int64(13) {
		t.Errorf("return = %#v, want 13", res.ReturnValue)
	}
	if v, _ := env.Lookup("i"); v != int64(5) {
		t.Errorf("i = %#v", v)
	}
}

func TestExecute_WhileInsideFunction(t *testing.T) {
	t.Parallel()

	code := "def countdown(n):\n    out = []\n    while n > 0:\n        out.append(n)\n        n -= 1\n    return out\nfinal_answer(str(countdown(3)))"
	res := newExecutor(t).Execute(context.Background(), code, NewEnvironment(), nil)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Final == nil || res.Final.Value != "[3, 2, 1]" {
		t.Errorf("final = %+v", res.Final)
	}
}

func TestExecute_StepBudget(t *testing.T) {
	t.Parallel()

	x := New(nil, Config{MaxExecutionSteps: 1000})
	res := x.Execute(context.Background(), "while True:\n    pass", NewEnvironment(), nil)
	if !errors.Is(res.Err, ErrRuntimeScript) {
		t.Fatalf("err = %v, want ErrRuntimeScript", res.Err)
	}
	if !strings.Contains(res.Err.Error(), "too many steps") {
		t.Errorf("err = %v, want step budget exhaustion", res.Err)
	}
	if strings.Contains(res.Err.Error(), "internal panic") {
		t.Errorf("err = %v, loop did not run", res.Err)
	}
}

func TestExecute_StepTimeout(t *testing.T) {
	t.Parallel()

	x := New(nil, Config{MaxExecutionSteps: math.MaxUint64, StepTimeout: 50 * time.Millisecond})
	start := time.Now()
	res := x.Execute(context.Background(), "while True:\n    pass", NewEnvironment(), nil)
	if !errors.Is(res.Err, ErrRuntimeScript) || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want timed out script error", res.Err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout not enforced promptly")
	}
}

func TestExecState_PanickedKeepsOutput(t *testing.T) {
	t.Parallel()

	state := &execState{}
	state.print("before the crash")
	state.invocations = append(state.invocations, Invocation{Tool: "squad_retriever", Result: "doc"})

	res := state.panicked("boom")
	if !errors.Is(res.Err, ErrRuntimeScript) || !strings.Contains(res.Err.Error(), "boom") {
		t.Fatalf("err = %v", res.Err)
	}
	if res.Stdout != "before the crash\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if len(res.Invocations) != 1 || res.Invocations[0].Tool != "squad_retriever" {
		t.Errorf("invocations = %+v", res.Invocations)
	}
}

func TestExecute_ImageResultAsFinalAnswer(t *testing.T) {
	t.Parallel()

	painter := &tooltest.MockTool{
		ToolSpec: tool.Spec{
			Name:       "image_generator",
			Inputs:     []tool.Input{{Name: "prompt", Type: tool.InputString}},
			OutputType: tool.OutputImage,
		},
		InvokeFunc: func(context.Context, tool.Args) (tool.Result, error) {
			return tool.Result{Type: tool.OutputImage, Path: "/data/images/statue.png", MIMEType: "image/png"}, nil
		},
	}
	res := newExecutor(t, painter).Execute(context.Background(),
		"img = image_generator(prompt='golden statue')\nprint(img.path)\nfinal_answer(img)", NewEnvironment(), nil)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Final == nil || res.Final.Type != tool.OutputImage || res.Final.Value != "/data/images/statue.png" {
		t.Fatalf("final = %+v", res.Final)
	}
	if res.Stdout != "/data/images/statue.png\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

func TestExecute_SessionsAreIsolated(t *testing.T) {
	t.Parallel()

	x := newExecutor(t)
	envs := []*Environment{NewEnvironment(), NewEnvironment()}

	var wg sync.WaitGroup
	for i, env := range envs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 20 {
				x.Execute(context.Background(), fmt.Sprintf("secret_%d = %d", i, j), env, nil)
			}
		}()
	}
	wg.Wait()

	if _, ok := envs[0].Lookup("secret_1"); ok {
		t.Error("session 1 variable leaked into session 0")
	}
	if _, ok := envs[1].Lookup("secret_0"); ok {
		t.Error("session 0 variable leaked into session 1")
	}
	if v, _ := envs[1].Lookup("secret_1"); v != int64(19) {
		t.Errorf("secret_1 = %#v", v)
	}
}
