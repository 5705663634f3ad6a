// Package sandbox executes the code an agent writes. Code runs in a Starlark
// interpreter (a Python dialect with no filesystem, network or OS access)
// whose only capabilities are the registered tools, final_answer, print and
// an explicit list of importable modules.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/kurisu/squadagent/internal/tool"
)

// FinalAnswerName is the function scripts call to end the run.
const FinalAnswerName = "final_answer"

const (
	returnName = "__return_value__"

	// DefaultMaxExecutionSteps bounds the Starlark computation of one step.
	DefaultMaxExecutionSteps = 10_000_000

	// DefaultStepTimeout bounds the wall clock time of one step.
	DefaultStepTimeout = 2 * time.Minute

	maxStdout = 64 << 10
)

// Invoker runs tools by name. *tool.Registry satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, name string, args tool.Args) (tool.Result, error)
	Specs() []tool.Spec
}

// Config holds executor limits.
type Config struct {
	MaxExecutionSteps uint64
	StepTimeout       time.Duration
	Logger            *slog.Logger
}

// Invocation records one tool call made by a script.
type Invocation struct {
	Tool   string    `json:"tool"`
	Args   tool.Args `json:"args"`
	Result string    `json:"result,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Result is the outcome of executing one code block.
type Result struct {
	Stdout string
	// ReturnValue is the value of a trailing expression, converted to a plain
	// Go value. HasReturn distinguishes a None result from no expression.
	ReturnValue any
	ReturnText  string
	HasReturn   bool
	Final       *tool.FinalAnswer
	Invocations []Invocation
	// Err is nil on success. It wraps ErrImportNotAllowed, ErrShadowedName,
	// ErrRuntimeScript, tool.ErrInvalidArgument or tool.ErrToolExecution.
	Err error
}

// Executor runs code blocks against an Environment.
// It is safe for concurrent use with distinct environments.
type Executor struct {
	tools  Invoker
	cfg    Config
	logger *slog.Logger
}

// New creates an executor bound to tools. A nil tools means no tools.
func New(tools Invoker, cfg Config) *Executor {
	if cfg.MaxExecutionSteps == 0 {
		cfg.MaxExecutionSteps = DefaultMaxExecutionSteps
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{tools: tools, cfg: cfg, logger: logger}
}

var fileOptions = &syntax.FileOptions{
	Set:               true,
	While:             true,
	TopLevelControl:   true,
	GlobalReassign:    true,
	Recursion:         true,
	LoadBindsGlobally: true,
}

// execState is the per-execution state reachable from builtins.
type execState struct {
	ctx         context.Context
	stdout      strings.Builder
	truncated   bool
	invocations []Invocation
	toolErr     error
	importErr   error
	final       *tool.FinalAnswer
}

const stateKey = "squadagent.state"

// Execute runs code against env. Only modules in allowedImports may be
// imported. Errors never escape as panics; they are reported in Result.Err.
// Variables assigned before a failure are kept in env, as an interactive
// interpreter would; env is updated only once execution has stopped.
func (x *Executor) Execute(ctx context.Context, code string, env *Environment, allowedImports []string) (res Result) {
	start := time.Now()
	state := &execState{}
	defer func() {
		if p := recover(); p != nil {
			res = state.panicked(p)
		}
		x.logger.Debug("code executed",
			"duration", time.Since(start),
			"tool_calls", len(res.Invocations),
			"final", res.Final != nil,
			"error", res.Err)
	}()

	var specs []tool.Spec
	if x.tools != nil {
		specs = x.tools.Specs()
	}
	reserved := reservedNames(specs)

	src, err := rewriteImports(code, allowedImports)
	if err != nil {
		return Result{Err: err}
	}

	f, err := fileOptions.Parse("step.star", src, 0)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %s", ErrRuntimeScript, err)}
	}
	if err := checkShadowing(f, reserved); err != nil {
		return Result{Err: err}
	}
	captureReturn(f)

	ctx, cancel := context.WithTimeout(ctx, x.cfg.StepTimeout)
	defer cancel()

	state.ctx = ctx
	thread := &starlark.Thread{
		Name: "step",
		Print: func(_ *starlark.Thread, msg string) {
			state.print(msg)
		},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			if err := checkModule(module, allowedImports); err != nil {
				state.importErr = err
				return nil, err
			}
			m := modules[module]
			out := maps.Clone(m.Members)
			out[moduleKey] = m
			return out, nil
		},
	}
	thread.SetLocal(stateKey, state)
	thread.SetMaxExecutionSteps(x.cfg.MaxExecutionSteps)
	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	env.mu.Lock()
	defer env.mu.Unlock()

	globals := maps.Clone(env.vars)
	if globals == nil {
		globals = make(starlark.StringDict)
	}
	for _, s := range specs {
		globals[s.Name] = x.toolBuiltin(s)
	}
	globals[FinalAnswerName] = starlark.NewBuiltin(FinalAnswerName, finalAnswer)

	execErr := starlark.ExecREPLChunk(f, thread, globals)

	ret, hasRet := globals[returnName]
	for _, name := range append(reserved, returnName) {
		delete(globals, name)
	}
	env.vars = globals

	res = Result{
		Stdout:      state.stdout.String(),
		Invocations: state.invocations,
		Final:       state.final,
	}
	if hasRet && ret != starlark.None {
		res.HasReturn = true
		res.ReturnValue = toGo(ret)
		res.ReturnText = display(ret)
	}

	switch {
	case state.final != nil:
		// final_answer aborts execution on purpose.
	case state.toolErr != nil:
		res.Err = state.toolErr
	case state.importErr != nil:
		res.Err = state.importErr
	case execErr != nil:
		res.Err = classify(ctx, execErr)
	}
	return res
}

func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: execution interrupted: %w", ErrRuntimeScript, ctxErr)
	}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return fmt.Errorf("%w: %s", ErrRuntimeScript, evalErr.Msg)
	}
	return fmt.Errorf("%w: %s", ErrRuntimeScript, err)
}

// panicked reports an interpreter panic, keeping what the step printed and
// called before it.
func (s *execState) panicked(p any) Result {
	return Result{
		Stdout:      s.stdout.String(),
		Invocations: s.invocations,
		Err:         fmt.Errorf("%w: internal panic: %v", ErrRuntimeScript, p),
	}
}

func (s *execState) print(msg string) {
	if s.truncated {
		return
	}
	if s.stdout.Len()+len(msg) > maxStdout {
		s.stdout.WriteString("...(output truncated)\n")
		s.truncated = true
		return
	}
	s.stdout.WriteString(msg)
	s.stdout.WriteByte('\n')
}

func reservedNames(specs []tool.Spec) []string {
	names := make([]string, 0, len(specs)+1)
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return append(names, FinalAnswerName)
}

// checkShadowing rejects code that binds a reserved name anywhere.
func checkShadowing(f *syntax.File, reserved []string) error {
	c := shadowChecker{reserved: reserved}
	c.stmts(f.Stmts)
	if c.found != "" {
		return fmt.Errorf("%w: %s is a reserved function and cannot be assigned", ErrShadowedName, c.found)
	}
	return nil
}

// shadowChecker walks statements itself: syntax.Walk in the pinned
// starlark release panics on while loops.
type shadowChecker struct {
	reserved []string
	found    string
}

func (c *shadowChecker) bind(e syntax.Expr) {
	for _, id := range boundIdents(e) {
		if c.found == "" && slices.Contains(c.reserved, id.Name) {
			c.found = id.Name
		}
	}
}

func (c *shadowChecker) stmts(list []syntax.Stmt) {
	for _, st := range list {
		if c.found != "" {
			return
		}
		c.stmt(st)
	}
}

func (c *shadowChecker) stmt(st syntax.Stmt) {
	switch st := st.(type) {
	case *syntax.AssignStmt:
		c.bind(st.LHS)
		c.expr(st.LHS)
		c.expr(st.RHS)
	case *syntax.DefStmt:
		c.bind(st.Name)
		for _, p := range st.Params {
			c.expr(p)
		}
		c.stmts(st.Body)
	case *syntax.ForStmt:
		c.bind(st.Vars)
		c.expr(st.X)
		c.stmts(st.Body)
	case *syntax.WhileStmt:
		c.expr(st.Cond)
		c.stmts(st.Body)
	case *syntax.IfStmt:
		c.expr(st.Cond)
		c.stmts(st.True)
		c.stmts(st.False)
	case *syntax.ExprStmt:
		c.expr(st.X)
	case *syntax.ReturnStmt:
		c.expr(st.Result)
	case *syntax.LoadStmt:
		for _, id := range st.To {
			c.bind(id)
		}
	}
}

// expr finds comprehension variables. Expressions never contain
// statements, so syntax.Walk is safe here.
func (c *shadowChecker) expr(e syntax.Expr) {
	if e == nil || c.found != "" {
		return
	}
	syntax.Walk(e, func(n syntax.Node) bool {
		if comp, ok := n.(*syntax.Comprehension); ok {
			for _, cl := range comp.Clauses {
				if fc, ok := cl.(*syntax.ForClause); ok {
					c.bind(fc.Vars)
				}
			}
		}
		return c.found == ""
	})
}

func boundIdents(e syntax.Expr) []*syntax.Ident {
	switch e := e.(type) {
	case *syntax.Ident:
		return []*syntax.Ident{e}
	case *syntax.ParenExpr:
		return boundIdents(e.X)
	case *syntax.TupleExpr:
		var out []*syntax.Ident
		for _, x := range e.List {
			out = append(out, boundIdents(x)...)
		}
		return out
	case *syntax.ListExpr:
		var out []*syntax.Ident
		for _, x := range e.List {
			out = append(out, boundIdents(x)...)
		}
		return out
	}
	return nil
}

// captureReturn rewrites a trailing expression statement into an
// assignment so its value can be read back after execution.
func captureReturn(f *syntax.File) {
	if len(f.Stmts) == 0 {
		return
	}
	last, ok := f.Stmts[len(f.Stmts)-1].(*syntax.ExprStmt)
	if !ok {
		return
	}
	pos, _ := last.X.Span()
	f.Stmts[len(f.Stmts)-1] = &syntax.AssignStmt{
		OpPos: pos,
		Op:    syntax.EQ,
		LHS:   &syntax.Ident{NamePos: pos, Name: returnName},
		RHS:   last.X,
	}
}

func (x *Executor) toolBuiltin(spec tool.Spec) *starlark.Builtin {
	return starlark.NewBuiltin(spec.Name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		state := thread.Local(stateKey).(*execState)

		callArgs, err := bindArgs(spec, args, kwargs)
		if err == nil {
			var r tool.Result
			r, err = x.tools.Invoke(state.ctx, spec.Name, callArgs)
			if err == nil {
				state.invocations = append(state.invocations, Invocation{Tool: spec.Name, Args: callArgs, Result: r.String()})
				return fromResult(r), nil
			}
		}

		state.invocations = append(state.invocations, Invocation{Tool: spec.Name, Args: callArgs, Error: err.Error()})
		state.toolErr = err
		return nil, err
	})
}

// bindArgs maps positional arguments onto spec inputs in declaration order
// and merges keyword arguments.
func bindArgs(spec tool.Spec, args starlark.Tuple, kwargs []starlark.Tuple) (tool.Args, error) {
	if len(args) > len(spec.Inputs) {
		return nil, fmt.Errorf("%w: %s takes at most %d positional arguments, got %d",
			tool.ErrInvalidArgument, spec.Name, len(spec.Inputs), len(args))
	}
	out := make(tool.Args, len(args)+len(kwargs))
	for i, v := range args {
		out[spec.Inputs[i].Name] = toGo(v)
	}
	for _, kv := range kwargs {
		name := string(kv[0].(starlark.String))
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: %s got multiple values for argument %q", tool.ErrInvalidArgument, spec.Name, name)
		}
		out[name] = toGo(kv[1])
	}
	return out, nil
}

func finalAnswer(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "answer", &v); err != nil {
		return nil, err
	}

	answer := &tool.FinalAnswer{Type: tool.OutputText, Value: toGo(v)}
	if fv, ok := v.(fileValue); ok {
		answer = &tool.FinalAnswer{Type: fv.typ, Value: fv.path}
	}
	thread.Local(stateKey).(*execState).final = answer
	return nil, errFinalAnswer
}
