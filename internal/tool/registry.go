package tool

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kurisu/squadagent/internal/security"
)

// DefaultCallTimeout bounds a single tool invocation when none is configured.
const DefaultCallTimeout = 60 * time.Second

// Observer is notified around every tool invocation. The returned context is
// passed to the tool, and done is called with the invocation's error.
type Observer interface {
	ObserveTool(ctx context.Context, name string) (context.Context, func(err error))
}

// Registry holds registered tools and runs them with argument validation,
// a per-call timeout, panic recovery and output type checking.
// It is instance-based (not global) for better testability.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]Tool
	specs       map[string]Spec
	timeout     time.Duration
	auditLogger *security.AuditLogger
	observer    Observer
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		specs:   make(map[string]Spec),
		timeout: DefaultCallTimeout,
	}
}

// SetAuditLogger configures audit logging for tool executions.
func (r *Registry) SetAuditLogger(logger *security.AuditLogger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auditLogger = logger
}

// SetObserver configures the invocation observer (metrics, tracing).
func (r *Registry) SetObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = o
}

// SetCallTimeout sets the per-invocation timeout. Zero or negative
// restores DefaultCallTimeout.
func (r *Registry) SetCallTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultCallTimeout
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeout = d
}

// Register adds a tool to the registry after checking its spec.
// It returns ErrDuplicateTool if a tool with the same name is already registered.
func (r *Registry) Register(t Tool) error {
	spec := t.Spec()
	if err := CheckSpec(spec); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, spec.Name)
	}

	r.tools[spec.Name] = t
	r.specs[spec.Name] = spec
	return nil
}

// Get returns the tool with the given name, or ErrToolNotFound.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Specs returns all registered tool specs sorted by name.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		specs = append(specs, s)
	}
	slices.SortFunc(specs, func(a, b Spec) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return specs
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Invoke runs the named tool: lookup → validate → audit → execute under
// timeout → output type check → audit.
// Validation failures return ErrInvalidArgument; anything raised by the tool
// itself (including panics and timeouts) is an *ExecutionError.
func (r *Registry) Invoke(ctx context.Context, name string, args Args) (Result, error) {
	t, err := r.Get(name)
	if err != nil {
		return Result{}, err
	}

	r.mu.RLock()
	spec := r.specs[name]
	timeout := r.timeout
	al := r.auditLogger
	obs := r.observer
	r.mu.RUnlock()

	if err := Validate(spec, args); err != nil {
		return Result{}, err
	}

	if al != nil {
		al.Log(security.AuditEvent{
			Type:     security.EventToolCall,
			ToolName: name,
			Detail:   truncateForAudit(fmt.Sprint(map[string]any(args))),
		})
	}

	done := func(error) {}
	if obs != nil {
		ctx, done = obs.ObserveTool(ctx, name)
	}

	res, err := r.run(ctx, t, name, args, timeout)
	if err == nil && res.Type == "" {
		res.Type = spec.OutputType
	}
	if err == nil && res.Type != spec.OutputType {
		err = &ExecutionError{Tool: name, Err: fmt.Errorf("returned %s output, declared %s", res.Type, spec.OutputType)}
	}
	done(err)

	if al != nil {
		detail := truncateForAudit(res.String())
		if err != nil {
			detail = "error: " + err.Error()
		}
		al.Log(security.AuditEvent{
			Type:     security.EventToolResult,
			ToolName: name,
			Detail:   detail,
			Metadata: map[string]string{
				"is_error": fmt.Sprintf("%v", err != nil),
			},
		})
	}

	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (r *Registry) run(ctx context.Context, t Tool, name string, args Args, timeout time.Duration) (res Result, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = &ExecutionError{Tool: name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	res, err = t.Invoke(ctx, args)
	if err != nil {
		return Result{}, &ExecutionError{Tool: name, Err: err}
	}
	return res, nil
}

// maxAuditDetailLen is the maximum length of audit detail strings.
const maxAuditDetailLen = 4096

// truncateForAudit truncates a string to maxAuditDetailLen, appending
// a truncation indicator if the string was shortened.
// It walks back to a valid UTF-8 rune boundary.
func truncateForAudit(s string) string {
	if len(s) <= maxAuditDetailLen {
		return s
	}
	i := maxAuditDetailLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "...(truncated)"
}
