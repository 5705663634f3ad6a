package sandbox

import (
	"maps"
	"slices"
	"sync"

	"go.starlark.net/starlark"
)

// Environment is the variable namespace of one agent run. Values assigned by
// one step are visible to the next. It is owned by a single run; the mutex
// only guards against a misbehaving caller executing two steps at once.
type Environment struct {
	mu   sync.Mutex
	vars starlark.StringDict
}

// NewEnvironment returns an empty environment.
func NewEnvironment() *Environment {
	return &Environment{vars: make(starlark.StringDict)}
}

// Len returns the number of variables defined.
func (e *Environment) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.vars)
}

// Names returns the variable names in sorted order.
func (e *Environment) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Sorted(maps.Keys(e.vars))
}

// Lookup returns the value of name converted to a plain Go value.
func (e *Environment) Lookup(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.vars[name]
	if !ok {
		return nil, false
	}
	return toGo(v), true
}

// Reset removes every variable.
func (e *Environment) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.vars)
}
