package core

import "sync"

// serviceRegistry is shared by an AppContext and every context derived
// from it, so modules can find what earlier modules provisioned.
type serviceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
}

// RegisterService publishes svc under name, replacing any previous value.
func (ctx *AppContext) RegisterService(name string, svc any) {
	ctx.services.mu.Lock()
	defer ctx.services.mu.Unlock()
	ctx.services.services[name] = svc
}

// GetService returns the service registered under name.
func (ctx *AppContext) GetService(name string) (any, bool) {
	ctx.services.mu.RLock()
	defer ctx.services.mu.RUnlock()
	svc, ok := ctx.services.services[name]
	return svc, ok
}

// Service returns the service registered under name if it has type T.
func Service[T any](ctx *AppContext, name string) (T, bool) {
	svc, ok := ctx.GetService(name)
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := svc.(T)
	return v, ok
}
