package core

import "strings"

// ModuleID identifies a module as "namespace.name", e.g. "provider.anthropic".
type ModuleID string

// Namespace returns the part before the last dot.
func (id ModuleID) Namespace() string {
	s := string(id)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return ""
}

// Name returns the part after the last dot.
func (id ModuleID) Name() string {
	s := string(id)
	return s[strings.LastIndexByte(s, '.')+1:]
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is implemented by every module. Optional lifecycle behavior is
// added by implementing Configurable, Provisioner, Validator, Starter
// or Stopper.
type Module interface {
	ModuleInfo() ModuleInfo
}
