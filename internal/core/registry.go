package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// catalog holds the modules compiled into the binary. Modules add
// themselves from init(); the config layer resolves IDs against it.
type catalog struct {
	mu   sync.RWMutex
	byID map[ModuleID]ModuleInfo
}

var compiled = &catalog{byID: make(map[ModuleID]ModuleInfo)}

// RegisterModule adds a module to the catalog. It panics on an ID that is
// not "namespace.name", on a missing constructor or on a duplicate, since
// these are programming errors caught at startup.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID.Namespace() == "" || info.ID.Name() == "":
		panic(fmt.Sprintf("core: module ID %q is not namespace.name", info.ID))
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	compiled.mu.Lock()
	defer compiled.mu.Unlock()
	if _, dup := compiled.byID[info.ID]; dup {
		panic(fmt.Sprintf("core: module %s registered twice", info.ID))
	}
	compiled.byID[info.ID] = info
}

// LookupModule returns the registered module with the given ID.
func LookupModule(id string) (ModuleInfo, bool) {
	compiled.mu.RLock()
	defer compiled.mu.RUnlock()
	info, ok := compiled.byID[ModuleID(id)]
	return info, ok
}

// Modules lists every registered module ordered by ID.
func Modules() []ModuleInfo {
	return compiled.list(func(ModuleID) bool { return true })
}

// ModulesIn lists the modules of one namespace, such as "provider",
// ordered by ID.
func ModulesIn(namespace string) []ModuleInfo {
	return compiled.list(func(id ModuleID) bool { return id.Namespace() == namespace })
}

func (c *catalog) list(keep func(ModuleID) bool) []ModuleInfo {
	c.mu.RLock()
	out := make([]ModuleInfo, 0, len(c.byID))
	for id, info := range c.byID {
		if keep(id) {
			out = append(out, info)
		}
	}
	c.mu.RUnlock()

	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// resetRegistry empties the catalog between tests.
func resetRegistry() {
	compiled.mu.Lock()
	defer compiled.mu.Unlock()
	clear(compiled.byID)
}
