package config

import (
	"slices"
	"strings"
)

// Resolve returns the configured module IDs in load order: stores first so
// their services exist when providers and the gateway provision, then the
// rest sorted by ID.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		sa, sb := strings.HasPrefix(a, "store."), strings.HasPrefix(b, "store.")
		switch {
		case sa && !sb:
			return -1
		case sb && !sa:
			return 1
		}
		return strings.Compare(a, b)
	})
	return ids
}
