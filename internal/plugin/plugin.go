// Package plugin holds the registry of sweeps a vacuum process can run.
package plugin

import (
	"context"
	"sort"
	"sync"

	"github.com/yairfalse/vacuum/orchestrator"
)

// Sweep is one runnable garbage-collection pass.
// Keep it simple: Name + Run.
type Sweep interface {
	// Name returns the sweep identifier (e.g., "taskdefs", "functions")
	Name() string

	// Run performs one full collect, resolve, decide and delete pass.
	Run(ctx context.Context) (*orchestrator.Result, error)
}

// Registry holds registered sweeps.
var (
	registry = make(map[string]Sweep)
	mu       sync.RWMutex
)

// Register adds a sweep to the registry, replacing any with the same name.
func Register(s Sweep) {
	mu.Lock()
	defer mu.Unlock()
	registry[s.Name()] = s
}

// Get returns a sweep by name.
func Get(name string) (Sweep, bool) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := registry[name]
	return s, ok
}

// All returns all registered sweeps ordered by name.
func All() []Sweep {
	mu.RLock()
	defer mu.RUnlock()
	sweeps := make([]Sweep, 0, len(registry))
	for _, s := range registry {
		sweeps = append(sweeps, s)
	}
	sort.Slice(sweeps, func(i, j int) bool { return sweeps[i].Name() < sweeps[j].Name() })
	return sweeps
}

// Names returns all registered sweep names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear removes all sweeps from the registry. Used for testing.
func Clear() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]Sweep)
}
