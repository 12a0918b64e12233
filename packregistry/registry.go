package packregistry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/liamcoop/rulepack/rules"
)

// Registry maps dotted class paths to already-structured rule packs.
// It implements rules.ClassSource and is safe for concurrent use.
type Registry struct {
	packs map[string]*rules.RulePack
	now   func() time.Time
	mu    sync.RWMutex
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		packs: make(map[string]*rules.RulePack),
		now:   time.Now,
	}
}

// Register builds a pack from entries and stores it under path, replacing any previous pack
func (r *Registry) Register(path string, entries []rules.RuleEntry) (*rules.RulePack, error) {
	if err := ValidatePath(path); err != nil {
		return nil, fmt.Errorf("invalid class path %q: %w", path, err)
	}

	pack, err := rules.NewRulePack(path, rules.LoadTypeClass, r.now(), entries)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.packs[path] = pack
	r.mu.Unlock()

	return pack, nil
}

// RegisterPack stores an existing pack under path.
// The pack keeps its own identifier and load type.
func (r *Registry) RegisterPack(path string, pack *rules.RulePack) error {
	if err := ValidatePath(path); err != nil {
		return fmt.Errorf("invalid class path %q: %w", path, err)
	}
	if pack == nil {
		return fmt.Errorf("class %s: pack cannot be nil", path)
	}

	r.mu.Lock()
	r.packs[path] = pack
	r.mu.Unlock()

	return nil
}

// Lookup implements rules.ClassSource
func (r *Registry) Lookup(path string) (*rules.RulePack, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pack, ok := r.packs[path]
	return pack, ok
}

// List returns all registered class paths, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	paths := make([]string, 0, len(r.packs))
	for path := range r.packs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Delete removes the pack registered at path
func (r *Registry) Delete(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.packs[path]; !exists {
		return fmt.Errorf("class %s not found", path)
	}

	delete(r.packs, path)
	return nil
}

// Len returns the number of registered classes
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.packs)
}
