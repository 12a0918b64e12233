package rules

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrPackNotFound is returned by a PackStore when no pack has the requested name
var ErrPackNotFound = errors.New("rule pack not found")

// PackStore is a named registry of raw rule-pack content.
// The resolver only reads from it.
type PackStore interface {
	// Get returns the raw content stored under name, or ErrPackNotFound
	Get(ctx context.Context, name string) (string, error)

	// List returns all stored names in lexicographic order
	List(ctx context.Context) ([]string, error)
}

// InMemoryPackStore implements PackStore using an in-memory map.
// Safe for concurrent use.
type InMemoryPackStore struct {
	packs map[string]string
	mu    sync.RWMutex
}

// NewInMemoryPackStore creates a store seeded with a copy of named
func NewInMemoryPackStore(named map[string]string) *InMemoryPackStore {
	s := &InMemoryPackStore{
		packs: make(map[string]string, len(named)),
	}
	for name, content := range named {
		s.packs[name] = content
	}
	return s
}

// Add stores a new pack; it fails if the name is taken
func (s *InMemoryPackStore) Add(name, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.packs[name]; exists {
		return fmt.Errorf("rule pack %s already exists", name)
	}
	s.packs[name] = content
	return nil
}

// Put stores content under name, replacing any previous value
func (s *InMemoryPackStore) Put(name, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packs[name] = content
}

// Get retrieves a pack by name
func (s *InMemoryPackStore) Get(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	content, exists := s.packs[name]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrPackNotFound, name)
	}
	return content, nil
}

// List returns all pack names, sorted
func (s *InMemoryPackStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.packs))
	for name := range s.packs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a pack from the store
func (s *InMemoryPackStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.packs[name]; !exists {
		return fmt.Errorf("%w: %s", ErrPackNotFound, name)
	}

	delete(s.packs, name)
	return nil
}
