package packregistry

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/liamcoop/rulepack/rules"
)

// File is the on-disk layout of a class registry:
//
//	[[pack]]
//	path = "games.COC7"
//
//	[[pack.rule]]
//	id = "sanity"
//	pattern = "state.sanity < 30"
//	metadata = { priority = "10" }
type File struct {
	Packs []PackDefinition `toml:"pack"`
}

// PackDefinition declares one class
type PackDefinition struct {
	Path  string           `toml:"path"`
	Rules []RuleDefinition `toml:"rule"`
}

// RuleDefinition declares one rule of a class
type RuleDefinition struct {
	ID       string            `toml:"id"`
	Pattern  string            `toml:"pattern"`
	Metadata map[string]string `toml:"metadata"`
}

// LoadTOML decodes a registry file from r and registers every pack it declares.
// Nothing is registered if any pack is invalid.
func (r *Registry) LoadTOML(in io.Reader) error {
	var file File
	dec := toml.NewDecoder(in)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return fmt.Errorf("failed to decode class registry: %w", err)
	}

	packs := make(map[string]*rules.RulePack, len(file.Packs))
	order := make([]string, 0, len(file.Packs))
	for i, def := range file.Packs {
		if err := ValidatePath(def.Path); err != nil {
			return fmt.Errorf("pack %d: invalid class path %q: %w", i+1, def.Path, err)
		}
		if _, dup := packs[def.Path]; dup {
			return fmt.Errorf("pack %d: class %s declared more than once", i+1, def.Path)
		}

		entries := make([]rules.RuleEntry, len(def.Rules))
		for j, rule := range def.Rules {
			entries[j] = rules.RuleEntry{ID: rule.ID, Pattern: rule.Pattern, Metadata: rule.Metadata}
		}

		pack, err := rules.NewRulePack(def.Path, rules.LoadTypeClass, r.now(), entries)
		if err != nil {
			return fmt.Errorf("pack %d: %w", i+1, err)
		}
		packs[def.Path] = pack
		order = append(order, def.Path)
	}

	r.mu.Lock()
	for _, path := range order {
		r.packs[path] = packs[path]
	}
	r.mu.Unlock()

	return nil
}

// LoadFile reads a registry file from disk
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read class registry: %w", err)
	}
	return r.LoadTOML(bytes.NewReader(data))
}

// LoadFile creates a registry populated from the TOML file at path
func LoadFile(path string) (*Registry, error) {
	r := New()
	if err := r.LoadFile(path); err != nil {
		return nil, err
	}
	return r, nil
}
