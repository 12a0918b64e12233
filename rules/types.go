package rules

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// RuleEntry is a single rule within a pack
type RuleEntry struct {
	ID       string
	Pattern  string
	Metadata map[string]string
}

// Priority returns the "priority" metadata value, or 0 when absent or invalid.
// Lower priorities are evaluated first.
func (r RuleEntry) Priority() int {
	p, err := r.priority()
	if err != nil {
		return 0
	}
	return p
}

// priority parses the "priority" metadata value, which must be a non-negative integer
func (r RuleEntry) priority() (int, error) {
	raw, ok := r.Metadata["priority"]
	if !ok {
		return 0, nil
	}
	p, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || p < 0 {
		return 0, fmt.Errorf("rule %q: priority must be a non-negative integer, got %q", r.ID, raw)
	}
	return p, nil
}

// Blocking reports whether a match on this rule stops evaluation of rules with a greater priority
func (r RuleEntry) Blocking() bool {
	b, err := strconv.ParseBool(strings.TrimSpace(r.Metadata["block"]))
	return err == nil && b
}

func (r RuleEntry) clone() RuleEntry {
	out := RuleEntry{ID: r.ID, Pattern: r.Pattern}
	if r.Metadata != nil {
		out.Metadata = maps.Clone(r.Metadata)
	} else {
		out.Metadata = map[string]string{}
	}
	return out
}

// RulePack is an ordered, immutable collection of rule entries.
// Entry order is declaration order in the source.
type RulePack struct {
	id       string
	loadType LoadType
	loadedAt time.Time
	entries  []RuleEntry
	index    map[string]int
}

// NewRulePack builds a pack from entries, copying them.
// Entry identifiers must be non-empty and unique within the pack, and a
// "priority" metadata value must be a non-negative integer.
func NewRulePack(id string, loadType LoadType, loadedAt time.Time, entries []RuleEntry) (*RulePack, error) {
	p := &RulePack{
		id:       id,
		loadType: loadType,
		loadedAt: loadedAt,
		entries:  make([]RuleEntry, 0, len(entries)),
		index:    make(map[string]int, len(entries)),
	}

	for i, e := range entries {
		if e.ID == "" {
			return nil, &Error{
				Kind:       KindMalformedRule,
				Identifier: id,
				LoadType:   loadType,
				Stage:      StageParse,
				Err:        fmt.Errorf("rule %d has no identifier", i+1),
			}
		}
		if _, err := e.priority(); err != nil {
			return nil, &Error{
				Kind:       KindMalformedRule,
				Identifier: id,
				LoadType:   loadType,
				Stage:      StageParse,
				Err:        err,
			}
		}
		if _, exists := p.index[e.ID]; exists {
			return nil, &Error{
				Kind:       KindDuplicateRuleID,
				Identifier: id,
				LoadType:   loadType,
				Stage:      StageParse,
				Err:        fmt.Errorf("rule %q declared more than once", e.ID),
			}
		}
		p.index[e.ID] = len(p.entries)
		p.entries = append(p.entries, e.clone())
	}

	return p, nil
}

// derive returns a pack with p's entry identifiers in the same order but the given
// source and entries. entries must carry p's identifiers in p's order.
func (p *RulePack) derive(id string, loadType LoadType, entries []RuleEntry) *RulePack {
	return &RulePack{
		id:       id,
		loadType: loadType,
		loadedAt: p.loadedAt,
		entries:  entries,
		index:    p.index,
	}
}

// ID returns the identifier of the source the pack was loaded from
func (p *RulePack) ID() string { return p.id }

// LoadType returns how the pack was resolved
func (p *RulePack) LoadType() LoadType { return p.loadType }

// LoadedAt returns the load timestamp
func (p *RulePack) LoadedAt() time.Time { return p.loadedAt }

// Len returns the number of entries
func (p *RulePack) Len() int { return len(p.entries) }

// Entry returns a copy of the i-th entry
func (p *RulePack) Entry(i int) RuleEntry { return p.entries[i].clone() }

// Lookup returns a copy of the entry with the given identifier
func (p *RulePack) Lookup(ruleID string) (RuleEntry, bool) {
	i, ok := p.index[ruleID]
	if !ok {
		return RuleEntry{}, false
	}
	return p.entries[i].clone(), true
}

// Entries returns a copy of all entries in declaration order
func (p *RulePack) Entries() []RuleEntry {
	out := make([]RuleEntry, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.clone()
	}
	return out
}

// IDs returns entry identifiers in declaration order
func (p *RulePack) IDs() []string {
	ids := make([]string, len(p.entries))
	for i, e := range p.entries {
		ids[i] = e.ID
	}
	return ids
}

// RawSource is rule content plus the identifier and load type that produced it.
// Structured is set instead of Content when the source is already parsed.
type RawSource struct {
	Identifier string
	LoadType   LoadType
	Content    []byte
	Structured *RulePack
}

// ProcessedResult is the outcome of processing a pack
type ProcessedResult struct {
	Source   string
	LoadType LoadType
	Mode     ProcessMode
	Summary  string
	Pack     *RulePack // set for ModeNormalize
}

// String renders the result for display: the summary, or the normalized pack text
func (r *ProcessedResult) String() string {
	if r.Pack != nil && r.Mode == ModeNormalize {
		return FormatPack(r.Pack)
	}
	return r.Summary
}

// EvaluationResult contains the outcome of evaluating a rule against facts
type EvaluationResult struct {
	RuleID   string
	Priority int
	Matched  bool
	Error    error
	Trace    any // CEL evaluation state (optional)
}
