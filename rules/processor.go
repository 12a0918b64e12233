package rules

import (
	"fmt"
	"sort"
	"strings"
)

// Processor turns a parsed pack into the result consumed by the caller.
// A Processor holds no per-request state and is safe for concurrent use.
type Processor struct {
	checker *Engine
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithChecker sets the CEL engine used by ModeValidate
func WithChecker(en *Engine) ProcessorOption {
	return func(p *Processor) {
		p.checker = en
	}
}

// NewProcessor creates a processor
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process applies mode to pack. It never modifies pack and only fails for an unknown mode.
func (p *Processor) Process(pack *RulePack, mode ProcessMode) (*ProcessedResult, error) {
	result := &ProcessedResult{
		Source:   pack.ID(),
		LoadType: pack.LoadType(),
		Mode:     mode,
	}

	switch mode {
	case ModeSummarize:
		result.Summary = Summarize(pack)
	case ModeNormalize:
		normalized := Normalize(pack)
		result.Pack = normalized
		result.Summary = Summarize(normalized)
	case ModeValidate:
		summary, err := p.validate(pack)
		if err != nil {
			return nil, err
		}
		result.Summary = summary
	default:
		return nil, &Error{
			Kind:       KindInvalidMode,
			Identifier: pack.ID(),
			LoadType:   pack.LoadType(),
			Stage:      StageProcess,
			Err:        fmt.Errorf("unsupported process mode %s", mode),
		}
	}

	return result, nil
}

// Summarize describes a pack: its identifier, load type, entry count and entry identifiers in order.
// The output depends only on the pack's contents.
func Summarize(pack *RulePack) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Processed rule pack: %s [%s] %s", pack.ID(), pack.LoadType(), countRules(pack.Len()))
	if pack.Len() > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(pack.IDs(), ", "))
	}
	return b.String()
}

// Normalize returns a new pack whose patterns are in canonical form
func Normalize(pack *RulePack) *RulePack {
	entries := pack.Entries()
	for i := range entries {
		entries[i].Pattern = NormalizePattern(entries[i].Pattern)
	}
	return pack.derive(pack.ID(), pack.LoadType(), entries)
}

func (p *Processor) validate(pack *RulePack) (string, error) {
	checker := p.checker
	if checker == nil {
		var err error
		checker, err = NewEngine()
		if err != nil {
			return "", &Error{Kind: KindUnknown, Identifier: pack.ID(), LoadType: pack.LoadType(), Stage: StageProcess, Err: err}
		}
	}

	issues := checker.Check(pack)

	var b strings.Builder
	fmt.Fprintf(&b, "Validated rule pack: %s [%s] %s, %d invalid", pack.ID(), pack.LoadType(), countRules(pack.Len()), len(issues))
	if len(issues) == 0 {
		return b.String(), nil
	}

	ids := make([]string, 0, len(issues))
	for id := range issues {
		ids = append(ids, id)
	}
	// report in declaration order
	order := make(map[string]int, pack.Len())
	for i, id := range pack.IDs() {
		order[id] = i
	}
	sort.Slice(ids, func(i, j int) bool { return order[ids[i]] < order[ids[j]] })

	b.WriteString(": ")
	for i, id := range ids {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %s", id, oneLine(issues[id].Error()))
	}
	return b.String(), nil
}

func countRules(n int) string {
	if n == 1 {
		return "1 rule"
	}
	return fmt.Sprintf("%d rules", n)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
