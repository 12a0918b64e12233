package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// patternEscape starts a pattern line that would otherwise read as a blank
// line, a comment or metadata. The parser drops it.
const patternEscape = `\`

var (
	ruleIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.:-]*$`)
	metadataPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.-]*)=(.*)$`)
)

// Parser turns raw rule text into a RulePack.
//
// The text grammar:
//   - blocks are separated by one or more blank lines; lines starting with '#' are comments
//   - the first token of a block's first line is the rule identifier
//   - the trailing run of key=value lines is the rule's metadata
//   - everything else in the block is the pattern; a "pattern" metadata key
//     supplies the pattern when the block has none inline
//   - a single leading backslash on a pattern line is dropped
type Parser struct {
	now func() time.Time
}

// NewParser creates a parser that stamps packs with the current time
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

var defaultParser = NewParser()

// Parse parses raw with the default parser
func Parse(raw *RawSource) (*RulePack, error) {
	return defaultParser.Parse(raw)
}

type ruleBlock struct {
	line  int // 1-based line number of the first line
	lines []string
}

// Parse builds a pack from raw. Already-structured sources are returned unchanged.
func (p *Parser) Parse(raw *RawSource) (*RulePack, error) {
	if raw.Structured != nil {
		return raw.Structured, nil
	}

	blocks := splitBlocks(string(raw.Content))
	entries := make([]RuleEntry, 0, len(blocks))
	declared := make(map[string]int, len(blocks))

	for _, b := range blocks {
		entry, err := parseBlock(b)
		if err != nil {
			return nil, withContext(err, raw.Identifier, raw.LoadType, StageParse)
		}
		if first, exists := declared[entry.ID]; exists {
			return nil, &Error{
				Kind:       KindDuplicateRuleID,
				Identifier: raw.Identifier,
				LoadType:   raw.LoadType,
				Stage:      StageParse,
				Err:        fmt.Errorf("rule %q at line %d already declared at line %d", entry.ID, b.line, first),
			}
		}
		declared[entry.ID] = b.line
		entries = append(entries, entry)
	}

	pack, err := NewRulePack(raw.Identifier, raw.LoadType, p.now(), entries)
	if err != nil {
		return nil, withContext(err, raw.Identifier, raw.LoadType, StageParse)
	}
	return pack, nil
}

func splitBlocks(text string) []ruleBlock {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var blocks []ruleBlock
	var current *ruleBlock
	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			if current != nil {
				blocks = append(blocks, *current)
				current = nil
			}
		case strings.HasPrefix(trimmed, "#"):
			// comment
		default:
			if current == nil {
				current = &ruleBlock{line: i + 1}
			}
			current.lines = append(current.lines, trimmed)
		}
	}
	if current != nil {
		blocks = append(blocks, *current)
	}

	return blocks
}

func parseBlock(b ruleBlock) (RuleEntry, error) {
	first := b.lines[0]
	id := strings.Fields(first)[0]
	if !ruleIDPattern.MatchString(id) {
		return RuleEntry{}, &Error{
			Kind: KindMalformedRule,
			Err:  fmt.Errorf("line %d: no rule identifier in %q", b.line, first),
		}
	}

	// Metadata is the trailing run of key=value lines after the first line
	end := len(b.lines)
	for end > 1 && isMetadataLine(b.lines[end-1]) {
		end--
	}

	metadata := make(map[string]string, len(b.lines)-end)
	for _, line := range b.lines[end:] {
		m := metadataPattern.FindStringSubmatch(line)
		metadata[m[1]] = strings.TrimSpace(m[2])
	}

	var parts []string
	if rest := strings.TrimSpace(strings.TrimPrefix(first, id)); rest != "" {
		parts = append(parts, strings.TrimPrefix(rest, patternEscape))
	}
	for _, line := range b.lines[1:end] {
		parts = append(parts, strings.TrimPrefix(line, patternEscape))
	}

	pattern := strings.TrimSpace(strings.Join(parts, "\n"))
	if pattern == "" {
		pattern = metadata["pattern"]
	}

	return RuleEntry{ID: id, Pattern: pattern, Metadata: metadata}, nil
}

func isMetadataLine(line string) bool {
	m := metadataPattern.FindStringSubmatch(line)
	return m != nil && !strings.HasPrefix(m[2], "=")
}
