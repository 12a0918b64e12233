package rules

import (
	"sort"
	"strings"
	"unicode"
)

// FormatPack renders a pack in the text grammar understood by Parser.
// Metadata keys are written in sorted order. Pattern lines the grammar would
// read as a block break, a comment or metadata are escaped with a leading
// backslash, so Parse(FormatPack(p)) reproduces the entries of any pack whose
// patterns and metadata values carry no surrounding whitespace per line.
func FormatPack(p *RulePack) string {
	var b strings.Builder
	for i, e := range p.entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(e.ID)
		if e.Pattern != "" && e.Pattern != e.Metadata["pattern"] {
			lines := strings.Split(e.Pattern, "\n")
			b.WriteString(" ")
			b.WriteString(escapeInline(lines[0]))
			for _, line := range lines[1:] {
				b.WriteString("\n")
				b.WriteString(escapeLine(line))
			}
		}
		b.WriteString("\n")

		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(e.Metadata[k])
			b.WriteString("\n")
		}
	}
	return b.String()
}

// escapeInline escapes the part of a pattern written after the rule identifier
func escapeInline(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, patternEscape) {
		return patternEscape + line
	}
	return line
}

// escapeLine escapes a continuation line of a pattern
func escapeLine(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" ||
		strings.HasPrefix(trimmed, "#") ||
		strings.HasPrefix(trimmed, patternEscape) ||
		isMetadataLine(trimmed) {
		return patternEscape + line
	}
	return line
}

// NormalizePattern returns the canonical form of a pattern: outside quoted
// string literals, whitespace runs collapse to a single space and letters are
// lower-cased. Quoted literals ('...' or "...", with backslash escapes) are kept verbatim.
func NormalizePattern(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))

	var quote rune
	escaped := false
	pendingSpace := false

	for _, r := range pattern {
		if quote != 0 {
			b.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == quote:
				quote = 0
			}
			continue
		}

		if unicode.IsSpace(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}

		if r == '"' || r == '\'' {
			quote = r
			b.WriteRune(r)
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}
