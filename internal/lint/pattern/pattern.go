// Package pattern compiles and runs GritQL-style structural rules: a small
// grammar of literal tokens, metavariables, and a where-clause of predicates
// over their captured text, matched against a syntax.Tree's CST nodes by
// kind and reconstructed text rather than by writing a Go Rule per check.
package pattern

import (
	"fmt"
	"strings"
)

// segment is one piece of a compiled match template: either a literal run
// of text (whitespace-collapsed) or a metavariable capture.
type segment struct {
	literal   string
	isVar     bool
	name      string // metavariable name, without the leading '$'
	field     string // optional ".field" suffix, empty if none
}

// predicate is one where-clause check: $name[.field] op "value".
type predicate struct {
	name  string
	field string
	op    string
	value string
}

// Pattern is a compiled pattern rule body: a node kind to match against,
// a template of literal/metavariable segments matched against that node's
// reconstructed text, and an optional where-clause of predicates over the
// resulting captures.
type Pattern struct {
	Source   string
	NodeKind string
	segments []segment
	where    []predicate
}

// Compile parses a pattern definition of the form:
//
//	kind: ValueSetRule
//	match: `* $path from $vs ($strength)`
//	where: $strength != "required", $strength != "extensible"
//
// "kind" names the CST node production (syntax.KindName) this pattern
// matches against. "match" is a backtick-delimited template: bare words and
// bracket/paren/brace punctuation match literally; `$name` captures a run of
// text up to the next literal anchor; `$name.field` additionally applies a
// field accessor (see resolveField) before the capture is used. "where" is
// an optional comma-separated list of predicates over captures, evaluated
// after a template match succeeds; a failing predicate drops that match.
//
// Brackets, parens, and braces inside the match template must balance;
// Compile validates this before tokenizing so a malformed template fails
// fast with a location-free but specific error rather than silently
// mis-segmenting.
func Compile(src string) (*Pattern, error) {
	var kind, match, where string
	var sawKind, sawMatch bool

	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "kind:"):
			kind = strings.TrimSpace(strings.TrimPrefix(line, "kind:"))
			sawKind = true
		case strings.HasPrefix(line, "match:"):
			m, err := extractBacktickLiteral(strings.TrimSpace(strings.TrimPrefix(line, "match:")))
			if err != nil {
				return nil, err
			}
			match = m
			sawMatch = true
		case strings.HasPrefix(line, "where:"):
			where = strings.TrimSpace(strings.TrimPrefix(line, "where:"))
		default:
			return nil, fmt.Errorf("pattern: unrecognized clause %q", line)
		}
	}
	if !sawKind {
		return nil, fmt.Errorf("pattern: missing required %q clause", "kind:")
	}
	if !sawMatch {
		return nil, fmt.Errorf("pattern: missing required %q clause", "match:")
	}
	if err := checkBalanced(match); err != nil {
		return nil, err
	}

	segments, err := compileSegments(match)
	if err != nil {
		return nil, err
	}
	preds, err := compilePredicates(where)
	if err != nil {
		return nil, err
	}

	return &Pattern{Source: src, NodeKind: kind, segments: segments, where: preds}, nil
}

// extractBacktickLiteral strips a single pair of surrounding backticks.
func extractBacktickLiteral(s string) (string, error) {
	if len(s) < 2 || s[0] != '`' || s[len(s)-1] != '`' {
		return "", fmt.Errorf("pattern: match clause must be a backtick-delimited template, got %q", s)
	}
	return s[1 : len(s)-1], nil
}

// checkBalanced validates that every '(', '[', '{' in s is closed by the
// matching punctuation in the correct order, with nothing left dangling.
func checkBalanced(s string) error {
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	var stack []rune
	for _, r := range s {
		switch r {
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return fmt.Errorf("pattern: unbalanced %q in match template %q", r, s)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) != 0 {
		return fmt.Errorf("pattern: unclosed %q in match template %q", string(stack[len(stack)-1]), s)
	}
	return nil
}

// compileSegments scans a match template into alternating literal and
// metavariable segments. Literal runs are whitespace-collapsed so the
// template's own formatting doesn't constrain how the matched source is
// spaced.
func compileSegments(tmpl string) ([]segment, error) {
	var out []segment
	var lit strings.Builder

	flushLiteral := func() {
		collapsed := strings.Join(strings.Fields(spaceOutPunctuation(lit.String())), " ")
		if collapsed != "" {
			out = append(out, segment{literal: collapsed})
		}
		lit.Reset()
	}

	runes := []rune(tmpl)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '$' {
			lit.WriteRune(runes[i])
			continue
		}
		flushLiteral()
		j := i + 1
		for j < len(runes) && isIdentRune(runes[j]) {
			j++
		}
		if j == i+1 {
			return nil, fmt.Errorf("pattern: %q at offset %d is missing a metavariable name", "$", i)
		}
		name := string(runes[i+1 : j])
		field := ""
		if j < len(runes) && runes[j] == '.' {
			k := j + 1
			for k < len(runes) && isIdentRune(runes[k]) {
				k++
			}
			if k == j+1 {
				return nil, fmt.Errorf("pattern: %q is missing a field name after %q", tmpl, "$"+name+".")
			}
			field = string(runes[j+1 : k])
			j = k
		}
		out = append(out, segment{isVar: true, name: name, field: field})
		i = j - 1
	}
	flushLiteral()
	return out, nil
}

// spaceOutPunctuation inserts spaces around the single-character
// punctuation the lexer always tokenizes on its own ("(", ")", "[", "]",
// "{", "}", ","), so a literal written compactly in a pattern ("Reference
// (Resource)") lines up with nodeText's token-by-token reconstruction,
// which always separates tokens with a single space.
func spaceOutPunctuation(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '(', ')', '[', ']', '{', '}', ',':
			b.WriteByte(' ')
			b.WriteRune(r)
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isIdentRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

var predicateOps = []string{"!<:", "<:", "==", "!="}

func compilePredicates(where string) ([]predicate, error) {
	if where == "" {
		return nil, nil
	}
	var out []predicate
	for _, clause := range splitTopLevel(where, ',') {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		p, err := compilePredicate(clause)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// splitTopLevel splits on sep, ignoring occurrences inside a quoted string.
func splitTopLevel(s string, sep rune) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == sep && !inQuote:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	out = append(out, cur.String())
	return out
}

func compilePredicate(clause string) (predicate, error) {
	if !strings.HasPrefix(clause, "$") {
		return predicate{}, fmt.Errorf("pattern: where predicate %q must start with a metavariable", clause)
	}
	var op string
	var opIdx int
	for _, candidate := range predicateOps {
		if idx := strings.Index(clause, candidate); idx >= 0 {
			if op == "" || idx < opIdx {
				op = candidate
				opIdx = idx
			}
		}
	}
	if op == "" {
		return predicate{}, fmt.Errorf("pattern: where predicate %q has no recognized operator (==, !=, <:, !<:)", clause)
	}

	lhs := strings.TrimSpace(clause[:opIdx])
	rhs := strings.TrimSpace(clause[opIdx+len(op):])
	rhs = strings.TrimSuffix(strings.TrimPrefix(rhs, "\""), "\"")

	name, field, _ := strings.Cut(strings.TrimPrefix(lhs, "$"), ".")
	if name == "" {
		return predicate{}, fmt.Errorf("pattern: where predicate %q is missing a metavariable name", clause)
	}
	return predicate{name: name, field: field, op: op, value: rhs}, nil
}

// resolveField applies a field accessor to a captured value. "url" and
// "version" split a FHIR canonical|version reference; "base" and "last"
// split a dotted element path. An unknown field, or one that doesn't apply
// (e.g. "version" on a value with no "|"), returns ("", false).
func resolveField(value, field string) (string, bool) {
	switch field {
	case "":
		return value, true
	case "url":
		url, _, _ := strings.Cut(value, "|")
		return url, true
	case "version":
		_, version, ok := strings.Cut(value, "|")
		return version, ok
	case "base":
		base, _, _ := strings.Cut(value, ".")
		return base, true
	case "last":
		idx := strings.LastIndex(value, ".")
		if idx < 0 {
			return value, true
		}
		return value[idx+1:], true
	default:
		return "", false
	}
}

func evalPredicate(p predicate, captures map[string]string) bool {
	raw, ok := captures[p.name]
	if !ok {
		return false
	}
	val, ok := resolveField(raw, p.field)
	if !ok {
		return false
	}
	switch p.op {
	case "==":
		return val == p.value
	case "!=":
		return val != p.value
	case "<:":
		return strings.Contains(val, p.value)
	case "!<:":
		return !strings.Contains(val, p.value)
	default:
		return false
	}
}
