package semantic

import (
	"strconv"
	"strings"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/syntax"
)

const maxInsertDepth = 10

// expandRuleSets walks every InsertRule/CodeInsertRule and performs
// bracket-aware template substitution (§4.5 phase 3): '{param}' is only
// substituted while bracket-nesting depth is zero, preserving literal
// "{...}" text that happens to appear inside a path's bracket selector
// (e.g. a slice name containing braces) unexpanded. Results are recorded
// per insert-site node id as the flat rule-line text the expansion
// produced; nested inserts are expanded recursively with cycle and depth
// detection.
func (m *Model) expandRuleSets(doc ast.Document) {
	m.ExpandedInserts = make(map[syntax.NodeID][]string)
	for _, entity := range doc.Entities() {
		def, ok := entity.AsDefinition()
		if !ok || def.Kind() == syntax.KindRuleSet {
			continue // ruleset bodies are only expanded at their use sites
		}
		for _, rule := range def.Rules() {
			switch rule.Kind() {
			case syntax.KindInsertRule, syntax.KindCodeInsertRule:
				lines := m.expandInsert(rule, nil)
				m.ExpandedInserts[rule.Node().ID] = lines
			}
		}
	}
}

func (m *Model) expandInsert(rule ast.Rule, chain []string) []string {
	name := rule.InsertTarget()
	if len(chain) >= maxInsertDepth {
		m.addDiagnostic(Diagnostic{
			Rule:     "correctness/max-depth-exceeded",
			Message:  "ruleset insert depth exceeded 10 at " + name,
			Severity: SeverityError,
			Span:     rule.Node().Span,
		})
		return nil
	}
	for _, seen := range chain {
		if seen == name {
			m.addDiagnostic(Diagnostic{
				Rule:     "correctness/circular-reference",
				Message:  "circular ruleset reference: " + strings.Join(append(chain, name), " -> "),
				Severity: SeverityError,
				Span:     rule.Node().Span,
			})
			return nil
		}
	}

	target, ok := m.RuleSets[name]
	if !ok {
		m.addDiagnostic(Diagnostic{
			Rule:     "correctness/unresolved-reference",
			Message:  "insert references undefined RuleSet " + name,
			Severity: SeverityError,
			Span:     rule.Node().Span,
		})
		return nil
	}

	params := target.Params()
	args := splitTopLevelArgs(rule.InsertArgsRaw())
	if len(params) != len(args) {
		m.addDiagnostic(Diagnostic{
			Rule:     "correctness/insert-arity-mismatch",
			Message:  "RuleSet " + name + " expects " + strconv.Itoa(len(params)) + " argument(s), got " + strconv.Itoa(len(args)),
			Severity: SeverityError,
			Span:     rule.Node().Span,
		})
		params, args = nil, nil // fall through with no substitution rather than misaligning
	}

	nextChain := append(append([]string{}, chain...), name)
	var out []string
	for _, templateRule := range target.Rules() {
		raw := string(m.Tree.NodeText(templateRule.Node()))
		substituted := bracketAwareSubstitute(raw, params, args)
		switch templateRule.Kind() {
		case syntax.KindInsertRule, syntax.KindCodeInsertRule:
			out = append(out, m.expandInsert(templateRule, nextChain)...)
		default:
			out = append(out, substituted)
		}
	}
	return out
}

// bracketAwareSubstitute replaces "{param}" occurrences with the matching
// positional argument, but only where '[' bracket-nesting depth is zero.
// This intentionally diverges from at least one known reference
// implementation's substitution-inside-brackets bug; that skip is
// preserved here by design, not by accident.
func bracketAwareSubstitute(line string, params, args []string) string {
	if len(params) == 0 {
		return line
	}
	var out strings.Builder
	depth := 0
	i := 0
	for i < len(line) {
		switch line[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '{':
			if depth == 0 {
				if j := strings.IndexByte(line[i:], '}'); j >= 0 {
					name := line[i+1 : i+j]
					if idx := indexOf(params, name); idx >= 0 {
						out.WriteString(args[idx])
						i += j + 1
						continue
					}
				}
			}
		}
		out.WriteByte(line[i])
		i++
	}
	return out.String()
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}

// splitTopLevelArgs splits a raw insert-argument-list body on commas that
// are not nested inside '(', '[' (the same bracket-depth tracking the
// parser used to find the list's closing paren in the first place).
func splitTopLevelArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(raw[start:i]))
				start = i + 1
			}
		}
	}
	args = append(args, strings.TrimSpace(raw[start:]))
	return args
}
