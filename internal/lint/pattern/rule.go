package pattern

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fshforge/fsh/internal/syntax"
	"gopkg.in/yaml.v3"
)

// Rule is one compiled pattern rule: a Pattern plus the diagnostic shape it
// reports and, optionally, the rewrite it suggests. It implements
// lint.Rule, so a Runner can run it alongside the hand-written Go rules
// without knowing it's pattern-backed.
type Rule struct {
	id       string
	desc     string
	category string
	severity syntax.Severity
	message  string
	effect   string
	safety   syntax.Safety
	compiled *Pattern
}

func (r *Rule) ID() string          { return r.id }
func (r *Rule) Description() string { return r.desc }

// Run matches r's compiled pattern against tree and emits one diagnostic
// per match, substituting captures into the message (and, if effect is
// set, into a CodeSuggestion's replacement text).
func (r *Rule) Run(ctx context.Context, tree *syntax.Tree) ([]syntax.Diagnostic, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matches := r.compiled.FindAll(tree)
	if len(matches) == 0 {
		return nil, nil
	}

	out := make([]syntax.Diagnostic, 0, len(matches))
	for _, m := range matches {
		d := syntax.Diagnostic{
			Code:        syntax.DiagnosticCode(r.id),
			Message:     substitute(r.message, m.Captures),
			Severity:    r.severity,
			Span:        m.Node.Span,
			Recoverable: true,
			Category:    r.category,
		}
		if r.effect != "" {
			d.Suggestions = []syntax.CodeSuggestion{{
				Message:     "rewrite via " + r.id,
				Replacement: substitute(r.effect, m.Captures),
				Span:        m.Node.Span,
				Safety:      r.safety,
			}}
		}
		out = append(out, d)
	}
	return out, nil
}

// substitute replaces $name occurrences in tmpl with their captured text.
// Names are tried longest-first so "$path" and a hypothetical "$pathx"
// capture can't shadow one another.
func substitute(tmpl string, captures map[string]string) string {
	names := make([]string, 0, len(captures))
	for name := range captures {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	out := tmpl
	for _, name := range names {
		out = strings.ReplaceAll(out, "$"+name, captures[name])
	}
	return out
}

// ruleSpec is the YAML shape one pattern rule is authored in; Definition
// below is the on-disk file shape (a list of these under a "rules:" key).
type ruleSpec struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Category    string   `yaml:"category"`
	Severity    string   `yaml:"severity"`
	Kind        string   `yaml:"kind"`
	Match       string   `yaml:"match"`
	Where       []string `yaml:"where,omitempty"`
	Message     string   `yaml:"message"`
	Effect      string   `yaml:"effect,omitempty"`
	Safety      string   `yaml:"safety,omitempty"`
}

// Definition is the on-disk document shape LoadFile reads.
type Definition struct {
	Rules []ruleSpec `yaml:"rules"`
}

// LoadFile reads a pattern rule set from a YAML file in the same family as
// sushi-config.yaml (internal/config's Load), and compiles every entry.
func LoadFile(path string) ([]*Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pattern: read %s: %w", path, err)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("pattern: parse %s: %w", path, err)
	}
	rules := make([]*Rule, 0, len(def.Rules))
	for i, s := range def.Rules {
		r, err := compileSpec(s)
		if err != nil {
			return nil, fmt.Errorf("pattern: rule %d (%s): %w", i, s.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func compileSpec(s ruleSpec) (*Rule, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	var body strings.Builder
	fmt.Fprintf(&body, "kind: %s\n", s.Kind)
	fmt.Fprintf(&body, "match: `%s`\n", s.Match)
	if len(s.Where) > 0 {
		fmt.Fprintf(&body, "where: %s\n", strings.Join(s.Where, ", "))
	}
	compiled, err := Compile(body.String())
	if err != nil {
		return nil, err
	}

	severity := parseSeverity(s.Severity)
	safety := parseSafety(s.Safety)

	return &Rule{
		id:       s.ID,
		desc:     s.Description,
		category: s.Category,
		severity: severity,
		message:  s.Message,
		effect:   s.Effect,
		safety:   safety,
		compiled: compiled,
	}, nil
}

func parseSeverity(s string) syntax.Severity {
	switch strings.ToLower(s) {
	case "error":
		return syntax.SeverityError
	case "info":
		return syntax.SeverityInfo
	case "hint":
		return syntax.SeverityHint
	default:
		return syntax.SeverityWarning
	}
}

func parseSafety(s string) syntax.Safety {
	if strings.EqualFold(s, "safe") {
		return syntax.SafetySafe
	}
	return syntax.SafetyUnsafe
}
