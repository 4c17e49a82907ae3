package pattern

import (
	"strings"

	"github.com/fshforge/fsh/internal/syntax"
)

// Match is one node that satisfied a Pattern's template and where-clause.
type Match struct {
	Node     *syntax.Node
	Captures map[string]string
}

// FindAll walks every CST node in tree whose kind matches p.NodeKind, tries
// to align p's template against the node's reconstructed text, and keeps
// the ones whose captures also satisfy every where predicate.
//
// "Reconstructed text" is the node's own tokens (tree.Tokens[FirstToken:
// LastToken+1], the same span a format.Document traversal would cover for
// that node) rejoined with single spaces — this is the "text" half of
// "match each node's kind/text against the compiled pattern"; the compiled
// template never sees the source's original whitespace.
func (p *Pattern) FindAll(tree *syntax.Tree) []Match {
	if tree == nil || p == nil {
		return nil
	}
	var out []Match
	for i := 1; i < len(tree.Nodes); i++ {
		n := &tree.Nodes[i]
		if syntax.KindName(n.Kind) != p.NodeKind {
			continue
		}
		text := nodeText(tree, n)
		captures, ok := p.align(text)
		if !ok {
			continue
		}
		if !p.satisfies(captures) {
			continue
		}
		out = append(out, Match{Node: n, Captures: captures})
	}
	return out
}

func nodeText(tree *syntax.Tree, n *syntax.Node) string {
	if int(n.LastToken) >= len(tree.Tokens) {
		return ""
	}
	parts := make([]string, 0, int(n.LastToken-n.FirstToken)+1)
	for i := n.FirstToken; i <= n.LastToken; i++ {
		parts = append(parts, string(tree.Tokens[i].Text(tree.Source)))
	}
	return strings.Join(parts, " ")
}

// align tries to match text against p's compiled template from left to
// right: each literal segment must occur, in order, as a substring of the
// remaining text; each metavariable segment captures everything between the
// end of the previous literal (or the start of text) and the start of the
// next literal (or the end of text, for a trailing metavariable). A
// metavariable that recurs must capture identical text on every
// occurrence, per spec: equal metavariables bind to equal text.
func (p *Pattern) align(text string) (map[string]string, bool) {
	captures := make(map[string]string)
	pos := 0

	for i, seg := range p.segments {
		if !seg.isVar {
			idx := strings.Index(text[pos:], seg.literal)
			if idx < 0 {
				return nil, false
			}
			pos += idx + len(seg.literal)
			continue
		}

		// Find where this capture ends: at the next literal segment's
		// location, or at end-of-text if this is the last segment or every
		// remaining segment is itself a metavariable.
		end := len(text)
		for j := i + 1; j < len(p.segments); j++ {
			if p.segments[j].isVar {
				continue
			}
			idx := strings.Index(text[pos:], p.segments[j].literal)
			if idx < 0 {
				return nil, false
			}
			end = pos + idx
			break
		}
		captured := strings.TrimSpace(text[pos:end])
		if captured == "" {
			return nil, false
		}
		if existing, seen := captures[seg.name]; seen && existing != captured {
			return nil, false
		}
		captures[seg.name] = captured
		pos = end
	}

	return captures, true
}

func (p *Pattern) satisfies(captures map[string]string) bool {
	for _, pred := range p.where {
		if !evalPredicate(pred, captures) {
			return false
		}
	}
	return true
}
