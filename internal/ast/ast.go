// Package ast provides zero-allocation typed wrappers over the syntax CST.
package ast

import (
	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/syntax"
)

// Document is the typed root view over a parsed file.
type Document struct {
	Tree *syntax.Tree
	node syntax.NodeID
}

// CastDocument wraps tree's root as a Document, or returns ok=false if the
// root is not a Document node (e.g. an empty or fully-erroring parse).
func CastDocument(tree *syntax.Tree) (Document, bool) {
	root := tree.RootNode()
	if root == nil || root.Kind != syntax.KindDocument {
		return Document{}, false
	}
	return Document{Tree: tree, node: tree.Root}, true
}

// Entities iterates every top-level definition, skipping error-recovery nodes.
func (d Document) Entities() []Entity {
	root := d.Tree.NodeByID(d.node)
	out := make([]Entity, 0, len(root.Children))
	for _, c := range root.Children {
		if c.IsToken {
			continue
		}
		n := d.Tree.NodeByID(syntax.NodeID(c.Index))
		if n.Kind == syntax.KindError {
			continue
		}
		out = append(out, Entity{Tree: d.Tree, node: n.ID})
	}
	return out
}

// Entity is any top-level definition: an Alias, a RuleSet, or one of the
// definition kinds sharing the "Keyword ':' Name MetadataClause* Rule*"
// shape (Profile, Extension, ValueSet, CodeSystem, Instance, Invariant,
// Mapping, Logical, Resource).
type Entity struct {
	Tree *syntax.Tree
	node syntax.NodeID
}

// Kind returns the underlying CST node kind (e.g. syntax.KindProfile).
func (e Entity) Kind() syntax.NodeKind {
	return e.Tree.NodeByID(e.node).Kind
}

// Node returns the wrapped syntax node.
func (e Entity) Node() *syntax.Node {
	return e.Tree.NodeByID(e.node)
}

// Span returns the entity's source span.
func (e Entity) Span() (start, end int) {
	n := e.Node()
	return int(n.Span.Start), int(n.Span.End)
}

// AsAlias casts to an Alias view.
func (e Entity) AsAlias() (Alias, bool) {
	if e.Kind() != syntax.KindAlias {
		return Alias{}, false
	}
	return Alias{Tree: e.Tree, node: e.node}, true
}

// AsDefinition casts to a Definition view, valid for every entity kind
// except Alias.
func (e Entity) AsDefinition() (Definition, bool) {
	if e.Kind() == syntax.KindAlias {
		return Definition{}, false
	}
	return Definition{Tree: e.Tree, node: e.node}, true
}

// Alias is a "$Name = value" top-level declaration.
type Alias struct {
	Tree *syntax.Tree
	node syntax.NodeID
}

// Name returns the alias name token text, including the leading '$'.
func (a Alias) Name() string {
	return firstTokenTextAfterKeyword(a.Tree, a.node, lexer.TokenIdentifier)
}

// Value returns the substituted value text (a canonical URL or identifier).
func (a Alias) Value() string {
	n := a.Tree.NodeByID(a.node)
	if len(n.Children) == 0 {
		return ""
	}
	last := n.Children[len(n.Children)-1]
	if !last.IsToken {
		return ""
	}
	return string(a.Tree.Token(last.Index).Text(a.Tree.Source))
}

// Definition is the shared view over Profile/Extension/ValueSet/CodeSystem/
// Instance/Invariant/Mapping/Logical/Resource/RuleSet definitions.
type Definition struct {
	Tree *syntax.Tree
	node syntax.NodeID
}

// Kind returns the CST node kind (e.g. syntax.KindProfile).
func (d Definition) Kind() syntax.NodeKind {
	return d.Tree.NodeByID(d.node).Kind
}

// Node returns the wrapped syntax node.
func (d Definition) Node() *syntax.Node {
	return d.Tree.NodeByID(d.node)
}

// Name returns the definition's declared name (the token right after the
// ':' that follows the definition keyword).
func (d Definition) Name() string {
	n := d.Tree.NodeByID(d.node)
	for i, c := range n.Children {
		if c.IsToken && d.Tree.Token(c.Index).Kind == lexer.TokenColon && i+1 < len(n.Children) {
			next := n.Children[i+1]
			if next.IsToken {
				return string(d.Tree.Token(next.Index).Text(d.Tree.Source))
			}
		}
	}
	return ""
}

// Params returns a parameterized RuleSet's declared parameter names, or
// nil if this definition has no parameter list.
func (d Definition) Params() []string {
	n := d.Tree.NodeByID(d.node)
	for _, c := range n.Children {
		if c.IsToken {
			continue
		}
		pn := d.Tree.NodeByID(syntax.NodeID(c.Index))
		if pn.Kind != syntax.KindParamList {
			continue
		}
		var out []string
		for _, pc := range pn.Children {
			if pc.IsToken && d.Tree.Token(pc.Index).Kind == lexer.TokenIdentifier {
				out = append(out, string(d.Tree.Token(pc.Index).Text(d.Tree.Source)))
			}
		}
		return out
	}
	return nil
}

// MetadataClauses returns every metadata clause in source order. When a
// clause keyword repeats, every occurrence is returned; callers implementing
// the "last wins" rule (§4.5) should take the last match for a given keyword.
func (d Definition) MetadataClauses() []MetadataClause {
	n := d.Tree.NodeByID(d.node)
	var out []MetadataClause
	for _, c := range n.Children {
		if c.IsToken {
			continue
		}
		cn := d.Tree.NodeByID(syntax.NodeID(c.Index))
		if cn.Kind == syntax.KindMetadataClause {
			out = append(out, MetadataClause{Tree: d.Tree, node: cn.ID})
		}
	}
	return out
}

// Metadata returns the last occurrence of the named clause keyword, or
// ok=false if it was never specified.
func (d Definition) Metadata(keyword lexer.TokenKind) (MetadataClause, bool) {
	var last MetadataClause
	found := false
	for _, mc := range d.MetadataClauses() {
		if mc.Keyword() == keyword {
			last = mc
			found = true
		}
	}
	return last, found
}

// Rules returns every rule attached to this definition in source order.
func (d Definition) Rules() []Rule {
	n := d.Tree.NodeByID(d.node)
	var out []Rule
	for _, c := range n.Children {
		if c.IsToken {
			continue
		}
		cn := d.Tree.NodeByID(syntax.NodeID(c.Index))
		if isRuleKind(cn.Kind) {
			out = append(out, Rule{Tree: d.Tree, node: cn.ID})
		}
	}
	return out
}

func isRuleKind(k syntax.NodeKind) bool {
	switch k {
	case syntax.KindCardRule, syntax.KindFlagRule, syntax.KindValueSetRule,
		syntax.KindFixedValueRule, syntax.KindContainsRule, syntax.KindOnlyRule,
		syntax.KindObeysRule, syntax.KindMappingRule, syntax.KindCaretValueRule,
		syntax.KindCodeCaretValueRule, syntax.KindCodeInsertRule, syntax.KindInsertRule:
		return true
	default:
		return false
	}
}

// MetadataClause is a single "Keyword ':' value..." line.
type MetadataClause struct {
	Tree *syntax.Tree
	node syntax.NodeID
}

// Node returns the wrapped syntax node.
func (m MetadataClause) Node() *syntax.Node {
	return m.Tree.NodeByID(m.node)
}

// Keyword returns the clause's metadata keyword token kind.
func (m MetadataClause) Keyword() lexer.TokenKind {
	n := m.Tree.NodeByID(m.node)
	if len(n.Children) == 0 || !n.Children[0].IsToken {
		return lexer.TokenError
	}
	return m.Tree.Token(n.Children[0].Index).Kind
}

// Value returns the verbatim source text of the clause's value tokens
// (everything after the ':').
func (m MetadataClause) Value() string {
	n := m.Tree.NodeByID(m.node)
	if len(n.Children) < 3 {
		return ""
	}
	first := n.Children[2]
	last := n.Children[len(n.Children)-1]
	if !first.IsToken || !last.IsToken {
		return ""
	}
	start := m.Tree.Token(first.Index).Span.Start
	end := m.Tree.Token(last.Index).Span.End
	if int(end) > len(m.Tree.Source) {
		return ""
	}
	return string(m.Tree.Source[start:end])
}

// Tokens returns the clause's value tokens (everything after the ':').
func (m MetadataClause) Tokens() []lexer.Token {
	n := m.Tree.NodeByID(m.node)
	var out []lexer.Token
	for i, c := range n.Children {
		if i < 2 {
			continue // keyword, ':'
		}
		if c.IsToken {
			out = append(out, m.Tree.Token(c.Index))
		}
	}
	return out
}

// Rule is the tagged-sum view over every rule node kind.
type Rule struct {
	Tree *syntax.Tree
	node syntax.NodeID
}

// Kind returns the concrete rule variant.
func (r Rule) Kind() syntax.NodeKind {
	return r.Tree.NodeByID(r.node).Kind
}

// Node returns the wrapped syntax node.
func (r Rule) Node() *syntax.Node {
	return r.Tree.NodeByID(r.node)
}

// Path returns the rule's path node text (empty for rules with no path,
// e.g. a bare CodeCaretValueRule's leading codes aren't part of the path).
func (r Rule) Path() string {
	n := r.Node()
	for _, c := range n.Children {
		if c.IsToken {
			continue
		}
		pn := r.Tree.NodeByID(syntax.NodeID(c.Index))
		if pn.Kind == syntax.KindPath {
			return string(r.Tree.NodeText(pn))
		}
	}
	return ""
}

// InsertTarget returns the referenced RuleSet's name for an InsertRule or
// CodeInsertRule, or "" for any other rule kind.
func (r Rule) InsertTarget() string {
	n := r.Node()
	sawInsert := false
	for _, c := range n.Children {
		if !c.IsToken {
			continue
		}
		tok := r.Tree.Token(c.Index)
		if sawInsert && tok.Kind == lexer.TokenIdentifier {
			return string(tok.Text(r.Tree.Source))
		}
		if tok.Kind == lexer.TokenKwInsert {
			sawInsert = true
		}
	}
	return ""
}

// InsertArgsRaw returns the verbatim source text between the insert
// target's parentheses, or "" if the insert has no argument list.
// Arguments are not split here: ruleset expansion substitutes them
// textually per the bracket-aware rule, not via re-parsing.
func (r Rule) InsertArgsRaw() string {
	n := r.Node()
	for _, c := range n.Children {
		if c.IsToken {
			continue
		}
		an := r.Tree.NodeByID(syntax.NodeID(c.Index))
		if an.Kind != syntax.KindInsertArgList {
			continue
		}
		text := r.Tree.NodeText(an)
		// Strip the surrounding parentheses the parser captured.
		if len(text) >= 2 && text[0] == '(' {
			end := len(text)
			if text[end-1] == ')' {
				end--
			}
			return string(text[1:end])
		}
		return string(text)
	}
	return ""
}

// Tokens returns every token child directly under the rule node, in order
// (used by extraction/formatting code that needs the raw token sequence).
func (r Rule) Tokens() []lexer.Token {
	n := r.Node()
	var out []lexer.Token
	for _, c := range n.Children {
		if c.IsToken {
			out = append(out, r.Tree.Token(c.Index))
		}
	}
	return out
}

func firstTokenTextAfterKeyword(tree *syntax.Tree, node syntax.NodeID, kind lexer.TokenKind) string {
	n := tree.NodeByID(node)
	for _, c := range n.Children {
		if c.IsToken && tree.Token(c.Index).Kind == kind {
			return string(tree.Token(c.Index).Text(tree.Source))
		}
	}
	return ""
}
