// Package syntax builds a lossless green-tree CST over the FSH token stream.
package syntax

import (
	"fmt"

	"github.com/fshforge/fsh/internal/lexer"
	"github.com/fshforge/fsh/internal/text"
)

// NodeKind identifies a CST node's grammatical production.
type NodeKind uint16

// NodeKind values. Token leaves reuse lexer.TokenKind and are never assigned
// one of these; a Node's Kind is always one of the productions below.
const (
	KindUnknown NodeKind = iota

	KindDocument
	KindAlias
	KindProfile
	KindExtension
	KindValueSet
	KindCodeSystem
	KindInstance
	KindInvariant
	KindMapping
	KindLogical
	KindResource
	KindRuleSet

	KindMetadataClause

	KindCardRule
	KindFlagRule
	KindValueSetRule
	KindFixedValueRule
	KindContainsRule
	KindOnlyRule
	KindObeysRule
	KindMappingRule
	KindCaretValueRule
	KindCodeCaretValueRule
	KindCodeInsertRule
	KindInsertRule

	KindPath
	KindPathSegment
	KindCardinality
	KindFlagList
	KindContainsItem
	KindOnlyType
	KindInsertArgList
	KindParamList

	// KindError wraps a span the parser could not attach to any production;
	// it still carries full token coverage so the tree stays lossless.
	KindError
)

var nodeKindNames = map[NodeKind]string{
	KindUnknown:            "Unknown",
	KindDocument:           "Document",
	KindAlias:              "Alias",
	KindProfile:            "Profile",
	KindExtension:          "Extension",
	KindValueSet:           "ValueSet",
	KindCodeSystem:         "CodeSystem",
	KindInstance:           "Instance",
	KindInvariant:          "Invariant",
	KindMapping:            "Mapping",
	KindLogical:            "Logical",
	KindResource:           "Resource",
	KindRuleSet:            "RuleSet",
	KindMetadataClause:     "MetadataClause",
	KindCardRule:           "CardRule",
	KindFlagRule:           "FlagRule",
	KindValueSetRule:       "ValueSetRule",
	KindFixedValueRule:     "FixedValueRule",
	KindContainsRule:       "ContainsRule",
	KindOnlyRule:           "OnlyRule",
	KindObeysRule:          "ObeysRule",
	KindMappingRule:        "MappingRule",
	KindCaretValueRule:     "CaretValueRule",
	KindCodeCaretValueRule: "CodeCaretValueRule",
	KindCodeInsertRule:     "CodeInsertRule",
	KindInsertRule:         "InsertRule",
	KindPath:               "Path",
	KindPathSegment:        "PathSegment",
	KindCardinality:        "Cardinality",
	KindFlagList:           "FlagList",
	KindContainsItem:       "ContainsItem",
	KindOnlyType:           "OnlyType",
	KindInsertArgList:      "InsertArgList",
	KindParamList:          "ParamList",
	KindError:              "Error",
}

func kindName(kind NodeKind) string {
	if name, ok := nodeKindNames[kind]; ok {
		return name
	}
	return fmt.Sprintf("NodeKind(%d)", kind)
}

// KindName resolves a NodeKind to its grammar production name.
func KindName(kind NodeKind) string {
	return kindName(kind)
}

// NodeID identifies a node in Tree.Nodes. NodeID 0 is the unused sentinel.
type NodeID uint32

// NoNode is the sentinel value for the absence of a node.
const NoNode NodeID = 0

// ChildRef references either a token or a node child, in source order.
type ChildRef struct {
	IsToken bool
	Index   uint32 // token index or node ID
}

// NodeFlags carry parser recovery metadata.
type NodeFlags uint8

// NodeFlags values.
const (
	// NodeFlagError marks a node synthesized to hold unrecognized input.
	NodeFlagError NodeFlags = 1 << iota
	// NodeFlagMissing marks a node the parser could not fully populate.
	NodeFlagMissing
	// NodeFlagRecovered marks a subtree that contains parser error recovery.
	NodeFlagRecovered
	// NodeFlagNamed marks a node that corresponds to a real grammar
	// production rather than pure punctuation; every node the parser
	// constructs carries this (the FSH grammar has no anonymous nodes to
	// distinguish it from), so rules can walk productions uniformly.
	NodeFlagNamed
)

// Has reports whether all bits in mask are set.
func (f NodeFlags) Has(mask NodeFlags) bool {
	return f&mask == mask
}

// Node is a CST node in source order with token coverage.
type Node struct {
	ID         NodeID
	Kind       NodeKind
	Span       text.Span
	FirstToken uint32 // inclusive
	LastToken  uint32 // inclusive
	Parent     NodeID
	Children   []ChildRef
	Flags      NodeFlags
}

// Severity is a diagnostic severity level.
type Severity uint8

// Severity values, ordered from most to least severe.
const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "Error"
	case SeverityWarning:
		return "Warning"
	case SeverityInfo:
		return "Info"
	case SeverityHint:
		return "Hint"
	default:
		return fmt.Sprintf("Severity(%d)", s)
	}
}

// DiagnosticCode identifies a syntax-layer diagnostic kind.
type DiagnosticCode string

// DiagnosticCode values for the parser layer; lexer diagnostics keep their
// own lexer.DiagnosticCode and are carried through unchanged.
const (
	DiagnosticSyntaxError             DiagnosticCode = "SYNTAX_ERROR"
	DiagnosticUnclosedGroup           DiagnosticCode = "UNCLOSED_GROUP"
	DiagnosticUnclosedParameterBracket DiagnosticCode = "UNCLOSED_PARAMETER_BRACKET"
	DiagnosticInvalidCardinality       DiagnosticCode = "INVALID_CARDINALITY"
	DiagnosticDuplicateMetadata        DiagnosticCode = "DUPLICATE_METADATA"
	DiagnosticTooManyDiagnostics       DiagnosticCode = "TOO_MANY_DIAGNOSTICS"
)

// RelatedDiagnostic adds context to a diagnostic.
type RelatedDiagnostic struct {
	Message string
	Span    text.Span
}

// Safety classifies whether a CodeSuggestion's fix may be applied
// automatically in batch (Safe) or requires explicit per-fix opt-in
// (Unsafe) — spec.md §4.8's fix-safety model.
type Safety uint8

// Safety values.
const (
	SafetyUnknown Safety = iota
	SafetySafe
	SafetyUnsafe
)

func (s Safety) String() string {
	switch s {
	case SafetySafe:
		return "Safe"
	case SafetyUnsafe:
		return "Unsafe"
	default:
		return "Unknown"
	}
}

// CodeSuggestion is a proposed text edit accompanying a Diagnostic: replace
// the bytes at Span with Replacement. Rules attach these so a caller (or
// lint.ApplyFixes) can rewrite source text without re-deriving what to
// change from the diagnostic message.
type CodeSuggestion struct {
	Message     string
	Replacement string
	Span        text.Span
	Safety      Safety
}

// Diagnostic is a unified syntax-layer diagnostic (lexer + parser). Lint
// rules (internal/lint) also produce this type, setting Category and
// Suggestions, which the lexer/parser never populate.
type Diagnostic struct {
	Code        DiagnosticCode
	Message     string
	Severity    Severity
	Span        text.Span
	Related     []RelatedDiagnostic
	Source      string // "lexer" | "parser" | lint.DiagnosticSource
	Recoverable bool
	Category    string // "correctness" | "suspicious" | "blocking" | "style", for lint rules
	Suggestions []CodeSuggestion
}

// ParseOptions control syntax parsing behavior.
type ParseOptions struct {
	URI string
	// MaxDiagnostics caps the number of parser diagnostics collected before
	// parsing continues silently. Zero selects the default of 500 (§4.3).
	MaxDiagnostics int
}

// Tree is the immutable syntax parse result: a lossless green tree plus its
// token stream and diagnostics.
type Tree struct {
	URI         string
	Source      []byte
	Tokens      []lexer.Token
	Nodes       []Node // index 0 is unused sentinel; real NodeIDs are 1-based
	Root        NodeID
	Diagnostics []Diagnostic
	LineIndex   *text.LineIndex
}

// NodeByID returns the node for id or nil if not present.
func (t *Tree) NodeByID(id NodeID) *Node {
	if t == nil || id == NoNode {
		return nil
	}
	idx := int(id)
	if idx < 0 || idx >= len(t.Nodes) {
		return nil
	}
	return &t.Nodes[idx]
}

// RootNode returns the root node or nil.
func (t *Tree) RootNode() *Node {
	return t.NodeByID(t.Root)
}

// Token returns the token at tokenIndex, or the zero Token if out of range.
func (t *Tree) Token(tokenIndex uint32) lexer.Token {
	if t == nil || int(tokenIndex) >= len(t.Tokens) {
		return lexer.Token{}
	}
	return t.Tokens[tokenIndex]
}

// NodeText returns the verbatim source text covered by a node, including
// inner trivia but excluding the node's own leading trivia.
func (t *Tree) NodeText(n *Node) []byte {
	if t == nil || n == nil || !n.Span.IsValid() {
		return nil
	}
	start, end := int(n.Span.Start), int(n.Span.End)
	if start < 0 || end > len(t.Source) || start > end {
		return nil
	}
	return t.Source[start:end]
}

// Text reconstructs the full lossless source text from tokens and their
// leading trivia: concat(Tokens.Leading + Tokens.Text) == Source.
func (t *Tree) Text() []byte {
	var out []byte
	for _, tok := range t.Tokens {
		for _, tr := range tok.Leading {
			out = append(out, tr.Bytes(t.Source)...)
		}
		out = append(out, tok.Text(t.Source)...)
	}
	return out
}

func (n Node) String() string {
	return fmt.Sprintf("Node{id=%d kind=%s span=%s tokens=%d..%d}", n.ID, KindName(n.Kind), n.Span, n.FirstToken, n.LastToken)
}
