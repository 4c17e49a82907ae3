// Package semantic implements the five-phase semantic pipeline (C5):
// collect, expand aliases, expand rulesets, resolve references, and
// validate structural invariants.
package semantic

import (
	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/resolve"
	"github.com/fshforge/fsh/internal/syntax"
	"github.com/fshforge/fsh/internal/text"
)

// Severity mirrors syntax.Severity so callers don't need to import both
// packages just to build a diagnostic.
type Severity = syntax.Severity

// Severity aliases for convenience.
const (
	SeverityError   = syntax.SeverityError
	SeverityWarning = syntax.SeverityWarning
	SeverityInfo    = syntax.SeverityInfo
	SeverityHint    = syntax.SeverityHint
)

// Diagnostic is a semantic-layer finding, keyed by a stable rule id rather
// than the syntax package's closed DiagnosticCode enum (C5's rule set is
// open-ended and extended by C8's lint rule families).
type Diagnostic struct {
	Rule     string
	Message  string
	Severity Severity
	Span     text.Span
}

// Symbol is one top-level named entity collected from the CST.
type Symbol struct {
	Name   string
	Kind   syntax.NodeKind
	Entity ast.Entity
}

// SymbolTable indexes every top-level definition by name. Duplicate names
// are retained (both occurrences appended) per §4.5 phase 1; diagnosing
// the duplicate is phase 5's job, not the table's.
type SymbolTable struct {
	byName map[string][]*Symbol
	all    []*Symbol
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{byName: make(map[string][]*Symbol)}
}

// Add registers sym under its name.
func (t *SymbolTable) Add(sym *Symbol) {
	t.byName[sym.Name] = append(t.byName[sym.Name], sym)
	t.all = append(t.all, sym)
}

// Lookup returns every symbol registered under name (usually one, more
// than one only for a duplicate definition).
func (t *SymbolTable) Lookup(name string) []*Symbol {
	return t.byName[name]
}

// All returns every collected symbol in source order.
func (t *SymbolTable) All() []*Symbol {
	return t.all
}

// AliasTable maps an FSH "$Name" alias to its substituted value text.
type AliasTable struct {
	values map[string]string
}

// NewAliasTable returns an empty table.
func NewAliasTable() *AliasTable {
	return &AliasTable{values: make(map[string]string)}
}

// Define records name (including its leading '$') -> value.
func (t *AliasTable) Define(name, value string) {
	t.values[name] = value
}

// Resolve returns the substituted value for name, if defined.
func (t *AliasTable) Resolve(name string) (string, bool) {
	v, ok := t.values[name]
	return v, ok
}

// Model is the semantic pipeline's accumulated state and result.
type Model struct {
	Tree        *syntax.Tree
	Symbols     *SymbolTable
	Aliases     *AliasTable
	RuleSets    map[string]ast.Definition
	Resolver    resolve.Fishable
	Invariants  *InvariantRegistry
	Slicing     *SlicingEngine
	AliasUses   map[int]AliasUse
	// ExpandedInserts holds, per InsertRule/CodeInsertRule node id, the flat
	// rule-line text produced by fully expanding that insert's RuleSet
	// (recursively, for nested inserts). Populated by expandRuleSets.
	ExpandedInserts map[syntax.NodeID][]string
	Diagnostics     []Diagnostic
}

// NewModel creates an empty Model ready for Run. resolver may be nil, in
// which case reference resolution only consults the local symbol table.
func NewModel(tree *syntax.Tree, resolver resolve.Fishable) *Model {
	return &Model{
		Tree:       tree,
		Symbols:    NewSymbolTable(),
		Aliases:    NewAliasTable(),
		RuleSets:   make(map[string]ast.Definition),
		Resolver:   resolver,
		Invariants: NewInvariantRegistry(),
		Slicing:    NewSlicingEngine(),
	}
}

func (m *Model) addDiagnostic(d Diagnostic) {
	m.Diagnostics = append(m.Diagnostics, d)
}

// Run executes all five phases in order and returns the populated Model.
func Run(tree *syntax.Tree, resolver resolve.Fishable) *Model {
	m := NewModel(tree, resolver)
	doc, ok := ast.CastDocument(tree)
	if !ok {
		return m
	}
	m.collect(doc)
	m.expandAliases(doc)
	m.expandRuleSets(doc)
	m.resolveReferences(doc)
	m.validate(doc)
	m.validateBindingStrengths(doc)
	return m
}

// definitionRuleKinds lists the definition kinds that carry rules and
// metadata subject to phase-5 structural validation (every top-level kind
// except Alias, which validate never sees since it has no Definition view).
var definitionRuleKinds = map[syntax.NodeKind]bool{
	syntax.KindProfile:    true,
	syntax.KindExtension:  true,
	syntax.KindValueSet:   true,
	syntax.KindCodeSystem: true,
	syntax.KindInstance:   true,
	syntax.KindInvariant:  true,
	syntax.KindMapping:    true,
	syntax.KindLogical:    true,
	syntax.KindResource:   true,
	syntax.KindRuleSet:    true,
}
