// Package lexer provides a lossless token/trivia lexer for FHIR Shorthand (FSH) source.
package lexer

import (
	"fmt"

	"github.com/fshforge/fsh/internal/text"
)

// TokenKind identifies the syntactic category of a token.
type TokenKind uint16

// TokenKind values used by the FSH lexer.
const (
	TokenError TokenKind = iota
	TokenEOF

	// Literals.
	TokenIdentifier
	TokenString
	TokenMultilineString
	TokenInteger
	TokenDecimal
	TokenCode // system#code or #code
	TokenDate
	TokenDateTime
	TokenTime
	TokenUnit // 'ucum-ish unit'

	// Definition keywords.
	TokenKwAlias
	TokenKwProfile
	TokenKwExtension
	TokenKwValueSet
	TokenKwCodeSystem
	TokenKwInstance
	TokenKwInvariant
	TokenKwMapping
	TokenKwLogical
	TokenKwResource
	TokenKwRuleSet

	// Metadata keywords.
	TokenKwParent
	TokenKwId
	TokenKwTitle
	TokenKwDescription
	TokenKwInstanceOf
	TokenKwUsage
	TokenKwContext
	TokenKwCharacteristics
	TokenKwSource
	TokenKwTarget
	TokenKwExpression
	TokenKwSeverity
	TokenKwXPath

	// Rule keywords.
	TokenKwFrom
	TokenKwContains
	TokenKwAnd
	TokenKwOr
	TokenKwObeys
	TokenKwInsert
	TokenKwOnly
	TokenKwNamed
	TokenKwTrue
	TokenKwFalse

	// Flags.
	TokenFlagMS
	TokenFlagSU
	TokenFlagTU
	TokenFlagNormative
	TokenFlagDraft

	// Binding strength.
	TokenStrengthExample
	TokenStrengthPreferred
	TokenStrengthExtensible
	TokenStrengthRequired

	// Punctuation.
	TokenStar      // '*'
	TokenColon     // ':'
	TokenEquals    // '='
	TokenDot       // '.'
	TokenDotDot    // '..'
	TokenLParen    // '('
	TokenRParen    // ')'
	TokenLBracket  // '['
	TokenRBracket  // ']'
	TokenLBrace    // '{'
	TokenRBrace    // '}'
	TokenComma     // ','
	TokenCaret     // '^'
	TokenDollar    // '$'
	TokenArrow     // '->'
	TokenModifier  // '?!'
	TokenHash      // '#'; never emitted by Lex, which lexes "#code" and "system#code" as TokenCode
	TokenSoftIndex // '[+]' index placeholder, kept as its own token for path segments
	TokenReuse     // '[=]' reuse placeholder, kept as its own token for path segments
)

var tokenKindNames = map[TokenKind]string{
	TokenError:              "Error",
	TokenEOF:                "EOF",
	TokenIdentifier:         "Identifier",
	TokenString:             "String",
	TokenMultilineString:    "MultilineString",
	TokenInteger:            "Integer",
	TokenDecimal:            "Decimal",
	TokenCode:               "Code",
	TokenDate:               "Date",
	TokenDateTime:           "DateTime",
	TokenTime:               "Time",
	TokenUnit:               "Unit",
	TokenKwAlias:            "KwAlias",
	TokenKwProfile:          "KwProfile",
	TokenKwExtension:        "KwExtension",
	TokenKwValueSet:         "KwValueSet",
	TokenKwCodeSystem:       "KwCodeSystem",
	TokenKwInstance:         "KwInstance",
	TokenKwInvariant:        "KwInvariant",
	TokenKwMapping:          "KwMapping",
	TokenKwLogical:          "KwLogical",
	TokenKwResource:         "KwResource",
	TokenKwRuleSet:          "KwRuleSet",
	TokenKwParent:           "KwParent",
	TokenKwId:               "KwId",
	TokenKwTitle:            "KwTitle",
	TokenKwDescription:      "KwDescription",
	TokenKwInstanceOf:       "KwInstanceOf",
	TokenKwUsage:            "KwUsage",
	TokenKwContext:          "KwContext",
	TokenKwCharacteristics:  "KwCharacteristics",
	TokenKwSource:           "KwSource",
	TokenKwTarget:           "KwTarget",
	TokenKwExpression:       "KwExpression",
	TokenKwSeverity:         "KwSeverity",
	TokenKwXPath:            "KwXPath",
	TokenKwFrom:             "KwFrom",
	TokenKwContains:         "KwContains",
	TokenKwAnd:              "KwAnd",
	TokenKwOr:               "KwOr",
	TokenKwObeys:            "KwObeys",
	TokenKwInsert:           "KwInsert",
	TokenKwOnly:             "KwOnly",
	TokenKwNamed:            "KwNamed",
	TokenKwTrue:             "KwTrue",
	TokenKwFalse:            "KwFalse",
	TokenFlagMS:             "FlagMS",
	TokenFlagSU:             "FlagSU",
	TokenFlagTU:             "FlagTU",
	TokenFlagNormative:      "FlagNormative",
	TokenFlagDraft:          "FlagDraft",
	TokenStrengthExample:    "StrengthExample",
	TokenStrengthPreferred:  "StrengthPreferred",
	TokenStrengthExtensible: "StrengthExtensible",
	TokenStrengthRequired:   "StrengthRequired",
	TokenStar:               "Star",
	TokenColon:              "Colon",
	TokenEquals:             "Equals",
	TokenDot:                "Dot",
	TokenDotDot:             "DotDot",
	TokenLParen:             "LParen",
	TokenRParen:             "RParen",
	TokenLBracket:           "LBracket",
	TokenRBracket:           "RBracket",
	TokenLBrace:             "LBrace",
	TokenRBrace:             "RBrace",
	TokenComma:              "Comma",
	TokenCaret:              "Caret",
	TokenDollar:             "Dollar",
	TokenArrow:              "Arrow",
	TokenModifier:           "Modifier",
	TokenHash:               "Hash",
	TokenSoftIndex:          "SoftIndex",
	TokenReuse:              "Reuse",
}

func (k TokenKind) String() string {
	if name, ok := tokenKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TokenKind(%d)", k)
}

// keywordKinds maps exact lowercase/PascalCase spellings to their keyword kind.
// FSH keywords are case-sensitive (per the grammar); only the exact spellings
// below are reclassified away from TokenIdentifier.
var keywordKinds = map[string]TokenKind{
	"Alias":           TokenKwAlias,
	"Profile":         TokenKwProfile,
	"Extension":       TokenKwExtension,
	"ValueSet":        TokenKwValueSet,
	"CodeSystem":      TokenKwCodeSystem,
	"Instance":        TokenKwInstance,
	"Invariant":       TokenKwInvariant,
	"Mapping":         TokenKwMapping,
	"Logical":         TokenKwLogical,
	"Resource":        TokenKwResource,
	"RuleSet":         TokenKwRuleSet,
	"Parent":          TokenKwParent,
	"Id":              TokenKwId,
	"Title":           TokenKwTitle,
	"Description":     TokenKwDescription,
	"InstanceOf":      TokenKwInstanceOf,
	"Usage":           TokenKwUsage,
	"Context":         TokenKwContext,
	"Characteristics": TokenKwCharacteristics,
	"Source":          TokenKwSource,
	"Target":          TokenKwTarget,
	"Expression":      TokenKwExpression,
	"Severity":        TokenKwSeverity,
	"XPath":           TokenKwXPath,
	"from":            TokenKwFrom,
	"contains":        TokenKwContains,
	"and":             TokenKwAnd,
	"or":              TokenKwOr,
	"obeys":           TokenKwObeys,
	"insert":          TokenKwInsert,
	"only":            TokenKwOnly,
	"named":           TokenKwNamed,
	"true":            TokenKwTrue,
	"false":           TokenKwFalse,
	"MS":              TokenFlagMS,
	"SU":              TokenFlagSU,
	"TU":              TokenFlagTU,
	"N":               TokenFlagNormative,
	"D":               TokenFlagDraft,
	"example":         TokenStrengthExample,
	"preferred":       TokenStrengthPreferred,
	"extensible":      TokenStrengthExtensible,
	"required":        TokenStrengthRequired,
}

// TokenFlags carry metadata about the token source or origin.
type TokenFlags uint8

// TokenFlags values describe token provenance or recovery state.
const (
	TokenFlagMalformed TokenFlags = 1 << iota
	TokenFlagSynthesized
)

// Token is a single lexical unit with its leading trivia.
type Token struct {
	Kind    TokenKind
	Span    text.Span
	Flags   TokenFlags
	Leading []Trivia
}

// Text returns the token's source bytes.
func (t Token) Text(src []byte) []byte {
	return bytesForSpan(src, t.Span)
}

func bytesForSpan(src []byte, sp text.Span) []byte {
	if !sp.IsValid() {
		return nil
	}
	start, end := int(sp.Start), int(sp.End)
	if start < 0 || end > len(src) || start > end {
		return nil
	}
	return src[start:end]
}
