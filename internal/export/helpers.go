package export

import (
	"strings"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/lexer"
)

// keywordByName maps the metadata clause names used throughout this package
// to their token kind, since ast.Definition.Metadata keys on lexer.TokenKind
// rather than a string.
var keywordByName = map[string]lexer.TokenKind{
	"Parent":          lexer.TokenKwParent,
	"Id":              lexer.TokenKwId,
	"Title":           lexer.TokenKwTitle,
	"Description":     lexer.TokenKwDescription,
	"InstanceOf":      lexer.TokenKwInstanceOf,
	"Usage":           lexer.TokenKwUsage,
	"Context":         lexer.TokenKwContext,
	"Characteristics": lexer.TokenKwCharacteristics,
	"Source":          lexer.TokenKwSource,
	"Target":          lexer.TokenKwTarget,
}

// metaValue returns the unquoted value text of the named metadata clause, or
// "" if the clause was never specified.
func metaValue(def ast.Definition, keyword string) string {
	kind, ok := keywordByName[keyword]
	if !ok {
		return ""
	}
	mc, ok := def.Metadata(kind)
	if !ok {
		return ""
	}
	return unquote(mc.Value())
}

// metaPresent reports whether the named metadata clause was specified.
func metaPresent(def ast.Definition, keyword string) bool {
	kind, ok := keywordByName[keyword]
	if !ok {
		return false
	}
	_, ok = def.Metadata(kind)
	return ok
}

// orDefault returns s unless it's empty, in which case it returns def.
func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// unquote strips a metadata value's surrounding FSH string-literal quotes,
// leaving bare identifiers (resource names, canonical URLs, codes) untouched.
func unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	return s[1 : len(s)-1]
}

// pathSegments splits a dotted element path into its component names,
// ignoring bracketed slice selectors for the purpose of prefix rewriting
// (the selector travels with its owning segment verbatim).
func pathSegments(path string) []string {
	return strings.Split(path, ".")
}

// rewritePathPrefix replaces the leading type name of a dotted path, used
// when cloning a logical/resource's base snapshot under a new type name
// (§4.6 "Logical/Resource specifics": BaseType.x -> NewType.x).
func rewritePathPrefix(path, oldPrefix, newPrefix string) string {
	if path == oldPrefix {
		return newPrefix
	}
	if strings.HasPrefix(path, oldPrefix+".") {
		return newPrefix + path[len(oldPrefix):]
	}
	return path
}
