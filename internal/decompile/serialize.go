package decompile

import "strings"

// Serialize renders ex as FSH source text: a definition header, one
// metadata clause per line, a blank line, then the rule block (§4.7 step
// 4). The text is assembled here directly rather than through the C9
// formatter in internal/format, so the output carries no caret alignment.
func Serialize(ex *Exportable) string {
	var b strings.Builder
	b.WriteString(ex.EntityKeyword)
	b.WriteString(": ")
	b.WriteString(ex.Name)
	b.WriteByte('\n')
	for _, m := range ex.Metadata {
		b.WriteString(m.Keyword)
		b.WriteString(": ")
		b.WriteString(metaLiteral(m.Keyword, m.Value))
		b.WriteByte('\n')
	}
	if len(ex.Rules) > 0 {
		b.WriteByte('\n')
		for _, r := range ex.Rules {
			b.WriteString(r.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// metaLiteral quotes a metadata value unless it's one of the bare-token
// clauses (Id, Parent, InstanceOf, Usage, Context) that FSH never quotes.
func metaLiteral(keyword, value string) string {
	switch keyword {
	case "Id", "Parent", "InstanceOf", "Usage", "Context":
		return value
	default:
		return quoteIfNeeded(value)
	}
}

func quoteIfNeeded(s string) string {
	if len(s) > 0 && s[0] == '"' {
		return s
	}
	return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
}
