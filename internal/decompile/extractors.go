package decompile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fshforge/fsh/internal/fhir"
)

// extractOnlyType renders a type-choice/reference constraint as a FSH
// "only" rule. Covers both plain type narrowing ("only string") and
// reference/profile narrowing ("only Reference(USCorePatient)").
func extractOnlyType(e fhir.ElementDefinition, v *elementView) string {
	if len(e.Types) == 0 || !v.take("types") {
		return ""
	}
	parts := make([]string, 0, len(e.Types))
	for _, t := range e.Types {
		parts = append(parts, typeRefText(t))
	}
	return fmt.Sprintf("* %s only %s", v.path, strings.Join(parts, " or "))
}

func typeRefText(t fhir.TypeRef) string {
	if len(t.TargetProfile) > 0 {
		return fmt.Sprintf("Reference(%s)", strings.Join(profileNames(t.TargetProfile), " or "))
	}
	if len(t.Profile) > 0 {
		return fmt.Sprintf("%s(%s)", t.Code, strings.Join(profileNames(t.Profile), " or "))
	}
	return t.Code
}

// profileNames reduces a slice of canonical profile URLs to their trailing
// path segment, FSH's conventional bare-name reference form.
func profileNames(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if idx := strings.LastIndexByte(u, '/'); idx >= 0 {
			out = append(out, u[idx+1:])
		} else {
			out = append(out, u)
		}
	}
	return out
}

// extractBinding renders a terminology binding as a FSH "from" rule.
func extractBinding(e fhir.ElementDefinition, v *elementView) string {
	if e.Binding == nil || e.Binding.ValueSet == "" || !v.take("binding") {
		return ""
	}
	return fmt.Sprintf("* %s from %s (%s)", v.path, valueSetRef(e.Binding.ValueSet), e.Binding.Strength)
}

func valueSetRef(url string) string {
	if idx := strings.LastIndexByte(url, '/'); idx >= 0 {
		return url[idx+1:]
	}
	return url
}

// extractCardinalityFlag renders min/max cardinality combined with the
// MS/SU/?! flag letters on one line, as SUSHI does by convention. N/D/TU
// have no ElementDefinition field here and are never rendered.
func extractCardinalityFlag(e fhir.ElementDefinition, v *elementView) string {
	if v.cardDone || !v.take("cardinality") {
		return ""
	}
	card := ""
	if e.Min != 0 || !e.MaxUnbounded {
		card = strconv.Itoa(e.Min) + ".." + e.MaxString()
	}
	flags := flagLetters(e)
	switch {
	case card == "" && flags == "":
		return ""
	case card == "":
		return fmt.Sprintf("* %s %s", v.path, flags)
	case flags == "":
		return fmt.Sprintf("* %s %s", v.path, card)
	default:
		return fmt.Sprintf("* %s %s %s", v.path, card, flags)
	}
}

func flagLetters(e fhir.ElementDefinition) string {
	var letters []string
	if e.MustSupport {
		letters = append(letters, "MS")
	}
	if e.IsSummary {
		letters = append(letters, "SU")
	}
	if e.IsModifier {
		letters = append(letters, "?!")
	}
	return strings.Join(letters, " ")
}

// extractAssignment renders a fixed/pattern value as a FSH "=" rule,
// appending "(exactly)" for a fixed (closed) value per FSH convention.
func extractAssignment(e fhir.ElementDefinition, v *elementView) string {
	switch {
	case e.Fixed != nil && v.take("fixed"):
		return fmt.Sprintf("* %s = %s (exactly)", v.path, valueLiteral(e.Fixed))
	case e.Pattern != nil && v.take("pattern"):
		return fmt.Sprintf("* %s = %s", v.path, valueLiteral(e.Pattern))
	}
	return ""
}

func valueLiteral(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int:
		return strconv.Itoa(val)
	case map[string]any:
		if code, ok := val["code"].(string); ok {
			system, _ := val["system"].(string)
			if system != "" {
				return system + "#" + code
			}
			return "#" + code
		}
		return "{}"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// extractCaretValue renders short/definition/comment as caret rules. These
// are the only caret-equivalent fields left on a differential element once
// cardinality, flags, binding, and type are peeled off by earlier passes.
func extractCaretValue(e fhir.ElementDefinition, v *elementView) []string {
	var out []string
	if e.Short != "" && v.take("short") {
		out = append(out, fmt.Sprintf("* %s ^short = %s", v.path, strconv.Quote(e.Short)))
	}
	if e.Definition != "" && v.take("definition") {
		out = append(out, fmt.Sprintf("* %s ^definition = %s", v.path, strconv.Quote(e.Definition)))
	}
	if e.Comment != "" && v.take("comment") {
		out = append(out, fmt.Sprintf("* %s ^comment = %s", v.path, strconv.Quote(e.Comment)))
	}
	return out
}

// extractObeys renders the element's invariant keys as one "obeys" rule
// joining multiple keys with "and", matching FSH's compact form.
func extractObeys(e fhir.ElementDefinition, v *elementView) string {
	if len(e.Constraints) == 0 || !v.take("constraints") {
		return ""
	}
	keys := make([]string, 0, len(e.Constraints))
	for _, c := range e.Constraints {
		keys = append(keys, c.Key)
	}
	return fmt.Sprintf("* %s obeys %s", v.path, strings.Join(keys, " and "))
}

// extractMapping renders each mapping target as its own "->" rule; FSH has
// no combined multi-target mapping syntax.
func extractMapping(e fhir.ElementDefinition, v *elementView) []string {
	if len(e.Mappings) == 0 || !v.take("mappings") {
		return nil
	}
	out := make([]string, 0, len(e.Mappings))
	for _, m := range e.Mappings {
		line := fmt.Sprintf("* %s -> %q", v.path, m.Map)
		if m.Comment != "" {
			line += fmt.Sprintf(" %q", m.Comment)
		}
		out = append(out, line)
	}
	return out
}

// extractAddElement renders a wholly new Logical/Resource element as a
// single combined "0..1 Type \"Short\" \"Definition\"" line, the AddElement
// rule form, rather than running the constrain-an-existing-element
// extractors above (there is no base element to diff against).
func extractAddElement(e fhir.ElementDefinition, v *elementView) string {
	card := strconv.Itoa(e.Min) + ".." + e.MaxString()
	typeNames := make([]string, 0, len(e.Types))
	for _, t := range e.Types {
		typeNames = append(typeNames, typeRefText(t))
	}
	line := fmt.Sprintf("* %s %s", v.path, card)
	if flags := flagLetters(e); flags != "" {
		line += " " + flags
	}
	if len(typeNames) > 0 {
		line += " " + strings.Join(typeNames, " or ")
	}
	if e.Short != "" {
		line += " " + strconv.Quote(e.Short)
	}
	if e.Definition != "" && e.Definition != e.Short {
		line += " " + strconv.Quote(e.Definition)
	}
	v.consumed["types"] = true
	v.consumed["short"] = true
	v.consumed["definition"] = true
	v.cardDone = true
	return line
}
