package decompile

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fshforge/fsh/internal/fhir"
)

// optimizerPass is one idempotent cleanup step (§4.7 step 3). Each pass
// returns the rewritten rule set and whether it changed anything, so the
// fixed-point loop can stop as soon as a full registry pass is a no-op.
type optimizerPass func(rules []EmittedRule, parentElements map[string]fhir.ElementDefinition) ([]EmittedRule, bool)

// registry lists the passes in the order §4.7 step 3 describes them.
var registry = []optimizerPass{
	removeDuplicateRules,
	combineCardinalityAndFlagLines,
	canonicalizeCardinalitySpacing,
	collapseZeroZeroRemovals,
	combineAdjacentContains,
	removeGeneratedNarrative,
	stripImpliedExtensionURLs,
	simplifyArrayIndexing,
	removeImpossibleChoiceSlicing,
	dropRedundantCardinalityImpliedByParent,
}

// maxOptimizeIterations bounds the fixed-point loop; the registry is small
// and every pass is monotonically size-reducing or text-rewriting, so
// convergence in practice happens in 1-2 iterations. This is a backstop
// against an unforeseen oscillation, not an expected ceiling.
const maxOptimizeIterations = 10

// optimize applies the registry to fixed point: "applying the registry
// twice equals applying it once" (§4.7 contracts).
func optimize(rules []EmittedRule, parentElements map[string]fhir.ElementDefinition) []EmittedRule {
	for i := 0; i < maxOptimizeIterations; i++ {
		changedAny := false
		for _, pass := range registry {
			next, changed := pass(rules, parentElements)
			rules = next
			changedAny = changedAny || changed
		}
		if !changedAny {
			break
		}
	}
	return rules
}

func removeDuplicateRules(rules []EmittedRule, _ map[string]fhir.ElementDefinition) ([]EmittedRule, bool) {
	seen := make(map[string]bool, len(rules))
	out := make([]EmittedRule, 0, len(rules))
	changed := false
	for _, r := range rules {
		if seen[r.Text] {
			changed = true
			continue
		}
		seen[r.Text] = true
		out = append(out, r)
	}
	return out, changed
}

var cardOnlyRE = regexp.MustCompile(`^\* (\S+) (\d+\.\.(?:\d+|\*))$`)
var flagOnlyRE = regexp.MustCompile(`^\* (\S+) ((?:MS|SU|\?!)(?: (?:MS|SU|\?!))*)$`)

// combineCardinalityAndFlagLines merges a standalone cardinality line and a
// standalone flag line sharing the same path into the one-line form the
// Cardinality/Flag extractor normally produces directly; this only fires
// when two extractors independently contributed to the same path (e.g. a
// slice's own remaining flags emitted after its contains-line cardinality).
func combineCardinalityAndFlagLines(rules []EmittedRule, _ map[string]fhir.ElementDefinition) ([]EmittedRule, bool) {
	cardByPath := map[string]int{}
	flagByPath := map[string]int{}
	for i, r := range rules {
		if cardOnlyRE.MatchString(r.Text) {
			cardByPath[r.Path] = i
		}
		if flagOnlyRE.MatchString(r.Text) {
			flagByPath[r.Path] = i
		}
	}
	mergeAt := map[int]int{} // flag-line index -> cardinality-line index
	skip := map[int]bool{}
	for path, fi := range flagByPath {
		if ci, ok := cardByPath[path]; ok {
			mergeAt[fi] = ci
			skip[ci] = true
		}
	}
	if len(mergeAt) == 0 {
		return rules, false
	}
	out := make([]EmittedRule, 0, len(rules))
	changed := false
	for i, r := range rules {
		if skip[i] {
			changed = true
			continue
		}
		if ci, ok := mergeAt[i]; ok {
			cm := cardOnlyRE.FindStringSubmatch(rules[ci].Text)
			fm := flagOnlyRE.FindStringSubmatch(r.Text)
			out = append(out, EmittedRule{Path: r.Path, Text: "* " + cm[1] + " " + cm[2] + " " + fm[2]})
			changed = true
			continue
		}
		out = append(out, r)
	}
	return out, changed
}

var doubleSpaceRE = regexp.MustCompile(`  +`)

func canonicalizeCardinalitySpacing(rules []EmittedRule, _ map[string]fhir.ElementDefinition) ([]EmittedRule, bool) {
	changed := false
	for i, r := range rules {
		norm := strings.TrimRight(doubleSpaceRE.ReplaceAllString(r.Text, " "), " ")
		if norm != r.Text {
			rules[i].Text = norm
			changed = true
		}
	}
	return rules, changed
}

// collapseZeroZeroRemovals keeps a "0..0" removal line as the sole
// statement for its path, dropping any other rule that would otherwise
// constrain an element that no longer exists.
func collapseZeroZeroRemovals(rules []EmittedRule, _ map[string]fhir.ElementDefinition) ([]EmittedRule, bool) {
	removed := map[string]bool{}
	for _, r := range rules {
		if strings.HasSuffix(r.Text, " 0..0") {
			removed[r.Path] = true
		}
	}
	if len(removed) == 0 {
		return rules, false
	}
	out := make([]EmittedRule, 0, len(rules))
	changed := false
	for _, r := range rules {
		if removed[r.Path] && !strings.HasSuffix(r.Text, " 0..0") {
			changed = true
			continue
		}
		out = append(out, r)
	}
	return out, changed
}

var containsRE = regexp.MustCompile(`^\* (\S+) contains (.+)$`)

// combineAdjacentContains merges consecutive "contains" rules for the same
// path into one, joining their slice lists with "and".
func combineAdjacentContains(rules []EmittedRule, _ map[string]fhir.ElementDefinition) ([]EmittedRule, bool) {
	out := make([]EmittedRule, 0, len(rules))
	changed := false
	for _, r := range rules {
		if m := containsRE.FindStringSubmatch(r.Text); m != nil && len(out) > 0 {
			if pm := containsRE.FindStringSubmatch(out[len(out)-1].Text); pm != nil && pm[1] == m[1] {
				out[len(out)-1].Text = "* " + m[1] + " contains " + pm[2] + " and " + m[2]
				changed = true
				continue
			}
		}
		out = append(out, r)
	}
	return out, changed
}

// removeGeneratedNarrative drops rules targeting the auto-generated
// narrative element, never meaningfully hand-authored in FSH.
func removeGeneratedNarrative(rules []EmittedRule, _ map[string]fhir.ElementDefinition) ([]EmittedRule, bool) {
	out := make([]EmittedRule, 0, len(rules))
	changed := false
	for _, r := range rules {
		if r.Path == "text" || strings.HasPrefix(r.Path, "text.") {
			changed = true
			continue
		}
		out = append(out, r)
	}
	return out, changed
}

var onlyReferenceExtensionRE = regexp.MustCompile(`^\* extension only Reference\((.+)\)$`)

// stripImpliedExtensionURLs drops a bare "extension only Reference(...)"
// line once a contains rule on the same unsliced "extension" path already
// names every slice, since the slice's own profile is implied by its
// bracketed name rather than needing a parallel only-type constraint.
func stripImpliedExtensionURLs(rules []EmittedRule, _ map[string]fhir.ElementDefinition) ([]EmittedRule, bool) {
	hasContains := false
	for _, r := range rules {
		if r.Path == "extension" && strings.HasPrefix(r.Text, "* extension contains ") {
			hasContains = true
		}
	}
	if !hasContains {
		return rules, false
	}
	out := make([]EmittedRule, 0, len(rules))
	changed := false
	for _, r := range rules {
		if r.Path == "extension" && onlyReferenceExtensionRE.MatchString(r.Text) {
			changed = true
			continue
		}
		out = append(out, r)
	}
	return out, changed
}

var indexedSegmentRE = regexp.MustCompile(`\[(\d+)\]`)

// simplifyArrayIndexing drops an explicit "[0]" index from a path when no
// sibling rule uses a different explicit index at the same base path,
// since an unambiguous single occurrence needs no index at all.
func simplifyArrayIndexing(rules []EmittedRule, _ map[string]fhir.ElementDefinition) ([]EmittedRule, bool) {
	indices := map[string]map[string]bool{}
	for _, r := range rules {
		base, idx, ok := splitIndexedPath(r.Path)
		if !ok {
			continue
		}
		if indices[base] == nil {
			indices[base] = map[string]bool{}
		}
		indices[base][idx] = true
	}
	changed := false
	out := make([]EmittedRule, len(rules))
	for i, r := range rules {
		base, idx, ok := splitIndexedPath(r.Path)
		if ok && idx == "0" && len(indices[base]) == 1 {
			newPath := strings.Replace(r.Path, "[0]", "", 1)
			newText := strings.Replace(r.Text, r.Path, newPath, 1)
			if newText != r.Text {
				changed = true
			}
			out[i] = EmittedRule{Path: newPath, Text: newText}
			continue
		}
		out[i] = r
	}
	return out, changed
}

func splitIndexedPath(path string) (base, idx string, ok bool) {
	m := indexedSegmentRE.FindStringSubmatchIndex(path)
	if m == nil {
		return "", "", false
	}
	return path[:m[0]] + path[m[1]:], path[m[2]:m[3]], true
}

// removeImpossibleChoiceSlicing drops a duplicate slice name appearing
// twice within the same contains rule (an impossible two-slices-one-name
// shape that can only have arisen from a malformed merge upstream).
func removeImpossibleChoiceSlicing(rules []EmittedRule, _ map[string]fhir.ElementDefinition) ([]EmittedRule, bool) {
	changed := false
	for i, r := range rules {
		m := containsRE.FindStringSubmatch(r.Text)
		if m == nil {
			continue
		}
		items := strings.Split(m[2], " and ")
		seen := map[string]bool{}
		deduped := make([]string, 0, len(items))
		for _, item := range items {
			name := strings.Fields(item)[0]
			if seen[name] {
				changed = true
				continue
			}
			seen[name] = true
			deduped = append(deduped, item)
		}
		if len(deduped) != len(items) {
			rules[i].Text = "* " + m[1] + " contains " + strings.Join(deduped, " and ")
		}
	}
	return rules, changed
}

// dropRedundantCardinalityImpliedByParent removes a pure cardinality line
// whose min/max exactly matches the parent snapshot's element at the same
// path, since re-stating an inherited cardinality constrains nothing.
func dropRedundantCardinalityImpliedByParent(rules []EmittedRule, parentElements map[string]fhir.ElementDefinition) ([]EmittedRule, bool) {
	if len(parentElements) == 0 {
		return rules, false
	}
	out := make([]EmittedRule, 0, len(rules))
	changed := false
	for _, r := range rules {
		m := cardOnlyRE.FindStringSubmatch(r.Text)
		if m == nil {
			out = append(out, r)
			continue
		}
		parent, ok := parentElements[r.Path]
		if !ok || parent.Min != parseMin(m[2]) || parent.MaxString() != parseMax(m[2]) {
			out = append(out, r)
			continue
		}
		changed = true
	}
	return out, changed
}

func parseMin(card string) int {
	n, _ := strconv.Atoi(strings.SplitN(card, "..", 2)[0])
	return n
}

func parseMax(card string) string {
	parts := strings.SplitN(card, "..", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
