package lint

import (
	"github.com/fshforge/fsh/internal/syntax"
	"github.com/fshforge/fsh/internal/text"
)

// FixConflict records two Safe suggestions that target the same span with
// different replacement text (spec.md §4.8: "two Safe fixes whose
// replacements differ raise conflicting-fixes and neither is applied").
type FixConflict struct {
	Span text.Span
	A, B syntax.CodeSuggestion
}

// ApplyFixes applies suggestions to src. For a set of non-overlapping
// suggestions, the result is the same whether edits are applied in
// descending or ascending start-offset order (spec.md §4.8's "applied in
// descending start-offset order so that earlier offsets remain valid" is
// one correct strategy among several for the same invariant); ApplyFixes
// reaches that result via text.ApplyEdits's ascending cursor walk instead.
//
// Unsafe suggestions are dropped unless allowUnsafe is set. When two
// suggestions target the exact same span with differing replacement text,
// neither is applied and the pair is reported in the returned conflicts; a
// duplicate suggestion (same span, same replacement) is silently merged
// into a single edit.
func ApplyFixes(src []byte, suggestions []syntax.CodeSuggestion, allowUnsafe bool) ([]byte, []FixConflict, error) {
	bySpan := make(map[text.Span][]syntax.CodeSuggestion)
	var order []text.Span
	for _, s := range suggestions {
		if s.Safety == syntax.SafetyUnsafe && !allowUnsafe {
			continue
		}
		if _, seen := bySpan[s.Span]; !seen {
			order = append(order, s.Span)
		}
		bySpan[s.Span] = append(bySpan[s.Span], s)
	}

	var conflicts []FixConflict
	edits := make([]text.ByteEdit, 0, len(order))
	for _, span := range order {
		group := bySpan[span]
		replacement := group[0].Replacement
		conflicted := false
		for _, s := range group[1:] {
			if s.Replacement != replacement {
				conflicts = append(conflicts, FixConflict{Span: span, A: group[0], B: s})
				conflicted = true
			}
		}
		if conflicted {
			continue
		}
		edits = append(edits, text.ByteEdit{Span: span, NewText: []byte(replacement)})
	}

	out, err := text.ApplyEdits(src, edits)
	if err != nil {
		return nil, conflicts, err
	}
	return out, conflicts, nil
}

// SafeSuggestions filters diags down to the Safe suggestions eligible for
// unattended batch application.
func SafeSuggestions(diags []syntax.Diagnostic) []syntax.CodeSuggestion {
	var out []syntax.CodeSuggestion
	for _, d := range diags {
		for _, s := range d.Suggestions {
			if s.Safety == syntax.SafetySafe {
				out = append(out, s)
			}
		}
	}
	return out
}
