package pattern

import (
	"testing"

	"github.com/fshforge/fsh/internal/parser"
	"github.com/fshforge/fsh/internal/syntax"
)

func TestFindAllMatchesEveryNodeOfTheConfiguredKind(t *testing.T) {
	t.Parallel()

	p, err := Compile("kind: ValueSetRule\nmatch: `* $path from $vs ($strength)`\n")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	src := []byte("Profile: MyObs\nParent: Observation\n\n" +
		"* code from LabCodesVS (required)\n" +
		"* category from CategoryVS (extensible)\n")
	tree := parser.Parse(src, syntax.ParseOptions{URI: "test.fsh"})

	matches := p.FindAll(tree)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(matches), matches)
	}

	byPath := map[string]Match{}
	for _, m := range matches {
		byPath[m.Captures["path"]] = m
	}
	if byPath["code"].Captures["strength"] != "required" {
		t.Fatalf("code strength = %q", byPath["code"].Captures["strength"])
	}
	if byPath["category"].Captures["vs"] != "CategoryVS" {
		t.Fatalf("category vs = %q", byPath["category"].Captures["vs"])
	}
}

func TestFindAllReturnsNothingForAnUnmatchedKind(t *testing.T) {
	t.Parallel()

	p, err := Compile("kind: ContainsRule\nmatch: `* $path contains $slice`\n")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	src := []byte("Profile: MyObs\nParent: Observation\n\n* code from LabCodesVS (required)\n")
	tree := parser.Parse(src, syntax.ParseOptions{URI: "test.fsh"})

	if matches := p.FindAll(tree); len(matches) != 0 {
		t.Fatalf("expected no matches, got %+v", matches)
	}
}

func TestFindAllAppliesWhereClauseAcrossNodes(t *testing.T) {
	t.Parallel()

	p, err := Compile(
		"kind: ValueSetRule\n" +
			"match: `* $path from $vs ($strength)`\n" +
			"where: $strength == \"extensible\"\n",
	)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	src := []byte("Profile: MyObs\nParent: Observation\n\n" +
		"* code from LabCodesVS (required)\n" +
		"* category from CategoryVS (extensible)\n")
	tree := parser.Parse(src, syntax.ParseOptions{URI: "test.fsh"})

	matches := p.FindAll(tree)
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d: %+v", len(matches), matches)
	}
	if matches[0].Captures["path"] != "category" {
		t.Fatalf("path = %q, want %q", matches[0].Captures["path"], "category")
	}
}
