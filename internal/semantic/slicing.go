package semantic

import "strings"

// SlicingDiscriminator is one "type/path" pair from a slicing discriminator.
type SlicingDiscriminator struct {
	Type string // "value" | "pattern" | "exists" | "type" | "profile"
	Path string
}

// SlicingConfiguration records one element path's slicing intent, built
// either from an explicit "^slicing..." caret rule or inferred from a
// ContainsRule per the element-type discriminator table below.
type SlicingConfiguration struct {
	ElementPath    string
	Rules          string // "open" | "closed" | "openAtEnd"
	Discriminators []SlicingDiscriminator
	Slices         []string
}

// SlicingEngine tracks one SlicingConfiguration per sliced element path and
// infers a default discriminator when a ContainsRule introduces slices
// without an explicit "^slicing" caret rule overriding it.
type SlicingEngine struct {
	byPath map[string]*SlicingConfiguration
}

// NewSlicingEngine returns an empty engine.
func NewSlicingEngine() *SlicingEngine {
	return &SlicingEngine{byPath: make(map[string]*SlicingConfiguration)}
}

// inferredDiscriminators maps a known element path suffix to the
// discriminator FHIR conventionally uses for slicing it, applied when no
// explicit "^slicing" caret rule supplies one.
var inferredDiscriminators = map[string][]SlicingDiscriminator{
	"extension":  {{Type: "value", Path: "url"}},
	"identifier": {{Type: "value", Path: "system"}},
	"coding":     {{Type: "value", Path: "system"}},
	"telecom":    {{Type: "value", Path: "system"}},
	"name":       {{Type: "value", Path: "use"}},
	"address":    {{Type: "value", Path: "use"}},
}

// Contains records the slice names introduced by a ContainsRule at path,
// inferring a discriminator and default "open" rules if none was already
// configured explicitly for path.
func (e *SlicingEngine) Contains(path string, sliceNames []string) *SlicingConfiguration {
	cfg, ok := e.byPath[path]
	if !ok {
		cfg = &SlicingConfiguration{
			ElementPath:    path,
			Rules:          "open",
			Discriminators: inferDiscriminator(path),
		}
		e.byPath[path] = cfg
	}
	cfg.Slices = append(cfg.Slices, sliceNames...)
	return cfg
}

// Configure records or overrides the slicing rules/discriminators for path,
// as declared by an explicit "^slicing" caret rule.
func (e *SlicingEngine) Configure(path string, rules string, discriminators []SlicingDiscriminator) *SlicingConfiguration {
	cfg, ok := e.byPath[path]
	if !ok {
		cfg = &SlicingConfiguration{ElementPath: path}
		e.byPath[path] = cfg
	}
	if rules != "" {
		cfg.Rules = rules
	}
	if len(discriminators) > 0 {
		cfg.Discriminators = discriminators
	}
	return cfg
}

// SlicePath composes the sliced element path for sliceName under parent,
// using FHIR's "parent:sliceName" slice-naming convention.
func SlicePath(parent, sliceName string) string {
	return parent + ":" + sliceName
}

// Lookup returns the slicing configuration recorded for path, if any.
func (e *SlicingEngine) Lookup(path string) (*SlicingConfiguration, bool) {
	cfg, ok := e.byPath[path]
	return cfg, ok
}

// All returns every recorded slicing configuration.
func (e *SlicingEngine) All() []*SlicingConfiguration {
	out := make([]*SlicingConfiguration, 0, len(e.byPath))
	for _, cfg := range e.byPath {
		out = append(out, cfg)
	}
	return out
}

func inferDiscriminator(path string) []SlicingDiscriminator {
	last := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		last = path[i+1:]
	}
	last = strings.ToLower(last)
	if d, ok := inferredDiscriminators[last]; ok {
		return d
	}
	return nil
}
