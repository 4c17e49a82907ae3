// Package export implements the forward exporter (C6): FSH semantic model
// definitions walked against a resolved parent snapshot to produce FHIR
// StructureDefinition/ValueSet/CodeSystem/instance JSON.
package export

import (
	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/fhir"
	"github.com/fshforge/fsh/internal/resolve"
	"github.com/fshforge/fsh/internal/semantic"
	"github.com/fshforge/fsh/internal/syntax"
)

// Exporter walks a semantic Model's definitions and emits FHIR resources.
type Exporter struct {
	Model    *semantic.Model
	Resolver resolve.Fishable
	Config   *Config
}

// Config carries the small slice of sushi-config.yaml settings the exporter
// consults directly (the rest is read by internal/config and the executor).
type Config struct {
	Canonical                   string
	FHIRVersion                 string
	ApplyExtensionMetadataToRoot bool
}

// New creates an Exporter over model, resolving parents/types through
// resolver. cfg may be nil, in which case canonical URLs are synthesized
// from the bare definition name.
func New(model *semantic.Model, resolver resolve.Fishable, cfg *Config) *Exporter {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Exporter{Model: model, Resolver: resolver, Config: cfg}
}

// Result is one definition's export outcome. Exactly one of the resource
// fields is non-nil when Err is nil.
type Result struct {
	Name                string
	StructureDefinition *fhir.StructureDefinition
	ValueSet            *fhir.ValueSet
	CodeSystem          *fhir.CodeSystem
	Instance            *fhir.Instance
	Warnings            []semantic.Diagnostic
	Err                 *Error
}

// ExportAll walks every definition in doc and exports it, collecting one
// Result per definition. RuleSets never produce a Result (they are
// templates, not exportables). A per-definition Err never aborts the
// batch (§7 propagation policy).
func (ex *Exporter) ExportAll(doc ast.Document) []Result {
	var out []Result
	for _, entity := range doc.Entities() {
		def, ok := entity.AsDefinition()
		if !ok {
			continue
		}
		r := ex.exportDefinition(def)
		if r == nil {
			continue
		}
		out = append(out, *r)
	}
	return out
}

func (ex *Exporter) exportDefinition(def ast.Definition) *Result {
	switch def.Kind() {
	case syntax.KindProfile, syntax.KindExtension, syntax.KindLogical, syntax.KindResource:
		return ex.exportSD(def)
	case syntax.KindValueSet:
		return ex.exportValueSet(def)
	case syntax.KindCodeSystem:
		return ex.exportCodeSystem(def)
	case syntax.KindInstance:
		return ex.exportInstance(def)
	default:
		return nil
	}
}

// canonicalURL builds an exportable's canonical url from the configured
// canonical base and its declared Id (falling back to Name), per §6's
// "canonical is the base for generated urls" contract.
func (ex *Exporter) canonicalURL(def ast.Definition) string {
	id := metaValue(def, "Id")
	if id == "" {
		id = def.Name()
	}
	if ex.Config.Canonical == "" {
		return id
	}
	base := ex.Config.Canonical
	if len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/StructureDefinition/" + id
}
