package export

import (
	"reflect"

	"github.com/fshforge/fsh/internal/ast"
	"github.com/fshforge/fsh/internal/fhir"
	"github.com/fshforge/fsh/internal/parser"
	"github.com/fshforge/fsh/internal/resolve"
	"github.com/fshforge/fsh/internal/semantic"
	"github.com/fshforge/fsh/internal/syntax"
)

// sdBuilder accumulates one StructureDefinition's working snapshot while
// rules apply (§4.6 steps 1-3); Diff (step 4) renders the final
// differential by comparing against the untouched base elements.
type sdBuilder struct {
	def      ast.Definition
	baseType string // the parent's Type, used for logical/resource prefix rewriting
	base     map[string]fhir.ElementDefinition
	working  map[string]*fhir.ElementDefinition
	order    []string
	warnings []semantic.Diagnostic
}

func elementKey(path, sliceName string) string {
	if sliceName == "" {
		return path
	}
	return path + ":" + sliceName
}

func (b *sdBuilder) find(path, sliceName string) *fhir.ElementDefinition {
	key := elementKey(path, sliceName)
	if e, ok := b.working[key]; ok {
		return e
	}
	var e fhir.ElementDefinition
	if base, ok := b.base[key]; ok {
		e = base
	} else {
		// "If the path is not present in the snapshot ... create it with
		// minimal defaults" (§4.6 step 2).
		e = fhir.ElementDefinition{Path: path, SliceName: sliceName, MaxUnbounded: true}
	}
	b.working[key] = &e
	b.order = append(b.order, key)
	return &e
}

// exportSD implements §4.6 for Profile/Extension/Logical/Resource.
func (ex *Exporter) exportSD(def ast.Definition) *Result {
	name := def.Name()
	res := &Result{Name: name}

	parentName := metaValue(def, "Parent")
	var baseSnapshot []fhir.ElementDefinition
	var baseType, baseDefinition, derivation, kind string

	switch def.Kind() {
	case syntax.KindLogical, syntax.KindResource:
		derivation = "specialization"
		if def.Kind() == syntax.KindLogical {
			kind = "logical"
		} else {
			kind = "resource"
		}
		if parentName == "" {
			baseType = name
		} else {
			parent, ok := ex.lookupStructureDefinition(parentName)
			if !ok {
				res.Err = newError(CodeParentNotFound, name, "Parent \""+parentName+"\" could not be resolved")
				return res
			}
			baseType = parent.Type
			baseDefinition = parent.URL
			baseSnapshot = parent.Snapshot
		}
	case syntax.KindExtension:
		kind = "complex-type"
		derivation = "constraint"
		baseDefinition = "http://hl7.org/fhir/StructureDefinition/Extension"
		baseType = "Extension"
		if sd, ok := ex.lookupStructureDefinition("Extension"); ok {
			baseSnapshot = sd.Snapshot
		}
	default: // Profile
		kind = "resource"
		derivation = "constraint"
		if parentName == "" {
			res.Err = newError(CodeParentNotFound, name, "Profile has no Parent")
			return res
		}
		parent, ok := ex.lookupStructureDefinition(parentName)
		if !ok {
			res.Err = newError(CodeParentNotFound, name, "Parent \""+parentName+"\" could not be resolved")
			return res
		}
		baseType = parent.Type
		baseDefinition = parent.URL
		baseSnapshot = parent.Snapshot
		kind = orKind(parent.Kind, "resource")
	}
	if baseDefinition == "" && baseType != "" {
		baseDefinition = "http://hl7.org/fhir/StructureDefinition/" + baseType
	}

	b := &sdBuilder{
		def:      def,
		baseType: baseType,
		base:     make(map[string]fhir.ElementDefinition),
		working:  make(map[string]*fhir.ElementDefinition),
	}
	if len(baseSnapshot) == 0 {
		baseSnapshot = []fhir.ElementDefinition{{Path: baseType, MaxUnbounded: true}}
	}
	for _, e := range baseSnapshot {
		key := elementKey(e.Path, e.SliceName)
		b.base[key] = e
	}

	sdType := name
	if def.Kind() == syntax.KindProfile || def.Kind() == syntax.KindExtension {
		sdType = baseType
	}

	for _, rule := range def.Rules() {
		ex.applyRule(b, rule)
	}

	sd := &fhir.StructureDefinition{
		URL:            ex.canonicalURL(def),
		Name:           name,
		Title:          metaValue(def, "Title"),
		Description:    metaValue(def, "Description"),
		Type:           sdType,
		Kind:           kind,
		Derivation:     derivation,
		BaseDefinition: baseDefinition,
		FHIRVersion:    ex.Config.FHIRVersion,
	}
	if def.Kind() == syntax.KindExtension {
		if ctx := metaValue(def, "Context"); ctx != "" {
			sd.Context = append(sd.Context, fhir.ExtensionContext{Type: "element", Expression: ctx})
		}
		ex.checkExtensionXOR(b, &res.Warnings)
	}
	if chars := metaValue(def, "Characteristics"); chars != "" {
		sd.Extension = append(sd.Extension, fhir.Extension{
			URL:       "http://hl7.org/fhir/StructureDefinition/structuredefinition-type-characteristics",
			ValueCode: chars,
		})
	}

	// applyExtensionMetadataToRoot (sushi-config.yaml): when set, an
	// Extension's Title/Description also seed the root element's
	// short/definition if a rule hasn't already set them, rather than living
	// only on the StructureDefinition itself.
	if ex.Config.ApplyExtensionMetadataToRoot && def.Kind() == syntax.KindExtension {
		root := b.find(baseType, "")
		if root.Short == "" {
			root.Short = sd.Title
		}
		if root.Definition == "" {
			root.Definition = sd.Description
		}
	}

	// Logical/Resource: rewrite every cloned element's path from the base
	// type prefix to this definition's own name (§4.6 "Logical/Resource
	// specifics").
	rewrite := def.Kind() == syntax.KindLogical || def.Kind() == syntax.KindResource
	if rewrite && parentName != "" {
		for _, key := range b.order {
			e := b.working[key]
			e.Path = rewritePathPrefix(e.Path, baseType, name)
		}
	}

	for _, key := range b.order {
		working := b.working[key]
		base, hadBase := b.base[key]
		if !hadBase || !elementsEqual(base, *working) {
			sd.Differential = append(sd.Differential, *working)
		}
	}
	sd.Snapshot = append(sd.Snapshot, baseSnapshot...)
	if rewrite {
		for i := range sd.Snapshot {
			sd.Snapshot[i].Path = rewritePathPrefix(sd.Snapshot[i].Path, baseType, name)
		}
	}
	for _, key := range b.order {
		working := b.working[key]
		if _, hadBase := b.base[key]; !hadBase {
			sd.Snapshot = append(sd.Snapshot, *working)
		} else {
			for i := range sd.Snapshot {
				if elementKey(sd.Snapshot[i].Path, sd.Snapshot[i].SliceName) == key {
					sd.Snapshot[i] = *working
				}
			}
		}
	}

	if err := ex.validateEmit(sd); err != nil {
		res.Err = err
		return res
	}
	res.StructureDefinition = sd
	return res
}

func orKind(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// checkExtensionXOR enforces the Extension.value[x]/Extension.extension XOR
// (§4.6 "Extension export specifics"): both constrained emits a warning, not
// a fatal error.
func (ex *Exporter) checkExtensionXOR(b *sdBuilder, warnings *[]semantic.Diagnostic) {
	constrainsValue := false
	constrainsExtension := false
	for _, key := range b.order {
		e := b.working[key]
		switch {
		case e.Path == "Extension.value[x]" || hasPrefixDot(e.Path, "Extension.value"):
			if len(e.Types) > 0 {
				constrainsValue = true
			}
		case e.Path == "Extension.extension":
			if !(e.MaxUnbounded == false && e.Max == 0) {
				constrainsExtension = true
			}
		}
	}
	if constrainsValue && constrainsExtension {
		*warnings = append(*warnings, semantic.Diagnostic{
			Rule:     "conflicting-extension-shape",
			Message:  "Extension constrains both value[x] and extension",
			Severity: semantic.SeverityWarning,
		})
	}
}

func hasPrefixDot(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// validateEmit implements §4.6 "Validation on emit".
func (ex *Exporter) validateEmit(sd *fhir.StructureDefinition) *Error {
	if sd.URL == "" {
		return newError(CodeMissingRequiredField, sd.Name, "url is empty")
	}
	if sd.Name == "" {
		return newError(CodeMissingRequiredField, sd.Name, "name is empty")
	}
	if sd.Type == "" {
		return newError(CodeMissingRequiredField, sd.Name, "type is empty")
	}
	for _, e := range sd.Differential {
		if e.Path == "" {
			return newError(CodeElementNotFound, sd.Name, "an element has an empty path")
		}
		if !e.MaxUnbounded && e.Min > e.Max {
			return newError(CodeInvalidCardinality, sd.Name, "element \""+e.Path+"\" has min > max")
		}
	}
	return nil
}

func elementsEqual(a, b fhir.ElementDefinition) bool {
	return reflect.DeepEqual(a, b)
}

// lookupStructureDefinition resolves name through the canonical resolver
// when one is configured. On a miss, a canonical-URL-shaped name is not
// found, and any other name (including another definition in the same
// document) resolves as a minimal stub carrying only Type/Kind/URL metadata.
func (ex *Exporter) lookupStructureDefinition(name string) (*fhir.StructureDefinition, bool) {
	if ex.Resolver != nil {
		if r, ok := ex.Resolver.Fish(name, resolve.TypeStructureDefinition, resolve.TypeProfile, resolve.TypeExtension, resolve.TypeResource, resolve.TypeLogical); ok && r.StructureDefinition != nil {
			return r.StructureDefinition, true
		}
	}
	if isLikelyCanonicalURL(name) {
		return nil, false
	}
	// A bare, unresolved type name is treated optimistically as a FHIR base
	// resource/type the caller's canonical environment simply hasn't loaded
	// (e.g. no base package registered in this run); minimal snapshot rules
	// then apply the same "create with defaults" behavior as any other
	// never-before-seen element.
	return &fhir.StructureDefinition{
		URL:  "http://hl7.org/fhir/StructureDefinition/" + name,
		Name: name,
		Type: name,
		Kind: "resource",
	}, true
}

func isLikelyCanonicalURL(s string) bool {
	return len(s) > 7 && (s[:7] == "http://" || (len(s) > 8 && s[:8] == "https://"))
}

// applyExpandedInsertRules re-parses an already bracket/alias-substituted
// rule line (produced by internal/semantic's ruleset expansion) as ordinary
// FSH so the exporter can apply it the same way as any literal rule; this
// is a distinct concern from ruleset expansion itself, which deliberately
// never re-parses its substituted text (§4.5 phase 3).
func applyExpandedInsertRules(lines []string) []ast.Rule {
	if len(lines) == 0 {
		return nil
	}
	src := "Profile: __Inline__\nParent: Base\n"
	for _, l := range lines {
		src += l + "\n"
	}
	tree := parser.Parse([]byte(src), syntax.ParseOptions{URI: "<insert-expansion>"})
	doc, ok := ast.CastDocument(tree)
	if !ok {
		return nil
	}
	for _, entity := range doc.Entities() {
		def, ok := entity.AsDefinition()
		if !ok || def.Kind() != syntax.KindProfile {
			continue
		}
		return def.Rules()
	}
	return nil
}
