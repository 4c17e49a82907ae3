package decompile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fshforge/fsh/internal/fhir"
	"github.com/fshforge/fsh/internal/resolve"
)

// Decompiler runs the Process/Optimize stages of the reverse pipeline over
// resources resolved through lake (used to recover a local symbol's
// declared FSH name for Parent clauses, and the parent snapshot for the
// drop-redundant-cardinality optimizer pass).
type Decompiler struct {
	lake *ResourceLake
}

// New creates a Decompiler that resolves Parent references and base
// cardinalities through lake. lake may be nil; Parent then always renders
// as the bare trailing segment of baseDefinition and the redundant-
// cardinality pass becomes a no-op.
func New(lake *ResourceLake) *Decompiler {
	return &Decompiler{lake: lake}
}

// Process dispatches r to its typed processor and runs the optimizer
// registry to fixed point over the result (§4.7 steps 2-3).
func (d *Decompiler) Process(r *resolve.Resource) (*Exportable, error) {
	var ex *Exportable
	var err error
	switch r.Type {
	case resolve.TypeStructureDefinition:
		ex, err = d.processStructureDefinition(r.StructureDefinition)
	case resolve.TypeValueSet:
		ex, err = d.processValueSet(r.ValueSet)
	case resolve.TypeCodeSystem:
		ex, err = d.processCodeSystem(r.CodeSystem)
	case resolve.TypeInstance:
		ex, err = d.processInstance(r.Instance)
	default:
		return nil, fmt.Errorf("decompile: unsupported resource type %s", r.Type)
	}
	if err != nil {
		return nil, err
	}
	ex.Rules = optimize(ex.Rules, d.parentElementsFor(r))
	return ex, nil
}

// parentElementsFor resolves r's parent snapshot (path-keyed) for the
// drop-redundant-cardinality optimizer pass. Only StructureDefinitions
// have a parent in this sense; every other resource type gets nil, making
// that pass a no-op for them.
func (d *Decompiler) parentElementsFor(r *resolve.Resource) map[string]fhir.ElementDefinition {
	if r.Type != resolve.TypeStructureDefinition || d.lake == nil {
		return nil
	}
	sd := r.StructureDefinition
	if sd.BaseDefinition == "" {
		return nil
	}
	parent, ok := d.lake.FishByURL(sd.BaseDefinition)
	if !ok || parent.StructureDefinition == nil {
		return nil
	}
	out := make(map[string]fhir.ElementDefinition, len(parent.StructureDefinition.Snapshot))
	for _, e := range parent.StructureDefinition.Snapshot {
		out[elementDifferentialKey(e)] = e
	}
	return out
}

func sdEntityKeyword(sd *fhir.StructureDefinition) string {
	if sd.BaseDefinition == "http://hl7.org/fhir/StructureDefinition/Extension" {
		return "Extension"
	}
	if sd.Derivation == "specialization" {
		if sd.Kind == "logical" {
			return "Logical"
		}
		return "Resource"
	}
	return "Profile"
}

func lastSegment(url string) string {
	if idx := strings.LastIndexByte(url, '/'); idx >= 0 {
		return url[idx+1:]
	}
	return url
}

// parentNameFor prefers a locally registered resource's declared FSH name
// (so "Parent: MyBaseProfile" round-trips instead of degrading to a bare
// canonical-url segment) and falls back to the trailing URL segment.
func (d *Decompiler) parentNameFor(sd *fhir.StructureDefinition) string {
	if sd.BaseDefinition == "" {
		return ""
	}
	if d.lake != nil {
		if r, ok := d.lake.FishByURL(sd.BaseDefinition); ok && r.Name != "" {
			return r.Name
		}
	}
	return lastSegment(sd.BaseDefinition)
}

func elementDifferentialKey(e fhir.ElementDefinition) string {
	if e.SliceName == "" {
		return e.Path
	}
	return e.Path + ":" + e.SliceName
}

// processStructureDefinition implements §4.7 step 2's SD processor: walk
// the differential element by element, grouping slice families under a
// single "contains" rule, and running the extractor pipeline in the
// documented order over everything else.
func (d *Decompiler) processStructureDefinition(sd *fhir.StructureDefinition) (*Exportable, error) {
	keyword := sdEntityKeyword(sd)
	ex := &Exportable{EntityKeyword: keyword, Name: sd.Name}
	ex.addMeta("Id", lastSegment(sd.URL))
	if parent := d.parentNameFor(sd); parent != "" {
		ex.addMeta("Parent", parent)
	}
	ex.addMeta("Title", sd.Title)
	ex.addMeta("Description", sd.Description)
	for _, c := range sd.Context {
		ex.addMeta("Context", c.Expression)
	}

	if keyword == "Logical" || keyword == "Resource" {
		// A brand new logical/resource element has no base counterpart to
		// constrain, so every differential entry is an AddElement line
		// rather than a sequence of constrain-style extractor rules.
		for _, e := range sd.Differential {
			v := newElementView(e.Path)
			ex.emit(v.path, extractAddElement(e, v))
		}
		return ex, nil
	}

	slicingParents := map[string]fhir.ElementDefinition{}
	sliceChildren := map[string][]fhir.ElementDefinition{}
	for _, e := range sd.Differential {
		switch {
		case e.Slicing != nil:
			slicingParents[e.Path] = e
		case e.SliceName != "":
			sliceChildren[e.Path] = append(sliceChildren[e.Path], e)
		}
	}

	rendered := map[string]bool{}
	for _, e := range sd.Differential {
		key := elementDifferentialKey(e)
		if rendered[key] {
			continue
		}
		if slicing, ok := slicingParents[e.Path]; ok && e.SliceName == "" && e.Path == slicing.Path {
			rendered[key] = true
			d.renderSlicedGroup(ex, slicing, sliceChildren[e.Path])
			for _, c := range sliceChildren[e.Path] {
				rendered[elementDifferentialKey(c)] = true
			}
			continue
		}
		v := newElementView(e.Path)
		d.renderElement(ex, e, v)
		rendered[key] = true
	}
	return ex, nil
}

// renderElement runs the constrain-an-existing-element extractor pipeline
// in the documented order (OnlyType, Binding, Cardinality/Flag, Assignment,
// CaretValue, Obeys, Mapping); Contains and AddElement are handled by their
// own callers since they operate across more than one element.
func (d *Decompiler) renderElement(ex *Exportable, e fhir.ElementDefinition, v *elementView) {
	ex.emit(v.path, extractOnlyType(e, v))
	ex.emit(v.path, extractBinding(e, v))
	ex.emit(v.path, extractCardinalityFlag(e, v))
	ex.emit(v.path, extractAssignment(e, v))
	for _, l := range extractCaretValue(e, v) {
		ex.emit(v.path, l)
	}
	ex.emit(v.path, extractObeys(e, v))
	for _, l := range extractMapping(e, v) {
		ex.emit(v.path, l)
	}
}

// renderSlicedGroup emits the "contains" rule naming every slice with its
// own cardinality/flags, then renders each slice's remaining fields
// (binding, assignment, caret, ...) under its bracket-qualified path.
func (d *Decompiler) renderSlicedGroup(ex *Exportable, slicing fhir.ElementDefinition, children []fhir.ElementDefinition) {
	if len(children) > 0 {
		items := make([]string, 0, len(children))
		for _, c := range children {
			item := c.SliceName + " " + strconv.Itoa(c.Min) + ".." + c.MaxString()
			if flags := flagLetters(c); flags != "" {
				item += " " + flags
			}
			items = append(items, item)
		}
		ex.emit(slicing.Path, fmt.Sprintf("* %s contains %s", slicing.Path, strings.Join(items, " and ")))
	}

	pv := newElementView(slicing.Path)
	pv.cardDone = true
	d.renderElement(ex, slicing, pv)

	for _, c := range children {
		cv := newElementView(slicing.Path + "[" + c.SliceName + "]")
		cv.cardDone = true
		cv.consumed["cardinality"] = true
		d.renderElement(ex, c, cv)
	}
}
