package decompile

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fshforge/fsh/internal/fhir"
)

// processValueSet implements §4.7 step 2's ValueSet processor: one compose
// rule line per include/exclude component.
func (d *Decompiler) processValueSet(vs *fhir.ValueSet) (*Exportable, error) {
	ex := &Exportable{EntityKeyword: "ValueSet", Name: vs.Name}
	ex.addMeta("Id", lastSegment(vs.URL))
	ex.addMeta("Title", vs.Title)
	ex.addMeta("Description", vs.Description)
	if vs.Compose != nil {
		for _, c := range vs.Compose.Include {
			ex.emit("", composeLine("include", c))
		}
		for _, c := range vs.Compose.Exclude {
			ex.emit("", composeLine("exclude", c))
		}
	}
	return ex, nil
}

func composeLine(mode string, c fhir.ConceptSetComponent) string {
	if mode == "include" && c.System != "" && len(c.ValueSet) == 0 && len(c.Concept) == 1 {
		cc := c.Concept[0]
		ref := c.System + "#" + cc.Code
		if cc.Display != "" {
			return fmt.Sprintf("* %s %s", ref, strconv.Quote(cc.Display))
		}
		return fmt.Sprintf("* %s", ref)
	}
	parts := []string{"*", mode, "codes"}
	switch {
	case c.System != "" && len(c.ValueSet) > 0:
		parts = append(parts, "from", "system", c.System, "and", "valueset", strings.Join(c.ValueSet, " and "))
	case c.System != "":
		parts = append(parts, "from", "system", c.System)
	case len(c.ValueSet) > 0:
		parts = append(parts, "from", "valueset", strings.Join(c.ValueSet, " and "))
	}
	return strings.Join(parts, " ")
}

// processCodeSystem implements §4.7 step 2's CodeSystem processor: one
// bare concept-definition line per concept plus one caret-property line
// per property, walking nested concepts depth-first.
func (d *Decompiler) processCodeSystem(cs *fhir.CodeSystem) (*Exportable, error) {
	ex := &Exportable{EntityKeyword: "CodeSystem", Name: cs.Name}
	ex.addMeta("Id", lastSegment(cs.URL))
	ex.addMeta("Title", cs.Title)
	ex.addMeta("Description", cs.Description)
	for _, c := range cs.Concept {
		renderConcept(ex, nil, c)
	}
	return ex, nil
}

func renderConcept(ex *Exportable, parents []string, c fhir.CodeSystemConcept) {
	codes := append(append([]string{}, parents...), c.Code)
	codeText := ""
	for _, cd := range codes {
		codeText += " #" + cd
	}
	groupPath := strings.Join(codes, ".")
	line := "*" + codeText
	if c.Display != "" {
		line += " " + strconv.Quote(c.Display)
	}
	if c.Definition != "" {
		line += " " + strconv.Quote(c.Definition)
	}
	ex.emit(groupPath, line)
	for _, p := range c.Property {
		ex.emit(groupPath, fmt.Sprintf("*%s ^property.%s = %s", codeText, p.Code, valueLiteral(p.Value)))
	}
	for _, child := range c.Concept {
		renderConcept(ex, codes, child)
	}
}

// processInstance implements §4.7 step 2's Instance processor: the
// resource's declared profile (or bare resourceType) becomes InstanceOf,
// and every remaining top-level field becomes a "=" assignment rule,
// rendered in stable (sorted) path order since map iteration isn't.
func (d *Decompiler) processInstance(inst *fhir.Instance) (*Exportable, error) {
	name := inst.ID
	if name == "" {
		name = inst.ResourceType + "Example"
	}
	ex := &Exportable{EntityKeyword: "Instance", Name: name}
	if len(inst.Profile) > 0 {
		ex.addMeta("InstanceOf", lastSegment(inst.Profile[0]))
	} else {
		ex.addMeta("InstanceOf", inst.ResourceType)
	}
	ex.addMeta("Id", inst.ID)
	ex.addMeta("Usage", "#example")
	for path, val := range inst.Fields {
		ex.emit(path, fmt.Sprintf("* %s = %s", path, valueLiteral(val)))
	}
	sort.Slice(ex.Rules, func(i, j int) bool { return ex.Rules[i].Path < ex.Rules[j].Path })
	return ex, nil
}
