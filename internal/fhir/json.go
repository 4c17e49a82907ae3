package fhir

import "encoding/json"

// wireElementDefinition is the on-the-wire FHIR ElementDefinition shape,
// nested exactly as the FHIR JSON specification defines it (min/max as
// separate scalar fields, type[] as {code, profile[], targetProfile[]}
// objects, binding as {strength, valueSet, description}, etc.). The
// exporter (C6) and decompiler (C7) both go through this type rather than
// hand-rolling JSON at each call site.
type wireElementDefinition struct {
	ID               string            `json:"id,omitempty"`
	Path             string            `json:"path"`
	SliceName        string            `json:"sliceName,omitempty"`
	Short            string            `json:"short,omitempty"`
	Definition       string            `json:"definition,omitempty"`
	Comment          string            `json:"comment,omitempty"`
	Min              *int              `json:"min,omitempty"`
	Max              string            `json:"max,omitempty"`
	Type             []wireTypeRef     `json:"type,omitempty"`
	Binding          *wireBinding      `json:"binding,omitempty"`
	Constraint       []wireConstraint  `json:"constraint,omitempty"`
	MustSupport      *bool             `json:"mustSupport,omitempty"`
	IsModifier       *bool             `json:"isModifier,omitempty"`
	IsSummary        *bool             `json:"isSummary,omitempty"`
	Slicing          *wireSlicing      `json:"slicing,omitempty"`
	ContentReference string            `json:"contentReference,omitempty"`
	Mapping          []wireMapping     `json:"mapping,omitempty"`
}

type wireTypeRef struct {
	Code          string   `json:"code"`
	Profile       []string `json:"profile,omitempty"`
	TargetProfile []string `json:"targetProfile,omitempty"`
}

type wireBinding struct {
	Strength    string `json:"strength"`
	ValueSet    string `json:"valueSet,omitempty"`
	Description string `json:"description,omitempty"`
}

type wireConstraint struct {
	Key        string `json:"key"`
	Severity   string `json:"severity"`
	Human      string `json:"human"`
	Expression string `json:"expression,omitempty"`
	XPath      string `json:"xpath,omitempty"`
	Source     string `json:"source,omitempty"`
}

type wireSlicing struct {
	Discriminator []wireDiscriminator `json:"discriminator,omitempty"`
	Description   string              `json:"description,omitempty"`
	Ordered       bool                `json:"ordered,omitempty"`
	Rules         string              `json:"rules"`
}

type wireDiscriminator struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

type wireMapping struct {
	Identity string `json:"identity"`
	Map      string `json:"map"`
	Comment  string `json:"comment,omitempty"`
}

type wireExtensionContext struct {
	Type       string `json:"type"`
	Expression string `json:"expression"`
}

type wireExtension struct {
	URL         string `json:"url"`
	ValueString string `json:"valueString,omitempty"`
	ValueCode   string `json:"valueCode,omitempty"`
}

// wireStructureDefinition mirrors the FHIR StructureDefinition resource's
// wire shape, including the snapshot/differential wrapper objects that the
// internal StructureDefinition flattens away.
type wireStructureDefinition struct {
	ResourceType   string                  `json:"resourceType"`
	URL            string                  `json:"url"`
	Name           string                  `json:"name"`
	Title          string                  `json:"title,omitempty"`
	Description    string                  `json:"description,omitempty"`
	Status         string                  `json:"status"`
	Type           string                  `json:"type"`
	Kind           string                  `json:"kind"`
	Abstract       bool                    `json:"abstract"`
	Derivation     string                  `json:"derivation,omitempty"`
	BaseDefinition string                  `json:"baseDefinition,omitempty"`
	FHIRVersion    string                  `json:"fhirVersion,omitempty"`
	Context        []wireExtensionContext  `json:"context,omitempty"`
	Extension      []wireExtension         `json:"extension,omitempty"`
	Snapshot       *wireElementContainer   `json:"snapshot,omitempty"`
	Differential   *wireElementContainer   `json:"differential,omitempty"`
}

type wireElementContainer struct {
	Element []json.RawMessage `json:"element"`
}

// fixedPatternTypeSuffix maps a Go value's dynamic type to the FHIR
// "[x]"-suffix used by fixed[x]/pattern[x] wire field names, covering the
// primitive types FSH assignment rules most commonly target. Complex-type
// fixed/pattern values (CodeableConcept, Quantity, Identifier, ...) are
// passed through as map[string]any and keyed by their own "_fhirType" hint
// when present, falling back to "CodeableConcept" as the most common case.
func fixedPatternTypeSuffix(v any) string {
	switch val := v.(type) {
	case string:
		return "String"
	case bool:
		return "Boolean"
	case int, int64, float64:
		return "Decimal"
	case map[string]any:
		if hint, ok := val["_fhirType"].(string); ok && hint != "" {
			return hint
		}
		return "CodeableConcept"
	default:
		return "String"
	}
}

// elementToWire marshals an ElementDefinition to its raw FHIR JSON form,
// including the polymorphic fixed[x]/pattern[x] key when present.
func elementToWire(e ElementDefinition) (json.RawMessage, error) {
	min := e.Min
	w := wireElementDefinition{
		ID:               e.ID,
		Path:             e.Path,
		SliceName:        e.SliceName,
		Short:            e.Short,
		Definition:       e.Definition,
		Comment:          e.Comment,
		Min:              &min,
		Max:              e.MaxString(),
		MustSupport:      boolPtrOrNil(e.MustSupport),
		IsModifier:       boolPtrOrNil(e.IsModifier),
		IsSummary:        boolPtrOrNil(e.IsSummary),
		ContentReference: e.ContentReference,
	}
	for _, t := range e.Types {
		w.Type = append(w.Type, wireTypeRef{Code: t.Code, Profile: t.Profile, TargetProfile: t.TargetProfile})
	}
	if e.Binding != nil {
		w.Binding = &wireBinding{Strength: e.Binding.Strength, ValueSet: e.Binding.ValueSet, Description: e.Binding.Description}
	}
	for _, c := range e.Constraints {
		w.Constraint = append(w.Constraint, wireConstraint{Key: c.Key, Severity: c.Severity, Human: c.Human, Expression: c.Expression, XPath: c.XPath, Source: c.Source})
	}
	if e.Slicing != nil {
		ws := &wireSlicing{Description: e.Slicing.Description, Ordered: e.Slicing.Ordered, Rules: e.Slicing.Rules}
		for _, d := range e.Slicing.Discriminator {
			ws.Discriminator = append(ws.Discriminator, wireDiscriminator{Type: d.Type, Path: d.Path})
		}
		w.Slicing = ws
	}
	for _, m := range e.Mappings {
		w.Mapping = append(w.Mapping, wireMapping{Identity: m.Identity, Map: m.Map, Comment: m.Comment})
	}

	base, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	if e.Fixed == nil && e.Pattern == nil {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	if e.Fixed != nil {
		key := "fixed" + fixedPatternTypeSuffix(e.Fixed)
		raw, err := json.Marshal(e.Fixed)
		if err != nil {
			return nil, err
		}
		merged[key] = raw
	}
	if e.Pattern != nil {
		key := "pattern" + fixedPatternTypeSuffix(e.Pattern)
		raw, err := json.Marshal(e.Pattern)
		if err != nil {
			return nil, err
		}
		merged[key] = raw
	}
	return json.Marshal(merged)
}

// elementFromWire parses a raw FHIR ElementDefinition object, extracting
// whichever fixed[x]/pattern[x] key (if any) is present.
func elementFromWire(raw json.RawMessage) (ElementDefinition, error) {
	var w wireElementDefinition
	if err := json.Unmarshal(raw, &w); err != nil {
		return ElementDefinition{}, err
	}
	e := ElementDefinition{
		ID:               w.ID,
		Path:             w.Path,
		SliceName:        w.SliceName,
		Short:            w.Short,
		Definition:       w.Definition,
		Comment:          w.Comment,
		ContentReference: w.ContentReference,
		MustSupport:      boolVal(w.MustSupport),
		IsModifier:       boolVal(w.IsModifier),
		IsSummary:        boolVal(w.IsSummary),
	}
	if w.Min != nil {
		e.Min = *w.Min
	}
	if w.Max == "*" {
		e.MaxUnbounded = true
	} else if w.Max != "" {
		e.Max = parseMaxInt(w.Max)
	}
	for _, t := range w.Type {
		e.Types = append(e.Types, TypeRef{Code: t.Code, Profile: t.Profile, TargetProfile: t.TargetProfile})
	}
	if w.Binding != nil {
		e.Binding = &Binding{Strength: w.Binding.Strength, ValueSet: w.Binding.ValueSet, Description: w.Binding.Description}
	}
	for _, c := range w.Constraint {
		e.Constraints = append(e.Constraints, Constraint{Key: c.Key, Severity: c.Severity, Human: c.Human, Expression: c.Expression, XPath: c.XPath, Source: c.Source})
	}
	if w.Slicing != nil {
		s := &Slicing{Description: w.Slicing.Description, Ordered: w.Slicing.Ordered, Rules: w.Slicing.Rules}
		for _, d := range w.Slicing.Discriminator {
			s.Discriminator = append(s.Discriminator, Discriminator{Type: d.Type, Path: d.Path})
		}
		e.Slicing = s
	}
	for _, m := range w.Mapping {
		e.Mappings = append(e.Mappings, Mapping{Identity: m.Identity, Map: m.Map, Comment: m.Comment})
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err == nil {
		for key, val := range fields {
			switch {
			case hasPrefixFold(key, "fixed"):
				_ = json.Unmarshal(val, &e.Fixed)
			case hasPrefixFold(key, "pattern"):
				_ = json.Unmarshal(val, &e.Pattern)
			}
		}
	}
	return e, nil
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) > len(prefix) && s[:len(prefix)] == prefix
}

// MarshalJSON renders sd in standard FHIR StructureDefinition wire form.
func (sd *StructureDefinition) MarshalJSON() ([]byte, error) {
	w := wireStructureDefinition{
		ResourceType:   "StructureDefinition",
		URL:            sd.URL,
		Name:           sd.Name,
		Title:          sd.Title,
		Description:    sd.Description,
		Status:         orDefault(sd.Status, "draft"),
		Type:           sd.Type,
		Kind:           sd.Kind,
		Abstract:       sd.Abstract,
		Derivation:     sd.Derivation,
		BaseDefinition: sd.BaseDefinition,
		FHIRVersion:    sd.FHIRVersion,
	}
	for _, c := range sd.Context {
		w.Context = append(w.Context, wireExtensionContext{Type: c.Type, Expression: c.Expression})
	}
	for _, e := range sd.Extension {
		w.Extension = append(w.Extension, wireExtension{URL: e.URL, ValueString: e.ValueString, ValueCode: e.ValueCode})
	}
	if len(sd.Snapshot) > 0 {
		w.Snapshot = &wireElementContainer{Element: toWireElements(sd.Snapshot)}
	}
	if len(sd.Differential) > 0 {
		w.Differential = &wireElementContainer{Element: toWireElements(sd.Differential)}
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses standard FHIR StructureDefinition wire form into sd.
func (sd *StructureDefinition) UnmarshalJSON(data []byte) error {
	var w wireStructureDefinition
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	sd.URL = w.URL
	sd.Name = w.Name
	sd.Title = w.Title
	sd.Description = w.Description
	sd.Status = w.Status
	sd.Type = w.Type
	sd.Kind = w.Kind
	sd.Abstract = w.Abstract
	sd.Derivation = w.Derivation
	sd.BaseDefinition = w.BaseDefinition
	sd.FHIRVersion = w.FHIRVersion
	for _, c := range w.Context {
		sd.Context = append(sd.Context, ExtensionContext{Type: c.Type, Expression: c.Expression})
	}
	for _, e := range w.Extension {
		sd.Extension = append(sd.Extension, Extension{URL: e.URL, ValueString: e.ValueString, ValueCode: e.ValueCode})
	}
	if w.Snapshot != nil {
		sd.Snapshot = fromWireElements(w.Snapshot.Element)
	}
	if w.Differential != nil {
		sd.Differential = fromWireElements(w.Differential.Element)
	}
	return nil
}

func toWireElements(els []ElementDefinition) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(els))
	for _, e := range els {
		raw, err := elementToWire(e)
		if err != nil {
			continue
		}
		out = append(out, raw)
	}
	return out
}

func fromWireElements(raws []json.RawMessage) []ElementDefinition {
	out := make([]ElementDefinition, 0, len(raws))
	for _, raw := range raws {
		e, err := elementFromWire(raw)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

func boolPtrOrNil(b bool) *bool {
	if !b {
		return nil
	}
	v := true
	return &v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// wireValueSet mirrors the FHIR ValueSet resource's wire shape.
type wireValueSet struct {
	ResourceType string              `json:"resourceType"`
	URL          string              `json:"url"`
	Name         string              `json:"name"`
	Title        string              `json:"title,omitempty"`
	Description  string              `json:"description,omitempty"`
	Status       string              `json:"status"`
	Compose      *wireValueSetCompose `json:"compose,omitempty"`
}

type wireValueSetCompose struct {
	Include []wireConceptSetComponent `json:"include,omitempty"`
	Exclude []wireConceptSetComponent `json:"exclude,omitempty"`
}

type wireConceptSetComponent struct {
	System  string                `json:"system,omitempty"`
	ValueSet []string             `json:"valueSet,omitempty"`
	Concept []wireConceptReference `json:"concept,omitempty"`
}

type wireConceptReference struct {
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// MarshalJSON renders vs in standard FHIR ValueSet wire form.
func (vs *ValueSet) MarshalJSON() ([]byte, error) {
	w := wireValueSet{
		ResourceType: "ValueSet",
		URL:          vs.URL,
		Name:         vs.Name,
		Title:        vs.Title,
		Description:  vs.Description,
		Status:       orDefault(vs.Status, "draft"),
	}
	if vs.Compose != nil {
		w.Compose = &wireValueSetCompose{
			Include: toWireConceptSets(vs.Compose.Include),
			Exclude: toWireConceptSets(vs.Compose.Exclude),
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses standard FHIR ValueSet wire form into vs.
func (vs *ValueSet) UnmarshalJSON(data []byte) error {
	var w wireValueSet
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	vs.URL, vs.Name, vs.Title, vs.Description, vs.Status = w.URL, w.Name, w.Title, w.Description, w.Status
	if w.Compose != nil {
		vs.Compose = &ValueSetCompose{
			Include: fromWireConceptSets(w.Compose.Include),
			Exclude: fromWireConceptSets(w.Compose.Exclude),
		}
	}
	return nil
}

func toWireConceptSets(cs []ConceptSetComponent) []wireConceptSetComponent {
	out := make([]wireConceptSetComponent, 0, len(cs))
	for _, c := range cs {
		w := wireConceptSetComponent{System: c.System, ValueSet: c.ValueSet}
		for _, cc := range c.Concept {
			w.Concept = append(w.Concept, wireConceptReference{Code: cc.Code, Display: cc.Display})
		}
		out = append(out, w)
	}
	return out
}

func fromWireConceptSets(ws []wireConceptSetComponent) []ConceptSetComponent {
	out := make([]ConceptSetComponent, 0, len(ws))
	for _, w := range ws {
		c := ConceptSetComponent{System: w.System, ValueSet: w.ValueSet}
		for _, wc := range w.Concept {
			c.Concept = append(c.Concept, ConceptReference{Code: wc.Code, Display: wc.Display})
		}
		out = append(out, c)
	}
	return out
}

// wireCodeSystem mirrors the FHIR CodeSystem resource's wire shape.
type wireCodeSystem struct {
	ResourceType string              `json:"resourceType"`
	URL          string              `json:"url"`
	Name         string              `json:"name"`
	Title        string              `json:"title,omitempty"`
	Description  string              `json:"description,omitempty"`
	Status       string              `json:"status"`
	Content      string              `json:"content"`
	Concept      []wireCSConcept     `json:"concept,omitempty"`
}

type wireCSConcept struct {
	Code       string          `json:"code"`
	Display    string          `json:"display,omitempty"`
	Definition string          `json:"definition,omitempty"`
	Property   []wireCSProperty `json:"property,omitempty"`
	Concept    []wireCSConcept `json:"concept,omitempty"`
}

type wireCSProperty struct {
	Code        string `json:"code"`
	ValueString string `json:"valueString,omitempty"`
	ValueCode   string `json:"valueCode,omitempty"`
	ValueBool   *bool  `json:"valueBoolean,omitempty"`
}

// MarshalJSON renders cs in standard FHIR CodeSystem wire form.
func (cs *CodeSystem) MarshalJSON() ([]byte, error) {
	w := wireCodeSystem{
		ResourceType: "CodeSystem",
		URL:          cs.URL,
		Name:         cs.Name,
		Title:        cs.Title,
		Description:  cs.Description,
		Status:       orDefault(cs.Status, "draft"),
		Content:      orDefault(cs.Content, "complete"),
		Concept:      toWireConcepts(cs.Concept),
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses standard FHIR CodeSystem wire form into cs.
func (cs *CodeSystem) UnmarshalJSON(data []byte) error {
	var w wireCodeSystem
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	cs.URL, cs.Name, cs.Title, cs.Description, cs.Status, cs.Content = w.URL, w.Name, w.Title, w.Description, w.Status, w.Content
	cs.Concept = fromWireConcepts(w.Concept)
	return nil
}

func toWireConcepts(concepts []CodeSystemConcept) []wireCSConcept {
	out := make([]wireCSConcept, 0, len(concepts))
	for _, c := range concepts {
		w := wireCSConcept{Code: c.Code, Display: c.Display, Definition: c.Definition, Concept: toWireConcepts(c.Concept)}
		for _, p := range c.Property {
			wp := wireCSProperty{Code: p.Code}
			switch v := p.Value.(type) {
			case string:
				wp.ValueString = v
			case bool:
				wp.ValueBool = &v
			}
			w.Property = append(w.Property, wp)
		}
		out = append(out, w)
	}
	return out
}

func fromWireConcepts(wconcepts []wireCSConcept) []CodeSystemConcept {
	out := make([]CodeSystemConcept, 0, len(wconcepts))
	for _, w := range wconcepts {
		c := CodeSystemConcept{Code: w.Code, Display: w.Display, Definition: w.Definition, Concept: fromWireConcepts(w.Concept)}
		for _, p := range w.Property {
			prop := ConceptProperty{Code: p.Code}
			switch {
			case p.ValueBool != nil:
				prop.Value = *p.ValueBool
			case p.ValueCode != "":
				prop.Value = p.ValueCode
			default:
				prop.Value = p.ValueString
			}
			c.Property = append(c.Property, prop)
		}
		out = append(out, c)
	}
	return out
}
