// Package fhir defines the simplified, version-agnostic FHIR resource model
// shared by the exporter and decompiler, following the small, composable
// StructureDefinition shape used elsewhere in the FHIR tooling ecosystem.
package fhir

// StructureDefinition is a simplified internal representation of a FHIR
// StructureDefinition, covering the fields the exporter/decompiler need.
type StructureDefinition struct {
	URL            string
	Name           string
	Title          string
	Description    string
	Type           string
	Kind           string // "primitive-type" | "complex-type" | "resource" | "logical"
	Abstract       bool
	Derivation     string // "specialization" | "constraint"
	BaseDefinition string
	FHIRVersion    string
	Status         string
	Context        []ExtensionContext
	Snapshot       []ElementDefinition
	Differential   []ElementDefinition
	Extension      []Extension
}

// ExtensionContext names where an Extension StructureDefinition may be used.
type ExtensionContext struct {
	Type       string // "element" | "extension" | "fhirpath"
	Expression string
}

// Extension is a generic FHIR extension slot, used here to carry the
// structuredefinition-type-characteristics extension and similar metadata
// extensions onto a StructureDefinition without a dedicated struct field
// per extension.
type Extension struct {
	URL         string
	ValueString string
	ValueCode   string
}

// ElementDefinition is a simplified internal representation of a FHIR
// ElementDefinition.
type ElementDefinition struct {
	ID               string
	Path             string
	SliceName        string
	Short            string
	Definition       string
	Comment          string
	Min              int
	MaxUnbounded     bool // true when Max == "*"
	Max              int  // meaningful only when !MaxUnbounded
	Types            []TypeRef
	Fixed            any
	Pattern          any
	Binding          *Binding
	Constraints      []Constraint
	MustSupport      bool
	IsModifier       bool
	IsSummary        bool
	Slicing          *Slicing
	ContentReference string
	Mappings         []Mapping
}

// MaxString renders Max/MaxUnbounded back into FHIR's "N" | "*" wire form.
func (e ElementDefinition) MaxString() string {
	if e.MaxUnbounded {
		return "*"
	}
	return itoa(e.Max)
}

// TypeRef represents a type reference in an ElementDefinition.
type TypeRef struct {
	Code          string
	Profile       []string
	TargetProfile []string
}

// Binding represents a terminology binding.
type Binding struct {
	Strength    string // "required" | "extensible" | "preferred" | "example"
	ValueSet    string
	Description string
}

// Constraint represents an invariant (FHIRPath constraint).
type Constraint struct {
	Key        string
	Severity   string // "error" | "warning"
	Human      string
	Expression string
	XPath      string
	Source     string
}

// Slicing represents element slicing rules.
type Slicing struct {
	Discriminator []Discriminator
	Description   string
	Ordered       bool
	Rules         string // "closed" | "open" | "openAtEnd"
}

// Discriminator defines how slices are differentiated.
type Discriminator struct {
	Type string // "value" | "pattern" | "exists" | "type" | "profile"
	Path string
}

// Mapping records a single "* path -> target" mapping rule's target entry.
type Mapping struct {
	Identity string
	Map      string
	Comment  string
}

// ValueSet is a simplified internal representation of a FHIR ValueSet.
type ValueSet struct {
	URL         string
	Name        string
	Title       string
	Description string
	Status      string
	Compose     *ValueSetCompose
}

// ValueSetCompose holds include/exclude rules for a ValueSet.
type ValueSetCompose struct {
	Include []ConceptSetComponent
	Exclude []ConceptSetComponent
}

// ConceptSetComponent is one include/exclude clause.
type ConceptSetComponent struct {
	System      string
	ValueSet    []string
	Concept     []ConceptReference
	IsAllCodes  bool
}

// ConceptReference names a single concept within a ConceptSetComponent.
type ConceptReference struct {
	Code    string
	Display string
}

// CodeSystem is a simplified internal representation of a FHIR CodeSystem.
type CodeSystem struct {
	URL         string
	Name        string
	Title       string
	Description string
	Status      string
	Content     string // "complete" | "fragment" | "example" | "not-present"
	Concept     []CodeSystemConcept
}

// CodeSystemConcept is one concept definition within a CodeSystem.
type CodeSystemConcept struct {
	Code       string
	Display    string
	Definition string
	Property   []ConceptProperty
	Concept    []CodeSystemConcept // nested/child concepts
}

// ConceptProperty is a code-level ^property assignment.
type ConceptProperty struct {
	Code  string
	Value any
}

// Instance is a simplified internal representation of an arbitrary FHIR
// resource instance exported from an FSH Instance definition.
type Instance struct {
	ResourceType string
	ID           string
	Profile      []string
	Fields       map[string]any // top-level field assignments, path-keyed
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
