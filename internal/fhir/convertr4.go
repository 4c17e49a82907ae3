package fhir

import (
	r4 "github.com/gofhir/fhir/r4"
)

// FromR4StructureDefinition converts a real github.com/gofhir/fhir/r4
// StructureDefinition into the simplified internal shape consumed by the
// exporter and decompiler. The module embeds no base-definition package
// (there is no internal/fhir/basepkg). R5 definitions skip this adapter
// entirely and are decoded straight from raw JSON into StructureDefinition,
// since no typed R5 struct library is available in the dependency pack;
// see DESIGN.md for this asymmetry.
func FromR4StructureDefinition(sd *r4.StructureDefinition) *StructureDefinition {
	if sd == nil {
		return nil
	}
	out := &StructureDefinition{
		URL:            strVal(sd.Url),
		Name:           sd.Name,
		Type:           sd.Type,
		Kind:           string(sd.Kind),
		Abstract:       sd.Abstract,
		BaseDefinition: strVal(sd.BaseDefinition),
		FHIRVersion:    strVal((*string)(sd.FhirVersion)),
		Status:         string(sd.Status),
	}
	if sd.Title != nil {
		out.Title = *sd.Title
	}
	if sd.Description != nil {
		out.Description = string(*sd.Description)
	}
	if sd.Derivation != nil {
		out.Derivation = string(*sd.Derivation)
	}
	for _, ctx := range sd.Context {
		out.Context = append(out.Context, ExtensionContext{
			Type:       string(ctx.Type),
			Expression: ctx.Expression,
		})
	}
	if sd.Snapshot != nil {
		for _, el := range sd.Snapshot.Element {
			out.Snapshot = append(out.Snapshot, fromR4Element(el))
		}
	}
	if sd.Differential != nil {
		for _, el := range sd.Differential.Element {
			out.Differential = append(out.Differential, fromR4Element(el))
		}
	}
	return out
}

func fromR4Element(el r4.ElementDefinition) ElementDefinition {
	out := ElementDefinition{
		Path: el.Path,
	}
	if el.Id != nil {
		out.ID = *el.Id
	}
	if el.SliceName != nil {
		out.SliceName = *el.SliceName
	}
	if el.Short != nil {
		out.Short = *el.Short
	}
	if el.Definition != nil {
		out.Definition = string(*el.Definition)
	}
	if el.Comment != nil {
		out.Comment = string(*el.Comment)
	}
	if el.Min != nil {
		out.Min = int(*el.Min)
	}
	if el.Max != nil {
		if *el.Max == "*" {
			out.MaxUnbounded = true
		} else {
			out.Max = parseMaxInt(*el.Max)
		}
	}
	if el.MustSupport != nil {
		out.MustSupport = *el.MustSupport
	}
	if el.IsModifier != nil {
		out.IsModifier = *el.IsModifier
	}
	if el.IsSummary != nil {
		out.IsSummary = *el.IsSummary
	}
	if el.ContentReference != nil {
		out.ContentReference = *el.ContentReference
	}
	for _, t := range el.Type {
		out.Types = append(out.Types, TypeRef{
			Code:          strVal(t.Code),
			Profile:       t.Profile,
			TargetProfile: t.TargetProfile,
		})
	}
	if el.Binding != nil {
		out.Binding = &Binding{
			Strength: string(el.Binding.Strength),
		}
		if el.Binding.ValueSet != nil {
			out.Binding.ValueSet = *el.Binding.ValueSet
		}
		if el.Binding.Description != nil {
			out.Binding.Description = *el.Binding.Description
		}
	}
	for _, c := range el.Constraint {
		out.Constraints = append(out.Constraints, Constraint{
			Key:        c.Key,
			Severity:   string(c.Severity),
			Human:      c.Human,
			Expression: strVal(c.Expression),
			XPath:      strVal(c.Xpath),
			Source:     strVal(c.Source),
		})
	}
	if el.Slicing != nil {
		s := &Slicing{
			Ordered: boolVal(el.Slicing.Ordered),
			Rules:   string(el.Slicing.Rules),
		}
		if el.Slicing.Description != nil {
			s.Description = *el.Slicing.Description
		}
		for _, d := range el.Slicing.Discriminator {
			s.Discriminator = append(s.Discriminator, Discriminator{
				Type: string(d.Type),
				Path: d.Path,
			})
		}
		out.Slicing = s
	}
	for _, m := range el.Mapping {
		out.Mappings = append(out.Mappings, Mapping{
			Identity: m.Identity,
			Map:      m.Map,
			Comment:  strVal(m.Comment),
		})
	}
	return out
}

func strVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolVal(b *bool) bool {
	return b != nil && *b
}

func parseMaxInt(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
