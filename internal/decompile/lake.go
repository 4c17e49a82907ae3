// Package decompile implements the reverse decompiler (C7): FHIR JSON
// resources walked back into FSH exportables through a Load/Process/
// Optimize/Serialize pipeline, the inverse of internal/export.
package decompile

import (
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"

	"github.com/fshforge/fsh/internal/fhir"
	"github.com/fshforge/fsh/internal/resolve"
)

// ResourceLake is a local, url/id/name-indexed store of loaded FHIR
// resources that implements resolve.Fishable, cascading misses to a
// backing canonical session (an installed-package resolve.Session,
// typically) exactly like any other layer in the resolver cascade.
type ResourceLake struct {
	*resolve.Index
}

// NewResourceLake creates an empty lake backed by session (nil is a valid,
// leaf-only lake: every miss simply fails).
func NewResourceLake(session resolve.Fishable) *ResourceLake {
	return &ResourceLake{Index: resolve.NewIndex(session)}
}

// Load triages one FHIR JSON document and registers it in the lake. It
// reads only resourceType/url/id/name with jsonparser before deciding
// which typed processor the (still-raw) bytes belong to, avoiding a full
// struct unmarshal for every resource just to find out what it is.
func (lake *ResourceLake) Load(raw []byte) error {
	resourceType, err := jsonparser.GetString(raw, "resourceType")
	if err != nil || resourceType == "" {
		return fmt.Errorf("decompile: load: missing resourceType")
	}
	url, _ := jsonparser.GetString(raw, "url")
	id, _ := jsonparser.GetString(raw, "id")
	name, _ := jsonparser.GetString(raw, "name")

	switch resourceType {
	case "StructureDefinition":
		var sd fhir.StructureDefinition
		if err := json.Unmarshal(raw, &sd); err != nil {
			return fmt.Errorf("decompile: load StructureDefinition: %w", err)
		}
		lake.Register(&resolve.Resource{URL: url, ID: id, Name: name, Type: resolve.TypeStructureDefinition, StructureDefinition: &sd})
	case "ValueSet":
		var vs fhir.ValueSet
		if err := json.Unmarshal(raw, &vs); err != nil {
			return fmt.Errorf("decompile: load ValueSet: %w", err)
		}
		lake.Register(&resolve.Resource{URL: url, ID: id, Name: name, Type: resolve.TypeValueSet, ValueSet: &vs})
	case "CodeSystem":
		var cs fhir.CodeSystem
		if err := json.Unmarshal(raw, &cs); err != nil {
			return fmt.Errorf("decompile: load CodeSystem: %w", err)
		}
		lake.Register(&resolve.Resource{URL: url, ID: id, Name: name, Type: resolve.TypeCodeSystem, CodeSystem: &cs})
	default:
		inst, err := instanceFromWire(resourceType, id, raw)
		if err != nil {
			return fmt.Errorf("decompile: load %s: %w", resourceType, err)
		}
		lake.Register(&resolve.Resource{URL: url, ID: id, Name: name, Type: resolve.TypeInstance, Instance: inst})
	}
	return nil
}

// instanceFromWire unmarshals an arbitrary resource (anything other than
// the four types the lake has a dedicated wire shape for) into a generic
// fhir.Instance, keeping every top-level field except resourceType/id.
func instanceFromWire(resourceType, id string, raw []byte) (*fhir.Instance, error) {
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	delete(generic, "resourceType")
	delete(generic, "id")
	return &fhir.Instance{ResourceType: resourceType, ID: id, Fields: generic}, nil
}
