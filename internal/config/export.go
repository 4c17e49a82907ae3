package config

import "github.com/fshforge/fsh/internal/export"

// ExportConfig builds the small slice of settings the forward exporter
// consults directly. When fhirVersion lists more than one package, the
// first entry is the one the exporter builds canonical URLs and base
// definitions against; the remainder only affect C4 dependency resolution.
func (c *Configuration) ExportConfig() *export.Config {
	fhirVersion := ""
	if len(c.FHIRVersionRaw) > 0 {
		fhirVersion = c.FHIRVersionRaw[0]
	}
	return &export.Config{
		Canonical:                    c.Canonical,
		FHIRVersion:                  fhirVersion,
		ApplyExtensionMetadataToRoot: c.ApplyExtensionMetadataToRoot,
	}
}
