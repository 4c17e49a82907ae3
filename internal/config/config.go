// Package config parses sushi-config.yaml, the project manifest the
// exporter and executor consult for canonical URL, declared FHIR
// version(s), dependency package IDs, and the handful of output-shaping
// parameters spec.md §6 enumerates.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/maloquacious/semver"
	"gopkg.in/yaml.v3"
)

// validStatuses is the closed set spec.md §6 requires `status` to be one
// of when present.
var validStatuses = map[string]bool{"draft": true, "active": true, "retired": true, "unknown": true}

// StringList decodes a sushi-config.yaml value that may be written as a
// single scalar or as a list (`fhirVersion` is documented as "string or
// string[]").
type StringList []string

func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*l = StringList{value.Value}
		return nil
	}
	var raw []string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*l = raw
	return nil
}

// Dependency is one entry of a sushi-config.yaml `dependencies` map: either
// a bare version string or an object with its own `version`/`uri`/`reason`.
type Dependency struct {
	PackageID string `yaml:"-"`
	Version   string `yaml:"version"`
	URI       string `yaml:"uri,omitempty"`
	Reason    string `yaml:"reason,omitempty"`
}

// UnmarshalYAML accepts both the short form (`hl7.fhir.us.core: 6.1.0`) and
// the long form (`hl7.fhir.us.core: {version: 6.1.0, uri: ...}`).
func (d *Dependency) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		d.Version = value.Value
		return nil
	}
	type alias Dependency
	var a alias
	if err := value.Decode(&a); err != nil {
		return err
	}
	*d = Dependency(a)
	return nil
}

// InstanceOptions covers the `instanceOptions.*` family of parameters.
type InstanceOptions struct {
	SetMetaProfile       string `yaml:"setMetaProfile,omitempty"` // always|never|inline-only|standalone-only
	SetId                string `yaml:"setId,omitempty"`          // always|standalone-only
	ManualSliceOrdering  bool   `yaml:"manualSliceOrdering,omitempty"`
}

// Configuration is the sushi-config.yaml schema this toolchain recognizes,
// per spec.md §6's key/effect table. Unrecognized keys are preserved in
// Extra rather than rejected, since the manifest schema is maintained
// upstream and grows fields this tool never needs to act on.
type Configuration struct {
	ID                           string                `yaml:"id"`
	Canonical                    string                `yaml:"canonical"`
	FHIRVersionRaw               StringList            `yaml:"fhirVersion"`
	Name                         string                `yaml:"name,omitempty"`
	Title                        string                `yaml:"title,omitempty"`
	Version                      string                `yaml:"version,omitempty"`
	Status                       string                `yaml:"status,omitempty"`
	Experimental                 bool                  `yaml:"experimental,omitempty"`
	Date                         string                `yaml:"date,omitempty"`
	Publisher                    string                `yaml:"publisher,omitempty"`
	Description                  string                `yaml:"description,omitempty"`
	License                      string                `yaml:"license,omitempty"`
	Copyright                    string                `yaml:"copyright,omitempty"`
	Dependencies                 map[string]Dependency `yaml:"dependencies,omitempty"`
	FSHOnly                      bool                  `yaml:"FSHOnly,omitempty"`
	ApplyExtensionMetadataToRoot bool                  `yaml:"applyExtensionMetadataToRoot,omitempty"`
	InstanceOptions              InstanceOptions       `yaml:"instanceOptions,omitempty"`
	Extra                        map[string]any        `yaml:",inline"`
}

// FHIRVersion returns the parsed, validated fhirVersion list. Load has
// already rejected a Configuration whose entries don't parse, so callers
// never observe an error here.
func (c *Configuration) FHIRVersion() []semver.Version {
	out := make([]semver.Version, 0, len(c.FHIRVersionRaw))
	for _, raw := range c.FHIRVersionRaw {
		if v, err := ParseFHIRVersion(raw); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// Load reads and parses path as a sushi-config.yaml manifest, validating
// the required fields and every fhirVersion entry along the way.
func Load(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(CodeNotFound, path, err.Error(), err)
	}
	var cfg Configuration
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, newError(CodeMalformed, path, err.Error(), err)
	}
	if cfg.ID == "" {
		return nil, newError(CodeMissingField, path, `missing required field "id"`, nil)
	}
	if cfg.Canonical == "" {
		return nil, newError(CodeMissingField, path, `empty required field "canonical"`, nil)
	}
	if len(cfg.FHIRVersionRaw) == 0 {
		return nil, newError(CodeMissingField, path, `empty required field "fhirVersion"`, nil)
	}
	for _, v := range cfg.FHIRVersionRaw {
		if _, err := ParseFHIRVersion(v); err != nil {
			return nil, newError(CodeInvalidFHIRVersion, path, err.Error(), err)
		}
	}
	if cfg.Status != "" && !validStatuses[cfg.Status] {
		return nil, newError(CodeInvalidStatus, path, fmt.Sprintf("status %q is not one of draft|active|retired|unknown", cfg.Status), nil)
	}
	for id, dep := range cfg.Dependencies {
		dep.PackageID = id
		cfg.Dependencies[id] = dep
	}
	return &cfg, nil
}

// ParseFHIRVersion validates a `fhirVersion` entry against the `M.m[.p]`
// shape FHIR package IDs use, padding a missing patch component to 0
// before constructing the semver.Version (FHIR itself treats "4.0" and
// "4.0.0" as the same release).
func ParseFHIRVersion(raw string) (semver.Version, error) {
	parts := strings.Split(raw, ".")
	if len(parts) == 2 {
		parts = append(parts, "0")
	}
	if len(parts) != 3 {
		return semver.Version{}, fmt.Errorf("fhirVersion %q is not in M.m[.p] form", raw)
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return semver.Version{}, fmt.Errorf("fhirVersion %q has a non-numeric major component", raw)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return semver.Version{}, fmt.Errorf("fhirVersion %q has a non-numeric minor component", raw)
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return semver.Version{}, fmt.Errorf("fhirVersion %q has a non-numeric patch component", raw)
	}
	return semver.Version{Major: major, Minor: minor, Patch: patch}, nil
}
