package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fshforge/fsh/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sushi-config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfig(t, "id: my.package\ncanonical: http://example.org/my-package\nfhirVersion: 4.0.1\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ID != "my.package" {
		t.Errorf("expected id my.package, got %q", cfg.ID)
	}
	if cfg.Canonical != "http://example.org/my-package" {
		t.Errorf("unexpected canonical %q", cfg.Canonical)
	}
	versions := cfg.FHIRVersion()
	if len(versions) != 1 || versions[0].Major != 4 || versions[0].Minor != 0 || versions[0].Patch != 1 {
		t.Errorf("unexpected fhirVersion %+v", versions)
	}
}

func TestLoadAcceptsFHIRVersionList(t *testing.T) {
	path := writeConfig(t, "id: my.package\ncanonical: http://example.org/my-package\nfhirVersion: [4.0.1, 5.0.0]\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	versions := cfg.FHIRVersion()
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %+v", versions)
	}
}

func TestLoadMissingFileReturnsNotFound(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *config.Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected a *config.Error, got %v", err)
	}
	if cfgErr.Code() != config.CodeNotFound {
		t.Errorf("expected CodeNotFound, got %v", cfgErr.Code())
	}
}

func TestLoadRequiresIDAndCanonicalAndFHIRVersion(t *testing.T) {
	cases := []string{
		"canonical: http://example.org/my-package\nfhirVersion: 4.0.1\n",
		"id: my.package\nfhirVersion: 4.0.1\n",
		"id: my.package\ncanonical: http://example.org/my-package\n",
	}
	for _, src := range cases {
		path := writeConfig(t, src)
		_, err := config.Load(path)
		var cfgErr *config.Error
		if !errors.As(err, &cfgErr) {
			t.Fatalf("expected a *config.Error for %q, got %v", src, err)
		}
		if cfgErr.Code() != config.CodeMissingField {
			t.Errorf("expected CodeMissingField for %q, got %v", src, cfgErr.Code())
		}
	}
}

func TestLoadRejectsInvalidFHIRVersion(t *testing.T) {
	path := writeConfig(t, "id: my.package\ncanonical: http://example.org/my-package\nfhirVersion: not-a-version\n")
	_, err := config.Load(path)
	var cfgErr *config.Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected a *config.Error, got %v", err)
	}
	if cfgErr.Code() != config.CodeInvalidFHIRVersion {
		t.Errorf("expected CodeInvalidFHIRVersion, got %v", cfgErr.Code())
	}
}

func TestLoadRejectsInvalidStatus(t *testing.T) {
	path := writeConfig(t, "id: my.package\ncanonical: http://example.org/my-package\nfhirVersion: 4.0.1\nstatus: finished\n")
	_, err := config.Load(path)
	var cfgErr *config.Error
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected a *config.Error, got %v", err)
	}
	if cfgErr.Code() != config.CodeInvalidStatus {
		t.Errorf("expected CodeInvalidStatus, got %v", cfgErr.Code())
	}
}

func TestParseFHIRVersionPadsMissingPatch(t *testing.T) {
	v, err := config.ParseFHIRVersion("4.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Major != 4 || v.Minor != 0 || v.Patch != 0 {
		t.Errorf("unexpected version %+v", v)
	}
}

func TestDependencyAcceptsShortAndLongForm(t *testing.T) {
	path := writeConfig(t, "id: my.package\ncanonical: http://example.org/my-package\n"+
		"fhirVersion: 4.0.1\n"+
		"dependencies:\n"+
		"  hl7.fhir.us.core: 6.1.0\n"+
		"  hl7.fhir.uv.extensions:\n"+
		"    version: 1.0.0\n"+
		"    uri: http://hl7.org/fhir/extensions/ImplementationGuide/hl7.fhir.uv.extensions\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	core, ok := cfg.Dependencies["hl7.fhir.us.core"]
	if !ok || core.Version != "6.1.0" {
		t.Fatalf("expected short-form dependency, got %+v", cfg.Dependencies)
	}
	if core.PackageID != "hl7.fhir.us.core" {
		t.Errorf("expected PackageID set from map key, got %q", core.PackageID)
	}
	ext, ok := cfg.Dependencies["hl7.fhir.uv.extensions"]
	if !ok || ext.Version != "1.0.0" || ext.URI == "" {
		t.Fatalf("expected long-form dependency, got %+v", cfg.Dependencies)
	}
}

func TestApplyExtensionMetadataToRootDefaultsFalse(t *testing.T) {
	path := writeConfig(t, "id: my.package\ncanonical: http://example.org/my-package\nfhirVersion: 4.0.1\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ApplyExtensionMetadataToRoot {
		t.Errorf("expected default false")
	}
}

func TestApplyExtensionMetadataToRootHonorsKey(t *testing.T) {
	path := writeConfig(t, "id: my.package\ncanonical: http://example.org/my-package\n"+
		"fhirVersion: 4.0.1\n"+
		"applyExtensionMetadataToRoot: true\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.ApplyExtensionMetadataToRoot {
		t.Errorf("expected true")
	}
}

func TestInstanceOptionsParsed(t *testing.T) {
	path := writeConfig(t, "id: my.package\ncanonical: http://example.org/my-package\n"+
		"fhirVersion: 4.0.1\n"+
		"instanceOptions:\n"+
		"  setMetaProfile: inline-only\n"+
		"  setId: always\n"+
		"  manualSliceOrdering: true\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.InstanceOptions.SetMetaProfile != "inline-only" {
		t.Errorf("unexpected setMetaProfile %q", cfg.InstanceOptions.SetMetaProfile)
	}
	if cfg.InstanceOptions.SetId != "always" {
		t.Errorf("unexpected setId %q", cfg.InstanceOptions.SetId)
	}
	if !cfg.InstanceOptions.ManualSliceOrdering {
		t.Errorf("expected manualSliceOrdering true")
	}
}

func TestExportConfigUsesFirstFHIRVersion(t *testing.T) {
	path := writeConfig(t, "id: my.package\ncanonical: http://example.org/my-package\n"+
		"fhirVersion: [4.0.1, 5.0.0]\n"+
		"applyExtensionMetadataToRoot: true\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ec := cfg.ExportConfig()
	if ec.Canonical != "http://example.org/my-package" {
		t.Errorf("unexpected canonical %q", ec.Canonical)
	}
	if ec.FHIRVersion != "4.0.1" {
		t.Errorf("expected first fhirVersion entry, got %q", ec.FHIRVersion)
	}
	if !ec.ApplyExtensionMetadataToRoot {
		t.Errorf("expected ApplyExtensionMetadataToRoot true")
	}
}
