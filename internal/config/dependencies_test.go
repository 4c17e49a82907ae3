package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fshforge/fsh/internal/config"
	"github.com/fshforge/fsh/internal/resolve"
)

func TestRegisterDependenciesIndexesEachPackage(t *testing.T) {
	path := writeConfig(t, "id: my.package\ncanonical: http://example.org/my-package\n"+
		"fhirVersion: 4.0.1\n"+
		"dependencies:\n"+
		"  hl7.fhir.us.core: 6.1.0\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cacheDir := t.TempDir()
	pkgDir := filepath.Join(cacheDir, "hl7.fhir.us.core#6.1.0")
	if err := os.MkdirAll(pkgDir, 0755); err != nil {
		t.Fatalf("failed to create package dir: %v", err)
	}
	sd := `{"resourceType":"StructureDefinition","id":"us-core-patient","url":"http://hl7.org/fhir/us/core/StructureDefinition/us-core-patient","name":"USCorePatient"}`
	if err := os.WriteFile(filepath.Join(pkgDir, "StructureDefinition-us-core-patient.json"), []byte(sd), 0644); err != nil {
		t.Fatalf("failed to write package resource: %v", err)
	}

	store, err := resolve.OpenPackageStore("")
	if err != nil {
		t.Fatalf("failed to open package store: %v", err)
	}
	defer store.Close()

	if err := cfg.RegisterDependencies(store, cacheDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, ok := store.LoadByURL("http://hl7.org/fhir/us/core/StructureDefinition/us-core-patient")
	if !ok {
		t.Fatalf("expected registered dependency resource to be loadable")
	}
	if r == nil {
		t.Fatalf("expected non-nil resource")
	}
}
