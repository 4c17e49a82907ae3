package resolve

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buger/jsonparser"
	_ "modernc.org/sqlite"

	"github.com/fshforge/fsh/internal/fhir"
)

// PackageStore is a sqlite-backed index over installed FHIR packages,
// the Go-native analog of SUSHI's ~/.fhir/packages index (§4.4). It
// records (package_id, version, canonical_url, resource_type, file_path)
// tuples; resource content itself stays on disk and is decoded on demand
// by LoadBy*, not duplicated into the database.
type PackageStore struct {
	db *sql.DB
}

// OpenPackageStore opens (creating if absent) the sqlite index at path.
// An empty path opens an in-memory store, useful for tests and for
// single-run executor invocations that call RegisterPackage directly.
func OpenPackageStore(path string) (*PackageStore, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open package store: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init package store schema: %w", err)
	}
	return &PackageStore{db: db}, nil
}

// Close releases the underlying sqlite connection.
func (s *PackageStore) Close() error {
	return s.db.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS resources (
	package_id    TEXT NOT NULL,
	version       TEXT NOT NULL,
	canonical_url TEXT,
	resource_id   TEXT,
	name          TEXT,
	resource_type TEXT NOT NULL,
	file_path     TEXT NOT NULL,
	PRIMARY KEY (package_id, version, file_path)
);
CREATE INDEX IF NOT EXISTS idx_resources_url  ON resources(canonical_url);
CREATE INDEX IF NOT EXISTS idx_resources_id   ON resources(resource_id);
CREATE INDEX IF NOT EXISTS idx_resources_name ON resources(name);
CREATE INDEX IF NOT EXISTS idx_resources_type ON resources(resource_type);
`

// RegisterPackage walks dir (an unpacked FHIR package directory, i.e. a
// flat folder of *.json resource files) and records every resource it
// finds under packageID/version. Package download/installation is an
// external collaborator per spec.md's Non-goals; this is purely indexing
// of already-unpacked content, called once by the executor's caller at
// startup.
func (s *PackageStore) RegisterPackage(dir, packageID, version string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("register package %s@%s: %w", packageID, version, err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO resources
		(package_id, version, canonical_url, resource_id, name, resource_type, file_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		full := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(full)
		if err != nil {
			continue // a single unreadable file shouldn't abort the whole package
		}
		resourceType, _ := jsonparser.GetString(data, "resourceType")
		if resourceType == "" {
			continue
		}
		url, _ := jsonparser.GetString(data, "url")
		id, _ := jsonparser.GetString(data, "id")
		name, _ := jsonparser.GetString(data, "name")
		if _, err := stmt.Exec(packageID, version, url, id, name, resourceType, full); err != nil {
			return fmt.Errorf("index %s: %w", full, err)
		}
	}
	return tx.Commit()
}

// LoadByURL looks up a resource by exact canonical_url and decodes it.
func (s *PackageStore) LoadByURL(url string) (*Resource, bool) {
	return s.loadWhere("canonical_url = ?", url)
}

// LoadByID looks up a resource by its FHIR id.
func (s *PackageStore) LoadByID(id string) (*Resource, bool) {
	return s.loadWhere("resource_id = ?", id)
}

// LoadByName looks up a resource by its declared FHIR name.
func (s *PackageStore) LoadByName(name string) (*Resource, bool) {
	return s.loadWhere("name = ?", name)
}

// LoadByType returns every indexed resource whose resource_type maps to t.
func (s *PackageStore) LoadByType(t ResourceType) []*Resource {
	rows, err := s.db.Query(`SELECT file_path, resource_type FROM resources WHERE resource_type = ?`, fhirResourceTypeFor(t))
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []*Resource
	for rows.Next() {
		var path, rtype string
		if err := rows.Scan(&path, &rtype); err != nil {
			continue
		}
		if r, ok := decodeResourceFile(path, rtype); ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *PackageStore) loadWhere(predicate, arg string) (*Resource, bool) {
	row := s.db.QueryRow(`SELECT file_path, resource_type FROM resources WHERE `+predicate+` LIMIT 1`, arg)
	var path, rtype string
	if err := row.Scan(&path, &rtype); err != nil {
		return nil, false
	}
	return decodeResourceFile(path, rtype)
}

// decodeResourceFile reads path and decodes it into the fhir package's
// simplified internal shape, triaging by resourceType the way the
// decompiler's ResourceLake does (§4.7), without an intermediate typed
// R4/R5 unmarshal for the common case.
func decodeResourceFile(path, resourceType string) (*Resource, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	url, _ := jsonparser.GetString(data, "url")
	id, _ := jsonparser.GetString(data, "id")
	name, _ := jsonparser.GetString(data, "name")

	r := &Resource{URL: url, ID: id, Name: name}
	switch resourceType {
	case "StructureDefinition":
		var sd fhir.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			return nil, false
		}
		r.StructureDefinition = &sd
		switch sd.Type {
		case "Extension":
			r.Type = TypeExtension
		default:
			r.Type = TypeStructureDefinition
		}
	case "ValueSet":
		var vs fhir.ValueSet
		if err := json.Unmarshal(data, &vs); err != nil {
			return nil, false
		}
		r.ValueSet = &vs
		r.Type = TypeValueSet
	case "CodeSystem":
		var cs fhir.CodeSystem
		if err := json.Unmarshal(data, &cs); err != nil {
			return nil, false
		}
		r.CodeSystem = &cs
		r.Type = TypeCodeSystem
	default:
		return nil, false
	}
	return r, true
}

func fhirResourceTypeFor(t ResourceType) string {
	switch t {
	case TypeProfile, TypeExtension, TypeLogical, TypeResource, TypeStructureDefinition:
		return "StructureDefinition"
	case TypeValueSet:
		return "ValueSet"
	case TypeCodeSystem:
		return "CodeSystem"
	case TypeInstance:
		return "Instance"
	default:
		return ""
	}
}

// ErrPackageNotFound is returned by callers that expect RegisterPackage to
// have already indexed the requested package; PackageStore itself never
// returns it (a miss is reported via the bool return of LoadBy*).
var ErrPackageNotFound = errors.New("package not found in store")
