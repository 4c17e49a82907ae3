package config

import (
	"fmt"
	"path/filepath"

	"github.com/fshforge/fsh/internal/resolve"
)

// RegisterDependencies registers every manifest dependency with store,
// feeding C4's canonical resolver from the manifest's `dependencies` map
// the way spec.md §6 describes (executor consumption of configuration).
// Each dependency is expected to already be unpacked under cacheDir in the
// FHIR package registry's own `<id>#<version>` cache layout; fetching
// packages from a registry over the network is out of scope here.
func (c *Configuration) RegisterDependencies(store *resolve.PackageStore, cacheDir string) error {
	for id, dep := range c.Dependencies {
		dir := filepath.Join(cacheDir, fmt.Sprintf("%s#%s", id, dep.Version))
		if err := store.RegisterPackage(dir, id, dep.Version); err != nil {
			return fmt.Errorf("register dependency %s#%s: %w", id, dep.Version, err)
		}
	}
	return nil
}
