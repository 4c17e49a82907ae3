// Package resolve implements the canonical resolver (C4): the uniform
// "Fishable" lookup contract over FHIR resources, backed by a local
// in-memory index and an installed-package cache.
package resolve

import (
	"strings"
	"sync"

	"github.com/fshforge/fsh/internal/fhir"
)

// ResourceType enumerates the coarse kinds fish/fish_by_type filters over.
type ResourceType string

// ResourceType values recognized by the Fishable contract.
const (
	TypeStructureDefinition ResourceType = "StructureDefinition"
	TypeProfile             ResourceType = "Profile"
	TypeExtension           ResourceType = "Extension"
	TypeLogical             ResourceType = "Logical"
	TypeResource            ResourceType = "Resource"
	TypeValueSet            ResourceType = "ValueSet"
	TypeCodeSystem          ResourceType = "CodeSystem"
	TypeInstance            ResourceType = "Instance"
	TypeAny                 ResourceType = "Any"
)

// Resource is the uniform lookup result: a content-addressed, immutable
// (shared-owned) wrapper over one of the fhir package's resource kinds.
// Exactly one of the typed fields is non-nil.
type Resource struct {
	URL  string
	ID   string
	Name string
	Type ResourceType

	StructureDefinition *fhir.StructureDefinition
	ValueSet            *fhir.ValueSet
	CodeSystem          *fhir.CodeSystem
	Instance            *fhir.Instance
}

// Fishable is the uniform lookup interface every canonical resolver layer
// (local project resources, installed-package session, or a composed
// cascade of both) implements. All methods are pure, side-effect-free, and
// safe for concurrent use.
type Fishable interface {
	Fish(nameOrURL string, types ...ResourceType) (*Resource, bool)
	FishByURL(url string) (*Resource, bool)
	FishByID(id string) (*Resource, bool)
	FishByName(name string) (*Resource, bool)
	FishByType(t ResourceType) []*Resource
}

// Index is an in-memory Fishable implementation indexed by url/id/name,
// used both for local project resources and, loaded from a package cache,
// for the installed-package session. It implements the first two of the
// resolver's three cascaded lookups: a miss here falls through to whatever
// Session it was constructed with.
type Index struct {
	mu      sync.RWMutex
	byURL   map[string]*Resource
	byID    map[string]*Resource
	byName  map[string]*Resource
	byType  map[ResourceType][]*Resource
	session Fishable // optional fallback; nil for a leaf index
}

// NewIndex creates an empty Index, optionally cascading to session on miss.
func NewIndex(session Fishable) *Index {
	return &Index{
		byURL:   make(map[string]*Resource),
		byID:    make(map[string]*Resource),
		byName:  make(map[string]*Resource),
		byType:  make(map[ResourceType][]*Resource),
		session: session,
	}
}

// Register adds or replaces r in the index under every key it carries.
func (idx *Index) Register(r *Resource) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if r.URL != "" {
		idx.byURL[r.URL] = r
	}
	if r.ID != "" {
		idx.byID[r.ID] = r
	}
	if r.Name != "" {
		idx.byName[r.Name] = r
	}
	idx.byType[r.Type] = append(idx.byType[r.Type], r)
}

// Fish resolves nameOrURL, optionally filtered to types, matching name
// first, then id, then url, per §4.4. A miss cascades to idx.session.
func (idx *Index) Fish(nameOrURL string, types ...ResourceType) (*Resource, bool) {
	if looksLikeURL(nameOrURL) {
		if r, ok := idx.FishByURL(nameOrURL); ok && matchesTypes(r, types) {
			return r, true
		}
	}
	if r, ok := idx.FishByName(nameOrURL); ok && matchesTypes(r, types) {
		return r, true
	}
	if r, ok := idx.FishByID(nameOrURL); ok && matchesTypes(r, types) {
		return r, true
	}
	if r, ok := idx.FishByURL(nameOrURL); ok && matchesTypes(r, types) {
		return r, true
	}
	if idx.session != nil {
		return idx.session.Fish(nameOrURL, types...)
	}
	return nil, false
}

// FishByURL looks up a resource by its exact canonical url.
func (idx *Index) FishByURL(url string) (*Resource, bool) {
	idx.mu.RLock()
	r, ok := idx.byURL[url]
	idx.mu.RUnlock()
	if ok {
		return r, true
	}
	if idx.session != nil {
		return idx.session.FishByURL(url)
	}
	return nil, false
}

// FishByID looks up a resource by its local id.
func (idx *Index) FishByID(id string) (*Resource, bool) {
	idx.mu.RLock()
	r, ok := idx.byID[id]
	idx.mu.RUnlock()
	if ok {
		return r, true
	}
	if idx.session != nil {
		return idx.session.FishByID(id)
	}
	return nil, false
}

// FishByName looks up a resource by its declared FSH name.
func (idx *Index) FishByName(name string) (*Resource, bool) {
	idx.mu.RLock()
	r, ok := idx.byName[name]
	idx.mu.RUnlock()
	if ok {
		return r, true
	}
	if idx.session != nil {
		return idx.session.FishByName(name)
	}
	return nil, false
}

// FishByType returns every resource of type t, local then session.
func (idx *Index) FishByType(t ResourceType) []*Resource {
	idx.mu.RLock()
	local := append([]*Resource(nil), idx.byType[t]...)
	idx.mu.RUnlock()
	if idx.session != nil {
		local = append(local, idx.session.FishByType(t)...)
	}
	return local
}

func matchesTypes(r *Resource, types []ResourceType) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == TypeAny || t == r.Type {
			return true
		}
		// Profile/Resource/Extension/Logical all surface as
		// StructureDefinition storage kind; allow either filter to match.
		if r.Type == TypeStructureDefinition && (t == TypeProfile || t == TypeExtension || t == TypeLogical || t == TypeResource) {
			return true
		}
	}
	return false
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "urn:")
}
