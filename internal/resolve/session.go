package resolve

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey is the composite key an LRU entry is addressed by, mirroring the
// reference validator's own (url, version)-keyed terminology cache.
type cacheKey struct {
	url     string
	version string
}

// Session is the installed-package-backed Fishable layer: the second of
// the resolver's three cascaded lookups (§4.4). It wraps a PackageStore
// (the sqlite-backed package index) with an in-front LRU cache keyed by
// (canonical_url, version), so repeated fish() calls for the same base
// definitions during a single executor run don't re-hit the store.
type Session struct {
	store   *PackageStore
	cache   *lru.Cache[cacheKey, *Resource]
	version string // default version used when callers don't disambiguate
}

// NewSession wraps store with an LRU front cache of the given capacity.
// capacity <= 0 selects a default of 512 entries.
func NewSession(store *PackageStore, capacity int) (*Session, error) {
	if capacity <= 0 {
		capacity = 512
	}
	c, err := lru.New[cacheKey, *Resource](capacity)
	if err != nil {
		return nil, err
	}
	return &Session{store: store, cache: c}, nil
}

// Fish implements Fishable by delegating to FishByURL/FishByName/FishByID in
// the order §4.4 specifies, restricted by types.
func (s *Session) Fish(nameOrURL string, types ...ResourceType) (*Resource, bool) {
	if looksLikeURL(nameOrURL) {
		if r, ok := s.FishByURL(nameOrURL); ok && matchesTypes(r, types) {
			return r, true
		}
		return nil, false
	}
	if r, ok := s.FishByName(nameOrURL); ok && matchesTypes(r, types) {
		return r, true
	}
	if r, ok := s.FishByID(nameOrURL); ok && matchesTypes(r, types) {
		return r, true
	}
	return nil, false
}

// FishByURL resolves url through the LRU cache, falling back to the
// package store on miss and populating the cache with the result.
func (s *Session) FishByURL(url string) (*Resource, bool) {
	key := cacheKey{url: url, version: s.version}
	if r, ok := s.cache.Get(key); ok {
		return r, r != nil
	}
	r, ok := s.store.LoadByURL(url)
	if !ok {
		s.cache.Add(key, nil)
		return nil, false
	}
	s.cache.Add(key, r)
	return r, true
}

// FishByID resolves a local package-relative id via the store directly;
// ids are not cached since they are package-load-time stable and rarely
// repeat-queried relative to url lookups.
func (s *Session) FishByID(id string) (*Resource, bool) {
	return s.store.LoadByID(id)
}

// FishByName resolves a declared name via the store directly.
func (s *Session) FishByName(name string) (*Resource, bool) {
	return s.store.LoadByName(name)
}

// FishByType returns every resource of type t known to the store. Results
// are not cached (a "list everything of type T" query is not a hot path).
func (s *Session) FishByType(t ResourceType) []*Resource {
	return s.store.LoadByType(t)
}
