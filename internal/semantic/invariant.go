package semantic

import (
	"fmt"
	"strings"

	"github.com/gofhir/fhirpath"
)

// Invariant is one registered "Invariant:" definition's constraint body.
type Invariant struct {
	Key        string
	Expression string
	Human      string
	Severity   string // "error" | "warning"
	XPath      string
}

// InvariantRegistry collects every Invariant definition seen during the
// collect phase and syntax-checks each expression by compiling it with the
// FHIRPath parser and discarding the result (§4.5: invariant expressions
// are checked for syntactic validity only, never evaluated against data at
// this layer — evaluation is C8 lint/export's job against real instances).
type InvariantRegistry struct {
	byKey map[string]*Invariant
}

// NewInvariantRegistry returns an empty registry.
func NewInvariantRegistry() *InvariantRegistry {
	return &InvariantRegistry{byKey: make(map[string]*Invariant)}
}

// Register validates and records inv, returning a diagnostic-ready error
// if inv is malformed or its key collides with one already registered.
func (r *InvariantRegistry) Register(inv *Invariant) error {
	if strings.TrimSpace(inv.Key) == "" {
		return fmt.Errorf("invariant has no key")
	}
	if _, dup := r.byKey[inv.Key]; dup {
		return fmt.Errorf("duplicate invariant key %q", inv.Key)
	}
	if strings.TrimSpace(inv.Expression) == "" {
		return fmt.Errorf("invariant %q has no expression", inv.Key)
	}
	if _, err := fhirpath.Compile(inv.Expression); err != nil {
		return fmt.Errorf("invariant %q has an invalid FHIRPath expression: %w", inv.Key, err)
	}
	switch strings.ToLower(strings.TrimPrefix(inv.Severity, "#")) {
	case "error", "warning", "":
	default:
		return fmt.Errorf("invariant %q has unrecognized severity %q", inv.Key, inv.Severity)
	}
	r.byKey[inv.Key] = inv
	return nil
}

// Lookup returns the invariant registered under key, if any.
func (r *InvariantRegistry) Lookup(key string) (*Invariant, bool) {
	inv, ok := r.byKey[key]
	return inv, ok
}

// Keys returns every registered invariant key.
func (r *InvariantRegistry) Keys() []string {
	out := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		out = append(out, k)
	}
	return out
}
