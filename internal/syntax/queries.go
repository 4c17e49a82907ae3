package syntax

// ChildNodeIDs returns direct child node ids of id, excluding token child
// refs, in source order.
func (t *Tree) ChildNodeIDs(id NodeID) []NodeID {
	n := t.NodeByID(id)
	if n == nil {
		return nil
	}
	out := make([]NodeID, 0, len(n.Children))
	for _, child := range n.Children {
		if child.IsToken {
			continue
		}
		out = append(out, NodeID(child.Index))
	}
	return out
}

// TopLevelDeclarationIDs returns the document's direct top-level definition
// nodes (Alias, Profile, Extension, ValueSet, ...).
func (t *Tree) TopLevelDeclarationIDs() []NodeID {
	if t == nil {
		return nil
	}
	return t.ChildNodeIDs(t.Root)
}
