// Package taxonomy holds the classification hierarchy and the view projector
// that decides which taxon each leaf measurement is displayed as.
//
// Depths are 1-based: the first segment of every taxonomic path sits at depth
// 1. The tree keeps an unexported sentinel above the depth-1 taxa so that a
// forest of kingdoms behaves as a single rooted tree; the sentinel is never
// returned from any query.
package taxonomy

import (
	"sort"
	"strings"
)

// PathDelimiter separates levels in a taxonomic string ("k__A; p__B").
const PathDelimiter = ";"

// ID is a stable handle to a taxon inside one Tree.
type ID int

// NoTaxon is the Parent of depth-1 taxa.
const NoTaxon ID = -1

const sentinel ID = 0

// Row is one classification record: the leaf measurement identifier and the
// already-split path from depth 1 to the leaf.
type Row struct {
	LeafID string   `json:"leaf_id"`
	Path   []string `json:"path"`
}

// ParsePath splits a delimited taxonomic string, trims every level and drops
// empty levels.
func ParsePath(s string) []string {
	parts := strings.Split(s, PathDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinPath is the inverse of ParsePath for clean names.
func JoinPath(names []string) string {
	return strings.Join(names, PathDelimiter)
}

type childKey struct {
	parent ID
	name   string
}

type node struct {
	name     string
	fullName string
	parent   ID
	depth    int
	children []ID
	leafIDs  []string
}

// Taxon is a read-only snapshot of one node.
type Taxon struct {
	ID       ID       `json:"id"`
	Name     string   `json:"name"`
	FullName string   `json:"full_name"`
	Parent   ID       `json:"parent"`
	Depth    int      `json:"depth"`
	Children []ID     `json:"children,omitempty"`
	LeafIDs  []string `json:"leaf_ids,omitempty"`
}

// IsLeaf reports whether the taxon has no children.
func (t Taxon) IsLeaf() bool { return len(t.Children) == 0 }

// Tree is an arena-backed classification hierarchy. Nodes are created by
// Build and never removed, so handles stay valid for the life of the Tree.
// A Tree is immutable after Build and safe for concurrent reads.
type Tree struct {
	nodes        []node
	children     map[childKey]ID
	leafIndex    map[string]ID
	duplicates   map[string][]ID
	maxLeafDepth int
}

// Build constructs a Tree from classification rows. The whole build aborts on
// the first row with an empty path. A leaf identifier that ends up on two
// different taxa does not fail the build; lookups of that identifier report
// an invariant violation instead (see DuplicateLeafIDs).
func Build(rows []Row) (*Tree, error) {
	t := &Tree{
		nodes:      []node{{parent: NoTaxon}},
		children:   make(map[childKey]ID),
		leafIndex:  make(map[string]ID, len(rows)),
		duplicates: make(map[string][]ID),
	}

	for i, row := range rows {
		if len(row.Path) == 0 {
			return nil, errMalformedPath(i, row.LeafID)
		}
		cur := sentinel
		for _, name := range row.Path {
			cur = t.child(cur, name)
		}
		t.claim(cur, row.LeafID)
	}

	for i := 1; i < len(t.nodes); i++ {
		n := &t.nodes[i]
		if len(n.children) == 0 && n.depth > t.maxLeafDepth {
			t.maxLeafDepth = n.depth
		}
	}
	return t, nil
}

// child returns the child of parent named name, creating it when absent.
func (t *Tree) child(parent ID, name string) ID {
	key := childKey{parent: parent, name: name}
	if id, ok := t.children[key]; ok {
		return id
	}
	p := t.nodes[parent]
	fullName := name
	if parent != sentinel {
		fullName = p.fullName + PathDelimiter + name
	}
	id := ID(len(t.nodes))
	t.nodes = append(t.nodes, node{
		name:     name,
		fullName: fullName,
		parent:   parent,
		depth:    p.depth + 1,
	})
	t.nodes[parent].children = append(t.nodes[parent].children, id)
	t.children[key] = id
	return id
}

func (t *Tree) claim(id ID, leafID string) {
	prev, seen := t.leafIndex[leafID]
	switch {
	case !seen:
		t.leafIndex[leafID] = id
		t.nodes[id].leafIDs = append(t.nodes[id].leafIDs, leafID)
	case prev == id:
		// Repeated row for the same taxon.
	default:
		if _, dup := t.duplicates[leafID]; !dup {
			t.duplicates[leafID] = []ID{prev}
		}
		t.duplicates[leafID] = append(t.duplicates[leafID], id)
		t.nodes[id].leafIDs = append(t.nodes[id].leafIDs, leafID)
	}
}

func (t *Tree) valid(id ID) bool {
	return id > sentinel && int(id) < len(t.nodes)
}

// Len returns the number of taxa.
func (t *Tree) Len() int { return len(t.nodes) - 1 }

// MaxLeafDepth returns the depth of the deepest leaf, 0 for an empty tree.
func (t *Tree) MaxLeafDepth() int { return t.maxLeafDepth }

// Roots returns the depth-1 taxa in insertion order.
func (t *Tree) Roots() []ID {
	return append([]ID(nil), t.nodes[sentinel].children...)
}

// Taxon returns a snapshot of id.
func (t *Tree) Taxon(id ID) (Taxon, error) {
	if !t.valid(id) {
		return Taxon{}, errUnknownTaxon(id)
	}
	n := t.nodes[id]
	parent := n.parent
	if parent == sentinel {
		parent = NoTaxon
	}
	return Taxon{
		ID:       id,
		Name:     n.name,
		FullName: n.fullName,
		Parent:   parent,
		Depth:    n.depth,
		Children: append([]ID(nil), n.children...),
		LeafIDs:  append([]string(nil), n.leafIDs...),
	}, nil
}

// FullName returns the names from depth 1 to id joined by PathDelimiter.
func (t *Tree) FullName(id ID) (string, error) {
	if !t.valid(id) {
		return "", errUnknownTaxon(id)
	}
	return t.nodes[id].fullName, nil
}

// Depth returns the 1-based depth of id.
func (t *Tree) Depth(id ID) (int, error) {
	if !t.valid(id) {
		return 0, errUnknownTaxon(id)
	}
	return t.nodes[id].depth, nil
}

// Descendants returns id and all nodes below it in pre-order.
func (t *Tree) Descendants(id ID) ([]ID, error) {
	if !t.valid(id) {
		return nil, errUnknownTaxon(id)
	}
	var out []ID
	t.walk(id, 0, func(n ID) { out = append(out, n) })
	return out, nil
}

// DescendantsAtDepth returns the descendants of id (id included) whose depth
// is exactly depth.
func (t *Tree) DescendantsAtDepth(id ID, depth int) ([]ID, error) {
	if !t.valid(id) {
		return nil, errUnknownTaxon(id)
	}
	var out []ID
	t.walk(id, depth, func(n ID) {
		if t.nodes[n].depth == depth {
			out = append(out, n)
		}
	})
	return out, nil
}

// walk visits id and its descendants in pre-order, not descending below
// maxDepth when maxDepth > 0.
func (t *Tree) walk(id ID, maxDepth int, visit func(ID)) {
	stack := []ID{id}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(n)
		if maxDepth > 0 && t.nodes[n].depth >= maxDepth {
			continue
		}
		kids := t.nodes[n].children
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
}

// Ancestors returns the lineage of id from its depth-1 ancestor down to id.
func (t *Tree) Ancestors(id ID) ([]ID, error) {
	if !t.valid(id) {
		return nil, errUnknownTaxon(id)
	}
	out := make([]ID, t.nodes[id].depth)
	for cur := id; cur != sentinel; cur = t.nodes[cur].parent {
		out[t.nodes[cur].depth-1] = cur
	}
	return out, nil
}

// AncestorAtDepth returns the member of id's lineage at depth. A depth deeper
// than id, or below 1, is an InvalidDepthError.
func (t *Tree) AncestorAtDepth(id ID, depth int) (ID, error) {
	if !t.valid(id) {
		return NoTaxon, errUnknownTaxon(id)
	}
	own := t.nodes[id].depth
	if depth > own || depth < 1 {
		return NoTaxon, errInvalidDepth(id, own, depth)
	}
	cur := id
	for t.nodes[cur].depth > depth {
		cur = t.nodes[cur].parent
	}
	if t.nodes[cur].depth != depth || cur == sentinel {
		return NoTaxon, errInvariant("lineage has no member at the requested depth").
			WithDetailf("id=%d depth=%d", id, depth)
	}
	return cur, nil
}

// FindLeafByMeasurementID returns the taxon that classifies leafID in O(1).
func (t *Tree) FindLeafByMeasurementID(leafID string) (ID, error) {
	if claims, dup := t.duplicates[leafID]; dup {
		return NoTaxon, errDuplicateLeaf(leafID, claims)
	}
	id, ok := t.leafIndex[leafID]
	if !ok {
		return NoTaxon, errLeafNotFound(leafID)
	}
	return id, nil
}

// FindByPath returns the taxon whose full name matches path after ParsePath.
func (t *Tree) FindByPath(path string) (ID, error) {
	names := ParsePath(path)
	if len(names) == 0 {
		return NoTaxon, errPathNotFound(path)
	}
	cur := sentinel
	for _, name := range names {
		next, ok := t.children[childKey{parent: cur, name: name}]
		if !ok {
			return NoTaxon, errPathNotFound(path)
		}
		cur = next
	}
	return cur, nil
}

// Leaves returns every childless taxon in handle order.
func (t *Tree) Leaves() []ID {
	var out []ID
	for i := 1; i < len(t.nodes); i++ {
		if len(t.nodes[i].children) == 0 {
			out = append(out, ID(i))
		}
	}
	return out
}

// DuplicateLeafIDs lists leaf identifiers claimed by more than one taxon,
// sorted.
func (t *Tree) DuplicateLeafIDs() []string {
	out := make([]string, 0, len(t.duplicates))
	for id := range t.duplicates {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LeafCount returns the number of leaf identifiers classified under id.
func (t *Tree) LeafCount(id ID) (int, error) {
	if !t.valid(id) {
		return 0, errUnknownTaxon(id)
	}
	total := 0
	t.walk(id, 0, func(n ID) { total += len(t.nodes[n].leafIDs) })
	return total, nil
}
