package taxonomy

import (
	"sort"
	"strings"

	"github.com/SilentInt/HamsterWallet/internal/core"
)

// Snapshot is an immutable, id-indexed view of the category tree at a point
// in time. Nodes link to each other by id, never by pointer, so walks are map
// lookups over the arena.
type Snapshot struct {
	nodes    map[int64]core.Category
	children map[int64][]int64
	roots    []int64
}

// TaxonomyEntry is one flattened category as presented to the classifier:
// id-tagged, with its full path so the model can see the hierarchy.
type TaxonomyEntry struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
	Path  string `json:"path"`
}

// NewSnapshot builds a snapshot arena from a flat category listing.
func NewSnapshot(cats []core.Category) *Snapshot {
	s := &Snapshot{
		nodes:    make(map[int64]core.Category, len(cats)),
		children: make(map[int64][]int64),
	}
	for _, c := range cats {
		s.nodes[c.ID] = c
		if c.ParentID == nil {
			s.roots = append(s.roots, c.ID)
		} else {
			s.children[*c.ParentID] = append(s.children[*c.ParentID], c.ID)
		}
	}
	s.sortByName(s.roots)
	for _, ids := range s.children {
		s.sortByName(ids)
	}
	return s
}

func (s *Snapshot) sortByName(ids []int64) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.nodes[ids[i]], s.nodes[ids[j]]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

// Len returns the number of nodes in the snapshot.
func (s *Snapshot) Len() int { return len(s.nodes) }

// Get returns the category with the given id, if present.
func (s *Snapshot) Get(id int64) (core.Category, bool) {
	c, ok := s.nodes[id]
	return c, ok
}

// NameByID resolves a category name, falling back to empty when unknown.
func (s *Snapshot) NameByID(id int64) string {
	if c, ok := s.nodes[id]; ok {
		return c.Name
	}
	return ""
}

// Children returns the direct child ids of a node.
func (s *Snapshot) Children(id int64) []int64 {
	return s.children[id]
}

// Descendants returns every node id below the given one, depth-first.
func (s *Snapshot) Descendants(id int64) []int64 {
	var out []int64
	stack := append([]int64(nil), s.children[id]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n)
		stack = append(stack, s.children[n]...)
	}
	return out
}

// IsDescendant reports whether candidate sits anywhere below ancestor. A walk
// up the parent links bounds the cost by tree depth.
func (s *Snapshot) IsDescendant(candidate, ancestor int64) bool {
	cur, ok := s.nodes[candidate]
	for ok && cur.ParentID != nil {
		if *cur.ParentID == ancestor {
			return true
		}
		cur, ok = s.nodes[*cur.ParentID]
	}
	return false
}

// SubtreeDepth returns the number of levels the subtree rooted at id spans,
// counting the node itself. A leaf has depth 1.
func (s *Snapshot) SubtreeDepth(id int64) int {
	depth := 1
	for _, child := range s.children[id] {
		if d := s.SubtreeDepth(child) + 1; d > depth {
			depth = d
		}
	}
	return depth
}

// Path returns the root-to-node names joined by " > ".
func (s *Snapshot) Path(id int64) string {
	var names []string
	cur, ok := s.nodes[id]
	for ok {
		names = append([]string{cur.Name}, names...)
		if cur.ParentID == nil {
			break
		}
		cur, ok = s.nodes[*cur.ParentID]
	}
	return strings.Join(names, " > ")
}

// Tree materializes the snapshot as nested nodes for API responses.
func (s *Snapshot) Tree() []*core.CategoryNode {
	var build func(id int64) *core.CategoryNode
	build = func(id int64) *core.CategoryNode {
		n := &core.CategoryNode{Category: s.nodes[id]}
		for _, child := range s.children[id] {
			n.Children = append(n.Children, build(child))
		}
		return n
	}
	out := make([]*core.CategoryNode, 0, len(s.roots))
	for _, root := range s.roots {
		out = append(out, build(root))
	}
	return out
}

// Flatten lists every node with its id and full path, the shape handed to the
// classifier so proposals can reference nodes by id.
func (s *Snapshot) Flatten() []TaxonomyEntry {
	out := make([]TaxonomyEntry, 0, len(s.nodes))
	var walk func(id int64)
	walk = func(id int64) {
		c := s.nodes[id]
		out = append(out, TaxonomyEntry{ID: c.ID, Name: c.Name, Level: c.Level, Path: s.Path(c.ID)})
		for _, child := range s.children[id] {
			walk(child)
		}
	}
	for _, root := range s.roots {
		walk(root)
	}
	return out
}
