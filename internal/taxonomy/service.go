package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/SilentInt/HamsterWallet/internal/core"
	"github.com/SilentInt/HamsterWallet/internal/storage"
)

// Store is the persistence surface the taxonomy service needs.
type Store interface {
	ListCategories(ctx context.Context) ([]core.Category, error)
	GetCategory(ctx context.Context, id int64) (core.Category, error)
	InsertCategory(ctx context.Context, c core.Category) (int64, error)
	UpdateCategoryName(ctx context.Context, id int64, name string) error
	ReparentCategory(ctx context.Context, id int64, parentID *int64, level int, descendants []storage.CategoryLevelUpdate) error
	DeleteCategoryTree(ctx context.Context, ids []int64) error
	MergeCategoryRefs(ctx context.Context, sourceID, targetID int64) (itemsMoved, childrenMoved int64, err error)
	CountItemsByCategory(ctx context.Context, categoryID int64) (int64, error)
	CountChildren(ctx context.Context, id int64) (int64, error)
	CountCategoriesByLevel(ctx context.Context) ([]storage.CategoryLevelCount, error)
}

// Service implements the taxonomy integrity operations. Every mutation is
// validated against a fresh snapshot and rejected whole: a failed operation
// never leaves a partial rewrite behind.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Snapshot loads the current tree into an id-indexed arena.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	return NewSnapshot(cats), nil
}

// Create adds a category at the given level under the given parent.
func (s *Service) Create(ctx context.Context, name string, level int, parentID *int64) (core.Category, error) {
	c := core.Category{Name: strings.TrimSpace(name), Level: level, ParentID: parentID}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return core.Category{}, err
	}

	if parentID != nil {
		parent, ok := snap.Get(*parentID)
		if !ok {
			return core.Category{}, fmt.Errorf("parent %d: %w", *parentID, core.ErrNotFound)
		}
		if parent.Level != level-1 {
			return core.Category{}, core.ErrParentLevel
		}
	}
	if hasSiblingNamed(snap, parentID, level, c.Name, 0) {
		return core.Category{}, core.ErrDuplicateName
	}

	id, err := s.store.InsertCategory(ctx, c)
	if err != nil {
		return core.Category{}, err
	}
	c.ID = id

	slog.InfoContext(ctx, "Category created", "id", id, "name", c.Name, "level", level)
	return c, nil
}

// Rename changes a category's name, keeping sibling names unique.
func (s *Service) Rename(ctx context.Context, id int64, name string) (core.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, core.ErrEmptyName
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return core.Category{}, err
	}
	c, ok := snap.Get(id)
	if !ok {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	if hasSiblingNamed(snap, c.ParentID, c.Level, name, id) {
		return core.Category{}, core.ErrDuplicateName
	}

	if err := s.store.UpdateCategoryName(ctx, id, name); err != nil {
		return core.Category{}, err
	}
	c.Name = name
	return c, nil
}

// Reparent moves a category under a new parent (or to the root when nil),
// recomputing its level and recursively rewriting descendant levels so that
// level always equals depth from root.
func (s *Service) Reparent(ctx context.Context, id int64, newParentID *int64) (core.Category, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return core.Category{}, err
	}
	c, ok := snap.Get(id)
	if !ok {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}

	newLevel := 1
	if newParentID != nil {
		if *newParentID == id {
			return core.Category{}, core.ErrCycleDetected
		}
		parent, ok := snap.Get(*newParentID)
		if !ok {
			return core.Category{}, fmt.Errorf("parent %d: %w", *newParentID, core.ErrNotFound)
		}
		if snap.IsDescendant(*newParentID, id) {
			return core.Category{}, core.ErrCycleDetected
		}
		newLevel = parent.Level + 1
	}

	// The deepest node of the moved subtree must stay within the depth cap.
	if newLevel+snap.SubtreeDepth(id)-1 > core.MaxCategoryDepth {
		return core.Category{}, core.ErrDepthExceeded
	}
	if hasSiblingNamed(snap, newParentID, newLevel, c.Name, id) {
		return core.Category{}, core.ErrDuplicateName
	}

	updates := descendantLevels(snap, id, newLevel)
	if err := s.store.ReparentCategory(ctx, id, newParentID, newLevel, updates); err != nil {
		return core.Category{}, err
	}

	slog.InfoContext(ctx, "Category reparented",
		"id", id, "new_level", newLevel, "descendants_rewritten", len(updates))

	c.ParentID = newParentID
	c.Level = newLevel
	return c, nil
}

// Delete removes a single category. It refuses when the node still has
// children or referencing items.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.store.GetCategory(ctx, id); err != nil {
		return err
	}

	children, err := s.store.CountChildren(ctx, id)
	if err != nil {
		return err
	}
	if children > 0 {
		return core.ErrHasChildren
	}

	usage, err := s.usageOf(ctx, id)
	if err != nil {
		return err
	}
	if usage.ItemCount > 0 {
		return &core.StillReferencedError{Blocking: []core.CategoryUsage{usage}}
	}

	return s.store.DeleteCategoryTree(ctx, []int64{id})
}

// CascadeDelete removes a category and its whole subtree. The entire subtree
// is checked for item references first; one referenced node anywhere blocks
// the operation and nothing is deleted. Deletion order is deepest level
// first. Returns the number of nodes removed.
func (s *Service) CascadeDelete(ctx context.Context, id int64) (int, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if _, ok := snap.Get(id); !ok {
		return 0, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}

	subtree := append([]int64{id}, snap.Descendants(id)...)

	var blocking []core.CategoryUsage
	for _, nodeID := range subtree {
		usage, err := s.usageOf(ctx, nodeID)
		if err != nil {
			return 0, err
		}
		if usage.ItemCount > 0 {
			blocking = append(blocking, usage)
		}
	}
	if len(blocking) > 0 {
		return 0, &core.StillReferencedError{Blocking: blocking}
	}

	// Children before parents so the self-referential FK never dangles.
	sort.SliceStable(subtree, func(i, j int) bool {
		a, _ := snap.Get(subtree[i])
		b, _ := snap.Get(subtree[j])
		return a.Level > b.Level
	})

	if err := s.store.DeleteCategoryTree(ctx, subtree); err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Category subtree deleted", "root_id", id, "count", len(subtree))
	return len(subtree), nil
}

// MergeReport summarizes what a merge moved.
type MergeReport struct {
	ItemsMoved    int64 `json:"items_moved"`
	ChildrenMoved int64 `json:"children_moved"`
	SourceDeleted bool  `json:"source_deleted"`
}

// Merge migrates every item and direct child from source to target, which
// must sit at the same level. When deleteSource is set, the source is removed
// only after a second check confirms nothing still references it; a write
// landing mid-migration leaves the source in place rather than orphaning.
func (s *Service) Merge(ctx context.Context, sourceID, targetID int64, deleteSource bool) (MergeReport, error) {
	if sourceID == targetID {
		return MergeReport{}, core.ErrSelfMerge
	}

	source, err := s.store.GetCategory(ctx, sourceID)
	if err != nil {
		return MergeReport{}, err
	}
	target, err := s.store.GetCategory(ctx, targetID)
	if err != nil {
		return MergeReport{}, err
	}
	if source.Level != target.Level {
		return MergeReport{}, core.ErrLevelMismatch
	}

	items, children, err := s.store.MergeCategoryRefs(ctx, sourceID, targetID)
	if err != nil {
		return MergeReport{}, err
	}
	report := MergeReport{ItemsMoved: items, ChildrenMoved: children}

	if deleteSource {
		remainingItems, err := s.store.CountItemsByCategory(ctx, sourceID)
		if err != nil {
			return report, err
		}
		remainingChildren, err := s.store.CountChildren(ctx, sourceID)
		if err != nil {
			return report, err
		}
		if remainingItems == 0 && remainingChildren == 0 {
			if err := s.store.DeleteCategoryTree(ctx, []int64{sourceID}); err != nil {
				return report, err
			}
			report.SourceDeleted = true
		} else {
			slog.WarnContext(ctx, "Merge source kept: new references appeared during migration",
				"source_id", sourceID, "items", remainingItems, "children", remainingChildren)
		}
	}

	slog.InfoContext(ctx, "Categories merged",
		"source_id", sourceID, "target_id", targetID,
		"items_moved", items, "children_moved", children,
		"source_deleted", report.SourceDeleted)
	return report, nil
}

// Statistics reports node counts per level.
type Statistics struct {
	Level1 int64 `json:"level1_count"`
	Level2 int64 `json:"level2_count"`
	Level3 int64 `json:"level3_count"`
	Total  int64 `json:"total_count"`
}

func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	counts, err := s.store.CountCategoriesByLevel(ctx)
	if err != nil {
		return Statistics{}, err
	}
	var stats Statistics
	for _, lc := range counts {
		switch lc.Level {
		case 1:
			stats.Level1 = lc.Count
		case 2:
			stats.Level2 = lc.Count
		case 3:
			stats.Level3 = lc.Count
		}
		stats.Total += lc.Count
	}
	return stats, nil
}

// Tree returns the nested category tree.
func (s *Service) Tree(ctx context.Context) ([]*core.CategoryNode, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Tree(), nil
}

func (s *Service) usageOf(ctx context.Context, id int64) (core.CategoryUsage, error) {
	count, err := s.store.CountItemsByCategory(ctx, id)
	if err != nil {
		return core.CategoryUsage{}, err
	}
	name := ""
	if c, err := s.store.GetCategory(ctx, id); err == nil {
		name = c.Name
	}
	return core.CategoryUsage{CategoryID: id, Name: name, ItemCount: count}, nil
}

// hasSiblingNamed reports whether a different node with the given name exists
// under the same parent at the same level.
func hasSiblingNamed(snap *Snapshot, parentID *int64, level int, name string, excludeID int64) bool {
	var siblings []int64
	if parentID == nil {
		siblings = snap.roots
	} else {
		siblings = snap.Children(*parentID)
	}
	for _, sid := range siblings {
		if sid == excludeID {
			continue
		}
		if c, ok := snap.Get(sid); ok && c.Level == level && c.Name == name {
			return true
		}
	}
	return false
}

// descendantLevels computes the level rewrites for every descendant when the
// subtree root moves to rootLevel.
func descendantLevels(snap *Snapshot, rootID int64, rootLevel int) []storage.CategoryLevelUpdate {
	var updates []storage.CategoryLevelUpdate
	var walk func(id int64, level int)
	walk = func(id int64, level int) {
		for _, child := range snap.Children(id) {
			updates = append(updates, storage.CategoryLevelUpdate{ID: child, Level: level + 1})
			walk(child, level+1)
		}
	}
	walk(rootID, rootLevel)
	return updates
}
