package taxonomy

import (
	"context"
	"errors"
	"testing"

	"github.com/SilentInt/HamsterWallet/internal/core"
	"github.com/SilentInt/HamsterWallet/internal/storage"
)

// memStore is an in-memory Store for exercising the service without SQLite.
type memStore struct {
	nextID     int64
	categories map[int64]core.Category
	itemRefs   map[int64]int64 // category id -> referencing item count
}

func newMemStore() *memStore {
	return &memStore{
		nextID:     1,
		categories: make(map[int64]core.Category),
		itemRefs:   make(map[int64]int64),
	}
}

func (m *memStore) ListCategories(ctx context.Context) ([]core.Category, error) {
	out := make([]core.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, ok := m.categories[id]
	if !ok {
		return core.Category{}, core.ErrNotFound
	}
	return c, nil
}

func (m *memStore) InsertCategory(ctx context.Context, c core.Category) (int64, error) {
	c.ID = m.nextID
	m.nextID++
	m.categories[c.ID] = c
	return c.ID, nil
}

func (m *memStore) UpdateCategoryName(ctx context.Context, id int64, name string) error {
	c, ok := m.categories[id]
	if !ok {
		return core.ErrNotFound
	}
	c.Name = name
	m.categories[id] = c
	return nil
}

func (m *memStore) ReparentCategory(ctx context.Context, id int64, parentID *int64, level int, descendants []storage.CategoryLevelUpdate) error {
	c, ok := m.categories[id]
	if !ok {
		return core.ErrNotFound
	}
	c.ParentID = parentID
	c.Level = level
	m.categories[id] = c
	for _, d := range descendants {
		dc, ok := m.categories[d.ID]
		if !ok {
			return core.ErrNotFound
		}
		dc.Level = d.Level
		m.categories[d.ID] = dc
	}
	return nil
}

func (m *memStore) DeleteCategoryTree(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, ok := m.categories[id]; !ok {
			return core.ErrNotFound
		}
	}
	for _, id := range ids {
		delete(m.categories, id)
	}
	return nil
}

func (m *memStore) MergeCategoryRefs(ctx context.Context, sourceID, targetID int64) (int64, int64, error) {
	items := m.itemRefs[sourceID]
	m.itemRefs[targetID] += items
	m.itemRefs[sourceID] = 0

	var children int64
	for id, c := range m.categories {
		if c.ParentID != nil && *c.ParentID == sourceID {
			c.ParentID = &targetID
			m.categories[id] = c
			children++
		}
	}
	return items, children, nil
}

func (m *memStore) CountItemsByCategory(ctx context.Context, categoryID int64) (int64, error) {
	return m.itemRefs[categoryID], nil
}

func (m *memStore) CountChildren(ctx context.Context, id int64) (int64, error) {
	var n int64
	for _, c := range m.categories {
		if c.ParentID != nil && *c.ParentID == id {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountCategoriesByLevel(ctx context.Context) ([]storage.CategoryLevelCount, error) {
	byLevel := map[int]int64{}
	for _, c := range m.categories {
		byLevel[c.Level]++
	}
	var out []storage.CategoryLevelCount
	for level, count := range byLevel {
		out = append(out, storage.CategoryLevelCount{Level: level, Count: count})
	}
	return out, nil
}

// seedTree builds: Food(1) > Snacks(2) > Chips(3); Drinks(4); Home(5)
func seedTree(t *testing.T, svc *Service) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	ids := make(map[string]int64)

	food, err := svc.Create(ctx, "Food", 1, nil)
	if err != nil {
		t.Fatalf("create Food: %v", err)
	}
	ids["Food"] = food.ID

	snacks, err := svc.Create(ctx, "Snacks", 2, &food.ID)
	if err != nil {
		t.Fatalf("create Snacks: %v", err)
	}
	ids["Snacks"] = snacks.ID

	chips, err := svc.Create(ctx, "Chips", 3, &snacks.ID)
	if err != nil {
		t.Fatalf("create Chips: %v", err)
	}
	ids["Chips"] = chips.ID

	drinks, err := svc.Create(ctx, "Drinks", 1, nil)
	if err != nil {
		t.Fatalf("create Drinks: %v", err)
	}
	ids["Drinks"] = drinks.ID

	home, err := svc.Create(ctx, "Home", 1, nil)
	if err != nil {
		t.Fatalf("create Home: %v", err)
	}
	ids["Home"] = home.ID

	return ids
}

func TestCreateRejectsBadParents(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	ids := seedTree(t, svc)

	// Parent must be exactly one level above.
	food := ids["Food"]
	if _, err := svc.Create(ctx, "Misplaced", 3, &food); !errors.Is(err, core.ErrParentLevel) {
		t.Fatalf("expected ErrParentLevel, got %v", err)
	}

	// Duplicate sibling name.
	if _, err := svc.Create(ctx, "Drinks", 1, nil); !errors.Is(err, core.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	// Same name is fine under a different parent.
	drinks := ids["Drinks"]
	if _, err := svc.Create(ctx, "Snacks", 2, &drinks); err != nil {
		t.Fatalf("expected sibling scope for duplicates, got %v", err)
	}

	// Unknown parent.
	missing := int64(999)
	if _, err := svc.Create(ctx, "Orphan", 2, &missing); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRename(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	ids := seedTree(t, svc)

	c, err := svc.Rename(ctx, ids["Drinks"], "Beverages")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if c.Name != "Beverages" {
		t.Fatalf("expected renamed category, got %q", c.Name)
	}

	if _, err := svc.Rename(ctx, ids["Home"], "Beverages"); !errors.Is(err, core.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	if _, err := svc.Rename(ctx, ids["Home"], "  "); !errors.Is(err, core.ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
}

func TestReparentRewritesDescendantLevels(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	ids := seedTree(t, svc)

	// Move Snacks (with child Chips) under Drinks.
	drinks := ids["Drinks"]
	moved, err := svc.Reparent(ctx, ids["Snacks"], &drinks)
	if err != nil {
		t.Fatalf("reparent: %v", err)
	}
	if moved.Level != 2 || moved.ParentID == nil || *moved.ParentID != drinks {
		t.Fatalf("unexpected moved node: %+v", moved)
	}

	chips, err := store.GetCategory(ctx, ids["Chips"])
	if err != nil {
		t.Fatalf("get chips: %v", err)
	}
	if chips.Level != 3 {
		t.Fatalf("expected descendant level rewritten to 3, got %d", chips.Level)
	}
}

func TestReparentToRoot(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	ids := seedTree(t, svc)

	moved, err := svc.Reparent(ctx, ids["Snacks"], nil)
	if err != nil {
		t.Fatalf("reparent to root: %v", err)
	}
	if moved.Level != 1 || moved.ParentID != nil {
		t.Fatalf("expected root node, got %+v", moved)
	}
	chips, _ := store.GetCategory(ctx, ids["Chips"])
	if chips.Level != 2 {
		t.Fatalf("expected chips at level 2, got %d", chips.Level)
	}
}

func TestReparentRejectsCyclesAndDepth(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	ids := seedTree(t, svc)

	// Under itself.
	snacks := ids["Snacks"]
	if _, err := svc.Reparent(ctx, snacks, &snacks); !errors.Is(err, core.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}

	// Under its own descendant.
	chips := ids["Chips"]
	if _, err := svc.Reparent(ctx, ids["Food"], &chips); !errors.Is(err, core.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}

	// Food subtree is 3 deep; moving it under another root busts the cap.
	drinks := ids["Drinks"]
	if _, err := svc.Reparent(ctx, ids["Food"], &drinks); !errors.Is(err, core.ErrDepthExceeded) {
		t.Fatalf("expected ErrDepthExceeded, got %v", err)
	}
}

func TestDeleteGuards(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	ids := seedTree(t, svc)

	if err := svc.Delete(ctx, ids["Food"]); !errors.Is(err, core.ErrHasChildren) {
		t.Fatalf("expected ErrHasChildren, got %v", err)
	}

	store.itemRefs[ids["Drinks"]] = 4
	var referenced *core.StillReferencedError
	if err := svc.Delete(ctx, ids["Drinks"]); !errors.As(err, &referenced) {
		t.Fatalf("expected StillReferencedError, got %v", err)
	}

	if err := svc.Delete(ctx, ids["Home"]); err != nil {
		t.Fatalf("delete childless unreferenced: %v", err)
	}
	if _, err := store.GetCategory(ctx, ids["Home"]); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected Home gone, got %v", err)
	}
}

func TestCascadeDeleteAllOrNothing(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	ids := seedTree(t, svc)

	// One referenced node deep in the subtree blocks the whole cascade.
	store.itemRefs[ids["Chips"]] = 2
	var referenced *core.StillReferencedError
	_, err := svc.CascadeDelete(ctx, ids["Food"])
	if !errors.As(err, &referenced) {
		t.Fatalf("expected StillReferencedError, got %v", err)
	}
	if len(referenced.Blocking) != 1 || referenced.Blocking[0].CategoryID != ids["Chips"] {
		t.Fatalf("unexpected blocking set: %+v", referenced.Blocking)
	}
	// Nothing was deleted.
	for _, name := range []string{"Food", "Snacks", "Chips"} {
		if _, err := store.GetCategory(ctx, ids[name]); err != nil {
			t.Fatalf("expected %s untouched, got %v", name, err)
		}
	}

	// Unblock and retry.
	store.itemRefs[ids["Chips"]] = 0
	deleted, err := svc.CascadeDelete(ctx, ids["Food"])
	if err != nil {
		t.Fatalf("cascade delete: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 nodes deleted, got %d", deleted)
	}
}

func TestMerge(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	ids := seedTree(t, svc)

	if _, err := svc.Merge(ctx, ids["Food"], ids["Food"], false); !errors.Is(err, core.ErrSelfMerge) {
		t.Fatalf("expected ErrSelfMerge, got %v", err)
	}
	if _, err := svc.Merge(ctx, ids["Snacks"], ids["Drinks"], false); !errors.Is(err, core.ErrLevelMismatch) {
		t.Fatalf("expected ErrLevelMismatch, got %v", err)
	}

	store.itemRefs[ids["Food"]] = 5
	report, err := svc.Merge(ctx, ids["Food"], ids["Drinks"], true)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if report.ItemsMoved != 5 {
		t.Fatalf("expected 5 items moved, got %d", report.ItemsMoved)
	}
	if report.ChildrenMoved != 1 {
		t.Fatalf("expected 1 child moved, got %d", report.ChildrenMoved)
	}
	if !report.SourceDeleted {
		t.Fatalf("expected source deleted")
	}
	if _, err := store.GetCategory(ctx, ids["Food"]); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected Food gone, got %v", err)
	}

	// Snacks now hangs under Drinks.
	snacks, _ := store.GetCategory(ctx, ids["Snacks"])
	if snacks.ParentID == nil || *snacks.ParentID != ids["Drinks"] {
		t.Fatalf("expected Snacks moved under Drinks, got %+v", snacks)
	}
}

func TestStatisticsAndTree(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	ctx := context.Background()
	seedTree(t, svc)

	stats, err := svc.Statistics(ctx)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.Level1 != 3 || stats.Level2 != 1 || stats.Level3 != 1 || stats.Total != 5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	tree, err := svc.Tree(ctx)
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if len(tree) != 3 {
		t.Fatalf("expected 3 roots, got %d", len(tree))
	}
	// Roots come back name-sorted.
	if tree[0].Name != "Drinks" || tree[1].Name != "Food" || tree[2].Name != "Home" {
		t.Fatalf("unexpected root order: %s, %s, %s", tree[0].Name, tree[1].Name, tree[2].Name)
	}
	var food *core.CategoryNode
	for _, n := range tree {
		if n.Name == "Food" {
			food = n
		}
	}
	if food == nil || len(food.Children) != 1 || food.Children[0].Name != "Snacks" {
		t.Fatalf("unexpected Food subtree")
	}
}
