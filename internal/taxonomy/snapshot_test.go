package taxonomy

import (
	"testing"

	"github.com/SilentInt/HamsterWallet/internal/core"
)

func intp(v int64) *int64 { return &v }

func sampleSnapshot() *Snapshot {
	return NewSnapshot([]core.Category{
		{ID: 1, Name: "Food", Level: 1},
		{ID: 2, Name: "Snacks", Level: 2, ParentID: intp(1)},
		{ID: 3, Name: "Chips", Level: 3, ParentID: intp(2)},
		{ID: 4, Name: "Candy", Level: 3, ParentID: intp(2)},
		{ID: 5, Name: "Drinks", Level: 1},
	})
}

func TestSnapshotPath(t *testing.T) {
	snap := sampleSnapshot()
	cases := map[int64]string{
		1: "Food",
		2: "Food > Snacks",
		3: "Food > Snacks > Chips",
		5: "Drinks",
	}
	for id, want := range cases {
		if got := snap.Path(id); got != want {
			t.Fatalf("Path(%d) = %q, want %q", id, got, want)
		}
	}
}

func TestSnapshotDescendants(t *testing.T) {
	snap := sampleSnapshot()
	desc := snap.Descendants(1)
	if len(desc) != 3 {
		t.Fatalf("expected 3 descendants of Food, got %v", desc)
	}
	seen := map[int64]bool{}
	for _, id := range desc {
		seen[id] = true
	}
	for _, want := range []int64{2, 3, 4} {
		if !seen[want] {
			t.Fatalf("descendants missing %d: %v", want, desc)
		}
	}
	if got := snap.Descendants(5); len(got) != 0 {
		t.Fatalf("expected leaf to have no descendants, got %v", got)
	}
}

func TestSnapshotIsDescendant(t *testing.T) {
	snap := sampleSnapshot()
	if !snap.IsDescendant(3, 1) {
		t.Fatalf("Chips should descend from Food")
	}
	if snap.IsDescendant(1, 3) {
		t.Fatalf("Food does not descend from Chips")
	}
	if snap.IsDescendant(5, 1) {
		t.Fatalf("Drinks does not descend from Food")
	}
	if snap.IsDescendant(1, 1) {
		t.Fatalf("a node is not its own descendant")
	}
}

func TestSnapshotSubtreeDepth(t *testing.T) {
	snap := sampleSnapshot()
	if d := snap.SubtreeDepth(1); d != 3 {
		t.Fatalf("SubtreeDepth(Food) = %d, want 3", d)
	}
	if d := snap.SubtreeDepth(2); d != 2 {
		t.Fatalf("SubtreeDepth(Snacks) = %d, want 2", d)
	}
	if d := snap.SubtreeDepth(5); d != 1 {
		t.Fatalf("SubtreeDepth(Drinks) = %d, want 1", d)
	}
}

func TestSnapshotFlattenOrderAndPaths(t *testing.T) {
	snap := sampleSnapshot()
	entries := snap.Flatten()
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	// Roots name-sorted, children walked depth-first and name-sorted.
	wantNames := []string{"Drinks", "Food", "Snacks", "Candy", "Chips"}
	for i, want := range wantNames {
		if entries[i].Name != want {
			t.Fatalf("entry %d = %q, want %q", i, entries[i].Name, want)
		}
	}
	if entries[3].Path != "Food > Snacks > Candy" {
		t.Fatalf("unexpected path: %q", entries[3].Path)
	}
}

func TestSnapshotTree(t *testing.T) {
	snap := sampleSnapshot()
	tree := snap.Tree()
	if len(tree) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(tree))
	}
	if tree[0].Name != "Drinks" || tree[1].Name != "Food" {
		t.Fatalf("unexpected root order: %s, %s", tree[0].Name, tree[1].Name)
	}
	snacks := tree[1].Children[0]
	if snacks.Name != "Snacks" || len(snacks.Children) != 2 {
		t.Fatalf("unexpected Snacks subtree: %+v", snacks)
	}
	if snacks.Children[0].Name != "Candy" {
		t.Fatalf("expected name-sorted children, got %q first", snacks.Children[0].Name)
	}
}
