package core

import (
	"strings"
	"testing"
)

func ptr(v int64) *int64 { return &v }

func TestCategoryValidate(t *testing.T) {
	cases := []struct {
		c  Category
		ok bool
	}{
		{Category{Name: "Food", Level: 1}, true},
		{Category{Name: "Snacks", Level: 2, ParentID: ptr(1)}, true},
		{Category{Name: "Chips", Level: 3, ParentID: ptr(2)}, true},
		{Category{Name: "", Level: 1}, false},          // empty name
		{Category{Name: "   ", Level: 1}, false},       // whitespace name
		{Category{Name: "Food", Level: 0}, false},      // level too low
		{Category{Name: "Food", Level: 4}, false},      // level too deep
		{Category{Name: "Food", Level: 2}, false},      // missing parent
		{Category{Name: "Food", Level: 1, ParentID: ptr(9)}, false}, // root with parent
	}
	for i, tc := range cases {
		err := tc.c.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestItemEligible(t *testing.T) {
	if !(Item{NameLocal: "Milk"}).Eligible() {
		t.Fatalf("expected item with local name to be eligible")
	}
	if (Item{NameNative: "牛乳"}).Eligible() {
		t.Fatalf("expected item without local name to be ineligible")
	}
	if (Item{NameLocal: "  "}).Eligible() {
		t.Fatalf("expected blank local name to be ineligible")
	}
}

func TestStillReferencedErrorMessage(t *testing.T) {
	err := &StillReferencedError{Blocking: []CategoryUsage{
		{CategoryID: 3, Name: "Drinks", ItemCount: 7},
		{CategoryID: 5, Name: "Beer", ItemCount: 2},
	}}
	msg := err.Error()
	for _, want := range []string{"Drinks", "#3", "7 items", "Beer"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error message %q missing %q", msg, want)
		}
	}
}

func TestTaskStatusTransitionsAllowed(t *testing.T) {
	cases := []struct {
		status    TaskStatus
		active    bool
		resumable bool
	}{
		{TaskIdle, false, false},
		{TaskRunning, true, false},
		{TaskApplying, true, false},
		{TaskCompleted, false, true},
		{TaskStopped, false, true},
		{TaskFailed, false, true},
	}
	for _, tc := range cases {
		if got := tc.status.Active(); got != tc.active {
			t.Fatalf("%s: Active() = %v, want %v", tc.status, got, tc.active)
		}
		if got := tc.status.Resumable(); got != tc.resumable {
			t.Fatalf("%s: Resumable() = %v, want %v", tc.status, got, tc.resumable)
		}
	}
}
