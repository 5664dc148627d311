package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxCategoryDepth is the deepest level a category may occupy.
	MaxCategoryDepth = 3

	// DefaultBatchSize is the number of items sent to the classifier per call.
	DefaultBatchSize = 50
)

type (
	// Category is one node of the three-level taxonomy tree. Level-1 nodes
	// have no parent; deeper nodes reference a parent exactly one level up.
	Category struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Level    int    `json:"level"`
		ParentID *int64 `json:"parent_id"`
	}

	// Item is a single receipt line item. CategoryID is the only field this
	// subsystem mutates.
	Item struct {
		ID             int64
		ReceiptID      int64
		NameNative     string
		NameLocal      string
		PriceMajor     float64
		PriceLocal     float64
		IsSpecialOffer bool
		CategoryID     *int64
	}

	// CategoryNode is a Category with its resolved children, used for tree
	// rendering and for the flattened taxonomy handed to the classifier.
	CategoryNode struct {
		Category
		Children []*CategoryNode `json:"children"`
	}

	// CategoryUsage reports how many items point at a category node.
	CategoryUsage struct {
		CategoryID int64  `json:"category_id"`
		Name       string `json:"name"`
		ItemCount  int64  `json:"item_count"`
	}
)

var (
	ErrNotFound      = errors.New("not found")
	ErrEmptyName     = errors.New("empty category name")
	ErrInvalidLevel  = errors.New("category level must be between 1 and 3")
	ErrMissingParent = errors.New("categories below level 1 require a parent")
	ErrParentLevel   = errors.New("parent must be exactly one level above")
	ErrDuplicateName = errors.New("sibling category with the same name exists")
	ErrDepthExceeded = errors.New("reparent would push a descendant below level 3")
	ErrCycleDetected = errors.New("cannot reparent a category under its own subtree")
	ErrLevelMismatch = errors.New("merge requires source and target at the same level")
	ErrHasChildren   = errors.New("category still has children")
	ErrSelfMerge     = errors.New("cannot merge a category into itself")
)

// StillReferencedError reports a cascade delete blocked by items referencing
// nodes inside the doomed subtree.
type StillReferencedError struct {
	Blocking []CategoryUsage
}

func (e *StillReferencedError) Error() string {
	parts := make([]string, len(e.Blocking))
	for i, b := range e.Blocking {
		parts[i] = fmt.Sprintf("%s (#%d, %d items)", b.Name, b.CategoryID, b.ItemCount)
	}
	return "subtree still referenced by items: " + strings.Join(parts, ", ")
}

// Validate checks the structural invariants of a single category row.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.Level < 1 || c.Level > MaxCategoryDepth {
		return ErrInvalidLevel
	}
	if c.Level == 1 && c.ParentID != nil {
		return errors.New("level 1 categories cannot have a parent")
	}
	if c.Level > 1 && c.ParentID == nil {
		return ErrMissingParent
	}
	return nil
}

// Eligible reports whether the item is in scope for re-categorization.
// Items without a local display name have nothing to classify.
func (i Item) Eligible() bool {
	return strings.TrimSpace(i.NameLocal) != ""
}
