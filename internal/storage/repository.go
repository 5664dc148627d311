package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/SilentInt/HamsterWallet/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("Database schema ready", "version", version, "path", dbPath)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- Items ---

const itemColumns = "id, receipt_id, name_native, name_local, price_major, price_local, is_special_offer, category_id"

func scanItem(row interface{ Scan(...any) error }) (core.Item, error) {
	var (
		it         core.Item
		nameNative sql.NullString
		nameLocal  sql.NullString
		priceMajor sql.NullFloat64
		priceLocal sql.NullFloat64
		categoryID sql.NullInt64
	)
	err := row.Scan(&it.ID, &it.ReceiptID, &nameNative, &nameLocal, &priceMajor, &priceLocal, &it.IsSpecialOffer, &categoryID)
	if err != nil {
		return core.Item{}, err
	}
	it.NameNative = nameNative.String
	it.NameLocal = nameLocal.String
	it.PriceMajor = priceMajor.Float64
	it.PriceLocal = priceLocal.Float64
	if categoryID.Valid {
		id := categoryID.Int64
		it.CategoryID = &id
	}
	return it, nil
}

// ListEligibleItems returns every item with a non-empty local display name,
// in id order. These are the items in scope for re-categorization.
func (r *SQLiteRepository) ListEligibleItems(ctx context.Context) ([]core.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM items WHERE name_local IS NOT NULL AND TRIM(name_local) != '' ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list eligible items: %w", err)
	}
	defer rows.Close()

	var items []core.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// GetItem fetches a single item by id.
func (r *SQLiteRepository) GetItem(ctx context.Context, id int64) (core.Item, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM items WHERE id = ?", id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Item{}, fmt.Errorf("item %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Item{}, fmt.Errorf("get item %d: %w", id, err)
	}
	return it, nil
}

// UpdateItemCategory points an item at a new category.
func (r *SQLiteRepository) UpdateItemCategory(ctx context.Context, itemID, categoryID int64) error {
	res, err := r.db.ExecContext(ctx, "UPDATE items SET category_id = ? WHERE id = ?", categoryID, itemID)
	if err != nil {
		return fmt.Errorf("update item %d category: %w", itemID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("item %d: %w", itemID, core.ErrNotFound)
	}
	return nil
}

// CountItemsByCategory returns how many items reference the given category.
func (r *SQLiteRepository) CountItemsByCategory(ctx context.Context, categoryID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items WHERE category_id = ?", categoryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count items for category %d: %w", categoryID, err)
	}
	return n, nil
}

// InsertReceipt creates a receipt shell. Used by seeding and tests; the
// OCR/extraction pipeline that normally fills receipts lives elsewhere.
func (r *SQLiteRepository) InsertReceipt(ctx context.Context, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, "INSERT INTO receipts (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("insert receipt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("receipt insert id: %w", err)
	}
	return id, nil
}

// InsertItem creates a line item under a receipt.
func (r *SQLiteRepository) InsertItem(ctx context.Context, it core.Item) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO items (receipt_id, name_native, name_local, price_major, price_local, is_special_offer, category_id) VALUES (?, ?, ?, ?, ?, ?, ?)",
		it.ReceiptID, nullString(it.NameNative), nullString(it.NameLocal), it.PriceMajor, it.PriceLocal, it.IsSpecialOffer, it.CategoryID)
	if err != nil {
		return 0, fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("item insert id: %w", err)
	}
	return id, nil
}

// --- Categories ---

const categoryColumns = "id, name, level, parent_id"

func scanCategory(row interface{ Scan(...any) error }) (core.Category, error) {
	var (
		c        core.Category
		parentID sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Level, &parentID); err != nil {
		return core.Category{}, err
	}
	if parentID.Valid {
		id := parentID.Int64
		c.ParentID = &id
	}
	return c, nil
}

// ListCategories returns the whole taxonomy ordered by level then name.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+categoryColumns+" FROM categories ORDER BY level, name")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return cats, nil
}

// GetCategory fetches a single category by id.
func (r *SQLiteRepository) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+categoryColumns+" FROM categories WHERE id = ?", id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, err)
	}
	return c, nil
}

// InsertCategory creates a category row and returns its id. Structural
// validation happens in the taxonomy service before this is called.
func (r *SQLiteRepository) InsertCategory(ctx context.Context, c core.Category) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO categories (name, level, parent_id) VALUES (?, ?, ?)", c.Name, c.Level, c.ParentID)
	if err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("category insert id: %w", err)
	}
	return id, nil
}

// UpdateCategoryName renames a category in place.
func (r *SQLiteRepository) UpdateCategoryName(ctx context.Context, id int64, name string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE categories SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("rename category %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return nil
}

// CategoryLevelUpdate is one descendant level rewrite accompanying a reparent.
type CategoryLevelUpdate struct {
	ID    int64
	Level int
}

// ReparentCategory moves a category under a new parent and rewrites the
// levels of its descendants in the same transaction, so a failure leaves the
// hierarchy untouched.
func (r *SQLiteRepository) ReparentCategory(ctx context.Context, id int64, parentID *int64, level int, descendants []CategoryLevelUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reparent tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE categories SET parent_id = ?, level = ? WHERE id = ?", parentID, level, id); err != nil {
		return fmt.Errorf("reparent category %d: %w", id, err)
	}
	for _, d := range descendants {
		if _, err := tx.ExecContext(ctx, "UPDATE categories SET level = ? WHERE id = ?", d.Level, d.ID); err != nil {
			return fmt.Errorf("rewrite level of category %d: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reparent: %w", err)
	}
	return nil
}

// DeleteCategoryTree deletes the given category ids in order (callers pass
// deepest nodes first) inside one transaction.
func (r *SQLiteRepository) DeleteCategoryTree(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete category %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	slog.DebugContext(ctx, "Deleted category subtree", "count", len(ids))
	return nil
}

// MergeCategoryRefs repoints every item and every direct child from the
// source category to the target, atomically. Returns how many of each moved.
func (r *SQLiteRepository) MergeCategoryRefs(ctx context.Context, sourceID, targetID int64) (itemsMoved, childrenMoved int64, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin merge tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE items SET category_id = ? WHERE category_id = ?", targetID, sourceID)
	if err != nil {
		return 0, 0, fmt.Errorf("migrate items from category %d: %w", sourceID, err)
	}
	itemsMoved, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, "UPDATE categories SET parent_id = ? WHERE parent_id = ?", targetID, sourceID)
	if err != nil {
		return 0, 0, fmt.Errorf("migrate children from category %d: %w", sourceID, err)
	}
	childrenMoved, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit merge: %w", err)
	}
	return itemsMoved, childrenMoved, nil
}

// CountChildren returns the number of direct children of a category.
func (r *SQLiteRepository) CountChildren(ctx context.Context, id int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM categories WHERE parent_id = ?", id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count children of category %d: %w", id, err)
	}
	return n, nil
}

// CategoryLevelCount is one row of the taxonomy statistics.
type CategoryLevelCount struct {
	Level int
	Count int64
}

// CountCategoriesByLevel returns node counts grouped by level.
func (r *SQLiteRepository) CountCategoriesByLevel(ctx context.Context) ([]CategoryLevelCount, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT level, COUNT(*) FROM categories GROUP BY level ORDER BY level")
	if err != nil {
		return nil, fmt.Errorf("count categories by level: %w", err)
	}
	defer rows.Close()

	var counts []CategoryLevelCount
	for rows.Next() {
		var lc CategoryLevelCount
		if err := rows.Scan(&lc.Level, &lc.Count); err != nil {
			return nil, fmt.Errorf("scan level count: %w", err)
		}
		counts = append(counts, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate level counts: %w", err)
	}
	return counts, nil
}

// --- Task events ---

// RecordTaskEvent appends a lifecycle event to the audit log.
func (r *SQLiteRepository) RecordTaskEvent(ctx context.Context, rec core.TaskEventRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO task_events (event, status, total_items, processed_items,
			success_count, skipped_count, failed_count, applied_count,
			error_message, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Event, rec.Status, rec.TotalItems, rec.ProcessedItems,
		rec.SuccessCount, rec.SkippedCount, rec.FailedCount, rec.AppliedCount,
		rec.ErrorMessage, rec.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("record task event: %w", err)
	}
	return nil
}

// ListRecentTaskEvents returns the newest events first, at most limit rows.
func (r *SQLiteRepository) ListRecentTaskEvents(ctx context.Context, limit int) ([]core.TaskEventRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event, status, total_items, processed_items,
			success_count, skipped_count, failed_count, applied_count,
			error_message, occurred_at
		FROM task_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list task events: %w", err)
	}
	defer rows.Close()

	var records []core.TaskEventRecord
	for rows.Next() {
		var rec core.TaskEventRecord
		err := rows.Scan(&rec.ID, &rec.Event, &rec.Status, &rec.TotalItems,
			&rec.ProcessedItems, &rec.SuccessCount, &rec.SkippedCount,
			&rec.FailedCount, &rec.AppliedCount, &rec.ErrorMessage, &rec.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan task event: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task events: %w", err)
	}
	return records, nil
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
