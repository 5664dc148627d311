package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/SilentInt/HamsterWallet/internal/config"
	"github.com/SilentInt/HamsterWallet/internal/core"
	applog "github.com/SilentInt/HamsterWallet/internal/log"
	"github.com/SilentInt/HamsterWallet/internal/storage"
	"github.com/SilentInt/HamsterWallet/internal/taxonomy"
)

// seedNode is one entry of the seed file: a nested category tree up to three
// levels deep.
type seedNode struct {
	Name     string     `json:"name"`
	Children []seedNode `json:"children,omitempty"`
}

func main() {
	_ = godotenv.Load()

	logger := applog.New(applog.FromEnv()).WithComponent("taxonomy-init")
	applog.SetDefault(logger)

	seedPath := flag.String("file", "data/categories.json", "path to the category seed file")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	roots, err := loadSeed(*seedPath)
	if err != nil {
		logger.Error("Failed to load seed file", "error", err, "path", *seedPath)
		os.Exit(1)
	}

	ctx := context.Background()
	service := taxonomy.NewService(repo)

	created, skipped := 0, 0
	for _, root := range roots {
		c, s, err := seedSubtree(ctx, service, root, 1, nil)
		if err != nil {
			logger.Error("Seeding failed", "error", err, "category", root.Name)
			os.Exit(1)
		}
		created += c
		skipped += s
	}

	logger.Info("Taxonomy seeded", "created", created, "skipped", skipped, "file", *seedPath)
}

func loadSeed(path string) ([]seedNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var roots []seedNode
	if err := json.Unmarshal(data, &roots); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return roots, nil
}

// seedSubtree inserts a node and its children, skipping names that already
// exist at the same position so reruns are harmless.
func seedSubtree(ctx context.Context, service *taxonomy.Service, node seedNode, level int, parentID *int64) (created, skipped int, err error) {
	if level > core.MaxCategoryDepth {
		return 0, 0, fmt.Errorf("seed tree deeper than %d levels at %q", core.MaxCategoryDepth, node.Name)
	}

	cat, err := service.Create(ctx, node.Name, level, parentID)
	switch {
	case err == nil:
		created++
	case errors.Is(err, core.ErrDuplicateName):
		skipped++
		existing, findErr := findSibling(ctx, service, node.Name, level, parentID)
		if findErr != nil {
			return created, skipped, findErr
		}
		cat = existing
	default:
		return created, skipped, fmt.Errorf("create %q at level %d: %w", node.Name, level, err)
	}

	for _, child := range node.Children {
		c, s, err := seedSubtree(ctx, service, child, level+1, &cat.ID)
		created += c
		skipped += s
		if err != nil {
			return created, skipped, err
		}
	}
	return created, skipped, nil
}

func findSibling(ctx context.Context, service *taxonomy.Service, name string, level int, parentID *int64) (core.Category, error) {
	snap, err := service.Snapshot(ctx)
	if err != nil {
		return core.Category{}, err
	}
	for _, entry := range snap.Flatten() {
		cat, ok := snap.Get(entry.ID)
		if !ok || cat.Level != level || cat.Name != name {
			continue
		}
		if (cat.ParentID == nil) != (parentID == nil) {
			continue
		}
		if cat.ParentID == nil || *cat.ParentID == *parentID {
			return cat, nil
		}
	}
	return core.Category{}, fmt.Errorf("existing category %q not found at level %d", name, level)
}
