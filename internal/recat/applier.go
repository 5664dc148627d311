package recat

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/SilentInt/HamsterWallet/internal/core"
)

// ApplyScope selects which results an apply run covers.
type ApplyScope string

const (
	// ApplyAll commits every unapplied result.
	ApplyAll ApplyScope = "all"

	// ApplyBatch commits the unapplied results inside one batch index window.
	ApplyBatch ApplyScope = "batch"
)

// ApplyPartialReport summarizes a partial apply.
type ApplyPartialReport struct {
	AppliedCount int `json:"applied_count"`
	ErrorCount   int `json:"error_count"`
	TotalApplied int `json:"total_applied"`
}

// Apply launches a background worker committing the selected results to the
// item store. Valid only from COMPLETED; the task moves to APPLYING and back
// to COMPLETED when done. Per-item persistence failures are logged and
// skipped.
func (s *Service) Apply(ctx context.Context, scope ApplyScope, batchIndex int) error {
	st := s.state
	st.mu.Lock()
	if st.status != core.TaskCompleted {
		active := st.status.Active()
		st.mu.Unlock()
		if active {
			return core.ErrConflict
		}
		return core.ErrNotReady
	}
	st.status = core.TaskApplying
	applyCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st.cancel = cancel
	st.mu.Unlock()

	go s.applyResults(applyCtx, scope, batchIndex)

	slog.InfoContext(ctx, "Result apply started", "scope", scope, "batch_index", batchIndex)
	return nil
}

// applyResults is the background applier worker.
func (s *Service) applyResults(ctx context.Context, scope ApplyScope, batchIndex int) {
	st := s.state

	// Select the target result indexes under the lock; the writes below
	// re-check each result before flipping it.
	st.mu.Lock()
	start, end := 0, len(st.results)
	if scope == ApplyBatch {
		start = batchIndex * st.batchSize
		end = start + st.batchSize
		// An out-of-range index selects an empty window, never a panic.
		if start < 0 {
			start = 0
		}
		if end < start {
			end = start
		}
		if start > len(st.results) {
			start = len(st.results)
		}
		if end > len(st.results) {
			end = len(st.results)
		}
	}
	var targets []int
	for i := start; i < end; i++ {
		if !st.results[i].IsApplied {
			targets = append(targets, i)
		}
	}
	st.mu.Unlock()

	applied := 0
	for _, idx := range targets {
		// A stop request takes effect between items.
		if st.stopped() || ctx.Err() != nil {
			slog.InfoContext(ctx, "Apply stopped", "applied", applied)
			return
		}
		if s.applyOne(ctx, idx) {
			applied++
		}
	}

	st.mu.Lock()
	if st.status == core.TaskApplying {
		st.status = core.TaskCompleted
		st.cancel = nil
	}
	st.mu.Unlock()

	s.publish(ctx, EventResultsApplied)
	slog.InfoContext(ctx, "Result apply finished", "applied", applied, "selected", len(targets))
}

// applyOne commits a single result: re-fetch the live item, persist the new
// category, flip is_applied. Returns false on a skipped or failed item.
func (s *Service) applyOne(ctx context.Context, idx int) bool {
	st := s.state

	st.mu.Lock()
	if idx >= len(st.results) || st.results[idx].IsApplied {
		st.mu.Unlock()
		return false
	}
	r := st.results[idx]
	st.mu.Unlock()

	if _, err := s.store.GetItem(ctx, r.ItemID); err != nil {
		slog.ErrorContext(ctx, "Apply skipped: item fetch failed", "item_id", r.ItemID, "error", err)
		return false
	}
	if err := s.store.UpdateItemCategory(ctx, r.ItemID, r.NewCategoryID); err != nil {
		slog.ErrorContext(ctx, "Apply skipped: category update failed",
			"item_id", r.ItemID, "category_id", r.NewCategoryID, "error", err)
		return false
	}

	st.mu.Lock()
	st.results[idx].IsApplied = true
	st.appliedCount++
	st.mu.Unlock()
	return true
}

// ApplyPartial synchronously commits the unapplied results matching the
// given item ids. It is a side operation: the task status is not changed.
func (s *Service) ApplyPartial(ctx context.Context, itemIDs []int64) (ApplyPartialReport, error) {
	if len(itemIDs) == 0 {
		return ApplyPartialReport{}, core.ErrNothingToDo
	}

	st := s.state
	st.mu.Lock()
	if st.status != core.TaskCompleted {
		st.mu.Unlock()
		return ApplyPartialReport{}, core.ErrNotReady
	}
	wanted := make(map[int64]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		wanted[id] = struct{}{}
	}
	var targets []int
	for i, r := range st.results {
		if _, ok := wanted[r.ItemID]; ok && !r.IsApplied {
			targets = append(targets, i)
		}
	}
	st.mu.Unlock()

	// Requested items are independent rows, so commit them concurrently.
	var (
		reportMu sync.Mutex
		report   ApplyPartialReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, idx := range targets {
		g.Go(func() error {
			ok := s.applyOne(gctx, idx)
			reportMu.Lock()
			if ok {
				report.AppliedCount++
			} else {
				report.ErrorCount++
			}
			reportMu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // the goroutines never return an error

	st.mu.Lock()
	report.TotalApplied = st.appliedCount
	st.mu.Unlock()

	slog.InfoContext(ctx, "Partial apply finished",
		"applied", report.AppliedCount, "errors", report.ErrorCount)
	return report, nil
}
