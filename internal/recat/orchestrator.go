package recat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SilentInt/HamsterWallet/internal/classifier"
	"github.com/SilentInt/HamsterWallet/internal/core"
	"github.com/SilentInt/HamsterWallet/internal/taxonomy"
)

// Lifecycle events published over the events port.
const (
	EventRunStarted     = "run_started"
	EventRunCompleted   = "run_completed"
	EventRunFailed      = "run_failed"
	EventRunStopped     = "run_stopped"
	EventResultsApplied = "results_applied"
)

// runAll is the background worker for a fresh run. The item scan and the
// totals are installed by Start before it launches.
func (s *Service) runAll(ctx context.Context, items []core.Item, batchSize int) {
	s.publish(ctx, EventRunStarted)
	s.processBatches(ctx, items, batchSize, 0)
}

// runContinue is the background worker for a resumed run: processing covers
// only the remaining items. Totals are recomputed from scratch so an aborted
// run's batch count does not linger, and batch numbering resumes after the
// batches the prior pass consumed at the current batch size.
func (s *Service) runContinue(ctx context.Context, items []core.Item, batchSize int) {
	st := s.state
	st.mu.Lock()
	used := batchCount(st.processedItems, batchSize)
	st.totalItems = st.processedItems + len(items)
	st.totalBatches = used + batchCount(len(items), batchSize)
	st.mu.Unlock()

	s.publish(ctx, EventRunStarted)
	s.processBatches(ctx, items, batchSize, used)
}

// processBatches drives the classifier over fixed-size slices of items. A
// stop request is honored at batch boundaries only; an in-flight classifier
// call always completes or times out first. Batch-level failures are
// accounted and skipped, never fatal to the run.
func (s *Service) processBatches(ctx context.Context, items []core.Item, batchSize, firstBatchIndex int) {
	st := s.state

	for offset, batchIdx := 0, firstBatchIndex; offset < len(items); offset, batchIdx = offset+batchSize, batchIdx+1 {
		if st.stopped() {
			slog.InfoContext(ctx, "Run stopped at batch boundary", "batch_index", batchIdx)
			return
		}
		if ctx.Err() != nil {
			st.markStopped()
			return
		}

		end := offset + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[offset:end]

		st.mu.Lock()
		st.currentBatchIndex = batchIdx
		st.mu.Unlock()

		s.processSingleBatch(ctx, batch, batchIdx)

		st.mu.Lock()
		st.processedItems += len(batch)
		st.mu.Unlock()

		// Pace the external classifier between batches.
		if end < len(items) {
			s.limiter.Take()
		}
	}

	st.finishRun()
	if st.Status() == core.TaskCompleted {
		s.publish(ctx, EventRunCompleted)
		slog.InfoContext(ctx, "Re-categorization run completed")
	}
}

// processSingleBatch performs one classifier call and reconciles its
// proposals. On a batch-level failure the whole batch counts as failed.
func (s *Service) processSingleBatch(ctx context.Context, batch []core.Item, batchIdx int) {
	snap, err := s.tax.Snapshot(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Taxonomy snapshot failed, batch marked failed",
			"batch_index", batchIdx, "error", err)
		s.addFailed(len(batch))
		return
	}

	payload := make([]classifier.ItemPayload, len(batch))
	byID := make(map[int64]core.Item, len(batch))
	for i, it := range batch {
		payload[i] = classifier.ItemPayload{ID: it.ID, NameNative: it.NameNative, NameLocal: it.NameLocal}
		byID[it.ID] = it
	}

	proposals, err := s.gateway.ClassifyBatch(ctx, payload, snap.Flatten())
	if err != nil {
		slog.WarnContext(ctx, "Classifier batch failed",
			"batch_index", batchIdx, "items", len(batch), "error", err)
		s.addFailed(len(batch))
		return
	}

	returned := make(map[int64]struct{}, len(proposals))
	for _, p := range proposals {
		returned[p.ItemID] = struct{}{}
		s.reconcile(ctx, p, byID, snap)
	}

	// Items the classifier silently dropped count as failed; the run goes on.
	for _, it := range batch {
		if _, ok := returned[it.ID]; !ok {
			slog.WarnContext(ctx, "Classifier returned no proposal for item", "item_id", it.ID)
			s.addFailed(1)
		}
	}
}

// reconcile validates one proposal against the batch and the live taxonomy
// snapshot, turning it into a recorded Result, a skip, or a failure.
func (s *Service) reconcile(ctx context.Context, p classifier.Proposal, batch map[int64]core.Item, snap *taxonomy.Snapshot) {
	item, ok := batch[p.ItemID]
	if !ok {
		slog.WarnContext(ctx, "Proposal references unknown item", "item_id", p.ItemID)
		s.addFailed(1)
		return
	}

	if _, ok := snap.Get(p.CategoryID); !ok {
		slog.WarnContext(ctx, "Proposal references unknown category",
			"item_id", p.ItemID, "category_id", p.CategoryID)
		s.addFailed(1)
		return
	}

	newName := snap.NameByID(p.CategoryID)
	if newName == "" {
		newName = p.CategoryName
	}
	if newName == "" {
		newName = fmt.Sprintf("category #%d", p.CategoryID)
	}

	// Unchanged category: skip without recording. Re-running over an
	// already-correct item never produces a visible change.
	if item.CategoryID != nil && *item.CategoryID == p.CategoryID {
		st := s.state
		st.mu.Lock()
		st.skippedCount++
		st.mu.Unlock()
		return
	}

	oldName := "Uncategorized"
	if item.CategoryID != nil {
		if n := snap.NameByID(*item.CategoryID); n != "" {
			oldName = n
		} else {
			oldName = fmt.Sprintf("category #%d", *item.CategoryID)
		}
	}

	st := s.state
	st.mu.Lock()
	st.results = append(st.results, core.Result{
		ItemID:          item.ID,
		ItemName:        item.NameLocal,
		OldCategoryName: oldName,
		NewCategoryID:   p.CategoryID,
		NewCategoryName: newName,
		Reason:          p.Reason,
	})
	st.successCount++
	st.mu.Unlock()
}

func (s *Service) addFailed(n int) {
	st := s.state
	st.mu.Lock()
	st.failedCount += n
	st.mu.Unlock()
}

func batchCount(items, batchSize int) int {
	if items == 0 {
		return 0
	}
	return (items + batchSize - 1) / batchSize
}
