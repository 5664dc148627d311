package recat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.uber.org/ratelimit"

	"github.com/SilentInt/HamsterWallet/internal/classifier"
	"github.com/SilentInt/HamsterWallet/internal/core"
	"github.com/SilentInt/HamsterWallet/internal/taxonomy"
)

// ItemStore is the persistence surface the engine reads items from and
// applies category changes to.
type ItemStore interface {
	ListEligibleItems(ctx context.Context) ([]core.Item, error)
	GetItem(ctx context.Context, id int64) (core.Item, error)
	UpdateItemCategory(ctx context.Context, itemID, categoryID int64) error
}

// TaxonomyProvider supplies point-in-time snapshots of the category tree.
// The engine takes a fresh snapshot per batch so concurrent taxonomy edits
// are honored at reconciliation time.
type TaxonomyProvider interface {
	Snapshot(ctx context.Context) (*taxonomy.Snapshot, error)
}

// EventPublisher receives run lifecycle notifications. A nil publisher
// disables publishing.
type EventPublisher interface {
	PublishTaskEvent(ctx context.Context, event string, snap core.TaskSnapshot) error
}

// Config holds engine tuning.
type Config struct {
	// DefaultBatchSize is used when an operator starts a run without an
	// explicit batch size.
	DefaultBatchSize int

	// BatchInterval paces classifier calls: at most one batch per interval.
	BatchInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultBatchSize: core.DefaultBatchSize,
		BatchInterval:    time.Second,
	}
}

// Service drives the bulk re-categorization engine: it owns the task state
// transitions and launches the background orchestrator and applier workers.
// Start/Continue/Apply return immediately; execution errors surface only
// through the status and results read path.
type Service struct {
	state   *TaskState
	store   ItemStore
	tax     TaxonomyProvider
	gateway classifier.BatchClassifier
	events  EventPublisher
	config  Config
	limiter ratelimit.Limiter
}

func NewService(state *TaskState, store ItemStore, tax TaxonomyProvider, gateway classifier.BatchClassifier, events EventPublisher, config Config) *Service {
	if config.DefaultBatchSize < 1 {
		config.DefaultBatchSize = core.DefaultBatchSize
	}
	var limiter ratelimit.Limiter
	if config.BatchInterval > 0 {
		limiter = ratelimit.New(1, ratelimit.Per(config.BatchInterval))
	} else {
		limiter = ratelimit.NewUnlimited()
	}
	return &Service{
		state:   state,
		store:   store,
		tax:     tax,
		gateway: gateway,
		events:  events,
		config:  config,
		limiter: limiter,
	}
}

// Start begins a new run over every eligible item, resetting any previous
// results. It returns core.ErrConflict while a run or apply is active and
// core.ErrNothingToDo when no item qualifies; in the latter case the
// previous state is left untouched.
func (s *Service) Start(ctx context.Context, batchSize int) error {
	if batchSize < 1 {
		batchSize = s.config.DefaultBatchSize
	}

	st := s.state
	st.mu.Lock()
	if st.status.Active() {
		st.mu.Unlock()
		return core.ErrConflict
	}
	prev := st.status
	// Claim the task before scanning so a concurrent start is rejected.
	st.status = core.TaskRunning
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st.cancel = cancel
	st.mu.Unlock()

	items, err := s.store.ListEligibleItems(ctx)
	if err != nil {
		st.failRun(fmt.Sprintf("list eligible items: %v", err))
		s.publish(ctx, EventRunFailed)
		return nil
	}
	if len(items) == 0 {
		st.mu.Lock()
		if st.status == core.TaskRunning {
			st.status = prev
			st.cancel = nil
		}
		st.mu.Unlock()
		cancel()
		return core.ErrNothingToDo
	}

	st.mu.Lock()
	if st.status != core.TaskRunning {
		// A stop request won the race during the scan.
		st.mu.Unlock()
		return nil
	}
	st.reset()
	st.status = core.TaskRunning
	st.batchSize = batchSize
	st.cancel = cancel
	st.totalItems = len(items)
	st.totalBatches = batchCount(len(items), batchSize)
	st.mu.Unlock()

	go s.runAll(runCtx, items, batchSize)

	slog.InfoContext(ctx, "Re-categorization run started",
		"items", len(items), "batch_size", batchSize)
	return nil
}

// Restart discards any previous results and starts over. Same contract as
// Start; the explicit name mirrors the operator surface.
func (s *Service) Restart(ctx context.Context, batchSize int) error {
	return s.Start(ctx, batchSize)
}

// Continue resumes a finished, stopped, or failed run over the items that do
// not yet have a recorded result. Prior results are preserved.
func (s *Service) Continue(ctx context.Context, batchSize int) error {
	st := s.state
	st.mu.Lock()
	if !st.status.Resumable() {
		active := st.status.Active()
		st.mu.Unlock()
		if active {
			return core.ErrConflict
		}
		return core.ErrNotReady
	}
	prev := st.status
	if batchSize < 1 {
		batchSize = st.batchSize
	}
	// Claim the task before scanning so a concurrent start is rejected.
	st.status = core.TaskRunning
	st.batchSize = batchSize
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st.cancel = cancel
	st.mu.Unlock()

	items, err := s.store.ListEligibleItems(ctx)
	if err != nil {
		st.failRun(fmt.Sprintf("list eligible items: %v", err))
		s.publish(ctx, EventRunFailed)
		return nil
	}

	done := st.resultItemIDs()
	remaining := make([]core.Item, 0, len(items))
	for _, it := range items {
		if _, ok := done[it.ID]; !ok {
			remaining = append(remaining, it)
		}
	}

	if len(remaining) == 0 {
		st.mu.Lock()
		if st.status == core.TaskRunning {
			st.status = prev
			st.cancel = nil
		}
		st.mu.Unlock()
		cancel()
		return core.ErrNothingToDo
	}

	go s.runContinue(runCtx, remaining, batchSize)

	slog.InfoContext(ctx, "Re-categorization run continued",
		"remaining_items", len(remaining), "batch_size", batchSize)
	return nil
}

// Stop requests a cooperative stop of the active run or apply. The worker
// observes it at its next batch (or item) boundary; results accumulated so
// far stay visible.
func (s *Service) Stop(ctx context.Context) error {
	if !s.state.markStopped() {
		return core.ErrNotRunning
	}
	slog.InfoContext(ctx, "Re-categorization task stopped")
	s.publish(ctx, EventRunStopped)
	return nil
}

// Clear resets the task to IDLE, discarding all results. Rejected while a
// run or apply is active.
func (s *Service) Clear(ctx context.Context) error {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.status.Active() {
		return core.ErrConflict
	}
	st.reset()
	slog.InfoContext(ctx, "Re-categorization task cleared")
	return nil
}

// Status returns a consistent snapshot of the task counters.
func (s *Service) Status() core.TaskSnapshot {
	return s.state.Snapshot()
}

// Results returns the full result list together with the snapshot it belongs
// to. It fails with core.ErrNotReady before any run has produced state.
func (s *Service) Results() ([]core.Result, core.TaskSnapshot, error) {
	snap := s.state.Snapshot()
	if snap.Status == core.TaskIdle {
		return nil, core.TaskSnapshot{}, core.ErrNotReady
	}
	return s.state.Results(), snap, nil
}

// Summary aggregates a finished run: change histogram and success rate.
func (s *Service) Summary() (core.ResultsSummary, error) {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.status.Resumable() {
		return core.ResultsSummary{}, core.ErrNotReady
	}

	type changeKey struct{ from, to string }
	changes := make(map[changeKey]int)
	pending := 0
	for _, r := range st.results {
		changes[changeKey{r.OldCategoryName, r.NewCategoryName}]++
		if !r.IsApplied {
			pending++
		}
	}

	top := make([]core.CategoryChange, 0, len(changes))
	for k, n := range changes {
		top = append(top, core.CategoryChange{From: k.from, To: k.to, Count: n})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		if top[i].From != top[j].From {
			return top[i].From < top[j].From
		}
		return top[i].To < top[j].To
	})
	if len(top) > 10 {
		top = top[:10]
	}

	total := st.totalItems
	if total < 1 {
		total = 1
	}

	return core.ResultsSummary{
		TotalChanges:   len(st.results),
		AppliedChanges: st.appliedCount,
		PendingChanges: pending,
		SuccessRate:    float64(st.successCount) / float64(total) * 100,
		TopChanges:     top,
		TotalItems:     st.totalItems,
		SuccessCount:   st.successCount,
		SkippedCount:   st.skippedCount,
		FailedCount:    st.failedCount,
	}, nil
}

// PreviewUnapplied returns the first limit unapplied results and the total
// number of unapplied results.
func (s *Service) PreviewUnapplied(limit int) ([]core.Result, int, error) {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.status.Resumable() {
		return nil, 0, core.ErrNotReady
	}
	if limit < 1 {
		limit = 20
	}

	var unapplied []core.Result
	for _, r := range st.results {
		if !r.IsApplied {
			unapplied = append(unapplied, r)
		}
	}
	total := len(unapplied)
	if len(unapplied) > limit {
		unapplied = unapplied[:limit]
	}
	return unapplied, total, nil
}

func (s *Service) publish(ctx context.Context, event string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTaskEvent(ctx, event, s.state.Snapshot()); err != nil {
		slog.WarnContext(ctx, "Failed to publish task event", "event", event, "error", err)
	}
}
