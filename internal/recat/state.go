package recat

import (
	"context"
	"sync"

	"github.com/SilentInt/HamsterWallet/internal/core"
)

// TaskState is the single source of truth for the in-flight or completed
// re-categorization run. It is an owned, injectable component: main builds
// one and hands it to the Service; tests build their own. Every field access
// is a short critical section under mu; the mutex is never held across a
// classifier call or a persistence write.
type TaskState struct {
	mu sync.Mutex

	status            core.TaskStatus
	totalItems        int
	processedItems    int
	totalBatches      int
	currentBatchIndex int
	successCount      int
	skippedCount      int
	failedCount       int
	appliedCount      int
	resultsReady      bool
	errorMessage      string
	batchSize         int
	results           []core.Result

	// cancel aborts the background worker owning the current run. Stop is
	// still cooperative: the worker observes it at batch boundaries only.
	cancel context.CancelFunc
}

func NewTaskState() *TaskState {
	return &TaskState{
		status:    core.TaskIdle,
		batchSize: core.DefaultBatchSize,
	}
}

// reset returns every counter and the result list to their initial values.
// Callers must hold mu.
func (t *TaskState) reset() {
	t.status = core.TaskIdle
	t.totalItems = 0
	t.processedItems = 0
	t.totalBatches = 0
	t.currentBatchIndex = 0
	t.successCount = 0
	t.skippedCount = 0
	t.failedCount = 0
	t.appliedCount = 0
	t.resultsReady = false
	t.errorMessage = ""
	t.results = nil
	t.batchSize = core.DefaultBatchSize
	t.cancel = nil
}

// snapshotLocked copies the state. Callers must hold mu.
func (t *TaskState) snapshotLocked() core.TaskSnapshot {
	return core.TaskSnapshot{
		Status:            t.status,
		TotalItems:        t.totalItems,
		ProcessedItems:    t.processedItems,
		TotalBatches:      t.totalBatches,
		CurrentBatchIndex: t.currentBatchIndex,
		SuccessCount:      t.successCount,
		SkippedCount:      t.skippedCount,
		FailedCount:       t.failedCount,
		AppliedCount:      t.appliedCount,
		ResultsReady:      t.resultsReady,
		ErrorMessage:      t.errorMessage,
		BatchSize:         t.batchSize,
	}
}

// Snapshot returns a consistent copy of the counters and status.
func (t *TaskState) Snapshot() core.TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Status returns the current lifecycle state.
func (t *TaskState) Status() core.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Results returns a copy of the accumulated results.
func (t *TaskState) Results() []core.Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]core.Result(nil), t.results...)
}

// resultItemIDs returns the set of item ids already present in results.
func (t *TaskState) resultItemIDs() map[int64]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make(map[int64]struct{}, len(t.results))
	for _, r := range t.results {
		ids[r.ItemID] = struct{}{}
	}
	return ids
}

// markStopped requests a cooperative stop. Returns false when nothing is
// active. The cancel function is invoked outside the critical section.
func (t *TaskState) markStopped() bool {
	t.mu.Lock()
	if !t.status.Active() {
		t.mu.Unlock()
		return false
	}
	t.status = core.TaskStopped
	if t.successCount > 0 {
		t.resultsReady = true
	}
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

// finishRun moves RUNNING to COMPLETED. A stop that won the race is left
// alone.
func (t *TaskState) finishRun() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == core.TaskRunning {
		t.status = core.TaskCompleted
		t.resultsReady = true
		t.cancel = nil
	}
}

// failRun records a run-level error and releases the run context.
// Accumulated results stay visible.
func (t *TaskState) failRun(msg string) {
	t.mu.Lock()
	t.status = core.TaskFailed
	t.errorMessage = msg
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// stopped reports whether a stop request has been observed.
func (t *TaskState) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status == core.TaskStopped
}
