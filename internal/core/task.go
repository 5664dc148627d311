package core

import (
	"errors"
	"time"
)

// TaskStatus is the lifecycle state of the singleton re-categorization run.
type TaskStatus string

const (
	TaskIdle      TaskStatus = "IDLE"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	TaskStopped   TaskStatus = "STOPPED"
	TaskApplying  TaskStatus = "APPLYING"
)

// Active reports whether a background worker currently owns the task.
func (s TaskStatus) Active() bool {
	return s == TaskRunning || s == TaskApplying
}

// Resumable reports whether a continue operation is allowed from this state.
func (s TaskStatus) Resumable() bool {
	return s == TaskCompleted || s == TaskStopped || s == TaskFailed
}

var (
	// ErrConflict is returned when a run or apply is already active.
	ErrConflict = errors.New("a task is already running")

	// ErrNothingToDo is returned by continue/apply when no work remains.
	ErrNothingToDo = errors.New("nothing left to process")

	// ErrNotReady is returned when results are requested before any run, or
	// an apply is requested before the run completed.
	ErrNotReady = errors.New("task results are not ready")

	// ErrNotRunning is returned by stop when no run or apply is active.
	ErrNotRunning = errors.New("no task is running")
)

type (
	// Result is one reconciled category change awaiting application. Results
	// are only recorded when the proposed category differs from the current
	// one, so re-running an unchanged data set records nothing.
	Result struct {
		ItemID          int64  `json:"item_id"`
		ItemName        string `json:"item_name"`
		OldCategoryName string `json:"old_category"`
		NewCategoryID   int64  `json:"new_category_id"`
		NewCategoryName string `json:"new_category"`
		Reason          string `json:"reason"`
		IsApplied       bool   `json:"is_applied"`
	}

	// TaskSnapshot is a consistent copy of the task state, taken under the
	// state mutex. The Results slice is owned by the caller.
	TaskSnapshot struct {
		Status            TaskStatus `json:"status"`
		TotalItems        int        `json:"total_items"`
		ProcessedItems    int        `json:"processed_items"`
		TotalBatches      int        `json:"total_batches"`
		CurrentBatchIndex int        `json:"current_batch_index"`
		SuccessCount      int        `json:"success_count"`
		SkippedCount      int        `json:"skipped_count"`
		FailedCount       int        `json:"failed_count"`
		AppliedCount      int        `json:"applied_count"`
		ResultsReady      bool       `json:"results_ready"`
		ErrorMessage      string     `json:"error_message,omitempty"`
		BatchSize         int        `json:"batch_size"`
		Results           []Result   `json:"-"`
	}

	// CategoryChange is one row of the summary histogram: how many results
	// propose the same old -> new transition.
	CategoryChange struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Count int    `json:"count"`
	}

	// ResultsSummary aggregates a finished run for operator review.
	ResultsSummary struct {
		TotalChanges   int              `json:"total_changes"`
		AppliedChanges int              `json:"applied_changes"`
		PendingChanges int              `json:"pending_changes"`
		SuccessRate    float64          `json:"success_rate"`
		TopChanges     []CategoryChange `json:"top_changes"`
		TotalItems     int              `json:"total_items"`
		SuccessCount   int              `json:"success_count"`
		SkippedCount   int              `json:"skipped_count"`
		FailedCount    int              `json:"failed_count"`
	}

	// TaskEventRecord is a persisted lifecycle event, written by the worker
	// that consumes the event queue.
	TaskEventRecord struct {
		ID             int64     `json:"id"`
		Event          string    `json:"event"`
		Status         string    `json:"status"`
		TotalItems     int       `json:"total_items"`
		ProcessedItems int       `json:"processed_items"`
		SuccessCount   int       `json:"success_count"`
		SkippedCount   int       `json:"skipped_count"`
		FailedCount    int       `json:"failed_count"`
		AppliedCount   int       `json:"applied_count"`
		ErrorMessage   string    `json:"error_message,omitempty"`
		OccurredAt     time.Time `json:"occurred_at"`
	}
)
