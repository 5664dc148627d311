package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SilentInt/HamsterWallet/internal/core"
	"github.com/SilentInt/HamsterWallet/internal/events"
)

// EventRecorder persists lifecycle events consumed from the queue.
type EventRecorder interface {
	RecordTaskEvent(ctx context.Context, rec core.TaskEventRecord) error
	ListRecentTaskEvents(ctx context.Context, limit int) ([]core.TaskEventRecord, error)
}

// EventsWorker consumes re-categorization lifecycle events from AMQP and
// writes them to the audit log, so run history survives API restarts.
type EventsWorker struct {
	recorder EventRecorder
}

func NewEventsWorker(recorder EventRecorder) *EventsWorker {
	return &EventsWorker{recorder: recorder}
}

// HandleTaskEvent processes a single lifecycle event message from AMQP
func (w *EventsWorker) HandleTaskEvent(ctx context.Context, msg *events.TaskEventMessage) error {
	slog.InfoContext(ctx, "Processing task event",
		"event", msg.Event,
		"status", msg.Task.Status,
		"total_items", msg.Task.TotalItems)

	rec := core.TaskEventRecord{
		Event:          msg.Event,
		Status:         string(msg.Task.Status),
		TotalItems:     msg.Task.TotalItems,
		ProcessedItems: msg.Task.ProcessedItems,
		SuccessCount:   msg.Task.SuccessCount,
		SkippedCount:   msg.Task.SkippedCount,
		FailedCount:    msg.Task.FailedCount,
		AppliedCount:   msg.Task.AppliedCount,
		ErrorMessage:   msg.Task.ErrorMessage,
		OccurredAt:     msg.Timestamp,
	}

	if err := w.recorder.RecordTaskEvent(ctx, rec); err != nil {
		return fmt.Errorf("record task event: %w", err)
	}

	return nil
}

// StartupCheck logs the most recent recorded events so an operator restarting
// the worker can see where the last run left off.
func (w *EventsWorker) StartupCheck(ctx context.Context) error {
	records, err := w.recorder.ListRecentTaskEvents(ctx, 5)
	if err != nil {
		return fmt.Errorf("list recent task events: %w", err)
	}

	if len(records) == 0 {
		slog.InfoContext(ctx, "No recorded task events found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Resuming event log", "recorded_events", len(records))
	for _, rec := range records {
		slog.InfoContext(ctx, "Recent task event",
			"event", rec.Event,
			"status", rec.Status,
			"occurred_at", rec.OccurredAt)
	}

	return nil
}
