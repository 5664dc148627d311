package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/SilentInt/HamsterWallet/internal/core"
	"github.com/SilentInt/HamsterWallet/internal/events"
)

type fakeRecorder struct {
	records   []core.TaskEventRecord
	recordErr error
}

func (f *fakeRecorder) RecordTaskEvent(ctx context.Context, rec core.TaskEventRecord) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRecorder) ListRecentTaskEvents(ctx context.Context, limit int) ([]core.TaskEventRecord, error) {
	if limit > len(f.records) {
		limit = len(f.records)
	}
	out := make([]core.TaskEventRecord, 0, limit)
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.records[i])
	}
	return out, nil
}

func TestHandleTaskEvent(t *testing.T) {
	rec := &fakeRecorder{}
	w := NewEventsWorker(rec)

	stamp := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	msg := &events.TaskEventMessage{
		Event: "run_completed",
		Task: core.TaskSnapshot{
			Status:         core.TaskCompleted,
			TotalItems:     40,
			ProcessedItems: 40,
			SuccessCount:   35,
			SkippedCount:   3,
			FailedCount:    2,
		},
		Timestamp: stamp,
	}

	if err := w.HandleTaskEvent(context.Background(), msg); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	if len(rec.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(rec.records))
	}
	got := rec.records[0]
	if got.Event != "run_completed" || got.Status != "COMPLETED" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.SuccessCount != 35 || got.SkippedCount != 3 || got.FailedCount != 2 {
		t.Errorf("counters not copied: %+v", got)
	}
	if !got.OccurredAt.Equal(stamp) {
		t.Errorf("OccurredAt = %v, want %v", got.OccurredAt, stamp)
	}
}

func TestHandleTaskEventRecorderFailure(t *testing.T) {
	rec := &fakeRecorder{recordErr: errors.New("disk full")}
	w := NewEventsWorker(rec)

	msg := &events.TaskEventMessage{Event: "run_started", Timestamp: time.Now()}
	if err := w.HandleTaskEvent(context.Background(), msg); err == nil {
		t.Fatal("expected error when recorder fails")
	}
}

func TestStartupCheckEmptyLog(t *testing.T) {
	w := NewEventsWorker(&fakeRecorder{})
	if err := w.StartupCheck(context.Background()); err != nil {
		t.Fatalf("startup check: %v", err)
	}
}
