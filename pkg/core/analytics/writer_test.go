package analytics

import (
	"context"
	"testing"
)

func TestNilWriterIsInert(t *testing.T) {
	var w *Writer
	w.Enqueue(Batch{RequestID: "req-1"})
	w.CleanupOldRecords(context.Background(), 30)
	w.Close()
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	w := &Writer{queue: make(chan Batch, 1)}

	w.Enqueue(Batch{RequestID: "req-1"})
	w.Enqueue(Batch{RequestID: "req-2"}) // queue full, must not block

	if len(w.queue) != 1 {
		t.Errorf("Expected queue depth 1, got %d", len(w.queue))
	}
	if b := <-w.queue; b.RequestID != "req-1" {
		t.Errorf("First batch should survive, got %s", b.RequestID)
	}
}

func TestNewWriterWithoutDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	w, err := NewWriter(context.Background(), 8)
	if err != nil {
		t.Fatalf("Missing DATABASE_URL must not error: %v", err)
	}
	if w != nil {
		t.Error("Expected nil writer when analytics is unconfigured")
	}
}
