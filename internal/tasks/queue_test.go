package tasks

import (
	"context"
	"testing"
)

func TestQueueNonBlockingEnqueue(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx, 0)
	for i := 0; i < 1000; i++ {
		ok := q.Enqueue(Task{Kind: KindRecordSale, ProductID: "x", Quantity: 1})
		if !ok {
			t.Fatalf("enqueue failed at %d", i)
		}
	}
	if q.BacklogSize() == 0 {
		t.Fatalf("expected backlog > 0")
	}
}

func TestQueueShutdownIntake(t *testing.T) {
	q := NewQueue(1)
	q.CloseIntake()
	if !q.IsShuttingDown() {
		t.Fatalf("expected shutting down true")
	}
	ok := q.Enqueue(Task{Kind: KindRestock, ProductID: "x", Quantity: 1})
	if ok {
		t.Fatalf("expected enqueue false when shutting down")
	}
}
