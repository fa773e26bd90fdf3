package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestStopCancelsAndAwaitsTasks(t *testing.T) {
	m := New(context.Background())
	var ran atomic.Bool

	ok := m.CreateTask(func(ctx context.Context) {
		<-ctx.Done()
		ran.Store(true)
	})
	if !ok {
		t.Fatal("expected CreateTask to succeed before Stop")
	}

	m.Stop()

	if !ran.Load() {
		t.Fatal("expected task to observe cancellation before Stop returned")
	}
	if !m.IsStopped() {
		t.Fatal("expected IsStopped true after Stop")
	}
}

func TestCreateTaskFailsAfterStop(t *testing.T) {
	m := New(context.Background())
	m.Stop()

	if m.CreateTask(func(ctx context.Context) {}) {
		t.Fatal("expected CreateTask to fail after Stop")
	}
}

func TestStopSuppressesTaskPanic(t *testing.T) {
	m := New(context.Background())
	m.CreateTask(func(ctx context.Context) {
		panic("boom")
	})

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return; a panicking task must not hang it")
	}
}
