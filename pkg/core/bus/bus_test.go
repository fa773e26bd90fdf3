package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaytone/xiaozhi-engine/pkg/core/events"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestPublishRunsSyncHandlersInRegistrationOrder(t *testing.T) {
	b := New(discardLogger())
	var order []int
	var mu sync.Mutex

	for i := 0; i < 3; i++ {
		i := i
		b.Subscribe("speech_detected", func(ctx context.Context, evt events.Event) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}, false)
	}

	b.Publish(context.Background(), &events.SpeechDetected{SessionID: "s1"})

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("expected in-order sync dispatch, got %v", order)
	}
}

func TestPublishWaitsForAsyncHandlers(t *testing.T) {
	b := New(discardLogger())
	var done atomic.Bool
	b.Subscribe("speech_ended", func(ctx context.Context, evt events.Event) {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
	}, true)

	b.Publish(context.Background(), &events.SpeechEnded{SessionID: "s1"})

	if !done.Load() {
		t.Fatal("Publish must not return before async handlers finish")
	}
}

func TestPublishIsolatesPanickingHandler(t *testing.T) {
	b := New(discardLogger())
	var secondRan bool

	b.Subscribe("abort_request", func(ctx context.Context, evt events.Event) {
		panic("boom")
	}, false)
	b.Subscribe("abort_request", func(ctx context.Context, evt events.Event) {
		secondRan = true
	}, false)

	b.Publish(context.Background(), &events.AbortRequest{SessionID: "s1", Reason: "user_interrupt"})

	if !secondRan {
		t.Fatal("a panicking handler must not prevent other handlers from running")
	}
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	b := New(discardLogger())
	var calls int
	sub := b.Subscribe("tts_start", func(ctx context.Context, evt events.Event) {
		calls++
	}, false)

	b.Publish(context.Background(), &events.TTSStart{SessionID: "s1", SentenceID: "sent-1"})
	b.Unsubscribe(sub)
	b.Publish(context.Background(), &events.TTSStart{SessionID: "s1", SentenceID: "sent-2"})

	if calls != 1 {
		t.Fatalf("expected 1 call after unsubscribe, got %d", calls)
	}
}
