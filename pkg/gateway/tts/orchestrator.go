// Package tts implements the TTSOrchestrator: a per-session FIFO of
// SentenceUnits that drives the TTS provider and emits audio frames to the
// transport in strict enqueue order, with FILE units bypassing the
// provider entirely.
package tts

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/relaytone/xiaozhi-engine/pkg/core/events"
	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

var errNoProvider = errors.New("tts: no provider bound for session")

// Publisher is the subset of the EventBus the orchestrator needs.
type Publisher interface {
	Publish(ctx context.Context, evt events.Event)
}

// AudioSink delivers synthesized audio to the transport, serialized by the
// transport's own per-session send path.
type AudioSink interface {
	SendBinary(sessionID string, data []byte, priority bool) error
}

type queueItem struct {
	unit   types.SentenceUnit
	voice  string
}

type sessionQueue struct {
	mu      sync.Mutex
	items   []queueItem
	cancel  context.CancelFunc // cancels the in-flight synthesis, if any
	running bool
}

// Orchestrator owns one FIFO per session.
type Orchestrator struct {
	mu         sync.Mutex
	queues     map[string]*sessionQueue
	providerFor func(sessionID string) ports.TTS
	sink       AudioSink
	bus        Publisher
	logger     *slog.Logger
}

// New constructs an Orchestrator. providerFor resolves the TTS provider
// bound to a session's AgentConfig at synthesis time, so two sessions with
// different bindings can be speaking through different providers
// concurrently. sink delivers the resulting audio to the transport.
func New(providerFor func(sessionID string) ports.TTS, sink AudioSink, eventBus Publisher, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		queues:      make(map[string]*sessionQueue),
		providerFor: providerFor,
		sink:        sink,
		bus:         eventBus,
		logger:      logger,
	}
}

func (o *Orchestrator) queueFor(sessionID string) *sessionQueue {
	o.mu.Lock()
	defer o.mu.Unlock()
	q, ok := o.queues[sessionID]
	if !ok {
		q = &sessionQueue{}
		o.queues[sessionID] = q
	}
	return q
}

// AddMessage enqueues one SentenceUnit for sessionID and, if nothing is
// currently draining the queue, starts draining it. Units for earlier
// sentence_ids are fully flushed before units of later sentence_ids because
// they are processed strictly in enqueue order.
func (o *Orchestrator) AddMessage(ctx context.Context, sessionID, voiceID string, unit types.SentenceUnit) {
	q := o.queueFor(sessionID)

	q.mu.Lock()
	q.items = append(q.items, queueItem{unit: unit, voice: voiceID})
	alreadyRunning := q.running
	if !alreadyRunning {
		q.running = true
	}
	q.mu.Unlock()

	if !alreadyRunning {
		go o.drain(ctx, sessionID, q)
	}
}

func (o *Orchestrator) drain(ctx context.Context, sessionID string, q *sessionQueue) {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		itemCtx, cancel := context.WithCancel(ctx)
		q.cancel = cancel
		q.mu.Unlock()

		o.process(itemCtx, sessionID, item)
		cancel()
	}
}

func (o *Orchestrator) process(ctx context.Context, sessionID string, item queueItem) {
	switch item.unit.ContentType {
	case types.ContentAction:
		// No audio to synthesize; the marker only delineates bracketing.
		return
	case types.ContentFile:
		o.streamFile(ctx, sessionID, item.unit.FilePath)
		return
	case types.ContentText:
		o.synthesize(ctx, sessionID, item.voice, item.unit.Text)
	}
}

func (o *Orchestrator) synthesize(ctx context.Context, sessionID, voiceID, text string) {
	if text == "" {
		return
	}
	provider := o.providerFor(sessionID)
	if provider == nil {
		o.bus.Publish(ctx, &events.ProviderError{SessionID: sessionID, Stage: "tts", Err: errNoProvider})
		return
	}
	stream, err := provider.Synthesize(ctx, voiceID, text)
	if err != nil {
		o.bus.Publish(ctx, &events.ProviderError{SessionID: sessionID, Stage: "tts", Err: err})
		return
	}
	defer stream.Close()

	for {
		if ctx.Err() != nil {
			return
		}
		chunk, err := stream.Next(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				o.bus.Publish(ctx, &events.ProviderError{SessionID: sessionID, Stage: "tts", Err: err})
			}
			return
		}
		if len(chunk.Audio) > 0 {
			if sendErr := o.sink.SendBinary(sessionID, chunk.Audio, false); sendErr != nil {
				o.logger.WarnContext(ctx, "dropping tts audio frame: send failed", "session_id", sessionID, "error", sendErr)
				return
			}
		}
		if chunk.Final {
			return
		}
	}
}

// streamFile reads the file at path and streams it as audio without going
// through the TTS provider, per content_type=FILE's bypass semantics.
func (o *Orchestrator) streamFile(ctx context.Context, sessionID, path string) {
	f, err := os.Open(path)
	if err != nil {
		o.bus.Publish(ctx, &events.ProviderError{SessionID: sessionID, Stage: "tts", Err: err})
		return
	}
	defer f.Close()

	const chunkSize = 4096
	r := bufio.NewReader(f)
	buf := make([]byte, chunkSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := r.Read(buf)
		if n > 0 {
			if sendErr := o.sink.SendBinary(sessionID, append([]byte(nil), buf[:n]...), false); sendErr != nil {
				o.logger.WarnContext(ctx, "dropping file audio frame: send failed", "session_id", sessionID, "error", sendErr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Cleanup discards pending units for sessionID and cancels any in-flight
// synthesis.
func (o *Orchestrator) Cleanup(sessionID string) {
	o.mu.Lock()
	q, ok := o.queues[sessionID]
	o.mu.Unlock()
	if !ok {
		return
	}
	q.mu.Lock()
	q.items = nil
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()
}
