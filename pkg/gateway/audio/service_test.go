package audio

import (
	"context"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/relaytone/xiaozhi-engine/pkg/core/events"
	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(discardWriter{}, nil)) }

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, evt events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
}

func (b *recordingBus) snapshot() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Event, len(b.events))
	copy(out, b.events)
	return out
}

type thresholdVAD struct {
	threshold int
}

func (v *thresholdVAD) Detect(frame []byte) (bool, error) {
	sum := 0
	for _, b := range frame {
		sum += int(b)
	}
	return sum > v.threshold, nil
}
func (v *thresholdVAD) Reset() {}

type fakeASRSession struct {
	finalText string
	partials  chan string
}

func (f *fakeASRSession) Feed(ctx context.Context, frame []byte) error { return nil }
func (f *fakeASRSession) Final(ctx context.Context) (string, error)    { return f.finalText, nil }
func (f *fakeASRSession) Partials() <-chan string                      { return f.partials }
func (f *fakeASRSession) Close() error                                 { close(f.partials); return nil }

type fakeASR struct {
	session *fakeASRSession
}

func (f *fakeASR) Name() string { return "fake" }
func (f *fakeASR) StartSession(ctx context.Context, agent types.AgentConfig) (ports.ASRSession, error) {
	return f.session, nil
}

func TestSpeechDetectedThenSpeechEndedOnSilence(t *testing.T) {
	b := &recordingBus{}
	sc := types.NewSessionContext("s1", "dev1", "c1", "127.0.0.1")
	agent := &types.AgentConfig{}
	sc.Agent = agent

	asrSession := &fakeASRSession{finalText: "what time is it", partials: make(chan string)}
	asrProvider := &fakeASR{session: asrSession}
	vad := &thresholdVAD{threshold: 5}

	svc := New(
		func(string) ports.VAD { return vad },
		func(string) ports.ASR { return asrProvider },
		func(sessionID string) (*types.SessionContext, bool) { return sc, true },
		b,
		Config{SilenceTimeout: 10 * time.Millisecond, MaxSegmentDuration: time.Hour},
		testLogger(),
	)

	svc.HandleAudioDataReceived(context.Background(), &events.AudioDataReceived{SessionID: "s1", Audio: []byte{10, 10}})
	time.Sleep(5 * time.Millisecond)
	svc.HandleAudioDataReceived(context.Background(), &events.AudioDataReceived{SessionID: "s1", Audio: []byte{0}})
	time.Sleep(20 * time.Millisecond)
	svc.HandleAudioDataReceived(context.Background(), &events.AudioDataReceived{SessionID: "s1", Audio: []byte{0}})

	snap := b.snapshot()
	var sawDetected, sawEnded, sawRecognized bool
	detectedIdx, endedIdx := -1, -1
	for i, e := range snap {
		switch v := e.(type) {
		case *events.SpeechDetected:
			sawDetected = true
			detectedIdx = i
		case *events.SpeechEnded:
			sawEnded = true
			endedIdx = i
		case *events.TextRecognized:
			sawRecognized = true
			if v.Text != "what time is it" {
				t.Fatalf("got recognized text %q", v.Text)
			}
		}
	}
	if !sawDetected || !sawEnded || !sawRecognized {
		t.Fatalf("expected SpeechDetected, SpeechEnded, TextRecognized; got %#v", snap)
	}
	if detectedIdx > endedIdx {
		t.Fatalf("P5 violated: SpeechDetected must precede SpeechEnded, got order %#v", snap)
	}
}

func TestJustWokenUpSuppressesVAD(t *testing.T) {
	b := &recordingBus{}
	sc := types.NewSessionContext("s1", "dev1", "c1", "127.0.0.1")
	sc.JustWokenUp = true
	vad := &thresholdVAD{threshold: 5}

	svc := New(
		func(string) ports.VAD { return vad },
		func(string) ports.ASR { return nil },
		func(sessionID string) (*types.SessionContext, bool) { return sc, true },
		b,
		Config{},
		testLogger(),
	)

	svc.HandleAudioDataReceived(context.Background(), &events.AudioDataReceived{SessionID: "s1", Audio: []byte{50, 50}})

	if len(b.snapshot()) != 0 {
		t.Fatalf("expected no events while just_woken_up, got %#v", b.snapshot())
	}
}

func TestJustWokenUpCooldownResumesVADAfterTimeout(t *testing.T) {
	b := &recordingBus{}
	sc := types.NewSessionContext("s1", "dev1", "c1", "127.0.0.1")
	sc.JustWokenUp = true
	sc.Agent = &types.AgentConfig{}
	vad := &thresholdVAD{threshold: 5}

	svc := New(
		func(string) ports.VAD { return vad },
		func(string) ports.ASR { return nil },
		func(sessionID string) (*types.SessionContext, bool) { return sc, true },
		b,
		Config{WakeUpCooldown: 10 * time.Millisecond},
		testLogger(),
	)

	svc.HandleAudioDataReceived(context.Background(), &events.AudioDataReceived{SessionID: "s1", Audio: []byte{50, 50}})
	if !sc.JustWokenUp {
		t.Fatal("expected JustWokenUp to remain set immediately after the suppressed frame")
	}

	time.Sleep(30 * time.Millisecond)
	if sc.JustWokenUp {
		t.Fatal("expected the cooldown timer to clear JustWokenUp")
	}

	svc.HandleAudioDataReceived(context.Background(), &events.AudioDataReceived{SessionID: "s1", Audio: []byte{50, 50}})
	var sawDetected bool
	for _, e := range b.snapshot() {
		if _, ok := e.(*events.SpeechDetected); ok {
			sawDetected = true
		}
	}
	if !sawDetected {
		t.Fatal("expected VAD to resume and detect speech once the cooldown elapsed")
	}
}

func TestBargeInPublishesAbortRequest(t *testing.T) {
	b := &recordingBus{}
	sc := types.NewSessionContext("s1", "dev1", "c1", "127.0.0.1")
	sc.SetSpeaking(true)
	sc.SetListenMode(types.ListenAuto)
	sc.Agent = &types.AgentConfig{}
	vad := &thresholdVAD{threshold: 5}

	svc := New(
		func(string) ports.VAD { return vad },
		func(string) ports.ASR { return nil },
		func(sessionID string) (*types.SessionContext, bool) { return sc, true },
		b,
		Config{},
		testLogger(),
	)

	svc.HandleAudioDataReceived(context.Background(), &events.AudioDataReceived{SessionID: "s1", Audio: []byte{50, 50}})

	var sawAbort bool
	for _, e := range b.snapshot() {
		if _, ok := e.(*events.AbortRequest); ok {
			sawAbort = true
		}
	}
	if !sawAbort {
		t.Fatal("expected AbortRequest when voice arrives while client_is_speaking and mode != manual")
	}
}
