// Package audio implements the AudioProcessingService: VAD-driven speech
// segmentation coordinated with a per-session ASR adapter.
package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/relaytone/xiaozhi-engine/pkg/core/events"
	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

// Publisher is the subset of the EventBus the service needs.
type Publisher interface {
	Publish(ctx context.Context, evt events.Event)
}

// Config tunes VAD segmentation.
type Config struct {
	SilenceTimeout     time.Duration // default 700ms per spec.md #4.6
	MaxSegmentDuration time.Duration // default 15s per spec.md #4.6
	WakeUpCooldown     time.Duration // default 2s per spec.md #4.6 step 1
}

func (c Config) withDefaults() Config {
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = 700 * time.Millisecond
	}
	if c.MaxSegmentDuration <= 0 {
		c.MaxSegmentDuration = 15 * time.Second
	}
	if c.WakeUpCooldown <= 0 {
		c.WakeUpCooldown = 2 * time.Second
	}
	return c
}

type segmentState struct {
	mu           sync.Mutex
	haveVoice    bool
	segmentStart time.Time
	lastVoiceAt  time.Time
	asr          ports.ASRSession
	wakeTimer    *time.Timer
}

// Service coordinates VAD and ASR per session.
type Service struct {
	mu       sync.Mutex
	segments map[string]*segmentState

	vadFor func(sessionID string) ports.VAD
	asrFor func(sessionID string) ports.ASR
	sessionCtx func(sessionID string) (*types.SessionContext, bool)

	bus    Publisher
	cfg    Config
	logger *slog.Logger
}

// New constructs a Service. vadFor/asrFor resolve a session's provider
// bindings (typically via the DI container); sessionCtx resolves the
// SessionContext (typically SessionManager.Get).
func New(vadFor func(string) ports.VAD, asrFor func(string) ports.ASR, sessionCtx func(string) (*types.SessionContext, bool), eventBus Publisher, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		segments:   make(map[string]*segmentState),
		vadFor:     vadFor,
		asrFor:     asrFor,
		sessionCtx: sessionCtx,
		bus:        eventBus,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

func (s *Service) stateFor(sessionID string) *segmentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.segments[sessionID]
	if !ok {
		st = &segmentState{}
		s.segments[sessionID] = st
	}
	return st
}

// HandleAudioDataReceived implements spec.md #4.6's step sequence: wake-up
// cooldown suppression, VAD + barge-in check, SpeechDetected on
// silence-to-voice transition, ASR feed, and final-recognition publication.
func (s *Service) HandleAudioDataReceived(ctx context.Context, evt *events.AudioDataReceived) {
	sessionID := evt.SessionID
	sc, ok := s.sessionCtx(sessionID)
	if !ok {
		return
	}

	if sc.JustWokenUp {
		s.scheduleWakeUpCooldown(sessionID, sc)
		return
	}

	vad := s.vadFor(sessionID)
	if vad == nil {
		return
	}
	voice, err := vad.Detect(evt.Audio)
	if err != nil {
		s.bus.Publish(ctx, &events.ProviderError{SessionID: sessionID, Stage: "vad", Err: err})
		return
	}

	if voice && sc.Speaking() && sc.ListenModeValue() != types.ListenManual {
		s.bus.Publish(ctx, &events.AbortRequest{SessionID: sessionID, Reason: "user_interrupt"})
	}

	st := s.stateFor(sessionID)
	st.mu.Lock()
	wasVoice := st.haveVoice
	now := time.Now()

	if voice {
		st.lastVoiceAt = now
		if !wasVoice {
			st.haveVoice = true
			st.segmentStart = now
			asrProvider := s.asrFor(sessionID)
			if asrProvider != nil {
				session, startErr := asrProvider.StartSession(ctx, *sc.Agent)
				if startErr == nil {
					st.asr = session
					go s.drainPartials(ctx, sessionID, session)
				}
			}
			st.mu.Unlock()
			sc.ClientHaveVoice = true
			s.bus.Publish(ctx, &events.SpeechDetected{SessionID: sessionID})
			st.mu.Lock()
		}
	}

	segmentExpired := wasVoice && now.Sub(st.segmentStart) >= s.cfg.MaxSegmentDuration
	silenceExpired := wasVoice && !voice && now.Sub(st.lastVoiceAt) >= s.cfg.SilenceTimeout
	asrSession := st.asr
	st.mu.Unlock()

	if asrSession != nil && voice {
		if feedErr := asrSession.Feed(ctx, evt.Audio); feedErr != nil {
			s.bus.Publish(ctx, &events.ProviderError{SessionID: sessionID, Stage: "asr", Err: feedErr})
		}
	}

	if segmentExpired || silenceExpired {
		s.closeSegment(ctx, sessionID, segmentExpired)
	}
}

func (s *Service) closeSegment(ctx context.Context, sessionID string, forced bool) {
	st := s.stateFor(sessionID)
	st.mu.Lock()
	asrSession := st.asr
	st.haveVoice = false
	st.asr = nil
	st.mu.Unlock()

	if vad := s.vadFor(sessionID); vad != nil {
		vad.Reset()
	}

	s.bus.Publish(ctx, &events.SpeechEnded{SessionID: sessionID, Forced: forced})

	if asrSession == nil {
		return
	}
	text, err := asrSession.Final(ctx)
	_ = asrSession.Close()
	if err != nil {
		s.bus.Publish(ctx, &events.ProviderError{SessionID: sessionID, Stage: "asr", Err: err})
		return
	}
	if text != "" {
		s.bus.Publish(ctx, &events.TextRecognized{SessionID: sessionID, Text: text, IsFinal: true})
	}
}

func (s *Service) drainPartials(ctx context.Context, sessionID string, session ports.ASRSession) {
	for partial := range session.Partials() {
		s.bus.Publish(ctx, &events.TextRecognized{SessionID: sessionID, Text: partial, IsFinal: false})
	}
}

// scheduleWakeUpCooldown arms a one-shot timer that clears sc.JustWokenUp
// after Config.WakeUpCooldown, mirroring the original's
// _resume_vad_detection: the flag is set by control.Dispatcher on a
// listen{state:"detect"} frame, and only this timer resumes VAD afterward.
// A timer already running for this session is left alone so repeated
// suppressed frames during the cooldown window don't keep pushing it back.
func (s *Service) scheduleWakeUpCooldown(sessionID string, sc *types.SessionContext) {
	st := s.stateFor(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.wakeTimer != nil {
		return
	}
	st.wakeTimer = time.AfterFunc(s.cfg.WakeUpCooldown, func() {
		sc.JustWokenUp = false
		st.mu.Lock()
		st.wakeTimer = nil
		st.mu.Unlock()
	})
}
