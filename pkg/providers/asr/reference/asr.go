// Package reference implements ports.ASR without any network dependency:
// it accumulates fed audio frames and reports their duration as a
// transcript placeholder. It exists so the engine is runnable end to end
// (session lifecycle, segmentation, dialogue turn-taking) without a live
// speech-recognition subscription; a networked ASR provider registers
// under a different DI binding name and replaces it per agent.
package reference

import (
	"context"
	"fmt"
	"sync"

	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

// bytesPerSecond assumes 16kHz mono 16-bit PCM, matching the frame format
// AudioProcessingService feeds through the VAD/ASR pipeline.
const bytesPerSecond = 16000 * 2

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "reference" }

func (p *Provider) StartSession(ctx context.Context, agent types.AgentConfig) (ports.ASRSession, error) {
	return &Session{partials: make(chan string, 8)}, nil
}

// Session accumulates frame bytes and, on Final, reports the segment
// duration as a placeholder transcript. Partials fire every ~500ms of
// accumulated audio so downstream TextRecognized(IsFinal:false) events
// have something to carry during long utterances.
type Session struct {
	mu       sync.Mutex
	total    int
	closed   bool
	partials chan string
}

func (s *Session) Feed(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("reference asr: session closed")
	}
	before := s.total / (bytesPerSecond / 2)
	s.total += len(frame)
	after := s.total / (bytesPerSecond / 2)
	if after > before {
		select {
		case s.partials <- fmt.Sprintf("...%.1fs", float64(s.total)/bytesPerSecond):
		default:
		}
	}
	return nil
}

func (s *Session) Final(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seconds := float64(s.total) / bytesPerSecond
	if seconds <= 0 {
		return "", nil
	}
	return fmt.Sprintf("[%.1fs of audio]", seconds), nil
}

func (s *Session) Partials() <-chan string { return s.partials }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.partials)
	}
	return nil
}
