// Package reference implements ports.TTS without any network dependency:
// it synthesizes silence proportional to the input text's length, chunked
// the way a real streaming provider would. It exists so the engine is
// runnable end to end without a live speech-synthesis subscription.
package reference

import (
	"context"
	"io"

	"github.com/relaytone/xiaozhi-engine/pkg/core/ports"
)

const (
	sampleRate     = 16000
	bytesPerSample = 2
	msPerChar      = 60
	chunkMS        = 200
)

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "reference" }

func (p *Provider) Synthesize(ctx context.Context, voiceID, text string) (ports.TTSStream, error) {
	totalMS := len(text) * msPerChar
	if totalMS <= 0 {
		totalMS = chunkMS
	}
	totalBytes := totalMS * sampleRate * bytesPerSample / 1000
	chunkBytes := chunkMS * sampleRate * bytesPerSample / 1000
	return &Stream{remaining: totalBytes, chunkBytes: chunkBytes}, nil
}

// Stream yields fixed-size silent PCM chunks until remaining is exhausted.
type Stream struct {
	remaining  int
	chunkBytes int
}

func (s *Stream) Next(ctx context.Context) (ports.TTSChunk, error) {
	if s.remaining <= 0 {
		return ports.TTSChunk{}, io.EOF
	}
	n := s.chunkBytes
	final := false
	if n >= s.remaining {
		n = s.remaining
		final = true
	}
	s.remaining -= n
	return ports.TTSChunk{Audio: make([]byte, n), Final: final}, nil
}

func (s *Stream) Close() error {
	s.remaining = 0
	return nil
}
