package gemini

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/relaytone/xiaozhi-engine/pkg/core/types"
)

type geminiStreamChunk struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text         string `json:"text"`
				FunctionCall *struct {
					Name string         `json:"name"`
					Args map[string]any `json:"args"`
				} `json:"functionCall"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Stream turns a Gemini SSE response body into types.StreamEvent values.
type Stream struct {
	reader   *bufio.Reader
	closer   io.Closer
	usage    *types.Usage
	toolSeq  int
	finished bool
	pending  []types.StreamEvent
}

func newStream(body io.ReadCloser) *Stream {
	return &Stream{reader: bufio.NewReader(body), closer: body}
}

// Next drains any events queued from a chunk that carried more than one
// part (e.g. text followed by a functionCall) before reading the next SSE
// line, so a multi-part chunk never loses its trailing parts.
func (s *Stream) Next(ctx context.Context) (types.StreamEvent, error) {
	if ev, ok := s.dequeue(); ok {
		return ev, nil
	}
	if s.finished {
		return types.StreamEvent{}, io.EOF
	}
	for {
		select {
		case <-ctx.Done():
			return types.StreamEvent{}, ctx.Err()
		default:
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.finished = true
			if err == io.EOF {
				return types.StreamEvent{Kind: types.StreamDone, Usage: s.usage}, nil
			}
			return types.StreamEvent{}, err
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			s.finished = true
			return types.StreamEvent{Kind: types.StreamDone, Usage: s.usage}, nil
		}

		var chunk geminiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.UsageMetadata != nil {
			s.usage = &types.Usage{
				PromptTokens:     chunk.UsageMetadata.PromptTokenCount,
				CompletionTokens: chunk.UsageMetadata.CandidatesTokenCount,
			}
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		cand := chunk.Candidates[0]
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				s.pending = append(s.pending, types.StreamEvent{Kind: types.StreamTextDelta, Text: part.Text})
			}
			if part.FunctionCall != nil {
				s.toolSeq++
				s.pending = append(s.pending, types.StreamEvent{
					Kind: types.StreamToolCall,
					ToolCall: &types.ToolCall{
						ID:        fmt.Sprintf("call_%d", s.toolSeq),
						Name:      part.FunctionCall.Name,
						Arguments: part.FunctionCall.Args,
					},
				})
			}
		}
		if cand.FinishReason != "" {
			s.pending = append(s.pending, types.StreamEvent{Kind: types.StreamDone, Usage: s.usage})
		}
		if ev, ok := s.dequeue(); ok {
			return ev, nil
		}
	}
}

// dequeue pops the next queued event, marking the stream finished once a
// StreamDone has been handed out so a later Next call returns io.EOF instead
// of blocking on a body that has nothing left to send.
func (s *Stream) dequeue() (types.StreamEvent, bool) {
	if len(s.pending) == 0 {
		return types.StreamEvent{}, false
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	if ev.Kind == types.StreamDone {
		s.finished = true
	}
	return ev, true
}

func (s *Stream) Close() error {
	return s.closer.Close()
}
