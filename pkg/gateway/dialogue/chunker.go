package dialogue

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ChunkConfig tunes how SentenceChunker buffers raw LLM text deltas into
// TTS-sized chunks: large enough that synthesis doesn't thrash on every
// token, small enough that audio starts before the model finishes a whole
// sentence.
type ChunkConfig struct {
	SentenceMinChars   int
	MaxChunkChars      int
	FirstChunkMinChars int
}

func (c ChunkConfig) withDefaults() ChunkConfig {
	if c.SentenceMinChars <= 0 {
		c.SentenceMinChars = 12
	}
	if c.MaxChunkChars <= 0 {
		c.MaxChunkChars = 120
	}
	if c.FirstChunkMinChars <= 0 {
		c.FirstChunkMinChars = 8
	}
	return c
}

// SentenceChunker accumulates streamed text deltas and yields sentence-ish
// chunks for TTSAudioReady: a sentence boundary once enough text has
// accumulated, or an early cut on the very first chunk so the listener
// isn't left waiting for a full sentence before anything speaks.
type SentenceChunker struct {
	cfg     ChunkConfig
	buf     strings.Builder
	sentAny bool
}

func NewSentenceChunker(cfg ChunkConfig) *SentenceChunker {
	return &SentenceChunker{cfg: cfg.withDefaults()}
}

// Feed appends one text delta and returns any chunks now ready to speak.
func (c *SentenceChunker) Feed(delta string) []string {
	if delta != "" {
		c.buf.WriteString(delta)
	}
	var out []string
	for {
		chunk, ok := c.next()
		if !ok {
			return out
		}
		out = append(out, chunk)
	}
}

// Flush returns whatever remains buffered at end of stream, split to
// respect MaxChunkChars.
func (c *SentenceChunker) Flush() []string {
	var out []string
	for {
		buf := c.buf.String()
		if strings.TrimSpace(buf) == "" {
			return out
		}
		if runeLen(buf) <= c.cfg.MaxChunkChars {
			out = append(out, c.cut(len(buf)))
			continue
		}
		idx := bestCutAtOrBefore(buf, c.cfg.MaxChunkChars)
		if idx <= 0 {
			idx = cutByteIndexAtRuneCount(buf, c.cfg.MaxChunkChars)
		}
		if idx <= 0 {
			return out
		}
		out = append(out, c.cut(idx))
	}
}

func (c *SentenceChunker) next() (string, bool) {
	buf := c.buf.String()
	if buf == "" {
		return "", false
	}
	n := runeLen(buf)

	if n >= c.cfg.SentenceMinChars {
		if idx := firstSentenceBoundaryCut(buf, c.cfg.MaxChunkChars); idx > 0 {
			return c.cut(idx), true
		}
	}
	if !c.sentAny && n >= c.cfg.FirstChunkMinChars {
		if idx := firstWhitespaceOrBoundaryAtOrAfter(buf, c.cfg.FirstChunkMinChars, c.cfg.MaxChunkChars); idx > 0 {
			return c.cut(idx), true
		}
	}
	if n > c.cfg.MaxChunkChars {
		if idx := bestCutAtOrBefore(buf, c.cfg.MaxChunkChars); idx > 0 {
			return c.cut(idx), true
		}
	}
	return "", false
}

func (c *SentenceChunker) cut(n int) string {
	buf := c.buf.String()
	if n <= 0 || n > len(buf) {
		n = len(buf)
	}
	chunk := buf[:n]
	c.buf.Reset()
	c.buf.WriteString(buf[n:])
	c.sentAny = true
	return chunk
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func isSentenceBoundary(r rune) bool {
	return r == '.' || r == '?' || r == '!' || r == '\n'
}

func firstSentenceBoundaryCut(s string, maxChars int) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	runes := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			return 0
		}
		runes++
		if runes > maxChars {
			return 0
		}
		if isSentenceBoundary(r) {
			j := i + size
			for j < len(s) {
				r2, sz2 := utf8.DecodeRuneInString(s[j:])
				if sz2 <= 0 || !unicode.IsSpace(r2) {
					break
				}
				j += sz2
			}
			// A boundary at the very end of the buffer is not cut until
			// more text follows it.
			if j == i+size && j == len(s) {
				return 0
			}
			return j
		}
		i += size
	}
	return 0
}

func firstWhitespaceOrBoundaryAtOrAfter(s string, minChars, maxChars int) int {
	if minChars <= 0 {
		minChars = 1
	}
	runes := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			return 0
		}
		runes++
		if runes > maxChars {
			return 0
		}
		if runes >= minChars && (unicode.IsSpace(r) || isSentenceBoundary(r)) {
			return i + size
		}
		i += size
	}
	return 0
}

func bestCutAtOrBefore(s string, maxChars int) int {
	if maxChars <= 0 {
		return 0
	}
	runes := 0
	lastSpaceCut := 0
	lastBoundaryCut := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			break
		}
		runes++
		if runes > maxChars {
			break
		}
		if isSentenceBoundary(r) {
			lastBoundaryCut = i + size
		}
		if unicode.IsSpace(r) {
			lastSpaceCut = i + size
		}
		i += size
	}
	if lastBoundaryCut > 0 {
		return lastBoundaryCut
	}
	if lastSpaceCut > 0 {
		return lastSpaceCut
	}
	return cutByteIndexAtRuneCount(s, maxChars)
}

func cutByteIndexAtRuneCount(s string, runes int) int {
	if runes <= 0 {
		return 0
	}
	i := 0
	for r := 0; r < runes && i < len(s); r++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		if size <= 0 {
			return i
		}
		i += size
	}
	return i
}
