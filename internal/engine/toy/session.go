package toy

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/samcharles93/chatloop/internal/engine"
	"github.com/samcharles93/chatloop/internal/logger"
	"github.com/samcharles93/chatloop/internal/logits"
)

type session struct {
	id     string
	model  *Model
	log    logger.Logger
	ctxLen int

	h      []float32
	logits []float32
	tokens []int
	closed bool
}

func newSession(m *Model, ctxLen int) *session {
	id := uuid.NewString()
	return &session{
		id:     id,
		model:  m,
		log:    m.log.With("session", id),
		ctxLen: ctxLen,
		h:      make([]float32, m.desc.Hidden),
		logits: make([]float32, vocabSize),
	}
}

func (s *session) ID() string { return s.id }

// ingest appends one token to the session and refreshes the logits.
func (s *session) ingest(tok int) error {
	if len(s.tokens) >= s.ctxLen {
		return fmt.Errorf("%w: %d tokens", engine.ErrContextFull, s.ctxLen)
	}
	s.model.step(s.h, tok, s.logits)
	s.tokens = append(s.tokens, tok)
	return nil
}

// feed ingests text and echoes the decoded pieces while echo holds.
func (s *session) feed(ctx context.Context, text string, echo func(string) bool) (int, error) {
	var dec byteDecoder
	ids := encode(text)
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := s.ingest(id); err != nil {
			return i, err
		}
		if piece := dec.push(id); piece != "" && echo != nil && !echo(piece) {
			echo = nil
		}
	}
	if rest := dec.flush(); rest != "" && echo != nil {
		echo(rest)
	}
	return len(ids), nil
}

func (s *session) Feed(ctx context.Context, text string) *engine.Stream {
	if s.closed {
		return engine.FailedStream(engine.ErrSessionClosed)
	}
	return engine.NewStream(func(yield func(string) bool) (engine.Stats, error) {
		var stats engine.Stats
		start := time.Now()
		n, err := s.feed(ctx, text, yield)
		stats.PromptTokens = n
		stats.FeedPromptDuration = time.Since(start)
		s.log.Debug("fed prompt", "tokens", n, "total", len(s.tokens))
		return stats, err
	})
}

func (s *session) Infer(ctx context.Context, rng *rand.Rand, req engine.Request) *engine.Stream {
	if s.closed {
		return engine.FailedStream(engine.ErrSessionClosed)
	}
	return engine.NewStream(func(yield func(string) bool) (stats engine.Stats, err error) {
		if req.PlayBackPreviousTokens {
			var dec byteDecoder
			for _, id := range s.tokens {
				if piece := dec.push(id); piece != "" && !yield(piece) {
					return stats, nil
				}
			}
			if rest := dec.flush(); rest != "" && !yield(rest) {
				return stats, nil
			}
		}

		start := time.Now()
		stats.PromptTokens, err = s.feed(ctx, req.Prompt, nil)
		stats.FeedPromptDuration = time.Since(start)
		if err != nil {
			return stats, err
		}

		sampler := logits.NewSampler(logits.ConfigFromParams(req.Params), rng)
		scratch := make([]float32, vocabSize)
		var dec byteDecoder

		start = time.Now()
		defer func() { stats.PredictDuration = time.Since(start) }()

		for i := 0; req.MaxTokens <= 0 || i < req.MaxTokens; i++ {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			s.masked(scratch, i)
			next := sampler.Sample(scratch, s.tokens, nil)
			if next == eosID {
				break
			}
			if err := s.ingest(next); err != nil {
				return stats, err
			}
			stats.PredictTokens++
			if piece := dec.push(next); piece != "" && !yield(piece) {
				return stats, nil
			}
		}
		if rest := dec.flush(); rest != "" {
			yield(rest)
		}
		return stats, nil
	})
}

// masked copies the current logits into dst, removing tokens the model may
// not emit and nudging end-of-sequence up as the reply grows.
func (s *session) masked(dst []float32, generated int) {
	negInf := float32(math.Inf(-1))
	for i, v := range s.logits {
		if s.model.mask[i] {
			dst[i] = v
		} else {
			dst[i] = negInf
		}
	}
	dst[eosID] += eosRamp * float32(generated)
}

func (s *session) Close() error {
	s.closed = true
	return nil
}

func encode(text string) []int {
	ids := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int(text[i])
	}
	return ids
}

// byteDecoder reassembles byte tokens into complete UTF-8 sequences.
type byteDecoder struct {
	pending []byte
}

func (d *byteDecoder) push(id int) string {
	if id < 0 || id > 0xff {
		return ""
	}
	d.pending = append(d.pending, byte(id))
	n := 0
	for n < len(d.pending) && utf8.FullRune(d.pending[n:]) {
		_, size := utf8.DecodeRune(d.pending[n:])
		n += size
	}
	if n == 0 {
		return ""
	}
	out := string(d.pending[:n])
	d.pending = append(d.pending[:0], d.pending[n:]...)
	return out
}

func (d *byteDecoder) flush() string {
	out := string(d.pending)
	d.pending = d.pending[:0]
	return out
}
