//go:build llamacpp

package llamacpp

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	llama "github.com/tcpipuk/llama-go"

	"github.com/samcharles93/chatloop/internal/engine"
	"github.com/samcharles93/chatloop/internal/logger"
)

// session keeps the full transcript and re-submits it on every call.
// llama-go reuses the KV cache for the common prefix, so only new text is
// evaluated.
type session struct {
	id     string
	model  *Model
	log    logger.Logger
	ctxLen int

	transcript strings.Builder
	tokens     int
	closed     bool
}

func newSession(m *Model, ctxLen int) *session {
	id := uuid.NewString()
	return &session{id: id, model: m, log: m.log.With("session", id), ctxLen: ctxLen}
}

func (s *session) ID() string { return s.id }

// reserve counts the tokens of text and fails if they do not fit.
func (s *session) reserve(text string) (int, error) {
	toks, err := s.model.m.Tokenize(text)
	if err != nil {
		return 0, fmt.Errorf("tokenize: %w", err)
	}
	n := len(toks)
	if s.ctxLen > 0 && s.tokens+n > s.ctxLen {
		return 0, fmt.Errorf("%w: %d + %d tokens exceeds %d", engine.ErrContextFull, s.tokens, n, s.ctxLen)
	}
	return n, nil
}

func (s *session) Feed(ctx context.Context, text string) *engine.Stream {
	if s.closed {
		return engine.FailedStream(engine.ErrSessionClosed)
	}
	return engine.NewStream(func(yield func(string) bool) (engine.Stats, error) {
		var stats engine.Stats
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		start := time.Now()
		n, err := s.reserve(text)
		if err != nil {
			return stats, err
		}
		s.transcript.WriteString(text)
		s.tokens += n

		// Evaluate the transcript so the next Infer starts from a warm cache.
		// Generation is cut off at the first sampled token.
		err = s.model.m.GenerateStream(s.transcript.String(),
			func(string) bool { return false },
			llama.WithMaxTokens(1),
			llama.WithPrefixCaching(true),
		)
		stats.PromptTokens = n
		stats.FeedPromptDuration = time.Since(start)
		if err != nil {
			return stats, fmt.Errorf("evaluate prompt: %w", err)
		}
		s.log.Debug("fed prompt", "tokens", n, "total", s.tokens)

		for _, piece := range strings.SplitAfter(text, " ") {
			if piece != "" && !yield(piece) {
				break
			}
		}
		return stats, nil
	})
}

func (s *session) Infer(ctx context.Context, rng *rand.Rand, req engine.Request) *engine.Stream {
	if s.closed {
		return engine.FailedStream(engine.ErrSessionClosed)
	}
	return engine.NewStream(func(yield func(string) bool) (stats engine.Stats, err error) {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if req.PlayBackPreviousTokens {
			for _, piece := range strings.SplitAfter(s.transcript.String(), " ") {
				if piece != "" && !yield(piece) {
					return stats, nil
				}
			}
		}

		start := time.Now()
		n, err := s.reserve(req.Prompt)
		if err != nil {
			return stats, err
		}
		s.transcript.WriteString(req.Prompt)
		s.tokens += n
		stats.PromptTokens = n

		limit := req.MaxTokens
		if room := s.ctxLen - s.tokens; s.ctxLen > 0 && (limit <= 0 || limit > room) {
			limit = room
		}
		if limit <= 0 {
			return stats, fmt.Errorf("%w: no room to generate", engine.ErrContextFull)
		}

		var (
			reply    strings.Builder
			firstTok time.Time
			stopped  bool
		)
		p := req.Params
		if p.RepeatPenalty != 1 || p.MinP > 0 {
			s.log.Debug("sampler options not supported by llama-go", "repeat_penalty", p.RepeatPenalty, "min_p", p.MinP)
		}
		err = s.model.m.GenerateStream(s.transcript.String(), func(tok string) bool {
			if firstTok.IsZero() {
				firstTok = time.Now()
				stats.FeedPromptDuration = firstTok.Sub(start)
			}
			reply.WriteString(tok)
			stats.PredictTokens++
			if ctx.Err() != nil || !yield(tok) {
				stopped = true
				return false
			}
			return true
		},
			llama.WithMaxTokens(limit),
			llama.WithTemperature(float32(p.Temperature)),
			llama.WithTopK(p.TopK),
			llama.WithTopP(float32(p.TopP)),
			llama.WithSeed(int(rng.Int31())),
			llama.WithPrefixCaching(true),
		)
		if firstTok.IsZero() {
			stats.FeedPromptDuration = time.Since(start)
		} else {
			stats.PredictDuration = time.Since(firstTok)
		}

		// Everything generated stays in the session, shown or not.
		s.transcript.WriteString(reply.String())
		s.tokens += stats.PredictTokens

		if err != nil {
			return stats, fmt.Errorf("generate: %w", err)
		}
		if stopped {
			return stats, ctx.Err()
		}
		return stats, nil
	})
}

func (s *session) Close() error {
	s.closed = true
	s.transcript.Reset()
	return nil
}
