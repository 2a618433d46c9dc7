package chat

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/samcharles93/chatloop/internal/engine"
)

// fakeSession replays scripted replies, one per Infer call.
type fakeSession struct {
	replies  [][]string
	inferErr error
	feedErr  error

	fed      []string
	requests []engine.Request
	rngs     []*rand.Rand
	pulled   int
}

func (f *fakeSession) ID() string { return "fake" }

func (f *fakeSession) Feed(_ context.Context, text string) *engine.Stream {
	f.fed = append(f.fed, text)
	return engine.NewStream(func(yield func(string) bool) (engine.Stats, error) {
		if f.feedErr != nil {
			return engine.Stats{}, f.feedErr
		}
		words := strings.SplitAfter(text, " ")
		for _, w := range words {
			if !yield(w) {
				break
			}
		}
		return engine.Stats{PromptTokens: len(words), FeedPromptDuration: time.Millisecond}, nil
	})
}

func (f *fakeSession) Infer(_ context.Context, rng *rand.Rand, req engine.Request) *engine.Stream {
	f.requests = append(f.requests, req)
	f.rngs = append(f.rngs, rng)
	var chunks []string
	if len(f.replies) > 0 {
		chunks, f.replies = f.replies[0], f.replies[1:]
	}
	return engine.NewStream(func(yield func(string) bool) (engine.Stats, error) {
		st := engine.Stats{PromptTokens: 3, FeedPromptDuration: time.Millisecond}
		for _, c := range chunks {
			f.pulled++
			st.PredictTokens++
			st.PredictDuration += 10 * time.Millisecond
			if !yield(c) {
				return st, nil
			}
		}
		return st, f.inferErr
	})
}

func (f *fakeSession) Close() error { return nil }

// scriptedInput returns lines, then the given errors, then io.EOF.
type scriptedInput struct {
	steps   []inputStep
	prompts []string
}

type inputStep struct {
	line string
	err  error
}

func lines(ls ...string) *scriptedInput {
	in := &scriptedInput{}
	for _, l := range ls {
		in.steps = append(in.steps, inputStep{line: l})
	}
	return in
}

func (s *scriptedInput) then(err error) *scriptedInput {
	s.steps = append(s.steps, inputStep{err: err})
	return s
}

var errNoMoreInput = errors.New("script exhausted")

func (s *scriptedInput) ReadLine(prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if len(s.steps) == 0 {
		return "", errNoMoreInput
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st.line, st.err
}
