// Package engine defines the capability surface chatloop needs from an
// inference backend: load a model, start a session on it, feed prompt text and
// run inference. Backends live in sub-packages and are selected by
// internal/backend.
package engine

import (
	"context"
	"errors"
	"math/rand"
)

var (
	// ErrContextFull is returned when a feed or inference step would exceed
	// the session's context window.
	ErrContextFull = errors.New("context window is full")
	// ErrUnsupportedTokenizer is returned by backends that cannot honour the
	// requested tokenizer source.
	ErrUnsupportedTokenizer = errors.New("tokenizer source not supported by backend")
	// ErrArchitectureMismatch is returned when the model file declares a
	// different architecture than the one requested.
	ErrArchitectureMismatch = errors.New("model architecture mismatch")
	// ErrSessionClosed is returned for feed/infer calls after Close.
	ErrSessionClosed = errors.New("session is closed")
)

// Engine loads models. It is the only entry point a backend exposes.
type Engine interface {
	Name() string
	Load(ctx context.Context, spec ModelSpec) (Model, error)
}

// Model is a loaded, read-only model handle.
type Model interface {
	StartSession(ctx context.Context, opts SessionOptions) (Session, error)
	Close() error
}

// Session is a stateful inference context bound to one Model. A Session is
// not safe for concurrent use. Everything fed or generated is retained; there
// is no rollback.
type Session interface {
	ID() string

	// Feed ingests text without sampling. The returned stream yields the
	// prompt tokens as they are ingested.
	Feed(ctx context.Context, text string) *Stream

	// Infer feeds req.Prompt and then samples tokens using rng until the
	// model ends the turn, req.MaxTokens is reached, or the consumer stops
	// ranging over the stream.
	Infer(ctx context.Context, rng *rand.Rand, req Request) *Stream

	Close() error
}

// ModelSpec describes what to load.
type ModelSpec struct {
	// Architecture is the expected architecture tag ("llama", ...). "auto" or
	// "" skips the check.
	Architecture string
	Path         string
	Tokenizer    TokenizerSource

	ContextLength int
	GPULayers     int
}

// SessionOptions configures a new session.
type SessionOptions struct {
	// ContextLength overrides the model's context length when > 0.
	ContextLength int
}

// Params are the sampling parameters for one inference request.
type Params struct {
	Temperature   float64
	TopK          int
	TopP          float64
	MinP          float64
	RepeatPenalty float64
	RepeatLastN   int
}

// DefaultParams are conservative chat defaults with a strong repetition
// penalty.
func DefaultParams() Params {
	return Params{
		Temperature:   0.8,
		TopK:          40,
		TopP:          0.95,
		MinP:          0,
		RepeatPenalty: 1.3,
		RepeatLastN:   512,
	}
}

// Request is one inference turn.
type Request struct {
	Prompt string
	Params Params

	// PlayBackPreviousTokens replays tokens already in the session before
	// streaming new ones.
	PlayBackPreviousTokens bool

	// MaxTokens caps generated tokens for this turn. 0 means no limit.
	MaxTokens int
}
