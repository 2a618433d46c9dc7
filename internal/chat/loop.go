package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/samcharles93/chatloop/internal/engine"
	"github.com/samcharles93/chatloop/internal/lineedit"
	"github.com/samcharles93/chatloop/internal/logger"
	"github.com/samcharles93/chatloop/internal/stopseq"
)

// LineReader supplies user lines. *lineedit.Editor implements it.
type LineReader interface {
	ReadLine(prompt string) (string, error)
}

// Loop reads user lines and streams the model's replies until input ends.
type Loop struct {
	Session engine.Session
	Input   LineReader
	Console *Console
	Log     logger.Logger

	Persona Persona
	// Stop ends a reply on the console. Generation stops once it appears.
	Stop   string
	Params engine.Params
	// MaxTokens caps each reply; 0 leaves it to the model.
	MaxTokens int

	// RNG is shared by every turn so that a whole conversation is a
	// function of its seed.
	RNG *rand.Rand
}

// exitCommands end the conversation like end of input.
var exitCommands = map[string]bool{"/exit": true, "/quit": true}

// Run loops until end of input or interrupt and returns the stats summed over
// all turns. A non-nil error is fatal; the stats returned with it cover the
// turns that completed.
//
// Invalid UTF-8 is the only input error that is printed and skipped. Every
// other read failure is returned as fatal, not retried.
func (l *Loop) Run(ctx context.Context) (engine.Stats, error) {
	var total engine.Stats
	log := l.Log
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("session", l.Session.ID())

	for turn := 1; ; turn++ {
		if _, err := io.WriteString(l.Console, "\n"); err != nil {
			return total, err
		}
		line, err := l.Input.ReadLine(l.Persona.InputPrompt())
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, lineedit.ErrInterrupted):
			log.Debug("input closed", "reason", err, "turns", turn-1)
			return total, nil
		case errors.Is(err, lineedit.ErrMalformedInput):
			log.Warn("skipping line", "err", err)
			if perr := l.Console.Printf("%v\n", err); perr != nil {
				return total, perr
			}
			turn--
			continue
		case err != nil:
			return total, fmt.Errorf("read input: %w", err)
		}
		if exitCommands[strings.TrimSpace(line)] {
			log.Debug("exit command", "turns", turn-1)
			return total, nil
		}

		stats, err := l.turn(ctx, line)
		total = total.Add(stats)
		if err != nil {
			return total, fmt.Errorf("turn %d: %w", turn, err)
		}
		log.Debug("turn done",
			"turn", turn,
			"prompt_tokens", stats.PromptTokens,
			"predict_tokens", stats.PredictTokens,
			"predict", stats.PredictDuration.Round(time.Millisecond),
		)
	}
}

// turn runs inference for one user line and streams the reply.
func (l *Loop) turn(ctx context.Context, line string) (engine.Stats, error) {
	stream := l.Session.Infer(ctx, l.RNG, engine.Request{
		Prompt:                 l.Persona.Turn(line),
		Params:                 l.Params,
		PlayBackPreviousTokens: false,
		MaxTokens:              l.MaxTokens,
	})

	var werr error
	for chunk := range stopseq.Truncate(stream.Tokens(), l.Stop) {
		if werr = l.Console.WriteToken(chunk); werr != nil {
			break
		}
	}
	if werr == nil {
		werr = l.Console.EndReply()
	}
	if err := stream.Err(); err != nil {
		return stream.Stats(), fmt.Errorf("inference: %w", err)
	}
	if werr != nil {
		return stream.Stats(), fmt.Errorf("write reply: %w", werr)
	}
	return stream.Stats(), nil
}
