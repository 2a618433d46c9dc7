package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/chatloop/internal/backend"
	"github.com/samcharles93/chatloop/internal/chat"
	"github.com/samcharles93/chatloop/internal/config"
	"github.com/samcharles93/chatloop/internal/engine"
	"github.com/samcharles93/chatloop/internal/lineedit"
	"github.com/samcharles93/chatloop/internal/logger"
)

func chatCmd() *cli.Command {
	return &cli.Command{
		Name:   "chat",
		Usage:  "Start an interactive conversation (default command)",
		Flags:  chatFlags(),
		Action: runChat,
	}
}

func runChat(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: config: %v", err), 1)
	}
	log, err := logger.Open(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	ctx = logger.WithContext(ctx, log)

	if _, err := chatWith(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return nil
}

// chatWith runs a whole conversation on the given terminal streams.
func chatWith(ctx context.Context, cfg config.Config, in *os.File, out *os.File) (stats engine.Stats, err error) {
	log := logger.FromContext(ctx)

	// Resolve the tokenizer before anything touches the model file.
	spec, err := cfg.ModelSpec()
	if err != nil {
		return stats, err
	}

	eng, err := backend.New(cfg.Backend, spec.Path, log)
	if err != nil {
		return stats, err
	}
	log.Debug("backend selected", "backend", eng.Name(), "available", backend.Available())

	start := time.Now()
	model, err := eng.Load(ctx, spec)
	if err != nil {
		return stats, fmt.Errorf("load model: %w", err)
	}
	defer func() { err = errors.Join(err, model.Close()) }()
	log.Info("model ready", "path", spec.Path, "backend", eng.Name(), "took", time.Since(start).Round(time.Millisecond))

	sess, err := model.StartSession(ctx, engine.SessionOptions{ContextLength: cfg.Model.ContextLength})
	if err != nil {
		return stats, fmt.Errorf("start session: %w", err)
	}
	defer func() { err = errors.Join(err, sess.Close()) }()

	seed := cfg.Sampling.Seed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	input := lineedit.New(in, out)
	log.Debug("session started", "session", sess.ID(), "seed", seed, "interactive", input.Interactive())

	conv := &chat.Conversation{
		Loop: chat.Loop{
			Session: sess,
			Input:   input,
			Console: chat.NewConsole(out, chat.StreamMode(cfg.Output.StreamMode), cfg.Output.Raw),
			Log:     log,
			Persona: chat.Persona{
				Text:         cfg.Persona.Text,
				Greeting:     cfg.Persona.Greeting,
				UserTag:      cfg.Persona.UserTag,
				AssistantTag: cfg.Persona.AssistantTag,
			},
			Stop:      cfg.Persona.Stop(),
			Params:    cfg.Sampling.Params(),
			MaxTokens: cfg.Sampling.MaxTokens,
			RNG:       rand.New(rand.NewSource(seed)),
		},
		StatsFormat: cfg.Output.StatsFormat,
	}
	stats, err = conv.Run(ctx)
	log.Debug("conversation ended", "lines", len(input.History()))
	return stats, err
}
