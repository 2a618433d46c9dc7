package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samcharles93/chatloop/internal/engine"
	"github.com/samcharles93/chatloop/internal/logger"
)

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(slices.Contains([]string{BackendAuto, BackendLlamaCpp, BackendToy}, c.Backend),
		"backend %q: want auto, llamacpp or toy", c.Backend)
	check(c.Model.Path != "", "model.path is required")
	check(c.Model.ContextLength >= 0, "model.context_length must not be negative")
	check(c.Model.GPULayers >= 0, "model.gpu_layers must not be negative")
	if c.Model.TokenizerPath != "" && c.Model.TokenizerRepository != "" {
		errs = append(errs, ErrTokenizerConflict)
	}

	check(strings.TrimSpace(c.Persona.UserTag) != "", "persona.user_tag is required")
	check(strings.TrimSpace(c.Persona.AssistantTag) != "", "persona.assistant_tag is required")
	check(!strings.Contains(c.Persona.UserTag, "\n") && !strings.Contains(c.Persona.AssistantTag, "\n"),
		"persona tags must be single-line")

	s := c.Sampling
	check(s.Temperature >= 0, "sampling.temperature must not be negative")
	check(s.TopK >= 0, "sampling.top_k must not be negative")
	check(s.TopP > 0 && s.TopP <= 1, "sampling.top_p must be in (0, 1]")
	check(s.MinP >= 0 && s.MinP < 1, "sampling.min_p must be in [0, 1)")
	check(s.RepeatPenalty > 0, "sampling.repeat_penalty must be positive")
	check(s.RepeatLastN >= 0, "sampling.repeat_last_n must not be negative")
	check(s.MaxTokens >= 0, "sampling.max_tokens must not be negative")

	check(slices.Contains([]string{StreamInstant, StreamTypewriter}, c.Output.StreamMode),
		"output.stream_mode %q: want instant or typewriter", c.Output.StreamMode)
	check(slices.Contains([]string{StatsText, StatsTable, StatsJSON}, c.Output.StatsFormat),
		"output.stats_format %q: want text, table or json", c.Output.StatsFormat)

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	check(slices.Contains([]string{"", logger.FormatPretty, logger.FormatText, logger.FormatJSON}, c.Log.Format),
		"log.format %q: want pretty, text or json", c.Log.Format)

	return errors.Join(errs...)
}

// Stop is the text that ends an assistant reply.
func (p Persona) Stop() string {
	if p.StopSequence != "" {
		return p.StopSequence
	}
	return p.UserTag + ":"
}

// Tokenizer resolves the tokenizer source for the model.
func (m Model) Tokenizer() (engine.TokenizerSource, error) {
	return engine.ResolveTokenizer(m.TokenizerPath, m.TokenizerRepository)
}

// ModelSpec is what a backend needs to load the configured model.
func (c Config) ModelSpec() (engine.ModelSpec, error) {
	tok, err := c.Model.Tokenizer()
	if err != nil {
		return engine.ModelSpec{}, err
	}
	return engine.ModelSpec{
		Architecture:  c.Model.Architecture,
		Path:          c.Model.Path,
		Tokenizer:     tok,
		ContextLength: c.Model.ContextLength,
		GPULayers:     c.Model.GPULayers,
	}, nil
}

// Params converts the sampling section to engine parameters.
func (s Sampling) Params() engine.Params {
	return engine.Params{
		Temperature:   s.Temperature,
		TopK:          s.TopK,
		TopP:          s.TopP,
		MinP:          s.MinP,
		RepeatPenalty: s.RepeatPenalty,
		RepeatLastN:   s.RepeatLastN,
	}
}
