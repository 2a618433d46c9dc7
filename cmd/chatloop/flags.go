package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/chatloop/internal/config"
)

// chatFlags returns fresh flag instances; flags left unset fall back to the
// config file and then to config.Default.
func chatFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "config file (.yaml or .toml); default $XDG_CONFIG_HOME/chatloop/config.yaml"},

		&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "model path (.gguf, or .json for the toy backend)"},
		&cli.StringFlag{Name: "arch", Usage: "expected model architecture, or auto to skip the check"},
		&cli.StringFlag{Name: "backend", Usage: "inference backend (auto, llamacpp, toy)"},
		&cli.StringFlag{Name: "tokenizer-path", Usage: "local tokenizer.json"},
		&cli.StringFlag{Name: "tokenizer-repository", Usage: "HuggingFace repository to fetch the tokenizer from"},
		&cli.Int64Flag{Name: "context-length", Aliases: []string{"ctx", "c"}, Usage: "context window in tokens"},
		&cli.Int64Flag{Name: "gpu-layers", Aliases: []string{"ngl"}, Usage: "layers to offload to the GPU"},

		&cli.StringFlag{Name: "persona", Usage: "persona text fed before the conversation"},
		&cli.StringFlag{Name: "greeting", Usage: "scripted first assistant line"},
		&cli.StringFlag{Name: "user-tag", Usage: "tag marking user turns"},
		&cli.StringFlag{Name: "assistant-tag", Usage: "tag marking assistant turns"},
		&cli.StringFlag{Name: "stop", Usage: "stop sequence ending a reply (default: user tag + \":\")"},

		&cli.Int64Flag{Name: "seed", Usage: "RNG seed (-1 = random)"},
		&cli.Float64Flag{Name: "temperature", Aliases: []string{"temp", "t"}, Usage: "sampling temperature"},
		&cli.Int64Flag{Name: "top-k", Usage: "top-k sampling"},
		&cli.Float64Flag{Name: "top-p", Usage: "top-p (nucleus) sampling"},
		&cli.Float64Flag{Name: "min-p", Usage: "min-p sampling"},
		&cli.Float64Flag{Name: "repeat-penalty", Usage: "repetition penalty"},
		&cli.Int64Flag{Name: "repeat-last-n", Usage: "tokens considered by the repetition penalty"},
		&cli.Int64Flag{Name: "max-tokens", Aliases: []string{"n"}, Usage: "cap per reply (0 = until the model stops)"},

		&cli.StringFlag{Name: "stream-mode", Usage: "output streaming mode (instant, typewriter)"},
		&cli.BoolFlag{Name: "raw", Usage: "escape control characters in model output"},
		&cli.StringFlag{Name: "stats-format", Usage: "final stats format (text, table, json)"},

		&cli.StringFlag{Name: "log-level", Usage: "log level (debug, info, warn, error)"},
		&cli.StringFlag{Name: "log-format", Usage: "log format (pretty, json, text)"},
		&cli.BoolFlag{Name: "debug", Usage: "enable debug logging (shorthand for --log-level=debug)"},
	}
}

// flagSource is the subset of *cli.Command applyFlags reads.
type flagSource interface {
	IsSet(name string) bool
	String(name string) string
	Int64(name string) int64
	Float64(name string) float64
	Bool(name string) bool
}

// applyFlags overrides cfg with every flag the user set explicitly.
func applyFlags(c flagSource, cfg *config.Config) {
	str := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	num := func(name string, dst *int) {
		if c.IsSet(name) {
			*dst = int(c.Int64(name))
		}
	}
	flt := func(name string, dst *float64) {
		if c.IsSet(name) {
			*dst = c.Float64(name)
		}
	}

	str("model", &cfg.Model.Path)
	str("arch", &cfg.Model.Architecture)
	str("backend", &cfg.Backend)
	str("tokenizer-path", &cfg.Model.TokenizerPath)
	str("tokenizer-repository", &cfg.Model.TokenizerRepository)
	num("context-length", &cfg.Model.ContextLength)
	num("gpu-layers", &cfg.Model.GPULayers)

	str("persona", &cfg.Persona.Text)
	str("greeting", &cfg.Persona.Greeting)
	str("user-tag", &cfg.Persona.UserTag)
	str("assistant-tag", &cfg.Persona.AssistantTag)
	str("stop", &cfg.Persona.StopSequence)

	if c.IsSet("seed") {
		cfg.Sampling.Seed = c.Int64("seed")
	}
	flt("temperature", &cfg.Sampling.Temperature)
	num("top-k", &cfg.Sampling.TopK)
	flt("top-p", &cfg.Sampling.TopP)
	flt("min-p", &cfg.Sampling.MinP)
	flt("repeat-penalty", &cfg.Sampling.RepeatPenalty)
	num("repeat-last-n", &cfg.Sampling.RepeatLastN)
	num("max-tokens", &cfg.Sampling.MaxTokens)

	str("stream-mode", &cfg.Output.StreamMode)
	if c.IsSet("raw") {
		cfg.Output.Raw = c.Bool("raw")
	}
	str("stats-format", &cfg.Output.StatsFormat)

	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	if c.Bool("debug") {
		cfg.Log.Level = "debug"
	}
}

// loadConfig reads the --config file, or the default path if it exists, and
// applies the flags on top.
func loadConfig(c flagSource) (config.Config, error) {
	path, optional := c.String("config"), false
	if path == "" {
		path, optional = config.DefaultPath(), true
	}
	cfg, err := config.Load(path, optional)
	if err != nil {
		return cfg, err
	}
	applyFlags(c, &cfg)
	return cfg, cfg.Validate()
}
