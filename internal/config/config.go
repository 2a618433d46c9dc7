// Package config holds every tunable of a chat run. Values come from the
// built-in defaults, then an optional YAML or TOML file, then whatever
// command-line flags the user set explicitly.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/chatloop/internal/engine"
)

// ErrTokenizerConflict is returned when both tokenizer sources are set.
var ErrTokenizerConflict = engine.ErrTokenizerConflict

// Backend names.
const (
	BackendAuto     = "auto"
	BackendLlamaCpp = "llamacpp"
	BackendToy      = "toy"
)

// Stream modes.
const (
	StreamInstant    = "instant"
	StreamTypewriter = "typewriter"
)

// Stats formats.
const (
	StatsText  = "text"
	StatsTable = "table"
	StatsJSON  = "json"
)

type Config struct {
	Backend  string   `yaml:"backend" toml:"backend"`
	Model    Model    `yaml:"model" toml:"model"`
	Persona  Persona  `yaml:"persona" toml:"persona"`
	Sampling Sampling `yaml:"sampling" toml:"sampling"`
	Output   Output   `yaml:"output" toml:"output"`
	Log      Log      `yaml:"log" toml:"log"`
}

type Model struct {
	Architecture        string `yaml:"architecture" toml:"architecture"`
	Path                string `yaml:"path" toml:"path"`
	TokenizerPath       string `yaml:"tokenizer_path" toml:"tokenizer_path"`
	TokenizerRepository string `yaml:"tokenizer_repository" toml:"tokenizer_repository"`
	ContextLength       int    `yaml:"context_length" toml:"context_length"`
	GPULayers           int    `yaml:"gpu_layers" toml:"gpu_layers"`
}

// Persona is the framing of the conversation: the seed prompt and the tags
// that mark each speaker's turn.
type Persona struct {
	Text         string `yaml:"text" toml:"text"`
	Greeting     string `yaml:"greeting" toml:"greeting"`
	UserTag      string `yaml:"user_tag" toml:"user_tag"`
	AssistantTag string `yaml:"assistant_tag" toml:"assistant_tag"`
	// StopSequence ends an assistant reply. Empty means UserTag + ":".
	StopSequence string `yaml:"stop_sequence" toml:"stop_sequence"`
}

type Sampling struct {
	// Seed of the session generator; negative seeds from the clock.
	Seed          int64   `yaml:"seed" toml:"seed"`
	Temperature   float64 `yaml:"temperature" toml:"temperature"`
	TopK          int     `yaml:"top_k" toml:"top_k"`
	TopP          float64 `yaml:"top_p" toml:"top_p"`
	MinP          float64 `yaml:"min_p" toml:"min_p"`
	RepeatPenalty float64 `yaml:"repeat_penalty" toml:"repeat_penalty"`
	RepeatLastN   int     `yaml:"repeat_last_n" toml:"repeat_last_n"`
	// MaxTokens caps one reply; 0 is unbounded.
	MaxTokens int `yaml:"max_tokens" toml:"max_tokens"`
}

type Output struct {
	StreamMode  string `yaml:"stream_mode" toml:"stream_mode"`
	Raw         bool   `yaml:"raw" toml:"raw"`
	StatsFormat string `yaml:"stats_format" toml:"stats_format"`
}

type Log struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	p := engine.DefaultParams()
	return Config{
		Backend: BackendAuto,
		Model: Model{
			Architecture:  "llama",
			Path:          "models/llama-2-7b-chat.Q8_0.gguf",
			ContextLength: 2048,
		},
		Persona: Persona{
			Text:         "A chat between a human and an assistant.",
			Greeting:     "Hello - How may I help you today?",
			UserTag:      "### Human",
			AssistantTag: "### Assistant",
		},
		Sampling: Sampling{
			Seed:          -1,
			Temperature:   p.Temperature,
			TopK:          p.TopK,
			TopP:          p.TopP,
			MinP:          p.MinP,
			RepeatPenalty: p.RepeatPenalty,
			RepeatLastN:   p.RepeatLastN,
		},
		Output: Output{StreamMode: StreamInstant, StatsFormat: StatsText},
		Log:    Log{Level: "info", Format: "pretty"},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/chatloop/config.yaml, or "" when no config
// directory can be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "chatloop", "config.yaml")
}

// Load overlays the file at path onto Default. A missing file is not an
// error when optional is true.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Decode(&cfg, path, data); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode unmarshals data onto cfg, picking the format from the file
// extension. Keys absent from data leave cfg untouched.
func Decode(cfg *Config, path string, data []byte) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return fmt.Errorf("parse %s: unknown key %q", path, undec[0].String())
		}
	default:
		return fmt.Errorf("unsupported config format %q", ext)
	}
	return nil
}
