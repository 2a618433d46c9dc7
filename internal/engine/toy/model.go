// Package toy is a deterministic, pure-Go inference backend. The model is a
// tiny recurrent network with seeded random weights over a byte vocabulary.
// Its output is nonsense, but it is reproducible, needs no model weights on
// disk, and exercises the full session/stream contract, which makes it the
// backend used by tests and offline smoke runs.
package toy

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/goccy/go-json"

	"github.com/samcharles93/chatloop/internal/engine"
	"github.com/samcharles93/chatloop/internal/logger"
)

const (
	// Architecture is the tag toy descriptors declare by default.
	Architecture = "toy"

	vocabSize = 257
	eosID     = 256

	defaultHidden        = 32
	defaultContextLength = 2048

	// eosRamp is added to the end-of-sequence logit per generated token so
	// that replies end on their own.
	eosRamp = 0.05
)

// Descriptor is the JSON file a toy "model path" points at.
type Descriptor struct {
	Architecture  string `json:"architecture"`
	Hidden        int    `json:"hidden"`
	Seed          int64  `json:"seed"`
	ContextLength int    `json:"context_length"`
}

// ReadDescriptor loads a descriptor and fills defaults for missing fields.
func ReadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read toy descriptor: %w", err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("parse toy descriptor %s: %w", path, err)
	}
	return d.withDefaults(), nil
}

func (d Descriptor) withDefaults() Descriptor {
	if d.Architecture == "" {
		d.Architecture = Architecture
	}
	if d.Hidden <= 0 {
		d.Hidden = defaultHidden
	}
	if d.ContextLength <= 0 {
		d.ContextLength = defaultContextLength
	}
	return d
}

// Engine loads toy models.
type Engine struct {
	log logger.Logger
}

// New returns a toy engine logging through log.
func New(log logger.Logger) *Engine {
	return &Engine{log: log.With("component", "toy")}
}

func (e *Engine) Name() string { return "toy" }

// Load reads the descriptor at spec.Path and builds the model weights.
func (e *Engine) Load(ctx context.Context, spec engine.ModelSpec) (engine.Model, error) {
	if spec.Tokenizer.Kind != engine.TokenizerEmbedded {
		return nil, fmt.Errorf("%w: toy models only use their byte tokenizer (got %s)", engine.ErrUnsupportedTokenizer, spec.Tokenizer)
	}
	desc, err := ReadDescriptor(spec.Path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a := spec.Architecture; a != "" && a != "auto" && a != desc.Architecture {
		return nil, fmt.Errorf("%w: requested %q, %s declares %q", engine.ErrArchitectureMismatch, a, spec.Path, desc.Architecture)
	}
	if spec.ContextLength > 0 {
		desc.ContextLength = spec.ContextLength
	}
	m := NewModel(desc)
	m.log = e.log
	e.log.Debug("toy model ready", "hidden", desc.Hidden, "seed", desc.Seed, "ctx", desc.ContextLength)
	return m, nil
}

// Model holds the toy weights. It is read-only after construction.
type Model struct {
	desc Descriptor
	log  logger.Logger

	emb  []float32 // [vocab x hidden]
	w    []float32 // [hidden x vocab]
	bias []float32 // [vocab]
	mask []bool    // tokens the model may emit
}

// NewModel builds a model from a descriptor. Identical descriptors produce
// identical weights.
func NewModel(desc Descriptor) *Model {
	desc = desc.withDefaults()
	h := desc.Hidden
	m := &Model{
		desc: desc,
		log:  logger.Default(),
		emb:  make([]float32, vocabSize*h),
		w:    make([]float32, h*vocabSize),
		bias: make([]float32, vocabSize),
		mask: make([]bool, vocabSize),
	}
	fillRand(m.emb, desc.Seed+11, 1)
	fillRand(m.w, desc.Seed+23, 3/float32(math.Sqrt(float64(h))))

	m.mask['\n'] = true
	for b := ' '; b <= '~'; b++ {
		m.mask[b] = true
	}
	m.mask[eosID] = true
	return m
}

func fillRand(dst []float32, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range dst {
		dst[i] = (rng.Float32()*2 - 1) * scale
	}
}

// StartSession returns an empty session.
func (m *Model) StartSession(ctx context.Context, opts engine.SessionOptions) (engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctxLen := m.desc.ContextLength
	if opts.ContextLength > 0 {
		ctxLen = opts.ContextLength
	}
	return newSession(m, ctxLen), nil
}

func (m *Model) Close() error { return nil }

// step advances the hidden state h by one token and writes the next-token
// logits into out.
func (m *Model) step(h []float32, tok int, out []float32) {
	hidden := m.desc.Hidden
	row := m.emb[tok*hidden : (tok+1)*hidden]
	for i := range h {
		h[i] = float32(math.Tanh(float64(0.5*h[i] + row[i])))
	}
	for j := 0; j < vocabSize; j++ {
		var sum float32
		for i := 0; i < hidden; i++ {
			sum += h[i] * m.w[i*vocabSize+j]
		}
		out[j] = sum + m.bias[j]
	}
}
