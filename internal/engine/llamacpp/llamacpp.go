//go:build llamacpp

// Package llamacpp runs GGUF models through llama.cpp via
// github.com/tcpipuk/llama-go. It needs cgo and the llama.cpp libraries, so
// it is only compiled with the llamacpp build tag.
package llamacpp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	llama "github.com/tcpipuk/llama-go"

	"github.com/samcharles93/chatloop/internal/engine"
	"github.com/samcharles93/chatloop/internal/gguf"
	"github.com/samcharles93/chatloop/internal/logger"
)

const name = "llamacpp"

// Engine loads GGUF models.
type Engine struct {
	log logger.Logger
}

func New(log logger.Logger) *Engine {
	return &Engine{log: log.With("component", name)}
}

func (e *Engine) Name() string { return name }

// Load checks the GGUF header against the requested architecture and loads the weights.
func (e *Engine) Load(ctx context.Context, spec engine.ModelSpec) (engine.Model, error) {
	if spec.Tokenizer.Kind != engine.TokenizerEmbedded {
		return nil, fmt.Errorf("%w: llama.cpp uses the GGUF vocabulary (got %s)", engine.ErrUnsupportedTokenizer, spec.Tokenizer)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctxLen := spec.ContextLength
	if strings.EqualFold(filepath.Ext(spec.Path), ".gguf") {
		f, err := gguf.Open(spec.Path)
		if err != nil {
			return nil, err
		}
		if a := spec.Architecture; a != "" && a != "auto" && a != f.Architecture() {
			return nil, fmt.Errorf("%w: requested %q, %s declares %q", engine.ErrArchitectureMismatch, a, spec.Path, f.Architecture())
		}
		if ctxLen <= 0 {
			ctxLen = f.ContextLength()
		}
		e.log.Debug("gguf header", "name", f.Name(), "arch", f.Architecture(), "tensors", f.Header.TensorCount, "train_ctx", f.ContextLength())
	}

	e.log.Info("loading model", "path", spec.Path, "ctx", ctxLen, "gpu_layers", spec.GPULayers)
	start := time.Now()
	opts := []llama.ModelOption{llama.WithGPULayers(spec.GPULayers)}
	if ctxLen > 0 {
		opts = append(opts, llama.WithContext(ctxLen))
	}
	m, err := llama.LoadModel(spec.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", spec.Path, err)
	}
	e.log.Info("model loaded", "took", time.Since(start).Round(time.Millisecond))

	return &Model{m: m, ctxLen: ctxLen, log: e.log}, nil
}

// Model wraps a loaded llama.cpp model.
type Model struct {
	m      *llama.Model
	ctxLen int
	log    logger.Logger
}

func (m *Model) StartSession(ctx context.Context, opts engine.SessionOptions) (engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctxLen := m.ctxLen
	if opts.ContextLength > 0 {
		ctxLen = opts.ContextLength
	}
	return newSession(m, ctxLen), nil
}

func (m *Model) Close() error {
	return m.m.Close()
}
