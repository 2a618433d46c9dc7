// Package backend selects the inference engine for a model.
package backend

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samcharles93/chatloop/internal/engine"
	"github.com/samcharles93/chatloop/internal/engine/toy"
	"github.com/samcharles93/chatloop/internal/logger"
)

const (
	Auto     = "auto"
	LlamaCpp = "llamacpp"
	Toy      = "toy"
)

func Normalize(name string) (string, error) {
	b := strings.ToLower(strings.TrimSpace(name))
	switch b {
	case "":
		return Auto, nil
	case Auto, LlamaCpp, Toy:
		return b, nil
	default:
		return "", fmt.Errorf("unknown backend %q (expected auto, llamacpp, or toy)", name)
	}
}

// Resolve maps auto to a concrete backend from the model file extension:
// .json descriptors are toy models and everything else goes to llama.cpp.
func Resolve(name, modelPath string) (string, error) {
	b, err := Normalize(name)
	if err != nil || b != Auto {
		return b, err
	}
	if strings.EqualFold(filepath.Ext(modelPath), ".json") {
		return Toy, nil
	}
	return LlamaCpp, nil
}

// New returns the engine for name, resolving auto against modelPath.
func New(name, modelPath string, log logger.Logger) (engine.Engine, error) {
	b, err := Resolve(name, modelPath)
	if err != nil {
		return nil, err
	}
	switch b {
	case Toy:
		return toy.New(log), nil
	default:
		return newLlamaCpp(log)
	}
}

// Available lists the backends compiled into this binary.
func Available() []string {
	names := []string{Toy}
	if Has(LlamaCpp) {
		names = append(names, LlamaCpp)
	}
	return names
}

func Has(name string) bool {
	switch name {
	case Toy:
		return true
	case LlamaCpp:
		return llamaCppEnabled
	default:
		return false
	}
}
