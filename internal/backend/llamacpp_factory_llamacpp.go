//go:build llamacpp

package backend

import (
	"github.com/samcharles93/chatloop/internal/engine"
	"github.com/samcharles93/chatloop/internal/engine/llamacpp"
	"github.com/samcharles93/chatloop/internal/logger"
)

const llamaCppEnabled = true

func newLlamaCpp(log logger.Logger) (engine.Engine, error) {
	return llamacpp.New(log), nil
}
