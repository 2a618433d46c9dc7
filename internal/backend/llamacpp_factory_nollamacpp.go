//go:build !llamacpp

package backend

import (
	"errors"

	"github.com/samcharles93/chatloop/internal/engine"
	"github.com/samcharles93/chatloop/internal/logger"
)

const llamaCppEnabled = false

var errLlamaCppUnavailable = errors.New("llamacpp backend is not available in this build (rebuild with -tags llamacpp)")

func newLlamaCpp(logger.Logger) (engine.Engine, error) {
	return nil, errLlamaCppUnavailable
}
