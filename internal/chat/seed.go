package chat

import (
	"context"
	"fmt"

	"github.com/samcharles93/chatloop/internal/engine"
)

// Seed feeds text into sess and echoes every prompt token to out as it is
// ingested. Any failure is wrapped as "ingest initial prompt".
func Seed(ctx context.Context, sess engine.Session, text string, out *Console) (engine.Stats, error) {
	stream := sess.Feed(ctx, text)
	var werr error
	for tok := range stream.Tokens() {
		if werr = out.WriteToken(tok); werr != nil {
			break
		}
	}
	if werr == nil {
		werr = out.EndReply()
	}
	if err := stream.Err(); err != nil {
		return stream.Stats(), fmt.Errorf("ingest initial prompt: %w", err)
	}
	if werr != nil {
		return stream.Stats(), fmt.Errorf("ingest initial prompt: write: %w", werr)
	}
	return stream.Stats(), nil
}
