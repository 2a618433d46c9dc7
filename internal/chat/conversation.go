package chat

import (
	"context"

	"github.com/samcharles93/chatloop/internal/engine"
)

// Conversation is one full run: seed, loop, report.
type Conversation struct {
	Loop
	// StatsFormat is passed to Report.
	StatsFormat string
}

// Run seeds the session with the persona, runs the loop and prints the stats
// once when input ends. Fatal errors are returned without a report.
func (c *Conversation) Run(ctx context.Context) (engine.Stats, error) {
	seeded, err := Seed(ctx, c.Session, c.Persona.SeedText(), c.Console)
	if err != nil {
		return engine.Stats{}, err
	}
	if c.Log != nil {
		c.Log.Debug("prompt seeded", "session", c.Session.ID(), "tokens", seeded.PromptTokens, "took", seeded.FeedPromptDuration)
	}

	total, err := c.Loop.Run(ctx)
	if err != nil {
		return total, err
	}
	return total, Report(c.Console, total, c.StatsFormat)
}
