package chat

import (
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/samcharles93/chatloop/internal/engine"
)

// Stats output formats.
const (
	FormatText  = "text"
	FormatTable = "table"
	FormatJSON  = "json"
)

type statsJSON struct {
	FeedPromptMS  int64   `json:"feed_prompt_duration_ms"`
	PromptTokens  int     `json:"prompt_tokens"`
	PredictMS     int64   `json:"predict_duration_ms"`
	PredictTokens int     `json:"predict_tokens"`
	PerTokenMS    float64 `json:"per_token_duration_ms"`
	TokensPerSec  float64 `json:"tokens_per_second"`
}

// Report prints the "Inference stats" block for s.
func Report(w io.Writer, s engine.Stats, format string) error {
	if _, err := io.WriteString(w, "\n\nInference stats:\n"); err != nil {
		return err
	}
	switch format {
	case "", FormatText:
		_, err := fmt.Fprintln(w, s.String())
		return err
	case FormatTable:
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Counter", "Value"})
		t.AppendRows([]table.Row{
			{"feed prompt duration", s.FeedPromptDuration.Round(time.Millisecond).String()},
			{"prompt tokens", s.PromptTokens},
			{"predict duration", s.PredictDuration.Round(time.Millisecond).String()},
			{"predict tokens", s.PredictTokens},
			{"per token duration", fmt.Sprintf("%.3fms", perTokenMS(s))},
			{"tokens per second", fmt.Sprintf("%.2f", s.TokensPerSecond())},
		})
		t.Render()
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(statsJSON{
			FeedPromptMS:  s.FeedPromptDuration.Milliseconds(),
			PromptTokens:  s.PromptTokens,
			PredictMS:     s.PredictDuration.Milliseconds(),
			PredictTokens: s.PredictTokens,
			PerTokenMS:    perTokenMS(s),
			TokensPerSec:  s.TokensPerSecond(),
		})
	default:
		return fmt.Errorf("unknown stats format %q", format)
	}
}

func perTokenMS(s engine.Stats) float64 {
	return float64(s.PerTokenDuration().Microseconds()) / 1000
}
