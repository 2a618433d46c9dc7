package engine

import (
	"fmt"
	"math"
	"time"
)

// Stats accumulates timing and token counters across inference calls. The
// zero value is an empty accumulator.
type Stats struct {
	FeedPromptDuration time.Duration `json:"feed_prompt_duration"`
	PromptTokens       int           `json:"prompt_tokens"`
	PredictDuration    time.Duration `json:"predict_duration"`
	PredictTokens      int           `json:"predict_tokens"`
}

// Add returns s plus o. Every counter saturates at its maximum and negative
// deltas are ignored, so no counter of the result is smaller than in s.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		FeedPromptDuration: time.Duration(saturatingAdd(int64(s.FeedPromptDuration), int64(o.FeedPromptDuration), math.MaxInt64)),
		PromptTokens:       int(saturatingAdd(int64(s.PromptTokens), int64(o.PromptTokens), math.MaxInt)),
		PredictDuration:    time.Duration(saturatingAdd(int64(s.PredictDuration), int64(o.PredictDuration), math.MaxInt64)),
		PredictTokens:      int(saturatingAdd(int64(s.PredictTokens), int64(o.PredictTokens), math.MaxInt)),
	}
}

// PerTokenDuration is the mean prediction time per generated token.
func (s Stats) PerTokenDuration() time.Duration {
	if s.PredictTokens <= 0 {
		return 0
	}
	return s.PredictDuration / time.Duration(s.PredictTokens)
}

// TokensPerSecond is the prediction throughput.
func (s Stats) TokensPerSecond() float64 {
	if s.PredictDuration <= 0 {
		return 0
	}
	return float64(s.PredictTokens) / s.PredictDuration.Seconds()
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"feed_prompt_duration: %dms\nprompt_tokens: %d\npredict_duration: %dms\npredict_tokens: %d\nper_token_duration: %.3fms",
		s.FeedPromptDuration.Milliseconds(),
		s.PromptTokens,
		s.PredictDuration.Milliseconds(),
		s.PredictTokens,
		float64(s.PerTokenDuration().Microseconds())/1000,
	)
}

func saturatingAdd(a, b, limit int64) int64 {
	if b <= 0 {
		return a
	}
	if a >= limit || b > limit-a {
		return limit
	}
	return a + b
}
