package logits

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/chatloop/internal/engine"
)

func sampleN(s *Sampler, logits []float32, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = s.Sample(append([]float32(nil), logits...), nil, nil)
	}
	return out
}

func TestSamplerDeterministicForSeed(t *testing.T) {
	t.Parallel()

	logits := []float32{0, 1, 2, 3, 4, 5}
	cfg := SamplerConfig{Temperature: 0.9, TopK: 4, TopP: 0.95}
	a := sampleN(NewSampler(cfg, rand.New(rand.NewSource(42))), logits, 20)
	b := sampleN(NewSampler(cfg, rand.New(rand.NewSource(42))), logits, 20)
	require.Equal(t, a, b)
}

// Samplers built on one generator continue its sequence instead of
// restarting it, so a conversation depends only on the initial seed.
func TestSamplerSharedGenerator(t *testing.T) {
	t.Parallel()

	logits := []float32{1, 1, 1, 1, 1, 1, 1, 1}
	cfg := SamplerConfig{Temperature: 1, TopK: 8, TopP: 1}

	shared := rand.New(rand.NewSource(3))
	var got []int
	for range 3 {
		got = append(got, sampleN(NewSampler(cfg, shared), logits, 4)...)
	}
	want := sampleN(NewSampler(cfg, rand.New(rand.NewSource(3))), logits, 12)
	require.Equal(t, want, got)
}

func TestSamplerGreedy(t *testing.T) {
	t.Parallel()

	for name, cfg := range map[string]SamplerConfig{
		"top-k one":        {Temperature: 1, TopK: 1, TopP: 1},
		"zero temperature": {Temperature: 0, TopK: 40, TopP: 0.9},
	} {
		t.Run(name, func(t *testing.T) {
			s := NewSampler(cfg, rand.New(rand.NewSource(99)))
			require.Equal(t, 3, s.Sample([]float32{-1, 5, 3, 7, 2}, nil, nil))
		})
	}
}

func TestSamplerTopP(t *testing.T) {
	t.Parallel()

	s := NewSampler(SamplerConfig{Temperature: 1, TopK: 5, TopP: 0.5}, rand.New(rand.NewSource(7)))
	for _, idx := range sampleN(s, []float32{10, 0, 0, 0, 0}, 10) {
		require.Equal(t, 0, idx)
	}
}

func TestSamplerMinP(t *testing.T) {
	t.Parallel()

	// exp(-3) is below a 0.1 floor relative to the top candidate.
	s := NewSampler(SamplerConfig{Temperature: 1, TopK: 3, TopP: 1, MinP: 0.1}, rand.New(rand.NewSource(5)))
	for _, idx := range sampleN(s, []float32{3, 3, 0}, 50) {
		require.NotEqual(t, 2, idx)
	}
}

func TestSamplerSkipsNegativeInfinity(t *testing.T) {
	t.Parallel()

	neg := float32(math.Inf(-1))
	s := NewSampler(SamplerConfig{Temperature: 1.5, TopK: 5, TopP: 1}, rand.New(rand.NewSource(11)))
	for _, idx := range sampleN(s, []float32{neg, 0.5, neg, 0.4, neg}, 50) {
		require.Contains(t, []int{1, 3}, idx)
	}
}

func TestSamplerRepeatPenalty(t *testing.T) {
	t.Parallel()

	cfg := SamplerConfig{Temperature: 1, TopK: 1, TopP: 1, RepeatPenalty: 4, RepeatLastN: 2}
	s := NewSampler(cfg, rand.New(rand.NewSource(1)))

	require.Equal(t, 1, s.Sample([]float32{2, 1}, []int{0}, nil), "recent token is penalised")
	require.Equal(t, 0, s.Sample([]float32{2, 1}, []int{0}, []int{0}), "exempt token keeps its logit")
	require.Equal(t, 0, s.Sample([]float32{2, 1}, []int{0, 1, 1}, nil), "only the last n ids count")

	logits := []float32{-1, -2}
	s.Sample(logits, []int{0}, nil)
	require.Equal(t, []float32{-4, -2}, logits)
}

func TestConfigFromParams(t *testing.T) {
	t.Parallel()

	cfg := ConfigFromParams(engine.DefaultParams())
	require.Equal(t, 40, cfg.TopK)
	require.Equal(t, 512, cfg.RepeatLastN)
	require.InDelta(t, 0.8, cfg.Temperature, 1e-6)
	require.InDelta(t, 1.3, cfg.RepeatPenalty, 1e-6)
}
