// Package logits turns a logits vector into a sampled token id.
package logits

import (
	"cmp"
	"math"
	"math/rand"
	"slices"

	"github.com/samcharles93/chatloop/internal/engine"
)

const (
	defaultTopK        = 40
	defaultRepeatLastN = 64
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Temperature   float32
	TopK          int
	TopP          float32
	MinP          float32
	RepeatPenalty float32
	RepeatLastN   int
}

// ConfigFromParams converts request sampling parameters.
func ConfigFromParams(p engine.Params) SamplerConfig {
	return SamplerConfig{
		Temperature:   float32(p.Temperature),
		TopK:          p.TopK,
		TopP:          float32(p.TopP),
		MinP:          float32(p.MinP),
		RepeatPenalty: float32(p.RepeatPenalty),
		RepeatLastN:   p.RepeatLastN,
	}
}

type candidate struct {
	id int
	p  float64
}

// Sampler draws token ids. It reuses its scratch buffers between calls and is
// not safe for concurrent use.
type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	greedy bool

	cands   []candidate
	penalty map[int]struct{}
}

// NewSampler returns a sampler drawing from rng. The caller owns rng and may
// share it across samplers so that a whole conversation is a function of one
// seed.
func NewSampler(cfg SamplerConfig, rng *rand.Rand) *Sampler {
	greedy := cfg.Temperature <= 0 || (cfg.TopK == 1 && cfg.TopP >= 1)
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	if cfg.RepeatPenalty <= 0 {
		cfg.RepeatPenalty = 1
	}
	if cfg.RepeatLastN <= 0 {
		cfg.RepeatLastN = defaultRepeatLastN
	}
	return &Sampler{rng: rng, cfg: cfg, greedy: greedy, penalty: make(map[int]struct{})}
}

// Sample picks an index from logits, which it may modify in place. recent is
// the token history used for the repetition penalty; ids in exempt are never
// penalised. Indexes holding -Inf are never returned unless every logit is
// -Inf.
//
// Non-greedy sampling consumes exactly one value from the generator.
func (s *Sampler) Sample(logits []float32, recent []int, exempt []int) int {
	if len(logits) == 0 {
		return 0
	}
	s.penalize(logits, recent, exempt)
	if s.greedy {
		return argmax(logits)
	}

	cands := s.shortlist(logits)
	if len(cands) == 0 {
		return argmax(logits)
	}
	cands = softmax(cands)
	cands = minP(cands, float64(s.cfg.MinP))
	cands = topP(cands, float64(s.cfg.TopP))
	return draw(cands, s.rng.Float64())
}

// penalize scales down the logits of tokens seen in the last RepeatLastN ids.
func (s *Sampler) penalize(logits []float32, recent, exempt []int) {
	if s.cfg.RepeatPenalty <= 1 || len(recent) == 0 {
		return
	}
	clear(s.penalty)
	for _, id := range recent[max(len(recent)-s.cfg.RepeatLastN, 0):] {
		if id >= 0 && id < len(logits) {
			s.penalty[id] = struct{}{}
		}
	}
	for _, id := range exempt {
		delete(s.penalty, id)
	}
	for id := range s.penalty {
		if logits[id] > 0 {
			logits[id] /= s.cfg.RepeatPenalty
		} else {
			logits[id] *= s.cfg.RepeatPenalty
		}
	}
}

// shortlist returns the TopK finite logits scaled by 1/Temperature, highest
// first. Ties keep the lower id first.
func (s *Sampler) shortlist(logits []float32) []candidate {
	inv := 1 / float64(s.cfg.Temperature)
	cands := s.cands[:0]
	for id, l := range logits {
		if math.IsInf(float64(l), -1) || math.IsNaN(float64(l)) {
			continue
		}
		cands = append(cands, candidate{id: id, p: float64(l) * inv})
	}
	slices.SortStableFunc(cands, func(a, b candidate) int {
		return cmp.Compare(b.p, a.p)
	})
	s.cands = cands
	return cands[:min(s.cfg.TopK, len(cands))]
}

// softmax replaces scaled logits with probabilities. cands must be sorted.
func softmax(cands []candidate) []candidate {
	top := cands[0].p
	var sum float64
	for i := range cands {
		cands[i].p = math.Exp(cands[i].p - top)
		sum += cands[i].p
	}
	for i := range cands {
		cands[i].p /= sum
	}
	return cands
}

// minP drops candidates below frac of the most likely one and renormalises.
func minP(cands []candidate, frac float64) []candidate {
	if frac <= 0 {
		return cands
	}
	floor := cands[0].p * frac
	n := 0
	var sum float64
	for _, c := range cands {
		if c.p >= floor {
			cands[n] = c
			sum += c.p
			n++
		}
	}
	cands = cands[:n]
	for i := range cands {
		cands[i].p /= sum
	}
	return cands
}

// topP keeps the smallest prefix whose cumulative probability reaches p.
func topP(cands []candidate, p float64) []candidate {
	if p >= 1 {
		return cands
	}
	var cum float64
	for i, c := range cands {
		cum += c.p
		if cum >= p {
			return cands[:i+1]
		}
	}
	return cands
}

// draw picks a candidate using r in [0,1) against the cumulative mass of cands.
func draw(cands []candidate, r float64) int {
	var total float64
	for _, c := range cands {
		total += c.p
	}
	r *= total
	var cum float64
	for _, c := range cands {
		cum += c.p
		if r < cum {
			return c.id
		}
	}
	return cands[len(cands)-1].id
}

func argmax(x []float32) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}
