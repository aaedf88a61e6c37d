package logits

import (
	"cmp"
	"math"
	"math/rand"
	"slices"
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Seed          int64
	Temperature   float32
	TopK          int // 0 disables top-k
	TopP          float32
	MinP          float32
	RepeatPenalty float32
	RepeatLastN   int
}

type Sampler struct {
	rng       *rand.Rand
	cfg       SamplerConfig
	greedy    bool
	topIdx    []int
	topVal    []float32
	prob      []float64
	seenMark  []uint32
	seenEpoch uint32
	seenList  []int
}

// NewSampler returns a new sampler with the provided configuration.
// Temperature <= 0 selects greedy decoding.
func NewSampler(cfg SamplerConfig) *Sampler {
	greedy := cfg.Temperature <= 0
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopK < 0 {
		cfg.TopK = 0
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	if cfg.RepeatPenalty <= 0 {
		cfg.RepeatPenalty = 1.0
	}
	if cfg.RepeatLastN <= 0 {
		cfg.RepeatLastN = 64
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// Config returns the effective configuration after defaults.
func (s *Sampler) Config() SamplerConfig { return s.cfg }

// Sample draws a single index from the provided logits vector. The sample
// process involves the following steps:
//
//  1. Apply repetition penalty over the last RepeatLastN ids of recent,
//     skipping ids listed in excludePenalty.
//  2. Greedy configurations return the argmax.
//  3. Otherwise the finite logits are scaled by the inverse temperature and
//     shortlisted, by TopK when set or in full sorted order.
//  4. A softmax over the shortlist is computed after subtracting the max.
//  5. MinP drops candidates below MinP times the best probability.
//  6. TopP truncates the shortlist once the cumulative probability reaches
//     TopP, and a draw from [0,1) selects the token.
//
// Masked (-Inf) logits are never returned unless every logit is masked.
func (s *Sampler) Sample(logits []float32, recent []int, excludePenalty []int) int {
	if s.cfg.RepeatPenalty > 1.0 && len(recent) > 0 {
		s.penalizeRecent(logits, recent, excludePenalty)
	}

	if s.greedy || (s.cfg.TopK == 1 && s.cfg.TopP >= 1 && s.cfg.Temperature == 1) {
		return argmax(logits)
	}

	invTemp := float32(1.0) / s.cfg.Temperature
	var topIdx []int
	var topVal []float32
	if s.cfg.TopK > 0 {
		topIdx, topVal = s.topK(logits, min(s.cfg.TopK, len(logits)), invTemp)
	} else {
		topIdx, topVal = s.sorted(logits, invTemp)
	}
	if len(topVal) == 0 {
		return argmax(logits)
	}

	maxv := topVal[0]
	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := s.prob[:len(topVal)]
	var sum float64
	for i := range topVal {
		e := math.Exp(float64(topVal[i] - maxv))
		prob[i] = e
		sum += e
	}
	if sum == 0 || math.IsNaN(sum) {
		return topIdx[0]
	}
	invSum := 1.0 / sum
	for i := range prob {
		prob[i] *= invSum
	}

	if s.cfg.MinP > 0 {
		threshold := prob[0] * float64(s.cfg.MinP)
		newLen := 0
		var newSum float64
		for i := range prob {
			if prob[i] >= threshold {
				prob[newLen] = prob[i]
				topIdx[newLen] = topIdx[i]
				newSum += prob[i]
				newLen++
			}
		}
		if newLen < len(prob) {
			prob = prob[:newLen]
			scale := 1.0 / newSum
			for i := range prob {
				prob[i] *= scale
			}
		}
	}

	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if float32(c) >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}

	// Renormalise over the nucleus so the draw never falls past cut.
	var mass float64
	for i := 0; i < cut; i++ {
		mass += prob[i]
	}
	r := s.rng.Float64() * mass
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i]
		if r < c {
			return topIdx[i]
		}
	}
	return topIdx[cut-1]
}

func (s *Sampler) penalizeRecent(logits []float32, recent []int, excludePenalty []int) {
	start := max(len(recent)-s.cfg.RepeatLastN, 0)
	window := recent[start:]

	if len(s.seenMark) < len(logits) {
		s.seenMark = make([]uint32, len(logits))
	}
	s.seenEpoch++
	if s.seenEpoch == 0 {
		clear(s.seenMark)
		s.seenEpoch = 1
	}
	s.seenList = s.seenList[:0]

	for _, id := range window {
		if id >= 0 && id < len(logits) && s.seenMark[id] != s.seenEpoch {
			s.seenMark[id] = s.seenEpoch
			s.seenList = append(s.seenList, id)
		}
	}
	for _, id := range excludePenalty {
		if id >= 0 && id < len(logits) {
			s.seenMark[id] = 0
		}
	}
	for _, id := range s.seenList {
		if s.seenMark[id] != s.seenEpoch {
			continue
		}
		logits[id] = penalize(logits[id], s.cfg.RepeatPenalty)
	}
}

// argmax returns the index of the maximum value in the slice. If the slice
// is empty it panics.
func argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}

// topK returns the indices and values of the k largest finite elements in
// logits, scaled by invTemp and ordered largest first. This is an O(V*K)
// algorithm suitable for small K.
func (s *Sampler) topK(logits []float32, k int, invTemp float32) ([]int, []float32) {
	if k <= 0 {
		return nil, nil
	}
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float32, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, l := range logits {
		if math.IsInf(float64(l), -1) || math.IsNaN(float64(l)) {
			continue
		}
		v := l * invTemp

		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}

		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)

		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v

		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}

// sorted returns every finite logit, scaled by invTemp, ordered largest
// first.
func (s *Sampler) sorted(logits []float32, invTemp float32) ([]int, []float32) {
	topIdx := s.topIdx[:0]
	for i, l := range logits {
		if math.IsInf(float64(l), -1) || math.IsNaN(float64(l)) {
			continue
		}
		topIdx = append(topIdx, i)
	}
	slices.SortStableFunc(topIdx, func(a, b int) int { return cmp.Compare(logits[b], logits[a]) })
	topVal := s.topVal[:0]
	for _, i := range topIdx {
		topVal = append(topVal, logits[i]*invTemp)
	}
	s.topIdx = topIdx
	s.topVal = topVal
	return topIdx, topVal
}
