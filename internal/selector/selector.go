// Package selector computes the vocabulary ids relevant to a generation
// constraint at each decode step.
package selector

import "github.com/samcharles93/infill/internal/tokenizer"

// Step is the generation state a selector sees. Tokens holds the ids
// sampled so far for the current hole; Prior is the completion text that
// precedes the hole.
type Step struct {
	Codec  tokenizer.Tokenizer
	Tokens []int
	Prior  string
}

// Selector returns the ids relevant to a constraint for the next token. An
// empty result means the constraint has nothing to say about this step.
// Codec values must be comparable; selectors key their caches on them.
type Selector interface {
	Relevant(step Step) ([]int, error)
}

// Func adapts a function to Selector.
type Func func(step Step) ([]int, error)

func (f Func) Relevant(step Step) ([]int, error) { return f(step) }
