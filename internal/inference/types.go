package inference

import (
	"errors"
	"time"
)

var (
	// ErrCancelled is returned when a generation is aborted by Cancel or by
	// its context. It is an expected outcome, not a failure of the model.
	ErrCancelled = errors.New("generation cancelled")
	// ErrBusy is returned when a generation is requested while another one
	// is running on the same handle.
	ErrBusy = errors.New("model handle busy")
	// ErrClosed is returned by a handle after Close.
	ErrClosed = errors.New("model handle closed")
)

// Model is the forward-step surface of a loaded language model. Reset clears
// the key-value cache.
type Model interface {
	ForwardToken(id int) ([]float32, error)
	Reset()
}

// Prefiller is implemented by models that can consume a whole prompt in
// one pass. It returns the logits for the token after ids.
type Prefiller interface {
	Prefill(ids []int) ([]float32, error)
}

type PartialType string

const (
	PartialTemplate PartialType = "template"
	PartialLit      PartialType = "lit"
	PartialGen      PartialType = "gen"
	PartialUngen    PartialType = "ungen"
)

// Partial is one streaming event. A hole emits one gen partial per sampled
// token; an ungen partial retracts the last TokenCount gen partials.
type Partial struct {
	Type       PartialType `json:"type"`
	Content    string      `json:"content"`
	Prompt     string      `json:"prompt,omitempty"`
	System     string      `json:"system,omitempty"`
	Preprompt  string      `json:"preprompt,omitempty"`
	TokenCount int         `json:"tokenCount,omitempty"`
}

type StreamFunc func(Partial)

type Stats struct {
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

func (s *Stats) finish(start time.Time) {
	s.Duration = time.Since(start)
	if s.Duration.Seconds() > 0 {
		s.TPS = float64(s.TokensGenerated) / s.Duration.Seconds()
	}
}
