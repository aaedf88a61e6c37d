// Package inference drives a language model through constrained,
// incremental generation of one template hole at a time.
package inference

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samcharles93/infill/internal/bias"
	"github.com/samcharles93/infill/internal/logger"
	"github.com/samcharles93/infill/internal/tokenizer"
)

const cancelPoll = 16 * time.Millisecond

// Handle owns one model and its cache. At most one generation runs on a
// handle at a time.
type Handle struct {
	model    Model
	tok      tokenizer.Tokenizer
	log      logger.Logger
	format   PromptFormat
	stops    []int
	defaults Options
	seed     int64

	mu     sync.Mutex
	state  State
	closed bool
	filled bool
	last   Stats

	// lease is the id of the Session holding h, 0 when free.
	lease     uint64
	leaseSeq  uint64
	leaseStop bool

	total atomic.Int64
	calls atomic.Int64
}

type Option func(*Handle)

func WithLogger(l logger.Logger) Option {
	return func(h *Handle) {
		if l != nil {
			h.log = l
		}
	}
}

func WithPromptFormat(f PromptFormat) Option {
	return func(h *Handle) {
		if f != nil {
			h.format = f
		}
	}
}

// WithStopTokens replaces the end-of-generation ids derived from the
// tokenizer.
func WithStopTokens(ids ...int) Option {
	return func(h *Handle) { h.stops = append([]int(nil), ids...) }
}

// WithDefaults sets the options used for fields a call leaves unset.
func WithDefaults(o Options) Option {
	return func(h *Handle) { h.defaults = o }
}

// WithSeed sets the base seed for calls that do not carry their own.
func WithSeed(seed int64) Option {
	return func(h *Handle) { h.seed = seed }
}

func NewHandle(model Model, tok tokenizer.Tokenizer, opts ...Option) *Handle {
	h := &Handle{
		model:  model,
		tok:    tok,
		log:    logger.Discard(),
		format: Llama2,
		seed:   time.Now().UnixNano(),
	}
	h.stops = BuildStopTokens(tok)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handle) Encode(text string) ([]int, error) { return h.tok.Encode(text) }
func (h *Handle) Decode(ids []int) (string, error)  { return h.tok.Decode(ids) }

// Tokenizer returns the codec selectors run against.
func (h *Handle) Tokenizer() tokenizer.Tokenizer { return h.tok }

// Bias returns the sampler builder for this handle.
func (h *Handle) Bias() bias.Builder { return bias.Builder{} }

// TotalTokenCount is the number of tokens sampled over the handle's life.
func (h *Handle) TotalTokenCount() int64 { return h.total.Load() }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LastStats reports the most recent completed generation attempt.
func (h *Handle) LastStats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Cancel asks a running generation to stop and waits until the handle is
// Waiting again or ctx is done. It returns nil at once when idle. A held
// Session is cancelled too: its next Generate returns ErrCancelled.
func (h *Handle) Cancel(ctx context.Context) error {
	h.mu.Lock()
	if h.state == Running {
		h.state = Cancelling
	}
	if h.lease != 0 {
		h.leaseStop = true
	}
	idle := h.state == Waiting
	h.mu.Unlock()
	if idle {
		return nil
	}

	ticker := time.NewTicker(cancelPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if h.State() == Waiting {
				return nil
			}
		}
	}
}

// Close cancels any running generation and rejects further calls.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return h.Cancel(ctx)
}

// Acquire reserves h for a sequence of generations, such as the holes of
// one template. Until the Session is released, Generate calls that do not
// go through it return ErrBusy.
func (h *Handle) Acquire() (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	if h.lease != 0 || h.state != Waiting {
		return nil, ErrBusy
	}
	h.leaseSeq++
	h.lease = h.leaseSeq
	h.leaseStop = false
	return &Session{h: h, id: h.lease}, nil
}

func (h *Handle) begin(lease uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if h.state != Waiting || h.lease != lease {
		return ErrBusy
	}
	if lease != 0 && h.leaseStop {
		return ErrCancelled
	}
	h.state = Running
	return nil
}

func (h *Handle) finish(failed bool) {
	if failed {
		h.resetCache()
	}
	h.mu.Lock()
	h.state = Waiting
	h.mu.Unlock()
}

// resetCache clears the model cache, swallowing panics so cleanup always
// reaches the state transition.
func (h *Handle) resetCache() {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("model reset panicked", "panic", r)
		}
	}()
	h.model.Reset()
	h.filled = false
}

func (h *Handle) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return h.State() == Cancelling
}

func (h *Handle) nextSeed() int64 {
	return h.seed + h.calls.Add(1) - 1
}

// Session is a lease on a Handle. It is not safe for concurrent use.
type Session struct {
	h    *Handle
	id   uint64
	once sync.Once
}

// Generate is Handle.Generate for the session holder.
func (s *Session) Generate(ctx context.Context, req Request, opts Options) (string, error) {
	return s.h.generate(ctx, s.id, req, opts)
}

// Release frees the handle. Calling it more than once is harmless.
func (s *Session) Release() {
	s.once.Do(func() {
		h := s.h
		h.mu.Lock()
		if h.lease == s.id {
			h.lease = 0
			h.leaseStop = false
		}
		h.mu.Unlock()
	})
}
