// Package registry keeps the single live model handle of a process.
// Asking for a different model cancels and closes the current one first.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/samcharles93/infill/internal/inference"
	"github.com/samcharles93/infill/internal/logger"
	"github.com/samcharles93/infill/internal/tokenizer"
	"github.com/samcharles93/infill/internal/toy"
)

var ErrClosed = errors.New("registry closed")

// Spec identifies a loadable model handle.
type Spec struct {
	Tokenizer       string
	TokenizerFormat string
	PromptFormat    string
	// Weights, when set, names a safetensors file written by toy.SaveFile
	// and takes precedence over Hidden and Seed for the model.
	Weights string
	Hidden  int
	Seed    int64
}

// Loader builds a handle for spec.
type Loader func(ctx context.Context, spec Spec) (*inference.Handle, error)

type Registry struct {
	load Loader
	log  logger.Logger

	mu     sync.Mutex
	spec   Spec
	handle *inference.Handle
	closed bool
}

type Option func(*Registry)

func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

func New(load Loader, opts ...Option) *Registry {
	r := &Registry{load: load, log: logger.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire returns the handle for spec, loading it if the current handle
// was built from a different spec.
func (r *Registry) Acquire(ctx context.Context, spec Spec) (*inference.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if r.handle != nil && r.spec == spec {
		return r.handle, nil
	}
	if r.handle != nil {
		r.log.Info("replacing model handle", "old", r.spec.Tokenizer, "new", spec.Tokenizer)
		if err := r.handle.Close(ctx); err != nil {
			return nil, fmt.Errorf("close previous handle: %w", err)
		}
		r.handle = nil
	}

	h, err := r.load(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", spec.Tokenizer, err)
	}
	r.spec, r.handle = spec, h
	r.log.Info("model handle ready", "tokenizer", spec.Tokenizer, "prompt_format", spec.PromptFormat)
	return h, nil
}

// Current returns the live handle, if any.
func (r *Registry) Current() (*inference.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle, r.handle != nil
}

// Close closes the live handle and rejects further Acquire calls.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.handle == nil {
		return nil
	}
	err := r.handle.Close(ctx)
	r.handle = nil
	return err
}

const defaultHidden = 32

// ToyLoader pairs the tokenizer named by spec with a toy model sized to its
// vocabulary.
func ToyLoader(log logger.Logger, opts ...inference.Option) Loader {
	return func(ctx context.Context, spec Spec) (*inference.Handle, error) {
		format, err := tokenizer.ParseFormat(spec.TokenizerFormat)
		if err != nil {
			return nil, err
		}
		tok, err := tokenizer.Load(strings.TrimSpace(spec.Tokenizer), format)
		if err != nil {
			return nil, err
		}
		vocab := tokenizer.VocabSize(tok)
		if vocab <= 0 {
			return nil, fmt.Errorf("tokenizer %s does not report a vocabulary size", spec.Tokenizer)
		}
		model, err := toyModel(spec, vocab)
		if err != nil {
			return nil, err
		}
		pf, err := inference.ParsePromptFormat(spec.PromptFormat)
		if err != nil {
			return nil, err
		}
		base := []inference.Option{
			inference.WithLogger(log),
			inference.WithPromptFormat(pf),
			inference.WithSeed(spec.Seed),
		}
		return inference.NewHandle(model, tok, append(base, opts...)...), nil
	}
}

func toyModel(spec Spec, vocab int) (*toy.LM, error) {
	if spec.Weights == "" {
		hidden := spec.Hidden
		if hidden <= 0 {
			hidden = defaultHidden
		}
		return toy.New(vocab, hidden, spec.Seed)
	}
	m, err := toy.Load(spec.Weights)
	if err != nil {
		return nil, err
	}
	if m.Vocab != vocab {
		return nil, fmt.Errorf("weights %s cover %d tokens, tokenizer has %d", spec.Weights, m.Vocab, vocab)
	}
	return m, nil
}
