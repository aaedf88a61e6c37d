package template

import (
	"context"
	"sync"

	"github.com/samcharles93/infill/internal/inference"
	"github.com/samcharles93/infill/internal/logger"
)

const (
	defaultPrewordA   = "Generate"
	defaultPrewordThe = "What is"
)

// Generator fills one hole. *inference.Handle implements it.
type Generator interface {
	Generate(ctx context.Context, req inference.Request, opts inference.Options) (string, error)
}

// Context carries what every template in one conversation shares: the
// system prompt, the preprompt, and default generation options.
type Context struct {
	gen       Generator
	system    string
	preprompt string
	preword   string
	defaults  inference.Options
	log       logger.Logger

	mu   sync.Mutex
	busy bool
}

type ContextOption func(*Context)

// WithPreprompt sets text sent before every hole's prompt.
func WithPreprompt(s string) ContextOption {
	return func(c *Context) { c.preprompt = s }
}

// WithDefaultPreword replaces the leading words of A and The prompts.
func WithDefaultPreword(s string) ContextOption {
	return func(c *Context) { c.preword = s }
}

// WithDefaults sets options for holes that leave them unset.
func WithDefaults(o inference.Options) ContextOption {
	return func(c *Context) { c.defaults = o }
}

func WithLogger(l logger.Logger) ContextOption {
	return func(c *Context) {
		if l != nil {
			c.log = l
		}
	}
}

func NewContext(gen Generator, system string, opts ...ContextOption) *Context {
	c := &Context{
		gen:    gen,
		system: system,
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// A asks for "a <prompt>".
func (c *Context) A(prompt string, opts ...Option) Prompt {
	return newPrompt(ArticleA, prompt, opts)
}

// The asks for "the <prompt>".
func (c *Context) The(prompt string, opts ...Option) Prompt {
	return newPrompt(ArticleThe, prompt, opts)
}

// Prompt sends prompt as written.
func (c *Context) Prompt(prompt string, opts ...Option) Prompt {
	return newPrompt(Bare, prompt, opts)
}

// render returns the instruction sent to the model for p.
func (c *Context) render(p Prompt) string {
	if p.Preword != nil {
		if *p.Preword == "" {
			return p.Text
		}
		return *p.Preword + " " + p.Text
	}
	switch p.Article {
	case ArticleA:
		return c.prewordOr(defaultPrewordA) + " a " + p.Text
	case ArticleThe:
		return c.prewordOr(defaultPrewordThe) + " the " + p.Text
	}
	return p.Text
}

func (c *Context) prewordOr(fallback string) string {
	if c.preword != "" {
		return c.preword
	}
	return fallback
}

func (c *Context) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	c.busy = true
	return nil
}

func (c *Context) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}
