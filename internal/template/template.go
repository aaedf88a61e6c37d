// Package template evaluates templates of literal text and holes against a
// Generator, one hole at a time, feeding each hole everything produced
// before it.
package template

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/samcharles93/infill/internal/inference"
)

var (
	// ErrUnresolvedRef is returned when a Deferred expression needs an id no
	// earlier hole recorded.
	ErrUnresolvedRef = errors.New("unresolved reference")
	// ErrBusy is returned when a Context is already evaluating a template.
	ErrBusy = errors.New("template context busy")
)

const maxDeferDepth = 8

// op is an expression and the literal that follows it.
type op struct {
	expr  Expression
	stops []string
	lit   string
}

// Template is a compiled template. It always has one more literal than it
// has expressions.
type Template struct {
	ctx  *Context
	head string
	ops  []op
}

// Result is the outcome of CollectRefs.
type Result struct {
	Completion string            `json:"completion"`
	Refs       map[string]string `json:"refs"`
}

// Compile builds a template from parts. A string is literal text, an
// Expression is a hole. Adjacent literals are joined; adjacent holes get
// an empty literal between them.
func (c *Context) Compile(parts ...any) (*Template, error) {
	t := &Template{ctx: c}
	var lit strings.Builder
	var pending Expression
	flush := func() {
		if pending == nil {
			t.head = lit.String()
		} else {
			t.ops = append(t.ops, newOp(pending, lit.String()))
		}
		lit.Reset()
	}
	for i, part := range parts {
		switch v := part.(type) {
		case string:
			lit.WriteString(v)
		case Text:
			lit.WriteString(string(v))
		case Prompt, Deferred:
			flush()
			pending = v.(Expression)
		case nil:
			return nil, fmt.Errorf("template part %d is nil", i)
		default:
			return nil, fmt.Errorf("template part %d: unsupported type %T", i, part)
		}
	}
	flush()
	return t, nil
}

// MustCompile is like Compile but panics on error.
func (c *Context) MustCompile(parts ...any) *Template {
	t, err := c.Compile(parts...)
	if err != nil {
		panic(err)
	}
	return t
}

// newOp derives the implicit stop from the first character of the literal
// after the expression.
func newOp(expr Expression, next string) op {
	o := op{expr: expr, lit: next}
	if r, size := utf8.DecodeRuneInString(next); r != utf8.RuneError || size > 1 {
		o.stops = []string{next[:size]}
	}
	return o
}

// Preview renders the template with every hole shown as {{prompt}}.
func (t *Template) Preview() string {
	var b strings.Builder
	b.WriteString(t.head)
	for _, o := range t.ops {
		b.WriteString(placeholder(o.expr))
		b.WriteString(o.lit)
	}
	return b.String()
}

func placeholder(expr Expression) string {
	switch e := expr.(type) {
	case Prompt:
		return "{{" + e.Text + "}}"
	case Deferred:
		if len(e.Needs) == 0 {
			return "{{ref}}"
		}
		return "{{ref:" + strings.Join(e.Needs, ",") + "}}"
	case Text:
		return string(e)
	}
	return "{{}}"
}

// Collect evaluates the template and returns the full completion.
func (t *Template) Collect(ctx context.Context, stream inference.StreamFunc) (string, error) {
	res, err := t.CollectRefs(ctx, stream)
	return res.Completion, err
}

// sessionSource is implemented by generators that can be reserved for a
// whole template. *inference.Handle implements it.
type sessionSource interface {
	Acquire() (*inference.Session, error)
}

// CollectRefs evaluates the template and returns the completion with the
// text of every hole that declared an id. When the Generator can be
// reserved, it is held for every hole, so an overlapping template on the
// same handle fails up front with inference.ErrBusy.
func (t *Template) CollectRefs(ctx context.Context, stream inference.StreamFunc) (Result, error) {
	c := t.ctx
	if err := c.acquire(); err != nil {
		return Result{}, err
	}
	defer c.release()

	gen := c.gen
	if src, ok := gen.(sessionSource); ok {
		s, err := src.Acquire()
		if err != nil {
			return Result{}, err
		}
		defer s.Release()
		gen = s
	}

	emit := stream
	if emit == nil {
		emit = func(inference.Partial) {}
	}
	emit(inference.Partial{
		Type:      inference.PartialTemplate,
		Content:   t.Preview(),
		System:    c.system,
		Preprompt: c.preprompt,
	})
	emit(inference.Partial{Type: inference.PartialLit, Content: t.head})

	var completion strings.Builder
	completion.WriteString(t.head)
	refs := make(map[string]string)
	for i, o := range t.ops {
		text, id, err := t.hole(ctx, gen, o, completion.String(), refs, emit)
		if err != nil {
			return Result{Completion: completion.String(), Refs: refs}, err
		}
		completion.WriteString(text)
		if id != "" {
			refs[id] = text
		}
		c.log.Debug("hole resolved", "index", i, "id", id, "chars", utf8.RuneCountInString(text))

		if o.lit != "" {
			emit(inference.Partial{Type: inference.PartialLit, Content: o.lit})
			completion.WriteString(o.lit)
		}
	}
	return Result{Completion: completion.String(), Refs: refs}, nil
}

// hole resolves one expression against the completion so far.
func (t *Template) hole(ctx context.Context, gen Generator, o op, prior string, refs map[string]string, emit inference.StreamFunc) (string, string, error) {
	lookup := func(id string) (string, bool) {
		v, ok := refs[id]
		return v, ok
	}
	expr := o.expr
	for depth := 0; ; depth++ {
		switch e := expr.(type) {
		case Text:
			emit(inference.Partial{Type: inference.PartialLit, Content: string(e)})
			return string(e), "", nil
		case Deferred:
			if depth >= maxDeferDepth {
				return "", "", fmt.Errorf("deferred expressions nested deeper than %d", maxDeferDepth)
			}
			for _, id := range e.Needs {
				if _, ok := refs[id]; !ok {
					return "", "", fmt.Errorf("%w: %q", ErrUnresolvedRef, id)
				}
			}
			if e.Build == nil {
				return "", "", errors.New("deferred expression has no builder")
			}
			if expr = e.Build(lookup); expr == nil {
				return "", "", errors.New("deferred expression built nothing")
			}
		case Prompt:
			return t.generate(ctx, gen, e, o.stops, prior, emit)
		default:
			return "", "", fmt.Errorf("unsupported expression %T", expr)
		}
	}
}

func (t *Template) generate(ctx context.Context, gen Generator, p Prompt, stops []string, prior string, emit inference.StreamFunc) (string, string, error) {
	c := t.ctx
	req := inference.Request{
		Prompt:          c.render(p),
		PriorCompletion: prior,
		Stops:           unionStops(stops, p.Stops),
		System:          c.system,
		Preprompt:       c.preprompt,
	}
	opts := p.Options
	opts.Stream = emit
	opts = opts.Or(c.defaults)
	text, err := gen.Generate(ctx, req, opts)
	if err != nil {
		return "", "", err
	}
	return text, p.ID, nil
}

func unionStops(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(a[:len(a):len(a)], b...) {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
