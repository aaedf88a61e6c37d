package template

import (
	"github.com/samcharles93/infill/internal/bias"
	"github.com/samcharles93/infill/internal/inference"
)

// Expression is a hole in a template: a Prompt, a Text or a Deferred.
type Expression interface {
	expression()
}

// Lookup returns the text an earlier hole recorded under id.
type Lookup func(id string) (string, bool)

// Text is literal text in an expression position.
type Text string

// Article selects the phrasing a Prompt is sent with.
type Article int

const (
	// Bare sends the prompt text unchanged.
	Bare Article = iota
	// ArticleA sends "<preword> a <prompt>", "Generate a" by default.
	ArticleA
	// ArticleThe sends "<preword> the <prompt>", "What is the" by default.
	ArticleThe
)

// Prompt is a hole the model fills.
type Prompt struct {
	Text    string
	Article Article
	// Preword replaces the phrasing derived from Article when set. An empty
	// string sends Text unchanged.
	Preword *string
	ID      string
	Stops   []string
	Options inference.Options
}

// Deferred builds its expression from earlier holes once every id in Needs
// has resolved.
type Deferred struct {
	Needs []string
	Build func(Lookup) Expression
}

func (Text) expression()     {}
func (Prompt) expression()   {}
func (Deferred) expression() {}

// Option configures a Prompt.
type Option func(*Prompt)

// WithID records the hole's text in the refs of CollectRefs.
func WithID(id string) Option {
	return func(p *Prompt) { p.ID = id }
}

// WithStops adds stop strings to the one implied by the next literal.
func WithStops(stops ...string) Option {
	return func(p *Prompt) { p.Stops = append(p.Stops, stops...) }
}

func WithMaxTokens(n int) Option {
	return func(p *Prompt) { p.Options.MaxTokens = &n }
}

func WithTemperature(v float32) Option {
	return func(p *Prompt) { p.Options.Temperature = &v }
}

func WithTopP(v float32) Option {
	return func(p *Prompt) { p.Options.TopP = &v }
}

func WithTopK(k int) Option {
	return func(p *Prompt) { p.Options.TopK = &k }
}

func WithMinP(v float32) Option {
	return func(p *Prompt) { p.Options.MinP = &v }
}

// WithRepeatPenalty damps tokens the hole has already produced.
func WithRepeatPenalty(v float32) Option {
	return func(p *Prompt) { p.Options.RepeatPenalty = &v }
}

// WithRepeatLastN sets how many trailing tokens WithRepeatPenalty looks at.
func WithRepeatLastN(n int) Option {
	return func(p *Prompt) { p.Options.RepeatLastN = &n }
}

func WithSeed(seed int64) Option {
	return func(p *Prompt) { p.Options.Seed = &seed }
}

func WithSampler(s bias.Strategy) Option {
	return func(p *Prompt) { p.Options.Sampler = s }
}

func WithValidate(v inference.Validate) Option {
	return func(p *Prompt) { p.Options.Validate = &v }
}

func WithPreword(preword string) Option {
	return func(p *Prompt) { p.Preword = &preword }
}

// WithoutPreword sends the prompt text as written.
func WithoutPreword() Option {
	return WithPreword("")
}

func newPrompt(article Article, text string, opts []Option) Prompt {
	p := Prompt{Text: text, Article: article}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Ref defers an expression until it is reached. build sees every hole
// resolved before it.
func Ref(build func(Lookup) Expression) Deferred {
	return Deferred{Build: build}
}

// Needs defers an expression until every id has resolved.
func Needs(ids []string, build func(Lookup) Expression) Deferred {
	return Deferred{Needs: ids, Build: build}
}
