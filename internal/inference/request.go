package inference

import "github.com/samcharles93/infill/internal/bias"

const (
	DefaultSystem      = "You are a helpful assistant"
	DefaultTemperature = float32(1.0)
	DefaultTopP        = float32(0.95)
	// DefaultMaxTokens caps a hole's length in characters.
	DefaultMaxTokens = 400
)

// Request describes one hole. PriorCompletion is everything the template
// produced before the hole and is re-sent on every call.
type Request struct {
	Prompt          string
	PriorCompletion string
	Stops           []string
	System          string
	Preprompt       string
}

// Validate wraps a hole's generation. A failing Check is retried up to
// Retries times; Transform always runs on the final text.
type Validate struct {
	Check     func(string) bool
	Retries   int
	Transform func(string) string
}

// Options configures one generation. Nil pointers and zero values mean
// unset and fall through to the next layer in Or.
type Options struct {
	Temperature *float32
	TopP        *float32
	// TopK keeps only the K likeliest tokens; 0 disables it.
	TopK *int
	MinP *float32
	// RepeatPenalty above 1 damps tokens among the last RepeatLastN of
	// the hole. Stop tokens are never penalized.
	RepeatPenalty *float32
	RepeatLastN   *int
	// MaxTokens caps the completion length in characters.
	MaxTokens *int
	Seed      *int64
	Sampler   bias.Strategy
	Validate  *Validate
	Stream    StreamFunc
}

// Or returns o with every unset field taken from fallback.
func (o Options) Or(fallback Options) Options {
	if o.Temperature == nil {
		o.Temperature = fallback.Temperature
	}
	if o.TopP == nil {
		o.TopP = fallback.TopP
	}
	if o.TopK == nil {
		o.TopK = fallback.TopK
	}
	if o.MinP == nil {
		o.MinP = fallback.MinP
	}
	if o.RepeatPenalty == nil {
		o.RepeatPenalty = fallback.RepeatPenalty
	}
	if o.RepeatLastN == nil {
		o.RepeatLastN = fallback.RepeatLastN
	}
	if o.MaxTokens == nil {
		o.MaxTokens = fallback.MaxTokens
	}
	if o.Seed == nil {
		o.Seed = fallback.Seed
	}
	if o.Sampler.IsDefault() {
		o.Sampler = fallback.Sampler
	}
	if o.Validate == nil {
		o.Validate = fallback.Validate
	}
	if o.Stream == nil {
		o.Stream = fallback.Stream
	}
	return o
}

// Ptr returns a pointer to v, for filling Options.
func Ptr[T any](v T) *T { return &v }

type params struct {
	temperature   float32
	topP          float32
	topK          int
	minP          float32
	repeatPenalty float32
	repeatLastN   int
	maxTokens     int
	seed          int64
	seeded        bool
}

func resolveParams(opts Options) params {
	p := params{
		temperature: DefaultTemperature,
		topP:        DefaultTopP,
		maxTokens:   DefaultMaxTokens,
	}
	if opts.Temperature != nil {
		p.temperature = *opts.Temperature
	}
	if opts.TopP != nil && *opts.TopP > 0 && *opts.TopP <= 1 {
		p.topP = *opts.TopP
	}
	if opts.TopK != nil && *opts.TopK > 0 {
		p.topK = *opts.TopK
	}
	if opts.MinP != nil && *opts.MinP > 0 && *opts.MinP < 1 {
		p.minP = *opts.MinP
	}
	if opts.RepeatPenalty != nil {
		p.repeatPenalty = *opts.RepeatPenalty
	}
	if opts.RepeatLastN != nil {
		p.repeatLastN = *opts.RepeatLastN
	}
	if opts.MaxTokens != nil && *opts.MaxTokens > 0 {
		p.maxTokens = *opts.MaxTokens
	}
	if opts.Seed != nil {
		p.seed = *opts.Seed
		p.seeded = true
	}
	return p
}
