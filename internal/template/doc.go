package template

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/infill/internal/bias"
	"github.com/samcharles93/infill/internal/inference"
	"github.com/samcharles93/infill/internal/reasoning"
	"github.com/samcharles93/infill/internal/selector"
	"github.com/samcharles93/infill/internal/validate"
)

// Document is a template stored as YAML, TOML or JSON.
type Document struct {
	System    string     `json:"system" yaml:"system" toml:"system"`
	Preprompt string     `json:"preprompt" yaml:"preprompt" toml:"preprompt"`
	Preword   string     `json:"preword" yaml:"preword" toml:"preword"`
	Options   DocOptions `json:"options" yaml:"options" toml:"options"`
	Segments  []Segment  `json:"segments" yaml:"segments" toml:"segments"`
}

// DocOptions are the generation options shared by every hole.
type DocOptions struct {
	MaxTokens     *int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Temperature   *float32 `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP          *float32 `json:"top_p" yaml:"top_p" toml:"top_p"`
	TopK          *int     `json:"top_k" yaml:"top_k" toml:"top_k"`
	MinP          *float32 `json:"min_p" yaml:"min_p" toml:"min_p"`
	RepeatPenalty *float32 `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	RepeatLastN   *int     `json:"repeat_last_n" yaml:"repeat_last_n" toml:"repeat_last_n"`
	Seed          *int64   `json:"seed" yaml:"seed" toml:"seed"`
}

// Segment is either literal text (Lit) or a hole (A, The or Prompt).
// Prompt text may reference earlier holes as {ref:id}.
type Segment struct {
	Lit    *string `json:"lit" yaml:"lit" toml:"lit"`
	A      *string `json:"a" yaml:"a" toml:"a"`
	The    *string `json:"the" yaml:"the" toml:"the"`
	Prompt *string `json:"prompt" yaml:"prompt" toml:"prompt"`

	ID            string      `json:"id" yaml:"id" toml:"id"`
	Stops         []string    `json:"stops" yaml:"stops" toml:"stops"`
	Preword       *string     `json:"preword" yaml:"preword" toml:"preword"`
	MaxTokens     *int        `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	Temperature   *float32    `json:"temperature" yaml:"temperature" toml:"temperature"`
	TopP          *float32    `json:"top_p" yaml:"top_p" toml:"top_p"`
	TopK          *int        `json:"top_k" yaml:"top_k" toml:"top_k"`
	MinP          *float32    `json:"min_p" yaml:"min_p" toml:"min_p"`
	RepeatPenalty *float32    `json:"repeat_penalty" yaml:"repeat_penalty" toml:"repeat_penalty"`
	RepeatLastN   *int        `json:"repeat_last_n" yaml:"repeat_last_n" toml:"repeat_last_n"`
	Seed          *int64      `json:"seed" yaml:"seed" toml:"seed"`
	Sampler       *SamplerDoc `json:"sampler" yaml:"sampler" toml:"sampler"`
	Validate      *CheckDoc   `json:"validate" yaml:"validate" toml:"validate"`
}

// SamplerDoc describes a bias strategy. Exactly one of OneOf, ConsistsOf
// and Chars picks the selector; Endings only apply to ConsistsOf.
type SamplerDoc struct {
	Kind       string   `json:"kind" yaml:"kind" toml:"kind"`
	Weight     float32  `json:"weight" yaml:"weight" toml:"weight"`
	OneOf      []string `json:"one_of" yaml:"one_of" toml:"one_of"`
	ConsistsOf string   `json:"consists_of" yaml:"consists_of" toml:"consists_of"`
	Endings    []string `json:"endings" yaml:"endings" toml:"endings"`
	Chars      string   `json:"chars" yaml:"chars" toml:"chars"`
}

// CheckDoc describes validation for a hole.
type CheckDoc struct {
	JSON      string `json:"json" yaml:"json" toml:"json"`
	Pre       string `json:"pre" yaml:"pre" toml:"pre"`
	MinLength int    `json:"min_length" yaml:"min_length" toml:"min_length"`
	MaxLength int    `json:"max_length" yaml:"max_length" toml:"max_length"`
	NotEmpty  bool   `json:"not_empty" yaml:"not_empty" toml:"not_empty"`
	Retries   int    `json:"retries" yaml:"retries" toml:"retries"`
	Trim      bool   `json:"trim" yaml:"trim" toml:"trim"`
	// StripReasoning drops <think> blocks before checks run.
	StripReasoning bool `json:"strip_reasoning" yaml:"strip_reasoning" toml:"strip_reasoning"`
}

var refPattern = regexp.MustCompile(`\{ref:([A-Za-z0-9_.\-]+)\}`)

// LoadDocument reads a document, picking the format from the extension.
// Unknown extensions are parsed as YAML, which also accepts JSON.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDocument(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// ParseDocument decodes data as json, toml or yaml.
func ParseDocument(data []byte, format string) (*Document, error) {
	var doc Document
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse json template: %w", err)
		}
	case "toml":
		md, err := toml.Decode(string(data), &doc)
		if err != nil {
			return nil, fmt.Errorf("parse toml template: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse toml template: unknown key %s", undecoded[0])
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse yaml template: %w", err)
		}
	}
	if len(doc.Segments) == 0 {
		return nil, errors.New("template has no segments")
	}
	return &doc, nil
}

// GenOptions returns the document's shared generation options.
func (d *Document) GenOptions() inference.Options {
	return inference.Options{
		MaxTokens:     d.Options.MaxTokens,
		Temperature:   d.Options.Temperature,
		TopP:          d.Options.TopP,
		TopK:          d.Options.TopK,
		MinP:          d.Options.MinP,
		RepeatPenalty: d.Options.RepeatPenalty,
		RepeatLastN:   d.Options.RepeatLastN,
		Seed:          d.Options.Seed,
	}
}

// Context returns a template context for the document.
func (d *Document) Context(gen Generator, opts ...ContextOption) *Context {
	base := []ContextOption{
		WithPreprompt(d.Preprompt),
		WithDefaultPreword(d.Preword),
		WithDefaults(d.GenOptions()),
	}
	return NewContext(gen, d.System, append(base, opts...)...)
}

// Compile turns the document's segments into a template on c.
func (d *Document) Compile(c *Context) (*Template, error) {
	parts := make([]any, 0, len(d.Segments))
	for i, seg := range d.Segments {
		part, err := seg.part(c)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		parts = append(parts, part)
	}
	return c.Compile(parts...)
}

func (s Segment) part(c *Context) (any, error) {
	set := 0
	for _, p := range []*string{s.Lit, s.A, s.The, s.Prompt} {
		if p != nil {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("exactly one of lit, a, the or prompt must be set")
	}
	if s.Lit != nil {
		return *s.Lit, nil
	}

	opts, err := s.options()
	if err != nil {
		return nil, err
	}
	var article Article
	var text string
	switch {
	case s.A != nil:
		article, text = ArticleA, *s.A
	case s.The != nil:
		article, text = ArticleThe, *s.The
	default:
		article, text = Bare, *s.Prompt
	}

	needs := refIDs(text)
	if len(needs) == 0 {
		return newPrompt(article, text, opts), nil
	}
	return Needs(needs, func(lookup Lookup) Expression {
		resolved := refPattern.ReplaceAllStringFunc(text, func(m string) string {
			v, _ := lookup(refPattern.FindStringSubmatch(m)[1])
			return v
		})
		return newPrompt(article, resolved, opts)
	}), nil
}

func (s Segment) options() ([]Option, error) {
	var opts []Option
	if s.ID != "" {
		opts = append(opts, WithID(s.ID))
	}
	if len(s.Stops) > 0 {
		opts = append(opts, WithStops(s.Stops...))
	}
	if s.Preword != nil {
		opts = append(opts, WithPreword(*s.Preword))
	}
	if s.MaxTokens != nil {
		opts = append(opts, WithMaxTokens(*s.MaxTokens))
	}
	if s.Temperature != nil {
		opts = append(opts, WithTemperature(*s.Temperature))
	}
	if s.TopP != nil {
		opts = append(opts, WithTopP(*s.TopP))
	}
	if s.TopK != nil {
		opts = append(opts, WithTopK(*s.TopK))
	}
	if s.MinP != nil {
		opts = append(opts, WithMinP(*s.MinP))
	}
	if s.RepeatPenalty != nil {
		opts = append(opts, WithRepeatPenalty(*s.RepeatPenalty))
	}
	if s.RepeatLastN != nil {
		opts = append(opts, WithRepeatLastN(*s.RepeatLastN))
	}
	if s.Seed != nil {
		opts = append(opts, WithSeed(*s.Seed))
	}
	if s.Sampler != nil {
		strategy, err := s.Sampler.Strategy()
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithSampler(strategy))
	}
	if s.Validate != nil {
		v, err := s.Validate.Validate()
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithValidate(v))
	}
	return opts, nil
}

// Strategy builds the bias strategy s describes.
func (s SamplerDoc) Strategy() (bias.Strategy, error) {
	kind, err := bias.ParseKind(s.Kind)
	if err != nil {
		return bias.Strategy{}, err
	}
	var sel selector.Selector
	picked := 0
	if len(s.OneOf) > 0 {
		sel = selector.OneOf(s.OneOf...)
		picked++
	}
	if s.ConsistsOf != "" {
		sel = selector.ConsistsOf([]string{s.ConsistsOf}, s.Endings...)
		picked++
	}
	if s.Chars != "" {
		class, ok := selector.Class(s.Chars)
		if !ok {
			return bias.Strategy{}, fmt.Errorf("unknown character class %q", s.Chars)
		}
		sel = class
		picked++
	}
	if kind != bias.KindDefault && picked != 1 {
		return bias.Strategy{}, errors.New("sampler needs exactly one of one_of, consists_of or chars")
	}
	return bias.Strategy{Kind: kind, Selector: sel, Weight: s.Weight}, nil
}

// Validate builds the validation s describes.
func (s CheckDoc) Validate() (inference.Validate, error) {
	var checks []validate.Check
	if s.JSON != "" {
		check, err := validate.ParseJSON(s.JSON, s.Pre)
		if err != nil {
			return inference.Validate{}, err
		}
		checks = append(checks, check)
	}
	if s.MinLength > 0 {
		checks = append(checks, validate.MinLength(s.MinLength))
	}
	if s.MaxLength > 0 {
		checks = append(checks, validate.MaxLength(s.MaxLength))
	}
	if s.NotEmpty {
		checks = append(checks, validate.NotEmpty)
	}
	v := inference.Validate{Retries: s.Retries}
	if len(checks) > 0 {
		v.Check = validate.All(checks...)
		if s.StripReasoning {
			check := v.Check
			v.Check = func(text string) bool { return check(reasoning.Strip(text)) }
		}
	}
	switch {
	case s.StripReasoning && s.Trim:
		v.Transform = func(text string) string { return strings.TrimSpace(reasoning.Strip(text)) }
	case s.StripReasoning:
		v.Transform = reasoning.Strip
	case s.Trim:
		v.Transform = strings.TrimSpace
	}
	return v, nil
}

func refIDs(text string) []string {
	var ids []string
	for _, m := range refPattern.FindAllStringSubmatch(text, -1) {
		ids = append(ids, m[1])
	}
	return ids
}
