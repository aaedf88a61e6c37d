package inference

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/samcharles93/infill/internal/bias"
	"github.com/samcharles93/infill/internal/logits"
	"github.com/samcharles93/infill/internal/selector"
	"github.com/samcharles93/infill/internal/tokenizer"
)

type result struct {
	text   string
	tokens int
}

// run generates one attempt for req. The cache is refilled from the full
// rendered prompt on every call.
func (h *Handle) run(ctx context.Context, req Request, strategy bias.Strategy, p params, emit StreamFunc) (result, error) {
	system := req.System
	if system == "" {
		system = DefaultSystem
	}
	text := h.format.Render(system, req.Preprompt, req.Prompt, req.PriorCompletion)
	ids, err := tokenizer.EncodePrompt(h.tok, text)
	if err != nil {
		return result{}, fmt.Errorf("encode prompt: %w", err)
	}
	if len(ids) == 0 {
		return result{}, errors.New("encode prompt: no tokens")
	}

	if h.filled {
		h.model.Reset()
	}
	h.filled = true

	lv, err := h.prefill(ctx, ids)
	if err != nil {
		return result{}, err
	}

	sampler := logits.NewSampler(logits.SamplerConfig{
		Seed:          p.seed,
		Temperature:   p.temperature,
		TopK:          p.topK,
		TopP:          p.topP,
		MinP:          p.minP,
		RepeatPenalty: p.repeatPenalty,
		RepeatLastN:   p.repeatLastN,
	})
	acc := newAcceptor(h.tok, req, h.stops, p.maxTokens, emit, &h.total)

	start := time.Now()
	for {
		if h.cancelled(ctx) {
			return result{}, ErrCancelled
		}
		step := selector.Step{Codec: h.tok, Tokens: acc.tokens, Prior: req.PriorCompletion}
		if _, err := strategy.Apply(lv, step); err != nil {
			return result{}, fmt.Errorf("apply %s: %w", strategy, err)
		}
		id := sampler.Sample(lv, acc.tokens, h.stops)

		more, err := acc.accept(id)
		if err != nil {
			return result{}, err
		}
		if !more {
			break
		}
		if lv, err = h.model.ForwardToken(id); err != nil {
			return result{}, fmt.Errorf("forward token %d: %w", len(acc.tokens), err)
		}
	}

	stats := Stats{TokensGenerated: len(acc.tokens)}
	stats.finish(start)
	h.mu.Lock()
	h.last = stats
	h.mu.Unlock()
	h.log.Debug("hole generated",
		"prompt", req.Prompt,
		"tokens", stats.TokensGenerated,
		"duration", stats.Duration,
		"tps", stats.TPS,
	)
	return result{text: acc.completion, tokens: len(acc.tokens)}, nil
}

func (h *Handle) prefill(ctx context.Context, ids []int) ([]float32, error) {
	if pf, ok := h.model.(Prefiller); ok {
		lv, err := pf.Prefill(ids)
		if err != nil {
			return nil, fmt.Errorf("prefill: %w", err)
		}
		return lv, nil
	}
	var lv []float32
	for i, id := range ids {
		if h.cancelled(ctx) {
			return nil, ErrCancelled
		}
		var err error
		if lv, err = h.model.ForwardToken(id); err != nil {
			return nil, fmt.Errorf("prefill token %d: %w", i, err)
		}
	}
	return lv, nil
}

// acceptor turns sampled ids into completion text. It decodes the whole
// sequence after every token and emits exactly one gen partial per token.
type acceptor struct {
	tok      tokenizer.Tokenizer
	prompt   string
	stops    []string
	stopIDs  []int
	maxChars int
	emit     StreamFunc
	total    *atomic.Int64

	tokens     []int
	text       string
	emitted    int
	completion string
}

func newAcceptor(tok tokenizer.Tokenizer, req Request, stopIDs []int, maxChars int, emit StreamFunc, total *atomic.Int64) *acceptor {
	stops := make([]string, 0, len(req.Stops))
	for _, s := range req.Stops {
		if s != "" {
			stops = append(stops, s)
		}
	}
	return &acceptor{
		tok:      tok,
		prompt:   req.Prompt,
		stops:    stops,
		stopIDs:  stopIDs,
		maxChars: maxChars,
		emit:     emit,
		total:    total,
	}
}

// accept records id and reports whether generation should continue.
func (a *acceptor) accept(id int) (bool, error) {
	a.tokens = append(a.tokens, id)
	a.total.Add(1)

	if slices.Contains(a.stopIDs, id) {
		a.completion = a.text
		a.flush(len(a.text))
		return false, nil
	}

	text, err := a.tok.Decode(a.tokens)
	if err != nil {
		return false, fmt.Errorf("decode completion: %w", err)
	}
	tail := commonPrefix(a.text, text)
	a.text = text
	a.emitted = min(a.emitted, tail)

	if idx, ok := stopIndex(text, len(text)-tail, a.stops); ok {
		a.completion = text[:idx]
		a.flush(idx)
		return false, nil
	}
	if utf8.RuneCountInString(text) >= a.maxChars {
		a.completion = text
		a.flush(len(text))
		return false, nil
	}
	a.flush(a.safeEnd())
	return true, nil
}

func (a *acceptor) flush(end int) {
	var content string
	if end > a.emitted {
		content = a.text[a.emitted:end]
		a.emitted = end
	}
	a.emit(Partial{Type: PartialGen, Content: content, Prompt: a.prompt})
}

// safeEnd is the end of the text that can be shown without revealing a
// partial stop or a split rune.
func (a *acceptor) safeEnd() int {
	end := len(a.text)
	if i := lastRuneStart(a.text); i >= 0 && !utf8.FullRuneInString(a.text[i:]) {
		end = i
	}
	head := a.text[:end]
	hold := 0
	for _, stop := range a.stops {
		for k := min(len(stop)-1, len(head)); k > hold; k-- {
			if strings.HasSuffix(head, stop[:k]) {
				hold = k
				break
			}
		}
	}
	return end - hold
}

// stopIndex scans the last tailLen bytes of text backwards for the
// earliest point at which the text so far ends with a stop, and returns
// where that stop begins.
func stopIndex(text string, tailLen int, stops []string) (int, bool) {
	for i := tailLen; i >= 0; i-- {
		head := text[:len(text)-i]
		for _, stop := range stops {
			if strings.HasSuffix(head, stop) {
				return len(head) - len(stop), true
			}
		}
	}
	return 0, false
}

func commonPrefix(a, b string) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func lastRuneStart(s string) int {
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if utf8.RuneStart(s[i]) {
			return i
		}
	}
	return -1
}
