package inference

import (
	"context"
	"errors"
	"fmt"
)

// Generate produces the text for one hole. A failing Validate.Check is
// retried from scratch, retracting the rejected attempt with an ungen
// partial; Transform runs on whatever text is finally accepted.
//
// Generate returns ErrBusy while another generation runs on h or a
// Session holds it, and ErrCancelled when Cancel or ctx aborts it. On any
// error the model cache is cleared before the handle returns to Waiting.
func (h *Handle) Generate(ctx context.Context, req Request, opts Options) (string, error) {
	return h.generate(ctx, 0, req, opts)
}

func (h *Handle) generate(ctx context.Context, lease uint64, req Request, opts Options) (text string, err error) {
	if err := h.begin(lease); err != nil {
		return "", err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation panicked: %v", r)
		}
		if errors.Is(err, ErrCancelled) {
			h.log.Debug("generation cancelled", "prompt", req.Prompt)
		}
		h.finish(err != nil)
	}()

	opts = opts.Or(h.defaults)
	p := resolveParams(opts)
	if !p.seeded {
		p.seed = h.nextSeed()
	}
	emit := opts.Stream
	if emit == nil {
		emit = func(Partial) {}
	}

	v := opts.Validate
	retries := 0
	if v != nil && v.Check != nil {
		retries = max(v.Retries, 0)
	}

	var res result
	base := p.seed
	for attempt := 0; ; attempt++ {
		p.seed = base + int64(attempt)
		if res, err = h.run(ctx, req, opts.Sampler, p, emit); err != nil {
			return "", err
		}
		if v == nil || v.Check == nil || v.Check(res.text) {
			break
		}
		if attempt >= retries {
			h.log.Warn("validation failed, keeping last attempt",
				"prompt", req.Prompt,
				"attempts", attempt+1,
				"completion", res.text,
			)
			break
		}
		h.log.Debug("validation failed, retrying", "prompt", req.Prompt, "attempt", attempt+1)
		emit(Partial{Type: PartialUngen, Content: res.text, TokenCount: res.tokens})
	}

	text = res.text
	if v != nil && v.Transform != nil {
		out := v.Transform(text)
		emit(Partial{Type: PartialUngen, Content: text, TokenCount: res.tokens})
		emit(Partial{Type: PartialGen, Content: out, Prompt: req.Prompt})
		text = out
	}
	// Cancel may land after the sampling loop's last check.
	if h.State() == Cancelling {
		return "", ErrCancelled
	}
	return text, nil
}
