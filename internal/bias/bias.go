// Package bias turns selector output into logit adjustments.
package bias

import (
	"fmt"
	"strings"

	"github.com/samcharles93/infill/internal/logits"
	"github.com/samcharles93/infill/internal/selector"
)

// Kind tags a Strategy.
type Kind int

const (
	KindDefault Kind = iota
	KindPrefer
	KindAvoid
	KindAccept
	KindReject
)

func (k Kind) String() string {
	switch k {
	case KindPrefer:
		return "prefer"
	case KindAvoid:
		return "avoid"
	case KindAccept:
		return "accept"
	case KindReject:
		return "reject"
	default:
		return "default"
	}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "none":
		return KindDefault, nil
	case "prefer":
		return KindPrefer, nil
	case "avoid":
		return KindAvoid, nil
	case "accept":
		return KindAccept, nil
	case "reject":
		return KindReject, nil
	}
	return KindDefault, fmt.Errorf("unknown bias kind %q", s)
}

// Strategy is resolved once per hole. The zero value samples unbiased.
// Weight only applies to the soft kinds; values <= 0 count as 1.
type Strategy struct {
	Kind     Kind
	Selector selector.Selector
	Weight   float32
}

func Prefer(sel selector.Selector, weight float32) Strategy {
	return Strategy{Kind: KindPrefer, Selector: sel, Weight: weight}
}

func Avoid(sel selector.Selector, weight float32) Strategy {
	return Strategy{Kind: KindAvoid, Selector: sel, Weight: weight}
}

func Accept(sel selector.Selector) Strategy {
	return Strategy{Kind: KindAccept, Selector: sel}
}

func Reject(sel selector.Selector) Strategy {
	return Strategy{Kind: KindReject, Selector: sel}
}

// IsDefault reports whether s leaves logits untouched.
func (s Strategy) IsDefault() bool {
	return s.Kind == KindDefault || s.Selector == nil
}

func (s Strategy) String() string {
	switch s.Kind {
	case KindPrefer, KindAvoid:
		return fmt.Sprintf("%s(%g)", s.Kind, s.weight())
	default:
		return s.Kind.String()
	}
}

func (s Strategy) weight() float32 {
	if s.Weight <= 0 {
		return 1
	}
	return s.Weight
}

// Apply adjusts logits in place for one decode step. It reports whether
// the logits were changed; an empty relevant set leaves the step
// unconstrained. Selector errors are returned unchanged.
func (s Strategy) Apply(l []float32, step selector.Step) (bool, error) {
	if s.IsDefault() {
		return false, nil
	}
	ids, err := s.Selector.Relevant(step)
	if err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return false, nil
	}
	switch s.Kind {
	case KindPrefer:
		logits.Penalize(l, ids, 1/s.weight())
		return s.weight() != 1, nil
	case KindAvoid:
		logits.Penalize(l, ids, s.weight())
		return s.weight() != 1, nil
	case KindAccept:
		return logits.Keep(l, ids), nil
	case KindReject:
		return logits.Exclude(l, ids), nil
	}
	return false, nil
}

// Builder is the bias capability a model handle exposes.
type Builder struct{}

func (Builder) Prefer(sel selector.Selector, weight float32) Strategy { return Prefer(sel, weight) }
func (Builder) Avoid(sel selector.Selector, weight float32) Strategy  { return Avoid(sel, weight) }
func (Builder) Accept(sel selector.Selector) Strategy                 { return Accept(sel) }
func (Builder) Reject(sel selector.Selector) Strategy                 { return Reject(sel) }
