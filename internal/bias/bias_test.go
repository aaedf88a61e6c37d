package bias

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/infill/internal/logits"
	"github.com/samcharles93/infill/internal/selector"
)

func fixed(ids ...int) selector.Selector {
	return selector.Func(func(selector.Step) ([]int, error) { return ids, nil })
}

func flat(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%3) * 0.1
	}
	return out
}

func TestAcceptContainment(t *testing.T) {
	allowed := []int{3, 7, 11}
	s := logits.NewSampler(logits.SamplerConfig{Seed: 11, Temperature: 2, TopP: 1})
	for range 300 {
		l := flat(16)
		changed, err := Accept(fixed(allowed...)).Apply(l, selector.Step{})
		require.NoError(t, err)
		require.True(t, changed)
		assert.Contains(t, allowed, s.Sample(l, nil, nil))
	}
}

func TestRejectExcludes(t *testing.T) {
	s := logits.NewSampler(logits.SamplerConfig{Seed: 5, Temperature: 2, TopP: 1})
	for range 300 {
		l := flat(4)
		_, err := Reject(fixed(0, 1, 2)).Apply(l, selector.Step{})
		require.NoError(t, err)
		assert.Equal(t, 3, s.Sample(l, nil, nil))
	}
}

func TestRejectEverythingIsUnconstrained(t *testing.T) {
	l := flat(3)
	changed, err := Reject(fixed(0, 1, 2)).Apply(l, selector.Step{})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, flat(3), l)
}

func TestEmptyRelevantSetIsUnconstrained(t *testing.T) {
	for _, s := range []Strategy{Accept(fixed()), Reject(fixed()), Prefer(fixed(), 2), Avoid(fixed(), 2)} {
		l := flat(5)
		changed, err := s.Apply(l, selector.Step{})
		require.NoError(t, err)
		assert.False(t, changed, s.String())
		assert.Equal(t, flat(5), l)
	}
}

func TestSoftBias(t *testing.T) {
	l := []float32{2, 2, -2}
	_, err := Prefer(fixed(0, 2), 2).Apply(l, selector.Step{})
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 2, -1}, l)

	l = []float32{2, 2, -2}
	_, err = Avoid(fixed(0, 2), 2).Apply(l, selector.Step{})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, -4}, l)
}

func TestDefaultStrategy(t *testing.T) {
	var s Strategy
	assert.True(t, s.IsDefault())
	l := flat(3)
	changed, err := s.Apply(l, selector.Step{})
	require.NoError(t, err)
	assert.False(t, changed)

	assert.True(t, Strategy{Kind: KindAccept}.IsDefault())
}

func TestSelectorErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	sel := selector.Func(func(selector.Step) ([]int, error) { return nil, boom })
	_, err := Accept(sel).Apply(flat(2), selector.Step{})
	assert.ErrorIs(t, err, boom)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Accept")
	require.NoError(t, err)
	assert.Equal(t, KindAccept, k)
	_, err = ParseKind("maybe")
	assert.Error(t, err)
	assert.Equal(t, "avoid(1.5)", Avoid(fixed(1), 1.5).String())
}

func TestAcceptMasksWithNegativeInfinity(t *testing.T) {
	l := flat(4)
	_, err := Accept(fixed(1)).Apply(l, selector.Step{})
	require.NoError(t, err)
	assert.True(t, math.IsInf(float64(l[0]), -1))
	assert.False(t, math.IsInf(float64(l[1]), -1))
}
