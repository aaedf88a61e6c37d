package logits

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func isMasked(v float32) bool { return math.IsInf(float64(v), -1) }

func TestPenalize(t *testing.T) {
	l := []float32{2, -2, 1}
	Penalize(l, []int{0, 1, 0, 7}, 2)
	assert.Equal(t, []float32{1, -4, 1}, l)

	l = []float32{2, -2}
	Penalize(l, []int{0, 1}, 0.5)
	assert.Equal(t, []float32{4, -1}, l)
}

func TestKeep(t *testing.T) {
	l := []float32{1, 2, 3}
	assert.True(t, Keep(l, []int{1}))
	assert.True(t, isMasked(l[0]))
	assert.Equal(t, float32(2), l[1])
	assert.True(t, isMasked(l[2]))

	l = []float32{1, 2, 3}
	assert.False(t, Keep(l, nil))
	assert.False(t, Keep(l, []int{-1, 9}))
	assert.Equal(t, []float32{1, 2, 3}, l)
}

func TestExclude(t *testing.T) {
	l := []float32{1, 2, 3}
	assert.True(t, Exclude(l, []int{2}))
	assert.True(t, isMasked(l[2]))
	assert.Equal(t, float32(1), l[0])

	l = []float32{1, 2}
	assert.False(t, Exclude(l, []int{0, 1}))
	assert.Equal(t, []float32{1, 2}, l)

	assert.False(t, Exclude(l, nil))
}
