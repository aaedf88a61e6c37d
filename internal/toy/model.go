// Package toy provides a weightless language model for demos and tests.
// Its logits are a seeded random projection of a decaying running sum of
// token embeddings, so output depends on the whole prefix but carries no
// meaning beyond what bias strategies impose.
package toy

import (
	"fmt"
	"math/rand"
)

// Mat is a dense row-major float32 matrix.
type Mat struct {
	R, C int
	Data []float32
}

func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{R: r, C: c, Data: make([]float32, r*c)}
}

// Row returns a view of row i.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	return m.Data[i*m.C : (i+1)*m.C]
}

// FillRand fills m with reproducible values in (-scale/2, scale/2).
func FillRand(m *Mat, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = (rng.Float32() - 0.5) * scale
	}
}

const decay = 0.8

// LM implements inference.Model and inference.Prefiller.
type LM struct {
	Vocab  int
	Hidden int

	Emb  Mat // [Vocab x Hidden]
	W    Mat // [Vocab x Hidden], one output row per token
	Bias []float32

	h []float32
}

// New builds a model over vocab ids with the given hidden size. Equal seeds
// give identical models.
func New(vocab, hidden int, seed int64) (*LM, error) {
	if vocab <= 0 || hidden <= 0 {
		return nil, fmt.Errorf("toy model needs positive sizes, got vocab=%d hidden=%d", vocab, hidden)
	}
	m := &LM{
		Vocab:  vocab,
		Hidden: hidden,
		Emb:    NewMat(vocab, hidden),
		W:      NewMat(vocab, hidden),
		Bias:   make([]float32, vocab),
		h:      make([]float32, hidden),
	}
	FillRand(&m.Emb, seed+11, 2)
	FillRand(&m.W, seed+23, 2)
	return m, nil
}

func (m *LM) ForwardToken(id int) ([]float32, error) {
	if id < 0 || id >= m.Vocab {
		return nil, fmt.Errorf("token id %d out of range [0,%d)", id, m.Vocab)
	}
	emb := m.Emb.Row(id)
	for i := range m.h {
		m.h[i] = m.h[i]*decay + emb[i]
	}
	return m.logits(), nil
}

func (m *LM) Prefill(ids []int) ([]float32, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("prefill needs at least one token")
	}
	var out []float32
	for _, id := range ids {
		var err error
		if out, err = m.ForwardToken(id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Reset clears the running state.
func (m *LM) Reset() {
	clear(m.h)
}

func (m *LM) logits() []float32 {
	out := make([]float32, m.Vocab)
	for j := range out {
		row := m.W.Row(j)
		var sum float32
		for i, v := range m.h {
			sum += v * row[i]
		}
		out[j] = sum + m.Bias[j]
	}
	return out
}
