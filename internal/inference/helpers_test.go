package inference

import (
	"math/rand"
	"sync"
	"time"
)

const charEOS = 256

// charTokenizer maps every byte to its own id.
type charTokenizer struct{}

func (*charTokenizer) Encode(s string) ([]int, error) {
	ids := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		ids[i] = int(s[i])
	}
	return ids, nil
}

func (*charTokenizer) Decode(ids []int) (string, error) {
	b := make([]byte, 0, len(ids))
	for _, id := range ids {
		if id < 256 {
			b = append(b, byte(id))
		}
	}
	return string(b), nil
}

func (*charTokenizer) VocabSize() int { return 257 }

// eosTokenizer adds an end-of-sequence id after the byte range.
type eosTokenizer struct{ charTokenizer }

func (*eosTokenizer) BOSID() int   { return -1 }
func (*eosTokenizer) EOSID() int   { return charEOS }
func (*eosTokenizer) AddBOS() bool { return false }

func bytesOf(s string) []int {
	ids, _ := (&charTokenizer{}).Encode(s)
	return ids
}

// scriptModel strongly prefers the next id of a script. Each prefill
// starts the next script; after the last id it repeats after.
type scriptModel struct {
	mu       sync.Mutex
	scripts  [][]int
	after    int
	delay    time.Duration
	panicAt  int
	started  chan struct{}
	prefills [][]int
	resets   int

	script []int
	pos    int
}

func newScriptModel(after int, scripts ...string) *scriptModel {
	m := &scriptModel{after: after, panicAt: -1}
	for _, s := range scripts {
		m.scripts = append(m.scripts, bytesOf(s))
	}
	return m
}

func (m *scriptModel) Prefill(ids []int) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.prefills)
	m.prefills = append(m.prefills, append([]int(nil), ids...))
	if len(m.scripts) > 0 {
		m.script = m.scripts[min(n, len(m.scripts)-1)]
	}
	m.pos = 0
	return m.logits(), nil
}

func (m *scriptModel) ForwardToken(int) ([]float32, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started != nil && m.pos == 0 {
		close(m.started)
		m.started = nil
	}
	m.pos++
	if m.panicAt >= 0 && m.pos >= m.panicAt {
		panic("forward exploded")
	}
	return m.logits(), nil
}

func (m *scriptModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	m.pos = 0
}

func (m *scriptModel) resetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

func (m *scriptModel) logits() []float32 {
	lv := make([]float32, 257)
	next := m.after
	if m.pos < len(m.script) {
		next = m.script[m.pos]
	}
	lv[next] = 20
	return lv
}

// noiseModel returns random logits and has no prefill fast path.
type noiseModel struct {
	rng *rand.Rand
}

func (m *noiseModel) ForwardToken(int) ([]float32, error) {
	lv := make([]float32, 257)
	for i := range lv {
		lv[i] = m.rng.Float32() * 4
	}
	return lv, nil
}

func (m *noiseModel) Reset() {}

type recorder struct {
	mu       sync.Mutex
	partials []Partial
}

func (r *recorder) stream(p Partial) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partials = append(r.partials, p)
}

func (r *recorder) ofType(t PartialType) []Partial {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Partial
	for _, p := range r.partials {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

func genText(ps []Partial) string {
	var s string
	for _, p := range ps {
		if p.Type == PartialGen {
			s += p.Content
		}
	}
	return s
}
