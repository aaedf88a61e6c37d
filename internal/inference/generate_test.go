package inference

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/samcharles93/infill/internal/bias"
	"github.com/samcharles93/infill/internal/selector"
)

func TestGenerateTruncatesAtStop(t *testing.T) {
	model := newScriptModel('z', "abc\ndef")
	h := NewHandle(model, &charTokenizer{})
	rec := &recorder{}

	got, err := h.Generate(context.Background(), Request{Prompt: "p", Stops: []string{"\n"}}, Options{Stream: rec.stream})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "abc" {
		t.Fatalf("completion = %q, want %q", got, "abc")
	}
	gens := rec.ofType(PartialGen)
	if len(gens) != 4 {
		t.Fatalf("gen partials = %d, want 4", len(gens))
	}
	if s := genText(gens); s != "abc" {
		t.Fatalf("streamed %q, want %q", s, "abc")
	}
	for _, p := range gens {
		if p.Prompt != "p" {
			t.Fatalf("gen partial prompt = %q", p.Prompt)
		}
	}
	if h.TotalTokenCount() != 4 {
		t.Fatalf("TotalTokenCount = %d, want 4", h.TotalTokenCount())
	}
}

func TestGenerateHoldsBackPartialStop(t *testing.T) {
	model := newScriptModel('z', "abENDx")
	h := NewHandle(model, &charTokenizer{})
	rec := &recorder{}

	got, err := h.Generate(context.Background(), Request{Prompt: "p", Stops: []string{"END"}}, Options{Stream: rec.stream})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "ab" {
		t.Fatalf("completion = %q, want %q", got, "ab")
	}
	for _, p := range rec.ofType(PartialGen) {
		if strings.ContainsAny(p.Content, "END") {
			t.Fatalf("stop text leaked into stream: %q", p.Content)
		}
	}
	if s := genText(rec.partials); s != "ab" {
		t.Fatalf("streamed %q, want %q", s, "ab")
	}
}

func TestGenerateFlushesOnEOS(t *testing.T) {
	model := newScriptModel(charEOS, "ab")
	h := NewHandle(model, &eosTokenizer{})
	rec := &recorder{}

	got, err := h.Generate(context.Background(), Request{Prompt: "p", Stops: []string{"b!"}}, Options{Stream: rec.stream})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "ab" {
		t.Fatalf("completion = %q, want %q", got, "ab")
	}
	gens := rec.ofType(PartialGen)
	want := []string{"a", "", "b"}
	if len(gens) != len(want) {
		t.Fatalf("gen partials = %d, want %d", len(gens), len(want))
	}
	for i, p := range gens {
		if p.Content != want[i] {
			t.Fatalf("gen %d = %q, want %q", i, p.Content, want[i])
		}
	}
}

func TestGenerateStopsAtMaxChars(t *testing.T) {
	model := newScriptModel('z', "abcdefgh")
	h := NewHandle(model, &charTokenizer{})

	got, err := h.Generate(context.Background(), Request{Prompt: "p"}, Options{MaxTokens: Ptr(3)})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "abc" {
		t.Fatalf("completion = %q, want %q", got, "abc")
	}
}

func TestGenerateRendersPriorCompletion(t *testing.T) {
	model := newScriptModel('z', "x\n")
	h := NewHandle(model, &charTokenizer{})

	req := Request{Prompt: "Name a color", PriorCompletion: "The color is ", Stops: []string{"\n"}}
	if _, err := h.Generate(context.Background(), req, Options{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	got, _ := h.Decode(model.prefills[0])
	want := "<<sys>>You are a helpful assistant<</sys>>\n\n[INST] Name a color [/INST] The color is "
	if got != want {
		t.Fatalf("prefill text = %q, want %q", got, want)
	}
}

func TestGenerateResetsFilledCache(t *testing.T) {
	model := newScriptModel('z', "a\n")
	h := NewHandle(model, &charTokenizer{})
	req := Request{Prompt: "p", Stops: []string{"\n"}}

	for i := 0; i < 3; i++ {
		if _, err := h.Generate(context.Background(), req, Options{}); err != nil {
			t.Fatalf("Generate %d: %v", i, err)
		}
	}
	if n := model.resetCount(); n != 2 {
		t.Fatalf("resets = %d, want 2", n)
	}
}

func TestGenerateRetryAccounting(t *testing.T) {
	model := newScriptModel('z', "xx\n", "yyy\n", "ok\n")
	h := NewHandle(model, &charTokenizer{})
	rec := &recorder{}

	opts := Options{
		Stream: rec.stream,
		Validate: &Validate{
			Check:   func(s string) bool { return s == "ok" },
			Retries: 3,
		},
	}
	got, err := h.Generate(context.Background(), Request{Prompt: "p", Stops: []string{"\n"}}, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "ok" {
		t.Fatalf("completion = %q, want %q", got, "ok")
	}

	ungens := rec.ofType(PartialUngen)
	if len(ungens) != 2 {
		t.Fatalf("ungen partials = %d, want 2", len(ungens))
	}
	if ungens[0].TokenCount != 3 || ungens[0].Content != "xx" {
		t.Fatalf("first ungen = %+v", ungens[0])
	}
	if ungens[1].TokenCount != 4 || ungens[1].Content != "yyy" {
		t.Fatalf("second ungen = %+v", ungens[1])
	}

	// Every ungen retracts exactly the gen partials emitted since the last one.
	gens := 0
	for _, p := range rec.partials {
		switch p.Type {
		case PartialGen:
			gens++
		case PartialUngen:
			if p.TokenCount != gens {
				t.Fatalf("ungen retracts %d units, %d were emitted", p.TokenCount, gens)
			}
			gens = 0
		}
	}
	if gens != 3 {
		t.Fatalf("final attempt emitted %d gen partials, want 3", gens)
	}
}

func TestGenerateKeepsLastAttemptWhenRetriesExhausted(t *testing.T) {
	model := newScriptModel('z', "a\n", "b\n")
	h := NewHandle(model, &charTokenizer{})
	rec := &recorder{}

	opts := Options{
		Stream:   rec.stream,
		Validate: &Validate{Check: func(string) bool { return false }, Retries: 1},
	}
	got, err := h.Generate(context.Background(), Request{Prompt: "p", Stops: []string{"\n"}}, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "b" {
		t.Fatalf("completion = %q, want %q", got, "b")
	}
	if n := len(rec.ofType(PartialUngen)); n != 1 {
		t.Fatalf("ungen partials = %d, want 1", n)
	}
}

func TestGenerateTransformRunsAfterCheck(t *testing.T) {
	model := newScriptModel('z', "no\n", "ab\n")
	h := NewHandle(model, &charTokenizer{})
	rec := &recorder{}

	var seen []string
	opts := Options{
		Stream: rec.stream,
		Validate: &Validate{
			Check:   func(s string) bool { return s == "ab" },
			Retries: 2,
			Transform: func(s string) string {
				seen = append(seen, s)
				return strings.ToUpper(s)
			},
		},
	}
	got, err := h.Generate(context.Background(), Request{Prompt: "p", Stops: []string{"\n"}}, opts)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "AB" {
		t.Fatalf("completion = %q, want %q", got, "AB")
	}
	if len(seen) != 1 || seen[0] != "ab" {
		t.Fatalf("transform saw %v", seen)
	}
	n := len(rec.partials)
	last, ungen := rec.partials[n-1], rec.partials[n-2]
	if ungen.Type != PartialUngen || ungen.TokenCount != 3 || ungen.Content != "ab" {
		t.Fatalf("retraction = %+v", ungen)
	}
	if last.Type != PartialGen || last.Content != "AB" || last.Prompt != "p" {
		t.Fatalf("re-emission = %+v", last)
	}
}

func TestGenerateAcceptContainment(t *testing.T) {
	colors := []string{"red", "green", "blue"}
	items := make([]string, len(colors))
	for i, c := range colors {
		items[i] = c + "\n"
	}
	strategy := bias.Accept(selector.OneOf(items...))

	for seed := int64(0); seed < 20; seed++ {
		model := &noiseModel{rng: rand.New(rand.NewSource(seed))}
		h := NewHandle(model, &charTokenizer{}, WithSeed(seed))
		req := Request{Prompt: "Name a color", PriorCompletion: "color: ", Stops: []string{"\n"}}

		got, err := h.Generate(context.Background(), req, Options{Sampler: strategy})
		if err != nil {
			t.Fatalf("seed %d: Generate: %v", seed, err)
		}
		ok := false
		for _, c := range colors {
			ok = ok || got == c
		}
		if !ok {
			t.Fatalf("seed %d: completion %q is not a listed color", seed, got)
		}
	}
}

func TestGenerateSelectorErrorPropagates(t *testing.T) {
	model := newScriptModel('z', "abc")
	h := NewHandle(model, &charTokenizer{})
	boom := errors.New("boom")
	strategy := bias.Reject(selector.Func(func(selector.Step) ([]int, error) { return nil, boom }))

	_, err := h.Generate(context.Background(), Request{Prompt: "p"}, Options{Sampler: strategy})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if h.State() != Waiting {
		t.Fatalf("state = %s, want waiting", h.State())
	}
	if model.resetCount() == 0 {
		t.Fatal("cache not cleared after error")
	}
}

func TestGeneratePanicBecomesError(t *testing.T) {
	model := newScriptModel('z', "abcdef")
	model.panicAt = 2
	h := NewHandle(model, &charTokenizer{})

	_, err := h.Generate(context.Background(), Request{Prompt: "p"}, Options{})
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("err = %v, want panic error", err)
	}
	if h.State() != Waiting {
		t.Fatalf("state = %s, want waiting", h.State())
	}
	if model.resetCount() == 0 {
		t.Fatal("cache not cleared after panic")
	}
}

func TestCancelRestoresWaiting(t *testing.T) {
	model := newScriptModel('a')
	model.delay = time.Millisecond
	model.started = make(chan struct{})
	started := model.started
	h := NewHandle(model, &charTokenizer{})

	done := make(chan error, 1)
	go func() {
		_, err := h.Generate(context.Background(), Request{Prompt: "p"}, Options{MaxTokens: Ptr(1 << 30)})
		done <- err
	}()
	<-started

	if _, err := h.Generate(context.Background(), Request{Prompt: "p"}, Options{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("concurrent Generate err = %v, want ErrBusy", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if h.State() != Waiting {
		t.Fatalf("state = %s, want waiting", h.State())
	}
	if err := <-done; !errors.Is(err, ErrCancelled) {
		t.Fatalf("cancelled Generate err = %v, want ErrCancelled", err)
	}
	if model.resetCount() == 0 {
		t.Fatal("cache not cleared on cancel")
	}

	model.delay = 0
	got, err := h.Generate(context.Background(), Request{Prompt: "p"}, Options{MaxTokens: Ptr(2)})
	if err != nil {
		t.Fatalf("Generate after cancel: %v", err)
	}
	if got != "aa" {
		t.Fatalf("completion = %q, want %q", got, "aa")
	}
}

func TestCancelWhenIdle(t *testing.T) {
	h := NewHandle(newScriptModel('a'), &charTokenizer{})
	if err := h.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
}

func TestGenerateContextCancelled(t *testing.T) {
	h := NewHandle(newScriptModel('a'), &charTokenizer{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Generate(ctx, Request{Prompt: "p"}, Options{}); !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if h.State() != Waiting {
		t.Fatalf("state = %s, want waiting", h.State())
	}
}

func TestClosedHandle(t *testing.T) {
	h := NewHandle(newScriptModel('a'), &charTokenizer{})
	if err := h.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := h.Generate(context.Background(), Request{Prompt: "p"}, Options{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestStopIndex(t *testing.T) {
	cases := []struct {
		text  string
		tail  int
		stops []string
		want  int
		found bool
	}{
		{text: "abc\n", tail: 1, stops: []string{"\n"}, want: 3, found: true},
		{text: "abEND", tail: 1, stops: []string{"END"}, want: 2, found: true},
		{text: "a\nb\n", tail: 3, stops: []string{"\n"}, want: 1, found: true},
		{text: "abc", tail: 3, stops: []string{"\n"}, found: false},
		{text: "xy}z", tail: 2, stops: []string{"}", "y"}, want: 1, found: true},
	}
	for _, tc := range cases {
		got, ok := stopIndex(tc.text, tc.tail, tc.stops)
		if ok != tc.found || got != tc.want {
			t.Fatalf("stopIndex(%q, %d) = %d, %v; want %d, %v", tc.text, tc.tail, got, ok, tc.want, tc.found)
		}
	}
}

func TestOptionsOr(t *testing.T) {
	fallback := Options{
		Temperature:   Ptr(float32(0.5)),
		MaxTokens:     Ptr(10),
		Seed:          Ptr(int64(7)),
		TopK:          Ptr(40),
		MinP:          Ptr(float32(0.05)),
		RepeatPenalty: Ptr(float32(1.1)),
		RepeatLastN:   Ptr(32),
	}
	got := Options{MaxTokens: Ptr(3), TopK: Ptr(5)}.Or(fallback)
	if *got.Temperature != 0.5 || *got.MaxTokens != 3 || *got.Seed != 7 {
		t.Fatalf("Or = temp %v max %v seed %v", *got.Temperature, *got.MaxTokens, *got.Seed)
	}
	if *got.TopK != 5 || *got.MinP != 0.05 || *got.RepeatPenalty != 1.1 || *got.RepeatLastN != 32 {
		t.Fatalf("Or = topk %v minp %v penalty %v lastn %v", *got.TopK, *got.MinP, *got.RepeatPenalty, *got.RepeatLastN)
	}
	p := resolveParams(Options{})
	if p.temperature != DefaultTemperature || p.topP != DefaultTopP || p.maxTokens != DefaultMaxTokens || p.seeded {
		t.Fatalf("defaults = %+v", p)
	}
	if p.topK != 0 || p.minP != 0 || p.repeatPenalty != 0 || p.repeatLastN != 0 {
		t.Fatalf("sampler defaults = %+v", p)
	}
	p = resolveParams(Options{TopK: Ptr(-1), MinP: Ptr(float32(2))})
	if p.topK != 0 || p.minP != 0 {
		t.Fatalf("out of range values kept: %+v", p)
	}
}

// pairModel always ranks a first and b a close second.
type pairModel struct{}

func (pairModel) ForwardToken(int) ([]float32, error) {
	lv := make([]float32, 257)
	lv['a'], lv['b'] = 20, 15
	return lv, nil
}

func (pairModel) Reset() {}

func TestGenerateRepeatPenalty(t *testing.T) {
	h := NewHandle(pairModel{}, &charTokenizer{})
	greedy := Options{Temperature: Ptr(float32(0)), MaxTokens: Ptr(4)}

	got, err := h.Generate(context.Background(), Request{Prompt: "p"}, greedy)
	if err != nil || got != "aaaa" {
		t.Fatalf("without penalty = %q, %v", got, err)
	}

	// Halving a drops it under b; once both are damped a leads again.
	penalized := greedy
	penalized.RepeatPenalty = Ptr(float32(2))
	got, err = h.Generate(context.Background(), Request{Prompt: "p"}, penalized)
	if err != nil || got != "abaa" {
		t.Fatalf("with penalty = %q, %v", got, err)
	}

	penalized.RepeatLastN = Ptr(1)
	got, err = h.Generate(context.Background(), Request{Prompt: "p"}, penalized)
	if err != nil || got != "abab" {
		t.Fatalf("with one-token window = %q, %v", got, err)
	}
}
