package template

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/infill/internal/inference"
)

type call struct {
	req  inference.Request
	opts inference.Options
}

// fakeGen answers every hole with reply(prompt) and records the request.
type fakeGen struct {
	mu    sync.Mutex
	calls []call
	reply func(prompt string) string
	err   error

	entered chan struct{}
	block   chan struct{}
}

func (g *fakeGen) Generate(ctx context.Context, req inference.Request, opts inference.Options) (string, error) {
	if g.entered != nil {
		close(g.entered)
	}
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	g.calls = append(g.calls, call{req: req, opts: opts})
	g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	text := "1"
	if g.reply != nil {
		text = g.reply(req.Prompt)
	}
	if opts.Stream != nil {
		opts.Stream(inference.Partial{Type: inference.PartialGen, Content: text, Prompt: req.Prompt})
	}
	return text, nil
}

func TestCollectEndToEnd(t *testing.T) {
	gen := &fakeGen{}
	c := NewContext(gen, "sys")
	tmpl, err := c.Compile(`{"a": "`, c.A("x"), `", "b": "`, c.The("y"), `"}`)
	require.NoError(t, err)

	got, err := tmpl.Collect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"a": "1", "b": "1"}`, got)

	res, err := tmpl.CollectRefs(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"a": "1", "b": "1"}`, res.Completion)
	assert.Empty(t, res.Refs)
}

func TestCollectPassesPriorCompletion(t *testing.T) {
	gen := &fakeGen{reply: func(p string) string { return strings.ToUpper(p[len(p)-1:]) }}
	c := NewContext(gen, "sys", WithPreprompt("pre"))
	tmpl := c.MustCompile("<", c.Prompt("a"), "|", c.Prompt("b"), Text("-"), c.Prompt("c"), ">")

	got, err := tmpl.Collect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "<A|B-C>", got)

	require.Len(t, gen.calls, 3)
	assert.Equal(t, "<", gen.calls[0].req.PriorCompletion)
	assert.Equal(t, "<A|", gen.calls[1].req.PriorCompletion)
	assert.Equal(t, "<A|B-", gen.calls[2].req.PriorCompletion)
	for _, cl := range gen.calls {
		assert.Equal(t, "sys", cl.req.System)
		assert.Equal(t, "pre", cl.req.Preprompt)
	}
	assert.Equal(t, []string{"|"}, gen.calls[0].req.Stops)
	assert.Equal(t, []string{"-"}, gen.calls[1].req.Stops)
	assert.Equal(t, []string{">"}, gen.calls[2].req.Stops)
}

func TestCompileAdjacentHoles(t *testing.T) {
	gen := &fakeGen{}
	c := NewContext(gen, "")
	tmpl := c.MustCompile(c.Prompt("a"), c.Prompt("b", WithStops("\n", "")))

	assert.Equal(t, "", tmpl.head)
	require.Len(t, tmpl.ops, 2)
	assert.Empty(t, tmpl.ops[0].stops)

	_, err := tmpl.Collect(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, gen.calls[0].req.Stops)
	assert.Equal(t, []string{"\n"}, gen.calls[1].req.Stops)

	_, err = c.Compile("x", 42)
	assert.Error(t, err)
}

func TestPromptPhrasing(t *testing.T) {
	gen := &fakeGen{}
	c := NewContext(gen, "")
	tmpl := c.MustCompile(
		c.A("name"), " ",
		c.The("capital"), " ",
		c.Prompt("as written"), " ",
		c.A("thing", WithPreword("Invent")), " ",
		c.The("place", WithoutPreword()),
	)
	_, err := tmpl.Collect(context.Background(), nil)
	require.NoError(t, err)

	var prompts []string
	for _, cl := range gen.calls {
		prompts = append(prompts, cl.req.Prompt)
	}
	assert.Equal(t, []string{
		"Generate a name",
		"What is the capital",
		"as written",
		"Invent thing",
		"place",
	}, prompts)

	gen2 := &fakeGen{}
	c2 := NewContext(gen2, "", WithDefaultPreword("What is"))
	_, err = c2.MustCompile(c2.A("company name")).Collect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "What is a company name", gen2.calls[0].req.Prompt)
}

func TestRefsRoundTrip(t *testing.T) {
	gen := &fakeGen{reply: func(p string) string {
		if strings.Contains(p, "color") {
			return "blue"
		}
		return "sword"
	}}
	c := NewContext(gen, "")
	tmpl := c.MustCompile(
		"Color: ", c.A("color", WithID("color")),
		"\nWeapon: ", Ref(func(lookup Lookup) Expression {
			v, ok := lookup("color")
			require.True(t, ok)
			return c.Prompt("a weapon matching "+v, WithID("weapon"))
		}),
		"\n",
	)

	res, err := tmpl.CollectRefs(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "blue", res.Refs["color"])
	assert.Equal(t, "sword", res.Refs["weapon"])
	assert.Equal(t, "Color: blue\nWeapon: sword\n", res.Completion)
	require.Len(t, gen.calls, 2)
	assert.Equal(t, "a weapon matching blue", gen.calls[1].req.Prompt)
}

func TestDeferredText(t *testing.T) {
	gen := &fakeGen{}
	c := NewContext(gen, "")
	var parts []inference.Partial
	tmpl := c.MustCompile("[", c.Prompt("n", WithID("n")), "]", Ref(func(lookup Lookup) Expression {
		v, _ := lookup("n")
		return Text("=" + v)
	}))
	got, err := tmpl.Collect(context.Background(), func(p inference.Partial) { parts = append(parts, p) })
	require.NoError(t, err)
	assert.Equal(t, "[1]=1", got)
	assert.Equal(t, inference.Partial{Type: inference.PartialLit, Content: "=1"}, parts[len(parts)-1])
	assert.Len(t, gen.calls, 1)
}

func TestUnresolvedRef(t *testing.T) {
	gen := &fakeGen{}
	c := NewContext(gen, "")
	tmpl := c.MustCompile("x", Needs([]string{"missing"}, func(Lookup) Expression { return Text("") }))
	_, err := tmpl.Collect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnresolvedRef)
	assert.Empty(t, gen.calls)
}

func TestStreamOrder(t *testing.T) {
	gen := &fakeGen{}
	c := NewContext(gen, "sys", WithPreprompt("pre"))
	tmpl := c.MustCompile(`{"a": "`, c.A("x"), `"}`)

	var parts []inference.Partial
	_, err := tmpl.Collect(context.Background(), func(p inference.Partial) { parts = append(parts, p) })
	require.NoError(t, err)

	require.Len(t, parts, 4)
	assert.Equal(t, inference.Partial{
		Type:      inference.PartialTemplate,
		Content:   `{"a": "{{x}}"}`,
		System:    "sys",
		Preprompt: "pre",
	}, parts[0])
	assert.Equal(t, inference.Partial{Type: inference.PartialLit, Content: `{"a": "`}, parts[1])
	assert.Equal(t, inference.PartialGen, parts[2].Type)
	assert.Equal(t, "Generate a x", parts[2].Prompt)
	assert.Equal(t, inference.Partial{Type: inference.PartialLit, Content: `"}`}, parts[3])
}

func TestHoleOptionsOverrideDefaults(t *testing.T) {
	gen := &fakeGen{}
	c := NewContext(gen, "", WithDefaults(inference.Options{
		MaxTokens:   inference.Ptr(50),
		Temperature: inference.Ptr(float32(0.2)),
	}))
	tmpl := c.MustCompile(c.A("x", WithMaxTokens(5)), c.A("y"))
	_, err := tmpl.Collect(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, gen.calls, 2)
	assert.Equal(t, 5, *gen.calls[0].opts.MaxTokens)
	assert.Equal(t, float32(0.2), *gen.calls[0].opts.Temperature)
	assert.Equal(t, 50, *gen.calls[1].opts.MaxTokens)
	assert.NotNil(t, gen.calls[0].opts.Stream)
}

func TestGeneratorErrorPropagates(t *testing.T) {
	gen := &fakeGen{err: inference.ErrCancelled}
	c := NewContext(gen, "")
	res, err := c.MustCompile("head ", c.A("x"), " tail").CollectRefs(context.Background(), nil)
	assert.ErrorIs(t, err, inference.ErrCancelled)
	assert.Equal(t, "head ", res.Completion)
}

func TestContextBusy(t *testing.T) {
	gen := &fakeGen{block: make(chan struct{}), entered: make(chan struct{})}
	c := NewContext(gen, "")
	tmpl := c.MustCompile(c.A("x"))

	done := make(chan error, 1)
	go func() {
		_, err := tmpl.Collect(context.Background(), nil)
		done <- err
	}()
	<-gen.entered

	_, err := tmpl.Collect(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrBusy))

	close(gen.block)
	require.NoError(t, <-done)
}
