package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodingName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"cl100k_base":            encodingCL100kBase,
		"o200k_base":             encodingO200kBase,
		"gpt-4":                  encodingCL100kBase,
		"gpt-4-0314":             encodingCL100kBase,
		"gpt-4o":                 encodingO200kBase,
		"gpt-4o-2024-05-13":      encodingO200kBase,
		"gpt-4.1-mini":           encodingO200kBase,
		"gpt-3.5-turbo-0301":     encodingCL100kBase,
		"text-davinci-003":       encodingP50kBase,
		"code-davinci-edit-001":  encodingP50kEdit,
		"davinci":                encodingR50kBase,
		"text-embedding-3-small": encodingCL100kBase,
		"not-a-model":            "not-a-model",
	}
	for in, want := range cases {
		assert.Equal(t, want, encodingName(in), in)
	}
}

func TestTikTokenIDsFollowEncoding(t *testing.T) {
	t.Parallel()

	cases := []struct {
		model string
		vocab int
		eos   int
	}{
		{"gpt-4", 100256, 100257},
		{"gpt-4o-mini", 199998, 199999},
		{"text-davinci-003", 50281, 50256},
		{"davinci", 50257, 50256},
	}
	for _, tc := range cases {
		// Loading the ranks needs the network; the ids depend on the name alone.
		tok := &TikToken{name: encodingName(tc.model)}
		assert.Equal(t, tc.vocab, tok.VocabSize(), tc.model)
		assert.Equal(t, tc.eos, tok.EOSID(), tc.model)
		assert.Equal(t, -1, tok.BOSID())
		assert.False(t, tok.AddBOS())
	}
}
