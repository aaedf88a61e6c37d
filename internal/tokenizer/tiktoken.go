package tokenizer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	encodingCL100kBase = "cl100k_base"
	encodingO200kBase  = "o200k_base"
	encodingP50kBase   = "p50k_base"
	encodingP50kEdit   = "p50k_edit"
	encodingR50kBase   = "r50k_base"
)

// TikToken wraps an OpenAI BPE encoding. It never adds BOS.
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken loads an encoding by name, or by model name when the name is
// not a known encoding.
func NewTikToken(name string) (*TikToken, error) {
	enc := encodingName(name)
	encoding, err := tiktoken.GetEncoding(enc)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", name, err)
	}
	return &TikToken{encoding: encoding, name: enc}, nil
}

// encodingName maps a model name such as gpt-4 or gpt-4o-mini to its
// encoding. Anything else is returned unchanged.
func encodingName(name string) string {
	if enc, ok := tiktoken.MODEL_TO_ENCODING[name]; ok {
		return enc
	}
	best, out := "", name
	for prefix, enc := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(name, prefix) && len(prefix) > len(best) {
			best, out = prefix, enc
		}
	}
	return out
}

func (t *TikToken) Encode(text string) ([]int, error) {
	return t.encoding.Encode(text, nil, nil), nil
}

func (t *TikToken) Decode(ids []int) (string, error) {
	return t.encoding.Decode(ids), nil
}

// TokenText decodes id on its own; tiktoken keeps leading spaces.
func (t *TikToken) TokenText(id int) string {
	if id == t.EOSID() {
		return ""
	}
	return t.encoding.Decode([]int{id})
}

func (t *TikToken) VocabSize() int {
	switch t.name {
	case encodingCL100kBase:
		return 100256
	case encodingO200kBase:
		return 199998
	case encodingP50kBase, encodingP50kEdit:
		return 50281
	default:
		return 50257
	}
}

func (t *TikToken) BOSID() int   { return -1 }
func (t *TikToken) AddBOS() bool { return false }

func (t *TikToken) EOSID() int {
	switch t.name {
	case encodingCL100kBase:
		return 100257
	case encodingO200kBase:
		return 199999
	default:
		return 50256
	}
}
