// Package tokenizer adapts the tokenizer formats infill can load to the
// small encode/decode surface the generation engine and selectors need.
package tokenizer

import "strings"

// Tokenizer converts between text and token ids. Encode never adds
// sequence markers; use EncodePrompt for a prefill pass.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}

// Vocabulary is implemented by tokenizers that can enumerate their ids.
type Vocabulary interface {
	VocabSize() int
}

// Surfacer reports the text a token contributes when it appears in the
// middle of a sequence. Special and control tokens report "".
type Surfacer interface {
	TokenText(id int) string
}

// Specials exposes the sequence markers of a tokenizer. Negative ids mean
// the tokenizer has no such marker.
type Specials interface {
	BOSID() int
	EOSID() int
	AddBOS() bool
}

// EncodePrompt encodes text for prefill, prepending BOS when the tokenizer
// asks for it.
func EncodePrompt(tok Tokenizer, text string) ([]int, error) {
	ids, err := tok.Encode(text)
	if err != nil {
		return nil, err
	}
	if sp, ok := tok.(Specials); ok && sp.AddBOS() && sp.BOSID() >= 0 {
		ids = append([]int{sp.BOSID()}, ids...)
	}
	return ids, nil
}

// EOSID returns the end-of-sequence id of tok, or -1.
func EOSID(tok Tokenizer) int {
	if sp, ok := tok.(Specials); ok {
		return sp.EOSID()
	}
	return -1
}

// VocabSize returns the vocabulary size of tok, or 0 when unknown.
func VocabSize(tok Tokenizer) int {
	if v, ok := tok.(Vocabulary); ok {
		return v.VocabSize()
	}
	return 0
}

// TokenText returns the mid-sequence surface text of id. Tokenizers that do
// not implement Surfacer are probed by decoding id after an anchor token,
// which sidesteps leading-space stripping in their decoders.
func TokenText(tok Tokenizer, id int) string {
	if s, ok := tok.(Surfacer); ok {
		return s.TokenText(id)
	}
	anchor, err := tok.Encode("a")
	if err != nil || len(anchor) == 0 {
		text, _ := tok.Decode([]int{id})
		return text
	}
	head, err := tok.Decode(anchor)
	if err != nil {
		return ""
	}
	full, err := tok.Decode(append(anchor[:len(anchor):len(anchor)], id))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(full, head)
}
