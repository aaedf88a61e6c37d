package selector

import (
	"strings"
	"sync"

	"github.com/samcharles93/infill/internal/tokenizer"
)

// ConsistsOf restricts every step to tokens made only of the characters in
// chars, plus tokens made of such characters followed by one of endings.
// The set does not narrow as generation proceeds and is computed once per
// codec.
func ConsistsOf(chars []string, endings ...string) Selector {
	set := make(map[rune]struct{})
	for _, c := range chars {
		for _, r := range c {
			set[r] = struct{}{}
		}
	}
	return &consists{
		chars:   set,
		endings: append([]string(nil), endings...),
		byCodec: make(map[tokenizer.Tokenizer][]int),
	}
}

type consists struct {
	chars   map[rune]struct{}
	endings []string

	mu      sync.Mutex
	byCodec map[tokenizer.Tokenizer][]int
}

func (c *consists) Relevant(step Step) ([]int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ids, ok := c.byCodec[step.Codec]; ok {
		return ids, nil
	}
	ids := c.scan(step.Codec)
	c.byCodec[step.Codec] = ids
	return ids, nil
}

func (c *consists) scan(codec tokenizer.Tokenizer) []int {
	var ids []int
	for id := range tokenizer.VocabSize(codec) {
		if c.matches(tokenizer.TokenText(codec, id)) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *consists) matches(text string) bool {
	if text == "" {
		return false
	}
	if c.only(text) {
		return true
	}
	for _, end := range c.endings {
		if end == "" {
			continue
		}
		if head, ok := strings.CutSuffix(text, end); ok && c.only(head) {
			return true
		}
	}
	return false
}

func (c *consists) only(s string) bool {
	for _, r := range s {
		if _, ok := c.chars[r]; !ok {
			return false
		}
	}
	return true
}

const (
	digits     = "0123456789"
	lowers     = "abcdefghijklmnopqrstuvwxyz"
	uppers     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	whitespace = " \t\n\r"
)

// Number accepts tokens made of decimal digits.
func Number() Selector { return ConsistsOf([]string{digits}) }

func Alpha() Selector { return ConsistsOf([]string{lowers, uppers}) }

func Alphanumeric() Selector { return ConsistsOf([]string{lowers, uppers, digits}) }

func Whitespace() Selector { return ConsistsOf([]string{whitespace}) }

// Hex accepts tokens made of hexadecimal digits in either case.
func Hex() Selector { return ConsistsOf([]string{digits, "abcdefABCDEF"}) }

// Class returns the character-class selector called name.
func Class(name string) (Selector, bool) {
	switch strings.ToLower(name) {
	case "number", "digit", "digits":
		return Number(), true
	case "alpha", "letters":
		return Alpha(), true
	case "alphanumeric", "alnum":
		return Alphanumeric(), true
	case "whitespace", "space":
		return Whitespace(), true
	case "hex":
		return Hex(), true
	}
	return nil, false
}
