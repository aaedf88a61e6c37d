// Package reasoning separates <think> blocks emitted by reasoning models
// from the answer text, so a hole can keep only the answer.
package reasoning

import "strings"

const (
	openTag  = "<think>"
	closeTag = "</think>"
)

// Parts is generated text split into its answer and its reasoning.
type Parts struct {
	Answer    string
	Reasoning string
}

// Split walks s and routes text inside <think>...</think> to Reasoning.
// Tags match case-insensitively; an unclosed block runs to the end of s.
func Split(s string) Parts {
	var answer, thought strings.Builder
	inside := false
	for len(s) > 0 {
		tag := openTag
		if inside {
			tag = closeTag
		}
		i := indexTag(s, tag)
		if i < 0 {
			i = len(s)
		}
		if inside {
			thought.WriteString(s[:i])
		} else {
			answer.WriteString(s[:i])
		}
		if i == len(s) {
			break
		}
		s = s[i+len(tag):]
		inside = !inside
	}
	return Parts{Answer: answer.String(), Reasoning: thought.String()}
}

// Strip returns s without its reasoning blocks, trimmed of the whitespace
// models usually leave around them.
func Strip(s string) string {
	if indexTag(s, openTag) < 0 {
		return s
	}
	return strings.TrimSpace(Split(s).Answer)
}

// indexTag returns the byte offset of tag in s, ignoring ASCII case.
func indexTag(s, tag string) int {
	for i := 0; i+len(tag) <= len(s); i++ {
		if s[i] == '<' && strings.EqualFold(s[i:i+len(tag)], tag) {
			return i
		}
	}
	return -1
}
