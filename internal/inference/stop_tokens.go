package inference

import (
	"slices"

	"github.com/samcharles93/infill/internal/tokenizer"
)

// endOfTurnMarkers end generation for chat-tuned vocabularies whose EOS id
// differs from the end-of-turn token.
var endOfTurnMarkers = []string{"<|im_end|>", "<|eot_id|>", "<|end|>", "<end_of_turn>"}

// BuildStopTokens returns the ids that end a hole: the tokenizer EOS, any
// end-of-turn markers the vocabulary defines, and extra.
func BuildStopTokens(tok tokenizer.Tokenizer, extra ...int) []int {
	stopTokens := make([]int, 0, 4+len(extra))
	if eos := tokenizer.EOSID(tok); eos >= 0 {
		stopTokens = append(stopTokens, eos)
	}
	if t, ok := tok.(interface{ TokenID(string) (int, bool) }); ok {
		for _, marker := range endOfTurnMarkers {
			if id, ok := t.TokenID(marker); ok {
				stopTokens = append(stopTokens, id)
			}
		}
	}
	for _, id := range extra {
		if id >= 0 {
			stopTokens = append(stopTokens, id)
		}
	}
	out := stopTokens[:0]
	for _, id := range stopTokens {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
