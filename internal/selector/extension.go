package selector

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jellydator/ttlcache/v3"

	"github.com/samcharles93/infill/internal/tokenizer"
)

const (
	extensionTTL      = 10 * time.Minute
	extensionCapacity = 8192
	// maxWindow bounds the prior suffix, in runes, tried while searching
	// for a stable merge boundary.
	maxWindow = 64
)

type extensionKey struct {
	codec     tokenizer.Tokenizer
	prior     string
	candidate string
}

// No janitor is started: Get drops expired items itself.
var extensions = ttlcache.New[extensionKey, []int](
	ttlcache.WithTTL[extensionKey, []int](extensionTTL),
	ttlcache.WithCapacity[extensionKey, []int](extensionCapacity),
	ttlcache.WithDisableTouchOnHit[extensionKey, []int](),
)

// Extension returns the ids that, appended to the encoding of prior, spell
// candidate. Tokenizers merge across word boundaries, so the ids are found
// by re-encoding growing suffixes of prior together with candidate and
// locating the last id of prior in the result. When no window yields a
// verified split the direct encoding of candidate is returned.
func Extension(codec tokenizer.Tokenizer, prior, candidate string) ([]int, error) {
	key := extensionKey{codec: codec, prior: prior, candidate: candidate}
	if item := extensions.Get(key); item != nil {
		return item.Value(), nil
	}
	ids, err := extension(codec, prior, candidate)
	if err != nil {
		return nil, err
	}
	extensions.Set(key, ids, ttlcache.DefaultTTL)
	return ids, nil
}

func extension(codec tokenizer.Tokenizer, prior, candidate string) ([]int, error) {
	direct, err := codec.Encode(candidate)
	if err != nil {
		return nil, fmt.Errorf("encode candidate %q: %w", candidate, err)
	}
	if prior == "" || candidate == "" {
		return direct, nil
	}
	priorIDs, err := codec.Encode(prior)
	if err != nil {
		return nil, fmt.Errorf("encode prior: %w", err)
	}
	if len(priorIDs) == 0 {
		return direct, nil
	}
	last := priorIDs[len(priorIDs)-1]

	start := len(prior)
	for n := 0; n < maxWindow && start > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(prior[:start])
		start -= size
		ids, err := codec.Encode(prior[start:] + candidate)
		if err != nil {
			return nil, fmt.Errorf("encode window: %w", err)
		}
		for j, id := range ids {
			if id != last || j == len(ids)-1 {
				continue
			}
			if spells(codec, ids, j, candidate) {
				return append([]int(nil), ids[j+1:]...), nil
			}
		}
	}
	return direct, nil
}

// spells reports whether ids[j+1:] decodes to candidate in the context of
// ids[:j+1].
func spells(codec tokenizer.Tokenizer, ids []int, j int, candidate string) bool {
	head, err := codec.Decode(ids[:j+1])
	if err != nil {
		return false
	}
	full, err := codec.Decode(ids)
	if err != nil {
		return false
	}
	rest, ok := strings.CutPrefix(full, head)
	return ok && rest == candidate
}
