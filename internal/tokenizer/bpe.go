package tokenizer

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

const (
	gpt2Pattern   = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`
	llama3Pattern = `(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+`
)

// Mode selects how a BPE vocabulary spells raw text.
type Mode int

const (
	// ByteLevel is GPT-2 style: every byte maps to a printable rune.
	ByteLevel Mode = iota
	// Metaspace is SentencePiece style: spaces become ▁ and unknown runes
	// fall back to <0xNN> byte tokens.
	Metaspace
)

// Config describes a BPE vocabulary.
type Config struct {
	Mode   Mode
	Tokens []string
	Merges []string

	// Pattern is the pre-tokenizer regexp for ByteLevel mode. Empty
	// selects the pattern named by Pre.
	Pattern string
	Pre     string

	// SplitMetaspace splits Metaspace text before every ▁.
	SplitMetaspace bool
	// StripLeadingSpace drops one leading space from decoded text.
	StripLeadingSpace bool
	ByteFallback      bool
	IgnoreMerges      bool

	Normalizers []func(string) string

	AddBOS     bool
	BOSTokenID int
	EOSTokenID int
	UNKTokenID int

	// Specials are matched verbatim before pre-tokenization and always
	// encode to their own id.
	Specials []string
}

// BPE is a merge-rank tokenizer covering both byte-level and metaspace
// vocabularies.
type BPE struct {
	mode        Mode
	encoder     map[string]int
	decoder     []string
	bpeRanks    map[Pair]int
	byteEncoder map[byte]string
	byteDecoder map[string]byte
	pattern     *regexp.Regexp
	normalizers []func(string) string

	splitMeta    bool
	stripLeading bool
	byteFallback bool
	ignoreMerges bool

	addBOS bool
	bosID  int
	eosID  int
	unkID  int

	special   []string
	specialID map[int]bool

	mu    sync.Mutex
	cache map[string][]string
}

// PatternFor returns the pre-tokenizer regexp for a named pre-tokenizer.
// Lookaheads are removed for Go regexp compatibility.
func PatternFor(pre string) string {
	switch pre {
	case "lfm2", "llama3", "llama-v3", "llama-bpe", "falcon3", "falcon-h1", "pixtral", "midm-2.0":
		return llama3Pattern
	default:
		return gpt2Pattern
	}
}

func NewBPE(cfg Config) (*BPE, error) {
	if len(cfg.Tokens) == 0 {
		return nil, fmt.Errorf("empty token list")
	}
	encoder := make(map[string]int, len(cfg.Tokens))
	for i, t := range cfg.Tokens {
		if _, dup := encoder[t]; !dup {
			encoder[t] = i
		}
	}

	t := &BPE{
		mode:         cfg.Mode,
		encoder:      encoder,
		decoder:      append([]string(nil), cfg.Tokens...),
		bpeRanks:     parseMerges(cfg.Merges),
		normalizers:  cfg.Normalizers,
		splitMeta:    cfg.SplitMetaspace,
		stripLeading: cfg.StripLeadingSpace,
		byteFallback: cfg.ByteFallback,
		ignoreMerges: cfg.IgnoreMerges,
		addBOS:       cfg.AddBOS,
		bosID:        cfg.BOSTokenID,
		eosID:        cfg.EOSTokenID,
		unkID:        cfg.UNKTokenID,
		specialID:    make(map[int]bool),
		cache:        make(map[string][]string),
	}

	if cfg.Mode == ByteLevel {
		t.byteEncoder, t.byteDecoder = bytesToUnicode()
		pat := cfg.Pattern
		if pat == "" {
			pat = PatternFor(cfg.Pre)
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("compile pre-tokenizer pattern: %w", err)
		}
		t.pattern = re
	}

	specials := append([]string(nil), cfg.Specials...)
	for _, tok := range cfg.Tokens {
		if isSpecialToken(tok) {
			specials = append(specials, tok)
		}
	}
	t.special = sortSpecials(specials)
	for _, s := range t.special {
		if id, ok := encoder[s]; ok {
			t.specialID[id] = true
		}
	}
	for _, id := range []int{t.bosID, t.eosID, t.unkID} {
		if id >= 0 && id < len(t.decoder) {
			t.specialID[id] = true
		}
	}
	return t, nil
}

func (t *BPE) Encode(text string) ([]int, error) {
	var ids []int
	for _, part := range splitSpecials(text, t.special) {
		if part.isSpecial {
			id, ok := t.encoder[part.text]
			if !ok {
				return nil, fmt.Errorf("unknown special token: %q", part.text)
			}
			ids = append(ids, id)
			continue
		}
		var err error
		for _, piece := range t.pretokenize(t.normalize(part.text)) {
			if ids, err = t.encodePiece(ids, piece); err != nil {
				return nil, err
			}
		}
	}
	return ids, nil
}

func (t *BPE) Decode(ids []int) (string, error) {
	var b []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.decoder) {
			return "", fmt.Errorf("token id out of range: %d", id)
		}
		b = t.appendToken(b, id)
	}
	out := string(b)
	if t.stripLeading {
		out = strings.TrimPrefix(out, " ")
	}
	return out, nil
}

// TokenText returns the text id contributes mid-sequence, or "" for
// special tokens.
func (t *BPE) TokenText(id int) string {
	if id < 0 || id >= len(t.decoder) || t.specialID[id] {
		return ""
	}
	return string(t.appendToken(nil, id))
}

func (t *BPE) VocabSize() int { return len(t.decoder) }
func (t *BPE) BOSID() int     { return t.bosID }
func (t *BPE) EOSID() int     { return t.eosID }
func (t *BPE) AddBOS() bool   { return t.addBOS && t.bosID >= 0 }

// TokenString returns the raw vocabulary entry for id.
func (t *BPE) TokenString(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

// TokenID returns the id of an exact vocabulary entry.
func (t *BPE) TokenID(token string) (int, bool) {
	id, ok := t.encoder[token]
	return id, ok
}

func (t *BPE) appendToken(b []byte, id int) []byte {
	token := t.decoder[id]
	if t.specialID[id] {
		return append(b, token...)
	}
	if t.mode == Metaspace {
		if by, ok := parseByteToken(token); ok {
			return append(b, by)
		}
		return append(b, strings.ReplaceAll(token, metaspace, " ")...)
	}
	for _, r := range token {
		if by, ok := t.byteDecoder[string(r)]; ok {
			b = append(b, by)
		} else {
			b = append(b, string(r)...)
		}
	}
	return b
}

func (t *BPE) normalize(s string) string {
	for _, fn := range t.normalizers {
		s = fn(s)
	}
	return s
}

func (t *BPE) pretokenize(s string) []string {
	if s == "" {
		return nil
	}
	if t.mode == ByteLevel {
		return t.pattern.FindAllString(s, -1)
	}
	if !t.splitMeta {
		return []string{s}
	}
	var out []string
	start := 0
	for i := len(metaspace); i < len(s); {
		if strings.HasPrefix(s[i:], metaspace) {
			out = append(out, s[start:i])
			start = i
			i += len(metaspace)
			continue
		}
		i++
	}
	return append(out, s[start:])
}

func (t *BPE) encodePiece(ids []int, piece string) ([]int, error) {
	sym := piece
	if t.mode == ByteLevel {
		sym = t.byteEncode(piece)
	}
	for _, tok := range t.bpe(sym) {
		if id, ok := t.encoder[tok]; ok {
			ids = append(ids, id)
			continue
		}
		if t.byteFallback {
			if fb, ok := t.fallback(tok); ok {
				ids = append(ids, fb...)
				continue
			}
		}
		if t.unkID >= 0 {
			ids = append(ids, t.unkID)
			continue
		}
		return nil, fmt.Errorf("unknown token: %q", tok)
	}
	return ids, nil
}

func (t *BPE) fallback(tok string) ([]int, bool) {
	out := make([]int, 0, len(tok))
	for i := 0; i < len(tok); i++ {
		id, ok := t.encoder[byteToken(tok[i])]
		if !ok {
			return nil, false
		}
		out = append(out, id)
	}
	return out, true
}

func (t *BPE) byteEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		b.WriteString(t.byteEncoder[s[i]])
	}
	return b.String()
}

func (t *BPE) bpe(token string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.cache[token]; ok {
		return v
	}
	if t.ignoreMerges {
		if _, ok := t.encoder[token]; ok {
			out := []string{token}
			t.cache[token] = out
			return out
		}
	}
	word := splitRunes(token)
	pairs := getPairs(word)
	for len(pairs) > 0 {
		bestRank := int(^uint(0) >> 1)
		bestPair := Pair{}
		found := false
		for p := range pairs {
			if rank, ok := t.bpeRanks[p]; ok && rank < bestRank {
				bestRank = rank
				bestPair = p
				found = true
			}
		}
		if !found {
			break
		}
		word = mergePair(word, bestPair)
		if len(word) == 1 {
			break
		}
		pairs = getPairs(word)
	}
	t.cache[token] = word
	return word
}
