package tokenizer

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"golang.org/x/text/unicode/norm"
)

type hfComponent struct {
	Type           string `json:"type"`
	Prepend        string `json:"prepend"`
	Content        string `json:"content"`
	Replacement    string `json:"replacement"`
	PrependScheme  string `json:"prepend_scheme"`
	AddPrefixSpace *bool  `json:"add_prefix_space"`
	Split          *bool  `json:"split"`
	Start          int    `json:"start"`
	Pattern        struct {
		String string `json:"String"`
		Regex  string `json:"Regex"`
	} `json:"pattern"`
	Normalizers   []hfComponent `json:"normalizers"`
	Pretokenizers []hfComponent `json:"pretokenizers"`
	Decoders      []hfComponent `json:"decoders"`
}

type hfTokenizerJSON struct {
	Model struct {
		Type         string         `json:"type"`
		Vocab        map[string]int `json:"vocab"`
		Merges       []any          `json:"merges"`
		IgnoreMerges bool           `json:"ignore_merges"`
		ByteFallback bool           `json:"byte_fallback"`
		UnkToken     string         `json:"unk_token"`
	} `json:"model"`
	Normalizer    *hfComponent `json:"normalizer"`
	PreTokenizer  *hfComponent `json:"pre_tokenizer"`
	Decoder       *hfComponent `json:"decoder"`
	PostProcessor *struct {
		Type   string `json:"type"`
		Single []map[string]struct {
			ID string `json:"id"`
		} `json:"single"`
		Processors []struct {
			Type   string `json:"type"`
			Single []map[string]struct {
				ID string `json:"id"`
			} `json:"single"`
		} `json:"processors"`
	} `json:"post_processor"`
	AddedTokens []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

// HFConfig is the subset of tokenizer_config.json infill reads.
type HFConfig struct {
	AddBOS *bool
	BOS    string
	EOS    string
}

// ParseHFConfig parses tokenizer_config.json. Token fields may be plain
// strings or {"content": ...} objects.
func ParseHFConfig(data []byte) (HFConfig, error) {
	var raw struct {
		AddBOS *bool           `json:"add_bos_token"`
		BOS    json.RawMessage `json:"bos_token"`
		EOS    json.RawMessage `json:"eos_token"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return HFConfig{}, fmt.Errorf("parse tokenizer config: %w", err)
	}
	return HFConfig{
		AddBOS: raw.AddBOS,
		BOS:    tokenContent(raw.BOS),
		EOS:    tokenContent(raw.EOS),
	}, nil
}

func tokenContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Content
	}
	return ""
}

// LoadHF loads a Hugging Face tokenizer.json and, when configPath is not
// empty, its tokenizer_config.json.
func LoadHF(path, configPath string) (*BPE, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg []byte
	if configPath != "" {
		if raw, err := os.ReadFile(configPath); err == nil {
			cfg = raw
		}
	}
	return ParseHF(data, cfg)
}

func ParseHF(tokJSON, tokConfig []byte) (*BPE, error) {
	var tj hfTokenizerJSON
	if err := json.Unmarshal(tokJSON, &tj); err != nil {
		return nil, fmt.Errorf("parse tokenizer.json: %w", err)
	}
	if strings.ToUpper(tj.Model.Type) != "BPE" {
		return nil, fmt.Errorf("unsupported tokenizer model: %s", tj.Model.Type)
	}

	maxID := -1
	for _, id := range tj.Model.Vocab {
		maxID = max(maxID, id)
	}
	for _, at := range tj.AddedTokens {
		maxID = max(maxID, at.ID)
	}
	tokens := make([]string, maxID+1)
	for tok, id := range tj.Model.Vocab {
		tokens[id] = tok
	}
	var specials []string
	for _, at := range tj.AddedTokens {
		tokens[at.ID] = at.Content
		specials = append(specials, at.Content)
	}

	cfg := Config{
		Tokens:       tokens,
		Merges:       hfMerges(tj.Model.Merges),
		IgnoreMerges: tj.Model.IgnoreMerges,
		ByteFallback: tj.Model.ByteFallback,
		Specials:     specials,
		BOSTokenID:   -1,
		EOSTokenID:   -1,
		UNKTokenID:   -1,
	}

	normalizers := flatten(tj.Normalizer, func(c hfComponent) []hfComponent { return c.Normalizers })
	pretoks := flatten(tj.PreTokenizer, func(c hfComponent) []hfComponent { return c.Pretokenizers })
	decoders := flatten(tj.Decoder, func(c hfComponent) []hfComponent { return c.Decoders })

	if isMetaspace(tj.Model.ByteFallback, pretoks, decoders) {
		cfg.Mode = Metaspace
	}
	cfg.Normalizers = buildNormalizers(normalizers)

	for _, p := range pretoks {
		switch p.Type {
		case "Split":
			if cfg.Mode == ByteLevel && p.Pattern.Regex != "" && cfg.Pattern == "" {
				cfg.Pattern = goPattern(p.Pattern.Regex)
			}
		case "Metaspace":
			repl := p.Replacement
			if repl == "" {
				repl = metaspace
			}
			cfg.Normalizers = append(cfg.Normalizers, replacer(" ", repl))
			if prependsSpace(p) {
				cfg.Normalizers = append(cfg.Normalizers, prepender(repl))
			}
			cfg.SplitMetaspace = p.Split == nil || *p.Split
		}
	}
	for _, d := range decoders {
		switch d.Type {
		case "Strip":
			if d.Start > 0 && d.Content == " " {
				cfg.StripLeadingSpace = true
			}
		case "Metaspace":
			if prependsSpace(d) {
				cfg.StripLeadingSpace = true
			}
		}
	}

	encoder := make(map[string]int, len(tokens))
	for id, tok := range tokens {
		if _, ok := encoder[tok]; !ok && tok != "" {
			encoder[tok] = id
		}
	}
	lookup := func(names ...string) int {
		for _, n := range names {
			if id, ok := encoder[n]; ok && n != "" {
				return id
			}
		}
		return -1
	}

	var hc HFConfig
	if len(tokConfig) > 0 {
		if parsed, err := ParseHFConfig(tokConfig); err == nil {
			hc = parsed
		}
	}
	cfg.BOSTokenID = lookup(hc.BOS, "<s>", "<|begin_of_text|>", "<|startoftext|>")
	cfg.EOSTokenID = lookup(hc.EOS, "</s>", "<|endoftext|>", "<|eot_id|>", "<|im_end|>")
	cfg.UNKTokenID = lookup(tj.Model.UnkToken)

	if first := templateFirstSpecial(tj); first != "" {
		if id, ok := encoder[first]; ok {
			cfg.BOSTokenID = id
			cfg.AddBOS = true
		}
	}
	if hc.AddBOS != nil {
		cfg.AddBOS = *hc.AddBOS
	}
	return NewBPE(cfg)
}

func hfMerges(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, m := range raw {
		switch v := m.(type) {
		case string:
			out = append(out, v)
		case []any:
			if len(v) != 2 {
				continue
			}
			a, aok := v[0].(string)
			b, bok := v[1].(string)
			if aok && bok {
				out = append(out, a+" "+b)
			}
		}
	}
	return out
}

func flatten(c *hfComponent, children func(hfComponent) []hfComponent) []hfComponent {
	if c == nil {
		return nil
	}
	var out []hfComponent
	var walk func(hfComponent)
	walk = func(c hfComponent) {
		if c.Type == "Sequence" {
			for _, child := range children(c) {
				walk(child)
			}
			return
		}
		out = append(out, c)
	}
	walk(*c)
	return out
}

func isMetaspace(byteFallback bool, pretoks, decoders []hfComponent) bool {
	if byteFallback {
		return true
	}
	for _, p := range pretoks {
		if p.Type == "Metaspace" {
			return true
		}
	}
	for _, d := range decoders {
		switch d.Type {
		case "ByteFallback", "Metaspace":
			return true
		case "Replace":
			if d.Pattern.String == metaspace {
				return true
			}
		}
	}
	return false
}

func prependsSpace(c hfComponent) bool {
	if c.AddPrefixSpace != nil {
		return *c.AddPrefixSpace
	}
	return c.PrependScheme != "never"
}

func buildNormalizers(list []hfComponent) []func(string) string {
	var out []func(string) string
	for _, n := range list {
		switch n.Type {
		case "NFC":
			out = append(out, norm.NFC.String)
		case "NFD":
			out = append(out, norm.NFD.String)
		case "NFKC":
			out = append(out, norm.NFKC.String)
		case "NFKD":
			out = append(out, norm.NFKD.String)
		case "Lowercase":
			out = append(out, strings.ToLower)
		case "Prepend":
			out = append(out, prepender(n.Prepend))
		case "Replace":
			if n.Pattern.String != "" {
				out = append(out, replacer(n.Pattern.String, n.Content))
			}
		}
	}
	return out
}

func prepender(prefix string) func(string) string {
	return func(s string) string {
		if s == "" || strings.HasPrefix(s, prefix) {
			return s
		}
		return prefix + s
	}
}

func replacer(old, repl string) func(string) string {
	return func(s string) string { return strings.ReplaceAll(s, old, repl) }
}

// goPattern rewrites pre-tokenizer regexps Go cannot compile. Lookaheads and
// inline case folding fall back to the llama3 pattern.
func goPattern(pat string) string {
	if strings.Contains(pat, "(?!") || strings.Contains(pat, "(?i:") {
		return llama3Pattern
	}
	if _, err := regexp.Compile(pat); err != nil {
		return llama3Pattern
	}
	return pat
}

func templateFirstSpecial(tj hfTokenizerJSON) string {
	pp := tj.PostProcessor
	if pp == nil {
		return ""
	}
	single := pp.Single
	if pp.Type == "Sequence" {
		for _, proc := range pp.Processors {
			if proc.Type == "TemplateProcessing" {
				single = proc.Single
				break
			}
		}
	}
	if len(single) == 0 {
		return ""
	}
	if st, ok := single[0]["SpecialToken"]; ok {
		return st.ID
	}
	return ""
}
