package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Format names a tokenizer file format.
type Format string

const (
	FormatAuto          Format = ""
	FormatHF            Format = "hf"
	FormatSentencePiece Format = "sentencepiece"
	FormatTikToken      Format = "tiktoken"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatAuto, FormatHF, FormatSentencePiece, FormatTikToken:
		return f, nil
	case "auto":
		return FormatAuto, nil
	case "json":
		return FormatHF, nil
	case "spm":
		return FormatSentencePiece, nil
	default:
		return "", fmt.Errorf("unknown tokenizer format %q", s)
	}
}

// Load opens a tokenizer. path may be a model directory, a tokenizer.json,
// a tokenizer.model, or a tiktoken encoding or model name. In a directory
// tokenizer.json wins over tokenizer.model.
func Load(path string, format Format) (Tokenizer, error) {
	switch format {
	case FormatHF:
		return LoadHF(hfPath(path), siblingConfig(hfPath(path)))
	case FormatSentencePiece:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			path = filepath.Join(path, "tokenizer.model")
		}
		return LoadSentencePiece(path)
	case FormatTikToken:
		return NewTikToken(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if tok, terr := NewTikToken(path); terr == nil {
				return tok, nil
			}
		}
		return nil, fmt.Errorf("open tokenizer %q: %w", path, err)
	}
	if info.IsDir() {
		if fileExists(filepath.Join(path, "tokenizer.json")) {
			return Load(path, FormatHF)
		}
		if fileExists(filepath.Join(path, "tokenizer.model")) {
			return Load(path, FormatSentencePiece)
		}
		return nil, fmt.Errorf("no tokenizer.json or tokenizer.model in %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return Load(path, FormatHF)
	case ".model":
		return Load(path, FormatSentencePiece)
	}
	return nil, fmt.Errorf("cannot infer tokenizer format of %s", path)
}

func hfPath(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, "tokenizer.json")
	}
	return path
}

func siblingConfig(path string) string {
	cfg := filepath.Join(filepath.Dir(path), "tokenizer_config.json")
	if fileExists(cfg) {
		return cfg
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
